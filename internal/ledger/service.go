// Package ledger はポイント台帳への追記と履歴集計を提供する。
// 台帳は履歴レポートの正であり、チャレンジ進捗の再計算元でもある。
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/taskrank/internal/model"
	"github.com/hitoshi/taskrank/internal/repository"
)

// maxReportDays はレポート取得で許可する最大日数。
const maxReportDays = 366

// Service はポイント台帳のサービス層。
type Service struct {
	repo repository.LedgerRepository
}

// NewService はServiceを生成する。
func NewService(repo repository.LedgerRepository) *Service {
	return &Service{repo: repo}
}

// Record は完了イベント1件分のエントリを追記する。dayは論理日（0時）で渡すこと。
func (s *Service) Record(ctx context.Context, userID string, points int, day time.Time) (*model.PointsLedgerEntry, error) {
	entry := &model.PointsLedgerEntry{
		UserID: userID,
		Points: points,
		Day:    day,
	}
	if err := s.repo.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("ポイント台帳への記録に失敗しました: %w", err)
	}
	return entry, nil
}

// History はユーザーの[from, to]のエントリを日付昇順で返す。
func (s *Service) History(ctx context.Context, userID string, from, to time.Time) ([]*model.PointsLedgerEntry, error) {
	if err := validateRange(from, to); err != nil {
		return nil, err
	}
	return s.repo.ListByUser(ctx, userID, from, to)
}

// DailyTotals はユーザーの[from, to]の日別合計を返す。
// エントリのない日も0件として含める。
func (s *Service) DailyTotals(ctx context.Context, userID string, from, to time.Time) ([]model.DailyTotal, error) {
	if err := validateRange(from, to); err != nil {
		return nil, err
	}
	entries, err := s.repo.ListByUser(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}

	days := model.DaysBetween(from, to) + 1
	totals := make([]model.DailyTotal, days)
	for i := range totals {
		totals[i].Day = from.AddDate(0, 0, i)
	}
	for _, e := range entries {
		i := model.DaysBetween(from, e.Day)
		if i < 0 || i >= days {
			continue
		}
		totals[i].Points += e.Points
		totals[i].Tasks++
	}
	return totals, nil
}

// TotalsInRange は[from, to]のユーザー別合計を返す。チャレンジ進捗の再計算で使用する。
func (s *Service) TotalsInRange(ctx context.Context, from, to time.Time) ([]model.UserTotals, error) {
	return s.repo.SumByUserInRange(ctx, from, to)
}

func validateRange(from, to time.Time) error {
	days := model.DaysBetween(from, to)
	if days < 0 {
		return model.NewValidationError("fromはto以前の日付を指定してください")
	}
	if days >= maxReportDays {
		return model.NewValidationError(fmt.Sprintf("期間は%d日以内で指定してください", maxReportDays))
	}
	return nil
}
