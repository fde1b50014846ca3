// Package aggregate はタスク完了イベントをユーザー集計に反映するAggregate Recorderを提供する。
// 集計の更新はユーザー単位で直列化し、永続化は楽観的排他制御で保護する。
// バッジ付与とチャレンジ進捗の更新はベストエフォートで、失敗しても集計の更新は取り消さない。
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/taskrank/internal/badge"
	"github.com/hitoshi/taskrank/internal/metrics"
	"github.com/hitoshi/taskrank/internal/model"
	"github.com/hitoshi/taskrank/internal/repository"
	"github.com/hitoshi/taskrank/internal/streak"
)

// DefaultMaxRetries は楽観的排他制御の既定リトライ回数。
const DefaultMaxRetries = 5

// LedgerWriter はポイント台帳への書き込みインターフェース。
type LedgerWriter interface {
	Record(ctx context.Context, userID string, points int, day time.Time) (*model.PointsLedgerEntry, error)
}

// CompletionListener は完了イベントを受け取るチャレンジ管理のインターフェース。
type CompletionListener interface {
	OnCompletion(ctx context.Context, userID string, points int, today time.Time) ([]*model.Challenge, error)
}

// Result はRecordCompletionの結果。通知層へ渡すデータを含む。
type Result struct {
	Aggregate           *model.UserAggregate
	NewBadges           []model.BadgeID
	CompletedChallenges []*model.Challenge
}

// Recorder はユーザー集計の更新を担う。
type Recorder struct {
	aggregates repository.AggregateRepository
	ledger     LedgerWriter
	challenges CompletionListener
	clock      model.Clock
	loc        *time.Location
	maxRetries int
	metrics    metrics.MetricsCollector
	logger     *slog.Logger
	locks      *keyedMutex
}

// NewRecorder はRecorderの新しいインスタンスを生成する。
// challengesがnilの場合はチャレンジへの転送を行わない。
// maxRetriesが0以下の場合はDefaultMaxRetriesを使用する。
func NewRecorder(
	aggregates repository.AggregateRepository,
	ledger LedgerWriter,
	challenges CompletionListener,
	clock model.Clock,
	loc *time.Location,
	maxRetries int,
	mc metrics.MetricsCollector,
	logger *slog.Logger,
) *Recorder {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if loc == nil {
		loc = time.UTC
	}
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Recorder{
		aggregates: aggregates,
		ledger:     ledger,
		challenges: challenges,
		clock:      clock,
		loc:        loc,
		maxRetries: maxRetries,
		metrics:    mc,
		logger:     logger,
		locks:      newKeyedMutex(),
	}
}

// RecordCompletion はタスク完了イベントを集計に反映する。
//
// 入力検証は状態を変更する前に行う。集計の保存と台帳への追記に失敗した場合はエラーを返す。
// 呼び出し側は失敗時も適用済みの可能性を考慮し、無条件に再送してはならない。
func (r *Recorder) RecordCompletion(ctx context.Context, userID string, points int, timing model.Timing) (*Result, error) {
	if err := validate(userID, points, timing); err != nil {
		return nil, err
	}

	start := time.Now()
	unlock := r.locks.Lock(userID)
	defer unlock()

	now := r.clock.Now()
	today := model.DayOf(now, r.loc)

	agg, err := r.apply(ctx, userID, points, timing, today)
	if err != nil {
		return nil, err
	}

	if _, err := r.ledger.Record(ctx, userID, points, today); err != nil {
		r.logger.Error("ポイント台帳への記録に失敗しました",
			slog.String("user_id", userID),
			slog.Int("points", points),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("集計は更新済みですが台帳への記録に失敗しました: %w", err)
	}

	result := &Result{Aggregate: agg}
	result.NewBadges = r.awardBadges(ctx, agg, now)
	result.CompletedChallenges = r.forwardToChallenges(ctx, userID, points, today)

	r.metrics.RecordCompletion(string(timing), points)
	r.metrics.RecordRecordLatency(time.Since(start))
	r.logger.Info("タスク完了を記録しました",
		slog.String("user_id", userID),
		slog.Int("points", points),
		slog.String("timing", string(timing)),
		slog.Int("total_points", agg.TotalPoints),
		slog.Int("current_streak", agg.CurrentStreak),
		slog.Int("new_badges", len(result.NewBadges)),
		slog.Int("completed_challenges", len(result.CompletedChallenges)),
	)

	return result, nil
}

func validate(userID string, points int, timing model.Timing) error {
	if strings.TrimSpace(userID) == "" {
		return model.NewValidationError("user_idは必須です")
	}
	if points < 0 {
		return model.NewValidationError(fmt.Sprintf("pointsは0以上で指定してください (points=%d)", points))
	}
	if !timing.Valid() {
		return model.NewValidationError(fmt.Sprintf("未知のtimingです: %q", timing))
	}
	return nil
}

// apply は集計を読み込み、イベントを適用して保存する。
// 他の書き込みが先行した場合は読み込みからやり直し、上限に達したら競合エラーを返す。
func (r *Recorder) apply(ctx context.Context, userID string, points int, timing model.Timing, today time.Time) (*model.UserAggregate, error) {
	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		current, err := r.aggregates.Find(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("ユーザー集計の取得に失敗しました: %w", err)
		}
		if current == nil {
			current = model.NewUserAggregate(userID)
		}

		next := current.Clone()
		next.TotalPoints += points
		next.TasksCompleted++
		next.ApplyTiming(timing)

		s, lastDay := streak.Next(next.LastCompletionDay, today, next.CurrentStreak)
		next.CurrentStreak = s
		next.LastCompletionDay = &lastDay
		next.LongestStreak = streak.Longest(next.LongestStreak, s)

		err = r.aggregates.Save(ctx, next)
		if err == nil {
			return next, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return nil, fmt.Errorf("ユーザー集計の保存に失敗しました: %w", err)
		}

		r.metrics.RecordVersionConflict()
		r.logger.Debug("ユーザー集計の更新が競合したため再試行します",
			slog.String("user_id", userID),
			slog.Int("attempt", attempt),
		)
	}

	r.logger.Warn("ユーザー集計の更新リトライが上限に達しました",
		slog.String("user_id", userID),
		slog.Int("max_retries", r.maxRetries),
	)
	return nil, model.NewConcurrencyConflictError(userID, r.maxRetries)
}

// awardBadges は新たに条件を満たしたバッジを付与する。
// 付与に失敗した場合はログに記録して空を返す。
func (r *Recorder) awardBadges(ctx context.Context, agg *model.UserAggregate, now time.Time) []model.BadgeID {
	newBadges := badge.Evaluate(agg)
	if len(newBadges) == 0 {
		return nil
	}

	if err := r.aggregates.AddBadges(ctx, agg.UserID, newBadges, now); err != nil {
		r.metrics.RecordSideEffectFailure("badge")
		r.logger.Warn("バッジの付与に失敗しました",
			slog.String("user_id", agg.UserID),
			slog.Int("badge_count", len(newBadges)),
			slog.String("error", err.Error()),
		)
		return nil
	}

	for _, id := range newBadges {
		agg.Badges[id] = true
		r.metrics.RecordBadgeAwarded(string(id))
	}
	return newBadges
}

// forwardToChallenges はイベントをチャレンジ管理へ転送する。
// 一部のチャレンジで失敗しても、達成済みとなったチャレンジは返す。
func (r *Recorder) forwardToChallenges(ctx context.Context, userID string, points int, today time.Time) []*model.Challenge {
	if r.challenges == nil {
		return nil
	}

	completed, err := r.challenges.OnCompletion(ctx, userID, points, today)
	if err != nil {
		r.metrics.RecordSideEffectFailure("challenge")
		r.logger.Warn("チャレンジ進捗の更新に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
	return completed
}

// Get はユーザーの集計を返す。集計がない場合はゼロ状態を返す。
func (r *Recorder) Get(ctx context.Context, userID string) (*model.UserAggregate, error) {
	agg, err := r.aggregates.Find(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザー集計の取得に失敗しました: %w", err)
	}
	if agg == nil {
		return model.NewUserAggregate(userID), nil
	}
	return agg, nil
}
