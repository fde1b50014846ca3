// Package challenge は週間・月間チャレンジのライフサイクル管理を提供する。
// スケジューラからのTickによる作成・終了と、完了イベントごとの進捗更新、
// ポイント台帳からの進捗再計算を担う。
package challenge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/taskrank/internal/metrics"
	"github.com/hitoshi/taskrank/internal/model"
	"github.com/hitoshi/taskrank/internal/repository"
)

// Goals はチャレンジ作成時の既定目標。0以下の値は目標なし（nil）として扱う。
type Goals struct {
	Points int
	Tasks  int
}

// DefaultGoals は種別ごとの既定目標を返す。
func DefaultGoals() map[model.ChallengeKind]Goals {
	return map[model.ChallengeKind]Goals{
		model.ChallengeWeekly:  {Points: 500, Tasks: 20},
		model.ChallengeMonthly: {Points: 2000, Tasks: 80},
	}
}

// LedgerTotals は期間内のユーザー別合計を台帳から取得するインターフェース。
type LedgerTotals interface {
	TotalsInRange(ctx context.Context, from, to time.Time) ([]model.UserTotals, error)
}

// TickResult は1回のTickの結果。
type TickResult struct {
	Deactivated int
	Created     []*model.Challenge
}

// Manager はチャレンジのライフサイクルを管理する。
type Manager struct {
	challenges repository.ChallengeRepository
	progress   repository.ProgressRepository
	ledger     LedgerTotals
	clock      model.Clock
	loc        *time.Location
	goals      map[model.ChallengeKind]Goals
	metrics    metrics.MetricsCollector
	logger     *slog.Logger
}

// NewManager はManagerの新しいインスタンスを生成する。
// goalsに含まれない種別はDefaultGoalsの値を使用する。
func NewManager(
	challenges repository.ChallengeRepository,
	progress repository.ProgressRepository,
	ledger LedgerTotals,
	clock model.Clock,
	loc *time.Location,
	goals map[model.ChallengeKind]Goals,
	mc metrics.MetricsCollector,
	logger *slog.Logger,
) *Manager {
	merged := DefaultGoals()
	for kind, g := range goals {
		merged[kind] = g
	}
	if loc == nil {
		loc = time.UTC
	}
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Manager{
		challenges: challenges,
		progress:   progress,
		ledger:     ledger,
		clock:      clock,
		loc:        loc,
		goals:      merged,
		metrics:    mc,
		logger:     logger,
	}
}

// Tick は期限切れのチャレンジを終了し、nowを含む期間のチャレンジがなければ作成する。
// 同一期間のチャレンジが並行して作成された場合は作成済みとして扱う。
func (m *Manager) Tick(ctx context.Context, now time.Time) (*TickResult, error) {
	result := &TickResult{}

	deactivated, err := m.challenges.DeactivateExpired(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("期限切れチャレンジの終了に失敗しました: %w", err)
	}
	result.Deactivated = deactivated
	if deactivated > 0 {
		m.metrics.RecordChallengesDeactivated(deactivated)
		m.logger.Info("期限切れのチャレンジを終了しました",
			slog.Int("count", deactivated),
		)
	}

	active, err := m.challenges.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("アクティブなチャレンジの取得に失敗しました: %w", err)
	}

	for _, kind := range model.ChallengeKinds {
		if covered(active, kind, now) {
			continue
		}

		c, err := m.newChallenge(kind, now)
		if err != nil {
			return nil, err
		}
		if err := m.challenges.Create(ctx, c); err != nil {
			if errors.Is(err, repository.ErrChallengeExists) {
				m.logger.Debug("同一期間のチャレンジは作成済みです",
					slog.String("kind", string(kind)),
					slog.Time("start_date", c.StartDate),
				)
				continue
			}
			return nil, fmt.Errorf("チャレンジの作成に失敗しました: %w", err)
		}

		m.metrics.RecordChallengeCreated(string(kind))
		m.logger.Info("チャレンジを作成しました",
			slog.String("challenge_id", c.ID),
			slog.String("kind", string(kind)),
			slog.String("title", c.Title),
		)
		result.Created = append(result.Created, c)
	}

	return result, nil
}

// covered はkindのアクティブなチャレンジがnowを含んでいるかを返す。
func covered(active []*model.Challenge, kind model.ChallengeKind, now time.Time) bool {
	for _, c := range active {
		if c.Kind == kind && c.Contains(now) {
			return true
		}
	}
	return false
}

func (m *Manager) newChallenge(kind model.ChallengeKind, now time.Time) (*model.Challenge, error) {
	p, err := PeriodFor(kind, now, m.loc)
	if err != nil {
		return nil, err
	}
	g := m.goals[kind]
	return &model.Challenge{
		Kind:       kind,
		Title:      Title(kind, p),
		StartDate:  p.Start,
		EndDate:    p.End,
		GoalPoints: positive(g.Points),
		GoalTasks:  positive(g.Tasks),
		Active:     true,
	}, nil
}

func positive(v int) *int {
	if v <= 0 {
		return nil
	}
	return &v
}

// OnCompletion は完了イベントをtodayを含むアクティブな全チャレンジの進捗に加算する。
// この呼び出しで初めて目標を満たしたチャレンジを返す。
// 一部のチャレンジで失敗しても残りの更新は継続し、失敗はまとめて返す。
func (m *Manager) OnCompletion(ctx context.Context, userID string, points int, today time.Time) ([]*model.Challenge, error) {
	active, err := m.challenges.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("アクティブなチャレンジの取得に失敗しました: %w", err)
	}

	var completed []*model.Challenge
	var errs []error
	for _, c := range active {
		if !c.Contains(today) {
			continue
		}

		p, err := m.progress.Increment(ctx, c.ID, userID, points, 1)
		if err != nil {
			errs = append(errs, fmt.Errorf("チャレンジ進捗の更新に失敗しました (challenge=%s): %w", c.ID, err))
			continue
		}

		done, err := m.completeIfMet(ctx, c, p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if done {
			completed = append(completed, c)
		}
	}

	return completed, errors.Join(errs...)
}

// completeIfMet は目標を満たした未達成の進捗を達成済みにする。
// 今回の呼び出しで達成に遷移した場合にtrueを返す。
func (m *Manager) completeIfMet(ctx context.Context, c *model.Challenge, p *model.ChallengeProgress) (bool, error) {
	if p.Completed || !c.GoalsMet(p.PointsEarned, p.TasksCompleted) {
		return false, nil
	}

	transitioned, err := m.progress.MarkCompleted(ctx, c.ID, p.UserID, m.clock.Now())
	if err != nil {
		return false, fmt.Errorf("チャレンジ達成の記録に失敗しました (challenge=%s): %w", c.ID, err)
	}
	if !transitioned {
		return false, nil
	}

	m.metrics.RecordChallengeCompleted(string(c.Kind))
	m.logger.Info("チャレンジを達成しました",
		slog.String("challenge_id", c.ID),
		slog.String("user_id", p.UserID),
		slog.Int("points_earned", p.PointsEarned),
		slog.Int("tasks_completed", p.TasksCompleted),
	)
	return true, nil
}

// Reconcile はチャレンジ期間のポイント台帳から各ユーザーの進捗を再計算して上書きする。
// 達成済みの進捗は未達成に戻さない。再計算した進捗行数を返す。
func (m *Manager) Reconcile(ctx context.Context, challengeID string) (int, error) {
	c, err := m.challenges.FindByID(ctx, challengeID)
	if err != nil {
		return 0, fmt.Errorf("チャレンジの取得に失敗しました: %w", err)
	}
	if c == nil {
		return 0, model.NewChallengeNotFoundError(challengeID)
	}

	// 台帳は暦日単位のため、期間をローカル日付に戻してから渡す
	totals, err := m.ledger.TotalsInRange(ctx, c.StartDate.In(m.loc), c.EndDate.In(m.loc))
	if err != nil {
		return 0, fmt.Errorf("台帳の集計に失敗しました: %w", err)
	}

	for _, t := range totals {
		p, err := m.progress.Overwrite(ctx, c.ID, t.UserID, t.Points, t.Tasks)
		if err != nil {
			return 0, fmt.Errorf("チャレンジ進捗の上書きに失敗しました (user=%s): %w", t.UserID, err)
		}
		if _, err := m.completeIfMet(ctx, c, p); err != nil {
			return 0, err
		}
	}

	m.metrics.RecordProgressReconciled(len(totals))
	m.logger.Info("チャレンジ進捗を台帳から再計算しました",
		slog.String("challenge_id", c.ID),
		slog.Int("user_count", len(totals)),
	)
	return len(totals), nil
}

// ListActive はアクティブなチャレンジを返す。
func (m *Manager) ListActive(ctx context.Context) ([]*model.Challenge, error) {
	return m.challenges.ListActive(ctx)
}

// Progress はユーザーのチャレンジ進捗を返す。進捗行がない場合はゼロ状態を返す。
func (m *Manager) Progress(ctx context.Context, challengeID, userID string) (*model.Challenge, *model.ChallengeProgress, error) {
	c, err := m.challenges.FindByID(ctx, challengeID)
	if err != nil {
		return nil, nil, fmt.Errorf("チャレンジの取得に失敗しました: %w", err)
	}
	if c == nil {
		return nil, nil, model.NewChallengeNotFoundError(challengeID)
	}

	p, err := m.progress.Find(ctx, challengeID, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("チャレンジ進捗の取得に失敗しました: %w", err)
	}
	if p == nil {
		p = &model.ChallengeProgress{ChallengeID: challengeID, UserID: userID}
	}
	return c, p, nil
}
