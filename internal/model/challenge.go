package model

import "time"

// ChallengeKind はチャレンジの期間種別を表す。
type ChallengeKind string

const (
	// ChallengeWeekly は月曜始まりの週間チャレンジ。
	ChallengeWeekly ChallengeKind = "weekly"
	// ChallengeMonthly は暦月単位の月間チャレンジ。
	ChallengeMonthly ChallengeKind = "monthly"
)

// ChallengeKinds はスケジューラが管理する全種別。
var ChallengeKinds = []ChallengeKind{ChallengeWeekly, ChallengeMonthly}

// Challenge は期間付きの目標を表す。
// EndDateは期間最終日の23:59:59（ローカル）で、期間は両端を含む。
type Challenge struct {
	ID          string
	Kind        ChallengeKind
	Title       string
	StartDate   time.Time
	EndDate     time.Time
	GoalPoints  *int
	GoalTasks   *int
	RewardBadge *string
	Active      bool
	CreatedAt   time.Time
}

// Contains は指定日時がチャレンジ期間に含まれるかを返す。
func (c *Challenge) Contains(t time.Time) bool {
	return !t.Before(c.StartDate) && !t.After(c.EndDate)
}

// GoalsMet は設定済み（非nil）の目標がすべて満たされているかを返す。
func (c *Challenge) GoalsMet(pointsEarned, tasksCompleted int) bool {
	if c.GoalPoints != nil && pointsEarned < *c.GoalPoints {
		return false
	}
	if c.GoalTasks != nil && tasksCompleted < *c.GoalTasks {
		return false
	}
	return true
}

// ChallengeProgress はあるユーザーのあるチャレンジへの累積貢献を表す。
// Completedはfalse→trueに一度だけ遷移し、戻らない。
type ChallengeProgress struct {
	ChallengeID    string
	UserID         string
	PointsEarned   int
	TasksCompleted int
	Completed      bool
	CompletedAt    *time.Time
	UpdatedAt      time.Time
}

// GroupScore はグループ単位の軽量スコアを表す。
// UserAggregateとは独立したスコアリングであり、集計行から導出しない。
type GroupScore struct {
	GroupID string
	UserID  string
	Score   int
}
