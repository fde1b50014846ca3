// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"time"
)

// Timing はタスク完了時の期日に対する分類を表す。
// 分類は呼び出し元が決定し、エンジン内では再計算しない。
type Timing string

const (
	// TimingOnTime は期日どおりの完了。
	TimingOnTime Timing = "on_time"
	// TimingEarly は期日より前の完了。
	TimingEarly Timing = "early"
	// TimingLate は期日超過後の完了。
	TimingLate Timing = "late"
)

// Valid はTimingが既知の値かどうかを返す。
func (t Timing) Valid() bool {
	switch t {
	case TimingOnTime, TimingEarly, TimingLate:
		return true
	default:
		return false
	}
}

// TimingFromFlags はリクエスト層の3つのフラグからTimingを決定する。
// ちょうど1つだけがtrueでない場合はValidationErrorを返す。
func TimingFromFlags(onTime, early, late bool) (Timing, error) {
	count := 0
	var t Timing
	if onTime {
		count++
		t = TimingOnTime
	}
	if early {
		count++
		t = TimingEarly
	}
	if late {
		count++
		t = TimingLate
	}
	if count != 1 {
		return "", NewValidationError(fmt.Sprintf("on_time/early/lateのうち1つだけをtrueにしてください (on_time=%t, early=%t, late=%t)", onTime, early, late))
	}
	return t, nil
}

// BadgeID はバッジの識別子。閉じた列挙として扱う。
type BadgeID string

const (
	BadgeFirstTask     BadgeID = "first_task"
	BadgeTaskMaster10  BadgeID = "task_master_10"
	BadgeTaskMaster50  BadgeID = "task_master_50"
	BadgeTaskMaster100 BadgeID = "task_master_100"
	BadgeStreak7       BadgeID = "streak_7"
	BadgeStreak30      BadgeID = "streak_30"
	BadgePoints1000    BadgeID = "points_1000"
	BadgePoints5000    BadgeID = "points_5000"
	BadgePerfectionist BadgeID = "perfectionist"
)

// UserAggregate はユーザーごとの集計行を表す。
// Aggregate Recorderのみが更新し、台帳（PointsLedgerEntry）と結果整合する。
type UserAggregate struct {
	UserID            string
	TotalPoints       int
	TasksCompleted    int
	TasksOnTime       int
	TasksEarly        int
	TasksLate         int
	CurrentStreak     int
	LongestStreak     int
	LastCompletionDay *time.Time
	Badges            map[BadgeID]bool

	// Version は楽観的排他制御用のバージョン。0は未保存を意味する。
	Version   int64
	UpdatedAt time.Time
}

// NewUserAggregate は初回イベント用のゼロ状態の集計を生成する。
func NewUserAggregate(userID string) *UserAggregate {
	return &UserAggregate{
		UserID: userID,
		Badges: make(map[BadgeID]bool),
	}
}

// HasBadge は指定バッジを保持しているかを返す。
func (a *UserAggregate) HasBadge(id BadgeID) bool {
	return a.Badges[id]
}

// Clone はBadgesとLastCompletionDayを含めた深いコピーを返す。
func (a *UserAggregate) Clone() *UserAggregate {
	c := *a
	c.Badges = make(map[BadgeID]bool, len(a.Badges))
	for id, ok := range a.Badges {
		c.Badges[id] = ok
	}
	if a.LastCompletionDay != nil {
		d := *a.LastCompletionDay
		c.LastCompletionDay = &d
	}
	return &c
}

// ApplyTiming は該当するタイミングのカウンタを1増やす。
func (a *UserAggregate) ApplyTiming(t Timing) {
	switch t {
	case TimingOnTime:
		a.TasksOnTime++
	case TimingEarly:
		a.TasksEarly++
	case TimingLate:
		a.TasksLate++
	}
}
