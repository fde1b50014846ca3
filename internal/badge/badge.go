// Package badge はユーザー集計に対するバッジ判定ルールを提供する。
// 判定は副作用を持たず、何度呼び出しても安全。
package badge

import "github.com/hitoshi/taskrank/internal/model"

// Definition はバッジ1種類の定義。
// Predicateは集計に対して単調（一度trueになればfalseに戻らない前提の指標のみを使う）。
type Definition struct {
	ID          model.BadgeID
	Name        string
	Description string
	Predicate   func(a *model.UserAggregate) bool
}

// catalogue は全バッジの定義。順序は表示順であり、判定結果には影響しない。
var catalogue = []Definition{
	{
		ID:          model.BadgeFirstTask,
		Name:        "はじめの一歩",
		Description: "最初のタスクを完了した",
		Predicate:   func(a *model.UserAggregate) bool { return a.TasksCompleted >= 1 },
	},
	{
		ID:          model.BadgeTaskMaster10,
		Name:        "タスクマスター10",
		Description: "タスクを10件完了した",
		Predicate:   func(a *model.UserAggregate) bool { return a.TasksCompleted >= 10 },
	},
	{
		ID:          model.BadgeTaskMaster50,
		Name:        "タスクマスター50",
		Description: "タスクを50件完了した",
		Predicate:   func(a *model.UserAggregate) bool { return a.TasksCompleted >= 50 },
	},
	{
		ID:          model.BadgeTaskMaster100,
		Name:        "タスクマスター100",
		Description: "タスクを100件完了した",
		Predicate:   func(a *model.UserAggregate) bool { return a.TasksCompleted >= 100 },
	},
	{
		ID:          model.BadgeStreak7,
		Name:        "7日連続",
		Description: "7日連続でタスクを完了した",
		Predicate:   func(a *model.UserAggregate) bool { return a.CurrentStreak >= 7 },
	},
	{
		ID:          model.BadgeStreak30,
		Name:        "30日連続",
		Description: "30日連続でタスクを完了した",
		Predicate:   func(a *model.UserAggregate) bool { return a.CurrentStreak >= 30 },
	},
	{
		ID:          model.BadgePoints1000,
		Name:        "1000ポイント",
		Description: "累計1000ポイントを獲得した",
		Predicate:   func(a *model.UserAggregate) bool { return a.TotalPoints >= 1000 },
	},
	{
		ID:          model.BadgePoints5000,
		Name:        "5000ポイント",
		Description: "累計5000ポイントを獲得した",
		Predicate:   func(a *model.UserAggregate) bool { return a.TotalPoints >= 5000 },
	},
	{
		ID:          model.BadgePerfectionist,
		Name:        "完璧主義者",
		Description: "10件を超えるタスクをすべて期日どおりに完了した",
		Predicate: func(a *model.UserAggregate) bool {
			return a.TasksCompleted > 10 && a.TasksOnTime == a.TasksCompleted
		},
	},
}

// Catalogue は全バッジ定義のコピーを返す。
func Catalogue() []Definition {
	out := make([]Definition, len(catalogue))
	copy(out, catalogue)
	return out
}

// Lookup はIDからバッジ定義を引く。
func Lookup(id model.BadgeID) (Definition, bool) {
	for _, d := range catalogue {
		if d.ID == id {
			return d, true
		}
	}
	return Definition{}, false
}

// Evaluate は現在条件を満たし、かつ集計がまだ保持していないバッジを返す。
// 和集合をとって永続化するのは呼び出し側の責務。
// 全バッジを既に保持している集計に対しては空を返す。
func Evaluate(a *model.UserAggregate) []model.BadgeID {
	var earned []model.BadgeID
	for _, d := range catalogue {
		if a.HasBadge(d.ID) {
			continue
		}
		if d.Predicate(a) {
			earned = append(earned, d.ID)
		}
	}
	return earned
}
