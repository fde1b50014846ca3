// Package streak は連続達成日数（ストリーク）の判定を提供する。
package streak

import (
	"time"

	"github.com/hitoshi/taskrank/internal/model"
)

// Next は最終達成日とイベント当日から新しいストリークと最終達成日を決定する純粋関数。
//
//   - lastDayがnil: 1から開始
//   - 同日（差0）: 変更なし
//   - 翌日（差1）: current+1
//   - 2日以上空いた: 1にリセット
//   - 過去日付（差<0）: 同日と同じく変更なし（後退させない）
//
// longestStreakの更新は呼び出し側で行う。
func Next(lastDay *time.Time, today time.Time, current int) (int, time.Time) {
	if lastDay == nil {
		return 1, today
	}

	diff := model.DaysBetween(*lastDay, today)
	switch {
	case diff <= 0:
		if current < 1 {
			current = 1
		}
		if diff < 0 {
			return current, *lastDay
		}
		return current, today
	case diff == 1:
		return current + 1, today
	default:
		return 1, today
	}
}

// Longest はlongestStreakを単調非減少に保ったまま更新する。
func Longest(longest, current int) int {
	if current > longest {
		return current
	}
	return longest
}
