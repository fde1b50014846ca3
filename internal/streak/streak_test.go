package streak

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr(t time.Time) *time.Time { return &t }

func TestNext(t *testing.T) {
	monday := day(2026, time.October, 12)

	tests := []struct {
		name     string
		lastDay  *time.Time
		today    time.Time
		current  int
		want     int
		wantLast time.Time
	}{
		{"初回は1", nil, monday, 0, 1, monday},
		{"同日は変化なし", ptr(monday), monday, 3, 3, monday},
		{"翌日は+1", ptr(monday), monday.AddDate(0, 0, 1), 3, 4, monday.AddDate(0, 0, 1)},
		{"1日空くとリセット", ptr(monday), monday.AddDate(0, 0, 2), 5, 1, monday.AddDate(0, 0, 2)},
		{"長期間空くとリセット", ptr(monday), monday.AddDate(0, 2, 0), 40, 1, monday.AddDate(0, 2, 0)},
		{"過去日付は後退しない", ptr(monday), monday.AddDate(0, 0, -3), 4, 4, monday},
		{"月跨ぎの翌日", ptr(day(2026, time.October, 31)), day(2026, time.November, 1), 2, 3, day(2026, time.November, 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, gotLast := Next(tt.lastDay, tt.today, tt.current)
			assert.Equal(t, tt.want, got)
			assert.True(t, tt.wantLast.Equal(gotLast), "lastDay = %v, want %v", gotLast, tt.wantLast)
		})
	}
}

// 最終達成日がDATEカラム由来のUTC 0時で、当日がローカル時刻でも暦日で比較されること
func TestNext_ComparesCalendarDaysAcrossZones(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	stored := day(2026, time.October, 12)
	today := time.Date(2026, time.October, 13, 0, 0, 0, 0, tokyo)

	got, _ := Next(&stored, today, 1)
	assert.Equal(t, 2, got)
}

func TestLongest_IsNonDecreasing(t *testing.T) {
	longest := 0
	for _, current := range []int{1, 2, 3, 1, 2, 1, 4, 1} {
		next := Longest(longest, current)
		assert.GreaterOrEqual(t, next, longest)
		assert.GreaterOrEqual(t, next, current)
		longest = next
	}
	assert.Equal(t, 4, longest)
}
