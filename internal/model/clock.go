package model

import (
	"sync"
	"time"
)

// Clock は現在時刻の取得を抽象化する。
type Clock interface {
	Now() time.Time
}

// SystemClock は実時間を返すClock。
type SystemClock struct{}

// Now は現在時刻を返す。
func (SystemClock) Now() time.Time { return time.Now() }

// FakeClock はテスト用の固定時刻Clock。
type FakeClock struct {
	mu sync.Mutex
	t  time.Time
}

// NewFakeClock は指定時刻で停止したFakeClockを生成する。
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{t: t}
}

// Now は設定されている時刻を返す。
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Set は時刻を変更する。
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

// Advance は時刻をdだけ進める。
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// DayOf はtをloc上の暦日の0時に切り詰める。
func DayOf(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}

// DaysBetween はfromからtoまでの暦日差を返す。
// 夏時間の切り替えに影響されないよう、年月日だけをUTCに写して比較する。
func DaysBetween(from, to time.Time) int {
	f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	t := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(t.Sub(f).Hours() / 24)
}
