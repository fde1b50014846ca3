package challenge

import (
	"fmt"
	"time"

	"github.com/hitoshi/taskrank/internal/model"
)

// Period はチャレンジの対象期間。Endは最終日の23:59:59で、両端を含む。
type Period struct {
	Start time.Time
	End   time.Time
}

// PeriodFor はnowを含むkindの正規期間をloc基準で返す。
// 週間は月曜0時から日曜23:59:59、月間は1日0時から末日23:59:59。
func PeriodFor(kind model.ChallengeKind, now time.Time, loc *time.Location) (Period, error) {
	day := model.DayOf(now, loc)
	switch kind {
	case model.ChallengeWeekly:
		offset := (int(day.Weekday()) + 6) % 7
		start := day.AddDate(0, 0, -offset)
		return Period{Start: start, End: start.AddDate(0, 0, 7).Add(-time.Second)}, nil
	case model.ChallengeMonthly:
		start := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, loc)
		return Period{Start: start, End: start.AddDate(0, 1, 0).Add(-time.Second)}, nil
	default:
		return Period{}, fmt.Errorf("未知のチャレンジ種別です: %s", kind)
	}
}

// Title はチャレンジの表示名を返す。週間はISO週番号を使う。
func Title(kind model.ChallengeKind, p Period) string {
	switch kind {
	case model.ChallengeWeekly:
		year, week := p.Start.ISOWeek()
		return fmt.Sprintf("Weekly Challenge %d-W%02d", year, week)
	case model.ChallengeMonthly:
		return fmt.Sprintf("Monthly Challenge %s", p.Start.Format("2006-01"))
	default:
		return string(kind)
	}
}
