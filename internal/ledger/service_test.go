package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/hitoshi/taskrank/internal/model"
	"github.com/hitoshi/taskrank/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2026, time.October, d, 0, 0, 0, 0, time.UTC)
}

func TestService_RecordAndHistory(t *testing.T) {
	ctx := context.Background()
	svc := NewService(repository.NewMemoryLedgerRepo())

	_, err := svc.Record(ctx, "u1", 50, day(12))
	require.NoError(t, err)
	_, err = svc.Record(ctx, "u1", 30, day(13))
	require.NoError(t, err)
	_, err = svc.Record(ctx, "u2", 99, day(13))
	require.NoError(t, err)

	entries, err := svc.History(ctx, "u1", day(1), day(31))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 50, entries[0].Points)
	assert.Equal(t, 30, entries[1].Points)
	assert.NotEmpty(t, entries[0].ID)
}

func TestService_DailyTotals_FillsEmptyDays(t *testing.T) {
	ctx := context.Background()
	svc := NewService(repository.NewMemoryLedgerRepo())

	for _, p := range []int{10, 20} {
		_, err := svc.Record(ctx, "u1", p, day(12))
		require.NoError(t, err)
	}
	_, err := svc.Record(ctx, "u1", 5, day(14))
	require.NoError(t, err)

	totals, err := svc.DailyTotals(ctx, "u1", day(12), day(15))
	require.NoError(t, err)
	require.Len(t, totals, 4)
	assert.Equal(t, model.DailyTotal{Day: day(12), Points: 30, Tasks: 2}, totals[0])
	assert.Equal(t, model.DailyTotal{Day: day(13)}, totals[1])
	assert.Equal(t, 5, totals[2].Points)
	assert.Equal(t, 0, totals[3].Tasks)
}

func TestService_History_InvalidRange(t *testing.T) {
	svc := NewService(repository.NewMemoryLedgerRepo())

	_, err := svc.History(context.Background(), "u1", day(15), day(12))
	assert.True(t, model.IsAPIErrorCode(err, model.ErrCodeValidation))

	_, err = svc.DailyTotals(context.Background(), "u1", day(1), day(1).AddDate(2, 0, 0))
	assert.True(t, model.IsAPIErrorCode(err, model.ErrCodeValidation))
}

func TestService_TotalsInRange(t *testing.T) {
	ctx := context.Background()
	svc := NewService(repository.NewMemoryLedgerRepo())

	_, _ = svc.Record(ctx, "u1", 10, day(11))
	_, _ = svc.Record(ctx, "u1", 20, day(12))
	_, _ = svc.Record(ctx, "u2", 40, day(18))
	_, _ = svc.Record(ctx, "u2", 1, day(19))

	totals, err := svc.TotalsInRange(ctx, day(12), day(18))
	require.NoError(t, err)
	assert.Equal(t, []model.UserTotals{
		{UserID: "u1", Points: 20, Tasks: 1},
		{UserID: "u2", Points: 40, Tasks: 1},
	}, totals)
}
