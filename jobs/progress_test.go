package jobs

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestTracker(t *testing.T) *ProgressTracker {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewProgressTracker(rdb, nil)
}

func TestProgressPublishAndRead(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()

	tracker.Publish(ctx, 7, "create", 3, 10)

	report, err := tracker.Read(ctx, 7)
	require.NoError(t, err)
	require.Len(t, report.Stages, 1)
	require.Equal(t, "create", report.Stages[0].Stage)
	require.Equal(t, 3, report.Stages[0].Done)
	require.Equal(t, 10, report.Stages[0].Total)
	require.False(t, report.Stages[0].Finished)
}

func TestProgressFinishMarksStage(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()

	tracker.Publish(ctx, 7, "submit", 10, 10)
	tracker.Finish(ctx, 7, "submit")

	report, err := tracker.Read(ctx, 7)
	require.NoError(t, err)
	require.Len(t, report.Stages, 1)
	require.True(t, report.Stages[0].Finished)
}

func TestProgressReadOmitsUnknownVoucher(t *testing.T) {
	tracker := newTestTracker(t)

	report, err := tracker.Read(context.Background(), 99)
	require.NoError(t, err)
	require.Empty(t, report.Stages)
}
