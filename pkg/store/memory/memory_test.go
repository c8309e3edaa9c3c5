package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/loadpulse/loadpulse/pkg/model"
	"github.com/loadpulse/loadpulse/pkg/store"
)

func points(base int64, n int) []model.MeasurementPoint {
	out := make([]model.MeasurementPoint, n)
	for i := range out {
		out[i] = model.MeasurementPoint{
			Timestamp:    base + int64(i)*1000,
			ResponseTime: float64(100 + i),
			Phase:        model.PhaseSteadyState,
		}
	}
	return out
}

func TestAppendAndQuery(t *testing.T) {
	s := New()
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "run-a", points(1000, 5)))
	require.NoError(t, s.Append(ctx, "run-b", points(2000, 3)))

	got, err := s.Query(ctx, store.QueryRequest{RunID: "run-a"})
	require.NoError(t, err)
	require.Len(t, got, 5)

	// Empty RunID matches every run, globally sorted.
	all, err := s.Query(ctx, store.QueryRequest{})
	require.NoError(t, err)
	require.Len(t, all, 8)
	for i := 1; i < len(all); i++ {
		require.LessOrEqual(t, all[i-1].Timestamp, all[i].Timestamp)
	}
}

func TestQuery_TimeRangeAndLimit(t *testing.T) {
	s := New()
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "run", points(1000, 10)))

	got, err := s.Query(ctx, store.QueryRequest{RunID: "run", Start: 3000, End: 7000})
	require.NoError(t, err)
	require.Len(t, got, 5)
	require.Equal(t, int64(3000), got[0].Timestamp)

	got, err = s.Query(ctx, store.QueryRequest{RunID: "run", Limit: 3})
	require.NoError(t, err)
	require.Len(t, got, 3)
}

func TestDelete_Retention(t *testing.T) {
	s := New()
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "old", points(1000, 3)))
	require.NoError(t, s.Append(ctx, "mixed", points(1000, 3)))
	require.NoError(t, s.Append(ctx, "mixed", points(50_000, 3)))

	require.NoError(t, s.Delete(ctx, time.UnixMilli(10_000)))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(3), stats.TotalPoints)
	require.Equal(t, 1, stats.Runs) // "old" dropped entirely

	got, err := s.Query(ctx, store.QueryRequest{RunID: "mixed"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, int64(50_000), got[0].Timestamp)
}

func TestStats(t *testing.T) {
	s := New()
	defer s.Close()
	ctx := context.Background()

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Zero(t, stats.TotalPoints)

	require.NoError(t, s.Append(ctx, "run", points(5000, 4)))

	stats, err = s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(4), stats.TotalPoints)
	require.Equal(t, int64(5000), stats.OldestTimestamp)
	require.Equal(t, int64(8000), stats.NewestTimestamp)
}
