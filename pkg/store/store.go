// Package store defines the bounded buffer of canonical measurement series
// that chart consumers read from. It is a serving buffer with retention,
// not a durable persistence layer.
package store

import (
	"context"
	"time"

	"github.com/loadpulse/loadpulse/pkg/model"
)

// Store holds recent canonical points per run.
// Implementations: memory (default), badger (opt-in disk buffer).
type Store interface {
	// Append adds points to a run's series.
	Append(ctx context.Context, runID string, points []model.MeasurementPoint) error

	// Query retrieves points matching the request, sorted by timestamp.
	Query(ctx context.Context, req QueryRequest) ([]model.MeasurementPoint, error)

	// Delete removes points older than the given time.
	Delete(ctx context.Context, before time.Time) error

	// Stats returns buffer usage statistics.
	Stats(ctx context.Context) (*Stats, error)

	// Close cleanly shuts down the store.
	Close() error
}

// QueryRequest specifies which points to retrieve.
type QueryRequest struct {
	// RunID selects one run's series. Empty matches every run.
	RunID string

	// Time range in epoch milliseconds; zero means unbounded.
	Start int64
	End   int64

	// Limit caps the number of results (0 = no limit).
	Limit int
}

// Stats provides buffer usage info.
type Stats struct {
	TotalPoints     uint64
	Runs            int
	OldestTimestamp int64
	NewestTimestamp int64
}
