// Package memory implements store.Store in process memory. Data is lost on
// restart; this is the default backend.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/loadpulse/loadpulse/pkg/model"
	"github.com/loadpulse/loadpulse/pkg/store"
)

// Store keeps each run's series in a slice guarded by one RWMutex.
type Store struct {
	mu   sync.RWMutex
	runs map[string][]model.MeasurementPoint
}

// New creates an in-memory store.
func New() *Store {
	return &Store{runs: make(map[string][]model.MeasurementPoint)}
}

// Append adds points to a run's series.
func (s *Store) Append(ctx context.Context, runID string, points []model.MeasurementPoint) error {
	if len(points) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[runID] = append(s.runs[runID], points...)
	return nil
}

// Query retrieves matching points sorted by timestamp.
func (s *Store) Query(ctx context.Context, req store.QueryRequest) ([]model.MeasurementPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []model.MeasurementPoint
	collect := func(series []model.MeasurementPoint) {
		for _, p := range series {
			if req.Start > 0 && p.Timestamp < req.Start {
				continue
			}
			if req.End > 0 && p.Timestamp > req.End {
				continue
			}
			results = append(results, p)
		}
	}

	if req.RunID != "" {
		collect(s.runs[req.RunID])
	} else {
		for _, series := range s.runs {
			collect(series)
		}
	}

	sort.Slice(results, func(a, b int) bool {
		return results[a].Timestamp < results[b].Timestamp
	})
	if req.Limit > 0 && len(results) > req.Limit {
		results = results[:req.Limit]
	}
	return results, nil
}

// Delete removes points older than the given time. Runs left empty are
// dropped entirely.
func (s *Store) Delete(ctx context.Context, before time.Time) error {
	cutoff := before.UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()

	for runID, series := range s.runs {
		kept := series[:0]
		for _, p := range series {
			if p.Timestamp >= cutoff {
				kept = append(kept, p)
			}
		}
		if len(kept) == 0 {
			delete(s.runs, runID)
			continue
		}
		s.runs[runID] = kept
	}
	return nil
}

// Stats returns buffer usage statistics.
func (s *Store) Stats(ctx context.Context) (*store.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &store.Stats{Runs: len(s.runs)}
	for _, series := range s.runs {
		stats.TotalPoints += uint64(len(series))
		for _, p := range series {
			if stats.OldestTimestamp == 0 || p.Timestamp < stats.OldestTimestamp {
				stats.OldestTimestamp = p.Timestamp
			}
			if p.Timestamp > stats.NewestTimestamp {
				stats.NewestTimestamp = p.Timestamp
			}
		}
	}
	return stats, nil
}

// Close is a no-op for the memory backend.
func (s *Store) Close() error {
	return nil
}
