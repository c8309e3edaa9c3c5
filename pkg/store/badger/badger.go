// Package badger implements store.Store on BadgerDB for operators who want
// the series buffer to survive restarts. In-memory mode backs the tests.
package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	badger "github.com/dgraph-io/badger/v4"

	"github.com/loadpulse/loadpulse/pkg/model"
	"github.com/loadpulse/loadpulse/pkg/store"
)

// Store implements store.Store using BadgerDB (LSM tree).
type Store struct {
	db  *badger.DB
	seq atomic.Uint32
}

// Config holds BadgerDB configuration.
type Config struct {
	// Path to the database files. Ignored in in-memory mode.
	Path string

	// InMemory mode (for testing and default non-persistent deployments).
	InMemory bool

	// MaxMemoryMB limits BadgerDB memory usage (0 = a conservative default).
	MaxMemoryMB int64
}

// New opens a BadgerDB-backed store.
func New(cfg Config) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = opts.WithInMemory(true).WithDir("").WithValueDir("")
	}

	// Badger's defaults assume a server; keep the buffer laptop-friendly.
	memTableSize := int64(16 * 1024 * 1024)
	if cfg.MaxMemoryMB > 0 {
		memTableSize = cfg.MaxMemoryMB * 1024 * 1024 / 3
	}
	opts = opts.
		WithMemTableSize(memTableSize).
		WithNumVersionsToKeep(1).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Store{db: db}, nil
}

// Keys are runHash(8) ++ timestampMs(8, big-endian) ++ seq(4). The sequence
// counter keeps same-millisecond points from overwriting each other; the
// big-endian timestamp keeps iteration in temporal order within a run.
func (s *Store) key(runID string, timestampMs int64) []byte {
	key := make([]byte, 20)
	binary.BigEndian.PutUint64(key[0:8], xxhash.Sum64String(runID))
	binary.BigEndian.PutUint64(key[8:16], uint64(timestampMs))
	binary.BigEndian.PutUint32(key[16:20], s.seq.Add(1))
	return key
}

// Append stores points under the run's key prefix.
func (s *Store) Append(ctx context.Context, runID string, points []model.MeasurementPoint) error {
	if len(points) == 0 {
		return nil
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, p := range points {
		value, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal point: %w", err)
		}
		if err := wb.Set(s.key(runID, p.Timestamp), value); err != nil {
			return fmt.Errorf("batch point: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush points: %w", err)
	}
	return nil
}

// Query retrieves matching points sorted by timestamp.
func (s *Store) Query(ctx context.Context, req store.QueryRequest) ([]model.MeasurementPoint, error) {
	var prefix []byte
	if req.RunID != "" {
		prefix = make([]byte, 8)
		binary.BigEndian.PutUint64(prefix, xxhash.Sum64String(req.RunID))
	}

	var results []model.MeasurementPoint
	err := s.db.View(func(txn *badger.Txn) error {
		itOpts := badger.DefaultIteratorOptions
		itOpts.Prefix = prefix
		it := txn.NewIterator(itOpts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			ts := int64(binary.BigEndian.Uint64(item.Key()[8:16]))
			if req.Start > 0 && ts < req.Start {
				continue
			}
			if req.End > 0 && ts > req.End {
				continue
			}

			if err := item.Value(func(value []byte) error {
				var p model.MeasurementPoint
				if err := json.Unmarshal(value, &p); err != nil {
					return fmt.Errorf("unmarshal point: %w", err)
				}
				results = append(results, p)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Prefix iteration is temporal within one run but interleaves runs by
	// hash; a final sort restores global order.
	sort.Slice(results, func(a, b int) bool {
		return results[a].Timestamp < results[b].Timestamp
	})
	if req.Limit > 0 && len(results) > req.Limit {
		results = results[:req.Limit]
	}
	return results, nil
}

// Delete removes points older than the given time.
func (s *Store) Delete(ctx context.Context, before time.Time) error {
	cutoff := uint64(before.UnixMilli())

	var stale [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		itOpts := badger.DefaultIteratorOptions
		itOpts.PrefetchValues = false
		it := txn.NewIterator(itOpts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			if binary.BigEndian.Uint64(key[8:16]) < cutoff {
				stale = append(stale, key)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range stale {
		if err := wb.Delete(key); err != nil {
			return fmt.Errorf("delete point: %w", err)
		}
	}
	return wb.Flush()
}

// Stats returns buffer usage statistics.
func (s *Store) Stats(ctx context.Context) (*store.Stats, error) {
	stats := &store.Stats{}
	runs := make(map[uint64]struct{})

	err := s.db.View(func(txn *badger.Txn) error {
		itOpts := badger.DefaultIteratorOptions
		itOpts.PrefetchValues = false
		it := txn.NewIterator(itOpts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().Key()
			runs[binary.BigEndian.Uint64(key[0:8])] = struct{}{}
			ts := int64(binary.BigEndian.Uint64(key[8:16]))

			stats.TotalPoints++
			if stats.OldestTimestamp == 0 || ts < stats.OldestTimestamp {
				stats.OldestTimestamp = ts
			}
			if ts > stats.NewestTimestamp {
				stats.NewestTimestamp = ts
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	stats.Runs = len(runs)
	return stats, nil
}

// Close shuts the database down.
func (s *Store) Close() error {
	return s.db.Close()
}
