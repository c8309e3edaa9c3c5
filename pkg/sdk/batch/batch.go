package batch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loadpulse/loadpulse/pkg/pipeline"
	"github.com/loadpulse/loadpulse/pkg/sdk/transport"
)

// Config tunes batching behavior.
type Config struct {
	// MaxBatchSize triggers an early flush when the buffer fills.
	MaxBatchSize int

	// FlushEvery is the periodic flush cadence.
	FlushEvery time.Duration
}

// Batcher buffers push envelopes and flushes them to a transport, either
// on a timer or when the buffer fills.
type Batcher struct {
	config    Config
	transport transport.Transport

	mu      sync.Mutex
	pending []pipeline.PushEnvelope

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// flushing serializes flushes so a burst of Adds cannot spawn an
	// unbounded number of sender goroutines.
	flushing atomic.Bool
}

// New creates a batcher over the given transport.
func New(t transport.Transport, config Config) *Batcher {
	return &Batcher{
		config:    config,
		transport: t,
		pending:   make([]pipeline.PushEnvelope, 0, config.MaxBatchSize),
		done:      make(chan struct{}),
	}
}

// Start launches the periodic flush loop.
func (b *Batcher) Start(ctx context.Context) {
	b.ctx, b.cancel = context.WithCancel(ctx)
	go b.flushLoop()
}

// Add buffers one envelope, flushing in the background when full.
func (b *Batcher) Add(env pipeline.PushEnvelope) {
	b.mu.Lock()
	b.pending = append(b.pending, env)
	full := len(b.pending) >= b.config.MaxBatchSize
	b.mu.Unlock()

	if full && b.flushing.CompareAndSwap(false, true) {
		go func() {
			defer b.flushing.Store(false)
			b.Flush(b.ctx)
		}()
	}
}

// Flush sends everything pending. Safe to call concurrently with Add.
func (b *Batcher) Flush(ctx context.Context) error {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return nil
	}
	out := make([]pipeline.PushEnvelope, len(b.pending))
	copy(out, b.pending)
	b.pending = b.pending[:0]
	b.mu.Unlock()

	return b.transport.Send(ctx, out)
}

// Stop halts the flush loop and drains the buffer.
func (b *Batcher) Stop() error {
	if b.cancel != nil {
		b.cancel()
		<-b.done
	}
	return b.Flush(context.Background())
}

func (b *Batcher) flushLoop() {
	defer close(b.done)

	ticker := time.NewTicker(b.config.FlushEvery)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			if b.flushing.CompareAndSwap(false, true) {
				b.Flush(b.ctx)
				b.flushing.Store(false)
			}
		}
	}
}
