// Package worker runs the in-process producer loop: it pulls status
// envelopes from a load worker on a fixed tick and feeds them through the
// pipeline into the store and stream hub.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/loadpulse/loadpulse/pkg/model"
	"github.com/loadpulse/loadpulse/pkg/pipeline"
	"github.com/loadpulse/loadpulse/pkg/store"
)

// StatusFunc returns the worker's current status envelope. Implementations
// are typically closures over a running load engine.
type StatusFunc func() pipeline.WorkerEnvelope

// Broadcaster fans processed batches out to streaming consumers. The ingest
// hub satisfies it; nil disables broadcasting.
type Broadcaster interface {
	Broadcast(data any) error
	HasClients() bool
}

// Update is the broadcast message shape, mirroring the ingest stream.
type Update struct {
	RunID   string                   `json:"runId"`
	Points  []model.MeasurementPoint `json:"points,omitempty"`
	Metrics *model.AggregateMetrics  `json:"metrics,omitempty"`
}

// Worker ticks a StatusFunc through the pipeline.
type Worker struct {
	source   StatusFunc
	runID    string
	interval time.Duration

	pipeline *pipeline.Pipeline
	store    store.Store
	hub      Broadcaster
	log      *slog.Logger
}

// New creates a worker producer. hub may be nil.
func New(source StatusFunc, runID string, interval time.Duration,
	p *pipeline.Pipeline, st store.Store, hub Broadcaster, log *slog.Logger) *Worker {
	return &Worker{
		source:   source,
		runID:    runID,
		interval: interval,
		pipeline: p,
		store:    st,
		hub:      hub,
		log:      log,
	}
}

// Run ticks until ctx is cancelled. Store failures are logged and the loop
// keeps going; a worker producer must not die mid-test.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Info("worker producer started", "run", w.runID, "interval", w.interval)
	for {
		select {
		case <-ctx.Done():
			w.log.Info("worker producer stopped", "run", w.runID)
			return
		case <-ticker.C:
			w.Tick(ctx, time.Now())
		}
	}
}

// Tick processes one status envelope. Exposed separately so tests drive the
// worker without real time passing.
func (w *Worker) Tick(ctx context.Context, now time.Time) {
	res := w.pipeline.ProcessWorker(w.source(), now)

	if len(res.Points) > 0 {
		if err := w.store.Append(ctx, w.runID, res.Points); err != nil {
			w.log.Error("worker append failed", "run", w.runID, "err", err)
			return
		}
	}

	if w.hub != nil && w.hub.HasClients() && (len(res.Points) > 0 || res.Metrics != nil) {
		if err := w.hub.Broadcast(Update{RunID: w.runID, Points: res.Points, Metrics: res.Metrics}); err != nil {
			w.log.Error("worker broadcast failed", "run", w.runID, "err", err)
		}
	}
}
