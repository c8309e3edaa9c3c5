package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/loadpulse/loadpulse/pkg/pipeline"
	"github.com/loadpulse/loadpulse/pkg/store"
)

// Poller periodically fetches a platform status endpoint and feeds the
// poll-response envelopes it returns into the pipeline.
type Poller struct {
	url      string
	runID    string
	interval time.Duration
	client   *http.Client

	pipeline *pipeline.Pipeline
	store    store.Store
	hub      *Hub
	log      *slog.Logger
}

// NewPoller creates a poller for one status URL. hub may be nil.
func NewPoller(url, runID string, interval time.Duration,
	p *pipeline.Pipeline, st store.Store, hub *Hub, log *slog.Logger) *Poller {
	if runID == "" {
		runID = DefaultRunID
	}
	return &Poller{
		url:      url,
		runID:    runID,
		interval: interval,
		client:   &http.Client{Timeout: interval},
		pipeline: p,
		store:    st,
		hub:      hub,
		log:      log,
	}
}

// Run polls until ctx is cancelled. Individual poll failures are logged and
// the loop keeps going; the platform may simply not be running a test yet.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.log.Info("poller started", "url", p.url, "interval", p.interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.poll(ctx); err != nil {
				p.log.Warn("poll failed", "url", p.url, "err", err)
			}
		}
	}
}

func (p *Poller) poll(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status poll returned %s", resp.Status)
	}

	var env pipeline.PollEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode poll envelope: %w", err)
	}

	res := p.pipeline.ProcessPoll(env, time.Now())
	for _, procErr := range res.Errors {
		p.log.Warn("poll envelope degraded", "run", p.runID, "err", procErr)
	}

	if len(res.Points) > 0 {
		if err := p.store.Append(ctx, p.runID, res.Points); err != nil {
			return fmt.Errorf("append polled points: %w", err)
		}
	}

	if p.hub != nil && p.hub.HasClients() && (len(res.Points) > 0 || res.Metrics != nil) {
		if err := p.hub.Broadcast(SeriesUpdate{RunID: p.runID, Points: res.Points, Metrics: res.Metrics}); err != nil {
			p.log.Error("broadcast failed", "run", p.runID, "err", err)
		}
	}
	return nil
}
