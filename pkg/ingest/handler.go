// Package ingest exposes the HTTP and WebSocket surface that producers push
// raw telemetry envelopes into and chart consumers read canonical series
// from.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/loadpulse/loadpulse/pkg/config"
	"github.com/loadpulse/loadpulse/pkg/downsample"
	"github.com/loadpulse/loadpulse/pkg/httpx"
	"github.com/loadpulse/loadpulse/pkg/pipeline"
	"github.com/loadpulse/loadpulse/pkg/store"
)

// DefaultRunID groups points from producers that do not name a run.
const DefaultRunID = "default"

// ErrBatchTooLarge is returned when an envelope carries more points than
// MaxPointsPerRequest.
var ErrBatchTooLarge = fmt.Errorf("too many points in request (max %d)", config.MaxPointsPerRequest)

// Handler wires the pipeline, store, downsampler, and hub behind HTTP.
type Handler struct {
	pipeline *pipeline.Pipeline
	store    store.Store
	sampler  *downsample.Downsampler
	defaults downsample.Config
	hub      *Hub
	log      *slog.Logger
}

// NewHandler creates the ingest handler. hub may be nil when no streaming
// consumers are expected.
func NewHandler(p *pipeline.Pipeline, st store.Store, sampler *downsample.Downsampler,
	defaults downsample.Config, hub *Hub, log *slog.Logger) *Handler {
	return &Handler{
		pipeline: p,
		store:    st,
		sampler:  sampler,
		defaults: defaults,
		hub:      hub,
		log:      log,
	}
}

// Register attaches every route to the router.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/v1/events/push", h.HandlePush).Methods(http.MethodPost)
	r.HandleFunc("/v1/events/poll", h.HandlePoll).Methods(http.MethodPost)
	r.HandleFunc("/v1/events/worker", h.HandleWorker).Methods(http.MethodPost)
	r.HandleFunc("/v1/events/ws", h.HandlePushSocket)
	r.HandleFunc("/v1/series", h.HandleSeries).Methods(http.MethodGet)
	r.HandleFunc("/v1/stats", h.HandleStats).Methods(http.MethodGet)
	r.HandleFunc("/v1/cache/clear", h.HandleCacheClear).Methods(http.MethodPost)
	r.HandleFunc("/v1/stream", h.HandleStream)
}

// IngestResponse reports what one envelope produced.
type IngestResponse struct {
	Accepted int      `json:"accepted"`
	Rejected int      `json:"rejected"`
	Errors   []string `json:"errors,omitempty"`
}

// HandlePush ingests one push-channel envelope.
func (h *Handler) HandlePush(w http.ResponseWriter, r *http.Request) {
	var env pipeline.PushEnvelope
	if !h.decode(w, r, &env) {
		return
	}
	h.ingest(w, r, runID(r), h.pipeline.ProcessPush(env, time.Now()))
}

// HandlePoll ingests one poll-response envelope.
func (h *Handler) HandlePoll(w http.ResponseWriter, r *http.Request) {
	var env pipeline.PollEnvelope
	if !h.decode(w, r, &env) {
		return
	}
	if env.Data != nil && len(env.Data.RealTimeData) > config.MaxPointsPerRequest {
		httpx.RespondError(w, http.StatusBadRequest, ErrBatchTooLarge)
		return
	}
	h.ingest(w, r, runID(r), h.pipeline.ProcessPoll(env, time.Now()))
}

// HandleWorker ingests one worker-status envelope.
func (h *Handler) HandleWorker(w http.ResponseWriter, r *http.Request) {
	var env pipeline.WorkerEnvelope
	if !h.decode(w, r, &env) {
		return
	}
	if len(env.RealTimeData) > config.MaxPointsPerRequest {
		httpx.RespondError(w, http.StatusBadRequest, ErrBatchTooLarge)
		return
	}
	h.ingest(w, r, runID(r), h.pipeline.ProcessWorker(env, time.Now()))
}

// HandleSeries returns a chart-ready, downsampled series for one run.
func (h *Handler) HandleSeries(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), config.SeriesQueryTimeout)
	defer cancel()

	q := r.URL.Query()
	req := store.QueryRequest{RunID: q.Get("run")}
	if req.RunID == "" {
		req.RunID = DefaultRunID
	}
	req.Start, _ = strconv.ParseInt(q.Get("start"), 10, 64)
	req.End, _ = strconv.ParseInt(q.Get("end"), 10, 64)

	points, err := h.store.Query(ctx, req)
	if err != nil {
		h.log.Error("series query failed", "run", req.RunID, "err", err)
		httpx.RespondError(w, http.StatusInternalServerError, err)
		return
	}

	cfg := h.defaults
	if v := q.Get("maxPoints"); v != "" {
		if maxPoints, err := strconv.Atoi(v); err == nil && maxPoints > 0 {
			cfg.MaxPoints = maxPoints
		}
	}
	if v := q.Get("strategy"); v != "" {
		cfg.Strategy = downsample.ParseStrategy(v)
	}

	httpx.RespondJSON(w, http.StatusOK, h.sampler.Optimize(points, cfg))
}

// StatsResponse aggregates every observable counter of the service.
type StatsResponse struct {
	Pipeline pipeline.Stats        `json:"pipeline"`
	Cache    downsample.CacheStats `json:"cache"`
	Store    *store.Stats          `json:"store"`
}

// HandleStats reports pipeline, cache, and store statistics.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), config.StatsTimeout)
	defer cancel()

	storeStats, err := h.store.Stats(ctx)
	if err != nil {
		httpx.RespondError(w, http.StatusInternalServerError, err)
		return
	}

	httpx.RespondJSON(w, http.StatusOK, StatsResponse{
		Pipeline: h.pipeline.Stats(),
		Cache:    h.sampler.CacheStats(),
		Store:    storeStats,
	})
}

// HandleCacheClear drops every memoized downsample result.
func (h *Handler) HandleCacheClear(w http.ResponseWriter, r *http.Request) {
	h.sampler.ClearCache()
	httpx.RespondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// decode reads a size-limited JSON body into dst. Responds and returns false
// on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, config.MaxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			httpx.RespondErrorString(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		httpx.RespondError(w, http.StatusBadRequest, fmt.Errorf("invalid envelope: %w", err))
		return false
	}
	return true
}

// ingest persists and broadcasts one batch result, then answers the producer.
func (h *Handler) ingest(w http.ResponseWriter, r *http.Request, run string, res pipeline.BatchResult) {
	ctx, cancel := context.WithTimeout(r.Context(), config.IngestTimeout)
	defer cancel()

	if len(res.Points) > 0 {
		if err := h.store.Append(ctx, run, res.Points); err != nil {
			h.log.Error("append failed", "run", run, "err", err)
			httpx.RespondError(w, http.StatusInternalServerError, err)
			return
		}
	}
	h.publish(run, res)

	resp := IngestResponse{Accepted: len(res.Points), Rejected: res.Rejected}
	for _, err := range res.Errors {
		resp.Errors = append(resp.Errors, err.Error())
	}
	httpx.RespondJSON(w, http.StatusAccepted, resp)
}

// publish fans a processed batch out to streaming consumers.
func (h *Handler) publish(run string, res pipeline.BatchResult) {
	if h.hub == nil || !h.hub.HasClients() {
		return
	}
	if len(res.Points) == 0 && res.Metrics == nil {
		return
	}
	if err := h.hub.Broadcast(SeriesUpdate{RunID: run, Points: res.Points, Metrics: res.Metrics}); err != nil {
		h.log.Error("broadcast failed", "run", run, "err", err)
	}
}

func runID(r *http.Request) string {
	if run := r.URL.Query().Get("run"); run != "" {
		return run
	}
	return DefaultRunID
}
