package ingest

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/loadpulse/loadpulse/pkg/config"
	"github.com/loadpulse/loadpulse/pkg/downsample"
	"github.com/loadpulse/loadpulse/pkg/pipeline"
	"github.com/loadpulse/loadpulse/pkg/store"
	"github.com/loadpulse/loadpulse/pkg/store/memory"
)

func newTestHandler(t *testing.T) (*Handler, *memory.Store) {
	t.Helper()
	st := memory.New()
	t.Cleanup(func() { st.Close() })

	h := NewHandler(
		pipeline.New(pipeline.DefaultRules(), pipeline.CleaningOptions{}),
		st,
		downsample.New(8),
		downsample.Config{MaxPoints: config.DefaultMaxPoints, Strategy: downsample.StrategyAdaptive, CacheEnabled: true},
		nil,
		slog.Default(),
	)
	return h, st
}

func newTestRouter(t *testing.T) (*mux.Router, *memory.Store) {
	t.Helper()
	h, st := newTestHandler(t)
	r := mux.NewRouter()
	h.Register(r)
	return r, st
}

func postJSON(t *testing.T, r http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestHandlePush_AcceptsPoint(t *testing.T) {
	r, st := newTestRouter(t)

	nowMs := time.Now().UnixMilli()
	rr := postJSON(t, r, "/v1/events/push?run=test-1", map[string]any{
		"dataPoint": map[string]any{
			"timestamp":    nowMs,
			"responseTime": 120,
			"throughput":   45,
			"activeUsers":  10,
			"phase":        "steady",
			"success":      true,
		},
	})

	require.Equal(t, http.StatusAccepted, rr.Code)
	var resp IngestResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Accepted)
	require.Zero(t, resp.Rejected)

	points, err := st.Query(httptest.NewRequest(http.MethodGet, "/", nil).Context(),
		store.QueryRequest{RunID: "test-1"})
	require.NoError(t, err)
	require.Len(t, points, 1)
	require.Equal(t, float64(120), points[0].ResponseTime)
}

func TestHandlePush_MalformedFieldsCoerce(t *testing.T) {
	r, st := newTestRouter(t)

	rr := postJSON(t, r, "/v1/events/push", map[string]any{
		"dataPoint": map[string]any{
			"responseTime": "garbage",
			"phase":        12345,
			"success":      true,
		},
	})

	require.Equal(t, http.StatusAccepted, rr.Code)

	points, err := st.Query(httptest.NewRequest(http.MethodGet, "/", nil).Context(),
		store.QueryRequest{RunID: DefaultRunID})
	require.NoError(t, err)
	require.Len(t, points, 1)
	require.Zero(t, points[0].ResponseTime)
}

func TestHandlePush_InvalidJSON(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/events/push", bytes.NewReader([]byte("{not json")))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleWorker_BatchTooLarge(t *testing.T) {
	r, _ := newTestRouter(t)

	batch := make([]map[string]any, config.MaxPointsPerRequest+1)
	for i := range batch {
		batch[i] = map[string]any{"responseTime": 100}
	}
	rr := postJSON(t, r, "/v1/events/worker", map[string]any{"realTimeData": batch})

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "too many points")
}

func TestHandlePoll_FailureEnvelopeReportsErrors(t *testing.T) {
	r, _ := newTestRouter(t)

	rr := postJSON(t, r, "/v1/events/poll", map[string]any{"success": false})

	require.Equal(t, http.StatusAccepted, rr.Code)
	var resp IngestResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Errors, 1)
}

func TestHandleSeries_Downsampled(t *testing.T) {
	r, st := newTestRouter(t)

	points := make([]map[string]any, 0, 300)
	base := time.Now().UnixMilli()
	for i := 0; i < 300; i++ {
		points = append(points, map[string]any{
			"timestamp":    base + int64(i*1000),
			"responseTime": 100 + i%20,
			"throughput":   50,
			"success":      true,
		})
	}
	rr := postJSON(t, r, "/v1/events/poll?run=big", map[string]any{
		"success": true,
		"data":    map[string]any{"realTimeData": points},
	})
	require.Equal(t, http.StatusAccepted, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/series?run=big&maxPoints=50&strategy=uniform", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var res downsample.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Equal(t, 300, res.OriginalCount)
	require.Equal(t, 50, res.ResultCount)
	require.Equal(t, float64(6), res.CompressionRatio)

	// The store must be untouched by downsampling.
	stored, err := st.Query(req.Context(), store.QueryRequest{RunID: "big"})
	require.NoError(t, err)
	require.Len(t, stored, 300)
}

func TestHandleStats(t *testing.T) {
	r, _ := newTestRouter(t)

	postJSON(t, r, "/v1/events/push", map[string]any{
		"dataPoint": map[string]any{"responseTime": 100, "success": true},
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var stats StatsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	require.Equal(t, uint64(1), stats.Pipeline.PointsAccepted)
	require.Equal(t, uint64(1), stats.Store.TotalPoints)
}

func TestHandleCacheClear(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/cache/clear", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "cleared")
}
