package export

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/loadpulse/loadpulse/pkg/httpx"
	"github.com/loadpulse/loadpulse/pkg/pipeline"
	"github.com/loadpulse/loadpulse/pkg/store"
)

const (
	// DefaultWindow is exported when no time range is given.
	DefaultWindow = 24 * time.Hour

	// MaxWindow bounds a single export request.
	MaxWindow = 30 * 24 * time.Hour
)

// Handler serves the archive endpoints.
type Handler struct {
	exporter *Exporter
	importer *Importer
	log      *slog.Logger
}

// NewHandler creates the export/import handler.
func NewHandler(st store.Store, rules pipeline.ValidationRules, log *slog.Logger) *Handler {
	return &Handler{
		exporter: NewExporter(st),
		importer: NewImporter(st, rules),
		log:      log,
	}
}

// Register attaches the archive routes to the router.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/v1/export", h.HandleExport).Methods(http.MethodGet)
	r.HandleFunc("/v1/import", h.HandleImport).Methods(http.MethodPost)
}

// HandleExport streams the selected series as a JSON archive or CSV.
// Query params: run, format (json|csv), start, end (RFC3339).
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	format := q.Get("format")
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "csv" {
		httpx.RespondErrorString(w, http.StatusBadRequest, "format must be json or csv")
		return
	}

	end := parseTime(q.Get("end"), time.Now())
	start := parseTime(q.Get("start"), end.Add(-DefaultWindow))
	if !start.Before(end) {
		httpx.RespondErrorString(w, http.StatusBadRequest, "start must be before end")
		return
	}
	if end.Sub(start) > MaxWindow {
		httpx.RespondErrorString(w, http.StatusBadRequest,
			fmt.Sprintf("time range too large, maximum is %v", MaxWindow))
		return
	}

	opts := Options{
		RunID:  q.Get("run"),
		Start:  start,
		End:    end,
		Format: format,
	}

	stamp := time.Now().Format("20060102-150405")
	var (
		result *Result
		err    error
	)
	if format == "json" {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=loadpulse-export-%s.json", stamp))
		result, err = h.exporter.WriteJSON(r.Context(), w, opts)
	} else {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=loadpulse-export-%s.csv", stamp))
		result, err = h.exporter.WriteCSV(r.Context(), w, opts)
	}
	if err != nil {
		// Headers may already be out, but the body is cut short so the
		// client sees a broken download rather than a silent truncation.
		h.log.Error("export failed", "format", format, "error", err)
		return
	}
	h.log.Info("export complete",
		"points", result.PointsExported, "format", format, "run", opts.RunID)
}

// HandleImport restores a JSON archive into the run named by ?run
// (default "imported").
func (h *Handler) HandleImport(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("run")
	if runID == "" {
		runID = "imported"
	}

	result, err := h.importer.ImportJSON(r.Context(), r.Body, runID)
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}
	if len(result.Errors) > 0 {
		h.log.Warn("import skipped invalid points",
			"run", runID, "skipped", len(result.Errors))
	}
	h.log.Info("import complete",
		"points", result.PointsImported, "batches", result.BatchesWritten, "run", runID)
	httpx.RespondJSON(w, http.StatusOK, result)
}

func parseTime(param string, fallback time.Time) time.Time {
	if param == "" {
		return fallback
	}
	if t, err := time.Parse(time.RFC3339, param); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02T15:04:05", param); err == nil {
		return t
	}
	return fallback
}
