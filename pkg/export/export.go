package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/loadpulse/loadpulse/pkg/model"
	"github.com/loadpulse/loadpulse/pkg/store"
)

// formatVersion is stamped into JSON exports so importers can reject
// files written by an incompatible build.
const formatVersion = "1.0"

// Exporter writes stored measurement series to a backup format.
type Exporter struct {
	store store.Store
}

// NewExporter creates an exporter over the given serving buffer.
func NewExporter(st store.Store) *Exporter {
	return &Exporter{store: st}
}

// Options selects what to export.
type Options struct {
	// RunID selects one run. Empty exports every run.
	RunID string

	// Time range; zero values mean unbounded.
	Start time.Time
	End   time.Time

	// Format is "json" or "csv".
	Format string
}

// Result summarizes a completed export.
type Result struct {
	PointsExported int       `json:"points_exported"`
	RunID          string    `json:"run_id,omitempty"`
	Format         string    `json:"format"`
	ExportedAt     time.Time `json:"exported_at"`
}

// Archive is the JSON export envelope. Importers read the same shape.
type Archive struct {
	Metadata struct {
		ExportedAt time.Time `json:"exported_at"`
		RunID      string    `json:"run_id,omitempty"`
		StartTime  time.Time `json:"start_time"`
		EndTime    time.Time `json:"end_time"`
		PointCount int       `json:"point_count"`
		Version    string    `json:"version"`
	} `json:"metadata"`
	Points []model.MeasurementPoint `json:"points"`
}

// WriteJSON exports the selected series as an Archive document.
func (e *Exporter) WriteJSON(ctx context.Context, w io.Writer, opts Options) (*Result, error) {
	points, err := e.query(ctx, opts)
	if err != nil {
		return nil, err
	}

	var archive Archive
	archive.Points = points
	archive.Metadata.ExportedAt = time.Now()
	archive.Metadata.RunID = opts.RunID
	archive.Metadata.StartTime = opts.Start
	archive.Metadata.EndTime = opts.End
	archive.Metadata.PointCount = len(points)
	archive.Metadata.Version = formatVersion

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(archive); err != nil {
		return nil, fmt.Errorf("encode archive: %w", err)
	}

	return &Result{
		PointsExported: len(points),
		RunID:          opts.RunID,
		Format:         "json",
		ExportedAt:     archive.Metadata.ExportedAt,
	}, nil
}

// csvHeader is the fixed column set; measurement points have no free-form
// labels so the schema never varies between exports.
var csvHeader = []string{
	"timestamp_ms", "response_time_ms", "active_users",
	"throughput", "error_rate", "status_code", "succeeded", "phase",
}

// WriteCSV exports the selected series as rows under a fixed header.
func (e *Exporter) WriteCSV(ctx context.Context, w io.Writer, opts Options) (*Result, error) {
	points, err := e.query(ctx, opts)
	if err != nil {
		return nil, err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, p := range points {
		row := []string{
			strconv.FormatInt(p.Timestamp, 10),
			strconv.FormatFloat(p.ResponseTime, 'f', -1, 64),
			strconv.Itoa(p.ActiveUsers),
			strconv.FormatFloat(p.Throughput, 'f', -1, 64),
			strconv.FormatFloat(p.ErrorRate, 'f', -1, 64),
			strconv.Itoa(p.StatusCode),
			strconv.FormatBool(p.Succeeded),
			string(p.Phase),
		}
		if err := cw.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}

	return &Result{
		PointsExported: len(points),
		RunID:          opts.RunID,
		Format:         "csv",
		ExportedAt:     time.Now(),
	}, nil
}

func (e *Exporter) query(ctx context.Context, opts Options) ([]model.MeasurementPoint, error) {
	req := store.QueryRequest{RunID: opts.RunID}
	if !opts.Start.IsZero() {
		req.Start = opts.Start.UnixMilli()
	}
	if !opts.End.IsZero() {
		req.End = opts.End.UnixMilli()
	}
	points, err := e.store.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("query series: %w", err)
	}
	return points, nil
}
