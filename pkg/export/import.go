package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/loadpulse/loadpulse/pkg/model"
	"github.com/loadpulse/loadpulse/pkg/pipeline"
	"github.com/loadpulse/loadpulse/pkg/store"
)

// MaxImportBatch caps how many points go into a single store append.
const MaxImportBatch = 5000

// Importer restores an Archive into the serving buffer. Points are
// re-checked against the validation rules so a hand-edited archive cannot
// smuggle out-of-domain values past the pipeline.
type Importer struct {
	store     store.Store
	validator *pipeline.Validator
}

// NewImporter creates an importer bound to the given rules.
func NewImporter(st store.Store, rules pipeline.ValidationRules) *Importer {
	return &Importer{store: st, validator: pipeline.NewValidator(rules)}
}

// ImportResult summarizes a completed import.
type ImportResult struct {
	PointsImported int       `json:"points_imported"`
	BatchesWritten int       `json:"batches_written"`
	RunID          string    `json:"run_id"`
	ImportedAt     time.Time `json:"imported_at"`
	Errors         []string  `json:"errors,omitempty"`
}

// ImportJSON reads an Archive document and appends its points under runID.
// Invalid points are skipped and reported in the result, not fatal.
func (im *Importer) ImportJSON(ctx context.Context, r io.Reader, runID string) (*ImportResult, error) {
	var archive Archive
	if err := json.NewDecoder(r).Decode(&archive); err != nil {
		return nil, fmt.Errorf("decode archive: %w", err)
	}
	if archive.Metadata.Version != formatVersion {
		return nil, fmt.Errorf("unsupported archive version %q", archive.Metadata.Version)
	}

	result := &ImportResult{RunID: runID, ImportedAt: time.Now()}

	batch := make([]model.MeasurementPoint, 0, MaxImportBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := im.store.Append(ctx, runID, batch); err != nil {
			return fmt.Errorf("append batch: %w", err)
		}
		result.PointsImported += len(batch)
		result.BatchesWritten++
		batch = batch[:0]
		return nil
	}

	for i, p := range archive.Points {
		if ok, reason := im.validator.AcceptPoint(p); !ok {
			result.Errors = append(result.Errors,
				fmt.Sprintf("point %d: %s", i, reason))
			continue
		}
		batch = append(batch, p)
		if len(batch) == MaxImportBatch {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return result, nil
}
