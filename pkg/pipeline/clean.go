package pipeline

import (
	"math"

	"github.com/loadpulse/loadpulse/pkg/config"
	"github.com/loadpulse/loadpulse/pkg/model"
)

// CleaningOptions configures the batch cleaning pass. Immutable once
// constructed.
type CleaningOptions struct {
	RemoveOutliers    bool
	OutlierThreshold  float64 // std-dev multiplier
	SmoothingWindow   int     // points on each side of the smoothed index
	FillMissingValues bool
}

// DefaultCleaningOptions returns the package-default cleaning options.
func DefaultCleaningOptions() CleaningOptions {
	return CleaningFromConfig(config.Default().Cleaning)
}

// CleaningFromConfig builds CleaningOptions from the file-config
// representation.
func CleaningFromConfig(c config.CleaningConfig) CleaningOptions {
	return CleaningOptions{
		RemoveOutliers:    c.RemoveOutliers,
		OutlierThreshold:  c.OutlierThreshold,
		SmoothingWindow:   c.SmoothingWindow,
		FillMissingValues: c.FillMissingValues,
	}
}

// Clean applies the batch cleaning passes in fixed order: outlier removal,
// moving-window smoothing, then one-hop forward fill. The input slice is
// never mutated; a cleaned copy is returned.
//
// Outlier statistics are whole-batch, recomputed per call. That is only
// correct for bounded, already-buffered batches.
func Clean(points []model.MeasurementPoint, opts CleaningOptions) []model.MeasurementPoint {
	if len(points) == 0 {
		return nil
	}

	cleaned := make([]model.MeasurementPoint, len(points))
	copy(cleaned, points)

	if opts.RemoveOutliers && opts.OutlierThreshold > 0 {
		cleaned = removeOutliers(cleaned, opts.OutlierThreshold)
	}
	if opts.SmoothingWindow > 1 && len(cleaned) >= opts.SmoothingWindow {
		smooth(cleaned, opts.SmoothingWindow)
	}
	if opts.FillMissingValues {
		forwardFill(cleaned)
	}

	return cleaned
}

// removeOutliers drops points whose responseTime deviates from the batch
// mean by more than threshold standard deviations.
func removeOutliers(points []model.MeasurementPoint, threshold float64) []model.MeasurementPoint {
	mean, stddev := responseTimeStats(points)
	if stddev == 0 {
		return points
	}

	kept := points[:0]
	for _, p := range points {
		if math.Abs(p.ResponseTime-mean) <= threshold*stddev {
			kept = append(kept, p)
		}
	}
	return kept
}

// smooth replaces responseTime and throughput of interior points with the
// mean over the symmetric window [i-w, i+w]. Boundary points (the first and
// last w indices) are left untouched. Window means are computed from a
// snapshot so already-smoothed neighbors do not cascade.
func smooth(points []model.MeasurementPoint, window int) {
	snapshot := make([]model.MeasurementPoint, len(points))
	copy(snapshot, points)

	for i := window; i < len(points)-window; i++ {
		var rtSum, tpSum float64
		n := 0
		for j := i - window; j <= i+window; j++ {
			rtSum += snapshot[j].ResponseTime
			tpSum += snapshot[j].Throughput
			n++
		}
		points[i].ResponseTime = rtSum / float64(n)
		points[i].Throughput = tpSum / float64(n)
	}
}

// forwardFill copies a positive predecessor value over an exact-zero
// responseTime or throughput. Each field fills independently and the carry
// is one hop only: predecessors are read from a snapshot, so a filled value
// never propagates further.
func forwardFill(points []model.MeasurementPoint) {
	snapshot := make([]model.MeasurementPoint, len(points))
	copy(snapshot, points)

	for i := 1; i < len(points); i++ {
		if points[i].ResponseTime == 0 && snapshot[i-1].ResponseTime > 0 {
			points[i].ResponseTime = snapshot[i-1].ResponseTime
		}
		if points[i].Throughput == 0 && snapshot[i-1].Throughput > 0 {
			points[i].Throughput = snapshot[i-1].Throughput
		}
	}
}

// responseTimeStats returns the mean and population standard deviation of
// responseTime over the batch.
func responseTimeStats(points []model.MeasurementPoint) (mean, stddev float64) {
	if len(points) == 0 {
		return 0, 0
	}

	var sum float64
	for _, p := range points {
		sum += p.ResponseTime
	}
	mean = sum / float64(len(points))

	var sqSum float64
	for _, p := range points {
		d := p.ResponseTime - mean
		sqSum += d * d
	}
	stddev = math.Sqrt(sqSum / float64(len(points)))
	return mean, stddev
}
