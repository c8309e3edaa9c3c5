package downsample

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/loadpulse/loadpulse/pkg/config"
	"github.com/loadpulse/loadpulse/pkg/model"
)

// Strategy selects how an oversized batch is reduced.
type Strategy string

const (
	StrategyUniform    Strategy = "uniform"
	StrategyAdaptive   Strategy = "adaptive"
	StrategyImportance Strategy = "importance"
)

// ParseStrategy maps a free-text strategy label to a Strategy; anything
// unrecognized falls back to adaptive, the default.
func ParseStrategy(s string) Strategy {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyUniform:
		return StrategyUniform
	case StrategyImportance:
		return StrategyImportance
	default:
		return StrategyAdaptive
	}
}

// Importance scoring weights. Response time and throughput shape dominate;
// error rate breaks ties.
const (
	weightResponseTime = 0.4
	weightThroughput   = 0.4
	weightErrorRate    = 0.2

	// boundaryBoost keeps first/last points ahead of any interior score.
	boundaryBoost = 1.5

	// adaptiveUniformShare of the budget goes to the uniform backbone; the
	// rest is filled with high-importance points when PreserveKeyPoints.
	adaptiveUniformShare = 0.7

	// meanTolerance is the allowed relative drift of the sampled
	// responseTime mean before compensation kicks in.
	meanTolerance = 0.05

	// maxCompensationPoints caps how many points compensation may splice in.
	maxCompensationPoints = 10
)

// Config controls one Optimize call. Immutable.
type Config struct {
	MaxPoints         int      `json:"maxPoints"`
	Strategy          Strategy `json:"strategy"`
	PreserveKeyPoints bool     `json:"preserveKeyPoints"`
	CacheEnabled      bool     `json:"cacheEnabled"`
}

// ConfigFromFile builds a Config from the file-config representation.
func ConfigFromFile(c config.DownsampleConfig) Config {
	return Config{
		MaxPoints:         c.MaxPoints,
		Strategy:          ParseStrategy(c.Strategy),
		PreserveKeyPoints: c.PreserveKeyPoints,
		CacheEnabled:      c.CacheEnabled,
	}
}

// Result is the outcome of one Optimize call. Points are owned by the cache
// once a result is memoized; consumers must treat them as read-only.
type Result struct {
	Points           []model.MeasurementPoint `json:"points"`
	OriginalCount    int                      `json:"originalCount"`
	ResultCount      int                      `json:"resultCount"`
	CompressionRatio float64                  `json:"compressionRatio"`
	ProcessingMs     float64                  `json:"processingDurationMs"`
	CacheHit         bool                     `json:"cacheHit"`
}

// Downsampler reduces batches and memoizes results. Safe for concurrent use.
type Downsampler struct {
	cache *resultCache
}

// New returns a Downsampler with a bounded result cache of the given
// capacity (entries). A capacity <= 0 falls back to the package default.
func New(cacheSize int) *Downsampler {
	if cacheSize <= 0 {
		cacheSize = config.DefaultCacheSize
	}
	return &Downsampler{cache: newResultCache(cacheSize)}
}

// Optimize reduces points to at most cfg.MaxPoints (plus a bounded
// compensation margin for the adaptive strategy). Batches already within
// budget pass through unchanged. Always returns a best-effort result; it
// never fails.
func (d *Downsampler) Optimize(points []model.MeasurementPoint, cfg Config) Result {
	start := time.Now()
	n := len(points)

	if cfg.MaxPoints <= 0 {
		cfg.MaxPoints = config.DefaultMaxPoints
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyAdaptive
	}

	if n == 0 {
		return Result{Points: []model.MeasurementPoint{}, CompressionRatio: 1}
	}
	if n <= cfg.MaxPoints {
		return Result{
			Points:           points,
			OriginalCount:    n,
			ResultCount:      n,
			CompressionRatio: 1,
			ProcessingMs:     msSince(start),
		}
	}

	var fp uint64
	if cfg.CacheEnabled {
		fp = fingerprint(points, cfg)
		if cached, ok := d.cache.get(fp); ok {
			cached.CacheHit = true
			cached.ProcessingMs = msSince(start)
			return cached
		}
	}

	var sampled []model.MeasurementPoint
	switch cfg.Strategy {
	case StrategyUniform:
		sampled = sampleUniform(points, cfg.MaxPoints)
	case StrategyImportance:
		sampled = sampleImportance(points, cfg.MaxPoints)
	default:
		sampled = sampleAdaptive(points, cfg)
	}

	res := Result{
		Points:           sampled,
		OriginalCount:    n,
		ResultCount:      len(sampled),
		CompressionRatio: float64(n) / float64(len(sampled)),
		ProcessingMs:     msSince(start),
	}

	if cfg.CacheEnabled {
		d.cache.put(fp, res)
	}
	return res
}

// CacheStats returns a snapshot of the result cache counters.
func (d *Downsampler) CacheStats() CacheStats {
	return d.cache.stats()
}

// ClearCache drops every memoized result and resets the cache counters.
func (d *Downsampler) ClearCache() {
	d.cache.clear()
}

// sampleUniform selects maxPoints indices at stride n/maxPoints, flooring
// at each step. The last slot always takes the final original point so both
// boundaries survive the reduction.
func sampleUniform(points []model.MeasurementPoint, maxPoints int) []model.MeasurementPoint {
	n := len(points)
	stride := float64(n) / float64(maxPoints)
	out := make([]model.MeasurementPoint, 0, maxPoints)
	for i := 0; i < maxPoints-1; i++ {
		out = append(out, points[int(float64(i)*stride)])
	}
	out = append(out, points[n-1])
	return out
}

// sampleImportance keeps the maxPoints highest-scoring points, restoring
// temporal order afterwards.
func sampleImportance(points []model.MeasurementPoint, maxPoints int) []model.MeasurementPoint {
	scores := importanceScores(points)

	order := make([]int, len(points))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	kept := order[:maxPoints]
	sort.Ints(kept)

	out := make([]model.MeasurementPoint, 0, maxPoints)
	for _, idx := range kept {
		out = append(out, points[idx])
	}
	return out
}

// sampleAdaptive combines endpoints, a uniform backbone, an optional
// importance topping, and a mean-compensation pass.
func sampleAdaptive(points []model.MeasurementPoint, cfg Config) []model.MeasurementPoint {
	n := len(points)
	selected := make(map[int]bool, cfg.MaxPoints)
	selected[0] = true
	selected[n-1] = true

	uniformBudget := int(adaptiveUniformShare * float64(cfg.MaxPoints))
	if uniformBudget > 0 {
		stride := float64(n) / float64(uniformBudget)
		for i := 0; i < uniformBudget; i++ {
			selected[int(float64(i)*stride)] = true
		}
	}

	if cfg.PreserveKeyPoints {
		scores := importanceScores(points)
		order := make([]int, n)
		for i := range order {
			order[i] = i
		}
		sort.Slice(order, func(a, b int) bool {
			return scores[order[a]] > scores[order[b]]
		})
		for _, idx := range order {
			if len(selected) >= cfg.MaxPoints {
				break
			}
			selected[idx] = true
		}
	}

	indices := make([]int, 0, len(selected))
	for idx := range selected {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	sampled := make([]model.MeasurementPoint, 0, len(indices))
	for _, idx := range indices {
		sampled = append(sampled, points[idx])
	}

	return compensateMean(points, sampled, selected)
}

// compensateMean splices unselected points closest to the original
// responseTime mean into the sample when the sampled mean has drifted more
// than meanTolerance from it.
func compensateMean(original, sampled []model.MeasurementPoint, selected map[int]bool) []model.MeasurementPoint {
	origMean := model.MeanResponseTime(original)
	if origMean == 0 {
		return sampled
	}
	sampleMean := model.MeanResponseTime(sampled)
	if math.Abs(sampleMean-origMean) <= meanTolerance*origMean {
		return sampled
	}

	budget := len(sampled) / 10
	if budget > maxCompensationPoints {
		budget = maxCompensationPoints
	}
	if budget == 0 {
		return sampled
	}

	candidates := make([]int, 0, len(original)-len(sampled))
	for i := range original {
		if !selected[i] {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return sampled
	}

	sort.Slice(candidates, func(a, b int) bool {
		da := math.Abs(original[candidates[a]].ResponseTime - origMean)
		db := math.Abs(original[candidates[b]].ResponseTime - origMean)
		return da < db
	})
	if len(candidates) > budget {
		candidates = candidates[:budget]
	}

	for _, idx := range candidates {
		sampled = append(sampled, original[idx])
	}
	sort.Slice(sampled, func(a, b int) bool {
		return sampled[a].Timestamp < sampled[b].Timestamp
	})
	return sampled
}

// importanceScores scores each point by how much its neighborhood changes:
// the sum of absolute deltas to both neighbors, weighted per field. Boundary
// points score boundaryBoost times the interior maximum so they are always
// favored.
func importanceScores(points []model.MeasurementPoint) []float64 {
	n := len(points)
	scores := make([]float64, n)

	var maxScore float64
	for i := 1; i < n-1; i++ {
		dRT := math.Abs(points[i].ResponseTime-points[i-1].ResponseTime) +
			math.Abs(points[i].ResponseTime-points[i+1].ResponseTime)
		dTP := math.Abs(points[i].Throughput-points[i-1].Throughput) +
			math.Abs(points[i].Throughput-points[i+1].Throughput)
		dER := math.Abs(points[i].ErrorRate-points[i-1].ErrorRate) +
			math.Abs(points[i].ErrorRate-points[i+1].ErrorRate)

		scores[i] = weightResponseTime*dRT + weightThroughput*dTP + weightErrorRate*dER
		if scores[i] > maxScore {
			maxScore = scores[i]
		}
	}

	boundary := boundaryBoost * maxScore
	if boundary == 0 {
		boundary = boundaryBoost
	}
	scores[0] = boundary
	if n > 1 {
		scores[n-1] = boundary
	}
	return scores
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
