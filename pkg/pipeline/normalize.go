package pipeline

import (
	"time"

	"github.com/loadpulse/loadpulse/pkg/config"
	"github.com/loadpulse/loadpulse/pkg/model"
)

// Range is an inclusive [Min, Max] domain for one numeric field.
type Range struct {
	Min float64
	Max float64
}

// Clamp forces v into the range.
func (r Range) Clamp(v float64) float64 {
	if v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

// Contains reports whether v lies inside the range.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// ValidationRules holds the per-field domains and the timestamp max-age the
// pipeline normalizes and validates against. Immutable once constructed.
type ValidationRules struct {
	ResponseTime Range
	Throughput   Range
	ErrorRate    Range
	ActiveUsers  Range
	MaxAge       time.Duration
}

// DefaultRules returns the package-default validation rules.
func DefaultRules() ValidationRules {
	return RulesFromConfig(config.Default().Rules)
}

// RulesFromConfig builds ValidationRules from the file-config representation.
func RulesFromConfig(c config.RulesConfig) ValidationRules {
	return ValidationRules{
		ResponseTime: Range{Min: c.ResponseTime.Min, Max: c.ResponseTime.Max},
		Throughput:   Range{Min: c.Throughput.Min, Max: c.Throughput.Max},
		ErrorRate:    Range{Min: c.ErrorRate.Min, Max: c.ErrorRate.Max},
		ActiveUsers:  Range{Min: c.ActiveUsers.Min, Max: c.ActiveUsers.Max},
		MaxAge:       c.MaxAge,
	}
}

// Normalizer converts raw producer payloads into canonical records. It is a
// pure function of its inputs plus the caller-supplied clock; now is passed
// explicitly so tests control time without sleeping.
type Normalizer struct {
	rules ValidationRules
}

// NewNormalizer returns a Normalizer bound to the given rules.
func NewNormalizer(rules ValidationRules) *Normalizer {
	return &Normalizer{rules: rules}
}

// Point normalizes one raw data point. It never fails: missing fields
// default to zero/safe values, numerics are coerced then clamped, stale or
// absent timestamps are re-stamped to now, and the phase label maps onto the
// fixed enum.
func (n *Normalizer) Point(raw RawPoint, now time.Time) model.MeasurementPoint {
	nowMs := now.UnixMilli()

	ts := asInt64(raw.Timestamp)
	if ts <= 0 || nowMs-ts > n.rules.MaxAge.Milliseconds() {
		ts = nowMs
	}

	throughput := asFloat(raw.Throughput)
	if raw.Throughput == nil {
		throughput = asFloat(raw.RPS)
	}

	succeeded, hasSuccess := asBool(raw.Success)
	status := int(asInt64(raw.Status))
	switch {
	case status == 0 && succeeded:
		status = 200
	case status == 0:
		status = 500
	case !hasSuccess:
		succeeded = status < 400
	}

	return model.MeasurementPoint{
		Timestamp:    ts,
		ResponseTime: n.rules.ResponseTime.Clamp(asFloat(raw.ResponseTime)),
		ActiveUsers:  int(n.rules.ActiveUsers.Clamp(asFloat(raw.ActiveUsers))),
		Throughput:   n.rules.Throughput.Clamp(throughput),
		ErrorRate:    n.rules.ErrorRate.Clamp(asFloat(raw.ErrorRate)),
		StatusCode:   status,
		Succeeded:    succeeded,
		Phase:        model.ParsePhase(asString(raw.Phase)),
	}
}

// Metrics normalizes a raw aggregate rollup. Counts are floored at zero and
// derived rates clamped the same way point fields are.
func (n *Normalizer) Metrics(raw RawMetrics, now time.Time) model.AggregateMetrics {
	nowMs := now.UnixMilli()

	ts := asInt64(raw.Timestamp)
	if ts <= 0 || nowMs-ts > n.rules.MaxAge.Milliseconds() {
		ts = nowMs
	}

	return model.AggregateMetrics{
		TotalRequests:       nonNegative(asInt64(raw.TotalRequests)),
		SuccessfulRequests:  nonNegative(asInt64(raw.SuccessfulRequests)),
		FailedRequests:      nonNegative(asInt64(raw.FailedRequests)),
		AverageResponseTime: n.rules.ResponseTime.Clamp(asFloat(raw.AverageResponseTime)),
		CurrentThroughput:   n.rules.Throughput.Clamp(asFloat(raw.CurrentThroughput)),
		PeakThroughput:      n.rules.Throughput.Clamp(asFloat(raw.PeakThroughput)),
		ErrorRate:           n.rules.ErrorRate.Clamp(asFloat(raw.ErrorRate)),
		ActiveUsers:         int(n.rules.ActiveUsers.Clamp(asFloat(raw.ActiveUsers))),
		Timestamp:           ts,
	}
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
