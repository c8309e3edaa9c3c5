package pipeline

import "github.com/loadpulse/loadpulse/pkg/model"

// RejectReason identifies why a record failed validation. Because the
// normalizer already clamps every field, a reject here points at a
// construction bug upstream; the pipeline counts them so callers can tell
// "no data" apart from "data rejected".
type RejectReason string

const (
	RejectNone           RejectReason = ""
	RejectTimestamp      RejectReason = "invalid_timestamp"
	RejectResponseTime   RejectReason = "response_time_out_of_range"
	RejectThroughput     RejectReason = "throughput_out_of_range"
	RejectErrorRate      RejectReason = "error_rate_out_of_range"
	RejectActiveUsers    RejectReason = "active_users_out_of_range"
	RejectNegativeCount  RejectReason = "negative_count"
	RejectCountImbalance RejectReason = "count_imbalance"
)

// Validator is the accept/reject gate in front of the cleaning stage.
type Validator struct {
	rules ValidationRules
}

// NewValidator returns a Validator bound to the given rules.
func NewValidator(rules ValidationRules) *Validator {
	return &Validator{rules: rules}
}

// AcceptPoint re-checks every normalized field against its domain.
func (v *Validator) AcceptPoint(p model.MeasurementPoint) (bool, RejectReason) {
	switch {
	case p.Timestamp <= 0:
		return false, RejectTimestamp
	case !v.rules.ResponseTime.Contains(p.ResponseTime):
		return false, RejectResponseTime
	case !v.rules.Throughput.Contains(p.Throughput):
		return false, RejectThroughput
	case !v.rules.ErrorRate.Contains(p.ErrorRate):
		return false, RejectErrorRate
	case !v.rules.ActiveUsers.Contains(float64(p.ActiveUsers)):
		return false, RejectActiveUsers
	}
	return true, RejectNone
}

// AcceptMetrics checks count monotonicity and rate domains on a rollup.
func (v *Validator) AcceptMetrics(m model.AggregateMetrics) (bool, RejectReason) {
	switch {
	case m.Timestamp <= 0:
		return false, RejectTimestamp
	case m.TotalRequests < 0 || m.SuccessfulRequests < 0 || m.FailedRequests < 0:
		return false, RejectNegativeCount
	case m.SuccessfulRequests+m.FailedRequests > m.TotalRequests:
		return false, RejectCountImbalance
	case !v.rules.ResponseTime.Contains(m.AverageResponseTime):
		return false, RejectResponseTime
	case !v.rules.Throughput.Contains(m.CurrentThroughput) || !v.rules.Throughput.Contains(m.PeakThroughput):
		return false, RejectThroughput
	case !v.rules.ErrorRate.Contains(m.ErrorRate):
		return false, RejectErrorRate
	}
	return true, RejectNone
}
