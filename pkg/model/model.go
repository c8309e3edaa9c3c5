package model

import "strings"

// Phase represents the load-test lifecycle stage a measurement belongs to
type Phase string

const (
	PhaseInitialization Phase = "INITIALIZATION"
	PhaseRampUp         Phase = "RAMP_UP"
	PhaseSteadyState    Phase = "STEADY_STATE"
	PhaseRampDown       Phase = "RAMP_DOWN"
	PhaseCleanup        Phase = "CLEANUP"
)

// phaseAliases maps free-text phase labels from producers to the fixed enum.
// Lookup is case-insensitive; anything not listed normalizes to STEADY_STATE.
var phaseAliases = map[string]Phase{
	"init":           PhaseInitialization,
	"initialization": PhaseInitialization,
	"initializing":   PhaseInitialization,
	"ramp-up":        PhaseRampUp,
	"rampup":         PhaseRampUp,
	"ramp_up":        PhaseRampUp,
	"steady":         PhaseSteadyState,
	"steady-state":   PhaseSteadyState,
	"steady_state":   PhaseSteadyState,
	"running":        PhaseSteadyState,
	"ramp-down":      PhaseRampDown,
	"rampdown":       PhaseRampDown,
	"ramp_down":      PhaseRampDown,
	"cleanup":        PhaseCleanup,
}

// ParsePhase maps a free-text phase label to its canonical Phase.
// Unrecognized or empty labels map to STEADY_STATE, the safe default.
func ParsePhase(s string) Phase {
	if p, ok := phaseAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return p
	}
	return PhaseSteadyState
}

// MeasurementPoint is one sampled instant of a running test. All numeric
// fields are clamped to their configured domains by the normalizer before a
// point enters the pipeline; after acceptance only the cleaner's smoothing
// pass may rewrite ResponseTime/Throughput.
type MeasurementPoint struct {
	Timestamp    int64   `json:"timestamp"` // epoch milliseconds
	ResponseTime float64 `json:"responseTime"`
	ActiveUsers  int     `json:"activeUsers"`
	Throughput   float64 `json:"throughput"`
	ErrorRate    float64 `json:"errorRate"`
	StatusCode   int     `json:"statusCode"`
	Succeeded    bool    `json:"succeeded"`
	Phase        Phase   `json:"phase"`
}

// AggregateMetrics is a point-in-time rollup of a running test. Each raw
// aggregate payload produces a fresh snapshot that replaces the previous one
// held by the consumer.
type AggregateMetrics struct {
	TotalRequests       int64   `json:"totalRequests"`
	SuccessfulRequests  int64   `json:"successfulRequests"`
	FailedRequests      int64   `json:"failedRequests"`
	AverageResponseTime float64 `json:"averageResponseTime"`
	CurrentThroughput   float64 `json:"currentThroughput"`
	PeakThroughput      float64 `json:"peakThroughput"`
	ErrorRate           float64 `json:"errorRate"`
	ActiveUsers         int     `json:"activeUsers"`
	Timestamp           int64   `json:"timestamp"`
}

// MeanResponseTime returns the arithmetic mean of ResponseTime over points.
// Returns 0 for an empty slice.
func MeanResponseTime(points []MeasurementPoint) float64 {
	if len(points) == 0 {
		return 0
	}
	var sum float64
	for _, p := range points {
		sum += p.ResponseTime
	}
	return sum / float64(len(points))
}
