package pipeline

import "strconv"

// RawPoint is one data point as a producer sent it. Fields are deliberately
// untyped: producers disagree on shapes, and a string where a number belongs
// must coerce to zero rather than fail the whole envelope decode.
type RawPoint struct {
	Timestamp    any `json:"timestamp"`
	ResponseTime any `json:"responseTime"`
	Throughput   any `json:"throughput"`
	RPS          any `json:"rps"` // worker-status producers report throughput as rps
	Errors       any `json:"errors"`
	ActiveUsers  any `json:"activeUsers"`
	ErrorRate    any `json:"errorRate"`
	Phase        any `json:"phase"`
	Success      any `json:"success"`
	Status       any `json:"status"`
}

// RawMetrics is an aggregate rollup as a producer sent it.
type RawMetrics struct {
	TotalRequests       any `json:"totalRequests"`
	SuccessfulRequests  any `json:"successfulRequests"`
	FailedRequests      any `json:"failedRequests"`
	AverageResponseTime any `json:"averageResponseTime"`
	CurrentThroughput   any `json:"currentThroughput"`
	PeakThroughput      any `json:"peakThroughput"`
	ErrorRate           any `json:"errorRate"`
	ActiveUsers         any `json:"activeUsers"`
	Timestamp           any `json:"timestamp"`
}

// PushEnvelope is the shape streamed over the push socket channel.
type PushEnvelope struct {
	DataPoint *RawPoint   `json:"dataPoint"`
	Metrics   *RawMetrics `json:"metrics"`
}

// PollEnvelope wraps the response of a periodic status poll.
type PollEnvelope struct {
	Success bool      `json:"success"`
	Data    *PollData `json:"data"`
}

// PollData is the payload half of a PollEnvelope.
type PollData struct {
	RealTimeMetrics *RawMetrics `json:"realTimeMetrics"`
	RealTimeData    []RawPoint  `json:"realTimeData"`
}

// WorkerEnvelope is the status shape emitted by an in-process load worker.
type WorkerEnvelope struct {
	RealTimeData []RawPoint  `json:"realTimeData"`
	Metrics      *RawMetrics `json:"metrics"`
}

// asFloat coerces a decoded JSON value to float64. Non-numeric values
// coerce to 0, matching the never-throw contract of the normalizer.
func asFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// asInt64 coerces a decoded JSON value to int64, truncating fractions.
func asInt64(v any) int64 {
	return int64(asFloat(v))
}

// asBool coerces a decoded JSON value to (value, present). Only genuine
// booleans and the strings "true"/"false" count as present.
func asBool(v any) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case string:
		b, err := strconv.ParseBool(x)
		if err != nil {
			return false, false
		}
		return b, true
	default:
		return false, false
	}
}

// asString coerces a decoded JSON value to a string; non-strings yield "".
func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
