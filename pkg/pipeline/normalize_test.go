package pipeline

import (
	"testing"
	"time"

	"github.com/loadpulse/loadpulse/pkg/model"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestNormalizer_ClampsNegativeResponseTime(t *testing.T) {
	n := NewNormalizer(DefaultRules())

	p := n.Point(RawPoint{Timestamp: float64(testNow.UnixMilli()), ResponseTime: float64(-50)}, testNow)
	if p.ResponseTime != 0 {
		t.Errorf("ResponseTime = %v, want 0", p.ResponseTime)
	}
}

func TestNormalizer_ClampsAboveMax(t *testing.T) {
	n := NewNormalizer(DefaultRules())

	p := n.Point(RawPoint{
		Timestamp:    float64(testNow.UnixMilli()),
		ResponseTime: float64(120000),
		ErrorRate:    float64(250),
	}, testNow)

	if p.ResponseTime != 60000 {
		t.Errorf("ResponseTime = %v, want 60000", p.ResponseTime)
	}
	if p.ErrorRate != 100 {
		t.Errorf("ErrorRate = %v, want 100", p.ErrorRate)
	}
}

func TestNormalizer_StaleTimestampRestamped(t *testing.T) {
	n := NewNormalizer(DefaultRules())

	stale := testNow.Add(-10 * time.Minute).UnixMilli()
	p := n.Point(RawPoint{Timestamp: float64(stale)}, testNow)

	if p.Timestamp != testNow.UnixMilli() {
		t.Errorf("Timestamp = %d, want re-stamp to %d", p.Timestamp, testNow.UnixMilli())
	}
}

func TestNormalizer_FreshTimestampKept(t *testing.T) {
	n := NewNormalizer(DefaultRules())

	fresh := testNow.Add(-1 * time.Minute).UnixMilli()
	p := n.Point(RawPoint{Timestamp: float64(fresh)}, testNow)

	if p.Timestamp != fresh {
		t.Errorf("Timestamp = %d, want original %d", p.Timestamp, fresh)
	}
}

func TestNormalizer_MissingTimestampRestamped(t *testing.T) {
	n := NewNormalizer(DefaultRules())

	p := n.Point(RawPoint{}, testNow)
	if p.Timestamp != testNow.UnixMilli() {
		t.Errorf("Timestamp = %d, want %d", p.Timestamp, testNow.UnixMilli())
	}
}

func TestNormalizer_PhaseMapping(t *testing.T) {
	n := NewNormalizer(DefaultRules())

	cases := map[any]model.Phase{
		"RampUp":       model.PhaseRampUp,
		"ramp-up":      model.PhaseRampUp,
		"steady-state": model.PhaseSteadyState,
		"running":      model.PhaseSteadyState,
		"cleanup":      model.PhaseCleanup,
		"bogus":        model.PhaseSteadyState,
		nil:            model.PhaseSteadyState,
		float64(7):     model.PhaseSteadyState,
	}
	for input, want := range cases {
		p := n.Point(RawPoint{Phase: input}, testNow)
		if p.Phase != want {
			t.Errorf("phase %v normalized to %v, want %v", input, p.Phase, want)
		}
	}
}

func TestNormalizer_StatusFromSuccess(t *testing.T) {
	n := NewNormalizer(DefaultRules())

	p := n.Point(RawPoint{Success: true}, testNow)
	if p.StatusCode != 200 || !p.Succeeded {
		t.Errorf("got status=%d succeeded=%v, want 200/true", p.StatusCode, p.Succeeded)
	}

	p = n.Point(RawPoint{Success: false}, testNow)
	if p.StatusCode != 500 || p.Succeeded {
		t.Errorf("got status=%d succeeded=%v, want 500/false", p.StatusCode, p.Succeeded)
	}
}

func TestNormalizer_SuccessFromStatus(t *testing.T) {
	n := NewNormalizer(DefaultRules())

	p := n.Point(RawPoint{Status: float64(204)}, testNow)
	if !p.Succeeded {
		t.Error("status 204 should derive succeeded=true")
	}

	p = n.Point(RawPoint{Status: float64(503)}, testNow)
	if p.Succeeded {
		t.Error("status 503 should derive succeeded=false")
	}
}

func TestNormalizer_NonNumericCoercesToZero(t *testing.T) {
	n := NewNormalizer(DefaultRules())

	p := n.Point(RawPoint{
		Timestamp:    float64(testNow.UnixMilli()),
		ResponseTime: "not-a-number",
		Throughput:   map[string]any{"nested": true},
		ActiveUsers:  []any{1, 2},
	}, testNow)

	if p.ResponseTime != 0 || p.Throughput != 0 || p.ActiveUsers != 0 {
		t.Errorf("non-numeric fields should coerce to 0, got %+v", p)
	}
}

func TestNormalizer_NumericStringsParsed(t *testing.T) {
	n := NewNormalizer(DefaultRules())

	p := n.Point(RawPoint{Timestamp: float64(testNow.UnixMilli()), ResponseTime: "125.5"}, testNow)
	if p.ResponseTime != 125.5 {
		t.Errorf("ResponseTime = %v, want 125.5", p.ResponseTime)
	}
}

func TestNormalizer_WorkerRPSFallback(t *testing.T) {
	n := NewNormalizer(DefaultRules())

	p := n.Point(RawPoint{RPS: float64(42)}, testNow)
	if p.Throughput != 42 {
		t.Errorf("Throughput = %v, want rps fallback 42", p.Throughput)
	}

	// Explicit throughput wins over rps.
	p = n.Point(RawPoint{Throughput: float64(10), RPS: float64(42)}, testNow)
	if p.Throughput != 10 {
		t.Errorf("Throughput = %v, want 10", p.Throughput)
	}
}

func TestNormalizer_MetricsCountsFlooredAtZero(t *testing.T) {
	n := NewNormalizer(DefaultRules())

	m := n.Metrics(RawMetrics{
		TotalRequests:  float64(-5),
		FailedRequests: float64(-1),
		Timestamp:      float64(testNow.UnixMilli()),
	}, testNow)

	if m.TotalRequests != 0 || m.FailedRequests != 0 {
		t.Errorf("negative counts should floor at 0, got %+v", m)
	}
}

func TestNormalizer_DomainContainment(t *testing.T) {
	rules := DefaultRules()
	n := NewNormalizer(rules)

	// Hostile inputs across the board; every output field must stay in domain.
	inputs := []RawPoint{
		{ResponseTime: float64(-1e12), Throughput: float64(1e18), ErrorRate: float64(-3)},
		{ResponseTime: "1e309", ActiveUsers: float64(-10)},
		{Timestamp: "garbage", ErrorRate: float64(1000)},
	}
	for _, raw := range inputs {
		p := n.Point(raw, testNow)
		if !rules.ResponseTime.Contains(p.ResponseTime) ||
			!rules.Throughput.Contains(p.Throughput) ||
			!rules.ErrorRate.Contains(p.ErrorRate) ||
			!rules.ActiveUsers.Contains(float64(p.ActiveUsers)) {
			t.Errorf("normalized point escaped its domain: %+v", p)
		}
	}
}
