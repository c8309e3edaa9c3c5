package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/loadpulse/loadpulse/pkg/model"
)

func newTestPipeline() *Pipeline {
	return New(DefaultRules(), CleaningOptions{})
}

func TestProcessPush_SinglePoint(t *testing.T) {
	p := newTestPipeline()

	res := p.ProcessPush(PushEnvelope{
		DataPoint: &RawPoint{
			Timestamp:    float64(testNow.UnixMilli()),
			ResponseTime: float64(150),
			Throughput:   float64(30),
			ActiveUsers:  float64(25),
			Phase:        "ramp-up",
			Success:      true,
		},
	}, testNow)

	if len(res.Points) != 1 {
		t.Fatalf("got %d points, want 1", len(res.Points))
	}
	got := res.Points[0]
	if got.ResponseTime != 150 || got.ActiveUsers != 25 || got.Phase != model.PhaseRampUp {
		t.Errorf("unexpected point: %+v", got)
	}
	if res.Rejected != 0 || len(res.Errors) != 0 {
		t.Errorf("unexpected rejects/errors: %+v", res)
	}
}

func TestProcessPush_MetricsOnly(t *testing.T) {
	p := newTestPipeline()

	res := p.ProcessPush(PushEnvelope{
		Metrics: &RawMetrics{
			TotalRequests:      float64(1000),
			SuccessfulRequests: float64(990),
			FailedRequests:     float64(10),
			Timestamp:          float64(testNow.UnixMilli()),
		},
	}, testNow)

	if res.Metrics == nil {
		t.Fatal("expected aggregate metrics")
	}
	if res.Metrics.TotalRequests != 1000 || res.Metrics.FailedRequests != 10 {
		t.Errorf("unexpected metrics: %+v", res.Metrics)
	}
	if len(res.Points) != 0 {
		t.Errorf("expected no points, got %d", len(res.Points))
	}
}

func TestProcessPush_EmptyEnvelope(t *testing.T) {
	p := newTestPipeline()

	res := p.ProcessPush(PushEnvelope{}, testNow)
	if len(res.Points) != 0 || res.Metrics != nil || res.Rejected != 0 {
		t.Errorf("empty envelope should yield empty result: %+v", res)
	}
}

func TestProcessPoll_Batch(t *testing.T) {
	p := newTestPipeline()

	raws := make([]RawPoint, 5)
	for i := range raws {
		raws[i] = RawPoint{
			Timestamp:    float64(testNow.Add(time.Duration(i) * time.Second).UnixMilli()),
			ResponseTime: float64(100 + i),
			Success:      true,
			Phase:        "running",
		}
	}

	res := p.ProcessPoll(PollEnvelope{
		Success: true,
		Data:    &PollData{RealTimeData: raws},
	}, testNow.Add(5*time.Second))

	if len(res.Points) != 5 {
		t.Fatalf("got %d points, want 5", len(res.Points))
	}
	for _, pt := range res.Points {
		if pt.Phase != model.PhaseSteadyState {
			t.Errorf("phase = %v, want STEADY_STATE", pt.Phase)
		}
	}
}

func TestProcessPoll_FailureReported(t *testing.T) {
	p := newTestPipeline()

	res := p.ProcessPoll(PollEnvelope{Success: false}, testNow)
	if len(res.Errors) != 1 || !errors.Is(res.Errors[0], ErrPollFailed) {
		t.Errorf("expected ErrPollFailed, got %v", res.Errors)
	}
}

func TestProcessWorker_RPSAndMetrics(t *testing.T) {
	p := newTestPipeline()

	res := p.ProcessWorker(WorkerEnvelope{
		RealTimeData: []RawPoint{{
			Timestamp: float64(testNow.UnixMilli()),
			RPS:       float64(75),
			Success:   true,
		}},
		Metrics: &RawMetrics{
			TotalRequests: float64(500),
			Timestamp:     float64(testNow.UnixMilli()),
		},
	}, testNow)

	if len(res.Points) != 1 || res.Points[0].Throughput != 75 {
		t.Fatalf("worker rps not mapped to throughput: %+v", res.Points)
	}
	if res.Metrics == nil || res.Metrics.TotalRequests != 500 {
		t.Errorf("worker metrics missing: %+v", res.Metrics)
	}
}

func TestPipeline_RejectCountsExposed(t *testing.T) {
	p := newTestPipeline()

	// An imbalanced rollup passes normalization (counts are individually
	// valid) but fails the validator's count check.
	res := p.ProcessPush(PushEnvelope{
		Metrics: &RawMetrics{
			TotalRequests:      float64(10),
			SuccessfulRequests: float64(20),
			Timestamp:          float64(testNow.UnixMilli()),
		},
	}, testNow)

	if res.Metrics != nil {
		t.Fatal("imbalanced metrics should be rejected")
	}
	if res.Rejected != 1 {
		t.Errorf("Rejected = %d, want 1", res.Rejected)
	}

	stats := p.Stats()
	if stats.MetricsRejected != 1 {
		t.Errorf("MetricsRejected = %d, want 1", stats.MetricsRejected)
	}
	if stats.RejectedByReason[RejectCountImbalance] != 1 {
		t.Errorf("reject reason not counted: %+v", stats.RejectedByReason)
	}
}

func TestPipeline_CleaningApplied(t *testing.T) {
	p := New(DefaultRules(), CleaningOptions{FillMissingValues: true})

	raws := []RawPoint{
		{Timestamp: float64(testNow.UnixMilli()), ResponseTime: float64(200), Throughput: float64(10), Success: true},
		{Timestamp: float64(testNow.UnixMilli() + 1000), Throughput: float64(10), Success: true},
	}

	res := p.ProcessWorker(WorkerEnvelope{RealTimeData: raws}, testNow.Add(2*time.Second))
	if len(res.Points) != 2 {
		t.Fatalf("got %d points, want 2", len(res.Points))
	}
	if res.Points[1].ResponseTime != 200 {
		t.Errorf("gap fill not applied through pipeline: %v", res.Points[1].ResponseTime)
	}
}

func TestPipeline_Reconfigure(t *testing.T) {
	p := newTestPipeline()

	rules := DefaultRules()
	rules.ResponseTime.Max = 1000
	p.Reconfigure(rules, CleaningOptions{})

	res := p.ProcessPush(PushEnvelope{
		DataPoint: &RawPoint{
			Timestamp:    float64(testNow.UnixMilli()),
			ResponseTime: float64(5000),
			Success:      true,
		},
	}, testNow)

	if len(res.Points) != 1 {
		t.Fatal("point should still be accepted after clamping")
	}
	if res.Points[0].ResponseTime != 1000 {
		t.Errorf("new rules not applied: %v", res.Points[0].ResponseTime)
	}
}

func TestValidator_AcceptPoint(t *testing.T) {
	v := NewValidator(DefaultRules())

	ok, reason := v.AcceptPoint(model.MeasurementPoint{Timestamp: 1, ResponseTime: 100})
	if !ok || reason != RejectNone {
		t.Errorf("valid point rejected: %v", reason)
	}

	ok, reason = v.AcceptPoint(model.MeasurementPoint{Timestamp: 0})
	if ok || reason != RejectTimestamp {
		t.Errorf("zero timestamp accepted")
	}

	ok, reason = v.AcceptPoint(model.MeasurementPoint{Timestamp: 1, ResponseTime: -1})
	if ok || reason != RejectResponseTime {
		t.Errorf("out-of-domain responseTime accepted")
	}
}
