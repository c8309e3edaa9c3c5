package pipeline

import (
	"errors"
	"sync"
	"time"

	"github.com/loadpulse/loadpulse/pkg/model"
)

// ErrPollFailed is reported in BatchResult.Errors when a poll-response
// envelope carries success=false; whatever data it holds is still processed.
var ErrPollFailed = errors.New("poll response reported failure")

// BatchResult is what one pipeline invocation produced. Degraded inputs are
// reported in Errors instead of being thrown; Rejected counts records the
// validator dropped.
type BatchResult struct {
	Points   []model.MeasurementPoint `json:"points"`
	Metrics  *model.AggregateMetrics  `json:"metrics,omitempty"`
	Rejected int                      `json:"rejected"`
	Errors   []error                  `json:"-"`
}

// Stats is a snapshot of pipeline-lifetime counters.
type Stats struct {
	PointsAccepted   uint64                  `json:"points_accepted"`
	PointsRejected   uint64                  `json:"points_rejected"`
	MetricsAccepted  uint64                  `json:"metrics_accepted"`
	MetricsRejected  uint64                  `json:"metrics_rejected"`
	RejectedByReason map[RejectReason]uint64 `json:"rejected_by_reason"`
}

// Pipeline runs normalize -> validate -> clean over raw producer envelopes.
// Safe for concurrent use: the socket, poll, and worker producers all invoke
// it from their own goroutines.
type Pipeline struct {
	mu         sync.RWMutex
	normalizer *Normalizer
	validator  *Validator
	cleaning   CleaningOptions

	pointsAccepted  uint64
	pointsRejected  uint64
	metricsAccepted uint64
	metricsRejected uint64
	rejectedBy      map[RejectReason]uint64
}

// New returns a Pipeline bound to the given rules and cleaning options.
func New(rules ValidationRules, cleaning CleaningOptions) *Pipeline {
	return &Pipeline{
		normalizer: NewNormalizer(rules),
		validator:  NewValidator(rules),
		cleaning:   cleaning,
		rejectedBy: make(map[RejectReason]uint64),
	}
}

// Reconfigure swaps the validation rules and cleaning options. In-flight
// batches finish under the configuration they started with.
func (p *Pipeline) Reconfigure(rules ValidationRules, cleaning CleaningOptions) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.normalizer = NewNormalizer(rules)
	p.validator = NewValidator(rules)
	p.cleaning = cleaning
}

// ProcessPush handles one push-channel envelope.
func (p *Pipeline) ProcessPush(env PushEnvelope, now time.Time) BatchResult {
	var raws []RawPoint
	if env.DataPoint != nil {
		raws = []RawPoint{*env.DataPoint}
	}
	return p.process(raws, env.Metrics, now, nil)
}

// ProcessPoll handles one poll-response envelope. A success=false envelope
// still has its payload processed, with ErrPollFailed recorded.
func (p *Pipeline) ProcessPoll(env PollEnvelope, now time.Time) BatchResult {
	var errs []error
	if !env.Success {
		errs = append(errs, ErrPollFailed)
	}
	if env.Data == nil {
		return p.process(nil, nil, now, errs)
	}
	return p.process(env.Data.RealTimeData, env.Data.RealTimeMetrics, now, errs)
}

// ProcessWorker handles one worker-status envelope.
func (p *Pipeline) ProcessWorker(env WorkerEnvelope, now time.Time) BatchResult {
	return p.process(env.RealTimeData, env.Metrics, now, nil)
}

func (p *Pipeline) process(raws []RawPoint, rawMetrics *RawMetrics, now time.Time, errs []error) BatchResult {
	p.mu.Lock()
	normalizer, validator, cleaning := p.normalizer, p.validator, p.cleaning

	accepted := make([]model.MeasurementPoint, 0, len(raws))
	rejected := 0
	for _, raw := range raws {
		point := normalizer.Point(raw, now)
		ok, reason := validator.AcceptPoint(point)
		if !ok {
			rejected++
			p.pointsRejected++
			p.rejectedBy[reason]++
			continue
		}
		p.pointsAccepted++
		accepted = append(accepted, point)
	}

	var metrics *model.AggregateMetrics
	if rawMetrics != nil {
		m := normalizer.Metrics(*rawMetrics, now)
		if ok, reason := validator.AcceptMetrics(m); ok {
			p.metricsAccepted++
			metrics = &m
		} else {
			rejected++
			p.metricsRejected++
			p.rejectedBy[reason]++
		}
	}
	p.mu.Unlock()

	return BatchResult{
		Points:   Clean(accepted, cleaning),
		Metrics:  metrics,
		Rejected: rejected,
		Errors:   errs,
	}
}

// Stats returns a snapshot of the lifetime accept/reject counters.
func (p *Pipeline) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	byReason := make(map[RejectReason]uint64, len(p.rejectedBy))
	for k, v := range p.rejectedBy {
		byReason[k] = v
	}
	return Stats{
		PointsAccepted:   p.pointsAccepted,
		PointsRejected:   p.pointsRejected,
		MetricsAccepted:  p.metricsAccepted,
		MetricsRejected:  p.metricsRejected,
		RejectedByReason: byReason,
	}
}
