/*
Package pipeline turns heterogeneous raw telemetry payloads from a load-test
platform into canonical, chart-ready measurement records.

Three producer shapes feed the pipeline:

  - push-channel envelopes streamed over a socket
  - poll-response envelopes returned by periodic status polls
  - worker-status envelopes emitted by an in-process load worker

Each entry point runs the same stages in order:

	raw envelope -> Normalizer -> Validator -> Cleaner -> []model.MeasurementPoint

The Normalizer never fails: malformed or missing fields coerce to zero/safe
values, stale timestamps are re-stamped, free-text phase labels map onto the
fixed enum, and every numeric field is clamped to its configured domain. The
Validator re-checks domains after normalization; a failure there indicates a
construction bug upstream, so rejected records are counted per reason (see
Pipeline.Stats) rather than dropped without a trace. The Cleaner applies
whole-batch outlier removal, moving-window smoothing, and one-hop forward
fill of missing values.

The pipeline never panics across its boundary. Degraded inputs are reported
in BatchResult.Errors so a caller can distinguish "no data" from "data
rejected".

Outlier statistics are recomputed per batch. That is correct for the bounded,
already-buffered batches this pipeline receives; a true streaming caller
would need a windowed estimator instead.
*/
package pipeline
