// Package prometheus renders otpflow metrics in Prometheus text exposition format.
//
// [NewPrometheusExporter] accepts an [otpflow.Engine] and exposes an [http.Handler]
// that renders all otpflow counters and histograms. Counter names are prefixed
// otpflow_*_total; the single histogram is otpflow_verify_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry — callers mount the Handler.
//   - Mutate engine state.
package prometheus
