// Package prometheus renders goVerify engine metrics in Prometheus text
// exposition format.
//
// [NewPrometheusExporter] accepts a [goVerify.Engine] and exposes an
// [http.Handler]. Counters are named goverify_*_total; the single histogram
// is goverify_gateway_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry; callers mount the Handler.
//   - Mutate engine state.
package prometheus
