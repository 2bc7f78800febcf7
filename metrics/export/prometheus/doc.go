// Package prometheus renders recovery engine metrics in Prometheus text
// exposition format.
//
// [NewPrometheusExporter] accepts a [goRecovery.Engine] and exposes an
// [http.Handler]. Flow counters are named gorecovery_*_total. Channel
// deliveries share gorecovery_channel_deliveries_total with channel, message
// and result labels, audit drops carry an event label, and handle latency is
// the gorecovery_handle_latency_seconds histogram.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry. Callers mount the Handler.
//   - Mutate engine state.
package prometheus
