// Package otel binds recovery engine metrics to OpenTelemetry observable
// instruments.
//
// [NewOTelExporter] registers one callback that reads
// [goRecovery.Engine.MetricsSnapshot] on each collection cycle and reports:
//
//	gorecovery.flow.events          counter, attribute event
//	gorecovery.channel.deliveries   counter, attributes channel, message, result
//	gorecovery.handle.latency.*     bucket gauge (le), count and sum in seconds
//	gorecovery.audit.dropped        counter, attribute event
//
// [LogExporter] is an sdk metric exporter that writes datapoints through a
// [goRecovery.Logger], for deployments without a collector.
//
// # What this package must NOT do
//
//   - Own the OTel MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
