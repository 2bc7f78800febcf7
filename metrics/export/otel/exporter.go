package otel

import (
	"context"
	"errors"
	"fmt"

	goRecovery "github.com/MrEthical07/goRecovery"
	"github.com/MrEthical07/goRecovery/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// Instrument names. Flow counters share one instrument keyed by the event
// attribute instead of one instrument per counter.
const (
	FlowEventsName   = "gorecovery.flow.events"
	DeliveriesName   = "gorecovery.channel.deliveries"
	LatencyBucket    = "gorecovery.handle.latency.bucket"
	LatencyCount     = "gorecovery.handle.latency.count"
	LatencySum       = "gorecovery.handle.latency.sum"
	AuditDroppedName = "gorecovery.audit.dropped"
)

type metricsSource interface {
	MetricsSnapshot() goRecovery.MetricsSnapshot
	AuditDroppedByEvent() map[string]uint64
}

// OTelExporter observes the engine once per collection cycle.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration

	flowEvents   metric.Int64ObservableCounter
	deliveries   metric.Int64ObservableCounter
	latencyBkt   metric.Int64ObservableGauge
	latencyCount metric.Int64ObservableCounter
	latencySum   metric.Float64ObservableCounter
	auditDropped metric.Int64ObservableCounter

	// attribute sets are built once; the callback only looks them up.
	eventAttrs  []metric.ObserveOption
	bucketAttrs [8]metric.ObserveOption
}

func NewOTelExporter(meter metric.Meter, engine *goRecovery.Engine) (*OTelExporter, error) {
	return NewOTelExporterFromSource(meter, engine)
}

func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{source: source}
	var err error

	if e.flowEvents, err = meter.Int64ObservableCounter(FlowEventsName,
		metric.WithDescription("Recovery flow decisions, by event.")); err != nil {
		return nil, fmt.Errorf("create %s: %w", FlowEventsName, err)
	}
	if e.deliveries, err = meter.Int64ObservableCounter(DeliveriesName,
		metric.WithDescription(internaldefs.DeliveriesHelp)); err != nil {
		return nil, fmt.Errorf("create %s: %w", DeliveriesName, err)
	}
	if e.latencyBkt, err = meter.Int64ObservableGauge(LatencyBucket,
		metric.WithDescription("Cumulative handle latency bucket count, by upper bound."), metric.WithUnit("{request}")); err != nil {
		return nil, fmt.Errorf("create %s: %w", LatencyBucket, err)
	}
	if e.latencyCount, err = meter.Int64ObservableCounter(LatencyCount,
		metric.WithDescription("Handled requests with a latency sample."), metric.WithUnit("{request}")); err != nil {
		return nil, fmt.Errorf("create %s: %w", LatencyCount, err)
	}
	if e.latencySum, err = meter.Float64ObservableCounter(LatencySum,
		metric.WithDescription(internaldefs.LatencyHelp), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("create %s: %w", LatencySum, err)
	}
	if e.auditDropped, err = meter.Int64ObservableCounter(AuditDroppedName,
		metric.WithDescription(internaldefs.AuditDroppedHelp)); err != nil {
		return nil, fmt.Errorf("create %s: %w", AuditDroppedName, err)
	}

	e.eventAttrs = make([]metric.ObserveOption, len(internaldefs.FlowCounters))
	for i, def := range internaldefs.FlowCounters {
		e.eventAttrs[i] = metric.WithAttributes(attribute.String("event", def.Event))
	}
	for i, le := range internaldefs.LatencyLabels {
		e.bucketAttrs[i] = metric.WithAttributes(attribute.String("le", le))
	}

	e.registration, err = meter.RegisterCallback(e.observe,
		e.flowEvents, e.deliveries, e.latencyBkt, e.latencyCount, e.latencySum, e.auditDropped)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()

	for i, def := range internaldefs.FlowCounters {
		o.ObserveInt64(e.flowEvents, int64(snap.Counters[def.ID]), e.eventAttrs[i])
	}

	for ch, counts := range snap.Channels {
		for _, d := range internaldefs.Deliveries {
			o.ObserveInt64(e.deliveries, int64(d.Value(counts)), metric.WithAttributes(
				attribute.String("channel", ch),
				attribute.String("message", d.Message),
				attribute.String("result", d.Result),
			))
		}
	}

	if raw, ok := snap.Histograms[goRecovery.MetricHandleLatency]; ok {
		cumulative := internaldefs.CumulativeBuckets(raw)
		for i := range cumulative {
			o.ObserveInt64(e.latencyBkt, int64(cumulative[i]), e.bucketAttrs[i])
		}
		o.ObserveInt64(e.latencyCount, int64(cumulative[len(cumulative)-1]))
		o.ObserveFloat64(e.latencySum, snap.HandleLatencySum.Seconds())
	}

	for event, n := range e.source.AuditDroppedByEvent() {
		o.ObserveInt64(e.auditDropped, int64(n), metric.WithAttributes(attribute.String("event", event)))
	}
	return nil
}

// Close unregisters the callback; the instruments stay with the meter.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
