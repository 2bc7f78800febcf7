package otel

import (
	"context"
	"fmt"
	"strconv"

	goRecovery "github.com/MrEthical07/goRecovery"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// LogExporter writes each collected datapoint as one log line. It lets a
// deployment without a collector still see the instruments on a periodic
// reader. Zero values are skipped.
type LogExporter struct {
	logger goRecovery.Logger
}

var _ sdkmetric.Exporter = (*LogExporter)(nil)

// NewLogExporter returns an exporter that writes through logger. A nil
// logger discards everything.
func NewLogExporter(logger goRecovery.Logger) *LogExporter {
	return &LogExporter{logger: logger}
}

func (e *LogExporter) Temporality(k sdkmetric.InstrumentKind) metricdata.Temporality {
	return sdkmetric.DefaultTemporalitySelector(k)
}

func (e *LogExporter) Aggregation(k sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return sdkmetric.DefaultAggregationSelector(k)
}

func (e *LogExporter) Export(ctx context.Context, rm *metricdata.ResourceMetrics) error {
	if e == nil || e.logger == nil || rm == nil {
		return nil
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if err := ctx.Err(); err != nil {
				return err
			}
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					if dp.Value != 0 {
						e.line(m.Name, dp.Attributes, strconv.FormatInt(dp.Value, 10))
					}
				}
			case metricdata.Sum[float64]:
				for _, dp := range data.DataPoints {
					if dp.Value != 0 {
						e.line(m.Name, dp.Attributes, strconv.FormatFloat(dp.Value, 'g', -1, 64))
					}
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					if dp.Value != 0 {
						e.line(m.Name, dp.Attributes, strconv.FormatInt(dp.Value, 10))
					}
				}
			}
		}
	}
	return nil
}

func (e *LogExporter) line(name string, attrs attribute.Set, value string) {
	enc := attrs.Encoded(attribute.DefaultEncoder())
	if enc != "" {
		enc = "{" + enc + "}"
	}
	_ = e.logger.Output(2, fmt.Sprintf("goRecovery: metric %s%s %s", name, enc, value))
}

func (e *LogExporter) ForceFlush(context.Context) error { return nil }

func (e *LogExporter) Shutdown(context.Context) error { return nil }
