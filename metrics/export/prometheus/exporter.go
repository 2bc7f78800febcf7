package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	goRecovery "github.com/MrEthical07/goRecovery"
	"github.com/MrEthical07/goRecovery/metrics/export/internaldefs"
)

type metricsSource interface {
	MetricsSnapshot() goRecovery.MetricsSnapshot
	AuditDroppedByEvent() map[string]uint64
}

// PrometheusExporter renders recovery engine metrics in Prometheus text
// exposition format.
type PrometheusExporter struct {
	source metricsSource
}

func NewPrometheusExporter(engine *goRecovery.Engine) *PrometheusExporter {
	return &PrometheusExporter{source: engine}
}

// NewPrometheusExporterFromSource reads from anything exposing a snapshot
// and audit drop counts.
func NewPrometheusExporterFromSource(source metricsSource) *PrometheusExporter {
	return &PrometheusExporter{source: source}
}

// Handler serves Render on every request.
func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render returns the exposition text, or "" while metrics are disabled and
// nothing was dropped.
//
//	Families: one counter per flow step, gorecovery_channel_deliveries_total
//	labelled by channel/message/result, the handle latency histogram and
//	audit drops labelled by event.
func (p *PrometheusExporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snap := p.source.MetricsSnapshot()
	dropped := p.source.AuditDroppedByEvent()
	if len(snap.Counters) == 0 && len(snap.Histograms) == 0 && len(snap.Channels) == 0 && len(dropped) == 0 {
		return ""
	}

	w := &textWriter{}
	for _, def := range internaldefs.FlowCounters {
		w.family(def.Name, def.Help, "counter")
		w.sample(def.Name, nil, strconv.FormatUint(snap.Counters[def.ID], 10))
	}

	w.family(internaldefs.DeliveriesName, internaldefs.DeliveriesHelp, "counter")
	for _, ch := range internaldefs.SortedKeys(snap.Channels) {
		counts := snap.Channels[ch]
		for _, d := range internaldefs.Deliveries {
			w.sample(internaldefs.DeliveriesName,
				[]string{"channel", ch, "message", d.Message, "result", d.Result},
				strconv.FormatUint(d.Value(counts), 10))
		}
	}

	if raw, ok := snap.Histograms[goRecovery.MetricHandleLatency]; ok {
		cumulative := internaldefs.CumulativeBuckets(raw)
		w.family(internaldefs.LatencyName, internaldefs.LatencyHelp, "histogram")
		for i, le := range internaldefs.LatencyLabels {
			w.sample(internaldefs.LatencyName+"_bucket", []string{"le", le}, strconv.FormatUint(cumulative[i], 10))
		}
		w.sample(internaldefs.LatencyName+"_sum", nil, strconv.FormatFloat(snap.HandleLatencySum.Seconds(), 'g', -1, 64))
		w.sample(internaldefs.LatencyName+"_count", nil, strconv.FormatUint(cumulative[len(cumulative)-1], 10))
	}

	w.family(internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, "counter")
	for _, event := range internaldefs.SortedKeys(dropped) {
		w.sample(internaldefs.AuditDroppedName, []string{"event", event}, strconv.FormatUint(dropped[event], 10))
	}

	return w.b.String()
}

type textWriter struct {
	b strings.Builder
}

func (w *textWriter) family(name, help, kind string) {
	w.b.WriteString("# HELP " + name + " " + escapeHelp(help) + "\n")
	w.b.WriteString("# TYPE " + name + " " + kind + "\n")
}

// sample writes one line; labels alternate name and value.
func (w *textWriter) sample(name string, labels []string, value string) {
	w.b.WriteString(name)
	if len(labels) > 0 {
		w.b.WriteByte('{')
		for i := 0; i+1 < len(labels); i += 2 {
			if i > 0 {
				w.b.WriteByte(',')
			}
			w.b.WriteString(labels[i])
			w.b.WriteString(`="`)
			w.b.WriteString(escapeLabel(labels[i+1]))
			w.b.WriteByte('"')
		}
		w.b.WriteByte('}')
	}
	w.b.WriteByte(' ')
	w.b.WriteString(value)
	w.b.WriteByte('\n')
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, `\`, `\\`)
	return strings.ReplaceAll(help, "\n", `\n`)
}

func escapeLabel(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return strings.ReplaceAll(v, "\n", `\n`)
}
