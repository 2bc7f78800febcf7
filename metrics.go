package goRecovery

import (
	"sync/atomic"
	"time"
)

// MetricID indexes an engine counter. Values are stable for the lifetime of
// the process and are exported by the metrics/export packages.
type MetricID uint16

const (
	MetricRecoveryRequest MetricID = iota
	MetricRecoverySent
	MetricChannelFailure
	MetricAllChannelsFailed
	MetricRateLimited
	MetricCodeInvalid
	MetricCodeOutOfTries
	MetricHashInvalid
	MetricPasswordSet
	MetricPasswordGenerated
	MetricBanned
	MetricContactNotFound
	MetricNotFound
	MetricHandleLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// DeliveryKind tells which message a channel delivered.
type DeliveryKind uint8

const (
	// DeliveryRecovery is the recovery link or confirmation code.
	DeliveryRecovery DeliveryKind = iota
	// DeliveryPassword is a generated password.
	DeliveryPassword
)

// ChannelDeliveries counts delivery attempts through one channel.
type ChannelDeliveries struct {
	RecoverySent   uint64
	RecoveryFailed uint64
	PasswordSent   uint64
	PasswordFailed uint64
}

type channelCounters struct {
	recoverySent   paddedCounter
	recoveryFailed paddedCounter
	passwordSent   paddedCounter
	passwordFailed paddedCounter
}

func (c *channelCounters) slot(kind DeliveryKind, delivered bool) *uint64 {
	switch {
	case kind == DeliveryPassword && delivered:
		return &c.passwordSent.value
	case kind == DeliveryPassword:
		return &c.passwordFailed.value
	case delivered:
		return &c.recoverySent.value
	default:
		return &c.recoveryFailed.value
	}
}

// Metrics holds lock-free counters, per-channel delivery counters and the
// Handle latency histogram. A nil or disabled Metrics ignores every update.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
	latencySum    paddedCounter // nanoseconds

	// channels is fixed at construction and only read afterwards.
	channels map[string]*channelCounters
}

// MetricsSnapshot is a point-in-time copy of all counters and histograms.
// Channels is keyed by channel type; HandleLatencySum is the total time
// spent in Handle across every histogram observation.
type MetricsSnapshot struct {
	Counters         map[MetricID]uint64
	Histograms       map[MetricID][]uint64
	Channels         map[string]ChannelDeliveries
	HandleLatencySum time.Duration
}

// NewMetrics returns counters configured by cfg, with delivery counters for
// each of channelTypes.
func NewMetrics(cfg MetricsConfig, channelTypes ...string) *Metrics {
	m := &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
		channels:      make(map[string]*channelCounters, len(channelTypes)),
	}
	for _, t := range channelTypes {
		if _, ok := m.channels[t]; !ok {
			m.channels[t] = &channelCounters{}
		}
	}
	return m
}

// ObserveDelivery counts one delivery attempt through channelType. Channels
// the Metrics was not built with are ignored.
func (m *Metrics) ObserveDelivery(channelType string, kind DeliveryKind, delivered bool) {
	if m == nil || !m.enabled {
		return
	}
	c, ok := m.channels[channelType]
	if !ok {
		return
	}
	atomic.AddUint64(c.slot(kind, delivered), 1)
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to the counter for id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the histogram for id. Only MetricHandleLatency has a
// histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricHandleLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
	if d > 0 {
		atomic.AddUint64(&m.latencySum.value, uint64(d))
	}
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

func emptySnapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
		Channels:   map[string]ChannelDeliveries{},
	}
}

// Snapshot copies every counter, the per-channel deliveries and the latency
// histogram when enabled.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return emptySnapshot()
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
		Channels:   make(map[string]ChannelDeliveries, len(m.channels)),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	for t, c := range m.channels {
		s.Channels[t] = ChannelDeliveries{
			RecoverySent:   atomic.LoadUint64(&c.recoverySent.value),
			RecoveryFailed: atomic.LoadUint64(&c.recoveryFailed.value),
			PasswordSent:   atomic.LoadUint64(&c.passwordSent.value),
			PasswordFailed: atomic.LoadUint64(&c.passwordFailed.value),
		}
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricHandleLatency].buckets[i])
		}
		s.Histograms[MetricHandleLatency] = buckets
		s.HandleLatencySum = time.Duration(atomic.LoadUint64(&m.latencySum.value))
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
