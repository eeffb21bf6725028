package perch

import (
	"sync/atomic"
	"time"
)

// MetricID indexes one in-process counter or histogram.
type MetricID uint16

const (
	// MetricLoginSuccess counts attempts that ended in upstream success.
	MetricLoginSuccess MetricID = iota
	// MetricLoginSuspended counts attempts intercepted by a verification challenge.
	MetricLoginSuspended
	// MetricLoginFailure counts attempts that failed upstream.
	MetricLoginFailure
	// MetricUnexpectedPrompt counts attempts aborted on an unclassifiable prompt.
	MetricUnexpectedPrompt
	// MetricResumeAttempt counts Resume invocations.
	MetricResumeAttempt
	// MetricSessionCreated counts sessions inserted into the registry.
	MetricSessionCreated
	// MetricSessionRemoved counts explicit session removals.
	MetricSessionRemoved
	// MetricSessionExpired counts sessions reclaimed by lazy expiry.
	MetricSessionExpired
	// MetricLoginLatency is the upstream authenticate-call latency histogram.
	MetricLoginLatency
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

// Metrics holds lock-free counters for the driver. All methods are safe for
// concurrent use and become no-ops on a nil or disabled receiver.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter and histogram.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates the counter set described by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are being recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc adds one to the counter behind id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records one latency sample. Only MetricLoginLatency carries a
// histogram today.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricLoginLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value reads one counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter and, when latency recording is on, the login
// latency histogram.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricLoginLatency].buckets[i])
		}
		s.Histograms[MetricLoginLatency] = buckets
	}

	return s
}

// Upstream logins ride a headless browser and real network; buckets run from
// sub-second to tens of seconds rather than the milliseconds a local token
// validation would use.
func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 250:
		return 0
	case ms <= 500:
		return 1
	case ms <= 1000:
		return 2
	case ms <= 2500:
		return 3
	case ms <= 5000:
		return 4
	case ms <= 10000:
		return 5
	case ms <= 30000:
		return 6
	default:
		return 7
	}
}
