package otpflow

import (
	"sync/atomic"
	"time"
)

// MetricID identifies a specific counter or histogram in the in-process
// metrics system.
type MetricID uint16

const (
	// MetricCodeRequested counts accepted code requests.
	MetricCodeRequested MetricID = iota
	// MetricCodeDenied counts invite-only denials on request or resend.
	MetricCodeDenied
	// MetricVerifySuccess counts successful verifications.
	MetricVerifySuccess
	// MetricVerifyFailure counts rejected verifications.
	MetricVerifyFailure
	// MetricResendSuccess counts accepted resends.
	MetricResendSuccess
	// MetricChallengeSuperseded counts challenges replaced by a newer
	// request for the same email.
	MetricChallengeSuperseded
	// MetricChallengeBusy counts verify/resend collisions.
	MetricChallengeBusy
	// MetricRateLimitHit counts throttle rejections.
	MetricRateLimitHit
	// MetricSessionCreated counts established sessions.
	MetricSessionCreated
	// MetricSessionRevoked counts sign-outs and invalidations.
	MetricSessionRevoked
	// MetricGuardDeny counts guard rejections of protected-area entry.
	MetricGuardDeny
	// MetricProfileLoad counts profile loads that applied store data.
	MetricProfileLoad
	// MetricProfileLoadEmpty counts loads for identities with no row.
	MetricProfileLoadEmpty
	// MetricProfileLoadFailed counts degraded loads.
	MetricProfileLoadFailed
	// MetricProfileLoadSuppressed counts loads skipped because the
	// identity id was unchanged.
	MetricProfileLoadSuppressed
	// MetricProfileCommitSuccess counts successful upserts.
	MetricProfileCommitSuccess
	// MetricProfileCommitFailed counts failed upserts.
	MetricProfileCommitFailed
	// MetricProfileCommitBusy counts commits rejected while one was in
	// flight.
	MetricProfileCommitBusy
	// MetricVerifyLatency is the verify-path latency histogram.
	MetricVerifyLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

// Histogram bucket upper bounds: ≤5ms, ≤10ms, ≤25ms, ≤50ms, ≤100ms,
// ≤250ms, ≤500ms, +Inf.
var histBucketBounds = [histBucketCount - 1]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free atomic counters and an optional latency
// histogram. All operations are no-ops when disabled.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time deep copy of all metrics.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates a [Metrics] instance configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recording.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the latency histogram is recording.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc atomically increments the counter for id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records a duration into the verify-latency histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricVerifyLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current counter value for id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot returns a consistent-enough copy of all counters and
// histograms for export.
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
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricVerifyLatency].buckets[i])
		}
		s.Histograms[MetricVerifyLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	for i, bound := range histBucketBounds {
		if d <= bound {
			return i
		}
	}
	return histBucketCount - 1
}
