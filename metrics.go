package nickauth

import (
	"time"

	"github.com/MrEthical07/nickauth/internal/metrics"
)

// MetricID identifies one engine counter. Exporters map IDs to names.
type MetricID uint16

const (
	MetricCheckUser MetricID = iota
	MetricLoginSuccess
	MetricLoginFailure
	MetricLoginLocked
	MetricAccountLocked
	MetricAuthRateLimited
	MetricRegisterSuccess
	MetricRegisterConflict
	MetricCaptchaFailure
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricRefreshReuseDetected
	MetricLogout
	MetricPasswordResetRequest
	MetricPasswordResetRateLimited
	MetricPasswordResetConfirmSuccess
	MetricPasswordResetConfirmFailure
	MetricPasswordRehash
	MetricAuthenticateFailure
	MetricSessionsRevoked
	MetricAccountDeactivated
	MetricAccountDeleted
	MetricAuthenticateLatency
	metricIDCount
)

// Metrics holds the engine counters. The zero value and a nil *Metrics are
// both inert.
type Metrics struct {
	set *metrics.Set
}

// MetricsSnapshot is a point-in-time copy of every counter, plus the
// Authenticate latency buckets when histograms are enabled.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		set: metrics.New(int(metricIDCount), cfg.Enabled, cfg.EnableLatencyHistograms),
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.set.Enabled()
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.set.LatencyEnabled()
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil {
		return
	}
	m.set.Inc(int(id))
}

// Observe records a latency sample. Only MetricAuthenticateLatency has a
// histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || id != MetricAuthenticateLatency {
		return
	}
	m.set.Observe(int(id), d)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil {
		return 0
	}
	return m.set.Value(int(id))
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
	if !m.Enabled() {
		return s
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricAuthenticateLatency {
			continue
		}
		s.Counters[id] = m.set.Value(int(id))
	}
	if m.LatencyEnabled() {
		s.Histograms[MetricAuthenticateLatency] = m.set.Buckets(int(MetricAuthenticateLatency))
	}
	return s
}

// incFunc adapts Inc to the int-indexed counters used by the flow functions.
func (m *Metrics) incFunc() func(int) {
	return func(id int) { m.Inc(MetricID(id)) }
}
