package metrics

import (
	"sync/atomic"
	"time"
)

// BucketCount is the number of latency buckets: ≤5ms, ≤10ms, ≤25ms, ≤50ms,
// ≤100ms, ≤250ms, ≤500ms, +Inf.
const BucketCount = 8

const cacheLineSize = 64

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

type histogram struct {
	buckets [BucketCount]uint64
}

// Set is a fixed-size group of counters and histograms addressed by index.
// A nil or disabled Set ignores writes.
type Set struct {
	enabled  bool
	latency  bool
	counters []paddedCounter
	hists    []histogram
}

// New allocates size counter slots and size histogram slots.
func New(size int, enabled, latency bool) *Set {
	if size < 0 {
		size = 0
	}
	return &Set{
		enabled:  enabled,
		latency:  enabled && latency,
		counters: make([]paddedCounter, size),
		hists:    make([]histogram, size),
	}
}

func (s *Set) Enabled() bool {
	return s != nil && s.enabled
}

func (s *Set) LatencyEnabled() bool {
	return s != nil && s.latency
}

func (s *Set) Inc(id int) {
	if !s.Enabled() || id < 0 || id >= len(s.counters) {
		return
	}
	atomic.AddUint64(&s.counters[id].value, 1)
}

func (s *Set) Observe(id int, d time.Duration) {
	if !s.LatencyEnabled() || id < 0 || id >= len(s.hists) {
		return
	}
	atomic.AddUint64(&s.hists[id].buckets[BucketIndex(d)], 1)
}

func (s *Set) Value(id int) uint64 {
	if s == nil || id < 0 || id >= len(s.counters) {
		return 0
	}
	return atomic.LoadUint64(&s.counters[id].value)
}

// Buckets returns a copy of the non-cumulative bucket counts for id.
func (s *Set) Buckets(id int) []uint64 {
	out := make([]uint64, BucketCount)
	if s == nil || id < 0 || id >= len(s.hists) {
		return out
	}
	for i := range out {
		out[i] = atomic.LoadUint64(&s.hists[id].buckets[i])
	}
	return out
}

// BucketIndex maps a duration onto its histogram bucket.
func BucketIndex(d time.Duration) int {
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
