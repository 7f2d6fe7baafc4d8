package otel

import (
	"context"
	"sync"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrEthical07/nickauth"
	"github.com/MrEthical07/nickauth/metrics/export/internaldefs"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot nickauth.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() nickauth.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := nickauth.MetricsSnapshot{
		Counters:   make(map[nickauth.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[nickauth.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		out.Histograms[k] = append([]uint64(nil), buckets...)
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newReader(t *testing.T, src metricsSource) *sdkmetric.ManualReader {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	exp, err := NewExporterFromSource(provider.Meter("nickauth-test"), src)
	if err != nil {
		t.Fatalf("NewExporterFromSource failed: %v", err)
	}
	t.Cleanup(func() {
		if err := exp.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
	return reader
}

// point returns the value of the data point of name whose key attribute
// equals value. An empty key matches the first point.
func point(t *testing.T, rm metricdata.ResourceMetrics, name string, key attribute.Key, value string) int64 {
	t.Helper()
	match := func(set attribute.Set) bool {
		if key == "" {
			return true
		}
		v, ok := set.Value(key)
		return ok && v.AsString() == value
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					if match(dp.Attributes) {
						return dp.Value
					}
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					if match(dp.Attributes) {
						return dp.Value
					}
				}
			}
		}
	}
	t.Fatalf("no point %s{%s=%q}", name, key, value)
	return 0
}

func TestExporterRegistersAndCollects(t *testing.T) {
	src := &fakeSource{
		snapshot: nickauth.MetricsSnapshot{
			Counters: map[nickauth.MetricID]uint64{
				nickauth.MetricLoginSuccess:         3,
				nickauth.MetricLoginLocked:          2,
				nickauth.MetricRefreshReuseDetected: 1,
			},
			Histograms: map[nickauth.MetricID][]uint64{
				nickauth.MetricAuthenticateLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: 1,
	}
	reader := newReader(t, src)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	if got := point(t, rm, "nickauth.login", OutcomeKey, "success"); got != 3 {
		t.Fatalf("expected login success 3, got %d", got)
	}
	if got := point(t, rm, "nickauth.login", OutcomeKey, "locked"); got != 2 {
		t.Fatalf("expected login locked 2, got %d", got)
	}
	if got := point(t, rm, "nickauth.login", OutcomeKey, "invalid_credentials"); got != 0 {
		t.Fatalf("expected login failure 0, got %d", got)
	}
	if got := point(t, rm, "nickauth.refresh", OutcomeKey, "reuse_detected"); got != 1 {
		t.Fatalf("expected reuse 1, got %d", got)
	}

	bucket := internaldefs.HistogramDefs[0].Name + "_bucket"
	if got := point(t, rm, bucket, "le", "0.005"); got != 1 {
		t.Fatalf("expected first bucket 1, got %d", got)
	}
	if got := point(t, rm, bucket, "le", "+Inf"); got != 8 {
		t.Fatalf("expected +Inf bucket 8, got %d", got)
	}
	if got := point(t, rm, internaldefs.HistogramDefs[0].Name+"_count", "", ""); got != 8 {
		t.Fatalf("expected count 8, got %d", got)
	}
	if got := point(t, rm, internaldefs.AuditDroppedName, "", ""); got != 1 {
		t.Fatalf("expected audit dropped 1, got %d", got)
	}
}

func TestFamiliesCoverEveryCounterOnce(t *testing.T) {
	seen := map[nickauth.MetricID]int{}
	for _, f := range families {
		for _, o := range f.outcomes {
			seen[o.id]++
		}
	}
	for _, def := range internaldefs.CounterDefs {
		if seen[def.ID] != 1 {
			t.Fatalf("%s mapped %d times", def.Name, seen[def.ID])
		}
	}
	if len(seen) != len(internaldefs.CounterDefs) {
		t.Fatalf("expected %d mapped counters, got %d", len(internaldefs.CounterDefs), len(seen))
	}
}

func TestExporterRejectsNilInputs(t *testing.T) {
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))

	if _, err := NewExporterFromSource(provider.Meter("nickauth-test"), nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
	if _, err := NewExporterFromSource(nil, &fakeSource{}); err != ErrNilMeter {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
	if _, err := NewExporter(provider.Meter("nickauth-test"), nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	src := &fakeSource{
		snapshot: nickauth.MetricsSnapshot{
			Counters: map[nickauth.MetricID]uint64{nickauth.MetricLoginSuccess: 1},
			Histograms: map[nickauth.MetricID][]uint64{
				nickauth.MetricAuthenticateLatency: {1, 0, 0, 0, 0, 0, 0, 0},
			},
		},
	}
	reader := newReader(t, src)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[nickauth.MetricLoginSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
