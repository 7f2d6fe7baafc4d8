package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"

	"github.com/MrEthical07/nickauth"
	"github.com/MrEthical07/nickauth/metrics/export/internaldefs"
)

type fakeSource struct {
	snapshot nickauth.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() nickauth.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                      { return f.dropped }

func sampleSource() fakeSource {
	return fakeSource{
		snapshot: nickauth.MetricsSnapshot{
			Counters: map[nickauth.MetricID]uint64{
				nickauth.MetricLoginSuccess:         7,
				nickauth.MetricRefreshReuseDetected: 2,
			},
			Histograms: map[nickauth.MetricID][]uint64{
				nickauth.MetricAuthenticateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	}
}

func gather(t *testing.T, c prometheus.Collector) map[string]*dto.MetricFamily {
	t.Helper()
	reg := prometheus.NewRegistry()
	reg.MustRegister(c)
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func TestCollectCountersAndHistogram(t *testing.T) {
	families := gather(t, NewExporterFromSource(sampleSource()))

	login := families["nickauth_login_success_total"]
	if login == nil || login.GetMetric()[0].GetCounter().GetValue() != 7 {
		t.Fatalf("expected login_success 7, got %v", login)
	}
	if got := families["nickauth_audit_dropped_total"].GetMetric()[0].GetCounter().GetValue(); got != 2 {
		t.Fatalf("expected audit dropped 2, got %v", got)
	}

	h := families["nickauth_authenticate_latency_seconds"].GetMetric()[0].GetHistogram()
	if h.GetSampleCount() != 36 {
		t.Fatalf("expected 36 samples, got %d", h.GetSampleCount())
	}
	if first := h.GetBucket()[0]; first.GetUpperBound() != 0.005 || first.GetCumulativeCount() != 1 {
		t.Fatalf("unexpected first bucket %v", first)
	}
}

func TestCollectZeroWhenDisabled(t *testing.T) {
	exp := NewExporterFromSource(fakeSource{snapshot: nickauth.MetricsSnapshot{
		Counters:   map[nickauth.MetricID]uint64{},
		Histograms: map[nickauth.MetricID][]uint64{},
	}})
	if got, want := testutil.CollectAndCount(exp), len(internaldefs.CounterDefs)+len(internaldefs.HistogramDefs)+1; got != want {
		t.Fatalf("expected %d series, got %d", want, got)
	}
	families := gather(t, exp)
	if got := families["nickauth_logout_total"].GetMetric()[0].GetCounter().GetValue(); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
}

func TestHandlerServesExposition(t *testing.T) {
	rec := httptest.NewRecorder()
	NewExporterFromSource(sampleSource()).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"nickauth_login_success_total 7",
		`nickauth_authenticate_latency_seconds_bucket{le="+Inf"} 36`,
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in output:\n%s", want, body)
		}
	}
}
