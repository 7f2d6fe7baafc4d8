package prometheus

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrEthical07/nickauth"
	"github.com/MrEthical07/nickauth/metrics/export/internaldefs"
)

type metricsSource interface {
	MetricsSnapshot() nickauth.MetricsSnapshot
	AuditDropped() uint64
}

// Exporter is a prometheus.Collector over the engine counters. Each scrape
// reads one snapshot.
type Exporter struct {
	source     metricsSource
	counters   []*prometheus.Desc
	histograms []*prometheus.Desc
	dropped    *prometheus.Desc
}

// NewExporter reads from engine.
func NewExporter(engine *nickauth.Engine) *Exporter {
	return NewExporterFromSource(engine)
}

func NewExporterFromSource(source metricsSource) *Exporter {
	e := &Exporter{
		source:  source,
		dropped: prometheus.NewDesc(internaldefs.AuditDroppedName, "Audit events dropped because the buffer was full.", nil, nil),
	}
	for _, def := range internaldefs.CounterDefs {
		e.counters = append(e.counters, prometheus.NewDesc(def.Name, def.Help, nil, nil))
	}
	for _, def := range internaldefs.HistogramDefs {
		e.histograms = append(e.histograms, prometheus.NewDesc(def.Name, def.Help, nil, nil))
	}
	return e
}

func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range e.counters {
		ch <- d
	}
	for _, d := range e.histograms {
		ch <- d
	}
	ch <- e.dropped
}

func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	if e.source == nil {
		return
	}
	snapshot := e.source.MetricsSnapshot()

	for i, def := range internaldefs.CounterDefs {
		ch <- prometheus.MustNewConstMetric(e.counters[i], prometheus.CounterValue, float64(snapshot.Counters[def.ID]))
	}

	for i, def := range internaldefs.HistogramDefs {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[def.ID]))
		buckets := make(map[float64]uint64, len(internaldefs.HistogramUpperBounds))
		for j, le := range internaldefs.HistogramUpperBounds {
			buckets[le] = cumulative[j]
		}
		// Snapshots keep bucket counts only, so the sum is reported as zero.
		ch <- prometheus.MustNewConstHistogram(e.histograms[i], cumulative[len(cumulative)-1], 0, buckets)
	}

	ch <- prometheus.MustNewConstMetric(e.dropped, prometheus.CounterValue, float64(e.source.AuditDropped()))
}

// Handler serves the exporter from a private registry, alongside Go
// runtime and process collectors.
func (e *Exporter) Handler() http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		e,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
