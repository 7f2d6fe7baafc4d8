// Package prometheus exposes nickauth engine counters as a
// prometheus.Collector.
//
// [NewExporter] reads Engine.MetricsSnapshot on every scrape. Counter
// names are nickauth_*_total; the Authenticate latency histogram is
// nickauth_authenticate_latency_seconds. [Exporter.Handler] serves a
// private registry, so nothing is registered globally.
package prometheus
