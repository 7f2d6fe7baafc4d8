// Package otel binds nickauth engine counters to OpenTelemetry observable
// instruments.
//
// Each auth flow is one Int64ObservableCounter split by the "outcome"
// attribute (nickauth.login{outcome="locked"}), so dashboards can stack a
// flow without joining series. The Authenticate latency histogram is a
// cumulative gauge keyed by "le". A single callback reads
// Engine.MetricsSnapshot on each collection. Callers own the Meter and its
// provider.
package otel
