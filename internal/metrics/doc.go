// Package metrics stores lock-free counters and latency histograms.
//
// Counters sit in cache-line-padded uint64 slots and are bumped with
// sync/atomic; histograms use eight fixed buckets. The write path does not
// allocate. Exporters in metrics/export read snapshots through the root
// package and never touch this storage directly.
package metrics
