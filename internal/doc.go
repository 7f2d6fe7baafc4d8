// Package internal contains helpers private to nickauth: random token
// generation and token hashing.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - bootstrap: store, captcha and mailer selection for the binaries
//   - config: environment and .env loading for the binaries
//   - flows: flow orchestrators for every Engine operation
//   - httpx: JSON response envelope shared by middleware and httpapi
//   - limiters: lockout policy and per-IP request limiters
//   - logging: zap logger construction
//   - metrics: lock-free counters and latency histograms
//   - rate: Redis fixed-window counter
//
// # What this package must NOT do
//
//   - Export types that appear in the public nickauth API.
package internal
