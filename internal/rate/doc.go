// Package rate provides the Redis fixed-window counter used by the
// request limiters in internal/limiters.
//
// # Window semantics
//
// INCR + conditional EXPIRE on first hit. Callers choose between counting
// every request ([Window.Allow]) or only failures ([Window.Check] before the
// operation, [Window.Hit] after a failure).
//
// # What this package must NOT do
//
//   - Implement domain-specific policies (those live in internal/limiters).
//   - Be imported outside the nickauth module.
package rate
