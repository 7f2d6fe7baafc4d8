// Package flows holds one orchestrator per Engine operation.
//
// Each Run function takes a typed dependency struct of funcs and
// collaborators, plus the metric IDs, audit event names and public error
// values it should emit. The root engine builds these once; tests build
// them by hand with fakes.
//
// Every account write goes through the store's Update closure, so the
// conditions a flow checks (token still listed, reset token still valid,
// account not locked) are re-evaluated against the committed record.
//
// Flows never import the root package and hold no state between calls.
package flows
