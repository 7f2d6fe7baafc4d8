// Package nickauth provides nickname-first account authentication: a
// nickname check that tells the client whether to log in or register,
// password login with account lockout, short-lived JWT access tokens and
// rotating refresh tokens with reuse detection, and email-based password
// reset.
//
// Engine methods are safe to call from multiple goroutines after
// [Builder.Build].
//
// # Architecture boundaries
//
// nickauth is the public surface: [Engine], [Builder], [Config], the
// [Error] taxonomy and value types. Flow orchestration, rate limiting,
// audit dispatch and counters live under internal/. Persistence is behind
// [store.Store]; the Redis and Postgres backends live in store/redis and
// store/postgres. The HTTP surface is package httpapi and the request gate
// is package middleware.
//
// Every write to a user record goes through store.Store.Update, which
// applies a mutation closure atomically. Lockout counters and refresh token
// lists are therefore never lost under concurrent requests.
//
// # What this package must NOT do
//
//   - Return plaintext passwords, password hashes or stored token hashes to
//     callers; profiles go out as [PublicProfile].
//   - Log refresh tokens, reset tokens or passwords.
//   - Import httpapi or middleware.
package nickauth
