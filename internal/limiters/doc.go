// Package limiters holds the request and account throttling policies.
//
//   - [LockoutPolicy] locks an account after repeated password failures.
//     It is pure: it mutates a store.User inside the caller's update closure.
//   - [AuthLimiter] counts failed check/login/register requests per IP.
//   - [PasswordResetLimiter] counts every forgot/reset request per IP.
//
// The Redis-backed limiters are nil-safe: a nil receiver allows everything,
// which is what NewAuthLimiter and NewPasswordResetLimiter return when no
// Redis client is configured.
//
// # What this package must NOT do
//
//   - Import the nickauth root package.
//   - Decide HTTP status codes; flows map errors to the public taxonomy.
package limiters
