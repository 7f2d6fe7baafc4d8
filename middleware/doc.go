// Package middleware gates net/http handlers on nickauth access tokens.
//
// # Gates
//
//   - [RequireAuth] reads the Authorization bearer token, falling back to
//     the accessToken cookie, and calls Engine.Authenticate.
//   - [OptionalAuth] does the same but never rejects.
//   - [RequireRole], [RequireAdmin] and [RequireOwnerOrAdmin] run after
//     RequireAuth and check the attached identity.
//
// Rejections are written through the shared JSON error envelope.
//
// # What this package must NOT do
//
//   - Parse or sign JWTs itself.
//   - Touch the credential store.
package middleware
