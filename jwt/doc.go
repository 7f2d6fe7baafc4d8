// Package jwt issues and verifies the access and refresh tokens used by
// nickauth. Verification distinguishes expiry (ErrTokenExpired) from every
// other failure (ErrTokenInvalid), and never accepts a token of the wrong kind.
package jwt
