package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrEthical07/nickauth"
	"github.com/MrEthical07/nickauth/internal/httpx"
)

// AccessTokenCookie is the cookie consulted when no Authorization header is
// present.
const AccessTokenCookie = "accessToken"

type identityContextKey struct{}

// IdentityFromContext returns the identity attached by RequireAuth or
// OptionalAuth.
func IdentityFromContext(ctx context.Context) (*nickauth.Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(*nickauth.Identity)
	return id, ok && id != nil
}

// WithIdentity attaches id to ctx. Handlers under test use it to skip the
// token round trip.
func WithIdentity(ctx context.Context, id *nickauth.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

type options struct {
	errors httpx.ErrorWriter
}

// Option customizes a gate.
type Option func(*options)

// WithErrorWriter sets how rejections are written.
func WithErrorWriter(ew httpx.ErrorWriter) Option {
	return func(o *options) { o.errors = ew }
}

func buildOptions(opts []Option) options {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// RequireAuth rejects requests without a valid access token.
func RequireAuth(engine *nickauth.Engine, opts ...Option) func(http.Handler) http.Handler {
	o := buildOptions(opts)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				o.errors.Write(w, r, nickauth.ErrUnauthorized)
				return
			}

			token, ok := accessToken(r)
			if !ok {
				o.errors.Write(w, r, nickauth.ErrNoToken)
				return
			}

			id, err := engine.Authenticate(r.Context(), token)
			if err != nil {
				o.errors.Write(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// OptionalAuth attaches an identity when the request carries a valid token
// and lets every request through.
func OptionalAuth(engine *nickauth.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine != nil {
				if token, ok := accessToken(r); ok {
					if id, err := engine.Authenticate(r.Context(), token); err == nil {
						r = r.WithContext(WithIdentity(r.Context(), id))
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func accessToken(r *http.Request) (string, bool) {
	if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
		return token, true
	}
	if c, err := r.Cookie(AccessTokenCookie); err == nil && c.Value != "" {
		return c.Value, true
	}
	return "", false
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
