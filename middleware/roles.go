package middleware

import (
	"net/http"
	"slices"

	"github.com/MrEthical07/nickauth"
)

// RequireRole admits identities holding one of roles. It must run after
// RequireAuth.
func RequireRole(roles []nickauth.Role, opts ...Option) func(http.Handler) http.Handler {
	o := buildOptions(opts)
	allowed := slices.Clone(roles)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				o.errors.Write(w, r, nickauth.ErrUnauthorized)
				return
			}
			if !slices.Contains(allowed, id.Role) {
				o.errors.Write(w, r, nickauth.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func RequireAdmin(opts ...Option) func(http.Handler) http.Handler {
	return RequireRole([]nickauth.Role{nickauth.RoleAdmin}, opts...)
}

// RequireOwnerOrAdmin admits admins and the user whose id ownerID extracts
// from the request.
func RequireOwnerOrAdmin(ownerID func(*http.Request) string, opts ...Option) func(http.Handler) http.Handler {
	o := buildOptions(opts)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				o.errors.Write(w, r, nickauth.ErrUnauthorized)
				return
			}
			if !id.IsAdmin() && (ownerID == nil || ownerID(r) != id.UserID) {
				o.errors.Write(w, r, nickauth.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
