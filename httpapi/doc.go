// Package httpapi mounts the nickauth engine on a net/http ServeMux.
//
// Routes live under Config.BasePath (default "/api"): the /auth endpoints
// for the nickname-first sign-in flow and the admin /users endpoints.
// /health and, when a metrics handler is supplied, /metrics are mounted at
// the root. Every response uses the envelope from internal/httpx.
//
// The refresh token only travels in the HttpOnly refreshToken cookie; it is
// never part of a JSON body.
package httpapi
