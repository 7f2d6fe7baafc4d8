package httpapi

import (
	"net/http"
	"time"
)

// RefreshTokenCookie carries the refresh token between the browser and
// /auth/refresh and /auth/logout.
const RefreshTokenCookie = "refreshToken"

// CookieHelper writes the refresh token cookie.
type CookieHelper struct {
	secure   bool
	sameSite http.SameSite
	maxAge   time.Duration
}

// NewCookieHelper returns a helper for the given environment. Production
// cookies are Secure and SameSite=Strict; others are SameSite=Lax.
func NewCookieHelper(production bool, refreshTTL time.Duration) *CookieHelper {
	h := &CookieHelper{
		secure:   production,
		sameSite: http.SameSiteLaxMode,
		maxAge:   refreshTTL,
	}
	if production {
		h.sameSite = http.SameSiteStrictMode
	}
	return h
}

func (h *CookieHelper) SetRefreshToken(w http.ResponseWriter, token string) {
	h.setCookie(w, token, int(h.maxAge.Seconds()))
}

// ClearRefreshToken expires the cookie with the same attributes it was set
// with.
func (h *CookieHelper) ClearRefreshToken(w http.ResponseWriter) {
	h.setCookie(w, "", -1)
}

// RefreshToken returns the cookie value, or "".
func (h *CookieHelper) RefreshToken(r *http.Request) string {
	c, err := r.Cookie(RefreshTokenCookie)
	if err != nil {
		return ""
	}
	return c.Value
}

func (h *CookieHelper) setCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshTokenCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		Secure:   h.secure,
		HttpOnly: true,
		SameSite: h.sameSite,
	})
}
