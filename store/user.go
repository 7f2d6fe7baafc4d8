package store

import (
	"crypto/subtle"
	"time"
)

// Role is the coarse authorization role of a user.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// RefreshToken is one live refresh session. Only the SHA-256 hex of the
// signed token is persisted.
type RefreshToken struct {
	TokenHash string    `json:"tokenHash"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the entry is past its expiry at now.
func (t RefreshToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// User is the persisted credential record.
type User struct {
	ID                   string         `json:"id"`
	Nickname             string         `json:"nickname"`
	Email                string         `json:"email,omitempty"`
	PasswordHash         string         `json:"passwordHash"`
	Role                 Role           `json:"role"`
	IsActive             bool           `json:"isActive"`
	LoginAttempts        int            `json:"loginAttempts"`
	LockUntil            *time.Time     `json:"lockUntil,omitempty"`
	RefreshTokens        []RefreshToken `json:"refreshTokens,omitempty"`
	PasswordResetToken   string         `json:"passwordResetToken,omitempty"`
	PasswordResetExpires *time.Time     `json:"passwordResetExpires,omitempty"`
	LastLogin            *time.Time     `json:"lastLogin,omitempty"`
	PasswordChangedAt    *time.Time     `json:"passwordChangedAt,omitempty"`
	CreatedAt            time.Time      `json:"createdAt"`
	UpdatedAt            time.Time      `json:"updatedAt"`
	Version              int64          `json:"version"`
}

// Clone returns a deep copy so callers can mutate without aliasing store state.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.LockUntil = cloneTime(u.LockUntil)
	c.PasswordResetExpires = cloneTime(u.PasswordResetExpires)
	c.LastLogin = cloneTime(u.LastLogin)
	c.PasswordChangedAt = cloneTime(u.PasswordChangedAt)
	if u.RefreshTokens != nil {
		c.RefreshTokens = make([]RefreshToken, len(u.RefreshTokens))
		copy(c.RefreshTokens, u.RefreshTokens)
	}
	return &c
}

// IsLocked is derived from LockUntil; it is never stored.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockUntil != nil && u.LockUntil.After(now)
}

// HasRefreshToken reports whether a live entry with hash exists.
func (u *User) HasRefreshToken(hash string, now time.Time) bool {
	for _, t := range u.RefreshTokens {
		if t.Expired(now) {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(t.TokenHash), []byte(hash)) == 1 {
			return true
		}
	}
	return false
}

// AddRefreshToken prunes expired entries, appends entry and evicts the
// oldest entries until at most max remain.
func (u *User) AddRefreshToken(entry RefreshToken, max int, now time.Time) {
	live := u.RefreshTokens[:0:0]
	for _, t := range u.RefreshTokens {
		if !t.Expired(now) {
			live = append(live, t)
		}
	}
	live = append(live, entry)
	if max > 0 && len(live) > max {
		live = live[len(live)-max:]
	}
	u.RefreshTokens = live
}

// RemoveRefreshToken drops the entry with hash and reports whether it existed.
func (u *User) RemoveRefreshToken(hash string) bool {
	out := u.RefreshTokens[:0:0]
	removed := false
	for _, t := range u.RefreshTokens {
		if t.TokenHash == hash {
			removed = true
			continue
		}
		out = append(out, t)
	}
	u.RefreshTokens = out
	return removed
}

// ClearRefreshTokens revokes every session of the user.
func (u *User) ClearRefreshTokens() {
	u.RefreshTokens = nil
}

// ResetTokenValid reports whether hash matches the stored reset token and
// the token has not expired.
func (u *User) ResetTokenValid(hash string, now time.Time) bool {
	if u.PasswordResetToken == "" || u.PasswordResetExpires == nil {
		return false
	}
	if !u.PasswordResetExpires.After(now) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(u.PasswordResetToken), []byte(hash)) == 1
}

// TokenPredatesPasswordChange reports whether a token issued at iat was
// minted before the last password change. iat has second precision, so the
// change time is compared at the same precision.
func (u *User) TokenPredatesPasswordChange(iat time.Time) bool {
	if u.PasswordChangedAt == nil {
		return false
	}
	return iat.Before(u.PasswordChangedAt.Truncate(time.Second))
}

// ClearPasswordReset removes any pending reset token.
func (u *User) ClearPasswordReset() {
	u.PasswordResetToken = ""
	u.PasswordResetExpires = nil
}

// PublicProfile is the client-safe projection of a User.
type PublicProfile struct {
	ID        string     `json:"id"`
	Nickname  string     `json:"nickname"`
	Email     string     `json:"email,omitempty"`
	Role      Role       `json:"role"`
	IsActive  bool       `json:"isActive"`
	LastLogin *time.Time `json:"lastLogin,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// NewPublicProfile whitelists the fields of u that may leave the server.
func NewPublicProfile(u *User) PublicProfile {
	if u == nil {
		return PublicProfile{}
	}
	return PublicProfile{
		ID:        u.ID,
		Nickname:  u.Nickname,
		Email:     u.Email,
		Role:      u.Role,
		IsActive:  u.IsActive,
		LastLogin: cloneTime(u.LastLogin),
		CreatedAt: u.CreatedAt,
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
