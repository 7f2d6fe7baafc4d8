package nickauth

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	internalaudit "github.com/MrEthical07/nickauth/internal/audit"
	"github.com/MrEthical07/nickauth/store"
)

// Role aliases keep callers from importing the store package for the common
// cases.
type Role = store.Role

const (
	RoleUser  = store.RoleUser
	RoleAdmin = store.RoleAdmin
)

// PublicProfile is the client-facing projection of a user. It never carries
// the password hash, refresh tokens, reset fields or lockout counters.
type PublicProfile = store.PublicProfile

// CheckResult answers CheckUser. Action is "login" when the nickname exists
// and "register" otherwise.
type CheckResult struct {
	Exists bool   `json:"exists"`
	Action string `json:"action"`
}

// AuthResult is returned by Login, Register and Refresh.
type AuthResult struct {
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
	User             PublicProfile
}

// RegisterInput is the Register request. Email and CaptchaToken are
// optional.
type RegisterInput struct {
	Nickname     string
	Password     string
	Email        string
	CaptchaToken string
}

// Identity is what Authenticate attaches to a request.
type Identity struct {
	UserID  string
	Role    Role
	Profile PublicProfile
}

// IsAdmin reports whether the identity carries the admin role.
func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == RoleAdmin
}

// UserPage is one page of an admin user listing.
type UserPage struct {
	Users []PublicProfile
	Total int
	Page  int
	Limit int
	Pages int
}

// UserUpdate carries the admin-editable fields. Nil fields are left alone.
type UserUpdate struct {
	Role     *Role
	IsActive *bool
}

// CaptchaVerifier checks a human-verification token. Implementations return
// a non-nil error for any failed or unverifiable token.
type CaptchaVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) error
}

// ResetMailer delivers the password reset link. It must not block the
// caller on network delivery.
type ResetMailer interface {
	SendPasswordReset(ctx context.Context, to, nickname, token string, expiresAt time.Time) error
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives AuditEvent values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink discards all events.
type NoOpSink = internalaudit.NoOpSink

type ChannelSink = internalaudit.ChannelSink

type JSONWriterSink = internalaudit.JSONWriterSink

// ZapSink writes events through a zap logger named "audit".
type ZapSink = internalaudit.ZapSink

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

func NewZapSink(logger *zap.Logger) *ZapSink {
	return internalaudit.NewZapSink(logger)
}
