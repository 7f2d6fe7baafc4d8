package flows

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/nickauth/internal"
	"github.com/MrEthical07/nickauth/store"
)

// Deps groups flow dependency sets. The root engine builds this once and
// delegates each operation to the matching Run function.
type Deps struct {
	Check        CheckDeps
	Login        LoginDeps
	Register     RegisterDeps
	Refresh      RefreshDeps
	Logout       LogoutDeps
	Forgot       ForgotPasswordDeps
	Reset        ResetPasswordDeps
	Authenticate AuthenticateDeps
	GetMe        GetMeDeps
	Admin        AdminDeps
}

// TokenIssuer mints the access/refresh pair handed out by login, register
// and refresh.
type TokenIssuer interface {
	IssueAccess(userID, role string) (string, error)
	IssueRefresh(userID string) (string, time.Time, error)
}

// AuditFunc emits one audit event. metadata is only evaluated when audit is
// enabled.
type AuditFunc func(ctx context.Context, event string, success bool, userID, nickname string, err error, metadata func() map[string]string)

// FieldError is one rejected input field.
type FieldError struct {
	Field   string
	Message string
}

// Errors carries the public error values flows return. The root package
// fills it with its sentinels so flows never import it.
type Errors struct {
	Unauthorized          error
	NoToken               error
	InvalidToken          error
	TokenExpired          error
	InvalidCredentials    error
	AccountLocked         error
	AccountDeactivated    error
	InvalidRefreshToken   error
	UserNotFound          error
	NicknameTaken         error
	EmailTaken            error
	CaptchaFailed         error
	InvalidOrExpiredToken error
	AuthRateLimited       error
	ResetRateLimited      error

	Validation func(fields ...FieldError) error
	Internal   func(op string, err error) error
}

// AuthResult is what login, register and refresh hand back.
type AuthResult struct {
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
	User             *store.User
}

type tokenPair struct {
	access    string
	refresh   string
	expiresAt time.Time
}

func issuePair(tokens TokenIssuer, userID string, role store.Role) (tokenPair, error) {
	access, err := tokens.IssueAccess(userID, string(role))
	if err != nil {
		return tokenPair{}, err
	}
	refresh, exp, err := tokens.IssueRefresh(userID)
	if err != nil {
		return tokenPair{}, err
	}
	return tokenPair{access: access, refresh: refresh, expiresAt: exp}, nil
}

func (p tokenPair) entry(now time.Time) store.RefreshToken {
	return store.RefreshToken{
		TokenHash: internal.HashToken(p.refresh),
		CreatedAt: now,
		ExpiresAt: p.expiresAt,
	}
}

func (p tokenPair) result(u *store.User) *AuthResult {
	return &AuthResult{
		AccessToken:      p.access,
		RefreshToken:     p.refresh,
		RefreshExpiresAt: p.expiresAt,
		User:             u,
	}
}

func noopAudit(context.Context, string, bool, string, string, error, func() map[string]string) {}

func noopMetric(int) {}

func noIP(context.Context) string { return "" }

func orNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

func formatMinutes(d time.Duration) string {
	return strconv.Itoa(int(d / time.Minute))
}
