package nickauth

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	internalaudit "github.com/MrEthical07/nickauth/internal/audit"
	"github.com/MrEthical07/nickauth/internal/flows"
	"github.com/MrEthical07/nickauth/internal/limiters"
	"github.com/MrEthical07/nickauth/jwt"
	"github.com/MrEthical07/nickauth/password"
	"github.com/MrEthical07/nickauth/store"
)

// Engine runs the authentication operations. It is safe for concurrent use
// once returned by Builder.Build.
type Engine struct {
	config       Config
	store        store.Store
	tokens       *jwt.Manager
	hasher       password.Hasher
	dummyHash    string
	lockout      limiters.LockoutPolicy
	authLimiter  *limiters.AuthLimiter
	resetLimiter *limiters.PasswordResetLimiter
	captcha      CaptchaVerifier
	mailer       ResetMailer
	clock        Clock
	logger       *zap.Logger
	audit        *internalaudit.Dispatcher
	metrics      *Metrics
	flow         flows.Service
}

// Close drains pending audit events. It does not close the store.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// AuditDropped reports events discarded because the audit buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) Metrics() *Metrics {
	if e == nil {
		return nil
	}
	return e.metrics
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the effective configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// Store exposes the credential store, for health checks and tooling.
func (e *Engine) Store() store.Store {
	return e.store
}

// Ping checks the credential store.
func (e *Engine) Ping(ctx context.Context) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	return e.store.Ping(ctx)
}

func (e *Engine) ready() bool {
	return e != nil && e.flow.Initialized()
}

// CheckUser reports whether nickname is registered and which action the
// client should take next.
func (e *Engine) CheckUser(ctx context.Context, nickname string) (*CheckResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	res, err := e.flow.CheckUser(ctx, nickname)
	if err != nil {
		return nil, err
	}
	return &CheckResult{Exists: res.Exists, Action: res.Action}, nil
}

// Login verifies nickname and password and opens a new session.
//
// Unknown nicknames and wrong passwords both answer ErrInvalidCredentials
// unless Security.RevealUnknownUser is set. The failure that reaches
// Lockout.MaxAttempts still answers ErrInvalidCredentials; later attempts
// answer ErrAccountLocked until the lock expires.
func (e *Engine) Login(ctx context.Context, nickname, password string) (*AuthResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	res, err := e.flow.Login(ctx, nickname, password)
	if err != nil {
		return nil, err
	}
	return toAuthResult(res), nil
}

// Register creates an account and signs it in.
func (e *Engine) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	res, err := e.flow.Register(ctx, flows.RegisterInput{
		Nickname:     in.Nickname,
		Password:     in.Password,
		Email:        in.Email,
		CaptchaToken: in.CaptchaToken,
	})
	if err != nil {
		return nil, err
	}
	return toAuthResult(res), nil
}

// Refresh rotates refreshToken. Presenting a token that was already rotated
// away revokes every session of its owner and answers
// ErrInvalidRefreshToken.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	res, err := e.flow.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	return toAuthResult(res), nil
}

// Logout removes refreshToken from its owner's session list. It never
// fails: absent tokens and store faults are logged and ignored. userID may
// be empty, in which case the owner is read from the token.
func (e *Engine) Logout(ctx context.Context, userID, refreshToken string) {
	if !e.ready() {
		return
	}
	e.flow.Logout(ctx, userID, refreshToken)
}

// ForgotPassword issues a reset token when email belongs to an account and
// hands it to the mailer. The answer is the same for unknown addresses.
func (e *Engine) ForgotPassword(ctx context.Context, email string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.flow.ForgotPassword(ctx, email)
}

// ResetPassword consumes a reset token, sets the new password and revokes
// every session of the account.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.flow.ResetPassword(ctx, token, newPassword)
}

// Authenticate validates an access token and loads its user.
func (e *Engine) Authenticate(ctx context.Context, accessToken string) (*Identity, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	var start time.Time
	if e.metrics.LatencyEnabled() {
		start = time.Now()
		defer func() { e.metrics.Observe(MetricAuthenticateLatency, time.Since(start)) }()
	}
	u, err := e.flow.Authenticate(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	return &Identity{UserID: u.ID, Role: u.Role, Profile: store.NewPublicProfile(u)}, nil
}

// GetMe reloads userID and returns its public profile.
func (e *Engine) GetMe(ctx context.Context, userID string) (*PublicProfile, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	u, err := e.flow.GetMe(ctx, userID)
	if err != nil {
		return nil, err
	}
	p := store.NewPublicProfile(u)
	return &p, nil
}

func toAuthResult(res *flows.AuthResult) *AuthResult {
	return &AuthResult{
		AccessToken:      res.AccessToken,
		RefreshToken:     res.RefreshToken,
		RefreshExpiresAt: res.RefreshExpiresAt,
		User:             store.NewPublicProfile(res.User),
	}
}

func (e *Engine) sendReset(ctx context.Context, u *store.User, token string, expiresAt time.Time) error {
	if e.mailer == nil {
		return nil
	}
	if u.Email == "" {
		return errors.New("account has no email")
	}
	return e.mailer.SendPasswordReset(ctx, u.Email, u.Nickname, token, expiresAt)
}

func (e *Engine) dummyVerify(plain string) {
	_, _ = e.hasher.Verify(plain, e.dummyHash)
}

func flowErrors() flows.Errors {
	return flows.Errors{
		Unauthorized:          ErrUnauthorized,
		NoToken:               ErrNoToken,
		InvalidToken:          ErrInvalidToken,
		TokenExpired:          ErrTokenExpired,
		InvalidCredentials:    ErrInvalidCredentials,
		AccountLocked:         ErrAccountLocked,
		AccountDeactivated:    ErrAccountDeactivated,
		InvalidRefreshToken:   ErrInvalidRefreshToken,
		UserNotFound:          ErrUserNotFound,
		NicknameTaken:         ErrNicknameTaken,
		EmailTaken:            ErrEmailTaken,
		CaptchaFailed:         ErrCaptchaFailed,
		InvalidOrExpiredToken: ErrInvalidOrExpiredToken,
		AuthRateLimited:       ErrAuthRateLimited,
		ResetRateLimited:      ErrPasswordResetRateLimited,
		Validation: func(fields ...flows.FieldError) error {
			out := make([]FieldError, 0, len(fields))
			for _, f := range fields {
				out = append(out, FieldError{Field: f.Field, Message: f.Message})
			}
			return NewValidationError(out...)
		},
		Internal: func(op string, err error) error {
			return InternalError(op, err)
		},
	}
}
