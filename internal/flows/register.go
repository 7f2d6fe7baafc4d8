package flows

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/nickauth/store"
)

// RegisterMetrics defines metric IDs emitted by RunRegister.
type RegisterMetrics struct {
	Success        int
	Conflict       int
	CaptchaFailure int
	RateLimited    int
}

// RegisterEvents defines audit event names emitted by RunRegister.
type RegisterEvents struct {
	Success     string
	Failure     string
	RateLimited string
}

// RegisterInput is the self-service sign-up payload.
type RegisterInput struct {
	Nickname     string
	Password     string
	Email        string
	CaptchaToken string
}

// RegisterDeps defines dependencies for self-service registration.
type RegisterDeps struct {
	FindByNickname func(context.Context, string) (*store.User, error)
	FindByEmail    func(context.Context, string) (*store.User, error)
	Insert         func(context.Context, *store.User) (*store.User, error)
	HashPassword   func(plain string) (string, error)
	VerifyCaptcha  func(ctx context.Context, token, remoteIP string) error
	Tokens         TokenIssuer
	NewID          func() string
	Rate           AuthRate
	ClientIP       func(context.Context) string
	Now            func() time.Time

	DefaultRole      store.Role
	MaxRefreshTokens int

	MetricInc func(int)
	EmitAudit AuditFunc
	Logger    *zap.Logger

	Metrics RegisterMetrics
	Events  RegisterEvents
	Errors  Errors
}

// RunRegister creates an account and signs it in.
func RunRegister(ctx context.Context, in RegisterInput, deps RegisterDeps) (res *AuthResult, err error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.ClientIP == nil {
		deps.ClientIP = noIP
	}
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.DefaultRole == "" {
		deps.DefaultRole = store.RoleUser
	}
	logger := orNop(deps.Logger)
	ip := deps.ClientIP(ctx)

	if !deps.Rate.admit(ctx, ip, logger) {
		deps.MetricInc(deps.Metrics.RateLimited)
		deps.EmitAudit(ctx, deps.Events.RateLimited, false, "", in.Nickname, deps.Errors.AuthRateLimited, func() map[string]string {
			return map[string]string{"scope": "auth", "operation": "register"}
		})
		return nil, deps.Errors.AuthRateLimited
	}
	defer func() { deps.Rate.fail(ctx, ip, err, deps.Errors.AuthRateLimited, logger) }()

	nickname := NormalizeNickname(in.Nickname)
	email := NormalizeEmail(in.Email)

	if deps.VerifyCaptcha != nil {
		if cerr := deps.VerifyCaptcha(ctx, in.CaptchaToken, ip); cerr != nil {
			deps.MetricInc(deps.Metrics.CaptchaFailure)
			logger.Warn("captcha verification failed", zap.String("nickname", nickname), zap.Error(cerr))
			deps.EmitAudit(ctx, deps.Events.Failure, false, "", nickname, deps.Errors.CaptchaFailed, func() map[string]string {
				return map[string]string{"reason": "captcha"}
			})
			return nil, deps.Errors.CaptchaFailed
		}
	}

	var fields []FieldError
	fields = append(fields, nicknameErrors(nickname)...)
	fields = append(fields, passwordErrors("password", in.Password)...)
	fields = append(fields, emailErrors(email, false)...)
	if len(fields) > 0 {
		return nil, deps.Errors.Validation(fields...)
	}

	conflict := func(field string, out error) error {
		deps.MetricInc(deps.Metrics.Conflict)
		deps.EmitAudit(ctx, deps.Events.Failure, false, "", nickname, out, func() map[string]string {
			return map[string]string{"reason": "duplicate", "field": field}
		})
		return out
	}

	if _, ferr := deps.FindByNickname(ctx, nickname); ferr == nil {
		return nil, conflict(store.FieldNickname, deps.Errors.NicknameTaken)
	} else if !errors.Is(ferr, store.ErrNotFound) {
		return nil, deps.Errors.Internal("find nickname", ferr)
	}
	if email != "" {
		if _, ferr := deps.FindByEmail(ctx, email); ferr == nil {
			return nil, conflict(store.FieldEmail, deps.Errors.EmailTaken)
		} else if !errors.Is(ferr, store.ErrNotFound) {
			return nil, deps.Errors.Internal("find email", ferr)
		}
	}

	hash, err := deps.HashPassword(in.Password)
	if err != nil {
		return nil, deps.Errors.Internal("hash password", err)
	}

	now := deps.Now()
	user := &store.User{
		ID:           deps.NewID(),
		Nickname:     nickname,
		Email:        email,
		PasswordHash: hash,
		Role:         deps.DefaultRole,
		IsActive:     true,
		LastLogin:    &now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	pair, err := issuePair(deps.Tokens, user.ID, user.Role)
	if err != nil {
		return nil, deps.Errors.Internal("issue tokens", err)
	}
	user.AddRefreshToken(pair.entry(now), deps.MaxRefreshTokens, now)

	created, err := deps.Insert(ctx, user)
	if err != nil {
		if field, ok := store.ConflictField(err); ok {
			if field == store.FieldEmail {
				return nil, conflict(field, deps.Errors.EmailTaken)
			}
			return nil, conflict(store.FieldNickname, deps.Errors.NicknameTaken)
		}
		return nil, deps.Errors.Internal("insert user", err)
	}

	deps.MetricInc(deps.Metrics.Success)
	deps.EmitAudit(ctx, deps.Events.Success, true, created.ID, created.Nickname, nil, nil)
	logger.Info("new user registered", zap.String("user_id", created.ID), zap.String("nickname", created.Nickname))
	return pair.result(created), nil
}
