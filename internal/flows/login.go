package flows

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/nickauth/internal/limiters"
	"github.com/MrEthical07/nickauth/store"
)

// LoginMetrics defines metric IDs emitted by RunLogin.
type LoginMetrics struct {
	Success       int
	Failure       int
	Locked        int
	AccountLocked int
	RateLimited   int
	Rehash        int
}

// LoginEvents defines audit event names emitted by RunLogin.
type LoginEvents struct {
	Success       string
	Failure       string
	AccountLocked string
	RateLimited   string
}

// LoginDeps defines dependencies for password login.
type LoginDeps struct {
	FindByNickname func(context.Context, string) (*store.User, error)
	Update         func(context.Context, string, store.MutateFunc) (*store.User, error)
	VerifyPassword func(plain, encoded string) (bool, error)
	NeedsUpgrade   func(encoded string) (bool, error)
	HashPassword   func(plain string) (string, error)
	// DummyVerify burns one verification so unknown nicknames cost the same
	// as wrong passwords.
	DummyVerify func(plain string)
	Tokens      TokenIssuer
	Lockout     limiters.LockoutPolicy
	Rate        AuthRate
	ClientIP    func(context.Context) string
	Now         func() time.Time

	MaxRefreshTokens  int
	UpgradeOnLogin    bool
	RevealUnknownUser bool

	MetricInc func(int)
	EmitAudit AuditFunc
	Logger    *zap.Logger

	Metrics LoginMetrics
	Events  LoginEvents
	Errors  Errors
}

// RunLogin authenticates nickname/password and issues a token pair.
//
// The failure that reaches the lockout threshold still answers
// InvalidCredentials; only later attempts see AccountLocked.
func RunLogin(ctx context.Context, nickname, plain string, deps LoginDeps) (res *AuthResult, err error) {
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
	if deps.DummyVerify == nil {
		deps.DummyVerify = func(string) {}
	}
	logger := orNop(deps.Logger)
	ip := deps.ClientIP(ctx)

	if !deps.Rate.admit(ctx, ip, logger) {
		deps.MetricInc(deps.Metrics.RateLimited)
		deps.EmitAudit(ctx, deps.Events.RateLimited, false, "", nickname, deps.Errors.AuthRateLimited, func() map[string]string {
			return map[string]string{"scope": "auth", "operation": "login"}
		})
		return nil, deps.Errors.AuthRateLimited
	}
	defer func() { deps.Rate.fail(ctx, ip, err, deps.Errors.AuthRateLimited, logger) }()

	nickname = NormalizeNickname(nickname)
	var fields []FieldError
	if nickname == "" {
		fields = append(fields, FieldError{Field: "nickname", Message: "Nickname is required"})
	}
	if plain == "" {
		fields = append(fields, FieldError{Field: "password", Message: "Password is required"})
	}
	if len(fields) > 0 {
		return nil, deps.Errors.Validation(fields...)
	}

	failure := func(userID, reason string, out error) error {
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.Failure, false, userID, nickname, out, func() map[string]string {
			return map[string]string{"reason": reason}
		})
		return out
	}

	user, err := deps.FindByNickname(ctx, nickname)
	if errors.Is(err, store.ErrNotFound) {
		deps.DummyVerify(plain)
		if deps.RevealUnknownUser {
			return nil, failure("", "user_not_found", deps.Errors.UserNotFound)
		}
		return nil, failure("", "user_not_found", deps.Errors.InvalidCredentials)
	}
	if err != nil {
		return nil, deps.Errors.Internal("find user", err)
	}

	now := deps.Now()
	if deps.Lockout.IsLocked(user, now) {
		deps.MetricInc(deps.Metrics.Locked)
		logger.Warn("login attempt on locked account", zap.String("user_id", user.ID))
		return nil, failure(user.ID, "account_locked", deps.Errors.AccountLocked)
	}
	if !user.IsActive {
		return nil, failure(user.ID, "account_deactivated", deps.Errors.AccountDeactivated)
	}

	ok, verr := deps.VerifyPassword(plain, user.PasswordHash)
	if verr != nil {
		logger.Warn("stored password hash rejected", zap.String("user_id", user.ID), zap.Error(verr))
		ok = false
	}
	if !ok {
		return nil, recordLoginFailure(ctx, user, nickname, now, deps, logger, failure)
	}

	var upgraded string
	if deps.UpgradeOnLogin && deps.NeedsUpgrade != nil && deps.HashPassword != nil {
		if need, err := deps.NeedsUpgrade(user.PasswordHash); err == nil && need {
			if h, err := deps.HashPassword(plain); err == nil {
				upgraded = h
			} else {
				logger.Warn("password rehash failed", zap.String("user_id", user.ID), zap.Error(err))
			}
		}
	}

	refresh, refreshExp, err := deps.Tokens.IssueRefresh(user.ID)
	if err != nil {
		return nil, deps.Errors.Internal("issue tokens", err)
	}
	pair := tokenPair{refresh: refresh, expiresAt: refreshExp}

	var issueErr error
	updated, err := deps.Update(ctx, user.ID, func(u *store.User) error {
		issueErr = nil
		if deps.Lockout.IsLocked(u, now) {
			return deps.Errors.AccountLocked
		}
		if !u.IsActive {
			return deps.Errors.AccountDeactivated
		}
		if u.PasswordHash != user.PasswordHash {
			return deps.Errors.InvalidCredentials
		}
		access, err := deps.Tokens.IssueAccess(u.ID, string(u.Role))
		if err != nil {
			issueErr = err
			return err
		}
		pair.access = access
		deps.Lockout.Success(u)
		u.LastLogin = &now
		u.UpdatedAt = now
		if upgraded != "" {
			u.PasswordHash = upgraded
		}
		u.AddRefreshToken(pair.entry(now), deps.MaxRefreshTokens, now)
		return nil
	})
	switch {
	case issueErr != nil:
		return nil, deps.Errors.Internal("issue tokens", issueErr)
	case errors.Is(err, deps.Errors.AccountLocked):
		return nil, failure(user.ID, "account_locked", err)
	case errors.Is(err, deps.Errors.InvalidCredentials):
		return nil, failure(user.ID, "password_changed", err)
	case errors.Is(err, deps.Errors.AccountDeactivated):
		return nil, failure(user.ID, "account_deactivated", err)
	case errors.Is(err, store.ErrNotFound):
		return nil, failure(user.ID, "user_deleted", deps.Errors.InvalidCredentials)
	case err != nil:
		return nil, deps.Errors.Internal("record login", err)
	}

	if upgraded != "" {
		deps.MetricInc(deps.Metrics.Rehash)
	}
	deps.MetricInc(deps.Metrics.Success)
	deps.EmitAudit(ctx, deps.Events.Success, true, updated.ID, updated.Nickname, nil, nil)
	logger.Info("user logged in", zap.String("user_id", updated.ID))
	return pair.result(updated), nil
}

func recordLoginFailure(
	ctx context.Context,
	user *store.User,
	nickname string,
	now time.Time,
	deps LoginDeps,
	logger *zap.Logger,
	failure func(string, string, error) error,
) error {
	var locked bool
	var attempts int
	_, err := deps.Update(ctx, user.ID, func(u *store.User) error {
		locked = deps.Lockout.Failure(u, now)
		attempts = u.LoginAttempts
		u.UpdatedAt = now
		return nil
	})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return deps.Errors.Internal("record login failure", err)
	}

	logger.Warn("failed login attempt", zap.String("user_id", user.ID), zap.Int("attempts", attempts))
	if locked {
		deps.MetricInc(deps.Metrics.AccountLocked)
		deps.EmitAudit(ctx, deps.Events.AccountLocked, false, user.ID, nickname, deps.Errors.AccountLocked, func() map[string]string {
			return map[string]string{"lock_minutes": formatMinutes(deps.Lockout.Duration)}
		})
		logger.Warn("account locked", zap.String("user_id", user.ID), zap.Duration("duration", deps.Lockout.Duration))
	}
	return failure(user.ID, "password_mismatch", deps.Errors.InvalidCredentials)
}
