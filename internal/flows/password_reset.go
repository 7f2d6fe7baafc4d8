package flows

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/nickauth/internal"
	"github.com/MrEthical07/nickauth/store"
)

// PasswordResetMetrics defines metric IDs emitted by the reset flows.
type PasswordResetMetrics struct {
	Request        int
	RateLimited    int
	ConfirmSuccess int
	ConfirmFailure int
}

// PasswordResetEvents defines audit event names emitted by the reset flows.
type PasswordResetEvents struct {
	Request     string
	Confirm     string
	RateLimited string
}

// ForgotPasswordDeps defines dependencies for reset requests.
type ForgotPasswordDeps struct {
	FindByEmail   func(context.Context, string) (*store.User, error)
	Update        func(context.Context, string, store.MutateFunc) (*store.User, error)
	NewResetToken func() (string, error)
	// SendReset hands the raw token to the mailer. It must not block on
	// delivery.
	SendReset func(ctx context.Context, u *store.User, token string, expiresAt time.Time) error
	Rate      ResetRate
	ClientIP  func(context.Context) string
	Now       func() time.Time
	// Sleep pads the response; it returns early when ctx is done.
	Sleep func(context.Context, time.Duration)

	TokenTTL        time.Duration
	MinResponseTime time.Duration

	MetricInc func(int)
	EmitAudit AuditFunc
	Logger    *zap.Logger

	Metrics PasswordResetMetrics
	Events  PasswordResetEvents
	Errors  Errors
}

// RunForgotPassword issues a reset token for email when an account has it.
// Known and unknown addresses take the same path length and give the same
// answer.
func RunForgotPassword(ctx context.Context, email string, deps ForgotPasswordDeps) error {
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
	if deps.NewResetToken == nil {
		deps.NewResetToken = internal.NewResetToken
	}
	if deps.Sleep == nil {
		deps.Sleep = sleepCtx
	}
	logger := orNop(deps.Logger)
	ip := deps.ClientIP(ctx)

	if !deps.Rate.admit(ctx, ip, logger) {
		deps.MetricInc(deps.Metrics.RateLimited)
		deps.EmitAudit(ctx, deps.Events.RateLimited, false, "", "", deps.Errors.ResetRateLimited, func() map[string]string {
			return map[string]string{"scope": "password_reset", "operation": "forgot"}
		})
		return deps.Errors.ResetRateLimited
	}

	email = NormalizeEmail(email)
	if fields := emailErrors(email, true); len(fields) > 0 {
		return deps.Errors.Validation(fields...)
	}

	started := time.Now()
	defer func() {
		if remaining := deps.MinResponseTime - time.Since(started); remaining > 0 {
			deps.Sleep(ctx, remaining)
		}
	}()
	deps.MetricInc(deps.Metrics.Request)

	token, err := deps.NewResetToken()
	if err != nil {
		return deps.Errors.Internal("generate reset token", err)
	}
	hash := internal.HashToken(token)

	user, err := deps.FindByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		logger.Warn("password reset requested for unknown email")
		deps.EmitAudit(ctx, deps.Events.Request, false, "", "", nil, func() map[string]string {
			return map[string]string{"reason": "unknown_email"}
		})
		return nil
	}
	if err != nil {
		return deps.Errors.Internal("find user", err)
	}

	now := deps.Now()
	expires := now.Add(deps.TokenTTL)
	if _, err := deps.Update(ctx, user.ID, func(u *store.User) error {
		u.PasswordResetToken = hash
		u.PasswordResetExpires = &expires
		u.UpdatedAt = now
		return nil
	}); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return deps.Errors.Internal("store reset token", err)
	}

	if deps.SendReset != nil {
		if err := deps.SendReset(ctx, user, token, expires); err != nil {
			logger.Error("failed to send password reset email", zap.String("user_id", user.ID), zap.Error(err))
		}
	}
	deps.EmitAudit(ctx, deps.Events.Request, true, user.ID, user.Nickname, nil, nil)
	logger.Info("password reset requested", zap.String("user_id", user.ID))
	return nil
}

// ResetPasswordDeps defines dependencies for reset confirmation.
type ResetPasswordDeps struct {
	FindByResetToken func(ctx context.Context, hash string, now time.Time) (*store.User, error)
	Update           func(context.Context, string, store.MutateFunc) (*store.User, error)
	HashPassword     func(plain string) (string, error)
	Rate             ResetRate
	ClientIP         func(context.Context) string
	Now              func() time.Time

	MetricInc func(int)
	EmitAudit AuditFunc
	Logger    *zap.Logger

	Metrics PasswordResetMetrics
	Events  PasswordResetEvents
	Errors  Errors
}

// RunResetPassword consumes a reset token, sets the new password and
// revokes every refresh token of the account.
func RunResetPassword(ctx context.Context, token, newPassword string, deps ResetPasswordDeps) error {
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
	logger := orNop(deps.Logger)
	ip := deps.ClientIP(ctx)

	if !deps.Rate.admit(ctx, ip, logger) {
		deps.MetricInc(deps.Metrics.RateLimited)
		deps.EmitAudit(ctx, deps.Events.RateLimited, false, "", "", deps.Errors.ResetRateLimited, func() map[string]string {
			return map[string]string{"scope": "password_reset", "operation": "reset"}
		})
		return deps.Errors.ResetRateLimited
	}

	var fields []FieldError
	if token == "" {
		fields = append(fields, FieldError{Field: "token", Message: "Reset token is required"})
	}
	fields = append(fields, passwordErrors("newPassword", newPassword)...)
	if len(fields) > 0 {
		return deps.Errors.Validation(fields...)
	}

	invalid := func(reason string) error {
		deps.MetricInc(deps.Metrics.ConfirmFailure)
		deps.EmitAudit(ctx, deps.Events.Confirm, false, "", "", deps.Errors.InvalidOrExpiredToken, func() map[string]string {
			return map[string]string{"reason": reason}
		})
		return deps.Errors.InvalidOrExpiredToken
	}

	parsed, err := internal.ParseResetToken(token)
	if err != nil {
		return invalid("malformed")
	}
	hash := internal.HashToken(parsed)
	now := deps.Now()

	user, err := deps.FindByResetToken(ctx, hash, now)
	if errors.Is(err, store.ErrNotFound) {
		return invalid("unknown_or_expired")
	}
	if err != nil {
		return deps.Errors.Internal("find reset token", err)
	}

	newHash, err := deps.HashPassword(newPassword)
	if err != nil {
		return deps.Errors.Internal("hash password", err)
	}

	_, err = deps.Update(ctx, user.ID, func(u *store.User) error {
		if !u.ResetTokenValid(hash, now) {
			return deps.Errors.InvalidOrExpiredToken
		}
		u.PasswordHash = newHash
		u.PasswordChangedAt = &now
		u.ClearPasswordReset()
		u.ClearRefreshTokens()
		u.UpdatedAt = now
		return nil
	})
	switch {
	case errors.Is(err, deps.Errors.InvalidOrExpiredToken), errors.Is(err, store.ErrNotFound):
		return invalid("consumed")
	case err != nil:
		return deps.Errors.Internal("reset password", err)
	}

	deps.MetricInc(deps.Metrics.ConfirmSuccess)
	deps.EmitAudit(ctx, deps.Events.Confirm, true, user.ID, user.Nickname, nil, nil)
	logger.Info("password reset successful", zap.String("user_id", user.ID))
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
