package nickauth

import (
	"context"

	"github.com/google/uuid"

	"github.com/MrEthical07/nickauth/internal/flows"
)

func (e *Engine) flowDeps() flows.Deps {
	errs := flowErrors()
	inc := e.metrics.incFunc()
	now := e.clock.Now
	maxTokens := e.config.RefreshTokens.MaxPerUser

	authRate := flows.AuthRate{
		Check:         e.authLimiter.Check,
		RecordFailure: e.authLimiter.RecordFailure,
	}
	resetRate := flows.ResetRate{Allow: e.resetLimiter.Allow}

	var verifyCaptcha func(context.Context, string, string) error
	if e.captcha != nil {
		verifyCaptcha = e.captcha.Verify
	}

	resetMetrics := flows.PasswordResetMetrics{
		Request:        int(MetricPasswordResetRequest),
		RateLimited:    int(MetricPasswordResetRateLimited),
		ConfirmSuccess: int(MetricPasswordResetConfirmSuccess),
		ConfirmFailure: int(MetricPasswordResetConfirmFailure),
	}
	resetEvents := flows.PasswordResetEvents{
		Request:     auditEventPasswordResetRequest,
		Confirm:     auditEventPasswordResetConfirm,
		RateLimited: auditEventRateLimitTriggered,
	}

	return flows.Deps{
		Check: flows.CheckDeps{
			FindByNickname: e.store.FindByNickname,
			ClientIP:       ClientIPFromContext,
			Rate:           authRate,
			MetricInc:      inc,
			EmitAudit:      e.emitAudit,
			Logger:         e.logger,
			Metrics: flows.CheckMetrics{
				Check:       int(MetricCheckUser),
				RateLimited: int(MetricAuthRateLimited),
			},
			Events: flows.CheckEvents{RateLimited: auditEventRateLimitTriggered},
			Errors: errs,
		},
		Login: flows.LoginDeps{
			FindByNickname:    e.store.FindByNickname,
			Update:            e.store.Update,
			VerifyPassword:    e.hasher.Verify,
			NeedsUpgrade:      e.hasher.NeedsUpgrade,
			HashPassword:      e.hasher.Hash,
			DummyVerify:       e.dummyVerify,
			Tokens:            e.tokens,
			Lockout:           e.lockout,
			Rate:              authRate,
			ClientIP:          ClientIPFromContext,
			Now:               now,
			MaxRefreshTokens:  maxTokens,
			UpgradeOnLogin:    e.config.Password.UpgradeOnLogin,
			RevealUnknownUser: e.config.Security.RevealUnknownUser,
			MetricInc:         inc,
			EmitAudit:         e.emitAudit,
			Logger:            e.logger,
			Metrics: flows.LoginMetrics{
				Success:       int(MetricLoginSuccess),
				Failure:       int(MetricLoginFailure),
				Locked:        int(MetricLoginLocked),
				AccountLocked: int(MetricAccountLocked),
				RateLimited:   int(MetricAuthRateLimited),
				Rehash:        int(MetricPasswordRehash),
			},
			Events: flows.LoginEvents{
				Success:       auditEventLoginSuccess,
				Failure:       auditEventLoginFailure,
				AccountLocked: auditEventAccountLocked,
				RateLimited:   auditEventRateLimitTriggered,
			},
			Errors: errs,
		},
		Register: flows.RegisterDeps{
			FindByNickname:   e.store.FindByNickname,
			FindByEmail:      e.store.FindByEmail,
			Insert:           e.store.Insert,
			HashPassword:     e.hasher.Hash,
			VerifyCaptcha:    verifyCaptcha,
			Tokens:           e.tokens,
			NewID:            uuid.NewString,
			Rate:             authRate,
			ClientIP:         ClientIPFromContext,
			Now:              now,
			DefaultRole:      RoleUser,
			MaxRefreshTokens: maxTokens,
			MetricInc:        inc,
			EmitAudit:        e.emitAudit,
			Logger:           e.logger,
			Metrics: flows.RegisterMetrics{
				Success:        int(MetricRegisterSuccess),
				Conflict:       int(MetricRegisterConflict),
				CaptchaFailure: int(MetricCaptchaFailure),
				RateLimited:    int(MetricAuthRateLimited),
			},
			Events: flows.RegisterEvents{
				Success:     auditEventRegisterSuccess,
				Failure:     auditEventRegisterFailure,
				RateLimited: auditEventRateLimitTriggered,
			},
			Errors: errs,
		},
		Refresh: flows.RefreshDeps{
			VerifyRefresh:    e.tokens.VerifyRefresh,
			FindByID:         e.store.FindByID,
			Update:           e.store.Update,
			Tokens:           e.tokens,
			Now:              now,
			MaxRefreshTokens: maxTokens,
			MetricInc:        inc,
			EmitAudit:        e.emitAudit,
			Logger:           e.logger,
			Metrics: flows.RefreshMetrics{
				Success:       int(MetricRefreshSuccess),
				Failure:       int(MetricRefreshFailure),
				ReuseDetected: int(MetricRefreshReuseDetected),
			},
			Events: flows.RefreshEvents{
				Success:       auditEventRefreshSuccess,
				Invalid:       auditEventRefreshInvalid,
				ReuseDetected: auditEventRefreshReuseDetected,
			},
			Errors: errs,
		},
		Logout: flows.LogoutDeps{
			VerifyRefresh: e.tokens.VerifyRefresh,
			Update:        e.store.Update,
			Now:           now,
			MetricInc:     inc,
			EmitAudit:     e.emitAudit,
			Logger:        e.logger,
			Metrics:       flows.LogoutMetrics{Logout: int(MetricLogout)},
			Events:        flows.LogoutEvents{Logout: auditEventLogout},
		},
		Forgot: flows.ForgotPasswordDeps{
			FindByEmail:     e.store.FindByEmail,
			Update:          e.store.Update,
			SendReset:       e.sendReset,
			Rate:            resetRate,
			ClientIP:        ClientIPFromContext,
			Now:             now,
			TokenTTL:        e.config.PasswordReset.TokenTTL,
			MinResponseTime: e.config.PasswordReset.MinResponseTime,
			MetricInc:       inc,
			EmitAudit:       e.emitAudit,
			Logger:          e.logger,
			Metrics:         resetMetrics,
			Events:          resetEvents,
			Errors:          errs,
		},
		Reset: flows.ResetPasswordDeps{
			FindByResetToken: e.store.FindByResetToken,
			Update:           e.store.Update,
			HashPassword:     e.hasher.Hash,
			Rate:             resetRate,
			ClientIP:         ClientIPFromContext,
			Now:              now,
			MetricInc:        inc,
			EmitAudit:        e.emitAudit,
			Logger:           e.logger,
			Metrics:          resetMetrics,
			Events:           resetEvents,
			Errors:           errs,
		},
		Authenticate: flows.AuthenticateDeps{
			VerifyAccess: e.tokens.VerifyAccess,
			FindByID:     e.store.FindByID,
			Now:          now,
			MetricInc:    inc,
			Logger:       e.logger,
			Metrics:      flows.AuthenticateMetrics{Failure: int(MetricAuthenticateFailure)},
			Errors:       errs,
		},
		GetMe: flows.GetMeDeps{
			FindByID: e.store.FindByID,
			Errors:   errs,
		},
		Admin: flows.AdminDeps{
			FindByID:       e.store.FindByID,
			FindByNickname: e.store.FindByNickname,
			Update:         e.store.Update,
			List:           e.store.List,
			Stats:          e.store.Stats,
			Delete:         e.store.Delete,
			Now:            now,
			MetricInc:      inc,
			EmitAudit:      e.emitAudit,
			Logger:         e.logger,
			Metrics: flows.AdminMetrics{
				SessionsRevoked:    int(MetricSessionsRevoked),
				AccountDeactivated: int(MetricAccountDeactivated),
				AccountDeleted:     int(MetricAccountDeleted),
			},
			Events: flows.AdminEvents{
				StatusChange:   auditEventAccountStatusChange,
				RoleChange:     auditEventRoleChange,
				Unlock:         auditEventAccountUnlock,
				SessionsRevoke: auditEventSessionsRevoked,
				Delete:         auditEventAccountDeleted,
			},
			Errors: errs,
		},
	}
}
