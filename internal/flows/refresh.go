package flows

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/nickauth/internal"
	"github.com/MrEthical07/nickauth/jwt"
	"github.com/MrEthical07/nickauth/store"
)

// RefreshFailureKind classifies refresh failures for audit metadata.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureMissing
	RefreshFailureExpired
	RefreshFailureDecode
	RefreshFailureUserGone
	RefreshFailureInactive
	RefreshFailureReuse
	RefreshFailureIssue
	RefreshFailureStore
)

func (k RefreshFailureKind) String() string {
	switch k {
	case RefreshFailureMissing:
		return "missing"
	case RefreshFailureExpired:
		return "expired"
	case RefreshFailureDecode:
		return "decode"
	case RefreshFailureUserGone:
		return "user_not_found"
	case RefreshFailureInactive:
		return "account_deactivated"
	case RefreshFailureReuse:
		return "reuse"
	case RefreshFailureIssue:
		return "issue"
	case RefreshFailureStore:
		return "store"
	default:
		return "none"
	}
}

// RefreshMetrics defines metric IDs emitted by RunRefresh.
type RefreshMetrics struct {
	Success       int
	Failure       int
	ReuseDetected int
}

// RefreshEvents defines audit event names emitted by RunRefresh.
type RefreshEvents struct {
	Success       string
	Invalid       string
	ReuseDetected string
}

// RefreshDeps defines dependencies for refresh-token rotation.
type RefreshDeps struct {
	VerifyRefresh func(string) (*jwt.Claims, error)
	FindByID      func(context.Context, string) (*store.User, error)
	Update        func(context.Context, string, store.MutateFunc) (*store.User, error)
	Tokens        TokenIssuer
	Now           func() time.Time

	MaxRefreshTokens int

	MetricInc func(int)
	EmitAudit AuditFunc
	Logger    *zap.Logger

	Metrics RefreshMetrics
	Events  RefreshEvents
	Errors  Errors
}

// RunRefresh exchanges a refresh token for a new pair. The presented token
// leaves the user's list in the same write that adds its successor. A token
// that verifies but is no longer listed was already rotated: every session
// of the user is revoked.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) (*AuthResult, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	logger := orNop(deps.Logger)

	fail := func(userID string, kind RefreshFailureKind, out error) (*AuthResult, error) {
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.Invalid, false, userID, "", out, func() map[string]string {
			return map[string]string{"reason": kind.String()}
		})
		return nil, out
	}

	if refreshToken == "" {
		logger.Warn("refresh attempt without token")
		return fail("", RefreshFailureMissing, deps.Errors.NoToken)
	}

	claims, err := deps.VerifyRefresh(refreshToken)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return fail("", RefreshFailureExpired, deps.Errors.TokenExpired)
		}
		return fail("", RefreshFailureDecode, deps.Errors.InvalidToken)
	}

	user, err := deps.FindByID(ctx, claims.UserID)
	if errors.Is(err, store.ErrNotFound) {
		logger.Warn("refresh token for non-existent user", zap.String("user_id", claims.UserID))
		return fail(claims.UserID, RefreshFailureUserGone, deps.Errors.Unauthorized)
	}
	if err != nil {
		return nil, deps.Errors.Internal("find user", err)
	}
	if !user.IsActive {
		return fail(user.ID, RefreshFailureInactive, deps.Errors.AccountDeactivated)
	}

	refresh, refreshExp, err := deps.Tokens.IssueRefresh(user.ID)
	if err != nil {
		deps.MetricInc(deps.Metrics.Failure)
		return nil, deps.Errors.Internal("issue tokens", err)
	}
	pair := tokenPair{refresh: refresh, expiresAt: refreshExp}

	presented := internal.HashToken(refreshToken)
	now := deps.Now()
	var (
		reused   bool
		issueErr error
	)
	updated, err := deps.Update(ctx, user.ID, func(u *store.User) error {
		reused, issueErr = false, nil
		if !u.IsActive {
			return deps.Errors.AccountDeactivated
		}
		if !u.HasRefreshToken(presented, now) {
			reused = true
			u.ClearRefreshTokens()
			u.UpdatedAt = now
			return nil
		}
		// The access token carries the role being committed, not the one
		// read before the write.
		access, err := deps.Tokens.IssueAccess(u.ID, string(u.Role))
		if err != nil {
			issueErr = err
			return err
		}
		pair.access = access
		u.RemoveRefreshToken(presented)
		u.AddRefreshToken(pair.entry(now), deps.MaxRefreshTokens, now)
		u.UpdatedAt = now
		return nil
	})
	switch {
	case issueErr != nil:
		deps.MetricInc(deps.Metrics.Failure)
		return nil, deps.Errors.Internal("issue tokens", issueErr)
	case errors.Is(err, deps.Errors.AccountDeactivated):
		return fail(user.ID, RefreshFailureInactive, err)
	case errors.Is(err, store.ErrNotFound):
		return fail(user.ID, RefreshFailureUserGone, deps.Errors.Unauthorized)
	case err != nil:
		deps.MetricInc(deps.Metrics.Failure)
		return nil, deps.Errors.Internal("rotate refresh token", err)
	}

	if reused {
		deps.MetricInc(deps.Metrics.ReuseDetected)
		deps.EmitAudit(ctx, deps.Events.ReuseDetected, false, user.ID, user.Nickname, deps.Errors.InvalidRefreshToken, nil)
		logger.Warn("refresh token reuse detected, all sessions revoked", zap.String("user_id", user.ID))
		return fail(user.ID, RefreshFailureReuse, deps.Errors.InvalidRefreshToken)
	}

	deps.MetricInc(deps.Metrics.Success)
	deps.EmitAudit(ctx, deps.Events.Success, true, updated.ID, updated.Nickname, nil, nil)
	logger.Info("tokens refreshed", zap.String("user_id", updated.ID))
	return pair.result(updated), nil
}
