package flows

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/nickauth/jwt"
	"github.com/MrEthical07/nickauth/store"
)

// AuthenticateMetrics defines metric IDs emitted by RunAuthenticate.
type AuthenticateMetrics struct {
	Failure int
}

// AuthenticateDeps defines dependencies for access-token gating.
type AuthenticateDeps struct {
	VerifyAccess func(string) (*jwt.Claims, error)
	FindByID     func(context.Context, string) (*store.User, error)
	Now          func() time.Time

	MetricInc func(int)
	Logger    *zap.Logger

	Metrics AuthenticateMetrics
	Errors  Errors
}

// RunAuthenticate resolves an access token to a live account. The account
// is reloaded on every call so deactivation, locks and password resets
// apply immediately.
func RunAuthenticate(ctx context.Context, accessToken string, deps AuthenticateDeps) (user *store.User, err error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	defer func() {
		if err != nil {
			deps.MetricInc(deps.Metrics.Failure)
		}
	}()

	if accessToken == "" {
		return nil, deps.Errors.NoToken
	}
	claims, err := deps.VerifyAccess(accessToken)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, deps.Errors.TokenExpired
		}
		return nil, deps.Errors.InvalidToken
	}

	user, err = deps.FindByID(ctx, claims.UserID)
	if errors.Is(err, store.ErrNotFound) {
		orNop(deps.Logger).Debug("access token for missing user", zap.String("user_id", claims.UserID))
		return nil, deps.Errors.Unauthorized
	}
	if err != nil {
		return nil, deps.Errors.Internal("load user", err)
	}
	if user.PasswordChangedAt != nil && (claims.IssuedAt == nil || user.TokenPredatesPasswordChange(claims.IssuedAt.Time)) {
		orNop(deps.Logger).Debug("access token predates password change", zap.String("user_id", user.ID))
		return nil, deps.Errors.InvalidToken
	}
	if !user.IsActive {
		return nil, deps.Errors.AccountDeactivated
	}
	if user.IsLocked(deps.Now()) {
		return nil, deps.Errors.AccountLocked
	}
	return user, nil
}

// GetMeDeps defines dependencies for profile reloads.
type GetMeDeps struct {
	FindByID func(context.Context, string) (*store.User, error)
	Errors   Errors
}

// RunGetMe reloads the caller's record.
func RunGetMe(ctx context.Context, userID string, deps GetMeDeps) (*store.User, error) {
	if userID == "" {
		return nil, deps.Errors.Unauthorized
	}
	u, err := deps.FindByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, deps.Errors.UserNotFound
	}
	if err != nil {
		return nil, deps.Errors.Internal("load user", err)
	}
	return u, nil
}
