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

var errNoChange = errors.New("flows: nothing to change")

// LogoutMetrics defines metric IDs emitted by RunLogout.
type LogoutMetrics struct {
	Logout int
}

// LogoutEvents defines audit event names emitted by RunLogout.
type LogoutEvents struct {
	Logout string
}

// LogoutDeps defines dependencies for single-session logout.
type LogoutDeps struct {
	// VerifyRefresh resolves the owner when the caller has no user ID.
	VerifyRefresh func(string) (*jwt.Claims, error)
	Update        func(context.Context, string, store.MutateFunc) (*store.User, error)
	Now           func() time.Time

	MetricInc func(int)
	EmitAudit AuditFunc
	Logger    *zap.Logger

	Metrics LogoutMetrics
	Events  LogoutEvents
}

// RunLogout drops refreshToken from userID's list. It never fails: an
// absent token, an unknown user or a store fault all end in a logged-out
// client.
func RunLogout(ctx context.Context, userID, refreshToken string, deps LogoutDeps) {
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

	deps.MetricInc(deps.Metrics.Logout)
	if refreshToken == "" {
		deps.EmitAudit(ctx, deps.Events.Logout, true, userID, "", nil, nil)
		return
	}
	if userID == "" && deps.VerifyRefresh != nil {
		if claims, err := deps.VerifyRefresh(refreshToken); err == nil {
			userID = claims.UserID
		}
	}
	if userID == "" {
		return
	}

	hash := internal.HashToken(refreshToken)
	now := deps.Now()
	_, err := deps.Update(ctx, userID, func(u *store.User) error {
		if !u.RemoveRefreshToken(hash) {
			return errNoChange
		}
		u.UpdatedAt = now
		return nil
	})
	if err != nil && !errors.Is(err, errNoChange) && !errors.Is(err, store.ErrNotFound) {
		logger.Warn("logout could not drop refresh token", zap.String("user_id", userID), zap.Error(err))
	}

	deps.EmitAudit(ctx, deps.Events.Logout, true, userID, "", nil, nil)
	logger.Info("user logged out", zap.String("user_id", userID))
}
