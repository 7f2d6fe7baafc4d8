package flows

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/MrEthical07/nickauth/internal/limiters"
)

// AuthRate is the per-IP failure budget shared by check, login and
// register. Either func may be nil when no limiter is configured.
type AuthRate struct {
	Check         func(ctx context.Context, ip string) error
	RecordFailure func(ctx context.Context, ip string) error
}

// admit reports whether ip may proceed. A limiter backend outage is logged
// and the request is let through.
func (r AuthRate) admit(ctx context.Context, ip string, logger *zap.Logger) bool {
	if r.Check == nil {
		return true
	}
	err := r.Check(ctx, ip)
	switch {
	case err == nil:
		return true
	case errors.Is(err, limiters.ErrAuthRateLimited):
		return false
	default:
		logger.Warn("auth rate limiter unavailable", zap.Error(err))
		return true
	}
}

// fail counts one failed request. The rate-limited answer itself is not
// counted again.
func (r AuthRate) fail(ctx context.Context, ip string, err, limited error, logger *zap.Logger) {
	if err == nil || r.RecordFailure == nil || errors.Is(err, limited) {
		return
	}
	if rerr := r.RecordFailure(ctx, ip); rerr != nil {
		logger.Warn("auth rate limiter record failed", zap.Error(rerr))
	}
}

// ResetRate is the per-IP request budget shared by forgot and reset.
type ResetRate struct {
	Allow func(ctx context.Context, ip string) error
}

func (r ResetRate) admit(ctx context.Context, ip string, logger *zap.Logger) bool {
	if r.Allow == nil {
		return true
	}
	err := r.Allow(ctx, ip)
	switch {
	case err == nil:
		return true
	case errors.Is(err, limiters.ErrResetRateLimited):
		return false
	default:
		logger.Warn("password reset rate limiter unavailable", zap.Error(err))
		return true
	}
}
