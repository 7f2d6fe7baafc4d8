package limiters

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/nickauth/internal/rate"
)

var (
	ErrResetRateLimited      = errors.New("reset rate limited")
	ErrResetRedisUnavailable = errors.New("reset redis unavailable")
)

// PasswordResetConfig configures the per-IP limiter shared by
// forgot-password and reset-password.
type PasswordResetConfig struct {
	MaxRequests int
	Window      time.Duration
}

// PasswordResetLimiter counts every request per client IP.
type PasswordResetLimiter struct {
	window *rate.Window
}

// NewPasswordResetLimiter returns nil when redisClient is nil.
func NewPasswordResetLimiter(redisClient redis.UniversalClient, prefix string, cfg PasswordResetConfig) *PasswordResetLimiter {
	w := rate.NewWindow(redisClient, prefix+":rl:reset", cfg.MaxRequests, cfg.Window)
	if w == nil {
		return nil
	}
	return &PasswordResetLimiter{window: w}
}

// Allow counts a request for ip and fails with ErrResetRateLimited when
// the budget is exceeded.
func (l *PasswordResetLimiter) Allow(ctx context.Context, ip string) error {
	if l == nil {
		return nil
	}
	err := l.window.Allow(ctx, ip)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		return ErrResetRateLimited
	default:
		return errors.Join(ErrResetRedisUnavailable, err)
	}
}

// RetryAfter reports the remaining window for ip.
func (l *PasswordResetLimiter) RetryAfter(ctx context.Context, ip string) time.Duration {
	if l == nil {
		return 0
	}
	d, _ := l.window.RetryAfter(ctx, ip)
	return d
}
