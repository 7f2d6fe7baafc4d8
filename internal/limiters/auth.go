package limiters

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/nickauth/internal/rate"
)

var (
	ErrAuthRateLimited      = errors.New("auth rate limited")
	ErrAuthRedisUnavailable = errors.New("auth limiter redis unavailable")
)

// AuthConfig configures the per-IP limiter for check, login and register.
type AuthConfig struct {
	MaxFailures int
	Window      time.Duration
}

// AuthLimiter counts only failed requests per client IP. Successful
// requests are free.
type AuthLimiter struct {
	window *rate.Window
}

// NewAuthLimiter returns nil when redisClient is nil.
func NewAuthLimiter(redisClient redis.UniversalClient, prefix string, cfg AuthConfig) *AuthLimiter {
	w := rate.NewWindow(redisClient, prefix+":rl:auth", cfg.MaxFailures, cfg.Window)
	if w == nil {
		return nil
	}
	return &AuthLimiter{window: w}
}

// Check fails with ErrAuthRateLimited once ip exhausted its failure budget.
func (l *AuthLimiter) Check(ctx context.Context, ip string) error {
	if l == nil {
		return nil
	}
	return mapAuthErr(l.window.Check(ctx, ip))
}

// RecordFailure counts one failed request for ip.
func (l *AuthLimiter) RecordFailure(ctx context.Context, ip string) error {
	if l == nil {
		return nil
	}
	return mapAuthErr(l.window.Hit(ctx, ip))
}

// RetryAfter reports the remaining window for ip.
func (l *AuthLimiter) RetryAfter(ctx context.Context, ip string) time.Duration {
	if l == nil {
		return 0
	}
	d, _ := l.window.RetryAfter(ctx, ip)
	return d
}

func mapAuthErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		return ErrAuthRateLimited
	default:
		return errors.Join(ErrAuthRedisUnavailable, err)
	}
}
