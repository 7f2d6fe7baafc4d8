package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Window is a Redis fixed-window counter: INCR on a key, EXPIRE set on the
// first hit, limit exceeded once the count passes Limit. A nil *Window
// allows everything.
type Window struct {
	redis  redis.UniversalClient
	prefix string
	limit  int
	period time.Duration
}

// NewWindow returns a Window, or nil when client is nil or limit <= 0.
func NewWindow(client redis.UniversalClient, prefix string, limit int, period time.Duration) *Window {
	if client == nil || limit <= 0 || period <= 0 {
		return nil
	}
	return &Window{redis: client, prefix: prefix, limit: limit, period: period}
}

// Limit returns the per-window budget.
func (w *Window) Limit() int {
	if w == nil {
		return 0
	}
	return w.limit
}

// Allow counts one hit for id and returns ErrRateLimited when the hit
// exceeds the budget.
func (w *Window) Allow(ctx context.Context, id string) error {
	if w == nil || id == "" {
		return nil
	}
	count, err := w.incrementWithTTL(ctx, w.key(id))
	if err != nil {
		return err
	}
	if count > int64(w.limit) {
		return ErrRateLimited
	}
	return nil
}

// Check returns ErrRateLimited when id already used its budget, without
// counting a hit.
func (w *Window) Check(ctx context.Context, id string) error {
	if w == nil || id == "" {
		return nil
	}
	count, err := w.redis.Get(ctx, w.key(id)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count >= int64(w.limit) {
		return ErrRateLimited
	}
	return nil
}

// Hit counts one hit without enforcing the budget.
func (w *Window) Hit(ctx context.Context, id string) error {
	if w == nil || id == "" {
		return nil
	}
	_, err := w.incrementWithTTL(ctx, w.key(id))
	return err
}

// Reset clears the counter for id.
func (w *Window) Reset(ctx context.Context, id string) error {
	if w == nil || id == "" {
		return nil
	}
	if err := w.redis.Del(ctx, w.key(id)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// RetryAfter returns the remaining window for id, or zero when no window is open.
func (w *Window) RetryAfter(ctx context.Context, id string) (time.Duration, error) {
	if w == nil || id == "" {
		return 0, nil
	}
	ttl, err := w.redis.TTL(ctx, w.key(id)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

func (w *Window) key(id string) string {
	return w.prefix + ":" + id
}

func (w *Window) incrementWithTTL(ctx context.Context, key string) (int64, error) {
	count, err := w.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := w.redis.Expire(ctx, key, w.period).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return count, nil
}
