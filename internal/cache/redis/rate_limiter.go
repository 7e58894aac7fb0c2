package redis

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/bondwizard/internal/domain"
)

//go:embed scripts/sliding_window.lua
var slidingWindowLua string

const (
	minWaitPoll = 20 * time.Millisecond
	maxWaitPoll = 2 * time.Second
)

// Decision is the result of one rate limit check.
type Decision struct {
	Allowed bool
	// Count is the number of admitted requests in the current window,
	// including this one when allowed.
	Count int
	// RetryAfter is how long until the window has room again; zero when
	// allowed.
	RetryAfter time.Duration
}

// RateLimiter is a sliding-window limiter over Redis sorted sets. It guards
// the public API per client and the price feed's upstream quota.
type RateLimiter struct {
	rdb           *redis.Client
	slidingWindow *redis.Script
}

// NewRateLimiter creates a RateLimiter backed by the given Client.
func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{
		rdb:           c.Underlying(),
		slidingWindow: redis.NewScript(slidingWindowLua),
	}
}

// Take counts a request against key when the window has room.
func (rl *RateLimiter) Take(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	res, err := rl.slidingWindow.Run(ctx, rl.rdb,
		[]string{"ratelimit:" + key},
		time.Now().UnixMicro(),
		window.Microseconds(),
		limit,
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("redis: rate limit %s: %w", key, err)
	}
	if len(res) < 3 {
		return Decision{}, fmt.Errorf("redis: rate limit %s: unexpected reply length %d", key, len(res))
	}
	return Decision{
		Allowed:    res[0] == 1,
		Count:      int(res[1]),
		RetryAfter: time.Duration(res[2]) * time.Microsecond,
	}, nil
}

// Allow implements domain.RateLimiter.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	d, err := rl.Take(ctx, key, limit, window)
	return d.Allowed, err
}

// Wait blocks until key is admitted under limit per window, sleeping for the
// retry hint between attempts.
func (rl *RateLimiter) Wait(ctx context.Context, key string, limit int, window time.Duration) error {
	for {
		d, err := rl.Take(ctx, key, limit, window)
		if err != nil {
			return err
		}
		if d.Allowed {
			return nil
		}

		pause := min(max(d.RetryAfter, minWaitPoll), maxWaitPoll)
		timer := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("redis: rate limit wait %s: %w", key, ctx.Err())
		case <-timer.C:
		}
	}
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
