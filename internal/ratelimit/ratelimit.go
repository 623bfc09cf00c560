// Package ratelimit paces calls to upstream market-data providers.
//
// Every outbound call waits on a token bucket and then sleeps a random
// jitter; moving on to the next security adds a longer random cool-down.
package ratelimit

import (
	"context"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is what provider clients and the sync orchestrator depend on.
type Limiter interface {
	// Wait blocks before a single outbound call.
	Wait(ctx context.Context) error
	// Cooldown blocks between two securities within one sync.
	Cooldown(ctx context.Context) error
}

// Config describes the pacing.
type Config struct {
	RequestsPerMinute int
	Burst             int
	MinCallDelay      time.Duration
	MaxCallDelay      time.Duration
	MinSecurityDelay  time.Duration
	MaxSecurityDelay  time.Duration
}

// TokenBucket implements Limiter on top of golang.org/x/time/rate.
type TokenBucket struct {
	bucket   *rate.Limiter
	cfg      Config
	sleep    func(ctx context.Context, d time.Duration) error
	randomIn func(lo, hi time.Duration) time.Duration
}

// New creates a TokenBucket. A non-positive RequestsPerMinute disables the bucket.
func New(cfg Config) *TokenBucket {
	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &TokenBucket{
		bucket:   rate.NewLimiter(limit, burst),
		cfg:      cfg,
		sleep:    Sleep,
		randomIn: uniform,
	}
}

// Wait takes a token and then sleeps a random per-call jitter.
func (l *TokenBucket) Wait(ctx context.Context) error {
	if err := l.bucket.Wait(ctx); err != nil {
		return err
	}
	return l.sleep(ctx, l.randomIn(l.cfg.MinCallDelay, l.cfg.MaxCallDelay))
}

// Cooldown sleeps a random delay between two securities.
func (l *TokenBucket) Cooldown(ctx context.Context) error {
	return l.sleep(ctx, l.randomIn(l.cfg.MinSecurityDelay, l.cfg.MaxSecurityDelay))
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func uniform(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo+1)
}

// Unlimited never blocks. Used by tests and by the CLI value command.
type Unlimited struct{}

func (Unlimited) Wait(ctx context.Context) error     { return ctx.Err() }
func (Unlimited) Cooldown(ctx context.Context) error { return ctx.Err() }
