package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordingBucket(cfg Config) (*TokenBucket, *[]time.Duration) {
	var slept []time.Duration
	l := New(cfg)
	l.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return l, &slept
}

func TestTokenBucket(t *testing.T) {
	cfg := Config{
		RequestsPerMinute: 0,
		MinCallDelay:      100 * time.Millisecond,
		MaxCallDelay:      300 * time.Millisecond,
		MinSecurityDelay:  2 * time.Second,
		MaxSecurityDelay:  4 * time.Second,
	}

	t.Run("call jitter stays within bounds", func(t *testing.T) {
		l, slept := recordingBucket(cfg)

		for range 50 {
			require.NoError(t, l.Wait(context.Background()))
		}

		require.Len(t, *slept, 50)
		for _, d := range *slept {
			assert.GreaterOrEqual(t, d, cfg.MinCallDelay)
			assert.LessOrEqual(t, d, cfg.MaxCallDelay)
		}
	})

	t.Run("cooldown between securities is longer than call jitter", func(t *testing.T) {
		l, slept := recordingBucket(cfg)

		for range 20 {
			require.NoError(t, l.Cooldown(context.Background()))
		}

		for _, d := range *slept {
			assert.GreaterOrEqual(t, d, cfg.MinSecurityDelay)
			assert.LessOrEqual(t, d, cfg.MaxSecurityDelay)
		}
	})

	t.Run("cancelled context stops the wait", func(t *testing.T) {
		l := New(Config{RequestsPerMinute: 1, MinCallDelay: time.Hour, MaxCallDelay: time.Hour})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		assert.Error(t, l.Wait(ctx))
	})
}

func TestSleep(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := Sleep(ctx, time.Minute)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
