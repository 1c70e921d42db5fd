package store

import (
	"context"
	"math/rand"
	"time"
)

// RetryConfig controls the bounded randomised backoff applied to
// conflict-on-commit retries inside Update implementations.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryConfig mirrors the teacher stack's lock-store retry tuning:
// a handful of attempts is enough to ride out a transient conflict without
// making a genuinely stuck caller wait long.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts: 5,
	BaseDelay:   2 * time.Millisecond,
	MaxDelay:    50 * time.Millisecond,
}

// WithRetry runs attempt repeatedly until it returns a nil error or an error
// other than ErrConflict, or until cfg.MaxAttempts is exhausted, sleeping a
// randomised exponential backoff between attempts. The final ErrConflict is
// returned unchanged if every attempt conflicts.
func WithRetry(ctx context.Context, cfg RetryConfig, attempt func() error) error {
	var err error
	delay := cfg.BaseDelay
	for i := 0; i < cfg.MaxAttempts; i++ {
		err = attempt()
		if err == nil || err != ErrConflict {
			return err
		}
		if i == cfg.MaxAttempts-1 {
			break
		}
		jittered := delay/2 + time.Duration(rand.Int63n(int64(delay)+1))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jittered):
		}
		delay *= 2
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return err
}
