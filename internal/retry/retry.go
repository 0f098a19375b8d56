// Package retry runs an operation with bounded attempts and exponential backoff.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// ErrInvalidPolicy is returned by Validate for inconsistent settings.
var ErrInvalidPolicy = errors.New("invalid retry policy")

// Policy configures Do.
type Policy struct {
	// MaxAttempts counts the first call; 1 disables retries.
	MaxAttempts int
	BaseDelay   time.Duration
	// MaxDelay caps the exponential part of the delay. Zero means no cap.
	MaxDelay time.Duration
	// Retryable decides whether err is worth another attempt. Nil retries every error.
	Retryable func(err error) bool
}

// Validate checks that the policy can be executed.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return ErrInvalidPolicy
	}
	if p.BaseDelay < 0 || p.MaxDelay < 0 {
		return ErrInvalidPolicy
	}
	if p.MaxDelay > 0 && p.BaseDelay > 0 && p.MaxDelay < p.BaseDelay {
		return ErrInvalidPolicy
	}
	return nil
}

// Do calls fn until it succeeds, returns a non-retryable error, the attempts
// run out or ctx is done. The last error from fn is returned.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	if err := p.Validate(); err != nil {
		return err
	}

	var err error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if attempt == p.MaxAttempts-1 {
			break
		}

		timer := time.NewTimer(Backoff(attempt, p.BaseDelay, p.MaxDelay))
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
	return err
}

// Backoff returns base * 2^attempt capped at maxDelay, plus up to base of jitter.
func Backoff(attempt int, base, maxDelay time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt > 30 {
		attempt = 30
	}
	delay := base * (1 << attempt)
	if delay <= 0 || (maxDelay > 0 && delay > maxDelay) {
		delay = maxDelay
	}
	return delay + rand.N(base) // #nosec G404 -- jitter for retry timing
}
