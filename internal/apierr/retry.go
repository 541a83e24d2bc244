package apierr

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// Retryable reports whether a classified provider failure is worth another
// attempt. Rate limits and timeouts clear on their own; rejected
// credentials and exhausted quotas do not, and a cancelled context means
// the caller is gone.
//
// Only the summarizer path retries; calls to the reddit API never do, their
// failures surface to the caller with a classification.
func Retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrTimeout)
}

// Backoff describes the delay schedule between attempts: Base doubled per
// retry up to Cap, each wait stretched by up to 25% random jitter so
// concurrent enhancement loops do not retry in lockstep.
//
// Invalid values are normalized:
//   - MaxRetries < 0 becomes 0 (single attempt)
//   - Base <= 0 becomes 1ms
//   - Cap <= 0 becomes Base
type Backoff struct {
	MaxRetries int
	Base       time.Duration
	Cap        time.Duration
}

func (b *Backoff) normalize() {
	if b.MaxRetries < 0 {
		b.MaxRetries = 0
	}
	if b.Base <= 0 {
		b.Base = time.Millisecond
	}
	if b.Cap <= 0 {
		b.Cap = b.Base
	}
}

// delay returns the jittered pause before the given retry (1-based).
func (b Backoff) delay(retry int) time.Duration {
	d := b.Base << (retry - 1)
	if d > b.Cap || d <= 0 {
		d = b.Cap
	}
	return d + time.Duration(rand.Int64N(int64(d)/4+1))
}

// RetryWithBackoff executes fn, retrying failures for which retryable
// returns true, on the schedule b describes. A nil retryable uses
// Retryable. Returns the first success or the last error; waiting between
// attempts is cut short when ctx is done.
func RetryWithBackoff[T any](
	ctx context.Context,
	b Backoff,
	fn func() (T, error),
	retryable func(error) bool,
) (T, error) {
	b.normalize()
	if retryable == nil {
		retryable = Retryable
	}

	var zero T
	var lastErr error

	for attempt := 0; ; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}

		lastErr = err
		if !retryable(lastErr) {
			return zero, lastErr
		}
		if attempt == b.MaxRetries {
			return zero, fmt.Errorf("max retries (%d) exceeded: %w", b.MaxRetries, lastErr)
		}
		if err := sleep(ctx, b.delay(attempt+1)); err != nil {
			return zero, err
		}
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
