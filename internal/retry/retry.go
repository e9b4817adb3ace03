// Package retry provides the bounded-retry-with-backoff policy applied at
// every upstream call boundary.
package retry

import (
	"context"
	"errors"
	"net"
	"time"
)

// Policy describes a deterministic retry schedule: up to MaxAttempts
// invocations, sleeping Backoff*2^(attempt-1) between them, capped at
// BackoffMax. No jitter; callers that need a reproducible schedule get one.
type Policy struct {
	MaxAttempts int
	Backoff     time.Duration
	BackoffMax  time.Duration
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.Backoff <= 0 {
		p.Backoff = 1 * time.Second
	}
	if p.BackoffMax <= 0 {
		p.BackoffMax = 30 * time.Second
	}
	return p
}

// TransientError marks an error as retryable.
//
// Upstream clients wrap rate-limit and server-side failures in TransientError
// so the policy retries them; anything else fails the attempt immediately.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	if e == nil || e.Err == nil {
		return "transient error"
	}
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Do invokes op until it succeeds or the policy's attempts are exhausted.
//
// The last error is returned on exhaustion; callers decide the degraded
// behavior. Permanent (non-transient) errors are returned without further
// attempts. Backoff sleeps are context-aware.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	p = p.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
		if !IsTransient(err) || attempt == p.MaxAttempts {
			return lastErr
		}

		t := time.NewTimer(backoffSleep(p.Backoff, p.BackoffMax, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
	return lastErr
}

// IsTransient reports whether err should be retried under the policy.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout() || ne.Temporary()
	}
	return false
}

func backoffSleep(base, max time.Duration, attempt int) time.Duration {
	sleep := base
	for i := 1; i < attempt && sleep < max; i++ {
		sleep *= 2
		if sleep > max {
			sleep = max
			break
		}
	}
	return sleep
}
