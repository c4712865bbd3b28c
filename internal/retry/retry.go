// Package retry runs an operation with exponential backoff. It is the single
// retry helper of the service; callers describe the attempt budget with a
// Policy instead of hand-rolling loops per call site.
package retry

import (
	"context"
	"errors"
	"time"
)

// Policy bounds a retried operation.
type Policy struct {
	MaxAttempts int           // total attempts including the first; values < 1 mean 1
	BaseDelay   time.Duration // delay before the second attempt; doubled afterwards
	MaxDelay    time.Duration // cap for a single delay; zero means uncapped
}

// DefaultPolicy mirrors the upstream fetchers: three retries starting at one second.
var DefaultPolicy = Policy{MaxAttempts: 4, BaseDelay: time.Second, MaxDelay: 8 * time.Second}

// permanentError stops Do from retrying.
type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent wraps err so that Do returns it immediately without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do calls op until it succeeds, returns a Permanent error, the attempt budget
// is spent, or ctx is done. The error of the last attempt is returned, with a
// Permanent wrapper removed.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	delay := p.BaseDelay
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if attempt == attempts {
			break
		}
		if !sleepWithContext(ctx, delay) {
			return errors.Join(err, ctx.Err())
		}
		delay = nextBackoff(delay, p.MaxDelay)
	}
	return err
}

func nextBackoff(current, maxDelay time.Duration) time.Duration {
	next := current * 2
	if maxDelay > 0 && next > maxDelay {
		return maxDelay
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
