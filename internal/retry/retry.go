// Package retry runs calls to external services under a bounded
// exponential-backoff policy. Only errors marked transient are retried.
package retry

import (
	"context"
	"errors"
	"time"
)

// Policy configures retry behaviour. MaxAttempts <= 1 disables retries.
type Policy struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
}

// None performs a single attempt.
var None = Policy{MaxAttempts: 1}

type transientError struct {
	err   error
	after time.Duration
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// TransientAfter marks err as retryable no sooner than after (e.g. Retry-After).
func TransientAfter(err error, after time.Duration) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err, after: after}
}

// IsTransient reports whether err was marked retryable.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

// Do calls f until it succeeds, returns a permanent error, the attempts run
// out or ctx is done. The last error is returned unwrapped of its transient mark.
func Do(ctx context.Context, p Policy, f func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		err = f(ctx)
		if err == nil {
			return nil
		}
		var te *transientError
		if !errors.As(err, &te) {
			return err
		}
		if attempt == attempts-1 {
			return te.err
		}
		wait := Delay(p, attempt)
		if te.after > wait {
			wait = te.after
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return err
}

// Delay returns the backoff before retry number attempt+1.
func Delay(p Policy, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := p.InitialWait
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	limit := p.MaxWait
	if limit <= 0 {
		limit = 5 * time.Second
	}
	if attempt > 30 {
		return limit
	}
	d := base << attempt
	if d > limit || d <= 0 {
		d = limit
	}
	return d
}
