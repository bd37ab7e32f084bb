package jobs

import (
	"errors"
	"time"
)

// RetryPolicy bounds attempts per job and spaces retries exponentially.
// The queue layer applies the delay; the dispatcher uses the same policy
// to know when an attempt is the last one.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 2 * time.Second}
}

// Backoff returns the pause before the retry following the given failed
// attempt (1-based): base, 2*base, 4*base, ...
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.BaseDelay << (attempt - 1)
}

// ShouldRetry reports whether another attempt is warranted after the
// given attempt failed with err. Only failures explicitly classified as
// transient are retried; anything else is permanent.
func (p RetryPolicy) ShouldRetry(attempt int, err error) bool {
	return attempt < p.MaxAttempts && Retryable(err)
}

type retryable interface {
	Retryable() bool
}

// Retryable reports whether err is classified as transient. Errors
// without a classification are treated as permanent.
func Retryable(err error) bool {
	var r retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}
