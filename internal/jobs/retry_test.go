package jobs

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"mediaconv/internal/convert"
)

func TestRetryPolicy_BackoffGrowsExponentially(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, BaseDelay: 2 * time.Second}
	if got := p.Backoff(1); got != 2*time.Second {
		t.Fatalf("Backoff(1) = %v", got)
	}
	if got := p.Backoff(2); got != 4*time.Second {
		t.Fatalf("Backoff(2) = %v", got)
	}
	if got := p.Backoff(3); got != 8*time.Second {
		t.Fatalf("Backoff(3) = %v", got)
	}
}

func TestRetryPolicy_ShouldRetry(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}
	transient := convert.TransientError(errors.New("io hiccup"))
	permanent := convert.PermanentError(errors.New("corrupt input"))

	if !p.ShouldRetry(1, transient) {
		t.Fatalf("transient failure on attempt 1 should retry")
	}
	if !p.ShouldRetry(2, transient) {
		t.Fatalf("transient failure on attempt 2 should retry")
	}
	if p.ShouldRetry(3, transient) {
		t.Fatalf("attempt budget exhausted, must not retry")
	}
	if p.ShouldRetry(1, permanent) {
		t.Fatalf("permanent failure must not consume retries")
	}
	if p.ShouldRetry(1, &convert.UnsupportedFormatError{Type: convert.MediaVideo, Format: "xyz"}) {
		t.Fatalf("unsupported format must not retry")
	}
	if p.ShouldRetry(1, &convert.ValidationError{Reason: "garbage"}) {
		t.Fatalf("validation error must not retry")
	}
}

func TestRetryable_UnclassifiedErrorsArePermanent(t *testing.T) {
	if Retryable(errors.New("some unknown failure")) {
		t.Fatalf("unclassified errors must be treated as permanent")
	}
	// Classification survives wrapping.
	wrapped := fmt.Errorf("convert: %w", convert.TransientError(errors.New("io")))
	if !Retryable(wrapped) {
		t.Fatalf("wrapped transient error should stay retryable")
	}
}
