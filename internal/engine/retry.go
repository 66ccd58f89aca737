package engine

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/mvaldes-dt/schemaflow/pkg/schema"
)

// RetryPolicy bounds how stage attempts are retried after transient failures.
type RetryPolicy struct {
	// MaxAttempts caps how many times one stage runs within a workflow,
	// counting the first attempt.
	MaxAttempts int
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration
	// MaxDelay caps the exponential growth.
	MaxDelay time.Duration
}

// DefaultRetryPolicy returns the documented default: three attempts with
// exponential backoff from 500ms capped at 10s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
	}
}

// IsRetryableError classifies whether a stage failure should be retried.
// Typed pipeline errors decide by code; deadline expiry and network errors
// are transient; everything else is final.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Deadline expiry is a stage timeout, retried like InferenceUnavailable.
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// Cancellation means the workflow is being torn down.
	if errors.Is(err, context.Canceled) {
		return false
	}

	var perr *schema.PipelineError
	if errors.As(err, &perr) {
		return perr.IsRetryable()
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return false
}

// ComputeBackoff calculates the delay before the next retry: exponential in
// the attempt number, capped at MaxDelay. attempt is zero-based.
func ComputeBackoff(policy RetryPolicy, attempt int) time.Duration {
	if policy.BaseDelay <= 0 {
		return 0
	}

	delay := policy.BaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if policy.MaxDelay > 0 && delay >= policy.MaxDelay {
			return policy.MaxDelay
		}
	}
	if policy.MaxDelay > 0 && delay > policy.MaxDelay {
		delay = policy.MaxDelay
	}
	return delay
}

// WaitForBackoff sleeps for the delay or returns early when the context is
// cancelled.
func WaitForBackoff(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
