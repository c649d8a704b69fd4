package runner

import (
	"context"
	"time"

	"github.com/mbaxter/stampede/internal/behavior"
)

// RetryPolicy configures retry behavior for a wrapped executor. Retries are a
// deliberate wrapping policy, never part of the executor itself; only the
// final outcome reaches the recorder, so retried attempts are invisible to
// the statistics.
type RetryPolicy struct {
	MaxAttempts int                                 // total attempts including the initial try
	Delay       time.Duration                       // fixed delay between retries (used if DelayFunc nil)
	ShouldRetry func(behavior.Outcome) bool         // predicate; if nil, transport errors and 5xx retried
	DelayFunc   func(attempt int) time.Duration     // dynamic backoff; attempt is 1-based
}

type retryExecutor struct {
	inner  Executor
	policy RetryPolicy
}

// WithRetry wraps an executor with retry capability.
func WithRetry(exec Executor, policy RetryPolicy) Executor {
	if policy.MaxAttempts <= 1 {
		return exec // no retries needed
	}
	if policy.ShouldRetry == nil {
		policy.ShouldRetry = defaultShouldRetry
	}
	return &retryExecutor{inner: exec, policy: policy}
}

func (r *retryExecutor) Execute(ctx context.Context, category string, spec behavior.RequestSpec, timeout time.Duration) behavior.Outcome {
	var last behavior.Outcome
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		last = r.inner.Execute(ctx, category, spec, timeout)
		if last.Cancelled || !r.policy.ShouldRetry(last) {
			return last
		}

		// Don't delay after the last attempt.
		if attempt < r.policy.MaxAttempts {
			var delay time.Duration
			if r.policy.DelayFunc != nil {
				delay = r.policy.DelayFunc(attempt)
			} else {
				delay = r.policy.Delay
			}
			if delay > 0 {
				timer := time.NewTimer(delay)
				select {
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
					return last
				}
			}
		}
	}
	return last
}

func defaultShouldRetry(o behavior.Outcome) bool {
	if o.ErrorKind == behavior.ErrorKindTimeout || o.ErrorKind == behavior.ErrorKindConnection {
		return true
	}
	return o.StatusCode >= 500
}
