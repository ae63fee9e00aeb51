package retry

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/rohmanhakim/spec-harvester/pkg/failure"
	"github.com/rohmanhakim/spec-harvester/pkg/timeutil"
)

// Retry executes the provided function with retry logic.
// It will retry the function up to MaxAttempts times, applying exponential
// backoff with jitter between attempts. Only retryable errors trigger a
// retry; a non-retryable error is returned as-is.
//
// Cancellation of ctx stops the loop at the next backoff boundary.
func Retry[T any](
	ctx context.Context,
	retryParam RetryParam,
	sleeper timeutil.Sleeper,
	fn func() (T, failure.ClassifiedError),
) (T, failure.ClassifiedError) {
	var lastErr failure.ClassifiedError
	var zero T

	if retryParam.MaxAttempts < 1 {
		return zero, &RetryError{
			Message:   string(ErrZeroAttempt),
			Cause:     ErrZeroAttempt,
			Retryable: false,
		}
	}

	rng := rand.New(rand.NewSource(retryParam.RandomSeed))

	for attempt := 1; attempt <= retryParam.MaxAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !isErrorRetryable(err) {
			return zero, err
		}
		if attempt == retryParam.MaxAttempts {
			break
		}
		if ctx.Err() != nil {
			return zero, err
		}

		backoffDelay := timeutil.ExponentialBackoffDelay(
			attempt,
			retryParam.Jitter,
			rng,
			retryParam.BackoffParam,
		)
		sleeper.Sleep(ctx, backoffDelay)
	}

	return zero, &RetryError{
		Message:   fmt.Sprintf("exhausted %d attempts, last error: %v", retryParam.MaxAttempts, lastErr),
		Cause:     ErrExhaustedAttempts,
		Retryable: true, // recoverable at controller level
		Attempts:  retryParam.MaxAttempts,
	}
}

// isErrorRetryable checks if an error should be retried.
func isErrorRetryable(err failure.ClassifiedError) bool {
	type hasRetryable interface {
		IsRetryable() bool
	}
	if r, ok := err.(hasRetryable); ok {
		return r.IsRetryable()
	}
	// Errors that do not classify themselves default to retryable.
	return true
}
