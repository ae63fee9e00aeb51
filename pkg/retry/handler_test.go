package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohmanhakim/spec-harvester/pkg/failure"
	"github.com/rohmanhakim/spec-harvester/pkg/retry"
	"github.com/rohmanhakim/spec-harvester/pkg/timeutil"
)

type fakeError struct {
	retryable bool
}

func (e *fakeError) Error() string { return "fake" }

func (e *fakeError) Severity() failure.Severity {
	if e.retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *fakeError) IsRetryable() bool { return e.retryable }

type countingSleeper struct {
	sleeps int
}

func (s *countingSleeper) Sleep(ctx context.Context, d time.Duration) {
	s.sleeps++
}

func param(maxAttempts int) retry.RetryParam {
	return retry.NewRetryParam(
		0, 42, maxAttempts,
		timeutil.NewBackoffParam(time.Millisecond, 2.0, 10*time.Millisecond),
	)
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	sleeper := &countingSleeper{}
	calls := 0

	result, err := retry.Retry(context.Background(), param(5), sleeper, func() (string, failure.ClassifiedError) {
		calls++
		if calls < 3 {
			return "", &fakeError{retryable: true}
		}
		return "ok", nil
	})

	require.Nil(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, sleeper.sleeps)
}

func TestRetry_NonRetryableStopsImmediately(t *testing.T) {
	calls := 0
	_, err := retry.Retry(context.Background(), param(5), &countingSleeper{}, func() (int, failure.ClassifiedError) {
		calls++
		return 0, &fakeError{retryable: false}
	})

	require.NotNil(t, err)
	assert.Equal(t, 1, calls)
	var fake *fakeError
	assert.True(t, errors.As(err, &fake), "original error surfaces unchanged")
}

func TestRetry_ExhaustionReturnsRetryError(t *testing.T) {
	calls := 0
	_, err := retry.Retry(context.Background(), param(3), &countingSleeper{}, func() (int, failure.ClassifiedError) {
		calls++
		return 0, &fakeError{retryable: true}
	})

	require.NotNil(t, err)
	assert.Equal(t, 3, calls)
	var retryErr *retry.RetryError
	require.True(t, errors.As(err, &retryErr))
	assert.Equal(t, retry.ErrExhaustedAttempts, retryErr.Cause)
	assert.Equal(t, failure.SeverityRecoverable, err.Severity())
}

func TestRetry_ZeroAttemptsIsAnError(t *testing.T) {
	_, err := retry.Retry(context.Background(), param(0), &countingSleeper{}, func() (int, failure.ClassifiedError) {
		t.Fatal("fn must not run")
		return 0, nil
	})
	require.NotNil(t, err)
	var retryErr *retry.RetryError
	require.True(t, errors.As(err, &retryErr))
	assert.Equal(t, retry.ErrZeroAttempt, retryErr.Cause)
}

func TestRetry_CancelledContextStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := retry.Retry(ctx, param(10), &countingSleeper{}, func() (int, failure.ClassifiedError) {
		calls++
		cancel()
		return 0, &fakeError{retryable: true}
	})
	require.NotNil(t, err)
	assert.Equal(t, 1, calls)
}
