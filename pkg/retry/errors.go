package retry

import (
	"fmt"

	"github.com/rohmanhakim/spec-harvester/pkg/failure"
)

type RetryErrorCause string

const (
	ErrZeroAttempt       RetryErrorCause = "max attempt cannot be 0"
	ErrExhaustedAttempts RetryErrorCause = "exhausted attempts"
)

type RetryError struct {
	Message   string
	Cause     RetryErrorCause
	Retryable bool
	Attempts  int
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("retry error: %s", e.Message)
}

func (e *RetryError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *RetryError) IsRetryable() bool {
	return e.Retryable
}
