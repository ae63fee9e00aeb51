package robots

import (
	"fmt"

	"github.com/rohmanhakim/spec-harvester/pkg/failure"
)

type RobotsErrorCause string

const (
	ErrCauseRequestBuild        RobotsErrorCause = "failed to build request"
	ErrCauseNetworkFailure      RobotsErrorCause = "network failure"
	ErrCauseHttpTooManyRequests RobotsErrorCause = "too many requests"
	ErrCauseHttpServerError     RobotsErrorCause = "server error"
	ErrCauseReadBody            RobotsErrorCause = "failed to read body"
)

type RobotsError struct {
	Message   string
	Retryable bool
	Cause     RobotsErrorCause
}

func (e *RobotsError) Error() string {
	return fmt.Sprintf("robots error: %s", e.Cause)
}

func (e *RobotsError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *RobotsError) IsRetryable() bool {
	return e.Retryable
}
