package intel

import (
	"fmt"

	"github.com/rohmanhakim/spec-harvester/pkg/failure"
)

type IntelError struct {
	Message   string
	Retryable bool
}

func (e *IntelError) Error() string {
	return fmt.Sprintf("intel error: %s", e.Message)
}

func (e *IntelError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *IntelError) IsRetryable() bool {
	return e.Retryable
}
