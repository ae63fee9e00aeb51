package snapshot

import (
	"fmt"

	"github.com/rohmanhakim/spec-harvester/pkg/failure"
)

type SnapshotError struct {
	Message   string
	Retryable bool
}

func (e *SnapshotError) Error() string {
	return fmt.Sprintf("snapshot error: %s", e.Message)
}

func (e *SnapshotError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *SnapshotError) IsRetryable() bool {
	return e.Retryable
}
