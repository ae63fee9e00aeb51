package frontier

import (
	"fmt"
	"os"

	"github.com/rohmanhakim/spec-harvester/pkg/failure"
)

type StoreErrorCause string

const (
	ErrCausePersistence StoreErrorCause = "persistence failure"
	ErrCauseEncoding    StoreErrorCause = "encoding failure"
)

type StoreError struct {
	Message   string
	Retryable bool
	Cause     StoreErrorCause
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("frontier error: %s", e.Cause)
}

func (e *StoreError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *StoreError) IsRetryable() bool {
	return e.Retryable
}

// readIfExists returns nil data (no error) for a missing file.
func readIfExists(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}
