package extractor

import (
	"fmt"

	"github.com/rohmanhakim/spec-harvester/internal/metadata"
	"github.com/rohmanhakim/spec-harvester/pkg/failure"
)

type ExtractionErrorCause string

const (
	ErrCauseNotHTML      ExtractionErrorCause = "input is not HTML"
	ErrCauseNotJSON      ExtractionErrorCause = "input is not JSON"
	ErrCauseNoCandidates ExtractionErrorCause = "no candidates found"
)

type ExtractionError struct {
	Message   string
	Retryable bool
	Cause     ExtractionErrorCause
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extractor error: %s", e.Cause)
}

func (e *ExtractionError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *ExtractionError) IsRetryable() bool {
	return e.Retryable
}

func mapExtractionErrorToMetadataCause(err *ExtractionError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseNotHTML, ErrCauseNotJSON:
		return metadata.CauseContentInvalid
	default:
		return metadata.CauseUnknown
	}
}
