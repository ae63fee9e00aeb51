package fileutil

import (
	"fmt"

	"github.com/rohmanhakim/spec-harvester/pkg/failure"
)

type FileErrorCause string

const (
	ErrCausePathError    FileErrorCause = "path error"
	ErrCauseWriteFailure FileErrorCause = "write failure"
	ErrCauseRenameError  FileErrorCause = "rename error"
)

type FileError struct {
	Message   string
	Retryable bool
	Cause     FileErrorCause
}

func (e *FileError) Error() string {
	return fmt.Sprintf("file error: %s", e.Cause)
}

func (e *FileError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *FileError) IsRetryable() bool {
	return e.Retryable
}
