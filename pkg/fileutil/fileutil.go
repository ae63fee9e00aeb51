package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rohmanhakim/spec-harvester/pkg/failure"
)

// GetFileExtension extracts the file extension from a path, or empty string if none
func GetFileExtension(path string) string {
	ext := filepath.Ext(path)
	if ext == "" {
		return ""
	}
	return strings.TrimPrefix(ext, ".")
}

// EnsureDir check if a given directory plus the following path exist, then create one if not
func EnsureDir(dir string, path ...string) failure.ClassifiedError {
	targetPath := []string{dir}
	targetPath = append(targetPath, path...)

	fullPath := filepath.Join(targetPath...)
	if err := os.MkdirAll(fullPath, 0o755); err != nil {
		return &FileError{
			Message:   fmt.Sprintf("%v", err),
			Retryable: false,
			Cause:     ErrCausePathError,
		}
	}
	return nil
}

// WriteFileAtomic writes data to path with write-to-temp + rename semantics.
// A reader never observes a partially written file: either the previous
// content or the new content is visible.
func WriteFileAtomic(path string, data []byte) failure.ClassifiedError {
	dir := filepath.Dir(path)
	if err := EnsureDir(dir); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return &FileError{
			Message:   fmt.Sprintf("create temp: %v", err),
			Retryable: true,
			Cause:     ErrCauseWriteFailure,
		}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &FileError{
			Message:   fmt.Sprintf("write temp: %v", err),
			Retryable: true,
			Cause:     ErrCauseWriteFailure,
		}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &FileError{
			Message:   fmt.Sprintf("sync temp: %v", err),
			Retryable: true,
			Cause:     ErrCauseWriteFailure,
		}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &FileError{
			Message:   fmt.Sprintf("close temp: %v", err),
			Retryable: true,
			Cause:     ErrCauseWriteFailure,
		}
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return &FileError{
			Message:   fmt.Sprintf("rename temp: %v", err),
			Retryable: true,
			Cause:     ErrCauseRenameError,
		}
	}
	return nil
}
