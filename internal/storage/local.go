package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rohmanhakim/spec-harvester/internal/metadata"
	"github.com/rohmanhakim/spec-harvester/pkg/failure"
	"github.com/rohmanhakim/spec-harvester/pkg/fileutil"
)

/*
Responsibilities
- Persist artifacts under the category data directory
- Ensure deterministic key -> path mapping
- Idempotent, overwrite-safe writes (write-to-temp + rename)
*/

// Storage is the capability contract the pipeline depends on. Keys are
// slash-separated logical paths ("products/p1/spec.json").
type Storage interface {
	ReadJson(key string) ([]byte, failure.ClassifiedError)
	WriteObject(key string, data []byte, contentType string) failure.ClassifiedError
	ListKeys(prefix string) ([]string, failure.ClassifiedError)
}

// LocalStorage maps keys onto a root directory.
type LocalStorage struct {
	root         string
	metadataSink metadata.MetadataSink
}

func NewLocalStorage(root string, metadataSink metadata.MetadataSink) *LocalStorage {
	return &LocalStorage{
		root:         root,
		metadataSink: metadataSink,
	}
}

func (s *LocalStorage) ReadJson(key string) ([]byte, failure.ClassifiedError) {
	data, err := os.ReadFile(s.pathFor(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &StorageError{
				Message:   fmt.Sprintf("read %s: %v", key, err),
				Retryable: false,
				Cause:     ErrCauseNotFound,
				Path:      s.pathFor(key),
			}
		}
		return nil, &StorageError{
			Message:   fmt.Sprintf("read %s: %v", key, err),
			Retryable: true,
			Cause:     ErrCausePathError,
			Path:      s.pathFor(key),
		}
	}
	return data, nil
}

func (s *LocalStorage) WriteObject(key string, data []byte, contentType string) failure.ClassifiedError {
	path := s.pathFor(key)
	if err := fileutil.WriteFileAtomic(path, data); err != nil {
		storageErr := &StorageError{
			Message:   err.Error(),
			Retryable: isRetryable(err),
			Cause:     ErrCauseWriteFailure,
			Path:      path,
		}
		s.metadataSink.RecordError(
			time.Now(),
			"storage",
			"LocalStorage.WriteObject",
			mapStorageErrorToMetadataCause(storageErr),
			storageErr.Message,
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrWritePath, path),
			},
		)
		return storageErr
	}
	s.metadataSink.RecordArtifact(contentType, path, []metadata.Attribute{
		metadata.NewAttr(metadata.AttrWritePath, path),
	})
	return nil
}

func isRetryable(err failure.ClassifiedError) bool {
	type hasRetryable interface {
		IsRetryable() bool
	}
	if r, ok := err.(hasRetryable); ok {
		return r.IsRetryable()
	}
	return true
}

func (s *LocalStorage) ListKeys(prefix string) ([]string, failure.ClassifiedError) {
	var keys []string
	base := s.root
	err := filepath.WalkDir(base, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(base, path)
		if relErr != nil {
			return nil
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, &StorageError{
			Message:   fmt.Sprintf("list %s: %v", prefix, err),
			Retryable: true,
			Cause:     ErrCausePathError,
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *LocalStorage) pathFor(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}
