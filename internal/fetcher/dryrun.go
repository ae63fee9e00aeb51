package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rohmanhakim/spec-harvester/internal/metadata"
	"github.com/rohmanhakim/spec-harvester/pkg/failure"
	"github.com/rohmanhakim/spec-harvester/pkg/hashutil"
	"github.com/rohmanhakim/spec-harvester/pkg/urlutil"
)

/*
DryRunFetcher

Serves recorded fixtures from disk instead of touching the network.
Fixtures are addressed by the short hash of the canonical URL:

	<fixturesDir>/<hash>.html         page body
	<fixturesDir>/<hash>.meta.json    optional status/final-url override

A missing fixture is a 404 result, which exercises the same dead-URL
paths the live pipeline has.
*/

type fixtureMeta struct {
	Status      int    `json:"status,omitempty"`
	FinalURL    string `json:"final_url,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

type DryRunFetcher struct {
	metadataSink metadata.MetadataSink
	fixturesDir  string
	started      bool
}

func NewDryRunFetcher(metadataSink metadata.MetadataSink, fixturesDir string) *DryRunFetcher {
	return &DryRunFetcher{
		metadataSink: metadataSink,
		fixturesDir:  fixturesDir,
	}
}

func (d *DryRunFetcher) Mode() string { return ModeNameDryRun }

func (d *DryRunFetcher) Start(ctx context.Context) failure.ClassifiedError {
	if _, err := os.Stat(d.fixturesDir); err != nil {
		return &FetchError{
			Message:   fmt.Sprintf("fixtures dir: %v", err),
			Retryable: false,
			Cause:     ErrCauseFixtureMissing,
		}
	}
	d.started = true
	return nil
}

func (d *DryRunFetcher) Stop(ctx context.Context) failure.ClassifiedError {
	d.started = false
	return nil
}

func (d *DryRunFetcher) Fetch(ctx context.Context, source Source) (FetchResult, failure.ClassifiedError) {
	if !d.started {
		return FetchResult{}, &FetchError{
			Message:   "fetch before Start",
			Retryable: false,
			Cause:     ErrCauseNotStarted,
		}
	}

	now := time.Now()
	hash := hashutil.ShortHash(urlutil.CanonicalString(source.URL), 12)
	result := FetchResult{
		URL:       source.URL,
		FinalURL:  source.URL,
		FetchedAt: now,
	}

	body, err := os.ReadFile(filepath.Join(d.fixturesDir, hash+".html"))
	if err != nil {
		result.Status = 404
		return result, nil
	}

	result.Status = 200
	result.ContentType = "text/html"
	result.Body = body
	result.Bytes = len(body)

	if metaBytes, err := os.ReadFile(filepath.Join(d.fixturesDir, hash+".meta.json")); err == nil {
		meta := fixtureMeta{}
		if err := json.Unmarshal(metaBytes, &meta); err == nil {
			if meta.Status != 0 {
				result.Status = meta.Status
			}
			if meta.FinalURL != "" {
				result.FinalURL = meta.FinalURL
			}
			if meta.ContentType != "" {
				result.ContentType = meta.ContentType
			}
		}
	}

	d.metadataSink.RecordFetch(metadata.FetchEvent{
		URL:         result.URL,
		FinalURL:    result.FinalURL,
		Status:      result.Status,
		ContentType: result.ContentType,
		Bytes:       result.Bytes,
		Mode:        d.Mode(),
	})
	return result, nil
}
