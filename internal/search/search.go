package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/rohmanhakim/spec-harvester/pkg/failure"
	"github.com/rohmanhakim/spec-harvester/pkg/hashutil"
)

// Result is one search hit.
type Result struct {
	URL     string `json:"url"`
	Title   string `json:"title,omitempty"`
	Snippet string `json:"snippet,omitempty"`
	Host    string `json:"host,omitempty"`
	Rank    int    `json:"rank"`
}

// Provider is the search capability contract.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, limit int) ([]Result, failure.ClassifiedError)
}

type SearchError struct {
	Message   string
	Retryable bool
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("search error: %s", e.Message)
}

func (e *SearchError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *SearchError) IsRetryable() bool {
	return e.Retryable
}

// FixtureProvider serves canned results from disk, addressed by the
// short hash of the query. Missing fixtures answer empty, not error,
// so dry runs exercise the no-results path.
type FixtureProvider struct {
	dir string
}

func NewFixtureProvider(dir string) *FixtureProvider {
	return &FixtureProvider{dir: dir}
}

func (p *FixtureProvider) Name() string { return "fixture" }

func (p *FixtureProvider) Search(ctx context.Context, query string, limit int) ([]Result, failure.ClassifiedError) {
	if ctx.Err() != nil {
		return nil, &SearchError{Message: "cancelled", Retryable: false}
	}
	path := filepath.Join(p.dir, "search_"+hashutil.ShortHash(query, 12)+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil
	}
	var results []Result
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, &SearchError{Message: fmt.Sprintf("parse fixture: %v", err), Retryable: false}
	}
	for i := range results {
		if results[i].Host == "" {
			if u, err := url.Parse(results[i].URL); err == nil {
				results[i].Host = u.Host
			}
		}
		results[i].Rank = i + 1
	}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
