package robots

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rohmanhakim/spec-harvester/internal/metadata"
	"github.com/rohmanhakim/spec-harvester/internal/robots/cache"
)

/*
RobotsFetcher

Responsibilities:
- Fetch robots.txt per origin using net/http
- Parse content into structured groups
- Cache results keyed by scheme://host
- Coalesce concurrent fetches of the same origin

The fetcher returns a parsed response; it makes no permission decisions.
*/

// RobotsFetchResult represents the result of fetching a robots.txt file.
type RobotsFetchResult struct {
	Response   RobotsResponse `json:"response"`
	FetchedAt  time.Time      `json:"fetched_at"`
	SourceURL  string         `json:"source_url"`
	HTTPStatus int            `json:"http_status"`
}

type RobotsFetcher struct {
	httpClient   *http.Client
	userAgent    string
	cache        cache.Cache
	metadataSink metadata.MetadataSink

	// in-flight coalescing per origin
	mu       sync.Mutex
	inFlight map[string]*sync.WaitGroup
}

// NewRobotsFetcher creates a fetcher. The cache parameter is optional;
// nil disables caching.
func NewRobotsFetcher(
	metadataSink metadata.MetadataSink,
	userAgent string,
	ruleCache cache.Cache,
) *RobotsFetcher {
	return NewRobotsFetcherWithClient(metadataSink, userAgent, &http.Client{Timeout: 30 * time.Second}, ruleCache)
}

// NewRobotsFetcherWithClient injects a custom HTTP client, for testing.
func NewRobotsFetcherWithClient(
	metadataSink metadata.MetadataSink,
	userAgent string,
	httpClient *http.Client,
	ruleCache cache.Cache,
) *RobotsFetcher {
	return &RobotsFetcher{
		httpClient:   httpClient,
		userAgent:    userAgent,
		cache:        ruleCache,
		metadataSink: metadataSink,
		inFlight:     make(map[string]*sync.WaitGroup),
	}
}

func cacheKey(scheme, hostname string) string {
	return fmt.Sprintf("%s://%s/robots.txt", scheme, hostname)
}

// Fetch returns the parsed robots.txt for an origin, consulting the cache
// first. Concurrent callers for the same origin share one request.
func (f *RobotsFetcher) Fetch(ctx context.Context, scheme, host string) (RobotsFetchResult, *RobotsError) {
	key := cacheKey(scheme, host)

	if result, ok := f.fromCache(key); ok {
		return result, nil
	}

	// Coalesce: the first caller fetches, the rest wait and re-read the cache.
	f.mu.Lock()
	if wg, waiting := f.inFlight[key]; waiting {
		f.mu.Unlock()
		wg.Wait()
		if result, ok := f.fromCache(key); ok {
			return result, nil
		}
		// Leader failed; fall through to fetch ourselves.
	} else {
		wg := &sync.WaitGroup{}
		wg.Add(1)
		f.inFlight[key] = wg
		f.mu.Unlock()
		defer func() {
			f.mu.Lock()
			delete(f.inFlight, key)
			f.mu.Unlock()
			wg.Done()
		}()
	}

	result, err := f.fetchOrigin(ctx, scheme, host)
	if err != nil {
		return RobotsFetchResult{}, err
	}
	f.toCache(key, result)
	return result, nil
}

func (f *RobotsFetcher) fetchOrigin(ctx context.Context, scheme, host string) (RobotsFetchResult, *RobotsError) {
	robotsURL := cacheKey(scheme, host)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return RobotsFetchResult{}, &RobotsError{
			Message:   fmt.Sprintf("build request: %v", err),
			Retryable: false,
			Cause:     ErrCauseRequestBuild,
		}
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return RobotsFetchResult{}, &RobotsError{
			Message:   fmt.Sprintf("fetch robots.txt: %v", err),
			Retryable: true,
			Cause:     ErrCauseNetworkFailure,
		}
	}
	defer resp.Body.Close()

	result := RobotsFetchResult{
		FetchedAt:  time.Now(),
		SourceURL:  robotsURL,
		HTTPStatus: resp.StatusCode,
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
		if err != nil {
			return RobotsFetchResult{}, &RobotsError{
				Message:   fmt.Sprintf("read robots.txt: %v", err),
				Retryable: true,
				Cause:     ErrCauseReadBody,
			}
		}
		result.Response = ParseRobotsTxt(host, string(body))
	} else {
		// Missing or errored robots.txt: empty response, recorded status.
		result.Response = RobotsResponse{Host: host}
	}
	return result, nil
}

func (f *RobotsFetcher) fromCache(key string) (RobotsFetchResult, bool) {
	if f.cache == nil {
		return RobotsFetchResult{}, false
	}
	serialized, ok := f.cache.Get(key)
	if !ok {
		return RobotsFetchResult{}, false
	}
	result := RobotsFetchResult{}
	if err := json.Unmarshal([]byte(serialized), &result); err != nil {
		return RobotsFetchResult{}, false
	}
	return result, true
}

func (f *RobotsFetcher) toCache(key string, result RobotsFetchResult) {
	if f.cache == nil {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	f.cache.Put(key, string(data))
}
