package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rohmanhakim/spec-harvester/internal/metadata"
	"github.com/rohmanhakim/spec-harvester/pkg/failure"
)

/*
HttpFetcher

Responsibilities
- Perform raw HTTP requests with browser-like headers
- Follow redirects, reporting the final URL
- Accept HTML and JSON payloads; discard other content types
- Map every HTTP outcome into the FetchResult contract

Fetch semantics
- Non-OK statuses are NOT errors here: they come back as results so the
  frontier can apply its cooldown table. Transport failures come back as
  status 0 with the error string set.

The fetcher never parses content; it only returns bytes and metadata.
*/

type HttpFetcher struct {
	metadataSink metadata.MetadataSink
	httpClient   *http.Client
	userAgent    string
	maxBodyBytes int64
	started      bool
}

func NewHttpFetcher(metadataSink metadata.MetadataSink, userAgent string, timeout time.Duration) *HttpFetcher {
	return &HttpFetcher{
		metadataSink: metadataSink,
		httpClient:   &http.Client{Timeout: timeout},
		userAgent:    userAgent,
		maxBodyBytes: 8 * 1024 * 1024,
	}
}

// NewHttpFetcherWithClient injects a custom client, for testing.
func NewHttpFetcherWithClient(metadataSink metadata.MetadataSink, userAgent string, client *http.Client) *HttpFetcher {
	return &HttpFetcher{
		metadataSink: metadataSink,
		httpClient:   client,
		userAgent:    userAgent,
		maxBodyBytes: 8 * 1024 * 1024,
	}
}

func (h *HttpFetcher) Mode() string { return ModeNameHTTP }

func (h *HttpFetcher) Start(ctx context.Context) failure.ClassifiedError {
	h.started = true
	return nil
}

func (h *HttpFetcher) Stop(ctx context.Context) failure.ClassifiedError {
	h.started = false
	h.httpClient.CloseIdleConnections()
	return nil
}

func (h *HttpFetcher) Fetch(ctx context.Context, source Source) (FetchResult, failure.ClassifiedError) {
	if !h.started {
		return FetchResult{}, &FetchError{
			Message:   "fetch before Start",
			Retryable: false,
			Cause:     ErrCauseNotStarted,
		}
	}

	startTime := time.Now()
	result := h.performFetch(ctx, source)
	result.ElapsedMs = time.Since(startTime).Milliseconds()
	result.FetchedAt = startTime

	h.metadataSink.RecordFetch(metadata.FetchEvent{
		URL:         result.URL,
		FinalURL:    result.FinalURL,
		Status:      result.Status,
		Duration:    time.Since(startTime),
		ContentType: result.ContentType,
		Bytes:       result.Bytes,
		Mode:        h.Mode(),
	})
	return result, nil
}

func (h *HttpFetcher) performFetch(ctx context.Context, source Source) FetchResult {
	result := FetchResult{URL: source.URL, FinalURL: source.URL}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source.URL, nil)
	if err != nil {
		result.Error = fmt.Sprintf("build request: %v", err)
		return result
	}
	for key, value := range requestHeaders(h.userAgent) {
		req.Header.Set(key, value)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		// Transport failure: status stays 0 so the frontier applies
		// its timeout cooldown.
		result.Error = fmt.Sprintf("request failed: %v", err)
		h.recordTransportError(source, err)
		return result
	}
	defer resp.Body.Close()

	result.Status = resp.StatusCode
	result.ContentType = resp.Header.Get("Content-Type")
	if resp.Request != nil && resp.Request.URL != nil {
		result.FinalURL = resp.Request.URL.String()
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return result
	}

	if !isSupportedContent(result.ContentType) {
		result.Error = fmt.Sprintf("unsupported content type: %s", result.ContentType)
		return result
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, h.maxBodyBytes))
	if err != nil {
		result.Error = fmt.Sprintf("read body: %v", err)
		return result
	}
	result.Body = body
	result.Bytes = len(body)

	// JSON endpoints get a synthetic capture so the network extractor
	// sees them the same way it sees browser-recorded traffic.
	if strings.Contains(strings.ToLower(result.ContentType), "json") {
		result.Captures = append(result.Captures, CapturedResponse{
			URL:         result.FinalURL,
			Method:      http.MethodGet,
			Status:      resp.StatusCode,
			ContentType: result.ContentType,
			Body:        string(body),
			Class:       ClassifyResponse(result.FinalURL, http.MethodGet, result.ContentType, string(body)),
		})
	}
	return result
}

func (h *HttpFetcher) recordTransportError(source Source, err error) {
	h.metadataSink.RecordError(
		time.Now(),
		"fetcher",
		"HttpFetcher.Fetch",
		metadata.CauseNetworkFailure,
		err.Error(),
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrURL, source.URL),
		},
	)
}

func isSupportedContent(contentType string) bool {
	contentType = strings.ToLower(contentType)
	return strings.Contains(contentType, "text/html") ||
		strings.Contains(contentType, "application/xhtml") ||
		strings.Contains(contentType, "json")
}

func requestHeaders(userAgent string) map[string]string {
	return map[string]string{
		"User-Agent":      userAgent,
		"Accept":          "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.5",
		"DNT":             "1",
		"Connection":      "keep-alive",
	}
}
