package fetcher

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/rohmanhakim/spec-harvester/internal/metadata"
	"github.com/rohmanhakim/spec-harvester/internal/redact"
	"github.com/rohmanhakim/spec-harvester/pkg/failure"
)

/*
BrowserFetcher

The deepest tier: a headless browser driven through rod. On top of the
plain page body it records the page's own network traffic (JSON payloads
truncated and secret-redacted), runs an interactive-signal pass (bounded
scroll passes + post-load wait), replays captured GraphQL POSTs with
sanitized bodies to harvest asynchronously rendered payloads, and captures
one bounded screenshot from a prioritized selector list.
*/

// BrowserOptions bound the interactive passes.
type BrowserOptions struct {
	GotoTimeout        time.Duration
	NetworkIdleTimeout time.Duration
	PostLoadWait       time.Duration
	AutoScrollEnabled  bool
	AutoScrollPasses   int
	GraphqlReplay      bool
	MaxGraphqlReplays  int
	MaxJsonBytes       int
	ScreenshotMaxBytes int
}

// screenshotSelectors is the priority list of spec-table containers tried
// before falling back to a viewport shot.
var screenshotSelectors = []string{
	"table.specs",
	"table[class*=spec]",
	"[class*=spec-table]",
	"[class*=tech-spec]",
	"[id*=specification]",
	"main table",
}

type BrowserFetcher struct {
	metadataSink metadata.MetadataSink
	userAgent    string
	options      BrowserOptions

	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
	started  bool
}

func NewBrowserFetcher(metadataSink metadata.MetadataSink, userAgent string, options BrowserOptions) *BrowserFetcher {
	return &BrowserFetcher{
		metadataSink: metadataSink,
		userAgent:    userAgent,
		options:      options,
	}
}

func (b *BrowserFetcher) Mode() string { return ModeNameBrowserFull }

func (b *BrowserFetcher) Start(ctx context.Context) failure.ClassifiedError {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return nil
	}

	launch := launcher.New().Headless(true)
	controlURL, err := launch.Launch()
	if err != nil {
		return &FetchError{
			Message:   fmt.Sprintf("launch browser: %v", err),
			Retryable: false,
			Cause:     ErrCauseBrowserFailure,
		}
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		launch.Cleanup()
		return &FetchError{
			Message:   fmt.Sprintf("connect browser: %v", err),
			Retryable: false,
			Cause:     ErrCauseBrowserFailure,
		}
	}

	b.launcher = launch
	b.browser = browser
	b.started = true
	return nil
}

func (b *BrowserFetcher) Stop(ctx context.Context) failure.ClassifiedError {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.started {
		return nil
	}
	if b.browser != nil {
		_ = b.browser.Close()
	}
	if b.launcher != nil {
		b.launcher.Cleanup()
	}
	b.browser = nil
	b.launcher = nil
	b.started = false
	return nil
}

func (b *BrowserFetcher) Fetch(ctx context.Context, source Source) (FetchResult, failure.ClassifiedError) {
	b.mu.Lock()
	browser := b.browser
	started := b.started
	b.mu.Unlock()
	if !started {
		return FetchResult{}, &FetchError{
			Message:   "fetch before Start",
			Retryable: false,
			Cause:     ErrCauseNotStarted,
		}
	}

	startTime := time.Now()
	result := FetchResult{
		URL:       source.URL,
		FinalURL:  source.URL,
		FetchedAt: startTime,
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		result.Error = fmt.Sprintf("open page: %v", err)
		result.ElapsedMs = time.Since(startTime).Milliseconds()
		return result, nil
	}
	defer page.Close()
	page = page.Context(ctx)

	recorder := newNetworkRecorder(b.options.MaxJsonBytes)
	stopRecording := recorder.attach(page)
	defer stopRecording()

	if err := page.Timeout(b.options.GotoTimeout).Navigate(source.URL); err != nil {
		result.Error = fmt.Sprintf("navigate: %v", err)
		result.ElapsedMs = time.Since(startTime).Milliseconds()
		return result, nil
	}
	if err := page.Timeout(b.options.GotoTimeout).WaitLoad(); err != nil {
		result.Error = fmt.Sprintf("wait load: %v", err)
		result.ElapsedMs = time.Since(startTime).Milliseconds()
		return result, nil
	}

	// Network idle is best-effort; a chatty page only costs the timeout.
	waitIdle := page.Timeout(b.options.NetworkIdleTimeout).WaitRequestIdle(300*time.Millisecond, nil, nil, nil)
	waitIdle()

	// Interactive signal pass: scrolls flush lazy-loaded spec sections.
	if b.options.AutoScrollEnabled {
		for pass := 0; pass < b.options.AutoScrollPasses; pass++ {
			if ctx.Err() != nil {
				break
			}
			_, _ = page.Eval(`() => window.scrollBy(0, window.innerHeight)`)
			time.Sleep(150 * time.Millisecond)
		}
	}
	if b.options.PostLoadWait > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(b.options.PostLoadWait):
		}
	}

	if info, err := page.Info(); err == nil {
		result.FinalURL = info.URL
	}

	status, contentType := recorder.documentResponse(result.FinalURL, source.URL)
	result.Status = status
	result.ContentType = contentType

	if html, err := page.HTML(); err == nil {
		result.Body = []byte(html)
		result.Bytes = len(result.Body)
	}

	recorder.collectBodies(page)

	if b.options.GraphqlReplay {
		result.Captures = append(recorder.captures(), b.replayGraphql(ctx, page, recorder)...)
	} else {
		result.Captures = recorder.captures()
	}

	result.Screenshot = b.captureScreenshot(page)
	result.ElapsedMs = time.Since(startTime).Milliseconds()

	b.metadataSink.RecordFetch(metadata.FetchEvent{
		URL:         result.URL,
		FinalURL:    result.FinalURL,
		Status:      result.Status,
		Duration:    time.Since(startTime),
		ContentType: result.ContentType,
		Bytes:       result.Bytes,
		Mode:        b.Mode(),
	})
	return result, nil
}

// replayGraphql re-issues captured POST-JSON requests with sanitized
// bodies to harvest payloads that rendered asynchronously. Bounded by
// MaxGraphqlReplays; replays run in page context so cookies and CORS
// behave as the site expects.
func (b *BrowserFetcher) replayGraphql(ctx context.Context, page *rod.Page, recorder *networkRecorder) []CapturedResponse {
	var replays []CapturedResponse
	for _, capture := range recorder.captures() {
		if len(replays) >= b.options.MaxGraphqlReplays {
			break
		}
		if ctx.Err() != nil {
			break
		}
		if capture.Method != "POST" || capture.RequestBody == "" {
			continue
		}
		if capture.Class != ClassGraphqlReplay && !strings.Contains(strings.ToLower(capture.URL), "graphql") {
			continue
		}

		sanitized, _ := redact.Text(capture.RequestBody)
		obj, err := page.Eval(`(url, body) => fetch(url, {
			method: "POST",
			headers: {"content-type": "application/json"},
			body: body,
		}).then(r => r.text())`, capture.URL, sanitized)
		if err != nil {
			continue
		}
		body := truncateBody(obj.Value.Str(), b.options.MaxJsonBytes)
		redacted, _ := redact.Text(body)
		replays = append(replays, CapturedResponse{
			URL:         capture.URL,
			Method:      "POST",
			Status:      200,
			ContentType: "application/json",
			Body:        redacted,
			RequestBody: sanitized,
			Class:       ClassGraphqlReplay,
			Truncated:   len(body) != len(obj.Value.Str()),
		})
	}
	return replays
}

// captureScreenshot walks the selector priority list, falling back to a
// viewport shot, and drops anything above the byte bound.
func (b *BrowserFetcher) captureScreenshot(page *rod.Page) *Screenshot {
	for _, selector := range screenshotSelectors {
		el, err := page.Timeout(2 * time.Second).Element(selector)
		if err != nil {
			continue
		}
		data, err := el.Screenshot(proto.PageCaptureScreenshotFormatJpeg, 80)
		if err != nil {
			continue
		}
		if len(data) > b.options.ScreenshotMaxBytes {
			return &Screenshot{Selector: selector, Skipped: true, Reason: "over_max_bytes"}
		}
		return &Screenshot{Selector: selector, Bytes: data}
	}

	data, err := page.Screenshot(false, nil)
	if err != nil {
		return &Screenshot{Skipped: true, Reason: "capture_failed"}
	}
	if len(data) > b.options.ScreenshotMaxBytes {
		return &Screenshot{Skipped: true, Reason: "over_max_bytes"}
	}
	return &Screenshot{Bytes: data}
}

// networkRecorder accumulates the page's own traffic during a fetch.
type networkRecorder struct {
	mu           sync.Mutex
	maxJsonBytes int
	requests     map[proto.NetworkRequestID]requestInfo
	responses    []responseInfo
	recorded     []CapturedResponse
}

type requestInfo struct {
	url      string
	method   string
	postData string
}

type responseInfo struct {
	requestID   proto.NetworkRequestID
	url         string
	status      int
	contentType string
}

func newNetworkRecorder(maxJsonBytes int) *networkRecorder {
	return &networkRecorder{
		maxJsonBytes: maxJsonBytes,
		requests:     make(map[proto.NetworkRequestID]requestInfo),
	}
}

func (n *networkRecorder) attach(page *rod.Page) func() {
	wait := page.EachEvent(
		func(ev *proto.NetworkRequestWillBeSent) {
			n.mu.Lock()
			defer n.mu.Unlock()
			n.requests[ev.RequestID] = requestInfo{
				url:      ev.Request.URL,
				method:   ev.Request.Method,
				postData: ev.Request.PostData,
			}
		},
		func(ev *proto.NetworkResponseReceived) {
			if ev.Response == nil {
				return
			}
			n.mu.Lock()
			defer n.mu.Unlock()
			n.responses = append(n.responses, responseInfo{
				requestID:   ev.RequestID,
				url:         ev.Response.URL,
				status:      ev.Response.Status,
				contentType: ev.Response.MIMEType,
			})
		},
	)
	go wait()
	return func() {}
}

// collectBodies pulls JSON response bodies after the page settled.
// Bodies are truncated and redacted before they are retained.
func (n *networkRecorder) collectBodies(page *rod.Page) {
	n.mu.Lock()
	responses := make([]responseInfo, len(n.responses))
	copy(responses, n.responses)
	requests := n.requests
	n.mu.Unlock()

	var recorded []CapturedResponse
	for _, response := range responses {
		if !strings.Contains(strings.ToLower(response.contentType), "json") {
			continue
		}
		bodyResult, err := proto.NetworkGetResponseBody{RequestID: response.requestID}.Call(page)
		if err != nil {
			continue
		}
		body := bodyResult.Body
		if bodyResult.Base64Encoded {
			if decoded, err := base64.StdEncoding.DecodeString(body); err == nil {
				body = string(decoded)
			}
		}
		truncated := len(body) > n.maxJsonBytes
		body = truncateBody(body, n.maxJsonBytes)
		redacted, _ := redact.Text(body)

		request := requests[response.requestID]
		requestBody, _ := redact.Text(request.postData)
		recorded = append(recorded, CapturedResponse{
			URL:         response.url,
			Method:      request.method,
			Status:      response.status,
			ContentType: response.contentType,
			Body:        redacted,
			RequestBody: requestBody,
			Class:       ClassifyResponse(response.url, request.method, response.contentType, body),
			Truncated:   truncated,
		})
	}

	n.mu.Lock()
	n.recorded = recorded
	n.mu.Unlock()
}

func (n *networkRecorder) captures() []CapturedResponse {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]CapturedResponse, len(n.recorded))
	copy(out, n.recorded)
	return out
}

// documentResponse finds the main-document response status. Browsers
// don't surface it directly; match by URL with a 200 fallback.
func (n *networkRecorder) documentResponse(finalURL, originalURL string) (int, string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, response := range n.responses {
		if response.url == finalURL || response.url == originalURL {
			return response.status, response.contentType
		}
	}
	return 200, "text/html"
}

func truncateBody(body string, max int) string {
	if max > 0 && len(body) > max {
		return body[:max]
	}
	return body
}
