package fetcher

import (
	"context"
	"fmt"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/rohmanhakim/spec-harvester/internal/metadata"
	"github.com/rohmanhakim/spec-harvester/pkg/failure"
)

/*
CrawlerFetcher

The middle tier: a colly collector. Heavier than raw HTTP (cookie jar,
revisit bookkeeping, HTML-aware callbacks) but far cheaper than a real
browser. No JavaScript execution: a page that renders client-side comes
back as the server sent it. The service falls back to the browser tier
only when this tier produces no HTTP-level result.

Robots policy is enforced upstream by the robots gate, so the collector's
own robots handling is disabled to avoid double fetching.
*/

type CrawlerFetcher struct {
	metadataSink metadata.MetadataSink
	userAgent    string
	timeout      time.Duration
	base         *colly.Collector
	started      bool
}

func NewCrawlerFetcher(metadataSink metadata.MetadataSink, userAgent string, timeout time.Duration) *CrawlerFetcher {
	return &CrawlerFetcher{
		metadataSink: metadataSink,
		userAgent:    userAgent,
		timeout:      timeout,
	}
}

func (c *CrawlerFetcher) Mode() string { return ModeNameBrowserCrawler }

func (c *CrawlerFetcher) Start(ctx context.Context) failure.ClassifiedError {
	collector := colly.NewCollector(
		colly.UserAgent(c.userAgent),
		colly.IgnoreRobotsTxt(),
		colly.AllowURLRevisit(),
	)
	collector.SetRequestTimeout(c.timeout)
	c.base = collector
	c.started = true
	return nil
}

func (c *CrawlerFetcher) Stop(ctx context.Context) failure.ClassifiedError {
	c.base = nil
	c.started = false
	return nil
}

func (c *CrawlerFetcher) Fetch(ctx context.Context, source Source) (FetchResult, failure.ClassifiedError) {
	if !c.started {
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

	// Collectors share config but each fetch gets its own callbacks.
	collector := c.base.Clone()
	collector.SetRequestTimeout(c.timeout)

	collector.OnResponse(func(r *colly.Response) {
		result.Status = r.StatusCode
		result.ContentType = r.Headers.Get("Content-Type")
		result.Body = r.Body
		result.Bytes = len(r.Body)
		if r.Request != nil && r.Request.URL != nil {
			result.FinalURL = r.Request.URL.String()
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			result.Status = r.StatusCode
			if r.Request != nil && r.Request.URL != nil {
				result.FinalURL = r.Request.URL.String()
			}
		}
		if result.Status == 0 {
			result.Error = fmt.Sprintf("crawler transport: %v", err)
		}
	})

	if err := collector.Visit(source.URL); err != nil && result.Status == 0 && result.Error == "" {
		result.Error = fmt.Sprintf("crawler visit: %v", err)
	}
	collector.Wait()

	result.ElapsedMs = time.Since(startTime).Milliseconds()
	c.metadataSink.RecordFetch(metadata.FetchEvent{
		URL:         result.URL,
		FinalURL:    result.FinalURL,
		Status:      result.Status,
		Duration:    time.Since(startTime),
		ContentType: result.ContentType,
		Bytes:       result.Bytes,
		Mode:        c.Mode(),
	})
	return result, nil
}
