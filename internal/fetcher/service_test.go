package fetcher_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohmanhakim/spec-harvester/internal/config"
	"github.com/rohmanhakim/spec-harvester/internal/fetcher"
	"github.com/rohmanhakim/spec-harvester/internal/metadata"
	"github.com/rohmanhakim/spec-harvester/pkg/failure"
	"github.com/rohmanhakim/spec-harvester/pkg/limiter"
)

// stubFetcher scripts a sequence of results for one mode.
type stubFetcher struct {
	mode    string
	results []fetcher.FetchResult
	calls   int
	started bool
}

func (s *stubFetcher) Mode() string { return s.mode }

func (s *stubFetcher) Start(ctx context.Context) failure.ClassifiedError {
	s.started = true
	return nil
}

func (s *stubFetcher) Stop(ctx context.Context) failure.ClassifiedError {
	s.started = false
	return nil
}

func (s *stubFetcher) Fetch(ctx context.Context, source fetcher.Source) (fetcher.FetchResult, failure.ClassifiedError) {
	index := s.calls
	s.calls++
	if index >= len(s.results) {
		index = len(s.results) - 1
	}
	return s.results[index], nil
}

type noopSleeper struct{}

func (noopSleeper) Sleep(ctx context.Context, d time.Duration) {}

func testConfig(t *testing.T, mode config.FetchMode) config.Config {
	t.Helper()
	cfg, err := config.WithDefault("mice").WithMode(mode).Build()
	require.NoError(t, err)
	return cfg
}

func newService(cfg config.Config, fetchers map[string]fetcher.Fetcher) *fetcher.Service {
	recorder := metadata.NewRecorder("test", nil)
	rateLimiter := limiter.NewConcurrentRateLimiter()
	return fetcher.NewService(&recorder, cfg, rateLimiter, noopSleeper{}, fetchers)
}

func TestService_RetriesOn429ThenSucceeds(t *testing.T) {
	stub := &stubFetcher{
		mode: fetcher.ModeNameHTTP,
		results: []fetcher.FetchResult{
			{URL: "https://a.com/p", Status: 429},
			{URL: "https://a.com/p", Status: 200},
		},
	}
	service := newService(testConfig(t, config.ModeHTTP), map[string]fetcher.Fetcher{
		fetcher.ModeNameHTTP: stub,
	})
	require.Nil(t, service.Start(context.Background()))

	result, err := service.Fetch(context.Background(), fetcher.Source{URL: "https://a.com/p"})
	require.Nil(t, err)
	assert.Equal(t, 200, result.Status)
	assert.Equal(t, 2, stub.calls)
}

func TestService_FallbackIsOneWay(t *testing.T) {
	crawler := &stubFetcher{
		mode: fetcher.ModeNameBrowserCrawler,
		results: []fetcher.FetchResult{
			{URL: "https://a.com/p", Status: 0, Error: "no result"},
		},
	}
	browser := &stubFetcher{
		mode: fetcher.ModeNameBrowserFull,
		results: []fetcher.FetchResult{
			{URL: "https://a.com/p", Status: 200},
		},
	}
	service := newService(testConfig(t, config.ModeBrowserCrawler), map[string]fetcher.Fetcher{
		fetcher.ModeNameBrowserCrawler: crawler,
		fetcher.ModeNameBrowserFull:    browser,
	})
	require.Nil(t, service.Start(context.Background()))
	assert.Equal(t, fetcher.ModeNameBrowserCrawler, service.ActiveMode())

	result, err := service.Fetch(context.Background(), fetcher.Source{URL: "https://a.com/p"})
	require.Nil(t, err)
	assert.Equal(t, 200, result.Status)

	// The switch is permanent for the run.
	assert.Equal(t, fetcher.ModeNameBrowserFull, service.ActiveMode())
	assert.Equal(t, fetcher.StateDegraded, service.State())

	_, err = service.Fetch(context.Background(), fetcher.Source{URL: "https://a.com/q"})
	require.Nil(t, err)
	assert.True(t, browser.calls >= 2, "subsequent fetches use the fallback directly")
}

func TestService_HTTPHasNoFallback(t *testing.T) {
	stub := &stubFetcher{
		mode: fetcher.ModeNameHTTP,
		results: []fetcher.FetchResult{
			{URL: "https://a.com/p", Status: 0, Error: "dns failure"},
		},
	}
	service := newService(testConfig(t, config.ModeHTTP), map[string]fetcher.Fetcher{
		fetcher.ModeNameHTTP: stub,
	})
	require.Nil(t, service.Start(context.Background()))

	result, err := service.Fetch(context.Background(), fetcher.Source{URL: "https://a.com/p"})
	require.Nil(t, err)
	assert.Equal(t, 0, result.Status)
	assert.NotEmpty(t, result.Error)
	assert.Equal(t, fetcher.ModeNameHTTP, service.ActiveMode())
}

func TestService_ForcedModeNeverFallsBack(t *testing.T) {
	crawler := &stubFetcher{
		mode: fetcher.ModeNameBrowserCrawler,
		results: []fetcher.FetchResult{
			{URL: "https://forced.example.com/p", Status: 0, Error: "no result"},
		},
	}
	browser := &stubFetcher{
		mode: fetcher.ModeNameBrowserFull,
		results: []fetcher.FetchResult{
			{URL: "https://forced.example.com/p", Status: 200},
		},
	}

	cfg, err := config.WithDefault("mice").
		WithMode(config.ModeBrowserCrawler).
		WithHostPolicy("forced.example.com", config.HostPolicy{ForcedMode: config.ModeBrowserCrawler}).
		Build()
	require.NoError(t, err)

	service := newService(cfg, map[string]fetcher.Fetcher{
		fetcher.ModeNameBrowserCrawler: crawler,
		fetcher.ModeNameBrowserFull:    browser,
	})
	require.Nil(t, service.Start(context.Background()))

	result, _ := service.Fetch(context.Background(), fetcher.Source{URL: "https://forced.example.com/p"})
	assert.Equal(t, 0, result.Status)
	assert.Zero(t, browser.calls, "forced hosts never use the fallback chain")
	assert.Equal(t, fetcher.ModeNameBrowserCrawler, service.ActiveMode())
}

func TestService_StartUnknownMode(t *testing.T) {
	service := newService(testConfig(t, config.ModeHTTP), map[string]fetcher.Fetcher{})
	err := service.Start(context.Background())
	require.NotNil(t, err)
	assert.Equal(t, failure.SeverityFatal, err.Severity())
}
