package robots_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohmanhakim/spec-harvester/internal/metadata"
	"github.com/rohmanhakim/spec-harvester/internal/robots"
	"github.com/rohmanhakim/spec-harvester/internal/robots/cache"
)

func robotFor(t *testing.T, handler http.Handler) (*robots.CachedRobot, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	recorder := metadata.NewRecorder("test", nil)
	fetcher := robots.NewRobotsFetcherWithClient(&recorder, "spec-harvester/1.0", server.Client(), cache.NewMemoryCache())
	robot := robots.NewCachedRobotWithFetcher(&recorder, fetcher)
	return &robot, server
}

func targetURL(t *testing.T, base, path string) url.URL {
	t.Helper()
	u, err := url.Parse(base + path)
	require.NoError(t, err)
	return *u
}

func TestCanFetch_DisallowedPath(t *testing.T) {
	robot, server := robotFor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.Write([]byte("User-agent: *\nDisallow: /private\nAllow: /private/specs\n"))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	decision, err := robot.CanFetch(context.Background(), targetURL(t, server.URL, "/private/cart"), "spec-harvester/1.0")
	require.Nil(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, robots.DisallowedByRobots, decision.Reason)
	assert.Equal(t, "/private", decision.MatchedRule)

	decision, err = robot.CanFetch(context.Background(), targetURL(t, server.URL, "/private/specs/mouse"), "spec-harvester/1.0")
	require.Nil(t, err)
	assert.True(t, decision.Allowed)
}

func TestCanFetch_MissingRobotsAllows(t *testing.T) {
	robot, server := robotFor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	decision, err := robot.CanFetch(context.Background(), targetURL(t, server.URL, "/anything"), "spec-harvester/1.0")
	require.Nil(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, robots.RobotsMissing, decision.Reason)
	assert.Equal(t, 404, decision.Status)
}

func TestCanFetch_CachesPerOrigin(t *testing.T) {
	var fetches int32
	robot, server := robotFor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			atomic.AddInt32(&fetches, 1)
			w.Write([]byte("User-agent: *\nAllow: /\n"))
		}
	}))

	for i := 0; i < 5; i++ {
		_, err := robot.CanFetch(context.Background(), targetURL(t, server.URL, "/p"), "spec-harvester/1.0")
		require.Nil(t, err)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&fetches), "one robots fetch per origin")
}

func TestCanFetch_CrawlDelaySurfaces(t *testing.T) {
	robot, server := robotFor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.Write([]byte("User-agent: *\nCrawl-delay: 3\nAllow: /\n"))
		}
	}))

	decision, err := robot.CanFetch(context.Background(), targetURL(t, server.URL, "/p"), "spec-harvester/1.0")
	require.Nil(t, err)
	require.NotNil(t, decision.CrawlDelay)
	assert.Equal(t, float64(3), decision.CrawlDelay.Seconds())
}
