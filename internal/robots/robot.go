package robots

import (
	"context"
	"net/url"

	"github.com/rohmanhakim/spec-harvester/internal/metadata"
	"github.com/rohmanhakim/spec-harvester/internal/robots/cache"
)

// Policy answers whether a URL may be fetched for a given user agent.
type Policy interface {
	CanFetch(ctx context.Context, target url.URL, userAgent string) (Decision, *RobotsError)
}

// CachedRobot resolves robots decisions through the caching fetcher.
// Missing or non-2xx robots.txt yields allowed=true with the
// robots_missing_or_unavailable reason.
type CachedRobot struct {
	fetcher      *RobotsFetcher
	metadataSink metadata.MetadataSink
}

func NewCachedRobot(metadataSink metadata.MetadataSink, userAgent string) CachedRobot {
	return CachedRobot{
		fetcher:      NewRobotsFetcher(metadataSink, userAgent, cache.NewMemoryCache()),
		metadataSink: metadataSink,
	}
}

// NewCachedRobotWithFetcher injects a fetcher, for testing.
func NewCachedRobotWithFetcher(metadataSink metadata.MetadataSink, fetcher *RobotsFetcher) CachedRobot {
	return CachedRobot{
		fetcher:      fetcher,
		metadataSink: metadataSink,
	}
}

func (r *CachedRobot) CanFetch(ctx context.Context, target url.URL, userAgent string) (Decision, *RobotsError) {
	scheme := target.Scheme
	if scheme == "" {
		scheme = "https"
	}

	result, err := r.fetcher.Fetch(ctx, scheme, target.Host)
	if err != nil {
		return Decision{}, err
	}

	decision := Decision{
		URL:       target.String(),
		RobotsURL: result.SourceURL,
		Status:    result.HTTPStatus,
	}

	// Missing or unavailable robots.txt never blocks.
	if result.HTTPStatus < 200 || result.HTTPStatus >= 300 {
		decision.Allowed = true
		decision.Reason = RobotsMissing
		return decision, nil
	}

	rs := MapResponseToRuleSet(result.Response, userAgent, result.FetchedAt, result.HTTPStatus)
	allowed, reason, matchedRule := rs.Decide(pathWithQuery(target))
	decision.Allowed = allowed
	decision.Reason = reason
	decision.MatchedRule = matchedRule
	decision.CrawlDelay = rs.CrawlDelay()
	return decision, nil
}

func pathWithQuery(u url.URL) string {
	p := u.EscapedPath()
	if p == "" {
		p = "/"
	}
	if u.RawQuery != "" {
		p += "?" + u.RawQuery
	}
	return p
}
