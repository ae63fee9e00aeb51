package fetcher

import (
	"net/url"
	"time"

	"github.com/rohmanhakim/spec-harvester/pkg/urlutil"
)

// Source is one planned fetch target handed to the hierarchy.
type Source struct {
	URL string
	// DiscoveryOnly sources are fetched for URL mining, not extraction.
	DiscoveryOnly bool
	// RateLimitMs overrides the per-host minimum delay for this source.
	RateLimitMs int
}

// Host returns the target hostname, or "" for an unparseable URL.
func (s Source) Host() string {
	u, err := url.Parse(s.URL)
	if err != nil {
		return ""
	}
	return u.Host
}

// ResponseClass buckets a captured network response by what it likely
// carries.
type ResponseClass string

const (
	ClassVariantMatrix  ResponseClass = "variant_matrix"
	ClassSpecs          ResponseClass = "specs"
	ClassPricing        ResponseClass = "pricing"
	ClassReviews        ResponseClass = "reviews"
	ClassProductPayload ResponseClass = "product_payload"
	ClassGraphqlReplay  ResponseClass = "graphql_replay"
	ClassFetchJSON      ResponseClass = "fetch_json"
	ClassUnknown        ResponseClass = "unknown"
)

// CapturedResponse is one recorded network exchange. Browser-recorded
// bodies are truncated to maxJsonBytes and secret-redacted before they
// reach this struct; the HTTP tier's synthetic capture of a JSON page
// carries the body as fetched, neither truncated nor redacted.
type CapturedResponse struct {
	URL         string        `json:"url"`
	Method      string        `json:"method"`
	Status      int           `json:"status"`
	ContentType string        `json:"content_type,omitempty"`
	Body        string        `json:"body,omitempty"`
	RequestBody string        `json:"request_body,omitempty"`
	Class       ResponseClass `json:"class"`
	Truncated   bool          `json:"truncated,omitempty"`
}

// Screenshot is the bounded screenshot artifact of a browser fetch.
type Screenshot struct {
	Selector string `json:"selector,omitempty"`
	Bytes    []byte `json:"-"`
	Skipped  bool   `json:"skipped,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// FetchResult is the common outcome contract of every fetcher tier.
type FetchResult struct {
	URL            string    `json:"url"`
	FinalURL       string    `json:"final_url"`
	Status         int       `json:"status"`
	ContentType    string    `json:"content_type,omitempty"`
	Body           []byte    `json:"-"`
	Bytes          int       `json:"bytes"`
	ElapsedMs      int64     `json:"elapsed_ms"`
	Error          string    `json:"error,omitempty"`
	BlockedByRobot bool      `json:"blocked_by_robots,omitempty"`
	FetchedAt      time.Time `json:"fetched_at"`

	// Browser-capable tiers attach recorded traffic and artifacts.
	Captures   []CapturedResponse `json:"captures,omitempty"`
	Screenshot *Screenshot        `json:"screenshot,omitempty"`
}

// Ok reports a delivered, non-error response: 200 <= status < 400.
func (r FetchResult) Ok() bool {
	return r.Error == "" && r.Status >= 200 && r.Status < 400
}

// Dead reports a permanently-gone status: 404, 410, or 451.
func (r FetchResult) Dead() bool {
	return r.Status == 404 || r.Status == 410 || r.Status == 451
}

// Redirect reports whether the fetch landed on a different canonical URL
// than it started from.
func (r FetchResult) Redirect() bool {
	if r.FinalURL == "" || r.FinalURL == r.URL {
		return false
	}
	return urlutil.CanonicalString(r.URL) != urlutil.CanonicalString(r.FinalURL)
}

// ShouldExtract gates the extractor pipeline: delivered, not dead,
// not robots-blocked.
func (r FetchResult) ShouldExtract() bool {
	return r.Ok() && !r.Dead() && !r.BlockedByRobot
}
