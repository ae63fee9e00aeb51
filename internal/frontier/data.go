package frontier

import "time"

/*
Frontier Responsibilities
- Durable per-URL and per-query bookkeeping
- Cooldown gating for URL and query reuse
- Dead-path pattern learning ((domain, pathSig) penalties)
- Yield ledger for rank-penalty computation
- Knows nothing about:
	- fetching
	- extraction
	- identity
	- consensus

It is a data structure + policy module, not a pipeline executor.
*/

// URLState is the lifecycle position of a URL record.
type URLState string

const (
	// StateLive URLs may be fetched (subject to cooldown).
	StateLive URLState = "live"
	// StateSleeping URLs are under an active cooldown.
	StateSleeping URLState = "sleeping"
	// StateTombstoned URLs (410/451) may be read but never re-fetched.
	StateTombstoned URLState = "tombstoned"
)

// Cooldown is the sleep window attached to a URL or query record.
type Cooldown struct {
	NextRetryTs time.Time `json:"next_retry_ts"`
	Reason      string    `json:"reason"`
	Seconds     int64     `json:"seconds"`
}

// Active reports whether the cooldown still holds at `now`.
func (c Cooldown) Active(now time.Time) bool {
	return !c.NextRetryTs.IsZero() && now.Before(c.NextRetryTs)
}

// URLRecord is the durable per-URL state. Records are created on the first
// fetch attempt, updated on every fetch, and never deleted (audit trail).
type URLRecord struct {
	CanonicalURL string `json:"canonical_url"`
	Domain       string `json:"domain"`
	PathSig      string `json:"path_sig"`

	FetchCount       int `json:"fetch_count"`
	OkCount          int `json:"ok_count"`
	RedirectCount    int `json:"redirect_count"`
	NotFoundCount    int `json:"notfound_count"`
	GoneCount        int `json:"gone_count"`
	BlockedCount     int `json:"blocked_count"`
	ServerErrorCount int `json:"server_error_count"`
	TimeoutCount     int `json:"timeout_count"`

	FieldsFound   []string `json:"fields_found,omitempty"`
	AvgConfidence float64  `json:"avg_confidence"`
	ConflictCount int      `json:"conflict_count"`

	State    URLState  `json:"state"`
	Cooldown Cooldown  `json:"cooldown,omitempty"`
	LastSeen time.Time `json:"last_seen"`

	// lastFetchKey dedups re-delivered fetch outcomes: an identical
	// (status, ts, contentHash) tuple only bumps FetchCount.
	LastFetchKey string `json:"last_fetch_key,omitempty"`

	// confidenceSamples backs the running mean in AvgConfidence.
	ConfidenceSamples int `json:"confidence_samples,omitempty"`
}

// SearchHit is one bounded search result stored on a query record.
type SearchHit struct {
	Rank    int    `json:"rank"`
	URL     string `json:"url"`
	Title   string `json:"title,omitempty"`
	Host    string `json:"host,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// QueryRecord is the durable per-query state.
type QueryRecord struct {
	QueryHash string      `json:"query_hash"`
	ProductID string      `json:"product_id"`
	Query     string      `json:"query"`
	Attempts  int         `json:"attempts"`
	FirstTs   time.Time   `json:"first_ts"`
	LastTs    time.Time   `json:"last_ts"`
	Provider  string      `json:"provider,omitempty"`
	Fields    []string    `json:"fields,omitempty"`
	Results   []SearchHit `json:"results,omitempty"`
}

// YieldRecord is one ledger entry tying a URL to a field observation.
type YieldRecord struct {
	CanonicalURL string    `json:"canonical_url"`
	Field        string    `json:"field"`
	ValueHash    string    `json:"value_hash"`
	Confidence   float64   `json:"confidence"`
	Conflict     bool      `json:"conflict"`
	ObservedAt   time.Time `json:"observed_at"`
}

// pathStat aggregates fetch outcomes per (domain, pathSig) for
// dead-path learning.
type pathStat struct {
	NotFound int `json:"notfound"`
	Ok       int `json:"ok"`
}

// SkipVerdict is the answer to shouldSkipUrl.
type SkipVerdict struct {
	Skip        bool
	Reason      string
	NextRetryTs time.Time
}

// CanonicalForm is the result of canonicalize().
type CanonicalForm struct {
	CanonicalURL string
	Domain       string
	PathSig      string
}

// ProductSnapshot aggregates frontier state relevant to one product.
type ProductSnapshot struct {
	ProductID     string         `json:"product_id"`
	Queries       []QueryRecord  `json:"queries,omitempty"`
	DistinctURLs  int            `json:"distinct_urls"`
	FieldYields   map[string]int `json:"field_yields,omitempty"`
	LiveCooldowns []Cooldown     `json:"live_cooldowns,omitempty"`
}

// skip/cooldown reason codes
const (
	ReasonNotFound      = "404_not_found"
	ReasonGone          = "410_gone"
	ReasonForbidden     = "403_forbidden"
	ReasonRateLimited   = "429_rate_limited"
	ReasonTimeout       = "network_timeout"
	ReasonPathPenalty   = "dead_path_pattern"
	ReasonTombstoned    = "tombstoned"
	ReasonQueryCooldown = "query_cooldown"
)
