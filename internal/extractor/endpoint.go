package extractor

import (
	"encoding/json"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/rohmanhakim/spec-harvester/internal/fetcher"
	"github.com/rohmanhakim/spec-harvester/pkg/urlutil"
)

/*
EndpointMiner

Aggregates captured request paths into normalized signatures
("METHOD rootDomain/path-with-placeholders") and scores each signature
from its response classification and request method. The spec fields its
payloads yield are listed as hints but do not add to the score; a
signature whose payloads yielded no field is never proposed. Top
signatures become "next best URL" proposals for later rounds.
*/

// EndpointProposal is one mined next-best URL.
type EndpointProposal struct {
	Signature  string   `json:"signature"`
	SampleURL  string   `json:"sample_url"`
	Score      float64  `json:"score"`
	FieldHints []string `json:"field_hints,omitempty"`
	Seen       int      `json:"seen"`
}

type endpointStat struct {
	sampleURL  string
	score      float64
	seen       int
	fieldHints map[string]struct{}
}

var classScores = map[fetcher.ResponseClass]float64{
	fetcher.ClassSpecs:          3.0,
	fetcher.ClassProductPayload: 2.5,
	fetcher.ClassVariantMatrix:  2.0,
	fetcher.ClassGraphqlReplay:  1.5,
	fetcher.ClassFetchJSON:      1.0,
	fetcher.ClassPricing:        0.3,
	fetcher.ClassReviews:        0.2,
	fetcher.ClassUnknown:        0.2,
}

type EndpointMiner struct {
	mu      sync.Mutex
	matcher *FieldMatcher
	stats   map[string]*endpointStat
}

func NewEndpointMiner(matcher *FieldMatcher) *EndpointMiner {
	return &EndpointMiner{
		matcher: matcher,
		stats:   make(map[string]*endpointStat),
	}
}

// Observe folds one page's captures into the signature table.
func (m *EndpointMiner) Observe(page fetcher.FetchResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, capture := range page.Captures {
		signature, ok := m.signatureFor(capture.Method, capture.URL)
		if !ok {
			continue
		}
		stat := m.stats[signature]
		if stat == nil {
			stat = &endpointStat{
				sampleURL:  capture.URL,
				fieldHints: make(map[string]struct{}),
			}
			m.stats[signature] = stat
		}
		stat.seen++
		stat.score += classScores[capture.Class]
		if capture.Method == "GET" {
			stat.score += 0.2
		}
		for _, field := range m.fieldHints(capture.Body) {
			stat.fieldHints[field] = struct{}{}
		}
	}
}

// NextBestURLs returns the strongest field-bearing signatures, best first.
func (m *EndpointMiner) NextBestURLs(limit int) []EndpointProposal {
	m.mu.Lock()
	defer m.mu.Unlock()

	var proposals []EndpointProposal
	for signature, stat := range m.stats {
		if len(stat.fieldHints) == 0 {
			continue
		}
		proposal := EndpointProposal{
			Signature: signature,
			SampleURL: stat.sampleURL,
			Score:     stat.score,
			Seen:      stat.seen,
		}
		for field := range stat.fieldHints {
			proposal.FieldHints = append(proposal.FieldHints, field)
		}
		sort.Strings(proposal.FieldHints)
		proposals = append(proposals, proposal)
	}
	sort.Slice(proposals, func(i, j int) bool {
		if proposals[i].Score != proposals[j].Score {
			return proposals[i].Score > proposals[j].Score
		}
		return proposals[i].Signature < proposals[j].Signature
	})
	if limit > 0 && len(proposals) > limit {
		proposals = proposals[:limit]
	}
	return proposals
}

func (m *EndpointMiner) signatureFor(method, rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", false
	}
	if method == "" {
		method = "GET"
	}
	root := urlutil.RootDomain(u.Host)
	return method + " " + root + normalizeEndpointPath(u.Path), true
}

// normalizeEndpointPath replaces volatile segments: numbers become :num,
// hex ids become :id, and long opaque tokens become :token.
func normalizeEndpointPath(p string) string {
	sig := urlutil.PathSignature(p)
	segments := strings.Split(sig, "/")
	for i, segment := range segments {
		if len(segment) >= 24 && !strings.HasPrefix(segment, ":") {
			segments[i] = ":token"
		}
	}
	return strings.Join(segments, "/")
}

// fieldHints counts which rule keys a JSON body's leaves resolve to.
func (m *EndpointMiner) fieldHints(body string) []string {
	var payload any
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return nil
	}
	seen := make(map[string]struct{})
	walkJSON(payload, "", 0, func(path string, _ string) {
		if rule, ok := m.matcher.MatchKey(path); ok {
			seen[rule.Key] = struct{}{}
		}
	})
	var fields []string
	for field := range seen {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}
