package convergence

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rohmanhakim/spec-harvester/internal/extractor"
	"github.com/rohmanhakim/spec-harvester/internal/frontier"
	"github.com/rohmanhakim/spec-harvester/internal/intel"
	"github.com/rohmanhakim/spec-harvester/internal/llm"
	"github.com/rohmanhakim/spec-harvester/internal/metadata"
	"github.com/rohmanhakim/spec-harvester/internal/schema"
	"github.com/rohmanhakim/spec-harvester/internal/search"
	"github.com/rohmanhakim/spec-harvester/pkg/urlutil"
)

/*
Source planner

Plans each round's queries and sources. Deterministic templates carry the
pipeline on their own; the LLM planner only ever adds queries on the
deepest tier and the plan survives its absence unchanged.
*/

type Planner struct {
	metadataSink   metadata.MetadataSink
	lock           schema.IdentityLock
	ruleset        *schema.Ruleset
	tierMap        *schema.TierMap
	frontierStore  *frontier.Store
	intelTracker   *intel.Tracker
	searchProvider search.Provider
	endpointMiner  *extractor.EndpointMiner
	router         llm.Router
	seedURLs       []string
	maxQueries     int
}

func NewPlanner(
	metadataSink metadata.MetadataSink,
	lock schema.IdentityLock,
	ruleset *schema.Ruleset,
	tierMap *schema.TierMap,
	frontierStore *frontier.Store,
	intelTracker *intel.Tracker,
	searchProvider search.Provider,
	endpointMiner *extractor.EndpointMiner,
	router llm.Router,
	seedURLs []string,
	maxQueries int,
) Planner {
	return Planner{
		metadataSink:   metadataSink,
		lock:           lock,
		ruleset:        ruleset,
		tierMap:        tierMap,
		frontierStore:  frontierStore,
		intelTracker:   intelTracker,
		searchProvider: searchProvider,
		endpointMiner:  endpointMiner,
		router:         router,
		seedURLs:       seedURLs,
		maxQueries:     maxQueries,
	}
}

// PlanQueries builds the round's query list from deterministic templates.
func (p *Planner) PlanQueries(tier RoundTier, missingFields []string) []string {
	product := strings.TrimSpace(p.lock.Brand + " " + p.lock.Model)
	variantProduct := strings.TrimSpace(product + " " + p.lock.Variant)

	var queries []string
	add := func(q string) {
		q = strings.Join(strings.Fields(q), " ")
		if q == "" {
			return
		}
		for _, existing := range queries {
			if existing == q {
				return
			}
		}
		queries = append(queries, q)
	}

	switch tier {
	case TierSeed:
		return nil
	case TierPlanned:
		add(product + " specs")
		add(variantProduct + " specifications")
		if p.lock.SKU != "" {
			add(p.lock.SKU + " " + p.lock.Brand)
		}
		for _, profile := range p.topDomains(3) {
			add("site:" + profile.Domain + " " + product)
		}
	case TierExpanded:
		add(product + " technical specifications")
		add(product + " review specs")
		for _, field := range boundFields(missingFields, 6) {
			add(product + " " + strings.ReplaceAll(field, "_", " "))
		}
		for _, field := range p.missingComponentFields(missingFields) {
			add(product + " " + strings.ReplaceAll(field, "_", " "))
		}
	case TierDeepest:
		add(product + " datasheet")
		add(product + " especificaciones")
		add(product + " technische daten")
		for _, field := range boundFields(missingFields, 10) {
			add(product + " " + strings.ReplaceAll(field, "_", " ") + " exact")
		}
		queries = append(queries, p.llmQueries(missingFields)...)
	}

	if p.maxQueries > 0 && len(queries) > p.maxQueries {
		queries = queries[:p.maxQueries]
	}
	return queries
}

// PlanSources resolves the round's fetch list: seeds on tier0, reranked
// search hits beyond, endpoint probes and sitemap inventory on the
// deeper tiers.
func (p *Planner) PlanSources(ctx context.Context, tier RoundTier, missingFields []string, force bool) []PlannedSource {
	var sources []PlannedSource
	seen := make(map[string]struct{})

	add := func(source PlannedSource) {
		canonical := urlutil.CanonicalString(source.URL)
		if _, dup := seen[canonical]; dup {
			return
		}
		if verdict := p.frontierStore.ShouldSkipUrl(source.URL, force); verdict.Skip {
			return
		}
		u := canonical
		if root := rootDomainOfURL(u); root != "" && p.tierMap.IsDenied(root) {
			return
		}
		seen[canonical] = struct{}{}
		sources = append(sources, source)
	}

	if tier == TierSeed {
		for _, seed := range p.seedURLs {
			add(PlannedSource{URL: seed, Origin: OriginSeed})
		}
		return sources
	}

	for _, query := range p.PlanQueries(tier, missingFields) {
		if p.frontierStore.ShouldSkipQuery(p.lock.ProductID, query, force) {
			continue
		}
		results, err := p.searchProvider.Search(ctx, query, 10)
		if err != nil {
			continue
		}
		p.recordQuery(query, missingFields, results)
		for _, hit := range p.rerank(results) {
			add(PlannedSource{URL: hit.URL, Origin: OriginSearch})
		}
	}

	if tier == TierExpanded || tier == TierDeepest {
		for _, proposal := range p.endpointMiner.NextBestURLs(5) {
			add(PlannedSource{URL: proposal.SampleURL, Origin: OriginEndpoint})
		}
	}
	if tier == TierDeepest {
		for _, profile := range p.topDomains(2) {
			add(PlannedSource{
				URL:           "https://" + profile.Domain + "/sitemap.xml",
				Origin:        OriginSitemap,
				DiscoveryOnly: true,
			})
		}
	}
	return sources
}

// rerank orders search hits deterministically: intel planner score and
// approved-domain standing push up, SERP rank and frontier history push
// down.
func (p *Planner) rerank(results []search.Result) []search.Result {
	type scored struct {
		hit   search.Result
		score float64
	}
	ranked := make([]scored, 0, len(results))
	for _, hit := range results {
		root := rootDomainOfURL(hit.URL)
		score := 2 * p.intelTracker.PlannerScore(root)
		if p.tierMap.IsApproved(root) {
			score += 1.0
		}
		profile := p.tierMap.Profile(root)
		score += (5 - float64(profile.Tier)) * 0.2
		score -= float64(hit.Rank) * 0.05
		score += p.frontierStore.RankPenaltyForUrl(hit.URL)
		ranked = append(ranked, scored{hit: hit, score: score})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].hit.URL < ranked[j].hit.URL
	})
	out := make([]search.Result, len(ranked))
	for i, s := range ranked {
		out[i] = s.hit
	}
	return out
}

func (p *Planner) recordQuery(query string, fields []string, results []search.Result) {
	hits := make([]frontier.SearchHit, 0, len(results))
	for _, result := range results {
		hits = append(hits, frontier.SearchHit{
			Rank:    result.Rank,
			URL:     result.URL,
			Title:   result.Title,
			Host:    result.Host,
			Snippet: result.Snippet,
		})
	}
	p.frontierStore.RecordQuery(p.lock.ProductID, query, p.searchProvider.Name(), fields, hits)
}

// llmQueries asks the optional planner for extra queries; any failure
// degrades to none.
func (p *Planner) llmQueries(missingFields []string) []string {
	if p.router == nil {
		return nil
	}
	user := fmt.Sprintf(
		"Product: %s %s %s. Missing fields: %s. Propose search queries.",
		p.lock.Brand, p.lock.Model, p.lock.Variant, strings.Join(missingFields, ", "),
	)
	response, err := p.router.Call(
		context.Background(),
		llm.RolePlan,
		"You plan web search queries for product spec harvesting. Answer as JSON.",
		user,
		json.RawMessage(`{"type":"object","properties":{"queries":{"type":"array","items":{"type":"string"}}}}`),
	)
	if err != nil {
		return nil
	}
	var parsed struct {
		Queries []string `json:"queries"`
	}
	if err := json.Unmarshal(response, &parsed); err != nil {
		return nil
	}
	if len(parsed.Queries) > 5 {
		parsed.Queries = parsed.Queries[:5]
	}
	return parsed.Queries
}

func (p *Planner) topDomains(limit int) []schema.DomainProfile {
	profiles := make([]schema.DomainProfile, len(p.tierMap.Domains))
	copy(profiles, p.tierMap.Domains)
	sort.SliceStable(profiles, func(i, j int) bool {
		if profiles[i].Tier != profiles[j].Tier {
			return profiles[i].Tier < profiles[j].Tier
		}
		left := p.intelTracker.PlannerScore(profiles[i].Domain)
		right := p.intelTracker.PlannerScore(profiles[j].Domain)
		if left != right {
			return left > right
		}
		return profiles[i].Domain < profiles[j].Domain
	})
	if len(profiles) > limit {
		profiles = profiles[:limit]
	}
	return profiles
}

func (p *Planner) missingComponentFields(missingFields []string) []string {
	var out []string
	for _, field := range missingFields {
		if rule, ok := p.ruleset.Rule(field); ok && rule.Type == schema.FieldComponentRef {
			out = append(out, field)
		}
	}
	return out
}

func boundFields(fields []string, limit int) []string {
	if len(fields) > limit {
		return fields[:limit]
	}
	return fields
}

func rootDomainOfURL(rawURL string) string {
	if i := strings.Index(rawURL, "://"); i >= 0 {
		rest := rawURL[i+3:]
		if j := strings.IndexByte(rest, '/'); j >= 0 {
			rest = rest[:j]
		}
		return urlutil.RootDomain(rest)
	}
	return ""
}
