package intel

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/rohmanhakim/spec-harvester/internal/schema"
	"github.com/rohmanhakim/spec-harvester/pkg/failure"
	"github.com/rohmanhakim/spec-harvester/pkg/fileutil"
)

// Tracker owns one category's domain intel. Updates happen between
// rounds; planning reads it while no writer is active.
type Tracker struct {
	mu       sync.Mutex
	category string
	path     string
	domains  map[string]*DomainStats
	brands   map[string]*DomainStats // key: domain + "|" + brand
	matrix   map[string]map[string]*FieldYield
	dirty    bool
}

func NewTracker(category, path string) (*Tracker, failure.ClassifiedError) {
	t := &Tracker{
		category: category,
		path:     path,
		domains:  make(map[string]*DomainStats),
		brands:   make(map[string]*DomainStats),
		matrix:   make(map[string]map[string]*FieldYield),
	}
	if err := t.load(); err != nil {
		return nil, err
	}
	return t, nil
}

type trackerFile struct {
	Domains map[string]*DomainStats           `json:"domains"`
	Brands  map[string]*DomainStats           `json:"brands"`
	Matrix  map[string]map[string]*FieldYield `json:"matrix"`
}

// PageOutcome is everything the tracker learns from one gated page.
type PageOutcome struct {
	Domain         string
	Brand          string
	ProductID      string
	HTTPOk         bool
	IdentityMatch  bool
	AnchorConflict bool
}

// RecordPage folds one page outcome into the domain and brand partitions.
func (t *Tracker) RecordPage(outcome PageOutcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dirty = true

	for _, stats := range []*DomainStats{
		t.domainLocked(outcome.Domain),
		t.brandLocked(outcome.Domain, outcome.Brand),
	} {
		stats.Attempts++
		if outcome.HTTPOk {
			stats.HTTPOk++
		}
		if outcome.IdentityMatch {
			stats.IdentityMatch++
		}
		if outcome.AnchorConflict {
			stats.MajorAnchorConflict++
		}
		if outcome.ProductID != "" && !containsString(stats.RecentProducts, outcome.ProductID) {
			stats.ProductsSeen++
			stats.RecentProducts = append(stats.RecentProducts, outcome.ProductID)
			if len(stats.RecentProducts) > 200 {
				stats.RecentProducts = stats.RecentProducts[len(stats.RecentProducts)-200:]
			}
		}
	}
}

// RecordFieldContribution credits a domain for one field observation.
func (t *Tracker) RecordFieldContribution(domain, brand, field string, accepted, critical bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dirty = true

	for _, stats := range []*DomainStats{
		t.domainLocked(domain),
		t.brandLocked(domain, brand),
	} {
		stats.FieldsContributed++
		if accepted {
			stats.FieldsAccepted++
			if critical {
				stats.CriticalFieldsAccepted++
			}
			if stats.FieldHelp == nil {
				stats.FieldHelp = make(map[string]int)
			}
			stats.FieldHelp[field]++
		}
	}

	row := t.matrix[domain]
	if row == nil {
		row = make(map[string]*FieldYield)
		t.matrix[domain] = row
	}
	cell := row[field]
	if cell == nil {
		cell = &FieldYield{}
		row[field] = cell
	}
	cell.Contributed++
	if accepted {
		cell.Accepted++
	}
}

// PlannerScore reads a domain's planner score; unknown domains score 0.
func (t *Tracker) PlannerScore(domain string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	stats, ok := t.domains[domain]
	if !ok {
		return 0
	}
	return stats.Derive().PlannerScore
}

// Promotions lists candidate domains meeting every promotion threshold:
// products_seen >= 20, identity_match_rate >= 0.98, zero major anchor
// conflicts, fields_accepted >= 10, critical_fields_accepted >= 1.
func (t *Tracker) Promotions() []Suggestion {
	t.mu.Lock()
	defer t.mu.Unlock()

	var suggestions []Suggestion
	for domain, stats := range t.domains {
		rates := stats.Derive()
		if stats.ProductsSeen >= 20 &&
			rates.IdentityMatchRate >= 0.98 &&
			stats.MajorAnchorConflict == 0 &&
			stats.FieldsAccepted >= 10 &&
			stats.CriticalFieldsAccepted >= 1 {
			suggestions = append(suggestions, Suggestion{
				Domain:  domain,
				Reasons: []string{"meets_all_promotion_thresholds"},
				Rates:   rates,
			})
		}
	}
	sortSuggestions(suggestions)
	return suggestions
}

// Demotions lists domains with enough attempts and at least one
// disqualifying rate.
func (t *Tracker) Demotions() []Suggestion {
	t.mu.Lock()
	defer t.mu.Unlock()

	var suggestions []Suggestion
	for domain, stats := range t.domains {
		if stats.Attempts < 8 {
			continue
		}
		rates := stats.Derive()
		var reasons []string
		if rates.IdentityMatchRate < 0.50 {
			reasons = append(reasons, "identity_match_rate_below_0.50")
		}
		if rates.HTTPOkRate < 0.30 {
			reasons = append(reasons, "http_ok_rate_below_0.30")
		}
		if rates.AnchorConflictRate > 0.40 {
			reasons = append(reasons, "anchor_conflict_rate_above_0.40")
		}
		if rates.FieldRewardStrength < -0.30 {
			reasons = append(reasons, "field_reward_strength_below_-0.30")
		}
		if len(reasons) > 0 {
			suggestions = append(suggestions, Suggestion{
				Domain:  domain,
				Reasons: reasons,
				Rates:   rates,
			})
		}
	}
	sortSuggestions(suggestions)
	return suggestions
}

// CoverageReport classifies fields with no contributing domain as gaps,
// and fields carried by a single domain or with best yield under 0.30
// as weak.
func (t *Tracker) CoverageReport(ruleset *schema.Ruleset) []CoverageGap {
	t.mu.Lock()
	defer t.mu.Unlock()

	var report []CoverageGap
	for _, field := range ruleset.Keys() {
		domains := 0
		bestYield := 0.0
		for _, row := range t.matrix {
			cell, ok := row[field]
			if !ok || cell.Contributed == 0 {
				continue
			}
			domains++
			yield := float64(cell.Accepted) / float64(cell.Contributed)
			if yield > bestYield {
				bestYield = yield
			}
		}
		switch {
		case domains == 0:
			report = append(report, CoverageGap{Field: field, Status: "gap", Reason: "no_contributing_domains"})
		case domains == 1:
			report = append(report, CoverageGap{Field: field, Status: "weak", Reason: "single_contributing_domain"})
		case bestYield < 0.30:
			report = append(report, CoverageGap{Field: field, Status: "weak", Reason: "best_yield_below_0.30"})
		}
	}
	return report
}

// DailyDelta assembles the date-keyed intel artifact.
func (t *Tracker) DailyDelta(date string) Delta {
	t.mu.Lock()
	domains := make(map[string]DomainStats, len(t.domains))
	for domain, stats := range t.domains {
		domains[domain] = *stats
	}
	t.mu.Unlock()

	return Delta{
		Date:                 date,
		Category:             t.category,
		DomainStats:          domains,
		PromotionSuggestions: t.Promotions(),
		DemotionSuggestions:  t.Demotions(),
		BrandExpansionPlans:  t.brandExpansions(),
	}
}

// brandExpansions proposes (domain, brand) pairs whose partition looks
// strong enough to try on the brand's wider catalog.
func (t *Tracker) brandExpansions() []BrandExpansion {
	t.mu.Lock()
	defer t.mu.Unlock()

	var plans []BrandExpansion
	for key, stats := range t.brands {
		domain, brand, ok := splitBrandKey(key)
		if !ok || brand == "" {
			continue
		}
		rates := stats.Derive()
		if stats.ProductsSeen >= 5 && rates.IdentityMatchRate >= 0.90 && stats.FieldsAccepted >= 5 {
			plans = append(plans, BrandExpansion{Domain: domain, Brand: brand, Rates: rates})
		}
	}
	sort.Slice(plans, func(i, j int) bool {
		if plans[i].Domain != plans[j].Domain {
			return plans[i].Domain < plans[j].Domain
		}
		return plans[i].Brand < plans[j].Brand
	})
	return plans
}

// Save persists the tracker with atomic-write semantics.
func (t *Tracker) Save() failure.ClassifiedError {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.dirty {
		return nil
	}
	file := trackerFile{
		Domains: t.domains,
		Brands:  t.brands,
		Matrix:  t.matrix,
	}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return &IntelError{Message: fmt.Sprintf("marshal intel: %v", err), Retryable: false}
	}
	if writeErr := fileutil.WriteFileAtomic(t.path, data); writeErr != nil {
		return writeErr
	}
	t.dirty = false
	return nil
}

func (t *Tracker) load() failure.ClassifiedError {
	data, err := os.ReadFile(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &IntelError{Message: err.Error(), Retryable: true}
	}
	file := trackerFile{}
	if err := json.Unmarshal(data, &file); err != nil {
		return &IntelError{Message: fmt.Sprintf("parse intel: %v", err), Retryable: false}
	}
	if file.Domains != nil {
		t.domains = file.Domains
	}
	if file.Brands != nil {
		t.brands = file.Brands
	}
	if file.Matrix != nil {
		t.matrix = file.Matrix
	}
	return nil
}

func (t *Tracker) domainLocked(domain string) *DomainStats {
	stats, ok := t.domains[domain]
	if !ok {
		stats = &DomainStats{}
		t.domains[domain] = stats
	}
	return stats
}

func (t *Tracker) brandLocked(domain, brand string) *DomainStats {
	key := domain + "|" + brand
	stats, ok := t.brands[key]
	if !ok {
		stats = &DomainStats{}
		t.brands[key] = stats
	}
	return stats
}

func sortSuggestions(suggestions []Suggestion) {
	sort.Slice(suggestions, func(i, j int) bool {
		return suggestions[i].Domain < suggestions[j].Domain
	})
}

func splitBrandKey(key string) (domain, brand string, ok bool) {
	for i := 0; i < len(key); i++ {
		if key[i] == '|' {
			return key[:i], key[i+1:], true
		}
	}
	return "", "", false
}

func containsString(list []string, item string) bool {
	for _, v := range list {
		if v == item {
			return true
		}
	}
	return false
}
