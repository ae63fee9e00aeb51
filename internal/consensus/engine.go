package consensus

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rohmanhakim/spec-harvester/internal/config"
	"github.com/rohmanhakim/spec-harvester/internal/extractor"
	"github.com/rohmanhakim/spec-harvester/internal/identity"
	"github.com/rohmanhakim/spec-harvester/internal/schema"
)

/*
Consensus engine

Merges candidates per field: canonicalize values (unit conversion, enum
and component alias resolution), cluster compatible values under the
field's variance policy, score clusters by weighted tier/role/method
sums, pick a winner, and band the result.

Candidate order never changes the outcome: entries are sorted into a
deterministic order before clustering, and cluster scores are plain sums.
*/

// RankModifier maps a source URL to the frontier's rank penalty in
// [-1.5, +0.5]. The engine folds it into a multiplicative factor
// clamped to [0.1, 1.5] so a penalized URL can't flip a weight negative.
type RankModifier func(url string) float64

// PageDecisionLookup resolves a page's identity decision for acceptance
// gating.
type PageDecisionLookup func(url string) identity.Decision

type Engine struct {
	weights     config.ConsensusWeights
	ruleset     *schema.Ruleset
	componentDB *schema.ComponentDB
	tierMap     *schema.TierMap
	rank        RankModifier
	decision    PageDecisionLookup
}

func NewEngine(
	weights config.ConsensusWeights,
	ruleset *schema.Ruleset,
	componentDB *schema.ComponentDB,
	tierMap *schema.TierMap,
	rank RankModifier,
	decision PageDecisionLookup,
) *Engine {
	return &Engine{
		weights:     weights,
		ruleset:     ruleset,
		componentDB: componentDB,
		tierMap:     tierMap,
		rank:        rank,
		decision:    decision,
	}
}

// MergeAll groups candidates by field, merges each, then applies
// component-database bounds across fields.
func (e *Engine) MergeAll(candidates []extractor.Candidate, status identity.OverallStatus) map[string]*FieldOutcome {
	byField := make(map[string][]extractor.Candidate)
	for _, candidate := range candidates {
		byField[candidate.Field] = append(byField[candidate.Field], candidate)
	}

	outcomes := make(map[string]*FieldOutcome, len(byField))
	for field, group := range byField {
		outcome := e.Merge(field, group, status)
		outcomes[field] = &outcome
	}
	e.ApplyComponentBounds(outcomes)
	return outcomes
}

// Merge resolves one field's candidates into an outcome.
func (e *Engine) Merge(field string, candidates []extractor.Candidate, status identity.OverallStatus) FieldOutcome {
	rule, _ := e.ruleset.Rule(field)
	outcome := FieldOutcome{
		Field:      field,
		State:      StateUnresolved,
		PassTarget: rule.EffectivePassTarget(),
		Unit:       rule.CanonicalUnit,
	}

	entries := e.canonicalizeAll(rule, candidates)
	if len(entries) == 0 {
		outcome.ReasonCodes = append(outcome.ReasonCodes, ReasonNotFound)
		return outcome
	}

	clusters := e.cluster(rule, entries)
	for i := range clusters {
		e.scoreCluster(&clusters[i])
	}
	sort.SliceStable(clusters, func(i, j int) bool {
		return clusterLess(clusters[j], clusters[i])
	})
	outcome.Clusters = clusters

	winner := clusters[0]
	outcome.Winner = &winner
	outcome.Value = winner.Canonical
	outcome.NumericValue = winner.NumericValue
	outcome.IsNumeric = winner.IsNumeric
	outcome.Confirmations = len(winner.Members)
	outcome.ApprovedConfirmations = e.approvedCount(winner)

	confidence := winner.Score / outcome.PassTarget
	if confidence > 1 {
		confidence = 1
	}
	ceiling := CapForStatus(status)
	hasConfirmed := e.hasConfirmedMember(winner)
	if !hasConfirmed && ceiling > 0.85 {
		// WARNING pages may contribute, but alone they never carry a
		// field to full confidence.
		ceiling = 0.85
	}
	if confidence > ceiling {
		confidence = ceiling
	}
	outcome.Confidence = confidence
	outcome.MeetsTarget = winner.Score >= outcome.PassTarget

	switch {
	case confidence >= e.weights.AutoAccept && hasConfirmed:
		outcome.State = StateAccepted
	case confidence >= e.weights.AutoAccept && !hasConfirmed:
		outcome.State = StateFlagged
		outcome.ReasonCodes = append(outcome.ReasonCodes, ReasonNoConfirmedPage)
	case confidence >= e.weights.FlagReview:
		outcome.State = StateFlagged
	default:
		outcome.State = StateUnresolved
		outcome.ReasonCodes = append(outcome.ReasonCodes, ReasonBelowThreshold)
	}
	return outcome
}

// canonicalEntry is a candidate after value canonicalization.
type canonicalEntry struct {
	candidate extractor.Candidate
	canonical string
	numeric   float64
	isNumeric bool
}

func (e *Engine) canonicalizeAll(rule schema.FieldRule, candidates []extractor.Candidate) []canonicalEntry {
	var entries []canonicalEntry
	for _, candidate := range candidates {
		entry, ok := e.canonicalize(rule, candidate)
		if !ok {
			continue
		}
		entries = append(entries, entry)
	}
	// Deterministic order: clustering and tie-breaks must not depend on
	// arrival order.
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].canonical != entries[j].canonical {
			return entries[i].canonical < entries[j].canonical
		}
		if entries[i].candidate.SourceURL != entries[j].candidate.SourceURL {
			return entries[i].candidate.SourceURL < entries[j].candidate.SourceURL
		}
		return entries[i].candidate.Method < entries[j].candidate.Method
	})
	return entries
}

func (e *Engine) canonicalize(rule schema.FieldRule, candidate extractor.Candidate) (canonicalEntry, bool) {
	entry := canonicalEntry{candidate: candidate}

	switch rule.Type {
	case schema.FieldNumber, schema.FieldInteger:
		value, unit, ok := ParseNumeric(candidate.Value)
		if !ok {
			return entry, false
		}
		converted, ok := ConvertTo(value, unit, rule.CanonicalUnit)
		if !ok {
			// Unit-less claims assume the canonical unit.
			if unit != "" {
				return entry, false
			}
			converted = value
		}
		converted = RoundForType(converted, rule.Type == schema.FieldInteger)
		entry.numeric = converted
		entry.isNumeric = true
		entry.canonical = formatNumeric(converted)
	case schema.FieldEnum:
		entry.canonical = e.canonicalEnum(rule, candidate.Value)
	case schema.FieldBoolean:
		entry.canonical = canonicalBool(candidate.Value)
		if entry.canonical == "" {
			return entry, false
		}
	case schema.FieldComponentRef:
		if match, ok := e.componentDB.Lookup(rule.ComponentType, candidate.Value); ok {
			entry.canonical = match.CanonicalName
		} else {
			entry.canonical = normalizeText(candidate.Value)
		}
	case schema.FieldDate:
		entry.canonical = strings.TrimSpace(candidate.Value)
	default:
		if candidate.IsListField() {
			values := make([]string, 0, len(candidate.Values))
			for _, v := range candidate.Values {
				values = append(values, normalizeText(v))
			}
			sort.Strings(values)
			entry.canonical = strings.Join(values, "|")
		} else {
			entry.canonical = normalizeText(candidate.Value)
		}
	}
	if entry.canonical == "" {
		return entry, false
	}
	return entry, true
}

// cluster groups entries whose values are mutually compatible under the
// field's variance policy. Non-numeric fields cluster by canonical string.
func (e *Engine) cluster(rule schema.FieldRule, entries []canonicalEntry) []Cluster {
	policy := rule.EffectivePolicy()
	var clusters []Cluster

	place := func(index int, entry canonicalEntry) {
		for i := range clusters {
			if e.belongs(policy, &clusters[i], entry) {
				appendMember(&clusters[i], entry, index)
				return
			}
		}
		cluster := Cluster{
			Canonical:    entry.canonical,
			NumericValue: entry.numeric,
			IsNumeric:    entry.isNumeric,
			EarliestSpan: spanStart(entry.candidate),
			FirstIndex:   index,
		}
		appendMember(&cluster, entry, index)
		clusters = append(clusters, cluster)
	}

	for i, entry := range entries {
		place(i, entry)
	}
	return clusters
}

func (e *Engine) belongs(policy schema.VariancePolicy, cluster *Cluster, entry canonicalEntry) bool {
	if !cluster.IsNumeric || !entry.isNumeric {
		return cluster.Canonical == entry.canonical
	}
	if cluster.NumericValue == entry.numeric {
		return true
	}
	return Compatible(policy, entry.numeric, cluster.NumericValue)
}

func (e *Engine) scoreCluster(cluster *Cluster) {
	var score float64
	for _, member := range cluster.Members {
		weight := e.weights.Tier[int(member.Tier)] *
			e.weights.Role[string(member.Role)] *
			e.weights.Method[string(member.Method)] *
			e.rankFactor(member.SourceURL)
		score += weight
		if member.Tier == schema.TierManufacturer && e.decision(member.SourceURL) == identity.DecisionConfirmed {
			cluster.TierOneConfirmed++
		}
	}
	cluster.Score = score
}

// rankFactor converts the frontier's additive penalty into a bounded
// multiplicative factor.
func (e *Engine) rankFactor(url string) float64 {
	if e.rank == nil {
		return 1
	}
	factor := 1 + e.rank(url)
	if factor < 0.1 {
		factor = 0.1
	}
	if factor > 1.5 {
		factor = 1.5
	}
	return factor
}

// clusterLess orders clusters worse-first so sort descending puts the
// winner at index 0. Tie-breaks: tier-1 confirmations, earlier quote
// span, insertion order.
func clusterLess(a, b Cluster) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	if a.TierOneConfirmed != b.TierOneConfirmed {
		return a.TierOneConfirmed < b.TierOneConfirmed
	}
	if a.EarliestSpan != b.EarliestSpan {
		return a.EarliestSpan > b.EarliestSpan
	}
	return a.FirstIndex > b.FirstIndex
}

// ApplyComponentBounds checks accepted scalar values against the winning
// component's reference properties. A violation flags the field for AI
// review rather than silently dropping it.
func (e *Engine) ApplyComponentBounds(outcomes map[string]*FieldOutcome) {
	for field, outcome := range outcomes {
		rule, ok := e.ruleset.Rule(field)
		if !ok || rule.Type != schema.FieldComponentRef || outcome.Winner == nil {
			continue
		}
		entry, found := e.componentDB.Lookup(rule.ComponentType, outcome.Value)
		if !found {
			continue
		}
		for propertyKey, property := range entry.Properties {
			if property.Number == nil {
				continue
			}
			dependent, ok := outcomes[propertyKey]
			if !ok || !dependent.IsNumeric {
				continue
			}
			policy := entry.VariancePolicies[propertyKey]
			if policy == "" {
				if dependentRule, ok := e.ruleset.Rule(propertyKey); ok {
					policy = dependentRule.EffectivePolicy()
				}
			}
			comparison := Compare(policy, dependent.NumericValue, *property.Number)
			if comparison.Violation {
				dependent.NeedsAIReview = true
				dependent.ReasonCodes = append(dependent.ReasonCodes,
					fmt.Sprintf("variance_violation:%s:%s", entry.CanonicalName, propertyKey))
			}
		}
	}
}

func (e *Engine) hasConfirmedMember(cluster Cluster) bool {
	for _, member := range cluster.Members {
		if e.decision(member.SourceURL) == identity.DecisionConfirmed {
			return true
		}
	}
	return false
}

func (e *Engine) approvedCount(cluster Cluster) int {
	if e.tierMap == nil {
		return 0
	}
	count := 0
	for _, member := range cluster.Members {
		if e.tierMap.IsApproved(member.RootDomain) {
			count++
		}
	}
	return count
}

func (e *Engine) canonicalEnum(rule schema.FieldRule, raw string) string {
	normalized := normalizeText(raw)
	for _, enumValue := range rule.EnumValues {
		if normalizeText(enumValue) == normalized {
			return enumValue
		}
	}
	return normalized
}

func appendMember(cluster *Cluster, entry canonicalEntry, index int) {
	cluster.Members = append(cluster.Members, entry.candidate)
	if start := spanStart(entry.candidate); start < cluster.EarliestSpan {
		cluster.EarliestSpan = start
	}
	if index < cluster.FirstIndex {
		cluster.FirstIndex = index
	}
}

func spanStart(candidate extractor.Candidate) int {
	if len(candidate.Evidence.QuoteSpan) > 0 {
		return candidate.Evidence.QuoteSpan[0]
	}
	return 1 << 30
}

func canonicalBool(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "yes", "y", "1":
		return "true"
	case "false", "no", "n", "0":
		return "false"
	}
	return ""
}

func normalizeText(s string) string {
	return strings.Join(schema.Tokenize(s), " ")
}

func formatNumeric(value float64) string {
	if value == float64(int64(value)) {
		return fmt.Sprintf("%d", int64(value))
	}
	return fmt.Sprintf("%g", value)
}
