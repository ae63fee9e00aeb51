package identity

import (
	"github.com/rohmanhakim/spec-harvester/internal/schema"
)

// Reconcile combines per-page assessments into the product-level identity
// status. The bar: one CONFIRMED manufacturer tier-1 source AND either
// two more credible domains (tier <= 2) or one credible domain plus a
// trusted helper. Aggregate contradictions raise the result to
// IDENTITY_CONFLICT regardless of corroboration.
func Reconcile(assessments []PageAssessment) Report {
	report := Report{}

	var manufacturerConfirmed bool
	credibleDomains := make(map[string]struct{})
	helperDomains := make(map[string]struct{})

	for _, a := range assessments {
		if !a.Verdict.Decision.Admissible() {
			continue
		}
		if a.Verdict.Decision == DecisionConfirmed {
			report.ConfirmedPages++
			if a.Role == schema.RoleManufacturer && a.Tier == schema.TierManufacturer {
				manufacturerConfirmed = true
				continue
			}
		}
		if a.Tier <= schema.TierLabReview {
			credibleDomains[a.RootDomain] = struct{}{}
		} else if a.TrustedHelper {
			helperDomains[a.RootDomain] = struct{}{}
		}
	}
	report.CredibleDomains = len(credibleDomains)

	report.Contradictions = findContradictions(assessments)
	if len(report.Contradictions) > 0 {
		report.Status = StatusIdentityConflict
		return report
	}

	switch {
	case manufacturerConfirmed && len(credibleDomains) >= 2:
		report.Status = StatusConfirmed
	case manufacturerConfirmed && len(credibleDomains) >= 1 && len(helperDomains) >= 1:
		report.Status = StatusConfirmed
	case manufacturerConfirmed || len(credibleDomains) >= 1:
		report.Status = StatusLowConfidence
	case report.ConfirmedPages > 0:
		report.Status = StatusLowConfidence
	default:
		report.Status = StatusIdentityFailed
	}
	return report
}

// findContradictions detects cross-page identity conflicts among
// admissible pages.
func findContradictions(assessments []PageAssessment) []string {
	var contradictions []string

	if conflictingConnections(assessments) {
		contradictions = append(contradictions, ContradictionConnection)
	}
	if conflictingSensors(assessments) {
		contradictions = append(contradictions, ContradictionSensor)
	}
	if conflictingSKUs(assessments) {
		contradictions = append(contradictions, ContradictionSKU)
	}
	if conflictingDimensions(assessments) {
		contradictions = append(contradictions, ContradictionDimensions)
	}
	return contradictions
}

// conflictingConnections: wired vs wireless is a conflict unless some
// page says dual, which covers both.
func conflictingConnections(assessments []PageAssessment) bool {
	seen := make(map[string]bool)
	for _, a := range assessments {
		if a.Verdict.Decision.Admissible() && a.ConnectionClass != "" {
			seen[a.ConnectionClass] = true
		}
	}
	if seen["dual"] {
		return false
	}
	return seen["wired"] && seen["wireless"]
}

// conflictingSensors: two sensor families whose token overlap is below
// 0.6 in both directions.
func conflictingSensors(assessments []PageAssessment) bool {
	var families []string
	for _, a := range assessments {
		if a.Verdict.Decision.Admissible() && a.SensorFamily != "" {
			families = append(families, a.SensorFamily)
		}
	}
	for i := 0; i < len(families); i++ {
		for j := i + 1; j < len(families); j++ {
			left := schema.Tokenize(families[i])
			right := schema.TokenSet(families[j])
			forward := schema.TokenOverlap(left, right)
			backward := schema.TokenOverlap(schema.Tokenize(families[j]), schema.TokenSet(families[i]))
			if forward < 0.6 && backward < 0.6 {
				return true
			}
		}
	}
	return false
}

// conflictingSKUs: two pages carrying SKUs with no shared segment.
func conflictingSKUs(assessments []PageAssessment) bool {
	var tokenSets []map[string]struct{}
	for _, a := range assessments {
		if !a.Verdict.Decision.Admissible() || len(a.SKUTokens) == 0 {
			continue
		}
		set := make(map[string]struct{}, len(a.SKUTokens))
		for _, token := range a.SKUTokens {
			set[token] = struct{}{}
		}
		tokenSets = append(tokenSets, set)
	}
	for i := 0; i < len(tokenSets); i++ {
		for j := i + 1; j < len(tokenSets); j++ {
			if !shareAny(tokenSets[i], tokenSets[j]) {
				return true
			}
		}
	}
	return false
}

// conflictingDimensions: more than 3mm spread on any observed axis.
// Dimensions are positional (length, width, height); axes are compared
// independently.
func conflictingDimensions(assessments []PageAssessment) bool {
	type axisRange struct {
		min, max float64
		seen     bool
	}
	var axes [3]axisRange
	for _, a := range assessments {
		if !a.Verdict.Decision.Admissible() {
			continue
		}
		for i, dim := range a.DimensionsMm {
			if i >= len(axes) {
				break
			}
			axis := &axes[i]
			if !axis.seen {
				axis.min, axis.max = dim, dim
				axis.seen = true
				continue
			}
			if dim < axis.min {
				axis.min = dim
			}
			if dim > axis.max {
				axis.max = dim
			}
		}
	}
	for _, axis := range axes {
		if axis.seen && axis.max-axis.min > 3.0 {
			return true
		}
	}
	return false
}

func shareAny(left, right map[string]struct{}) bool {
	for token := range left {
		if _, ok := right[token]; ok {
			return true
		}
	}
	return false
}
