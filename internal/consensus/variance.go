package consensus

import (
	"math"

	"github.com/rohmanhakim/spec-harvester/internal/schema"
)

// Comparison is the outcome of a variance-policy check between an
// observed value and a reference value.
type Comparison struct {
	Match     bool
	Partial   float64
	Violation bool
}

// Compare applies a variance policy to (observed, reference), both in
// canonical units.
//
//	authoritative      exact -> 1; within 5% -> 0.9; graduated falloff
//	upper_bound        observed <= reference -> 1; else reference/observed
//	lower_bound        observed >= reference -> 1; else observed/reference
//	range              within 10% -> 1; graduated falloff
//	override_allowed   same comparison as authoritative
func Compare(policy schema.VariancePolicy, observed, reference float64) Comparison {
	switch policy {
	case schema.VarianceUpperBound:
		if observed <= reference {
			return Comparison{Match: true, Partial: 1}
		}
		return Comparison{Partial: safeRatio(reference, observed), Violation: true}
	case schema.VarianceLowerBound:
		if observed >= reference {
			return Comparison{Match: true, Partial: 1}
		}
		return Comparison{Partial: safeRatio(observed, reference), Violation: true}
	case schema.VarianceRange:
		diff := relativeDiff(observed, reference)
		if diff <= 0.10 {
			return Comparison{Match: true, Partial: 1}
		}
		partial := 1 - (diff-0.10)*5
		if partial < 0 {
			partial = 0
		}
		return Comparison{Partial: partial, Violation: true}
	default: // authoritative, override_allowed
		diff := relativeDiff(observed, reference)
		switch {
		case diff == 0:
			return Comparison{Match: true, Partial: 1}
		case diff <= 0.05:
			return Comparison{Match: true, Partial: 0.9}
		default:
			partial := 0.9 - diff
			if partial < 0 {
				partial = 0
			}
			return Comparison{Partial: partial}
		}
	}
}

// Compatible reports whether two numeric observations may share a cluster
// under the policy.
func Compatible(policy schema.VariancePolicy, observed, reference float64) bool {
	comparison := Compare(policy, observed, reference)
	return comparison.Match
}

func relativeDiff(observed, reference float64) float64 {
	if reference == 0 {
		if observed == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return math.Abs(observed-reference) / math.Abs(reference)
}

func safeRatio(numerator, denominator float64) float64 {
	if denominator == 0 {
		return 0
	}
	ratio := numerator / denominator
	if ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1
	}
	return ratio
}
