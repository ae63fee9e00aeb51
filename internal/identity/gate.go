package identity

import (
	"strings"

	"github.com/rohmanhakim/spec-harvester/internal/schema"
)

// Gate scores pages against an immutable identity lock.
type Gate struct {
	lock schema.IdentityLock
}

func NewGate(lock schema.IdentityLock) Gate {
	return Gate{lock: lock}
}

// ambiguityAdjust shifts the match threshold by how confusable the
// product is. The easy end only relaxes when no variant disambiguates.
var ambiguityAdjust = map[schema.AmbiguityLevel]float64{
	schema.AmbiguityEasy:      -0.15,
	schema.AmbiguityMedium:    -0.05,
	schema.AmbiguityHard:      0,
	schema.AmbiguityVeryHard:  0.04,
	schema.AmbiguityExtraHard: 0.08,
}

// Threshold computes the ambiguity-adjusted match threshold,
// clamped to [0.62, 0.92].
func (g Gate) Threshold() float64 {
	threshold := 0.80
	adjust := ambiguityAdjust[g.lock.Ambiguity]
	if adjust < 0 && g.lock.Variant != "" {
		// A variant string disambiguates on its own; keep the bar up.
		adjust = 0
	}
	threshold += adjust
	if !g.lock.HasHardID() {
		threshold -= 0.05
	}
	if threshold < 0.62 {
		threshold = 0.62
	}
	if threshold > 0.92 {
		threshold = 0.92
	}
	return threshold
}

// Assess scores one page observation. Deterministic.
func (g Gate) Assess(observation PageObservation) PageVerdict {
	verdict := PageVerdict{
		URL:       observation.URL,
		Threshold: g.Threshold(),
	}

	haystack := strings.ToLower(observation.Title + " " + observation.URL + " " + observation.CandidateText + " " + observation.Text)
	haveTokens := schema.TokenSet(haystack)

	// Negative tokens disqualify outright.
	for _, token := range g.lock.NegativeTokens {
		if _, present := haveTokens[strings.ToLower(token)]; present {
			verdict.Reasons = append(verdict.Reasons, ReasonNegativeToken)
			verdict.Decision = DecisionRejected
			return verdict
		}
	}

	// Brand.
	brandTokens := schema.Tokenize(g.lock.Brand)
	if schema.TokenOverlap(brandTokens, haveTokens) >= 1 {
		verdict.Score += 0.35
		verdict.Reasons = append(verdict.Reasons, ReasonBrandMatch)
	} else if len(brandTokens) > 0 {
		verdict.CriticalConflicts = append(verdict.CriticalConflicts, "brand_mismatch")
	}

	// Model: token coverage >= 0.72 or >= 0.55, and in both cases every
	// numeric token present ("2" is what separates G Pro X 2 from G Pro X).
	modelTokens := schema.Tokenize(g.lock.Model)
	overlap := schema.TokenOverlap(modelTokens, haveTokens)
	numericOk := schema.TokenOverlap(schema.NumericTokens(modelTokens), haveTokens) >= 1
	switch {
	case overlap >= 0.72 && numericOk:
		verdict.Score += 0.35
		verdict.Reasons = append(verdict.Reasons, ReasonModelMatch)
	case overlap >= 0.55 && numericOk:
		verdict.Score += 0.35
		verdict.Reasons = append(verdict.Reasons, ReasonModelMatch)
	case overlap < 0.40 || !numericOk:
		verdict.CriticalConflicts = append(verdict.CriticalConflicts, "model_mismatch")
	}

	// Variant connection class.
	if g.lock.Variant != "" {
		lockClass := ConnectionClassOf(g.lock.Variant)
		pageClass := ConnectionClassOf(haystack)
		switch {
		case lockClass == "" || pageClass == "":
			// No signal either way.
		case lockClass == pageClass || pageClass == "dual" || lockClass == "dual":
			verdict.Score += 0.15
			verdict.Reasons = append(verdict.Reasons, ReasonVariantMatch)
		default:
			verdict.CriticalConflicts = append(verdict.CriticalConflicts, "variant_mismatch")
		}
	}

	// Hard identifiers: exact match locks confidence; mismatch rejects.
	hardIDMatched, hardIDMismatched := g.matchHardIDs(observation)
	if hardIDMismatched {
		verdict.Reasons = append(verdict.Reasons, ReasonHardIDMismatch)
		verdict.CriticalConflicts = append(verdict.CriticalConflicts, "hard_id_mismatch")
		verdict.Decision = DecisionRejected
		return verdict
	}
	if hardIDMatched {
		verdict.Score += 0.15
		verdict.Confidence = 1.0
		verdict.Reasons = append(verdict.Reasons, ReasonHardIDMatch)
	}

	verdict.Decision = g.decide(verdict)
	if verdict.Confidence == 0 {
		verdict.Confidence = verdict.Score
	}
	return verdict
}

func (g Gate) decide(verdict PageVerdict) Decision {
	if verdict.Score >= verdict.Threshold && len(verdict.CriticalConflicts) == 0 {
		return DecisionConfirmed
	}
	switch {
	case verdict.Score >= 0.85 && len(verdict.CriticalConflicts) == 0:
		return DecisionConfirmed
	case verdict.Score >= 0.60:
		return DecisionWarning
	case verdict.Score >= 0.40:
		return DecisionQuarantine
	default:
		return DecisionRejected
	}
}

func (g Gate) matchHardIDs(observation PageObservation) (matched, mismatched bool) {
	check := func(lockID, pageID string) {
		if lockID == "" || pageID == "" {
			return
		}
		if normalizeID(lockID) == normalizeID(pageID) {
			matched = true
		} else {
			mismatched = true
		}
	}
	check(g.lock.SKU, observation.SKU)
	check(g.lock.MPN, observation.MPN)
	check(g.lock.GTIN, observation.GTIN)
	return matched, mismatched
}

func normalizeID(id string) string {
	return strings.Join(schema.Tokenize(id), "")
}

// ConnectionClassOf detects the wired/wireless/dual connection class
// from free text.
func ConnectionClassOf(text string) string {
	lower := strings.ToLower(text)
	wireless := strings.Contains(lower, "wireless") ||
		strings.Contains(lower, "bluetooth") ||
		strings.Contains(lower, "2.4ghz") || strings.Contains(lower, "2.4 ghz")
	wired := strings.Contains(lower, "wired") || strings.Contains(lower, "usb-only")
	switch {
	case strings.Contains(lower, "dual"):
		return "dual"
	case wireless && wired:
		return "dual"
	case wireless:
		return "wireless"
	case wired:
		return "wired"
	}
	return ""
}
