package identity

import (
	"github.com/rohmanhakim/spec-harvester/internal/schema"
)

/*
Identity gate

Per-page scoring is deterministic: the same lock and observation always
produce the same verdict. Pages that fail the gate contribute no
candidates; the controller records them for domain learning instead.
*/

// Decision is the per-page identity verdict.
type Decision string

const (
	DecisionConfirmed  Decision = "CONFIRMED"
	DecisionWarning    Decision = "WARNING"
	DecisionQuarantine Decision = "QUARANTINE"
	DecisionRejected   Decision = "REJECTED"
)

// Admissible reports whether a page's candidates may enter consensus.
func (d Decision) Admissible() bool {
	return d == DecisionConfirmed || d == DecisionWarning
}

// OverallStatus is the cross-page reconciliation outcome.
type OverallStatus string

const (
	StatusConfirmed        OverallStatus = "CONFIRMED"
	StatusLowConfidence    OverallStatus = "LOW_CONFIDENCE"
	StatusIdentityConflict OverallStatus = "IDENTITY_CONFLICT"
	StatusIdentityFailed   OverallStatus = "IDENTITY_FAILED"
)

// scoring reasons
const (
	ReasonBrandMatch     = "brand_match"
	ReasonModelMatch     = "model_match"
	ReasonVariantMatch   = "variant_match"
	ReasonHardIDMatch    = "hard_id_match"
	ReasonNegativeToken  = "negative_token_present"
	ReasonHardIDMismatch = "hard_id_mismatch"
)

// PageObservation is what the gate sees of one fetched page.
type PageObservation struct {
	URL   string
	Title string
	// Text is a bounded slice of the page's visible text.
	Text string
	// CandidateText joins the values extracted from the page, so spec
	// rows participate in token matching.
	CandidateText string
	// Hard identifiers found on the page, when any.
	SKU  string
	MPN  string
	GTIN string
}

// PageVerdict is the gate's per-page output.
type PageVerdict struct {
	URL               string   `json:"url"`
	Decision          Decision `json:"decision"`
	Score             float64  `json:"score"`
	Threshold         float64  `json:"threshold"`
	Confidence        float64  `json:"confidence"`
	Reasons           []string `json:"reasons,omitempty"`
	CriticalConflicts []string `json:"critical_conflicts,omitempty"`
}

// PageAssessment feeds cross-page reconciliation: the verdict plus the
// source profile and the page's identity-bearing signals.
type PageAssessment struct {
	Verdict       PageVerdict
	Role          schema.Role
	Tier          schema.Tier
	TrustedHelper bool
	RootDomain    string

	ConnectionClass string
	SensorFamily    string
	SKUTokens       []string
	// DimensionsMm holds length/width/height observations in millimeters.
	DimensionsMm []float64
}

// Report is the reconciliation output.
type Report struct {
	Status          OverallStatus `json:"status"`
	Contradictions  []string      `json:"contradictions,omitempty"`
	ConfirmedPages  int           `json:"confirmed_pages"`
	CredibleDomains int           `json:"credible_domains"`
}

// aggregate contradiction codes
const (
	ContradictionConnection = "connection_class_conflict"
	ContradictionSensor     = "sensor_family_conflict"
	ContradictionSKU        = "sku_token_conflict"
	ContradictionDimensions = "dimension_conflict"
)
