package storage

import (
	"time"

	"github.com/rohmanhakim/spec-harvester/internal/schema"
)

/*
Output artifacts

The pipeline's contract with everything downstream (review frontend,
publishers) is a set of strictly-typed JSON artifacts. Shapes here are
write-only: the pipeline never reads its own outputs back.
*/

// SpecArtifact is the normalized per-product spec.
type SpecArtifact struct {
	ProductID  string             `json:"productId"`
	Fields     map[string]string  `json:"fields"`
	Units      map[string]string  `json:"units"`
	Confidence map[string]float64 `json:"confidence"`
}

// EvidenceRef is one provenance pointer on an accepted value.
type EvidenceRef struct {
	URL         string      `json:"url"`
	Host        string      `json:"host,omitempty"`
	RootDomain  string      `json:"rootDomain,omitempty"`
	Tier        schema.Tier `json:"tier,omitempty"`
	Method      string      `json:"method,omitempty"`
	Quote       string      `json:"quote,omitempty"`
	QuoteSpan   []int       `json:"quote_span,omitempty"`
	RetrievedAt time.Time   `json:"retrieved_at"`
}

// FieldProvenance is the per-field provenance artifact entry.
type FieldProvenance struct {
	Value                 string        `json:"value,omitempty"`
	Confirmations         int           `json:"confirmations"`
	ApprovedConfirmations int           `json:"approved_confirmations"`
	PassTarget            float64       `json:"pass_target"`
	MeetsPassTarget       bool          `json:"meets_pass_target"`
	Confidence            float64       `json:"confidence"`
	Evidence              []EvidenceRef `json:"evidence,omitempty"`
}

// TrafficColor is the per-field review signal.
type TrafficColor string

const (
	ColorGreen  TrafficColor = "green"
	ColorYellow TrafficColor = "yellow"
	ColorRed    TrafficColor = "red"
	ColorGray   TrafficColor = "gray"
)

// TrafficLight is the per-field review cell.
type TrafficLight struct {
	Color       TrafficColor `json:"color"`
	Status      string       `json:"status"`
	ReasonCodes []string     `json:"reason_codes,omitempty"`
}

// RunSummary is the terminal product-level verdict.
type RunSummary struct {
	Validated                     bool     `json:"validated"`
	ValidatedReason               string   `json:"validated_reason"`
	Confidence                    float64  `json:"confidence"`
	CompletenessRequiredPercent   float64  `json:"completeness_required_percent"`
	CoverageOverallPercent        float64  `json:"coverage_overall_percent"`
	CriticalFieldsBelowPassTarget []string `json:"critical_fields_below_pass_target,omitempty"`
	MissingRequiredFields         []string `json:"missing_required_fields,omitempty"`
	MissingExpectedFields         []string `json:"missing_expected_fields,omitempty"`
}

// run summary reason codes
const (
	ReasonValidated             = "VALIDATED"
	ReasonBelowRequiredComplete = "BELOW_REQUIRED_COMPLETENESS"
	ReasonIdentityNotConfirmed  = "IDENTITY_NOT_CONFIRMED"
	ReasonCriticalBelowTarget   = "CRITICAL_FIELDS_BELOW_PASS_TARGET"
)
