package extractor

import (
	"time"

	"github.com/rohmanhakim/spec-harvester/internal/schema"
)

/*
Responsibilities
- Turn fetched pages and captured payloads into candidate
  (field, value, evidence) tuples
- Attribute every candidate to its extraction method and source
- Never decide identity, consensus, or admission

Extractors are pure over their inputs; partial failure of one extractor
never blocks the others.
*/

// Method names the extraction technique; consensus weights key off it.
type Method string

const (
	MethodDomTable      Method = "dom_table"
	MethodDomInline     Method = "dom_inline"
	MethodJSONLD        Method = "json_ld"
	MethodEmbeddedState Method = "embedded_state"
	MethodNetworkJSON   Method = "network_json"
	MethodTemporal      Method = "temporal"
)

// Evidence is the provenance attached to every candidate. URL and
// RetrievedAt are always present; Quote is required for scalar candidates
// with textual provenance.
type Evidence struct {
	URL         string    `json:"url"`
	FinalURL    string    `json:"final_url,omitempty"`
	Quote       string    `json:"quote,omitempty"`
	QuoteSpan   []int     `json:"quote_span,omitempty"`
	RetrievedAt time.Time `json:"retrieved_at"`
}

// Kind discriminates the candidate sum type.
type Kind string

const (
	KindScalar    Kind = "scalar"
	KindComponent Kind = "component"
	KindList      Kind = "list"
)

// Candidate is one extracted field observation. Scalars carry Value;
// component references carry ComponentType + Value (the mention);
// list fields carry Values.
type Candidate struct {
	Kind  Kind   `json:"kind"`
	Field string `json:"field"`

	Value  string   `json:"value,omitempty"`
	Values []string `json:"values,omitempty"`

	ComponentType string `json:"component_type,omitempty"`

	SourceURL  string      `json:"source_url"`
	Host       string      `json:"host"`
	RootDomain string      `json:"root_domain"`
	Role       schema.Role `json:"role,omitempty"`
	Tier       schema.Tier `json:"tier,omitempty"`
	Method     Method      `json:"method"`
	Evidence   Evidence    `json:"evidence"`

	// Score is filled by consensus; extractors leave it zero.
	Score float64 `json:"score,omitempty"`
}

// IsComponentField reports whether this candidate targets a component_ref.
func (c Candidate) IsComponentField() bool {
	return c.Kind == KindComponent
}

// IsListField reports whether this candidate carries multiple values.
func (c Candidate) IsListField() bool {
	return c.Kind == KindList
}

// TemporalHint is a dated signal supporting release-date inference.
type TemporalHint struct {
	Value     string  `json:"value"` // ISO date, possibly truncated to month/year
	Precision int     `json:"precision"`
	Weight    float64 `json:"weight"`
	Source    string  `json:"source"` // title | url | body | network
}

// Temporal precision ranks; day beats month beats year.
const (
	PrecisionYear  = 1
	PrecisionMonth = 2
	PrecisionDay   = 3
)
