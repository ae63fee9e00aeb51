package intel

/*
Domain intel

Accumulates per (category, domain) evidence about how useful and how
trustworthy a domain has been, with a brand-partitioned variant of the
same counters. Raw counters persist; rates and scores derive on read.
*/

// DomainStats is the raw counter block for one domain (or one
// domain+brand partition).
type DomainStats struct {
	Attempts               int            `json:"attempts"`
	HTTPOk                 int            `json:"http_ok"`
	IdentityMatch          int            `json:"identity_match"`
	MajorAnchorConflict    int            `json:"major_anchor_conflict"`
	FieldsContributed      int            `json:"fields_contributed"`
	FieldsAccepted         int            `json:"fields_accepted"`
	CriticalFieldsAccepted int            `json:"critical_fields_accepted"`
	FieldHelp              map[string]int `json:"field_help,omitempty"`
	ProductsSeen           int            `json:"products_seen"`
	RecentProducts         []string       `json:"recent_products,omitempty"`
}

// Rates are the derived metrics of a stats block.
type Rates struct {
	HTTPOkRate          float64 `json:"http_ok_rate"`
	IdentityMatchRate   float64 `json:"identity_match_rate"`
	AnchorConflictRate  float64 `json:"major_anchor_conflict_rate"`
	AcceptanceYield     float64 `json:"acceptance_yield"`
	FieldRewardStrength float64 `json:"field_reward_strength"`
	PlannerScore        float64 `json:"planner_score"`
}

// Derive computes the read-side metrics.
//
//	planner_score = 0.5*identity_match_rate + 0.2*(1 - conflict_rate)
//	              + 0.1*http_ok_rate + 0.2*min(1, 10*acceptance_yield)
func (s DomainStats) Derive() Rates {
	rates := Rates{}
	if s.Attempts > 0 {
		rates.HTTPOkRate = float64(s.HTTPOk) / float64(s.Attempts)
		rates.IdentityMatchRate = float64(s.IdentityMatch) / float64(s.Attempts)
		rates.AnchorConflictRate = float64(s.MajorAnchorConflict) / float64(s.Attempts)
	}
	if s.FieldsContributed > 0 {
		rates.AcceptanceYield = float64(s.FieldsAccepted) / float64(s.FieldsContributed)
		rates.FieldRewardStrength = float64(s.FieldsAccepted-2*s.MajorAnchorConflict) / float64(s.FieldsContributed)
		if rates.FieldRewardStrength < -1 {
			rates.FieldRewardStrength = -1
		}
		if rates.FieldRewardStrength > 1 {
			rates.FieldRewardStrength = 1
		}
	}
	yieldTerm := 10 * rates.AcceptanceYield
	if yieldTerm > 1 {
		yieldTerm = 1
	}
	rates.PlannerScore = 0.5*rates.IdentityMatchRate +
		0.2*(1-rates.AnchorConflictRate) +
		0.1*rates.HTTPOkRate +
		0.2*yieldTerm
	return rates
}

// Suggestion is one promotion or demotion proposal.
type Suggestion struct {
	Domain  string   `json:"domain"`
	Reasons []string `json:"reasons,omitempty"`
	Rates   Rates    `json:"rates"`
}

// FieldYield is one cell of the domain x field matrix.
type FieldYield struct {
	Contributed int `json:"contributed"`
	Accepted    int `json:"accepted"`
}

// CoverageGap classifications for the gap report.
type CoverageGap struct {
	Field  string `json:"field"`
	Status string `json:"status"` // gap | weak
	Reason string `json:"reason"`
}

// Delta is the daily-keyed intel artifact.
type Delta struct {
	Date                 string                 `json:"date"`
	Category             string                 `json:"category"`
	DomainStats          map[string]DomainStats `json:"domain_stats"`
	PromotionSuggestions []Suggestion           `json:"promotion_suggestions,omitempty"`
	DemotionSuggestions  []Suggestion           `json:"demotion_suggestions,omitempty"`
	BrandExpansionPlans  []BrandExpansion       `json:"brand_expansion_plans,omitempty"`
}

// BrandExpansion proposes trying a strong (domain, brand) pairing on
// the brand's remaining catalog.
type BrandExpansion struct {
	Domain string `json:"domain"`
	Brand  string `json:"brand"`
	Rates  Rates  `json:"rates"`
}
