package intel_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohmanhakim/spec-harvester/internal/intel"
	"github.com/rohmanhakim/spec-harvester/internal/schema"
)

func newTracker(t *testing.T) *intel.Tracker {
	t.Helper()
	tracker, err := intel.NewTracker("mice", filepath.Join(t.TempDir(), "intel.json"))
	require.Nil(t, err)
	return tracker
}

// feedPromotableDomain satisfies every promotion threshold exactly.
func feedPromotableDomain(tracker *intel.Tracker, domain string) {
	for i := 0; i < 20; i++ {
		tracker.RecordPage(intel.PageOutcome{
			Domain:        domain,
			Brand:         "razer",
			ProductID:     fmt.Sprintf("p%d", i),
			HTTPOk:        true,
			IdentityMatch: true,
		})
	}
	for i := 0; i < 9; i++ {
		tracker.RecordFieldContribution(domain, "razer", fmt.Sprintf("field%d", i), true, false)
	}
	tracker.RecordFieldContribution(domain, "razer", "dpi", true, true)
}

func TestPromotions_ThresholdEnforcement(t *testing.T) {
	tracker := newTracker(t)
	feedPromotableDomain(tracker, "good.example.com")

	promotions := tracker.Promotions()
	require.Len(t, promotions, 1)
	assert.Equal(t, "good.example.com", promotions[0].Domain)

	// Each threshold is individually necessary.
	t.Run("too few products", func(t *testing.T) {
		tracker := newTracker(t)
		feedPromotableDomain(tracker, "d")
		// Rebuild with fewer products: 19 < 20.
		short := newTracker(t)
		for i := 0; i < 19; i++ {
			short.RecordPage(intel.PageOutcome{
				Domain: "d", Brand: "b", ProductID: fmt.Sprintf("p%d", i),
				HTTPOk: true, IdentityMatch: true,
			})
		}
		for i := 0; i < 10; i++ {
			short.RecordFieldContribution("d", "b", fmt.Sprintf("f%d", i), true, true)
		}
		assert.Empty(t, short.Promotions())
	})

	t.Run("one anchor conflict disqualifies", func(t *testing.T) {
		tracker := newTracker(t)
		feedPromotableDomain(tracker, "d")
		tracker.RecordPage(intel.PageOutcome{
			Domain: "d", Brand: "b", ProductID: "p-conflict",
			HTTPOk: true, IdentityMatch: true, AnchorConflict: true,
		})
		assert.Empty(t, tracker.Promotions())
	})

	t.Run("identity match rate below 0.98 disqualifies", func(t *testing.T) {
		tracker := newTracker(t)
		feedPromotableDomain(tracker, "d")
		tracker.RecordPage(intel.PageOutcome{Domain: "d", Brand: "b", ProductID: "p-miss", HTTPOk: true})
		tracker.RecordPage(intel.PageOutcome{Domain: "d", Brand: "b", ProductID: "p-miss2", HTTPOk: true})
		assert.Empty(t, tracker.Promotions())
	})

	t.Run("no critical field disqualifies", func(t *testing.T) {
		tracker := newTracker(t)
		for i := 0; i < 20; i++ {
			tracker.RecordPage(intel.PageOutcome{
				Domain: "d", Brand: "b", ProductID: fmt.Sprintf("p%d", i),
				HTTPOk: true, IdentityMatch: true,
			})
		}
		for i := 0; i < 12; i++ {
			tracker.RecordFieldContribution("d", "b", fmt.Sprintf("f%d", i), true, false)
		}
		assert.Empty(t, tracker.Promotions())
	})
}

func TestDemotions(t *testing.T) {
	tracker := newTracker(t)

	// Eight attempts, two identity matches: rate 0.25 < 0.50.
	for i := 0; i < 8; i++ {
		tracker.RecordPage(intel.PageOutcome{
			Domain:        "sketchy.example.com",
			Brand:         "b",
			ProductID:     fmt.Sprintf("p%d", i),
			HTTPOk:        true,
			IdentityMatch: i < 2,
		})
	}
	demotions := tracker.Demotions()
	require.Len(t, demotions, 1)
	assert.Contains(t, demotions[0].Reasons, "identity_match_rate_below_0.50")

	// Below the attempt floor nothing is suggested.
	fresh := newTracker(t)
	for i := 0; i < 7; i++ {
		fresh.RecordPage(intel.PageOutcome{Domain: "d", Brand: "b", ProductID: fmt.Sprintf("p%d", i)})
	}
	assert.Empty(t, fresh.Demotions())
}

func TestDerivedRatesAndPlannerScore(t *testing.T) {
	stats := intel.DomainStats{
		Attempts:            10,
		HTTPOk:              9,
		IdentityMatch:       8,
		MajorAnchorConflict: 1,
		FieldsContributed:   20,
		FieldsAccepted:      10,
	}
	rates := stats.Derive()
	assert.InDelta(t, 0.9, rates.HTTPOkRate, 1e-9)
	assert.InDelta(t, 0.8, rates.IdentityMatchRate, 1e-9)
	assert.InDelta(t, 0.1, rates.AnchorConflictRate, 1e-9)
	assert.InDelta(t, 0.5, rates.AcceptanceYield, 1e-9)
	// 0.5*0.8 + 0.2*0.9 + 0.1*0.9 + 0.2*min(1, 5.0)
	assert.InDelta(t, 0.4+0.18+0.09+0.2, rates.PlannerScore, 1e-9)
}

func TestCoverageReport(t *testing.T) {
	tracker := newTracker(t)

	dir := t.TempDir()
	rulesPath := filepath.Join(dir, "rules.json")
	require.NoError(t, os.WriteFile(rulesPath, []byte(`{
		"category": "mice",
		"fields": [
			{"key": "covered"},
			{"key": "weak_single"},
			{"key": "weak_yield"},
			{"key": "gap"}
		]
	}`), 0o644))
	ruleset, err := schema.LoadRuleset(rulesPath)
	require.NoError(t, err)

	for _, domain := range []string{"a.com", "b.com"} {
		tracker.RecordFieldContribution(domain, "brand", "covered", true, false)
	}
	tracker.RecordFieldContribution("a.com", "brand", "weak_single", true, false)
	for _, domain := range []string{"a.com", "b.com"} {
		for i := 0; i < 4; i++ {
			tracker.RecordFieldContribution(domain, "brand", "weak_yield", false, false)
		}
		tracker.RecordFieldContribution(domain, "brand", "weak_yield", true, false)
	}

	report := tracker.CoverageReport(ruleset)
	statuses := make(map[string]string)
	for _, gap := range report {
		statuses[gap.Field] = gap.Status
	}
	assert.NotContains(t, statuses, "covered")
	assert.Equal(t, "weak", statuses["weak_single"])
	assert.Equal(t, "weak", statuses["weak_yield"])
	assert.Equal(t, "gap", statuses["gap"])
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "intel.json")
	tracker, err := intel.NewTracker("mice", path)
	require.Nil(t, err)
	feedPromotableDomain(tracker, "good.example.com")
	require.Nil(t, tracker.Save())

	reopened, err := intel.NewTracker("mice", path)
	require.Nil(t, err)
	assert.Len(t, reopened.Promotions(), 1)
	assert.Greater(t, reopened.PlannerScore("good.example.com"), 0.5)
}

func TestDailyDelta(t *testing.T) {
	tracker := newTracker(t)
	feedPromotableDomain(tracker, "good.example.com")

	delta := tracker.DailyDelta("2025-06-01")
	assert.Equal(t, "2025-06-01", delta.Date)
	assert.Equal(t, "mice", delta.Category)
	assert.Len(t, delta.PromotionSuggestions, 1)
	assert.NotEmpty(t, delta.BrandExpansionPlans)
	assert.Contains(t, delta.DomainStats, "good.example.com")
}
