package identity_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rohmanhakim/spec-harvester/internal/identity"
	"github.com/rohmanhakim/spec-harvester/internal/schema"
)

func confirmedPage(root string, role schema.Role, tier schema.Tier) identity.PageAssessment {
	return identity.PageAssessment{
		Verdict: identity.PageVerdict{
			URL:      "https://" + root + "/p",
			Decision: identity.DecisionConfirmed,
			Score:    0.9,
		},
		Role:       role,
		Tier:       tier,
		RootDomain: root,
	}
}

func TestReconcile_ConfirmedWithCorroboration(t *testing.T) {
	report := identity.Reconcile([]identity.PageAssessment{
		confirmedPage("razer.com", schema.RoleManufacturer, schema.TierManufacturer),
		confirmedPage("rtings.com", schema.RoleLabReview, schema.TierLabReview),
		confirmedPage("techpowerup.com", schema.RoleLabReview, schema.TierLabReview),
	})
	assert.Equal(t, identity.StatusConfirmed, report.Status)
	assert.Empty(t, report.Contradictions)
}

func TestReconcile_TrustedHelperPath(t *testing.T) {
	helper := confirmedPage("helperdb.example.com", schema.RoleHelper, schema.TierRetail)
	helper.TrustedHelper = true

	report := identity.Reconcile([]identity.PageAssessment{
		confirmedPage("razer.com", schema.RoleManufacturer, schema.TierManufacturer),
		confirmedPage("rtings.com", schema.RoleLabReview, schema.TierLabReview),
		helper,
	})
	assert.Equal(t, identity.StatusConfirmed, report.Status)
}

func TestReconcile_ManufacturerAloneIsLowConfidence(t *testing.T) {
	report := identity.Reconcile([]identity.PageAssessment{
		confirmedPage("razer.com", schema.RoleManufacturer, schema.TierManufacturer),
	})
	assert.Equal(t, identity.StatusLowConfidence, report.Status)
}

func TestReconcile_NothingAdmissibleFails(t *testing.T) {
	rejected := confirmedPage("spam.example.com", schema.RoleOther, schema.TierUnverified)
	rejected.Verdict.Decision = identity.DecisionRejected

	report := identity.Reconcile([]identity.PageAssessment{rejected})
	assert.Equal(t, identity.StatusIdentityFailed, report.Status)
}

func TestReconcile_DualCoversConnectionClasses(t *testing.T) {
	wired := confirmedPage("razer.com", schema.RoleManufacturer, schema.TierManufacturer)
	wired.ConnectionClass = "wired"
	wireless := confirmedPage("rtings.com", schema.RoleLabReview, schema.TierLabReview)
	wireless.ConnectionClass = "wireless"
	dual := confirmedPage("techpowerup.com", schema.RoleLabReview, schema.TierLabReview)
	dual.ConnectionClass = "dual"

	report := identity.Reconcile([]identity.PageAssessment{wired, wireless, dual})
	assert.NotContains(t, report.Contradictions, identity.ContradictionConnection)
	assert.Equal(t, identity.StatusConfirmed, report.Status)

	// Without the dual page the same pair contradicts.
	report = identity.Reconcile([]identity.PageAssessment{wired, wireless})
	assert.Contains(t, report.Contradictions, identity.ContradictionConnection)
	assert.Equal(t, identity.StatusIdentityConflict, report.Status)
}

func TestReconcile_SensorFamilyConflict(t *testing.T) {
	a := confirmedPage("razer.com", schema.RoleManufacturer, schema.TierManufacturer)
	a.SensorFamily = "Focus Pro 35K"
	b := confirmedPage("rtings.com", schema.RoleLabReview, schema.TierLabReview)
	b.SensorFamily = "PMW3395"

	report := identity.Reconcile([]identity.PageAssessment{a, b})
	assert.Contains(t, report.Contradictions, identity.ContradictionSensor)
	assert.Equal(t, identity.StatusIdentityConflict, report.Status)
}

func TestReconcile_DimensionSpread(t *testing.T) {
	a := confirmedPage("razer.com", schema.RoleManufacturer, schema.TierManufacturer)
	a.DimensionsMm = []float64{127.1, 63.9, 39.9}
	b := confirmedPage("rtings.com", schema.RoleLabReview, schema.TierLabReview)
	b.DimensionsMm = []float64{128.0, 64.0, 40.0}
	c := confirmedPage("techpowerup.com", schema.RoleLabReview, schema.TierLabReview)

	report := identity.Reconcile([]identity.PageAssessment{a, b, c})
	assert.NotContains(t, report.Contradictions, identity.ContradictionDimensions)

	// A 5mm spread on one axis is another product.
	b.DimensionsMm = []float64{132.2, 64.0, 40.0}
	report = identity.Reconcile([]identity.PageAssessment{a, b, c})
	assert.Contains(t, report.Contradictions, identity.ContradictionDimensions)
}

func TestReconcile_SKUTokenConflict(t *testing.T) {
	a := confirmedPage("razer.com", schema.RoleManufacturer, schema.TierManufacturer)
	a.SKUTokens = []string{"rz01", "0512"}
	b := confirmedPage("retail.example.com", schema.RoleRetail, schema.TierRetail)
	b.SKUTokens = []string{"lg", "910"}

	report := identity.Reconcile([]identity.PageAssessment{a, b})
	assert.Contains(t, report.Contradictions, identity.ContradictionSKU)
}
