package identity_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rohmanhakim/spec-harvester/internal/identity"
	"github.com/rohmanhakim/spec-harvester/internal/schema"
)

func TestGate_ExactIdentityLock(t *testing.T) {
	// Manufacturer page carrying all tokens and a matching SKU.
	gate := identity.NewGate(schema.DeriveLock(schema.CatalogEntry{
		ProductID: "razer-viper-v3",
		Brand:     "Razer",
		Model:     "Viper V3",
		SKU:       "RZ01-0512",
		Ambiguity: schema.AmbiguityMedium,
	}))

	verdict := gate.Assess(identity.PageObservation{
		URL:           "https://razer.com/gaming-mice/razer-viper-v3",
		Title:         "Razer Viper V3 - Esports Wireless Gaming Mouse",
		CandidateText: "weight 58 g dpi 35000",
		SKU:           "RZ01-0512",
	})

	assert.GreaterOrEqual(t, verdict.Score, 0.85)
	assert.Equal(t, identity.DecisionConfirmed, verdict.Decision)
	assert.Equal(t, 1.0, verdict.Confidence, "hard-id match locks confidence")
	assert.Contains(t, verdict.Reasons, identity.ReasonBrandMatch)
	assert.Contains(t, verdict.Reasons, identity.ReasonModelMatch)
	assert.Contains(t, verdict.Reasons, identity.ReasonHardIDMatch)
	assert.True(t, verdict.Decision.Admissible())
}

func TestGate_ModelNumberConfusion(t *testing.T) {
	// Lock wants "G Pro X 2"; page is the original G Pro X, so the
	// numeric token "2" is missing.
	gate := identity.NewGate(schema.DeriveLock(schema.CatalogEntry{
		ProductID: "logitech-g-pro-x-2",
		Brand:     "Logitech",
		Model:     "G Pro X 2",
		Ambiguity: schema.AmbiguityHard,
	}))

	verdict := gate.Assess(identity.PageObservation{
		URL:           "https://logitechg.com/products/gaming-mice/pro-x-superlight",
		Title:         "Logitech G Pro X Superlight Wireless Gaming Mouse",
		CandidateText: "weight 63 g",
	})

	assert.NotEqual(t, identity.DecisionConfirmed, verdict.Decision)
	assert.Contains(t, verdict.CriticalConflicts, "model_mismatch")
}

func TestGate_NegativeTokenRejects(t *testing.T) {
	gate := identity.NewGate(schema.IdentityLock{
		ProductID:      "p",
		Brand:          "Razer",
		Model:          "Viper V3",
		RequiredTokens: []string{"razer", "viper", "v3"},
		NegativeTokens: []string{"hyperspeed"},
		Ambiguity:      schema.AmbiguityMedium,
	})

	verdict := gate.Assess(identity.PageObservation{
		URL:   "https://razer.com/viper-v3-hyperspeed",
		Title: "Razer Viper V3 HyperSpeed",
	})

	assert.Equal(t, identity.DecisionRejected, verdict.Decision)
	assert.Contains(t, verdict.Reasons, identity.ReasonNegativeToken)
	assert.False(t, verdict.Decision.Admissible())
}

func TestGate_HardIDMismatchRejects(t *testing.T) {
	gate := identity.NewGate(schema.DeriveLock(schema.CatalogEntry{
		ProductID: "p",
		Brand:     "Razer",
		Model:     "Viper V3",
		SKU:       "RZ01-0512",
	}))

	verdict := gate.Assess(identity.PageObservation{
		URL:   "https://retailer.example.com/razer-viper-v3",
		Title: "Razer Viper V3",
		SKU:   "RZ01-9999",
	})

	assert.Equal(t, identity.DecisionRejected, verdict.Decision)
	assert.Contains(t, verdict.CriticalConflicts, "hard_id_mismatch")
}

func TestGate_ThresholdClamps(t *testing.T) {
	tests := []struct {
		name     string
		lock     schema.IdentityLock
		min, max float64
	}{
		{
			name: "easy without variant relaxes",
			lock: schema.IdentityLock{Brand: "B", Model: "M", Ambiguity: schema.AmbiguityEasy},
			min:  0.62, max: 0.70,
		},
		{
			name: "easy with variant keeps the bar",
			lock: schema.IdentityLock{Brand: "B", Model: "M", Variant: "wireless", Ambiguity: schema.AmbiguityEasy},
			min:  0.70, max: 0.80,
		},
		{
			name: "extra hard raises",
			lock: schema.IdentityLock{Brand: "B", Model: "M", SKU: "S1", Ambiguity: schema.AmbiguityExtraHard},
			min:  0.85, max: 0.92,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := identity.NewGate(tt.lock)
			threshold := gate.Threshold()
			assert.GreaterOrEqual(t, threshold, tt.min)
			assert.LessOrEqual(t, threshold, tt.max)
			assert.GreaterOrEqual(t, threshold, 0.62)
			assert.LessOrEqual(t, threshold, 0.92)
		})
	}
}

func TestConnectionClassOf(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"Wireless gaming mouse with 2.4GHz dongle", "wireless"},
		{"Wired USB mouse", "wired"},
		{"Dual mode: bluetooth and cable", "dual"},
		{"works wired or wireless", "dual"},
		{"a mouse", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, identity.ConnectionClassOf(tt.text), "text %q", tt.text)
	}
}
