package consensus_test

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohmanhakim/spec-harvester/internal/config"
	"github.com/rohmanhakim/spec-harvester/internal/consensus"
	"github.com/rohmanhakim/spec-harvester/internal/extractor"
	"github.com/rohmanhakim/spec-harvester/internal/identity"
	"github.com/rohmanhakim/spec-harvester/internal/schema"
)

const rulesDocument = `{
	"category": "mice",
	"fields": [
		{"key": "weight", "type": "number", "canonicalUnit": "g", "required": true},
		{"key": "dpi", "type": "integer", "critical": true},
		{"key": "sensor", "type": "component_ref", "componentType": "sensor"},
		{"key": "connection", "type": "enum", "enumValues": ["wired", "wireless", "dual"]}
	]
}`

const componentsDocument = `{
	"components": [
		{
			"componentType": "sensor",
			"canonicalName": "PMW3389",
			"maker": "PixArt",
			"aliases": ["pmw 3389", "pixart 3389"],
			"properties": {"dpi": {"number": 18000}},
			"__variancePolicies": {"dpi": "upper_bound"}
		}
	]
}`

type engineFixture struct {
	engine    *consensus.Engine
	decisions map[string]identity.Decision
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	dir := t.TempDir()

	rulesPath := filepath.Join(dir, "rules.json")
	require.NoError(t, os.WriteFile(rulesPath, []byte(rulesDocument), 0o644))
	ruleset, err := schema.LoadRuleset(rulesPath)
	require.NoError(t, err)

	componentsPath := filepath.Join(dir, "components.json")
	require.NoError(t, os.WriteFile(componentsPath, []byte(componentsDocument), 0o644))
	componentDB, err := schema.LoadComponentDB(componentsPath)
	require.NoError(t, err)

	tierMap := &schema.TierMap{
		Category: "mice",
		Approved: []string{"razer.com", "rtings.com"},
	}

	fixture := &engineFixture{decisions: make(map[string]identity.Decision)}
	fixture.engine = consensus.NewEngine(
		config.DefaultConsensusWeights(),
		ruleset,
		componentDB,
		tierMap,
		func(string) float64 { return 0 },
		func(url string) identity.Decision {
			if decision, ok := fixture.decisions[url]; ok {
				return decision
			}
			return identity.DecisionRejected
		},
	)
	return fixture
}

func (f *engineFixture) candidate(field, value, sourceURL string, tier schema.Tier, role schema.Role, method extractor.Method) extractor.Candidate {
	return extractor.Candidate{
		Kind:       extractor.KindScalar,
		Field:      field,
		Value:      value,
		SourceURL:  sourceURL,
		Host:       "www.host.test",
		RootDomain: rootFor(sourceURL),
		Tier:       tier,
		Role:       role,
		Method:     method,
		Evidence: extractor.Evidence{
			URL:         sourceURL,
			Quote:       field + ": " + value,
			QuoteSpan:   []int{0, len(field) + len(value) + 2},
			RetrievedAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		},
	}
}

func rootFor(sourceURL string) string {
	switch {
	case len(sourceURL) >= 18 && sourceURL[8:17] == "razer.com":
		return "razer.com"
	case len(sourceURL) >= 19 && sourceURL[8:18] == "rtings.com":
		return "rtings.com"
	}
	return "shop.example.com"
}

func TestMerge_WeightedWinnerAndUnitClustering(t *testing.T) {
	f := newEngineFixture(t)
	f.decisions["https://razer.com/p"] = identity.DecisionConfirmed
	f.decisions["https://rtings.com/p"] = identity.DecisionConfirmed
	f.decisions["https://shop.example.com/p"] = identity.DecisionWarning

	candidates := []extractor.Candidate{
		f.candidate("weight", "58 g", "https://razer.com/p", schema.TierManufacturer, schema.RoleManufacturer, extractor.MethodDomTable),
		f.candidate("weight", "2.05 oz", "https://rtings.com/p", schema.TierLabReview, schema.RoleLabReview, extractor.MethodDomTable),
		f.candidate("weight", "62 g", "https://shop.example.com/p", schema.TierRetail, schema.RoleRetail, extractor.MethodDomInline),
	}

	outcome := f.engine.Merge("weight", candidates, identity.StatusConfirmed)

	require.NotNil(t, outcome.Winner)
	assert.Equal(t, "58", outcome.Value, "oz spelling converts into the 58 g cluster")
	assert.Len(t, outcome.Winner.Members, 2)
	assert.Len(t, outcome.Clusters, 2)
	assert.Equal(t, consensus.StateAccepted, outcome.State)
	assert.Equal(t, 1.0, outcome.Confidence)
	assert.Equal(t, 2, outcome.ApprovedConfirmations)
	assert.Equal(t, "g", outcome.Unit)
}

func TestMerge_OrderIndependent(t *testing.T) {
	f := newEngineFixture(t)
	f.decisions["https://razer.com/p"] = identity.DecisionConfirmed
	f.decisions["https://rtings.com/p"] = identity.DecisionConfirmed
	f.decisions["https://shop.example.com/p"] = identity.DecisionWarning

	base := []extractor.Candidate{
		f.candidate("weight", "58 g", "https://razer.com/p", schema.TierManufacturer, schema.RoleManufacturer, extractor.MethodDomTable),
		f.candidate("weight", "58.2 g", "https://rtings.com/p", schema.TierLabReview, schema.RoleLabReview, extractor.MethodDomTable),
		f.candidate("weight", "62 g", "https://shop.example.com/p", schema.TierRetail, schema.RoleRetail, extractor.MethodDomInline),
		f.candidate("weight", "63 g", "https://shop.example.com/p", schema.TierRetail, schema.RoleRetail, extractor.MethodJSONLD),
	}

	reference := f.engine.Merge("weight", base, identity.StatusConfirmed)

	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 10; trial++ {
		shuffled := make([]extractor.Candidate, len(base))
		copy(shuffled, base)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		outcome := f.engine.Merge("weight", shuffled, identity.StatusConfirmed)
		assert.Equal(t, reference.Value, outcome.Value)
		assert.InDelta(t, reference.Confidence, outcome.Confidence, 1e-9)
		assert.Equal(t, len(reference.Clusters), len(outcome.Clusters))
	}
}

func TestMerge_IdentityConfidenceCaps(t *testing.T) {
	tests := []struct {
		status identity.OverallStatus
		cap    float64
	}{
		{identity.StatusConfirmed, 1.00},
		{identity.StatusLowConfidence, 0.85},
		{identity.StatusIdentityConflict, 0.50},
		{identity.StatusIdentityFailed, 0.40},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			f := newEngineFixture(t)
			f.decisions["https://razer.com/p"] = identity.DecisionConfirmed
			f.decisions["https://rtings.com/p"] = identity.DecisionConfirmed

			candidates := []extractor.Candidate{
				f.candidate("weight", "58 g", "https://razer.com/p", schema.TierManufacturer, schema.RoleManufacturer, extractor.MethodDomTable),
				f.candidate("weight", "58 g", "https://rtings.com/p", schema.TierLabReview, schema.RoleLabReview, extractor.MethodDomTable),
			}
			outcome := f.engine.Merge("weight", candidates, tt.status)
			assert.LessOrEqual(t, outcome.Confidence, tt.cap)
			if tt.status == identity.StatusConfirmed {
				assert.Equal(t, 1.0, outcome.Confidence)
			}
		})
	}
}

func TestMerge_WarningOnlySupportIsCapped(t *testing.T) {
	f := newEngineFixture(t)
	f.decisions["https://razer.com/p"] = identity.DecisionWarning
	f.decisions["https://rtings.com/p"] = identity.DecisionWarning

	candidates := []extractor.Candidate{
		f.candidate("weight", "58 g", "https://razer.com/p", schema.TierManufacturer, schema.RoleManufacturer, extractor.MethodDomTable),
		f.candidate("weight", "58 g", "https://rtings.com/p", schema.TierLabReview, schema.RoleLabReview, extractor.MethodDomTable),
	}
	outcome := f.engine.Merge("weight", candidates, identity.StatusConfirmed)

	assert.LessOrEqual(t, outcome.Confidence, 0.85)
	assert.NotEqual(t, consensus.StateAccepted, outcome.State, "acceptance requires a CONFIRMED page")
}

func TestMerge_EnumAndComponentCanonicalization(t *testing.T) {
	f := newEngineFixture(t)
	f.decisions["https://razer.com/p"] = identity.DecisionConfirmed
	f.decisions["https://rtings.com/p"] = identity.DecisionConfirmed

	connection := f.engine.Merge("connection", []extractor.Candidate{
		f.candidate("connection", "Wireless", "https://razer.com/p", schema.TierManufacturer, schema.RoleManufacturer, extractor.MethodDomTable),
		f.candidate("connection", "WIRELESS ", "https://rtings.com/p", schema.TierLabReview, schema.RoleLabReview, extractor.MethodJSONLD),
	}, identity.StatusConfirmed)
	require.NotNil(t, connection.Winner)
	assert.Equal(t, "wireless", connection.Value)
	assert.Len(t, connection.Winner.Members, 2)

	sensorCandidateA := f.candidate("sensor", "PixArt 3389", "https://razer.com/p", schema.TierManufacturer, schema.RoleManufacturer, extractor.MethodDomTable)
	sensorCandidateA.Kind = extractor.KindComponent
	sensorCandidateA.ComponentType = "sensor"
	sensorCandidateB := f.candidate("sensor", "pmw 3389", "https://rtings.com/p", schema.TierLabReview, schema.RoleLabReview, extractor.MethodDomTable)
	sensorCandidateB.Kind = extractor.KindComponent
	sensorCandidateB.ComponentType = "sensor"

	sensor := f.engine.Merge("sensor", []extractor.Candidate{sensorCandidateA, sensorCandidateB}, identity.StatusConfirmed)
	require.NotNil(t, sensor.Winner)
	assert.Equal(t, "PMW3389", sensor.Value, "aliases resolve to the canonical component")
	assert.Len(t, sensor.Winner.Members, 2)
}

func TestApplyComponentBounds(t *testing.T) {
	f := newEngineFixture(t)
	f.decisions["https://razer.com/p"] = identity.DecisionConfirmed
	f.decisions["https://rtings.com/p"] = identity.DecisionConfirmed

	sensorCandidate := f.candidate("sensor", "PMW3389", "https://razer.com/p", schema.TierManufacturer, schema.RoleManufacturer, extractor.MethodDomTable)
	sensorCandidate.Kind = extractor.KindComponent
	sensorCandidate.ComponentType = "sensor"

	makeOutcomes := func(dpiClaim string) map[string]*consensus.FieldOutcome {
		return f.engine.MergeAll([]extractor.Candidate{
			sensorCandidate,
			f.candidate("dpi", dpiClaim, "https://razer.com/p", schema.TierManufacturer, schema.RoleManufacturer, extractor.MethodDomTable),
			f.candidate("dpi", dpiClaim, "https://rtings.com/p", schema.TierLabReview, schema.RoleLabReview, extractor.MethodDomTable),
		}, identity.StatusConfirmed)
	}

	// A claim under the sensor's rated maximum is clean.
	within := makeOutcomes("16000")
	require.Contains(t, within, "dpi")
	assert.False(t, within["dpi"].NeedsAIReview)

	// A claim above it is flagged for review, not silently dropped.
	over := makeOutcomes("20000")
	require.Contains(t, over, "dpi")
	assert.True(t, over["dpi"].NeedsAIReview)
	assert.NotEmpty(t, over["dpi"].ReasonCodes)
}

func TestMerge_NoCandidates(t *testing.T) {
	f := newEngineFixture(t)
	outcome := f.engine.Merge("weight", nil, identity.StatusConfirmed)
	assert.Equal(t, consensus.StateUnresolved, outcome.State)
	assert.Contains(t, outcome.ReasonCodes, consensus.ReasonNotFound)
	assert.Nil(t, outcome.Winner)
}
