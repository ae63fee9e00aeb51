package storage

import (
	"encoding/json"
	"fmt"

	"github.com/rohmanhakim/spec-harvester/internal/consensus"
	"github.com/rohmanhakim/spec-harvester/internal/identity"
	"github.com/rohmanhakim/spec-harvester/internal/schema"
	"github.com/rohmanhakim/spec-harvester/pkg/failure"
)

// ArtifactWriter assembles the typed output artifacts from merged
// outcomes and persists them under products/<productId>/.
type ArtifactWriter struct {
	storage Storage
	ruleset *schema.Ruleset
}

func NewArtifactWriter(storage Storage, ruleset *schema.Ruleset) ArtifactWriter {
	return ArtifactWriter{
		storage: storage,
		ruleset: ruleset,
	}
}

// WriteAll persists the spec, provenance, traffic-light, and summary
// artifacts. Accepted values only enter the spec artifact when the field
// independently met its pass target.
func (w *ArtifactWriter) WriteAll(
	productID string,
	outcomes map[string]*consensus.FieldOutcome,
	report identity.Report,
	summary RunSummary,
) failure.ClassifiedError {
	spec := SpecArtifact{
		ProductID:  productID,
		Fields:     make(map[string]string),
		Units:      make(map[string]string),
		Confidence: make(map[string]float64),
	}
	provenance := make(map[string]FieldProvenance, len(outcomes))
	lights := make(map[string]TrafficLight, len(outcomes))

	for field, outcome := range outcomes {
		if outcome.State == consensus.StateAccepted && outcome.MeetsTarget {
			spec.Fields[field] = outcome.Value
			if outcome.Unit != "" {
				spec.Units[field] = outcome.Unit
			}
			spec.Confidence[field] = outcome.Confidence
		}
		provenance[field] = w.provenanceFor(outcome)
		lights[field] = trafficLightFor(outcome)
	}

	// Fields the rules expect but no candidate ever reached stay gray.
	for _, field := range w.ruleset.Keys() {
		if _, seen := lights[field]; !seen {
			lights[field] = TrafficLight{
				Color:       ColorGray,
				Status:      string(consensus.StateUnresolved),
				ReasonCodes: []string{consensus.ReasonNotFound},
			}
		}
	}

	base := "products/" + productID + "/"
	writes := []struct {
		key   string
		value any
	}{
		{base + "spec.json", spec},
		{base + "provenance.json", provenance},
		{base + "traffic_lights.json", lights},
		{base + "identity.json", report},
		{base + "summary.json", summary},
	}
	for _, write := range writes {
		data, err := json.MarshalIndent(write.value, "", "  ")
		if err != nil {
			return &StorageError{
				Message:   fmt.Sprintf("marshal %s: %v", write.key, err),
				Retryable: false,
				Cause:     ErrCauseEncoding,
			}
		}
		if writeErr := w.storage.WriteObject(write.key, data, "application/json"); writeErr != nil {
			return writeErr
		}
	}
	return nil
}

func (w *ArtifactWriter) provenanceFor(outcome *consensus.FieldOutcome) FieldProvenance {
	provenance := FieldProvenance{
		Value:                 outcome.Value,
		Confirmations:         outcome.Confirmations,
		ApprovedConfirmations: outcome.ApprovedConfirmations,
		PassTarget:            outcome.PassTarget,
		MeetsPassTarget:       outcome.MeetsTarget,
		Confidence:            outcome.Confidence,
	}
	if outcome.Winner == nil {
		return provenance
	}
	for _, member := range outcome.Winner.Members {
		provenance.Evidence = append(provenance.Evidence, EvidenceRef{
			URL:         member.Evidence.URL,
			Host:        member.Host,
			RootDomain:  member.RootDomain,
			Tier:        member.Tier,
			Method:      string(member.Method),
			Quote:       member.Evidence.Quote,
			QuoteSpan:   member.Evidence.QuoteSpan,
			RetrievedAt: member.Evidence.RetrievedAt,
		})
	}
	return provenance
}

// trafficLightFor maps an outcome to its review color:
// accepted -> green, flagged -> yellow, unresolved with candidates ->
// red, never-seen -> gray (handled by the caller).
func trafficLightFor(outcome *consensus.FieldOutcome) TrafficLight {
	light := TrafficLight{
		Status:      string(outcome.State),
		ReasonCodes: outcome.ReasonCodes,
	}
	switch {
	case outcome.NeedsAIReview:
		light.Color = ColorRed
		light.ReasonCodes = append(light.ReasonCodes, "needs_ai_review")
	case outcome.State == consensus.StateAccepted:
		light.Color = ColorGreen
	case outcome.State == consensus.StateFlagged:
		light.Color = ColorYellow
	case outcome.Confirmations > 0:
		light.Color = ColorRed
	default:
		light.Color = ColorGray
	}
	return light
}
