package convergence_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rohmanhakim/spec-harvester/internal/convergence"
)

func TestUberStopDecision_Table(t *testing.T) {
	tests := []struct {
		name   string
		input  convergence.StopInput
		stop   bool
		reason string
	}{
		{
			name: "satisfied stops immediately",
			input: convergence.StopInput{
				RequiredSatisfied: true,
				CriticalSatisfied: true,
				Round:             1,
				MaxRounds:         8,
			},
			stop:   true,
			reason: convergence.StopReasonSatisfied,
		},
		{
			name: "time budget exhausted",
			input: convergence.StopInput{
				ElapsedMs: 1_200_000,
				MaxMs:     1_200_000,
				Round:     2,
				MaxRounds: 8,
			},
			stop:   true,
			reason: convergence.StopReasonTimeBudget,
		},
		{
			name: "round bound",
			input: convergence.StopInput{
				Round:     7,
				MaxRounds: 8,
			},
			stop:   true,
			reason: convergence.StopReasonMaxRounds,
		},
		{
			name: "diminishing returns with required still missing",
			input: convergence.StopInput{
				Round:                3,
				MaxRounds:            8,
				NoNewHighYieldRounds: 2,
				NoNewFieldsRounds:    2,
				NoProgressLimit:      2,
			},
			stop:   true,
			reason: convergence.StopReasonDiminishing,
		},
		{
			name: "progress on one axis keeps going",
			input: convergence.StopInput{
				Round:                3,
				MaxRounds:            8,
				NoNewHighYieldRounds: 2,
				NoNewFieldsRounds:    0,
				NoProgressLimit:      2,
			},
			stop:   false,
			reason: convergence.ReasonContinue,
		},
		{
			name: "satisfied outranks time budget",
			input: convergence.StopInput{
				RequiredSatisfied: true,
				CriticalSatisfied: true,
				ElapsedMs:         9_999_999,
				MaxMs:             1,
				Round:             0,
				MaxRounds:         8,
			},
			stop:   true,
			reason: convergence.StopReasonSatisfied,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := convergence.UberStopDecision(tt.input)
			assert.Equal(t, tt.stop, got.Stop)
			assert.Equal(t, tt.reason, got.Reason)
		})
	}
}

// Stop decision determinism: same input, same output, every time.
func TestUberStopDecision_Deterministic(t *testing.T) {
	input := convergence.StopInput{
		Round:                4,
		MaxRounds:            8,
		NoNewHighYieldRounds: 1,
		NoNewFieldsRounds:    2,
		NoProgressLimit:      2,
	}
	first := convergence.UberStopDecision(input)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, convergence.UberStopDecision(input))
	}
}

func TestSelectTier_Table(t *testing.T) {
	tests := []struct {
		name             string
		round            int
		missingCore      bool
		onlyExpected     bool
		noProgressRounds int
		want             convergence.RoundTier
	}{
		{"round zero is seeds", 0, true, false, 0, convergence.TierSeed},
		{"round one plans queries", 1, true, false, 0, convergence.TierPlanned},
		{"round two expands", 2, true, false, 0, convergence.TierExpanded},
		{"stalled with core missing goes deepest", 3, true, false, 2, convergence.TierDeepest},
		{"round four with only expected missing stays expanded", 4, false, true, 0, convergence.TierExpanded},
		{"late rounds default to expanded", 5, true, false, 1, convergence.TierExpanded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := convergence.SelectTier(tt.round, tt.missingCore, tt.onlyExpected, tt.noProgressRounds)
			assert.Equal(t, tt.want, got)
		})
	}
}
