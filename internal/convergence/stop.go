package convergence

/*
Stop decision

uberStopDecision is a pure function of its inputs: the same StopInput
always yields the same StopDecision. No clocks, no state.
*/

// StopInput is everything the stop decision may consider.
type StopInput struct {
	RequiredSatisfied    bool
	CriticalSatisfied    bool
	ElapsedMs            int64
	MaxMs                int64
	Round                int
	MaxRounds            int
	NoNewHighYieldRounds int
	NoNewFieldsRounds    int
	NoProgressLimit      int
}

// UberStopDecision applies the stop rules in priority order:
//  1. required + critical fields all satisfied
//  2. product time budget exhausted
//  3. round bound reached
//  4. diminishing returns: no new high-yield sources AND no new fields
//     for NoProgressLimit consecutive rounds
func UberStopDecision(input StopInput) StopDecision {
	if input.RequiredSatisfied && input.CriticalSatisfied {
		return StopDecision{Stop: true, Reason: StopReasonSatisfied}
	}
	if input.MaxMs > 0 && input.ElapsedMs >= input.MaxMs {
		return StopDecision{Stop: true, Reason: StopReasonTimeBudget}
	}
	if input.Round+1 >= input.MaxRounds {
		return StopDecision{Stop: true, Reason: StopReasonMaxRounds}
	}
	limit := input.NoProgressLimit
	if limit <= 0 {
		limit = 2
	}
	if input.NoNewHighYieldRounds >= limit && input.NoNewFieldsRounds >= limit {
		return StopDecision{Stop: true, Reason: StopReasonDiminishing}
	}
	return StopDecision{Reason: ReasonContinue}
}

// SelectTier maps round position and progress onto the planning depth
// table:
//
//	round 0                                   -> tier0 (seeds)
//	round 1, anything missing                 -> tier1
//	round 2, anything missing                 -> tier2
//	round >= 3, stalled, required/critical    -> tier3
//	round >= 4, only expected missing         -> tier2
func SelectTier(round int, missingRequiredOrCritical bool, onlyExpectedMissing bool, noProgressRounds int) RoundTier {
	switch {
	case round == 0:
		return TierSeed
	case round == 1:
		return TierPlanned
	case round == 2:
		return TierExpanded
	case round >= 3 && noProgressRounds >= 2 && missingRequiredOrCritical:
		return TierDeepest
	case round >= 4 && onlyExpectedMissing:
		return TierExpanded
	default:
		return TierExpanded
	}
}
