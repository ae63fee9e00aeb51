package config

import "time"

// FetchMode selects the active fetcher implementation at startup.
type FetchMode string

const (
	ModeDryRun         FetchMode = "dryrun"
	ModeHTTP           FetchMode = "http"
	ModeBrowserCrawler FetchMode = "browser-crawler"
	ModeBrowserFull    FetchMode = "browser-full"
)

// HostPolicy carries per-host overrides for pacing and fetching.
// A forced mode pins the host to one fetcher; forced hosts never
// participate in the fallback chain.
type HostPolicy struct {
	MinDelayMs    int       `yaml:"minDelayMs,omitempty"`
	RetryBudget   *int      `yaml:"retryBudget,omitempty"`
	GotoTimeoutMs int       `yaml:"gotoTimeoutMs,omitempty"`
	ForcedMode    FetchMode `yaml:"forcedMode,omitempty"`
}

func (p HostPolicy) MinDelay() time.Duration {
	return time.Duration(p.MinDelayMs) * time.Millisecond
}

// hostPolicyFile is the YAML shape of the per-host policy map.
type hostPolicyFile struct {
	Hosts map[string]HostPolicy `yaml:"hosts"`
}

// ConsensusWeights are the tier/role/method multipliers for candidate
// scoring plus the acceptance thresholds.
type ConsensusWeights struct {
	Tier       map[int]float64
	Role       map[string]float64
	Method     map[string]float64
	AutoAccept float64
	FlagReview float64
}

// DefaultConsensusWeights mirrors the compiled defaults; categories may
// override through the config file.
func DefaultConsensusWeights() ConsensusWeights {
	return ConsensusWeights{
		Tier: map[int]float64{
			1: 1.0,
			2: 0.8,
			3: 0.55,
			4: 0.35,
		},
		Role: map[string]float64{
			"manufacturer": 1.0,
			"lab_review":   0.9,
			"database":     0.75,
			"retail":       0.6,
			"helper":       0.5,
			"other":        0.4,
		},
		Method: map[string]float64{
			"dom_table":      1.0,
			"dom_inline":     0.85,
			"json_ld":        0.95,
			"embedded_state": 0.9,
			"network_json":   0.85,
			"temporal":       0.6,
			"llm_extract":    0.7,
		},
		AutoAccept: 0.95,
		FlagReview: 0.65,
	}
}
