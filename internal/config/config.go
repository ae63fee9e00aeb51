package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type Config struct {
	//===============
	// Category inputs
	//===============
	category        string
	rulesPath       string
	componentDBPath string
	catalogPath     string
	tierMapPath     string
	// Root directory for frontier state, domain intel, and artifacts
	dataDir string
	// Fixture directory for dryrun fetches
	fixturesDir string

	//===============
	// Fetcher
	//===============
	mode                   FetchMode
	userAgent              string
	pageGotoTimeout        time.Duration
	pageNetworkIdleTimeout time.Duration
	perHostMinDelay        time.Duration
	postLoadWait           time.Duration
	autoScrollEnabled      bool
	autoScrollPasses       int
	graphqlReplayEnabled   bool
	maxGraphqlReplays      int
	retryBudget            int
	retryBackoff           time.Duration
	maxJsonBytes           int
	screenshotMaxBytes     int
	hostPolicies           map[string]HostPolicy

	//===============
	// Politeness
	//===============
	baseDelay  time.Duration
	jitter     time.Duration
	randomSeed int64
	// Global cap on concurrent fetches within a round
	maxConcurrentFetches int

	//===============
	// Frontier cooldowns (seconds-resolution policy table)
	//===============
	queryCooldown        time.Duration
	cooldown404          time.Duration
	cooldown404Repeat    time.Duration
	cooldown410          time.Duration
	cooldownTimeout      time.Duration
	cooldown403Base      time.Duration
	cooldown429Base      time.Duration
	pathPenaltyThreshold int

	//===============
	// Convergence
	//===============
	maxRounds            int
	noProgressLimit      int
	maxDispatchQueries   int
	maxTargetFields      int
	maxProductDuration   time.Duration
	lowQualityConfidence float64

	//===============
	// Consensus
	//===============
	weights ConsensusWeights
}

// configDTO is the JSON file shape; zero values mean "keep default".
type configDTO struct {
	Category        string `json:"category,omitempty"`
	RulesPath       string `json:"rulesPath,omitempty"`
	ComponentDBPath string `json:"componentDbPath,omitempty"`
	CatalogPath     string `json:"catalogPath,omitempty"`
	TierMapPath     string `json:"tierMapPath,omitempty"`
	DataDir         string `json:"dataDir,omitempty"`
	FixturesDir     string `json:"fixturesDir,omitempty"`

	Mode                     string `json:"mode,omitempty"`
	UserAgent                string `json:"userAgent,omitempty"`
	PageGotoTimeoutMs        int    `json:"pageGotoTimeoutMs,omitempty"`
	PageNetworkIdleTimeoutMs int    `json:"pageNetworkIdleTimeoutMs,omitempty"`
	PerHostMinDelayMs        int    `json:"perHostMinDelayMs,omitempty"`
	PostLoadWaitMs           int    `json:"postLoadWaitMs,omitempty"`
	AutoScrollEnabled        *bool  `json:"autoScrollEnabled,omitempty"`
	AutoScrollPasses         int    `json:"autoScrollPasses,omitempty"`
	GraphqlReplayEnabled     *bool  `json:"graphqlReplayEnabled,omitempty"`
	MaxGraphqlReplays        int    `json:"maxGraphqlReplays,omitempty"`
	RetryBudget              int    `json:"retryBudget,omitempty"`
	RetryBackoffMs           int    `json:"retryBackoffMs,omitempty"`
	MaxJsonBytes             int    `json:"maxJsonBytes,omitempty"`
	ScreenshotMaxBytes       int    `json:"screenshotMaxBytes,omitempty"`

	BaseDelayMs          int   `json:"baseDelayMs,omitempty"`
	JitterMs             int   `json:"jitterMs,omitempty"`
	RandomSeed           int64 `json:"randomSeed,omitempty"`
	MaxConcurrentFetches int   `json:"maxConcurrentFetches,omitempty"`

	QueryCooldownSeconds         int `json:"queryCooldownSeconds,omitempty"`
	Cooldown404Seconds           int `json:"cooldown404Seconds,omitempty"`
	Cooldown404RepeatSeconds     int `json:"cooldown404RepeatSeconds,omitempty"`
	Cooldown410Seconds           int `json:"cooldown410Seconds,omitempty"`
	CooldownTimeoutSeconds       int `json:"cooldownTimeoutSeconds,omitempty"`
	Cooldown403BaseSeconds       int `json:"cooldown403BaseSeconds,omitempty"`
	Cooldown429BaseSeconds       int `json:"cooldown429BaseSeconds,omitempty"`
	PathPenaltyNotFoundThreshold int `json:"pathPenaltyNotFoundThreshold,omitempty"`

	MaxRounds            int     `json:"maxRounds,omitempty"`
	NoProgressLimit      int     `json:"noProgressLimit,omitempty"`
	MaxDispatchQueries   int     `json:"maxDispatchQueries,omitempty"`
	MaxTargetFields      int     `json:"maxTargetFields,omitempty"`
	MaxProductDurationMs int     `json:"maxProductDurationMs,omitempty"`
	LowQualityConfidence float64 `json:"lowQualityConfidence,omitempty"`

	AutoAcceptScore float64            `json:"autoAcceptScore,omitempty"`
	FlagReviewScore float64            `json:"flagReviewScore,omitempty"`
	TierWeights     map[string]float64 `json:"tierWeights,omitempty"`
	MethodWeights   map[string]float64 `json:"methodWeights,omitempty"`
}

// WithDefault creates a Config for a category with defaults for everything else.
func WithDefault(category string) *Config {
	return &Config{
		category:        category,
		rulesPath:       "config/" + category + "/field_rules.json",
		componentDBPath: "config/" + category + "/components.json",
		catalogPath:     "config/" + category + "/catalog.json",
		tierMapPath:     "config/" + category + "/tiers.yaml",
		dataDir:         "data",
		fixturesDir:     "fixtures",

		mode:                   ModeHTTP,
		userAgent:              "spec-harvester/1.0",
		pageGotoTimeout:        30 * time.Second,
		pageNetworkIdleTimeout: 10 * time.Second,
		perHostMinDelay:        1500 * time.Millisecond,
		postLoadWait:           800 * time.Millisecond,
		autoScrollEnabled:      true,
		autoScrollPasses:       3,
		graphqlReplayEnabled:   true,
		maxGraphqlReplays:      6,
		retryBudget:            2,
		retryBackoff:           2 * time.Second,
		maxJsonBytes:           512 * 1024,
		screenshotMaxBytes:     2 * 1024 * 1024,
		hostPolicies:           map[string]HostPolicy{},

		baseDelay:            time.Second,
		jitter:               500 * time.Millisecond,
		randomSeed:           time.Now().UnixNano(),
		maxConcurrentFetches: 4,

		queryCooldown:        6 * time.Hour,
		cooldown404:          72 * time.Hour,
		cooldown404Repeat:    14 * 24 * time.Hour,
		cooldown410:          90 * 24 * time.Hour,
		cooldownTimeout:      6 * time.Hour,
		cooldown403Base:      30 * time.Minute,
		cooldown429Base:      15 * time.Minute,
		pathPenaltyThreshold: 3,

		maxRounds:            8,
		noProgressLimit:      2,
		maxDispatchQueries:   12,
		maxTargetFields:      24,
		maxProductDuration:   20 * time.Minute,
		lowQualityConfidence: 0.40,

		weights: DefaultConsensusWeights(),
	}
}

// WithConfigFile loads JSON overrides on top of defaults, then applies
// environment variables (env wins).
func WithConfigFile(path string) (Config, error) {
	if _, err := os.Stat(path); err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrFileDoesNotExist, err.Error())
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrReadConfigFail, err.Error())
	}
	dto := configDTO{}
	if err := json.Unmarshal(content, &dto); err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrConfigParsingFail, err.Error())
	}
	cfg := WithDefault(dto.Category)
	cfg.applyDTO(dto)
	cfg.applyEnv()
	return cfg.Build()
}

// FromEnv builds a Config for a category from defaults + environment only.
func FromEnv(category string) (Config, error) {
	cfg := WithDefault(category)
	cfg.applyEnv()
	return cfg.Build()
}

func (c *Config) applyDTO(dto configDTO) {
	setStr := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setMs := func(dst *time.Duration, v int) {
		if v != 0 {
			*dst = time.Duration(v) * time.Millisecond
		}
	}
	setSec := func(dst *time.Duration, v int) {
		if v != 0 {
			*dst = time.Duration(v) * time.Second
		}
	}
	setInt := func(dst *int, v int) {
		if v != 0 {
			*dst = v
		}
	}

	setStr(&c.rulesPath, dto.RulesPath)
	setStr(&c.componentDBPath, dto.ComponentDBPath)
	setStr(&c.catalogPath, dto.CatalogPath)
	setStr(&c.tierMapPath, dto.TierMapPath)
	setStr(&c.dataDir, dto.DataDir)
	setStr(&c.fixturesDir, dto.FixturesDir)

	if dto.Mode != "" {
		c.mode = FetchMode(dto.Mode)
	}
	setStr(&c.userAgent, dto.UserAgent)
	setMs(&c.pageGotoTimeout, dto.PageGotoTimeoutMs)
	setMs(&c.pageNetworkIdleTimeout, dto.PageNetworkIdleTimeoutMs)
	setMs(&c.perHostMinDelay, dto.PerHostMinDelayMs)
	setMs(&c.postLoadWait, dto.PostLoadWaitMs)
	if dto.AutoScrollEnabled != nil {
		c.autoScrollEnabled = *dto.AutoScrollEnabled
	}
	setInt(&c.autoScrollPasses, dto.AutoScrollPasses)
	if dto.GraphqlReplayEnabled != nil {
		c.graphqlReplayEnabled = *dto.GraphqlReplayEnabled
	}
	setInt(&c.maxGraphqlReplays, dto.MaxGraphqlReplays)
	setInt(&c.retryBudget, dto.RetryBudget)
	setMs(&c.retryBackoff, dto.RetryBackoffMs)
	setInt(&c.maxJsonBytes, dto.MaxJsonBytes)
	setInt(&c.screenshotMaxBytes, dto.ScreenshotMaxBytes)

	setMs(&c.baseDelay, dto.BaseDelayMs)
	setMs(&c.jitter, dto.JitterMs)
	if dto.RandomSeed != 0 {
		c.randomSeed = dto.RandomSeed
	}
	setInt(&c.maxConcurrentFetches, dto.MaxConcurrentFetches)

	setSec(&c.queryCooldown, dto.QueryCooldownSeconds)
	setSec(&c.cooldown404, dto.Cooldown404Seconds)
	setSec(&c.cooldown404Repeat, dto.Cooldown404RepeatSeconds)
	setSec(&c.cooldown410, dto.Cooldown410Seconds)
	setSec(&c.cooldownTimeout, dto.CooldownTimeoutSeconds)
	setSec(&c.cooldown403Base, dto.Cooldown403BaseSeconds)
	setSec(&c.cooldown429Base, dto.Cooldown429BaseSeconds)
	setInt(&c.pathPenaltyThreshold, dto.PathPenaltyNotFoundThreshold)

	setInt(&c.maxRounds, dto.MaxRounds)
	setInt(&c.noProgressLimit, dto.NoProgressLimit)
	setInt(&c.maxDispatchQueries, dto.MaxDispatchQueries)
	setInt(&c.maxTargetFields, dto.MaxTargetFields)
	setMs(&c.maxProductDuration, dto.MaxProductDurationMs)
	if dto.LowQualityConfidence != 0 {
		c.lowQualityConfidence = dto.LowQualityConfidence
	}

	if dto.AutoAcceptScore != 0 {
		c.weights.AutoAccept = dto.AutoAcceptScore
	}
	if dto.FlagReviewScore != 0 {
		c.weights.FlagReview = dto.FlagReviewScore
	}
	for k, v := range dto.TierWeights {
		var tier int
		if _, err := fmt.Sscanf(k, "%d", &tier); err == nil {
			c.weights.Tier[tier] = v
		}
	}
	for k, v := range dto.MethodWeights {
		c.weights.Method[k] = v
	}
}

// applyEnv binds the logical environment names to config fields via viper.
func (c *Config) applyEnv() {
	v := viper.New()
	v.AutomaticEnv()

	envStr := func(dst *string, key string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	envMs := func(dst *time.Duration, key string) {
		if v.IsSet(key) {
			*dst = time.Duration(v.GetInt(key)) * time.Millisecond
		}
	}
	envSec := func(dst *time.Duration, key string) {
		if v.IsSet(key) {
			*dst = time.Duration(v.GetInt(key)) * time.Second
		}
	}
	envInt := func(dst *int, key string) {
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}
	envBool := func(dst *bool, key string) {
		if v.IsSet(key) {
			*dst = v.GetBool(key)
		}
	}
	envFloat := func(dst *float64, key string) {
		if v.IsSet(key) {
			*dst = v.GetFloat64(key)
		}
	}

	if v.IsSet("MODE") {
		c.mode = FetchMode(strings.ToLower(v.GetString("MODE")))
	}
	envStr(&c.userAgent, "USER_AGENT")
	envMs(&c.pageGotoTimeout, "PAGE_GOTO_TIMEOUT_MS")
	envMs(&c.pageNetworkIdleTimeout, "PAGE_NETWORK_IDLE_TIMEOUT_MS")
	envMs(&c.perHostMinDelay, "PER_HOST_MIN_DELAY_MS")
	envMs(&c.postLoadWait, "POST_LOAD_WAIT_MS")
	envBool(&c.autoScrollEnabled, "AUTO_SCROLL_ENABLED")
	envInt(&c.autoScrollPasses, "AUTO_SCROLL_PASSES")
	envBool(&c.graphqlReplayEnabled, "GRAPHQL_REPLAY_ENABLED")
	envInt(&c.maxGraphqlReplays, "MAX_GRAPHQL_REPLAYS")
	envInt(&c.retryBudget, "DYNAMIC_FETCH_RETRY_BUDGET")
	envMs(&c.retryBackoff, "DYNAMIC_FETCH_RETRY_BACKOFF_MS")

	envSec(&c.queryCooldown, "FRONTIER_QUERY_COOLDOWN_SECONDS")
	envSec(&c.cooldown404, "FRONTIER_COOLDOWN_404_SECONDS")
	envSec(&c.cooldown404Repeat, "FRONTIER_COOLDOWN_404_REPEAT_SECONDS")
	envSec(&c.cooldown410, "FRONTIER_COOLDOWN_410_SECONDS")
	envSec(&c.cooldownTimeout, "FRONTIER_COOLDOWN_TIMEOUT_SECONDS")
	envSec(&c.cooldown403Base, "FRONTIER_COOLDOWN_403_BASE_SECONDS")
	envSec(&c.cooldown429Base, "FRONTIER_COOLDOWN_429_BASE_SECONDS")
	envInt(&c.pathPenaltyThreshold, "FRONTIER_PATH_PENALTY_NOTFOUND_THRESHOLD")

	envInt(&c.maxRounds, "CONVERGENCE_MAX_ROUNDS")
	envInt(&c.noProgressLimit, "CONVERGENCE_NO_PROGRESS_LIMIT")
	envInt(&c.maxDispatchQueries, "CONVERGENCE_MAX_DISPATCH_QUERIES")
	envInt(&c.maxTargetFields, "CONVERGENCE_MAX_TARGET_FIELDS")
	envFloat(&c.lowQualityConfidence, "LOW_QUALITY_CONFIDENCE")

	envFloat(&c.weights.AutoAccept, "AUTO_ACCEPT_SCORE")
	envFloat(&c.weights.FlagReview, "FLAG_REVIEW_SCORE")
}

// LoadHostPolicies reads the per-host policy map (YAML) into the config.
func (c *Config) LoadHostPolicies(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrReadConfigFail, err.Error())
	}
	file := hostPolicyFile{}
	if err := yaml.Unmarshal(content, &file); err != nil {
		return fmt.Errorf("%w: %s", ErrConfigParsingFail, err.Error())
	}
	if c.hostPolicies == nil {
		c.hostPolicies = map[string]HostPolicy{}
	}
	for host, policy := range file.Hosts {
		c.hostPolicies[host] = policy
	}
	return nil
}

// Build validates the config and returns it by value.
func (c *Config) Build() (Config, error) {
	if c.category == "" {
		return Config{}, fmt.Errorf("%w: category cannot be empty", ErrInvalidConfig)
	}
	switch c.mode {
	case ModeDryRun, ModeHTTP, ModeBrowserCrawler, ModeBrowserFull:
	default:
		return Config{}, fmt.Errorf("%w: unknown fetch mode %q", ErrInvalidConfig, c.mode)
	}
	if c.maxRounds < 1 {
		return Config{}, fmt.Errorf("%w: maxRounds must be >= 1", ErrInvalidConfig)
	}
	if c.weights.FlagReview > c.weights.AutoAccept {
		return Config{}, fmt.Errorf("%w: flagReview threshold above autoAccept", ErrInvalidConfig)
	}
	return *c, nil
}

// Chainable builder setters, used by CLI flag overrides.

func (c *Config) WithMode(mode FetchMode) *Config       { c.mode = mode; return c }
func (c *Config) WithUserAgent(ua string) *Config       { c.userAgent = ua; return c }
func (c *Config) WithDataDir(dir string) *Config        { c.dataDir = dir; return c }
func (c *Config) WithFixturesDir(dir string) *Config    { c.fixturesDir = dir; return c }
func (c *Config) WithRulesPath(p string) *Config        { c.rulesPath = p; return c }
func (c *Config) WithComponentDBPath(p string) *Config  { c.componentDBPath = p; return c }
func (c *Config) WithCatalogPath(p string) *Config      { c.catalogPath = p; return c }
func (c *Config) WithTierMapPath(p string) *Config      { c.tierMapPath = p; return c }
func (c *Config) WithMaxRounds(n int) *Config           { c.maxRounds = n; return c }
func (c *Config) WithRandomSeed(seed int64) *Config     { c.randomSeed = seed; return c }
func (c *Config) WithBaseDelay(d time.Duration) *Config { c.baseDelay = d; return c }
func (c *Config) WithJitter(d time.Duration) *Config    { c.jitter = d; return c }
func (c *Config) WithMaxProductDuration(d time.Duration) *Config {
	c.maxProductDuration = d
	return c
}
func (c *Config) WithHostPolicy(host string, p HostPolicy) *Config {
	if c.hostPolicies == nil {
		c.hostPolicies = map[string]HostPolicy{}
	}
	c.hostPolicies[host] = p
	return c
}

// Getters.

func (c *Config) Category() string        { return c.category }
func (c *Config) RulesPath() string       { return c.rulesPath }
func (c *Config) ComponentDBPath() string { return c.componentDBPath }
func (c *Config) CatalogPath() string     { return c.catalogPath }
func (c *Config) TierMapPath() string     { return c.tierMapPath }
func (c *Config) DataDir() string         { return c.dataDir }
func (c *Config) FixturesDir() string     { return c.fixturesDir }

func (c *Config) Mode() FetchMode                       { return c.mode }
func (c *Config) UserAgent() string                     { return c.userAgent }
func (c *Config) PageGotoTimeout() time.Duration        { return c.pageGotoTimeout }
func (c *Config) PageNetworkIdleTimeout() time.Duration { return c.pageNetworkIdleTimeout }
func (c *Config) PerHostMinDelay() time.Duration        { return c.perHostMinDelay }
func (c *Config) PostLoadWait() time.Duration           { return c.postLoadWait }
func (c *Config) AutoScrollEnabled() bool               { return c.autoScrollEnabled }
func (c *Config) AutoScrollPasses() int                 { return c.autoScrollPasses }
func (c *Config) GraphqlReplayEnabled() bool            { return c.graphqlReplayEnabled }
func (c *Config) MaxGraphqlReplays() int                { return c.maxGraphqlReplays }
func (c *Config) RetryBudget() int                      { return c.retryBudget }
func (c *Config) RetryBackoff() time.Duration           { return c.retryBackoff }
func (c *Config) MaxJsonBytes() int                     { return c.maxJsonBytes }
func (c *Config) ScreenshotMaxBytes() int               { return c.screenshotMaxBytes }
func (c *Config) HostPolicy(host string) (HostPolicy, bool) {
	p, ok := c.hostPolicies[host]
	return p, ok
}

func (c *Config) BaseDelay() time.Duration  { return c.baseDelay }
func (c *Config) Jitter() time.Duration     { return c.jitter }
func (c *Config) RandomSeed() int64         { return c.randomSeed }
func (c *Config) MaxConcurrentFetches() int { return c.maxConcurrentFetches }

func (c *Config) QueryCooldown() time.Duration     { return c.queryCooldown }
func (c *Config) Cooldown404() time.Duration       { return c.cooldown404 }
func (c *Config) Cooldown404Repeat() time.Duration { return c.cooldown404Repeat }
func (c *Config) Cooldown410() time.Duration       { return c.cooldown410 }
func (c *Config) CooldownTimeout() time.Duration   { return c.cooldownTimeout }
func (c *Config) Cooldown403Base() time.Duration   { return c.cooldown403Base }
func (c *Config) Cooldown429Base() time.Duration   { return c.cooldown429Base }
func (c *Config) PathPenaltyThreshold() int        { return c.pathPenaltyThreshold }

func (c *Config) MaxRounds() int                    { return c.maxRounds }
func (c *Config) NoProgressLimit() int              { return c.noProgressLimit }
func (c *Config) MaxDispatchQueries() int           { return c.maxDispatchQueries }
func (c *Config) MaxTargetFields() int              { return c.maxTargetFields }
func (c *Config) MaxProductDuration() time.Duration { return c.maxProductDuration }
func (c *Config) LowQualityConfidence() float64     { return c.lowQualityConfidence }

func (c *Config) Weights() ConsensusWeights { return c.weights }
