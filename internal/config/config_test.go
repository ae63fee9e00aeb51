package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohmanhakim/spec-harvester/internal/config"
)

func TestWithDefault_Build(t *testing.T) {
	cfg, err := config.WithDefault("mice").Build()
	require.NoError(t, err)

	assert.Equal(t, "mice", cfg.Category())
	assert.Equal(t, config.ModeHTTP, cfg.Mode())
	assert.Equal(t, 8, cfg.MaxRounds())
	assert.Equal(t, 72*time.Hour, cfg.Cooldown404())
	assert.Equal(t, 90*24*time.Hour, cfg.Cooldown410())
	assert.Equal(t, 6*time.Hour, cfg.QueryCooldown())
	assert.Equal(t, 3, cfg.PathPenaltyThreshold())
	assert.Equal(t, 0.95, cfg.Weights().AutoAccept)
	assert.Equal(t, 0.65, cfg.Weights().FlagReview)
}

func TestBuild_Validation(t *testing.T) {
	_, err := config.WithDefault("").Build()
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	_, err = config.WithDefault("mice").WithMode("teleport").Build()
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("MODE", "dryrun")
	t.Setenv("FRONTIER_COOLDOWN_404_SECONDS", "3600")
	t.Setenv("CONVERGENCE_MAX_ROUNDS", "3")
	t.Setenv("PER_HOST_MIN_DELAY_MS", "250")
	t.Setenv("AUTO_ACCEPT_SCORE", "0.9")

	cfg, err := config.FromEnv("mice")
	require.NoError(t, err)

	assert.Equal(t, config.ModeDryRun, cfg.Mode())
	assert.Equal(t, time.Hour, cfg.Cooldown404())
	assert.Equal(t, 3, cfg.MaxRounds())
	assert.Equal(t, 250*time.Millisecond, cfg.PerHostMinDelay())
	assert.Equal(t, 0.9, cfg.Weights().AutoAccept)
}

func TestWithConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"category": "keyboards",
		"mode": "browser-crawler",
		"maxRounds": 5,
		"cooldown404Seconds": 7200,
		"flagReviewScore": 0.5
	}`), 0o644))

	cfg, err := config.WithConfigFile(path)
	require.NoError(t, err)

	assert.Equal(t, "keyboards", cfg.Category())
	assert.Equal(t, config.ModeBrowserCrawler, cfg.Mode())
	assert.Equal(t, 5, cfg.MaxRounds())
	assert.Equal(t, 2*time.Hour, cfg.Cooldown404())
	assert.Equal(t, 0.5, cfg.Weights().FlagReview)
	// Untouched values keep their defaults.
	assert.Equal(t, 15*time.Minute, cfg.Cooldown429Base())
}

func TestHostPolicies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
hosts:
  shop.example.com:
    minDelayMs: 4000
    forcedMode: http
  slow.example.org:
    gotoTimeoutMs: 60000
`), 0o644))

	builder := config.WithDefault("mice")
	require.NoError(t, builder.LoadHostPolicies(path))
	cfg, err := builder.Build()
	require.NoError(t, err)

	policy, ok := cfg.HostPolicy("shop.example.com")
	require.True(t, ok)
	assert.Equal(t, 4*time.Second, policy.MinDelay())
	assert.Equal(t, config.ModeHTTP, policy.ForcedMode)

	_, ok = cfg.HostPolicy("unknown.example.com")
	assert.False(t, ok)
}
