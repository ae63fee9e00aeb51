package convergence_test

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohmanhakim/spec-harvester/internal/config"
	"github.com/rohmanhakim/spec-harvester/internal/consensus"
	"github.com/rohmanhakim/spec-harvester/internal/convergence"
	"github.com/rohmanhakim/spec-harvester/internal/extractor"
	"github.com/rohmanhakim/spec-harvester/internal/fetcher"
	"github.com/rohmanhakim/spec-harvester/internal/frontier"
	"github.com/rohmanhakim/spec-harvester/internal/identity"
	"github.com/rohmanhakim/spec-harvester/internal/intel"
	"github.com/rohmanhakim/spec-harvester/internal/metadata"
	"github.com/rohmanhakim/spec-harvester/internal/robots"
	"github.com/rohmanhakim/spec-harvester/internal/schema"
	"github.com/rohmanhakim/spec-harvester/internal/search"
	"github.com/rohmanhakim/spec-harvester/internal/snapshot"
	"github.com/rohmanhakim/spec-harvester/internal/storage"
	"github.com/rohmanhakim/spec-harvester/pkg/failure"
	"github.com/rohmanhakim/spec-harvester/pkg/limiter"
	"github.com/rohmanhakim/spec-harvester/pkg/timeutil"
)

// stubDispatcher serves canned pages keyed by URL; unknown URLs 404.
type stubDispatcher struct {
	pages map[string]string
}

func (s *stubDispatcher) Start(ctx context.Context) failure.ClassifiedError { return nil }
func (s *stubDispatcher) Stop(ctx context.Context) failure.ClassifiedError  { return nil }
func (s *stubDispatcher) ActiveMode() string                                { return fetcher.ModeNameHTTP }

func (s *stubDispatcher) Fetch(ctx context.Context, source fetcher.Source) (fetcher.FetchResult, failure.ClassifiedError) {
	body, ok := s.pages[source.URL]
	if !ok {
		return fetcher.FetchResult{URL: source.URL, FinalURL: source.URL, Status: 404, FetchedAt: time.Now()}, nil
	}
	return fetcher.FetchResult{
		URL:         source.URL,
		FinalURL:    source.URL,
		Status:      200,
		ContentType: "text/html",
		Body:        []byte(body),
		Bytes:       len(body),
		FetchedAt:   time.Now(),
	}, nil
}

// allowAllRobots approves everything without touching the network.
type allowAllRobots struct{}

func (allowAllRobots) CanFetch(ctx context.Context, target url.URL, userAgent string) (robots.Decision, *robots.RobotsError) {
	return robots.Decision{URL: target.String(), Allowed: true, Reason: robots.RobotsMissing}, nil
}

func productPage(brand, model, weight, dpi string) string {
	return `<html><head><title>` + brand + ` ` + model + ` Wireless Gaming Mouse</title></head>
	<body><table>
		<tr><th>Weight</th><td>` + weight + `</td></tr>
		<tr><th>Max DPI</th><td>` + dpi + `</td></tr>
	</table></body></html>`
}

func TestController_ConvergesOnSeedPages(t *testing.T) {
	dir := t.TempDir()

	rulesPath := filepath.Join(dir, "rules.json")
	require.NoError(t, os.WriteFile(rulesPath, []byte(`{
		"category": "mice",
		"fields": [
			{"key": "weight", "type": "number", "canonicalUnit": "g", "aliases": ["Weight"], "required": true},
			{"key": "dpi", "type": "integer", "aliases": ["Max DPI"], "critical": true}
		]
	}`), 0o644))
	ruleset, err := schema.LoadRuleset(rulesPath)
	require.NoError(t, err)

	componentsPath := filepath.Join(dir, "components.json")
	require.NoError(t, os.WriteFile(componentsPath, []byte(`{"components": []}`), 0o644))
	componentDB, err := schema.LoadComponentDB(componentsPath)
	require.NoError(t, err)

	tierMap := &schema.TierMap{
		Category: "mice",
		Approved: []string{"razer.com", "rtings.com", "techpowerup.com"},
		Domains: []schema.DomainProfile{
			{Domain: "razer.com", Tier: 1, Role: schema.RoleManufacturer},
			{Domain: "rtings.com", Tier: 2, Role: schema.RoleLabReview},
			{Domain: "techpowerup.com", Tier: 2, Role: schema.RoleLabReview},
		},
	}

	seeds := []string{
		"https://razer.com/gaming-mice/viper-v3",
		"https://rtings.com/mouse/reviews/razer/viper-v3",
		"https://techpowerup.com/review/razer-viper-v3",
	}
	dispatcher := &stubDispatcher{pages: map[string]string{
		seeds[0]: productPage("Razer", "Viper V3", "58 g", "35000"),
		seeds[1]: productPage("Razer", "Viper V3", "58 g", "35000"),
		seeds[2]: productPage("Razer", "Viper V3", "58.2 g", "35000"),
	}}

	cfg, err := config.WithDefault("mice").
		WithDataDir(filepath.Join(dir, "data")).
		WithMaxProductDuration(time.Minute).
		Build()
	require.NoError(t, err)

	recorder := metadata.NewRecorder("test", nil)
	clock := timeutil.NewRealClock()
	frontierStore, storeErr := frontier.NewStore(filepath.Join(dir, "frontier.json"), frontier.DefaultCooldownPolicy(), clock)
	require.Nil(t, storeErr)
	intelTracker, intelErr := intel.NewTracker("mice", filepath.Join(dir, "intel.json"))
	require.Nil(t, intelErr)

	lock := schema.DeriveLock(schema.CatalogEntry{
		ProductID: "razer-viper-v3",
		Brand:     "Razer",
		Model:     "Viper V3",
	})

	matcher := extractor.NewFieldMatcher(ruleset)
	miner := extractor.NewEndpointMiner(matcher)
	extractors := convergence.Extractors{
		Dom:      extractor.NewDomExtractor(&recorder, matcher),
		JSONLD:   extractor.NewJSONLDExtractor(&recorder, matcher),
		Embedded: extractor.NewEmbeddedStateExtractor(&recorder, matcher),
		Network:  extractor.NewNetworkExtractor(&recorder, matcher),
		Temporal: extractor.NewTemporalSignalExtractor(&recorder, ruleset),
	}

	store := storage.NewLocalStorage(filepath.Join(dir, "artifacts"), &recorder)
	snapshotWriter := snapshot.NewWriter(&recorder, store, 64*1024)
	artifactWriter := storage.NewArtifactWriter(store, ruleset)

	var controller *convergence.Controller
	engine := consensus.NewEngine(
		cfg.Weights(), ruleset, componentDB, tierMap,
		frontierStore.RankPenaltyForUrl,
		func(u string) identity.Decision { return controller.PageDecision(u) },
	)
	planner := convergence.NewPlanner(
		&recorder, lock, ruleset, tierMap,
		frontierStore, intelTracker,
		search.NewFixtureProvider(filepath.Join(dir, "fixtures")),
		miner, nil, seeds, cfg.MaxDispatchQueries(),
	)
	controller = convergence.NewController(
		cfg, &recorder, &recorder,
		lock, ruleset, tierMap,
		engine, planner, extractors, miner,
		frontierStore, intelTracker,
		allowAllRobots{}, limiter.NewConcurrentRateLimiter(), dispatcher,
		snapshotWriter, artifactWriter,
	)

	summary, runErr := controller.RunUntilComplete(context.Background(), 4)
	require.Nil(t, runErr)

	assert.True(t, summary.Validated, "reason: %s", summary.ValidatedReason)
	assert.Equal(t, storage.ReasonValidated, summary.ValidatedReason)
	assert.Empty(t, summary.MissingRequiredFields)
	assert.Empty(t, summary.CriticalFieldsBelowPassTarget)
	assert.Equal(t, 100.0, summary.CompletenessRequiredPercent)

	// Artifacts landed on disk.
	specBytes, readErr := os.ReadFile(filepath.Join(dir, "artifacts", "products", "razer-viper-v3", "spec.json"))
	require.NoError(t, readErr)
	assert.Contains(t, string(specBytes), `"weight": "58"`)
	assert.Contains(t, string(specBytes), `"dpi": "35000"`)

	// Frontier learned the fetches and was flushed on exit.
	record, ok := frontierStore.URLRecordFor(seeds[0])
	require.True(t, ok)
	assert.Equal(t, 1, record.OkCount)
	_, statErr := os.Stat(filepath.Join(dir, "frontier.json"))
	assert.NoError(t, statErr)
}

func TestController_UnresolvableProductReportsNotValidated(t *testing.T) {
	dir := t.TempDir()

	rulesPath := filepath.Join(dir, "rules.json")
	require.NoError(t, os.WriteFile(rulesPath, []byte(`{
		"category": "mice",
		"fields": [
			{"key": "weight", "type": "number", "canonicalUnit": "g", "aliases": ["Weight"], "required": true}
		]
	}`), 0o644))
	ruleset, err := schema.LoadRuleset(rulesPath)
	require.NoError(t, err)

	componentsPath := filepath.Join(dir, "components.json")
	require.NoError(t, os.WriteFile(componentsPath, []byte(`{"components": []}`), 0o644))
	componentDB, err := schema.LoadComponentDB(componentsPath)
	require.NoError(t, err)

	tierMap := &schema.TierMap{Category: "mice"}
	dispatcher := &stubDispatcher{pages: map[string]string{}} // everything 404s

	cfg, err := config.WithDefault("mice").
		WithDataDir(filepath.Join(dir, "data")).
		WithMaxProductDuration(time.Minute).
		Build()
	require.NoError(t, err)

	recorder := metadata.NewRecorder("test", nil)
	frontierStore, storeErr := frontier.NewStore(filepath.Join(dir, "frontier.json"), frontier.DefaultCooldownPolicy(), timeutil.NewRealClock())
	require.Nil(t, storeErr)
	intelTracker, intelErr := intel.NewTracker("mice", filepath.Join(dir, "intel.json"))
	require.Nil(t, intelErr)

	lock := schema.DeriveLock(schema.CatalogEntry{ProductID: "ghost", Brand: "Ghost", Model: "Mouse 9"})

	matcher := extractor.NewFieldMatcher(ruleset)
	miner := extractor.NewEndpointMiner(matcher)
	extractors := convergence.Extractors{
		Dom:      extractor.NewDomExtractor(&recorder, matcher),
		JSONLD:   extractor.NewJSONLDExtractor(&recorder, matcher),
		Embedded: extractor.NewEmbeddedStateExtractor(&recorder, matcher),
		Network:  extractor.NewNetworkExtractor(&recorder, matcher),
		Temporal: extractor.NewTemporalSignalExtractor(&recorder, ruleset),
	}
	store := storage.NewLocalStorage(filepath.Join(dir, "artifacts"), &recorder)

	var controller *convergence.Controller
	engine := consensus.NewEngine(
		cfg.Weights(), ruleset, componentDB, tierMap,
		frontierStore.RankPenaltyForUrl,
		func(u string) identity.Decision { return controller.PageDecision(u) },
	)
	planner := convergence.NewPlanner(
		&recorder, lock, ruleset, tierMap,
		frontierStore, intelTracker,
		search.NewFixtureProvider(filepath.Join(dir, "fixtures")),
		miner, nil, []string{"https://ghost.example.com/mouse-9"}, cfg.MaxDispatchQueries(),
	)
	controller = convergence.NewController(
		cfg, &recorder, &recorder,
		lock, ruleset, tierMap,
		engine, planner, extractors, miner,
		frontierStore, intelTracker,
		allowAllRobots{}, limiter.NewConcurrentRateLimiter(), dispatcher,
		snapshot.NewWriter(&recorder, store, 64*1024), storage.NewArtifactWriter(store, ruleset),
	)

	summary, runErr := controller.RunUntilComplete(context.Background(), 3)
	require.Nil(t, runErr)

	assert.False(t, summary.Validated)
	assert.Equal(t, storage.ReasonIdentityNotConfirmed, summary.ValidatedReason)
	assert.Contains(t, summary.MissingRequiredFields, "weight")
}
