package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/rohmanhakim/spec-harvester/internal/config"
	"github.com/rohmanhakim/spec-harvester/internal/consensus"
	"github.com/rohmanhakim/spec-harvester/internal/convergence"
	"github.com/rohmanhakim/spec-harvester/internal/extractor"
	"github.com/rohmanhakim/spec-harvester/internal/fetcher"
	"github.com/rohmanhakim/spec-harvester/internal/frontier"
	"github.com/rohmanhakim/spec-harvester/internal/identity"
	"github.com/rohmanhakim/spec-harvester/internal/intel"
	"github.com/rohmanhakim/spec-harvester/internal/llm"
	"github.com/rohmanhakim/spec-harvester/internal/metadata"
	"github.com/rohmanhakim/spec-harvester/internal/robots"
	"github.com/rohmanhakim/spec-harvester/internal/schema"
	"github.com/rohmanhakim/spec-harvester/internal/search"
	"github.com/rohmanhakim/spec-harvester/internal/snapshot"
	"github.com/rohmanhakim/spec-harvester/internal/storage"
	"github.com/rohmanhakim/spec-harvester/pkg/limiter"
	"github.com/rohmanhakim/spec-harvester/pkg/timeutil"
)

// harness is everything one product run needs, fully wired.
type harness struct {
	runID      string
	recorder   metadata.Recorder
	controller *convergence.Controller
	frontier   *frontier.Store
	intel      *intel.Tracker
}

// buildHarness wires the full pipeline for one product. The controller's
// own decision table feeds the consensus engine, so the closure binds to
// the controller variable before it exists and resolves at call time.
func buildHarness(cfg config.Config, productID string) (*harness, error) {
	runID := uuid.NewString()
	recorder := metadata.NewDevelopmentRecorder(runID)

	ruleset, err := schema.LoadRuleset(cfg.RulesPath())
	if err != nil {
		return nil, fmt.Errorf("load field rules: %w", err)
	}
	componentDB, err := schema.LoadComponentDB(cfg.ComponentDBPath())
	if err != nil {
		return nil, fmt.Errorf("load component db: %w", err)
	}
	catalog, err := schema.LoadCatalog(cfg.CatalogPath())
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	tierMap, err := schema.LoadTierMap(cfg.TierMapPath())
	if err != nil {
		return nil, fmt.Errorf("load tier map: %w", err)
	}
	entry, ok := catalog[productID]
	if !ok {
		return nil, fmt.Errorf("product %q not in catalog", productID)
	}
	lock := schema.DeriveLock(entry)

	clock := timeutil.NewRealClock()
	sleeper := timeutil.NewRealSleeper()

	frontierStore, storeErr := frontier.NewStore(
		filepath.Join(cfg.DataDir(), cfg.Category(), "frontier.json"),
		cooldownPolicyFrom(cfg),
		clock,
	)
	if storeErr != nil {
		return nil, fmt.Errorf("open frontier: %w", storeErr)
	}
	intelTracker, intelErr := intel.NewTracker(
		cfg.Category(),
		filepath.Join(cfg.DataDir(), cfg.Category(), "intel.json"),
	)
	if intelErr != nil {
		return nil, fmt.Errorf("open intel: %w", intelErr)
	}

	rateLimiter := limiter.NewConcurrentRateLimiter()
	rateLimiter.SetBaseDelay(cfg.BaseDelay())
	rateLimiter.SetJitter(cfg.Jitter())
	rateLimiter.SetRandomSeed(cfg.RandomSeed())

	fetchers := map[string]fetcher.Fetcher{
		fetcher.ModeNameDryRun: fetcher.NewDryRunFetcher(&recorder, cfg.FixturesDir()),
		fetcher.ModeNameHTTP:   fetcher.NewHttpFetcher(&recorder, cfg.UserAgent(), cfg.PageGotoTimeout()),
		fetcher.ModeNameBrowserCrawler: fetcher.NewCrawlerFetcher(
			&recorder, cfg.UserAgent(), cfg.PageGotoTimeout(),
		),
		fetcher.ModeNameBrowserFull: fetcher.NewBrowserFetcher(&recorder, cfg.UserAgent(), fetcher.BrowserOptions{
			GotoTimeout:        cfg.PageGotoTimeout(),
			NetworkIdleTimeout: cfg.PageNetworkIdleTimeout(),
			PostLoadWait:       cfg.PostLoadWait(),
			AutoScrollEnabled:  cfg.AutoScrollEnabled(),
			AutoScrollPasses:   cfg.AutoScrollPasses(),
			GraphqlReplay:      cfg.GraphqlReplayEnabled(),
			MaxGraphqlReplays:  cfg.MaxGraphqlReplays(),
			MaxJsonBytes:       cfg.MaxJsonBytes(),
			ScreenshotMaxBytes: cfg.ScreenshotMaxBytes(),
		}),
	}
	service := fetcher.NewService(&recorder, cfg, rateLimiter, &sleeper, fetchers)

	robot := robots.NewCachedRobot(&recorder, cfg.UserAgent())

	matcher := extractor.NewFieldMatcher(ruleset)
	miner := extractor.NewEndpointMiner(matcher)
	extractors := convergence.Extractors{
		Dom:      extractor.NewDomExtractor(&recorder, matcher),
		JSONLD:   extractor.NewJSONLDExtractor(&recorder, matcher),
		Embedded: extractor.NewEmbeddedStateExtractor(&recorder, matcher),
		Network:  extractor.NewNetworkExtractor(&recorder, matcher),
		Temporal: extractor.NewTemporalSignalExtractor(&recorder, ruleset),
	}

	store := storage.NewLocalStorage(filepath.Join(cfg.DataDir(), cfg.Category()), &recorder)
	snapshotWriter := snapshot.NewWriter(&recorder, store, 256*1024)
	artifactWriter := storage.NewArtifactWriter(store, ruleset)

	searchProvider := search.NewFixtureProvider(cfg.FixturesDir())
	router := llm.Router(nil) // deterministic planning unless a provider is wired

	var controller *convergence.Controller
	engine := consensus.NewEngine(
		cfg.Weights(),
		ruleset,
		componentDB,
		tierMap,
		frontierStore.RankPenaltyForUrl,
		func(url string) identity.Decision { return controller.PageDecision(url) },
	)
	planner := convergence.NewPlanner(
		&recorder, lock, ruleset, tierMap,
		frontierStore, intelTracker, searchProvider, miner, router,
		entry.SeedURLs, cfg.MaxDispatchQueries(),
	)
	controller = convergence.NewController(
		cfg, &recorder, &recorder,
		lock, ruleset, tierMap,
		engine, planner, extractors, miner,
		frontierStore, intelTracker,
		&robot, rateLimiter, service,
		snapshotWriter, artifactWriter,
	)

	return &harness{
		runID:      runID,
		recorder:   recorder,
		controller: controller,
		frontier:   frontierStore,
		intel:      intelTracker,
	}, nil
}

func cooldownPolicyFrom(cfg config.Config) frontier.CooldownPolicy {
	return frontier.CooldownPolicy{
		QueryCooldown:    cfg.QueryCooldown(),
		NotFound:         cfg.Cooldown404(),
		NotFoundRepeat:   cfg.Cooldown404Repeat(),
		Gone:             cfg.Cooldown410(),
		Timeout:          cfg.CooldownTimeout(),
		ForbiddenBase:    cfg.Cooldown403Base(),
		RateLimitedBase:  cfg.Cooldown429Base(),
		PathPenaltyCount: cfg.PathPenaltyThreshold(),
	}
}
