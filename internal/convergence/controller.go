package convergence

import (
	"bytes"
	"context"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/rohmanhakim/spec-harvester/internal/config"
	"github.com/rohmanhakim/spec-harvester/internal/consensus"
	"github.com/rohmanhakim/spec-harvester/internal/extractor"
	"github.com/rohmanhakim/spec-harvester/internal/fetcher"
	"github.com/rohmanhakim/spec-harvester/internal/frontier"
	"github.com/rohmanhakim/spec-harvester/internal/identity"
	"github.com/rohmanhakim/spec-harvester/internal/intel"
	"github.com/rohmanhakim/spec-harvester/internal/metadata"
	"github.com/rohmanhakim/spec-harvester/internal/robots"
	"github.com/rohmanhakim/spec-harvester/internal/schema"
	"github.com/rohmanhakim/spec-harvester/internal/snapshot"
	"github.com/rohmanhakim/spec-harvester/internal/storage"
	"github.com/rohmanhakim/spec-harvester/pkg/failure"
	"github.com/rohmanhakim/spec-harvester/pkg/hashutil"
	"github.com/rohmanhakim/spec-harvester/pkg/limiter"
	"github.com/rohmanhakim/spec-harvester/pkg/urlutil"
)

// Dispatcher is the slice of the dynamic crawler service the controller
// depends on.
type Dispatcher interface {
	Start(ctx context.Context) failure.ClassifiedError
	Stop(ctx context.Context) failure.ClassifiedError
	Fetch(ctx context.Context, source fetcher.Source) (fetcher.FetchResult, failure.ClassifiedError)
	ActiveMode() string
}

// Extractors bundles the per-page harvesters.
type Extractors struct {
	Dom      extractor.DomExtractor
	JSONLD   extractor.JSONLDExtractor
	Embedded extractor.EmbeddedStateExtractor
	Network  extractor.NetworkExtractor
	Temporal extractor.TemporalSignalExtractor
}

type Controller struct {
	cfg          config.Config
	metadataSink metadata.MetadataSink
	finalizer    metadata.RunFinalizer

	lock       schema.IdentityLock
	ruleset    *schema.Ruleset
	tierMap    *schema.TierMap
	gate       identity.Gate
	engine     *consensus.Engine
	planner    Planner
	extractors Extractors
	miner      *extractor.EndpointMiner

	frontierStore *frontier.Store
	intelTracker  *intel.Tracker
	robot         robots.Policy
	rateLimiter   limiter.RateLimiter
	dispatcher    Dispatcher

	snapshotWriter snapshot.Writer
	artifactWriter storage.ArtifactWriter

	// run state, guarded by mu where rounds write concurrently
	mu            sync.Mutex
	pageDecisions map[string]identity.Decision
	assessments   []identity.PageAssessment
	candidates    []extractor.Candidate

	totalErrors    int
	pagesFetched   int
	pagesConfirmed int
	// high-yield pages already reported by earlier rounds
	highYieldCounted int
}

func NewController(
	cfg config.Config,
	metadataSink metadata.MetadataSink,
	finalizer metadata.RunFinalizer,
	lock schema.IdentityLock,
	ruleset *schema.Ruleset,
	tierMap *schema.TierMap,
	engine *consensus.Engine,
	planner Planner,
	extractors Extractors,
	miner *extractor.EndpointMiner,
	frontierStore *frontier.Store,
	intelTracker *intel.Tracker,
	robot robots.Policy,
	rateLimiter limiter.RateLimiter,
	dispatcher Dispatcher,
	snapshotWriter snapshot.Writer,
	artifactWriter storage.ArtifactWriter,
) *Controller {
	return &Controller{
		cfg:            cfg,
		metadataSink:   metadataSink,
		finalizer:      finalizer,
		lock:           lock,
		ruleset:        ruleset,
		tierMap:        tierMap,
		gate:           identity.NewGate(lock),
		engine:         engine,
		planner:        planner,
		extractors:     extractors,
		miner:          miner,
		frontierStore:  frontierStore,
		intelTracker:   intelTracker,
		robot:          robot,
		rateLimiter:    rateLimiter,
		dispatcher:     dispatcher,
		snapshotWriter: snapshotWriter,
		artifactWriter: artifactWriter,
		pageDecisions:  make(map[string]identity.Decision),
	}
}

// PageDecision resolves a URL's identity decision for the consensus
// engine. Unknown URLs answer REJECTED, which admits nothing.
func (c *Controller) PageDecision(rawURL string) identity.Decision {
	c.mu.Lock()
	defer c.mu.Unlock()
	if decision, ok := c.pageDecisions[urlutil.CanonicalString(rawURL)]; ok {
		return decision
	}
	return identity.DecisionRejected
}

// RunOne drives the product to a stop decision and writes the artifacts.
func (c *Controller) RunOne(ctx context.Context) (storage.RunSummary, failure.ClassifiedError) {
	return c.RunUntilComplete(ctx, c.cfg.MaxRounds())
}

// RunUntilComplete is RunOne with an explicit round bound.
func (c *Controller) RunUntilComplete(ctx context.Context, maxRounds int) (storage.RunSummary, failure.ClassifiedError) {
	startTime := time.Now()

	if err := c.dispatcher.Start(ctx); err != nil {
		return storage.RunSummary{}, err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		c.dispatcher.Stop(stopCtx)
		// Flush durable state even on cancellation; partial data beats
		// losing a round of learning.
		c.frontierStore.Save()
		c.intelTracker.Save()
	}()

	summary := Summary{}
	var outcomes map[string]*consensus.FieldOutcome
	var report identity.Report
	stop := StopDecision{Reason: ReasonContinue}

	for round := 0; ; round++ {
		if ctx.Err() != nil {
			stop = StopDecision{Stop: true, Reason: StopReasonCancelled}
			break
		}

		missing := append(append([]string{}, summary.MissingRequired...), summary.MissingCritical...)
		if limit := c.cfg.MaxTargetFields(); limit > 0 && len(missing) > limit {
			missing = missing[:limit]
		}
		onlyExpected := len(missing) == 0 && len(summary.MissingExpected) > 0
		tier := SelectTier(round, len(missing) > 0 || round <= 2, onlyExpected, summary.NoNewFieldsRounds)

		sources := c.planner.PlanSources(ctx, tier, missing, false)
		c.dispatchRound(ctx, sources)

		report, outcomes = c.mergeRound()
		previous := summary
		summary = c.computeSummary(round, previous, outcomes, report)
		c.learnFromRound(outcomes)

		c.metadataSink.RecordEvent(metadata.EventRoundComplete, []metadata.Attribute{
			metadata.NewAttr(metadata.AttrProductID, c.lock.ProductID),
			metadata.NewAttr(metadata.AttrRound, itoa(round)),
			metadata.NewAttr(metadata.AttrMode, c.dispatcher.ActiveMode()),
		})

		stop = UberStopDecision(StopInput{
			RequiredSatisfied:    len(summary.MissingRequired) == 0,
			CriticalSatisfied:    len(summary.MissingCritical) == 0,
			ElapsedMs:            time.Since(startTime).Milliseconds(),
			MaxMs:                c.cfg.MaxProductDuration().Milliseconds(),
			Round:                round,
			MaxRounds:            maxRounds,
			NoNewHighYieldRounds: summary.NoNewHighYieldRounds,
			NoNewFieldsRounds:    summary.NoNewFieldsRounds,
			NoProgressLimit:      c.cfg.NoProgressLimit(),
		})
		c.metadataSink.RecordEvent(metadata.EventStopDecision, []metadata.Attribute{
			metadata.NewAttr(metadata.AttrProductID, c.lock.ProductID),
			metadata.NewAttr(metadata.AttrRound, itoa(round)),
			metadata.NewAttr(metadata.AttrDecision, boolWord(stop.Stop)),
			metadata.NewAttr(metadata.AttrReason, stop.Reason),
		})
		if stop.Stop {
			break
		}
	}

	runSummary := c.buildRunSummary(summary, outcomes, report)
	if outcomes == nil {
		outcomes = map[string]*consensus.FieldOutcome{}
	}
	writeErr := c.artifactWriter.WriteAll(c.lock.ProductID, outcomes, report, runSummary)

	c.finalizer.RecordFinalRunStats(metadata.RunStats{
		ProductID:      c.lock.ProductID,
		Rounds:         summary.Round + 1,
		PagesFetched:   c.pagesFetched,
		PagesConfirmed: c.pagesConfirmed,
		FieldsAccepted: len(summary.AcceptedFields),
		TotalErrors:    c.totalErrors,
		Duration:       time.Since(startTime),
	})
	return runSummary, writeErr
}

// dispatchRound fetches the planned sources in parallel under the global
// concurrency cap. Per-host serialization lives inside the dispatcher.
func (c *Controller) dispatchRound(ctx context.Context, sources []PlannedSource) {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(c.cfg.MaxConcurrentFetches())

	for _, planned := range sources {
		planned := planned
		group.Go(func() error {
			c.fetchAndGate(groupCtx, planned)
			return nil
		})
	}
	group.Wait()
}

// fetchAndGate runs one source through robots, fetch, extraction, and
// the identity gate, updating frontier and intel as it goes.
func (c *Controller) fetchAndGate(ctx context.Context, planned PlannedSource) {
	target, err := url.Parse(planned.URL)
	if err != nil {
		return
	}

	decision, robotsErr := c.robot.CanFetch(ctx, *target, c.cfg.UserAgent())
	if robotsErr != nil {
		c.countError()
		return
	}
	if decision.CrawlDelay != nil {
		c.rateLimiter.SetCrawlDelay(target.Host, *decision.CrawlDelay)
	}
	rootDomain := urlutil.RootDomain(target.Host)
	if !decision.Allowed || c.tierMap.IsDenied(rootDomain) {
		// Blocked by policy: synthetic 451, no fetch, learn to stop
		// planning toward this host.
		c.frontierStore.RecordFetch(frontier.FetchOutcome{
			URL:            planned.URL,
			Status:         451,
			FetchedAt:      time.Now(),
			BlockedByRobot: true,
		})
		c.intelTracker.RecordPage(intel.PageOutcome{
			Domain:    rootDomain,
			Brand:     c.lock.Brand,
			ProductID: c.lock.ProductID,
		})
		return
	}

	result, fetchErr := c.dispatcher.Fetch(ctx, fetcher.Source{
		URL:           planned.URL,
		DiscoveryOnly: planned.DiscoveryOnly,
		RateLimitMs:   planned.RateLimitMs,
	})
	if fetchErr != nil {
		c.countError()
		return
	}

	c.mu.Lock()
	c.pagesFetched++
	c.mu.Unlock()

	contentHash := ""
	if len(result.Body) > 0 {
		contentHash = hashutil.ShortHash(string(result.Body), 16)
	}
	c.frontierStore.RecordFetch(frontier.FetchOutcome{
		URL:         planned.URL,
		Status:      result.Status,
		FetchedAt:   result.FetchedAt,
		ContentHash: contentHash,
		Redirected:  result.Redirect(),
	})

	httpOk := result.Ok()
	if !result.ShouldExtract() || planned.DiscoveryOnly {
		c.intelTracker.RecordPage(intel.PageOutcome{
			Domain:    rootDomain,
			Brand:     c.lock.Brand,
			ProductID: c.lock.ProductID,
			HTTPOk:    httpOk,
		})
		if !httpOk && result.Error != "" {
			c.countError()
		}
		if planned.DiscoveryOnly && result.ShouldExtract() {
			c.miner.Observe(result)
		}
		return
	}

	candidates, title := c.extractAll(result)
	c.miner.Observe(result)

	observation := c.observe(result, title, candidates)
	verdict := c.gate.Assess(observation)
	profile := c.tierMap.Profile(rootDomain)

	c.metadataSink.RecordEvent(metadata.EventIdentityDecision, []metadata.Attribute{
		metadata.NewAttr(metadata.AttrProductID, c.lock.ProductID),
		metadata.NewAttr(metadata.AttrURL, planned.URL),
		metadata.NewAttr(metadata.AttrDecision, string(verdict.Decision)),
		metadata.NewAttr(metadata.AttrScore, ftoa(verdict.Score)),
	})

	assessment := identity.PageAssessment{
		Verdict:         verdict,
		Role:            profile.Role,
		Tier:            profile.Tier,
		TrustedHelper:   profile.TrustedHelper,
		RootDomain:      rootDomain,
		ConnectionClass: identity.ConnectionClassOf(title + " " + observation.CandidateText),
		SensorFamily:    fieldValue(candidates, "sensor"),
		SKUTokens:       schema.Tokenize(observation.SKU),
		DimensionsMm:    dimensionsOf(candidates),
	}

	c.intelTracker.RecordPage(intel.PageOutcome{
		Domain:         rootDomain,
		Brand:          c.lock.Brand,
		ProductID:      c.lock.ProductID,
		HTTPOk:         httpOk,
		IdentityMatch:  verdict.Decision == identity.DecisionConfirmed,
		AnchorConflict: len(verdict.CriticalConflicts) > 0,
	})

	c.mu.Lock()
	c.pageDecisions[urlutil.CanonicalString(planned.URL)] = verdict.Decision
	c.assessments = append(c.assessments, assessment)
	if verdict.Decision == identity.DecisionConfirmed {
		c.pagesConfirmed++
	}
	c.mu.Unlock()

	if !verdict.Decision.Admissible() {
		// Identity rejection is a data outcome, not an error; the page's
		// candidates are dropped here and never reach consensus.
		return
	}

	for i := range candidates {
		candidates[i].Role = profile.Role
		candidates[i].Tier = profile.Tier
	}
	c.mu.Lock()
	c.candidates = append(c.candidates, candidates...)
	c.mu.Unlock()

	if verdict.Decision == identity.DecisionConfirmed {
		c.snapshotWriter.Capture(c.lock.ProductID, result)
	}
	return
}

// extractAll runs every harvester; one failing extractor never blocks
// the others.
func (c *Controller) extractAll(result fetcher.FetchResult) ([]extractor.Candidate, string) {
	var candidates []extractor.Candidate

	if domCandidates, err := c.extractors.Dom.Extract(result); err == nil {
		candidates = append(candidates, domCandidates...)
	} else {
		c.countError()
	}
	if ldCandidates, err := c.extractors.JSONLD.Extract(result); err == nil {
		candidates = append(candidates, ldCandidates...)
	}
	if stateCandidates, err := c.extractors.Embedded.Extract(result); err == nil {
		candidates = append(candidates, stateCandidates...)
	}
	if networkCandidates, err := c.extractors.Network.Extract(result); err == nil {
		candidates = append(candidates, networkCandidates...)
	}

	title := pageTitle(result.Body)
	candidates = append(candidates, c.extractors.Temporal.Extract(result, title)...)
	return candidates, title
}

func (c *Controller) observe(result fetcher.FetchResult, title string, candidates []extractor.Candidate) identity.PageObservation {
	var candidateText strings.Builder
	for _, candidate := range candidates {
		candidateText.WriteString(candidate.Field)
		candidateText.WriteByte(' ')
		candidateText.WriteString(candidate.Value)
		candidateText.WriteByte(' ')
	}

	text := visibleText(result.Body)
	return identity.PageObservation{
		URL:           result.FinalURL,
		Title:         title,
		Text:          text,
		CandidateText: candidateText.String(),
		SKU:           fieldValue(candidates, "sku"),
		MPN:           fieldValue(candidates, "mpn"),
		GTIN:          fieldValue(candidates, "gtin"),
	}
}

// mergeRound reconciles identity across all pages seen so far and runs
// consensus over the accumulated candidates. Winners from earlier rounds
// persist because their candidates persist.
func (c *Controller) mergeRound() (identity.Report, map[string]*consensus.FieldOutcome) {
	c.mu.Lock()
	assessments := make([]identity.PageAssessment, len(c.assessments))
	copy(assessments, c.assessments)
	candidates := make([]extractor.Candidate, len(c.candidates))
	copy(candidates, c.candidates)
	c.mu.Unlock()

	report := identity.Reconcile(assessments)
	outcomes := c.engine.MergeAll(candidates, report.Status)

	c.metadataSink.RecordEvent(metadata.EventIdentityOverall, []metadata.Attribute{
		metadata.NewAttr(metadata.AttrProductID, c.lock.ProductID),
		metadata.NewAttr(metadata.AttrDecision, string(report.Status)),
	})
	return report, outcomes
}

// learnFromRound feeds consensus results back into the frontier yields
// ledger and the domain intel tracker.
func (c *Controller) learnFromRound(outcomes map[string]*consensus.FieldOutcome) {
	for field, outcome := range outcomes {
		rule, _ := c.ruleset.Rule(field)
		// Low-confidence yields count against a URL's standing the same
		// way contested ones do.
		conflict := len(outcome.Clusters) > 1 || outcome.Confidence < c.cfg.LowQualityConfidence()
		if outcome.Winner == nil {
			continue
		}
		valueHash := hashutil.ShortHash(outcome.Value, 12)
		for _, member := range outcome.Winner.Members {
			c.frontierStore.RecordYield(member.SourceURL, field, valueHash, outcome.Confidence, conflict)
			c.intelTracker.RecordFieldContribution(
				member.RootDomain,
				c.lock.Brand,
				field,
				outcome.State == consensus.StateAccepted,
				rule.Critical,
			)
		}
		for _, cluster := range outcome.Clusters[1:] {
			for _, member := range cluster.Members {
				c.frontierStore.RecordYield(member.SourceURL, field, hashutil.ShortHash(cluster.Canonical, 12), outcome.Confidence, true)
				c.intelTracker.RecordFieldContribution(member.RootDomain, c.lock.Brand, field, false, rule.Critical)
			}
		}
	}
}

func (c *Controller) computeSummary(
	round int,
	previous Summary,
	outcomes map[string]*consensus.FieldOutcome,
	report identity.Report,
) Summary {
	summary := Summary{
		Round:          round,
		IdentityStatus: report.Status,
	}

	accepted := make(map[string]struct{})
	var confidenceSum float64
	var confidenceCount int
	for field, outcome := range outcomes {
		if outcome.State == consensus.StateAccepted {
			accepted[field] = struct{}{}
			summary.AcceptedFields = append(summary.AcceptedFields, field)
		}
		if outcome.Winner != nil {
			confidenceSum += outcome.Confidence
			confidenceCount++
		}
	}
	if confidenceCount > 0 {
		summary.MeanConfidence = confidenceSum / float64(confidenceCount)
	}

	summary.MissingRequired = missingFrom(c.ruleset.RequiredKeys(), accepted)
	summary.MissingCritical = missingFrom(c.ruleset.CriticalKeys(), accepted)
	summary.MissingExpected = missingFrom(c.ruleset.ExpectedKeys(), accepted)

	if total := len(c.ruleset.Keys()); total > 0 {
		summary.CoveragePercent = 100 * float64(len(accepted)) / float64(total)
	}

	summary.NewFields = len(accepted) - len(previous.AcceptedFields)
	if summary.NewFields < 0 {
		summary.NewFields = 0
	}
	summary.NewHighYieldSources = c.highYieldPagesSince(previous)

	if summary.NewFields == 0 {
		summary.NoNewFieldsRounds = previous.NoNewFieldsRounds + 1
	}
	if summary.NewHighYieldSources == 0 {
		summary.NoNewHighYieldRounds = previous.NoNewHighYieldRounds + 1
	}
	return summary
}

// highYieldPagesSince counts admissible pages that yielded three or more
// candidates and were not already counted by an earlier round.
func (c *Controller) highYieldPagesSince(previous Summary) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	perPage := make(map[string]int)
	for _, candidate := range c.candidates {
		perPage[candidate.SourceURL]++
	}
	highYield := 0
	for _, count := range perPage {
		if count >= 3 {
			highYield++
		}
	}
	// First round reports the absolute count; later rounds the delta.
	delta := highYield - c.highYieldCounted
	c.highYieldCounted = highYield
	if delta < 0 {
		return 0
	}
	return delta
}

func (c *Controller) buildRunSummary(
	summary Summary,
	outcomes map[string]*consensus.FieldOutcome,
	report identity.Report,
) storage.RunSummary {
	runSummary := storage.RunSummary{
		Confidence:             summary.MeanConfidence,
		CoverageOverallPercent: summary.CoveragePercent,
		MissingRequiredFields:  summary.MissingRequired,
		MissingExpectedFields:  summary.MissingExpected,
	}

	required := c.ruleset.RequiredKeys()
	if len(required) > 0 {
		acceptedRequired := len(required) - len(summary.MissingRequired)
		runSummary.CompletenessRequiredPercent = 100 * float64(acceptedRequired) / float64(len(required))
	} else {
		runSummary.CompletenessRequiredPercent = 100
	}

	for _, field := range c.ruleset.CriticalKeys() {
		outcome, ok := outcomes[field]
		if !ok || !outcome.MeetsTarget {
			runSummary.CriticalFieldsBelowPassTarget = append(runSummary.CriticalFieldsBelowPassTarget, field)
		}
	}

	switch {
	case report.Status != identity.StatusConfirmed:
		runSummary.ValidatedReason = storage.ReasonIdentityNotConfirmed
	case len(summary.MissingRequired) > 0:
		runSummary.ValidatedReason = storage.ReasonBelowRequiredComplete
	case len(runSummary.CriticalFieldsBelowPassTarget) > 0:
		runSummary.ValidatedReason = storage.ReasonCriticalBelowTarget
	default:
		runSummary.Validated = true
		runSummary.ValidatedReason = storage.ReasonValidated
	}
	return runSummary
}

func (c *Controller) countError() {
	c.mu.Lock()
	c.totalErrors++
	c.mu.Unlock()
}

func missingFrom(keys []string, accepted map[string]struct{}) []string {
	var missing []string
	for _, key := range keys {
		if _, ok := accepted[key]; !ok {
			missing = append(missing, key)
		}
	}
	return missing
}

func fieldValue(candidates []extractor.Candidate, fieldSubstring string) string {
	for _, candidate := range candidates {
		if strings.Contains(candidate.Field, fieldSubstring) {
			return candidate.Value
		}
	}
	return ""
}

// dimensionsOf extracts positional length/width/height observations in
// millimeters from the page's candidates.
func dimensionsOf(candidates []extractor.Candidate) []float64 {
	dims := make([]float64, 3)
	seen := false
	for _, candidate := range candidates {
		index := -1
		switch {
		case strings.Contains(candidate.Field, "length"):
			index = 0
		case strings.Contains(candidate.Field, "width"):
			index = 1
		case strings.Contains(candidate.Field, "height"):
			index = 2
		}
		if index < 0 {
			continue
		}
		value, unit, ok := consensus.ParseNumeric(candidate.Value)
		if !ok {
			continue
		}
		if converted, ok := consensus.ConvertTo(value, unit, "mm"); ok {
			dims[index] = converted
			seen = true
		}
	}
	if !seen {
		return nil
	}
	return dims
}

func pageTitle(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	return strings.Join(strings.Fields(doc.Find("title").First().Text()), " ")
}

// visibleText returns a bounded plain-text slice of the page for token
// matching.
func visibleText(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	doc.Find("script, style, noscript").Remove()
	text := strings.Join(strings.Fields(doc.Text()), " ")
	if len(text) > 16*1024 {
		text = text[:16*1024]
	}
	return text
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', 3, 64)
}

func boolWord(b bool) string {
	return strconv.FormatBool(b)
}
