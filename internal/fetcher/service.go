package fetcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rohmanhakim/spec-harvester/internal/config"
	"github.com/rohmanhakim/spec-harvester/internal/metadata"
	"github.com/rohmanhakim/spec-harvester/pkg/failure"
	"github.com/rohmanhakim/spec-harvester/pkg/limiter"
	"github.com/rohmanhakim/spec-harvester/pkg/timeutil"
)

// ServiceState is the dynamic crawler's lifecycle position.
type ServiceState string

const (
	StateStarting ServiceState = "starting"
	StateActive   ServiceState = "active"
	StateDegraded ServiceState = "degraded"
	StateStopped  ServiceState = "stopped"
)

// fallbackChain is the one-way downgrade order. A mode switch never
// reverses within a run, and modes forced per host never fall back.
var fallbackChain = map[string]string{
	ModeNameBrowserCrawler: ModeNameBrowserFull,
	ModeNameBrowserFull:    ModeNameHTTP,
}

// Service owns the active fetcher and the retry/fallback protocol around
// it. It is the only component that switches modes.
type Service struct {
	metadataSink metadata.MetadataSink
	cfg          config.Config
	rateLimiter  limiter.RateLimiter
	sleeper      timeutil.Sleeper

	mu       sync.Mutex
	fetchers map[string]Fetcher
	active   string
	state    ServiceState

	// hostLocks serialize fetches per host: delay wait + fetch hold the
	// host's lock, so cross-host parallelism is unaffected.
	hostLocks sync.Map
}

func NewService(
	metadataSink metadata.MetadataSink,
	cfg config.Config,
	rateLimiter limiter.RateLimiter,
	sleeper timeutil.Sleeper,
	fetchers map[string]Fetcher,
) *Service {
	return &Service{
		metadataSink: metadataSink,
		cfg:          cfg,
		rateLimiter:  rateLimiter,
		sleeper:      sleeper,
		fetchers:     fetchers,
		active:       string(cfg.Mode()),
		state:        StateStopped,
	}
}

// Start brings up the active fetcher.
func (s *Service) Start(ctx context.Context) failure.ClassifiedError {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateStarting

	active, ok := s.fetchers[s.active]
	if !ok {
		s.state = StateStopped
		return &FetchError{
			Message:   fmt.Sprintf("no fetcher registered for mode %q", s.active),
			Retryable: false,
			Cause:     ErrCauseNotStarted,
		}
	}
	if err := active.Start(ctx); err != nil {
		s.state = StateStopped
		return err
	}
	s.state = StateActive
	return nil
}

// Stop cleanly stops every started fetcher.
func (s *Service) Stop(ctx context.Context) failure.ClassifiedError {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr failure.ClassifiedError
	for _, f := range s.fetchers {
		if err := f.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.state = StateStopped
	return firstErr
}

// State returns the service lifecycle position.
func (s *Service) State() ServiceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ActiveMode returns the current mode name.
func (s *Service) ActiveMode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// resolvedPolicy is the per-host fetch policy after overrides.
type resolvedPolicy struct {
	minDelay    time.Duration
	retryBudget int
	backoff     time.Duration
	forcedMode  string
}

func (s *Service) resolvePolicy(host string, source Source) resolvedPolicy {
	policy := resolvedPolicy{
		minDelay:    s.cfg.PerHostMinDelay(),
		retryBudget: s.cfg.RetryBudget(),
		backoff:     s.cfg.RetryBackoff(),
	}
	if override, ok := s.cfg.HostPolicy(host); ok {
		if override.MinDelayMs > 0 {
			policy.minDelay = override.MinDelay()
		}
		if override.RetryBudget != nil {
			policy.retryBudget = *override.RetryBudget
		}
		policy.forcedMode = string(override.ForcedMode)
	}
	if source.RateLimitMs > 0 {
		policy.minDelay = time.Duration(source.RateLimitMs) * time.Millisecond
	}
	return policy
}

// Fetch runs the full protocol for one source: host slot wait, retry
// budget with backoff on 429/5xx, and one-way mode fallback on
// transport-level no-result.
func (s *Service) Fetch(ctx context.Context, source Source) (FetchResult, failure.ClassifiedError) {
	host := source.Host()
	policy := s.resolvePolicy(host, source)

	unlock := s.lockHost(host)
	defer unlock()

	s.rateLimiter.SetMinDelay(host, policy.minDelay)
	s.waitForHostSlot(ctx, host)

	mode, active, err := s.fetcherFor(policy)
	if err != nil {
		return FetchResult{}, err
	}

	result, fetchErr := s.fetchWithRetries(ctx, active, source, policy, host)
	if fetchErr == nil && !noResult(result) {
		return result, nil
	}

	// No HTTP-level outcome from the current mode: degrade one step,
	// unless the host's mode is forced.
	if policy.forcedMode != "" {
		return result, fetchErr
	}
	next, ok := fallbackChain[mode]
	if !ok {
		return result, fetchErr
	}
	fallbackFetcher, switchErr := s.switchTo(ctx, mode, next)
	if switchErr != nil {
		return result, fetchErr
	}

	retryResult, retryErr := s.fetchWithRetries(ctx, fallbackFetcher, source, policy, host)
	if retryErr != nil {
		return result, fetchErr
	}
	return retryResult, nil
}

func (s *Service) fetchWithRetries(
	ctx context.Context,
	active Fetcher,
	source Source,
	policy resolvedPolicy,
	host string,
) (FetchResult, failure.ClassifiedError) {
	var result FetchResult
	var fetchErr failure.ClassifiedError

	attempts := 1 + policy.retryBudget
	for attempt := 1; attempt <= attempts; attempt++ {
		s.rateLimiter.MarkLastFetchAsNow(host)
		result, fetchErr = active.Fetch(ctx, source)
		if fetchErr != nil {
			return result, fetchErr
		}
		if (result.Status == 429 || result.Status >= 500) && attempt < attempts {
			if result.Status == 429 {
				s.rateLimiter.Backoff(host)
			}
			s.sleeper.Sleep(ctx, policy.backoff)
			if ctx.Err() != nil {
				return result, nil
			}
			continue
		}
		if result.Ok() {
			s.rateLimiter.ResetBackoff(host)
		}
		return result, nil
	}
	return result, fetchErr
}

// switchTo performs the one-way mode downgrade, starting the fallback
// fetcher and emitting the mode-switch telemetry event.
func (s *Service) switchTo(ctx context.Context, from, to string) (Fetcher, failure.ClassifiedError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Another goroutine may have switched already.
	if s.active != from {
		if f, ok := s.fetchers[s.active]; ok {
			return f, nil
		}
	}

	fallback, ok := s.fetchers[to]
	if !ok {
		return nil, &FetchError{
			Message:   fmt.Sprintf("no fetcher registered for fallback mode %q", to),
			Retryable: false,
			Cause:     ErrCauseNotStarted,
		}
	}
	if err := fallback.Start(ctx); err != nil {
		return nil, err
	}

	s.active = to
	s.state = StateDegraded
	s.metadataSink.RecordEvent(metadata.EventModeSwitch, []metadata.Attribute{
		metadata.NewAttr(metadata.AttrFrom, from),
		metadata.NewAttr(metadata.AttrTo, to),
		metadata.NewAttr(metadata.AttrReason, "no_result_from_active_mode"),
	})
	return fallback, nil
}

func (s *Service) fetcherFor(policy resolvedPolicy) (string, Fetcher, failure.ClassifiedError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mode := s.active
	if policy.forcedMode != "" {
		mode = policy.forcedMode
	}
	f, ok := s.fetchers[mode]
	if !ok {
		return mode, nil, &FetchError{
			Message:   fmt.Sprintf("no fetcher registered for mode %q", mode),
			Retryable: false,
			Cause:     ErrCauseNotStarted,
		}
	}
	if policy.forcedMode != "" {
		// Forced fetchers may not have been started with the service.
		if err := f.Start(context.Background()); err != nil {
			return mode, nil, err
		}
	}
	return mode, f, nil
}

func (s *Service) waitForHostSlot(ctx context.Context, host string) {
	delay := s.rateLimiter.ResolveDelay(host)
	if delay > 0 {
		s.sleeper.Sleep(ctx, delay)
	}
}

func (s *Service) lockHost(host string) func() {
	actual, _ := s.hostLocks.LoadOrStore(host, &sync.Mutex{})
	mu := actual.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// noResult reports a transport-level failure with no HTTP outcome.
func noResult(result FetchResult) bool {
	return result.Status == 0 && result.Error != ""
}
