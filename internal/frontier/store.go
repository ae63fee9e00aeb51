package frontier

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rohmanhakim/spec-harvester/pkg/failure"
	"github.com/rohmanhakim/spec-harvester/pkg/fileutil"
	"github.com/rohmanhakim/spec-harvester/pkg/hashutil"
	"github.com/rohmanhakim/spec-harvester/pkg/timeutil"
	"github.com/rohmanhakim/spec-harvester/pkg/urlutil"
)

// Store is the durable frontier for one category. A single process owns
// the writer; all access is serialized through the store's mutex.
type Store struct {
	mu        sync.Mutex
	path      string
	policy    CooldownPolicy
	clock     timeutil.Clock
	urls      map[string]*URLRecord
	queries   map[string]*QueryRecord
	yields    []YieldRecord
	pathStats map[string]*pathStat
	dirty     bool
}

// storeFile is the on-disk shape.
type storeFile struct {
	URLs      map[string]*URLRecord   `json:"urls"`
	Queries   map[string]*QueryRecord `json:"queries"`
	Yields    []YieldRecord           `json:"yields"`
	PathStats map[string]*pathStat    `json:"path_stats"`
}

// NewStore opens (or initializes) the frontier backing file.
func NewStore(path string, policy CooldownPolicy, clock timeutil.Clock) (*Store, failure.ClassifiedError) {
	s := &Store{
		path:      path,
		policy:    policy,
		clock:     clock,
		urls:      make(map[string]*URLRecord),
		queries:   make(map[string]*QueryRecord),
		pathStats: make(map[string]*pathStat),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Canonicalize normalizes a raw URL into its canonical form, domain, and
// path signature. Pure; exposed on the store because frontier keys are
// defined by this normalization.
func (s *Store) Canonicalize(rawURL string) (CanonicalForm, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return CanonicalForm{}, fmt.Errorf("canonicalize: %w", err)
	}
	canonical := urlutil.Canonicalize(*parsed)
	return CanonicalForm{
		CanonicalURL: canonical.String(),
		Domain:       urlutil.RootDomain(canonical.Host),
		PathSig:      urlutil.PathSignature(canonical.Path),
	}, nil
}

// QueryHash derives the stable identity of (productId, query).
func QueryHash(productID, query string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	return hashutil.ShortHash(productID+"||"+normalized, 16)
}

// ShouldSkipQuery returns true when the query was dispatched for this
// product within the cooldown window. force always answers false.
func (s *Store) ShouldSkipQuery(productID, query string, force bool) bool {
	if force {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.queries[QueryHash(productID, query)]
	if !ok {
		return false
	}
	return s.clock.Now().Sub(record.LastTs) < s.policy.QueryCooldown
}

// RecordQuery upserts the query record, bounding results to 25 entries
// and snippets to 400 characters.
func (s *Store) RecordQuery(productID, query, provider string, fields []string, results []SearchHit) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	hash := QueryHash(productID, query)

	if len(results) > 25 {
		results = results[:25]
	}
	bounded := make([]SearchHit, len(results))
	copy(bounded, results)
	for i := range bounded {
		if len(bounded[i].Snippet) > 400 {
			bounded[i].Snippet = bounded[i].Snippet[:400]
		}
	}

	record, ok := s.queries[hash]
	if !ok {
		record = &QueryRecord{
			QueryHash: hash,
			ProductID: productID,
			Query:     query,
			FirstTs:   now,
		}
		s.queries[hash] = record
	}
	record.Attempts++
	record.LastTs = now
	record.Provider = provider
	record.Fields = fields
	record.Results = bounded
	s.dirty = true
}

// ShouldSkipUrl answers whether a URL should be skipped this round:
// tombstoned, under cooldown, or matching a learned dead-path pattern.
// force bypasses everything except tombstones.
func (s *Store) ShouldSkipUrl(rawURL string, force bool) SkipVerdict {
	form, err := s.Canonicalize(rawURL)
	if err != nil {
		return SkipVerdict{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.urls[form.CanonicalURL]
	if ok && record.State == StateTombstoned {
		return SkipVerdict{Skip: true, Reason: ReasonTombstoned}
	}
	if force {
		return SkipVerdict{}
	}

	now := s.clock.Now()
	if ok && record.Cooldown.Active(now) {
		return SkipVerdict{
			Skip:        true,
			Reason:      record.Cooldown.Reason,
			NextRetryTs: record.Cooldown.NextRetryTs,
		}
	}

	// Dead-path learning: a (domain, pathSig) with repeated 404s and no
	// successful fetch is presumed structurally dead.
	if stat, ok := s.pathStats[pathKey(form.Domain, form.PathSig)]; ok {
		if stat.NotFound >= s.policy.PathPenaltyCount && stat.Ok == 0 {
			return SkipVerdict{Skip: true, Reason: ReasonPathPenalty}
		}
	}
	return SkipVerdict{}
}

// FetchOutcome carries everything RecordFetch persists about one fetch.
type FetchOutcome struct {
	URL            string
	Status         int
	FetchedAt      time.Time
	ContentHash    string
	Redirected     bool
	BlockedByRobot bool
	FieldsFound    []string
	// Confidence, when non-nil, feeds the record's running mean.
	Confidence    *float64
	ConflictDelta int
}

// RecordFetch applies a fetch outcome to the URL record: status-bucket
// counters, discovered fields, running confidence mean, cooldown, and
// lifecycle state. Re-delivery of an identical (status, ts, contentHash)
// tuple is deduplicated except for the monotonic fetch counter.
func (s *Store) RecordFetch(outcome FetchOutcome) {
	form, err := s.Canonicalize(outcome.URL)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = true

	record, ok := s.urls[form.CanonicalURL]
	if !ok {
		record = &URLRecord{
			CanonicalURL: form.CanonicalURL,
			Domain:       form.Domain,
			PathSig:      form.PathSig,
			State:        StateLive,
		}
		s.urls[form.CanonicalURL] = record
	}

	fetchKey := fmt.Sprintf("%d|%d|%s", outcome.Status, outcome.FetchedAt.UnixMilli(), outcome.ContentHash)
	record.FetchCount++
	if record.LastFetchKey == fetchKey {
		// Idempotent re-delivery: only the monotonic counter moves.
		return
	}
	record.LastFetchKey = fetchKey
	record.LastSeen = outcome.FetchedAt

	stat := s.pathStats[pathKey(form.Domain, form.PathSig)]
	if stat == nil {
		stat = &pathStat{}
		s.pathStats[pathKey(form.Domain, form.PathSig)] = stat
	}

	switch {
	case outcome.BlockedByRobot:
		record.BlockedCount++
	case outcome.Status == 404:
		record.NotFoundCount++
		stat.NotFound++
	case IsTombstoneStatus(outcome.Status):
		record.GoneCount++
	case outcome.Status == 403 || outcome.Status == 429:
		record.BlockedCount++
	case outcome.Status >= 500:
		record.ServerErrorCount++
	case outcome.Status == 0:
		record.TimeoutCount++
	case outcome.Status >= 200 && outcome.Status < 400:
		record.OkCount++
		stat.Ok++
		if outcome.Redirected {
			record.RedirectCount++
		}
	}

	for _, field := range outcome.FieldsFound {
		if !contains(record.FieldsFound, field) {
			record.FieldsFound = append(record.FieldsFound, field)
		}
	}
	if outcome.Confidence != nil {
		record.ConfidenceSamples++
		n := float64(record.ConfidenceSamples)
		record.AvgConfidence += (*outcome.Confidence - record.AvgConfidence) / n
	}
	record.ConflictCount += outcome.ConflictDelta

	// Lifecycle + cooldown. Robots blocks escalate like 403 but never
	// tombstone; real 410/451 are terminal.
	cooldownStatus := outcome.Status
	if outcome.BlockedByRobot {
		cooldownStatus = 403
	}
	duration, reason := CooldownFor(cooldownStatus, record.FetchCount, record.NotFoundCount, s.policy)
	if duration > 0 {
		record.Cooldown = Cooldown{
			NextRetryTs: outcome.FetchedAt.Add(duration),
			Reason:      reason,
			Seconds:     int64(duration / time.Second),
		}
		record.State = StateSleeping
	} else {
		record.Cooldown = Cooldown{}
		record.State = StateLive
	}
	if !outcome.BlockedByRobot && IsTombstoneStatus(outcome.Status) {
		record.State = StateTombstoned
	}
}

// RecordYield appends to the yields ledger and folds the observation into
// the URL record: discovered field, running confidence mean, conflicts.
func (s *Store) RecordYield(rawURL, field, valueHash string, confidence float64, conflict bool) {
	form, err := s.Canonicalize(rawURL)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = true

	s.yields = append(s.yields, YieldRecord{
		CanonicalURL: form.CanonicalURL,
		Field:        field,
		ValueHash:    valueHash,
		Confidence:   confidence,
		Conflict:     conflict,
		ObservedAt:   s.clock.Now(),
	})

	record, ok := s.urls[form.CanonicalURL]
	if !ok {
		return
	}
	if !contains(record.FieldsFound, field) {
		record.FieldsFound = append(record.FieldsFound, field)
	}
	record.ConfidenceSamples++
	record.AvgConfidence += (confidence - record.AvgConfidence) / float64(record.ConfidenceSamples)
	if conflict {
		record.ConflictCount++
	}
}

// RankPenaltyForUrl scores a URL's history into [-1.5, +0.5] for source
// planning: dead and conflict-heavy URLs sink, URLs on consistently
// confident domains float.
func (s *Store) RankPenaltyForUrl(rawURL string) float64 {
	form, err := s.Canonicalize(rawURL)
	if err != nil {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.urls[form.CanonicalURL]
	if !ok {
		return 0
	}

	penalty := 0.0
	if record.NotFoundCount > 0 || record.GoneCount > 0 {
		penalty -= 0.6
	}
	if record.BlockedCount > 0 {
		penalty -= 0.3
	}
	if record.ConflictCount > 0 {
		weight := float64(record.ConflictCount) / 3.0
		if weight > 1 {
			weight = 1
		}
		penalty -= 0.4 * weight
	}
	if s.domainMeanConfidenceLocked(record.Domain) > 0.6 {
		penalty += 0.3
	}

	if penalty < -1.5 {
		penalty = -1.5
	}
	if penalty > 0.5 {
		penalty = 0.5
	}
	return penalty
}

// SnapshotForProduct aggregates the frontier state relevant to a product:
// its queries, distinct known URLs, per-field yield counts, and up to 200
// live cooldowns.
func (s *Store) SnapshotForProduct(productID string) ProductSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := ProductSnapshot{
		ProductID:   productID,
		FieldYields: make(map[string]int),
	}
	for _, record := range s.queries {
		if record.ProductID == productID {
			snapshot.Queries = append(snapshot.Queries, *record)
		}
	}
	sort.Slice(snapshot.Queries, func(i, j int) bool {
		return snapshot.Queries[i].LastTs.Before(snapshot.Queries[j].LastTs)
	})

	snapshot.DistinctURLs = len(s.urls)
	for _, yield := range s.yields {
		snapshot.FieldYields[yield.Field]++
	}

	now := s.clock.Now()
	for _, record := range s.urls {
		if record.Cooldown.Active(now) {
			snapshot.LiveCooldowns = append(snapshot.LiveCooldowns, record.Cooldown)
			if len(snapshot.LiveCooldowns) >= 200 {
				break
			}
		}
	}
	return snapshot
}

// URLRecordFor returns a copy of the record for a URL, if known.
func (s *Store) URLRecordFor(rawURL string) (URLRecord, bool) {
	form, err := s.Canonicalize(rawURL)
	if err != nil {
		return URLRecord{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.urls[form.CanonicalURL]
	if !ok {
		return URLRecord{}, false
	}
	return *record, true
}

// Save persists the store with atomic-write semantics. No-op when clean.
func (s *Store) Save() failure.ClassifiedError {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}

	file := storeFile{
		URLs:      s.urls,
		Queries:   s.queries,
		Yields:    s.yields,
		PathStats: s.pathStats,
	}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return &StoreError{
			Message:   fmt.Sprintf("marshal frontier: %v", err),
			Retryable: false,
			Cause:     ErrCauseEncoding,
		}
	}
	if err := fileutil.WriteFileAtomic(s.path, data); err != nil {
		return &StoreError{
			Message:   err.Error(),
			Retryable: true,
			Cause:     ErrCausePersistence,
		}
	}
	s.dirty = false
	return nil
}

func (s *Store) load() failure.ClassifiedError {
	data, err := readIfExists(s.path)
	if err != nil {
		return &StoreError{
			Message:   err.Error(),
			Retryable: true,
			Cause:     ErrCausePersistence,
		}
	}
	if data == nil {
		return nil
	}
	file := storeFile{}
	if err := json.Unmarshal(data, &file); err != nil {
		return &StoreError{
			Message:   fmt.Sprintf("parse frontier: %v", err),
			Retryable: false,
			Cause:     ErrCauseEncoding,
		}
	}
	if file.URLs != nil {
		s.urls = file.URLs
	}
	if file.Queries != nil {
		s.queries = file.Queries
	}
	s.yields = file.Yields
	if file.PathStats != nil {
		s.pathStats = file.PathStats
	}
	return nil
}

// domainMeanConfidenceLocked averages AvgConfidence across the domain's
// sampled URLs. Caller holds s.mu.
func (s *Store) domainMeanConfidenceLocked(domain string) float64 {
	var sum float64
	var n int
	for _, record := range s.urls {
		if record.Domain == domain && record.ConfidenceSamples > 0 {
			sum += record.AvgConfidence
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func pathKey(domain, pathSig string) string {
	return domain + "|" + pathSig
}

func contains(list []string, item string) bool {
	for _, v := range list {
		if v == item {
			return true
		}
	}
	return false
}
