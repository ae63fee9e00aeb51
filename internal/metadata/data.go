package metadata

import (
	"time"
)

/*
Run events collected
- Fetch timestamps, HTTP status codes, durations
- Fetcher mode switches
- Identity decisions per page and per product
- Consensus outcomes per field
- Provider degradation and budget events
- Final run stats

Structured logging is preferred. Events are append-only and observational.

Allowed attribute values:
- Primitive values
- Timestamps
- URLs (as values, not objects with behavior)
- Hashes
- Status codes
- Durations
- Identifiers (product ID, run ID)
*/

/*
ErrorCause is a closed, canonical classification used exclusively for
observability (logging, metrics, reporting).

Rules:
  - ErrorCause is for observability only.
  - It MUST NOT influence control flow.
  - It MUST NOT be used for retry, continuation, or abort decisions.
  - Pipeline packages MAY map their local errors to ErrorCause,
    but MUST NOT invent new meanings.

If a failure does not clearly match a defined cause, CauseUnknown MUST be used.
*/
type ErrorCause int

const (
	CauseUnknown ErrorCause = iota
	// Failure caused by network transport or remote availability:
	// TCP timeouts, DNS failures, connection resets, robots.txt fetch timeout.
	CauseNetworkFailure
	// Fetching was disallowed by an explicit policy or rule:
	// robots.txt disallow, denied domain, 403/429 interpreted as denial.
	CausePolicyDisallow
	// Content was fetched but could not be processed meaningfully:
	// non-HTML responses, unparseable JSON, broken DOM.
	CauseContentInvalid
	// A page failed the identity gate. Data outcome, recorded for learning.
	CauseIdentityRejection
	// Failure while persisting artifacts: disk full, permissions, I/O.
	CauseStorageFailure
	// An LLM or search provider failed or its circuit opened.
	CauseProviderFailure
	// A cost budget stopped an operation before dispatch.
	CauseBudgetExceeded
	// A system-level invariant was violated.
	CauseInvariantViolation
)

type Attribute struct {
	Key   AttributeKey
	Value string
}

func NewAttr(key AttributeKey, val string) Attribute {
	return Attribute{Key: key, Value: val}
}

type AttributeKey string

const (
	AttrURL        AttributeKey = "url"
	AttrFinalURL   AttributeKey = "final_url"
	AttrHost       AttributeKey = "host"
	AttrDomain     AttributeKey = "domain"
	AttrPath       AttributeKey = "path"
	AttrField      AttributeKey = "field"
	AttrValue      AttributeKey = "value"
	AttrHTTPStatus AttributeKey = "http_status"
	AttrProductID  AttributeKey = "product_id"
	AttrRunID      AttributeKey = "run_id"
	AttrRound      AttributeKey = "round"
	AttrDecision   AttributeKey = "decision"
	AttrReason     AttributeKey = "reason"
	AttrMode       AttributeKey = "mode"
	AttrFrom       AttributeKey = "from"
	AttrTo         AttributeKey = "to"
	AttrProvider   AttributeKey = "provider"
	AttrScore      AttributeKey = "score"
	AttrWritePath  AttributeKey = "write_path"
	AttrMessage    AttributeKey = "message"
)

// EventName is the closed set of structured run events.
type EventName string

const (
	EventFetch            EventName = "fetch"
	EventModeSwitch       EventName = "dynamic_fetcher_mode_switched"
	EventIdentityDecision EventName = "identity_decision"
	EventIdentityOverall  EventName = "identity_overall"
	EventConsensusOutcome EventName = "consensus_outcome"
	EventRoundComplete    EventName = "round_complete"
	EventStopDecision     EventName = "stop_decision"
	EventProviderDegraded EventName = "provider_degraded"
	EventBudgetDropped    EventName = "budget_call_dropped"
	EventArtifactWritten  EventName = "artifact_written"
)

// FetchEvent captures the observable outcome of one fetch.
type FetchEvent struct {
	URL         string
	FinalURL    string
	Status      int
	Duration    time.Duration
	ContentType string
	Bytes       int
	Mode        string
	RetryCount  int
}

/*
RunStats
  - Represents a terminal, derived summary of a completed run
  - Contains only aggregate counts and durations
  - Is computed by the controller after termination
  - Is recorded exactly once
  - Must not influence planning, retries, or run termination
*/
type RunStats struct {
	ProductID      string
	Rounds         int
	PagesFetched   int
	PagesConfirmed int
	FieldsAccepted int
	TotalErrors    int
	Duration       time.Duration
}
