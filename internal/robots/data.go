package robots

/*
Responsibilities

- Fetch robots.txt per origin
- Cache rules for the run duration (per scheme://host)
- Answer allow/disallow before any page fetch

Robots checks occur before a URL is dispatched to a fetcher.
*/

import (
	"time"
)

// pathRule is one Allow/Disallow pattern. Patterns support `*` wildcards
// and a `$` end anchor.
type pathRule struct {
	pattern string
	allow   bool
}

// ruleSet holds the resolved rules for one (host, user-agent) pair.
type ruleSet struct {
	host      string
	userAgent string

	rules []pathRule

	// Optional crawl delay from robots.txt
	crawlDelay *time.Duration

	fetchedAt time.Time
	sourceURL string

	// matchedGroup indicates if a user-agent group was matched
	// (not even the wildcard * when false).
	matchedGroup bool

	// hasGroups indicates if the robots.txt had any user-agent groups
	// at all (false for 404 or empty files).
	hasGroups bool

	// httpStatus of the robots.txt response (0 for fetch failure).
	httpStatus int
}

type DecisionReason string

const (
	AllowedByRobots     DecisionReason = "allowed_by_robots"
	DisallowedByRobots  DecisionReason = "disallowed_by_robots"
	UserAgentNotMatched DecisionReason = "user_agent_not_matched"
	EmptyRuleSet        DecisionReason = "empty_rule_set"
	NoMatchingRules     DecisionReason = "no_matching_rules"
	RobotsMissing       DecisionReason = "robots_missing_or_unavailable"
	DeniedDomain        DecisionReason = "denied_domain"
)

// Decision is the answer to CanFetch.
type Decision struct {
	URL     string
	Allowed bool
	Reason  DecisionReason

	// RobotsURL is the robots.txt consulted.
	RobotsURL string
	// MatchedRule is the winning pattern, when one matched.
	MatchedRule string
	// Status is the HTTP status of the robots.txt fetch.
	Status int

	// Optional delay override (robots crawl-delay).
	CrawlDelay *time.Duration
}

// RuleLine is one raw Allow/Disallow line.
type RuleLine struct {
	Path string `json:"path"`
}

// UserAgentGroup is one parsed user-agent block.
type UserAgentGroup struct {
	UserAgents []string       `json:"user_agents"`
	Allows     []RuleLine     `json:"allows,omitempty"`
	Disallows  []RuleLine     `json:"disallows,omitempty"`
	CrawlDelay *time.Duration `json:"crawl_delay,omitempty"`
}

// RobotsResponse is the parsed robots.txt document.
type RobotsResponse struct {
	Host       string           `json:"host"`
	UserAgents []UserAgentGroup `json:"user_agents,omitempty"`
}
