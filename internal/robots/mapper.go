package robots

import (
	"strings"
	"time"
)

// MapResponseToRuleSet converts a RobotsResponse to an immutable ruleSet,
// selecting the most specific user-agent group matching the provided agent.
func MapResponseToRuleSet(response RobotsResponse, targetUserAgent string, fetchedAt time.Time, httpStatus int) ruleSet {
	rs := ruleSet{
		host:       response.Host,
		userAgent:  targetUserAgent,
		fetchedAt:  fetchedAt,
		sourceURL:  "https://" + response.Host + "/robots.txt",
		httpStatus: httpStatus,
	}
	rs.hasGroups = len(response.UserAgents) > 0

	group := findBestMatchingGroup(response.UserAgents, targetUserAgent)
	if group == nil {
		return rs
	}
	rs.matchedGroup = true

	for _, allow := range group.Allows {
		if allow.Path != "" {
			rs.rules = append(rs.rules, pathRule{pattern: normalizePattern(allow.Path), allow: true})
		}
	}
	for _, disallow := range group.Disallows {
		if disallow.Path != "" {
			rs.rules = append(rs.rules, pathRule{pattern: normalizePattern(disallow.Path), allow: false})
		}
	}
	if group.CrawlDelay != nil {
		delay := *group.CrawlDelay
		rs.crawlDelay = &delay
	}
	return rs
}

// findBestMatchingGroup finds the most specific user agent group:
// 1. Exact matches take precedence over prefix matches
// 2. Longer user-agent strings take precedence over shorter ones
// 3. The wildcard (*) matches all user agents, with lowest precedence
func findBestMatchingGroup(groups []UserAgentGroup, targetUserAgent string) *UserAgentGroup {
	var bestMatch *UserAgentGroup
	targetLower := strings.ToLower(targetUserAgent)
	bestMatchLength := 0

	for i := range groups {
		group := &groups[i]
		for _, ua := range group.UserAgents {
			uaLower := strings.ToLower(ua)

			if uaLower == targetLower {
				return group
			}
			if ua == "*" {
				if bestMatch == nil {
					bestMatch = group
				}
				continue
			}
			if strings.HasPrefix(targetLower, uaLower) && len(uaLower) > bestMatchLength {
				bestMatch = group
				bestMatchLength = len(uaLower)
			}
		}
	}
	return bestMatch
}

// Decide evaluates a path against the rule set: longest pattern wins,
// with Allow breaking ties on equal specificity.
func (r ruleSet) Decide(path string) (allowed bool, reason DecisionReason, matched string) {
	if !r.hasGroups {
		return true, EmptyRuleSet, ""
	}
	if !r.matchedGroup {
		return true, UserAgentNotMatched, ""
	}
	if len(r.rules) == 0 {
		return true, NoMatchingRules, ""
	}

	if path == "" {
		path = "/"
	}

	bestLen := -1
	bestAllow := true
	bestPattern := ""
	found := false
	for _, rule := range r.rules {
		if !matchPattern(path, rule.pattern) {
			continue
		}
		specificity := patternSpecificity(rule.pattern)
		switch {
		case specificity > bestLen:
			bestLen = specificity
			bestAllow = rule.allow
			bestPattern = rule.pattern
			found = true
		case specificity == bestLen && rule.allow && !bestAllow:
			// Allow wins ties of equal length.
			bestAllow = true
			bestPattern = rule.pattern
		}
	}

	if !found {
		return true, NoMatchingRules, ""
	}
	if bestAllow {
		return true, AllowedByRobots, bestPattern
	}
	return false, DisallowedByRobots, bestPattern
}

// matchPattern matches a URL path against a robots pattern with `*`
// wildcards and an optional `$` end anchor.
func matchPattern(path, pattern string) bool {
	anchored := strings.HasSuffix(pattern, "$")
	if anchored {
		pattern = strings.TrimSuffix(pattern, "$")
	}

	parts := strings.Split(pattern, "*")

	// First part must match at the start.
	if !strings.HasPrefix(path, parts[0]) {
		return false
	}
	pos := len(parts[0])

	for _, part := range parts[1:] {
		if part == "" {
			// trailing or doubled *, matches anything
			pos = len(path)
			continue
		}
		idx := strings.Index(path[pos:], part)
		if idx < 0 {
			return false
		}
		pos += idx + len(part)
	}

	if anchored {
		// The last literal part must reach the end of the path.
		if len(parts) == 1 || parts[len(parts)-1] != "" {
			return pos == len(path)
		}
	}
	return true
}

// patternSpecificity ranks patterns by their literal length
// (wildcards and anchors don't count).
func patternSpecificity(pattern string) int {
	return len(strings.ReplaceAll(strings.TrimSuffix(pattern, "$"), "*", ""))
}

func normalizePattern(path string) string {
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") && !strings.HasPrefix(path, "*") {
		path = "/" + path
	}
	return path
}

// ruleSet getters for immutability.

func (r ruleSet) Host() string         { return r.host }
func (r ruleSet) UserAgent() string    { return r.userAgent }
func (r ruleSet) FetchedAt() time.Time { return r.fetchedAt }
func (r ruleSet) SourceURL() string    { return r.sourceURL }
func (r ruleSet) HTTPStatus() int      { return r.httpStatus }
func (r ruleSet) CrawlDelay() *time.Duration {
	if r.crawlDelay == nil {
		return nil
	}
	delay := *r.crawlDelay
	return &delay
}
