package robots

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ruleSetFrom(t *testing.T, content, userAgent string) ruleSet {
	t.Helper()
	response := ParseRobotsTxt("example.com", content)
	return MapResponseToRuleSet(response, userAgent, time.Now(), 200)
}

func TestDecide_LongestMatchWins(t *testing.T) {
	rs := ruleSetFrom(t, `
User-agent: *
Disallow: /shop
Allow: /shop/specs
`, "spec-harvester/1.0")

	allowed, reason, matched := rs.Decide("/shop/specs/mouse")
	assert.True(t, allowed)
	assert.Equal(t, AllowedByRobots, reason)
	assert.Equal(t, "/shop/specs", matched)

	allowed, reason, _ = rs.Decide("/shop/cart")
	assert.False(t, allowed)
	assert.Equal(t, DisallowedByRobots, reason)
}

func TestDecide_AllowBreaksEqualLengthTie(t *testing.T) {
	rs := ruleSetFrom(t, `
User-agent: *
Disallow: /p/
Allow: /q/
`, "bot")

	// Craft equal-specificity patterns over the same path.
	rs2 := ruleSetFrom(t, `
User-agent: *
Disallow: /page
Allow: /page
`, "bot")

	allowed, _, _ := rs2.Decide("/page")
	assert.True(t, allowed, "Allow wins ties of equal pattern length")

	allowed, _, _ = rs.Decide("/p/x")
	assert.False(t, allowed)
}

func TestDecide_WildcardAndAnchor(t *testing.T) {
	rs := ruleSetFrom(t, `
User-agent: *
Disallow: /*.pdf$
Disallow: /private*/archive
`, "bot")

	tests := []struct {
		path    string
		allowed bool
	}{
		{"/manual.pdf", false},
		{"/manual.pdf.html", true},
		{"/private2024/archive", false},
		{"/private2024/archives", false},
		{"/privatex/current", true},
	}
	for _, tt := range tests {
		allowed, _, _ := rs.Decide(tt.path)
		assert.Equal(t, tt.allowed, allowed, "path %q", tt.path)
	}
}

func TestDecide_UserAgentGroupSelection(t *testing.T) {
	content := `
User-agent: specbot
Disallow: /

User-agent: *
Allow: /
`
	rs := ruleSetFrom(t, content, "specbot/2.1")
	allowed, _, _ := rs.Decide("/anything")
	assert.False(t, allowed, "prefix match picks the specific group")

	rs = ruleSetFrom(t, content, "otherbot")
	allowed, reason, _ := rs.Decide("/anything")
	assert.True(t, allowed)
	assert.Equal(t, NoMatchingRules, reason)
}

func TestDecide_NoGroups(t *testing.T) {
	rs := ruleSetFrom(t, "", "bot")
	allowed, reason, _ := rs.Decide("/x")
	assert.True(t, allowed)
	assert.Equal(t, EmptyRuleSet, reason)
}

func TestParseRobotsTxt_CrawlDelayAndComments(t *testing.T) {
	response := ParseRobotsTxt("example.com", `
# politeness section
User-agent: *
Crawl-delay: 2.5
Disallow: /checkout  # no harvesting carts
`)
	if assert.Len(t, response.UserAgents, 1) {
		group := response.UserAgents[0]
		if assert.NotNil(t, group.CrawlDelay) {
			assert.Equal(t, 2500*time.Millisecond, *group.CrawlDelay)
		}
		if assert.Len(t, group.Disallows, 1) {
			assert.Equal(t, "/checkout", group.Disallows[0].Path)
		}
	}
}

func TestParseRobotsTxt_SharedAgentRun(t *testing.T) {
	response := ParseRobotsTxt("example.com", `
User-agent: botA
User-agent: botB
Disallow: /x

User-agent: botC
Disallow: /y
`)
	if assert.Len(t, response.UserAgents, 2) {
		assert.Equal(t, []string{"botA", "botB"}, response.UserAgents[0].UserAgents)
		assert.Equal(t, []string{"botC"}, response.UserAgents[1].UserAgents)
	}
}
