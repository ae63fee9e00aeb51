package robots

import (
	"bufio"
	"strconv"
	"strings"
	"time"
)

// ParseRobotsTxt parses robots.txt content into user-agent groups.
// Unknown directives are ignored. Consecutive User-agent lines share
// one group; a directive line closes the user-agent run.
func ParseRobotsTxt(host string, content string) RobotsResponse {
	response := RobotsResponse{Host: host}

	var current *UserAgentGroup
	collectingAgents := false

	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		key, value, ok := splitDirective(line)
		if !ok {
			continue
		}

		switch key {
		case "user-agent":
			if !collectingAgents || current == nil {
				response.UserAgents = append(response.UserAgents, UserAgentGroup{})
				current = &response.UserAgents[len(response.UserAgents)-1]
				collectingAgents = true
			}
			current.UserAgents = append(current.UserAgents, value)
		case "allow":
			if current != nil && value != "" {
				current.Allows = append(current.Allows, RuleLine{Path: value})
			}
			collectingAgents = false
		case "disallow":
			if current != nil && value != "" {
				current.Disallows = append(current.Disallows, RuleLine{Path: value})
			}
			collectingAgents = false
		case "crawl-delay":
			if current != nil {
				if seconds, err := strconv.ParseFloat(value, 64); err == nil && seconds > 0 {
					delay := time.Duration(seconds * float64(time.Second))
					current.CrawlDelay = &delay
				}
			}
			collectingAgents = false
		default:
			collectingAgents = false
		}
	}
	return response
}

func splitDirective(line string) (key, value string, ok bool) {
	i := strings.IndexByte(line, ':')
	if i < 0 {
		return "", "", false
	}
	key = strings.ToLower(strings.TrimSpace(line[:i]))
	value = strings.TrimSpace(line[i+1:])
	return key, value, true
}
