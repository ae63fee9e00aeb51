package extractor

import (
	"encoding/json"
	"strings"
)

// walkJSON visits every scalar leaf of a decoded JSON value, reporting
// its dotted path. Depth is bounded; arrays contribute their element
// values under the parent path so "specs.dpi" matches regardless of
// array position.
func walkJSON(value any, path string, depth int, visit func(path string, scalar string)) {
	if depth > 12 {
		return
	}
	switch v := value.(type) {
	case map[string]any:
		for key, child := range v {
			childPath := key
			if path != "" {
				childPath = path + "." + key
			}
			walkJSON(child, childPath, depth+1, visit)
		}
	case []any:
		for _, child := range v {
			walkJSON(child, path, depth+1, visit)
		}
	default:
		if scalar := stringifyScalar(value); scalar != "" {
			visit(path, scalar)
		}
	}
}

// extractBalancedJSON scans content after marker for the first balanced
// JSON object and decodes it. Used for inline state assignments like
// `window.__INITIAL_STATE__ = {...};` where the payload is embedded in
// a script, not a standalone JSON document.
func extractBalancedJSON(content, marker string) (any, bool) {
	start := strings.Index(content, marker)
	if start < 0 {
		return nil, false
	}
	rest := content[start+len(marker):]
	open := strings.IndexByte(rest, '{')
	if open < 0 {
		return nil, false
	}
	rest = rest[open:]

	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(rest); i++ {
		c := rest[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				var decoded any
				if err := json.Unmarshal([]byte(rest[:i+1]), &decoded); err != nil {
					return nil, false
				}
				return decoded, true
			}
		}
	}
	return nil, false
}
