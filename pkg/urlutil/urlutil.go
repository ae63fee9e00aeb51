package urlutil

import (
	"net/url"
	"path"
	"sort"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// trackingParams are marketing/attribution query parameters that never
// affect page content and are stripped from the canonical form.
var trackingParams = map[string]struct{}{
	"gclid":   {},
	"fbclid":  {},
	"msclkid": {},
	"mc_cid":  {},
	"mc_eid":  {},
	"igshid":  {},
	"yclid":   {},
	"ref_src": {},
}

// Canonicalize applies a deterministic normalization to a URL, producing a
// canonical form. It maps equivalent URL spellings to a single canonical
// representation.
//
// The normalization follows these rules:
//   - Scheme and host are lowercased; a leading "www." is stripped
//   - Default ports are omitted (:80 for http, :443 for https)
//   - Path is collapsed (dot segments resolved, trailing slashes removed)
//   - Fragments are removed
//   - Tracking parameters (utm_*, gclid, fbclid, ...) are stripped
//   - Remaining query parameters are sorted by key
//
// Properties:
//   - Pure: no state, no memory
//   - Deterministic: same input always produces same output
//   - Idempotent: Canonicalize(Canonicalize(url)) == Canonicalize(url)
//   - Context-free: does not depend on crawl history
func Canonicalize(sourceUrl url.URL) url.URL {
	canonical := sourceUrl

	canonical.Scheme = lowerASCII(canonical.Scheme)
	canonical.Host = lowerASCII(canonical.Host)

	// Strip a single leading "www." label
	if host, port := canonical.Hostname(), canonical.Port(); strings.HasPrefix(host, "www.") && len(host) > len("www.") {
		host = host[len("www."):]
		if port != "" {
			canonical.Host = host + ":" + port
		} else {
			canonical.Host = host
		}
	}

	// Remove default port if present
	if host, port := canonical.Hostname(), canonical.Port(); port != "" {
		if (canonical.Scheme == "http" && port == "80") ||
			(canonical.Scheme == "https" && port == "443") {
			canonical.Host = host
		}
	}

	// Collapse the path: resolve dot segments, drop trailing slashes (except root)
	if canonical.Path != "" {
		cleaned := path.Clean(canonical.Path)
		if cleaned == "." {
			cleaned = "/"
		}
		canonical.Path = cleaned
		canonical.RawPath = ""
	}

	// Remove fragment (anchor)
	canonical.Fragment = ""
	canonical.RawFragment = ""

	// Strip tracking params, sort the remainder
	canonical.RawQuery = normalizeQuery(canonical.RawQuery)
	canonical.ForceQuery = false

	return canonical
}

// CanonicalString parses raw, canonicalizes, and re-serializes it.
// Invalid URLs are returned unchanged.
func CanonicalString(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	c := Canonicalize(*u)
	return c.String()
}

// PathSignature reduces a URL path to a structural signature by replacing
// volatile segments: all-numeric segments become ":num" and hex-looking
// identifier segments become ":id". Two product pages that differ only in
// their numeric id share a signature, which is what dead-path learning keys on.
func PathSignature(p string) string {
	if p == "" || p == "/" {
		return "/"
	}
	segments := strings.Split(strings.Trim(path.Clean(p), "/"), "/")
	for i, seg := range segments {
		switch {
		case isNumeric(seg):
			segments[i] = ":num"
		case isHexID(seg):
			segments[i] = ":id"
		}
	}
	return "/" + strings.Join(segments, "/")
}

// RootDomain returns the registrable domain of a host (eTLD+1),
// e.g. "shop.razer.com" -> "razer.com". Falls back to the bare host
// when the public suffix list cannot resolve it.
func RootDomain(host string) string {
	host = strings.TrimSuffix(lowerASCII(host), ".")
	if i := strings.LastIndex(host, ":"); i >= 0 {
		host = host[:i]
	}
	root, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return root
}

// Resolve makes a possibly-relative URL absolute against a base.
func Resolve(u url.URL, base url.URL) url.URL {
	return *base.ResolveReference(&u)
}

func normalizeQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return rawQuery
	}
	keys := make([]string, 0, len(values))
	for key := range values {
		if isTrackingParam(key) {
			continue
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, key := range keys {
		vals := values[key]
		sort.Strings(vals)
		for _, v := range vals {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(key))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

func isTrackingParam(key string) bool {
	key = lowerASCII(key)
	if strings.HasPrefix(key, "utm_") {
		return true
	}
	_, tracked := trackingParams[key]
	return tracked
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// isHexID reports whether a segment looks like an opaque hex identifier:
// at least 8 chars, only hex digits and dashes, containing at least one
// decimal digit (so neither "products" nor an all-letter hex word like
// "deadbeef" counts).
func isHexID(s string) bool {
	if len(s) < 8 {
		return false
	}
	hasDigit := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			hasDigit = true
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		case c == '-':
			// uuid-style separators
		default:
			return false
		}
	}
	return hasDigit
}

// lowerASCII converts ASCII characters to lowercase without allocating
// when the input is already lowercase.
func lowerASCII(s string) string {
	var needsLower bool
	for i := 0; i < len(s); i++ {
		if s[i] >= 'A' && s[i] <= 'Z' {
			needsLower = true
			break
		}
	}
	if !needsLower {
		return s
	}
	b := make([]byte, len(s))
	copy(b, s)
	for i := 0; i < len(b); i++ {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}
