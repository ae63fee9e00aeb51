package redact

import (
	"net/url"
	"regexp"
	"strings"
)

// Applied reports which redaction rules fired, for observability.
type Applied struct {
	Names []string
}

// ParamClass buckets a request parameter name for the network recorder.
type ParamClass int

const (
	ParamPlain ParamClass = iota
	ParamSensitive
	ParamTracking
)

var sensitiveParams = map[string]struct{}{
	"authorization": {},
	"token":         {},
	"password":      {},
	"secret":        {},
	"api_key":       {},
	"apikey":        {},
	"cookie":        {},
	"session":       {},
}

var (
	// Keep this minimal but real: redaction must be bounded + default-safe.
	reBearer      = regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/-]{8,}=*`)
	reGitHubToken = regexp.MustCompile(`\bghp_[A-Za-z0-9]{10,}\b`)
	reAPIKey      = regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{10,}\b`)
	reJWT         = regexp.MustCompile(`\beyJ[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{4,}\b`)
	reKeyValue    = regexp.MustCompile(`(?i)("(?:authorization|token|password|secret|api_key|apikey|cookie|session)"\s*:\s*")[^"]*(")`)
)

// Text scrubs secret-shaped substrings from a recorded body.
func Text(s string) (string, Applied) {
	applied := Applied{}
	out := s

	if reBearer.MatchString(out) {
		out = reBearer.ReplaceAllString(out, "[REDACTED:BEARER]")
		applied.Names = append(applied.Names, "bearer")
	}
	if reGitHubToken.MatchString(out) {
		out = reGitHubToken.ReplaceAllString(out, "[REDACTED:GITHUB_TOKEN]")
		applied.Names = append(applied.Names, "github_token")
	}
	if reAPIKey.MatchString(out) {
		out = reAPIKey.ReplaceAllString(out, "[REDACTED:API_KEY]")
		applied.Names = append(applied.Names, "api_key")
	}
	if reJWT.MatchString(out) {
		out = reJWT.ReplaceAllString(out, "[REDACTED:JWT]")
		applied.Names = append(applied.Names, "jwt")
	}
	if reKeyValue.MatchString(out) {
		out = reKeyValue.ReplaceAllString(out, `${1}[REDACTED]${2}`)
		applied.Names = append(applied.Names, "json_field")
	}

	return out, applied
}

// ClassifyParam buckets a parameter name. Sensitive params are redacted,
// tracking params (utm_*) are categorized separately so Query can drop
// them without treating them as secrets.
func ClassifyParam(name string) ParamClass {
	lower := strings.ToLower(name)
	if strings.HasPrefix(lower, "utm_") {
		return ParamTracking
	}
	if _, ok := sensitiveParams[lower]; ok {
		return ParamSensitive
	}
	return ParamPlain
}

// Query rewrites a raw query string, replacing sensitive parameter values
// and dropping tracking parameters entirely.
func Query(rawQuery string) string {
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return rawQuery
	}
	out := url.Values{}
	for name, vals := range values {
		switch ClassifyParam(name) {
		case ParamTracking:
			continue
		case ParamSensitive:
			out[name] = []string{"[REDACTED]"}
		default:
			out[name] = vals
		}
	}
	return out.Encode()
}
