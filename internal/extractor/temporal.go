package extractor

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/rohmanhakim/spec-harvester/internal/fetcher"
	"github.com/rohmanhakim/spec-harvester/internal/metadata"
	"github.com/rohmanhakim/spec-harvester/internal/schema"
)

/*
TemporalSignalExtractor

Emits dated hints from the title, URL, body, and captured payloads to
support release-date inference. Hints are ranked by source weight and
precision (day > month > year); the best hint becomes a candidate for
the category's date field.
*/

var (
	reISODate   = regexp.MustCompile(`\b(20\d{2})-(0[1-9]|1[0-2])(?:-(0[1-9]|[12]\d|3[01]))?\b`)
	reMonthYear = regexp.MustCompile(`(?i)\b(january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sep|oct|nov|dec)\.?,?\s+(20\d{2})\b`)
	reYear      = regexp.MustCompile(`\b(20\d{2})\b`)
)

var monthNumbers = map[string]int{
	"january": 1, "jan": 1, "february": 2, "feb": 2, "march": 3, "mar": 3,
	"april": 4, "apr": 4, "may": 5, "june": 6, "jun": 6, "july": 7, "jul": 7,
	"august": 8, "aug": 8, "september": 9, "sep": 9, "october": 10, "oct": 10,
	"november": 11, "nov": 11, "december": 12, "dec": 12,
}

var sourceWeights = map[string]float64{
	"title":   1.0,
	"url":     0.9,
	"network": 0.8,
	"body":    0.6,
}

type TemporalSignalExtractor struct {
	metadataSink metadata.MetadataSink
	dateField    schema.FieldRule
	hasDateField bool
}

// NewTemporalSignalExtractor binds to the category's first date-typed
// field; categories without one still collect hints for reporting.
func NewTemporalSignalExtractor(metadataSink metadata.MetadataSink, ruleset *schema.Ruleset) TemporalSignalExtractor {
	extractor := TemporalSignalExtractor{metadataSink: metadataSink}
	for _, key := range ruleset.Keys() {
		if rule, ok := ruleset.Rule(key); ok && rule.Type == schema.FieldDate {
			extractor.dateField = rule
			extractor.hasDateField = true
			break
		}
	}
	return extractor
}

// Hints collects every dated signal on the page, strongest first.
func (t *TemporalSignalExtractor) Hints(page fetcher.FetchResult, title string) []TemporalHint {
	var hints []TemporalHint
	hints = append(hints, mineDates(title, "title")...)
	hints = append(hints, mineDates(page.FinalURL, "url")...)

	body := string(page.Body)
	if len(body) > 64*1024 {
		body = body[:64*1024]
	}
	hints = append(hints, mineDates(body, "body")...)

	for _, capture := range page.Captures {
		hints = append(hints, mineDates(capture.Body, "network")...)
	}

	sort.SliceStable(hints, func(i, j int) bool {
		if hints[i].Weight != hints[j].Weight {
			return hints[i].Weight > hints[j].Weight
		}
		return hints[i].Precision > hints[j].Precision
	})
	return hints
}

// Extract turns the best hint into a date-field candidate.
func (t *TemporalSignalExtractor) Extract(page fetcher.FetchResult, title string) []Candidate {
	if !t.hasDateField {
		return nil
	}
	hints := t.Hints(page, title)
	if len(hints) == 0 {
		return nil
	}
	best := hints[0]
	return []Candidate{{
		Kind:       KindScalar,
		Field:      t.dateField.Key,
		Value:      best.Value,
		SourceURL:  page.URL,
		Host:       hostOf(page.FinalURL, page.URL),
		RootDomain: rootDomainOf(page.FinalURL, page.URL),
		Method:     MethodTemporal,
		Evidence: Evidence{
			URL:         page.URL,
			FinalURL:    page.FinalURL,
			Quote:       best.Source + " date signal: " + best.Value,
			RetrievedAt: page.FetchedAt,
		},
	}}
}

func mineDates(text, source string) []TemporalHint {
	weight := sourceWeights[source]
	var hints []TemporalHint

	for _, match := range reISODate.FindAllStringSubmatch(text, 8) {
		hint := TemporalHint{Source: source, Weight: weight}
		if match[3] != "" {
			hint.Value = fmt.Sprintf("%s-%s-%s", match[1], match[2], match[3])
			hint.Precision = PrecisionDay
		} else {
			hint.Value = fmt.Sprintf("%s-%s", match[1], match[2])
			hint.Precision = PrecisionMonth
		}
		hints = append(hints, hint)
	}

	for _, match := range reMonthYear.FindAllStringSubmatch(text, 8) {
		month := monthNumbers[strings.ToLower(strings.TrimSuffix(match[1], "."))]
		if month == 0 {
			continue
		}
		hints = append(hints, TemporalHint{
			Value:     fmt.Sprintf("%s-%02d", match[2], month),
			Precision: PrecisionMonth,
			Weight:    weight,
			Source:    source,
		})
	}

	// Bare years only count when nothing more precise matched the text.
	if len(hints) == 0 {
		for _, match := range reYear.FindAllStringSubmatch(text, 4) {
			hints = append(hints, TemporalHint{
				Value:     match[1],
				Precision: PrecisionYear,
				Weight:    weight * 0.7,
				Source:    source,
			})
		}
	}
	return hints
}
