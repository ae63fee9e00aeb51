package extractor

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"github.com/rohmanhakim/spec-harvester/internal/fetcher"
	"github.com/rohmanhakim/spec-harvester/internal/metadata"
	"github.com/rohmanhakim/spec-harvester/pkg/failure"
)

/*
EmbeddedStateExtractor

Harvests framework hydration state: __NEXT_DATA__ (a JSON script tag),
plus __NUXT__, __APOLLO_STATE__, and window.__INITIAL_STATE__ (inline
assignments mined with a balanced-brace scan). Leaf keys resolve to
field rules by name similarity.
*/

var inlineStateMarkers = []string{
	"window.__NUXT__",
	"__APOLLO_STATE__",
	"window.__INITIAL_STATE__",
}

type EmbeddedStateExtractor struct {
	metadataSink metadata.MetadataSink
	matcher      *FieldMatcher
}

func NewEmbeddedStateExtractor(metadataSink metadata.MetadataSink, matcher *FieldMatcher) EmbeddedStateExtractor {
	return EmbeddedStateExtractor{
		metadataSink: metadataSink,
		matcher:      matcher,
	}
}

func (e *EmbeddedStateExtractor) Extract(page fetcher.FetchResult) ([]Candidate, failure.ClassifiedError) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, &ExtractionError{
			Message:   fmt.Sprintf("parse HTML: %v", err),
			Retryable: false,
			Cause:     ErrCauseNotHTML,
		}
	}

	var candidates []Candidate

	// Next.js ships pure JSON in a dedicated script tag.
	doc.Find(`script#__NEXT_DATA__`).Each(func(_ int, script *goquery.Selection) {
		var state any
		if err := json.Unmarshal([]byte(script.Text()), &state); err != nil {
			return
		}
		candidates = append(candidates, e.mineState(page, state, "__NEXT_DATA__")...)
	})

	// Inline assignments need the balanced-brace scan.
	body := string(page.Body)
	for _, marker := range inlineStateMarkers {
		if state, ok := extractBalancedJSON(body, marker); ok {
			candidates = append(candidates, e.mineState(page, state, marker)...)
		}
	}
	return candidates, nil
}

func (e *EmbeddedStateExtractor) mineState(page fetcher.FetchResult, state any, origin string) []Candidate {
	var candidates []Candidate
	walkJSON(state, "", 0, func(path string, scalar string) {
		rule, ok := e.matcher.MatchKey(path)
		if !ok {
			return
		}
		quote := origin + " " + path + ": " + scalar
		if len(quote) > 200 {
			quote = quote[:200]
		}
		candidate := Candidate{
			Kind:       KindScalar,
			Field:      rule.Key,
			Value:      scalar,
			SourceURL:  page.URL,
			Host:       hostOf(page.FinalURL, page.URL),
			RootDomain: rootDomainOf(page.FinalURL, page.URL),
			Method:     MethodEmbeddedState,
			Evidence: Evidence{
				URL:         page.URL,
				FinalURL:    page.FinalURL,
				Quote:       quote,
				RetrievedAt: page.FetchedAt,
			},
		}
		applyRuleShape(&candidate, rule)
		candidates = append(candidates, candidate)
	})
	return candidates
}
