package extractor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/rohmanhakim/spec-harvester/internal/fetcher"
	"github.com/rohmanhakim/spec-harvester/internal/metadata"
	"github.com/rohmanhakim/spec-harvester/pkg/failure"
)

/*
JSONLDExtractor

Parses <script type="application/ld+json"> blocks and surfaces the
properties of Product / Offer typed nodes. Additional-property arrays
(name/value pairs) are the richest source; top-level keys are matched
directly as a fallback.
*/

type JSONLDExtractor struct {
	metadataSink metadata.MetadataSink
	matcher      *FieldMatcher
}

func NewJSONLDExtractor(metadataSink metadata.MetadataSink, matcher *FieldMatcher) JSONLDExtractor {
	return JSONLDExtractor{
		metadataSink: metadataSink,
		matcher:      matcher,
	}
}

func (j *JSONLDExtractor) Extract(page fetcher.FetchResult) ([]Candidate, failure.ClassifiedError) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, &ExtractionError{
			Message:   fmt.Sprintf("parse HTML: %v", err),
			Retryable: false,
			Cause:     ErrCauseNotHTML,
		}
	}

	var candidates []Candidate
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, script *goquery.Selection) {
		var node any
		if err := json.Unmarshal([]byte(script.Text()), &node); err != nil {
			// Broken blocks are common in the wild; other extractors
			// still run, so a parse failure is only worth an event.
			return
		}
		for _, entity := range flattenLDNodes(node) {
			candidates = append(candidates, j.harvestEntity(page, entity)...)
		}
	})
	return candidates, nil
}

// flattenLDNodes unwraps @graph wrappers and arrays into a flat node list.
func flattenLDNodes(node any) []map[string]any {
	var out []map[string]any
	switch v := node.(type) {
	case []any:
		for _, item := range v {
			out = append(out, flattenLDNodes(item)...)
		}
	case map[string]any:
		if graph, ok := v["@graph"].([]any); ok {
			for _, item := range graph {
				out = append(out, flattenLDNodes(item)...)
			}
			return out
		}
		out = append(out, v)
	}
	return out
}

func (j *JSONLDExtractor) harvestEntity(page fetcher.FetchResult, entity map[string]any) []Candidate {
	if !isProductLike(entity) {
		return nil
	}

	var candidates []Candidate
	emit := func(label string, value any) {
		text := stringifyScalar(value)
		if text == "" {
			return
		}
		rule, ok := j.matcher.MatchKey(label)
		if !ok {
			return
		}
		quote := label + ": " + text
		if len(quote) > 200 {
			quote = quote[:200]
		}
		candidate := Candidate{
			Kind:       KindScalar,
			Field:      rule.Key,
			Value:      text,
			SourceURL:  page.URL,
			Host:       hostOf(page.FinalURL, page.URL),
			RootDomain: rootDomainOf(page.FinalURL, page.URL),
			Method:     MethodJSONLD,
			Evidence: Evidence{
				URL:         page.URL,
				FinalURL:    page.FinalURL,
				Quote:       quote,
				RetrievedAt: page.FetchedAt,
			},
		}
		applyRuleShape(&candidate, rule)
		candidates = append(candidates, candidate)
	}

	for key, value := range entity {
		if strings.HasPrefix(key, "@") {
			continue
		}
		switch key {
		case "additionalProperty":
			if props, ok := value.([]any); ok {
				for _, p := range props {
					if prop, ok := p.(map[string]any); ok {
						name := stringifyScalar(prop["name"])
						if name != "" {
							emit(name, prop["value"])
						}
					}
				}
			}
		case "offers":
			for _, offer := range flattenLDNodes(value) {
				for offerKey, offerValue := range offer {
					if !strings.HasPrefix(offerKey, "@") {
						emit(offerKey, offerValue)
					}
				}
			}
		default:
			emit(key, value)
		}
	}
	return candidates
}

func isProductLike(entity map[string]any) bool {
	switch t := entity["@type"].(type) {
	case string:
		return t == "Product" || t == "Offer" || t == "IndividualProduct" || t == "ProductModel"
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && (s == "Product" || s == "Offer") {
				return true
			}
		}
	}
	return false
}

func stringifyScalar(value any) string {
	switch v := value.(type) {
	case string:
		return cleanText(v)
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	case bool:
		return fmt.Sprintf("%t", v)
	case map[string]any:
		// QuantitativeValue-style {value, unitText}
		inner := stringifyScalar(v["value"])
		if inner == "" {
			return ""
		}
		if unit := stringifyScalar(v["unitText"]); unit != "" {
			return inner + " " + unit
		}
		return inner
	}
	return ""
}
