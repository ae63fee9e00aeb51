package extractor

import (
	"encoding/json"

	"github.com/rohmanhakim/spec-harvester/internal/fetcher"
	"github.com/rohmanhakim/spec-harvester/internal/metadata"
	"github.com/rohmanhakim/spec-harvester/pkg/failure"
)

/*
NetworkExtractor

Consumes the recorder's captured JSON exchanges and mines their leaves
by key-name similarity. Captures classified as pricing or reviews are
skipped; they never carry spec fields and their keys collide with real
ones ("weight" in shipping blocks, for instance).
*/

type NetworkExtractor struct {
	metadataSink metadata.MetadataSink
	matcher      *FieldMatcher
}

func NewNetworkExtractor(metadataSink metadata.MetadataSink, matcher *FieldMatcher) NetworkExtractor {
	return NetworkExtractor{
		metadataSink: metadataSink,
		matcher:      matcher,
	}
}

func (n *NetworkExtractor) Extract(page fetcher.FetchResult) ([]Candidate, failure.ClassifiedError) {
	var candidates []Candidate
	for _, capture := range page.Captures {
		switch capture.Class {
		case fetcher.ClassPricing, fetcher.ClassReviews:
			continue
		}
		var payload any
		if err := json.Unmarshal([]byte(capture.Body), &payload); err != nil {
			continue
		}
		walkJSON(payload, "", 0, func(path string, scalar string) {
			rule, ok := n.matcher.MatchKey(path)
			if !ok {
				return
			}
			quote := capture.URL + " " + path + ": " + scalar
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
				Method:     MethodNetworkJSON,
				Evidence: Evidence{
					URL:         page.URL,
					FinalURL:    capture.URL,
					Quote:       quote,
					RetrievedAt: page.FetchedAt,
				},
			}
			applyRuleShape(&candidate, rule)
			candidates = append(candidates, candidate)
		})
	}
	return candidates, nil
}
