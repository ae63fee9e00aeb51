package fetcher

import (
	"strings"
)

// ClassifyResponse buckets a captured network response from its URL, its
// method, and a bounded look at its body. Heuristic by design; the
// endpoint miner aggregates over many observations.
func ClassifyResponse(rawURL, method, contentType, body string) ResponseClass {
	lowerURL := strings.ToLower(rawURL)
	lowerBody := body
	if len(lowerBody) > 4096 {
		lowerBody = lowerBody[:4096]
	}
	lowerBody = strings.ToLower(lowerBody)

	if strings.Contains(lowerURL, "graphql") {
		return ClassGraphqlReplay
	}

	switch {
	case containsAny(lowerURL, "variant", "variation", "sku-matrix"):
		return ClassVariantMatrix
	case containsAny(lowerURL, "spec", "technical", "datasheet"):
		return ClassSpecs
	case containsAny(lowerURL, "price", "pricing", "offer", "availability"):
		return ClassPricing
	case containsAny(lowerURL, "review", "rating", "comment"):
		return ClassReviews
	case containsAny(lowerURL, "product", "item", "pdp", "catalog"):
		return ClassProductPayload
	}

	if strings.Contains(contentType, "json") {
		switch {
		case containsAny(lowerBody, `"variants"`, `"variant_matrix"`):
			return ClassVariantMatrix
		case containsAny(lowerBody, `"specs"`, `"specifications"`, `"tech_specs"`):
			return ClassSpecs
		case containsAny(lowerBody, `"price"`, `"currency"`, `"offers"`):
			return ClassPricing
		case containsAny(lowerBody, `"reviews"`, `"rating"`):
			return ClassReviews
		case containsAny(lowerBody, `"product"`, `"sku"`, `"mpn"`):
			return ClassProductPayload
		}
		return ClassFetchJSON
	}
	return ClassUnknown
}

func containsAny(s string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return false
}
