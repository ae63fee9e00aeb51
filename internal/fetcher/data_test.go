package fetcher_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rohmanhakim/spec-harvester/internal/fetcher"
)

func TestFetchResult_Classification(t *testing.T) {
	tests := []struct {
		name          string
		result        fetcher.FetchResult
		ok            bool
		dead          bool
		shouldExtract bool
	}{
		{
			name:          "200 is ok and extractable",
			result:        fetcher.FetchResult{URL: "https://a.com/p", FinalURL: "https://a.com/p", Status: 200},
			ok:            true,
			shouldExtract: true,
		},
		{
			name:   "404 is dead",
			result: fetcher.FetchResult{Status: 404},
			dead:   true,
		},
		{
			name:   "410 is dead",
			result: fetcher.FetchResult{Status: 410},
			dead:   true,
		},
		{
			name:   "451 is dead",
			result: fetcher.FetchResult{Status: 451},
			dead:   true,
		},
		{
			name:   "transport failure is neither ok nor dead",
			result: fetcher.FetchResult{Status: 0, Error: "connection reset"},
		},
		{
			name:   "robots block suppresses extraction",
			result: fetcher.FetchResult{Status: 200, BlockedByRobot: true},
			ok:     true,
		},
		{
			name:   "error with 200 is not ok",
			result: fetcher.FetchResult{Status: 200, Error: "read body: eof"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.result.Ok())
			assert.Equal(t, tt.dead, tt.result.Dead())
			assert.Equal(t, tt.shouldExtract, tt.result.ShouldExtract())
		})
	}
}

func TestFetchResult_Redirect(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		finalURL string
		want     bool
	}{
		{"same url", "https://a.com/p", "https://a.com/p", false},
		{"tracking params only", "https://a.com/p?utm_source=x", "https://a.com/p", false},
		{"www variant", "https://www.a.com/p", "https://a.com/p", false},
		{"real redirect", "https://a.com/old", "https://a.com/new", true},
		{"empty final url", "https://a.com/p", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := fetcher.FetchResult{URL: tt.url, FinalURL: tt.finalURL}
			assert.Equal(t, tt.want, result.Redirect())
		})
	}
}

func TestClassifyResponse(t *testing.T) {
	tests := []struct {
		name        string
		url         string
		contentType string
		body        string
		want        fetcher.ResponseClass
	}{
		{"graphql by url", "https://a.com/api/graphql", "application/json", "{}", fetcher.ClassGraphqlReplay},
		{"specs by url", "https://a.com/api/product-specs", "application/json", "{}", fetcher.ClassSpecs},
		{"pricing by url", "https://a.com/api/pricing", "application/json", "{}", fetcher.ClassPricing},
		{"variant matrix by body", "https://a.com/api/data", "application/json", `{"variants":[{}]}`, fetcher.ClassVariantMatrix},
		{"product payload by body", "https://a.com/api/data", "application/json", `{"product":{"sku":"x"}}`, fetcher.ClassProductPayload},
		{"plain json", "https://a.com/api/data", "application/json", `{"foo":1}`, fetcher.ClassFetchJSON},
		{"non-json unknown", "https://a.com/img.png", "image/png", "", fetcher.ClassUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := fetcher.ClassifyResponse(tt.url, "GET", tt.contentType, tt.body)
			assert.Equal(t, tt.want, got)
		})
	}
}
