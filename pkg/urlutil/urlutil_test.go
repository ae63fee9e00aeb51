package urlutil_test

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohmanhakim/spec-harvester/pkg/urlutil"
)

func mustParse(t *testing.T, raw string) url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return *u
}

func TestCanonicalize_Normalization(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "lowercases scheme and host, strips www",
			in:   "HTTPS://WWW.Example.COM/Path",
			want: "https://example.com/Path",
		},
		{
			name: "strips default https port",
			in:   "https://example.com:443/p",
			want: "https://example.com/p",
		},
		{
			name: "strips default http port",
			in:   "http://example.com:80/p",
			want: "http://example.com/p",
		},
		{
			name: "removes fragment",
			in:   "https://example.com/p#section-2",
			want: "https://example.com/p",
		},
		{
			name: "removes trailing slash",
			in:   "https://example.com/a/b/",
			want: "https://example.com/a/b",
		},
		{
			name: "collapses dot segments",
			in:   "https://example.com/a/./b/../c",
			want: "https://example.com/a/c",
		},
		{
			name: "sorts query keys",
			in:   "https://example.com/p?b=2&a=1",
			want: "https://example.com/p?a=1&b=2",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := urlutil.Canonicalize(mustParse(t, tt.in))
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestCanonicalize_StripsTrackingParams(t *testing.T) {
	trackers := []string{
		"utm_source", "utm_medium", "utm_campaign", "gclid", "fbclid",
		"msclkid", "mc_cid", "mc_eid", "igshid", "yclid", "ref_src",
	}
	for _, param := range trackers {
		t.Run(param, func(t *testing.T) {
			in := mustParse(t, "https://example.com/p?"+param+"=x&keep=1")
			got := urlutil.Canonicalize(in)
			assert.Equal(t, "keep=1", got.RawQuery)
		})
	}
}

func TestCanonicalize_Idempotent(t *testing.T) {
	inputs := []string{
		"HTTPS://WWW.Example.COM:443/A/B/../c/?utm_source=x&z=1&a=2#frag",
		"http://shop.vendor.co.uk/products/123?gclid=abc",
		"https://example.com",
		"https://example.com/?b=2&a=1&a=0",
	}
	for _, raw := range inputs {
		once := urlutil.Canonicalize(mustParse(t, raw))
		twice := urlutil.Canonicalize(once)
		assert.Equal(t, once.String(), twice.String(), "input %q", raw)
	}
}

func TestPathSignature(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/products/12345/specs", "/products/:num/specs"},
		{"/p/a1b2c3d4e5f6", "/p/:id"},
		{"/p/550e8400-e29b-41d4-a716-446655440000", "/p/:id"},
		{"/products/viper-v3", "/products/viper-v3"},
		{"/", "/"},
		{"", "/"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, urlutil.PathSignature(tt.in), "path %q", tt.in)
	}
}

func TestRootDomain(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"shop.razer.com", "razer.com"},
		{"www.example.co.uk", "example.co.uk"},
		{"example.com:8080", "example.com"},
		{"localhost", "localhost"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, urlutil.RootDomain(tt.in), "host %q", tt.in)
	}
}
