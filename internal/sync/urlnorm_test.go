package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"default scheme", "example.com", "https://example.com/"},
		{"lowercase scheme and host", "HTTPS://Example.COM/Path", "https://example.com/Path"},
		{"path preserved case", "https://example.com/A/B", "https://example.com/A/B"},
		{"empty path becomes slash", "http://example.com", "http://example.com/"},
		{"fragment stripped", "https://example.com/page#section", "https://example.com/page"},
		{"query sorted by key", "https://example.com/?b=2&a=1", "https://example.com/?a=1&b=2"},
		{"query sorted by value", "https://example.com/?a=2&a=1", "https://example.com/?a=1&a=2"},
		{"blank values kept", "https://example.com/?flag=&a=1", "https://example.com/?a=1&flag="},
		{"whitespace trimmed", "  https://example.com/  ", "https://example.com/"},
		{"empty input", "   ", ""},
		{"unparsable degrades to raw", "ht tp://%%%", "ht tp://%%%"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, NormalizeURL(tc.in))
		})
	}
}

func TestNormalizeURLIsIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"example.com",
		"https://Example.com/?b=2&a=1#frag",
		"http://example.com/path?x=",
	}

	for _, in := range inputs {
		once := NormalizeURL(in)
		assert.Equal(t, once, NormalizeURL(once), "input %q", in)
	}
}

func TestNormalizeURLMatchesVariants(t *testing.T) {
	t.Parallel()

	// Variants of the same logical URL must normalize identically.
	variants := []string{
		"https://example.com/page?a=1&b=2",
		"HTTPS://EXAMPLE.COM/page?b=2&a=1",
		"https://example.com/page?b=2&a=1#top",
	}

	want := NormalizeURL(variants[0])
	for _, v := range variants[1:] {
		assert.Equal(t, want, NormalizeURL(v), "variant %q", v)
	}
}
