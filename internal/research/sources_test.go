package research

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractDomainFromURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		expected string
	}{
		{"Simple URL", "https://example.com", "example.com"},
		{"URL with www", "https://www.Example.com", "example.com"},
		{"URL with path", "https://shop.example.com/p/1", "shop.example.com"},
		{"URL without scheme", "example.com", "example.com"},
		{"Empty URL", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractDomainFromURL(tt.url))
		})
	}
}

func TestClassifySource(t *testing.T) {
	tests := []struct {
		url      string
		expected string
	}{
		{"https://www.amazon.com/dp/B0", KindAmazon},
		{"https://smile.amazon.co.uk/dp/B0", KindAmazon},
		{"https://old.reddit.com/r/x", KindReddit},
		{"https://www.youtube.com/watch?v=1", KindVideo},
		{"https://vimeo.com/1", KindVideo},
		{"https://www.theverge.com/review", KindNews},
		{"https://news.example.com/a", KindNews},
		{"https://notreddit.com/a", KindWeb},
		{"", KindWeb},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.expected, classifySource(tt.url))
		})
	}
}

func TestStripSymbols(t *testing.T) {
	assert.Equal(t, "Great sound", stripSymbols("Great ✨ sound \U0001F525"))
	assert.Equal(t, "Check it out", stripSymbols("Check✅ it  out⚠️"))
	assert.Equal(t, "café 50% off", stripSymbols("café 50% off"))
}

func TestCleanSnippet(t *testing.T) {
	assert.Equal(t, "Bold claim", cleanSnippet("<b>Bold</b> claim", "fallback"))
	assert.Equal(t, "fallback", cleanSnippet("", "fallback"))
}
