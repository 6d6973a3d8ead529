package research

import (
	"net/url"
	"strings"
	"unicode"

	"github.com/jonathan/catalyst/internal/fetch"
	"github.com/jonathan/catalyst/internal/types"
)

// Source kinds
const (
	KindAmazon = "amazon"
	KindReddit = "reddit"
	KindVideo  = "video"
	KindNews   = "news"
	KindWeb    = "web"
)

// minFeatureLength filters out snippets too short to describe a feature
const minFeatureLength = 30

var (
	reviewWords  = []string{"review", "rating", "opinion", "experience"}
	featureWords = []string{"feature", "spec", "include", "comes with", "equipped", "power", "watt"}
	newsDomains  = []string{"news", "techcrunch.com", "theverge.com", "cnet.com", "engadget.com", "forbes.com"}
)

// extractDomainFromURL extracts the host of a URL without a www. prefix
func extractDomainFromURL(urlStr string) string {
	if urlStr == "" {
		return ""
	}

	// Prepend scheme if missing
	if !strings.Contains(urlStr, "://") {
		urlStr = "https://" + urlStr
	}

	parsed, err := url.Parse(urlStr)
	if err != nil {
		return ""
	}

	return strings.TrimPrefix(strings.ToLower(parsed.Host), "www.")
}

func hasDomain(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// classifySource buckets a result by where it was published
func classifySource(link string) string {
	host := extractDomainFromURL(link)
	switch {
	case host == "":
		return KindWeb
	case strings.HasPrefix(host, "amazon.") || strings.Contains(host, ".amazon."):
		return KindAmazon
	case hasDomain(host, "reddit.com"):
		return KindReddit
	case hasDomain(host, "youtube.com") || hasDomain(host, "youtu.be") || hasDomain(host, "vimeo.com"):
		return KindVideo
	}
	for _, d := range newsDomains {
		if strings.Contains(host, d) {
			return KindNews
		}
	}
	return KindWeb
}

// cleanSnippet strips markup and emoji from a search snippet
func cleanSnippet(htmlSnippet, snippet string) string {
	text := snippet
	if htmlSnippet != "" {
		if plain, err := fetch.PlainText(htmlSnippet); err == nil && plain != "" {
			text = plain
		}
	}
	return stripSymbols(text)
}

// stripSymbols drops emoji, pictographs and dingbats and collapses whitespace
func stripSymbols(text string) string {
	var sb strings.Builder
	sb.Grow(len(text))
	for _, r := range text {
		if r > 0xFFFF || (r >= 0x2600 && r <= 0x27BF) || r == 0xFE0F || unicode.Is(unicode.So, r) {
			continue
		}
		sb.WriteRune(r)
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

func containsAny(text string, words []string) bool {
	lower := strings.ToLower(text)
	for _, w := range words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// reviewsFrom keeps snippets from review-heavy sources, plus web snippets that talk about reviews
func reviewsFrom(sources []types.Source) []string {
	var reviews []string
	for _, s := range sources {
		if s.Snippet == "" {
			continue
		}
		switch s.Kind {
		case KindAmazon, KindReddit, KindVideo:
			reviews = append(reviews, s.Snippet)
		default:
			if containsAny(s.Snippet, reviewWords) {
				reviews = append(reviews, s.Snippet)
			}
		}
	}
	return reviews
}

// featuresFrom keeps snippets that describe product capabilities
func featuresFrom(sources []types.Source) []string {
	var features []string
	for _, s := range sources {
		if len(s.Snippet) > minFeatureLength && containsAny(s.Snippet, featureWords) {
			features = append(features, s.Snippet)
		}
	}
	return features
}
