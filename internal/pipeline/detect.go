package pipeline

import (
	"regexp"

	"github.com/mohammad-safakhou/credence/internal/helpers"
)

// Explicit modes of the fact-check pipeline.
const (
	InputHTML = "html"
	InputText = "text"
)

var (
	htmlTagPattern      = regexp.MustCompile(`(?i)</?(a|p|div|span|ul|ol|li|h[1-6]|br|table|blockquote|strong|em|sup|cite)\b[^>]*>`)
	markdownLinkPattern = regexp.MustCompile(`\[[^\]]+\]\(https?://[^\)]+\)|(?m)^\s*\[\d+\]\s*:\s*https?://`)
)

// DetectInputMode picks the fact-check variant for content: html when it
// carries HTML tags, markdown links or at least two bare URLs.
func DetectInputMode(content string) string {
	if htmlTagPattern.MatchString(content) || markdownLinkPattern.MatchString(content) {
		return InputHTML
	}
	if len(helpers.ExtractURLs(content)) >= 2 {
		return InputHTML
	}
	return InputText
}
