// Package readable turns raw HTML into article text.
package readable

import (
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"

	"github.com/mohammad-safakhou/credence/tools/web_fetch/models"
)

// Extract runs readability over html and falls back to the visible body text
// when no article can be found. Text is truncated to maxChars runes.
func Extract(html, pageURL string, maxChars int) models.Page {
	sum := sha1.Sum([]byte(html))
	page := models.Page{URL: pageURL, HTMLHash: hex.EncodeToString(sum[:])}

	article, err := readability.FromReader(strings.NewReader(html), parseURL(pageURL))
	if err == nil {
		page.Title = strings.TrimSpace(article.Title)
		page.Byline = strings.TrimSpace(article.Byline)
		page.SiteName = strings.TrimSpace(article.SiteName)
		page.Text = collapse(article.TextContent)
	}
	if page.Text == "" {
		page.Text = bodyText(html)
		if page.Title == "" {
			page.Title = titleText(html)
		}
	}
	page.Text = truncate(page.Text, maxChars)
	return page
}

func bodyText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find("script, style, noscript, nav, footer, header, iframe").Remove()
	return collapse(doc.Find("body").Text())
}

func titleText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// collapse squeezes whitespace runs, keeping paragraph breaks.
func collapse(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.Join(strings.Fields(l), " ")
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

func truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

func parseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		return &url.URL{}
	}
	return u
}
