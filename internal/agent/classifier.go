package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/mohammad-safakhou/credence/internal/helpers"
)

// Content types.
const (
	TypeNewsArticle         = "news_article"
	TypeOpinionColumn       = "opinion_column"
	TypeAnalysisPiece       = "analysis_piece"
	TypeSocialMediaPost     = "social_media_post"
	TypePressRelease        = "press_release"
	TypeBlogPost            = "blog_post"
	TypeAcademicPaper       = "academic_paper"
	TypeInterviewTranscript = "interview_transcript"
	TypeSpeechTranscript    = "speech_transcript"
	TypeLLMOutput           = "llm_output"
	TypeOfficialStatement   = "official_statement"
	TypeAdvertisement       = "advertisement"
	TypeSatire              = "satire"
	TypeOther               = "other"
)

// Realms.
const (
	RealmPolitical     = "political"
	RealmEconomic      = "economic"
	RealmScientific    = "scientific"
	RealmHealth        = "health"
	RealmSocial        = "social"
	RealmEnvironmental = "environmental"
	RealmInternational = "international"
	RealmLegal         = "legal"
	RealmEntertainment = "entertainment"
	RealmSports        = "sports"
	RealmTechnology    = "technology"
	RealmMilitary      = "military"
	RealmOther         = "other"
)

const (
	shortWords        = 200
	longWords         = 1500
	maxClassifyChars  = 15000
	referenceDetected = "Detected source references"
)

var (
	htmlAnchorPattern  = regexp.MustCompile(`(?i)<\s*a\s+[^>]*href\s*=\s*["']([^"']+)["'][^>]*>`)
	markdownRefPattern = regexp.MustCompile(`(?m)^\s*\[(\d+)\]\s*:\s*(https?://[^\s]+)`)
	inlineLinkPattern  = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^\)]+)\)`)
)

// Classification is the Stage 1 content classification.
type Classification struct {
	ContentType           string   `json:"content_type"`
	ContentTypeConfidence float64  `json:"content_type_confidence"`
	ContentTypeReasoning  string   `json:"content_type_reasoning,omitempty"`
	Realm                 string   `json:"realm"`
	SubRealm              string   `json:"sub_realm,omitempty"`
	RealmConfidence       float64  `json:"realm_confidence"`
	HasHTMLReferences     bool     `json:"has_html_references"`
	HasMarkdownReferences bool     `json:"has_markdown_references"`
	ReferenceCount        int      `json:"reference_count"`
	ReferenceURLs         []string `json:"reference_urls"`
	Language              string   `json:"detected_language"`
	Country               string   `json:"detected_country,omitempty"`
	GeographicScope       string   `json:"geographic_scope"`
	Length                string   `json:"content_length"`
	WordCount             int      `json:"word_count_estimate"`
	Formality             string   `json:"formality_level"`
	Purpose               string   `json:"apparent_purpose"`
	IsLLMOutput           bool     `json:"is_likely_llm_output"`
	LLMIndicators         []string `json:"llm_output_indicators"`
	Publication           string   `json:"publication_name,omitempty"`
	Characteristics       []string `json:"notable_characteristics,omitempty"`
	Confidence            float64  `json:"overall_confidence"`
	Notes                 string   `json:"classification_notes,omitempty"`
}

// References is the deterministic link pre-pass.
type References struct {
	HTML     bool
	Markdown bool
	URLs     []string
}

// DetectReferences finds HTML anchors, markdown reference definitions and
// inline markdown links.
func DetectReferences(content string) References {
	var refs References
	var urls []string
	if m := htmlAnchorPattern.FindAllStringSubmatch(content, -1); len(m) > 0 {
		refs.HTML = true
		for _, g := range m {
			urls = append(urls, g[1])
		}
	}
	if strings.Contains(strings.ToLower(content), "<a") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(content)); err == nil {
			doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
				if href, ok := s.Attr("href"); ok && strings.HasPrefix(href, "http") {
					refs.HTML = true
					urls = append(urls, href)
				}
			})
		}
	}
	if m := markdownRefPattern.FindAllStringSubmatch(content, -1); len(m) > 0 {
		refs.Markdown = true
		for _, g := range m {
			urls = append(urls, g[2])
		}
	}
	if m := inlineLinkPattern.FindAllStringSubmatch(content, -1); len(m) > 0 {
		refs.Markdown = true
		for _, g := range m {
			urls = append(urls, g[2])
		}
	}
	refs.URLs = helpers.DedupeURLs(urls)
	return refs
}

// DefaultClassification is substituted when the classifier fails.
func DefaultClassification(reason string) Classification {
	return Classification{
		ContentType:           TypeOther,
		ContentTypeConfidence: 0.5,
		Realm:                 RealmOther,
		RealmConfidence:       0.5,
		ReferenceURLs:         []string{},
		Language:              "English",
		GeographicScope:       "unclear",
		Length:                "medium",
		Formality:             "formal",
		Purpose:               "inform",
		LLMIndicators:         []string{},
		Confidence:            0.1,
		Notes:                 "Classification failed: " + reason,
	}
}

// Classifier labels content type, realm and purpose.
type Classifier struct {
	runner *Runner
}

func NewClassifier(r *Runner) *Classifier { return &Classifier{runner: r} }

// Classify never fails: on agent failure it returns DefaultClassification
// together with the error so callers can report the degradation.
func (c *Classifier) Classify(ctx context.Context, content, sourceURL string) (Classification, error) {
	refs := DetectReferences(content)
	words := len(strings.Fields(content))

	if sourceURL == "" {
		sourceURL = "Not provided"
	}
	var out Classification
	err := c.runner.Run(ctx, Call{
		Agent:  "content_classifier",
		Role:   RoleClassification,
		System: classifierSystem,
		Prompt: render(classifierUser, map[string]string{
			"content":    truncateMiddle(content, maxClassifyChars),
			"source_url": sourceURL,
		}),
	}, &out)
	if err != nil {
		c.runner.Fallback(ctx, "content_classifier", err)
		return DefaultClassification(err.Error()), err
	}
	return mergeClassification(out, refs, words), nil
}

func mergeClassification(ai Classification, refs References, words int) Classification {
	cl := ai
	if cl.ContentType == "" {
		cl.ContentType = TypeOther
	}
	if cl.Realm == "" {
		cl.Realm = RealmOther
	}
	if cl.Purpose == "" {
		cl.Purpose = "inform"
	}
	if cl.Language == "" {
		cl.Language = "English"
	}
	if cl.GeographicScope == "" {
		cl.GeographicScope = "unclear"
	}
	if cl.Formality == "" {
		cl.Formality = "formal"
	}
	cl.HasHTMLReferences = refs.HTML || ai.HasHTMLReferences
	cl.HasMarkdownReferences = refs.Markdown || ai.HasMarkdownReferences
	if len(refs.URLs) > 0 {
		cl.ReferenceURLs = refs.URLs
	} else if cl.ReferenceURLs == nil {
		cl.ReferenceURLs = []string{}
	}
	if len(refs.URLs) > cl.ReferenceCount {
		cl.ReferenceCount = len(refs.URLs)
	}
	cl.WordCount = words
	cl.Length = lengthClass(words)
	cl.IsLLMOutput = refs.HTML || refs.Markdown || ai.IsLLMOutput
	if cl.LLMIndicators == nil {
		cl.LLMIndicators = []string{}
	}
	if len(refs.URLs) > 0 {
		cl.LLMIndicators = append(cl.LLMIndicators, fmt.Sprintf("%s (%d)", referenceDetected, len(refs.URLs)))
	}
	return cl
}

func lengthClass(words int) string {
	switch {
	case words < shortWords:
		return "short"
	case words > longWords:
		return "long"
	default:
		return "medium"
	}
}

// truncateMiddle keeps the head and tail of s so introductions and
// conclusions both survive.
func truncateMiddle(s string, max int) string {
	if len(s) <= max {
		return s
	}
	half := max / 2
	// Cuts land on rune boundaries so the prompt stays valid UTF-8.
	head := half
	for head > 0 && !utf8.RuneStart(s[head]) {
		head--
	}
	tail := len(s) - half
	for tail < len(s) && !utf8.RuneStart(s[tail]) {
		tail++
	}
	return s[:head] + "\n\n[... content truncated for analysis ...]\n\n" + s[tail:]
}
