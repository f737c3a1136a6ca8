package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestDetectReferences(t *testing.T) {
	content := `According to <a href="https://www.who.int/report">WHO</a> cases rose.
See also [the study](https://nature.com/articles/1) and [1].

[1]: https://example.org/source
`
	refs := DetectReferences(content)
	if !refs.HTML || !refs.Markdown {
		t.Fatalf("expected both reference styles, got %+v", refs)
	}
	want := map[string]bool{
		"https://www.who.int/report":    true,
		"https://nature.com/articles/1": true,
		"https://example.org/source":    true,
	}
	if len(refs.URLs) != len(want) {
		t.Fatalf("expected %d urls, got %v", len(want), refs.URLs)
	}
	for _, u := range refs.URLs {
		if !want[u] {
			t.Fatalf("unexpected url %q", u)
		}
	}
	if plain := DetectReferences("No links at all, just https://bare.example."); plain.HTML || plain.Markdown || len(plain.URLs) != 0 {
		t.Fatalf("bare urls are not references: %+v", plain)
	}
}

func TestClassifierMergesPrePass(t *testing.T) {
	stub := newStub().reply("content_classifier", `{"content_type":"news_article","realm":"health","apparent_purpose":"inform","is_likely_llm_output":false,"reference_count":0}`)
	c := NewClassifier(testRunner(t, stub))
	cl, err := c.Classify(context.Background(), "Study [1] shows.\n[1]: https://nih.gov/a", "")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if cl.ContentType != TypeNewsArticle || cl.Realm != RealmHealth {
		t.Fatalf("unexpected classification %+v", cl)
	}
	if !cl.IsLLMOutput || cl.ReferenceCount != 1 || cl.ReferenceURLs[0] != "https://nih.gov/a" {
		t.Fatalf("pre-pass not merged: %+v", cl)
	}
	if len(cl.LLMIndicators) != 1 || !contains(cl.LLMIndicators[0], referenceDetected) {
		t.Fatalf("missing reference indicator: %v", cl.LLMIndicators)
	}
	if cl.Length != "short" || cl.WordCount == 0 {
		t.Fatalf("length not computed: %+v", cl)
	}
}

func TestClassifierFallback(t *testing.T) {
	stub := newStub().on("content_classifier", func(Request) (string, error) { return "", errors.New("boom") })
	c := NewClassifier(testRunner(t, stub))
	cl, err := c.Classify(context.Background(), "text", "https://x.example")
	if err == nil {
		t.Fatal("expected the cause to be reported")
	}
	if cl.ContentType != TypeOther || cl.Realm != RealmOther || cl.IsLLMOutput || cl.ReferenceCount != 0 {
		t.Fatalf("unexpected fallback %+v", cl)
	}
}

func TestTruncateMiddle(t *testing.T) {
	s := make([]byte, 100)
	for i := range s {
		s[i] = 'a'
	}
	s[0], s[99] = 'H', 'T'
	got := truncateMiddle(string(s), 20)
	if got[0] != 'H' || got[len(got)-1] != 'T' || !contains(got, "truncated") {
		t.Fatalf("unexpected truncation %q", got)
	}
}

func TestTruncateMiddleKeepsRunesWhole(t *testing.T) {
	s := strings.Repeat("日", 40)
	got := truncateMiddle(s, 20)
	if !utf8.ValidString(got) {
		t.Fatalf("truncation split a rune: %q", got)
	}
	if !strings.HasPrefix(got, "日日日\n") || !strings.HasSuffix(got, "\n日日日") {
		t.Fatalf("unexpected truncation %q", got)
	}
}
