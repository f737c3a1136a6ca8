package web_fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mohammad-safakhou/credence/config"
	"github.com/mohammad-safakhou/credence/tools/web_fetch/httpfetch"
	"github.com/mohammad-safakhou/credence/tools/web_fetch/models"
)

const articleHTML = `<html><head><title>CPI report</title><script>var x=1;</script></head>
<body><nav>menu</nav><article><h1>Consumer prices</h1>
<p>The consumer price index rose 3.4 percent over the last twelve months, the bureau said on Thursday.</p>
<p>Shelter costs accounted for over two thirds of the increase in all items less food and energy.</p>
</article></body></html>`

func TestNewWebFetcher(t *testing.T) {
	f, err := NewWebFetcher(config.ScraperConfig{})
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	if _, ok := f.(*httpfetch.Fetch); !ok {
		t.Fatalf("expected http fetcher by default, got %T", f)
	}
	if _, err := NewWebFetcher(config.ScraperConfig{Type: "chromedp"}); err != nil {
		t.Fatalf("chromedp: %v", err)
	}
}

func TestHTTPFetchExtractsText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != "test-agent" {
			t.Errorf("user agent = %q", ua)
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(articleHTML))
	}))
	defer srv.Close()

	f := httpfetch.New(0, 0, "test-agent")
	page, err := f.Fetch(context.Background(), srv.URL+"/cpi")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !strings.Contains(page.Text, "3.4 percent") {
		t.Fatalf("article text missing: %q", page.Text)
	}
	if strings.Contains(page.Text, "var x") {
		t.Fatalf("script leaked into text: %q", page.Text)
	}
	if page.Status != 200 || page.HTMLHash == "" {
		t.Fatalf("unexpected page metadata %+v", page)
	}
}

func TestHTTPFetchTruncates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(articleHTML))
	}))
	defer srv.Close()
	page, err := httpfetch.New(0, 20, "").Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if n := len([]rune(page.Text)); n > 20 {
		t.Fatalf("expected at most 20 runes, got %d", n)
	}
}

func TestHTTPFetchRejectsErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/pdf" {
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write([]byte("%PDF"))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()
	f := httpfetch.New(0, 0, "")
	if _, err := f.Fetch(context.Background(), srv.URL+"/missing"); err == nil {
		t.Fatal("expected error for 404")
	}
	if _, err := f.Fetch(context.Background(), srv.URL+"/pdf"); err == nil {
		t.Fatal("expected error for non-html content")
	}
}

func TestScraperMapsFailuresToEmpty(t *testing.T) {
	f := FetcherFunc(func(ctx context.Context, url string) (models.Page, error) {
		switch url {
		case "https://a.gov/ok":
			return models.Page{URL: url, Text: "  body text  "}, nil
		case "https://b.org/blank":
			return models.Page{URL: url}, nil
		default:
			return models.Page{}, errors.New("timeout")
		}
	})
	got := NewScraper(f, 2, nil).Scrape(context.Background(), []string{
		"https://a.gov/ok", "https://b.org/blank", "https://c.com/err", "https://a.gov/ok",
	})
	if len(got) != 3 {
		t.Fatalf("expected 3 keys, got %v", got)
	}
	if got["https://a.gov/ok"] != "body text" {
		t.Fatalf("unexpected text %q", got["https://a.gov/ok"])
	}
	for _, u := range []string{"https://b.org/blank", "https://c.com/err"} {
		if v, ok := got[u]; !ok || v != "" {
			t.Fatalf("expected empty entry for %s, got %q (present=%v)", u, v, ok)
		}
	}
}
