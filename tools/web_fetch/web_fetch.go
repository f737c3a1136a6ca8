// Package web_fetch retrieves readable text for evidence URLs.
package web_fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mohammad-safakhou/credence/config"
	"github.com/mohammad-safakhou/credence/tools/web_fetch/chromedp"
	"github.com/mohammad-safakhou/credence/tools/web_fetch/httpfetch"
	"github.com/mohammad-safakhou/credence/tools/web_fetch/models"
)

const (
	DefaultTimeout  = 15 * time.Second
	MaxCharsDefault = 20000
)

type WebFetcher interface {
	Fetch(ctx context.Context, url string) (models.Page, error)
}

type FetcherFunc func(ctx context.Context, url string) (models.Page, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string) (models.Page, error) { return f(ctx, url) }

type FetcherType string

const (
	ChromedpFetcherType FetcherType = "chromedp"
	HTTPFetcherType     FetcherType = "http"
)

var ErrUnsupportedFetcher = errors.New("unsupported fetcher type")

func NewWebFetcher(cfg config.ScraperConfig) (WebFetcher, error) {
	cfg = cfg.Normalize()
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxChars := cfg.MaxChars
	if maxChars <= 0 {
		maxChars = MaxCharsDefault
	}

	switch FetcherType(cfg.Type) {
	case ChromedpFetcherType:
		return chromedp.Fetch{Timeout: timeout, MaxChars: maxChars, UserAgent: cfg.UserAgent}, nil
	case HTTPFetcherType:
		return httpfetch.New(timeout, maxChars, cfg.UserAgent), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFetcher, cfg.Type)
	}
}

// Scraper fetches many URLs concurrently. A URL that cannot be fetched maps
// to the empty string; Scrape itself never fails.
type Scraper struct {
	fetcher     WebFetcher
	concurrency int
	logger      *log.Logger
}

func NewScraper(f WebFetcher, concurrency int, logger *log.Logger) *Scraper {
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Scraper{fetcher: f, concurrency: concurrency, logger: logger}
}

// Scrape returns text keyed by every requested URL.
func (s *Scraper) Scrape(ctx context.Context, urls []string) map[string]string {
	out := make(map[string]string, len(urls))
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	pending := make([]string, 0, len(urls))
	for _, u := range urls {
		if _, dup := out[u]; dup {
			continue
		}
		out[u] = ""
		pending = append(pending, u)
	}
	for _, u := range pending {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			page, err := s.fetcher.Fetch(ctx, u)
			if err != nil {
				s.logger.Printf("[SCRAPE] %s failed: %v", u, err)
				return nil
			}
			text := strings.TrimSpace(page.Text)
			if text == "" {
				s.logger.Printf("[SCRAPE] %s returned no text", u)
				return nil
			}
			mu.Lock()
			out[u] = text
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}
