// Package httpfetch fetches pages with a plain HTTP GET. It does not execute
// scripts, so it is cheaper than chromedp and misses client-rendered text.
package httpfetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mohammad-safakhou/credence/tools/web_fetch/models"
	"github.com/mohammad-safakhou/credence/tools/web_fetch/readable"
)

// maxBody caps how much of a response is read.
const maxBody = 4 << 20

type Fetch struct {
	Client    *http.Client
	MaxChars  int
	UserAgent string
}

func New(timeout time.Duration, maxChars int, userAgent string) *Fetch {
	return &Fetch{Client: &http.Client{Timeout: timeout}, MaxChars: maxChars, UserAgent: userAgent}
}

func (f *Fetch) Fetch(ctx context.Context, url string) (models.Page, error) {
	t0 := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.Page{URL: url}, err
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return models.Page{URL: url, Status: 599}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return models.Page{URL: url, Status: resp.StatusCode}, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") && !strings.HasPrefix(ct, "text/") {
		return models.Page{URL: url, Status: resp.StatusCode}, fmt.Errorf("fetch %s: unsupported content type %q", url, ct)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return models.Page{URL: url, Status: resp.StatusCode}, err
	}
	page := readable.Extract(string(body), url, f.MaxChars)
	page.Status = resp.StatusCode
	page.RenderMS = int(time.Since(t0) / time.Millisecond)
	return page, nil
}
