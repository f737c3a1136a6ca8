package chromedp

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/mohammad-safakhou/credence/tools/web_fetch/models"
	"github.com/mohammad-safakhou/credence/tools/web_fetch/readable"
)

type Fetch struct {
	Timeout   time.Duration
	MaxChars  int
	UserAgent string
}

// Fetch renders url in headless Chrome and extracts the article text.
func (f Fetch) Fetch(ctx context.Context, url string) (models.Page, error) {
	if strings.TrimSpace(url) == "" {
		return models.Page{}, errors.New("invalid url")
	}
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}
	t0 := time.Now()

	html, err := f.render(ctx, url)
	if err != nil {
		return models.Page{URL: url, Status: 599, RenderMS: elapsedMS(t0)}, err
	}
	page := readable.Extract(html, url, f.MaxChars)
	page.Status = 200
	page.RenderMS = elapsedMS(t0)
	return page, nil
}

func (f Fetch) render(ctx context.Context, url string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.Flag("headless", true))
	if f.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(f.UserAgent))
	}
	actx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	bctx, cancelBrowser := chromedp.NewContext(actx)
	defer cancelBrowser()

	var html string
	err := chromedp.Run(bctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	return html, err
}

func elapsedMS(t0 time.Time) int { return int(time.Since(t0) / time.Millisecond) }
