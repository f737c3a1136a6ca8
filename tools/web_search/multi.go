package web_search

import (
	"context"
	"io"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/mohammad-safakhou/credence/internal/evidence"
)

// DefaultConcurrency bounds in-flight searches per fan-out.
const DefaultConcurrency = 3

// Fanout runs many queries against one Searcher with bounded concurrency and
// a shared rate limit. A failing query is logged and contributes no hits.
type Fanout struct {
	searcher    Searcher
	limiter     *rate.Limiter
	concurrency int
	logger      *log.Logger
}

// NewFanout wraps s. rps <= 0 disables rate limiting.
func NewFanout(s Searcher, rps float64, concurrency int, logger *log.Logger) *Fanout {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if rps > 0 {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return &Fanout{searcher: s, limiter: limiter, concurrency: concurrency, logger: logger}
}

// SearchAll executes queries and returns their hits in query order. Only
// context cancellation is returned as an error.
func (f *Fanout) SearchAll(ctx context.Context, queries []string, k int) ([]evidence.SearchResult, error) {
	results := make([][]evidence.SearchResult, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	var mu sync.Mutex
	failed := 0
	for i, q := range queries {
		g.Go(func() error {
			if err := f.limiter.Wait(gctx); err != nil {
				return err
			}
			hits, err := f.searcher.Search(gctx, q, k)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				f.logger.Printf("[SEARCH] query %q failed: %v", q, err)
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			for j := range hits {
				if hits[j].Query == "" {
					hits[j].Query = q
				}
			}
			results[i] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var out []evidence.SearchResult
	for _, hits := range results {
		out = append(out, hits...)
	}
	if failed > 0 {
		f.logger.Printf("[SEARCH] %d/%d queries failed, %d hits collected", failed, len(queries), len(out))
	}
	return out, nil
}
