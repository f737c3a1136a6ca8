// Package web_search discovers candidate evidence pages for a query through a
// hosted search API.
package web_search

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/mohammad-safakhou/credence/config"
	"github.com/mohammad-safakhou/credence/internal/evidence"
	"github.com/mohammad-safakhou/credence/tools/web_search/brave"
	"github.com/mohammad-safakhou/credence/tools/web_search/serper"
)

// Searcher returns up to k ranked hits for q.
type Searcher interface {
	Search(ctx context.Context, q string, k int) ([]evidence.SearchResult, error)
}

// SearcherFunc adapts a function to Searcher.
type SearcherFunc func(ctx context.Context, q string, k int) ([]evidence.SearchResult, error)

func (f SearcherFunc) Search(ctx context.Context, q string, k int) ([]evidence.SearchResult, error) {
	return f(ctx, q, k)
}

type Provider string

const (
	SerperProvider Provider = "serper"
	BraveProvider  Provider = "brave"
)

var ErrUnsupportedProvider = errors.New("unsupported search provider")

// NewWebSearcher builds the configured provider client.
func NewWebSearcher(cfg config.WebSearchConfig) (Searcher, error) {
	cfg = cfg.Normalize()
	client := &http.Client{Timeout: cfg.Timeout}
	switch Provider(cfg.Provider) {
	case SerperProvider:
		return &serper.Search{APIKey: cfg.SerperAPIKey, Client: client}, nil
	case BraveProvider:
		return &brave.Search{APIKey: cfg.BraveAPIKey, Client: client}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, cfg.Provider)
	}
}
