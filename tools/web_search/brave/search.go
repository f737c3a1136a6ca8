package brave

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mohammad-safakhou/credence/internal/evidence"
)

// DefaultEndpoint is the Brave web search API.
const DefaultEndpoint = "https://api.search.brave.com/res/v1/web/search"

// Brave rejects count values above this.
const maxCount = 20

type Search struct {
	APIKey   string
	Endpoint string
	Client   *http.Client
}

func (s *Search) Search(ctx context.Context, q string, k int) ([]evidence.SearchResult, error) {
	// https://api.search.brave.com/app/documentation/web-search
	if k <= 0 {
		k = 10
	}
	count := k
	if count > maxCount {
		count = maxCount
	}
	endpoint := s.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	params := url.Values{}
	params.Set("q", q)
	params.Set("count", strconv.Itoa(count))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", s.APIKey)

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("brave: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("brave: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var raw struct {
		Web struct {
			Results []struct {
				Title   string `json:"title"`
				URL     string `json:"url"`
				Snippet string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("brave: decode: %w", err)
	}
	results := raw.Web.Results
	if len(results) > k {
		results = results[:k]
	}
	out := make([]evidence.SearchResult, 0, len(results))
	n := len(results)
	for i, r := range results {
		if strings.TrimSpace(r.URL) == "" {
			continue
		}
		out = append(out, evidence.SearchResult{
			URL:     r.URL,
			Title:   r.Title,
			Snippet: r.Snippet,
			Score:   float64(n-i) / float64(n),
			Query:   q,
		})
	}
	return out, nil
}
