package serper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mohammad-safakhou/credence/internal/evidence"
)

// DefaultEndpoint is the Serper Google search API.
const DefaultEndpoint = "https://google.serper.dev/search"

type Search struct {
	APIKey   string
	Endpoint string
	Client   *http.Client
}

type organic struct {
	Title    string `json:"title"`
	Link     string `json:"link"`
	Snippet  string `json:"snippet"`
	Position int    `json:"position"`
}

func (s *Search) Search(ctx context.Context, q string, k int) ([]evidence.SearchResult, error) {
	// https://serper.dev/ docs
	if k <= 0 {
		k = 10
	}
	body, err := json.Marshal(map[string]any{"q": q, "num": k})
	if err != nil {
		return nil, err
	}
	endpoint := s.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-KEY", s.APIKey)
	req.Header.Set("Content-Type", "application/json")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("serper: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("serper: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var raw struct {
		Organic []organic `json:"organic"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("serper: decode: %w", err)
	}

	items := raw.Organic
	if len(items) > k {
		items = items[:k]
	}
	out := make([]evidence.SearchResult, 0, len(items))
	for i, it := range items {
		if strings.TrimSpace(it.Link) == "" {
			continue
		}
		out = append(out, evidence.SearchResult{
			URL:     it.Link,
			Title:   it.Title,
			Snippet: it.Snippet,
			Score:   rankScore(i, len(items)),
			Query:   q,
		})
	}
	return out, nil
}

// rankScore maps position i of n to (0,1], first hit highest.
func rankScore(i, n int) float64 {
	if n <= 0 {
		return 0
	}
	return float64(n-i) / float64(n)
}
