package web_search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mohammad-safakhou/credence/config"
	"github.com/mohammad-safakhou/credence/internal/evidence"
	"github.com/mohammad-safakhou/credence/tools/web_search/brave"
	"github.com/mohammad-safakhou/credence/tools/web_search/serper"
)

func TestNewWebSearcher(t *testing.T) {
	s, err := NewWebSearcher(config.WebSearchConfig{Provider: "Brave", BraveAPIKey: "k"})
	if err != nil {
		t.Fatalf("brave: %v", err)
	}
	if _, ok := s.(*brave.Search); !ok {
		t.Fatalf("expected brave searcher, got %T", s)
	}
	s, err = NewWebSearcher(config.WebSearchConfig{})
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	if _, ok := s.(*serper.Search); !ok {
		t.Fatalf("expected serper default, got %T", s)
	}
	if _, err := NewWebSearcher(config.WebSearchConfig{Provider: "bing"}); !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
	}
}

func TestSerperSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if got := r.Header.Get("X-API-KEY"); got != "secret" {
			t.Errorf("api key = %q", got)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["q"] != "inflation 2023" {
			t.Errorf("q = %v", body["q"])
		}
		_, _ = w.Write([]byte(`{"organic":[
			{"title":"A","link":"https://bls.gov/cpi","snippet":"cpi"},
			{"title":"B","link":"","snippet":"skip"},
			{"title":"C","link":"https://reuters.com/x","snippet":"news"}]}`))
	}))
	defer srv.Close()

	s := &serper.Search{APIKey: "secret", Endpoint: srv.URL, Client: srv.Client()}
	hits, err := s.Search(context.Background(), "inflation 2023", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].URL != "https://bls.gov/cpi" || hits[0].Query != "inflation 2023" {
		t.Fatalf("unexpected first hit %+v", hits[0])
	}
	if hits[0].Score <= hits[1].Score {
		t.Fatalf("rank order not reflected in score: %v <= %v", hits[0].Score, hits[1].Score)
	}
}

func TestSerperStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusForbidden)
	}))
	defer srv.Close()
	s := &serper.Search{Endpoint: srv.URL}
	if _, err := s.Search(context.Background(), "q", 3); err == nil {
		t.Fatal("expected error on 403")
	}
}

func TestBraveSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Subscription-Token"); got != "tok" {
			t.Errorf("token = %q", got)
		}
		if got := r.URL.Query().Get("q"); got != "who vaccine" {
			t.Errorf("q = %q", got)
		}
		if got := r.URL.Query().Get("count"); got != "20" {
			t.Errorf("count = %q", got)
		}
		_, _ = w.Write([]byte(`{"web":{"results":[{"title":"WHO","url":"https://who.int/a","description":"d"}]}}`))
	}))
	defer srv.Close()

	s := &brave.Search{APIKey: "tok", Endpoint: srv.URL}
	hits, err := s.Search(context.Background(), "who vaccine", 40)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].Snippet != "d" || hits[0].Score != 1 {
		t.Fatalf("unexpected hits %+v", hits)
	}
}

func TestFanoutBoundsConcurrencyAndSkipsFailures(t *testing.T) {
	var inflight, peak int32
	s := SearcherFunc(func(ctx context.Context, q string, k int) ([]evidence.SearchResult, error) {
		n := atomic.AddInt32(&inflight, 1)
		defer atomic.AddInt32(&inflight, -1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		if q == "bad" {
			return nil, errors.New("boom")
		}
		return []evidence.SearchResult{{URL: "https://example.org/" + q}}, nil
	})
	f := NewFanout(s, 0, 3, nil)
	queries := []string{"a", "b", "bad", "c", "d", "e", "f"}
	hits, err := f.SearchAll(context.Background(), queries, 5)
	if err != nil {
		t.Fatalf("search all: %v", err)
	}
	if len(hits) != 6 {
		t.Fatalf("expected 6 hits, got %d", len(hits))
	}
	if hits[0].URL != "https://example.org/a" || hits[0].Query != "a" {
		t.Fatalf("hits not in query order: %+v", hits[0])
	}
	if peak > 3 {
		t.Fatalf("concurrency exceeded: %d", peak)
	}
}

func TestFanoutCancelled(t *testing.T) {
	var once sync.Once
	ctx, cancel := context.WithCancel(context.Background())
	s := SearcherFunc(func(ctx context.Context, q string, k int) ([]evidence.SearchResult, error) {
		once.Do(cancel)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	_, err := NewFanout(s, 0, 1, nil).SearchAll(ctx, []string{"a", "b"}, 5)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
