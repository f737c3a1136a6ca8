package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mohammad-safakhou/credence/config"
)

func TestOpenAIProviderGenerate(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			http.Error(w, "try again", http.StatusBadGateway)
			return
		}
		if r.URL.Path != "/chat/completions" || r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("unexpected request %s %v", r.URL.Path, r.Header)
		}
		var req chatReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Model != "gpt-4o-mini" || len(req.Messages) != 2 || req.ResponseFormat == nil {
			t.Errorf("unexpected body %+v", req)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"ok\":true}"}}],"usage":{"prompt_tokens":10,"completion_tokens":3}}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(config.LLMProvider{
		Type:       "openai",
		APIKey:     "key",
		BaseURL:    srv.URL,
		MaxRetries: 1,
		Timeout:    time.Second,
		Models:     map[string]config.LLMModel{"mini": {Name: "gpt-4o-mini"}},
	})
	p.client.backoff = time.Millisecond
	resp, err := p.Generate(context.Background(), Request{Model: "mini", System: "s", Prompt: "p", JSON: true})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Text != `{"ok":true}` || resp.InputTokens != 10 || resp.OutputTokens != 3 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if hits.Load() != 2 {
		t.Fatalf("expected one retry, got %d hits", hits.Load())
	}
}

func TestOpenAIProviderClientErrorNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()
	p := NewOpenAIProvider(config.LLMProvider{APIKey: "key", BaseURL: srv.URL, MaxRetries: 3,
		Models: map[string]config.LLMModel{"m": {Name: "m"}}})
	if _, err := p.Generate(context.Background(), Request{Model: "m", Prompt: "p"}); err == nil {
		t.Fatal("expected error")
	}
	if hits.Load() != 1 {
		t.Fatalf("4xx must not be retried, got %d hits", hits.Load())
	}
	if _, err := p.Generate(context.Background(), Request{Model: "missing"}); err == nil {
		t.Fatal("expected unknown model error")
	}
}

func TestRegistryRoutesByModel(t *testing.T) {
	reg := &Registry{}
	reg.Register("a", ProviderFunc(func(ctx context.Context, req Request) (Response, error) {
		return Response{Text: "from a"}, nil
	}))
	resp, err := reg.Generate(context.Background(), Request{Model: "a"})
	if err != nil || resp.Text != "from a" {
		t.Fatalf("unexpected %+v %v", resp, err)
	}
	if _, err := reg.Generate(context.Background(), Request{Model: "b"}); err == nil {
		t.Fatal("expected error for unknown model")
	}
	if _, err := NewProvider(config.LLMConfig{Providers: map[string]config.LLMProvider{"x": {Type: "mystery"}}}); err == nil {
		t.Fatal("expected unsupported type error")
	}
}
