package agent

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mohammad-safakhou/credence/config"
)

// stubProvider answers by agent name. A handler may inspect the request.
type stubProvider struct {
	mu       sync.Mutex
	handlers map[string]func(Request) (string, error)
	requests []Request
}

func newStub() *stubProvider {
	return &stubProvider{handlers: map[string]func(Request) (string, error){}}
}

func (s *stubProvider) on(agent string, f func(Request) (string, error)) *stubProvider {
	s.handlers[agent] = f
	return s
}

func (s *stubProvider) reply(agent, text string) *stubProvider {
	return s.on(agent, func(Request) (string, error) { return text, nil })
}

func (s *stubProvider) Generate(ctx context.Context, req Request) (Response, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	h := s.handlers[req.Agent]
	s.mu.Unlock()
	if h == nil {
		return Response{}, errUnscripted(req.Agent)
	}
	text, err := h(req)
	if err != nil {
		return Response{}, err
	}
	return Response{Text: text, Model: req.Model}, nil
}

func (s *stubProvider) calls(agent string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if r.Agent == agent {
			n++
		}
	}
	return n
}

type errUnscripted string

func (e errUnscripted) Error() string { return "no scripted reply for " + string(e) }

func testRunner(t *testing.T, p Provider) *Runner {
	t.Helper()
	return NewRunner(p, RunnerOptions{
		Routing: config.LLMRoutingConfig{Fallback: "test-model", Analysis: "analysis-model"},
		Timeout: time.Second,
	})
}

func contains(haystack, needle string) bool { return strings.Contains(haystack, needle) }
