package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mohammad-safakhou/credence/config"
	"github.com/mohammad-safakhou/credence/internal/agent"
	"github.com/mohammad-safakhou/credence/internal/evidence"
	"github.com/mohammad-safakhou/credence/internal/job"
)

// scripted answers agent calls by agent name.
type scripted struct {
	mu       sync.Mutex
	handlers map[string]func(agent.Request) (string, error)
	calls    map[string]int
}

func newScripted() *scripted {
	return &scripted{handlers: map[string]func(agent.Request) (string, error){}, calls: map[string]int{}}
}

func (s *scripted) on(name string, f func(agent.Request) (string, error)) *scripted {
	s.mu.Lock()
	s.handlers[name] = f
	s.mu.Unlock()
	return s
}

func (s *scripted) reply(name, text string) *scripted {
	return s.on(name, func(agent.Request) (string, error) { return text, nil })
}

func (s *scripted) fail(name string) *scripted {
	return s.on(name, func(agent.Request) (string, error) { return "", errors.New(name + " unavailable") })
}

func (s *scripted) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

func (s *scripted) Generate(ctx context.Context, req agent.Request) (agent.Response, error) {
	s.mu.Lock()
	s.calls[req.Agent]++
	h := s.handlers[req.Agent]
	s.mu.Unlock()
	if h == nil {
		return agent.Response{}, errors.New("no scripted reply for " + req.Agent)
	}
	text, err := h(req)
	if err != nil {
		return agent.Response{}, err
	}
	return agent.Response{Text: text, Model: req.Model}, nil
}

func testRunner(p agent.Provider) *agent.Runner {
	return agent.NewRunner(p, agent.RunnerOptions{
		Routing: config.LLMRoutingConfig{Fallback: "test-model"},
		Timeout: time.Second,
		// Keep scripted failures from tripping the breaker mid-test.
		BreakerThreshold: 1000,
	})
}

type searchFunc func(ctx context.Context, queries []string, k int) ([]evidence.SearchResult, error)

func (f searchFunc) SearchAll(ctx context.Context, queries []string, k int) ([]evidence.SearchResult, error) {
	return f(ctx, queries, k)
}

func hits(urls ...string) searchFunc {
	return func(ctx context.Context, queries []string, k int) ([]evidence.SearchResult, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out := make([]evidence.SearchResult, len(urls))
		for i, u := range urls {
			out[i] = evidence.SearchResult{URL: u, Title: "result", Query: queries[0]}
		}
		return out, nil
	}
}

// pages is a Scraper backed by a fixed URL to text map.
type pages map[string]string

func (p pages) Scrape(ctx context.Context, urls []string) map[string]string {
	out := make(map[string]string, len(urls))
	for _, u := range urls {
		out[u] = p[u]
	}
	return out
}

type memorySink struct {
	mu    sync.Mutex
	saved map[string]string
}

func (m *memorySink) SaveReport(ctx context.Context, jobID, kind string, report any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		m.saved = map[string]string{}
	}
	m.saved[jobID] = kind
	return nil
}

func (m *memorySink) kind(jobID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.saved[jobID]
	return k, ok
}

type harness struct {
	provider *scripted
	store    *job.MemoryStore
	sink     *memorySink
	orch     *Orchestrator
}

func newHarness(t *testing.T, p *scripted, s Searcher, sc Scraper) *harness {
	t.Helper()
	st := job.NewMemoryStore()
	sink := &memorySink{}
	orch := Build(&config.Config{}, Collaborators{
		Runner:   testRunner(p),
		Searcher: s,
		Scraper:  sc,
		Tracker:  st,
		Sink:     sink,
	})
	return &harness{provider: p, store: st, sink: sink, orch: orch}
}

func waitTerminal(t *testing.T, st *job.MemoryStore, id string) job.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if j, ok := st.Get(id); ok && j.Status.Terminal() {
			return j
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", id)
	return job.Job{}
}

func progressContains(j job.Job, needle string) bool {
	for _, e := range j.Progress {
		if strings.Contains(e.Message, needle) {
			return true
		}
	}
	return false
}

const (
	newsClassification = `{"content_type":"news_article","content_type_confidence":0.9,"realm":"political","realm_confidence":0.8,"apparent_purpose":"inform","detected_language":"English","overall_confidence":0.85}`
	queryReply         = `{"primary_query":"eiffel tower completion year","alternative_queries":["eiffel tower built 1889","eiffel tower history"]}`
)
