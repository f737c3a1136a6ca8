package pipeline

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/mohammad-safakhou/credence/config"
	"github.com/mohammad-safakhou/credence/internal/agent"
)

func biasModelsSeen(p *scripted) (*[]string, *sync.Mutex) {
	var mu sync.Mutex
	var seen []string
	p.on("bias_checker", func(req agent.Request) (string, error) {
		mu.Lock()
		seen = append(seen, req.Model)
		mu.Unlock()
		return `{"overall_bias_score":4,"primary_bias_direction":"center"}`, nil
	})
	return &seen, &mu
}

func TestBuildForwardsConfiguredBiasModels(t *testing.T) {
	p := newScripted()
	seen, mu := biasModelsSeen(p)
	cfg := &config.Config{Agents: config.AgentsConfig{BiasModels: []string{"gpt-4o", " claude-sonnet ", "gpt-4o"}}}
	orch := Build(cfg, Collaborators{Runner: testRunner(p), Searcher: hits(), Scraper: pages{}})

	out, err := orch.modes.Bias(context.Background(), ModeInput{Content: "The council raised taxes again."})
	if err != nil {
		t.Fatalf("bias: %v", err)
	}
	mu.Lock()
	got := append([]string(nil), *seen...)
	mu.Unlock()
	sort.Strings(got)
	if len(got) != 2 || got[0] != "claude-sonnet" || got[1] != "gpt-4o" {
		t.Fatalf("bias checker models = %v", got)
	}
	if rep := out.(*agent.BiasReport); len(rep.Analyses) != 2 {
		t.Fatalf("expected one analysis per model, got %+v", rep)
	}
}

func TestBuildPrefersCollaboratorBiasModels(t *testing.T) {
	p := newScripted()
	seen, mu := biasModelsSeen(p)
	cfg := &config.Config{Agents: config.AgentsConfig{BiasModels: []string{"gpt-4o", "claude-sonnet"}}}
	orch := Build(cfg, Collaborators{Runner: testRunner(p), Searcher: hits(), Scraper: pages{}, BiasModels: []string{"mistral"}})

	if _, err := orch.modes.Bias(context.Background(), ModeInput{Content: "x"}); err != nil {
		t.Fatalf("bias: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(*seen) != 1 || (*seen)[0] != "mistral" {
		t.Fatalf("bias checker models = %v", *seen)
	}
}

func TestBuildWithoutBiasModelsUsesRouting(t *testing.T) {
	p := newScripted()
	seen, mu := biasModelsSeen(p)
	orch := Build(&config.Config{}, Collaborators{Runner: testRunner(p), Searcher: hits(), Scraper: pages{}})

	if _, err := orch.modes.Bias(context.Background(), ModeInput{Content: "x"}); err != nil {
		t.Fatalf("bias: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(*seen) != 1 || (*seen)[0] != "test-model" {
		t.Fatalf("bias checker models = %v", *seen)
	}
}
