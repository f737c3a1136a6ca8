// Package agent wraps every LLM-backed analysis step behind one contract:
// render a prompt, call a backend at low temperature, parse the JSON
// response into a typed record and degrade to a fallback where that is safe.
package agent

import (
	"context"
	"fmt"
	"sort"

	"github.com/mohammad-safakhou/credence/config"
)

// Request is one completion request.
type Request struct {
	Agent       string
	Model       string
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
	// JSON asks the backend for a JSON object response when it supports it.
	JSON bool
}

// Response is a completion.
type Response struct {
	Text         string
	Model        string
	InputTokens  int64
	OutputTokens int64
}

// Provider generates text for a configured model key.
type Provider interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, req Request) (Response, error)

func (f ProviderFunc) Generate(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// Registry routes a request to the provider that owns its model key.
type Registry struct {
	byModel map[string]Provider
}

// NewProvider builds every configured provider and returns a Registry over
// their models. Model keys must be unique across providers.
func NewProvider(cfg config.LLMConfig) (*Registry, error) {
	reg := &Registry{byModel: make(map[string]Provider)}
	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		pc := cfg.Providers[name]
		var p Provider
		switch pc.Type {
		case "openai":
			p = NewOpenAIProvider(pc)
		case "langchain":
			lp, err := NewLangchainProvider(pc)
			if err != nil {
				return nil, fmt.Errorf("provider %s: %w", name, err)
			}
			p = lp
		default:
			return nil, fmt.Errorf("provider %s: unsupported type %q", name, pc.Type)
		}
		for key := range pc.Models {
			if _, dup := reg.byModel[key]; dup {
				return nil, fmt.Errorf("model %s configured by more than one provider", key)
			}
			reg.byModel[key] = p
		}
	}
	return reg, nil
}

// Register adds or replaces the provider for a model key.
func (r *Registry) Register(model string, p Provider) {
	if r.byModel == nil {
		r.byModel = make(map[string]Provider)
	}
	r.byModel[model] = p
}

func (r *Registry) Generate(ctx context.Context, req Request) (Response, error) {
	p, ok := r.byModel[req.Model]
	if !ok {
		return Response{}, fmt.Errorf("model %s not configured", req.Model)
	}
	return p.Generate(ctx, req)
}
