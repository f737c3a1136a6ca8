package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/mohammad-safakhou/credence/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// LangchainProvider serves models through langchaingo backends: openai,
// anthropic or ollama, chosen by the provider's backend field.
type LangchainProvider struct {
	models map[string]llms.Model
}

func NewLangchainProvider(cfg config.LLMProvider) (*LangchainProvider, error) {
	p := &LangchainProvider{models: make(map[string]llms.Model, len(cfg.Models))}
	for key, m := range cfg.Models {
		name := m.APIName
		if name == "" {
			name = m.Name
		}
		model, err := newLangchainModel(cfg, name)
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", key, err)
		}
		p.models[key] = model
	}
	return p, nil
}

// NewLangchainProviderFrom wraps already constructed models, keyed by model key.
func NewLangchainProviderFrom(models map[string]llms.Model) *LangchainProvider {
	return &LangchainProvider{models: models}
}

func newLangchainModel(cfg config.LLMProvider, name string) (llms.Model, error) {
	switch cfg.Backend {
	case "", "openai":
		opts := []openai.Option{openai.WithModel(name)}
		if cfg.APIKey != "" {
			opts = append(opts, openai.WithToken(cfg.APIKey))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.New(opts...)
	case "anthropic":
		if cfg.APIKey == "" {
			return nil, errors.New("anthropic API key required")
		}
		opts := []anthropic.Option{anthropic.WithToken(cfg.APIKey), anthropic.WithModel(name)}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		return anthropic.New(opts...)
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(name)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		return ollama.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported langchain backend %q", cfg.Backend)
	}
}

func (p *LangchainProvider) Generate(ctx context.Context, req Request) (Response, error) {
	model, ok := p.models[req.Model]
	if !ok {
		return Response{}, fmt.Errorf("model %s not configured", req.Model)
	}
	var messages []llms.MessageContent
	if req.System != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt))

	opts := []llms.CallOption{llms.WithTemperature(req.Temperature)}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}
	if req.JSON {
		opts = append(opts, llms.WithJSONMode())
	}
	resp, err := model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return Response{}, fmt.Errorf("langchain generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, errors.New("langchain: no choices")
	}
	choice := resp.Choices[0]
	return Response{
		Text:         choice.Content,
		Model:        req.Model,
		InputTokens:  tokenCount(choice.GenerationInfo, "PromptTokens", "input_tokens"),
		OutputTokens: tokenCount(choice.GenerationInfo, "CompletionTokens", "output_tokens"),
	}, nil
}

func tokenCount(info map[string]any, keys ...string) int64 {
	for _, k := range keys {
		switch v := info[k].(type) {
		case int:
			return int64(v)
		case int64:
			return v
		case float64:
			return int64(v)
		}
	}
	return 0
}
