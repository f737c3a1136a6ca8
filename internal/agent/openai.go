package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mohammad-safakhou/credence/config"
)

// OpenAIProvider talks to an OpenAI-compatible chat completions endpoint.
type OpenAIProvider struct {
	config config.LLMProvider
	client *HTTPClient
}

func NewOpenAIProvider(cfg config.LLMProvider) *OpenAIProvider {
	return &OpenAIProvider{
		config: cfg,
		client: NewHTTPClient(cfg.Timeout, cfg.MaxRetries, 0),
	}
}

type chatMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatReq struct {
	Model          string          `json:"model"`
	Messages       []chatMsg       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResp struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
}

func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (Response, error) {
	apiKey := p.config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return Response{}, errors.New("OpenAI API key not configured")
	}
	m, ok := p.config.Models[req.Model]
	if !ok {
		return Response{}, fmt.Errorf("model %s not configured", req.Model)
	}
	apiModel := m.APIName
	if apiModel == "" {
		apiModel = m.Name
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = m.MaxTokens
	}

	body := chatReq{Model: apiModel, Temperature: req.Temperature, MaxTokens: maxTokens}
	if req.System != "" {
		body.Messages = append(body.Messages, chatMsg{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, chatMsg{Role: "user", Content: req.Prompt})
	if req.JSON {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	baseURL := strings.TrimRight(p.config.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	var out chatResp
	headers := map[string]string{"Authorization": "Bearer " + apiKey}
	if err := p.client.DoJSON(ctx, "POST", baseURL+"/chat/completions", headers, body, &out); err != nil {
		return Response{}, fmt.Errorf("openai: %w", err)
	}
	if len(out.Choices) == 0 {
		return Response{}, errors.New("openai: no choices")
	}
	return Response{
		Text:         out.Choices[0].Message.Content,
		Model:        req.Model,
		InputTokens:  out.Usage.PromptTokens,
		OutputTokens: out.Usage.CompletionTokens,
	}, nil
}
