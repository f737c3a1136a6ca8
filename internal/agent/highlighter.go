package agent

import (
	"context"

	"github.com/mohammad-safakhou/credence/internal/evidence"
)

const maxSourceChars = 40000

// Highlighter extracts claim-relevant excerpts from one scraped source.
type Highlighter struct {
	runner *Runner
}

func NewHighlighter(r *Runner) *Highlighter { return &Highlighter{runner: r} }

type highlightOut struct {
	Excerpts []struct {
		Quote     string  `json:"quote"`
		Context   string  `json:"context"`
		Relevance float64 `json:"relevance"`
	} `json:"excerpts"`
}

// Extract returns the excerpts of text relevant to claim. A failed call
// yields no excerpts and the cause.
func (h *Highlighter) Extract(ctx context.Context, claim evidence.Claim, url string, tier evidence.SourceTier, text string) ([]evidence.Excerpt, error) {
	if len(text) > maxSourceChars {
		text = text[:maxSourceChars]
	}
	var out highlightOut
	err := h.runner.Run(ctx, Call{
		Agent:  "highlighter",
		Role:   RoleExtraction,
		System: highlighterSystem,
		Prompt: render(highlighterUser, map[string]string{
			"claim": claim.Statement,
			"tier":  tier.String(),
			"url":   url,
			"text":  text,
		}),
	}, &out)
	if err != nil {
		h.runner.Fallback(ctx, "highlighter", err)
		return nil, err
	}
	excerpts := make([]evidence.Excerpt, 0, len(out.Excerpts))
	for _, e := range out.Excerpts {
		if e.Quote == "" {
			continue
		}
		excerpts = append(excerpts, evidence.Excerpt{
			URL:       url,
			Tier:      tier,
			Quote:     e.Quote,
			Relevance: clamp01(e.Relevance),
			Context:   e.Context,
		})
	}
	return excerpts, nil
}
