package agent

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mohammad-safakhou/credence/internal/evidence"
)

// ExtractMode picks how many claims the extractor pulls out.
type ExtractMode int

const (
	// ExtractKey pulls the 2-3 central claims.
	ExtractKey ExtractMode = iota
	// ExtractAll pulls every verifiable fact.
	ExtractAll
)

// Extraction is the claim extractor's output.
type Extraction struct {
	Claims   []evidence.Claim `json:"claims"`
	Sources  []string         `json:"all_sources"`
	Country  string           `json:"country"`
	Language string           `json:"language"`
}

type extractionOut struct {
	Facts []struct {
		ID           string  `json:"id"`
		Statement    string  `json:"statement"`
		OriginalText string  `json:"original_text"`
		Confidence   float64 `json:"confidence"`
		Framing      string  `json:"framing"`
	} `json:"facts"`
	AllSources []string `json:"all_sources"`
	Location   *struct {
		Country  string `json:"country"`
		Language string `json:"language"`
	} `json:"content_location"`
}

// ClaimExtractor pulls verifiable claims out of content. There is no safe
// neutral answer for "which claims does this text make", so failures are
// returned to the caller.
type ClaimExtractor struct {
	runner *Runner
}

func NewClaimExtractor(r *Runner) *ClaimExtractor { return &ClaimExtractor{runner: r} }

// Extract returns at most max claims (max <= 0 keeps all).
func (e *ClaimExtractor) Extract(ctx context.Context, content string, mode ExtractMode, max int) (Extraction, error) {
	system, prefix := allFactsSystem, "F"
	if mode == ExtractKey {
		if max <= 0 || max > 3 {
			max = 3
		}
		system, prefix = render(keyClaimsSystem, map[string]string{"count": strconv.Itoa(max)}), "KC"
	}
	var out extractionOut
	if err := e.runner.Run(ctx, Call{
		Agent:  "claim_extractor",
		Role:   RoleExtraction,
		System: system,
		Prompt: render(extractUser, map[string]string{"content": content}),
	}, &out); err != nil {
		return Extraction{}, err
	}
	ex := Extraction{Sources: out.AllSources, Country: "international", Language: "english"}
	if out.Location != nil {
		if out.Location.Country != "" {
			ex.Country = out.Location.Country
		}
		if out.Location.Language != "" {
			ex.Language = out.Location.Language
		}
	}
	ex.Claims = normalizeClaims(out, prefix, max)
	return ex, nil
}

func normalizeClaims(out extractionOut, prefix string, max int) []evidence.Claim {
	seen := map[string]struct{}{}
	claims := make([]evidence.Claim, 0, len(out.Facts))
	for _, f := range out.Facts {
		stmt := strings.TrimSpace(f.Statement)
		if stmt == "" {
			continue
		}
		key := strings.ToLower(stmt)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		claims = append(claims, evidence.Claim{
			Statement:    stmt,
			OriginalText: f.OriginalText,
			Confidence:   clamp01(f.Confidence),
			Framing:      f.Framing,
		})
		if max > 0 && len(claims) == max {
			break
		}
	}
	// Ids are reassigned so they are unique and ordered within the run.
	for i := range claims {
		claims[i].ID = fmt.Sprintf("%s%d", prefix, i+1)
	}
	return claims
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
