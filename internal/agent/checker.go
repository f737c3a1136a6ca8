package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/credence/internal/evidence"
)

// Stances an excerpt can take toward a claim.
const (
	StanceSupports    = "supports"
	StanceContradicts = "contradicts"
	StanceNeutral     = "neutral"
)

// Score bounds applied when primary sources agree among themselves.
const (
	primaryContradictCeiling = 0.2
	primarySupportFloor      = 0.85
)

// Checker scores a claim against excerpts, giving Tier 1 evidence absolute
// precedence over Tier 2.
type Checker struct {
	runner *Runner
}

func NewChecker(r *Runner) *Checker { return &Checker{runner: r} }

type checkerOut struct {
	MatchScore    float64 `json:"match_score"`
	Assessment    string  `json:"assessment"`
	Discrepancies string  `json:"discrepancies"`
	Confidence    float64 `json:"confidence"`
	Reasoning     string  `json:"reasoning"`
	Stances       []struct {
		Excerpt int    `json:"excerpt"`
		Stance  string `json:"stance"`
	} `json:"excerpt_stances"`
}

// Check scores claim. With no excerpts the claim is unverifiable and no
// model call is made. A failed call yields a zero-score verification error
// result and the cause.
func (c *Checker) Check(ctx context.Context, claim evidence.Claim, excerpts []evidence.Excerpt, hint string) (evidence.FactCheckResult, error) {
	if len(excerpts) == 0 {
		return evidence.Unverifiable(claim, ""), nil
	}
	var out checkerOut
	err := c.runner.Run(ctx, Call{
		Agent:  "checker",
		Role:   RoleVerification,
		System: checkerSystem,
		Prompt: render(checkerUser, map[string]string{
			"claim":    claim.Statement,
			"context":  hint,
			"excerpts": FormatExcerpts(excerpts),
		}),
	}, &out)
	if err != nil {
		c.runner.Fallback(ctx, "checker", err)
		return VerificationError(claim, err), err
	}

	stances := make([]string, len(excerpts))
	for _, s := range out.Stances {
		if s.Excerpt >= 1 && s.Excerpt <= len(excerpts) {
			stances[s.Excerpt-1] = strings.ToLower(strings.TrimSpace(s.Stance))
		}
	}
	score, note := ReconcileTiers(clamp01(out.MatchScore), excerpts, stances)
	res := evidence.FactCheckResult{
		ClaimID:       claim.ID,
		Statement:     claim.Statement,
		MatchScore:    score,
		Assessment:    out.Assessment,
		Discrepancies: out.Discrepancies,
		Confidence:    clamp01(out.Confidence),
		Reasoning:     out.Reasoning,
		Sources:       excerptURLs(excerpts),
		Excerpts:      excerpts,
	}
	if note != "" {
		res.Reasoning = strings.TrimSpace(res.Reasoning + " " + note)
	}
	return res, nil
}

// ReconcileTiers enforces tier precedence on a model score. stances is
// parallel to excerpts; unknown stances are ignored. When Tier 1 sources
// contradict the claim and none support it the score is capped low; when
// they support it and none contradict it the score is floored high. Mixed
// or absent Tier 1 stances leave the score alone.
func ReconcileTiers(score float64, excerpts []evidence.Excerpt, stances []string) (float64, string) {
	var support, contradict bool
	for i, e := range excerpts {
		if e.Tier != evidence.TierPrimary || i >= len(stances) {
			continue
		}
		switch stances[i] {
		case StanceSupports:
			support = true
		case StanceContradicts:
			contradict = true
		}
	}
	switch {
	case contradict && !support && score > primaryContradictCeiling:
		return primaryContradictCeiling, "Tier 1 sources contradict the claim; score capped."
	case support && !contradict && score < primarySupportFloor:
		return primarySupportFloor, "Tier 1 sources confirm the claim; score raised."
	}
	return score, ""
}

// VerificationError is the checker's degraded result.
func VerificationError(claim evidence.Claim, err error) evidence.FactCheckResult {
	return evidence.FactCheckResult{
		ClaimID:       claim.ID,
		Statement:     claim.Statement,
		MatchScore:    0,
		Assessment:    fmt.Sprintf("Verification error: %v", err),
		Discrepancies: "Verification could not be completed",
		Confidence:    0,
		Reasoning:     "The verification step failed",
	}
}

// FormatExcerpts numbers excerpts for prompts, grouped by tier.
func FormatExcerpts(excerpts []evidence.Excerpt) string {
	if len(excerpts) == 0 {
		return "No excerpts available"
	}
	var b strings.Builder
	for i, e := range excerpts {
		fmt.Fprintf(&b, "[%d] %s | %s | relevance %.2f\n\"%s\"\n", i+1, e.Tier, e.URL, e.Relevance, e.Quote)
		if e.Context != "" && e.Context != e.Quote {
			fmt.Fprintf(&b, "context: %s\n", e.Context)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func excerptURLs(excerpts []evidence.Excerpt) []string {
	seen := map[string]struct{}{}
	var urls []string
	for _, e := range excerpts {
		if _, ok := seen[e.URL]; ok {
			continue
		}
		seen[e.URL] = struct{}{}
		urls = append(urls, e.URL)
	}
	return urls
}
