package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/credence/internal/evidence"
)

// CitedClaim is a claim in LLM output together with the URLs it cites.
type CitedClaim struct {
	evidence.Claim
	CitedURLs []string `json:"cited_urls"`
}

// WordingComparison contrasts the claim with the source text.
type WordingComparison struct {
	LLMClaim   string `json:"llm_claim"`
	SourceSays string `json:"source_says"`
	Faithful   bool   `json:"faithful"`
}

// CitationCheck is the verdict for one claim against one cited source.
type CitationCheck struct {
	ClaimID              string            `json:"claim_id"`
	Statement            string            `json:"statement"`
	URL                  string            `json:"url"`
	Score                float64           `json:"verification_score"`
	Assessment           string            `json:"assessment"`
	InterpretationIssues []string          `json:"interpretation_issues"`
	Wording              WordingComparison `json:"wording_comparison"`
	Confidence           float64           `json:"confidence"`
	Reasoning            string            `json:"reasoning"`
}

// UnavailableSourceAssessment marks a citation whose page could not be read.
const UnavailableSourceAssessment = "Cited source could not be retrieved"

// CitationVerifier checks that LLM output represents its cited sources
// faithfully.
type CitationVerifier struct {
	runner *Runner
}

func NewCitationVerifier(r *Runner) *CitationVerifier { return &CitationVerifier{runner: r} }

type citedOut struct {
	Claims []struct {
		ID           string   `json:"id"`
		Statement    string   `json:"statement"`
		OriginalText string   `json:"original_text"`
		CitedURLs    []string `json:"cited_urls"`
	} `json:"claims"`
}

// ExtractCited maps the cited claims of content to their references.
// Errors propagate.
func (v *CitationVerifier) ExtractCited(ctx context.Context, content string, refs []string) ([]CitedClaim, error) {
	var out citedOut
	if err := v.runner.Run(ctx, Call{
		Agent:  "citation_extractor",
		Role:   RoleExtraction,
		System: citedClaimsSystem,
		Prompt: render(citedClaimsUser, map[string]string{"urls": strings.Join(refs, "\n"), "content": content}),
	}, &out); err != nil {
		return nil, err
	}
	claims := make([]CitedClaim, 0, len(out.Claims))
	for _, c := range out.Claims {
		stmt := strings.TrimSpace(c.Statement)
		if stmt == "" || len(c.CitedURLs) == 0 {
			continue
		}
		claims = append(claims, CitedClaim{
			Claim:     evidence.Claim{ID: fmt.Sprintf("C%d", len(claims)+1), Statement: stmt, OriginalText: c.OriginalText, Confidence: 1},
			CitedURLs: c.CitedURLs,
		})
	}
	return claims, nil
}

// Verify checks claim against the text of one cited source. An empty text
// means the source could not be scraped and no model call is made.
func (v *CitationVerifier) Verify(ctx context.Context, claim evidence.Claim, url, text string) (CitationCheck, error) {
	base := CitationCheck{ClaimID: claim.ID, Statement: claim.Statement, URL: url, InterpretationIssues: []string{}}
	if strings.TrimSpace(text) == "" {
		base.Assessment = UnavailableSourceAssessment
		base.Reasoning = "The cited page returned no readable content"
		return base, nil
	}
	if len(text) > maxSourceChars {
		text = text[:maxSourceChars]
	}
	var out CitationCheck
	err := v.runner.Run(ctx, Call{
		Agent:  "citation_verifier",
		Role:   RoleVerification,
		System: citationSystem,
		Prompt: render(citationUser, map[string]string{"claim": claim.Statement, "url": url, "text": text}),
	}, &out)
	if err != nil {
		v.runner.Fallback(ctx, "citation_verifier", err)
		base.Assessment = fmt.Sprintf("Verification error: %v", err)
		return base, err
	}
	out.ClaimID, out.Statement, out.URL = claim.ID, claim.Statement, url
	out.Score = clamp01(out.Score)
	out.Confidence = clamp01(out.Confidence)
	if out.InterpretationIssues == nil {
		out.InterpretationIssues = []string{}
	}
	return out, nil
}
