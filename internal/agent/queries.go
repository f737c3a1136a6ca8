package agent

import (
	"context"
	"strconv"
	"strings"

	"github.com/mohammad-safakhou/credence/internal/evidence"
)

// QueryGenerator plans web searches for a claim.
type QueryGenerator struct {
	runner       *Runner
	alternatives int
}

// NewQueryGenerator builds a generator asking for alternatives extra
// queries per claim, clamped to 2-3.
func NewQueryGenerator(r *Runner, alternatives int) *QueryGenerator {
	if alternatives < 2 {
		alternatives = 2
	}
	if alternatives > 3 {
		alternatives = 3
	}
	return &QueryGenerator{runner: r, alternatives: alternatives}
}

type queryOut struct {
	Primary      string   `json:"primary_query"`
	Alternatives []string `json:"alternative_queries"`
}

// Generate returns the query plan. On failure it falls back to searching
// the claim statement itself and returns the cause alongside.
func (g *QueryGenerator) Generate(ctx context.Context, claim evidence.Claim, hint string) (evidence.QuerySet, error) {
	var out queryOut
	temp := 0.3
	err := g.runner.Run(ctx, Call{
		Agent:       "query_generator",
		Role:        RoleExtraction,
		System:      render(querySystem, map[string]string{"alternatives": strconv.Itoa(g.alternatives)}),
		Prompt:      render(queryUser, map[string]string{"claim": claim.Statement, "context": hint}),
		Temperature: &temp,
	}, &out)
	if err == nil && strings.TrimSpace(out.Primary) == "" {
		err = newError("query_generator", KindOutput, errNoJSON)
	}
	if err != nil {
		g.runner.Fallback(ctx, "query_generator", err)
		return evidence.QuerySet{ClaimID: claim.ID, Primary: fallbackQuery(claim.Statement)}, err
	}
	alts := out.Alternatives
	if len(alts) > g.alternatives {
		alts = alts[:g.alternatives]
	}
	return evidence.QuerySet{ClaimID: claim.ID, Primary: strings.TrimSpace(out.Primary), Alternatives: alts}, nil
}

func fallbackQuery(statement string) string {
	words := strings.Fields(statement)
	if len(words) > 16 {
		words = words[:16]
	}
	return strings.Join(words, " ")
}
