package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/mohammad-safakhou/credence/internal/evidence"
)

func tierExcerpts() []evidence.Excerpt {
	return []evidence.Excerpt{
		{URL: "https://stats.gov/report", Tier: evidence.TierPrimary, Quote: "primary text", Relevance: 0.9},
		{URL: "https://snopes.com/x", Tier: evidence.TierSecondary, Quote: "secondary text", Relevance: 0.8},
	}
}

func TestCheckerTierPrecedence(t *testing.T) {
	claim := evidence.Claim{ID: "KC1", Statement: "Unemployment fell to 3%"}
	// The model hedges in the middle; the stances decide.
	stub := newStub().on("checker", func(req Request) (string, error) {
		if contains(req.Prompt, "primary-contradicts") {
			return `{"match_score":0.55,"assessment":"mixed","confidence":0.6,
				"excerpt_stances":[{"excerpt":1,"stance":"contradicts"},{"excerpt":2,"stance":"supports"}]}`, nil
		}
		return `{"match_score":0.55,"assessment":"mixed","confidence":0.6,
			"excerpt_stances":[{"excerpt":1,"stance":"supports"},{"excerpt":2,"stance":"contradicts"}]}`, nil
	})
	c := NewChecker(testRunner(t, stub))

	low, err := c.Check(context.Background(), claim, tierExcerpts(), "primary-contradicts")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if low.MatchScore >= 0.3 {
		t.Fatalf("tier 1 contradiction should force a low score, got %.2f", low.MatchScore)
	}
	high, err := c.Check(context.Background(), claim, tierExcerpts(), "")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if high.MatchScore <= 0.8 {
		t.Fatalf("tier 1 support should force a high score, got %.2f", high.MatchScore)
	}
	if len(high.Sources) != 2 || high.ClaimID != "KC1" {
		t.Fatalf("unexpected result %+v", high)
	}
}

func TestReconcileTiersMixedPrimaryKeepsScore(t *testing.T) {
	ex := []evidence.Excerpt{{Tier: evidence.TierPrimary}, {Tier: evidence.TierPrimary}}
	score, note := ReconcileTiers(0.5, ex, []string{StanceSupports, StanceContradicts})
	if score != 0.5 || note != "" {
		t.Fatalf("mixed tier 1 evidence should leave score alone: %.2f %q", score, note)
	}
	score, _ = ReconcileTiers(0.1, ex[:1], []string{StanceContradicts})
	if score != 0.1 {
		t.Fatalf("low score must not be raised by the ceiling: %.2f", score)
	}
}

func TestCheckerNoExcerptsIsUnverifiable(t *testing.T) {
	stub := newStub()
	c := NewChecker(testRunner(t, stub))
	res, err := c.Check(context.Background(), evidence.Claim{ID: "KC1", Statement: "x"}, nil, "")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.MatchScore != 0 || res.Assessment != evidence.NoSourcesAssessment {
		t.Fatalf("unexpected result %+v", res)
	}
	if stub.calls("checker") != 0 {
		t.Fatal("no model call expected without excerpts")
	}
}

func TestCheckerFailureFallsBack(t *testing.T) {
	stub := newStub().on("checker", func(Request) (string, error) { return "", errors.New("rate limited") })
	c := NewChecker(testRunner(t, stub))
	res, err := c.Check(context.Background(), evidence.Claim{ID: "KC2", Statement: "x"}, tierExcerpts(), "")
	if err == nil {
		t.Fatal("expected cause")
	}
	if res.MatchScore != 0 || !contains(res.Assessment, "Verification error") || res.ClaimID != "KC2" {
		t.Fatalf("unexpected fallback %+v", res)
	}
}
