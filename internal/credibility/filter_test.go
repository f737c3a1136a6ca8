package credibility

import (
	"context"
	"testing"

	"github.com/mohammad-safakhou/credence/config"
	"github.com/mohammad-safakhou/credence/internal/evidence"
)

func TestFilterTiers(t *testing.T) {
	lookup := NewResolver([]Source{NewStaticSource(config.CredibilityConfig{})})
	f := NewFilter(lookup, 0)
	hits := []evidence.SearchResult{
		{URL: "https://en.wikipedia.org/wiki/Thing"},
		{URL: "https://www.cdc.gov/report"},
		{URL: "https://www.nytimes.com/2024/story"},
		{URL: "https://www.cdc.gov/report#section"},
		{URL: "https://infowars.com/claim"},
		{URL: "https://www.nature.com/articles/x"},
		{URL: "https://random.example/post"},
	}
	evals := f.Evaluate(context.Background(), hits)
	if len(evals) != 6 {
		t.Fatalf("expected duplicate URL dropped, got %d evaluations", len(evals))
	}
	byDomain := map[string]evidence.Evaluation{}
	for _, e := range evals {
		byDomain[e.Domain] = e
	}
	if e := byDomain["cdc.gov"]; e.Tier != evidence.TierPrimary || e.Score != PrimaryScore {
		t.Fatalf("cdc.gov: %+v", e)
	}
	if e := byDomain["nature.com"]; e.Tier != evidence.TierPrimary {
		t.Fatalf("nature.com: %+v", e)
	}
	if e := byDomain["nytimes.com"]; e.Tier != evidence.TierSecondary || e.Score != SecondaryScore {
		t.Fatalf("nytimes.com: %+v", e)
	}
	if e := byDomain["en.wikipedia.org"]; e.Tier != evidence.TierOther {
		t.Fatalf("wikipedia: %+v", e)
	}
	if e := byDomain["infowars.com"]; e.Score != UnreliableScore {
		t.Fatalf("infowars: %+v", e)
	}
	for i := 1; i < len(evals); i++ {
		if evals[i-1].Score < evals[i].Score {
			t.Fatalf("evaluations not ranked: %+v", evals)
		}
	}
}

func TestFilterCredibleThresholdAndCap(t *testing.T) {
	f := NewFilter(nil, 0.70)
	hits := []evidence.SearchResult{
		{URL: "https://a.gov/1"}, {URL: "https://b.gov/2"}, {URL: "https://c.edu/3"},
		{URL: "https://snopes.com/x"}, {URL: "https://blog.example/y"},
	}
	got := f.Credible(context.Background(), hits, 3)
	if len(got) != 3 {
		t.Fatalf("expected cap of 3, got %d", len(got))
	}
	for _, e := range got {
		if e.Score < 0.70 {
			t.Fatalf("below-threshold source kept: %+v", e)
		}
	}
	all := f.Credible(context.Background(), hits, 10)
	if len(all) != 4 {
		t.Fatalf("expected four credible sources, got %d", len(all))
	}
	if all[len(all)-1].Domain != "snopes.com" {
		t.Fatalf("tier 2 source should rank last: %+v", all)
	}
}
