package credibility

import (
	"context"
	"testing"

	"github.com/mohammad-safakhou/credence/config"
)

func TestStaticSourceBuiltins(t *testing.T) {
	s := NewStaticSource(config.CredibilityConfig{})
	ctx := context.Background()

	cases := []struct {
		domain     string
		tier       int
		propaganda bool
		tag        string
	}{
		{"reuters.com", 1, false, ""},
		{"edition.cnn.com", 3, false, ""},
		{"rt.com", 5, true, TagStateMedia},
		{"theonion.com", 4, false, TagSatire},
	}
	for _, tc := range cases {
		p, ok, err := s.Find(ctx, tc.domain)
		if err != nil || !ok {
			t.Fatalf("%s: ok=%v err=%v", tc.domain, ok, err)
		}
		if p.Tier != tc.tier || p.IsPropaganda != tc.propaganda {
			t.Fatalf("%s: unexpected profile %+v", tc.domain, p)
		}
		if tc.tag != "" && !p.HasTag(tc.tag) {
			t.Fatalf("%s: missing tag %q in %v", tc.domain, tc.tag, p.SpecialTags)
		}
	}
	if _, ok, _ := s.Find(ctx, "com"); ok {
		t.Fatal("bare TLD must not match")
	}
}

func TestStaticSourceOverrides(t *testing.T) {
	s := NewStaticSource(config.CredibilityConfig{
		DomainTiers:       map[string]int{"reuters.com": 2, "local.example": 1},
		PropagandaDomains: []string{"pushy.example"},
		SatireDomains:     []string{"jokes.example"},
	})
	ctx := context.Background()

	if p, _, _ := s.Find(ctx, "reuters.com"); p.Tier != 2 || p.BiasLabel == "" {
		t.Fatalf("override should change tier only, got %+v", p)
	}
	if p, ok, _ := s.Find(ctx, "local.example"); !ok || p.Tier != 1 {
		t.Fatalf("new domain override missing: %+v", p)
	}
	if p, _, _ := s.Find(ctx, "pushy.example"); p.Tier != 5 || !p.IsPropaganda {
		t.Fatalf("propaganda override wrong: %+v", p)
	}
	if p, _, _ := s.Find(ctx, "jokes.example"); p.Tier != 4 || !p.HasTag(TagSatire) {
		t.Fatalf("satire override wrong: %+v", p)
	}
}
