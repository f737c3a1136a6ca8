package pipeline

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/mohammad-safakhou/credence/internal/agent"
	"github.com/mohammad-safakhou/credence/internal/credibility"
)

func classification(ctype, realm, purpose string) agent.Classification {
	return agent.Classification{ContentType: ctype, Realm: realm, Purpose: purpose}
}

func TestRouteIsDeterministic(t *testing.T) {
	c := classification(agent.TypeNewsArticle, agent.RealmPolitical, "inform")
	prof := credibility.Default("example.com")
	src := SourceVerification{Status: SourceVerified, Profile: &prof}
	first, err := Route(c, src, Preferences{})
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	for i := 0; i < 20; i++ {
		got, err := Route(c, src, Preferences{})
		if err != nil {
			t.Fatalf("route: %v", err)
		}
		if !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d differs:\n%+v\n%+v", i, got, first)
		}
	}
	if first.Confidence != RoutingConfidence {
		t.Fatalf("confidence = %v", first.Confidence)
	}
}

func TestRouteOpinionColumn(t *testing.T) {
	sel, err := Route(classification(agent.TypeOpinionColumn, agent.RealmPolitical, "persuade"), SourceVerification{Status: SourceNoURL}, Preferences{})
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	want := []Mode{ModeBias, ModeManipulation}
	if !reflect.DeepEqual(sel.Selected, want) {
		t.Fatalf("selected = %v, want %v", sel.Selected, want)
	}
	for _, m := range []Mode{ModeKeyClaims, ModeLie, ModeCitation} {
		if sel.Has(m) {
			t.Fatalf("%s should be excluded", m)
		}
		if sel.Rationale[m] == "" {
			t.Fatalf("missing rationale for %s", m)
		}
	}
	if !strings.Contains(sel.Rationale[ModeKeyClaims], "opinion_column") {
		t.Fatalf("key claims rationale = %q", sel.Rationale[ModeKeyClaims])
	}
	if !strings.Contains(sel.Reasoning, "Selected 2 modes") {
		t.Fatalf("reasoning = %q", sel.Reasoning)
	}
}

func TestRouteLLMOutput(t *testing.T) {
	c := classification(agent.TypeLLMOutput, agent.RealmOther, "inform")
	c.IsLLMOutput = true

	sel, _ := Route(c, SourceVerification{}, Preferences{})
	if sel.Has(ModeCitation) {
		t.Fatal("citation mode selected without references")
	}
	if sel.Rationale[ModeCitation] != "LLM output detected but no citations to verify" {
		t.Fatalf("rationale = %q", sel.Rationale[ModeCitation])
	}

	c.ReferenceCount = 3
	sel, _ = Route(c, SourceVerification{}, Preferences{})
	if !sel.Has(ModeCitation) {
		t.Fatalf("citation mode not selected: %v", sel.Selected)
	}
	if got := sel.Configurations[ModeCitation]["reference_count"]; got != 3 {
		t.Fatalf("reference_count = %v", got)
	}
	if !strings.Contains(sel.Reasoning, "Detected as AI-generated with 3 citations.") {
		t.Fatalf("reasoning = %q", sel.Reasoning)
	}
}

func TestRouteDefaultsToKeyClaims(t *testing.T) {
	sel, err := Route(classification(agent.TypeOther, agent.RealmSports, "entertain"), SourceVerification{}, Preferences{})
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if !reflect.DeepEqual(sel.Selected, []Mode{ModeKeyClaims}) {
		t.Fatalf("selected = %v", sel.Selected)
	}
	if _, ok := sel.Rationale[ModeKeyClaims]; ok {
		t.Fatal("baseline mode kept an exclusion rationale")
	}
	if !strings.HasSuffix(sel.Reasoning, "Defaulting to key claims analysis as baseline.") {
		t.Fatalf("reasoning = %q", sel.Reasoning)
	}
}

func TestRoutePreferences(t *testing.T) {
	c := classification(agent.TypeNewsArticle, agent.RealmPolitical, "inform")
	sel, err := Route(c, SourceVerification{}, Preferences{
		ForceInclude: []Mode{ModeLie},
		ForceExclude: []Mode{ModeBias},
	})
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if !sel.Has(ModeLie) || sel.Has(ModeBias) {
		t.Fatalf("selected = %v", sel.Selected)
	}
	if _, ok := sel.Rationale[ModeLie]; ok {
		t.Fatal("forced mode kept its exclusion rationale")
	}
	if sel.Rationale[ModeBias] != "Excluded by user preference" {
		t.Fatalf("bias rationale = %q", sel.Rationale[ModeBias])
	}
}

func TestRouteBiasConfiguration(t *testing.T) {
	prof := credibility.Profile{Domain: "dailywire.com", Tier: 3}
	sel, _ := Route(classification(agent.TypeNewsArticle, agent.RealmPolitical, "inform"),
		SourceVerification{Status: SourceVerified, Profile: &prof}, Preferences{})
	cfg := sel.Configurations[ModeBias]
	if cfg["source_context"] != "dailywire.com" || cfg["source_tier"] != 3 {
		t.Fatalf("bias configuration = %v", cfg)
	}
}

func TestRouteUnknownMode(t *testing.T) {
	_, err := Route(agent.Classification{}, SourceVerification{}, Preferences{ForceInclude: []Mode{"astrology"}})
	if !errors.Is(err, ErrUnknownMode) {
		t.Fatalf("err = %v", err)
	}
}
