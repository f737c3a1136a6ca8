package credibility

import (
	"strings"
	"testing"
)

func TestBuildContext(t *testing.T) {
	if got := BuildContext(nil, ""); got != "" {
		t.Fatalf("expected empty context, got %q", got)
	}
	if got := BuildContext(nil, "Daily Paper"); !strings.Contains(got, "No credibility data available") {
		t.Fatalf("unexpected no-data context %q", got)
	}
	p := Profile{Domain: "rt.com", Tier: 5, IsPropaganda: true, SpecialTags: []string{TagPropaganda}, Provenance: ProvenanceCurated}
	got := BuildContext(&p, "")
	for _, want := range []string{"Publication: rt.com", TierDescription(5), "PROPAGANDA", "CRITICAL"} {
		if !strings.Contains(got, want) {
			t.Fatalf("context missing %q:\n%s", want, got)
		}
	}
}

func TestModeContexts(t *testing.T) {
	low := Profile{Tier: 4, BiasLabel: "right", Provenance: ProvenanceCurated}
	if got := LieDetectionContext(&low, "Paper", ""); !strings.Contains(got, "Low credibility source") {
		t.Fatalf("lie context: %q", got)
	}
	if got := ManipulationContext(&low, ""); !strings.Contains(got, "Manipulation techniques") {
		t.Fatalf("manipulation context: %q", got)
	}
	if got := ManipulationContext(nil, ""); got != "" {
		t.Fatalf("expected empty manipulation context, got %q", got)
	}
	if got := BiasContext(&low, "Paper"); !strings.Contains(got, "Bias Rating: right") {
		t.Fatalf("bias context: %q", got)
	}
	if got := SummaryLine(&low); got != "Tier 4 (Low) | Bias: right" {
		t.Fatalf("summary line: %q", got)
	}
	if got := SummaryLine(nil); got != "Source credibility: Unknown" {
		t.Fatalf("summary line: %q", got)
	}
}
