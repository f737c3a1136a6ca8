package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/credence/internal/agent"
)

// RoutingConfidence is reported for every rule-based selection.
const RoutingConfidence = 0.85

// ErrUnknownMode is returned when preferences name a mode that does not exist.
var ErrUnknownMode = errors.New("unknown analysis mode")

// Preferences let a caller override the rule table.
type Preferences struct {
	ForceInclude []Mode `json:"force_include,omitempty"`
	ForceExclude []Mode `json:"force_exclude,omitempty"`
}

// ModeSelection is the router's decision.
type ModeSelection struct {
	Selected       []Mode                  `json:"selected_modes"`
	Excluded       []Mode                  `json:"excluded_modes"`
	Rationale      map[Mode]string         `json:"exclusion_rationale"`
	Configurations map[Mode]map[string]any `json:"mode_configurations,omitempty"`
	Reasoning      string                  `json:"routing_reasoning"`
	Confidence     float64                 `json:"routing_confidence"`
}

// Has reports whether m was selected.
func (s ModeSelection) Has(m Mode) bool {
	for _, v := range s.Selected {
		if v == m {
			return true
		}
	}
	return false
}

// DefaultSelection runs the baseline mode alone.
func DefaultSelection(reason string) ModeSelection {
	return ModeSelection{
		Selected:   []Mode{ModeKeyClaims},
		Excluded:   []Mode{},
		Rationale:  map[Mode]string{},
		Reasoning:  reason,
		Confidence: 0.5,
	}
}

var (
	factualTypes = set(agent.TypeNewsArticle, agent.TypeAnalysisPiece, agent.TypePressRelease,
		agent.TypeAcademicPaper, agent.TypeOfficialStatement)
	factualRealms = set(agent.RealmPolitical, agent.RealmEconomic, agent.RealmScientific, agent.RealmHealth,
		agent.RealmEnvironmental, agent.RealmTechnology, agent.RealmInternational)
	// Subjective content is not checked for claims even in a factual realm.
	subjectiveTypes = set(agent.TypeOpinionColumn, agent.TypeAdvertisement, agent.TypeSatire)

	biasTypes  = set(agent.TypeNewsArticle, agent.TypeOpinionColumn, agent.TypeAnalysisPiece, agent.TypeBlogPost)
	biasRealms = set(agent.RealmPolitical, agent.RealmEconomic, agent.RealmSocial, agent.RealmInternational)

	manipulationTypes = set(agent.TypeOpinionColumn, agent.TypeAnalysisPiece, agent.TypeBlogPost,
		agent.TypeSocialMediaPost, agent.TypeAdvertisement)
	manipulationPurposes = set("persuade", "advocate", "advertise")

	lieTypes = set(agent.TypeInterviewTranscript, agent.TypeSpeechTranscript, agent.TypeOfficialStatement,
		agent.TypePressRelease)
)

func set(vals ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		m[v] = struct{}{}
	}
	return m
}

func in(m map[string]struct{}, v string) bool {
	_, ok := m[v]
	return ok
}

// Route applies the rule table to the pre-analysis results and then the
// caller's preferences. The same inputs always yield the same selection.
func Route(c agent.Classification, src SourceVerification, prefs Preferences) (ModeSelection, error) {
	for _, m := range append(append([]Mode(nil), prefs.ForceInclude...), prefs.ForceExclude...) {
		if !m.Valid() {
			return ModeSelection{}, fmt.Errorf("%w: %q", ErrUnknownMode, m)
		}
	}
	ctype := strings.ToLower(strings.TrimSpace(c.ContentType))
	if ctype == "" {
		ctype = agent.TypeOther
	}
	realm := strings.ToLower(strings.TrimSpace(c.Realm))
	if realm == "" {
		realm = agent.RealmOther
	}
	purpose := strings.ToLower(strings.TrimSpace(c.Purpose))
	if purpose == "" {
		purpose = "inform"
	}

	sel := ModeSelection{
		Rationale:      map[Mode]string{},
		Configurations: map[Mode]map[string]any{},
		Confidence:     RoutingConfidence,
	}
	pick := func(m Mode, ok bool, reason string) {
		if ok {
			sel.Selected = append(sel.Selected, m)
			return
		}
		sel.Excluded = append(sel.Excluded, m)
		sel.Rationale[m] = reason
	}

	switch {
	case c.IsLLMOutput && c.ReferenceCount > 0:
		pick(ModeCitation, true, "")
		sel.Configurations[ModeCitation] = map[string]any{"reference_count": c.ReferenceCount}
	case c.IsLLMOutput:
		pick(ModeCitation, false, "LLM output detected but no citations to verify")
	default:
		pick(ModeCitation, false, "Content is not AI-generated output with citations to verify")
	}

	pick(ModeKeyClaims,
		(in(factualTypes, ctype) || in(factualRealms, realm)) && !in(subjectiveTypes, ctype),
		fmt.Sprintf("Content type '%s' typically doesn't contain verifiable factual claims", ctype))

	bias := in(biasTypes, ctype) || in(biasRealms, realm)
	pick(ModeBias, bias, fmt.Sprintf("Content realm '%s' is not typically subject to political/ideological bias", realm))
	if bias && src.Profile != nil {
		sel.Configurations[ModeBias] = map[string]any{
			"source_context": src.Profile.Domain,
			"source_tier":    src.Profile.Tier,
		}
	}

	pick(ModeManipulation, in(manipulationTypes, ctype) || in(manipulationPurposes, purpose),
		fmt.Sprintf("Content purpose '%s' doesn't suggest manipulation risk", purpose))

	pick(ModeLie, in(lieTypes, ctype),
		fmt.Sprintf("Content type '%s' is not optimal for linguistic deception analysis", ctype))

	reasoning := []string{fmt.Sprintf("Content classified as '%s' in '%s' domain.", ctype, realm)}
	if c.IsLLMOutput {
		reasoning = append(reasoning, fmt.Sprintf("Detected as AI-generated with %d citations.", c.ReferenceCount))
	}
	reasoning = append(reasoning, fmt.Sprintf("Purpose appears to be: %s.", purpose))

	for _, m := range prefs.ForceInclude {
		if sel.Has(m) {
			continue
		}
		sel.Selected = append(sel.Selected, m)
		sel.Excluded = without(sel.Excluded, m)
		delete(sel.Rationale, m)
	}
	for _, m := range prefs.ForceExclude {
		if !sel.Has(m) {
			continue
		}
		sel.Selected = without(sel.Selected, m)
		sel.Excluded = append(sel.Excluded, m)
		sel.Rationale[m] = "Excluded by user preference"
	}

	reasoning = append(reasoning, fmt.Sprintf("Selected %d modes for comprehensive analysis.", len(sel.Selected)))
	if len(sel.Selected) == 0 {
		sel.Selected = []Mode{ModeKeyClaims}
		sel.Excluded = without(sel.Excluded, ModeKeyClaims)
		delete(sel.Rationale, ModeKeyClaims)
		reasoning = append(reasoning, "Defaulting to key claims analysis as baseline.")
	}
	if sel.Excluded == nil {
		sel.Excluded = []Mode{}
	}
	sel.Reasoning = strings.Join(reasoning, " ")
	return sel, nil
}

func without(modes []Mode, m Mode) []Mode {
	out := modes[:0:0]
	for _, v := range modes {
		if v != m {
			out = append(out, v)
		}
	}
	return out
}
