// Package evidence defines the records threaded through fact verification.
// Each stage produces new values keyed by claim id or URL; nothing is
// mutated in place once handed to the next stage.
package evidence

import (
	"sort"
	"strings"
)

// Claim is an atomic factual assertion extracted from submitted content.
type Claim struct {
	ID           string  `json:"id"`
	Statement    string  `json:"statement"`
	OriginalText string  `json:"original_text,omitempty"`
	Confidence   float64 `json:"confidence"`
	// Framing is set by extractors that also describe how the content uses
	// the fact, e.g. the manipulation analysis.
	Framing string `json:"framing,omitempty"`
}

// QuerySet is the search plan for a single claim.
type QuerySet struct {
	ClaimID      string   `json:"claim_id"`
	Primary      string   `json:"primary"`
	Alternatives []string `json:"alternatives"`
}

// All returns the primary query followed by the alternatives, skipping blanks
// and duplicates.
func (q QuerySet) All() []string {
	out := make([]string, 0, 1+len(q.Alternatives))
	seen := map[string]struct{}{}
	for _, s := range append([]string{q.Primary}, q.Alternatives...) {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}

// SearchResult is one raw hit from the web-search backend.
type SearchResult struct {
	URL     string  `json:"url"`
	Title   string  `json:"title"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
	Query   string  `json:"query,omitempty"`
}

// SourceTier is the evidence tier assigned to a search hit. It is separate
// from the 1-5 publication tier of a credibility profile.
type SourceTier int

const (
	TierPrimary   SourceTier = 1 // official and primary sources
	TierSecondary SourceTier = 2 // established secondary platforms
	TierOther     SourceTier = 3 // discarded
)

func (t SourceTier) String() string {
	switch t {
	case TierPrimary:
		return "Tier 1"
	case TierSecondary:
		return "Tier 2"
	default:
		return "Tier 3"
	}
}

// Evaluation is a search hit scored for credibility.
type Evaluation struct {
	URL     string     `json:"url"`
	Domain  string     `json:"domain"`
	Title   string     `json:"title"`
	Snippet string     `json:"snippet,omitempty"`
	Tier    SourceTier `json:"tier"`
	Score   float64    `json:"credibility_score"`
	Reason  string     `json:"reason"`
}

// Excerpt is a passage of scraped source text judged relevant to a claim.
type Excerpt struct {
	URL       string     `json:"url"`
	Tier      SourceTier `json:"tier"`
	Quote     string     `json:"quote"`
	Relevance float64    `json:"relevance"`
	Context   string     `json:"context,omitempty"`
}

// FactCheckResult is the verdict for one claim.
type FactCheckResult struct {
	ClaimID       string    `json:"claim_id"`
	Statement     string    `json:"statement"`
	MatchScore    float64   `json:"match_score"`
	Assessment    string    `json:"assessment"`
	Discrepancies string    `json:"discrepancies"`
	Confidence    float64   `json:"confidence"`
	Reasoning     string    `json:"reasoning,omitempty"`
	Sources       []string  `json:"sources,omitempty"`
	Excerpts      []Excerpt `json:"excerpts,omitempty"`
}

// NoSourcesAssessment is the verdict text for a claim without credible, scrapeable evidence.
const NoSourcesAssessment = "Unable to verify - no credible sources found"

// Unverifiable builds the zero-score verdict for claim.
func Unverifiable(c Claim, reasoning string) FactCheckResult {
	if reasoning == "" {
		reasoning = "Web search did not yield credible sources for this claim"
	}
	return FactCheckResult{
		ClaimID:       c.ID,
		Statement:     c.Statement,
		MatchScore:    0,
		Assessment:    NoSourcesAssessment,
		Discrepancies: "No sources available for verification",
		Confidence:    0,
		Reasoning:     reasoning,
	}
}

// SortByScore orders results ascending by match score so the least supported
// claims come first. Ties keep claim id order.
func SortByScore(results []FactCheckResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].MatchScore == results[j].MatchScore {
			return results[i].ClaimID < results[j].ClaimID
		}
		return results[i].MatchScore < results[j].MatchScore
	})
}
