package credibility

import (
	"context"
	"sort"
	"strings"

	"github.com/mohammad-safakhou/credence/internal/evidence"
	"github.com/mohammad-safakhou/credence/internal/helpers"
)

// Scores assigned per evidence tier.
const (
	PrimaryScore     = 0.90
	SecondaryScore   = 0.75
	OtherScore       = 0.50
	UnreliableScore  = 0.20
	DefaultMinScore  = 0.70
	DefaultMaxPerHit = 10
)

var primarySuffixes = []string{
	".gov", ".mil", ".edu", ".int", ".gov.uk", ".ac.uk", ".gc.ca", ".gov.au", ".europa.eu", ".go.jp",
}

var primaryDomains = map[string]struct{}{
	"un.org": {}, "worldbank.org": {}, "imf.org": {}, "oecd.org": {}, "ipcc.ch": {},
	"nature.com": {}, "science.org": {}, "thelancet.com": {}, "nejm.org": {}, "bmj.com": {},
	"jamanetwork.com": {}, "cochranelibrary.com": {}, "ourworldindata.org": {},
}

var secondaryDomains = map[string]struct{}{
	"britannica.com": {}, "scientificamerican.com": {}, "arxiv.org": {}, "factcheck.org": {},
	"politifact.com": {}, "snopes.com": {}, "fullfact.org": {}, "pewresearch.org": {},
	"brookings.edu": {}, "statista.com": {},
}

var tertiaryDomains = map[string]struct{}{
	"wikipedia.org": {}, "medium.com": {}, "substack.com": {}, "reddit.com": {}, "quora.com": {},
	"youtube.com": {}, "facebook.com": {}, "x.com": {}, "twitter.com": {}, "tiktok.com": {},
}

// Filter scores search hits with the three-tier evidence rule: official and
// primary sources rank Tier 1, established secondary platforms Tier 2 and
// everything else Tier 3.
type Filter struct {
	lookup   Lookup
	minScore float64
}

// NewFilter builds a filter. lookup may be nil, in which case only the
// domain rules apply.
func NewFilter(lookup Lookup, minScore float64) *Filter {
	if minScore <= 0 || minScore > 1 {
		minScore = DefaultMinScore
	}
	return &Filter{lookup: lookup, minScore: minScore}
}

// MinScore returns the acceptance threshold.
func (f *Filter) MinScore() float64 { return f.minScore }

// Evaluate scores every unique hit and returns them highest score first.
func (f *Filter) Evaluate(ctx context.Context, hits []evidence.SearchResult) []evidence.Evaluation {
	seen := make(map[string]struct{}, len(hits))
	out := make([]evidence.Evaluation, 0, len(hits))
	for _, h := range hits {
		canonical, err := helpers.CanonicalURL(h.URL)
		if err != nil {
			continue
		}
		if _, dup := seen[canonical]; dup {
			continue
		}
		seen[canonical] = struct{}{}
		out = append(out, f.evaluate(ctx, h))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// Credible returns at most max evaluations scoring at or above the threshold.
func (f *Filter) Credible(ctx context.Context, hits []evidence.SearchResult, max int) []evidence.Evaluation {
	return Select(f.Evaluate(ctx, hits), f.minScore, max)
}

// Select keeps ranked evaluations with score >= min, capped at max.
func Select(ranked []evidence.Evaluation, min float64, max int) []evidence.Evaluation {
	if max <= 0 {
		max = DefaultMaxPerHit
	}
	out := make([]evidence.Evaluation, 0, max)
	for _, e := range ranked {
		if e.Score < min {
			continue
		}
		out = append(out, e)
		if len(out) == max {
			break
		}
	}
	return out
}

func (f *Filter) evaluate(ctx context.Context, h evidence.SearchResult) evidence.Evaluation {
	domain := helpers.Domain(h.URL)
	ev := evidence.Evaluation{URL: h.URL, Domain: domain, Title: h.Title, Snippet: h.Snippet}
	switch {
	case isPrimary(domain):
		ev.Tier, ev.Score, ev.Reason = evidence.TierPrimary, PrimaryScore, "official or primary source"
		return ev
	case inSet(domain, secondaryDomains):
		ev.Tier, ev.Score, ev.Reason = evidence.TierSecondary, SecondaryScore, "established reference platform"
		return ev
	case inSet(domain, tertiaryDomains):
		ev.Tier, ev.Score, ev.Reason = evidence.TierOther, OtherScore, "user-generated or tertiary platform"
		return ev
	}
	if f.lookup == nil {
		ev.Tier, ev.Score, ev.Reason = evidence.TierOther, OtherScore, "unrated domain"
		return ev
	}
	p := f.lookup.Lookup(ctx, domain, false)
	switch {
	case p.IsPropaganda || p.HasTag(TagSatire) || p.HasTag(TagConspiracy) || p.Tier >= 4:
		ev.Tier, ev.Score = evidence.TierOther, UnreliableScore
	case !p.Verified():
		ev.Tier, ev.Score = evidence.TierOther, OtherScore
	case p.Tier == 1:
		ev.Tier, ev.Score = evidence.TierPrimary, PrimaryScore
	case p.Tier == 2:
		ev.Tier, ev.Score = evidence.TierSecondary, SecondaryScore
	default:
		ev.Tier, ev.Score = evidence.TierOther, OtherScore+0.1
	}
	ev.Reason = "publication rated " + TierName(p.Tier) + " (" + string(p.Provenance) + ")"
	return ev
}

func isPrimary(domain string) bool {
	if inSet(domain, primaryDomains) {
		return true
	}
	for _, s := range primarySuffixes {
		if strings.HasSuffix(domain, s) {
			return true
		}
	}
	return false
}

// inSet matches domain or any parent domain against set.
func inSet(domain string, set map[string]struct{}) bool {
	for d := domain; d != ""; {
		if _, ok := set[d]; ok {
			return true
		}
		_, rest, found := strings.Cut(d, ".")
		if !found || !strings.Contains(rest, ".") {
			return false
		}
		d = rest
	}
	return false
}
