package credibility

import (
	"context"
	"strings"

	"github.com/mohammad-safakhou/credence/config"
)

type staticEntry struct {
	tier    int
	bias    string
	factual string
	tags    []string
}

// builtin is a small curated table of well-known publications.
var builtin = map[string]staticEntry{
	"reuters.com":         {1, "least biased", "very high", nil},
	"apnews.com":          {1, "least biased", "very high", nil},
	"afp.com":             {1, "least biased", "very high", nil},
	"bbc.com":             {2, "left-center", "high", nil},
	"bbc.co.uk":           {2, "left-center", "high", nil},
	"nytimes.com":         {2, "left-center", "high", nil},
	"washingtonpost.com":  {2, "left-center", "high", nil},
	"wsj.com":             {2, "right-center", "high", nil},
	"theguardian.com":     {2, "left-center", "high", nil},
	"npr.org":             {2, "left-center", "high", nil},
	"economist.com":       {2, "left-center", "high", nil},
	"ft.com":              {2, "least biased", "high", nil},
	"bloomberg.com":       {2, "left-center", "high", nil},
	"politico.com":        {2, "left-center", "high", nil},
	"thehill.com":         {2, "least biased", "mostly factual", nil},
	"foxnews.com":         {3, "right", "mixed", nil},
	"cnn.com":             {3, "left", "mostly factual", nil},
	"msnbc.com":           {3, "left", "mixed", nil},
	"dailymail.co.uk":     {4, "right", "low", nil},
	"breitbart.com":       {4, "extreme right", "mixed", nil},
	"occupydemocrats.com": {4, "extreme left", "low", nil},
	"infowars.com":        {5, "extreme right", "very low", []string{TagConspiracy}},
	"naturalnews.com":     {5, "extreme right", "very low", []string{TagConspiracy}},
	"rt.com":              {5, "right-center", "very low", []string{TagPropaganda, TagStateMedia}},
	"sputniknews.com":     {5, "right-center", "very low", []string{TagPropaganda, TagStateMedia}},
	"theonion.com":        {4, "left", "satire", []string{TagSatire}},
	"babylonbee.com":      {4, "right", "satire", []string{TagSatire}},
}

// StaticSource serves the built-in curated table merged with configured
// overrides.
type StaticSource struct {
	entries map[string]staticEntry
}

// NewStaticSource builds the curated table. Configured tiers override built-in
// ones; propaganda and satire lists add tags and force the matching tier.
func NewStaticSource(cfg config.CredibilityConfig) *StaticSource {
	entries := make(map[string]staticEntry, len(builtin)+len(cfg.DomainTiers))
	for k, v := range builtin {
		entries[k] = v
	}
	for domain, tier := range cfg.DomainTiers {
		e := entries[domain]
		e.tier = tier
		entries[domain] = e
	}
	for _, d := range cfg.PropagandaDomains {
		e := entries[d]
		e.tier = 5
		e.tags = appendTag(e.tags, TagPropaganda)
		entries[d] = e
	}
	for _, d := range cfg.SatireDomains {
		e := entries[d]
		if e.tier < 4 {
			e.tier = 4
		}
		e.factual = "satire"
		e.tags = appendTag(e.tags, TagSatire)
		entries[d] = e
	}
	return &StaticSource{entries: entries}
}

func (s *StaticSource) Find(_ context.Context, domain string) (Profile, bool, error) {
	e, ok := s.match(domain)
	if !ok {
		return Profile{}, false, nil
	}
	p := Profile{
		Domain:          domain,
		Tier:            e.tier,
		TierDescription: TierDescription(e.tier),
		BiasLabel:       e.bias,
		FactualLabel:    e.factual,
		SpecialTags:     append([]string(nil), e.tags...),
		Provenance:      ProvenanceCurated,
		Reasoning:       "Curated publication table",
	}
	p.IsPropaganda = p.HasTag(TagPropaganda)
	return p, true, nil
}

// match tries the domain itself and then each parent domain, so
// edition.cnn.com resolves to cnn.com.
func (s *StaticSource) match(domain string) (staticEntry, bool) {
	d := domain
	for d != "" {
		if e, ok := s.entries[d]; ok {
			return e, true
		}
		_, rest, found := strings.Cut(d, ".")
		if !found || !strings.Contains(rest, ".") {
			break
		}
		d = rest
	}
	return staticEntry{}, false
}

func appendTag(tags []string, tag string) []string {
	for _, t := range tags {
		if t == tag {
			return tags
		}
	}
	return append(tags, tag)
}
