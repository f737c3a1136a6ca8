// Package credibility resolves how far a publication or evidence source can
// be trusted and renders that judgement as context for downstream prompts.
package credibility

import (
	"context"
	"fmt"
)

// Provenance records which backing lookup produced a profile.
type Provenance string

const (
	ProvenanceCurated    Provenance = "curated"
	ProvenanceCached     Provenance = "cached"
	ProvenanceUnverified Provenance = "unverified"
)

// Special tags attached to profiles.
const (
	TagSatire     = "satire"
	TagConspiracy = "conspiracy"
	TagPropaganda = "propaganda"
	TagStateMedia = "state_media"
)

// Profile describes a publication's trust characteristics. Profiles are
// values; refreshing a domain replaces its profile wholesale.
type Profile struct {
	Domain          string     `json:"domain"`
	Tier            int        `json:"credibility_tier"`
	TierDescription string     `json:"tier_description"`
	BiasLabel       string     `json:"bias_rating,omitempty"`
	FactualLabel    string     `json:"factual_reporting,omitempty"`
	IsPropaganda    bool       `json:"is_propaganda"`
	SpecialTags     []string   `json:"special_tags,omitempty"`
	Provenance      Provenance `json:"verification_source"`
	Reasoning       string     `json:"tier_reasoning,omitempty"`
}

// HasTag reports whether the profile carries tag.
func (p Profile) HasTag(tag string) bool {
	for _, t := range p.SpecialTags {
		if t == tag {
			return true
		}
	}
	return false
}

// Verified is true when a real lookup, rather than the default, produced p.
func (p Profile) Verified() bool { return p.Provenance != ProvenanceUnverified }

func (p Profile) clone() Profile {
	p.SpecialTags = append([]string(nil), p.SpecialTags...)
	return p
}

var tierDescriptions = map[int]string{
	1: "TIER 1 - Highly Credible (Official sources, major wire services)",
	2: "TIER 2 - Credible (Reputable mainstream media)",
	3: "TIER 3 - Mixed (Requires verification, may have bias)",
	4: "TIER 4 - Low Credibility (Significant bias or poor factual reporting)",
	5: "TIER 5 - Unreliable (Propaganda, conspiracy, or disinformation)",
}

// TierDescription returns the human label for tier.
func TierDescription(tier int) string {
	if d, ok := tierDescriptions[tier]; ok {
		return d
	}
	return fmt.Sprintf("Tier %d", tier)
}

// TierName is the short rating used in summaries.
func TierName(tier int) string {
	switch tier {
	case 1:
		return "Highly Credible"
	case 2:
		return "Credible"
	case 3:
		return "Mixed"
	case 4:
		return "Low"
	case 5:
		return "Unreliable"
	default:
		return "Unknown"
	}
}

// Default is the profile returned for domains no lookup knows about.
func Default(domain string) Profile {
	return Profile{
		Domain:          domain,
		Tier:            3,
		TierDescription: TierDescription(3),
		Provenance:      ProvenanceUnverified,
		Reasoning:       "Domain not found in any credibility source",
	}
}

// Lookup resolves a domain to a profile. It never fails: unknown domains and
// backend errors yield Default. deep allows a slower live lookup when cheaper
// sources miss.
type Lookup interface {
	Lookup(ctx context.Context, domain string, deep bool) Profile
}

// Source is one backing store consulted by the Resolver.
type Source interface {
	Find(ctx context.Context, domain string) (Profile, bool, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, domain string) (Profile, bool, error)

func (f SourceFunc) Find(ctx context.Context, domain string) (Profile, bool, error) {
	return f(ctx, domain)
}
