package config

import (
	"fmt"
	"strings"
	"time"
)

// CredibilityConfig controls domain credibility lookups.
type CredibilityConfig struct {
	// DomainTiers overrides the built-in curated tiers (1 best, 5 worst).
	DomainTiers       map[string]int `mapstructure:"domain_tiers"`
	PropagandaDomains []string       `mapstructure:"propaganda_domains"`
	SatireDomains     []string       `mapstructure:"satire_domains"`
	CacheTTL          time.Duration  `mapstructure:"cache_ttl"`
	DeepLookup        bool           `mapstructure:"deep_lookup"`
	CacheKeyPrefix    string         `mapstructure:"cache_key_prefix"`
}

// Normalize clamps tiers and standardises domain keys.
func (c CredibilityConfig) Normalize() CredibilityConfig {
	cfg := c
	tiers := make(map[string]int, len(cfg.DomainTiers))
	for host, tier := range cfg.DomainTiers {
		key := normalizeDomain(host)
		if key == "" {
			continue
		}
		if tier < 1 {
			tier = 1
		}
		if tier > 5 {
			tier = 5
		}
		tiers[key] = tier
	}
	cfg.DomainTiers = tiers
	cfg.PropagandaDomains = normalizeDomains(cfg.PropagandaDomains)
	cfg.SatireDomains = normalizeDomains(cfg.SatireDomains)
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	if strings.TrimSpace(cfg.CacheKeyPrefix) == "" {
		cfg.CacheKeyPrefix = "credence:credibility:"
	}
	return cfg
}

// Validate ensures configuration is internally consistent.
func (c CredibilityConfig) Validate() error {
	for host, tier := range c.DomainTiers {
		if tier < 1 || tier > 5 {
			return fmt.Errorf("credibility.domain_tiers.%s: tier must be between 1 and 5", host)
		}
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("credibility.cache_ttl cannot be negative")
	}
	return nil
}

func normalizeDomains(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, d := range in {
		d = normalizeDomain(d)
		if d == "" {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out
}

func normalizeDomain(d string) string {
	d = strings.ToLower(strings.TrimSpace(d))
	return strings.TrimPrefix(d, "www.")
}
