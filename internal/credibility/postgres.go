package credibility

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

const profilesSchema = `CREATE TABLE IF NOT EXISTS credibility_profiles (
	domain TEXT PRIMARY KEY,
	tier INT NOT NULL CHECK (tier BETWEEN 1 AND 5),
	bias_label TEXT NOT NULL DEFAULT '',
	factual_label TEXT NOT NULL DEFAULT '',
	is_propaganda BOOLEAN NOT NULL DEFAULT FALSE,
	special_tags TEXT[] NOT NULL DEFAULT '{}',
	reasoning TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// PostgresSource reads curated publication ratings from Postgres.
type PostgresSource struct {
	DB *sql.DB
}

// EnsureSchema creates the profiles table when missing.
func (s *PostgresSource) EnsureSchema(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, profilesSchema); err != nil {
		return fmt.Errorf("ensure credibility_profiles: %w", err)
	}
	return nil
}

func (s *PostgresSource) Find(ctx context.Context, domain string) (Profile, bool, error) {
	var (
		p    Profile
		tags pq.StringArray
	)
	err := s.DB.QueryRowContext(ctx,
		`SELECT tier, bias_label, factual_label, is_propaganda, special_tags, reasoning
		 FROM credibility_profiles WHERE domain = $1`, domain,
	).Scan(&p.Tier, &p.BiasLabel, &p.FactualLabel, &p.IsPropaganda, &tags, &p.Reasoning)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, false, nil
	}
	if err != nil {
		return Profile{}, false, fmt.Errorf("query credibility profile %s: %w", domain, err)
	}
	p.Domain = domain
	p.SpecialTags = []string(tags)
	p.TierDescription = TierDescription(p.Tier)
	p.Provenance = ProvenanceCurated
	return p, true, nil
}

// Upsert stores or replaces a curated profile.
func (s *PostgresSource) Upsert(ctx context.Context, p Profile) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO credibility_profiles (domain, tier, bias_label, factual_label, is_propaganda, special_tags, reasoning, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		 ON CONFLICT (domain) DO UPDATE SET tier = EXCLUDED.tier, bias_label = EXCLUDED.bias_label,
		   factual_label = EXCLUDED.factual_label, is_propaganda = EXCLUDED.is_propaganda,
		   special_tags = EXCLUDED.special_tags, reasoning = EXCLUDED.reasoning, updated_at = NOW()`,
		p.Domain, p.Tier, p.BiasLabel, p.FactualLabel, p.IsPropaganda, pq.Array(p.SpecialTags), p.Reasoning,
	)
	if err != nil {
		return fmt.Errorf("upsert credibility profile %s: %w", p.Domain, err)
	}
	return nil
}
