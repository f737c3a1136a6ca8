package credibility

import (
	"context"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/mohammad-safakhou/credence/internal/helpers"
	"golang.org/x/sync/singleflight"
)

// ProfileCache is a shared cache that can also store deep lookup results.
type ProfileCache interface {
	Source
	Store(ctx context.Context, p Profile) error
	Forget(ctx context.Context, domain string) error
}

// Resolver consults curated sources, then the shared cache, then an optional
// deep lookup, and memoises the answer in-process. Memoised profiles are
// shared read-only across jobs.
type Resolver struct {
	sources []Source
	cache   ProfileCache
	deep    Source
	logger  *log.Logger

	mu    sync.RWMutex
	memo  map[string]Profile
	group singleflight.Group
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithCache sets the shared cache consulted after curated sources.
func WithCache(c ProfileCache) ResolverOption {
	return func(r *Resolver) { r.cache = c }
}

// WithDeepLookup sets the slow live lookup used when deep is requested.
func WithDeepLookup(s Source) ResolverOption {
	return func(r *Resolver) { r.deep = s }
}

// WithResolverLogger sets the logger.
func WithResolverLogger(l *log.Logger) ResolverOption {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewResolver builds a Resolver over curated sources consulted in order.
func NewResolver(sources []Source, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		sources: sources,
		logger:  log.New(io.Discard, "", 0),
		memo:    make(map[string]Profile),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Lookup implements Lookup. domain may also be a URL.
func (r *Resolver) Lookup(ctx context.Context, domain string, deep bool) Profile {
	domain = normalize(domain)
	if domain == "" {
		return Default("")
	}
	if p, ok := r.memoized(domain); ok && (p.Verified() || !deep || r.deep == nil) {
		return p.clone()
	}
	key := domain
	if deep {
		key += "|deep"
	}
	// The shared resolve outlives any single caller's cancellation.
	shared := context.WithoutCancel(ctx)
	v, _, _ := r.group.Do(key, func() (interface{}, error) {
		return r.resolve(shared, domain, deep), nil
	})
	return v.(Profile).clone()
}

// Refresh forgets everything known about domain so the next lookup resolves
// it again.
func (r *Resolver) Refresh(ctx context.Context, domain string) {
	domain = normalize(domain)
	r.mu.Lock()
	delete(r.memo, domain)
	r.mu.Unlock()
	if r.cache != nil {
		if err := r.cache.Forget(ctx, domain); err != nil {
			r.logger.Printf("forget %s: %v", domain, err)
		}
	}
}

func (r *Resolver) resolve(ctx context.Context, domain string, deep bool) Profile {
	if p, ok := r.memoized(domain); ok && (p.Verified() || !deep || r.deep == nil) {
		return p
	}
	// failed is set when any backend errored. The default answer is then
	// returned but not memoised, so the next lookup asks again.
	failed := false
	for _, src := range r.sources {
		p, ok, err := src.Find(ctx, domain)
		if err != nil {
			r.logger.Printf("credibility source failed for %s: %v", domain, err)
			failed = true
			continue
		}
		if ok {
			return r.remember(finish(p, domain, ProvenanceCurated))
		}
	}
	if r.cache != nil {
		p, ok, err := r.cache.Find(ctx, domain)
		if err != nil {
			r.logger.Printf("credibility cache failed for %s: %v", domain, err)
			failed = true
		} else if ok {
			return r.remember(finish(p, domain, ProvenanceCached))
		}
	}
	if deep && r.deep != nil {
		p, ok, err := r.deep.Find(ctx, domain)
		if err != nil {
			r.logger.Printf("deep lookup failed for %s: %v", domain, err)
			failed = true
		} else if ok {
			p = finish(p, domain, ProvenanceCached)
			if r.cache != nil {
				if err := r.cache.Store(ctx, p); err != nil {
					r.logger.Printf("cache store %s: %v", domain, err)
				}
			}
			return r.remember(p)
		}
	}
	if failed {
		return Default(domain)
	}
	return r.remember(Default(domain))
}

func (r *Resolver) memoized(domain string) (Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.memo[domain]
	return p, ok
}

func (r *Resolver) remember(p Profile) Profile {
	r.mu.Lock()
	r.memo[p.Domain] = p.clone()
	r.mu.Unlock()
	return p
}

func finish(p Profile, domain string, prov Provenance) Profile {
	p.Domain = domain
	p.Provenance = prov
	if p.Tier < 1 || p.Tier > 5 {
		p.Tier = 3
	}
	p.TierDescription = TierDescription(p.Tier)
	if p.HasTag(TagPropaganda) {
		p.IsPropaganda = true
	}
	return p
}

func normalize(domain string) string {
	domain = strings.TrimSpace(domain)
	if strings.Contains(domain, "/") || strings.Contains(domain, ":") {
		return helpers.Domain(domain)
	}
	return strings.TrimPrefix(strings.ToLower(domain), "www.")
}
