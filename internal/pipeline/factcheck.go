package pipeline

import (
	"context"
	"errors"
	"io"
	"log"
	"sort"
	"sync"

	"github.com/mohammad-safakhou/credence/internal/agent"
	"github.com/mohammad-safakhou/credence/internal/credibility"
	"github.com/mohammad-safakhou/credence/internal/evidence"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	noExcerptsReason = "Credible sources were found but none contained passages relevant to this claim"
	noScrapeReason   = "Credible sources were found but none could be retrieved"
)

// VerifyOptions tunes one run of the sub-pipeline.
type VerifyOptions struct {
	MaxSources int
	// Hint is prepended to query generation and checking prompts.
	Hint string
	// Concurrency bounds how many claims are verified at once; <= 1 keeps
	// claims strictly sequential so progress lines stay ordered.
	Concurrency int
}

// Verification is the trail of one claim through the sub-pipeline.
type Verification struct {
	Claim   evidence.Claim           `json:"claim"`
	Result  evidence.FactCheckResult `json:"result"`
	Queries evidence.QuerySet        `json:"queries"`
	Sources []evidence.Evaluation    `json:"credible_sources"`
	Hits    int                      `json:"search_hits"`
	Scraped int                      `json:"sources_scraped"`
}

// VerificationStats aggregates a batch.
type VerificationStats struct {
	ClaimsExtracted   int `json:"claims_extracted"`
	ClaimsVerified    int `json:"claims_verified"`
	Queries           int `json:"queries_executed"`
	SearchHits        int `json:"search_hits"`
	CredibleSources   int `json:"credible_sources"`
	SuccessfulScrapes int `json:"successful_scrapes"`
}

// Verifier takes already extracted claims through query generation, search,
// credibility filtering, scraping, excerpt extraction and the tier-aware check.
type Verifier struct {
	queries     *agent.QueryGenerator
	searcher    Searcher
	filter      *credibility.Filter
	scraper     Scraper
	highlighter *agent.Highlighter
	checker     *agent.Checker

	resultsPerQuery    int
	excerptConcurrency int
	logger             *log.Logger
	tracer             trace.Tracer
}

// VerifierOptions configures NewVerifier.
type VerifierOptions struct {
	ResultsPerQuery    int
	ExcerptConcurrency int
	Logger             *log.Logger
}

func NewVerifier(q *agent.QueryGenerator, s Searcher, f *credibility.Filter, sc Scraper, h *agent.Highlighter, c *agent.Checker, opts VerifierOptions) *Verifier {
	if opts.ResultsPerQuery <= 0 {
		opts.ResultsPerQuery = 10
	}
	if opts.ExcerptConcurrency <= 0 {
		opts.ExcerptConcurrency = 8
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	if f == nil {
		f = credibility.NewFilter(nil, credibility.DefaultMinScore)
	}
	return &Verifier{
		queries:            q,
		searcher:           s,
		filter:             f,
		scraper:            sc,
		highlighter:        h,
		checker:            c,
		resultsPerQuery:    opts.ResultsPerQuery,
		excerptConcurrency: opts.ExcerptConcurrency,
		logger:             opts.Logger,
		tracer:             otel.Tracer("credence/internal/pipeline"),
	}
}

// VerifyAll verifies claims and returns results sorted ascending by match
// score. Only cancellation aborts the batch.
func (v *Verifier) VerifyAll(ctx context.Context, claims []evidence.Claim, opts VerifyOptions, p *Progress) ([]Verification, VerificationStats, error) {
	out := make([]Verification, len(claims))
	stats := VerificationStats{ClaimsExtracted: len(claims)}
	conc := opts.Concurrency
	if conc < 1 {
		conc = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(conc)
	for i, c := range claims {
		g.Go(func() error {
			ver, err := v.Verify(gctx, c, opts, p)
			if err != nil {
				return err
			}
			out[i] = ver
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, stats, err
	}
	for _, ver := range out {
		stats.ClaimsVerified++
		stats.Queries += len(ver.Queries.All())
		stats.SearchHits += ver.Hits
		stats.CredibleSources += len(ver.Sources)
		stats.SuccessfulScrapes += ver.Scraped
	}
	SortVerifications(out)
	return out, stats, nil
}

// SortVerifications orders by ascending match score so the least supported
// claims surface first.
func SortVerifications(vs []Verification) {
	sort.SliceStable(vs, func(i, j int) bool {
		a, b := vs[i].Result, vs[j].Result
		if a.MatchScore == b.MatchScore {
			return a.ClaimID < b.ClaimID
		}
		return a.MatchScore < b.MatchScore
	})
}

// Results extracts the verdicts from vs, keeping order.
func Results(vs []Verification) []evidence.FactCheckResult {
	out := make([]evidence.FactCheckResult, len(vs))
	for i, v := range vs {
		out[i] = v.Result
	}
	return out
}

// Verify runs one claim through every stage in order.
func (v *Verifier) Verify(ctx context.Context, claim evidence.Claim, opts VerifyOptions, p *Progress) (Verification, error) {
	ctx, span := v.tracer.Start(ctx, "pipeline.verify_claim", trace.WithAttributes(attribute.String("claim_id", claim.ID)))
	defer span.End()
	ver := Verification{Claim: claim}
	max := opts.MaxSources
	if max <= 0 {
		max = credibility.DefaultMaxPerHit
	}

	if err := p.Check(ctx); err != nil {
		return ver, err
	}
	qs, err := v.queries.Generate(ctx, claim, opts.Hint)
	if err != nil {
		v.logger.Printf("[FACTCHECK] claim=%s query generation degraded: %v", claim.ID, err)
	}
	ver.Queries = qs
	queries := qs.All()

	if err := p.Check(ctx); err != nil {
		return ver, err
	}
	hits, err := v.searcher.SearchAll(ctx, queries, v.resultsPerQuery)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ver, err
	}
	ver.Hits = len(hits)

	ver.Sources = v.filter.Credible(ctx, hits, max)
	p.Say("Claim %s: %d credible sources from %d search results", claim.ID, len(ver.Sources), len(hits))
	if len(ver.Sources) == 0 {
		ver.Result = evidence.Unverifiable(claim, "")
		return ver, nil
	}

	if err := p.Check(ctx); err != nil {
		return ver, err
	}
	urls := make([]string, len(ver.Sources))
	for i, s := range ver.Sources {
		urls[i] = s.URL
	}
	texts := v.scraper.Scrape(ctx, urls)
	for _, u := range urls {
		if texts[u] != "" {
			ver.Scraped++
		}
	}
	if ver.Scraped == 0 {
		ver.Result = evidence.Unverifiable(claim, noScrapeReason)
		return ver, nil
	}

	if err := p.Check(ctx); err != nil {
		return ver, err
	}
	excerpts, err := v.excerpts(ctx, claim, ver.Sources, texts)
	if err != nil {
		return ver, err
	}
	if len(excerpts) == 0 {
		ver.Result = evidence.Unverifiable(claim, noExcerptsReason)
		return ver, nil
	}

	if err := p.Check(ctx); err != nil {
		return ver, err
	}
	res, err := v.checker.Check(ctx, claim, excerpts, opts.Hint)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return ver, ctx.Err()
		}
		v.logger.Printf("[FACTCHECK] claim=%s check degraded: %v", claim.ID, err)
	}
	ver.Result = res
	return ver, nil
}

// excerpts extracts relevant passages from every scraped source in
// parallel. A failing source contributes nothing. Output follows source
// rank order.
func (v *Verifier) excerpts(ctx context.Context, claim evidence.Claim, sources []evidence.Evaluation, texts map[string]string) ([]evidence.Excerpt, error) {
	perSource := make([][]evidence.Excerpt, len(sources))
	var g errgroup.Group
	g.SetLimit(v.excerptConcurrency)
	var mu sync.Mutex
	failed := 0
	for i, src := range sources {
		text := texts[src.URL]
		if text == "" {
			continue
		}
		g.Go(func() error {
			ex, err := v.highlighter.Extract(ctx, claim, src.URL, src.Tier, text)
			if err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			perSource[i] = ex
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if failed > 0 {
		v.logger.Printf("[FACTCHECK] claim=%s excerpt extraction failed for %d sources", claim.ID, failed)
	}
	var out []evidence.Excerpt
	for _, ex := range perSource {
		out = append(out, ex...)
	}
	return out, nil
}
