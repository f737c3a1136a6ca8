package pipeline

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/mohammad-safakhou/credence/config"
	"github.com/mohammad-safakhou/credence/internal/agent"
	"github.com/mohammad-safakhou/credence/internal/credibility"
	"github.com/mohammad-safakhou/credence/internal/evidence"
)

// ModeInput is what every mode receives.
type ModeInput struct {
	Content  string
	Stage1   Stage1Result
	Progress *Progress
}

// ModeRunner executes one analysis mode and returns its typed report.
type ModeRunner interface {
	Run(ctx context.Context, in ModeInput) (any, error)
}

// ModeFunc adapts a function to ModeRunner.
type ModeFunc func(ctx context.Context, in ModeInput) (any, error)

func (f ModeFunc) Run(ctx context.Context, in ModeInput) (any, error) { return f(ctx, in) }

// Agents are the mode-level agents. Verification agents live in Verifier.
type Agents struct {
	Claims       *agent.ClaimExtractor
	Bias         *agent.BiasChecker
	Lie          *agent.LieDetector
	Manipulation *agent.ManipulationDetector
	Citation     *agent.CitationVerifier
}

// Modes holds the concrete analysis modes.
type Modes struct {
	agents   Agents
	verifier *Verifier
	scraper  Scraper
	cfg      config.PipelineConfig
	logger   *log.Logger
}

func NewModes(a Agents, v *Verifier, sc Scraper, cfg config.PipelineConfig, logger *log.Logger) *Modes {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Modes{agents: a, verifier: v, scraper: sc, cfg: cfg.Normalize(), logger: logger}
}

// Runners maps every mode to its implementation.
func (m *Modes) Runners() map[Mode]ModeRunner {
	return map[Mode]ModeRunner{
		ModeKeyClaims:    ModeFunc(m.KeyClaims),
		ModeBias:         ModeFunc(m.Bias),
		ModeManipulation: ModeFunc(m.Manipulation),
		ModeLie:          ModeFunc(m.Lie),
		ModeCitation:     ModeFunc(m.Citation),
	}
}

func sourceHint(s SourceVerification) string {
	return credibility.BuildContext(s.Profile, s.Publication())
}

// ClaimSummary aggregates key-claim verdicts.
type ClaimSummary struct {
	Total              int     `json:"total_key_claims"`
	AverageScore       float64 `json:"average_score"`
	AverageConfidence  float64 `json:"average_confidence"`
	Verified           int     `json:"verified_count"`
	Partial            int     `json:"partial_count"`
	Unverified         int     `json:"unverified_count"`
	OverallCredibility string  `json:"overall_credibility"`
	Message            string  `json:"message,omitempty"`
}

// KeyClaimsReport is the key_claims_analysis output.
type KeyClaimsReport struct {
	Claims      []evidence.FactCheckResult `json:"key_claims"`
	Summary     ClaimSummary               `json:"summary"`
	Statistics  VerificationStats          `json:"statistics"`
	Country     string                     `json:"country,omitempty"`
	Language    string                     `json:"language,omitempty"`
	Methodology string                     `json:"methodology"`
}

// Summarize computes the key-claims summary bands.
func Summarize(results []evidence.FactCheckResult) ClaimSummary {
	if len(results) == 0 {
		return ClaimSummary{OverallCredibility: "Unable to assess", Message: "No results to summarize"}
	}
	s := ClaimSummary{Total: len(results)}
	var score, conf float64
	for _, r := range results {
		score += r.MatchScore
		conf += r.Confidence
		switch {
		case r.MatchScore >= 0.9:
			s.Verified++
		case r.MatchScore >= 0.7:
			s.Partial++
		default:
			s.Unverified++
		}
	}
	s.AverageScore = score / float64(len(results))
	s.AverageConfidence = conf / float64(len(results))
	switch {
	case s.AverageScore >= 0.9:
		s.OverallCredibility = "High - Key claims are well-supported"
	case s.AverageScore >= 0.7:
		s.OverallCredibility = "Medium - Some claims need more evidence"
	case s.AverageScore >= 0.5:
		s.OverallCredibility = "Low - Significant claims are unsupported"
	default:
		s.OverallCredibility = "Very Low - Key claims appear to be false or unverifiable"
	}
	return s
}

func (m *Modes) KeyClaims(ctx context.Context, in ModeInput) (any, error) {
	p := in.Progress
	p.Say("Extracting key claims from text...")
	if err := p.Check(ctx); err != nil {
		return nil, err
	}
	ext, err := m.agents.Claims.Extract(ctx, in.Content, agent.ExtractKey, m.cfg.KeyClaims)
	if err != nil {
		if cerr := p.Check(ctx); cerr != nil {
			return nil, cerr
		}
		return nil, fmt.Errorf("extract key claims: %w", err)
	}
	report := &KeyClaimsReport{
		Claims:      []evidence.FactCheckResult{},
		Country:     ext.Country,
		Language:    ext.Language,
		Methodology: "key_claims_verification",
	}
	if len(ext.Claims) == 0 {
		p.Say("No key claims identified")
		report.Summary = ClaimSummary{OverallCredibility: "Unable to assess", Message: "No key claims identified in text"}
		return report, nil
	}
	p.Say("Identified %d key claim(s) to verify", len(ext.Claims))
	for i, c := range ext.Claims {
		p.Say("Claim %d: %q", i+1, preview(c.Statement, 80))
	}

	vers, stats, err := m.verifier.VerifyAll(ctx, ext.Claims, VerifyOptions{
		MaxSources: m.cfg.KeyClaimsMaxSources,
		Hint:       sourceHint(in.Stage1.Source),
	}, p)
	if err != nil {
		return nil, err
	}
	report.Claims = Results(vers)
	report.Statistics = stats
	report.Summary = Summarize(report.Claims)
	p.Say("Key claims verified: average score %.2f", report.Summary.AverageScore)
	return report, nil
}

func (m *Modes) Bias(ctx context.Context, in ModeInput) (any, error) {
	p := in.Progress
	p.Say("Analyzing content for bias...")
	if err := p.Check(ctx); err != nil {
		return nil, err
	}
	src := in.Stage1.Source
	report, err := m.agents.Bias.Check(ctx, in.Content, agent.BiasInput{Profile: src.Profile, Publication: src.Publication()})
	if err != nil {
		if cerr := p.Check(ctx); cerr != nil {
			return nil, cerr
		}
		p.Say("Bias analysis degraded: %v", err)
	}
	p.Say("Bias score %.1f/10 (%s)", report.ConsensusScore, report.ConsensusDirection)
	return &report, nil
}

func (m *Modes) Lie(ctx context.Context, in ModeInput) (any, error) {
	p := in.Progress
	p.Say("Analyzing linguistic deception markers...")
	if err := p.Check(ctx); err != nil {
		return nil, err
	}
	src := in.Stage1.Source
	report, err := m.agents.Lie.Analyze(ctx, in.Content, agent.LieInput{Profile: src.Profile, Publication: src.Publication()})
	if err != nil {
		if cerr := p.Check(ctx); cerr != nil {
			return nil, cerr
		}
		p.Say("Deception analysis degraded: %v", err)
	}
	p.Say("Deception risk %s", report.RiskLevel)
	return &report, nil
}

// ManipulationModeReport is the manipulation_detection output.
type ManipulationModeReport struct {
	Article       agent.ArticleSummary        `json:"article_summary"`
	Facts         []evidence.Claim            `json:"facts"`
	Verifications []evidence.FactCheckResult  `json:"fact_verifications"`
	Findings      []agent.ManipulationFinding `json:"manipulation_findings"`
	Report        agent.ManipulationReport    `json:"report"`
	Score         float64                     `json:"manipulation_score"`
	Statistics    VerificationStats           `json:"statistics"`
}

func (m *Modes) Manipulation(ctx context.Context, in ModeInput) (any, error) {
	p := in.Progress
	src := in.Stage1.Source
	source := src.Publication()
	if source == "" {
		source = "Unknown"
	}

	p.Say("Analyzing article for agenda and bias...")
	if err := p.Check(ctx); err != nil {
		return nil, err
	}
	summary, err := m.agents.Manipulation.AnalyzeArticle(ctx, in.Content, source, src.Profile)
	if err != nil {
		if cerr := p.Check(ctx); cerr != nil {
			return nil, cerr
		}
	}
	p.Say("Detected agenda: %s", summary.DetectedAgenda)

	p.Say("Extracting key facts with framing analysis...")
	if err := p.Check(ctx); err != nil {
		return nil, err
	}
	facts, err := m.agents.Manipulation.ExtractFacts(ctx, in.Content, summary, m.cfg.ManipulationFacts)
	if err != nil {
		if cerr := p.Check(ctx); cerr != nil {
			return nil, cerr
		}
		return nil, fmt.Errorf("extract framing facts: %w", err)
	}
	report := &ManipulationModeReport{
		Article:       summary,
		Facts:         facts,
		Verifications: []evidence.FactCheckResult{},
		Findings:      []agent.ManipulationFinding{},
	}
	if len(facts) == 0 {
		p.Say("No verifiable facts found")
		report.Report = agent.FallbackManipulationReport(nil, nil)
		return report, nil
	}
	p.Say("Extracted %d key facts for verification", len(facts))

	vers, stats, err := m.verifier.VerifyAll(ctx, facts, VerifyOptions{
		MaxSources: m.cfg.ManipulationSources,
		Hint:       sourceHint(src),
	}, p)
	if err != nil {
		return nil, err
	}
	report.Statistics = stats
	report.Verifications = Results(vers)

	p.Say("Analyzing manipulation patterns...")
	byID := make(map[string]evidence.FactCheckResult, len(vers))
	for _, v := range vers {
		byID[v.Claim.ID] = v.Result
	}
	for _, f := range facts {
		if err := p.Check(ctx); err != nil {
			return nil, err
		}
		finding, _ := m.agents.Manipulation.AnalyzeFact(ctx, f, summary, byID[f.ID])
		if finding.Detected {
			p.Say("Manipulation detected in fact %s (%s)", f.ID, finding.Severity)
		}
		report.Findings = append(report.Findings, finding)
	}

	if err := p.Check(ctx); err != nil {
		return nil, err
	}
	final, err := m.agents.Manipulation.Report(ctx, summary, report.Findings)
	if err != nil {
		if cerr := p.Check(ctx); cerr != nil {
			return nil, cerr
		}
	}
	report.Report = final
	report.Score = final.OverallScore
	p.Say("Manipulation score %.1f/10", report.Score)
	return report, nil
}

// CitationClaimResult aggregates the checks of one cited claim.
type CitationClaimResult struct {
	Claim  agent.CitedClaim      `json:"claim"`
	Checks []agent.CitationCheck `json:"checks"`
	// Score is the mean over sources that could be read; -1 when none could.
	Score float64 `json:"verification_score"`
}

// CitationSummary aggregates a citation report.
type CitationSummary struct {
	TotalClaims        int     `json:"total_claims"`
	SourcesChecked     int     `json:"sources_checked"`
	SourcesUnavailable int     `json:"sources_unavailable"`
	AverageScore       float64 `json:"average_score"`
	Faithful           int     `json:"faithful_count"`
	Misrepresented     int     `json:"misrepresented_count"`
	Message            string  `json:"message,omitempty"`
}

// CitationReport is the llm_output_verification output.
type CitationReport struct {
	Claims  []CitationClaimResult `json:"claims"`
	Summary CitationSummary       `json:"summary"`
}

// FaithfulThreshold separates faithful from misrepresented citations.
const FaithfulThreshold = 0.7

func (m *Modes) Citation(ctx context.Context, in ModeInput) (any, error) {
	p := in.Progress
	refs := in.Stage1.Classification.ReferenceURLs
	if len(refs) == 0 {
		refs = agent.DetectReferences(in.Content).URLs
	}
	report := &CitationReport{Claims: []CitationClaimResult{}}
	if len(refs) == 0 {
		p.Say("No cited sources found")
		report.Summary.Message = "No cited sources found in content"
		return report, nil
	}

	p.Say("Extracting cited claims from %d references...", len(refs))
	if err := p.Check(ctx); err != nil {
		return nil, err
	}
	claims, err := m.agents.Citation.ExtractCited(ctx, in.Content, refs)
	if err != nil {
		if cerr := p.Check(ctx); cerr != nil {
			return nil, cerr
		}
		return nil, fmt.Errorf("extract cited claims: %w", err)
	}
	if len(claims) == 0 {
		p.Say("No cited claims identified")
		report.Summary.Message = "No cited claims identified in content"
		return report, nil
	}

	if err := p.Check(ctx); err != nil {
		return nil, err
	}
	var urls []string
	seen := map[string]struct{}{}
	for _, c := range claims {
		for _, u := range c.CitedURLs {
			if _, ok := seen[u]; !ok {
				seen[u] = struct{}{}
				urls = append(urls, u)
			}
		}
	}
	p.Say("Scraping %d cited sources...", len(urls))
	texts := m.scraper.Scrape(ctx, urls)

	if err := p.Check(ctx); err != nil {
		return nil, err
	}
	results := make([]CitationClaimResult, len(claims))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.ExcerptConcurrency)
	for i, c := range claims {
		results[i] = CitationClaimResult{Claim: c, Checks: make([]agent.CitationCheck, len(c.CitedURLs))}
		for j, u := range c.CitedURLs {
			g.Go(func() error {
				chk, _ := m.agents.Citation.Verify(gctx, c.Claim, u, texts[u])
				results[i].Checks[j] = chk
				return gctx.Err()
			})
		}
	}
	if err := g.Wait(); err != nil {
		if cerr := p.Check(ctx); cerr != nil {
			return nil, cerr
		}
		return nil, err
	}

	report.Claims = results
	report.Summary = summarizeCitations(results)
	p.Say("Citation verification complete: %d faithful, %d misrepresented", report.Summary.Faithful, report.Summary.Misrepresented)
	return report, nil
}

func summarizeCitations(results []CitationClaimResult) CitationSummary {
	s := CitationSummary{TotalClaims: len(results)}
	var total float64
	scored := 0
	for i := range results {
		r := &results[i]
		var sum float64
		n := 0
		for _, c := range r.Checks {
			if c.Assessment == agent.UnavailableSourceAssessment {
				s.SourcesUnavailable++
				continue
			}
			s.SourcesChecked++
			sum += c.Score
			n++
		}
		if n == 0 {
			r.Score = -1
			continue
		}
		r.Score = sum / float64(n)
		total += r.Score
		scored++
		if r.Score >= FaithfulThreshold {
			s.Faithful++
		} else {
			s.Misrepresented++
		}
	}
	if scored > 0 {
		s.AverageScore = total / float64(scored)
	}
	return s
}

func preview(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
