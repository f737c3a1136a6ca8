package pipeline

import (
	"log"

	"github.com/mohammad-safakhou/credence/config"
	"github.com/mohammad-safakhou/credence/internal/agent"
	"github.com/mohammad-safakhou/credence/internal/credibility"
	"github.com/mohammad-safakhou/credence/internal/job"
	otelmetric "go.opentelemetry.io/otel/metric"
)

// Collaborators are the external dependencies of Build.
type Collaborators struct {
	Runner   *agent.Runner
	Lookup   credibility.Lookup
	Searcher Searcher
	Scraper  Scraper
	Tracker  job.Tracker
	Sink     ReportSink
	Logger   *log.Logger
	Meter    otelmetric.Meter
	// BiasModels lists models for independent bias readings. Empty falls
	// back to agents.bias_models.
	BiasModels []string
}

// Build assembles an Orchestrator from configuration.
func Build(cfg *config.Config, c Collaborators) *Orchestrator {
	pc := cfg.Pipeline.Normalize()
	r := c.Runner
	filter := credibility.NewFilter(c.Lookup, pc.MinCredibilityScore)

	k := cfg.Sources.WebSearch.Normalize().MaxResults
	if pc.SearchDepth == "basic" && k > 5 {
		k = 5
	}
	verifier := NewVerifier(
		agent.NewQueryGenerator(r, pc.AlternativeQueries),
		c.Searcher,
		filter,
		c.Scraper,
		agent.NewHighlighter(r),
		agent.NewChecker(r),
		VerifierOptions{ResultsPerQuery: k, ExcerptConcurrency: pc.ExcerptConcurrency, Logger: c.Logger},
	)
	biasModels := c.BiasModels
	if len(biasModels) == 0 {
		biasModels = cfg.Agents.Normalize().BiasModels
	}
	claims := agent.NewClaimExtractor(r)
	modes := NewModes(Agents{
		Claims:       claims,
		Bias:         agent.NewBiasChecker(r, biasModels...),
		Lie:          agent.NewLieDetector(r),
		Manipulation: agent.NewManipulationDetector(r),
		Citation:     agent.NewCitationVerifier(r),
	}, verifier, c.Scraper, pc, c.Logger)

	return NewOrchestrator(OrchestratorDeps{
		Tracker:  c.Tracker,
		Stage1:   NewStage1(agent.NewClassifier(r), c.Lookup, cfg.Credibility.DeepLookup, c.Logger),
		Executor: NewExecutor(modes.Runners(), c.Logger, c.Meter),
		Synth:    NewSynthesis(agent.NewSynthesizer(r), c.Logger),
		Claims:   claims,
		Verifier: verifier,
		Modes:    modes,
		Sink:     c.Sink,
		Config:   pc,
		Logger:   c.Logger,
	})
}
