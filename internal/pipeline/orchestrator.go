package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mohammad-safakhou/credence/config"
	"github.com/mohammad-safakhou/credence/internal/agent"
	"github.com/mohammad-safakhou/credence/internal/evidence"
	"github.com/mohammad-safakhou/credence/internal/job"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Pipelines.
const (
	PipelineComprehensive = "comprehensive"
	PipelineFactCheck     = "fact_check"
	ReportVersion         = "1.0.0"
)

// Request is one submitted analysis.
type Request struct {
	Content      string      `json:"content"`
	SourceURL    string      `json:"source_url,omitempty"`
	Pipeline     string      `json:"pipeline,omitempty"`
	ExplicitMode string      `json:"explicit_mode,omitempty"`
	Preferences  Preferences `json:"preferences,omitempty"`
}

// Validate normalizes r in place.
func (r *Request) Validate() error {
	r.Content = strings.TrimSpace(r.Content)
	if r.Content == "" {
		return errors.New("content is required")
	}
	r.Pipeline = strings.ToLower(strings.TrimSpace(r.Pipeline))
	if r.Pipeline == "" {
		r.Pipeline = PipelineComprehensive
	}
	if r.Pipeline != PipelineComprehensive && r.Pipeline != PipelineFactCheck {
		return fmt.Errorf("unsupported pipeline %q", r.Pipeline)
	}
	r.ExplicitMode = strings.ToLower(strings.TrimSpace(r.ExplicitMode))
	if r.ExplicitMode != "" && r.ExplicitMode != InputHTML && r.ExplicitMode != InputText {
		return fmt.Errorf("unsupported explicit_mode %q", r.ExplicitMode)
	}
	for _, m := range append(append([]Mode(nil), r.Preferences.ForceInclude...), r.Preferences.ForceExclude...) {
		if !m.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownMode, m)
		}
	}
	return nil
}

// ComprehensiveReport is the final result of the three-stage pipeline.
type ComprehensiveReport struct {
	JobID             string                `json:"job_id"`
	Classification    agent.Classification  `json:"content_classification"`
	Source            SourceVerification    `json:"source_verification"`
	Routing           ModeSelection         `json:"mode_routing"`
	Reports           map[Mode]any          `json:"mode_reports"`
	Errors            map[Mode]string       `json:"mode_errors"`
	ModeExecutionTime float64               `json:"mode_execution_time"`
	Synthesis         agent.SynthesisReport `json:"synthesis_report"`
	ProcessingTime    float64               `json:"processing_time"`
	Timestamp         time.Time             `json:"timestamp"`
	Version           string                `json:"version"`
}

// FactCheckSummary aggregates the exhaustive fact check.
type FactCheckSummary struct {
	TotalFacts   int     `json:"total_facts"`
	Accurate     int     `json:"accurate"`
	GoodMatch    int     `json:"good_match"`
	Questionable int     `json:"questionable"`
	AverageScore float64 `json:"avg_score"`
	Message      string  `json:"message,omitempty"`
}

// FactCheckReport is the result of the stand-alone fact-check pipeline.
type FactCheckReport struct {
	JobID          string                     `json:"job_id"`
	Mode           string                     `json:"mode"`
	Facts          []evidence.FactCheckResult `json:"facts,omitempty"`
	Summary        *FactCheckSummary          `json:"summary,omitempty"`
	Statistics     *VerificationStats         `json:"statistics,omitempty"`
	Citations      *CitationReport            `json:"citations,omitempty"`
	ProcessingTime float64                    `json:"processing_time"`
	Timestamp      time.Time                  `json:"timestamp"`
}

// SummarizeFacts computes the fact-check summary bands.
func SummarizeFacts(results []evidence.FactCheckResult) FactCheckSummary {
	s := FactCheckSummary{TotalFacts: len(results)}
	if len(results) == 0 {
		s.Message = "No verifiable facts found"
		return s
	}
	var sum float64
	for _, r := range results {
		sum += r.MatchScore
		switch {
		case r.MatchScore >= 0.9:
			s.Accurate++
		case r.MatchScore >= 0.7:
			s.GoodMatch++
		default:
			s.Questionable++
		}
	}
	s.AverageScore = math.Round(sum/float64(len(results))*1000) / 1000
	return s
}

// Orchestrator wires the stages together for both pipelines.
type Orchestrator struct {
	tracker  job.Tracker
	stage1   *Stage1
	executor *Executor
	synth    *Synthesis
	claims   *agent.ClaimExtractor
	verifier *Verifier
	modes    *Modes
	sink     ReportSink
	cfg      config.PipelineConfig
	logger   *log.Logger
	tracer   trace.Tracer
}

// OrchestratorDeps collects the collaborators of NewOrchestrator.
type OrchestratorDeps struct {
	Tracker  job.Tracker
	Stage1   *Stage1
	Executor *Executor
	Synth    *Synthesis
	Claims   *agent.ClaimExtractor
	Verifier *Verifier
	Modes    *Modes
	Sink     ReportSink
	Config   config.PipelineConfig
	Logger   *log.Logger
}

func NewOrchestrator(d OrchestratorDeps) *Orchestrator {
	if d.Logger == nil {
		d.Logger = log.New(io.Discard, "", 0)
	}
	return &Orchestrator{
		tracker:  d.Tracker,
		stage1:   d.Stage1,
		executor: d.Executor,
		synth:    d.Synth,
		claims:   d.Claims,
		verifier: d.Verifier,
		modes:    d.Modes,
		sink:     d.Sink,
		cfg:      d.Config.Normalize(),
		logger:   d.Logger,
		tracer:   otel.Tracer("credence/internal/pipeline"),
	}
}

// Runner adapts req to the job supervisor.
func (o *Orchestrator) Runner(req Request) job.Runner {
	return func(ctx context.Context, jobID string) (any, error) {
		return o.Run(ctx, jobID, req)
	}
}

// Run dispatches req to its pipeline.
func (o *Orchestrator) Run(ctx context.Context, jobID string, req Request) (any, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Pipeline == PipelineFactCheck {
		return o.FactCheck(ctx, jobID, req)
	}
	return o.Comprehensive(ctx, jobID, req)
}

// Comprehensive runs pre-analysis, the parallel modes and synthesis.
func (o *Orchestrator) Comprehensive(ctx context.Context, jobID string, req Request) (*ComprehensiveReport, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline.comprehensive", trace.WithAttributes(attribute.String("job_id", jobID)))
	defer span.End()
	p := NewProgress(o.tracker, jobID)
	start := time.Now()
	content := truncate(req.Content, o.cfg.MaxContentCharacters)
	o.logger.Printf("[PIPELINE] job=%s comprehensive analysis starting (%d chars)", jobID, len(content))

	p.Say("Stage 1: Pre-analysis starting...")
	st1, err := o.stage1.Run(ctx, content, req.SourceURL, req.Preferences, p)
	if err != nil {
		return nil, o.abort(p, err)
	}
	if err := p.Check(ctx); err != nil {
		return nil, o.abort(p, err)
	}
	p.Say("Stage 1 complete")

	p.Say("Stage 2: Mode execution starting...")
	st2, err := o.executor.Run(ctx, ModeInput{Content: content, Stage1: st1, Progress: p}, st1.Routing.Selected)
	if err != nil {
		return nil, o.abort(p, err)
	}
	if err := p.Check(ctx); err != nil {
		return nil, o.abort(p, err)
	}
	p.Say("Stage 2 complete")

	p.Say("Stage 3: Synthesizing results...")
	synth := o.synth.Run(ctx, st1, st2, p)
	if err := p.Check(ctx); err != nil {
		return nil, o.abort(p, err)
	}
	p.Say("Stage 3 complete")

	report := &ComprehensiveReport{
		JobID:             jobID,
		Classification:    st1.Classification,
		Source:            st1.Source,
		Routing:           st1.Routing,
		Reports:           st2.Reports,
		Errors:            st2.Errors,
		ModeExecutionTime: st2.ExecutionSeconds,
		Synthesis:         synth,
		ProcessingTime:    seconds(time.Since(start)),
		Timestamp:         time.Now().UTC(),
		Version:           ReportVersion,
	}
	o.save(jobID, PipelineComprehensive, report)
	o.logger.Printf("[PIPELINE] job=%s complete in %.1fs: %d modes, score %d", jobID, report.ProcessingTime, len(st2.Reports), synth.OverallScore)
	return report, nil
}

// FactCheck verifies content on its own: plain text goes through the
// exhaustive web-search fact check, HTML or linked content through
// citation verification.
func (o *Orchestrator) FactCheck(ctx context.Context, jobID string, req Request) (*FactCheckReport, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline.fact_check", trace.WithAttributes(attribute.String("job_id", jobID)))
	defer span.End()
	p := NewProgress(o.tracker, jobID)
	start := time.Now()
	content := truncate(req.Content, o.cfg.MaxContentCharacters)

	mode := req.ExplicitMode
	if mode == "" {
		mode = DetectInputMode(content)
	}
	span.SetAttributes(attribute.String("mode", mode))
	report := &FactCheckReport{JobID: jobID, Mode: mode}

	if mode == InputHTML {
		cls := agent.Classification{ReferenceURLs: agent.DetectReferences(content).URLs}
		out, err := o.modes.Citation(ctx, ModeInput{Content: content, Stage1: Stage1Result{Classification: cls}, Progress: p})
		if err != nil {
			return nil, o.abort(p, err)
		}
		report.Citations = out.(*CitationReport)
	} else {
		p.Say("Extracting facts...")
		if err := p.Check(ctx); err != nil {
			return nil, o.abort(p, err)
		}
		ext, err := o.claims.Extract(ctx, content, agent.ExtractAll, 0)
		if err != nil {
			if cerr := p.Check(ctx); cerr != nil {
				return nil, o.abort(p, cerr)
			}
			return nil, o.abort(p, fmt.Errorf("extract facts: %w", err))
		}
		p.Say("Extracted %d facts", len(ext.Claims))
		vers, stats, err := o.verifier.VerifyAll(ctx, ext.Claims, VerifyOptions{
			MaxSources:  o.cfg.FactCheckMaxSources,
			Concurrency: o.cfg.ClaimConcurrency,
		}, p)
		if err != nil {
			return nil, o.abort(p, err)
		}
		report.Facts = Results(vers)
		summary := SummarizeFacts(report.Facts)
		report.Summary = &summary
		report.Statistics = &stats
	}
	if err := p.Check(ctx); err != nil {
		return nil, o.abort(p, err)
	}
	report.ProcessingTime = seconds(time.Since(start))
	report.Timestamp = time.Now().UTC()
	p.Say("Fact check complete")
	o.save(jobID, PipelineFactCheck, report)
	return report, nil
}

// abort logs the unwinding cause. Cancellation is passed through unchanged
// so the supervisor can tell it apart from failure.
func (o *Orchestrator) abort(p *Progress, err error) error {
	if errors.Is(err, job.ErrCancelled) {
		p.Say("Analysis cancelled by user")
		o.logger.Printf("[PIPELINE] job=%s cancelled", p.JobID())
		return job.ErrCancelled
	}
	o.logger.Printf("[PIPELINE] job=%s failed: %v", p.JobID(), err)
	return err
}

// save hands report to the sink without blocking the job.
func (o *Orchestrator) save(jobID, kind string, report any) {
	if o.sink == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := o.sink.SaveReport(ctx, jobID, kind, report); err != nil {
			o.logger.Printf("[PIPELINE] job=%s report save failed: %v", jobID, err)
		}
	}()
}

func seconds(d time.Duration) float64 { return math.Round(d.Seconds()*100) / 100 }

// truncate cuts s to at most max bytes on a rune boundary.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
