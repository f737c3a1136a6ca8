package pipeline

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"sort"
	"strings"

	"github.com/mohammad-safakhou/credence/internal/agent"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Fallback scorer weights.
const (
	fallbackBase       = 50
	fallbackConfidence = 40
	claimsStrong       = 0.7
	claimsWeak         = 0.4
	biasHigh           = 6.0
	biasLow            = 3.0
	manipulationHigh   = 6.0
	manipulationLow    = 3.0
)

// Synthesis produces the final report, falling back to the deterministic
// scorer when the synthesis agent fails.
type Synthesis struct {
	agent  *agent.Synthesizer
	logger *log.Logger
	tracer trace.Tracer
}

func NewSynthesis(s *agent.Synthesizer, logger *log.Logger) *Synthesis {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Synthesis{agent: s, logger: logger, tracer: otel.Tracer("credence/internal/pipeline")}
}

// Run always returns a well-formed report.
func (s *Synthesis) Run(ctx context.Context, st1 Stage1Result, st2 Stage2Result, p *Progress) agent.SynthesisReport {
	ctx, span := s.tracer.Start(ctx, "pipeline.stage3")
	defer span.End()
	p.Stage("synthesis", "Synthesizing final report...")

	reports := make(map[string]any, len(st2.Reports))
	for m, r := range st2.Reports {
		reports[string(m)] = r
	}
	failed := make(map[string]string, len(st2.Errors))
	for m, e := range st2.Errors {
		failed[string(m)] = e
	}

	var (
		report agent.SynthesisReport
		err    error
	)
	if s.agent != nil {
		report, err = s.agent.Synthesize(ctx, agent.SynthesisInput{
			Classification: st1.Classification,
			Source:         st1.Source,
			Reports:        reports,
			Failed:         failed,
		})
	} else {
		err = fmt.Errorf("no synthesis agent configured")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Printf("[STAGE3] job=%s synthesis failed, using fallback scorer: %v", p.JobID(), err)
		report = FallbackSynthesis(st2, err)
		p.Say("Synthesis complete (fallback): %d/100 %s", report.OverallScore, report.OverallRating)
		return report
	}

	if len(report.ModesAnalyzed) == 0 {
		report.ModesAnalyzed = modeNames(st2.Reports)
	}
	if note := failedNote(st2.Errors); note != "" {
		report.AnalysisNotes = strings.TrimSpace(report.AnalysisNotes + " " + note)
	}
	p.Say("Synthesis complete: %d/100 %s", report.OverallScore, report.OverallRating)
	return report
}

// FallbackSynthesis scores the mode reports with fixed rules: start at 50,
// adjust for claim verification confidence, bias magnitude and manipulation
// magnitude, then map to the rating bands.
func FallbackSynthesis(st2 Stage2Result, cause error) agent.SynthesisReport {
	score := fallbackBase
	concerns := []string{}
	positives := []string{}

	if kc, ok := keyClaimsReport(st2.Reports[ModeKeyClaims]); ok && kc.Summary.Total > 0 {
		avg := kc.Summary.AverageConfidence
		switch {
		case avg >= claimsStrong:
			score += 15
			positives = append(positives, fmt.Sprintf("Key claims verified with high confidence (%.0f%%)", avg*100))
		case avg < claimsWeak:
			score -= 20
			concerns = append(concerns, fmt.Sprintf("Low fact verification confidence (%.0f%%)", avg*100))
		}
	}
	if b, ok := biasReport(st2.Reports[ModeBias]); ok {
		mag := math.Abs(b.ConsensusScore)
		switch {
		case mag > biasHigh:
			score -= 15
			concerns = append(concerns, fmt.Sprintf("Significant %s bias detected (score %.1f/10)", b.ConsensusDirection, b.ConsensusScore))
		case mag < biasLow:
			positives = append(positives, "Content appears relatively balanced")
		}
	}
	if mr, ok := manipulationReport(st2.Reports[ModeManipulation]); ok {
		switch {
		case mr.Score > manipulationHigh:
			score -= 20
			concerns = append(concerns, fmt.Sprintf("High manipulation score (%.1f/10)", mr.Score))
		case mr.Score < manipulationLow:
			positives = append(positives, "Little evidence of fact manipulation")
		}
	}
	for _, m := range sortedModes(st2.Errors) {
		concerns = append(concerns, fmt.Sprintf("%s could not be completed", m))
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	reason := "unknown error"
	if cause != nil {
		reason = cause.Error()
	}
	notes := fmt.Sprintf("AI synthesis failed: %s. Using fallback metrics.", reason)
	if note := failedNote(st2.Errors); note != "" {
		notes += " " + note
	}
	rating := agent.RatingFor(score)
	return agent.SynthesisReport{
		OverallScore:       score,
		OverallRating:      rating,
		Confidence:         fallbackConfidence,
		Summary:            fmt.Sprintf("Automated scoring rated this content %s (%d/100) from %d completed analysis modes. A narrative synthesis was not available.", rating, score, len(st2.Reports)),
		KeyConcerns:        concerns,
		PositiveIndicators: positives,
		Recommendations: []string{
			"Review the individual mode reports for details",
			"Cross-check key claims with primary sources",
			"Consider the source's credibility tier when weighing conclusions",
		},
		ModesAnalyzed: modeNames(st2.Reports),
		AnalysisNotes: notes,
		Fallback:      true,
	}
}

func keyClaimsReport(v any) (KeyClaimsReport, bool) {
	switch r := v.(type) {
	case *KeyClaimsReport:
		if r != nil {
			return *r, true
		}
	case KeyClaimsReport:
		return r, true
	}
	return KeyClaimsReport{}, false
}

func biasReport(v any) (agent.BiasReport, bool) {
	switch r := v.(type) {
	case *agent.BiasReport:
		if r != nil {
			return *r, true
		}
	case agent.BiasReport:
		return r, true
	}
	return agent.BiasReport{}, false
}

func manipulationReport(v any) (ManipulationModeReport, bool) {
	switch r := v.(type) {
	case *ManipulationModeReport:
		if r != nil {
			return *r, true
		}
	case ManipulationModeReport:
		return r, true
	}
	return ManipulationModeReport{}, false
}

func failedNote(errs map[Mode]string) string {
	if len(errs) == 0 {
		return ""
	}
	modes := sortedModes(errs)
	names := make([]string, len(modes))
	for i, m := range modes {
		names[i] = string(m)
	}
	return "Some analysis modes failed: " + strings.Join(names, ", ") + "."
}

// modeNames lists the modes with reports in routing order.
func modeNames(reports map[Mode]any) []string {
	out := []string{}
	for _, m := range AllModes {
		if _, ok := reports[m]; ok {
			out = append(out, string(m))
		}
	}
	return out
}

func sortedModes(errs map[Mode]string) []Mode {
	out := make([]Mode, 0, len(errs))
	for m := range errs {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
