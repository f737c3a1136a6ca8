package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mohammad-safakhou/credence/internal/credibility"
	"github.com/mohammad-safakhou/credence/internal/evidence"
)

// ArticleSummary is the agenda analysis of an article.
type ArticleSummary struct {
	MainThesis           string   `json:"main_thesis"`
	DetectedAgenda       string   `json:"detected_agenda"`
	PoliticalLean        string   `json:"political_lean"`
	OpinionFactRatio     float64  `json:"opinion_fact_ratio"`
	EmotionalTone        string   `json:"emotional_tone"`
	TargetAudience       string   `json:"target_audience"`
	RhetoricalStrategies []string `json:"rhetorical_strategies"`
	Summary              string   `json:"summary"`
	Error                string   `json:"error,omitempty"`
}

// ManipulationFinding is the verdict for one framed fact.
type ManipulationFinding struct {
	FactID           string   `json:"fact_id"`
	Detected         bool     `json:"manipulation_detected"`
	Types            []string `json:"manipulation_types"`
	Severity         string   `json:"manipulation_severity"`
	Omitted          []string `json:"what_was_omitted"`
	ServesAgenda     string   `json:"how_it_serves_agenda"`
	CorrectedContext string   `json:"corrected_context"`
	Reasoning        string   `json:"reasoning"`
	Error            string   `json:"error,omitempty"`
}

// ManipulationReport is the article-level manipulation verdict.
type ManipulationReport struct {
	OverallScore       float64  `json:"overall_manipulation_score"`
	Techniques         []string `json:"manipulation_techniques_used"`
	WhatGotRight       []string `json:"what_got_right"`
	MisleadingElements []string `json:"misleading_elements"`
	Recommendation     string   `json:"recommendation"`
	NarrativeSummary   string   `json:"narrative_summary"`
	Confidence         float64  `json:"confidence"`
	Error              string   `json:"error,omitempty"`
}

// ManipulationDetector runs the agenda, framing and manipulation steps of the
// manipulation mode. Fact verification is done by the caller.
type ManipulationDetector struct {
	runner *Runner
}

func NewManipulationDetector(r *Runner) *ManipulationDetector {
	return &ManipulationDetector{runner: r}
}

// AnalyzeArticle detects the article's agenda. Failure degrades to an
// undetermined summary.
func (d *ManipulationDetector) AnalyzeArticle(ctx context.Context, content, source string, profile *credibility.Profile) (ArticleSummary, error) {
	if source == "" {
		source = "Unknown source"
	}
	var out ArticleSummary
	err := d.runner.Run(ctx, Call{
		Agent:  "manipulation_agenda",
		Role:   RoleAnalysis,
		System: render(agendaSystem, map[string]string{"context": credibility.ManipulationContext(profile, source)}),
		Prompt: render(agendaUser, map[string]string{"source": source, "content": content}),
	}, &out)
	if err != nil {
		d.runner.Fallback(ctx, "manipulation_agenda", err)
		return ArticleSummary{
			DetectedAgenda:   "Unable to determine",
			PoliticalLean:    "unknown",
			OpinionFactRatio: 0.5,
			Error:            err.Error(),
		}, err
	}
	out.OpinionFactRatio = clamp01(out.OpinionFactRatio)
	return out, nil
}

// ExtractFacts pulls the facts the article leans on, with framing. Errors
// propagate.
func (d *ManipulationDetector) ExtractFacts(ctx context.Context, content string, summary ArticleSummary, max int) ([]evidence.Claim, error) {
	if max <= 0 || max > 3 {
		max = 3
	}
	var out extractionOut
	if err := d.runner.Run(ctx, Call{
		Agent:  "manipulation_facts",
		Role:   RoleExtraction,
		System: render(framingFactsSystem, map[string]string{"count": strconv.Itoa(max)}),
		Prompt: render(framingFactsUser, map[string]string{"agenda": summary.DetectedAgenda, "content": content}),
	}, &out); err != nil {
		return nil, err
	}
	return normalizeClaims(out, "MF", max), nil
}

// AnalyzeFact judges whether the article manipulates fact given its
// verification. Failure degrades to "not determined".
func (d *ManipulationDetector) AnalyzeFact(ctx context.Context, fact evidence.Claim, summary ArticleSummary, verification evidence.FactCheckResult) (ManipulationFinding, error) {
	var out ManipulationFinding
	err := d.runner.Run(ctx, Call{
		Agent:  "manipulation_fact",
		Role:   RoleAnalysis,
		System: manipulationSystem,
		Prompt: render(manipulationUser, map[string]string{
			"fact":       fact.Statement,
			"framing":    fact.Framing,
			"agenda":     summary.DetectedAgenda,
			"score":      fmt.Sprintf("%.2f", verification.MatchScore),
			"assessment": verification.Assessment,
			"excerpts":   FormatExcerpts(verification.Excerpts),
		}),
	}, &out)
	if err != nil {
		d.runner.Fallback(ctx, "manipulation_fact", err)
		return ManipulationFinding{
			FactID:    fact.ID,
			Severity:  "none",
			Types:     []string{},
			Omitted:   []string{},
			Reasoning: "Manipulation analysis failed for this fact",
			Error:     err.Error(),
		}, err
	}
	out.FactID = fact.ID
	out.Severity = strings.ToLower(strings.TrimSpace(out.Severity))
	if _, ok := severityWeight[out.Severity]; !ok {
		out.Severity = "none"
		if out.Detected {
			out.Severity = "medium"
		}
	}
	return out, nil
}

var severityWeight = map[string]float64{"none": 1, "low": 3, "medium": 5.5, "high": 8}

// Report writes the article-level report. Failure degrades to a score
// derived from the per-fact severities.
func (d *ManipulationDetector) Report(ctx context.Context, summary ArticleSummary, findings []ManipulationFinding) (ManipulationReport, error) {
	sj, _ := json.Marshal(summary)
	fj, _ := json.Marshal(findings)
	var out ManipulationReport
	err := d.runner.Run(ctx, Call{
		Agent:  "manipulation_report",
		Role:   RoleSynthesis,
		System: manipulationReportSystem,
		Prompt: render(manipulationReportUser, map[string]string{"summary": string(sj), "findings": string(fj)}),
	}, &out)
	if err != nil {
		d.runner.Fallback(ctx, "manipulation_report", err)
		return FallbackManipulationReport(findings, err), err
	}
	out.OverallScore = clamp(out.OverallScore, 0, 10)
	out.Confidence = clamp01(out.Confidence)
	return out, nil
}

// FallbackManipulationReport scores manipulation from the finding
// severities alone.
func FallbackManipulationReport(findings []ManipulationFinding, err error) ManipulationReport {
	r := ManipulationReport{
		Techniques:         []string{},
		WhatGotRight:       []string{},
		MisleadingElements: []string{},
		Recommendation:     "Review the per-fact findings",
		Confidence:         0.3,
		Error:              errString(err),
	}
	if len(findings) == 0 {
		r.OverallScore = 0
		r.NarrativeSummary = "No facts were analysed for manipulation."
		return r
	}
	var sum float64
	seen := map[string]struct{}{}
	for _, f := range findings {
		sum += severityWeight[f.Severity]
		for _, t := range f.Types {
			if _, ok := seen[t]; !ok {
				seen[t] = struct{}{}
				r.Techniques = append(r.Techniques, t)
			}
		}
		if f.Detected {
			r.MisleadingElements = append(r.MisleadingElements, f.ServesAgenda)
		}
	}
	r.OverallScore = sum / float64(len(findings))
	r.NarrativeSummary = fmt.Sprintf("Manipulation score %.1f/10 derived from %d analysed facts.", r.OverallScore, len(findings))
	return r
}
