package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mohammad-safakhou/credence/internal/credibility"
)

// Neutral bias fallback.
const (
	FallbackBiasScore     = 5.0
	FallbackBiasDirection = "unknown"
)

// BiasInstance is one concrete bias finding.
type BiasInstance struct {
	Type       string   `json:"type"`
	Direction  string   `json:"direction"`
	Severity   int      `json:"severity"`
	Evidence   string   `json:"evidence"`
	Techniques []string `json:"techniques"`
}

// BiasAnalysis is one model's reading.
type BiasAnalysis struct {
	Model               string         `json:"model_name"`
	Score               float64        `json:"overall_bias_score"`
	Direction           string         `json:"primary_bias_direction"`
	Biases              []BiasInstance `json:"biases_detected"`
	BalancedAspects     []string       `json:"balanced_aspects"`
	MissingPerspectives []string       `json:"missing_perspectives"`
	Recommendations     []string       `json:"recommendations"`
	Reasoning           string         `json:"reasoning"`
}

// BiasReport combines the per-model analyses.
type BiasReport struct {
	ConsensusScore     float64        `json:"consensus_bias_score"`
	ConsensusDirection string         `json:"consensus_direction"`
	Analyses           []BiasAnalysis `json:"analyses"`
	AreasOfAgreement   []string       `json:"areas_of_agreement"`
	PublicationContext string         `json:"publication_bias_context,omitempty"`
	FinalAssessment    string         `json:"final_assessment"`
	Confidence         float64        `json:"confidence"`
	Recommendations    []string       `json:"recommendations"`
	Error              string         `json:"error,omitempty"`
}

// BiasInput is the source context for a bias check.
type BiasInput struct {
	Profile     *credibility.Profile
	Publication string
}

// BiasChecker reads content with one or more models in parallel and
// combines their scores.
type BiasChecker struct {
	runner *Runner
	models []string
}

// NewBiasChecker uses models for independent readings; with none it uses the
// analysis role's model.
func NewBiasChecker(r *Runner, models ...string) *BiasChecker {
	return &BiasChecker{runner: r, models: models}
}

// Check never fails: if every reading fails it returns the neutral fallback
// report (score 5.0, direction unknown) and the last cause.
func (b *BiasChecker) Check(ctx context.Context, content string, in BiasInput) (BiasReport, error) {
	models := b.models
	if len(models) == 0 {
		models = []string{""}
	}
	system := render(biasSystem, map[string]string{
		"context": credibility.BiasContext(in.Profile, in.Publication) + credibility.BuildContext(in.Profile, in.Publication),
	})
	prompt := render(biasUser, map[string]string{"content": content})

	analyses := make([]*BiasAnalysis, len(models))
	errs := make([]error, len(models))
	var wg sync.WaitGroup
	for i, model := range models {
		wg.Add(1)
		go func(i int, model string) {
			defer wg.Done()
			var out BiasAnalysis
			err := b.runner.Run(ctx, Call{Agent: "bias_checker", Role: RoleAnalysis, Model: model, System: system, Prompt: prompt}, &out)
			if err != nil {
				errs[i] = err
				return
			}
			if out.Model == "" {
				out.Model = model
			}
			out.Score = clamp(out.Score, 0, 10)
			analyses[i] = &out
		}(i, model)
	}
	wg.Wait()

	var ok []BiasAnalysis
	var lastErr error
	for i, a := range analyses {
		if a != nil {
			ok = append(ok, *a)
		} else if errs[i] != nil {
			lastErr = errs[i]
		}
	}
	if len(ok) == 0 {
		b.runner.Fallback(ctx, "bias_checker", lastErr)
		return FallbackBiasReport(lastErr), lastErr
	}
	report := combineBias(ok)
	if in.Profile != nil && in.Profile.BiasLabel != "" {
		report.PublicationContext = fmt.Sprintf("Publication rated %q for bias (%s)", in.Profile.BiasLabel, credibility.SummaryLine(in.Profile))
	}
	return report, nil
}

// FallbackBiasReport is the neutral "could not determine" report.
func FallbackBiasReport(err error) BiasReport {
	msg := "bias analysis unavailable"
	if err != nil {
		msg = err.Error()
	}
	return BiasReport{
		ConsensusScore:     FallbackBiasScore,
		ConsensusDirection: FallbackBiasDirection,
		FinalAssessment:    "Bias could not be determined",
		Confidence:         0,
		Recommendations:    []string{},
		AreasOfAgreement:   []string{},
		Error:              msg,
	}
}

func combineBias(analyses []BiasAnalysis) BiasReport {
	var sum float64
	directions := map[string]int{}
	types := map[string]int{}
	var recs []string
	seenRec := map[string]struct{}{}
	for _, a := range analyses {
		sum += a.Score
		if d := strings.ToLower(strings.TrimSpace(a.Direction)); d != "" {
			directions[d]++
		}
		seenType := map[string]struct{}{}
		for _, bi := range a.Biases {
			t := strings.ToLower(bi.Type)
			if _, dup := seenType[t]; !dup && t != "" {
				seenType[t] = struct{}{}
				types[t]++
			}
		}
		for _, r := range a.Recommendations {
			if _, dup := seenRec[r]; !dup {
				seenRec[r] = struct{}{}
				recs = append(recs, r)
			}
		}
	}
	score := sum / float64(len(analyses))
	direction := majority(directions)
	if direction == "" {
		direction = FallbackBiasDirection
	}
	agreement := []string{}
	for t, n := range types {
		if n == len(analyses) && len(analyses) > 1 {
			agreement = append(agreement, t)
		}
	}
	sort.Strings(agreement)

	confidence := 0.7
	if len(analyses) > 1 {
		// Readings that agree on direction raise confidence.
		if directions[direction] == len(analyses) {
			confidence = 0.85
		} else {
			confidence = 0.6
		}
	}
	if recs == nil {
		recs = []string{}
	}
	return BiasReport{
		ConsensusScore:     score,
		ConsensusDirection: direction,
		Analyses:           analyses,
		AreasOfAgreement:   agreement,
		FinalAssessment:    fmt.Sprintf("Consensus bias %.1f/10, leaning %s", score, direction),
		Confidence:         confidence,
		Recommendations:    recs,
	}
}

func majority(counts map[string]int) string {
	best, bestN := "", 0
	for k, n := range counts {
		if n > bestN || (n == bestN && k < best) {
			best, bestN = k, n
		}
	}
	return best
}
