package agent

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
)

// Rating vocabulary, best first.
const (
	RatingHighlyCredible = "Highly Credible"
	RatingCredible       = "Credible"
	RatingMixed          = "Mixed"
	RatingLow            = "Low Credibility"
	RatingUnreliable     = "Unreliable"
)

// Ratings lists the fixed rating bands.
var Ratings = []string{RatingHighlyCredible, RatingCredible, RatingMixed, RatingLow, RatingUnreliable}

// RatingFor maps a 0-100 score to its band.
func RatingFor(score int) string {
	switch {
	case score >= 80:
		return RatingHighlyCredible
	case score >= 65:
		return RatingCredible
	case score >= 45:
		return RatingMixed
	case score >= 25:
		return RatingLow
	default:
		return RatingUnreliable
	}
}

func validRating(r string) (string, bool) {
	for _, v := range Ratings {
		if strings.EqualFold(strings.TrimSpace(r), v) {
			return v, true
		}
	}
	return "", false
}

// SynthesisReport is the final verdict.
type SynthesisReport struct {
	OverallScore       int      `json:"overall_score"`
	OverallRating      string   `json:"overall_rating"`
	Confidence         int      `json:"confidence"`
	Summary            string   `json:"summary"`
	KeyConcerns        []string `json:"key_concerns"`
	PositiveIndicators []string `json:"positive_indicators"`
	Recommendations    []string `json:"recommendations"`
	ModesAnalyzed      []string `json:"modes_analyzed"`
	AnalysisNotes      string   `json:"analysis_notes,omitempty"`
	Fallback           bool     `json:"fallback"`
}

// synthesisReply accepts fractional scores from the model.
type synthesisReply struct {
	SynthesisReport
	OverallScore float64 `json:"overall_score"`
	Confidence   float64 `json:"confidence"`
}

// SynthesisInput is everything the synthesizer reads. Values are marshalled
// to JSON for the prompt.
type SynthesisInput struct {
	Classification any
	Source         any
	Reports        map[string]any
	Failed         map[string]string
}

// Synthesizer writes the final report. It has no fallback of its own; the
// caller applies the deterministic scorer.
type Synthesizer struct {
	runner *Runner
}

func NewSynthesizer(r *Runner) *Synthesizer { return &Synthesizer{runner: r} }

func (s *Synthesizer) Synthesize(ctx context.Context, in SynthesisInput) (SynthesisReport, error) {
	failed := "none"
	if len(in.Failed) > 0 {
		b, _ := json.Marshal(in.Failed)
		failed = string(b)
	}
	var reply synthesisReply
	err := s.runner.Run(ctx, Call{
		Agent:       "report_synthesizer",
		Role:        RoleSynthesis,
		System:      synthesisSystem,
		Temperature: float(0.3),
		Prompt: render(synthesisUser, map[string]string{
			"classification": marshalIndent(in.Classification),
			"source":         marshalIndent(in.Source),
			"reports":        marshalIndent(in.Reports),
			"failed":         failed,
		}),
	}, &reply)
	if err != nil {
		return SynthesisReport{}, err
	}
	out := reply.SynthesisReport
	if strings.TrimSpace(out.Summary) == "" {
		return SynthesisReport{}, newError("report_synthesizer", KindOutput, errEmptySummary)
	}
	out.OverallScore = int(math.Round(clamp(reply.OverallScore, 0, 100)))
	out.Confidence = int(math.Round(clamp(reply.Confidence, 0, 100)))
	if r, ok := validRating(out.OverallRating); ok {
		out.OverallRating = r
	} else {
		out.OverallRating = RatingFor(out.OverallScore)
	}
	for _, l := range []*[]string{&out.KeyConcerns, &out.PositiveIndicators, &out.Recommendations} {
		if *l == nil {
			*l = []string{}
		}
	}
	return out, nil
}

var errEmptySummary = errors.New("synthesis summary is empty")

func marshalIndent(v any) string {
	if v == nil {
		return "null"
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "null"
	}
	return string(b)
}
