package agent

import (
	"context"
	"strings"

	"github.com/mohammad-safakhou/credence/internal/credibility"
)

// Marker is one category of linguistic deception marker.
type Marker struct {
	Category    string   `json:"category"`
	Present     bool     `json:"present"`
	Severity    string   `json:"severity"`
	Examples    []string `json:"examples"`
	Explanation string   `json:"explanation"`
}

// LieReport is the deception marker analysis.
type LieReport struct {
	RiskLevel          string   `json:"risk_level"`
	CredibilityScore   int      `json:"credibility_score"`
	Markers            []Marker `json:"markers_detected"`
	PositiveIndicators []string `json:"positive_indicators"`
	OverallAssessment  string   `json:"overall_assessment"`
	Conclusion         string   `json:"conclusion"`
	Reasoning          string   `json:"reasoning"`
	Error              string   `json:"error,omitempty"`
}

// LieInput carries the source calibration context.
type LieInput struct {
	Profile     *credibility.Profile
	Publication string
	Date        string
}

// LieDetector looks for linguistic markers of deception.
type LieDetector struct {
	runner *Runner
}

func NewLieDetector(r *Runner) *LieDetector { return &LieDetector{runner: r} }

// Analyze never fails; a failed call yields a neutral report and the cause.
func (d *LieDetector) Analyze(ctx context.Context, content string, in LieInput) (LieReport, error) {
	var out LieReport
	err := d.runner.Run(ctx, Call{
		Agent:  "lie_detector",
		Role:   RoleAnalysis,
		System: render(lieSystem, map[string]string{"context": credibility.LieDetectionContext(in.Profile, in.Publication, in.Date)}),
		Prompt: render(lieUser, map[string]string{"content": content}),
	}, &out)
	if err != nil {
		d.runner.Fallback(ctx, "lie_detector", err)
		return FallbackLieReport(err), err
	}
	out.RiskLevel = strings.ToUpper(strings.TrimSpace(out.RiskLevel))
	switch out.RiskLevel {
	case "LOW", "MEDIUM", "HIGH":
	default:
		out.RiskLevel = "MEDIUM"
	}
	out.CredibilityScore = int(clamp(float64(out.CredibilityScore), 0, 100))
	return out, nil
}

// FallbackLieReport is the neutral "could not determine" report.
func FallbackLieReport(err error) LieReport {
	return LieReport{
		RiskLevel:          "UNKNOWN",
		CredibilityScore:   50,
		Markers:            []Marker{},
		PositiveIndicators: []string{},
		OverallAssessment:  "Deception analysis unavailable",
		Conclusion:         "Could not determine",
		Error:              errString(err),
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
