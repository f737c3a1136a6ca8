// Package pipeline runs the credibility analysis of submitted content: a
// sequential pre-analysis, the selected analysis modes in parallel, and a
// final synthesis. A stand-alone fact-check pipeline shares the verification
// sub-pipeline.
package pipeline

import (
	"context"
	"fmt"

	"github.com/mohammad-safakhou/credence/internal/evidence"
	"github.com/mohammad-safakhou/credence/internal/job"
)

// Mode identifies one top-level analysis.
type Mode string

const (
	ModeKeyClaims    Mode = "key_claims_analysis"
	ModeBias         Mode = "bias_analysis"
	ModeManipulation Mode = "manipulation_detection"
	ModeLie          Mode = "lie_detection"
	ModeCitation     Mode = "llm_output_verification"
)

// AllModes lists the modes in routing order.
var AllModes = []Mode{ModeCitation, ModeKeyClaims, ModeBias, ModeManipulation, ModeLie}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	for _, k := range AllModes {
		if k == m {
			return true
		}
	}
	return false
}

// Searcher runs a batch of web-search queries. Individual query failures
// are absorbed; only cancellation is returned.
type Searcher interface {
	SearchAll(ctx context.Context, queries []string, k int) ([]evidence.SearchResult, error)
}

// Scraper returns text per URL, empty for URLs that could not be fetched.
type Scraper interface {
	Scrape(ctx context.Context, urls []string) map[string]string
}

// ReportSink receives finished reports. Writes are best effort.
type ReportSink interface {
	SaveReport(ctx context.Context, jobID, kind string, report any) error
}

// Progress writes a job's progress log and answers cancellation checks.
type Progress struct {
	tracker job.Tracker
	jobID   string
}

func NewProgress(t job.Tracker, jobID string) *Progress {
	return &Progress{tracker: t, jobID: jobID}
}

// JobID returns the job the progress belongs to.
func (p *Progress) JobID() string {
	if p == nil {
		return ""
	}
	return p.jobID
}

func (p *Progress) Say(format string, args ...any) {
	p.Detail(nil, format, args...)
}

func (p *Progress) Detail(detail map[string]any, format string, args ...any) {
	if p == nil || p.tracker == nil {
		return
	}
	_ = p.tracker.AppendProgress(p.jobID, fmt.Sprintf(format, args...), detail)
}

// Stage announces a named stage.
func (p *Progress) Stage(stage, message string) {
	p.Detail(map[string]any{"stage": stage}, "%s", message)
}

// Partial publishes an intermediate result under name.
func (p *Progress) Partial(name string, value any, message string) {
	p.Detail(map[string]any{"partial_result": map[string]any{name: value}}, "%s", message)
}

// Check returns job.ErrCancelled once cancellation was requested, or the
// context error once ctx is done.
func (p *Progress) Check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p != nil && p.tracker != nil && p.tracker.IsCancelled(p.jobID) {
		return job.ErrCancelled
	}
	return nil
}
