package pipeline

import (
	"context"
	"io"
	"log"
	"strings"

	"github.com/mohammad-safakhou/credence/internal/agent"
	"github.com/mohammad-safakhou/credence/internal/credibility"
	"github.com/mohammad-safakhou/credence/internal/helpers"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Source verification statuses.
const (
	SourceVerified      = "verified"
	SourceNoURL         = "no_url_to_verify"
	SourceUnverifiable  = "unverifiable"
	defaultRoutingError = "Default selection due to routing error"
)

// SourceVerification is the credibility lookup for the content's source.
type SourceVerification struct {
	Status  string               `json:"status"`
	URL     string               `json:"url,omitempty"`
	Profile *credibility.Profile `json:"profile,omitempty"`
	Error   string               `json:"error,omitempty"`
}

// Publication returns the verified domain, or "".
func (s SourceVerification) Publication() string {
	if s.Profile == nil {
		return ""
	}
	return s.Profile.Domain
}

// Stage1Result is the pre-analysis handed to every mode.
type Stage1Result struct {
	Classification agent.Classification `json:"content_classification"`
	Source         SourceVerification   `json:"source_verification"`
	Routing        ModeSelection        `json:"mode_routing"`
}

// Stage1 classifies content, verifies its source and selects the modes.
type Stage1 struct {
	classifier *agent.Classifier
	lookup     credibility.Lookup
	deep       bool
	logger     *log.Logger
	tracer     trace.Tracer
}

// NewStage1 builds the pre-analysis. deep enables the slow credibility
// lookup path for unknown domains.
func NewStage1(c *agent.Classifier, lookup credibility.Lookup, deep bool, logger *log.Logger) *Stage1 {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Stage1{
		classifier: c,
		lookup:     lookup,
		deep:       deep,
		logger:     logger,
		tracer:     otel.Tracer("credence/internal/pipeline"),
	}
}

// Run executes the three steps in order, checking for cancellation before
// each and publishing each step's output as a partial result.
func (s *Stage1) Run(ctx context.Context, content, sourceURL string, prefs Preferences, p *Progress) (Stage1Result, error) {
	ctx, span := s.tracer.Start(ctx, "pipeline.stage1")
	defer span.End()
	var res Stage1Result

	p.Stage("content_classification", "Classifying content type...")
	if err := p.Check(ctx); err != nil {
		return res, err
	}
	cls, err := s.classifier.Classify(ctx, content, sourceURL)
	if err != nil {
		s.logger.Printf("[STAGE1] job=%s classification failed, using defaults: %v", p.JobID(), err)
		p.Say("Classification error, using defaults")
	} else {
		p.Say("Content classified as %s (%s)", cls.ContentType, cls.Realm)
	}
	res.Classification = cls
	span.SetAttributes(attribute.String("content_type", cls.ContentType), attribute.String("realm", cls.Realm))
	p.Partial("content_classification", res.Classification, "Classification complete")

	p.Stage("source_verification", "Verifying source credibility...")
	if err := p.Check(ctx); err != nil {
		return res, err
	}
	res.Source = s.verify(ctx, sourceURL, cls)
	switch res.Source.Status {
	case SourceVerified:
		p.Say("Source verified: Tier %d (%s)", res.Source.Profile.Tier, res.Source.Profile.Domain)
	case SourceNoURL:
		p.Say("No source URL to verify")
	default:
		p.Say("Source verification failed: %s", res.Source.Error)
	}
	p.Partial("source_verification", res.Source, "Source verification complete")

	p.Stage("mode_routing", "Selecting analysis modes...")
	if err := p.Check(ctx); err != nil {
		return res, err
	}
	sel, err := Route(res.Classification, res.Source, prefs)
	if err != nil {
		s.logger.Printf("[STAGE1] job=%s routing failed: %v", p.JobID(), err)
		sel = DefaultSelection(defaultRoutingError)
	}
	res.Routing = sel
	p.Say("Selected modes: %s", joinModes(sel.Selected))
	p.Partial("mode_routing", res.Routing, "Mode routing complete")
	return res, nil
}

// verify prefers the explicit source URL, then the first reference found
// during classification.
func (s *Stage1) verify(ctx context.Context, sourceURL string, cls agent.Classification) SourceVerification {
	url := strings.TrimSpace(sourceURL)
	if url == "" && len(cls.ReferenceURLs) > 0 {
		url = cls.ReferenceURLs[0]
	}
	if url == "" {
		return SourceVerification{Status: SourceNoURL}
	}
	domain := helpers.Domain(url)
	if domain == "" {
		return SourceVerification{Status: SourceUnverifiable, URL: url, Error: "could not extract a domain from " + url}
	}
	if s.lookup == nil {
		p := credibility.Default(domain)
		return SourceVerification{Status: SourceVerified, URL: url, Profile: &p}
	}
	prof := s.lookup.Lookup(ctx, domain, s.deep)
	if prof.TierDescription == "" {
		prof.TierDescription = credibility.TierDescription(prof.Tier)
	}
	return SourceVerification{Status: SourceVerified, URL: url, Profile: &prof}
}

func joinModes(modes []Mode) string {
	s := make([]string, len(modes))
	for i, m := range modes {
		s[i] = string(m)
	}
	return strings.Join(s, ", ")
}
