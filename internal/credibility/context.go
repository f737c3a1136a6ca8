package credibility

import (
	"fmt"
	"strings"
)

const rule = "=================================================="

var tierGuidance = map[int]string{
	1: `This is a highly credible source. While still applying critical analysis:
- Claims are more likely to be factually accurate
- Focus analysis on framing, emphasis, and what may be omitted
- Note if the source is reporting vs. editorializing`,
	2: `This is a credible mainstream source. Apply standard analysis:
- Claims are generally reliable but verify significant facts
- Watch for political lean in framing and word choice
- Distinguish between news reporting and opinion content`,
	3: `This source has mixed credibility. Apply heightened scrutiny:
- Verify key factual claims independently
- Watch for bias in framing and source selection
- Be alert to potential cherry-picking of facts`,
	4: `This is a low-credibility source. Apply significant skepticism:
- Do NOT assume factual accuracy of claims
- Look for verifiable facts vs. opinion presented as fact
- Check if claims contradict established consensus`,
	5: `This is an unreliable source. Apply maximum skepticism:
- Treat ALL claims as potentially false or misleading
- Look for propaganda techniques and manipulation
- Flag any claims that could cause harm if believed`,
}

const criticalGuidance = `CRITICAL: This source has been flagged for serious credibility issues.
- Approach ALL claims with extreme skepticism
- Do NOT assume any factual claims are accurate without independent verification
- Highlight potential misinformation or misleading framing`

// Guidance returns analyst guidance for p's tier. Propaganda and conspiracy
// flags override the tier.
func Guidance(p Profile) string {
	if p.IsPropaganda || p.HasTag(TagPropaganda) || p.HasTag(TagConspiracy) {
		return criticalGuidance
	}
	if g, ok := tierGuidance[p.Tier]; ok {
		return g
	}
	return "Apply standard critical analysis."
}

// BuildContext renders the general source block injected into analysis
// prompts. A nil profile yields an empty string, or a short note when the
// publication name is known.
func BuildContext(p *Profile, publication string) string {
	if p == nil {
		if publication == "" {
			return ""
		}
		return fmt.Sprintf("\n\nPUBLICATION: %s\n(No credibility data available - treat with standard scrutiny)", publication)
	}
	lines := []string{"", rule, "SOURCE CREDIBILITY CONTEXT", rule}
	if publication == "" {
		publication = p.Domain
	}
	if publication != "" {
		lines = append(lines, "Publication: "+publication)
	}
	lines = append(lines, "Credibility: "+TierDescription(p.Tier))
	if p.BiasLabel != "" {
		lines = append(lines, "Political Bias: "+p.BiasLabel)
	}
	if p.FactualLabel != "" {
		lines = append(lines, "Factual Reporting: "+p.FactualLabel)
	}
	if len(p.SpecialTags) > 0 {
		lines = append(lines, "Special Tags: "+strings.Join(p.SpecialTags, ", "))
	}
	if p.IsPropaganda {
		lines = append(lines, "WARNING: This source is flagged as PROPAGANDA")
	}
	if !p.Verified() {
		lines = append(lines, "Note: no curated rating exists for this domain")
	}
	lines = append(lines, rule, "", "ANALYSIS GUIDANCE:", Guidance(*p))
	return strings.Join(lines, "\n")
}

// BiasContext renders prior bias ratings for the bias checker.
func BiasContext(p *Profile, publication string) string {
	if p == nil {
		if publication == "" {
			return ""
		}
		return fmt.Sprintf("\nPUBLICATION: %s\n(No prior bias data available)", publication)
	}
	lines := []string{"", "PRIOR PUBLICATION RATINGS:"}
	if publication != "" {
		lines = append(lines, "Publication: "+publication)
	}
	if p.BiasLabel != "" {
		lines = append(lines, "Bias Rating: "+p.BiasLabel)
	}
	if p.FactualLabel != "" {
		lines = append(lines, "Factual Reporting: "+p.FactualLabel)
	}
	lines = append(lines, "Credibility: "+TierDescription(p.Tier))
	if len(p.SpecialTags) > 0 {
		lines = append(lines, "Tags: "+strings.Join(p.SpecialTags, ", "))
	}
	lines = append(lines, "",
		"NOTE: Use these ratings as context, but perform your own independent analysis.",
		"Your analysis may agree or disagree with them - explain your reasoning.")
	return strings.Join(lines, "\n")
}

// LieDetectionContext calibrates how suspicious the deception analysis
// should be.
func LieDetectionContext(p *Profile, publication, date string) string {
	var lines []string
	if publication != "" {
		lines = append(lines, "ARTICLE SOURCE: "+publication)
	}
	if date != "" {
		lines = append(lines, "PUBLICATION DATE: "+date)
	}
	if p != nil {
		lines = append(lines, fmt.Sprintf("SOURCE CREDIBILITY TIER: %d/5", p.Tier))
		switch {
		case p.Tier <= 2:
			lines = append(lines,
				"CALIBRATION: This is a credible source. Linguistic deception markers",
				"should be weighted normally - don't over-flag professional journalism style.")
		case p.Tier == 3:
			lines = append(lines, "CALIBRATION: Mixed credibility source. Apply standard deception analysis.")
		default:
			lines = append(lines,
				"CALIBRATION: Low credibility source. Be alert for deception patterns,",
				"but distinguish between poor journalism and intentional deception.")
		}
		if p.IsPropaganda {
			lines = append(lines, "SOURCE FLAGGED AS PROPAGANDA - expect manipulation techniques")
		}
		if len(p.SpecialTags) > 0 {
			lines = append(lines, "SOURCE FLAGS: "+strings.Join(p.SpecialTags, ", "))
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return "\n" + strings.Join(lines, "\n")
}

// ManipulationContext renders source context for the manipulation detector.
func ManipulationContext(p *Profile, sourceInfo string) string {
	lines := []string{"", "SOURCE CONTEXT:"}
	if sourceInfo != "" {
		lines = append(lines, "Source: "+sourceInfo)
	}
	if p != nil {
		lines = append(lines, fmt.Sprintf("Credibility Tier: %d/5", p.Tier))
		if p.BiasLabel != "" {
			lines = append(lines, "Known Bias: "+p.BiasLabel)
		}
		if p.FactualLabel != "" {
			lines = append(lines, "Factual Reporting History: "+p.FactualLabel)
		}
		if p.IsPropaganda {
			lines = append(lines, "FLAGGED AS PROPAGANDA SOURCE")
		}
		if len(p.SpecialTags) > 0 {
			lines = append(lines, "Flags: "+strings.Join(p.SpecialTags, ", "))
		}
		switch {
		case p.Tier >= 4:
			lines = append(lines, "",
				"ANALYSIS NOTE: This is a low-credibility source. Manipulation techniques",
				"are more likely. Pay special attention to cherry-picking, emotional appeals",
				"and omission of contradicting evidence.")
		case p.IsPropaganda:
			lines = append(lines, "",
				"ANALYSIS NOTE: This source is flagged for propaganda. Expect deliberate",
				"framing and selective use of facts to support predetermined conclusions.")
		}
	}
	if len(lines) <= 2 {
		return ""
	}
	return strings.Join(lines, "\n")
}

// SummaryLine is the one-line form used in reports.
func SummaryLine(p *Profile) string {
	if p == nil {
		return "Source credibility: Unknown"
	}
	parts := []string{fmt.Sprintf("Tier %d (%s)", p.Tier, TierName(p.Tier))}
	if p.BiasLabel != "" {
		parts = append(parts, "Bias: "+p.BiasLabel)
	}
	if p.IsPropaganda {
		parts = append(parts, "Propaganda")
	}
	return strings.Join(parts, " | ")
}
