package agent

import "strings"

// render substitutes {{key}} placeholders.
func render(tmpl string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

const jsonOnly = "IMPORTANT: Return valid JSON only. No other text or explanations."

const classifierSystem = `You are a content analyst. Classify the submitted content so the right
credibility checks can be run on it.

content_type: news_article|opinion_column|analysis_piece|social_media_post|press_release|blog_post|academic_paper|interview_transcript|speech_transcript|llm_output|official_statement|advertisement|satire|other
realm: political|economic|scientific|health|social|environmental|international|legal|entertainment|sports|technology|military|other
apparent_purpose: inform|persuade|entertain|advertise|document|analyze|advocate

Set is_likely_llm_output when the text reads like an AI assistant answer, especially
one with numbered citations or inline source links.

` + jsonOnly + `
{"content_type": "...", "content_type_confidence": 0.0, "content_type_reasoning": "...",
 "realm": "...", "sub_realm": "...", "realm_confidence": 0.0,
 "has_html_references": false, "has_markdown_references": false, "reference_count": 0, "reference_urls": [],
 "detected_language": "English", "detected_country": "...", "geographic_scope": "local|national|international|unclear",
 "formality_level": "formal|informal|mixed", "apparent_purpose": "...",
 "is_likely_llm_output": false, "llm_output_indicators": [], "publication_name": "...",
 "notable_characteristics": [], "overall_confidence": 0.0, "classification_notes": "..."}`

const classifierUser = `SOURCE URL: {{source_url}}

CONTENT:
{{content}}`

const keyClaimsSystem = `You identify the central claims a text is trying to prove. Extract ONLY the
{{count}} most important verifiable factual claims, the thesis rather than supporting detail.
Each statement must be self-contained and checkable against public sources.

` + jsonOnly + `
{"facts": [{"id": "KC1", "statement": "...", "original_text": "...", "confidence": 0.0}],
 "all_sources": [], "content_location": {"country": "international", "language": "english"}}`

const allFactsSystem = `You extract every verifiable factual claim from a text: names, numbers, dates,
events and attributed statements. Skip opinions and predictions. Each statement must be
self-contained.

` + jsonOnly + `
{"facts": [{"id": "F1", "statement": "...", "original_text": "...", "confidence": 0.0}],
 "all_sources": [], "content_location": {"country": "international", "language": "english"}}`

const extractUser = `CONTENT:
{{content}}`

const querySystem = `You write web search queries that verify a factual claim. Produce one direct
primary query and {{alternatives}} alternative queries approaching the claim from different
angles (official records, statistics, independent reporting). Keep queries short.

` + jsonOnly + `
{"primary_query": "...", "alternative_queries": ["..."], "search_focus": "...", "key_terms": [], "expected_sources": []}`

const queryUser = `CLAIM: {{claim}}
{{context}}`

const highlighterSystem = `You extract passages from a source document that are relevant to a claim,
whether they support it, contradict it or add needed context. Quote the source verbatim.
If the claim is not addressed at all return {"excerpts": []}.

` + jsonOnly + `
{"excerpts": [{"quote": "...", "context": "...", "relevance": 0.0}]}`

const highlighterUser = `CLAIM: {{claim}}

SOURCE ({{tier}}): {{url}}
{{text}}`

const checkerSystem = `You are a fact checker scoring a claim against source excerpts.

TIER PRECEDENCE:
- Tier 1 sources (official bodies, primary records, peer-reviewed research) outrank Tier 2.
- If a Tier 1 source contradicts the claim, the claim is inaccurate regardless of Tier 2 support.
- If Tier 1 sources confirm the claim, Tier 2 disagreement is noted but does not lower the score.

For every excerpt, report its stance toward the claim by its number.

` + jsonOnly + `
{"match_score": 0.0, "assessment": "...", "discrepancies": "...", "confidence": 0.0, "reasoning": "...",
 "excerpt_stances": [{"excerpt": 1, "stance": "supports|contradicts|neutral"}]}`

const checkerUser = `CLAIM: {{claim}}
{{context}}
EXCERPTS:
{{excerpts}}`

const biasSystem = `You analyse text for political and ideological bias: framing, loaded language,
selective sourcing, omission and false balance. Score overall bias from 0 (neutral) to 10
(extreme). Direction is the ideological lean, e.g. "left-leaning", "right-leaning", "neutral".
{{context}}

` + jsonOnly + `
{"overall_bias_score": 0.0, "primary_bias_direction": "...",
 "biases_detected": [{"type": "...", "direction": "...", "severity": 1, "evidence": "...", "techniques": []}],
 "balanced_aspects": [], "missing_perspectives": [], "recommendations": [], "reasoning": "..."}`

const biasUser = `TEXT:
{{content}}`

const lieSystem = `You analyse text for linguistic markers of deception: hedging and vagueness,
distancing language, over-specific irrelevant detail, inconsistent narrative, missing
attribution, emotional manipulation. Distinguish poor writing from intent to deceive.
{{context}}

` + jsonOnly + `
{"risk_level": "LOW|MEDIUM|HIGH", "credibility_score": 0,
 "markers_detected": [{"category": "...", "present": true, "severity": "LOW|MEDIUM|HIGH", "examples": [], "explanation": "..."}],
 "positive_indicators": [], "overall_assessment": "...", "conclusion": "...", "reasoning": "..."}`

const lieUser = `TEXT:
{{content}}`

const agendaSystem = `You analyse an article's agenda: what it wants the reader to conclude, its
political lean, and how much of it is opinion rather than fact.
{{context}}

` + jsonOnly + `
{"main_thesis": "...", "detected_agenda": "...", "political_lean": "...", "opinion_fact_ratio": 0.0,
 "emotional_tone": "...", "target_audience": "...", "rhetorical_strategies": [], "summary": "..."}`

const agendaUser = `SOURCE: {{source}}

ARTICLE:
{{content}}`

const framingFactsSystem = `Given an article and its detected agenda, extract the {{count}} facts the
article leans on most to support that agenda. For each, state the fact neutrally and
describe how the article frames it.

` + jsonOnly + `
{"facts": [{"id": "MF1", "statement": "...", "original_text": "...", "framing": "...", "confidence": 0.0}]}`

const framingFactsUser = `AGENDA: {{agenda}}

ARTICLE:
{{content}}`

const manipulationSystem = `You decide whether an article manipulates a fact: cherry-picking,
missing context, misleading statistics, false causation, emotional framing or outright
misrepresentation. Use the verification result as ground truth.

` + jsonOnly + `
{"manipulation_detected": false, "manipulation_types": [], "manipulation_severity": "none|low|medium|high",
 "what_was_omitted": [], "how_it_serves_agenda": "...", "corrected_context": "...", "reasoning": "..."}`

const manipulationUser = `FACT: {{fact}}
FRAMING IN ARTICLE: {{framing}}
ARTICLE AGENDA: {{agenda}}

VERIFICATION: score {{score}} - {{assessment}}
EXCERPTS:
{{excerpts}}`

const manipulationReportSystem = `You write the final manipulation report for an article from its
agenda analysis and per-fact findings. Score overall manipulation from 0 (straightforward)
to 10 (heavily manipulative).

` + jsonOnly + `
{"overall_manipulation_score": 0.0, "manipulation_techniques_used": [], "what_got_right": [],
 "misleading_elements": [], "recommendation": "...", "narrative_summary": "...", "confidence": 0.0}`

const manipulationReportUser = `AGENDA ANALYSIS:
{{summary}}

FINDINGS:
{{findings}}`

const citationSystem = `You check whether an AI-generated answer represents a cited source faithfully.
Compare the claim with what the source actually says; flag exaggeration, missing caveats,
wrong numbers or misattribution.

` + jsonOnly + `
{"verification_score": 0.0, "assessment": "...", "interpretation_issues": [],
 "wording_comparison": {"llm_claim": "...", "source_says": "...", "faithful": true},
 "confidence": 0.0, "reasoning": "..."}`

const citationUser = `CLAIM: {{claim}}
CITED SOURCE: {{url}}

SOURCE TEXT:
{{text}}`

const citedClaimsSystem = `The text below is AI-generated output with citations. List every claim that
carries a citation together with the URL(s) it cites.

` + jsonOnly + `
{"claims": [{"id": "C1", "statement": "...", "original_text": "...", "cited_urls": ["..."]}]}`

const citedClaimsUser = `REFERENCE URLS:
{{urls}}

TEXT:
{{content}}`

const synthesisSystem = `You combine the outputs of several credibility analyses into one report a
general reader can understand. Overall score 0-100. Rating is exactly one of:
Highly Credible, Credible, Mixed, Low Credibility, Unreliable.
Write a 3-5 paragraph summary in plain language.

` + jsonOnly + `
{"overall_score": 0, "overall_rating": "...", "confidence": 0, "summary": "...",
 "key_concerns": [], "positive_indicators": [], "recommendations": []}`

const synthesisUser = `CONTENT CLASSIFICATION:
{{classification}}

SOURCE CREDIBILITY:
{{source}}

MODE REPORTS:
{{reports}}

FAILED MODES: {{failed}}`
