// Package analyzer classifies query strings without any I/O. It extracts
// identifiers, grades complexity, guesses intent and recommends which
// sources and strategies to run. All heuristics are regex and keyword
// based.
package analyzer

import (
	"regexp"
	"strings"
	"time"

	"litgate/internal/core"
)

var (
	doiRe   = regexp.MustCompile(`\b10\.\d{4,}(?:\.\d+)*/\S+`)
	pmidRe  = regexp.MustCompile(`(?i)\b(?:PMID[:\s]*)?(\d{7,8})\b`)
	pmcRe   = regexp.MustCompile(`(?i)\bPMC\s?(\d{6,8})\b`)
	arxivRe = regexp.MustCompile(`\b(\d{4}\.\d{4,5})\b`)

	yearRangeRe = regexp.MustCompile(`\b(1[89]\d{2}|20\d{2})\s*[-–]\s*(1[89]\d{2}|20\d{2})\b`)
	bareYearRe  = regexp.MustCompile(`\b(1[89]\d{2}|20\d{2})\b`)
	recentRe    = regexp.MustCompile(`(?i)\brecent\b|\b(?:last|past)\s+\d+\s+years?\b`)

	versusRe = regexp.MustCompile(`(?i)^(.{2,}?)\s+(?:vs\.?|versus)\s+(.{2,})$`)

	populationRe = regexp.MustCompile(`(?i)\b(?:in|among)\s+((?:[\w-]+\s+){0,3}(?:patients|adults|children|women|men|elderly|infants|neonates|adolescents))`)
	outcomeRe    = regexp.MustCompile(`(?i)\b(?:to\s+(?:reduce|prevent|improve|treat)|effects?\s+on|for\s+(?:the\s+)?(?:prevention|treatment|reduction)\s+of)\s+([\w\s-]{3,40}?)(?:$|[,.;])`)

	spaceRe = regexp.MustCompile(`\s+`)
)

// ambiguousTerms are single broad terms that need expansion before they
// make a useful query.
var ambiguousTerms = map[string]bool{
	"cancer": true, "diabetes": true, "heart": true, "brain": true,
	"treatment": true, "therapy": true, "disease": true, "infection": true,
	"pain": true, "depression": true, "surgery": true, "stroke": true,
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "but": true, "by": true, "do": true, "does": true, "for": true,
	"from": true, "how": true, "in": true, "is": true, "it": true, "of": true,
	"on": true, "or": true, "the": true, "to": true, "what": true, "when": true,
	"which": true, "with": true, "than": true, "then": true,
}

var clinicalKeywords = []struct {
	category core.ClinicalCategory
	words    []string
}{
	{core.ClinicalTherapy, []string{"treatment", "therapy", "drug", "intervention", "efficacy", "medication", "dose", "regimen", "sedation", "sedative", "analgesia", "anesthesia", "prophylaxis"}},
	{core.ClinicalDiagnosis, []string{"diagnosis", "diagnostic", "screening", "detection", "sensitivity", "specificity", "biomarker"}},
	{core.ClinicalPrognosis, []string{"prognosis", "survival", "outcome", "mortality", "recurrence", "progression"}},
	{core.ClinicalEtiology, []string{"cause", "etiology", "risk factor", "association", "exposure", "pathogenesis"}},
}

// Strategy labels handed to the strategy generator.
const (
	StrategyDirectLookup     = "direct_lookup"
	StrategyRelevanceSearch  = "relevance_search"
	StrategyMeshExpansion    = "mesh_expansion"
	StrategyTitleAbstract    = "title_abstract"
	StrategyClinicalQueries  = "clinical_queries"
	StrategyPICOSearch       = "pico_search"
	StrategyComparisonFilter = "comparison_filter"
)

// Analyze classifies a query string. It never fails; the zero query
// produces an exploration/simple result with no keywords.
func Analyze(query string) core.AnalyzedQuery {
	return analyzeAt(query, time.Now())
}

// analyzeAt exists so tests can pin the clock for relative-year phrases.
func analyzeAt(query string, now time.Time) core.AnalyzedQuery {
	q := core.AnalyzedQuery{
		Original:         query,
		Normalized:       normalize(query),
		ClinicalCategory: core.ClinicalNone,
	}

	// Identifier spans are cut out before keyword and year scans so DOI
	// suffixes do not leak digits into them.
	rest := q.Normalized
	q.Identifiers, rest = extractIdentifiers(rest)

	q.YearFrom, q.YearTo, rest = extractYears(rest, now)
	q.Keywords = extractKeywords(rest)
	q.PICO = extractPICO(q.Normalized)
	q.ClinicalCategory = classifyClinical(q.Normalized)
	q.Intent = classifyIntent(&q)
	q.Complexity = classifyComplexity(&q)
	q.RecommendedSources, q.RecommendedStrategies = recommend(q.Complexity, q.Intent)
	q.Confidence = confidence(&q)
	return q
}

func normalize(query string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(strings.ToLower(query), " "))
}

// extractIdentifiers pulls identifiers out of the text and returns the
// remaining text with their spans blanked.
func extractIdentifiers(text string) ([]core.ExtractedIdentifier, string) {
	var ids []core.ExtractedIdentifier

	for _, m := range doiRe.FindAllString(text, -1) {
		if doi := core.NormalizeDOI(m); doi != "" {
			ids = append(ids, core.ExtractedIdentifier{Type: core.IdentifierDOI, Value: doi, Confidence: 0.95})
		}
	}
	text = doiRe.ReplaceAllString(text, " ")

	for _, m := range pmcRe.FindAllStringSubmatch(text, -1) {
		ids = append(ids, core.ExtractedIdentifier{Type: core.IdentifierPMC, Value: "PMC" + m[1], Confidence: 0.95})
	}
	text = pmcRe.ReplaceAllString(text, " ")

	for _, m := range arxivRe.FindAllStringSubmatch(text, -1) {
		ids = append(ids, core.ExtractedIdentifier{Type: core.IdentifierArxiv, Value: m[1], Confidence: 0.8})
	}
	text = arxivRe.ReplaceAllString(text, " ")

	for _, m := range pmidRe.FindAllStringSubmatch(text, -1) {
		conf := 0.7
		if strings.Contains(strings.ToLower(m[0]), "pmid") {
			conf = 0.95
		}
		ids = append(ids, core.ExtractedIdentifier{Type: core.IdentifierPMID, Value: m[1], Confidence: conf})
	}
	text = pmidRe.ReplaceAllString(text, " ")

	return ids, text
}

func extractYears(text string, now time.Time) (from, to int, rest string) {
	if m := yearRangeRe.FindStringSubmatch(text); m != nil {
		from = core.ParseYear(m[1])
		to = core.ParseYear(m[2])
		if from > to {
			from, to = to, from
		}
		return from, to, yearRangeRe.ReplaceAllString(text, " ")
	}
	if recentRe.MatchString(text) {
		return now.Year() - 5, now.Year(), recentRe.ReplaceAllString(text, " ")
	}
	if m := bareYearRe.FindStringSubmatch(text); m != nil {
		// A lone year is a lower bound.
		return core.ParseYear(m[1]), 0, bareYearRe.ReplaceAllString(text, " ")
	}
	return 0, 0, text
}

func extractKeywords(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, tok := range strings.FieldsFunc(text, func(r rune) bool {
		return !('a' <= r && r <= 'z' || 'A' <= r && r <= 'Z' || '0' <= r && r <= '9' || r == '-')
	}) {
		tok = strings.ToLower(strings.Trim(tok, "-"))
		if len(tok) < 3 || stopwords[tok] || seen[tok] || isNumeric(tok) {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	return out
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// extractPICO pulls a best-effort PICO structure out of clinical
// phrasing. Only comparison queries yield Intervention and Comparison.
func extractPICO(text string) *core.PICO {
	var p core.PICO

	if m := versusRe.FindStringSubmatch(text); m != nil {
		p.Intervention = trimPICOClause(m[1])
		p.Comparison = trimPICOClause(m[2])
	}
	if m := populationRe.FindStringSubmatch(text); m != nil {
		p.Population = strings.TrimSpace(m[1])
	}
	if m := outcomeRe.FindStringSubmatch(text); m != nil {
		p.Outcome = strings.TrimSpace(m[1])
	}

	if !p.Partial() {
		return nil
	}
	return &p
}

// trimPICOClause drops trailing population/outcome clauses from a vs
// operand so "metformin vs insulin in adults" yields "insulin".
func trimPICOClause(s string) string {
	s = strings.TrimSpace(s)
	for _, marker := range []string{" in ", " among ", " for ", " to "} {
		if idx := strings.Index(s, marker); idx > 0 {
			s = s[:idx]
		}
	}
	return strings.TrimSpace(s)
}

func classifyIntent(q *core.AnalyzedQuery) core.Intent {
	text := q.Normalized
	switch {
	case q.HasIdentifiers():
		return core.IntentLookup
	case containsAny(text, "citing", "cited by", "related to"):
		return core.IntentCitationTracking
	case containsAny(text, "author", "publications by", "papers by"):
		return core.IntentAuthorSearch
	case containsAny(text, " vs ", " vs. ", " versus ", "compared", "better", "worse", "superior"):
		return core.IntentComparison
	case containsAny(text, "systematic", "meta-analysis", "pico"):
		return core.IntentSystematic
	default:
		return core.IntentExploration
	}
}

func classifyComplexity(q *core.AnalyzedQuery) core.Complexity {
	switch {
	case q.HasIdentifiers() && len(q.Keywords) <= 2:
		return core.ComplexitySimple
	case len(q.Keywords) == 1 && ambiguousTerms[q.Keywords[0]]:
		return core.ComplexityAmbiguous
	case q.PICO != nil && q.PICO.Intervention != "" && (q.PICO.Comparison != "" || q.PICO.Outcome != ""):
		return core.ComplexityComplex
	case len(q.Keywords) >= 3:
		return core.ComplexityModerate
	default:
		return core.ComplexitySimple
	}
}

func classifyClinical(text string) core.ClinicalCategory {
	for _, set := range clinicalKeywords {
		for _, w := range set.words {
			if strings.Contains(text, w) {
				return set.category
			}
		}
	}
	return core.ClinicalNone
}

// recommend is the table of (complexity, intent) to sources and
// strategies. CORE is never recommended; full-text search is opt-in.
func recommend(complexity core.Complexity, intent core.Intent) (sources, strategies []string) {
	switch intent {
	case core.IntentLookup:
		return []string{"pubmed", "crossref"}, []string{StrategyDirectLookup}
	case core.IntentComparison:
		// Complex comparisons pull in the scholarly graph as a third leg.
		if complexity == core.ComplexityComplex || complexity == core.ComplexityAmbiguous {
			return []string{"pubmed", "crossref", "openalex"},
				[]string{StrategyPICOSearch, StrategyComparisonFilter, StrategyMeshExpansion}
		}
		return []string{"pubmed", "crossref"}, []string{StrategyPICOSearch, StrategyComparisonFilter}
	case core.IntentSystematic:
		return []string{"pubmed", "crossref", "openalex", "semanticscholar"},
			[]string{StrategyMeshExpansion, StrategyTitleAbstract, StrategyClinicalQueries, StrategyPICOSearch}
	}

	switch complexity {
	case core.ComplexityComplex, core.ComplexityAmbiguous:
		return []string{"pubmed", "crossref", "openalex", "semanticscholar"},
			[]string{StrategyMeshExpansion, StrategyTitleAbstract, StrategyClinicalQueries}
	case core.ComplexityModerate:
		return []string{"pubmed", "crossref"}, []string{StrategyRelevanceSearch}
	default:
		return []string{"pubmed"}, []string{StrategyRelevanceSearch}
	}
}

func confidence(q *core.AnalyzedQuery) float64 {
	c := 0.5
	if q.HasIdentifiers() {
		c += 0.3
	}
	if q.PICO != nil {
		if q.PICO.Complete() {
			c += 0.2
		} else {
			c += 0.1
		}
	}
	if q.ClinicalCategory != core.ClinicalNone {
		c += 0.1
	}
	if len(q.Keywords) >= 3 {
		c += 0.1
	}
	if c > 1 {
		c = 1
	}
	return c
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
