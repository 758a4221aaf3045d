package core

// Complexity grades how much work a query needs before searching.
type Complexity string

const (
	ComplexitySimple    Complexity = "simple"
	ComplexityModerate  Complexity = "moderate"
	ComplexityComplex   Complexity = "complex"
	ComplexityAmbiguous Complexity = "ambiguous"
)

// Intent is the analyzer's guess at what the caller wants.
type Intent string

const (
	IntentLookup           Intent = "lookup"
	IntentExploration      Intent = "exploration"
	IntentComparison       Intent = "comparison"
	IntentSystematic       Intent = "systematic"
	IntentCitationTracking Intent = "citation_tracking"
	IntentAuthorSearch     Intent = "author_search"
)

// ClinicalCategory maps a query onto the PubMed clinical-query axes.
type ClinicalCategory string

const (
	ClinicalTherapy   ClinicalCategory = "therapy"
	ClinicalDiagnosis ClinicalCategory = "diagnosis"
	ClinicalPrognosis ClinicalCategory = "prognosis"
	ClinicalEtiology  ClinicalCategory = "etiology"
	ClinicalNone      ClinicalCategory = "none"
)

// IdentifierType tags an extracted identifier.
type IdentifierType string

const (
	IdentifierPMID  IdentifierType = "pmid"
	IdentifierDOI   IdentifierType = "doi"
	IdentifierPMC   IdentifierType = "pmc"
	IdentifierArxiv IdentifierType = "arxiv"
)

// ExtractedIdentifier is one identifier found inside a query string.
type ExtractedIdentifier struct {
	Type       IdentifierType `json:"type"`
	Value      string         `json:"value"`
	Confidence float64        `json:"confidence"`
}

// PICO is the Population / Intervention / Comparison / Outcome structure
// for clinical questions.
type PICO struct {
	Population   string `json:"population,omitempty"`
	Intervention string `json:"intervention,omitempty"`
	Comparison   string `json:"comparison,omitempty"`
	Outcome      string `json:"outcome,omitempty"`
}

// Complete reports whether all four elements are present.
func (p PICO) Complete() bool {
	return p.Population != "" && p.Intervention != "" && p.Comparison != "" && p.Outcome != ""
}

// Partial reports whether at least one element is present.
func (p PICO) Partial() bool {
	return p.Population != "" || p.Intervention != "" || p.Comparison != "" || p.Outcome != ""
}

// AnalyzedQuery is the analyzer's full classification of an input string.
// Consumed by the executor, the gateway engine and the strategy generator.
type AnalyzedQuery struct {
	Original   string     `json:"original"`
	Normalized string     `json:"normalized"`
	Complexity Complexity `json:"complexity"`
	Intent     Intent     `json:"intent"`

	Identifiers []ExtractedIdentifier `json:"identifiers,omitempty"`
	Keywords    []string              `json:"keywords,omitempty"`

	ClinicalCategory ClinicalCategory `json:"clinical_category"`
	YearFrom         int              `json:"year_from,omitempty"`
	YearTo           int              `json:"year_to,omitempty"`
	PICO             *PICO            `json:"pico,omitempty"`

	RecommendedSources    []string `json:"recommended_sources,omitempty"`
	RecommendedStrategies []string `json:"recommended_strategies,omitempty"`

	Confidence float64 `json:"confidence"` // In [0,1]
}

// HasIdentifiers reports whether any identifier was extracted.
func (q *AnalyzedQuery) HasIdentifiers() bool {
	return len(q.Identifiers) > 0
}
