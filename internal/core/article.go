// Package core defines the entity model shared by every other package:
// articles, authors, citation metrics, pipeline types and analyzed queries.
package core

import (
	"regexp"
	"strings"
	"time"
)

// ArticleType classifies a scholarly work. The set is closed; upstream
// values that do not map cleanly become ArticleTypeOther.
type ArticleType string

const (
	ArticleTypeJournalArticle   ArticleType = "journal_article"
	ArticleTypeReview           ArticleType = "review"
	ArticleTypeMetaAnalysis     ArticleType = "meta_analysis"
	ArticleTypeSystematicReview ArticleType = "systematic_review"
	ArticleTypeClinicalTrial    ArticleType = "clinical_trial"
	ArticleTypeRCT              ArticleType = "rct"
	ArticleTypeCaseReport       ArticleType = "case_report"
	ArticleTypeLetter           ArticleType = "letter"
	ArticleTypeEditorial        ArticleType = "editorial"
	ArticleTypeComment          ArticleType = "comment"
	ArticleTypePreprint         ArticleType = "preprint"
	ArticleTypeBookChapter      ArticleType = "book_chapter"
	ArticleTypeConferencePaper  ArticleType = "conference_paper"
	ArticleTypeThesis           ArticleType = "thesis"
	ArticleTypeDataset          ArticleType = "dataset"
	ArticleTypeOther            ArticleType = "other"
	ArticleTypeUnknown          ArticleType = "unknown"
)

// OAStatus is the open-access status of an article.
type OAStatus string

const (
	OAStatusGold    OAStatus = "gold"
	OAStatusGreen   OAStatus = "green"
	OAStatusHybrid  OAStatus = "hybrid"
	OAStatusBronze  OAStatus = "bronze"
	OAStatusClosed  OAStatus = "closed"
	OAStatusUnknown OAStatus = "unknown"
)

// Author represents one author of an article.
type Author struct {
	Family          string `json:"family"`                     // Family (last) name
	Given           string `json:"given,omitempty"`            // Given (first) name
	ORCID           string `json:"orcid,omitempty"`            // ORCID identifier, bare (no resolver prefix)
	Affiliation     string `json:"affiliation,omitempty"`      // Primary affiliation string
	IsCorresponding bool   `json:"is_corresponding,omitempty"` // Corresponding-author flag
}

// DisplayName returns "Given Family" or whichever part is present.
func (a Author) DisplayName() string {
	switch {
	case a.Given != "" && a.Family != "":
		return a.Given + " " + a.Family
	case a.Family != "":
		return a.Family
	default:
		return a.Given
	}
}

// OALink is one open-access location for an article.
type OALink struct {
	URL      string `json:"url"`
	Version  string `json:"version,omitempty"`   // e.g. publishedVersion, acceptedVersion
	HostType string `json:"host_type,omitempty"` // e.g. publisher, repository
	License  string `json:"license,omitempty"`
	IsBest   bool   `json:"is_best,omitempty"`
}

// CitationMetrics holds citation-impact numbers. All fields are pointers:
// a nil field means the metric service did not report it, which is distinct
// from a reported zero.
type CitationMetrics struct {
	CitationCount        *int     `json:"citation_count,omitempty"`
	RelativeCitationRate *float64 `json:"relative_citation_ratio,omitempty"`
	Percentile           *float64 `json:"percentile,omitempty"`
	TranslationPotential *float64 `json:"translation_potential,omitempty"`
	InfluentialCount     *int     `json:"influential_count,omitempty"`
	CitationsPerYear     *float64 `json:"citations_per_year,omitempty"`
}

// SourceRecord records that one upstream source contributed to an article.
type SourceRecord struct {
	Source      string    `json:"source"`       // Source id (e.g. "pubmed")
	RetrievedAt time.Time `json:"retrieved_at"` // When the record was fetched
}

// Article is the central record: one scholarly work reachable by any of
// its identifiers. Adapters construct Articles from upstream payloads,
// the aggregator merges and scores them, and they are emitted as values.
type Article struct {
	// Identifiers, all normalized (see NormalizeDOI and friends).
	PMID              string `json:"pmid,omitempty"`
	DOI               string `json:"doi,omitempty"`
	PMC               string `json:"pmc,omitempty"`
	OpenAlexID        string `json:"openalex_id,omitempty"`
	SemanticScholarID string `json:"semantic_scholar_id,omitempty"`
	ArxivID           string `json:"arxiv_id,omitempty"`

	Title    string `json:"title"`
	Abstract string `json:"abstract,omitempty"`
	Language string `json:"language,omitempty"`

	Authors []Author `json:"authors,omitempty"`

	Journal       string `json:"journal,omitempty"`
	JournalAbbrev string `json:"journal_abbrev,omitempty"`
	Volume        string `json:"volume,omitempty"`
	Issue         string `json:"issue,omitempty"`
	Pages         string `json:"pages,omitempty"`
	Publisher     string `json:"publisher,omitempty"`

	PublicationDate *time.Time  `json:"publication_date,omitempty"`
	Year            int         `json:"year,omitempty"` // Derived from PublicationDate when present
	Type            ArticleType `json:"article_type,omitempty"`

	Keywords  []string `json:"keywords,omitempty"`
	MeshTerms []string `json:"mesh_terms,omitempty"`

	OAStatus OAStatus `json:"oa_status,omitempty"`
	OALinks  []OALink `json:"oa_links,omitempty"`

	Metrics *CitationMetrics `json:"citation_metrics,omitempty"`

	// Provenance: every source that contributed to this record, in the
	// order they were merged in. PrimarySource is the source whose record
	// seeded the article.
	Sources       []SourceRecord `json:"sources,omitempty"`
	PrimarySource string         `json:"primary_source,omitempty"`

	// Transient scoring fields, populated by the aggregator. Not persisted
	// by the cache store.
	RankingScore   float64 `json:"ranking_score,omitempty"`
	RelevanceScore float64 `json:"relevance_score,omitempty"`
	QualityScore   float64 `json:"quality_score,omitempty"`
}

// HasIdentifier reports whether the article carries at least one identifier.
func (a *Article) HasIdentifier() bool {
	return a.PMID != "" || a.DOI != "" || a.PMC != "" ||
		a.OpenAlexID != "" || a.SemanticScholarID != "" || a.ArxivID != ""
}

// Valid reports whether an adapter may emit this article: at least one
// identifier or a non-empty title.
func (a *Article) Valid() bool {
	return a.HasIdentifier() || strings.TrimSpace(a.Title) != ""
}

// IdentifierCount returns the number of distinct identifiers present.
func (a *Article) IdentifierCount() int {
	n := 0
	for _, id := range []string{a.PMID, a.DOI, a.PMC, a.OpenAlexID, a.SemanticScholarID, a.ArxivID} {
		if id != "" {
			n++
		}
	}
	return n
}

// BibFieldCount returns how many of the bibliographic fields used for
// merge-primary selection and quality scoring are populated: abstract,
// journal, volume, issue, pages, year, authors.
func (a *Article) BibFieldCount() int {
	n := 0
	if a.Abstract != "" {
		n++
	}
	if a.Journal != "" {
		n++
	}
	if a.Volume != "" {
		n++
	}
	if a.Issue != "" {
		n++
	}
	if a.Pages != "" {
		n++
	}
	if a.Year != 0 {
		n++
	}
	if len(a.Authors) > 0 {
		n++
	}
	return n
}

// SetPublicationDate records the date and keeps Year in agreement with it.
func (a *Article) SetPublicationDate(t time.Time) {
	if t.IsZero() {
		return
	}
	a.PublicationDate = &t
	a.Year = t.Year()
}

// RecordSource appends a provenance entry unless that source is already
// recorded, and seeds PrimarySource on first use.
func (a *Article) RecordSource(source string, at time.Time) {
	for _, s := range a.Sources {
		if s.Source == source {
			return
		}
	}
	a.Sources = append(a.Sources, SourceRecord{Source: source, RetrievedAt: at})
	if a.PrimarySource == "" {
		a.PrimarySource = source
	}
}

// CanonicalKey identifies an article across lists: DOI first, then PMID,
// then a normalized title prefix. Used by merge intersection and RRF.
func (a *Article) CanonicalKey() string {
	if a.DOI != "" {
		return "doi:" + strings.ToLower(a.DOI)
	}
	if a.PMID != "" {
		return "pmid:" + a.PMID
	}
	return "title:" + NormalizeTitleKey(a.Title)
}

var (
	doiPrefixRe  = regexp.MustCompile(`(?i)^(https?://(dx\.)?doi\.org/|doi:\s*)`)
	pmidDigitsRe = regexp.MustCompile(`^[0-9]+$`)
	pmcDigitsRe  = regexp.MustCompile(`(?i)^(PMC)?([0-9]+)$`)
	titleKeepRe  = regexp.MustCompile(`[^a-z0-9]+`)
)

// NormalizeDOI lowercases a DOI and strips resolver prefixes. Normalization
// is idempotent. Returns "" when the input does not look like a DOI.
func NormalizeDOI(raw string) string {
	s := strings.TrimSpace(raw)
	s = doiPrefixRe.ReplaceAllString(s, "")
	s = strings.ToLower(strings.TrimSpace(s))
	if !strings.HasPrefix(s, "10.") {
		return ""
	}
	return s
}

// NormalizePMID keeps only all-digit PMIDs, stripping an optional "PMID:"
// prefix. Returns "" for anything else.
func NormalizePMID(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "PMID:"), "pmid:")
	s = strings.TrimSpace(s)
	if !pmidDigitsRe.MatchString(s) {
		return ""
	}
	return s
}

// NormalizePMC uppercases a PMC id and ensures the PMC prefix.
func NormalizePMC(raw string) string {
	s := strings.ReplaceAll(strings.TrimSpace(raw), " ", "")
	m := pmcDigitsRe.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return "PMC" + m[2]
}

// NormalizeTitleKey lowercases a title, drops non-alphanumerics and keeps
// the first 80 characters. The empty title maps to the empty key, which
// dedup treats as "no key".
func NormalizeTitleKey(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = titleKeepRe.ReplaceAllString(s, "")
	if len(s) > 80 {
		s = s[:80]
	}
	return s
}

var yearRe = regexp.MustCompile(`\b(1[89][0-9]{2}|20[0-9]{2})\b`)

// ParseYear extracts a four-digit year from an upstream date string.
// Handles ISO dates and loose formats like "2024 Jan" best-effort.
func ParseYear(s string) int {
	m := yearRe.FindString(s)
	if m == "" {
		return 0
	}
	year := 0
	for _, c := range m {
		year = year*10 + int(c-'0')
	}
	return year
}
