package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"litgate/internal/core"
	"litgate/internal/ratelimit"
	"litgate/internal/store"
)

const defaultSemanticScholarBase = "https://api.semanticscholar.org/graph/v1"

// s2Fields is the field list requested on every Semantic Scholar call.
const s2Fields = "paperId,externalIds,title,abstract,venue,year,publicationDate,publicationTypes,authors,citationCount,influentialCitationCount,isOpenAccess,openAccessPdf,fieldsOfStudy"

// SemanticScholarAdapter queries the Semantic Scholar Graph API, the
// second open-scholarly graph.
type SemanticScholarAdapter struct {
	client  *http.Client
	limiter *ratelimit.Limiter
	baseURL string
	cache   *store.ArticleCache
}

// NewSemanticScholarAdapter builds the adapter.
func NewSemanticScholarAdapter(cfg Config, limiter *ratelimit.Limiter) *SemanticScholarAdapter {
	return &SemanticScholarAdapter{
		client:  cfg.httpClient(),
		limiter: limiter,
		baseURL: defaultSemanticScholarBase,
		cache:   cfg.ArticleCache,
	}
}

// ID returns the source id.
func (s *SemanticScholarAdapter) ID() string { return SourceSemanticScholar }

// s2Paper mirrors the subset of a Semantic Scholar paper we consume.
type s2Paper struct {
	PaperID     string `json:"paperId"`
	ExternalIDs struct {
		DOI           string `json:"DOI"`
		PubMed        string `json:"PubMed"`
		PubMedCentral string `json:"PubMedCentral"`
		ArXiv         string `json:"ArXiv"`
	} `json:"externalIds"`
	Title            string   `json:"title"`
	Abstract         string   `json:"abstract"`
	Venue            string   `json:"venue"`
	Year             int      `json:"year"`
	PublicationDate  string   `json:"publicationDate"`
	PublicationTypes []string `json:"publicationTypes"`
	Authors          []struct {
		Name string `json:"name"`
	} `json:"authors"`
	CitationCount    *int `json:"citationCount"`
	InfluentialCount *int `json:"influentialCitationCount"`
	IsOpenAccess     bool `json:"isOpenAccess"`
	OpenAccessPdf    struct {
		URL string `json:"url"`
	} `json:"openAccessPdf"`
	FieldsOfStudy []string `json:"fieldsOfStudy"`
}

type s2SearchResponse struct {
	Data []s2Paper `json:"data"`
}

// Search queries /paper/search. Year filtering uses the year parameter;
// other filters are client-side.
func (s *SemanticScholarAdapter) Search(ctx context.Context, query string, limit int, filters SearchFilters) ([]core.Article, error) {
	if limit <= 0 {
		return nil, nil
	}
	v := url.Values{}
	v.Set("query", query)
	v.Set("limit", fmt.Sprintf("%d", limit))
	v.Set("fields", s2Fields)
	if filters.MinYear > 0 || filters.MaxYear > 0 {
		from, to := "", ""
		if filters.MinYear > 0 {
			from = fmt.Sprintf("%d", filters.MinYear)
		}
		if filters.MaxYear > 0 {
			to = fmt.Sprintf("%d", filters.MaxYear)
		}
		v.Set("year", from+"-"+to)
	}
	if filters.OpenAccessOnly {
		v.Set("openAccessPdf", "")
	}

	var resp s2SearchResponse
	u := s.baseURL + "/paper/search?" + v.Encode()
	if err := getJSON(ctx, s.client, s.limiter, SourceSemanticScholar, u, nil, &resp); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var out []core.Article
	for _, paper := range resp.Data {
		a := parseS2Paper(paper, now)
		if a.Valid() {
			if s.cache != nil {
				s.cache.Put(&a)
			}
			out = append(out, a)
		}
	}
	return applyClientFilters(out, filters), nil
}

// FetchByID resolves papers by Semantic Scholar id, DOI (DOI:<doi>),
// PMID (PMID:<pmid>) or arXiv id.
func (s *SemanticScholarAdapter) FetchByID(ctx context.Context, ids []string) ([]core.Article, error) {
	now := time.Now().UTC()
	var out []core.Article
	seen := make(map[string]bool)
	for _, id := range ids {
		key := s2PaperPath(id)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		var paper s2Paper
		u := s.baseURL + "/paper/" + url.PathEscape(key) + "?fields=" + url.QueryEscape(s2Fields)
		if err := getJSON(ctx, s.client, s.limiter, SourceSemanticScholar, u, nil, &paper); err != nil {
			return out, err
		}
		a := parseS2Paper(paper, now)
		if a.Valid() {
			if s.cache != nil {
				s.cache.Put(&a)
			}
			out = append(out, a)
		}
	}
	return out, nil
}

// s2PaperPath maps a loose identifier onto the Graph API path form.
func s2PaperPath(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	if doi := core.NormalizeDOI(id); doi != "" {
		return "DOI:" + doi
	}
	if pmid := core.NormalizePMID(id); pmid != "" {
		return "PMID:" + pmid
	}
	return id
}

func parseS2Paper(paper s2Paper, now time.Time) core.Article {
	var a core.Article
	a.SemanticScholarID = paper.PaperID
	a.DOI = core.NormalizeDOI(paper.ExternalIDs.DOI)
	a.PMID = core.NormalizePMID(paper.ExternalIDs.PubMed)
	a.PMC = core.NormalizePMC(paper.ExternalIDs.PubMedCentral)
	a.ArxivID = paper.ExternalIDs.ArXiv
	a.Title = cleanMarkup(paper.Title)
	a.Abstract = cleanMarkup(paper.Abstract)
	a.Journal = paper.Venue
	a.Type = mapS2Type(paper.PublicationTypes)
	a.Keywords = append(a.Keywords, paper.FieldsOfStudy...)

	if t, err := time.Parse("2006-01-02", paper.PublicationDate); err == nil {
		a.SetPublicationDate(t)
	} else if paper.Year != 0 {
		a.Year = paper.Year
	}

	for _, auth := range paper.Authors {
		if auth.Name == "" {
			continue
		}
		var author core.Author
		author.Family, author.Given = splitDisplayName(auth.Name)
		a.Authors = append(a.Authors, author)
	}

	if paper.CitationCount != nil || paper.InfluentialCount != nil {
		a.Metrics = &core.CitationMetrics{
			CitationCount:    paper.CitationCount,
			InfluentialCount: paper.InfluentialCount,
		}
	}

	if paper.OpenAccessPdf.URL != "" {
		a.OAStatus = core.OAStatusGreen
		a.OALinks = append(a.OALinks, core.OALink{URL: paper.OpenAccessPdf.URL, IsBest: true})
	} else if paper.IsOpenAccess {
		a.OAStatus = core.OAStatusUnknown
	}

	a.RecordSource(SourceSemanticScholar, now)
	return a
}

func mapS2Type(types []string) core.ArticleType {
	has := func(want string) bool {
		for _, t := range types {
			if strings.EqualFold(t, want) {
				return true
			}
		}
		return false
	}
	switch {
	case has("MetaAnalysis"):
		return core.ArticleTypeMetaAnalysis
	case has("ClinicalTrial"):
		return core.ArticleTypeClinicalTrial
	case has("Review"):
		return core.ArticleTypeReview
	case has("CaseReport"):
		return core.ArticleTypeCaseReport
	case has("LettersAndComments"):
		return core.ArticleTypeLetter
	case has("Editorial"):
		return core.ArticleTypeEditorial
	case has("Dataset"):
		return core.ArticleTypeDataset
	case has("Conference"):
		return core.ArticleTypeConferencePaper
	case has("JournalArticle"):
		return core.ArticleTypeJournalArticle
	case len(types) == 0:
		return core.ArticleTypeUnknown
	default:
		return core.ArticleTypeOther
	}
}
