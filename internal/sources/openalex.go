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

const defaultOpenAlexBase = "https://api.openalex.org"

// OpenAlexAdapter queries the OpenAlex works API, one of the two
// open-scholarly graphs.
type OpenAlexAdapter struct {
	client  *http.Client
	limiter *ratelimit.Limiter
	mailto  string
	baseURL string
	cache   *store.ArticleCache
}

// NewOpenAlexAdapter builds the adapter. The contact email joins the
// polite pool, same as Crossref.
func NewOpenAlexAdapter(cfg Config, limiter *ratelimit.Limiter) *OpenAlexAdapter {
	return &OpenAlexAdapter{
		client:  cfg.httpClient(),
		limiter: limiter,
		mailto:  cfg.ContactEmail,
		baseURL: defaultOpenAlexBase,
		cache:   cfg.ArticleCache,
	}
}

// ID returns the source id.
func (o *OpenAlexAdapter) ID() string { return SourceOpenAlex }

// openAlexWork mirrors the subset of an OpenAlex work we consume.
type openAlexWork struct {
	ID  string `json:"id"`
	DOI string `json:"doi"`
	IDs struct {
		PMID  string `json:"pmid"`
		PMCID string `json:"pmcid"`
	} `json:"ids"`
	Title                 string           `json:"title"`
	AbstractInvertedIndex map[string][]int `json:"abstract_inverted_index"`
	PublicationYear       int              `json:"publication_year"`
	PublicationDate       string           `json:"publication_date"`
	Type                  string           `json:"type"`
	Language              string           `json:"language"`
	CitedByCount          *int             `json:"cited_by_count"`
	Authorships           []struct {
		IsCorresponding bool `json:"is_corresponding"`
		Author          struct {
			DisplayName string `json:"display_name"`
			ORCID       string `json:"orcid"`
		} `json:"author"`
		Institutions []struct {
			DisplayName string `json:"display_name"`
		} `json:"institutions"`
	} `json:"authorships"`
	PrimaryLocation struct {
		Source struct {
			DisplayName string `json:"display_name"`
		} `json:"source"`
		LandingPageURL string `json:"landing_page_url"`
		PdfURL         string `json:"pdf_url"`
		License        string `json:"license"`
		Version        string `json:"version"`
	} `json:"primary_location"`
	OpenAccess struct {
		OAStatus string `json:"oa_status"`
		OAURL    string `json:"oa_url"`
	} `json:"open_access"`
	Biblio struct {
		Volume    string `json:"volume"`
		Issue     string `json:"issue"`
		FirstPage string `json:"first_page"`
		LastPage  string `json:"last_page"`
	} `json:"biblio"`
	Keywords []struct {
		DisplayName string `json:"display_name"`
	} `json:"keywords"`
	MeshList []struct {
		DescriptorName string `json:"descriptor_name"`
	} `json:"mesh"`
}

type openAlexListResponse struct {
	Results []openAlexWork `json:"results"`
}

// Search queries /works with the search parameter; year and OA filters
// map onto the filter parameter.
func (o *OpenAlexAdapter) Search(ctx context.Context, query string, limit int, filters SearchFilters) ([]core.Article, error) {
	if limit <= 0 {
		return nil, nil
	}
	v := url.Values{}
	v.Set("search", query)
	v.Set("per-page", fmt.Sprintf("%d", limit))
	if o.mailto != "" {
		v.Set("mailto", o.mailto)
	}
	var apiFilters []string
	if filters.MinYear > 0 {
		apiFilters = append(apiFilters, fmt.Sprintf("from_publication_date:%d-01-01", filters.MinYear))
	}
	if filters.MaxYear > 0 {
		apiFilters = append(apiFilters, fmt.Sprintf("to_publication_date:%d-12-31", filters.MaxYear))
	}
	if filters.OpenAccessOnly {
		apiFilters = append(apiFilters, "is_oa:true")
	}
	if filters.Language != "" {
		apiFilters = append(apiFilters, "language:"+filters.Language)
	}
	if len(apiFilters) > 0 {
		v.Set("filter", strings.Join(apiFilters, ","))
	}

	var resp openAlexListResponse
	u := o.baseURL + "/works?" + v.Encode()
	if err := getJSON(ctx, o.client, o.limiter, SourceOpenAlex, u, nil, &resp); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var out []core.Article
	for _, item := range resp.Results {
		a := parseOpenAlexWork(item, now)
		if a.Valid() {
			if o.cache != nil {
				o.cache.Put(&a)
			}
			out = append(out, a)
		}
	}
	return applyClientFilters(out, filters), nil
}

// FetchByID resolves OpenAlex ids or DOIs via /works/<id>.
func (o *OpenAlexAdapter) FetchByID(ctx context.Context, ids []string) ([]core.Article, error) {
	now := time.Now().UTC()
	var out []core.Article
	seen := make(map[string]bool)
	for _, id := range ids {
		key := strings.TrimSpace(id)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		path := key
		if doi := core.NormalizeDOI(key); doi != "" {
			path = "https://doi.org/" + doi
		}

		var work openAlexWork
		u := o.baseURL + "/works/" + url.PathEscape(path)
		if err := getJSON(ctx, o.client, o.limiter, SourceOpenAlex, u, nil, &work); err != nil {
			return out, err
		}
		a := parseOpenAlexWork(work, now)
		if a.Valid() {
			if o.cache != nil {
				o.cache.Put(&a)
			}
			out = append(out, a)
		}
	}
	return out, nil
}

func parseOpenAlexWork(item openAlexWork, now time.Time) core.Article {
	var a core.Article
	a.OpenAlexID = strings.TrimPrefix(item.ID, "https://openalex.org/")
	a.DOI = core.NormalizeDOI(item.DOI)
	a.PMID = core.NormalizePMID(strings.TrimPrefix(item.IDs.PMID, "https://pubmed.ncbi.nlm.nih.gov/"))
	a.PMC = core.NormalizePMC(strings.TrimPrefix(item.IDs.PMCID, "https://www.ncbi.nlm.nih.gov/pmc/articles/"))
	a.Title = cleanMarkup(item.Title)
	a.Abstract = reconstructAbstract(item.AbstractInvertedIndex)
	a.Language = item.Language
	a.Journal = item.PrimaryLocation.Source.DisplayName
	a.Volume = item.Biblio.Volume
	a.Issue = item.Biblio.Issue
	if item.Biblio.FirstPage != "" {
		a.Pages = item.Biblio.FirstPage
		if item.Biblio.LastPage != "" && item.Biblio.LastPage != item.Biblio.FirstPage {
			a.Pages += "-" + item.Biblio.LastPage
		}
	}
	a.Type = mapOpenAlexType(item.Type)

	if t, err := time.Parse("2006-01-02", item.PublicationDate); err == nil {
		a.SetPublicationDate(t)
	} else if item.PublicationYear != 0 {
		a.Year = item.PublicationYear
	}

	for _, auth := range item.Authorships {
		author := core.Author{ORCID: normalizeORCID(auth.Author.ORCID), IsCorresponding: auth.IsCorresponding}
		author.Family, author.Given = splitDisplayName(auth.Author.DisplayName)
		if len(auth.Institutions) > 0 {
			author.Affiliation = auth.Institutions[0].DisplayName
		}
		a.Authors = append(a.Authors, author)
	}

	for _, k := range item.Keywords {
		if k.DisplayName != "" {
			a.Keywords = append(a.Keywords, k.DisplayName)
		}
	}
	for _, m := range item.MeshList {
		if m.DescriptorName != "" {
			a.MeshTerms = append(a.MeshTerms, m.DescriptorName)
		}
	}

	if item.CitedByCount != nil {
		count := *item.CitedByCount
		a.Metrics = &core.CitationMetrics{CitationCount: &count}
	}

	a.OAStatus = mapOAStatus(item.OpenAccess.OAStatus)
	if item.OpenAccess.OAURL != "" {
		a.OALinks = append(a.OALinks, core.OALink{
			URL:     item.OpenAccess.OAURL,
			License: item.PrimaryLocation.License,
			Version: item.PrimaryLocation.Version,
			IsBest:  true,
		})
	}
	if item.PrimaryLocation.PdfURL != "" && item.PrimaryLocation.PdfURL != item.OpenAccess.OAURL {
		a.OALinks = append(a.OALinks, core.OALink{
			URL:      item.PrimaryLocation.PdfURL,
			License:  item.PrimaryLocation.License,
			Version:  item.PrimaryLocation.Version,
			HostType: "publisher",
		})
	}

	a.RecordSource(SourceOpenAlex, now)
	return a
}

// reconstructAbstract rebuilds the abstract text from OpenAlex's inverted
// index (word -> positions).
func reconstructAbstract(index map[string][]int) string {
	if len(index) == 0 {
		return ""
	}
	maxPos := -1
	for _, positions := range index {
		for _, p := range positions {
			if p > maxPos {
				maxPos = p
			}
		}
	}
	if maxPos < 0 {
		return ""
	}
	words := make([]string, maxPos+1)
	for word, positions := range index {
		for _, p := range positions {
			if p >= 0 && p <= maxPos {
				words[p] = word
			}
		}
	}
	out := words[:0]
	for _, w := range words {
		if w != "" {
			out = append(out, w)
		}
	}
	return strings.Join(out, " ")
}

// splitDisplayName splits "Given Middle Family" on the last space.
func splitDisplayName(name string) (family, given string) {
	name = strings.TrimSpace(name)
	idx := strings.LastIndex(name, " ")
	if idx < 0 {
		return name, ""
	}
	return name[idx+1:], name[:idx]
}

func mapOAStatus(status string) core.OAStatus {
	switch status {
	case "gold":
		return core.OAStatusGold
	case "green":
		return core.OAStatusGreen
	case "hybrid":
		return core.OAStatusHybrid
	case "bronze":
		return core.OAStatusBronze
	case "closed":
		return core.OAStatusClosed
	default:
		return core.OAStatusUnknown
	}
}

func mapOpenAlexType(t string) core.ArticleType {
	switch t {
	case "article":
		return core.ArticleTypeJournalArticle
	case "review":
		return core.ArticleTypeReview
	case "preprint":
		return core.ArticleTypePreprint
	case "book-chapter":
		return core.ArticleTypeBookChapter
	case "dissertation":
		return core.ArticleTypeThesis
	case "dataset":
		return core.ArticleTypeDataset
	case "letter":
		return core.ArticleTypeLetter
	case "editorial":
		return core.ArticleTypeEditorial
	case "":
		return core.ArticleTypeUnknown
	default:
		return core.ArticleTypeOther
	}
}
