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

const defaultCOREBase = "https://api.core.ac.uk/v3"

// COREAdapter queries the CORE v3 aggregator, the full-text repository
// index. CORE enforces per-minute quotas, so its limiter is built with
// ratelimit.PerMinute.
type COREAdapter struct {
	client  *http.Client
	limiter *ratelimit.Limiter
	apiKey  string
	baseURL string
	cache   *store.ArticleCache
}

// NewCOREAdapter builds the adapter.
func NewCOREAdapter(cfg Config, limiter *ratelimit.Limiter) *COREAdapter {
	return &COREAdapter{
		client:  cfg.httpClient(),
		limiter: limiter,
		apiKey:  cfg.COREAPIKey,
		baseURL: defaultCOREBase,
		cache:   cfg.ArticleCache,
	}
}

// ID returns the source id.
func (c *COREAdapter) ID() string { return SourceCORE }

func (c *COREAdapter) headers() map[string]string {
	if c.apiKey == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + c.apiKey}
}

// coreWork mirrors the subset of a CORE v3 work we consume.
type coreWork struct {
	DOI           string `json:"doi"`
	Title         string `json:"title"`
	Abstract      string `json:"abstract"`
	YearPublished int    `json:"yearPublished"`
	PublishedDate string `json:"publishedDate"`
	Publisher     string `json:"publisher"`
	DocumentType  string `json:"documentType"`
	DownloadURL   string `json:"downloadUrl"`
	Language      struct {
		Code string `json:"code"`
	} `json:"language"`
	Authors []struct {
		Name string `json:"name"`
	} `json:"authors"`
	Identifiers []struct {
		Identifier string `json:"identifier"`
		Type       string `json:"type"`
	} `json:"identifiers"`
	Journals []struct {
		Title string `json:"title"`
	} `json:"journals"`
	FieldOfStudy string `json:"fieldOfStudy"`
}

type coreSearchResponse struct {
	Results []coreWork `json:"results"`
}

// Search queries /search/works. Year bounds become a range clause in the
// query string; the rest is applied client-side.
func (c *COREAdapter) Search(ctx context.Context, query string, limit int, filters SearchFilters) ([]core.Article, error) {
	if limit <= 0 {
		return nil, nil
	}
	q := query
	if filters.MinYear > 0 || filters.MaxYear > 0 {
		from, to := "*", "*"
		if filters.MinYear > 0 {
			from = fmt.Sprintf("%d", filters.MinYear)
		}
		if filters.MaxYear > 0 {
			to = fmt.Sprintf("%d", filters.MaxYear)
		}
		q = fmt.Sprintf("(%s) AND yearPublished>=%s AND yearPublished<=%s", query, from, to)
	}
	v := url.Values{}
	v.Set("q", q)
	v.Set("limit", fmt.Sprintf("%d", limit))

	var resp coreSearchResponse
	u := c.baseURL + "/search/works?" + v.Encode()
	if err := getJSON(ctx, c.client, c.limiter, SourceCORE, u, c.headers(), &resp); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var out []core.Article
	for _, item := range resp.Results {
		a := parseCOREWork(item, now)
		if a.Valid() {
			if c.cache != nil {
				c.cache.Put(&a)
			}
			out = append(out, a)
		}
	}
	return applyClientFilters(out, filters), nil
}

func parseCOREWork(item coreWork, now time.Time) core.Article {
	var a core.Article
	a.DOI = core.NormalizeDOI(item.DOI)
	for _, id := range item.Identifiers {
		switch strings.ToUpper(id.Type) {
		case "DOI":
			if a.DOI == "" {
				a.DOI = core.NormalizeDOI(id.Identifier)
			}
		case "PMID", "PUBMED_ID":
			if a.PMID == "" {
				a.PMID = core.NormalizePMID(id.Identifier)
			}
		case "PMCID":
			if a.PMC == "" {
				a.PMC = core.NormalizePMC(id.Identifier)
			}
		case "ARXIV_ID":
			if a.ArxivID == "" {
				a.ArxivID = id.Identifier
			}
		}
	}
	a.Title = cleanMarkup(item.Title)
	a.Abstract = cleanMarkup(item.Abstract)
	a.Publisher = item.Publisher
	a.Language = normalizeLanguage(item.Language.Code)
	if len(item.Journals) > 0 {
		a.Journal = item.Journals[0].Title
	}
	if item.FieldOfStudy != "" {
		a.Keywords = append(a.Keywords, item.FieldOfStudy)
	}
	a.Type = mapCOREType(item.DocumentType)

	if t, err := time.Parse("2006-01-02", item.PublishedDate); err == nil {
		a.SetPublicationDate(t)
	} else if t, err := time.Parse(time.RFC3339, item.PublishedDate); err == nil {
		a.SetPublicationDate(t)
	} else if item.YearPublished != 0 {
		a.Year = item.YearPublished
	}

	for _, auth := range item.Authors {
		if auth.Name == "" {
			continue
		}
		var author core.Author
		// CORE names usually arrive as "Family, Given".
		if family, given, ok := strings.Cut(auth.Name, ","); ok {
			author.Family = strings.TrimSpace(family)
			author.Given = strings.TrimSpace(given)
		} else {
			author.Family, author.Given = splitDisplayName(auth.Name)
		}
		a.Authors = append(a.Authors, author)
	}

	if item.DownloadURL != "" {
		a.OAStatus = core.OAStatusGreen
		a.OALinks = append(a.OALinks, core.OALink{
			URL:      item.DownloadURL,
			HostType: "repository",
			IsBest:   true,
		})
	}

	a.RecordSource(SourceCORE, now)
	return a
}

func mapCOREType(t string) core.ArticleType {
	switch strings.ToLower(t) {
	case "research":
		return core.ArticleTypeJournalArticle
	case "thesis":
		return core.ArticleTypeThesis
	case "slides", "presentation":
		return core.ArticleTypeOther
	case "":
		return core.ArticleTypeUnknown
	default:
		return core.ArticleTypeOther
	}
}
