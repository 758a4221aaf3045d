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

const defaultCrossrefBase = "https://api.crossref.org"

// CrossrefAdapter queries the Crossref REST API (the DOI registry).
type CrossrefAdapter struct {
	client  *http.Client
	limiter *ratelimit.Limiter
	mailto  string
	baseURL string
	cache   *store.ArticleCache
}

// NewCrossrefAdapter builds the adapter. A contact email is sent as the
// mailto parameter, which routes requests to Crossref's polite pool.
func NewCrossrefAdapter(cfg Config, limiter *ratelimit.Limiter) *CrossrefAdapter {
	return &CrossrefAdapter{
		client:  cfg.httpClient(),
		limiter: limiter,
		mailto:  cfg.ContactEmail,
		baseURL: defaultCrossrefBase,
		cache:   cfg.ArticleCache,
	}
}

// ID returns the source id.
func (c *CrossrefAdapter) ID() string { return SourceCrossref }

// crossrefWork mirrors the subset of a Crossref work message we consume.
type crossrefWork struct {
	DOI       string     `json:"DOI"`
	Title     []string   `json:"title"`
	Abstract  string     `json:"abstract"`
	Type      string     `json:"type"`
	Volume    string     `json:"volume"`
	Issue     string     `json:"issue"`
	Page      string     `json:"page"`
	Publisher string     `json:"publisher"`
	Language  string     `json:"language"`
	Container []string   `json:"container-title"`
	ShortCont []string   `json:"short-container-title"`
	Subject   []string   `json:"subject"`
	CitedBy   *int       `json:"is-referenced-by-count"`
	Author    []struct {
		Family      string `json:"family"`
		Given       string `json:"given"`
		ORCID       string `json:"ORCID"`
		Affiliation []struct {
			Name string `json:"name"`
		} `json:"affiliation"`
	} `json:"author"`
	Issued struct {
		DateParts [][]int `json:"date-parts"`
	} `json:"issued"`
	License []struct {
		URL string `json:"URL"`
	} `json:"license"`
	Link []struct {
		URL         string `json:"URL"`
		ContentType string `json:"content-type"`
	} `json:"link"`
}

type crossrefSearchResponse struct {
	Message struct {
		Items []crossrefWork `json:"items"`
	} `json:"message"`
}

type crossrefWorkResponse struct {
	Message crossrefWork `json:"message"`
}

// Search queries /works. Year filters map to from/until-pub-date; the
// rest is applied client-side.
func (c *CrossrefAdapter) Search(ctx context.Context, query string, limit int, filters SearchFilters) ([]core.Article, error) {
	if limit <= 0 {
		return nil, nil
	}
	v := url.Values{}
	v.Set("query", query)
	v.Set("rows", fmt.Sprintf("%d", limit))
	if c.mailto != "" {
		v.Set("mailto", c.mailto)
	}
	var apiFilters []string
	if filters.MinYear > 0 {
		apiFilters = append(apiFilters, fmt.Sprintf("from-pub-date:%d-01-01", filters.MinYear))
	}
	if filters.MaxYear > 0 {
		apiFilters = append(apiFilters, fmt.Sprintf("until-pub-date:%d-12-31", filters.MaxYear))
	}
	if filters.HasFullText {
		apiFilters = append(apiFilters, "has-full-text:true")
	}
	if len(apiFilters) > 0 {
		v.Set("filter", strings.Join(apiFilters, ","))
	}

	var resp crossrefSearchResponse
	u := c.baseURL + "/works?" + v.Encode()
	if err := getJSON(ctx, c.client, c.limiter, SourceCrossref, u, nil, &resp); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var out []core.Article
	for _, item := range resp.Message.Items {
		a := parseCrossrefWork(item, now)
		if a.Valid() {
			if c.cache != nil {
				c.cache.Put(&a)
			}
			out = append(out, a)
		}
	}
	return applyClientFilters(out, filters), nil
}

// FetchByID resolves DOIs via /works/<doi>.
func (c *CrossrefAdapter) FetchByID(ctx context.Context, ids []string) ([]core.Article, error) {
	now := time.Now().UTC()
	var out []core.Article
	seen := make(map[string]bool)
	for _, id := range ids {
		doi := core.NormalizeDOI(id)
		if doi == "" || seen[doi] {
			continue
		}
		seen[doi] = true

		if c.cache != nil {
			if hit, ok := c.cache.Get("doi:" + doi); ok {
				out = append(out, *hit)
				continue
			}
		}

		var resp crossrefWorkResponse
		u := c.baseURL + "/works/" + url.PathEscape(doi)
		if err := getJSON(ctx, c.client, c.limiter, SourceCrossref, u, nil, &resp); err != nil {
			return out, err
		}
		a := parseCrossrefWork(resp.Message, now)
		if a.Valid() {
			if c.cache != nil {
				c.cache.Put(&a)
			}
			out = append(out, a)
		}
	}
	return out, nil
}

func parseCrossrefWork(item crossrefWork, now time.Time) core.Article {
	var a core.Article
	a.DOI = core.NormalizeDOI(item.DOI)
	if len(item.Title) > 0 {
		a.Title = cleanMarkup(item.Title[0])
	}
	// Crossref abstracts are JATS XML fragments.
	a.Abstract = cleanMarkup(item.Abstract)
	if len(item.Container) > 0 {
		a.Journal = item.Container[0]
	}
	if len(item.ShortCont) > 0 {
		a.JournalAbbrev = item.ShortCont[0]
	}
	a.Volume = item.Volume
	a.Issue = item.Issue
	a.Pages = item.Page
	a.Publisher = item.Publisher
	a.Language = item.Language
	a.Keywords = append(a.Keywords, item.Subject...)
	a.Type = mapCrossrefType(item.Type)

	if len(item.Issued.DateParts) > 0 {
		a.SetPublicationDate(dateFromParts(item.Issued.DateParts[0]))
	}

	for _, auth := range item.Author {
		author := core.Author{
			Family: auth.Family,
			Given:  auth.Given,
			ORCID:  normalizeORCID(auth.ORCID),
		}
		if len(auth.Affiliation) > 0 {
			author.Affiliation = auth.Affiliation[0].Name
		}
		a.Authors = append(a.Authors, author)
	}

	if item.CitedBy != nil {
		count := *item.CitedBy
		a.Metrics = &core.CitationMetrics{CitationCount: &count}
	}

	for _, link := range item.Link {
		if link.URL == "" {
			continue
		}
		oa := core.OALink{URL: link.URL, HostType: "publisher"}
		if len(item.License) > 0 {
			oa.License = item.License[0].URL
		}
		a.OALinks = append(a.OALinks, oa)
		break
	}

	a.RecordSource(SourceCrossref, now)
	return a
}

func dateFromParts(parts []int) time.Time {
	year, month, day := 0, 1, 1
	if len(parts) > 0 {
		year = parts[0]
	}
	if len(parts) > 1 && parts[1] >= 1 && parts[1] <= 12 {
		month = parts[1]
	}
	if len(parts) > 2 && parts[2] >= 1 && parts[2] <= 31 {
		day = parts[2]
	}
	if year == 0 {
		return time.Time{}
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

func mapCrossrefType(t string) core.ArticleType {
	switch t {
	case "journal-article":
		return core.ArticleTypeJournalArticle
	case "book-chapter":
		return core.ArticleTypeBookChapter
	case "proceedings-article":
		return core.ArticleTypeConferencePaper
	case "posted-content":
		return core.ArticleTypePreprint
	case "dissertation":
		return core.ArticleTypeThesis
	case "dataset":
		return core.ArticleTypeDataset
	case "":
		return core.ArticleTypeUnknown
	default:
		return core.ArticleTypeOther
	}
}
