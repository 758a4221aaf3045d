package sources

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"litgate/internal/core"
	"litgate/internal/ratelimit"
	"litgate/internal/store"
)

const defaultEUtilsBase = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

// PubMedAdapter talks to the NCBI E-utilities. It is the only adapter
// that can walk the citation graph (elink) and estimate hit counts
// (esearch with retmax=0).
type PubMedAdapter struct {
	client  *http.Client
	limiter *ratelimit.Limiter
	apiKey  string
	baseURL string
	cache   *store.ArticleCache
}

// NewPubMedAdapter builds the adapter with its owned limiter.
func NewPubMedAdapter(cfg Config, limiter *ratelimit.Limiter) *PubMedAdapter {
	return &PubMedAdapter{
		client:  cfg.httpClient(),
		limiter: limiter,
		apiKey:  cfg.PubMedAPIKey,
		baseURL: defaultEUtilsBase,
		cache:   cfg.ArticleCache,
	}
}

// ID returns the source id.
func (p *PubMedAdapter) ID() string { return SourcePubMed }

func (p *PubMedAdapter) params() url.Values {
	v := url.Values{}
	v.Set("db", "pubmed")
	if p.apiKey != "" {
		v.Set("api_key", p.apiKey)
	}
	return v
}

// esearchResponse is the JSON shape of esearch.fcgi?retmode=json.
type esearchResponse struct {
	ESearchResult struct {
		Count  string   `json:"count"`
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

// Search runs esearch then efetch, returning parsed articles.
func (p *PubMedAdapter) Search(ctx context.Context, query string, limit int, filters SearchFilters) ([]core.Article, error) {
	if limit <= 0 {
		return nil, nil
	}
	ids, err := p.esearch(ctx, buildPubMedTerm(query, filters), limit)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	articles, err := p.FetchByID(ctx, ids)
	if err != nil {
		return nil, err
	}
	return applyClientFilters(articles, filters), nil
}

// Count estimates the hit count for a query without fetching records.
func (p *PubMedAdapter) Count(ctx context.Context, query string) (int, error) {
	v := p.params()
	v.Set("term", query)
	v.Set("retmode", "json")
	v.Set("retmax", "0")

	var resp esearchResponse
	u := p.baseURL + "/esearch.fcgi?" + v.Encode()
	if err := getJSON(ctx, p.client, p.limiter, SourcePubMed, u, nil, &resp); err != nil {
		return 0, err
	}
	var count int
	if _, err := fmt.Sscanf(resp.ESearchResult.Count, "%d", &count); err != nil {
		return 0, &core.Error{Kind: core.KindUpstreamParse, Source: SourcePubMed,
			Message: fmt.Sprintf("bad count %q", resp.ESearchResult.Count)}
	}
	return count, nil
}

func (p *PubMedAdapter) esearch(ctx context.Context, term string, limit int) ([]string, error) {
	v := p.params()
	v.Set("term", term)
	v.Set("retmode", "json")
	v.Set("retmax", fmt.Sprintf("%d", limit))
	v.Set("sort", "relevance")

	var resp esearchResponse
	u := p.baseURL + "/esearch.fcgi?" + v.Encode()
	if err := getJSON(ctx, p.client, p.limiter, SourcePubMed, u, nil, &resp); err != nil {
		return nil, err
	}
	return resp.ESearchResult.IDList, nil
}

// buildPubMedTerm folds filters the E-utilities understand into the term.
func buildPubMedTerm(query string, filters SearchFilters) string {
	term := query
	if filters.MinYear > 0 || filters.MaxYear > 0 {
		from := "1800"
		to := "3000"
		if filters.MinYear > 0 {
			from = fmt.Sprintf("%d", filters.MinYear)
		}
		if filters.MaxYear > 0 {
			to = fmt.Sprintf("%d", filters.MaxYear)
		}
		term = fmt.Sprintf("(%s) AND %s:%s[dp]", term, from, to)
	}
	if filters.OpenAccessOnly {
		term = fmt.Sprintf("(%s) AND free full text[sb]", term)
	}
	if filters.Language != "" {
		term = fmt.Sprintf("(%s) AND %s[la]", term, filters.Language)
	}
	return term
}

// FetchByID runs efetch for the given PMIDs, serving cached records where
// possible and preserving input order.
func (p *PubMedAdapter) FetchByID(ctx context.Context, ids []string) ([]core.Article, error) {
	var normalized []string
	for _, id := range ids {
		if pmid := core.NormalizePMID(id); pmid != "" {
			normalized = append(normalized, pmid)
		}
	}
	if len(normalized) == 0 {
		return nil, nil
	}

	cached := make(map[string]*core.Article)
	var missing []string
	for _, pmid := range normalized {
		if p.cache != nil {
			if hit, ok := p.cache.Get("pmid:" + pmid); ok {
				cached[pmid] = hit
				continue
			}
		}
		missing = append(missing, pmid)
	}

	fetched := make(map[string]*core.Article)
	if len(missing) > 0 {
		articles, err := p.efetch(ctx, missing)
		if err != nil {
			return nil, err
		}
		for i := range articles {
			a := &articles[i]
			fetched[a.PMID] = a
			if p.cache != nil {
				p.cache.Put(a)
			}
		}
	}

	var out []core.Article
	seen := make(map[string]bool)
	for _, pmid := range normalized {
		if seen[pmid] {
			continue
		}
		seen[pmid] = true
		if a, ok := cached[pmid]; ok {
			out = append(out, *a)
		} else if a, ok := fetched[pmid]; ok {
			out = append(out, *a)
		}
	}
	return out, nil
}

// Related returns "similar articles" for a PMID via elink.
func (p *PubMedAdapter) Related(ctx context.Context, id string, limit int) ([]core.Article, error) {
	return p.linked(ctx, id, "pubmed_pubmed", limit)
}

// Citing returns articles that cite the given PMID.
func (p *PubMedAdapter) Citing(ctx context.Context, id string, limit int) ([]core.Article, error) {
	return p.linked(ctx, id, "pubmed_pubmed_citedin", limit)
}

// References returns articles cited by the given PMID.
func (p *PubMedAdapter) References(ctx context.Context, id string, limit int) ([]core.Article, error) {
	return p.linked(ctx, id, "pubmed_pubmed_refs", limit)
}

// elinkResponse is the JSON shape of elink.fcgi?retmode=json.
type elinkResponse struct {
	LinkSets []struct {
		LinkSetDBs []struct {
			LinkName string `json:"linkname"`
			Links    []string
		} `json:"linksetdbs"`
	} `json:"linksets"`
}

func (p *PubMedAdapter) linked(ctx context.Context, id, linkName string, limit int) ([]core.Article, error) {
	pmid := core.NormalizePMID(id)
	if pmid == "" {
		return nil, fmt.Errorf("%w: %q is not a PMID", ErrMissingID, id)
	}
	if limit <= 0 {
		return nil, nil
	}

	v := p.params()
	v.Set("dbfrom", "pubmed")
	v.Set("id", pmid)
	v.Set("linkname", linkName)
	v.Set("retmode", "json")

	var resp elinkResponse
	u := p.baseURL + "/elink.fcgi?" + v.Encode()
	if err := getJSON(ctx, p.client, p.limiter, SourcePubMed, u, nil, &resp); err != nil {
		return nil, err
	}

	var linked []string
	for _, set := range resp.LinkSets {
		for _, db := range set.LinkSetDBs {
			if db.LinkName != linkName {
				continue
			}
			for _, l := range db.Links {
				if l == pmid {
					continue
				}
				linked = append(linked, l)
				if len(linked) >= limit {
					break
				}
			}
		}
	}
	if len(linked) == 0 {
		return nil, nil
	}
	return p.FetchByID(ctx, linked)
}

// efetch XML document shapes. Only the fields the Article model needs.
type pubmedArticleSet struct {
	Articles []pubmedArticle `xml:"PubmedArticle"`
}

type pubmedArticle struct {
	Medline struct {
		PMID    string `xml:"PMID"`
		Article struct {
			Title    string `xml:"ArticleTitle"`
			Abstract struct {
				Texts []struct {
					Label string `xml:"Label,attr"`
					Text  string `xml:",chardata"`
				} `xml:"AbstractText"`
			} `xml:"Abstract"`
			Journal struct {
				Title   string `xml:"Title"`
				ISOAbbr string `xml:"ISOAbbreviation"`
				Issue   struct {
					Volume  string `xml:"Volume"`
					Issue   string `xml:"Issue"`
					PubDate struct {
						Year        string `xml:"Year"`
						Month       string `xml:"Month"`
						Day         string `xml:"Day"`
						MedlineDate string `xml:"MedlineDate"`
					} `xml:"PubDate"`
				} `xml:"JournalIssue"`
			} `xml:"Journal"`
			Pagination struct {
				MedlinePgn string `xml:"MedlinePgn"`
			} `xml:"Pagination"`
			AuthorList struct {
				Authors []struct {
					LastName    string `xml:"LastName"`
					ForeName    string `xml:"ForeName"`
					Identifier  string `xml:"Identifier"`
					Affiliation []struct {
						Name string `xml:"Affiliation"`
					} `xml:"AffiliationInfo"`
				} `xml:"Author"`
			} `xml:"AuthorList"`
			Language         []string `xml:"Language"`
			PublicationTypes struct {
				Types []string `xml:"PublicationType"`
			} `xml:"PublicationTypeList"`
		} `xml:"Article"`
		MeshHeadings struct {
			Headings []struct {
				Descriptor string `xml:"DescriptorName"`
			} `xml:"MeshHeading"`
		} `xml:"MeshHeadingList"`
		Keywords []struct {
			Words []string `xml:"Keyword"`
		} `xml:"KeywordList"`
	} `xml:"MedlineCitation"`
	PubmedData struct {
		ArticleIDs struct {
			IDs []struct {
				Type string `xml:"IdType,attr"`
				ID   string `xml:",chardata"`
			} `xml:"ArticleId"`
		} `xml:"ArticleIdList"`
	} `xml:"PubmedData"`
}

func (p *PubMedAdapter) efetch(ctx context.Context, pmids []string) ([]core.Article, error) {
	v := p.params()
	v.Set("id", strings.Join(pmids, ","))
	v.Set("retmode", "xml")
	v.Set("rettype", "abstract")

	u := p.baseURL + "/efetch.fcgi?" + v.Encode()
	body, err := getRaw(ctx, p.client, p.limiter, SourcePubMed, u, nil)
	if err != nil {
		return nil, err
	}

	var doc pubmedArticleSet
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, &core.Error{
			Kind:    core.KindUpstreamParse,
			Source:  SourcePubMed,
			Message: fmt.Sprintf("unexpected payload: %s", snippet(body)),
			Err:     err,
		}
	}

	now := time.Now().UTC()
	var out []core.Article
	for _, raw := range doc.Articles {
		a := parsePubMedArticle(raw, now)
		if a.Valid() {
			out = append(out, a)
		}
	}
	return out, nil
}

func parsePubMedArticle(raw pubmedArticle, now time.Time) core.Article {
	med := raw.Medline
	var a core.Article
	a.PMID = core.NormalizePMID(med.PMID)
	a.Title = cleanMarkup(med.Article.Title)

	var abs []string
	for _, t := range med.Article.Abstract.Texts {
		text := strings.TrimSpace(t.Text)
		if text == "" {
			continue
		}
		if t.Label != "" {
			text = t.Label + ": " + text
		}
		abs = append(abs, text)
	}
	a.Abstract = cleanMarkup(strings.Join(abs, " "))

	a.Journal = med.Article.Journal.Title
	a.JournalAbbrev = med.Article.Journal.ISOAbbr
	a.Volume = med.Article.Journal.Issue.Volume
	a.Issue = med.Article.Journal.Issue.Issue
	a.Pages = med.Article.Pagination.MedlinePgn

	pub := med.Article.Journal.Issue.PubDate
	if date, ok := parsePubDate(pub.Year, pub.Month, pub.Day); ok {
		a.SetPublicationDate(date)
	} else if y := core.ParseYear(pub.MedlineDate); y != 0 {
		a.Year = y
	}

	for _, auth := range med.Article.AuthorList.Authors {
		if auth.LastName == "" && auth.ForeName == "" {
			continue
		}
		author := core.Author{Family: auth.LastName, Given: auth.ForeName, ORCID: normalizeORCID(auth.Identifier)}
		if len(auth.Affiliation) > 0 {
			author.Affiliation = auth.Affiliation[0].Name
		}
		a.Authors = append(a.Authors, author)
	}

	if len(med.Article.Language) > 0 {
		a.Language = normalizeLanguage(med.Article.Language[0])
	}
	a.Type = mapPubMedType(med.Article.PublicationTypes.Types)

	for _, h := range med.MeshHeadings.Headings {
		if h.Descriptor != "" {
			a.MeshTerms = append(a.MeshTerms, h.Descriptor)
		}
	}
	for _, kl := range med.Keywords {
		for _, w := range kl.Words {
			if w = strings.TrimSpace(w); w != "" {
				a.Keywords = append(a.Keywords, w)
			}
		}
	}

	for _, id := range raw.PubmedData.ArticleIDs.IDs {
		switch id.Type {
		case "doi":
			a.DOI = core.NormalizeDOI(id.ID)
		case "pmc":
			a.PMC = core.NormalizePMC(id.ID)
		}
	}
	if a.PMC != "" {
		// A PMC id means a free full-text copy exists.
		a.OAStatus = core.OAStatusGreen
		a.OALinks = append(a.OALinks, core.OALink{
			URL:      "https://www.ncbi.nlm.nih.gov/pmc/articles/" + a.PMC + "/",
			HostType: "repository",
		})
	}

	a.RecordSource(SourcePubMed, now)
	return a
}

func parsePubDate(year, month, day string) (time.Time, bool) {
	if year == "" {
		return time.Time{}, false
	}
	layouts := []struct {
		layout string
		value  string
	}{
		{"2006-Jan-2", fmt.Sprintf("%s-%s-%s", year, month, day)},
		{"2006-1-2", fmt.Sprintf("%s-%s-%s", year, month, day)},
		{"2006-Jan", fmt.Sprintf("%s-%s", year, month)},
		{"2006-1", fmt.Sprintf("%s-%s", year, month)},
		{"2006", year},
	}
	for _, l := range layouts {
		if t, err := time.Parse(l.layout, l.value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// mapPubMedType maps PublicationType entries onto the closed ArticleType
// enum, most specific first.
func mapPubMedType(types []string) core.ArticleType {
	has := func(want string) bool {
		for _, t := range types {
			if strings.EqualFold(t, want) {
				return true
			}
		}
		return false
	}
	switch {
	case has("Meta-Analysis"):
		return core.ArticleTypeMetaAnalysis
	case has("Systematic Review"):
		return core.ArticleTypeSystematicReview
	case has("Randomized Controlled Trial"):
		return core.ArticleTypeRCT
	case has("Clinical Trial"):
		return core.ArticleTypeClinicalTrial
	case has("Review"):
		return core.ArticleTypeReview
	case has("Case Reports"):
		return core.ArticleTypeCaseReport
	case has("Letter"):
		return core.ArticleTypeLetter
	case has("Editorial"):
		return core.ArticleTypeEditorial
	case has("Comment"):
		return core.ArticleTypeComment
	case has("Preprint"):
		return core.ArticleTypePreprint
	case has("Journal Article"):
		return core.ArticleTypeJournalArticle
	case len(types) == 0:
		return core.ArticleTypeUnknown
	default:
		return core.ArticleTypeOther
	}
}

func normalizeORCID(id string) string {
	id = strings.TrimSpace(id)
	id = strings.TrimPrefix(id, "https://orcid.org/")
	id = strings.TrimPrefix(id, "http://orcid.org/")
	return id
}

// normalizeLanguage maps the MEDLINE three-letter codes the corpus
// actually uses onto two-letter tags; unknown codes pass through.
func normalizeLanguage(lang string) string {
	switch strings.ToLower(lang) {
	case "eng":
		return "en"
	case "fre":
		return "fr"
	case "ger":
		return "de"
	case "spa":
		return "es"
	case "chi":
		return "zh"
	case "jpn":
		return "ja"
	default:
		return strings.ToLower(lang)
	}
}
