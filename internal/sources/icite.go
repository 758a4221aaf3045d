package sources

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"litgate/internal/core"
	"litgate/internal/ratelimit"
)

const defaultICiteBase = "https://icite.od.nih.gov/api"

// iCite accepts batched pmid lists; stay well under the URL length cap.
const iCiteBatchSize = 200

// ICiteClient fetches NIH iCite citation metrics. It is a metrics
// service, not a search source: articles without a PMID pass through
// untouched, and a missing iCite record is not an error.
type ICiteClient struct {
	client  *http.Client
	limiter *ratelimit.Limiter
	baseURL string
}

// NewICiteClient builds the client. iCite publishes no hard quota; one
// request per second is polite for batched calls.
func NewICiteClient(cfg Config) *ICiteClient {
	return &ICiteClient{
		client:  cfg.httpClient(),
		limiter: ratelimit.PerSecond(1),
		baseURL: defaultICiteBase,
	}
}

type icitePub struct {
	PMID                  any      `json:"pmid"`
	CitationCount         *int     `json:"citation_count"`
	RelativeCitationRatio *float64 `json:"relative_citation_ratio"`
	NIHPercentile         *float64 `json:"nih_percentile"`
	APT                   *float64 `json:"apt"`
	CitationsPerYear      *float64 `json:"citations_per_year"`
}

type iciteResponse struct {
	Data []icitePub `json:"data"`
}

// EnrichMetrics attaches iCite metrics to every article that has a PMID.
// Articles without one, and pmids iCite does not know, are returned as
// they came in.
func (c *ICiteClient) EnrichMetrics(ctx context.Context, articles []core.Article) ([]core.Article, error) {
	var pmids []string
	for _, a := range articles {
		if a.PMID != "" {
			pmids = append(pmids, a.PMID)
		}
	}
	if len(pmids) == 0 {
		return articles, nil
	}

	byPMID := make(map[string]icitePub)
	for start := 0; start < len(pmids); start += iCiteBatchSize {
		end := start + iCiteBatchSize
		if end > len(pmids) {
			end = len(pmids)
		}
		v := url.Values{}
		v.Set("pmids", strings.Join(pmids[start:end], ","))

		var resp iciteResponse
		u := c.baseURL + "/pubs?" + v.Encode()
		if err := getJSON(ctx, c.client, c.limiter, "icite", u, nil, &resp); err != nil {
			return articles, err
		}
		for _, pub := range resp.Data {
			if pmid := core.NormalizePMID(anyToString(pub.PMID)); pmid != "" {
				byPMID[pmid] = pub
			}
		}
	}

	out := make([]core.Article, len(articles))
	copy(out, articles)
	for i := range out {
		pub, ok := byPMID[out[i].PMID]
		if !ok {
			continue
		}
		// Fresh struct so the input articles' metrics are never written to.
		m := &core.CitationMetrics{}
		if out[i].Metrics != nil {
			*m = *out[i].Metrics
		}
		out[i].Metrics = m
		if pub.CitationCount != nil {
			m.CitationCount = pub.CitationCount
		}
		if pub.RelativeCitationRatio != nil {
			m.RelativeCitationRate = pub.RelativeCitationRatio
		}
		if pub.NIHPercentile != nil {
			m.Percentile = pub.NIHPercentile
		}
		if pub.APT != nil {
			m.TranslationPotential = pub.APT
		}
		if pub.CitationsPerYear != nil {
			m.CitationsPerYear = pub.CitationsPerYear
		}
	}
	return out, nil
}

// anyToString renders iCite's pmid field, which arrives as a JSON number
// in some records and a string in others.
func anyToString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}
