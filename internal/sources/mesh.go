package sources

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"litgate/internal/core"
	"litgate/internal/ratelimit"
	"litgate/internal/store"
)

// MeSHClient resolves free-text terms against the NCBI MeSH vocabulary
// via esearch and esummary on db=mesh. It shares the E-utilities quota
// with the PubMed adapter, so callers should hand both the same limiter.
type MeSHClient struct {
	client  *http.Client
	limiter *ratelimit.Limiter
	apiKey  string
	baseURL string
}

// NewMeSHClient builds the client.
func NewMeSHClient(cfg Config, limiter *ratelimit.Limiter) *MeSHClient {
	return &MeSHClient{
		client:  cfg.httpClient(),
		limiter: limiter,
		apiKey:  cfg.PubMedAPIKey,
		baseURL: defaultEUtilsBase,
	}
}

// The esummary result map mixes per-UID records with a "uids" array
// entry, so the values are decoded lazily per key.
type meshSummaryResponse struct {
	Result map[string]json.RawMessage `json:"result"`
}

type meshSummary struct {
	MeshUI    string   `json:"ds_meshui"`
	MeshTerms []string `json:"ds_meshterms"`
}

// Resolve looks up a term's canonical MeSH heading and synonyms. A term
// with no MeSH match returns a record carrying only the original term.
func (m *MeSHClient) Resolve(ctx context.Context, term string) (store.EntityRecord, error) {
	rec := store.EntityRecord{Term: term}
	term = strings.TrimSpace(term)
	if term == "" {
		return rec, nil
	}

	v := url.Values{}
	v.Set("db", "mesh")
	v.Set("term", term)
	v.Set("retmode", "json")
	v.Set("retmax", "1")
	if m.apiKey != "" {
		v.Set("api_key", m.apiKey)
	}

	var search esearchResponse
	u := m.baseURL + "/esearch.fcgi?" + v.Encode()
	if err := getJSON(ctx, m.client, m.limiter, "mesh", u, nil, &search); err != nil {
		return rec, err
	}
	if len(search.ESearchResult.IDList) == 0 {
		return rec, nil
	}

	v = url.Values{}
	v.Set("db", "mesh")
	v.Set("id", search.ESearchResult.IDList[0])
	v.Set("retmode", "json")
	if m.apiKey != "" {
		v.Set("api_key", m.apiKey)
	}

	var summary meshSummaryResponse
	u = m.baseURL + "/esummary.fcgi?" + v.Encode()
	if err := getJSON(ctx, m.client, m.limiter, "mesh", u, nil, &summary); err != nil {
		return rec, err
	}

	raw, ok := summary.Result[search.ESearchResult.IDList[0]]
	if !ok {
		return rec, nil
	}
	var s meshSummary
	if err := json.Unmarshal(raw, &s); err != nil {
		return rec, &core.Error{
			Kind:    core.KindUpstreamParse,
			Source:  "mesh",
			Message: "unexpected esummary record",
			Err:     err,
		}
	}

	rec.MeshID = s.MeshUI
	if len(s.MeshTerms) > 0 {
		rec.Canonical = s.MeshTerms[0]
		rec.Synonyms = append(rec.Synonyms, s.MeshTerms[1:]...)
	}
	return rec, nil
}
