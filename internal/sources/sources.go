// Package sources wraps the upstream scholarly services and turns their
// payloads into core.Article records. One adapter per source; each owns
// its HTTP client and token-bucket rate limiter.
package sources

import (
	"context"
	"net/http"
	"time"

	"litgate/internal/core"
	"litgate/internal/ratelimit"
	"litgate/internal/store"
)

// Source ids. These are the names callers use in search options and
// pipeline params.
const (
	SourcePubMed          = "pubmed"
	SourceCrossref        = "crossref"
	SourceOpenAlex        = "openalex"
	SourceSemanticScholar = "semanticscholar"
	SourceCORE            = "core"
)

// AllSources lists every search-capable source in trust order.
var AllSources = []string{
	SourcePubMed, SourceCrossref, SourceOpenAlex, SourceSemanticScholar, SourceCORE,
}

// DefaultTimeout bounds each adapter call.
const DefaultTimeout = 30 * time.Second

// SearchFilters are honored best-effort by every adapter; filters an
// upstream cannot express are applied client-side after fetching.
type SearchFilters struct {
	MinYear        int
	MaxYear        int
	OpenAccessOnly bool
	HasFullText    bool
	Language       string
}

// SearchCapable is the minimum capability of a source adapter.
type SearchCapable interface {
	ID() string
	Search(ctx context.Context, query string, limit int, filters SearchFilters) ([]core.Article, error)
}

// DetailsCapable sources can fetch full records by identifier.
type DetailsCapable interface {
	FetchByID(ctx context.Context, ids []string) ([]core.Article, error)
}

// CitationsCapable sources can walk the citation graph. Only the
// biomedical source implements this.
type CitationsCapable interface {
	Related(ctx context.Context, id string, limit int) ([]core.Article, error)
	Citing(ctx context.Context, id string, limit int) ([]core.Article, error)
	References(ctx context.Context, id string, limit int) ([]core.Article, error)
}

// CountCapable sources can estimate hit counts without fetching records.
type CountCapable interface {
	Count(ctx context.Context, query string) (int, error)
}

// MetricsService enriches articles with citation metrics. Missing metrics
// are not errors.
type MetricsService interface {
	EnrichMetrics(ctx context.Context, articles []core.Article) ([]core.Article, error)
}

// Config carries per-source keys and rate overrides from the config file.
type Config struct {
	PubMedAPIKey   string
	COREAPIKey     string
	ContactEmail   string // Sent as mailto/User-Agent courtesy to Crossref and OpenAlex
	Timeout        time.Duration
	ArticleCache   *store.ArticleCache
	PersistedCache *store.Store // Optional second-level cache

	// Rate overrides; zero means the per-source default.
	PubMedRPS          float64
	CrossrefRPS        float64
	OpenAlexRPS        float64
	SemanticScholarRPS float64
	CORERPM            float64
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

func (c Config) httpClient() *http.Client {
	return &http.Client{Timeout: c.timeout()}
}

// Registry holds the constructed adapters and answers capability queries.
type Registry struct {
	adapters map[string]SearchCapable
	metrics  MetricsService
}

// NewRegistry constructs every adapter with its default rate limit
// (overridable via cfg) and the shared caches.
func NewRegistry(cfg Config) *Registry {
	pubmedRPS := cfg.PubMedRPS
	if pubmedRPS <= 0 {
		// NCBI allows 3 rps anonymously, 10 rps with an API key.
		pubmedRPS = 3
		if cfg.PubMedAPIKey != "" {
			pubmedRPS = 10
		}
	}
	crossrefRPS := cfg.CrossrefRPS
	if crossrefRPS <= 0 {
		crossrefRPS = 50
	}
	openalexRPS := cfg.OpenAlexRPS
	if openalexRPS <= 0 {
		openalexRPS = 10
	}
	s2RPS := cfg.SemanticScholarRPS
	if s2RPS <= 0 {
		s2RPS = 10
	}
	coreRPM := cfg.CORERPM
	if coreRPM <= 0 {
		coreRPM = 10
		if cfg.COREAPIKey != "" {
			coreRPM = 25
		}
	}

	r := &Registry{adapters: make(map[string]SearchCapable)}
	r.adapters[SourcePubMed] = NewPubMedAdapter(cfg, ratelimit.PerSecond(pubmedRPS))
	r.adapters[SourceCrossref] = NewCrossrefAdapter(cfg, ratelimit.PerSecond(crossrefRPS))
	r.adapters[SourceOpenAlex] = NewOpenAlexAdapter(cfg, ratelimit.PerSecond(openalexRPS))
	r.adapters[SourceSemanticScholar] = NewSemanticScholarAdapter(cfg, ratelimit.PerSecond(s2RPS))
	r.adapters[SourceCORE] = NewCOREAdapter(cfg, ratelimit.PerMinute(coreRPM))
	r.metrics = NewICiteClient(cfg)
	return r
}

// NewTestRegistry builds a registry from explicit adapters; tests use it
// with mocks.
func NewTestRegistry(metrics MetricsService, adapters ...SearchCapable) *Registry {
	r := &Registry{adapters: make(map[string]SearchCapable), metrics: metrics}
	for _, a := range adapters {
		r.adapters[a.ID()] = a
	}
	return r
}

// Get returns the adapter for a source id.
func (r *Registry) Get(id string) (SearchCapable, bool) {
	a, ok := r.adapters[id]
	return a, ok
}

// Details returns the adapter if it can fetch by identifier.
func (r *Registry) Details(id string) (DetailsCapable, bool) {
	a, ok := r.adapters[id]
	if !ok {
		return nil, false
	}
	d, ok := a.(DetailsCapable)
	return d, ok
}

// Citations returns the adapter if it can walk the citation graph.
func (r *Registry) Citations(id string) (CitationsCapable, bool) {
	a, ok := r.adapters[id]
	if !ok {
		return nil, false
	}
	c, ok := a.(CitationsCapable)
	return c, ok
}

// Counter returns the adapter if it can estimate hit counts.
func (r *Registry) Counter(id string) (CountCapable, bool) {
	a, ok := r.adapters[id]
	if !ok {
		return nil, false
	}
	c, ok := a.(CountCapable)
	return c, ok
}

// Metrics returns the citation-metrics service, which may be nil in tests.
func (r *Registry) Metrics() MetricsService {
	return r.metrics
}

// IDs lists the registered source ids in trust order; sources outside
// AllSources (test mocks) follow in map order.
func (r *Registry) IDs() []string {
	var ids []string
	for _, id := range AllSources {
		if _, ok := r.adapters[id]; ok {
			ids = append(ids, id)
		}
	}
	for id := range r.adapters {
		if !isKnown(id) {
			ids = append(ids, id)
		}
	}
	return ids
}

func isKnown(id string) bool {
	for _, s := range AllSources {
		if s == id {
			return true
		}
	}
	return false
}

// applyClientFilters drops articles that fail filters the upstream could
// not apply server-side.
func applyClientFilters(articles []core.Article, filters SearchFilters) []core.Article {
	out := articles[:0]
	for _, a := range articles {
		if filters.MinYear > 0 && a.Year != 0 && a.Year < filters.MinYear {
			continue
		}
		if filters.MaxYear > 0 && a.Year != 0 && a.Year > filters.MaxYear {
			continue
		}
		if filters.OpenAccessOnly && (a.OAStatus == core.OAStatusClosed || len(a.OALinks) == 0) {
			continue
		}
		if filters.Language != "" && a.Language != "" && a.Language != filters.Language {
			continue
		}
		out = append(out, a)
	}
	return out
}

// keepValid drops records that carry neither an identifier nor a title.
func keepValid(articles []core.Article) []core.Article {
	out := articles[:0]
	for _, a := range articles {
		if a.Valid() {
			out = append(out, a)
		}
	}
	return out
}
