package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"litgate/internal/core"
	"litgate/internal/ratelimit"
)

func TestCrossrefSearchStripsJATSAbstract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("mailto"); got != "dev@example.org" {
			t.Errorf("mailto = %q", got)
		}
		_, _ = w.Write([]byte(`{"message":{"items":[{
			"DOI":"10.1000/JATS.1",
			"title":["Statin therapy outcomes"],
			"abstract":"<jats:p>Statins reduce <jats:italic>LDL</jats:italic> cholesterol.</jats:p>",
			"type":"journal-article",
			"container-title":["Test Cardiology"],
			"is-referenced-by-count":42,
			"author":[{"family":"Chen","given":"Li"}],
			"issued":{"date-parts":[[2021,6,1]]}
		}]}}`))
	}))
	defer srv.Close()

	c := NewCrossrefAdapter(Config{ContactEmail: "dev@example.org"}, ratelimit.PerSecond(0))
	c.client = srv.Client()
	c.baseURL = srv.URL

	articles, err := c.Search(context.Background(), "statin", 5, SearchFilters{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(articles) != 1 {
		t.Fatalf("got %d articles, want 1", len(articles))
	}
	a := articles[0]
	if a.DOI != "10.1000/jats.1" {
		t.Errorf("DOI = %q, want lowercased", a.DOI)
	}
	if a.Abstract != "Statins reduce LDL cholesterol." {
		t.Errorf("abstract kept markup: %q", a.Abstract)
	}
	if a.Metrics == nil || a.Metrics.CitationCount == nil || *a.Metrics.CitationCount != 42 {
		t.Errorf("citation count not mapped: %+v", a.Metrics)
	}
	if a.Year != 2021 {
		t.Errorf("Year = %d", a.Year)
	}
	if a.Type != core.ArticleTypeJournalArticle {
		t.Errorf("Type = %q", a.Type)
	}
}

func TestOpenAlexReconstructsInvertedAbstract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[{
			"id":"https://openalex.org/W12345",
			"doi":"https://doi.org/10.1000/oa.1",
			"ids":{"pmid":"https://pubmed.ncbi.nlm.nih.gov/777"},
			"title":"Gut microbiome diversity",
			"abstract_inverted_index":{"diversity":[2],"microbiome":[1],"Gut":[0],"matters":[3]},
			"publication_date":"2022-03-15",
			"type":"review",
			"cited_by_count":7,
			"open_access":{"oa_status":"gold","oa_url":"https://example.org/oa.pdf"},
			"authorships":[{"author":{"display_name":"Ana de Souza"},"is_corresponding":true}]
		}]}`))
	}))
	defer srv.Close()

	o := NewOpenAlexAdapter(Config{}, ratelimit.PerSecond(0))
	o.client = srv.Client()
	o.baseURL = srv.URL

	articles, err := o.Search(context.Background(), "microbiome", 5, SearchFilters{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(articles) != 1 {
		t.Fatalf("got %d articles, want 1", len(articles))
	}
	a := articles[0]
	if a.OpenAlexID != "W12345" {
		t.Errorf("OpenAlexID = %q, want url prefix stripped", a.OpenAlexID)
	}
	if a.PMID != "777" {
		t.Errorf("PMID = %q, want url form normalized", a.PMID)
	}
	if a.Abstract != "Gut microbiome diversity matters" {
		t.Errorf("abstract = %q", a.Abstract)
	}
	if a.OAStatus != core.OAStatusGold {
		t.Errorf("OAStatus = %q", a.OAStatus)
	}
	if len(a.OALinks) == 0 || !a.OALinks[0].IsBest {
		t.Errorf("OALinks = %+v", a.OALinks)
	}
	if a.Type != core.ArticleTypeReview {
		t.Errorf("Type = %q", a.Type)
	}
	if len(a.Authors) != 1 || a.Authors[0].Family != "Souza" || !a.Authors[0].IsCorresponding {
		t.Errorf("Authors = %+v", a.Authors)
	}
}

func TestReconstructAbstract(t *testing.T) {
	cases := []struct {
		name  string
		index map[string][]int
		want  string
	}{
		{"empty", nil, ""},
		{"single", map[string][]int{"word": {0}}, "word"},
		{"repeated word", map[string][]int{"the": {0, 2}, "end": {3}, "is": {1}}, "the is the end"},
		{"gap in positions", map[string][]int{"a": {0}, "c": {5}}, "a c"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := reconstructAbstract(tc.index); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSemanticScholarParsesExternalIDs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{
			"paperId":"abc123",
			"externalIds":{"DOI":"10.1000/S2.1","PubMed":"888","ArXiv":"2101.00001"},
			"title":"Transformer models in genomics",
			"abstract":"We study attention.",
			"venue":"Test ML",
			"year":2023,
			"publicationDate":"2023-01-10",
			"publicationTypes":["JournalArticle","Review"],
			"authors":[{"name":"Kim Lee"}],
			"citationCount":15,
			"influentialCitationCount":3,
			"isOpenAccess":true,
			"openAccessPdf":{"url":"https://example.org/s2.pdf"}
		}]}`))
	}))
	defer srv.Close()

	s := NewSemanticScholarAdapter(Config{}, ratelimit.PerSecond(0))
	s.client = srv.Client()
	s.baseURL = srv.URL

	articles, err := s.Search(context.Background(), "transformers", 5, SearchFilters{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(articles) != 1 {
		t.Fatalf("got %d articles, want 1", len(articles))
	}
	a := articles[0]
	if a.SemanticScholarID != "abc123" {
		t.Errorf("SemanticScholarID = %q", a.SemanticScholarID)
	}
	if a.DOI != "10.1000/s2.1" || a.PMID != "888" || a.ArxivID != "2101.00001" {
		t.Errorf("ids = doi %q pmid %q arxiv %q", a.DOI, a.PMID, a.ArxivID)
	}
	if a.Type != core.ArticleTypeReview {
		t.Errorf("Type = %q, want review over journal_article", a.Type)
	}
	if a.Metrics == nil || a.Metrics.InfluentialCount == nil || *a.Metrics.InfluentialCount != 3 {
		t.Errorf("Metrics = %+v", a.Metrics)
	}
	if a.OAStatus != core.OAStatusGreen {
		t.Errorf("OAStatus = %q", a.OAStatus)
	}
}

func TestS2PaperPath(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"10.1000/xyz", "DOI:10.1000/xyz"},
		{"https://doi.org/10.1000/XYZ", "DOI:10.1000/xyz"},
		{"12345678", "PMID:12345678"},
		{"PMID: 12345678", "PMID:12345678"},
		{"abc123def", "abc123def"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := s2PaperPath(tc.in); got != tc.want {
			t.Errorf("s2PaperPath(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCORESearchSendsAuthHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		_, _ = w.Write([]byte(`{"results":[{
			"doi":"10.1000/core.1",
			"title":"Open repository mining",
			"abstract":"Full text indexing.",
			"yearPublished":2020,
			"documentType":"research",
			"downloadUrl":"https://example.org/core.pdf",
			"authors":[{"name":"Novak, Petra"}],
			"identifiers":[{"identifier":"999","type":"PMID"}]
		}]}`))
	}))
	defer srv.Close()

	c := NewCOREAdapter(Config{COREAPIKey: "test-key"}, ratelimit.PerMinute(0))
	c.client = srv.Client()
	c.baseURL = srv.URL

	articles, err := c.Search(context.Background(), "repositories", 5, SearchFilters{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(articles) != 1 {
		t.Fatalf("got %d articles, want 1", len(articles))
	}
	a := articles[0]
	if a.PMID != "999" {
		t.Errorf("PMID = %q, want identifier list mapped", a.PMID)
	}
	if a.OAStatus != core.OAStatusGreen || len(a.OALinks) != 1 {
		t.Errorf("download url not mapped: status %q links %+v", a.OAStatus, a.OALinks)
	}
	if len(a.Authors) != 1 || a.Authors[0].Family != "Novak" || a.Authors[0].Given != "Petra" {
		t.Errorf("Authors = %+v, want comma form split", a.Authors)
	}
	if a.Type != core.ArticleTypeJournalArticle {
		t.Errorf("Type = %q", a.Type)
	}
}

func TestICiteEnrichMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("pmids"); got != "111,222" {
			t.Errorf("pmids = %q", got)
		}
		// pmid arrives as a JSON number in some iCite records.
		_, _ = w.Write([]byte(`{"data":[
			{"pmid":111,"citation_count":50,"relative_citation_ratio":2.5,"nih_percentile":91.0},
			{"pmid":"222","citation_count":3}
		]}`))
	}))
	defer srv.Close()

	c := NewICiteClient(Config{})
	c.client = srv.Client()
	c.limiter = ratelimit.PerSecond(0)
	c.baseURL = srv.URL

	in := []core.Article{
		{PMID: "111", Title: "a"},
		{PMID: "222", Title: "b"},
		{DOI: "10.1/no-pmid", Title: "c"},
	}
	out, err := c.EnrichMetrics(context.Background(), in)
	if err != nil {
		t.Fatalf("EnrichMetrics: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("got %d articles, want 3", len(out))
	}
	if out[0].Metrics == nil || out[0].Metrics.RelativeCitationRate == nil || *out[0].Metrics.RelativeCitationRate != 2.5 {
		t.Errorf("first article metrics = %+v", out[0].Metrics)
	}
	if out[1].Metrics == nil || *out[1].Metrics.CitationCount != 3 {
		t.Errorf("second article metrics = %+v", out[1].Metrics)
	}
	if out[2].Metrics != nil {
		t.Errorf("article without a PMID should pass through untouched, got %+v", out[2].Metrics)
	}
	if in[0].Metrics != nil {
		t.Error("input slice mutated")
	}
}

func TestICiteEnrichDoesNotAliasInputMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"pmid":"333","citation_count":9}]}`))
	}))
	defer srv.Close()

	c := NewICiteClient(Config{})
	c.client = srv.Client()
	c.limiter = ratelimit.PerSecond(0)
	c.baseURL = srv.URL

	count := 1
	in := []core.Article{{PMID: "333", Metrics: &core.CitationMetrics{CitationCount: &count}}}
	out, err := c.EnrichMetrics(context.Background(), in)
	if err != nil {
		t.Fatalf("EnrichMetrics: %v", err)
	}
	if out[0].Metrics == nil || *out[0].Metrics.CitationCount != 9 {
		t.Fatalf("output metrics = %+v", out[0].Metrics)
	}
	if *in[0].Metrics.CitationCount != 1 {
		t.Errorf("input metrics mutated to %d", *in[0].Metrics.CitationCount)
	}
	if in[0].Metrics == out[0].Metrics {
		t.Error("output shares the input metrics pointer")
	}
}

func TestMeSHResolve(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "esearch"):
			if got := r.URL.Query().Get("db"); got != "mesh" {
				t.Errorf("db = %q", got)
			}
			_, _ = w.Write([]byte(`{"esearchresult":{"count":"1","idlist":["68003924"]}}`))
		case strings.Contains(r.URL.Path, "esummary"):
			// The result map carries a uids array alongside the records.
			_, _ = w.Write([]byte(`{"result":{
				"uids":["68003924"],
				"68003924":{"uid":"68003924","ds_meshui":"D003924",
					"ds_meshterms":["Diabetes Mellitus, Type 2","NIDDM","Type 2 Diabetes"]}
			}}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	m := NewMeSHClient(Config{}, ratelimit.PerSecond(0))
	m.client = srv.Client()
	m.baseURL = srv.URL

	rec, err := m.Resolve(context.Background(), "type 2 diabetes")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if rec.MeshID != "D003924" {
		t.Errorf("MeshID = %q", rec.MeshID)
	}
	if rec.Canonical != "Diabetes Mellitus, Type 2" {
		t.Errorf("Canonical = %q", rec.Canonical)
	}
	if len(rec.Synonyms) != 2 || rec.Synonyms[0] != "NIDDM" {
		t.Errorf("Synonyms = %v", rec.Synonyms)
	}
	if rec.Term != "type 2 diabetes" {
		t.Errorf("Term = %q", rec.Term)
	}
}

func TestMeSHResolveNoMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "esummary") {
			t.Error("esummary called for a term with no match")
		}
		_, _ = w.Write([]byte(`{"esearchresult":{"count":"0","idlist":[]}}`))
	}))
	defer srv.Close()

	m := NewMeSHClient(Config{}, ratelimit.PerSecond(0))
	m.client = srv.Client()
	m.baseURL = srv.URL

	rec, err := m.Resolve(context.Background(), "zzgarblezz")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if rec.MeshID != "" || rec.Canonical != "" || len(rec.Synonyms) != 0 {
		t.Errorf("no-match record not empty: %+v", rec)
	}
	if rec.Term != "zzgarblezz" {
		t.Errorf("Term = %q", rec.Term)
	}
}

func TestCleanMarkup(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"plain text", "plain text"},
		{"<jats:p>nested <b>tags</b></jats:p>", "nested tags"},
		{"a &amp; b", "a & b"},
		{"  spaced\n\tout  ", "spaced out"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := cleanMarkup(tc.in); got != tc.want {
			t.Errorf("cleanMarkup(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRegistryCapabilities(t *testing.T) {
	pm := NewMockAdapter(SourcePubMed)
	reg := NewTestRegistry(&MockMetrics{Count: 1}, pm)

	if _, ok := reg.Get(SourcePubMed); !ok {
		t.Error("registered adapter not found")
	}
	if _, ok := reg.Get("nope"); ok {
		t.Error("unknown source should miss")
	}
	if _, ok := reg.Citations(SourcePubMed); !ok {
		t.Error("mock implements citations")
	}
	if _, ok := reg.Details(SourcePubMed); !ok {
		t.Error("mock implements details")
	}
	if _, ok := reg.Counter(SourcePubMed); !ok {
		t.Error("mock implements counts")
	}
	if reg.Metrics() == nil {
		t.Error("metrics service missing")
	}
}

func TestRegistryIDsTrustOrder(t *testing.T) {
	reg := NewTestRegistry(nil,
		NewMockAdapter(SourceCORE),
		NewMockAdapter(SourcePubMed),
		NewMockAdapter(SourceOpenAlex),
	)
	ids := reg.IDs()
	want := []string{SourcePubMed, SourceOpenAlex, SourceCORE}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v", ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %q, want %q", i, ids[i], want[i])
		}
	}
}

func TestApplyClientFilters(t *testing.T) {
	articles := []core.Article{
		{Title: "old", Year: 2001},
		{Title: "recent", Year: 2022, OAStatus: core.OAStatusGold, OALinks: []core.OALink{{URL: "x"}}},
		{Title: "closed", Year: 2022, OAStatus: core.OAStatusClosed},
		{Title: "undated"},
	}
	got := applyClientFilters(append([]core.Article(nil), articles...), SearchFilters{MinYear: 2020, OpenAccessOnly: true})
	if len(got) != 1 || got[0].Title != "recent" {
		t.Fatalf("got %+v, want only the recent open-access article", got)
	}
}

func TestSplitDisplayName(t *testing.T) {
	family, given := splitDisplayName("Ana de Souza")
	if family != "Souza" || given != "Ana de" {
		t.Errorf("got family %q given %q", family, given)
	}
	family, given = splitDisplayName("Cher")
	if family != "Cher" || given != "" {
		t.Errorf("single name: family %q given %q", family, given)
	}
}

func TestMockAdapterRecordsCalls(t *testing.T) {
	m := NewMockAdapter("mock", core.Article{Title: "one", DOI: "10.1/one"})
	out, err := m.Search(context.Background(), "q", 10, SearchFilters{})
	if err != nil || len(out) != 1 {
		t.Fatalf("Search: %v %v", out, err)
	}
	if len(m.SearchCalls) != 1 || m.SearchCalls[0] != "q" {
		t.Errorf("SearchCalls = %v", m.SearchCalls)
	}
	if !strings.Contains(out[0].Title, "one") {
		t.Errorf("Title = %q", out[0].Title)
	}
}

func TestApplyClientFiltersUndatedOAMiss(t *testing.T) {
	got := applyClientFilters([]core.Article{{Title: "no links", OAStatus: core.OAStatusUnknown}}, SearchFilters{OpenAccessOnly: true})
	if len(got) != 0 {
		t.Errorf("article without OA evidence should be dropped, got %+v", got)
	}
}
