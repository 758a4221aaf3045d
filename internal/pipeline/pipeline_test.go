package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"litgate/internal/core"
	"litgate/internal/sources"
)

func testArticle(pmid, doi, title string) core.Article {
	return core.Article{PMID: pmid, DOI: doi, Title: title, PrimarySource: "pubmed"}
}

func newTestExecutor(adapters ...sources.SearchCapable) *Executor {
	return NewExecutor(sources.NewTestRegistry(&sources.MockMetrics{Count: 5}, adapters...), nil)
}

func TestParseConfigRejectsUnknownKeys(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"top-level", "name: p\nbogus: true\nsteps:\n  - id: s1\n    action: search\n"},
		{"step-level", "steps:\n  - id: s1\n    action: search\n    retries: 3\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseConfig(strings.NewReader(tc.yaml))
			if err == nil {
				t.Fatal("expected unknown-key error")
			}
			if !core.IsKind(err, core.KindInvalidInput) {
				t.Errorf("error kind = %v, want invalid_input", core.KindOf(err))
			}
		})
	}
}

func TestParseConfigRoundTrip(t *testing.T) {
	in := `name: My Pipeline
steps:
  - id: find
    action: search
    params:
      query: asthma
      sources: pubmed
  - id: score
    action: metrics
    inputs: [find]
output:
  limit: 10
  ranking: impact
`
	cfg, err := ParseConfig(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if cfg.Name != "my-pipeline" {
		t.Errorf("Name = %q, want filesystem-safe form", cfg.Name)
	}

	out, err := MarshalConfig(cfg)
	if err != nil {
		t.Fatalf("MarshalConfig: %v", err)
	}
	again, err := ParseConfig(strings.NewReader(string(out)))
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if len(again.Steps) != 2 || again.Steps[1].Inputs[0] != "find" {
		t.Errorf("round-trip lost structure: %+v", again.Steps)
	}
	if again.Output.Limit != 10 || again.Output.Ranking != "impact" {
		t.Errorf("round-trip lost output: %+v", again.Output)
	}
}

func TestParseConfigEmptyFile(t *testing.T) {
	if _, err := ParseConfig(strings.NewReader("")); err == nil {
		t.Fatal("expected error for empty file")
	}
}

func TestSafeName(t *testing.T) {
	cases := []struct{ in, want string }{
		{"My Pipeline", "my-pipeline"},
		{"weird/name:here", "weird-name-here"},
		{"  trimmed  ", "trimmed"},
		{"ok_name-1.2", "ok_name-1.2"},
	}
	for _, tc := range cases {
		if got := SafeName(tc.in); got != tc.want {
			t.Errorf("SafeName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestLayerStepsBatching(t *testing.T) {
	steps := []core.PipelineStep{
		{ID: "a", Action: core.ActionSearch},
		{ID: "b", Action: core.ActionSearch},
		{ID: "c", Action: core.ActionMerge, Inputs: []string{"a", "b"}},
		{ID: "d", Action: core.ActionMetrics, Inputs: []string{"c"}},
	}
	batches, err := layerSteps(steps)
	if err != nil {
		t.Fatalf("layerSteps: %v", err)
	}
	if len(batches) != 3 {
		t.Fatalf("got %d batches, want 3", len(batches))
	}
	if len(batches[0]) != 2 {
		t.Errorf("first batch has %d steps, want the two independent searches", len(batches[0]))
	}
	if batches[1][0].ID != "c" || batches[2][0].ID != "d" {
		t.Errorf("batch order wrong: %v %v", batches[1], batches[2])
	}
}

func TestExecuteSearchThenMetrics(t *testing.T) {
	mock := sources.NewMockAdapter(sources.SourcePubMed,
		testArticle("1", "10.1/a", "Alpha finding"),
		testArticle("2", "10.1/b", "Beta finding"),
	)
	e := newTestExecutor(mock)

	cfg := &core.PipelineConfig{Steps: []core.PipelineStep{
		{ID: "find", Action: core.ActionSearch, Params: map[string]string{"query": "findings", "sources": "pubmed"}},
		{ID: "enrich", Action: core.ActionMetrics, Inputs: []string{"find"}},
	}}
	res, err := e.Execute(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Articles) != 2 {
		t.Fatalf("final articles = %d, want 2", len(res.Articles))
	}
	for _, a := range res.Articles {
		if a.Metrics == nil || a.Metrics.CitationCount == nil || *a.Metrics.CitationCount != 5 {
			t.Errorf("article %q not enriched: %+v", a.PMID, a.Metrics)
		}
		if a.RankingScore == 0 {
			t.Errorf("article %q has no ranking score", a.PMID)
		}
	}
	if len(res.StepResults) != 2 || !res.StepResults[0].OK() || !res.StepResults[1].OK() {
		t.Errorf("step results = %+v", res.StepResults)
	}
	counts, ok := res.StepResults[0].Metadata["source_api_counts"].([]SourceCount)
	if !ok || len(counts) != 1 || counts[0].Source != "pubmed" || counts[0].Count != 2 {
		t.Errorf("source_api_counts = %v", res.StepResults[0].Metadata["source_api_counts"])
	}
}

func TestExecuteAbortPolicy(t *testing.T) {
	bad := sources.NewMockAdapter(sources.SourcePubMed)
	bad.Err = core.NewError(core.KindUpstreamUnavailable, "down")
	e := newTestExecutor(bad)

	cfg := &core.PipelineConfig{Steps: []core.PipelineStep{
		{ID: "find", Action: core.ActionSearch, OnError: core.OnErrorAbort,
			Params: map[string]string{"query": "x", "sources": "pubmed"}},
		{ID: "enrich", Action: core.ActionMetrics, Inputs: []string{"find"}},
	}}
	res, err := e.Execute(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected pipeline abort")
	}
	if !core.IsKind(err, core.KindPipelineAborted) {
		t.Errorf("error kind = %v, want pipeline_aborted", core.KindOf(err))
	}
	var coreErr *core.Error
	if !errors.As(err, &coreErr) || coreErr.Step != "find" {
		t.Errorf("abort error missing step id: %v", err)
	}
	if res == nil || len(res.StepResults) != 2 {
		t.Errorf("partial results missing: %+v", res)
	}
}

func TestExecuteSkipPolicyContinues(t *testing.T) {
	good := sources.NewMockAdapter(sources.SourcePubMed, testArticle("1", "", "Kept result"))
	e := newTestExecutor(good)

	cfg := &core.PipelineConfig{Steps: []core.PipelineStep{
		// The citing step fails (no pmid param and no inputs) but its
		// policy is skip, so the run continues.
		{ID: "broken", Action: core.ActionCiting, OnError: core.OnErrorSkip},
		{ID: "find", Action: core.ActionSearch, Params: map[string]string{"query": "x", "sources": "pubmed"}},
		{ID: "merge", Action: core.ActionMerge, Inputs: []string{"broken", "find"}},
	}}
	res, err := e.Execute(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.StepResults[0].OK() {
		t.Error("broken step should carry an error")
	}
	if len(res.Articles) != 1 || res.Articles[0].Title != "Kept result" {
		t.Errorf("final articles = %+v", res.Articles)
	}
}

func TestExecutePICOFeedsSearch(t *testing.T) {
	mock := sources.NewMockAdapter(sources.SourcePubMed, testArticle("1", "", "Trial report"))
	e := newTestExecutor(mock)

	cfg := &core.PipelineConfig{Steps: []core.PipelineStep{
		{ID: "frame", Action: core.ActionPICO, Params: map[string]string{
			"population":   "adults with type 2 diabetes",
			"intervention": "metformin",
			"comparison":   "insulin",
			"outcome":      "hba1c reduction",
		}},
		{ID: "find", Action: core.ActionSearch, Inputs: []string{"frame"},
			Params: map[string]string{"sources": "pubmed", "use_combined": "recall"}},
	}}
	res, err := e.Execute(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	precision, _ := res.StepResults[0].Metadata["precision"].(string)
	recall, _ := res.StepResults[0].Metadata["recall"].(string)
	if !strings.Contains(precision, "(metformin)") || !strings.Contains(precision, "(hba1c reduction)") {
		t.Errorf("precision = %q", precision)
	}
	wantRecall := "(adults with type 2 diabetes) AND ((metformin) OR (insulin))"
	if recall != wantRecall {
		t.Errorf("recall = %q, want %q", recall, wantRecall)
	}
	if len(mock.SearchCalls) != 1 || mock.SearchCalls[0] != wantRecall {
		t.Errorf("search received %v, want the recall query", mock.SearchCalls)
	}
}

func TestExecuteMergeMethods(t *testing.T) {
	shared := testArticle("1", "10.1/shared", "Shared")
	onlyA := testArticle("2", "10.1/only-a", "Only A")
	onlyB := testArticle("3", "10.1/only-b", "Only B")

	a := sources.NewMockAdapter("srca", shared, onlyA)
	b := sources.NewMockAdapter("srcb", shared, onlyB)

	run := func(method string) *Result {
		t.Helper()
		e := newTestExecutor(a, b)
		cfg := &core.PipelineConfig{Steps: []core.PipelineStep{
			{ID: "s1", Action: core.ActionSearch, Params: map[string]string{"query": "q", "sources": "srca"}},
			{ID: "s2", Action: core.ActionSearch, Params: map[string]string{"query": "q", "sources": "srcb"}},
			{ID: "m", Action: core.ActionMerge, Inputs: []string{"s1", "s2"},
				Params: map[string]string{"method": method}},
		}}
		res, err := e.Execute(context.Background(), cfg)
		if err != nil {
			t.Fatalf("Execute(%s): %v", method, err)
		}
		return res
	}

	if res := run("union"); len(res.Articles) != 3 {
		t.Errorf("union = %d articles, want 3", len(res.Articles))
	}
	res := run("intersection")
	if len(res.Articles) != 1 || res.Articles[0].DOI != "10.1/shared" {
		t.Errorf("intersection = %+v", res.Articles)
	}
	if res := run("rrf"); len(res.Articles) != 3 || res.Articles[0].DOI != "10.1/shared" {
		t.Errorf("rrf should rank the shared article first: %+v", res.Articles)
	}
}

func TestExecuteMergeUnknownMethod(t *testing.T) {
	a := sources.NewMockAdapter("srca", testArticle("1", "", "One"))
	e := newTestExecutor(a)
	cfg := &core.PipelineConfig{Steps: []core.PipelineStep{
		{ID: "s", Action: core.ActionSearch, Params: map[string]string{"query": "q", "sources": "srca"}},
		{ID: "m", Action: core.ActionMerge, Inputs: []string{"s"}, Params: map[string]string{"method": "xor"}},
	}}
	res, err := e.Execute(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.StepResults[1].OK() {
		t.Error("unknown merge method should fail the step")
	}
}

func TestExecuteFilterCriteria(t *testing.T) {
	ten := 10
	articles := []core.Article{
		{PMID: "1", Title: "Recent cited", Year: 2024, Abstract: "text",
			Type: core.ArticleTypeRCT, Metrics: &core.CitationMetrics{CitationCount: &ten}},
		{PMID: "2", Title: "Old", Year: 1999, Abstract: "text", Type: core.ArticleTypeRCT,
			Metrics: &core.CitationMetrics{CitationCount: &ten}},
		{PMID: "3", Title: "No abstract", Year: 2024, Type: core.ArticleTypeRCT,
			Metrics: &core.CitationMetrics{CitationCount: &ten}},
		{PMID: "4", Title: "Wrong type", Year: 2024, Abstract: "text", Type: core.ArticleTypeLetter,
			Metrics: &core.CitationMetrics{CitationCount: &ten}},
		{PMID: "5", Title: "Uncited", Year: 2024, Abstract: "text", Type: core.ArticleTypeRCT},
	}
	mock := sources.NewMockAdapter(sources.SourcePubMed, articles...)
	e := newTestExecutor(mock)

	cfg := &core.PipelineConfig{Steps: []core.PipelineStep{
		{ID: "find", Action: core.ActionSearch, Params: map[string]string{"query": "q", "sources": "pubmed", "limit": "10"}},
		{ID: "keep", Action: core.ActionFilter, Inputs: []string{"find"}, Params: map[string]string{
			"min_year": "2020", "article_types": "rct", "min_citations": "5", "has_abstract": "true",
		}},
	}}
	res, err := e.Execute(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Articles) != 1 || res.Articles[0].PMID != "1" {
		t.Errorf("filtered = %+v", res.Articles)
	}
	if dropped, _ := res.StepResults[1].Metadata["dropped"].(int); dropped != 4 {
		t.Errorf("dropped = %v, want 4", res.StepResults[1].Metadata["dropped"])
	}
}

func TestExecuteDetailsAccumulatesPMIDs(t *testing.T) {
	byID := map[string]core.Article{
		"1": testArticle("1", "", "One"),
		"2": testArticle("2", "", "Two"),
	}
	mock := sources.NewMockAdapter(sources.SourcePubMed, testArticle("1", "", "One"))
	mock.ByID = byID
	e := newTestExecutor(mock)

	cfg := &core.PipelineConfig{Steps: []core.PipelineStep{
		{ID: "find", Action: core.ActionSearch, Params: map[string]string{"query": "q", "sources": "pubmed"}},
		{ID: "full", Action: core.ActionDetails, Inputs: []string{"find"},
			Params: map[string]string{"pmids": "2, 1"}},
	}}
	res, err := e.Execute(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	// Input pmids come first, then the params additions, deduped.
	if len(mock.FetchCalls) != 1 {
		t.Fatalf("FetchCalls = %v", mock.FetchCalls)
	}
	got := mock.FetchCalls[0]
	if len(got) != 2 || got[0] != "1" || got[1] != "2" {
		t.Errorf("fetch ids = %v, want [1 2]", got)
	}
	if len(res.Articles) != 2 {
		t.Errorf("articles = %+v", res.Articles)
	}
}

func TestExecuteSearchPartialSourceFailure(t *testing.T) {
	good := sources.NewMockAdapter("srca", testArticle("1", "", "From A"))
	bad := sources.NewMockAdapter("srcb")
	bad.Err = core.NewError(core.KindUpstreamUnavailable, "down")
	e := newTestExecutor(good, bad)

	cfg := &core.PipelineConfig{Steps: []core.PipelineStep{
		{ID: "find", Action: core.ActionSearch, Params: map[string]string{"query": "q", "sources": "srca,srcb"}},
	}}
	res, err := e.Execute(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Articles) != 1 {
		t.Errorf("articles = %+v", res.Articles)
	}
	failed, _ := res.StepResults[0].Metadata["failed_sources"].(map[string]string)
	if len(failed) != 1 || failed["srcb"] == "" {
		t.Errorf("failed_sources = %v", failed)
	}
}

func TestExecuteOutputLimit(t *testing.T) {
	var articles []core.Article
	for i := 0; i < 30; i++ {
		articles = append(articles, testArticle("", "10.1/x"+string(rune('a'+i)), "Title "+strings.Repeat("x", i+1)))
	}
	mock := sources.NewMockAdapter(sources.SourcePubMed, articles...)
	e := newTestExecutor(mock)

	cfg := &core.PipelineConfig{
		Steps: []core.PipelineStep{
			{ID: "find", Action: core.ActionSearch, Params: map[string]string{"query": "q", "sources": "pubmed", "limit": "30"}},
		},
		Output: core.PipelineOutput{Limit: 7},
	}
	res, err := e.Execute(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Articles) != 7 {
		t.Errorf("got %d articles, want limit 7", len(res.Articles))
	}
}

func TestExecuteLastStepFailedYieldsNoArticles(t *testing.T) {
	mock := sources.NewMockAdapter(sources.SourcePubMed, testArticle("1", "", "One"))
	e := newTestExecutor(mock)

	cfg := &core.PipelineConfig{Steps: []core.PipelineStep{
		{ID: "find", Action: core.ActionSearch, Params: map[string]string{"query": "q", "sources": "pubmed"}},
		{ID: "broken", Action: core.ActionCiting, Params: map[string]string{"pmid": "not-a-pmid"}},
	}}
	res, err := e.Execute(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Articles) != 0 {
		t.Errorf("articles = %+v, want none when the last step failed", res.Articles)
	}
}

func TestResolveQueryExpandStrategy(t *testing.T) {
	input := core.StepResult{Action: core.ActionExpand}
	input.SetMeta("strategies", map[string]string{"mesh": "Asthma[mh]"})
	input.SetMeta("expanded_query", "(asthma OR wheeze)")

	step := core.PipelineStep{Params: map[string]string{"strategy": "mesh"}}
	q, err := resolveQuery(step, []core.StepResult{input})
	if err != nil || q != "Asthma[mh]" {
		t.Errorf("q = %q, err = %v", q, err)
	}

	step = core.PipelineStep{Params: map[string]string{}}
	q, err = resolveQuery(step, []core.StepResult{input})
	if err != nil || q != "(asthma OR wheeze)" {
		t.Errorf("default q = %q, err = %v", q, err)
	}
}
