package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"litgate/internal/aggregate"
	"litgate/internal/core"
	"litgate/internal/sources"
)

// Per-action default limits.
const (
	defaultSearchLimit     = 20
	defaultNeighborLimit   = 20
	defaultReferencesLimit = 50
)

type handlerFunc func(ctx context.Context, step core.PipelineStep, inputs []core.StepResult) (core.StepResult, error)

func (e *Executor) handlers() map[core.Action]handlerFunc {
	return map[core.Action]handlerFunc{
		core.ActionSearch:     e.handleSearch,
		core.ActionPICO:       e.handlePICO,
		core.ActionExpand:     e.handleExpand,
		core.ActionDetails:    e.handleDetails,
		core.ActionRelated:    e.neighborHandler(func(c sources.CitationsCapable) neighborFn { return c.Related }, defaultNeighborLimit),
		core.ActionCiting:     e.neighborHandler(func(c sources.CitationsCapable) neighborFn { return c.Citing }, defaultNeighborLimit),
		core.ActionReferences: e.neighborHandler(func(c sources.CitationsCapable) neighborFn { return c.References }, defaultReferencesLimit),
		core.ActionMetrics:    e.handleMetrics,
		core.ActionMerge:      e.handleMerge,
		core.ActionFilter:     e.handleFilter,
	}
}

// SourceCount pairs a source id with how many articles it returned, in
// request order.
type SourceCount struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
}

func (e *Executor) handleSearch(ctx context.Context, step core.PipelineStep, inputs []core.StepResult) (core.StepResult, error) {
	query, err := resolveQuery(step, inputs)
	if err != nil {
		return core.StepResult{}, err
	}

	ids := splitCSV(step.Params["sources"])
	if len(ids) == 0 {
		ids = []string{sources.SourcePubMed}
	}
	limit := paramInt(step.Params, "limit", defaultSearchLimit)
	filters := sources.SearchFilters{
		MinYear:        paramInt(step.Params, "min_year", 0),
		MaxYear:        paramInt(step.Params, "max_year", 0),
		OpenAccessOnly: paramBool(step.Params, "open_access_only"),
		HasFullText:    paramBool(step.Params, "has_full_text"),
		Language:       step.Params["language"],
	}

	lists := make([][]core.Article, len(ids))
	errs := make([]error, len(ids))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		i, id := i, id
		adapter, ok := e.registry.Get(id)
		if !ok {
			errs[i] = fmt.Errorf("%w: %q", sources.ErrUnknownSource, id)
			continue
		}
		g.Go(func() error {
			articles, err := adapter.Search(gctx, query, limit, filters)
			mu.Lock()
			lists[i], errs[i] = articles, err
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return core.StepResult{}, err
	}

	var result core.StepResult
	counts := make([]SourceCount, len(ids))
	failed := make(map[string]string)
	var all []core.Article
	okSources := 0
	for i, id := range ids {
		counts[i] = SourceCount{Source: id, Count: len(lists[i])}
		if errs[i] != nil {
			failed[id] = errs[i].Error()
			continue
		}
		okSources++
		all = append(all, lists[i]...)
	}
	if okSources == 0 {
		return core.StepResult{}, core.WrapError(core.KindUpstreamUnavailable,
			fmt.Sprintf("all %d sources failed", len(ids)), firstError(errs))
	}

	if len(ids) > 1 {
		all = aggregate.Dedup(all)
	}
	result.Articles = all
	result.PMIDs = collectPMIDs(all)
	result.SetMeta("query", query)
	result.SetMeta("source_api_counts", counts)
	if len(failed) > 0 {
		result.SetMeta("failed_sources", failed)
	}
	return result, nil
}

func (e *Executor) handlePICO(_ context.Context, step core.PipelineStep, _ []core.StepResult) (core.StepResult, error) {
	pico := core.PICO{
		Population:   strings.TrimSpace(step.Params["population"]),
		Intervention: strings.TrimSpace(step.Params["intervention"]),
		Comparison:   strings.TrimSpace(step.Params["comparison"]),
		Outcome:      strings.TrimSpace(step.Params["outcome"]),
	}
	if pico.Population == "" || pico.Intervention == "" {
		return core.StepResult{}, core.NewError(core.KindInvalidInput,
			"pico step requires population and intervention")
	}

	var precision []string
	for _, el := range []string{pico.Population, pico.Intervention, pico.Comparison, pico.Outcome} {
		if el != "" {
			precision = append(precision, "("+el+")")
		}
	}
	recall := fmt.Sprintf("(%s) AND (%s)", pico.Population, pico.Intervention)
	if pico.Comparison != "" {
		recall = fmt.Sprintf("(%s) AND ((%s) OR (%s))", pico.Population, pico.Intervention, pico.Comparison)
	}

	var result core.StepResult
	result.SetMeta("pico", pico)
	result.SetMeta("precision", strings.Join(precision, " AND "))
	result.SetMeta("recall", recall)
	return result, nil
}

func (e *Executor) handleExpand(ctx context.Context, step core.PipelineStep, _ []core.StepResult) (core.StepResult, error) {
	topic := strings.TrimSpace(step.Params["topic"])
	if topic == "" {
		return core.StepResult{}, core.NewError(core.KindInvalidInput, "expand step requires a topic")
	}

	var result core.StepResult
	result.SetMeta("original_query", topic)
	if e.enhancer == nil {
		result.SetMeta("expanded_query", topic)
		return result, nil
	}

	enh := e.enhancer.Enhance(ctx, topic)
	result.SetMeta("expanded_query", enh.ExpandedQuery)
	result.SetMeta("expanded_terms", enh.ExpandedTerms)
	result.SetMeta("entities", enh.Entities)
	strategies := make(map[string]string, len(enh.Strategies))
	for _, s := range enh.Strategies {
		strategies[s.Name] = s.Query
	}
	result.SetMeta("strategies", strategies)
	return result, nil
}

func (e *Executor) handleDetails(ctx context.Context, step core.PipelineStep, inputs []core.StepResult) (core.StepResult, error) {
	var pmids []string
	seen := make(map[string]bool)
	add := func(id string) {
		if pmid := core.NormalizePMID(id); pmid != "" && !seen[pmid] {
			seen[pmid] = true
			pmids = append(pmids, pmid)
		}
	}
	for _, in := range inputs {
		if !in.OK() {
			continue
		}
		for _, id := range in.PMIDs {
			add(id)
		}
		for _, a := range in.Articles {
			add(a.PMID)
		}
	}
	for _, id := range splitCSV(step.Params["pmids"]) {
		add(id)
	}
	if len(pmids) == 0 {
		return core.StepResult{}, core.NewError(core.KindInvalidInput, "details step has no pmids")
	}

	adapter, ok := e.registry.Details(sources.SourcePubMed)
	if !ok {
		return core.StepResult{}, fmt.Errorf("%w: no detail-capable source registered", sources.ErrNotSupported)
	}
	articles, err := adapter.FetchByID(ctx, pmids)
	if err != nil {
		return core.StepResult{}, err
	}
	return core.StepResult{Articles: articles, PMIDs: collectPMIDs(articles)}, nil
}

type neighborFn func(ctx context.Context, id string, limit int) ([]core.Article, error)

// neighborHandler builds the shared handler for related, citing and
// references. A registry without a citation-capable source yields an
// informational result, not an error.
func (e *Executor) neighborHandler(pick func(sources.CitationsCapable) neighborFn, defaultLimit int) handlerFunc {
	return func(ctx context.Context, step core.PipelineStep, inputs []core.StepResult) (core.StepResult, error) {
		pmid := core.NormalizePMID(step.Params["pmid"])
		if pmid == "" {
			// Fall back to the first pmid flowing in from inputs.
			for _, in := range inputs {
				if in.OK() && len(in.PMIDs) > 0 {
					pmid = core.NormalizePMID(in.PMIDs[0])
					break
				}
			}
		}
		if pmid == "" {
			return core.StepResult{}, fmt.Errorf("%w: citation steps need a pmid", sources.ErrMissingID)
		}

		capable, ok := e.registry.Citations(sources.SourcePubMed)
		if !ok {
			var result core.StepResult
			result.SetMeta("skipped", "no citation-capable source registered")
			return result, nil
		}
		limit := paramInt(step.Params, "limit", defaultLimit)
		articles, err := pick(capable)(ctx, pmid, limit)
		if err != nil {
			return core.StepResult{}, err
		}
		result := core.StepResult{Articles: articles, PMIDs: collectPMIDs(articles)}
		result.SetMeta("seed_pmid", pmid)
		return result, nil
	}
}

func (e *Executor) handleMetrics(ctx context.Context, step core.PipelineStep, inputs []core.StepResult) (core.StepResult, error) {
	articles := inputArticles(inputs)
	skipped := 0
	for i := range articles {
		if articles[i].PMID == "" {
			skipped++
		}
	}

	var result core.StepResult
	svc := e.registry.Metrics()
	if svc == nil {
		result.Articles = articles
		result.SetMeta("skipped", "no metrics service registered")
		return result, nil
	}
	enriched, err := svc.EnrichMetrics(ctx, articles)
	if err != nil {
		return core.StepResult{}, err
	}
	result.Articles = enriched
	result.PMIDs = collectPMIDs(enriched)
	result.SetMeta("skipped_no_id", skipped)
	return result, nil
}

func (e *Executor) handleMerge(_ context.Context, step core.PipelineStep, inputs []core.StepResult) (core.StepResult, error) {
	var lists [][]core.Article
	for _, in := range inputs {
		if in.OK() {
			lists = append(lists, in.Articles)
		}
	}
	if len(lists) == 0 {
		return core.StepResult{}, core.NewError(core.KindInvalidInput, "merge step has no successful inputs")
	}

	method := step.Params["method"]
	if method == "" {
		method = "union"
	}
	var merged []core.Article
	switch method {
	case "union":
		merged = aggregate.Union(lists...)
	case "intersection":
		merged = aggregate.Intersect(lists...)
	case "rrf":
		merged = aggregate.FuseRRF(lists...)
	default:
		return core.StepResult{}, core.NewError(core.KindInvalidInput,
			fmt.Sprintf("unknown merge method %q", method))
	}

	result := core.StepResult{Articles: merged, PMIDs: collectPMIDs(merged)}
	result.SetMeta("method", method)
	result.SetMeta("input_counts", listLengths(lists))
	return result, nil
}

func (e *Executor) handleFilter(_ context.Context, step core.PipelineStep, inputs []core.StepResult) (core.StepResult, error) {
	articles := inputArticles(inputs)
	minYear := paramInt(step.Params, "min_year", 0)
	maxYear := paramInt(step.Params, "max_year", 0)
	minCitations := paramInt(step.Params, "min_citations", 0)
	hasAbstract := paramBool(step.Params, "has_abstract")
	types := make(map[core.ArticleType]bool)
	for _, t := range splitCSV(step.Params["article_types"]) {
		types[core.ArticleType(t)] = true
	}

	var kept []core.Article
	for _, a := range articles {
		if minYear > 0 && (a.Year == 0 || a.Year < minYear) {
			continue
		}
		if maxYear > 0 && (a.Year == 0 || a.Year > maxYear) {
			continue
		}
		if len(types) > 0 && !types[a.Type] {
			continue
		}
		if minCitations > 0 {
			if a.Metrics == nil || a.Metrics.CitationCount == nil || *a.Metrics.CitationCount < minCitations {
				continue
			}
		}
		if hasAbstract && a.Abstract == "" {
			continue
		}
		kept = append(kept, a)
	}

	result := core.StepResult{Articles: kept, PMIDs: collectPMIDs(kept)}
	result.SetMeta("dropped", len(articles)-len(kept))
	return result, nil
}

// resolveQuery finds the query for a search step: an explicit param wins,
// then upstream pico and expand results are consulted.
func resolveQuery(step core.PipelineStep, inputs []core.StepResult) (string, error) {
	if q := strings.TrimSpace(step.Params["query"]); q != "" {
		return q, nil
	}
	for _, in := range inputs {
		if !in.OK() {
			continue
		}
		switch in.Action {
		case core.ActionPICO:
			if el := step.Params["element"]; el != "" {
				if pico, ok := in.Metadata["pico"].(core.PICO); ok {
					if q := picoElement(pico, el); q != "" {
						return q, nil
					}
				}
				return "", core.NewError(core.KindInvalidInput,
					fmt.Sprintf("pico element %q is empty or unknown", el))
			}
			combined := step.Params["use_combined"]
			if combined == "" {
				combined = "precision"
			}
			if q, ok := in.Metadata[combined].(string); ok && q != "" {
				return q, nil
			}
		case core.ActionExpand:
			if name := step.Params["strategy"]; name != "" {
				if strategies, ok := in.Metadata["strategies"].(map[string]string); ok {
					if q := strategies[name]; q != "" {
						return q, nil
					}
				}
				return "", core.NewError(core.KindInvalidInput,
					fmt.Sprintf("expand input has no strategy %q", name))
			}
			if q, ok := in.Metadata["expanded_query"].(string); ok && q != "" {
				return q, nil
			}
		}
	}
	return "", core.NewError(core.KindInvalidInput, "search step has no query")
}

func picoElement(p core.PICO, el string) string {
	switch strings.ToLower(el) {
	case "population", "p":
		return p.Population
	case "intervention", "i":
		return p.Intervention
	case "comparison", "c":
		return p.Comparison
	case "outcome", "o":
		return p.Outcome
	}
	return ""
}

// inputArticles concatenates the articles of successful inputs in
// declaration order.
func inputArticles(inputs []core.StepResult) []core.Article {
	var out []core.Article
	for _, in := range inputs {
		if in.OK() {
			out = append(out, in.Articles...)
		}
	}
	return out
}

func collectPMIDs(articles []core.Article) []string {
	var out []string
	seen := make(map[string]bool)
	for _, a := range articles {
		if a.PMID != "" && !seen[a.PMID] {
			seen[a.PMID] = true
			out = append(out, a.PMID)
		}
	}
	return out
}

func listLengths(lists [][]core.Article) []int {
	out := make([]int, len(lists))
	for i, l := range lists {
		out[i] = len(l)
	}
	return out
}

func firstError(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func paramInt(params map[string]string, key string, def int) int {
	if v, ok := params[key]; ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func paramBool(params map[string]string, key string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(params[key]))
	return err == nil && v
}
