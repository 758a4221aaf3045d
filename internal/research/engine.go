// Package research is the gateway entry point. It ties the analyzer,
// the source registry, the aggregator and the pipeline executor into two
// operations: Search for one-shot queries and ExecutePipeline for
// declared DAGs.
package research

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"litgate/internal/aggregate"
	"litgate/internal/analyzer"
	"litgate/internal/core"
	"litgate/internal/enhance"
	"litgate/internal/logger"
	"litgate/internal/pipeline"
	"litgate/internal/sources"
)

const (
	// DefaultLimit is the article cap when options leave it unset.
	DefaultLimit = 20
	// MaxLimit is the hard upper bound on requested articles.
	MaxLimit = 200
	// fallbackThreshold triggers cross-search when the primary sources
	// return fewer unique articles than this.
	fallbackThreshold = 5
)

// SearchOptions tune a one-shot search. The zero value searches the
// analyzer-recommended sources with the default ranking and limit.
type SearchOptions struct {
	Sources             []string
	Limit               int
	MinYear             int
	MaxYear             int
	OpenAccessOnly      bool
	Ranking             string
	Enhance             bool
	CrossSearchFallback bool
}

// SourceCount pairs a source id with how many articles it returned, in
// request order.
type SourceCount struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
}

// Stats describe how a search was executed.
type Stats struct {
	Query           string            `json:"query"`
	SourceCounts    []SourceCount     `json:"source_api_counts"`
	FailedSources   map[string]string `json:"failed_sources,omitempty"`
	FallbackSources []string          `json:"fallback_sources,omitempty"`
	TotalFound      int               `json:"total_found"`
	Duration        time.Duration     `json:"duration"`
}

// SearchResult is the full outcome of one Search call.
type SearchResult struct {
	Articles []core.Article     `json:"articles"`
	Analysis core.AnalyzedQuery `json:"analysis"`
	Warnings []string           `json:"warnings,omitempty"`
	Stats    Stats              `json:"stats"`
}

// Engine owns the wired components. Construct with New.
type Engine struct {
	registry *sources.Registry
	enhancer *enhance.Enhancer
	executor *pipeline.Executor
}

// New builds an engine around a source registry. The enhancer may be
// nil; the Enhance option and expand steps then degrade to passthrough.
func New(registry *sources.Registry, enhancer *enhance.Enhancer) *Engine {
	return &Engine{
		registry: registry,
		enhancer: enhancer,
		executor: pipeline.NewExecutor(registry, enhancer),
	}
}

// Search validates, analyzes and runs a query across the chosen sources,
// then dedups and ranks the merged results.
func (e *Engine) Search(ctx context.Context, query string, opts SearchOptions) (*SearchResult, error) {
	started := time.Now()

	limit, err := resolveLimit(opts.Limit)
	if err != nil {
		return nil, err
	}

	validated, err := analyzer.ValidateQuery(query)
	if err != nil {
		return nil, err
	}
	analysis := analyzer.Analyze(validated.Fixed)

	result := &SearchResult{
		Analysis: analysis,
		Warnings: validated.Warnings,
	}

	// Identifier queries resolve directly instead of searching.
	if analysis.Intent == core.IntentLookup && analysis.HasIdentifiers() {
		articles, err := e.lookup(ctx, analysis.Identifiers)
		if err != nil {
			return nil, err
		}
		rank(articles, validated.Fixed, opts.Ranking)
		result.Articles = truncate(articles, limit)
		result.Stats = Stats{
			Query:      validated.Fixed,
			TotalFound: len(articles),
			Duration:   time.Since(started),
		}
		return result, nil
	}

	searchQuery := validated.Fixed
	if opts.Enhance && e.enhancer != nil {
		enh := e.enhancer.Enhance(ctx, searchQuery)
		if enh.ExpandedQuery != "" {
			searchQuery = enh.ExpandedQuery
		}
	}

	ids := opts.Sources
	if len(ids) == 0 {
		ids = analysis.RecommendedSources
	}
	if len(ids) == 0 {
		ids = []string{sources.SourcePubMed}
	}

	filters := sources.SearchFilters{
		MinYear:        opts.MinYear,
		MaxYear:        opts.MaxYear,
		OpenAccessOnly: opts.OpenAccessOnly,
	}
	if filters.MinYear == 0 {
		filters.MinYear = analysis.YearFrom
	}
	if filters.MaxYear == 0 {
		filters.MaxYear = analysis.YearTo
	}

	stats := Stats{Query: searchQuery, FailedSources: make(map[string]string)}
	articles := e.fanOut(ctx, ids, searchQuery, limit, filters, &stats)
	merged := aggregate.Dedup(articles)

	if opts.CrossSearchFallback && len(merged) < fallbackThreshold {
		extra := remainingSources(e.registry.IDs(), ids)
		if len(extra) > 0 {
			logger.Info("cross-search fallback engaged",
				"primary_results", len(merged), "extra_sources", strings.Join(extra, ","))
			stats.FallbackSources = extra
			articles = append(articles, e.fanOut(ctx, extra, searchQuery, limit, filters, &stats)...)
			merged = aggregate.Dedup(articles)
		}
	}

	if len(stats.FailedSources) == len(stats.SourceCounts) && len(merged) == 0 {
		return nil, core.NewError(core.KindUpstreamUnavailable,
			fmt.Sprintf("all %d sources failed", len(stats.SourceCounts)))
	}
	if len(stats.FailedSources) == 0 {
		stats.FailedSources = nil
	}

	rank(merged, validated.Fixed, opts.Ranking)
	stats.TotalFound = len(merged)
	stats.Duration = time.Since(started)
	result.Articles = truncate(merged, limit)
	result.Stats = stats
	return result, nil
}

// fanOut queries the given sources concurrently and appends per-source
// counts and failures to stats. Partial failure is tolerated.
func (e *Engine) fanOut(ctx context.Context, ids []string, query string, limit int, filters sources.SearchFilters, stats *Stats) []core.Article {
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
	_ = g.Wait()

	var all []core.Article
	for i, id := range ids {
		stats.SourceCounts = append(stats.SourceCounts, SourceCount{Source: id, Count: len(lists[i])})
		if errs[i] != nil {
			logger.Warn("source search failed", "source", id, "error", errs[i])
			stats.FailedSources[id] = errs[i].Error()
			continue
		}
		all = append(all, lists[i]...)
	}
	return all
}

// lookup resolves extracted identifiers through detail-capable sources.
// PMIDs and PMC ids go to the biomedical source, DOIs to the registry
// agency.
func (e *Engine) lookup(ctx context.Context, identifiers []core.ExtractedIdentifier) ([]core.Article, error) {
	byRoute := make(map[string][]string)
	for _, id := range identifiers {
		switch id.Type {
		case core.IdentifierPMID, core.IdentifierPMC:
			byRoute[sources.SourcePubMed] = append(byRoute[sources.SourcePubMed], id.Value)
		case core.IdentifierDOI:
			byRoute[sources.SourceCrossref] = append(byRoute[sources.SourceCrossref], id.Value)
		default:
			byRoute[sources.SourceOpenAlex] = append(byRoute[sources.SourceOpenAlex], id.Value)
		}
	}

	var all []core.Article
	var firstErr error
	for _, route := range []string{sources.SourcePubMed, sources.SourceCrossref, sources.SourceOpenAlex} {
		ids := byRoute[route]
		if len(ids) == 0 {
			continue
		}
		adapter, ok := e.registry.Details(route)
		if !ok {
			continue
		}
		articles, err := adapter.FetchByID(ctx, ids)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			logger.Warn("identifier lookup failed", "source", route, "error", err)
			continue
		}
		all = append(all, articles...)
	}
	if len(all) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return aggregate.Dedup(all), nil
}

// StepRun records one step of a pipeline run.
type StepRun struct {
	StepID   string        `json:"step_id"`
	Action   core.Action   `json:"action"`
	Duration time.Duration `json:"duration"`
	Articles int           `json:"articles"`
	Error    string        `json:"error,omitempty"`
}

// RunRecord is the audit trail of one pipeline execution.
type RunRecord struct {
	ID        string        `json:"id"`
	Pipeline  string        `json:"pipeline,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Steps     []StepRun     `json:"steps"`
	Errors    []string      `json:"errors,omitempty"`
}

// PipelineResult bundles the executor outcome with its run record.
type PipelineResult struct {
	Articles    []core.Article    `json:"articles"`
	StepResults []core.StepResult `json:"step_results"`
	Run         RunRecord         `json:"run"`
}

// ExecutePipeline runs a validated pipeline config and emits a run
// record. On abort the partial result and record are returned alongside
// the error.
func (e *Engine) ExecutePipeline(ctx context.Context, cfg *core.PipelineConfig) (*PipelineResult, error) {
	record := RunRecord{
		ID:        uuid.NewString(),
		Pipeline:  cfg.Name,
		StartedAt: time.Now().UTC(),
	}

	res, execErr := e.executor.Execute(ctx, cfg)
	record.Duration = time.Since(record.StartedAt)
	if res == nil {
		return nil, execErr
	}

	for i, sr := range res.StepResults {
		step := StepRun{
			StepID:   sr.StepID,
			Action:   sr.Action,
			Articles: len(sr.Articles),
			Error:    sr.Error,
		}
		if i < len(res.Timings) {
			step.Duration = res.Timings[i].Duration
		}
		if sr.Error != "" {
			record.Errors = append(record.Errors, fmt.Sprintf("%s: %s", sr.StepID, sr.Error))
		}
		record.Steps = append(record.Steps, step)
	}
	if execErr != nil {
		record.Errors = append(record.Errors, execErr.Error())
	}

	return &PipelineResult{
		Articles:    res.Articles,
		StepResults: res.StepResults,
		Run:         record,
	}, execErr
}

func resolveLimit(limit int) (int, error) {
	if limit == 0 {
		return DefaultLimit, nil
	}
	if limit < 1 || limit > MaxLimit {
		return 0, core.NewError(core.KindInvalidInput,
			fmt.Sprintf("limit %d out of range 1..%d", limit, MaxLimit))
	}
	return limit, nil
}

func rank(articles []core.Article, query, preset string) {
	if preset == "" || preset == "balanced" {
		preset = aggregate.PresetDefault
	}
	aggregate.Rank(articles, query, aggregate.PresetWeights(preset))
}

func truncate(articles []core.Article, limit int) []core.Article {
	if len(articles) > limit {
		return articles[:limit]
	}
	return articles
}

func remainingSources(all, used []string) []string {
	seen := make(map[string]bool, len(used))
	for _, id := range used {
		seen[id] = true
	}
	var out []string
	for _, id := range all {
		if !seen[id] {
			out = append(out, id)
		}
	}
	return out
}
