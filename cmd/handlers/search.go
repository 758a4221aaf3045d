package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"litgate/internal/config"
	"litgate/internal/logger"
	"litgate/internal/render"
	"litgate/internal/research"
)

const searchTimeout = 2 * time.Minute

// NewSearchCmd creates the search command
func NewSearchCmd() *cobra.Command {
	var (
		srcList        []string
		limit          int
		minYear        int
		maxYear        int
		openAccessOnly bool
		ranking        string
		enhanceQuery   bool
		fallback       bool
		output         string
		markdownDir    string
	)

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search scholarly sources for a question",
		Long: `Run a one-shot search: the query is validated and analyzed, fanned out
to the chosen (or analyzer-recommended) sources, and the merged results
are deduplicated and ranked.

Examples:
  litgate search "inhaled corticosteroids in mild asthma"
  litgate search --sources pubmed,openalex --limit 50 "crispr off-target"
  litgate search --ranking impact --min-year 2020 "long covid treatment"
  litgate search --output markdown "statin adverse events"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			opts := research.SearchOptions{
				Sources:             srcList,
				Limit:               limit,
				MinYear:             minYear,
				MaxYear:             maxYear,
				OpenAccessOnly:      openAccessOnly,
				Ranking:             ranking,
				Enhance:             enhanceQuery,
				CrossSearchFallback: fallback,
			}
			return runSearch(query, opts, output, markdownDir)
		},
	}

	cmd.Flags().StringSliceVarP(&srcList, "sources", "s", nil, "Source ids to query (default: analyzer recommendation)")
	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "Maximum number of results (1-200, default from config)")
	cmd.Flags().IntVar(&minYear, "min-year", 0, "Only include articles from this year on")
	cmd.Flags().IntVar(&maxYear, "max-year", 0, "Only include articles up to this year")
	cmd.Flags().BoolVar(&openAccessOnly, "open-access", false, "Only include open-access articles")
	cmd.Flags().StringVarP(&ranking, "ranking", "r", "", "Ranking preset: balanced, impact, recency, quality")
	cmd.Flags().BoolVarP(&enhanceQuery, "enhance", "e", false, "Expand the query with MeSH synonyms before searching")
	cmd.Flags().BoolVar(&fallback, "fallback", false, "Supplement with alternate sources when few results come back")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output format: terminal (default) or markdown")
	cmd.Flags().StringVar(&markdownDir, "output-dir", "results", "Directory for markdown output")

	return cmd
}

func runSearch(query string, opts research.SearchOptions, output, markdownDir string) error {
	ctx, cancel := context.WithTimeout(context.Background(), searchTimeout)
	defer cancel()

	defaults := config.Get().Search
	if opts.Limit == 0 {
		opts.Limit = defaults.DefaultLimit
	}
	if opts.Ranking == "" {
		opts.Ranking = defaults.DefaultRanking
	}
	opts.Enhance = opts.Enhance || defaults.Enhance
	opts.CrossSearchFallback = opts.CrossSearchFallback || defaults.CrossSearchFallback

	engine, cacheStore := buildEngine()
	defer closeStore(cacheStore)

	logger.Info("search started", "query", query, "sources", strings.Join(opts.Sources, ","))
	res, err := engine.Search(ctx, query, opts)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	for _, w := range res.Warnings {
		fmt.Printf("Warning: %s\n", w)
	}

	switch output {
	case "markdown":
		path, err := render.WriteMarkdown(res.Articles, res.Stats.Query, markdownDir)
		if err != nil {
			return err
		}
		fmt.Printf("Results written to %s\n", path)
	default:
		fmt.Print(render.Terminal(res.Articles, res.Stats.Query))
	}

	printStats(res.Stats)
	return nil
}

func printStats(stats research.Stats) {
	var parts []string
	for _, c := range stats.SourceCounts {
		parts = append(parts, fmt.Sprintf("%s: %d", c.Source, c.Count))
	}
	fmt.Printf("%d articles after dedup (%s) in %s\n",
		stats.TotalFound, strings.Join(parts, ", "), stats.Duration.Round(time.Millisecond))
	for src, msg := range stats.FailedSources {
		fmt.Printf("Source %s failed: %s\n", src, msg)
	}
	if len(stats.FallbackSources) > 0 {
		fmt.Printf("Cross-search fallback used: %s\n", strings.Join(stats.FallbackSources, ", "))
	}
}
