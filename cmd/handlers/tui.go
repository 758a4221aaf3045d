package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"litgate/internal/research"
	"litgate/internal/tui"
)

// NewTUICmd creates the interactive browser command
func NewTUICmd() *cobra.Command {
	var (
		srcList []string
		limit   int
		ranking string
	)

	cmd := &cobra.Command{
		Use:   "tui [query]",
		Short: "Search and browse results interactively",
		Long: `Run a search and open the results in an interactive terminal browser.

Example:
  litgate tui "long covid treatment"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runTUI(query, research.SearchOptions{
				Sources: srcList,
				Limit:   limit,
				Ranking: ranking,
			})
		},
	}

	cmd.Flags().StringSliceVarP(&srcList, "sources", "s", nil, "Source ids to query")
	cmd.Flags().IntVarP(&limit, "limit", "l", 50, "Maximum number of results")
	cmd.Flags().StringVarP(&ranking, "ranking", "r", "", "Ranking preset")
	return cmd
}

func runTUI(query string, opts research.SearchOptions) error {
	ctx, cancel := context.WithTimeout(context.Background(), searchTimeout)
	defer cancel()

	engine, cacheStore := buildEngine()
	defer closeStore(cacheStore)

	res, err := engine.Search(ctx, query, opts)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	tui.Browse(res.Stats.Query, res.Articles)
	return nil
}
