package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"litgate/internal/render"
	"litgate/internal/research"
)

// NewLookupCmd creates the lookup command
func NewLookupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lookup [identifier...]",
		Short: "Fetch full records by PMID, DOI, PMC or arXiv id",
		Long: `Resolve one or more identifiers to full article records. PMIDs and PMC
ids go through the biomedical source, DOIs through the DOI registry.

Examples:
  litgate lookup 31452104
  litgate lookup 10.1056/NEJMoa1901747 PMC6700000`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLookup(strings.Join(args, " "))
		},
	}
	return cmd
}

func runLookup(query string) error {
	ctx, cancel := context.WithTimeout(context.Background(), searchTimeout)
	defer cancel()

	engine, cacheStore := buildEngine()
	defer closeStore(cacheStore)

	// The analyzer extracts the identifiers and Search takes the direct
	// lookup path when it classifies the query as a lookup.
	res, err := engine.Search(ctx, query, research.SearchOptions{})
	if err != nil {
		return fmt.Errorf("lookup failed: %w", err)
	}
	if len(res.Articles) == 0 {
		fmt.Println("No records found.")
		return nil
	}
	fmt.Print(render.Terminal(res.Articles, ""))
	return nil
}
