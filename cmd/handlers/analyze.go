package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"litgate/internal/analyzer"
	"litgate/internal/strategy"
)

// NewAnalyzeCmd creates the analyze command
func NewAnalyzeCmd() *cobra.Command {
	var (
		showStrategies bool
		approach       string
		estimate       bool
	)

	cmd := &cobra.Command{
		Use:   "analyze [query]",
		Short: "Show how a query would be classified and routed",
		Long: `Run the query analyzer without searching: prints extracted identifiers,
intent, complexity, clinical category, year bounds, PICO elements and
the recommended sources and strategies.

Examples:
  litgate analyze "metformin vs insulin in elderly patients"
  litgate analyze --strategies --estimate "statin myopathy"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(strings.Join(args, " "), showStrategies || estimate, approach, estimate)
		},
	}

	cmd.Flags().BoolVar(&showStrategies, "strategies", false, "Generate search-strategy query variants")
	cmd.Flags().StringVar(&approach, "approach", strategy.Comprehensive, "Variant approach: comprehensive, focused or exploratory")
	cmd.Flags().BoolVar(&estimate, "estimate", false, "Estimate per-variant hit counts via the biomedical source")
	return cmd
}

func runAnalyze(query string, showStrategies bool, approach string, estimate bool) error {
	validated, err := analyzer.ValidateQuery(query)
	if err != nil {
		return err
	}
	for _, w := range validated.Warnings {
		fmt.Printf("Warning: %s\n", w)
	}
	if validated.Fixed != query {
		fmt.Printf("Query rewritten to: %s\n", validated.Fixed)
	}

	a := analyzer.Analyze(validated.Fixed)

	fmt.Println("Query Analysis:")
	fmt.Println("===============")
	fmt.Printf("Intent:      %s\n", a.Intent)
	fmt.Printf("Complexity:  %s\n", a.Complexity)
	fmt.Printf("Confidence:  %.2f\n", a.Confidence)
	if a.ClinicalCategory != "" && a.ClinicalCategory != "none" {
		fmt.Printf("Clinical:    %s\n", a.ClinicalCategory)
	}
	if len(a.Identifiers) > 0 {
		fmt.Println("\nIdentifiers:")
		for _, id := range a.Identifiers {
			fmt.Printf("  %-6s %s (%.2f)\n", id.Type, id.Value, id.Confidence)
		}
	}
	if len(a.Keywords) > 0 {
		fmt.Printf("\nKeywords:    %s\n", strings.Join(a.Keywords, ", "))
	}
	if a.YearFrom > 0 || a.YearTo > 0 {
		fmt.Printf("Years:       %d-%d\n", a.YearFrom, a.YearTo)
	}
	if a.PICO != nil {
		fmt.Println("\nPICO:")
		if a.PICO.Population != "" {
			fmt.Printf("  Population:   %s\n", a.PICO.Population)
		}
		if a.PICO.Intervention != "" {
			fmt.Printf("  Intervention: %s\n", a.PICO.Intervention)
		}
		if a.PICO.Comparison != "" {
			fmt.Printf("  Comparison:   %s\n", a.PICO.Comparison)
		}
		if a.PICO.Outcome != "" {
			fmt.Printf("  Outcome:      %s\n", a.PICO.Outcome)
		}
	}
	fmt.Printf("\nRecommended sources:    %s\n", strings.Join(a.RecommendedSources, ", "))
	fmt.Printf("Recommended strategies: %s\n", strings.Join(a.RecommendedStrategies, ", "))

	if showStrategies {
		variants := strategy.Generate(validated.Fixed, approach)
		if estimate {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			counter, _ := buildRegistry().Counter("pubmed")
			variants = strategy.EstimateHits(ctx, counter, variants)
		}

		fmt.Printf("\nQuery variants (%s):\n", approach)
		for _, v := range variants {
			if v.EstimatedHits > 0 {
				fmt.Printf("  %-16s %-60s ~%d hits\n", v.Name, v.Query, v.EstimatedHits)
			} else {
				fmt.Printf("  %-16s %s\n", v.Name, v.Query)
			}
		}
	}
	return nil
}
