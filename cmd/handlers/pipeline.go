package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"litgate/internal/pipeline"
	"litgate/internal/render"
)

const pipelineTimeout = 10 * time.Minute

// NewPipelineCmd creates the parent pipeline command with subcommands
func NewPipelineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Run or validate declared search pipelines",
		Long: `Pipelines are YAML files declaring a DAG of search steps: search, pico,
expand, details, related, citing, references, metrics, merge and filter.
Independent steps run concurrently.

Examples:
  litgate pipeline validate review.yaml
  litgate pipeline run review.yaml
  litgate pipeline run --output markdown review.yaml`,
	}

	cmd.AddCommand(newPipelineRunCmd())
	cmd.AddCommand(newPipelineValidateCmd())
	return cmd
}

func newPipelineRunCmd() *cobra.Command {
	var (
		output      string
		markdownDir string
	)

	cmd := &cobra.Command{
		Use:   "run [pipeline-file]",
		Short: "Execute a pipeline file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(args[0], output, markdownDir)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output format: terminal (default) or markdown")
	cmd.Flags().StringVar(&markdownDir, "output-dir", "results", "Directory for markdown output")
	return cmd
}

func newPipelineValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [pipeline-file]",
		Short: "Parse and validate a pipeline file without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := pipeline.LoadConfig(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Pipeline %q is valid: %d steps\n", cfg.Name, len(cfg.Steps))
			for _, step := range cfg.Steps {
				fmt.Printf("  %-16s %s\n", step.ID, step.Action)
			}
			return nil
		},
	}
}

func runPipeline(path, output, markdownDir string) error {
	cfg, err := pipeline.LoadConfig(path)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), pipelineTimeout)
	defer cancel()

	engine, cacheStore := buildEngine()
	defer closeStore(cacheStore)

	res, execErr := engine.ExecutePipeline(ctx, cfg)
	if res != nil {
		fmt.Print(render.StepSummary(res.StepResults))
		fmt.Printf("\nRun %s finished in %s\n\n", res.Run.ID, res.Run.Duration.Round(time.Millisecond))

		switch output {
		case "markdown":
			mdPath, err := render.WriteMarkdown(res.Articles, cfg.Name, markdownDir)
			if err != nil {
				return err
			}
			fmt.Printf("Results written to %s\n", mdPath)
		default:
			fmt.Print(render.Terminal(res.Articles, cfg.Name))
		}
	}
	if execErr != nil {
		return fmt.Errorf("pipeline failed: %w", execErr)
	}
	return nil
}
