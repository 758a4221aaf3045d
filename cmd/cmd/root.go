package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"litgate/cmd/handlers"
	"litgate/internal/config"
	"litgate/internal/logger"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "litgate",
	Short: "litgate searches and ranks scholarly literature across sources",
	Long: `litgate is a gateway to scholarly bibliographic services. It analyzes
a free-text question, fans it out to PubMed, Crossref, OpenAlex,
Semantic Scholar and CORE, then deduplicates, enriches and ranks the
merged results. Multi-step workflows are declared as YAML pipelines.

Examples:
  litgate search "inhaled corticosteroids in mild asthma"
  litgate analyze "metformin vs insulin in elderly patients"
  litgate pipeline run review.yaml
  litgate lookup 31452104`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.litgate.yaml)")

	rootCmd.AddCommand(handlers.NewSearchCmd())
	rootCmd.AddCommand(handlers.NewAnalyzeCmd())
	rootCmd.AddCommand(handlers.NewPipelineCmd())
	rootCmd.AddCommand(handlers.NewLookupCmd())
	rootCmd.AddCommand(handlers.NewCacheCmd())
	rootCmd.AddCommand(handlers.NewTUICmd())
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	logger.SetLevel(cfg.Logging.Level)
}
