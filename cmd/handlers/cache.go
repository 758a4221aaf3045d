package handlers

import (
	"fmt"

	"github.com/spf13/cobra"

	"litgate/internal/config"
	"litgate/internal/store"
)

// NewCacheCmd creates the cache management command
func NewCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the persistent article cache",
		Long:  `Inspect and clear the SQLite cache of fetched article and entity records.`,
	}

	cmd.AddCommand(newCacheStatsCmd())
	cmd.AddCommand(newCacheClearCmd())
	return cmd
}

func newCacheStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cacheStore, err := store.NewStore(config.GetCacheDirectory())
			if err != nil {
				return fmt.Errorf("error opening cache: %w", err)
			}
			defer func() { _ = cacheStore.Close() }()

			stats, err := cacheStore.GetStats()
			if err != nil {
				return fmt.Errorf("error getting cache stats: %w", err)
			}

			fmt.Println("Cache Statistics:")
			fmt.Println("================")
			fmt.Printf("Articles:     %d\n", stats.ArticleCount)
			fmt.Printf("Entities:     %d\n", stats.EntityCount)
			fmt.Printf("Cache size:   %.2f MB\n", float64(stats.CacheSize)/(1024*1024))
			if !stats.LastUpdated.IsZero() {
				fmt.Printf("Last updated: %s\n", stats.LastUpdated.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}

func newCacheClearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear the cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			confirm, _ := cmd.Flags().GetBool("confirm")
			if !confirm {
				fmt.Println("This will delete all cached data. Use --confirm to proceed.")
				return nil
			}

			cacheStore, err := store.NewStore(config.GetCacheDirectory())
			if err != nil {
				return fmt.Errorf("error opening cache: %w", err)
			}
			defer func() { _ = cacheStore.Close() }()

			if err := cacheStore.Clear(); err != nil {
				return fmt.Errorf("error clearing cache: %w", err)
			}
			fmt.Println("Cache cleared.")
			return nil
		},
	}
	cmd.Flags().Bool("confirm", false, "Confirm cache deletion")
	return cmd
}
