package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the persisted index",
	Long: `Remove every vector and chunk of the index in store.persist_dir.
The next index, query or chat command rebuilds it from the corpus.`,
	Args: cobra.NoArgs,
	RunE: runClear,
}

func init() {
	rootCmd.AddCommand(clearCmd)
}

func runClear(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	out := cmd.OutOrStdout()

	if cfg.Store.Backend == "memory" {
		fmt.Fprintln(out, "The memory backend keeps no index on disk; nothing to clear.")
		return nil
	}
	if err := requireIndex(cfg); err != nil {
		return err
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.index.Clear(cmd.Context()); err != nil {
		return fmt.Errorf("failed to clear index: %w", err)
	}
	fmt.Fprintf(out, "Index cleared: %s\n", cfg.Store.PersistDir)
	return nil
}
