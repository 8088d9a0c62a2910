package cli

import (
	"fmt"
	"sync"
	"time"

	"docqa/internal/usecase"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var indexRebuild bool

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index the corpus for retrieval",
	Long: `Read the corpus directory, split it into chunks, embed them and store
the vectors. Unchanged files are skipped; removed files are dropped.
The index is stored in store.persist_dir.

Examples:
  docqa index                          # Refresh the index
  docqa index --rebuild                # Start from scratch
  docqa index --profile bitcoinbook-chroma`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.Flags().BoolVar(&indexRebuild, "rebuild", false, "discard the existing index first")
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.Store.Backend == "memory" {
		fmt.Println("Note: the memory backend keeps nothing once this command exits.")
	}
	fmt.Printf("Scanning %s...\n", cfg.Corpus.Dir)

	// Created on the first embedding event, once the chunk total is known.
	var bar *progressbar.ProgressBar
	var barMu sync.Mutex
	var startTime time.Time

	a.index.OnProgress(func(p usecase.Progress) {
		barMu.Lock()
		defer barMu.Unlock()

		if p.Total <= 0 {
			return
		}
		if bar == nil {
			startTime = time.Now()
			bar = progressbar.NewOptions(p.Total,
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowBytes(false),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]Embedding[reset]"),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					fmt.Println()
				}),
			)
		}

		bar.Set(p.Done)

		if p.Done > 0 {
			elapsed := time.Since(startTime)
			rate := float64(p.Done) / elapsed.Seconds()
			remaining := p.Total - p.Done
			if rate > 0 {
				eta := time.Duration(float64(remaining)/rate) * time.Second
				bar.Describe(fmt.Sprintf("[cyan]Embedding[reset] ETA: %s", formatDuration(eta)))
			}
		}
	})

	result, err := a.index.Refresh(cmd.Context(), indexRebuild)
	if err != nil {
		if usecase.IsNoDocuments(err) {
			return fmt.Errorf("indexing failed: %w (corpus.dir = %s)", err, cfg.Corpus.Dir)
		}
		return fmt.Errorf("indexing failed: %w", err)
	}

	fmt.Printf("\nIndexing complete:\n")
	fmt.Printf("  Files indexed:  %d\n", result.FilesIndexed)
	fmt.Printf("  Files skipped:  %d (unchanged)\n", result.FilesSkipped)
	fmt.Printf("  Files deleted:  %d (removed)\n", result.FilesDeleted)
	fmt.Printf("  Chunks created: %d\n", result.ChunksCreated)
	fmt.Printf("  Total chunks:   %d\n", result.TotalChunks)

	if len(result.Errors) > 0 {
		fmt.Printf("\nWarnings:\n")
		for _, e := range result.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}

	if cfg.Store.Backend != "memory" {
		fmt.Printf("\nIndex stored at: %s (%s)\n", cfg.Store.PersistDir, cfg.Store.Backend)
	}
	return nil
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
