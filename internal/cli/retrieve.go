package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	retrieveText string
	retrieveTopK int
	retrieveJSON bool
)

var retrieveCmd = &cobra.Command{
	Use:   "retrieve",
	Short: "Show the passages retrieved for a question",
	Long: `Run retrieval only: embed the question, search the vector store and
print the matching chunks with their similarity scores. No model is called.

Examples:
  docqa retrieve -q "proof of work"
  docqa retrieve -q "private keys" -k 5 --json`,
	Args: cobra.NoArgs,
	RunE: runRetrieve,
}

type retrieveResult struct {
	ChunkID string  `json:"chunk_id"`
	Path    string  `json:"path"`
	Seq     int     `json:"seq"`
	Score   float64 `json:"score"`
	Text    string  `json:"text"`
}

func init() {
	rootCmd.AddCommand(retrieveCmd)
	retrieveCmd.Flags().StringVarP(&retrieveText, "query", "q", "", "search query (required)")
	retrieveCmd.Flags().IntVarP(&retrieveTopK, "top-k", "k", 0, "number of results (default from config)")
	retrieveCmd.Flags().BoolVar(&retrieveJSON, "json", false, "output as JSON")
	retrieveCmd.MarkFlagRequired("query")
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	ctx := cmd.Context()

	if err := requireIndex(cfg); err != nil {
		return err
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	status := out
	if retrieveJSON {
		status = cmd.ErrOrStderr()
	}
	if err := a.load(ctx, status); err != nil {
		return err
	}

	topK := cfg.Query.TopK
	if retrieveTopK > 0 {
		topK = retrieveTopK
	}

	chunks, err := a.retriever().Search(ctx, retrieveText, topK)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	results := make([]retrieveResult, 0, len(chunks))
	for _, c := range chunks {
		path := c.Chunk.Metadata["file_path"]
		if doc, err := a.catalog.GetDoc(c.Chunk.DocID); err == nil {
			path = doc.Path
		}
		results = append(results, retrieveResult{
			ChunkID: c.Chunk.ID,
			Path:    path,
			Seq:     c.Chunk.Seq,
			Score:   c.Score,
			Text:    c.Chunk.Text,
		})
	}

	if retrieveJSON {
		output, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return fmt.Errorf("encode results: %w", err)
		}
		fmt.Fprintln(out, string(output))
		return nil
	}

	if len(results) == 0 {
		fmt.Fprintln(out, "No results found.")
		return nil
	}
	fmt.Fprintf(out, "Found %d results for: %s\n\n", len(results), retrieveText)
	for i, r := range results {
		fmt.Fprintf(out, "--- [%d] %s#%d (score: %.3f) ---\n", i+1, r.Path, r.Seq, r.Score)
		fmt.Fprintln(out, truncate(r.Text, 500))
		fmt.Fprintln(out)
	}
	return nil
}
