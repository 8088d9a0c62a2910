package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"docqa/internal/domain"
	"github.com/spf13/cobra"
)

var (
	queryText string
	queryJSON bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Answer a single question",
	Long: `Retrieve the passages most relevant to a question, pack them into the
prompt and print the model's answer. The index is built first if needed.

Examples:
  docqa query -q "What is a bitcoin address?"
  docqa query -q "How does mining work?" --verbose
  docqa query -q "What is a UTXO?" --json`,
	Args: cobra.NoArgs,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&queryText, "query", "q", "", "question to answer (required)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	queryCmd.MarkFlagRequired("query")
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	ctx := cmd.Context()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	status := out
	if queryJSON {
		status = cmd.ErrOrStderr()
	}
	if err := a.load(ctx, status); err != nil {
		return err
	}
	engine, err := a.queryEngine(nil)
	if err != nil {
		return err
	}

	resp, err := engine.Query(ctx, queryText)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if queryJSON {
		output, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(output))
		return nil
	}
	printAnswer(out, resp, cfg.Query.Verbose)
	return nil
}

func printAnswer(w io.Writer, resp domain.Response, verbose bool) {
	fmt.Fprintln(w, "The answer is:")
	fmt.Fprintln(w, resp.Answer)
	if !verbose {
		return
	}

	if len(resp.Sources) > 0 {
		fmt.Fprintf(w, "\nSources:\n")
		for i, s := range resp.Sources {
			fmt.Fprintf(w, "  [%d] %s (score: %.3f)\n", i+1, s.Path, s.Score)
		}
	}
	fmt.Fprintf(w, "\nAnswered in %s\n", resp.Elapsed.Round(time.Millisecond))
}

// truncate shortens text for display.
func truncate(text string, n int) string {
	text = strings.TrimSpace(text)
	if len(text) <= n {
		return text
	}
	cut := strings.LastIndexByte(text[:n], ' ')
	if cut <= 0 {
		cut = n
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
	}
	return text[:cut] + "..."
}
