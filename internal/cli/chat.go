package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"docqa/internal/domain"
	"github.com/spf13/cobra"
)

const questionPrompt = "Please insert your question: "

var chatQuestion string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Answer the initial question, then keep asking",
	Long: `Load or build the index, answer the profile's initial question and,
for interactive profiles, read further questions from standard input.
Enter ESC (then return) or send EOF to leave.

Examples:
  docqa chat
  docqa chat --profile paul_graham
  docqa chat --question "Who is Satoshi Nakamoto?"`,
	Args: cobra.NoArgs,
	RunE: runChatCmd,
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVar(&chatQuestion, "question", "", "initial question (overrides query.initial_question)")
}

// answerer is the part of the query engine the chat loop needs.
type answerer interface {
	Query(ctx context.Context, question string) (domain.Response, error)
}

type chatOptions struct {
	InitialQuestion string
	Interactive     bool
	ExitSequence    string
	Verbose         bool
}

func runChatCmd(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	ctx := cmd.Context()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.load(ctx, cmd.OutOrStdout()); err != nil {
		return err
	}
	engine, err := a.queryEngine(nil)
	if err != nil {
		return err
	}

	opts := chatOptions{
		InitialQuestion: cfg.Query.InitialQuestion,
		Interactive:     cfg.Query.Interactive,
		ExitSequence:    cfg.Query.ExitSequence,
		Verbose:         cfg.Query.Verbose,
	}
	if chatQuestion != "" {
		opts.InitialQuestion = chatQuestion
	}
	return runChat(ctx, engine, cmd.InOrStdin(), cmd.OutOrStdout(), opts)
}

// runChat answers the initial question, then reads one question per line
// until the exit sequence or EOF. Failed questions are reported and the
// loop goes on.
func runChat(ctx context.Context, engine answerer, in io.Reader, out io.Writer, opts chatOptions) error {
	if q := strings.TrimSpace(opts.InitialQuestion); q != "" {
		resp, err := engine.Query(ctx, q)
		if err != nil {
			return fmt.Errorf("query failed: %w", err)
		}
		printAnswer(out, resp, opts.Verbose)
	}
	if !opts.Interactive {
		return nil
	}

	exit := opts.ExitSequence
	if exit == "" {
		exit = "\x1b"
	}

	r := bufio.NewReader(in)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		fmt.Fprint(out, questionPrompt)
		line, err := r.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read question: %w", err)
		}
		eof := err != nil

		line = strings.TrimRight(line, "\r\n")
		if line == exit || strings.TrimSpace(line) == exit {
			return nil
		}
		if q := strings.TrimSpace(line); q != "" {
			resp, qerr := engine.Query(ctx, q)
			if qerr != nil {
				fmt.Fprintf(out, "Error: %v\n", qerr)
			} else {
				printAnswer(out, resp, opts.Verbose)
			}
		}
		if eof {
			fmt.Fprintln(out)
			return nil
		}
	}
}
