package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"docqa/internal/webui"
	"github.com/spf13/cobra"
)

var (
	update  bool
	envPath string
	dir     string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "webui-setup",
	Short: "Install or update the text-generation-webui the openai provider talks to",
	Long: `webui-setup runs from a text-generation-webui checkout inside an active
conda environment. Without flags it finishes an installation; with --update
it pulls the latest web UI and reinstalls the requirements matching the
installed torch build.`,
	// the launcher scripts pass through flags meant for the web UI itself
	FParseErrWhitelist: cobra.FParseErrWhitelist{UnknownFlags: true},
	SilenceUsage:       true,
	SilenceErrors:      true,
	Args:               cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if dir == "" {
			wd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
			dir = wd
		}
		fmt.Println("Conda environment path:", envPath)

		level := slog.LevelInfo
		if debug {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

		platform := webui.Detect()
		runner := webui.NewShellRunner(dir, envPath, platform, logger)
		inst := webui.NewInstaller(dir, envPath, platform, runner, logger)
		return inst.Run(cmd.Context(), update)
	},
}

func init() {
	rootCmd.Flags().BoolVar(&update, "update", false, "update the web UI")
	rootCmd.Flags().StringVar(&envPath, "env", webui.DefaultEnvPath, "conda environment path")
	rootCmd.Flags().StringVarP(&dir, "dir", "d", "", "web UI checkout (default is current directory)")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "log every shell command")
}

func main() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}

	var cmdErr *webui.CommandError
	switch {
	case errors.As(err, &cmdErr):
		fmt.Printf("Command '%s' failed with exit status code '%d'.\n\nExiting now.\nTry running the start/update script again.\n", cmdErr.Command, cmdErr.ExitCode)
	case errors.Is(err, webui.ErrCondaMissing):
		fmt.Println("Conda is not installed. Exiting...")
	case errors.Is(err, webui.ErrBaseEnv):
		fmt.Println("Create an environment for this project and activate it. Exiting...")
	case errors.Is(err, webui.ErrScriptUpdated):
		// the banner was already printed
	default:
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(1)
}
