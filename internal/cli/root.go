package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"docqa/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	cfg      *config.Config
	rootDir  string
	profile  string
	model    string
	logLevel string
	verbose  bool
	logger   *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "docqa",
	Short: "Ask questions about a folder of documents",
	Long: `docqa indexes a folder of documents into a vector store and answers
questions about them with a language model, citing the passages it used.

Example usage:
  docqa index                          # Build or refresh the index
  docqa chat                           # Answer the initial question, then loop
  docqa query -q "what is a UTXO?"     # One question, one answer
  docqa retrieve -q "mining" -k 5      # Show the passages retrieval picks`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error

		if rootDir == "" {
			rootDir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
		}

		if err := godotenv.Load(filepath.Join(rootDir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load .env: %w", err)
		}

		switch {
		case cfgFile != "":
			cfg, err = config.Load(cfgFile)
		case profile != "":
			cfg, err = config.Profile(profile)
		default:
			cfg, err = config.LoadFromDir(rootDir)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if cfgFile != "" && profile != "" && profile != cfg.Profile {
			return fmt.Errorf("--profile %s conflicts with profile %q of %s", profile, cfg.Profile, cfgFile)
		}

		cfg, err = config.ApplyEnv(cfg, os.LookupEnv)
		if err != nil {
			return fmt.Errorf("failed to apply environment: %w", err)
		}
		applyFlags(cmd, cfg)
		resolvePaths(cfg, rootDir)

		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		logger, err = newLogger(cfg.Logging, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./docqa.yaml)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "dir", "d", "", "root directory (default is current directory)")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "built-in profile: "+strings.Join(config.ProfileNames(), ", "))
	rootCmd.PersistentFlags().StringVar(&model, "model", "", "language model name (overrides llm.model)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print the sources behind every answer")
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	if model != "" {
		cfg.LLM.Model = model
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Query.Verbose = verbose
	}
}

// resolvePaths anchors relative corpus and storage paths at the root directory.
func resolvePaths(cfg *config.Config, root string) {
	if cfg.Corpus.Dir != "" && !filepath.IsAbs(cfg.Corpus.Dir) {
		cfg.Corpus.Dir = filepath.Join(root, cfg.Corpus.Dir)
	}
	if cfg.Store.PersistDir != "" && !filepath.IsAbs(cfg.Store.PersistDir) {
		cfg.Store.PersistDir = filepath.Join(root, cfg.Store.PersistDir)
	}
}

func newLogger(c config.LoggingConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if c.Level != "" {
		if err := level.UnmarshalText([]byte(c.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", c.Level, err)
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	switch c.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", c.Format)
	}
}

func GetConfig() *config.Config {
	return cfg
}

func GetRootDir() string {
	return rootDir
}
