package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/chainspeak/kernel"
)

type globalFlags struct {
	configFile   string
	envFiles     []string
	model        string
	storeDriver  string
	dataDir      string
	systemPrompt string
	verbose      bool
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var g globalFlags

	cmd := &cobra.Command{
		Use:   "chainspeak",
		Short: "Chat assistant backed by a tool-calling language model",
		Long: `Chainspeak answers chat messages with a language model that can call
tools. Conversations are kept per user in a local key-value store.

Examples:
  chainspeak chat --user alice
  chainspeak serve --addr :8080
  chainspeak serve --config chainspeak.json --store-driver sqlite`,
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return loadEnv(g.envFiles)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&g.configFile, "config", "c", "", "path to config JSON file")
	flags.StringSliceVar(&g.envFiles, "env-file", []string{".env.local", ".env"}, "env files to load; earlier files win")
	flags.StringVar(&g.model, "model", "", "model name (overrides config)")
	flags.StringVar(&g.storeDriver, "store-driver", "", "store driver: file or sqlite (overrides config)")
	flags.StringVar(&g.dataDir, "data-dir", "", "data directory (overrides config)")
	flags.StringVar(&g.systemPrompt, "system-prompt", "", "system prompt (overrides config)")
	flags.BoolVarP(&g.verbose, "verbose", "v", false, "enable debug logging to stderr")

	cmd.AddCommand(serveCmd(&g), chatCmd(&g))
	return cmd
}

// loadEnv loads the env files that exist. Variables already set in the
// environment are not overridden.
func loadEnv(files []string) error {
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load env files: %w", err)
	}
	return nil
}

func loadConfig(g *globalFlags) (*kernel.Config, error) {
	var cfg *kernel.Config
	if g.configFile == "" {
		defaults := kernel.DefaultConfig()
		cfg = &defaults
	} else {
		loaded, err := kernel.LoadConfig(g.configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if g.model != "" {
		cfg.Agent.Model = g.model
	}
	if g.storeDriver != "" {
		cfg.Store.Driver = g.storeDriver
	}
	if g.dataDir != "" {
		cfg.Store.Dir = g.dataDir
	}
	if g.systemPrompt != "" {
		cfg.SystemPrompt = g.systemPrompt
	}

	return cfg, nil
}

func newLogger(verbose bool, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
