// Package cli implements the wikirag command line.
package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"wikirag/internal/app"
	"wikirag/internal/config"
	"wikirag/internal/logger"
	"wikirag/internal/session"
)

var (
	cfgPath string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "wikirag",
	Short: "Chat with a knowledge base scraped from Wikipedia",
	Long: `wikirag scrapes a fixed set of Wikipedia articles into a PDF knowledge
base, indexes it, and answers questions about it with an OpenAI chat model.
Answers come only from the indexed articles.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config file (default ./config.yaml or ~/.config/wikirag/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// env holds what every command needs.
type env struct {
	cfg     *config.AppConfig
	session *session.Session
}

// setup loads .env (if any) and the config, builds the logger and a session, and
// applies the credential from the environment when present.
func setup(cmd *cobra.Command) (*env, error) {
	_ = godotenv.Load()

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cmd.ErrOrStderr(), logger.Options{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Verbose: verbose,
	})
	if err != nil {
		return nil, err
	}
	slog.SetDefault(log)

	s := app.NewSession(cfg, log)
	if key := cfg.APIKey(); key != "" {
		_ = s.SetCredential(key)
	}
	return &env{cfg: cfg, session: s}, nil
}
