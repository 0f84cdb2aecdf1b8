// Package cli implements the texttosql command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kattapik/texttosql-project/pkg/config"
	"github.com/kattapik/texttosql-project/pkg/llm"
)

type ExitCode int

const (
	exitCodeSuccess = 0
	exitCodeError   = 1
)

// errQueryFailed is returned after a failed pipeline response has already
// been printed.
var errQueryFailed = errors.New("query failed")

func Run(version string) ExitCode {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rootCmd := NewRootCmd(version)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errQueryFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return exitCodeError
	}
	return exitCodeSuccess
}

func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "texttosql",
		Short:         "Answer questions about a database with read-only SQL.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Help(); err != nil {
				return fmt.Errorf("failed to show help: %w", err)
			}
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.BoolP("verbose", "v", false, "set debug logging level")
	flags.String("db-driver", "", "database driver: sqlite, duckdb, postgres or clickhouse (or TEXTTOSQL_DB_DRIVER)")
	flags.String("db-dsn", "", "database file or connection URL (or TEXTTOSQL_DB_DSN, DB_PATH)")
	flags.String("provider", "", "LLM provider: anthropic or openai (or TEXTTOSQL_LLM_PROVIDER)")
	flags.String("model", "", "model name (or TEXTTOSQL_MODEL)")
	flags.Int("fallback-limit", 0, "tables used as context when nothing matches (or TEXTTOSQL_FALLBACK_LIMIT)")
	flags.Int("max-rows", 0, "maximum rows returned by a query (or TEXTTOSQL_MAX_ROWS)")
	flags.Bool("charts", false, "suggest a chart for results (or TEXTTOSQL_SUGGEST_CHARTS)")
	flags.Bool("json", false, "print responses as JSON")

	rootCmd.AddCommand(
		NewAskCmd().Command(),
		NewReplCmd().Command(),
		NewBatchCmd().Command(),
		NewTablesCmd().Command(),
		NewValidateCmd().Command(),
		NewSeedCmd().Command(),
	)
	return rootCmd
}

// loadConfig reads the environment, then applies any flags set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Root().PersistentFlags()
	if flags.Changed("db-driver") {
		cfg.DBDriver, _ = flags.GetString("db-driver")
	}
	if flags.Changed("db-dsn") {
		cfg.DBDSN, _ = flags.GetString("db-dsn")
	}
	if flags.Changed("provider") {
		name, _ := flags.GetString("provider")
		provider, err := llm.ProviderByName(name)
		if err != nil {
			return nil, err
		}
		cfg.LLMProvider = provider
	}
	if flags.Changed("model") {
		cfg.Model, _ = flags.GetString("model")
	}
	if flags.Changed("fallback-limit") {
		cfg.FallbackLimit, _ = flags.GetInt("fallback-limit")
	}
	if flags.Changed("max-rows") {
		cfg.MaxRows, _ = flags.GetInt("max-rows")
	}
	if flags.Changed("charts") {
		cfg.SuggestCharts, _ = flags.GetBool("charts")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func verbose(cmd *cobra.Command) bool {
	v, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	return v
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Root().PersistentFlags().GetBool("json")
	return v
}

// withApp loads the config, opens the app and runs fn with it.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *config.App) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := newLogger(cmd, verbose(cmd))
	ctx := cmd.Context()

	app, err := config.NewApp(ctx, log, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Warn("cli: failed to close catalog", "error", err)
		}
	}()
	return fn(ctx, app)
}
