package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/kattapik/texttosql-project/pkg/logger"
)

// newLogger logs to stderr so stdout carries only results.
func newLogger(cmd *cobra.Command, verbose bool) *slog.Logger {
	return logger.NewWithWriter(cmd.ErrOrStderr(), verbose)
}
