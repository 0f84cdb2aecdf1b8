package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kattapik/texttosql-project/pkg/config"
	"github.com/kattapik/texttosql-project/pkg/pipeline"
)

// Asker runs one question through the pipeline.
type Asker interface {
	Run(ctx context.Context, question string) *pipeline.Response
}

type AskCmd struct{}

func NewAskCmd() *AskCmd {
	return &AskCmd{}
}

func (c *AskCmd) Command() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			return withApp(cmd, func(ctx context.Context, app *config.App) error {
				resp := app.Pipeline.Run(ctx, question)
				if err := printResponse(cmd.OutOrStdout(), resp, jsonOutput(cmd)); err != nil {
					return err
				}
				if resp.Failed() {
					return errQueryFailed
				}
				return nil
			})
		},
	}
}

type ReplCmd struct{}

func NewReplCmd() *ReplCmd {
	return &ReplCmd{}
}

func (c *ReplCmd) Command() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Ask questions interactively; type exit or quit to leave",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *config.App) error {
				return repl(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), app.Pipeline, jsonOutput(cmd))
			})
		},
	}
}

// repl answers one question per input line until EOF, exit or quit. A failed
// question does not end the loop.
func repl(ctx context.Context, in io.Reader, out io.Writer, asker Asker, asJSON bool) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		resp := asker.Run(ctx, line)
		if err := printResponse(out, resp, asJSON); err != nil {
			return err
		}
		if resp.Failed() {
			fmt.Fprintf(out, "Error: %s\n", resp.Error)
		}
		fmt.Fprintln(out)
	}
}
