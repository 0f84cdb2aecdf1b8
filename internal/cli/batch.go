package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alitto/pond/v2"
	"github.com/spf13/cobra"

	"github.com/kattapik/texttosql-project/pkg/config"
	"github.com/kattapik/texttosql-project/pkg/pipeline"
)

const defaultBatchConcurrency = 4

type BatchCmd struct{}

func NewBatchCmd() *BatchCmd {
	return &BatchCmd{}
}

func (c *BatchCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch <file>",
		Short: "Answer every question in a file, one per line; - reads stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			concurrency, err := cmd.Flags().GetInt("concurrency")
			if err != nil {
				return fmt.Errorf("failed to get concurrency flag: %w", err)
			}
			if concurrency <= 0 {
				return fmt.Errorf("concurrency must be positive")
			}

			var in io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open questions file: %w", err)
				}
				defer f.Close()
				in = f
			}
			questions, err := readQuestions(in)
			if err != nil {
				return err
			}

			return withApp(cmd, func(ctx context.Context, app *config.App) error {
				responses, err := runBatch(ctx, app.Pipeline, questions, concurrency)
				if err != nil {
					return err
				}
				return writeBatch(cmd.OutOrStdout(), responses)
			})
		},
	}
	cmd.Flags().Int("concurrency", defaultBatchConcurrency, "questions answered in parallel")
	return cmd
}

// readQuestions returns the non-blank lines of r, skipping # comments.
func readQuestions(r io.Reader) ([]string, error) {
	var questions []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		questions = append(questions, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read questions: %w", err)
	}
	return questions, nil
}

// runBatch answers questions concurrently. Responses are returned in input
// order.
func runBatch(ctx context.Context, asker Asker, questions []string, concurrency int) ([]*pipeline.Response, error) {
	pool := pond.NewResultPool[*pipeline.Response](concurrency)
	defer pool.StopAndWait()

	group := pool.NewGroupContext(ctx)
	for _, q := range questions {
		group.Submit(func() *pipeline.Response {
			return asker.Run(ctx, q)
		})
	}
	responses, err := group.Wait()
	if err != nil {
		return nil, fmt.Errorf("failed to run batch: %w", err)
	}
	return responses, nil
}

// writeBatch prints one JSON response per line.
func writeBatch(w io.Writer, responses []*pipeline.Response) error {
	enc := json.NewEncoder(w)
	for _, resp := range responses {
		if err := enc.Encode(resp); err != nil {
			return err
		}
	}
	return nil
}
