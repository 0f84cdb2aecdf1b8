package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kattapik/texttosql-project/pkg/catalog"
	"github.com/kattapik/texttosql-project/pkg/metrics"
	"github.com/kattapik/texttosql-project/pkg/pipeline"
	"github.com/kattapik/texttosql-project/pkg/sqlguard"
)

const (
	toolAsk         = "ask"
	toolValidateSQL = "validate_sql"
	toolListTables  = "list_tables"
)

type AskInput struct {
	Question string `json:"question" jsonschema:"the question to answer, in plain language"`
}

type ValidateInput struct {
	SQL string `json:"sql" jsonschema:"the SQL to check"`
}

// ValidateOutput is the validator's verdict.
type ValidateOutput = sqlguard.Result

type ListTablesInput struct {
	Refresh bool `json:"refresh,omitempty" jsonschema:"drop any cached table list before listing"`
}

type ListTablesOutput struct {
	Tables []string `json:"tables"`
	Count  int      `json:"count"`
}

// toolSchemas returns the input and output schemas for a tool.
func toolSchemas[In, Out any](name string) (*jsonschema.Schema, *jsonschema.Schema, error) {
	in, err := jsonschema.For[In](nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create %s input schema: %w", name, err)
	}
	out, err := jsonschema.For[Out](nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create %s output schema: %w", name, err)
	}
	return in, out, nil
}

// instrument records call counts and durations for a tool handler.
func instrument[In, Out any](log *slog.Logger, name string, h mcp.ToolHandlerFor[In, Out]) mcp.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, req *mcp.CallToolRequest, in In) (*mcp.CallToolResult, Out, error) {
		start := time.Now()
		res, out, err := h(ctx, req, in)
		metrics.ToolCallDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		if err != nil {
			log.Debug("mcp/tool: call failed", "tool", name, "error", err)
			metrics.ToolCallsTotal.WithLabelValues(name, "error").Inc()
			return res, out, err
		}
		metrics.ToolCallsTotal.WithLabelValues(name, "success").Inc()
		return res, out, nil
	}
}

func RegisterAskTool(log *slog.Logger, server *mcp.Server, asker Asker) error {
	in, out, err := toolSchemas[AskInput, pipeline.Response](toolAsk)
	if err != nil {
		return err
	}
	mcp.AddTool(server, &mcp.Tool{
		Name: toolAsk,
		Description: `Answer a question about the connected database.

The question is turned into a single read-only SELECT, checked, and executed.
The result carries the tables used as context, the SQL, an explanation and
the rows. When any step fails, "error" says why and no rows are returned.`,
		InputSchema:  in,
		OutputSchema: out,
	}, instrument(log, toolAsk, func(ctx context.Context, _ *mcp.CallToolRequest, req AskInput) (*mcp.CallToolResult, pipeline.Response, error) {
		if strings.TrimSpace(req.Question) == "" {
			return nil, pipeline.Response{}, errors.New("question is required")
		}
		log.Debug("mcp/tool: handling ask", "question", req.Question)
		return nil, *asker.Run(ctx, req.Question), nil
	}))
	return nil
}

func RegisterValidateTool(log *slog.Logger, server *mcp.Server, validator pipeline.Validator) error {
	in, out, err := toolSchemas[ValidateInput, ValidateOutput](toolValidateSQL)
	if err != nil {
		return err
	}
	mcp.AddTool(server, &mcp.Tool{
		Name:         toolValidateSQL,
		Description:  "Check whether SQL is a single read-only SELECT statement. Nothing is executed.",
		InputSchema:  in,
		OutputSchema: out,
	}, instrument(log, toolValidateSQL, func(_ context.Context, _ *mcp.CallToolRequest, req ValidateInput) (*mcp.CallToolResult, ValidateOutput, error) {
		return nil, validator.Validate(req.SQL), nil
	}))
	return nil
}

func RegisterListTablesTool(log *slog.Logger, server *mcp.Server, tables catalog.TableLister) error {
	in, out, err := toolSchemas[ListTablesInput, ListTablesOutput](toolListTables)
	if err != nil {
		return err
	}
	mcp.AddTool(server, &mcp.Tool{
		Name:         toolListTables,
		Description:  "List the tables that questions can be answered from.",
		InputSchema:  in,
		OutputSchema: out,
	}, instrument(log, toolListTables, func(ctx context.Context, _ *mcp.CallToolRequest, input ListTablesInput) (*mcp.CallToolResult, ListTablesOutput, error) {
		if inv, ok := tables.(catalog.Invalidator); ok && input.Refresh {
			inv.Invalidate()
		}
		names, err := tables.ListTables(ctx)
		if err != nil {
			return nil, ListTablesOutput{}, fmt.Errorf("failed to list tables: %w", err)
		}
		if names == nil {
			names = []string{}
		}
		return nil, ListTablesOutput{Tables: names, Count: len(names)}, nil
	}))
	return nil
}
