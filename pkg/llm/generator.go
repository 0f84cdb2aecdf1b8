package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/kattapik/texttosql-project/pkg/catalog"
	"github.com/kattapik/texttosql-project/pkg/metrics"
	"github.com/kattapik/texttosql-project/pkg/pipeline"
)

const defaultDialect = "SQLite"

// generateResponse is the reply expected from the generate prompt.
type generateResponse struct {
	SQL         string `json:"sql" jsonschema:"a single read-only SQL SELECT statement, or an empty string when the question cannot be answered from the schema"`
	Explanation string `json:"explanation,omitempty" jsonschema:"a short explanation of what the query does"`
	IsSafe      *bool  `json:"is_safe,omitempty" jsonschema:"false if the request would modify data or schema"`
}

var chartTypes = map[string]bool{
	"bar":      true,
	"line":     true,
	"pie":      true,
	"doughnut": true,
	"scatter":  true,
	"none":     true,
}

type Config struct {
	Logger *slog.Logger
	Client Client
	// Provider labels metrics.
	Provider Provider
	// Dialect names the SQL dialect the model should write.
	Dialect string
	// Prompts defaults to the embedded prompts.
	Prompts *Prompts
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Client == nil {
		return errors.New("client is required")
	}
	if c.Provider == "" {
		c.Provider = ProviderAnthropic
	}
	if c.Dialect == "" {
		c.Dialect = defaultDialect
	}
	if c.Prompts == nil {
		p, err := LoadPrompts()
		if err != nil {
			return err
		}
		c.Prompts = p
	}
	return nil
}

// Generator implements pipeline.SQLGenerator, retriever.TableGuesser and
// pipeline.ChartSuggester.
type Generator struct {
	log *slog.Logger
	cfg Config

	generatePrompt string
	guessPrompt    string
	chartPrompt    string

	generateSchema *jsonschema.Resolved
	guessSchema    *jsonschema.Resolved
	chartSchema    *jsonschema.Resolved
}

func NewGenerator(cfg Config) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate generator config: %w", err)
	}
	g := &Generator{log: cfg.Logger, cfg: cfg}

	var (
		schemaJSON string
		err        error
	)
	if g.generateSchema, schemaJSON, err = responseSchema[generateResponse](); err != nil {
		return nil, fmt.Errorf("failed to build generate schema: %w", err)
	}
	g.generatePrompt = strings.NewReplacer("{{DIALECT}}", cfg.Dialect, "{{SCHEMA}}", schemaJSON).Replace(cfg.Prompts.Generate)

	if g.guessSchema, schemaJSON, err = responseSchema[[]string](); err != nil {
		return nil, fmt.Errorf("failed to build guess schema: %w", err)
	}
	g.guessPrompt = strings.ReplaceAll(cfg.Prompts.Guess, "{{SCHEMA}}", schemaJSON)

	if g.chartSchema, schemaJSON, err = responseSchema[pipeline.Chart](); err != nil {
		return nil, fmt.Errorf("failed to build chart schema: %w", err)
	}
	g.chartPrompt = strings.ReplaceAll(cfg.Prompts.Chart, "{{SCHEMA}}", schemaJSON)

	return g, nil
}

// responseSchema infers the JSON schema for T, resolved for validation and
// rendered for the prompt. Unknown object properties are tolerated.
func responseSchema[T any]() (*jsonschema.Resolved, string, error) {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		return nil, "", err
	}
	schema.AdditionalProperties = nil
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, "", err
	}
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, "", err
	}
	return resolved, string(data), nil
}

// GenerateSQL asks the model for SQL answering question. Provider failures
// are returned as errors; a reply without usable SQL is a GenerationResult
// with an empty SQL and the reason in Error.
func (g *Generator) GenerateSQL(ctx context.Context, question string, schemas []catalog.SchemaInfo) (pipeline.GenerationResult, error) {
	reply, err := g.complete(ctx, "generate", g.generatePrompt, buildGenerateUserPrompt(question, schemas))
	if err != nil {
		return pipeline.GenerationResult{}, err
	}

	var parsed generateResponse
	if err := decodeReply(reply, '{', g.generateSchema, &parsed); err != nil {
		g.log.Warn("llm: could not parse generate response", "error", err)
		return pipeline.GenerationResult{Error: "could not parse model response: " + err.Error()}, nil
	}

	res := pipeline.GenerationResult{
		SQL:         cleanSQL(parsed.SQL),
		Explanation: strings.TrimSpace(parsed.Explanation),
		IsSafe:      true,
	}
	if parsed.IsSafe != nil {
		res.IsSafe = *parsed.IsSafe
	}
	if res.SQL == "" {
		res.IsSafe = false
		res.Error = "model returned no SQL"
		if res.Explanation != "" {
			res.Error += ": " + res.Explanation
		}
	}
	return res, nil
}

// GuessTables asks the model which tables are relevant. The names are
// returned as given; callers filter them against the catalog.
func (g *Generator) GuessTables(ctx context.Context, question string, tables []string) ([]string, error) {
	user := fmt.Sprintf("User question: %q\n\nAvailable tables: %s", sanitize(question), sanitize(strings.Join(tables, ", ")))
	reply, err := g.complete(ctx, "guess", g.guessPrompt, user)
	if err != nil {
		return nil, err
	}
	var guessed []string
	if err := decodeReply(reply, '[', g.guessSchema, &guessed); err != nil {
		return nil, fmt.Errorf("failed to parse table guess: %w", err)
	}
	return guessed, nil
}

// SuggestChart returns nil when the model prefers a table.
func (g *Generator) SuggestChart(ctx context.Context, question string, columns []string) (*pipeline.Chart, error) {
	cols, err := json.Marshal(columns)
	if err != nil {
		return nil, err
	}
	user := fmt.Sprintf("User question: %q\n\nColumns: %s", sanitize(question), sanitize(string(cols)))
	reply, err := g.complete(ctx, "chart", g.chartPrompt, user)
	if err != nil {
		return nil, err
	}

	var chart pipeline.Chart
	if err := decodeReply(reply, '{', g.chartSchema, &chart); err != nil {
		return nil, fmt.Errorf("failed to parse chart suggestion: %w", err)
	}
	chart.ChartType = strings.ToLower(strings.TrimSpace(chart.ChartType))
	if !chartTypes[chart.ChartType] {
		return nil, fmt.Errorf("unsupported chart type %q", chart.ChartType)
	}
	if chart.ChartType == "none" {
		return nil, nil
	}
	return &chart, nil
}

func (g *Generator) complete(ctx context.Context, call, system, user string) (string, error) {
	provider := string(g.cfg.Provider)
	start := time.Now()
	reply, err := g.cfg.Client.Complete(ctx, sanitize(system), sanitize(user))
	metrics.LLMRequestDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(provider, "error").Inc()
		g.log.Warn("llm: completion failed", "call", call, "error", err)
		return "", err
	}
	metrics.LLMRequestsTotal.WithLabelValues(provider, "success").Inc()
	return reply, nil
}

// decodeReply extracts a JSON value from reply, checks it against schema and
// decodes it into out.
func decodeReply(reply string, open byte, schema *jsonschema.Resolved, out any) error {
	raw := extractJSON(reply, open)
	if raw == "" {
		return errors.New("no JSON found in response")
	}
	var instance any
	if err := json.Unmarshal([]byte(raw), &instance); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	// Models often send null for fields they consider not applicable.
	if obj, ok := instance.(map[string]any); ok {
		for k, v := range obj {
			if v == nil {
				delete(obj, k)
			}
		}
	}
	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("response does not match schema: %w", err)
	}
	return json.Unmarshal([]byte(raw), out)
}

func buildGenerateUserPrompt(question string, schemas []catalog.SchemaInfo) string {
	var sb strings.Builder
	sb.WriteString("## Schema context\n")
	if len(schemas) == 0 {
		sb.WriteString("\nNo schema context is available for this question.\n")
	}
	for _, info := range schemas {
		fmt.Fprintf(&sb, "\nTable: %s\nColumns: %s\n", info.TableName, strings.Join(info.Columns, ", "))
		if len(info.SampleRows) > 0 {
			rows, err := json.Marshal(info.SampleRows)
			if err == nil {
				fmt.Fprintf(&sb, "Sample rows: %s\n", rows)
			}
		}
	}
	fmt.Fprintf(&sb, "\n## User question\n\n%q\n", question)
	return sb.String()
}
