// Package pipeline answers a natural-language question with the results of a
// single read-only SQL query.
//
// A run moves through retrieve, generate, validate, safety and execute. Each
// failure is terminal: nothing is retried, and the response carries whatever
// was gathered before the failing stage along with one error message.
// Generated SQL reaches the database only after it passed the validator and
// the generator marked it safe; neither check replaces the other.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kattapik/texttosql-project/pkg/catalog"
	"github.com/kattapik/texttosql-project/pkg/metrics"
)

const (
	msgQueryRequired = "query is required"
	msgUnsafe        = "Query identified as unsafe (Modification detected)."
	msgInternal      = "internal error while processing the query"
)

type Config struct {
	Logger    *slog.Logger
	Retriever ContextRetriever
	Generator SQLGenerator
	Validator Validator
	Executor  catalog.QueryExecutor

	// Charts is optional. When set, successful results get a chart
	// suggestion; a failed suggestion is logged and ignored.
	Charts ChartSuggester

	// QueryTimeout bounds execution when positive.
	QueryTimeout time.Duration

	Clock clockwork.Clock
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Retriever == nil {
		return errors.New("retriever is required")
	}
	if c.Generator == nil {
		return errors.New("generator is required")
	}
	if c.Validator == nil {
		return errors.New("validator is required")
	}
	if c.Executor == nil {
		return errors.New("executor is required")
	}
	if c.QueryTimeout < 0 {
		return errors.New("query timeout must not be negative")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Pipeline holds no per-request state and is safe for concurrent use.
type Pipeline struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate pipeline config: %w", err)
	}
	return &Pipeline{
		log: cfg.Logger,
		cfg: cfg,
	}, nil
}

// Run never returns nil and never panics; every failure is reported in the
// response.
func (p *Pipeline) Run(ctx context.Context, question string) (resp *Response) {
	start := p.cfg.Clock.Now()
	resp = &Response{
		Question: question,
		Context:  []TableContext{},
		Stage:    StageRetrieve,
	}

	defer func() {
		if r := recover(); r != nil {
			p.log.Error("pipeline: panic", "stage", resp.Stage, "panic", r, "stack", string(debug.Stack()))
			resp.fail(resp.Stage, KindInternal, msgInternal)
		}
		resp.ElapsedMS = p.cfg.Clock.Since(start).Milliseconds()
		outcome := string(resp.Kind)
		if outcome == "" {
			outcome = "success"
		}
		metrics.PipelineRunsTotal.WithLabelValues(outcome).Inc()
		p.log.Info("pipeline: run completed", "stage", resp.Stage, "kind", resp.Kind, "tier", resp.Tier, "elapsed_ms", resp.ElapsedMS)
	}()

	if strings.TrimSpace(question) == "" {
		return resp.fail(StageRetrieve, KindInvalidRequest, msgQueryRequired)
	}

	// Step 1: schema context. Retrieval degrades instead of failing.
	p.log.Debug("pipeline: step 1 - retrieving context", "question", question)
	stageStart := p.cfg.Clock.Now()
	retrieved := p.cfg.Retriever.Retrieve(ctx, question)
	p.observe(StageRetrieve, stageStart)
	var schemas []catalog.SchemaInfo
	if retrieved != nil {
		resp.Tier = retrieved.Tier
		schemas = retrieved.Context
	}
	if schemas == nil {
		schemas = []catalog.SchemaInfo{}
	}
	for _, info := range schemas {
		resp.Context = append(resp.Context, TableContext{Table: info.TableName, Columns: info.Columns})
	}

	// Step 2: generation.
	resp.Stage = StageGenerate
	p.log.Debug("pipeline: step 2 - generating SQL", "tables", len(schemas))
	stageStart = p.cfg.Clock.Now()
	gen, err := p.cfg.Generator.GenerateSQL(ctx, question, schemas)
	p.observe(StageGenerate, stageStart)
	if err != nil {
		p.log.Warn("pipeline: generation failed", "error", err)
		return resp.fail(StageGenerate, KindGenerationFailure, "Failed to generate SQL: "+err.Error())
	}
	resp.Explanation = gen.Explanation
	if strings.TrimSpace(gen.SQL) == "" {
		reason := gen.Error
		if reason == "" {
			reason = "no SQL generated"
		}
		p.log.Warn("pipeline: generation returned no SQL", "reason", reason)
		return resp.fail(StageGenerate, KindGenerationFailure, "Failed to generate SQL: "+reason)
	}
	resp.SQL = gen.SQL

	// Step 3: deterministic validation.
	resp.Stage = StageValidate
	p.log.Debug("pipeline: step 3 - validating SQL", "sql", gen.SQL)
	validation := p.cfg.Validator.Validate(gen.SQL)
	if !validation.Valid {
		kind := KindSafetyViolation
		if !validation.SafetyViolation() {
			kind = KindParseFailure
		}
		p.log.Warn("pipeline: validation failed", "kind", validation.Kind, "error", validation.Error, "sql", gen.SQL)
		return resp.fail(StageValidate, kind, "Validation Failed: "+validation.Error)
	}

	// Step 4: the generator's own safety verdict.
	resp.Stage = StageSafety
	if !gen.IsSafe {
		p.log.Warn("pipeline: generator flagged query as unsafe", "sql", gen.SQL)
		return resp.fail(StageSafety, KindUnsafeFlag, msgUnsafe)
	}

	// Step 5: execution. The database error is the user-facing message.
	resp.Stage = StageExecute
	p.log.Debug("pipeline: step 5 - executing SQL")
	execCtx := ctx
	if p.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, p.cfg.QueryTimeout)
		defer cancel()
	}
	stageStart = p.cfg.Clock.Now()
	result, err := p.cfg.Executor.ExecuteReadOnlyQuery(execCtx, gen.SQL)
	p.observe(StageExecute, stageStart)
	if err != nil {
		p.log.Warn("pipeline: execution failed", "error", err)
		return resp.fail(StageExecute, KindExecutionFailure, err.Error())
	}
	if result == nil {
		result = &catalog.ExecutionResult{}
	}
	rows := result.Rows
	if rows == nil {
		rows = [][]any{}
	}
	columns := result.Columns
	if columns == nil {
		columns = []string{}
	}
	resp.Results = &Results{Columns: columns, Rows: rows, Truncated: result.Truncated}
	resp.Stage = StageDone

	if p.cfg.Charts != nil && len(rows) > 0 {
		chart, err := p.cfg.Charts.SuggestChart(ctx, question, columns)
		if err != nil {
			p.log.Debug("pipeline: chart suggestion failed", "error", err)
		} else {
			resp.Chart = chart
		}
	}
	return resp
}

func (p *Pipeline) observe(stage Stage, start time.Time) {
	metrics.PipelineStageDuration.WithLabelValues(string(stage)).Observe(p.cfg.Clock.Since(start).Seconds())
}
