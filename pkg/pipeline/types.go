package pipeline

import (
	"context"

	"github.com/kattapik/texttosql-project/pkg/catalog"
	"github.com/kattapik/texttosql-project/pkg/retriever"
	"github.com/kattapik/texttosql-project/pkg/sqlguard"
)

// GenerationResult is a generator's answer. IsSafe is the generator's own
// opinion and is never trusted on its own.
type GenerationResult struct {
	SQL         string `json:"sql"`
	Explanation string `json:"explanation,omitempty"`
	IsSafe      bool   `json:"is_safe"`
	// Error explains an empty SQL.
	Error string `json:"error,omitempty"`
}

// SQLGenerator turns a question and its schema context into SQL. An empty
// schemas slice means no context could be found.
type SQLGenerator interface {
	GenerateSQL(ctx context.Context, question string, schemas []catalog.SchemaInfo) (GenerationResult, error)
}

type Validator interface {
	Validate(sql string) sqlguard.Result
}

type ContextRetriever interface {
	Retrieve(ctx context.Context, question string) *retriever.Result
}

// Chart is a suggested visualization of a result set.
type Chart struct {
	ChartType string   `json:"chart_type"`
	Title     string   `json:"title,omitempty"`
	XColumn   string   `json:"x_column,omitempty"`
	YColumns  []string `json:"y_columns,omitempty"`
	Labels    []string `json:"labels,omitempty"`
}

// ChartSuggester proposes a chart for a result. A nil chart means a table is
// the better presentation.
type ChartSuggester interface {
	SuggestChart(ctx context.Context, question string, columns []string) (*Chart, error)
}

type Stage string

const (
	StageRetrieve Stage = "retrieve"
	StageGenerate Stage = "generate"
	StageValidate Stage = "validate"
	StageSafety   Stage = "safety"
	StageExecute  Stage = "execute"
	StageDone     Stage = "done"
)

// Kind classifies a terminal failure.
type Kind string

const (
	KindNone              Kind = ""
	KindInvalidRequest    Kind = "invalid_request"
	KindGenerationFailure Kind = "generation_failure"
	KindParseFailure      Kind = "parse_failure"
	KindSafetyViolation   Kind = "safety_violation"
	KindUnsafeFlag        Kind = "unsafe_flag"
	KindExecutionFailure  Kind = "execution_failure"
	KindInternal          Kind = "internal_error"
)

// TableContext is the part of a SchemaInfo reported back to callers.
type TableContext struct {
	Table   string   `json:"table"`
	Columns []string `json:"columns"`
}

type Results struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	Truncated bool     `json:"truncated,omitempty"`
}

// Response is the outcome of one pipeline run. Exactly one of Results and
// Error is set. On failure every field gathered before the failing stage is
// kept.
type Response struct {
	Question    string         `json:"query"`
	Tier        retriever.Tier `json:"tier"`
	Context     []TableContext `json:"context"`
	SQL         string         `json:"sql,omitempty"`
	Explanation string         `json:"explanation,omitempty"`
	Results     *Results       `json:"results,omitempty"`
	Chart       *Chart         `json:"chart,omitempty"`
	Error       string         `json:"error,omitempty"`

	// Stage is the last stage reached; StageDone on success.
	Stage     Stage `json:"stage"`
	Kind      Kind  `json:"kind,omitempty"`
	ElapsedMS int64 `json:"elapsed_ms"`
}

func (r *Response) Failed() bool {
	return r.Error != ""
}

func (r *Response) fail(stage Stage, kind Kind, msg string) *Response {
	r.Stage = stage
	r.Kind = kind
	r.Error = msg
	r.Results = nil
	return r
}
