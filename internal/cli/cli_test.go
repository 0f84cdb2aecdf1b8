package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kattapik/texttosql-project/pkg/catalog"
	"github.com/kattapik/texttosql-project/pkg/pipeline"
	"github.com/kattapik/texttosql-project/pkg/retriever"
)

type askerFunc func(ctx context.Context, question string) *pipeline.Response

func (f askerFunc) Run(ctx context.Context, question string) *pipeline.Response {
	return f(ctx, question)
}

func okResponse(question string) *pipeline.Response {
	return &pipeline.Response{
		Question: question,
		Tier:     retriever.TierKeyword,
		Context:  []pipeline.TableContext{{Table: "users", Columns: []string{"id (INTEGER)", "name (TEXT)"}}},
		SQL:      "SELECT id, name FROM users",
		Results: &pipeline.Results{
			Columns: []string{"id", "name"},
			Rows:    [][]any{{int64(1), "alice"}, {int64(2), nil}},
		},
		Stage:     pipeline.StageDone,
		ElapsedMS: 12,
	}
}

func TestTextToSQL_CLI_PrintResponse(t *testing.T) {
	t.Parallel()

	t.Run("text", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		resp := okResponse("show all users")
		resp.Explanation = "Lists users."
		require.NoError(t, printResponse(&buf, resp, false))

		out := buf.String()
		require.Contains(t, out, "Context (keyword): users")
		require.Contains(t, out, "SQL: SELECT id, name FROM users")
		require.Contains(t, out, "Explanation: Lists users.")
		require.Contains(t, out, "alice")
		require.Contains(t, out, "NULL")
		require.Contains(t, out, "2 row(s) in 12ms")
	})

	t.Run("truncated and chart", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		resp := okResponse("q")
		resp.Results.Truncated = true
		resp.Chart = &pipeline.Chart{ChartType: "bar", XColumn: "name", YColumns: []string{"id"}}
		require.NoError(t, printResponse(&buf, resp, false))
		require.Contains(t, buf.String(), "2 row(s), truncated in 12ms")
		require.Contains(t, buf.String(), "Suggested chart: bar of id by name")
	})

	t.Run("failure prints what was gathered", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		resp := &pipeline.Response{
			Question: "drop it",
			Context:  []pipeline.TableContext{},
			SQL:      "DROP TABLE users",
			Error:    "Validation Failed: Safety Error: Forbidden DDL/DML command found 'DROP'",
			Stage:    pipeline.StageValidate,
			Kind:     pipeline.KindSafetyViolation,
		}
		require.NoError(t, printResponse(&buf, resp, false))
		require.Equal(t, "SQL: DROP TABLE users\n", buf.String())
	})

	t.Run("json", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		require.NoError(t, printResponse(&buf, okResponse("show all users"), true))
		var got map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		require.Equal(t, "show all users", got["query"])
		require.Equal(t, "done", got["stage"])
	})
}

func TestTextToSQL_CLI_FormatCell(t *testing.T) {
	t.Parallel()

	require.Equal(t, "NULL", formatCell(nil))
	require.Equal(t, "abc", formatCell("abc"))
	require.Equal(t, "abc", formatCell([]byte("abc")))
	require.Equal(t, "1.5", formatCell(1.5))
	require.Equal(t, "42", formatCell(int64(42)))
	require.Equal(t, "true", formatCell(true))
}

func TestTextToSQL_CLI_Repl(t *testing.T) {
	t.Parallel()

	var asked []string
	asker := askerFunc(func(_ context.Context, q string) *pipeline.Response {
		asked = append(asked, q)
		if q == "bad" {
			return &pipeline.Response{Question: q, Context: []pipeline.TableContext{}, Error: "Failed to generate SQL: no SQL generated", Kind: pipeline.KindGenerationFailure}
		}
		return okResponse(q)
	})

	var out bytes.Buffer
	in := strings.NewReader("show all users\n\nbad\nQUIT\nnever asked\n")
	require.NoError(t, repl(t.Context(), in, &out, asker, false))

	require.Equal(t, []string{"show all users", "bad"}, asked)
	require.Contains(t, out.String(), "alice")
	require.Contains(t, out.String(), "Error: Failed to generate SQL: no SQL generated")
}

func TestTextToSQL_CLI_Repl_EOF(t *testing.T) {
	t.Parallel()

	asker := askerFunc(func(_ context.Context, q string) *pipeline.Response { return okResponse(q) })
	var out bytes.Buffer
	require.NoError(t, repl(t.Context(), strings.NewReader("show all users"), &out, asker, true))
	require.Contains(t, out.String(), `"query": "show all users"`)
}

func TestTextToSQL_CLI_ReadQuestions(t *testing.T) {
	t.Parallel()

	got, err := readQuestions(strings.NewReader("# demo questions\nshow all users\n\n   top 5 products by price  \n"))
	require.NoError(t, err)
	require.Equal(t, []string{"show all users", "top 5 products by price"}, got)
}

func TestTextToSQL_CLI_RunBatch(t *testing.T) {
	t.Parallel()

	var inFlight, maxInFlight atomic.Int32
	asker := askerFunc(func(_ context.Context, q string) *pipeline.Response {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return okResponse(q)
	})

	questions := []string{"q1", "q2", "q3", "q4", "q5", "q6", "q7", "q8"}
	responses, err := runBatch(t.Context(), asker, questions, 3)
	require.NoError(t, err)
	require.Len(t, responses, len(questions))
	for i, resp := range responses {
		require.Equal(t, questions[i], resp.Question)
	}
	require.LessOrEqual(t, maxInFlight.Load(), int32(3))

	var buf bytes.Buffer
	require.NoError(t, writeBatch(&buf, responses[:2]))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[1], `"query":"q2"`)
}

type fakeCatalog struct {
	tables []string
	err    error
}

func (f fakeCatalog) ListTables(context.Context) ([]string, error) {
	return f.tables, f.err
}

func (f fakeCatalog) DescribeTables(_ context.Context, names []string) ([]catalog.SchemaInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	infos := make([]catalog.SchemaInfo, 0, len(names))
	for _, n := range names {
		infos = append(infos, catalog.SchemaInfo{TableName: n, Columns: []string{"id (INTEGER)"}})
	}
	return infos, nil
}

func TestTextToSQL_CLI_Tables(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, listTables(t.Context(), &buf, fakeCatalog{tables: []string{"orders", "users"}}, false))
	require.Equal(t, "orders\nusers\n", buf.String())

	buf.Reset()
	require.NoError(t, listTables(t.Context(), &buf, fakeCatalog{}, true))
	require.Equal(t, "[]\n", buf.String())

	buf.Reset()
	require.NoError(t, describeTables(t.Context(), &buf, fakeCatalog{}, []string{"users", "orders"}, false))
	require.Equal(t, "users\n  id (INTEGER)\n\norders\n  id (INTEGER)\n", buf.String())

	err := listTables(t.Context(), &buf, fakeCatalog{err: errors.New("no such database")}, false)
	require.ErrorContains(t, err, "no such database")
}

func TestTextToSQL_CLI_ValidateCmd(t *testing.T) {
	t.Parallel()

	run := func(args ...string) (string, error) {
		cmd := NewRootCmd("test")
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetErr(&out)
		cmd.SetArgs(args)
		err := cmd.Execute()
		return out.String(), err
	}

	out, err := run("validate", "SELECT * FROM users")
	require.NoError(t, err)
	require.Equal(t, "valid\n", out)

	_, err = run("validate", "DELETE FROM users")
	require.ErrorContains(t, err, "Safety Error")

	out, err = run("--json", "validate", "SELECT 1")
	require.NoError(t, err)
	require.JSONEq(t, `{"is_valid": true, "sql": "SELECT 1"}`, out)
}
