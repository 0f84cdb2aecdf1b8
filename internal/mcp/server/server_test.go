package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync/atomic"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/kattapik/texttosql-project/pkg/logger"
	"github.com/kattapik/texttosql-project/pkg/pipeline"
	"github.com/kattapik/texttosql-project/pkg/retriever"
	"github.com/kattapik/texttosql-project/pkg/sqlguard"
)

type stubAsker struct {
	resp *pipeline.Response
}

func (a stubAsker) Run(_ context.Context, question string) *pipeline.Response {
	resp := *a.resp
	resp.Question = question
	return &resp
}

type stubTables struct {
	tables []string
	err    error
}

func (s stubTables) ListTables(context.Context) ([]string, error) {
	return s.tables, s.err
}

type refreshingTables struct {
	invalidated atomic.Int32
}

func (r *refreshingTables) ListTables(context.Context) ([]string, error) {
	return []string{"users"}, nil
}

func (r *refreshingTables) Invalidate() {
	r.invalidated.Add(1)
}

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(context.Context) error {
	return p.err
}

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	cfg.Logger = logger.Discard()
	if cfg.Asker == nil {
		cfg.Asker = stubAsker{resp: &pipeline.Response{Context: []pipeline.TableContext{}, Stage: pipeline.StageDone}}
	}
	if cfg.Tables == nil {
		cfg.Tables = stubTables{}
	}
	cfg.Validator = sqlguard.New()
	s, err := New(cfg)
	require.NoError(t, err)
	return s
}

func connect(t *testing.T, s *Server) *mcp.ClientSession {
	t.Helper()
	ct, st := mcp.NewInMemoryTransports()
	_, err := s.MCP().Connect(t.Context(), st, nil)
	require.NoError(t, err)

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(t.Context(), ct, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func structured[T any](t *testing.T, res *mcp.CallToolResult) T {
	t.Helper()
	data, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	var out T
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestTextToSQL_MCP_Server_Config_Validate(t *testing.T) {
	t.Parallel()

	cfg := Config{}
	require.ErrorContains(t, cfg.Validate(), "logger is required")

	cfg = Config{Logger: logger.Discard(), Asker: stubAsker{}, Tables: stubTables{}, Validator: sqlguard.New()}
	require.NoError(t, cfg.Validate())
	require.Equal(t, defaultListenAddr, cfg.ListenAddr)
	require.Equal(t, defaultReadHeaderTimeout, cfg.ReadHeaderTimeout)
	require.Equal(t, defaultShutdownTimeout, cfg.ShutdownTimeout)
}

func TestTextToSQL_MCP_Server_ListTools(t *testing.T) {
	t.Parallel()

	cs := connect(t, newTestServer(t, Config{}))
	res, err := cs.ListTools(t.Context(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	sort.Strings(names)
	require.Equal(t, []string{"ask", "list_tables", "validate_sql"}, names)
}

func TestTextToSQL_MCP_Server_ToolAsk(t *testing.T) {
	t.Parallel()

	t.Run("returns the pipeline response", func(t *testing.T) {
		t.Parallel()
		s := newTestServer(t, Config{Asker: stubAsker{resp: &pipeline.Response{
			Tier:    retriever.TierKeyword,
			Context: []pipeline.TableContext{{Table: "users", Columns: []string{"name (TEXT)"}}},
			SQL:     "SELECT name FROM users",
			Results: &pipeline.Results{Columns: []string{"name"}, Rows: [][]any{{"alice"}}},
			Stage:   pipeline.StageDone,
		}}})
		cs := connect(t, s)

		res, err := cs.CallTool(t.Context(), &mcp.CallToolParams{
			Name:      "ask",
			Arguments: map[string]any{"question": "show all users"},
		})
		require.NoError(t, err)
		require.False(t, res.IsError)

		got := structured[pipeline.Response](t, res)
		require.Equal(t, "show all users", got.Question)
		require.Equal(t, "SELECT name FROM users", got.SQL)
		require.Equal(t, []string{"name"}, got.Results.Columns)
		require.Equal(t, [][]any{{"alice"}}, got.Results.Rows)
	})

	t.Run("blank question is a tool error", func(t *testing.T) {
		t.Parallel()
		cs := connect(t, newTestServer(t, Config{}))

		res, err := cs.CallTool(t.Context(), &mcp.CallToolParams{
			Name:      "ask",
			Arguments: map[string]any{"question": "   "},
		})
		require.NoError(t, err)
		require.True(t, res.IsError)
	})
}

func TestTextToSQL_MCP_Server_ToolValidateSQL(t *testing.T) {
	t.Parallel()

	cs := connect(t, newTestServer(t, Config{}))

	res, err := cs.CallTool(t.Context(), &mcp.CallToolParams{
		Name:      "validate_sql",
		Arguments: map[string]any{"sql": "SELECT * FROM users"},
	})
	require.NoError(t, err)
	require.Equal(t, ValidateOutput{Valid: true, SQL: "SELECT * FROM users"}, structured[ValidateOutput](t, res))

	res, err = cs.CallTool(t.Context(), &mcp.CallToolParams{
		Name:      "validate_sql",
		Arguments: map[string]any{"sql": "UPDATE users SET name = 'x'"},
	})
	require.NoError(t, err)
	got := structured[ValidateOutput](t, res)
	require.False(t, got.Valid)
	require.Contains(t, got.Error, "Safety Error")
}

func TestTextToSQL_MCP_Server_ToolListTables(t *testing.T) {
	t.Parallel()

	cs := connect(t, newTestServer(t, Config{Tables: stubTables{tables: []string{"orders", "users"}}}))
	res, err := cs.CallTool(t.Context(), &mcp.CallToolParams{Name: "list_tables", Arguments: map[string]any{}})
	require.NoError(t, err)
	require.Equal(t, ListTablesOutput{Tables: []string{"orders", "users"}, Count: 2}, structured[ListTablesOutput](t, res))

	cs = connect(t, newTestServer(t, Config{Tables: stubTables{err: errors.New("database is locked")}}))
	res, err = cs.CallTool(t.Context(), &mcp.CallToolParams{Name: "list_tables", Arguments: map[string]any{}})
	require.NoError(t, err)
	require.True(t, res.IsError)

	tables := &refreshingTables{}
	cs = connect(t, newTestServer(t, Config{Tables: tables}))
	_, err = cs.CallTool(t.Context(), &mcp.CallToolParams{Name: "list_tables", Arguments: map[string]any{}})
	require.NoError(t, err)
	require.Zero(t, tables.invalidated.Load())
	res, err = cs.CallTool(t.Context(), &mcp.CallToolParams{Name: "list_tables", Arguments: map[string]any{"refresh": true}})
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.EqualValues(t, 1, tables.invalidated.Load())
}

func TestTextToSQL_MCP_Server_Auth(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, Config{AllowedTokens: []string{"secret"}})

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing header"},
		{name: "invalid format", header: "Basic abc"},
		{name: "empty token", header: "Bearer  "},
		{name: "invalid token", header: "Bearer nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			s.Handler().ServeHTTP(rr, req)
			require.Equal(t, http.StatusUnauthorized, rr.Code)
			require.Equal(t, "Bearer", rr.Header().Get("WWW-Authenticate"))
		})
	}

	t.Run("health endpoints skip auth", func(t *testing.T) {
		t.Parallel()
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		require.Equal(t, http.StatusOK, rr.Code)
	})
}

func TestTextToSQL_MCP_Server_Readyz(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, Config{Ready: stubPinger{}})
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok\n", rr.Body.String())

	s = newTestServer(t, Config{Ready: stubPinger{err: errors.New("connection refused")}})
	rr = httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
