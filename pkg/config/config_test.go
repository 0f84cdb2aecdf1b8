package config

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/kattapik/texttosql-project/pkg/catalog"
	"github.com/kattapik/texttosql-project/pkg/llm"
	"github.com/kattapik/texttosql-project/pkg/logger"
	"github.com/kattapik/texttosql-project/pkg/pipeline"
	"github.com/kattapik/texttosql-project/pkg/retriever"
)

func envLookup(env map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func TestTextToSQL_Config_Load(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()
		cfg, err := load(envLookup(nil))
		require.NoError(t, err)
		require.Equal(t, &Config{
			DBDriver:      DefaultDBDriver,
			DBDSN:         DefaultDBDSN,
			LLMProvider:   llm.ProviderAnthropic,
			FallbackLimit: DefaultFallbackLimit,
			SampleRows:    DefaultSampleRows,
			MaxRows:       DefaultMaxRows,
			QueryTimeout:  DefaultQueryTimeout,
		}, cfg)
		require.Equal(t, "SQLite", cfg.SQLDialect())
	})

	t.Run("overrides", func(t *testing.T) {
		t.Parallel()
		cfg, err := load(envLookup(map[string]string{
			"TEXTTOSQL_DB_DRIVER":       "postgres",
			"TEXTTOSQL_DB_DSN":          "postgres://localhost/shop",
			"DB_PATH":                   "ignored.db",
			"TEXTTOSQL_LLM_PROVIDER":    "openai",
			"TEXTTOSQL_MODEL":           "llama3",
			"OPENAI_BASE_URL":           "http://localhost:11434/v1",
			"OPENAI_API_KEY":            " key ",
			"TEXTTOSQL_FALLBACK_LIMIT":  "2",
			"TEXTTOSQL_SAMPLE_ROWS":     "1",
			"TEXTTOSQL_MAX_ROWS":        "50",
			"TEXTTOSQL_TABLE_CACHE_TTL": "30s",
			"TEXTTOSQL_QUERY_TIMEOUT":   "5s",
			"TEXTTOSQL_SUGGEST_CHARTS":  "true",
		}))
		require.NoError(t, err)
		require.Equal(t, &Config{
			DBDriver:      "postgres",
			DBDSN:         "postgres://localhost/shop",
			LLMProvider:   llm.ProviderOpenAI,
			Model:         "llama3",
			OpenAIBaseURL: "http://localhost:11434/v1",
			OpenAIAPIKey:  "key",
			FallbackLimit: 2,
			SampleRows:    1,
			MaxRows:       50,
			TableCacheTTL: 30 * time.Second,
			QueryTimeout:  5 * time.Second,
			SuggestCharts: true,
		}, cfg)
		require.Equal(t, "PostgreSQL", cfg.SQLDialect())
	})

	t.Run("db path fallback", func(t *testing.T) {
		t.Parallel()
		cfg, err := load(envLookup(map[string]string{"DB_PATH": "shop.db"}))
		require.NoError(t, err)
		require.Equal(t, "shop.db", cfg.DBDSN)
	})

	t.Run("invalid values", func(t *testing.T) {
		t.Parallel()
		tests := []struct {
			env     map[string]string
			wantErr string
		}{
			{map[string]string{"TEXTTOSQL_DB_DRIVER": "oracle"}, "unsupported database driver"},
			{map[string]string{"TEXTTOSQL_LLM_PROVIDER": "gemini"}, "unsupported LLM provider"},
			{map[string]string{"TEXTTOSQL_FALLBACK_LIMIT": "many"}, "invalid TEXTTOSQL_FALLBACK_LIMIT"},
			{map[string]string{"TEXTTOSQL_FALLBACK_LIMIT": "-1"}, "fallback limit must not be negative"},
			{map[string]string{"TEXTTOSQL_MAX_ROWS": "-5"}, "max rows must not be negative"},
			{map[string]string{"TEXTTOSQL_QUERY_TIMEOUT": "soon"}, "invalid TEXTTOSQL_QUERY_TIMEOUT"},
			{map[string]string{"TEXTTOSQL_TABLE_CACHE_TTL": "-1m"}, "table cache ttl must not be negative"},
			{map[string]string{"TEXTTOSQL_SUGGEST_CHARTS": "maybe"}, "invalid TEXTTOSQL_SUGGEST_CHARTS"},
		}
		for _, tt := range tests {
			_, err := load(envLookup(tt.env))
			require.ErrorContains(t, err, tt.wantErr)
		}
	})
}

func TestTextToSQL_Config_NewLLMClient(t *testing.T) {
	t.Parallel()

	log := logger.Discard()

	c, err := NewLLMClient(log, &Config{LLMProvider: llm.ProviderAnthropic, AnthropicAPIKey: "k"})
	require.NoError(t, err)
	require.IsType(t, &llm.AnthropicClient{}, c)

	_, err = NewLLMClient(log, &Config{LLMProvider: llm.ProviderAnthropic})
	require.ErrorContains(t, err, "api key is required")

	c, err = NewLLMClient(log, &Config{LLMProvider: llm.ProviderOpenAI, OpenAIBaseURL: "http://localhost/v1"})
	require.NoError(t, err)
	require.IsType(t, &llm.OpenAIClient{}, c)

	_, err = NewLLMClient(log, &Config{LLMProvider: "gemini"})
	require.Error(t, err)
}

type cannedClient struct {
	reply string
}

func (c cannedClient) Complete(context.Context, string, string) (string, error) {
	return c.reply, nil
}

func newShopDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shop.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(`CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO users (name) VALUES ('alice'), ('bob')`)
	require.NoError(t, err)
	return path
}

func TestTextToSQL_Config_Wire(t *testing.T) {
	t.Parallel()

	log := logger.Discard()
	cfg := &Config{DBDSN: newShopDB(t), TableCacheTTL: time.Minute}
	require.NoError(t, cfg.Validate())

	cat, err := OpenCatalog(t.Context(), log, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cat.Close() })
	require.IsType(t, &catalog.Cached{}, cat)

	app, err := Wire(log, cfg, cat, cannedClient{reply: `{"sql": "SELECT name FROM users ORDER BY id", "explanation": "Lists users.", "is_safe": true}`})
	require.NoError(t, err)

	resp := app.Pipeline.Run(t.Context(), "show all users")
	require.False(t, resp.Failed(), resp.Error)
	require.Equal(t, retriever.TierKeyword, resp.Tier)
	require.Equal(t, []pipeline.TableContext{{Table: "users", Columns: []string{"id (INTEGER)", "name (TEXT)"}}}, resp.Context)
	require.Equal(t, []string{"name"}, resp.Results.Columns)
	require.Equal(t, [][]any{{"alice"}, {"bob"}}, resp.Results.Rows)

	require.True(t, app.Validator.Validate("SELECT 1").Valid)
}

func TestTextToSQL_Config_Wire_RejectsStatementsHiddenInQuotes(t *testing.T) {
	t.Parallel()

	log := logger.Discard()
	cfg := &Config{DBDSN: newShopDB(t)}
	require.NoError(t, cfg.Validate())

	cat, err := OpenCatalog(t.Context(), log, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cat.Close() })

	reply := `{"sql": "SELECT 1 AS [a'] ; ATTACH DATABASE 'x.db' AS x; SELECT 1 AS [']", "explanation": "Lists users.", "is_safe": true}`
	app, err := Wire(log, cfg, cat, cannedClient{reply: reply})
	require.NoError(t, err)
	require.True(t, app.Validator.Validate("SELECT [name] FROM users").Valid)

	resp := app.Pipeline.Run(t.Context(), "show all users")
	require.True(t, resp.Failed())
	require.Equal(t, pipeline.KindSafetyViolation, resp.Kind)
	require.Equal(t, "Lists users.", resp.Explanation)
	require.Nil(t, resp.Results)

	tables, err := cat.ListTables(t.Context())
	require.NoError(t, err)
	require.Equal(t, []string{"users"}, tables)
}

func TestTextToSQL_Config_Wire_RequiresCatalog(t *testing.T) {
	t.Parallel()

	_, err := Wire(logger.Discard(), &Config{}, nil, cannedClient{})
	require.ErrorContains(t, err, "catalog is required")
}
