// Package config loads runtime settings from the environment and wires the
// catalog, retriever, generator and pipeline they describe.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/kattapik/texttosql-project/pkg/catalog"
	"github.com/kattapik/texttosql-project/pkg/llm"
)

const (
	DefaultDBDriver      = "sqlite"
	DefaultDBDSN         = "data/sqlite.db"
	DefaultFallbackLimit = 5
	DefaultSampleRows    = 3
	DefaultMaxRows       = 1000
	DefaultQueryTimeout  = 30 * time.Second
)

// Config holds everything the front ends share. Zero values are replaced by
// defaults in Validate.
type Config struct {
	DBDriver string
	DBDSN    string

	LLMProvider     llm.Provider
	AnthropicAPIKey string
	// Model overrides the provider's default model.
	Model         string
	OpenAIBaseURL string
	OpenAIAPIKey  string

	FallbackLimit int
	SampleRows    int
	MaxRows       int

	// TableCacheTTL enables the table-list cache when positive. Tables
	// created or dropped within the TTL are not seen until it expires.
	TableCacheTTL time.Duration
	QueryTimeout  time.Duration

	SuggestCharts bool
}

// LoadFromEnv reads .env when present, then the process environment.
func LoadFromEnv() (*Config, error) {
	_ = godotenv.Load()
	return load(os.LookupEnv)
}

func load(lookup func(string) (string, bool)) (*Config, error) {
	get := func(keys ...string) string {
		for _, k := range keys {
			if v, ok := lookup(k); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
		return ""
	}

	cfg := &Config{
		DBDriver:        get("TEXTTOSQL_DB_DRIVER"),
		DBDSN:           get("TEXTTOSQL_DB_DSN", "DB_PATH"),
		AnthropicAPIKey: get("ANTHROPIC_API_KEY"),
		Model:           get("TEXTTOSQL_MODEL"),
		OpenAIBaseURL:   get("OPENAI_BASE_URL"),
		OpenAIAPIKey:    get("OPENAI_API_KEY"),
	}

	provider, err := llm.ProviderByName(get("TEXTTOSQL_LLM_PROVIDER"))
	if err != nil {
		return nil, err
	}
	cfg.LLMProvider = provider

	ints := []struct {
		key string
		dst *int
	}{
		{"TEXTTOSQL_FALLBACK_LIMIT", &cfg.FallbackLimit},
		{"TEXTTOSQL_SAMPLE_ROWS", &cfg.SampleRows},
		{"TEXTTOSQL_MAX_ROWS", &cfg.MaxRows},
	}
	for _, i := range ints {
		v := get(i.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", i.key, v, err)
		}
		*i.dst = n
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"TEXTTOSQL_TABLE_CACHE_TTL", &cfg.TableCacheTTL},
		{"TEXTTOSQL_QUERY_TIMEOUT", &cfg.QueryTimeout},
	}
	for _, d := range durations {
		v := get(d.key)
		if v == "" {
			continue
		}
		dur, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", d.key, v, err)
		}
		*d.dst = dur
	}

	if v := get("TEXTTOSQL_SUGGEST_CHARTS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid TEXTTOSQL_SUGGEST_CHARTS %q: %w", v, err)
		}
		cfg.SuggestCharts = b
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DBDriver == "" {
		c.DBDriver = DefaultDBDriver
	}
	if !strings.EqualFold(c.DBDriver, "clickhouse") {
		if _, err := catalog.DialectByName(c.DBDriver); err != nil {
			return err
		}
	}
	if c.DBDSN == "" {
		c.DBDSN = DefaultDBDSN
	}
	if c.LLMProvider == "" {
		c.LLMProvider = llm.ProviderAnthropic
	}
	if c.FallbackLimit < 0 {
		return errors.New("fallback limit must not be negative")
	}
	if c.FallbackLimit == 0 {
		c.FallbackLimit = DefaultFallbackLimit
	}
	if c.SampleRows < 0 {
		return errors.New("sample rows must not be negative")
	}
	if c.SampleRows == 0 {
		c.SampleRows = DefaultSampleRows
	}
	if c.MaxRows < 0 {
		return errors.New("max rows must not be negative")
	}
	if c.MaxRows == 0 {
		c.MaxRows = DefaultMaxRows
	}
	if c.TableCacheTTL < 0 {
		return errors.New("table cache ttl must not be negative")
	}
	if c.QueryTimeout < 0 {
		return errors.New("query timeout must not be negative")
	}
	if c.QueryTimeout == 0 {
		c.QueryTimeout = DefaultQueryTimeout
	}
	return nil
}

// SQLDialect is the dialect name given to the model.
func (c *Config) SQLDialect() string {
	switch strings.ToLower(c.DBDriver) {
	case "duckdb":
		return "DuckDB"
	case "postgres", "postgresql", "pgx":
		return "PostgreSQL"
	case "clickhouse":
		return "ClickHouse"
	}
	return "SQLite"
}
