package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/kattapik/texttosql-project/pkg/catalog"
	"github.com/kattapik/texttosql-project/pkg/llm"
	"github.com/kattapik/texttosql-project/pkg/pipeline"
	"github.com/kattapik/texttosql-project/pkg/retriever"
	"github.com/kattapik/texttosql-project/pkg/sqlguard"
)

// App is the set of components behind every front end.
type App struct {
	Catalog   catalog.Catalog
	Validator *sqlguard.Validator
	Generator *llm.Generator
	Pipeline  *pipeline.Pipeline
}

// OpenCatalog connects to the configured database, wrapping it in the
// table-list cache when a TTL is set.
func OpenCatalog(ctx context.Context, log *slog.Logger, cfg *Config) (catalog.Catalog, error) {
	cat, err := catalog.Open(ctx, log, catalog.Options{
		Driver:     cfg.DBDriver,
		DSN:        cfg.DBDSN,
		SampleRows: cfg.SampleRows,
		MaxRows:    cfg.MaxRows,
	})
	if err != nil {
		return nil, err
	}
	if cfg.TableCacheTTL <= 0 {
		return cat, nil
	}
	cached, err := catalog.NewCached(cat, cfg.TableCacheTTL)
	if err != nil {
		_ = cat.Close()
		return nil, err
	}
	return cached, nil
}

// NewLLMClient builds the client for the configured provider.
func NewLLMClient(log *slog.Logger, cfg *Config) (llm.Client, error) {
	switch cfg.LLMProvider {
	case llm.ProviderAnthropic:
		c, err := llm.NewAnthropicClient(llm.AnthropicConfig{
			Logger: log,
			APIKey: cfg.AnthropicAPIKey,
			Model:  anthropic.Model(cfg.Model),
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	case llm.ProviderOpenAI:
		c, err := llm.NewOpenAIClient(llm.OpenAIConfig{
			Logger:  log,
			BaseURL: cfg.OpenAIBaseURL,
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.Model,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.LLMProvider)
}

// NewApp opens the catalog and wires the pipeline around it. The caller
// owns the returned App and must Close it.
func NewApp(ctx context.Context, log *slog.Logger, cfg *Config) (*App, error) {
	client, err := NewLLMClient(log, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	cat, err := OpenCatalog(ctx, log, cfg)
	if err != nil {
		return nil, err
	}
	app, err := Wire(log, cfg, cat, client)
	if err != nil {
		_ = cat.Close()
		return nil, err
	}
	return app, nil
}

// Wire assembles the pipeline from an open catalog and an LLM client.
func Wire(log *slog.Logger, cfg *Config, cat catalog.Catalog, client llm.Client) (*App, error) {
	if cat == nil {
		return nil, errors.New("catalog is required")
	}
	gen, err := llm.NewGenerator(llm.Config{
		Logger:   log,
		Client:   client,
		Provider: cfg.LLMProvider,
		Dialect:  cfg.SQLDialect(),
	})
	if err != nil {
		return nil, err
	}
	ret, err := retriever.New(retriever.Config{
		Logger:        log,
		Catalog:       cat,
		Guesser:       gen,
		FallbackLimit: cfg.FallbackLimit,
	})
	if err != nil {
		return nil, err
	}
	validator := sqlguard.New(sqlguard.QuotingFor(cfg.DBDriver)...)
	pcfg := pipeline.Config{
		Logger:       log,
		Retriever:    ret,
		Generator:    gen,
		Validator:    validator,
		Executor:     cat,
		QueryTimeout: cfg.QueryTimeout,
	}
	if cfg.SuggestCharts {
		pcfg.Charts = gen
	}
	p, err := pipeline.New(pcfg)
	if err != nil {
		return nil, err
	}
	return &App{
		Catalog:   cat,
		Validator: validator,
		Generator: gen,
		Pipeline:  p,
	}, nil
}

func (a *App) Close() error {
	return a.Catalog.Close()
}
