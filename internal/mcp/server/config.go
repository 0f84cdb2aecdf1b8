package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kattapik/texttosql-project/pkg/catalog"
	"github.com/kattapik/texttosql-project/pkg/pipeline"
)

const (
	defaultListenAddr        = ":8010"
	defaultReadHeaderTimeout = 5 * time.Second
	defaultShutdownTimeout   = 5 * time.Second
)

// Asker runs one question through the pipeline.
type Asker interface {
	Run(ctx context.Context, question string) *pipeline.Response
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	Logger *slog.Logger

	Asker     Asker
	Tables    catalog.TableLister
	Validator pipeline.Validator
	Ready     Pinger

	Version           string
	ListenAddr        string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	// AllowedTokens enables bearer authentication on the MCP endpoint.
	AllowedTokens []string
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.Asker == nil {
		return fmt.Errorf("asker is required")
	}
	if c.Tables == nil {
		return fmt.Errorf("tables is required")
	}
	if c.Validator == nil {
		return fmt.Errorf("validator is required")
	}
	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}
	if c.ReadHeaderTimeout == 0 {
		c.ReadHeaderTimeout = defaultReadHeaderTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
	return nil
}
