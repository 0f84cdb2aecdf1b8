package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const (
	defaultConnectTimeout = 30 * time.Second
	defaultConnectTries   = 5
)

// Options selects and configures a backend.
type Options struct {
	// Driver is one of sqlite, duckdb, postgres or clickhouse.
	Driver string
	// DSN is the driver-specific data source: a file path for sqlite and
	// duckdb, a URL for postgres and clickhouse.
	DSN string

	SampleRows int
	MaxRows    int

	// ConnectTimeout bounds the startup connectivity check.
	ConnectTimeout time.Duration
	ConnectTries   uint
}

// Open connects to the configured backend and waits, with exponential
// backoff, until it answers a ping.
func Open(ctx context.Context, log *slog.Logger, opts Options) (Catalog, error) {
	if opts.DSN == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	if opts.ConnectTries == 0 {
		opts.ConnectTries = defaultConnectTries
	}

	var (
		cat Catalog
		err error
	)
	if strings.EqualFold(opts.Driver, "clickhouse") {
		cat, err = NewClickHouse(ClickHouseConfig{
			Logger:     log,
			DSN:        opts.DSN,
			SampleRows: opts.SampleRows,
			MaxRows:    opts.MaxRows,
		})
	} else {
		cat, err = openSQL(log, opts)
	}
	if err != nil {
		return nil, err
	}

	if err := waitForPing(ctx, log, cat, opts); err != nil {
		_ = cat.Close()
		return nil, err
	}
	log.Info("catalog: connected", "driver", opts.Driver)
	return cat, nil
}

func openSQL(log *slog.Logger, opts Options) (*SQLCatalog, error) {
	dialect, err := DialectByName(opts.Driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(dialect.DriverName, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialect.Name, err)
	}
	if dialect.Name == SQLite.Name {
		// ":memory:" databases exist per connection.
		db.SetMaxOpenConns(1)
	}
	cat, err := NewSQL(SQLConfig{
		Logger:     log,
		DB:         db,
		Dialect:    dialect,
		SampleRows: opts.SampleRows,
		MaxRows:    opts.MaxRows,
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return cat, nil
}

func waitForPing(ctx context.Context, log *slog.Logger, cat Catalog, opts Options) error {
	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if attempt > 0 {
			log.Warn("catalog: database not reachable, retrying", "attempt", attempt)
		}
		attempt++
		return struct{}{}, cat.Ping(ctx)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(opts.ConnectTries),
		backoff.WithMaxElapsedTime(opts.ConnectTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}
