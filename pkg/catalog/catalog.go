// Package catalog exposes database schemas and read-only query execution to
// the query pipeline. Backends are database/sql (SQLite, DuckDB, PostgreSQL)
// and native ClickHouse.
package catalog

import (
	"context"
	"fmt"
)

const (
	defaultSampleRows = 3
	defaultMaxRows    = 1000
)

// SchemaInfo describes one table: columns as "name (type)" in table order
// and up to a few sample rows keyed by column name.
type SchemaInfo struct {
	TableName  string           `json:"table_name"`
	Columns    []string         `json:"columns"`
	SampleRows []map[string]any `json:"sample_rows"`
}

// ExecutionResult is the tabular output of a read-only query.
type ExecutionResult struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	Truncated bool     `json:"truncated,omitempty"`
}

type TableLister interface {
	ListTables(ctx context.Context) ([]string, error)
}

// SchemaDescriber returns SchemaInfo for the named tables, in the given
// order. Tables that cannot be described are skipped.
type SchemaDescriber interface {
	DescribeTables(ctx context.Context, names []string) ([]SchemaInfo, error)
}

// QueryExecutor runs a single read-only query. Database errors are returned
// as-is so callers can surface the message verbatim.
type QueryExecutor interface {
	ExecuteReadOnlyQuery(ctx context.Context, sql string) (*ExecutionResult, error)
}

// Invalidator is implemented by catalogs that cache the table list.
type Invalidator interface {
	Invalidate()
}

// Catalog is the full capability set of a backend.
type Catalog interface {
	TableLister
	SchemaDescriber
	QueryExecutor
	Ping(ctx context.Context) error
	Close() error
}

// FormatColumn renders a column definition the way SchemaInfo stores it.
func FormatColumn(name, typ string) string {
	return fmt.Sprintf("%s (%s)", name, typ)
}

// normalizeValue converts driver values into JSON-friendly values.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(val)
	default:
		return val
	}
}
