package catalog

import (
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// Dialect holds the backend-specific SQL a database/sql catalog needs.
type Dialect struct {
	// Name is the value accepted by --db-driver.
	Name string
	// DriverName is the database/sql driver to open.
	DriverName string

	// ListTablesQuery returns one column of table names, in catalog order.
	ListTablesQuery string
	// ColumnsQuery returns (name, type) rows for the table bound to its
	// single placeholder, in table order.
	ColumnsQuery string

	QuoteIdent func(name string) string

	// IsInternal reports bookkeeping tables that must not reach retrieval.
	IsInternal func(name string) bool

	// ReadOnlyTx runs executed queries inside sql.TxOptions{ReadOnly: true}.
	ReadOnlyTx bool
	// SessionReadOnly and SessionReadWrite are run on a dedicated connection
	// before and after an executed query.
	SessionReadOnly  []string
	SessionReadWrite []string
}

var SQLite = Dialect{
	Name:            "sqlite",
	DriverName:      "sqlite",
	ListTablesQuery: `SELECT name FROM sqlite_master WHERE type = 'table'`,
	ColumnsQuery:    `SELECT name, type FROM pragma_table_info(?) ORDER BY cid`,
	QuoteIdent:      quoteDoubled,
	IsInternal: func(name string) bool {
		// sqlite_sequence, sqlite_stat1..4
		return strings.HasPrefix(name, "sqlite_")
	},
	SessionReadOnly:  []string{"PRAGMA query_only = ON"},
	SessionReadWrite: []string{"PRAGMA query_only = OFF"},
}

var DuckDB = Dialect{
	Name:       "duckdb",
	DriverName: "duckdb",
	ListTablesQuery: `SELECT table_name FROM duckdb_tables()
		WHERE schema_name = current_schema() AND NOT internal AND NOT temporary
		ORDER BY table_name`,
	ColumnsQuery: `SELECT column_name, data_type FROM duckdb_columns()
		WHERE schema_name = current_schema() AND table_name = ?
		ORDER BY column_index`,
	QuoteIdent: quoteDoubled,
	IsInternal: func(string) bool { return false },
}

var Postgres = Dialect{
	Name:       "postgres",
	DriverName: "pgx",
	ListTablesQuery: `SELECT table_name FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_type IN ('BASE TABLE', 'VIEW')
		ORDER BY table_name`,
	ColumnsQuery: `SELECT column_name, data_type FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
		ORDER BY ordinal_position`,
	QuoteIdent: pq.QuoteIdentifier,
	IsInternal: func(name string) bool {
		return strings.HasPrefix(name, "pg_")
	},
	ReadOnlyTx: true,
}

// DialectByName resolves a --db-driver value.
func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "sqlite", "sqlite3", "":
		return SQLite, nil
	case "duckdb":
		return DuckDB, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	}
	return Dialect{}, fmt.Errorf("unsupported database driver: %q", name)
}

func quoteDoubled(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
