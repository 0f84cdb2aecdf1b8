package sqlguard

import "strings"

// Quoting describes how a database delimits strings, identifiers, comments
// and parameters. Two databases can split the same text into different
// statements, so the validator lexes with the rules of the database that will
// run the query.
type Quoting struct {
	Name string
	// BracketIdentifiers lexes [name] as a quoted identifier (SQLite).
	BracketIdentifiers bool
	// DollarQuotes lexes $tag$...$tag$ as a string.
	DollarQuotes bool
	// BackslashEscapes lets a backslash escape the next character inside
	// quotes (ClickHouse).
	BackslashEscapes bool
	// EscapeStrings lexes E'...' with backslash escapes (PostgreSQL, DuckDB).
	EscapeStrings bool
	// NestedComments lets /* ... */ nest.
	NestedComments bool
	// HashComments starts a line comment at "# " or "#!" (ClickHouse).
	HashComments bool
	// SQLiteVariables lexes $name, @name, :name and #name host parameters with
	// SQLite's "::" and "(...)" suffixes.
	SQLiteVariables bool
}

var (
	QuotingSQLite = Quoting{
		Name:               "sqlite",
		BracketIdentifiers: true,
		SQLiteVariables:    true,
	}
	QuotingPostgres = Quoting{
		Name:           "postgres",
		DollarQuotes:   true,
		EscapeStrings:  true,
		NestedComments: true,
	}
	QuotingDuckDB = Quoting{
		Name:           "duckdb",
		DollarQuotes:   true,
		EscapeStrings:  true,
		NestedComments: true,
	}
	QuotingClickHouse = Quoting{
		Name:             "clickhouse",
		DollarQuotes:     true,
		BackslashEscapes: true,
		NestedComments:   true,
		HashComments:     true,
	}
)

// AllQuotings is used when the target database is unknown. A query must be a
// single read-only SELECT under every one of them.
var AllQuotings = []Quoting{QuotingPostgres, QuotingSQLite, QuotingClickHouse}

// QuotingFor returns the quoting rules for a --db-driver value, or
// AllQuotings when the driver is not known.
func QuotingFor(driver string) []Quoting {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		return []Quoting{QuotingSQLite}
	case "duckdb":
		return []Quoting{QuotingDuckDB}
	case "postgres", "postgresql", "pgx":
		return []Quoting{QuotingPostgres}
	case "clickhouse":
		return []Quoting{QuotingClickHouse}
	}
	return AllQuotings
}
