package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
)

type SQLConfig struct {
	Logger  *slog.Logger
	DB      *sql.DB
	Dialect Dialect

	// SampleRows is the number of rows fetched per described table.
	SampleRows int
	// MaxRows caps rows returned by ExecuteReadOnlyQuery.
	MaxRows int
}

func (c *SQLConfig) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.DB == nil {
		return fmt.Errorf("db is required")
	}
	if c.Dialect.Name == "" {
		return fmt.Errorf("dialect is required")
	}
	if c.SampleRows <= 0 {
		c.SampleRows = defaultSampleRows
	}
	if c.MaxRows <= 0 {
		c.MaxRows = defaultMaxRows
	}
	return nil
}

// SQLCatalog is a Catalog over database/sql.
type SQLCatalog struct {
	log *slog.Logger
	cfg SQLConfig
}

func NewSQL(cfg SQLConfig) (*SQLCatalog, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate catalog config: %w", err)
	}
	return &SQLCatalog{
		log: cfg.Logger,
		cfg: cfg,
	}, nil
}

func (c *SQLCatalog) Dialect() Dialect {
	return c.cfg.Dialect
}

func (c *SQLCatalog) Ping(ctx context.Context) error {
	return c.cfg.DB.PingContext(ctx)
}

func (c *SQLCatalog) Close() error {
	return c.cfg.DB.Close()
}

func (c *SQLCatalog) ListTables(ctx context.Context) ([]string, error) {
	rows, err := c.cfg.DB.QueryContext(ctx, c.cfg.Dialect.ListTablesQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		if c.cfg.Dialect.IsInternal(name) {
			continue
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tables: %w", err)
	}
	return tables, nil
}

func (c *SQLCatalog) DescribeTables(ctx context.Context, names []string) ([]SchemaInfo, error) {
	infos := make([]SchemaInfo, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info, err := c.describeTable(ctx, name)
		if err != nil {
			c.log.Warn("catalog: skipping table", "table", name, "error", err)
			continue
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (c *SQLCatalog) describeTable(ctx context.Context, name string) (SchemaInfo, error) {
	columns, err := c.columns(ctx, name)
	if err != nil {
		return SchemaInfo{}, err
	}
	if len(columns) == 0 {
		return SchemaInfo{}, fmt.Errorf("table %q not found", name)
	}

	info := SchemaInfo{
		TableName:  name,
		Columns:    columns,
		SampleRows: []map[string]any{},
	}

	// Sample rows are best effort; a table we can describe but not read still
	// contributes its columns.
	query := fmt.Sprintf("SELECT * FROM %s LIMIT %d", c.cfg.Dialect.QuoteIdent(name), c.cfg.SampleRows)
	res, err := queryRows(ctx, c.cfg.DB, query, c.cfg.SampleRows)
	if err != nil {
		c.log.Debug("catalog: failed to sample table", "table", name, "error", err)
		return info, nil
	}
	for _, row := range res.Rows {
		sample := make(map[string]any, len(res.Columns))
		for i, col := range res.Columns {
			sample[col] = row[i]
		}
		info.SampleRows = append(info.SampleRows, sample)
	}
	return info, nil
}

func (c *SQLCatalog) columns(ctx context.Context, table string) ([]string, error) {
	rows, err := c.cfg.DB.QueryContext(ctx, c.cfg.Dialect.ColumnsQuery, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var col, typ sql.NullString
		if err := rows.Scan(&col, &typ); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		columns = append(columns, FormatColumn(col.String, typ.String))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating columns: %w", err)
	}
	return columns, nil
}

// ExecuteReadOnlyQuery runs sql with the dialect's read-only protections.
// The returned error is the database error, unwrapped, so its text can be
// shown to the user verbatim.
func (c *SQLCatalog) ExecuteReadOnlyQuery(ctx context.Context, query string) (*ExecutionResult, error) {
	d := c.cfg.Dialect
	switch {
	case d.ReadOnlyTx:
		tx, err := c.cfg.DB.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				c.log.Warn("catalog: failed to roll back read-only transaction", "error", err)
			}
		}()
		return queryRows(ctx, tx, query, c.cfg.MaxRows)

	case len(d.SessionReadOnly) > 0:
		conn, err := c.cfg.DB.Conn(ctx)
		if err != nil {
			return nil, err
		}
		defer conn.Close()
		for _, stmt := range d.SessionReadOnly {
			if _, err := conn.ExecContext(ctx, stmt); err != nil {
				return nil, fmt.Errorf("failed to enter read-only mode: %w", err)
			}
		}
		defer func() {
			// The connection goes back to the pool, so restore it even if the
			// request context is done.
			for _, stmt := range d.SessionReadWrite {
				if _, err := conn.ExecContext(context.WithoutCancel(ctx), stmt); err != nil {
					c.log.Warn("catalog: failed to leave read-only mode", "error", err)
				}
			}
		}()
		return queryRows(ctx, conn, query, c.cfg.MaxRows)

	default:
		return queryRows(ctx, c.cfg.DB, query, c.cfg.MaxRows)
	}
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryRows(ctx context.Context, q queryer, query string, maxRows int) (*ExecutionResult, error) {
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	res := &ExecutionResult{
		Columns: columns,
		Rows:    [][]any{},
	}
	for rows.Next() {
		if len(res.Rows) >= maxRows {
			res.Truncated = true
			break
		}
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}
		for i := range values {
			values[i] = normalizeValue(values[i])
		}
		res.Rows = append(res.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}
