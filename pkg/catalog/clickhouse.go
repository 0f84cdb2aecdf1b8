package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const defaultClickHouseMaxExecutionTime = 60

type ClickHouseConfig struct {
	Logger *slog.Logger

	// DSN is a clickhouse:// URL. Ignored when Conn is set.
	DSN string
	// Conn is an already opened connection, used by tests.
	Conn driver.Conn

	SampleRows int
	MaxRows    int
}

func (c *ClickHouseConfig) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.DSN == "" && c.Conn == nil {
		return fmt.Errorf("dsn or conn is required")
	}
	if c.SampleRows <= 0 {
		c.SampleRows = defaultSampleRows
	}
	if c.MaxRows <= 0 {
		c.MaxRows = defaultMaxRows
	}
	return nil
}

// ClickHouse is a Catalog over the native ClickHouse protocol. Executed
// queries carry readonly=2, which rejects writes and DDL server-side while
// still letting the client send its own settings.
type ClickHouse struct {
	log  *slog.Logger
	cfg  ClickHouseConfig
	conn driver.Conn
}

func NewClickHouse(cfg ClickHouseConfig) (*ClickHouse, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate clickhouse config: %w", err)
	}

	conn := cfg.Conn
	if conn == nil {
		options, err := clickhouse.ParseDSN(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to parse ClickHouse DSN: %w", err)
		}
		if options.Settings == nil {
			options.Settings = clickhouse.Settings{}
		}
		if _, ok := options.Settings["max_execution_time"]; !ok {
			options.Settings["max_execution_time"] = defaultClickHouseMaxExecutionTime
		}
		if options.DialTimeout == 0 {
			options.DialTimeout = 5 * time.Second
		}
		conn, err = clickhouse.Open(options)
		if err != nil {
			return nil, fmt.Errorf("failed to open ClickHouse connection: %w", err)
		}
	}

	return &ClickHouse{
		log:  cfg.Logger,
		cfg:  cfg,
		conn: conn,
	}, nil
}

func (c *ClickHouse) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c *ClickHouse) Close() error {
	return c.conn.Close()
}

func (c *ClickHouse) ListTables(ctx context.Context) ([]string, error) {
	rows, err := c.conn.Query(ctx, `
		SELECT name FROM system.tables
		WHERE database = currentDatabase() AND NOT is_temporary AND name NOT LIKE '.inner%'
		ORDER BY name
	`)
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
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tables: %w", err)
	}
	return tables, nil
}

func (c *ClickHouse) DescribeTables(ctx context.Context, names []string) ([]SchemaInfo, error) {
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

func (c *ClickHouse) describeTable(ctx context.Context, name string) (SchemaInfo, error) {
	rows, err := c.conn.Query(ctx, `
		SELECT name, type FROM system.columns
		WHERE database = currentDatabase() AND table = ?
		ORDER BY position
	`, name)
	if err != nil {
		return SchemaInfo{}, fmt.Errorf("failed to query columns: %w", err)
	}
	var columns []string
	for rows.Next() {
		var col, typ string
		if err := rows.Scan(&col, &typ); err != nil {
			rows.Close()
			return SchemaInfo{}, fmt.Errorf("failed to scan column: %w", err)
		}
		columns = append(columns, FormatColumn(col, typ))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return SchemaInfo{}, fmt.Errorf("error iterating columns: %w", err)
	}
	if len(columns) == 0 {
		return SchemaInfo{}, fmt.Errorf("table %q not found", name)
	}

	info := SchemaInfo{
		TableName:  name,
		Columns:    columns,
		SampleRows: []map[string]any{},
	}
	query := fmt.Sprintf("SELECT * FROM %s LIMIT %d", quoteBacktick(name), c.cfg.SampleRows)
	res, err := c.query(ctx, query, c.cfg.SampleRows)
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

func (c *ClickHouse) ExecuteReadOnlyQuery(ctx context.Context, query string) (*ExecutionResult, error) {
	return c.query(ctx, query, c.cfg.MaxRows)
}

func (c *ClickHouse) query(ctx context.Context, query string, maxRows int) (*ExecutionResult, error) {
	ctx = clickhouse.Context(ctx, clickhouse.WithSettings(clickhouse.Settings{
		"readonly": 2,
	}))
	rows, err := c.conn.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columnTypes := rows.ColumnTypes()
	columns := make([]string, len(columnTypes))
	for i, ct := range columnTypes {
		columns[i] = ct.Name()
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
		ptrs := make([]any, len(columnTypes))
		for i, ct := range columnTypes {
			ptrs[i] = reflect.New(ct.ScanType()).Interface()
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		values := make([]any, len(ptrs))
		for i, p := range ptrs {
			values[i] = derefScanned(p)
		}
		res.Rows = append(res.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// derefScanned unwraps the pointer created for Scan. Nullable columns scan
// into a pointer-to-pointer, and a nil inner pointer is SQL NULL.
func derefScanned(p any) any {
	v := reflect.ValueOf(p).Elem()
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	return normalizeValue(v.Interface())
}

func quoteBacktick(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "\\`") + "`"
}
