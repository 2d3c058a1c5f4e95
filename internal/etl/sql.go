package etl

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"fanout/internal/config"
	"fanout/pkg/database"
	"fanout/pkg/models"
)

// RelationalSink appends the dataset to a SQL table in one transaction:
// either every row lands or none do. The table is created on first use
// when it does not exist yet.
type RelationalSink struct {
	cfg     *config.RelationalConfig
	target  *models.RelationalTarget
	timeout time.Duration
	log     *slog.Logger
}

func NewRelationalSink(cfg *config.RelationalConfig, target *models.RelationalTarget, timeout time.Duration, log *slog.Logger) *RelationalSink {
	return &RelationalSink{cfg: cfg, target: target, timeout: timeout, log: log}
}

func (s *RelationalSink) Name() string { return "relational" }

// Load connects, ensures the table, and inserts the projected columns in
// batches inside a single transaction. Any failure rolls the whole load
// back, so no partial batch survives.
func (s *RelationalSink) Load(ctx context.Context, ds *Dataset) (LoadResult, error) {
	res := LoadResult{Sink: s.Name()}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cols, colIdx, err := s.projection(ds.Schema())
	if err != nil {
		return res, &LoadError{Sink: s.Name(), Err: err}
	}

	db, err := database.ConnectSQL(ctx, s.cfg.Driver, s.cfg.DSN())
	if err != nil {
		return res, &LoadError{Sink: s.Name(), Err: err}
	}
	defer db.Close()

	if err := s.ensureTable(ctx, db, cols); err != nil {
		return res, &LoadError{Sink: s.Name(), Err: err}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return res, &LoadError{Sink: s.Name(), Err: fmt.Errorf("begin transaction: %w", err)}
	}

	for start := 0; start < ds.Len(); start += s.target.BatchSize {
		end := min(start+s.target.BatchSize, ds.Len())
		if err := s.insertBatch(ctx, tx, cols, colIdx, ds, start, end); err != nil {
			tx.Rollback()
			return res, &LoadError{Sink: s.Name(), Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return res, &LoadError{Sink: s.Name(), Err: fmt.Errorf("commit: %w", err)}
	}

	res.RowsWritten = ds.Len()
	s.log.Info("relational load complete", "table", s.target.Table, "rows", res.RowsWritten)
	return res, nil
}

// projection resolves the optional column subset against the dataset
// schema, defaulting to every column in schema order.
func (s *RelationalSink) projection(schema Schema) ([]Column, []int, error) {
	if len(s.target.Columns) == 0 {
		idx := make([]int, len(schema.Columns))
		for i := range idx {
			idx[i] = i
		}
		return schema.Columns, idx, nil
	}

	cols := make([]Column, 0, len(s.target.Columns))
	idx := make([]int, 0, len(s.target.Columns))
	for _, name := range s.target.Columns {
		i := schema.Index(name)
		if i < 0 {
			return nil, nil, fmt.Errorf("projected column %q not in dataset schema", name)
		}
		cols = append(cols, schema.Columns[i])
		idx = append(idx, i)
	}
	return cols, idx, nil
}

func (s *RelationalSink) ensureTable(ctx context.Context, db *sql.DB, cols []Column) error {
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = c.Name + " " + sqlColumnType(s.cfg.Driver, c.Type)
	}
	body := "(" + strings.Join(defs, ", ") + ")"

	var stmt string
	if s.cfg.Driver == "sqlserver" {
		stmt = fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL CREATE TABLE %s %s",
			s.target.Table, s.target.Table, body)
	} else {
		stmt = fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s %s", s.target.Table, body)
	}

	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create table %s: %w", s.target.Table, err)
	}
	return nil
}

func (s *RelationalSink) insertBatch(ctx context.Context, tx *sql.Tx, cols []Column, colIdx []int, ds *Dataset, start, end int) error {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", s.target.Table, strings.Join(names, ", "))

	args := make([]interface{}, 0, (end-start)*len(cols))
	for r := start; r < end; r++ {
		if r > start {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		row := ds.Row(r)
		for i, idx := range colIdx {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(placeholder(s.cfg.Driver, len(args)+1))
			args = append(args, row[idx])
		}
		sb.WriteByte(')')
	}

	if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("insert rows %d-%d: %w", start, end-1, err)
	}
	return nil
}

func placeholder(driver string, n int) string {
	switch driver {
	case "postgres":
		return "$" + strconv.Itoa(n)
	case "sqlserver":
		return "@p" + strconv.Itoa(n)
	default:
		return "?"
	}
}

func sqlColumnType(driver string, t ColumnType) string {
	switch t {
	case TypeInt:
		return "BIGINT"
	case TypeFloat:
		switch driver {
		case "postgres":
			return "DOUBLE PRECISION"
		case "mysql":
			return "DOUBLE"
		case "sqlserver":
			return "FLOAT"
		default:
			return "REAL"
		}
	case TypeBool:
		if driver == "sqlserver" {
			return "BIT"
		}
		return "BOOLEAN"
	case TypeTimestamp:
		switch driver {
		case "postgres":
			return "TIMESTAMPTZ"
		case "mysql":
			return "DATETIME"
		case "sqlserver":
			return "DATETIME2"
		default:
			return "TIMESTAMP"
		}
	default:
		if driver == "sqlserver" {
			return "NVARCHAR(MAX)"
		}
		return "TEXT"
	}
}
