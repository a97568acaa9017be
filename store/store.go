// Package store owns the local DuckDB file the pipeline merges into.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"
)

// LoadsTable records every merge performed into a dataset schema
const LoadsTable = "_pipeline_loads"

// Initialize ensures the store file and its parent directory exist. The file
// is opened and closed again; an existing store is left untouched.
func Initialize(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create store directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return fmt.Errorf("failed to open DuckDB: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to initialize DuckDB at %s: %w", path, err)
	}
	return nil
}

// DB is an open handle on the store
type DB struct {
	db *sql.DB
}

// Open opens the store at path with a single connection
func Open(path string) (*DB, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping DuckDB: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the underlying connection
func (d *DB) Close() error {
	return d.db.Close()
}

// MergeRequest describes one Parquet file to merge into a table
type MergeRequest struct {
	Schema   string
	Table    string
	File     string
	LoadID   string
	Pipeline string
}

// Merge appends the rows of req.File to req.Schema.req.Table. The schema and
// table are created when missing; columns present in the file but not in the
// table are added first. Everything runs in one transaction.
func (d *DB) Merge(ctx context.Context, req MergeRequest) (int64, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	schema := quoteIdent(req.Schema)
	table := schema + "." + quoteIdent(req.Table)
	source := fmt.Sprintf("read_parquet(%s)", quoteLiteral(req.File))

	if _, err := tx.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+schema); err != nil {
		return 0, fmt.Errorf("failed to create schema %s: %w", req.Schema, err)
	}

	existing, err := columns(ctx, tx, req.Schema, req.Table)
	if err != nil {
		return 0, err
	}

	if len(existing) == 0 {
		create := fmt.Sprintf("CREATE TABLE %s AS SELECT * FROM %s LIMIT 0", table, source)
		if _, err := tx.ExecContext(ctx, create); err != nil {
			return 0, fmt.Errorf("failed to create table %s: %w", req.Table, err)
		}
	} else if err := addMissingColumns(ctx, tx, table, source, existing); err != nil {
		return 0, fmt.Errorf("failed to evolve table %s: %w", req.Table, err)
	}

	res, err := tx.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s BY NAME SELECT * FROM %s", table, source))
	if err != nil {
		return 0, fmt.Errorf("failed to insert into %s: %w", req.Table, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected for %s: %w", req.Table, err)
	}

	if err := recordLoad(ctx, tx, req, rows); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit merge into %s: %w", req.Table, err)
	}
	return rows, nil
}

func addMissingColumns(ctx context.Context, tx *sql.Tx, table, source string, existing []string) error {
	have := make(map[string]bool, len(existing))
	for _, c := range existing {
		have[strings.ToLower(c)] = true
	}

	rows, err := tx.QueryContext(ctx,
		fmt.Sprintf("SELECT column_name, column_type FROM (DESCRIBE SELECT * FROM %s)", source))
	if err != nil {
		return fmt.Errorf("failed to describe load file: %w", err)
	}

	type column struct{ name, typ string }
	var missing []column
	for rows.Next() {
		var c column
		if err := rows.Scan(&c.name, &c.typ); err != nil {
			rows.Close()
			return err
		}
		if !have[strings.ToLower(c.name)] {
			missing = append(missing, c)
		}
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, c := range missing {
		alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, quoteIdent(c.name), c.typ)
		if _, err := tx.ExecContext(ctx, alter); err != nil {
			return fmt.Errorf("failed to add column %s: %w", c.name, err)
		}
	}
	return nil
}

func recordLoad(ctx context.Context, tx *sql.Tx, req MergeRequest, rows int64) error {
	loads := quoteIdent(req.Schema) + "." + quoteIdent(LoadsTable)
	create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		load_id VARCHAR,
		pipeline_name VARCHAR,
		table_name VARCHAR,
		row_count BIGINT,
		inserted_at TIMESTAMP
	)`, loads)
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("failed to create loads table: %w", err)
	}

	insert := fmt.Sprintf("INSERT INTO %s VALUES (?, ?, ?, ?, current_timestamp)", loads)
	if _, err := tx.ExecContext(ctx, insert, req.LoadID, req.Pipeline, req.Table, rows); err != nil {
		return fmt.Errorf("failed to record load %s: %w", req.LoadID, err)
	}
	return nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func columns(ctx context.Context, q querier, schema, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT column_name FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ?
		ORDER BY ordinal_position`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("failed to list columns of %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Columns returns the column names of schema.table in ordinal order. A
// missing table yields no columns.
func (d *DB) Columns(ctx context.Context, schema, table string) ([]string, error) {
	return columns(ctx, d.db, schema, table)
}

// TableExists reports whether schema.table exists
func (d *DB) TableExists(ctx context.Context, schema, table string) (bool, error) {
	var n int
	err := d.db.QueryRowContext(ctx, `
		SELECT count(*) FROM information_schema.tables
		WHERE table_schema = ? AND table_name = ?`, schema, table).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check table %s.%s: %w", schema, table, err)
	}
	return n > 0, nil
}

// CountRows returns the number of rows in schema.table
func (d *DB) CountRows(ctx context.Context, schema, table string) (int64, error) {
	var n int64
	query := fmt.Sprintf("SELECT count(*) FROM %s.%s", quoteIdent(schema), quoteIdent(table))
	if err := d.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count rows in %s.%s: %w", schema, table, err)
	}
	return n, nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
