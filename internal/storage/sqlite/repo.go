// Package sqlite implements storage.Repository on an embedded SQLite
// database (modernc.org/sqlite, no cgo).
//
// SQLite has no schemas, so the keyspace is ignored. A batch is written with
// a prepared INSERT OR REPLACE inside one transaction.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"tripetl/internal/schema"
	"tripetl/internal/storage"
	"tripetl/internal/storage/sqlite/ddl"
)

// Repository is a SQLite-backed storage.Repository.
type Repository struct {
	db *sql.DB
}

// NewRepository opens dsn, for example "tripdata.db" or
// "file:tripdata.db?_pragma=busy_timeout(5000)".
func NewRepository(ctx context.Context, dsn string) (*Repository, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sqlite: DSN must not be empty")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// One writer; also keeps ":memory:" databases on a single connection.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	return &Repository{db: db}, nil
}

// EnsureTable creates t when missing.
func (r *Repository) EnsureTable(ctx context.Context, t schema.Table) error {
	stmt, err := ddl.BuildCreateTableSQL(t)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("sqlite: create %s: %w", t.Name, err)
	}
	return nil
}

// Truncate deletes every row of t.
func (r *Repository) Truncate(ctx context.Context, t schema.Table) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM "+ddl.QuoteIdent(t.Name)); err != nil {
		return fmt.Errorf("sqlite: truncate %s: %w", t.Name, err)
	}
	return nil
}

// upsertSQL renders the prepared statement used by WriteBatch.
func upsertSQL(t schema.Table) string {
	return fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
		ddl.QuoteIdent(t.Name),
		strings.Join(ddl.QuoteIdents(t.ColumnNames()), ", "),
		storage.Placeholders("?", len(t.Columns)))
}

// WriteBatch upserts rows in one transaction. Rows with an existing primary
// key replace the stored row.
func (r *Repository) WriteBatch(ctx context.Context, t schema.Table, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, upsertSQL(t))
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("sqlite: prepare insert: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for _, row := range rows {
		if len(row) != len(t.Columns) {
			_ = tx.Rollback()
			return 0, fmt.Errorf("sqlite: %s: row length %d != columns length %d", t.Name, len(row), len(t.Columns))
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("sqlite: insert into %s: %w", t.Name, err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit: %w", err)
	}
	return inserted, nil
}

// selectSQL renders the query used by ReadAll.
func selectSQL(t schema.Table, opt storage.ReadOptions) string {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s",
		strings.Join(ddl.QuoteIdents(t.ColumnNames()), ", "), ddl.QuoteIdent(t.Name))
	if opt.OrderBy != "" {
		b.WriteString(" ORDER BY " + ddl.QuoteIdent(opt.OrderBy))
	}
	if opt.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", opt.Limit)
	}
	return b.String()
}

// ReadAll returns the rows of t aligned to t.ColumnNames().
func (r *Repository) ReadAll(ctx context.Context, t schema.Table, opt storage.ReadOptions) ([][]any, error) {
	rows, err := r.db.QueryContext(ctx, selectSQL(t, opt))
	if err != nil {
		return nil, fmt.Errorf("sqlite: select %s: %w", t.Name, err)
	}
	out, err := storage.ScanAll(rows, len(t.Columns))
	if err != nil {
		return nil, fmt.Errorf("sqlite: %s: %w", t.Name, err)
	}
	return out, nil
}

// DropTable drops t if it exists.
func (r *Repository) DropTable(ctx context.Context, t schema.Table) error {
	if _, err := r.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+ddl.QuoteIdent(t.Name)); err != nil {
		return fmt.Errorf("sqlite: drop %s: %w", t.Name, err)
	}
	return nil
}

// Close closes the database.
func (r *Repository) Close() { _ = r.db.Close() }
