// Package mysql implements storage.Repository on MySQL with
// github.com/go-sql-driver/mysql.
//
// The keyspace is a MySQL database. Batches are written as multi-row
// INSERT ... ON DUPLICATE KEY UPDATE statements inside one transaction.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"tripetl/internal/schema"
	"tripetl/internal/storage"
	"tripetl/internal/storage/mysql/ddl"
)

// maxPlaceholders is the server limit on bound parameters per statement.
const maxPlaceholders = 65535

// Repository is a MySQL-backed storage.Repository.
type Repository struct {
	db       *sql.DB
	keyspace string
}

// parseDSN parses dsn and forces the options the repository relies on.
func parseDSN(dsn string) (*mysql.Config, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg, nil
}

// NewRepository opens a pool for dsn and pings the server.
func NewRepository(ctx context.Context, dsn, keyspace string) (*Repository, error) {
	cfg, err := parseDSN(dsn)
	if err != nil {
		return nil, err
	}
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql: connector: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetConnMaxLifetime(3 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mysql: ping: %w", serverError(err))
	}
	return &Repository{db: db, keyspace: keyspace}, nil
}

func (r *Repository) fqn(t schema.Table) string { return ddl.FQN(r.keyspace, t.Name) }

// EnsureTable creates the keyspace database and t when missing.
func (r *Repository) EnsureTable(ctx context.Context, t schema.Table) error {
	stmt, err := ddl.BuildCreateTableSQL(r.keyspace, t)
	if err != nil {
		return err
	}
	if r.keyspace != "" {
		if _, err := r.db.ExecContext(ctx, ddl.BuildCreateDatabaseSQL(r.keyspace)); err != nil {
			return fmt.Errorf("mysql: create database %s: %w", r.keyspace, serverError(err))
		}
	}
	if _, err := r.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("mysql: create %s: %w", t.Name, serverError(err))
	}
	return nil
}

// Truncate empties t.
func (r *Repository) Truncate(ctx context.Context, t schema.Table) error {
	if _, err := r.db.ExecContext(ctx, "TRUNCATE TABLE "+r.fqn(t)); err != nil {
		return fmt.Errorf("mysql: truncate %s: %w", t.Name, serverError(err))
	}
	return nil
}

// upsertSQL renders a multi-row upsert for n rows.
func upsertSQL(fqn string, t schema.Table, n int) string {
	cols := t.ColumnNames()
	tuple := "(" + storage.Placeholders("?", len(cols)) + ")"

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", fqn, strings.Join(ddl.QuoteIdents(cols), ", "))
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(tuple)
	}

	var set []string
	for _, c := range cols {
		if !t.IsKey(c) {
			q := ddl.QuoteIdent(c)
			set = append(set, fmt.Sprintf("%s = VALUES(%s)", q, q))
		}
	}
	switch {
	case len(t.PrimaryKey) == 0:
	case len(set) == 0:
		k := ddl.QuoteIdent(t.PrimaryKey[0])
		fmt.Fprintf(&b, " ON DUPLICATE KEY UPDATE %s = %s", k, k)
	default:
		b.WriteString(" ON DUPLICATE KEY UPDATE " + strings.Join(set, ", "))
	}
	return b.String()
}

// WriteBatch upserts rows in one transaction and returns the number of rows
// written. Later rows win over earlier rows with the same key.
func (r *Repository) WriteBatch(ctx context.Context, t schema.Table, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	for i, row := range rows {
		if len(row) != len(t.Columns) {
			return 0, fmt.Errorf("mysql: %s: row %d has %d values, want %d", t.Name, i, len(row), len(t.Columns))
		}
	}
	fqn := r.fqn(t)
	per := maxPlaceholders / len(t.Columns)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("mysql: begin tx: %w", err)
	}
	for start := 0; start < len(rows); start += per {
		end := min(start+per, len(rows))
		part := rows[start:end]
		args := make([]any, 0, len(part)*len(t.Columns))
		for _, row := range part {
			args = append(args, row...)
		}
		if _, err := tx.ExecContext(ctx, upsertSQL(fqn, t, len(part)), args...); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("mysql: insert into %s: %w", t.Name, serverError(err))
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("mysql: commit: %w", err)
	}
	return int64(len(rows)), nil
}

// selectSQL renders the ReadAll query.
func selectSQL(fqn string, t schema.Table, opt storage.ReadOptions) string {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", strings.Join(ddl.QuoteIdents(t.ColumnNames()), ", "), fqn)
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
	rows, err := r.db.QueryContext(ctx, selectSQL(r.fqn(t), t, opt))
	if err != nil {
		return nil, fmt.Errorf("mysql: select %s: %w", t.Name, serverError(err))
	}
	out, err := storage.ScanAll(rows, len(t.Columns))
	if err != nil {
		return nil, fmt.Errorf("mysql: %s: %w", t.Name, err)
	}
	return out, nil
}

// DropTable drops t if it exists.
func (r *Repository) DropTable(ctx context.Context, t schema.Table) error {
	if _, err := r.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+r.fqn(t)); err != nil {
		return fmt.Errorf("mysql: drop %s: %w", t.Name, serverError(err))
	}
	return nil
}

// Close closes the pool.
func (r *Repository) Close() { _ = r.db.Close() }

// serverError adds the MySQL error number to err when present.
func serverError(err error) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return fmt.Errorf("%w (mysql error %d)", err, me.Number)
	}
	return err
}
