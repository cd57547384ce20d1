// Package mssql implements storage.Repository on Microsoft SQL Server with
// go-mssqldb.
//
// A batch is bulk-copied into a session temp table and merged into the
// target by primary key, all in one transaction.
package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"tripetl/internal/schema"
	"tripetl/internal/storage"
	"tripetl/internal/storage/mssql/ddl"
)

// Repository is an MSSQL-backed storage.Repository.
type Repository struct {
	db       *sql.DB
	keyspace string
}

// NewRepository validates dsn, opens the pool and pings the server.
func NewRepository(ctx context.Context, dsn, keyspace string) (*Repository, error) {
	if _, err := msdsn.Parse(dsn); err != nil {
		return nil, fmt.Errorf("mssql dsn: %w", err)
	}
	connector, err := mssql.NewConnector(dsn)
	if err != nil {
		return nil, fmt.Errorf("mssql: connector: %w", err)
	}
	db := sql.OpenDB(connector)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mssql: ping: %w", err)
	}
	return &Repository{db: db, keyspace: keyspace}, nil
}

func (r *Repository) fqn(t schema.Table) string { return ddl.FQN(r.keyspace, t.Name) }

// EnsureTable creates the keyspace schema and t when missing.
func (r *Repository) EnsureTable(ctx context.Context, t schema.Table) error {
	stmt, err := ddl.BuildCreateTableSQL(r.keyspace, t)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("mssql: create %s: %w", t.Name, serverError(err))
	}
	return nil
}

// Truncate empties t.
func (r *Repository) Truncate(ctx context.Context, t schema.Table) error {
	if _, err := r.db.ExecContext(ctx, "TRUNCATE TABLE "+r.fqn(t)); err != nil {
		return fmt.Errorf("mssql: truncate %s: %w", t.Name, serverError(err))
	}
	return nil
}

func stageName(t schema.Table) string { return "#stage_" + t.Name }

// stageSQL creates an empty temp table shaped like the target.
func stageSQL(fqn string, t schema.Table) string {
	return fmt.Sprintf("SELECT TOP 0 %s INTO %s FROM %s",
		strings.Join(ddl.QuoteIdents(t.ColumnNames()), ", "), ddl.QuoteIdent(stageName(t)), fqn)
}

// mergeSQL upserts the staged rows into the target.
func mergeSQL(fqn string, t schema.Table) string {
	cols := t.ColumnNames()
	on := make([]string, len(t.PrimaryKey))
	for i, k := range t.PrimaryKey {
		on[i] = fmt.Sprintf("T.%s = S.%s", ddl.QuoteIdent(k), ddl.QuoteIdent(k))
	}
	var set []string
	src := make([]string, len(cols))
	for i, c := range cols {
		src[i] = "S." + ddl.QuoteIdent(c)
		if !t.IsKey(c) {
			set = append(set, fmt.Sprintf("T.%s = S.%s", ddl.QuoteIdent(c), ddl.QuoteIdent(c)))
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "MERGE INTO %s WITH (HOLDLOCK) AS T\nUSING %s AS S\nON %s\n",
		fqn, ddl.QuoteIdent(stageName(t)), strings.Join(on, " AND "))
	if len(set) > 0 {
		fmt.Fprintf(&b, "WHEN MATCHED THEN UPDATE SET %s\n", strings.Join(set, ", "))
	}
	fmt.Fprintf(&b, "WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s);",
		strings.Join(ddl.QuoteIdents(cols), ", "), strings.Join(src, ", "))
	return b.String()
}

// WriteBatch stages rows with a bulk copy and merges them into t. Later rows
// win over earlier rows with the same key.
func (r *Repository) WriteBatch(ctx context.Context, t schema.Table, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(t.PrimaryKey) == 0 {
		return 0, fmt.Errorf("mssql: %s has no primary key to merge on", t.Name)
	}
	for i, row := range rows {
		if len(row) != len(t.Columns) {
			return 0, fmt.Errorf("mssql: %s: row %d has %d values, want %d", t.Name, i, len(row), len(t.Columns))
		}
	}
	rows = storage.LastByKey(t, rows)
	fqn := r.fqn(t)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("mssql: begin tx: %w", err)
	}
	rollback := func() { _ = tx.Rollback() }

	if _, err := tx.ExecContext(ctx, stageSQL(fqn, t)); err != nil {
		rollback()
		return 0, fmt.Errorf("mssql: create stage for %s: %w", t.Name, serverError(err))
	}

	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(stageName(t), mssql.BulkOptions{}, t.ColumnNames()...))
	if err != nil {
		rollback()
		return 0, fmt.Errorf("mssql: prepare bulk: %w", err)
	}
	for i := range rows {
		if _, err := stmt.ExecContext(ctx, rows[i]...); err != nil {
			_ = stmt.Close()
			rollback()
			return 0, fmt.Errorf("mssql: bulk row %d: %w", i, serverError(err))
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		rollback()
		return 0, fmt.Errorf("mssql: bulk finalize: %w", serverError(err))
	}
	if err := stmt.Close(); err != nil {
		rollback()
		return 0, fmt.Errorf("mssql: bulk close: %w", err)
	}

	res, err := tx.ExecContext(ctx, mergeSQL(fqn, t))
	if err != nil {
		rollback()
		return 0, fmt.Errorf("mssql: merge into %s: %w", t.Name, serverError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		rollback()
		return 0, fmt.Errorf("mssql: rows affected: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DROP TABLE "+ddl.QuoteIdent(stageName(t))); err != nil {
		rollback()
		return 0, fmt.Errorf("mssql: drop stage: %w", serverError(err))
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("mssql: commit: %w", err)
	}
	return n, nil
}

// selectSQL renders the ReadAll query.
func selectSQL(fqn string, t schema.Table, opt storage.ReadOptions) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	if opt.Limit > 0 {
		fmt.Fprintf(&b, "TOP (%d) ", opt.Limit)
	}
	fmt.Fprintf(&b, "%s FROM %s", strings.Join(ddl.QuoteIdents(t.ColumnNames()), ", "), fqn)
	if opt.OrderBy != "" {
		b.WriteString(" ORDER BY " + ddl.QuoteIdent(opt.OrderBy))
	}
	return b.String()
}

// ReadAll returns the rows of t aligned to t.ColumnNames().
func (r *Repository) ReadAll(ctx context.Context, t schema.Table, opt storage.ReadOptions) ([][]any, error) {
	rows, err := r.db.QueryContext(ctx, selectSQL(r.fqn(t), t, opt))
	if err != nil {
		return nil, fmt.Errorf("mssql: select %s: %w", t.Name, serverError(err))
	}
	out, err := storage.ScanAll(rows, len(t.Columns))
	if err != nil {
		return nil, fmt.Errorf("mssql: %s: %w", t.Name, err)
	}
	return out, nil
}

// DropTable drops t if it exists.
func (r *Repository) DropTable(ctx context.Context, t schema.Table) error {
	if _, err := r.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+r.fqn(t)); err != nil {
		return fmt.Errorf("mssql: drop %s: %w", t.Name, serverError(err))
	}
	return nil
}

// Close closes the pool.
func (r *Repository) Close() { _ = r.db.Close() }

// serverError adds the SQL Server error number to err when present.
func serverError(err error) error {
	var me mssql.Error
	if errors.As(err, &me) {
		return fmt.Errorf("%w (mssql error %d, state %d)", err, me.Number, me.State)
	}
	return err
}
