// Package postgres implements storage.Repository on PostgreSQL using pgx v5.
//
// Tables live in the keyspace schema. A batch is queued as one upsert per row
// on a pgx.Batch and sent in a single round trip.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tripetl/internal/schema"
	"tripetl/internal/storage"
	"tripetl/internal/storage/postgres/ddl"
)

// Repository is a Postgres-backed storage.Repository.
type Repository struct {
	pool     *pgxpool.Pool
	keyspace string
}

// NewRepository opens a pool for dsn and checks it with a ping.
func NewRepository(ctx context.Context, dsn, keyspace string) (*Repository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Repository{pool: pool, keyspace: keyspace}, nil
}

func (r *Repository) fqn(t schema.Table) string { return ddl.FQN(r.keyspace, t.Name) }

// EnsureTable creates the keyspace schema and t when missing.
func (r *Repository) EnsureTable(ctx context.Context, t schema.Table) error {
	stmt, err := ddl.BuildCreateTableSQL(r.keyspace, t)
	if err != nil {
		return err
	}
	if r.keyspace != "" {
		if _, err := r.pool.Exec(ctx, ddl.BuildCreateSchemaSQL(r.keyspace)); err != nil {
			return fmt.Errorf("postgres: create schema %s: %w", r.keyspace, pgError(err))
		}
	}
	if _, err := r.pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("postgres: create %s: %w", t.Name, pgError(err))
	}
	return nil
}

// Truncate empties t.
func (r *Repository) Truncate(ctx context.Context, t schema.Table) error {
	if _, err := r.pool.Exec(ctx, "TRUNCATE TABLE "+r.fqn(t)); err != nil {
		return fmt.Errorf("postgres: truncate %s: %w", t.Name, pgError(err))
	}
	return nil
}

// upsertSQL renders INSERT ... ON CONFLICT for one row of t.
func upsertSQL(fqn string, t schema.Table) string {
	cols := t.ColumnNames()
	params := make([]string, len(cols))
	for i := range cols {
		params[i] = fmt.Sprintf("$%d", i+1)
	}

	var set []string
	for _, c := range cols {
		if !t.IsKey(c) {
			set = append(set, fmt.Sprintf("%s = EXCLUDED.%s", ddl.QuoteIdent(c), ddl.QuoteIdent(c)))
		}
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		fqn, strings.Join(ddl.QuoteIdents(cols), ", "), strings.Join(params, ", "))
	switch {
	case len(t.PrimaryKey) == 0:
		return stmt
	case len(set) == 0:
		return fmt.Sprintf("%s ON CONFLICT (%s) DO NOTHING", stmt, strings.Join(ddl.QuoteIdents(t.PrimaryKey), ", "))
	default:
		return fmt.Sprintf("%s ON CONFLICT (%s) DO UPDATE SET %s",
			stmt, strings.Join(ddl.QuoteIdents(t.PrimaryKey), ", "), strings.Join(set, ", "))
	}
}

// WriteBatch queues one upsert per row and sends them together. Each row is
// its own statement, so repeated keys within a batch are applied in order.
func (r *Repository) WriteBatch(ctx context.Context, t schema.Table, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	stmt := upsertSQL(r.fqn(t), t)

	b := &pgx.Batch{}
	for i, row := range rows {
		if len(row) != len(t.Columns) {
			return 0, fmt.Errorf("postgres: %s: row %d has %d values, want %d", t.Name, i, len(row), len(t.Columns))
		}
		b.Queue(stmt, row...)
	}

	br := r.pool.SendBatch(ctx, b)
	var affected int64
	for i := range rows {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return 0, fmt.Errorf("postgres: upsert %s row %d: %w", t.Name, i, pgError(err))
		}
		affected += tag.RowsAffected()
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("postgres: batch %s: %w", t.Name, pgError(err))
	}
	return affected, nil
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
	rows, err := r.pool.Query(ctx, selectSQL(r.fqn(t), t, opt))
	if err != nil {
		return nil, fmt.Errorf("postgres: select %s: %w", t.Name, pgError(err))
	}
	defer rows.Close()

	var out [][]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("postgres: scan %s: %w", t.Name, err)
		}
		out = append(out, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows %s: %w", t.Name, pgError(err))
	}
	return out, nil
}

// DropTable drops t if it exists.
func (r *Repository) DropTable(ctx context.Context, t schema.Table) error {
	if _, err := r.pool.Exec(ctx, "DROP TABLE IF EXISTS "+r.fqn(t)); err != nil {
		return fmt.Errorf("postgres: drop %s: %w", t.Name, pgError(err))
	}
	return nil
}

// Close closes the pool.
func (r *Repository) Close() { r.pool.Close() }

// pgError adds the server's detail and SQLSTATE to err when present.
func pgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Detail != "" {
		return fmt.Errorf("%w (detail: %s, sqlstate %s)", err, pgErr.Detail, pgErr.SQLState())
	}
	return err
}
