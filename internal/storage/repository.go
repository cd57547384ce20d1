// Package storage contains storage-agnostic contracts and utilities: the
// Repository every backend implements, the backend registry, and the chunked
// loader used by every stage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"tripetl/internal/schema"
)

// ErrUnknownKind is returned by New for an unregistered storage kind.
var ErrUnknownKind = errors.New("storage: unknown kind")

// ReadOptions shapes ReadAll.
type ReadOptions struct {
	// OrderBy is a column name; empty leaves the order to the store.
	OrderBy string
	// Limit caps the rows returned. 0 means no limit.
	Limit int
}

// Repository is a table store addressed by keyspace and table name.
//
// WriteBatch upserts by the table's primary key and sends the rows to the
// store as one batch. Rows are aligned to t.ColumnNames().
type Repository interface {
	EnsureTable(ctx context.Context, t schema.Table) error
	Truncate(ctx context.Context, t schema.Table) error
	WriteBatch(ctx context.Context, t schema.Table, rows [][]any) (int64, error)
	ReadAll(ctx context.Context, t schema.Table, opt ReadOptions) ([][]any, error)
	DropTable(ctx context.Context, t schema.Table) error
	Close()
}

// Config selects and configures a backend.
type Config struct {
	Kind     string
	DSN      string
	Keyspace string
}

// Factory opens a Repository for cfg.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers (or replaces) the factory for kind. Backends call it
// from init.
func Register(kind string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	factories[kind] = f
}

// New opens a Repository using the factory registered for cfg.Kind.
func New(ctx context.Context, cfg Config) (Repository, error) {
	regMu.RLock()
	f, ok := factories[cfg.Kind]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: storage.kind=%s (registered: %v)", ErrUnknownKind, cfg.Kind, ListKinds())
	}
	return f(ctx, cfg)
}

// ListKinds returns the registered kinds, sorted.
func ListKinds() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
