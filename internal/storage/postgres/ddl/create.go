package ddl

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"tripetl/internal/schema"
)

// FQN returns the quoted, keyspace-qualified name of table. An empty
// keyspace leaves the table unqualified.
func FQN(keyspace, table string) string {
	if keyspace == "" {
		return pgx.Identifier{table}.Sanitize()
	}
	return pgx.Identifier{keyspace, table}.Sanitize()
}

// QuoteIdent double-quotes one identifier.
func QuoteIdent(id string) string { return pgx.Identifier{id}.Sanitize() }

// QuoteIdents quotes every name.
func QuoteIdents(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = QuoteIdent(id)
	}
	return out
}

// BuildCreateSchemaSQL creates the keyspace schema when missing.
func BuildCreateSchemaSQL(keyspace string) string {
	return "CREATE SCHEMA IF NOT EXISTS " + QuoteIdent(keyspace)
}

// BuildCreateTableSQL returns a CREATE TABLE IF NOT EXISTS statement for t in
// keyspace. Primary key columns are always NOT NULL.
func BuildCreateTableSQL(keyspace string, t schema.Table) (string, error) {
	if err := t.Validate(); err != nil {
		return "", fmt.Errorf("postgres ddl: %w", err)
	}

	cols := make([]string, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		def := QuoteIdent(c.Name) + " " + MapType(c.Type)
		if !c.Nullable || t.IsKey(c.Name) {
			def += " NOT NULL"
		}
		cols = append(cols, def)
	}
	if len(t.PrimaryKey) > 0 {
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(QuoteIdents(t.PrimaryKey), ", ")))
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);",
		FQN(keyspace, t.Name), strings.Join(cols, ",\n  ")), nil
}
