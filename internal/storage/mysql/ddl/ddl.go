// Package ddl renders MySQL DDL for the pipeline tables.
package ddl

import (
	"fmt"
	"strings"

	"tripetl/internal/schema"
)

// MapType maps a logical schema type to a MySQL column type. TEXT cannot be
// a primary key without a prefix length, so key text columns use VARCHAR.
func MapType(kind string, key bool) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case schema.BigInt, "int", "integer":
		return "BIGINT"
	case schema.Float, "double", "real":
		return "DOUBLE"
	case schema.Timestamp, "datetime":
		return "DATETIME(6)"
	case schema.Date:
		return "DATE"
	default:
		if key {
			return "VARCHAR(255)"
		}
		return "TEXT"
	}
}

// QuoteIdent backtick-quotes an identifier.
func QuoteIdent(id string) string { return "`" + strings.ReplaceAll(id, "`", "``") + "`" }

// QuoteIdents quotes every name.
func QuoteIdents(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = QuoteIdent(id)
	}
	return out
}

// FQN returns `db`.`table`, or `table` for an empty keyspace.
func FQN(keyspace, table string) string {
	if keyspace == "" {
		return QuoteIdent(table)
	}
	return QuoteIdent(keyspace) + "." + QuoteIdent(table)
}

// BuildCreateDatabaseSQL returns the statement creating the keyspace database.
func BuildCreateDatabaseSQL(keyspace string) string {
	return "CREATE DATABASE IF NOT EXISTS " + QuoteIdent(keyspace)
}

// BuildCreateTableSQL returns CREATE TABLE IF NOT EXISTS for t.
func BuildCreateTableSQL(keyspace string, t schema.Table) (string, error) {
	if err := t.Validate(); err != nil {
		return "", fmt.Errorf("mysql ddl: %w", err)
	}
	defs := make([]string, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		key := t.IsKey(c.Name)
		def := QuoteIdent(c.Name) + " " + MapType(c.Type, key)
		if !c.Nullable || key {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	if len(t.PrimaryKey) > 0 {
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(QuoteIdents(t.PrimaryKey), ", ")))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)",
		FQN(keyspace, t.Name), strings.Join(defs, ",\n  ")), nil
}
