package ddl

import (
	"fmt"
	"strings"

	"tripetl/internal/schema"
)

// BuildCreateTableSQL returns a CREATE TABLE IF NOT EXISTS statement:
//
//	CREATE TABLE IF NOT EXISTS "table" (
//	  "col1" TYPE NOT NULL,
//	  "col2" TYPE,
//	  PRIMARY KEY ("col1")
//	);
func BuildCreateTableSQL(t schema.Table) (string, error) {
	if err := t.Validate(); err != nil {
		return "", fmt.Errorf("sqlite ddl: %w", err)
	}

	cols := make([]string, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		def := QuoteIdent(c.Name) + " " + MapType(c.Type)
		if !c.Nullable {
			def += " NOT NULL"
		}
		cols = append(cols, def)
	}
	if len(t.PrimaryKey) > 0 {
		pks := make([]string, len(t.PrimaryKey))
		for i, k := range t.PrimaryKey {
			pks[i] = QuoteIdent(k)
		}
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pks, ", ")))
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);",
		QuoteIdent(t.Name), strings.Join(cols, ",\n  ")), nil
}

// QuoteIdent double-quotes an identifier, escaping embedded quotes.
func QuoteIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// QuoteIdents quotes every name.
func QuoteIdents(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = QuoteIdent(id)
	}
	return out
}
