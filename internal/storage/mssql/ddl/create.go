package ddl

import (
	"fmt"
	"strings"

	"tripetl/internal/schema"
)

// QuoteIdent bracket-quotes an identifier, escaping ].
func QuoteIdent(id string) string { return `[` + strings.ReplaceAll(id, `]`, `]]`) + `]` }

// QuoteIdents quotes every name.
func QuoteIdents(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = QuoteIdent(id)
	}
	return out
}

// FQN returns [keyspace].[table], or [table] for an empty keyspace.
func FQN(keyspace, table string) string {
	if keyspace == "" {
		return QuoteIdent(table)
	}
	return QuoteIdent(keyspace) + "." + QuoteIdent(table)
}

func nstring(s string) string { return "N'" + strings.ReplaceAll(s, "'", "''") + "'" }

// BuildCreateTableSQL returns a T-SQL script that creates the keyspace schema
// and t when they are missing. T-SQL has no CREATE TABLE IF NOT EXISTS, so the
// statement is guarded by OBJECT_ID:
//
//	IF SCHEMA_ID(N'ks') IS NULL EXEC(N'CREATE SCHEMA [ks]');
//	IF OBJECT_ID(N'[ks].[table]', N'U') IS NULL
//	BEGIN
//	  CREATE TABLE [ks].[table] (
//	    [col1] TYPE NOT NULL,
//	    PRIMARY KEY ([col1])
//	  );
//	END
func BuildCreateTableSQL(keyspace string, t schema.Table) (string, error) {
	if err := t.Validate(); err != nil {
		return "", fmt.Errorf("mssql ddl: %w", err)
	}

	cols := make([]string, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		key := t.IsKey(c.Name)
		def := QuoteIdent(c.Name) + " " + MapType(c.Type, key)
		if !c.Nullable || key {
			def += " NOT NULL"
		} else {
			def += " NULL"
		}
		cols = append(cols, def)
	}
	if len(t.PrimaryKey) > 0 {
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(QuoteIdents(t.PrimaryKey), ", ")))
	}

	var b strings.Builder
	if keyspace != "" {
		fmt.Fprintf(&b, "IF SCHEMA_ID(%s) IS NULL EXEC(%s);\n",
			nstring(keyspace), nstring("CREATE SCHEMA "+QuoteIdent(keyspace)))
	}
	fqn := FQN(keyspace, t.Name)
	fmt.Fprintf(&b, "IF OBJECT_ID(%s, N'U') IS NULL\nBEGIN\n  CREATE TABLE %s (\n    %s\n  );\nEND",
		nstring(fqn), fqn, strings.Join(cols, ",\n    "))
	return b.String(), nil
}
