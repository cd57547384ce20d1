// Package ddl renders SQL Server DDL for the pipeline tables.
package ddl

import (
	"strings"

	"tripetl/internal/schema"
)

// MapType maps a logical schema type to a SQL Server column type. Key text
// columns get a bounded NVARCHAR because NVARCHAR(MAX) cannot be indexed.
func MapType(kind string, key bool) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case schema.BigInt, "int", "integer":
		return "BIGINT"
	case schema.Float, "double", "real":
		return "FLOAT"
	case schema.Timestamp, "datetime":
		return "DATETIME2"
	case schema.Date:
		return "DATE"
	default:
		if key {
			return "NVARCHAR(450)"
		}
		return "NVARCHAR(MAX)"
	}
}
