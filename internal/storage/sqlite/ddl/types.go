// Package ddl renders SQLite DDL for the pipeline tables.
package ddl

import (
	"strings"

	"tripetl/internal/schema"
)

// MapType maps a logical schema type to a SQLite column type.
//
// SQLite is dynamically typed; the declared type only sets the column
// affinity. Timestamps and dates are declared TIMESTAMP/DATE so the driver
// hands them back as time.Time.
func MapType(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case schema.BigInt, "int", "integer":
		return "INTEGER"
	case schema.Float, "double", "real":
		return "REAL"
	case schema.Timestamp, "datetime":
		return "TIMESTAMP"
	case schema.Date:
		return "DATE"
	default:
		return "TEXT"
	}
}
