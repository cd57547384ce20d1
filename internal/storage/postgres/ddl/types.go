// Package ddl renders Postgres DDL for the pipeline tables.
package ddl

import (
	"strings"

	"tripetl/internal/schema"
)

// MapType maps a logical schema type to a Postgres column type.
//
//	bigint    -> BIGINT
//	float     -> DOUBLE PRECISION
//	timestamp -> TIMESTAMPTZ
//	date      -> DATE
//	other     -> TEXT
func MapType(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case schema.BigInt, "int", "integer":
		return "BIGINT"
	case schema.Float, "double", "real":
		return "DOUBLE PRECISION"
	case schema.Timestamp, "timestamptz":
		return "TIMESTAMPTZ"
	case schema.Date:
		return "DATE"
	default:
		return "TEXT"
	}
}
