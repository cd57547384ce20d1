package storage

import (
	"database/sql"
	"fmt"
)

// ScanAll drains rows into [][]any with n values per row. []byte values are
// copied to strings so callers see the same shapes across drivers.
func ScanAll(rows *sql.Rows, n int) ([][]any, error) {
	defer rows.Close()

	var out [][]any
	for rows.Next() {
		vals := make([]any, n)
		ptrs := make([]any, n)
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		out = append(out, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// Placeholders returns n copies of p joined by ", ".
func Placeholders(p string, n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, 0, n*(len(p)+2))
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ", "...)
		}
		b = append(b, p...)
	}
	return string(b)
}
