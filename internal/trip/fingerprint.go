package trip

import (
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/xxh3"
)

// Fingerprint returns an order-independent digest of a table generation.
// Two generations with the same multiset of rows have the same fingerprint,
// which makes re-runs of a stage comparable from the logs alone.
func Fingerprint(rows [][]any) uint64 {
	var (
		sum uint64
		b   strings.Builder
	)
	for _, row := range rows {
		b.Reset()
		for i, v := range row {
			if i > 0 {
				b.WriteByte('\x1f')
			}
			writeCanonical(&b, v)
		}
		// Addition keeps the digest independent of row order while still
		// distinguishing duplicated rows.
		sum += xxh3.HashString(b.String())
	}
	return sum
}

func writeCanonical(b *strings.Builder, v any) {
	switch t := v.(type) {
	case nil:
		b.WriteByte('\x00')
	case string:
		b.WriteString(t)
	case time.Time:
		b.WriteString(t.UTC().Format(time.RFC3339Nano))
	case float64:
		b.WriteString(strconv.FormatFloat(t, 'g', -1, 64))
	case int64:
		b.WriteString(strconv.FormatInt(t, 10))
	default:
		b.WriteString(asString(t))
	}
}
