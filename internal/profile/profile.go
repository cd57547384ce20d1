// Package profile computes the dataset analysis logged after the bronze and
// silver stages: per-column null and distinct counts, the value sets of the
// categorical columns, and a trip_duration summary for silver.
package profile

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"tripetl/internal/bitmap"
	"tripetl/internal/trip"
)

// categorical columns have their distinct values listed in the report.
var categorical = []string{"rideable_type", "member_casual"}

// ColumnStats describes one column.
type ColumnStats struct {
	Name     string
	Nulls    int
	Distinct int
}

// Summary is a five-number summary plus mean and sample standard deviation.
// Quantiles use linear interpolation between closest ranks.
type Summary struct {
	Count int
	Mean  float64
	Std   float64
	Min   float64
	P25   float64
	P50   float64
	P75   float64
	Max   float64
}

// Report is the analysis of one table generation.
type Report struct {
	Stage   string
	Rows    int
	Columns []ColumnStats

	// RowsWithNulls counts rows with at least one null cell.
	RowsWithNulls int

	// Values lists the sorted distinct non-null values of each categorical
	// column present in the table.
	Values map[string][]string

	// Duration summarizes trip_duration in seconds; nil for bronze.
	Duration *Summary
}

// Table profiles rows aligned to columns. A nil cell counts as null.
func Table(stage string, columns []string, rows [][]any) Report {
	rep := Report{
		Stage:   stage,
		Rows:    len(rows),
		Columns: make([]ColumnStats, len(columns)),
		Values:  map[string][]string{},
	}

	anyNull := bitmap.New(len(rows))
	for c, name := range columns {
		nulls := bitmap.New(len(rows))
		seen := map[string]struct{}{}
		for r, row := range rows {
			if c >= len(row) || row[c] == nil {
				nulls.Add(r)
				continue
			}
			seen[key(row[c])] = struct{}{}
		}
		anyNull.Or(nulls)
		rep.Columns[c] = ColumnStats{Name: name, Nulls: nulls.Count(), Distinct: len(seen)}

		if isCategorical(name) {
			vals := make([]string, 0, len(seen))
			for v := range seen {
				vals = append(vals, v)
			}
			sort.Strings(vals)
			rep.Values[name] = vals
		}
	}
	rep.RowsWithNulls = anyNull.Count()
	return rep
}

// Bronze profiles raw records.
func Bronze(in []trip.Record) Report {
	return Table("bronze", trip.BronzeColumns, trip.Rows(in))
}

// Silver profiles cleaned records, including the duration summary.
func Silver(in []trip.Cleaned) Report {
	rep := Table("silver", trip.SilverColumns, trip.Rows(in))
	d := make([]float64, len(in))
	for i, c := range in {
		d[i] = float64(c.TripDuration)
	}
	s := Describe(d)
	rep.Duration = &s
	return rep
}

// Describe summarizes xs. An empty input gives a zero Summary; a single
// value has a zero standard deviation.
func Describe(xs []float64) Summary {
	if len(xs) == 0 {
		return Summary{}
	}
	s := append([]float64(nil), xs...)
	sort.Float64s(s)

	var sum float64
	for _, x := range s {
		sum += x
	}
	mean := sum / float64(len(s))

	var ss float64
	for _, x := range s {
		ss += (x - mean) * (x - mean)
	}
	std := 0.0
	if len(s) > 1 {
		std = math.Sqrt(ss / float64(len(s)-1))
	}

	return Summary{
		Count: len(s),
		Mean:  mean,
		Std:   std,
		Min:   s[0],
		P25:   quantile(s, 0.25),
		P50:   quantile(s, 0.50),
		P75:   quantile(s, 0.75),
		Max:   s[len(s)-1],
	}
}

// quantile expects sorted input.
func quantile(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// Log writes the report as one summary line plus one debug line per column.
func (r Report) Log(logger zerolog.Logger) {
	ev := logger.Info().
		Str("stage", r.Stage).
		Int("rows", r.Rows).
		Int("columns", len(r.Columns)).
		Int("rows_with_nulls", r.RowsWithNulls)
	for _, name := range categorical {
		if vals, ok := r.Values[name]; ok {
			ev = ev.Strs(name, vals)
		}
	}
	if d := r.Duration; d != nil {
		ev = ev.Dict("trip_duration", zerolog.Dict().
			Int("count", d.Count).
			Float64("mean", d.Mean).
			Float64("std", d.Std).
			Float64("min", d.Min).
			Float64("p25", d.P25).
			Float64("p50", d.P50).
			Float64("p75", d.P75).
			Float64("max", d.Max))
	}
	ev.Msg("dataset analysis")

	for _, c := range r.Columns {
		logger.Debug().
			Str("stage", r.Stage).
			Str("column", c.Name).
			Int("nulls", c.Nulls).
			Int("distinct", c.Distinct).
			Msg("column analysis")
	}
}

func isCategorical(name string) bool {
	for _, c := range categorical {
		if c == name {
			return true
		}
	}
	return false
}

func key(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(t)
	}
}
