// Package schema describes the pipeline tables independently of any SQL
// dialect. Backends map the logical column types to their own DDL.
package schema

import (
	"fmt"
	"strings"

	"tripetl/internal/trip"
)

// Logical column types.
const (
	Text      = "text"
	Float     = "float"
	BigInt    = "bigint"
	Timestamp = "timestamp"
	Date      = "date"
)

// Column is one table column.
type Column struct {
	Name     string
	Type     string
	Nullable bool
}

// Table is a table definition. Name is unqualified; backends prefix it with
// the keyspace.
type Table struct {
	Name       string
	Columns    []Column
	PrimaryKey []string
}

// ColumnNames returns the column names in declaration order.
func (t Table) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// IsKey reports whether col is part of the primary key.
func (t Table) IsKey(col string) bool {
	for _, k := range t.PrimaryKey {
		if k == col {
			return true
		}
	}
	return false
}

// KeyIndexes returns the positions of the primary key columns.
func (t Table) KeyIndexes() []int {
	out := make([]int, 0, len(t.PrimaryKey))
	for i, c := range t.Columns {
		if t.IsKey(c.Name) {
			out = append(out, i)
		}
	}
	return out
}

// Validate checks that the table is well formed.
func (t Table) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("schema: table name must not be empty")
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("schema: table %s has no columns", t.Name)
	}
	seen := make(map[string]struct{}, len(t.Columns))
	for _, c := range t.Columns {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("schema: table %s has a column with an empty name", t.Name)
		}
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("schema: table %s declares %s twice", t.Name, c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	for _, k := range t.PrimaryKey {
		if _, ok := seen[k]; !ok {
			return fmt.Errorf("schema: table %s primary key %s is not a column", t.Name, k)
		}
	}
	return nil
}

// Pipeline tables.
var (
	Bronze = Table{
		Name: "bronze_trip_data",
		Columns: columns(trip.BronzeColumns, map[string]string{
			"start_lat": Float, "start_lng": Float, "end_lat": Float, "end_lng": Float,
		}, "ride_id"),
		PrimaryKey: []string{"ride_id"},
	}

	Silver = Table{
		Name: "silver_trip_data",
		Columns: columns(trip.SilverColumns, map[string]string{
			"started_at": Timestamp, "ended_at": Timestamp, "trip_duration": BigInt,
			"start_lat": Float, "start_lng": Float, "end_lat": Float, "end_lng": Float,
		}, trip.SilverColumns...),
		PrimaryKey: []string{"ride_id"},
	}

	GoldDaily = Table{
		Name:       "gold_daily_trips",
		Columns:    columns(trip.DailyColumns, map[string]string{"trip_date": Date, "total_trips": BigInt}, trip.DailyColumns...),
		PrimaryKey: []string{"trip_date"},
	}

	GoldUserType = Table{
		Name:       "gold_user_type",
		Columns:    columns(trip.UserTypeColumns, map[string]string{"total_users": BigInt}, trip.UserTypeColumns...),
		PrimaryKey: []string{"member_type"},
	}

	GoldTopStations = Table{
		Name:       "gold_top_stations",
		Columns:    columns(trip.StationColumns, map[string]string{"total_arrivals": BigInt}, trip.StationColumns...),
		PrimaryKey: []string{"station_name"},
	}
)

// All lists every pipeline table in stage order.
func All() []Table {
	return []Table{Bronze, Silver, GoldDaily, GoldUserType, GoldTopStations}
}

// Lookup returns the pipeline table called name.
func Lookup(name string) (Table, bool) {
	for _, t := range All() {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// columns builds column definitions; types default to Text and every column
// is nullable unless listed in notNull.
func columns(names []string, types map[string]string, notNull ...string) []Column {
	required := make(map[string]bool, len(notNull))
	for _, n := range notNull {
		required[n] = true
	}
	out := make([]Column, len(names))
	for i, n := range names {
		typ := types[n]
		if typ == "" {
			typ = Text
		}
		out[i] = Column{Name: n, Type: typ, Nullable: !required[n]}
	}
	return out
}
