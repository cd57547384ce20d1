// Package trip defines the bicycle-trip record at each pipeline stage:
//
//   - Record:  bronze, exactly as ingested from the source file
//   - Cleaned: silver, validated, imputed and de-duplicated
//   - DailyTrips, UserTypeCount, StationArrivals: gold summaries
//
// Values/Columns pairs on every type are the canonical column order used for
// table DDL, batched inserts and reads back from the store.
package trip

import "time"

// UnknownEndStation is the placeholder end-station name excluded from the
// top-station ranking.
const UnknownEndStation = "Unknown End"

// Record is a raw (bronze) trip row. Empty strings stand for missing text
// values; nil pointers stand for missing station and coordinate values.
type Record struct {
	RideID       string
	RideableType string
	StartedAt    string
	EndedAt      string

	StartStationName *string
	StartStationID   *string
	EndStationName   *string
	EndStationID     *string

	StartLat *float64
	StartLng *float64
	EndLat   *float64
	EndLng   *float64

	MemberCasual string
}

// BronzeColumns is the column order of Record.Values.
var BronzeColumns = []string{
	"ride_id", "rideable_type", "started_at", "ended_at",
	"start_station_name", "start_station_id",
	"end_station_name", "end_station_id",
	"start_lat", "start_lng", "end_lat", "end_lng",
	"member_casual",
}

// Values returns the row aligned to BronzeColumns. Missing values are nil.
func (r Record) Values() []any {
	return []any{
		nullString(r.RideID), nullString(r.RideableType),
		nullString(r.StartedAt), nullString(r.EndedAt),
		deref(r.StartStationName), deref(r.StartStationID),
		deref(r.EndStationName), deref(r.EndStationID),
		deref(r.StartLat), deref(r.StartLng), deref(r.EndLat), deref(r.EndLng),
		nullString(r.MemberCasual),
	}
}

// HasCoordinates reports whether all four coordinates are present.
func (r Record) HasCoordinates() bool {
	return r.StartLat != nil && r.StartLng != nil && r.EndLat != nil && r.EndLng != nil
}

// Cleaned is a validated (silver) trip row. All fields are populated.
type Cleaned struct {
	RideID       string
	RideableType string
	StartedAt    time.Time
	EndedAt      time.Time

	// TripDuration is EndedAt-StartedAt in whole seconds.
	TripDuration int64

	StartStationName string
	EndStationName   string

	StartLat float64
	StartLng float64
	EndLat   float64
	EndLng   float64

	MemberCasual string
}

// SilverColumns is the column order of Cleaned.Values.
var SilverColumns = []string{
	"ride_id", "rideable_type", "started_at", "ended_at", "trip_duration",
	"start_station_name", "end_station_name",
	"start_lat", "start_lng", "end_lat", "end_lng",
	"member_casual",
}

// Values returns the row aligned to SilverColumns.
func (c Cleaned) Values() []any {
	return []any{
		c.RideID, c.RideableType, c.StartedAt, c.EndedAt, c.TripDuration,
		c.StartStationName, c.EndStationName,
		c.StartLat, c.StartLng, c.EndLat, c.EndLng,
		c.MemberCasual,
	}
}

// DailyTrips counts trips started on one calendar date.
type DailyTrips struct {
	TripDate   time.Time
	TotalTrips int64
}

// DailyColumns is the column order of DailyTrips.Values.
var DailyColumns = []string{"trip_date", "total_trips"}

func (d DailyTrips) Values() []any { return []any{d.TripDate, d.TotalTrips} }

// UserTypeCount counts trips per member_casual value.
type UserTypeCount struct {
	MemberType string
	TotalUsers int64
}

// UserTypeColumns is the column order of UserTypeCount.Values.
var UserTypeColumns = []string{"member_type", "total_users"}

func (u UserTypeCount) Values() []any { return []any{u.MemberType, u.TotalUsers} }

// StationArrivals counts trips that ended at one station.
type StationArrivals struct {
	StationName   string
	TotalArrivals int64
}

// StationColumns is the column order of StationArrivals.Values.
var StationColumns = []string{"station_name", "total_arrivals"}

func (s StationArrivals) Values() []any { return []any{s.StationName, s.TotalArrivals} }

// Valuer is implemented by every stage row type.
type Valuer interface {
	Values() []any
}

// Rows converts a slice of stage rows into [][]any for batched writes.
func Rows[T Valuer](in []T) [][]any {
	out := make([][]any, len(in))
	for i, v := range in {
		out[i] = v.Values()
	}
	return out
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func deref[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
