// Package aggregate computes the gold summaries from cleaned trips.
//
// All three views are pure functions of their input; none of them mutate it.
package aggregate

import (
	"sort"
	"time"

	"tripetl/internal/trip"
)

// TopStationLimit is the number of end stations kept by TopStations.
const TopStationLimit = 5

// Result holds the three gold views.
type Result struct {
	Daily    []trip.DailyTrips
	UserType []trip.UserTypeCount
	Stations []trip.StationArrivals
}

// Aggregate computes every gold view.
func Aggregate(in []trip.Cleaned) Result {
	return Result{
		Daily:    DailyTrips(in),
		UserType: UserTypes(in),
		Stations: TopStations(in, TopStationLimit),
	}
}

// DailyTrips counts trips per UTC calendar date of started_at, ordered by
// date. Trips without a ride_id or start time are skipped.
func DailyTrips(in []trip.Cleaned) []trip.DailyTrips {
	counts := make(map[time.Time]int64)
	for _, c := range in {
		if c.RideID == "" || c.StartedAt.IsZero() {
			continue
		}
		counts[TripDate(c.StartedAt)]++
	}

	out := make([]trip.DailyTrips, 0, len(counts))
	for d, n := range counts {
		out = append(out, trip.DailyTrips{TripDate: d, TotalTrips: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TripDate.Before(out[j].TripDate) })
	return out
}

// TripDate truncates t to midnight UTC.
func TripDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// UserTypes counts trips per member_casual value in first-seen order.
func UserTypes(in []trip.Cleaned) []trip.UserTypeCount {
	keys, counts := countBy(in, func(c trip.Cleaned) (string, bool) { return c.MemberCasual, true })

	out := make([]trip.UserTypeCount, len(keys))
	for i, k := range keys {
		out[i] = trip.UserTypeCount{MemberType: k, TotalUsers: counts[k]}
	}
	return out
}

// TopStations returns at most limit end stations by arrivals, descending.
// trip.UnknownEndStation is excluded. Ties keep first-seen order.
func TopStations(in []trip.Cleaned, limit int) []trip.StationArrivals {
	keys, counts := countBy(in, func(c trip.Cleaned) (string, bool) {
		return c.EndStationName, c.EndStationName != trip.UnknownEndStation
	})

	out := make([]trip.StationArrivals, len(keys))
	for i, k := range keys {
		out[i] = trip.StationArrivals{StationName: k, TotalArrivals: counts[k]}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TotalArrivals > out[j].TotalArrivals })
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// countBy counts in by key and returns the keys in first-seen order.
func countBy(in []trip.Cleaned, key func(trip.Cleaned) (string, bool)) ([]string, map[string]int64) {
	var order []string
	counts := make(map[string]int64)
	for _, c := range in {
		k, ok := key(c)
		if !ok {
			continue
		}
		if _, seen := counts[k]; !seen {
			order = append(order, k)
		}
		counts[k]++
	}
	return order, counts
}
