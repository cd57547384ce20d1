package builtin

import "tripetl/internal/trip"

// DefaultRequired lists every silver column; a trip missing any of them
// after imputation is dropped.
var DefaultRequired = []string{
	"ride_id", "rideable_type", "started_at", "ended_at",
	"start_station_name", "end_station_name",
	"start_lat", "start_lng", "end_lat", "end_lng",
	"member_casual",
}

// Require removes any trip missing a value for one of Fields. Timestamps
// count as present once parsed. Unknown field names are ignored.
type Require struct {
	Fields []string
}

func (Require) Name() string { return "missing_required" }

func (r Require) Apply(in []trip.Draft) []trip.Draft {
	out := in[:0]
	for _, d := range in {
		ok := true
		for _, f := range r.Fields {
			if !present(&d, f) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, d)
		}
	}
	return out
}

func present(d *trip.Draft, field string) bool {
	switch field {
	case "ride_id":
		return d.RideID != ""
	case "rideable_type":
		return d.RideableType != ""
	case "member_casual":
		return d.MemberCasual != ""
	case "started_at":
		return !d.Start.IsZero()
	case "ended_at":
		return !d.End.IsZero()
	case "start_station_name":
		return d.StartStationName != nil && *d.StartStationName != ""
	case "end_station_name":
		return d.EndStationName != nil && *d.EndStationName != ""
	case "start_station_id":
		return d.StartStationID != nil
	case "end_station_id":
		return d.EndStationID != nil
	case "start_lat":
		return finite(d.StartLat)
	case "start_lng":
		return finite(d.StartLng)
	case "end_lat":
		return finite(d.EndLat)
	case "end_lng":
		return finite(d.EndLng)
	}
	return true
}
