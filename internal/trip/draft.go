package trip

import "time"

// Draft is a bronze record moving through the cleaning steps. Start, End and
// Duration are set once the timestamps have been parsed.
type Draft struct {
	Record

	Start    time.Time
	End      time.Time
	Duration int64
}

// Drafts wraps raw records for cleaning. The records are copied.
func Drafts(in []Record) []Draft {
	out := make([]Draft, len(in))
	for i, r := range in {
		out[i] = Draft{Record: r}
	}
	return out
}

// Cleaned converts a draft that passed every check. The caller guarantees
// stations and coordinates are non-nil.
func (d Draft) Cleaned() Cleaned {
	return Cleaned{
		RideID:           d.RideID,
		RideableType:     d.RideableType,
		StartedAt:        d.Start,
		EndedAt:          d.End,
		TripDuration:     d.Duration,
		StartStationName: *d.StartStationName,
		EndStationName:   *d.EndStationName,
		StartLat:         *d.StartLat,
		StartLng:         *d.StartLng,
		EndLat:           *d.EndLat,
		EndLng:           *d.EndLng,
		MemberCasual:     d.MemberCasual,
	}
}
