package builtin

import "tripetl/internal/trip"

// ParseTimestamps parses started_at and ended_at into Start and End. A value
// that fails to parse leaves the time zero; the trip stays in the set so it
// can still donate station names to ImputeStations. DropBadTimestamps
// removes it afterwards. Layouts defaults to trip.DefaultTimeLayouts.
type ParseTimestamps struct {
	Layouts []string
}

func (ParseTimestamps) Name() string { return "parse_timestamps" }

func (p ParseTimestamps) Apply(in []trip.Draft) []trip.Draft {
	for i := range in {
		d := &in[i]
		d.Start, _ = trip.ParseTime(d.StartedAt, p.Layouts)
		d.End, _ = trip.ParseTime(d.EndedAt, p.Layouts)
	}
	return in
}

// DropBadTimestamps removes trips whose start or end time did not parse.
type DropBadTimestamps struct{}

func (DropBadTimestamps) Name() string { return "bad_timestamp" }

func (DropBadTimestamps) Apply(in []trip.Draft) []trip.Draft {
	out := in[:0]
	for _, d := range in {
		if d.Start.IsZero() || d.End.IsZero() {
			continue
		}
		out = append(out, d)
	}
	return out
}
