package builtin

import (
	"time"

	"tripetl/internal/trip"
)

// Duration sets trip_duration to End-Start in whole seconds, truncated
// toward zero.
type Duration struct{}

func (Duration) Name() string { return "duration" }

func (Duration) Apply(in []trip.Draft) []trip.Draft {
	for i := range in {
		in[i].Duration = int64(in[i].End.Sub(in[i].Start) / time.Second)
	}
	return in
}

// DropNegativeDuration removes trips that ended before they started.
type DropNegativeDuration struct{}

func (DropNegativeDuration) Name() string { return "negative_duration" }

func (DropNegativeDuration) Apply(in []trip.Draft) []trip.Draft {
	out := in[:0]
	for _, d := range in {
		if !d.End.Before(d.Start) {
			out = append(out, d)
		}
	}
	return out
}
