package builtin

import (
	"math"

	"tripetl/internal/trip"
)

// RequireCoordinates drops trips missing any of the four coordinates.
// NaN and infinite values count as missing.
type RequireCoordinates struct{}

func (RequireCoordinates) Name() string { return "missing_coordinates" }

func (RequireCoordinates) Apply(in []trip.Draft) []trip.Draft {
	out := in[:0]
	for _, d := range in {
		if finite(d.StartLat) && finite(d.StartLng) && finite(d.EndLat) && finite(d.EndLng) {
			out = append(out, d)
		}
	}
	return out
}

func finite(p *float64) bool {
	return p != nil && !math.IsNaN(*p) && !math.IsInf(*p, 0)
}
