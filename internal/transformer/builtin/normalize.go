package builtin

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"tripetl/internal/trip"
)

// Normalize lowercases rideable_type and member_casual and rewrites station
// names to NFC with non-breaking spaces folded to plain spaces.
type Normalize struct{}

func (Normalize) Name() string { return "normalize" }

func (Normalize) Apply(in []trip.Draft) []trip.Draft {
	lower := cases.Lower(language.Und)
	for i := range in {
		d := &in[i]
		d.RideableType = lower.String(d.RideableType)
		d.MemberCasual = lower.String(d.MemberCasual)
		d.StartStationName = normalizeName(d.StartStationName)
		d.EndStationName = normalizeName(d.EndStationName)
	}
	return in
}

// normalizeName returns a new pointer; imputed names are shared between trips.
func normalizeName(p *string) *string {
	if p == nil {
		return nil
	}
	s := strings.TrimSpace(strings.ReplaceAll(norm.NFC.String(*p), "\u00a0", " "))
	return &s
}
