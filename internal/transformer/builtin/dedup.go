package builtin

import (
	"sort"
	"strings"

	"tripetl/internal/trip"
)

// Dedup policies.
const (
	KeepFirst = "keep-first"
	KeepLast  = "keep-last"
)

// DeDup collapses trips sharing a ride_id to a single winner:
//
//   - "keep-first": the earliest occurrence (default)
//   - "keep-last":  the latest occurrence
//
// Winners keep the position of the occurrence that won. Trips with an empty
// ride_id are not keyed and pass through after the winners.
type DeDup struct {
	Policy string
}

func (DeDup) Name() string { return "duplicate_ride_id" }

func (d DeDup) Apply(in []trip.Draft) []trip.Draft {
	if len(in) == 0 {
		return in
	}
	policy := strings.ToLower(strings.TrimSpace(d.Policy))
	if policy == "" {
		policy = KeepFirst
	}

	winners := make(map[string]int, len(in))
	for i, r := range in {
		if r.RideID == "" {
			continue
		}
		if _, seen := winners[r.RideID]; !seen || policy == KeepLast {
			winners[r.RideID] = i
		}
	}

	indexes := make([]int, 0, len(winners))
	for _, i := range winners {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	out := make([]trip.Draft, 0, len(indexes))
	for _, i := range indexes {
		out = append(out, in[i])
	}
	for _, r := range in {
		if r.RideID == "" {
			out = append(out, r)
		}
	}
	return out
}
