package builtin

import "tripetl/internal/trip"

type coordKey struct{ lat, lng float64 }

// ImputeStations fills missing station names from trips sharing the exact
// same coordinates. Start names are grouped by (start_lat, start_lng) and end
// names by (end_lat, end_lng), independently.
//
// Within a group a missing name takes the nearest known name before it in
// input order; when none precedes it, the nearest known name after it.
// Groups with no known name stay missing. Nothing is dropped.
type ImputeStations struct{}

func (ImputeStations) Name() string { return "impute_stations" }

func (ImputeStations) Apply(in []trip.Draft) []trip.Draft {
	fillByCoordinates(in,
		func(d *trip.Draft) (coordKey, bool) { return keyOf(d.StartLat, d.StartLng) },
		func(d *trip.Draft) **string { return &d.StartStationName })
	fillByCoordinates(in,
		func(d *trip.Draft) (coordKey, bool) { return keyOf(d.EndLat, d.EndLng) },
		func(d *trip.Draft) **string { return &d.EndStationName })
	return in
}

func keyOf(lat, lng *float64) (coordKey, bool) {
	if lat == nil || lng == nil {
		return coordKey{}, false
	}
	return coordKey{*lat, *lng}, true
}

func fillByCoordinates(in []trip.Draft, key func(*trip.Draft) (coordKey, bool), name func(*trip.Draft) **string) {
	groups := make(map[coordKey][]int)
	for i := range in {
		if k, ok := key(&in[i]); ok {
			groups[k] = append(groups[k], i)
		}
	}

	for _, idx := range groups {
		// forward: nearest preceding known name
		var prev *string
		for _, i := range idx {
			p := name(&in[i])
			if *p != nil {
				prev = *p
			} else if prev != nil {
				*p = prev
			}
		}
		// backward: only the leading run before the first known name is left
		var next *string
		for j := len(idx) - 1; j >= 0; j-- {
			p := name(&in[idx[j]])
			if *p != nil {
				next = *p
			} else if next != nil {
				*p = next
			}
		}
	}
}
