package trip

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeLayouts are tried in order when parsing started_at/ended_at.
// Values without a zone are interpreted as UTC.
var DefaultTimeLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05 -0700 MST",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTime parses s with the first matching layout.
func ParseTime(s string, layouts []string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if len(layouts) == 0 {
		layouts = DefaultTimeLayouts
	}
	for _, l := range layouts {
		if t, err := time.ParseInLocation(l, s, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// CleanedFromValues rebuilds a silver row read back from the store, aligned to
// SilverColumns. Drivers differ in how they surface TIMESTAMP and numeric
// columns, so every field is converted leniently.
func CleanedFromValues(v []any) (Cleaned, error) {
	if len(v) != len(SilverColumns) {
		return Cleaned{}, fmt.Errorf("trip: silver row has %d values, want %d", len(v), len(SilverColumns))
	}
	var (
		c   Cleaned
		err error
	)
	c.RideID = asString(v[0])
	c.RideableType = asString(v[1])
	if c.StartedAt, err = asTime(v[2]); err != nil {
		return Cleaned{}, fmt.Errorf("trip: started_at: %w", err)
	}
	if c.EndedAt, err = asTime(v[3]); err != nil {
		return Cleaned{}, fmt.Errorf("trip: ended_at: %w", err)
	}
	if c.TripDuration, err = asInt(v[4]); err != nil {
		return Cleaned{}, fmt.Errorf("trip: trip_duration: %w", err)
	}
	c.StartStationName = asString(v[5])
	c.EndStationName = asString(v[6])
	for i, dst := range []*float64{&c.StartLat, &c.StartLng, &c.EndLat, &c.EndLng} {
		if *dst, err = asFloat(v[7+i]); err != nil {
			return Cleaned{}, fmt.Errorf("trip: %s: %w", SilverColumns[7+i], err)
		}
	}
	c.MemberCasual = asString(v[11])
	return c, nil
}

// RecordFromValues rebuilds a bronze row read back from the store, aligned to
// BronzeColumns.
func RecordFromValues(v []any) (Record, error) {
	if len(v) != len(BronzeColumns) {
		return Record{}, fmt.Errorf("trip: bronze row has %d values, want %d", len(v), len(BronzeColumns))
	}
	r := Record{
		RideID:           asString(v[0]),
		RideableType:     asString(v[1]),
		StartedAt:        asTimeString(v[2]),
		EndedAt:          asTimeString(v[3]),
		StartStationName: asStringPtr(v[4]),
		StartStationID:   asStringPtr(v[5]),
		EndStationName:   asStringPtr(v[6]),
		EndStationID:     asStringPtr(v[7]),
		MemberCasual:     asString(v[12]),
	}
	for i, dst := range []**float64{&r.StartLat, &r.StartLng, &r.EndLat, &r.EndLng} {
		if v[8+i] == nil {
			continue
		}
		f, err := asFloat(v[8+i])
		if err != nil {
			return Record{}, fmt.Errorf("trip: %s: %w", BronzeColumns[8+i], err)
		}
		*dst = &f
	}
	return r, nil
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

func asStringPtr(v any) *string {
	if v == nil {
		return nil
	}
	s := asString(v)
	return &s
}

func asTimeString(v any) string {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format("2006-01-02 15:04:05")
	}
	return asString(v)
}

func asTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string, []byte:
		s := asString(t)
		if ts, ok := ParseTime(s, nil); ok {
			return ts, nil
		}
		return time.Time{}, fmt.Errorf("unparsable timestamp %q", s)
	case int64:
		return time.Unix(t, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp type %T", v)
}

func asInt(v any) (int64, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case int32:
		return int64(t), nil
	case int:
		return int64(t), nil
	case float64:
		return int64(t), nil
	case string, []byte:
		return strconv.ParseInt(strings.TrimSpace(asString(t)), 10, 64)
	}
	return 0, fmt.Errorf("unsupported integer type %T", v)
}

func asFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case string, []byte:
		return strconv.ParseFloat(strings.TrimSpace(asString(t)), 64)
	}
	return 0, fmt.Errorf("unsupported float type %T", v)
}
