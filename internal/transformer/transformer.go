// Package transformer turns bronze trips into silver ones.
//
// Cleaning is a fixed Chain of builtin steps, in order:
//
//  1. drop trips missing a coordinate
//  2. parse started_at/ended_at
//  3. impute missing station names from trips at the same coordinates
//  4. drop trips whose timestamps did not parse
//  5. lowercase rideable_type and member_casual, normalize station names
//  6. drop trips still missing a required field
//  7. derive trip_duration (optionally dropping negative durations)
//  8. collapse duplicate ride_ids
//
// Malformed rows are never reported individually; they are counted per step
// in Stats and logged as totals.
package transformer

import (
	"github.com/rs/zerolog"

	"tripetl/internal/transformer/builtin"
	"tripetl/internal/trip"
)

// Transformer is one cleaning step.
type Transformer interface {
	Name() string
	Apply([]trip.Draft) []trip.Draft
}

// Chain is an ordered list of transformers.
type Chain []Transformer

func (c Chain) Apply(in []trip.Draft) []trip.Draft {
	return c.Run(in, nil)
}

// Run applies each step in order. observe, when non-nil, is called after
// every step with the number of rows it removed.
func (c Chain) Run(in []trip.Draft, observe func(step string, dropped int)) []trip.Draft {
	out := in
	for _, t := range c {
		before := len(out)
		out = t.Apply(out)
		if observe != nil {
			observe(t.Name(), before-len(out))
		}
	}
	return out
}

// Options configures a Cleaner. The zero value is the default cleaning.
type Options struct {
	// TimeLayouts overrides trip.DefaultTimeLayouts.
	TimeLayouts []string

	// DedupPolicy is builtin.KeepFirst (default) or builtin.KeepLast.
	DedupPolicy string

	// DropNegativeDuration drops trips that ended before they started.
	DropNegativeDuration bool

	// Logger receives the before/after row counts. Defaults to a no-op logger.
	Logger *zerolog.Logger
}

// Stats describes one Clean call.
type Stats struct {
	RawRows   int
	CleanRows int

	// Dropped counts removed rows by step name (missing_coordinates,
	// bad_timestamp, missing_required, negative_duration, duplicate_ride_id).
	Dropped map[string]int
}

// Cleaner runs the silver cleaning chain.
type Cleaner struct {
	chain  Chain
	logger zerolog.Logger
}

// NewCleaner builds the cleaning chain for opt.
func NewCleaner(opt Options) *Cleaner {
	logger := zerolog.Nop()
	if opt.Logger != nil {
		logger = *opt.Logger
	}

	// Trips with unparsed timestamps stay through ImputeStations. Names that
	// normalize to empty fail Require.
	chain := Chain{
		builtin.RequireCoordinates{},
		builtin.ParseTimestamps{Layouts: opt.TimeLayouts},
		builtin.ImputeStations{},
		builtin.DropBadTimestamps{},
		builtin.Normalize{},
		builtin.Require{Fields: builtin.DefaultRequired},
		builtin.Duration{},
	}
	if opt.DropNegativeDuration {
		chain = append(chain, builtin.DropNegativeDuration{})
	}
	chain = append(chain, builtin.DeDup{Policy: opt.DedupPolicy})
	return &Cleaner{chain: chain, logger: logger}
}

// Clean converts raw trips into cleaned trips. raw is not modified.
func (c *Cleaner) Clean(raw []trip.Record) ([]trip.Cleaned, Stats) {
	stats := Stats{RawRows: len(raw), Dropped: map[string]int{}}

	drafts := c.chain.Run(trip.Drafts(raw), func(step string, dropped int) {
		if dropped > 0 {
			stats.Dropped[step] += dropped
		}
	})

	out := make([]trip.Cleaned, len(drafts))
	for i, d := range drafts {
		out[i] = d.Cleaned()
	}
	stats.CleanRows = len(out)

	ev := c.logger.Info().Int("raw_rows", stats.RawRows).Int("clean_rows", stats.CleanRows)
	for step, n := range stats.Dropped {
		ev = ev.Int("dropped_"+step, n)
	}
	ev.Msg("cleaning done")
	return out, stats
}

// Clean runs the default cleaning chain without logging.
func Clean(raw []trip.Record) []trip.Cleaned {
	out, _ := NewCleaner(Options{}).Clean(raw)
	return out
}
