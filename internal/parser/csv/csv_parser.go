// Package csv reads a trip-data CSV file into bronze trip.Record values.
//
// The header row is required. Header names are trimmed, stripped of a UTF-8
// BOM and mapped through an optional header_map (source name -> canonical
// column). Every required bronze column must be present or ErrSchemaMismatch
// is returned; the station id columns are optional.
//
// Cells are read as text. Empty cells become missing values. A coordinate
// that is not a float is also treated as missing and counted as a parse error;
// such rows are kept in bronze and discarded by the cleaning stage.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"tripetl/internal/config"
	"tripetl/internal/trip"
)

// ErrSchemaMismatch is returned when a required column is absent from the
// header row.
var ErrSchemaMismatch = errors.New("csv: schema mismatch")

// optionalColumns may be absent from the header.
var optionalColumns = map[string]struct{}{
	"start_station_id": {},
	"end_station_id":   {},
}

// Options configures the reader. Zero values get defaults.
type Options struct {
	// Comma is the field delimiter. Default ','.
	Comma rune

	// TrimSpace trims surrounding whitespace from every cell.
	TrimSpace bool

	// LazyQuotes tolerates bare quotes inside fields.
	LazyQuotes bool

	// HeaderMap maps source header names to canonical column names.
	HeaderMap map[string]string
}

// OptionsFrom builds Options from the parser options bag of a pipeline file.
func OptionsFrom(o config.Options) Options {
	return Options{
		Comma:      o.Rune("comma", ','),
		TrimSpace:  o.Bool("trim_space", true),
		LazyQuotes: o.Bool("lazy_quotes", false),
		HeaderMap:  o.StringMap("header_map"),
	}
}

// Stats summarizes one read.
type Stats struct {
	// Lines is the number of data lines read, excluding the header.
	Lines int
	// MalformedLines were rejected by the CSV reader and skipped.
	MalformedLines int
	// BadNumbers counts coordinate cells that failed to parse as floats.
	BadNumbers int
}

// Parser reads trip CSV input. It is safe to reuse across inputs but not
// concurrency-safe.
type Parser struct{ opt Options }

// NewParser constructs a Parser with the provided Options.
func NewParser(opt Options) *Parser {
	if opt.Comma == 0 {
		opt.Comma = ','
	}
	return &Parser{opt: opt}
}

// Parse reads all of r into memory. ctx is checked between rows.
func (p *Parser) Parse(ctx context.Context, r io.Reader) ([]trip.Record, Stats, error) {
	var stats Stats

	cr := csv.NewReader(r)
	cr.Comma = p.opt.Comma
	cr.LazyQuotes = p.opt.LazyQuotes
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	hdr, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, stats, fmt.Errorf("%w: empty input, header row required", ErrSchemaMismatch)
		}
		return nil, stats, fmt.Errorf("csv: read header: %w", err)
	}
	idx, err := p.columnIndex(StripHeaderBOM(append([]string(nil), hdr...)))
	if err != nil {
		return nil, stats, err
	}

	var out []trip.Record
	for {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		stats.Lines++
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				stats.MalformedLines++
				continue
			}
			return nil, stats, fmt.Errorf("csv: read line %d: %w", stats.Lines+1, err)
		}

		get := func(col string) string {
			i, ok := idx[col]
			if !ok || i >= len(rec) {
				return ""
			}
			if p.opt.TrimSpace {
				return strings.TrimSpace(rec[i])
			}
			return rec[i]
		}
		num := func(col string) *float64 {
			s := strings.TrimSpace(get(col))
			if s == "" {
				return nil
			}
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				stats.BadNumbers++
				return nil
			}
			return &f
		}
		opt := func(col string) *string {
			s := get(col)
			if s == "" {
				return nil
			}
			return &s
		}

		out = append(out, trip.Record{
			RideID:           get("ride_id"),
			RideableType:     get("rideable_type"),
			StartedAt:        get("started_at"),
			EndedAt:          get("ended_at"),
			StartStationName: opt("start_station_name"),
			StartStationID:   opt("start_station_id"),
			EndStationName:   opt("end_station_name"),
			EndStationID:     opt("end_station_id"),
			StartLat:         num("start_lat"),
			StartLng:         num("start_lng"),
			EndLat:           num("end_lat"),
			EndLng:           num("end_lng"),
			MemberCasual:     get("member_casual"),
		})
	}
	return out, stats, nil
}

// columnIndex maps canonical column names to header positions and checks that
// every required column is present.
func (p *Parser) columnIndex(hdr []string) (map[string]int, error) {
	idx := make(map[string]int, len(hdr))
	for i, raw := range hdr {
		name := strings.TrimSpace(raw)
		if mapped, ok := p.opt.HeaderMap[name]; ok && mapped != "" {
			name = mapped
		}
		if _, dup := idx[name]; !dup {
			idx[name] = i
		}
	}

	var missing []string
	for _, col := range trip.BronzeColumns {
		if _, ok := optionalColumns[col]; ok {
			continue
		}
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing columns %s", ErrSchemaMismatch, strings.Join(missing, ", "))
	}
	return idx, nil
}
