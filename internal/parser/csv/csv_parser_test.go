package csv

import (
	"context"
	"errors"
	"strings"
	"testing"

	"tripetl/internal/config"
)

const header = "ride_id,rideable_type,started_at,ended_at,start_station_name,start_station_id,end_station_name,end_station_id,start_lat,start_lng,end_lat,end_lng,member_casual\n"

func TestParse_Basic(t *testing.T) {
	t.Parallel()

	in := "\uFEFF" + header +
		"R1,classic_bike,2022-02-01 10:00:00,2022-02-01 10:05:00,Clark St,13,,,41.9,-87.6,41.8,-87.7,member\n" +
		"R2,Electric_Bike,2022-02-01 11:00:00,2022-02-01 11:20:00,,,Unknown End,,41.9,-87.6,,,Casual\n"

	p := NewParser(Options{TrimSpace: true})
	recs, stats, err := p.Parse(context.Background(), strings.NewReader(in))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if stats.Lines != 2 || len(recs) != 2 {
		t.Fatalf("lines=%d recs=%d, want 2/2", stats.Lines, len(recs))
	}

	r1 := recs[0]
	if r1.RideID != "R1" || r1.StartStationName == nil || *r1.StartStationName != "Clark St" {
		t.Fatalf("r1=%+v", r1)
	}
	if r1.StartStationID == nil || *r1.StartStationID != "13" || r1.EndStationName != nil {
		t.Fatalf("r1 station fields=%+v", r1)
	}
	if r1.StartLat == nil || *r1.StartLat != 41.9 || r1.EndLng == nil || *r1.EndLng != -87.7 {
		t.Fatalf("r1 coords=%+v", r1)
	}

	r2 := recs[1]
	if r2.StartStationName != nil || r2.EndLat != nil || r2.EndLng != nil {
		t.Fatalf("r2 nulls=%+v", r2)
	}
	if r2.RideableType != "Electric_Bike" || r2.MemberCasual != "Casual" {
		t.Fatalf("bronze must keep raw casing: %+v", r2)
	}
	if r2.HasCoordinates() {
		t.Fatal("r2 should be missing coordinates")
	}
}

func TestParse_HeaderMapAndOptionalColumns(t *testing.T) {
	t.Parallel()

	in := "Ride;Type;Start;End;From;To;SLat;SLng;ELat;ELng;Member\n" +
		"R1;docked_bike;2022-02-01 10:00:00;2022-02-01 10:05:00;A;B;1;2;3;4;member\n"

	opts := OptionsFrom(config.Options{
		"comma": ";",
		"header_map": map[string]any{
			"Ride": "ride_id", "Type": "rideable_type", "Start": "started_at", "End": "ended_at",
			"From": "start_station_name", "To": "end_station_name",
			"SLat": "start_lat", "SLng": "start_lng", "ELat": "end_lat", "ELng": "end_lng",
			"Member": "member_casual",
		},
	})
	recs, _, err := NewParser(opts).Parse(context.Background(), strings.NewReader(in))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(recs) != 1 || recs[0].RideID != "R1" || *recs[0].EndStationName != "B" {
		t.Fatalf("recs=%+v", recs)
	}
	if recs[0].StartStationID != nil || recs[0].EndStationID != nil {
		t.Fatal("absent station id columns should read as missing")
	}
}

func TestParse_SchemaMismatch(t *testing.T) {
	t.Parallel()

	in := "ride_id,rideable_type,started_at\nR1,classic_bike,2022-02-01 10:00:00\n"
	_, _, err := NewParser(Options{}).Parse(context.Background(), strings.NewReader(in))
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("want ErrSchemaMismatch, got %v", err)
	}
	if !strings.Contains(err.Error(), "start_lat") {
		t.Fatalf("error should name missing columns: %v", err)
	}

	_, _, err = NewParser(Options{}).Parse(context.Background(), strings.NewReader(""))
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("empty input: want ErrSchemaMismatch, got %v", err)
	}
}

func TestParse_BadNumbersAndMalformedLines(t *testing.T) {
	t.Parallel()

	in := header +
		"R1,classic_bike,2022-02-01 10:00:00,2022-02-01 10:05:00,A,,B,,north,-87.6,41.8,-87.7,member\n" +
		"R2,classic_bike,\"broken\"quote,2022-02-01 10:05:00,A,,B,,41.9,-87.6,41.8,-87.7,member\n" +
		"R3,classic_bike,2022-02-01 10:00:00,2022-02-01 10:05:00,A,,B,,41.9,-87.6,41.8,-87.7,member\n"

	recs, stats, err := NewParser(Options{}).Parse(context.Background(), strings.NewReader(in))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if stats.BadNumbers != 1 {
		t.Fatalf("BadNumbers=%d, want 1", stats.BadNumbers)
	}
	if stats.MalformedLines != 1 {
		t.Fatalf("MalformedLines=%d, want 1", stats.MalformedLines)
	}
	if len(recs) != 2 || recs[0].StartLat != nil || recs[1].RideID != "R3" {
		t.Fatalf("recs=%+v", recs)
	}
}

func TestParse_ContextCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	in := header + "R1,classic_bike,2022-02-01 10:00:00,2022-02-01 10:05:00,A,,B,,1,2,3,4,member\n"
	if _, _, err := NewParser(Options{}).Parse(ctx, strings.NewReader(in)); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}
