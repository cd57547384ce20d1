package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"tripetl/internal/aggregate"
	"tripetl/internal/config"
	"tripetl/internal/datasource/file"
	"tripetl/internal/schema"
	"tripetl/internal/storage"
	"tripetl/internal/storage/sqlite"
	"tripetl/internal/trip"
)

const tripsCSV = "ride_id,rideable_type,started_at,ended_at,start_station_name,start_station_id,end_station_name,end_station_id,start_lat,start_lng,end_lat,end_lng,member_casual\n" +
	"R1,classic_bike,2022-02-01 10:00:00,2022-02-01 10:05:00,Clark St,13,Wells St,22,41.9,-87.6,41.8,-87.7,member\n" +
	"R2,Electric_Bike,2022-02-01 11:00:00,2022-02-01 11:20:00,,,Unknown End,,41.9,-87.6,41.85,-87.65,Casual\n" +
	"R3,classic_bike,2022-02-01 12:00:00,2022-02-01 12:10:00,Clark St,13,Wells St,22,41.9,-87.6,,-87.7,member\n" +
	"R1,classic_bike,2022-02-01 10:00:00,2022-02-01 10:05:00,Clark St,13,Wells St,22,41.9,-87.6,41.8,-87.7,Casual\n" +
	"R4,classic_bike,not a time,2022-02-01 10:05:00,Clark St,13,Wells St,22,41.9,-87.6,41.8,-87.7,member\n" +
	"R5,docked_bike,2022-02-02 09:00:00,2022-02-02 09:30:00,Clark St,13,,,41.9,-87.6,41.7,-87.5,member\n"

type fixture struct {
	repo *sqlite.Repository
	src  *file.Local
	logs *bytes.Buffer
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "trips.csv")
	if err := os.WriteFile(path, []byte(tripsCSV), 0o600); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	repo, err := sqlite.NewRepository(context.Background(), filepath.Join(dir, "trips.db"))
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	t.Cleanup(repo.Close)
	return fixture{repo: repo, src: file.NewLocal(path), logs: &bytes.Buffer{}}
}

func (f fixture) driver(opt Options) *Driver {
	logger := zerolog.New(f.logs).Level(zerolog.DebugLevel)
	opt.Logger = &logger
	opt.Job = "divvy_test"
	opt.AutoCreateTable = true
	if opt.BatchSize == 0 {
		opt.BatchSize = 2
	}
	return New(f.repo, f.src, opt)
}

func readAll(t *testing.T, repo storage.Repository, tbl schema.Table, orderBy string) [][]any {
	t.Helper()
	rows, err := repo.ReadAll(context.Background(), tbl, storage.ReadOptions{OrderBy: orderBy})
	if err != nil {
		t.Fatalf("ReadAll %s: %v", tbl.Name, err)
	}
	return rows
}

func silverRows(t *testing.T, repo storage.Repository) []trip.Cleaned {
	t.Helper()
	var out []trip.Cleaned
	for _, row := range readAll(t, repo, schema.Silver, "ride_id") {
		c, err := trip.CleanedFromValues(row)
		if err != nil {
			t.Fatalf("CleanedFromValues: %v", err)
		}
		out = append(out, c)
	}
	return out
}

func TestRunAll_EndToEnd(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	d := f.driver(Options{})
	results, err := d.Run(context.Background(), StageAll)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results=%d, want 3", len(results))
	}

	bronze := results[0]
	if bronze.Read != 6 || bronze.Written[schema.Bronze.Name] != 6 {
		t.Fatalf("bronze=%+v", bronze)
	}
	if n := len(readAll(t, f.repo, schema.Bronze, "ride_id")); n != 5 {
		t.Fatalf("bronze table rows=%d, want 5 distinct ride_ids", n)
	}

	silver := silverRows(t, f.repo)
	if len(silver) != 2 || silver[0].RideID != "R1" || silver[1].RideID != "R2" {
		t.Fatalf("silver=%+v", silver)
	}
	if silver[0].MemberCasual != "member" || silver[0].TripDuration != 300 {
		t.Fatalf("R1 should keep its first occurrence: %+v", silver[0])
	}
	if silver[1].StartStationName != "Clark St" || silver[1].RideableType != "electric_bike" || silver[1].TripDuration != 1200 {
		t.Fatalf("R2 imputation or normalization: %+v", silver[1])
	}

	if got := readAll(t, f.repo, schema.GoldUserType, "member_type"); !reflect.DeepEqual(got, [][]any{{"casual", int64(1)}, {"member", int64(1)}}) {
		t.Fatalf("gold_user_type=%v", got)
	}
	if got := readAll(t, f.repo, schema.GoldTopStations, "station_name"); !reflect.DeepEqual(got, [][]any{{"Wells St", int64(1)}}) {
		t.Fatalf("gold_top_stations=%v", got)
	}
	daily := readAll(t, f.repo, schema.GoldDaily, "trip_date")
	if len(daily) != 1 || daily[0][1] != int64(2) {
		t.Fatalf("gold_daily_trips=%v", daily)
	}

	logs := f.logs.String()
	for _, s := range []string{
		`"run_id":"` + d.RunID() + `"`,
		`"message":"cleaning done"`,
		`"dropped_missing_coordinates":1`,
		`"dropped_bad_timestamp":1`,
		`"dropped_missing_required":1`,
		`"dropped_duplicate_ride_id":1`,
		`"message":"dataset analysis"`,
		`"message":"loader: input exhausted"`,
		`batch #3: rps=`,
		`"message":"table loaded"`,
	} {
		if !strings.Contains(logs, s) {
			t.Errorf("logs missing %s", s)
		}
	}
}

func TestRunAll_Idempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	first, err := f.driver(Options{}).Run(context.Background(), StageAll)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := f.driver(Options{BatchSize: 500}).Run(context.Background(), StageAll)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	for i := range first {
		if !reflect.DeepEqual(first[i].Fingerprints, second[i].Fingerprints) {
			t.Fatalf("stage %s fingerprints differ: %v vs %v", first[i].Stage, first[i].Fingerprints, second[i].Fingerprints)
		}
	}
	if n := len(silverRows(t, f.repo)); n != 2 {
		t.Fatalf("silver rows after re-run=%d, want 2", n)
	}
}

func TestRunSilver_FromBronze(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.driver(Options{}).RunBronze(ctx); err != nil {
		t.Fatalf("bronze: %v", err)
	}

	d := New(f.repo, nil, Options{SilverUpstream: config.UpstreamBronze, AutoCreateTable: true})
	res, err := d.RunSilver(ctx)
	if err != nil {
		t.Fatalf("silver: %v", err)
	}
	if res.Read != 5 || res.Written[schema.Silver.Name] != 2 {
		t.Fatalf("silver=%+v", res)
	}
	// Bronze keeps the last write for a duplicated ride_id.
	if got := silverRows(t, f.repo); got[0].RideID != "R1" || got[0].MemberCasual != "casual" {
		t.Fatalf("silver=%+v", got)
	}
}

func TestRunGold_ReadLimit(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.driver(Options{}).Run(ctx, StageAll); err != nil {
		t.Fatalf("Run: %v", err)
	}

	res, err := f.driver(Options{GoldReadLimit: 1}).RunGold(ctx)
	if err != nil {
		t.Fatalf("gold: %v", err)
	}
	if res.Read != 1 {
		t.Fatalf("read=%d, want 1", res.Read)
	}
	if got := readAll(t, f.repo, schema.GoldUserType, "member_type"); !reflect.DeepEqual(got, [][]any{{"member", int64(1)}}) {
		t.Fatalf("gold_user_type=%v", got)
	}
}

func TestReset(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	d := f.driver(Options{})
	if _, err := d.Run(ctx, StageAll); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := d.Run(ctx, StageReset); err != nil {
		t.Fatalf("reset: %v", err)
	}
	for _, tbl := range schema.All() {
		if _, err := f.repo.ReadAll(ctx, tbl, storage.ReadOptions{}); err == nil {
			t.Fatalf("%s still exists after reset", tbl.Name)
		}
	}
	if err := d.Reset(ctx); err != nil {
		t.Fatalf("reset of missing tables: %v", err)
	}
}

func TestRun_UnknownStageAndMissingSource(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if _, err := f.driver(Options{}).Run(context.Background(), "platinum"); !errors.Is(err, ErrUnknownStage) {
		t.Fatalf("want ErrUnknownStage, got %v", err)
	}
	if _, err := New(f.repo, nil, Options{}).RunBronze(context.Background()); err == nil {
		t.Fatal("want error without a source")
	}
}

// failingRepo accepts everything except writes.
type failingRepo struct {
	err       error
	dropErr   map[string]error
	truncated []string
}

func (r *failingRepo) EnsureTable(context.Context, schema.Table) error { return nil }
func (r *failingRepo) Truncate(_ context.Context, t schema.Table) error {
	r.truncated = append(r.truncated, t.Name)
	return nil
}
func (r *failingRepo) WriteBatch(context.Context, schema.Table, [][]any) (int64, error) {
	return 0, r.err
}
func (r *failingRepo) ReadAll(context.Context, schema.Table, storage.ReadOptions) ([][]any, error) {
	return nil, nil
}
func (r *failingRepo) DropTable(_ context.Context, t schema.Table) error { return r.dropErr[t.Name] }
func (r *failingRepo) Close()                                            {}

func TestRunBronze_WriteFailureIsFatal(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	repo := &failingRepo{err: errors.New("disk full")}
	results, err := New(repo, f.src, Options{}).Run(context.Background(), StageAll)

	var ce *storage.ChunkError
	if !errors.As(err, &ce) || ce.Index != 0 || !errors.Is(err, repo.err) {
		t.Fatalf("want ChunkError wrapping disk full, got %v", err)
	}
	if len(results) != 0 || !reflect.DeepEqual(repo.truncated, []string{schema.Bronze.Name}) {
		t.Fatalf("run should stop at bronze: results=%v truncated=%v", results, repo.truncated)
	}
}

func TestReset_ContinuesPastFailures(t *testing.T) {
	t.Parallel()

	boom := errors.New("locked")
	repo := &failingRepo{dropErr: map[string]error{schema.Silver.Name: boom}}
	err := New(repo, nil, Options{}).Reset(context.Background())
	if !errors.Is(err, boom) || !strings.Contains(err.Error(), "drop silver_trip_data") {
		t.Fatalf("want joined drop error, got %v", err)
	}
}

func TestOptionsFrom(t *testing.T) {
	t.Parallel()

	p, err := config.Decode(strings.NewReader(`{
		"job": "divvy",
		"source": {"kind": "file", "file": {"path": "trips.csv"}},
		"parser": {"options": {"comma": ";", "time_layouts": ["2006-01-02T15:04:05Z07:00"]}},
		"storage": {"kind": "sqlite", "db": {"dsn": "trips.db"}},
		"runtime": {"dedup_policy": "keep-last", "drop_negative_duration": true}
	}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	opt := OptionsFrom(p)
	if opt.Job != "divvy" || opt.BatchSize != config.DefaultBatchSize || opt.GoldReadLimit != config.DefaultGoldReadLimit {
		t.Fatalf("opt=%+v", opt)
	}
	if opt.Parser.Comma != ';' || !opt.AutoCreateTable || opt.SilverUpstream != config.UpstreamSource {
		t.Fatalf("opt=%+v", opt)
	}
	if opt.Clean.DedupPolicy != "keep-last" || !opt.Clean.DropNegativeDuration || len(opt.Clean.TimeLayouts) != 1 {
		t.Fatalf("clean=%+v", opt.Clean)
	}
}

// Not parallel: it swaps aggregateFn.
func TestRunGold_AggregateFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	d := f.driver(Options{})
	ctx := context.Background()
	if _, err := d.Run(ctx, StageSilver); err != nil {
		t.Fatalf("silver: %v", err)
	}

	boom := errors.New("aggregate failed")
	orig := aggregateFn
	aggregateFn = func([]trip.Cleaned) (aggregate.Result, error) { return aggregate.Result{}, boom }
	t.Cleanup(func() { aggregateFn = orig })

	res, err := d.RunGold(ctx)
	if !errors.Is(err, boom) || !strings.Contains(err.Error(), "gold: aggregate") {
		t.Fatalf("want aggregate error, got %v", err)
	}
	if len(res.Written) != 0 {
		t.Fatalf("nothing should be written: %v", res.Written)
	}
	if !strings.Contains(f.logs.String(), `"message":"step failed"`) {
		t.Fatal("timed step should log the failure")
	}
}
