// Package pipeline runs the bronze, silver and gold stages against a
// storage.Repository.
//
// Every stage follows the same discipline: ensure the target table exists,
// truncate it, produce the new generation in memory and write it with the
// batch loader. A failed step stops the run; nothing is retried.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tripetl/internal/aggregate"
	"tripetl/internal/config"
	"tripetl/internal/datasource"
	"tripetl/internal/metrics"
	csvparser "tripetl/internal/parser/csv"
	"tripetl/internal/profile"
	"tripetl/internal/schema"
	"tripetl/internal/storage"
	"tripetl/internal/transformer"
	"tripetl/internal/trip"
)

// Stage names accepted by Run.
const (
	StageBronze = "bronze"
	StageSilver = "silver"
	StageGold   = "gold"
	StageAll    = "all"
	StageReset  = "reset"
)

// Stages lists the values accepted by Run.
var Stages = []string{StageAll, StageBronze, StageSilver, StageGold, StageReset}

// ErrUnknownStage is returned by Run for an unsupported stage name.
var ErrUnknownStage = errors.New("pipeline: unknown stage")

// aggregateFn is a test hook for the gold transform.
var aggregateFn = func(in []trip.Cleaned) (aggregate.Result, error) {
	return aggregate.Aggregate(in), nil
}

// Options configures a Driver.
type Options struct {
	// Job labels logs and metrics.
	Job string

	// RunID identifies this run in logs. Default: a fresh short UUID.
	RunID string

	// BatchSize bounds rows per write. Default storage.DefaultChunkSize.
	BatchSize int

	// GoldReadLimit caps silver rows read by the gold stage; 0 = unlimited.
	GoldReadLimit int

	// SilverUpstream is config.UpstreamSource (default) or
	// config.UpstreamBronze.
	SilverUpstream string

	// AutoCreateTable creates missing tables before truncating them.
	AutoCreateTable bool

	Parser csvparser.Options
	Clean  transformer.Options

	// Logger defaults to a no-op logger.
	Logger *zerolog.Logger
}

// OptionsFrom maps a decoded pipeline file onto Options.
func OptionsFrom(p config.Pipeline) Options {
	return Options{
		Job:             p.Job,
		BatchSize:       p.Runtime.BatchSize,
		GoldReadLimit:   p.Runtime.ReadLimit(),
		SilverUpstream:  p.Runtime.SilverUpstream,
		AutoCreateTable: p.Storage.DB.CreateTables(),
		Parser:          csvparser.OptionsFrom(p.Parser.Options),
		Clean: transformer.Options{
			TimeLayouts:          p.Parser.Options.StringSlice("time_layouts"),
			DedupPolicy:          p.Runtime.DedupPolicy,
			DropNegativeDuration: p.Runtime.DropNegativeDuration,
		},
	}
}

// Result summarizes one stage.
type Result struct {
	Stage string

	// Read is the number of input rows the stage consumed.
	Read int

	// Written and Fingerprints are keyed by table name.
	Written      map[string]int64
	Fingerprints map[string]uint64
}

func newResult(stage string) Result {
	return Result{Stage: stage, Written: map[string]int64{}, Fingerprints: map[string]uint64{}}
}

// Driver sequences the stages. It is not safe for concurrent use.
type Driver struct {
	repo   storage.Repository
	src    datasource.Source
	opt    Options
	logger zerolog.Logger
}

// New returns a Driver writing to repo and reading raw CSV from src. src may
// be nil when only the gold stage, reset, or a bronze-upstream silver stage
// will run.
func New(repo storage.Repository, src datasource.Source, opt Options) *Driver {
	if opt.RunID == "" {
		opt.RunID = strings.SplitN(uuid.NewString(), "-", 2)[0]
	}
	if opt.BatchSize <= 0 {
		opt.BatchSize = storage.DefaultChunkSize
	}
	if opt.SilverUpstream == "" {
		opt.SilverUpstream = config.UpstreamSource
	}
	logger := zerolog.Nop()
	if opt.Logger != nil {
		logger = *opt.Logger
	}
	logger = logger.With().Str("job", opt.Job).Str("run_id", opt.RunID).Logger()

	return &Driver{repo: repo, src: src, opt: opt, logger: logger}
}

// RunID returns the identifier attached to every log line of this run.
func (d *Driver) RunID() string { return d.opt.RunID }

// Run executes the named stage. StageAll runs bronze, silver and gold in
// order and stops at the first failure.
func (d *Driver) Run(ctx context.Context, stage string) ([]Result, error) {
	var run []func(context.Context) (Result, error)
	switch stage {
	case StageBronze:
		run = append(run, d.RunBronze)
	case StageSilver:
		run = append(run, d.RunSilver)
	case StageGold:
		run = append(run, d.RunGold)
	case StageAll, "":
		run = append(run, d.RunBronze, d.RunSilver, d.RunGold)
	case StageReset:
		return nil, d.Reset(ctx)
	default:
		return nil, fmt.Errorf("%w %q (want one of %s)", ErrUnknownStage, stage, strings.Join(Stages, ", "))
	}

	var out []Result
	for _, fn := range run {
		res, err := fn(ctx)
		if err != nil {
			return out, err
		}
		out = append(out, res)
	}
	return out, nil
}

// RunBronze loads the source file into the bronze table unchanged.
func (d *Driver) RunBronze(ctx context.Context) (Result, error) {
	res := newResult(StageBronze)
	logger := d.stageLogger(StageBronze)

	records, err := d.readSource(ctx, StageBronze, logger)
	if err != nil {
		return res, err
	}
	res.Read = len(records)
	profile.Bronze(records).Log(logger)

	if err := d.replace(ctx, StageBronze, schema.Bronze, trip.Rows(records), &res, logger); err != nil {
		return res, err
	}
	return res, nil
}

// RunSilver cleans the upstream records and replaces the silver table.
func (d *Driver) RunSilver(ctx context.Context) (Result, error) {
	res := newResult(StageSilver)
	logger := d.stageLogger(StageSilver)

	var (
		raw []trip.Record
		err error
	)
	switch d.opt.SilverUpstream {
	case config.UpstreamBronze:
		raw, err = d.readBronze(ctx, logger)
	default:
		raw, err = d.readSource(ctx, StageSilver, logger)
	}
	if err != nil {
		return res, err
	}
	res.Read = len(raw)

	var (
		cleaned []trip.Cleaned
		stats   transformer.Stats
	)
	err = metrics.Timed(d.opt.Job, step(StageSilver, "transform"), logger, func() error {
		opt := d.opt.Clean
		opt.Logger = &logger
		cleaned, stats = transformer.NewCleaner(opt).Clean(raw)
		return nil
	})
	if err != nil {
		return res, err
	}
	for reason, n := range stats.Dropped {
		metrics.RecordRows(d.opt.Job, StageSilver, "dropped_"+reason, int64(n))
	}
	profile.Silver(cleaned).Log(logger)

	if err := d.replace(ctx, StageSilver, schema.Silver, trip.Rows(cleaned), &res, logger); err != nil {
		return res, err
	}
	return res, nil
}

// RunGold aggregates the silver table into the three gold tables.
func (d *Driver) RunGold(ctx context.Context) (Result, error) {
	res := newResult(StageGold)
	logger := d.stageLogger(StageGold)

	var cleaned []trip.Cleaned
	err := metrics.Timed(d.opt.Job, step(StageGold, "read"), logger, func() error {
		rows, err := d.repo.ReadAll(ctx, schema.Silver, storage.ReadOptions{
			OrderBy: "ride_id",
			Limit:   d.opt.GoldReadLimit,
		})
		if err != nil {
			return err
		}
		cleaned = make([]trip.Cleaned, 0, len(rows))
		for i, row := range rows {
			c, err := trip.CleanedFromValues(row)
			if err != nil {
				return fmt.Errorf("silver row %d: %w", i, err)
			}
			cleaned = append(cleaned, c)
		}
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("gold: read silver: %w", err)
	}
	res.Read = len(cleaned)
	metrics.RecordRows(d.opt.Job, StageGold, "read", int64(len(cleaned)))
	logger.Info().Int("silver_rows", len(cleaned)).Int("read_limit", d.opt.GoldReadLimit).Msg("silver loaded")

	var agg aggregate.Result
	err = metrics.Timed(d.opt.Job, step(StageGold, "transform"), logger, func() error {
		var err error
		agg, err = aggregateFn(cleaned)
		return err
	})
	if err != nil {
		return res, fmt.Errorf("gold: aggregate: %w", err)
	}

	views := []struct {
		table schema.Table
		rows  [][]any
	}{
		{schema.GoldDaily, trip.Rows(agg.Daily)},
		{schema.GoldUserType, trip.Rows(agg.UserType)},
		{schema.GoldTopStations, trip.Rows(agg.Stations)},
	}
	for _, v := range views {
		if err := d.replace(ctx, StageGold, v.table, v.rows, &res, logger); err != nil {
			return res, err
		}
	}
	return res, nil
}

// Reset drops every pipeline table. A failed drop is logged and the
// remaining tables are still dropped; the failures are returned joined.
func (d *Driver) Reset(ctx context.Context) error {
	logger := d.stageLogger(StageReset)

	var errs []error
	for _, t := range schema.All() {
		if err := d.repo.DropTable(ctx, t); err != nil {
			logger.Error().Err(err).Str("table", t.Name).Msg("drop failed")
			errs = append(errs, fmt.Errorf("drop %s: %w", t.Name, err))
			continue
		}
		logger.Info().Str("table", t.Name).Msg("table dropped")
	}
	return errors.Join(errs...)
}

// replace ensures, truncates and reloads one table.
func (d *Driver) replace(ctx context.Context, stage string, t schema.Table, rows [][]any, res *Result, logger zerolog.Logger) error {
	logger = logger.With().Str("table", t.Name).Logger()

	if d.opt.AutoCreateTable {
		err := metrics.Timed(d.opt.Job, step(stage, "create_tables"), logger, func() error {
			return d.repo.EnsureTable(ctx, t)
		})
		if err != nil {
			return fmt.Errorf("%s: ensure %s: %w", stage, t.Name, err)
		}
	}

	err := metrics.Timed(d.opt.Job, step(stage, "truncate"), logger, func() error {
		return d.repo.Truncate(ctx, t)
	})
	if err != nil {
		return fmt.Errorf("%s: truncate %s: %w", stage, t.Name, err)
	}

	var written int64
	err = metrics.Timed(d.opt.Job, step(stage, "load"), logger, func() error {
		n, err := storage.LoadInChunks(ctx, logger, rows, d.opt.BatchSize, storage.TableWriter(d.repo, t))
		written = n
		return err
	})
	metrics.RecordRows(d.opt.Job, stage, "written", written)
	metrics.RecordBatches(d.opt.Job, t.Name, chunks(written, d.opt.BatchSize))
	if err != nil {
		return fmt.Errorf("%s: load %s: %w", stage, t.Name, err)
	}

	fp := trip.Fingerprint(rows)
	res.Written[t.Name] = written
	res.Fingerprints[t.Name] = fp
	logger.Info().Int64("rows", written).Str("fingerprint", fmt.Sprintf("%016x", fp)).Msg("table loaded")
	return nil
}

// readSource opens and parses the raw CSV.
func (d *Driver) readSource(ctx context.Context, stage string, logger zerolog.Logger) ([]trip.Record, error) {
	if d.src == nil {
		return nil, fmt.Errorf("%s: no source configured", stage)
	}
	var (
		records []trip.Record
		stats   csvparser.Stats
	)
	err := metrics.Timed(d.opt.Job, step(stage, "read"), logger, func() error {
		rc, err := d.src.Open(ctx)
		if err != nil {
			return err
		}
		defer rc.Close()
		records, stats, err = csvparser.NewParser(d.opt.Parser).Parse(ctx, rc)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: read source: %w", stage, err)
	}

	metrics.RecordRows(d.opt.Job, stage, "read", int64(len(records)))
	metrics.RecordRows(d.opt.Job, stage, "malformed_lines", int64(stats.MalformedLines))
	logger.Info().
		Int("lines", stats.Lines).
		Int("records", len(records)).
		Int("malformed_lines", stats.MalformedLines).
		Int("bad_numbers", stats.BadNumbers).
		Msg("source parsed")
	return records, nil
}

// readBronze reads the bronze table back in ride_id order.
func (d *Driver) readBronze(ctx context.Context, logger zerolog.Logger) ([]trip.Record, error) {
	var records []trip.Record
	err := metrics.Timed(d.opt.Job, step(StageSilver, "read"), logger, func() error {
		rows, err := d.repo.ReadAll(ctx, schema.Bronze, storage.ReadOptions{OrderBy: "ride_id"})
		if err != nil {
			return err
		}
		records = make([]trip.Record, 0, len(rows))
		for i, row := range rows {
			r, err := trip.RecordFromValues(row)
			if err != nil {
				return fmt.Errorf("bronze row %d: %w", i, err)
			}
			records = append(records, r)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("silver: read bronze: %w", err)
	}
	metrics.RecordRows(d.opt.Job, StageSilver, "read", int64(len(records)))
	return records, nil
}

func (d *Driver) stageLogger(stage string) zerolog.Logger {
	return d.logger.With().Str("stage", stage).Logger()
}

func step(stage, name string) string { return stage + "." + name }

func chunks(n int64, size int) int64 {
	if n <= 0 || size <= 0 {
		return 0
	}
	return (n + int64(size) - 1) / int64(size)
}
