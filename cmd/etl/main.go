// Command etl runs the bicycle-trip medallion pipeline:
//
//	etl -config configs/pipelines/divvy.json -stage all
//
// Stages are bronze, silver, gold, all (the three in order) and reset (drop
// every pipeline table). Connection details are read from the credentials
// file (default noshare.toml) and override storage.db.dsn.
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"tripetl/internal/config"
	"tripetl/internal/datasource"
	"tripetl/internal/pipeline"

	// register every storage backend with the factory; the config picks one.
	_ "tripetl/internal/storage/all"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

// cliFlags holds the parsed command line.
type cliFlags struct {
	configPath      string
	stage           string
	validate        bool
	verbose         bool
	logFormat       string
	credentialsPath string
	credentialsSet  bool
	envFile         string
	metricsBackend  string
	pushgatewayURL  string
	datadogAddr     string
}

func parseFlags(args []string, stderr io.Writer) (cliFlags, error) {
	var f cliFlags
	set := flag.NewFlagSet("etl", flag.ContinueOnError)
	set.SetOutput(stderr)

	set.StringVar(&f.configPath, "config", "configs/pipelines/divvy.json", "pipeline config JSON path")
	set.StringVar(&f.stage, "stage", pipeline.StageAll, "stage to run: "+strings.Join(pipeline.Stages, ", "))
	set.BoolVar(&f.validate, "validate", false, "validate the configuration and exit")
	set.BoolVar(&f.verbose, "v", false, "enable debug logs (per-batch progress, column analysis)")
	set.StringVar(&f.logFormat, "log-format", "console", "log format: console or json")
	set.StringVar(&f.credentialsPath, "credentials", config.DefaultCredentialsPath, "TOML credentials file with a [store] section")
	set.StringVar(&f.envFile, "env-file", ".env", "optional dotenv file loaded before reading the environment")
	set.StringVar(&f.metricsBackend, "metrics-backend", "", "metrics backend: pushgateway, datadog or none (overrides METRICS_BACKEND)")
	set.StringVar(&f.pushgatewayURL, "pushgateway-url", "", "Pushgateway base URL (overrides PUSHGATEWAY_URL)")
	set.StringVar(&f.datadogAddr, "datadog-addr", "", "DogStatsD address (overrides DD_AGENT_ADDR)")

	if err := set.Parse(args); err != nil {
		return f, err
	}
	set.Visit(func(fl *flag.Flag) {
		if fl.Name == "credentials" {
			f.credentialsSet = true
		}
	})
	return f, nil
}

// run is main without the process exit, returning the exit code.
func run(ctx context.Context, args []string, stderr io.Writer) int {
	f, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	logger := newLogger(stderr, f.logFormat, f.verbose)

	if err := godotenv.Load(f.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn().Err(err).Str("path", f.envFile).Msg("env file not loaded")
	}

	p, err := loadPipeline(f)
	if err != nil {
		logger.Error().Err(err).Msg("load configuration")
		return 1
	}

	issues := config.ValidatePipeline(p)
	for _, iss := range issues {
		ev := logger.Warn()
		if iss.Severity == config.SeverityError {
			ev = logger.Error()
		}
		ev.Str("path", iss.Path).Msg(iss.Message)
	}
	if config.HasErrors(issues) {
		logger.Error().Str("config", f.configPath).Msg("configuration is invalid")
		return 1
	}
	if f.validate {
		logger.Info().Str("config", f.configPath).Msg("configuration is valid")
		return 0
	}

	runID := strings.SplitN(uuid.NewString(), "-", 2)[0]
	logger = logger.With().Str("job", p.Job).Str("run_id", runID).Logger()

	flush := setupMetrics(resolveMetrics(f, p.Metrics), p.Job, runID, logger)
	defer flush()

	start := time.Now()
	if err := execute(ctx, p, f.stage, runID, logger); err != nil {
		logger.Error().Err(err).Str("stage", f.stage).Msg("pipeline failed")
		return 1
	}
	logger.Info().Str("stage", f.stage).Dur("elapsed", time.Since(start)).Msg("pipeline completed")
	return 0
}

// loadPipeline decodes the pipeline file and overlays credentials and
// environment overrides.
func loadPipeline(f cliFlags) (config.Pipeline, error) {
	p, err := config.Load(f.configPath)
	if err != nil {
		return config.Pipeline{}, err
	}

	creds, err := config.LoadCredentials(f.credentialsPath, !f.credentialsSet)
	if err != nil {
		return config.Pipeline{}, err
	}
	if err := config.ApplyCredentials(&p, creds); err != nil {
		return config.Pipeline{}, err
	}

	p.Runtime.BatchSize = pickInt(getenvInt("ETL_BATCH_SIZE", 0), p.Runtime.BatchSize)
	return p, nil
}

// execute opens the store and the source and runs stage.
func execute(ctx context.Context, p config.Pipeline, stage, runID string, logger zerolog.Logger) error {
	repo, err := initRepository(ctx, p)
	if err != nil {
		return err
	}
	defer repo.Close()

	var src datasource.Source
	if needsSource(stage, p) {
		if src, err = datasource.New(p.Source, logger); err != nil {
			return err
		}
	}

	opt := pipeline.OptionsFrom(p)
	opt.RunID = runID
	opt.Logger = &logger

	logger.Info().
		Str("source", p.Source.Kind).
		Str("storage", p.Storage.Kind).
		Str("keyspace", p.Storage.DB.Keyspace).
		Int("batch_size", opt.BatchSize).
		Str("silver_upstream", opt.SilverUpstream).
		Msg("pipeline starting")

	results, err := pipeline.New(repo, src, opt).Run(ctx, stage)
	for _, r := range results {
		ev := logger.Info().Str("stage", r.Stage).Int("read", r.Read)
		for table, n := range r.Written {
			ev = ev.Int64(table, n)
		}
		ev.Msg("stage summary")
	}
	return err
}

// needsSource reports whether stage reads the raw CSV.
func needsSource(stage string, p config.Pipeline) bool {
	switch stage {
	case pipeline.StageGold, pipeline.StageReset:
		return false
	case pipeline.StageSilver:
		return p.Runtime.SilverUpstream != config.UpstreamBronze
	}
	return true
}

// newLogger builds the process logger. Only main configures zerolog.
func newLogger(w io.Writer, format string, verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	if format != "json" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
