package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tripetl/internal/config"
	"tripetl/internal/pipeline"
	"tripetl/internal/storage"
)

const sampleCSV = "ride_id,rideable_type,started_at,ended_at,start_station_name,start_station_id,end_station_name,end_station_id,start_lat,start_lng,end_lat,end_lng,member_casual\n" +
	"R1,classic_bike,2022-02-01 10:00:00,2022-02-01 10:05:00,Clark St,13,Wells St,22,41.9,-87.6,41.8,-87.7,member\n" +
	"R2,electric_bike,2022-02-01 11:00:00,2022-02-01 11:20:00,,,Wells St,22,41.9,-87.6,41.8,-87.7,casual\n"

// writeConfig writes a sqlite pipeline into a temp dir and returns the
// config path.
func writeConfig(t *testing.T, runtime string) string {
	t.Helper()
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "trips.csv")
	if err := os.WriteFile(csvPath, []byte(sampleCSV), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := fmt.Sprintf(`{
		"job": "divvy_test",
		"source": {"kind": "file", "file": {"path": %q}},
		"storage": {"kind": "sqlite", "db": {"dsn": %q, "auto_create_table": true}},
		"runtime": %s
	}`, csvPath, filepath.Join(dir, "trips.db"), runtime)
	cfgPath := filepath.Join(dir, "pipeline.json")
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}
	return cfgPath
}

func baseArgs(cfgPath string, extra ...string) []string {
	dir := filepath.Dir(cfgPath)
	return append([]string{
		"-config", cfgPath,
		"-log-format", "json",
		"-env-file", filepath.Join(dir, "missing.env"),
		"-metrics-backend", "none",
	}, extra...)
}

func TestRun_ValidateOnly(t *testing.T) {
	tests := []struct {
		name     string
		runtime  string
		wantCode int
		wantLog  string
	}{
		{"valid", `{"batch_size": 10}`, 0, "configuration is valid"},
		{"invalid_batch", `{"batch_size": -1}`, 1, "configuration is invalid"},
		{"invalid_upstream", `{"silver_upstream": "gold"}`, 1, "unknown silver_upstream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfgPath := writeConfig(t, tt.runtime)
			args := baseArgs(cfgPath, "-validate")

			var stderr bytes.Buffer
			if code := run(context.Background(), args, &stderr); code != tt.wantCode {
				t.Fatalf("code=%d, want %d\n%s", code, tt.wantCode, stderr.String())
			}
			if !strings.Contains(stderr.String(), tt.wantLog) {
				t.Fatalf("log missing %q:\n%s", tt.wantLog, stderr.String())
			}
		})
	}
}

func TestRun_AllStagesThenReset(t *testing.T) {
	cfgPath := writeConfig(t, `{"batch_size": 1}`)
	credPath := filepath.Join(filepath.Dir(cfgPath), "noshare.toml")
	dbPath := filepath.Join(filepath.Dir(cfgPath), "from-credentials.db")
	if err := os.WriteFile(credPath, []byte(fmt.Sprintf("[store]\ndsn = %q\n", dbPath)), 0o600); err != nil {
		t.Fatal(err)
	}

	args := baseArgs(cfgPath, "-credentials", credPath)

	var stderr bytes.Buffer
	if code := run(context.Background(), args, &stderr); code != 0 {
		t.Fatalf("all: code=%d\n%s", code, stderr.String())
	}
	logs := stderr.String()
	for _, s := range []string{`"message":"pipeline completed"`, `"message":"stage summary"`, `"silver_trip_data":2`} {
		if !strings.Contains(logs, s) {
			t.Fatalf("log missing %s:\n%s", s, logs)
		}
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("credentials DSN not used: %v", err)
	}

	stderr.Reset()
	if code := run(context.Background(), append(args, "-stage", "reset"), &stderr); code != 0 {
		t.Fatalf("reset: code=%d\n%s", code, stderr.String())
	}
	if !strings.Contains(stderr.String(), `"message":"table dropped"`) {
		t.Fatalf("reset logs:\n%s", stderr.String())
	}
}

func TestRun_Failures(t *testing.T) {
	cfgPath := writeConfig(t, `{}`)

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"unknown_stage", baseArgs(cfgPath, "-stage", "platinum"), 1},
		{"missing_explicit_credentials", baseArgs(cfgPath, "-credentials", filepath.Join(t.TempDir(), "missing.toml")), 1},
		{"missing_config", []string{"-config", filepath.Join(t.TempDir(), "nope.json")}, 1},
		{"bad_flag", []string{"-nope"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stderr bytes.Buffer
			if code := run(context.Background(), tt.args, &stderr); code != tt.want {
				t.Fatalf("code=%d, want %d\n%s", code, tt.want, stderr.String())
			}
		})
	}
}

func TestLoadPipeline_EnvBatchSize(t *testing.T) {
	cfgPath := writeConfig(t, `{"batch_size": 10}`)
	t.Setenv("ETL_BATCH_SIZE", "250")

	p, err := loadPipeline(cliFlags{configPath: cfgPath, credentialsPath: filepath.Join(t.TempDir(), "none.toml")})
	if err != nil {
		t.Fatalf("loadPipeline: %v", err)
	}
	if p.Runtime.BatchSize != 250 {
		t.Fatalf("batch_size=%d, want 250", p.Runtime.BatchSize)
	}
}

func TestResolveMetrics_Precedence(t *testing.T) {
	t.Setenv("METRICS_BACKEND", "datadog")
	t.Setenv("PUSHGATEWAY_URL", "")
	t.Setenv("DD_AGENT_ADDR", "")

	file := config.Metrics{Backend: "pushgateway", PushgatewayURL: "http://file:9091"}

	got := resolveMetrics(cliFlags{}, file)
	if got.backend != "datadog" || got.pushgatewayURL != "http://file:9091" || got.datadogAddr != "127.0.0.1:8125" {
		t.Fatalf("env over file: %+v", got)
	}
	got = resolveMetrics(cliFlags{metricsBackend: "none", pushgatewayURL: "http://flag:9091"}, file)
	if got.backend != "none" || got.pushgatewayURL != "http://flag:9091" {
		t.Fatalf("flag over env: %+v", got)
	}
}

func TestNeedsSource(t *testing.T) {
	t.Parallel()

	bronzeUpstream := config.Pipeline{Runtime: config.RuntimeConfig{SilverUpstream: config.UpstreamBronze}}
	tests := []struct {
		stage string
		p     config.Pipeline
		want  bool
	}{
		{pipeline.StageAll, config.Pipeline{}, true},
		{pipeline.StageBronze, config.Pipeline{}, true},
		{pipeline.StageSilver, config.Pipeline{}, true},
		{pipeline.StageSilver, bronzeUpstream, false},
		{pipeline.StageGold, config.Pipeline{}, false},
		{pipeline.StageReset, config.Pipeline{}, false},
	}
	for _, tt := range tests {
		if got := needsSource(tt.stage, tt.p); got != tt.want {
			t.Errorf("needsSource(%q, upstream=%q)=%v, want %v", tt.stage, tt.p.Runtime.SilverUpstream, got, tt.want)
		}
	}
}

func TestInitRepository_UsesSeam(t *testing.T) {
	want := errors.New("no backend")
	orig := newRepositoryFn
	newRepositoryFn = func(_ context.Context, cfg storage.Config) (storage.Repository, error) {
		if cfg.Kind != "postgres" || cfg.Keyspace != "tripdata" || cfg.DSN != "postgres://x" {
			t.Errorf("cfg=%+v", cfg)
		}
		return nil, want
	}
	defer func() { newRepositoryFn = orig }()

	p := config.Pipeline{Storage: config.Storage{Kind: "postgres", DB: config.DBConfig{DSN: "postgres://x", Keyspace: "tripdata"}}}
	if _, err := initRepository(context.Background(), p); !errors.Is(err, want) {
		t.Fatalf("want %v, got %v", want, err)
	}
}

func TestGetenvIntAndPickInt(t *testing.T) {
	t.Setenv("ETL_TEST_INT", "")
	if v := getenvInt("ETL_TEST_INT", 7); v != 7 {
		t.Fatalf("getenvInt unset = %d, want 7", v)
	}
	t.Setenv("ETL_TEST_INT", "42")
	if v := getenvInt("ETL_TEST_INT", 7); v != 42 {
		t.Fatalf("getenvInt set = %d, want 42", v)
	}
	t.Setenv("ETL_TEST_INT", "x")
	if v := getenvInt("ETL_TEST_INT", 7); v != 7 {
		t.Fatalf("getenvInt invalid = %d, want 7", v)
	}
	if pickInt(5, 9) != 5 || pickInt(0, 9) != 9 {
		t.Fatal("pickInt")
	}
}
