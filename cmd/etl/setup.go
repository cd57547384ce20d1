package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog"

	"tripetl/internal/config"
	"tripetl/internal/metrics"
	"tripetl/internal/metrics/datadog"
	"tripetl/internal/metrics/prompush"
	"tripetl/internal/storage"
)

// Test seam for the storage factory.
var newRepositoryFn = func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	return storage.New(ctx, cfg)
}

// initRepository opens the configured backend.
func initRepository(ctx context.Context, p config.Pipeline) (storage.Repository, error) {
	repo, err := newRepositoryFn(ctx, storage.Config{
		Kind:     p.Storage.Kind,
		DSN:      p.Storage.DB.DSN,
		Keyspace: p.Storage.DB.Keyspace,
	})
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	return repo, nil
}

// metricsSettings is the resolved metrics configuration.
type metricsSettings struct {
	backend        string
	pushgatewayURL string
	datadogAddr    string
}

// resolveMetrics applies flag → env → file → default precedence.
func resolveMetrics(f cliFlags, m config.Metrics) metricsSettings {
	return metricsSettings{
		backend:        firstNonEmpty(f.metricsBackend, os.Getenv("METRICS_BACKEND"), m.Backend, "none"),
		pushgatewayURL: firstNonEmpty(f.pushgatewayURL, os.Getenv("PUSHGATEWAY_URL"), m.PushgatewayURL, "http://localhost:9091"),
		datadogAddr:    firstNonEmpty(f.datadogAddr, os.Getenv("DD_AGENT_ADDR"), m.DatadogAddr, "127.0.0.1:8125"),
	}
}

// setupMetrics installs the selected backend and returns its flush func.
// A backend that fails to initialize leaves metrics disabled.
func setupMetrics(s metricsSettings, job, runID string, logger zerolog.Logger) func() {
	var (
		b   metrics.Backend
		err error
	)
	switch s.backend {
	case "pushgateway":
		b, err = prompush.NewBackend(prompush.Config{GatewayURL: s.pushgatewayURL, Job: job, RunID: runID})
	case "datadog":
		b, err = datadog.NewBackend(datadog.Config{
			Addr:       s.datadogAddr,
			GlobalTags: []string{"job:" + job, "run_id:" + runID},
		})
	case "", "none":
		logger.Debug().Msg("metrics: disabled")
		return func() {}
	default:
		logger.Warn().Str("backend", s.backend).Msg("metrics: unknown backend; metrics disabled")
		return func() {}
	}
	if err != nil {
		logger.Warn().Err(err).Str("backend", s.backend).Msg("metrics: init failed; using nop")
		return func() {}
	}

	logger.Info().Str("backend", s.backend).Msg("metrics: enabled")
	metrics.SetBackend(b)
	return func() {
		if err := metrics.Flush(); err != nil {
			logger.Warn().Err(err).Msg("metrics: flush error")
		}
	}
}

// getenvInt reads an int from the environment, returning def when unset or
// invalid.
func getenvInt(k string, def int) int {
	if s := os.Getenv(k); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return def
}

// pickInt chooses a when positive, otherwise b.
func pickInt(a, b int) int {
	if a > 0 {
		return a
	}
	return b
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
