// Package metrics is a backend-agnostic facade for pipeline metrics.
//
// Counters and durations go to a process-wide Backend that defaults to a
// no-op, so instrumented code never has to check whether metrics are
// configured. Concrete backends live in subpackages (prompush, datadog) and
// are installed with SetBackend.
package metrics

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Metric names emitted by the helpers below.
const (
	StageTotal    = "trip_stage_total"
	StageDuration = "trip_stage_duration_seconds"
	RowsTotal     = "trip_rows_total"
	BatchesTotal  = "trip_batches_total"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a duration-style value.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes buffered metrics, if the backend needs it.
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// SetBackend installs b. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

// Flush delegates to the current backend.
func Flush() error {
	return current().Flush()
}

// RecordStep counts one execution of a pipeline step and records its
// duration, labeled success or failure.
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{"job": job, "step": step, "status": status}

	b := current()
	b.IncCounter(StageTotal, 1, lbls)
	b.ObserveHistogram(StageDuration, d.Seconds(), lbls)
}

// RecordRows adds delta rows of the given kind for a step. Kinds used by the
// pipeline are "read", "written" and "dropped_<reason>".
func RecordRows(job, step, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(RowsTotal, float64(delta), Labels{"job": job, "step": step, "kind": kind})
}

// RecordBatches adds delta flushed batches for table.
func RecordBatches(job, table string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(BatchesTotal, float64(delta), Labels{"job": job, "table": table})
}

// Timed runs fn as the named step. It logs the start and the outcome with
// the elapsed time and records the step with RecordStep.
func Timed(job, step string, logger zerolog.Logger, fn func() error) error {
	logger.Info().Str("step", step).Msg("step started")
	start := time.Now()
	err := fn()
	d := time.Since(start)
	RecordStep(job, step, err, d)

	if err != nil {
		logger.Error().Err(err).Str("step", step).Dur("elapsed", d).Msg("step failed")
		return err
	}
	logger.Info().Str("step", step).Dur("elapsed", d).Msg("step finished")
	return nil
}
