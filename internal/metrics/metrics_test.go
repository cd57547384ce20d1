package metrics

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeBackend is an in-memory Backend for tests.
type fakeBackend struct {
	mu sync.Mutex

	counters   []counterCall
	histograms []histCall
	flushCount int
}

type counterCall struct {
	name   string
	delta  float64
	labels Labels
}

type histCall struct {
	name   string
	value  float64
	labels Labels
}

func (f *fakeBackend) IncCounter(name string, delta float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters = append(f.counters, counterCall{name, delta, labels})
}

func (f *fakeBackend) ObserveHistogram(name string, value float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.histograms = append(f.histograms, histCall{name, value, labels})
}

func (f *fakeBackend) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushCount++
	return nil
}

// install swaps in a fake backend for the duration of the test.
func install(t *testing.T) *fakeBackend {
	t.Helper()
	orig := current()
	fb := &fakeBackend{}
	SetBackend(fb)
	t.Cleanup(func() { SetBackend(orig) })
	return fb
}

func TestRecordStep_SuccessAndFailure(t *testing.T) {
	fb := install(t)

	RecordStep("divvy", "bronze", nil, 2*time.Second)
	RecordStep("divvy", "silver", errors.New("boom"), 1500*time.Millisecond)

	if len(fb.counters) != 2 || len(fb.histograms) != 2 {
		t.Fatalf("counters=%d histograms=%d, want 2/2", len(fb.counters), len(fb.histograms))
	}

	c0 := fb.counters[0]
	if c0.name != StageTotal || c0.delta != 1 {
		t.Fatalf("counter[0]=%#v", c0)
	}
	if c0.labels["job"] != "divvy" || c0.labels["step"] != "bronze" || c0.labels["status"] != "success" {
		t.Fatalf("counter[0].labels=%v", c0.labels)
	}
	if h0 := fb.histograms[0]; h0.name != StageDuration || h0.value < 1.999 || h0.value > 2.001 {
		t.Fatalf("hist[0]=%#v", h0)
	}

	if got := fb.counters[1].labels["status"]; got != "failure" {
		t.Fatalf("counter[1] status=%q, want failure", got)
	}
	if h1 := fb.histograms[1]; h1.value < 1.499 || h1.value > 1.501 {
		t.Fatalf("hist[1].value=%v, want ~1.5", h1.value)
	}
}

func TestRecordRowsAndBatches(t *testing.T) {
	fb := install(t)

	RecordRows("divvy", "silver", "read", 3)
	RecordRows("divvy", "silver", "dropped_missing_coordinates", 0)
	RecordRows("divvy", "silver", "written", 2)
	RecordBatches("divvy", "silver_trip_data", 1)

	if len(fb.counters) != 3 {
		t.Fatalf("expected 3 counter calls, got %d", len(fb.counters))
	}
	if c := fb.counters[0]; c.name != RowsTotal || c.delta != 3 || c.labels["kind"] != "read" || c.labels["step"] != "silver" {
		t.Fatalf("counter[0]=%#v", c)
	}
	if c := fb.counters[1]; c.delta != 2 || c.labels["kind"] != "written" {
		t.Fatalf("counter[1]=%#v", c)
	}
	if c := fb.counters[2]; c.name != BatchesTotal || c.labels["table"] != "silver_trip_data" {
		t.Fatalf("counter[2]=%#v", c)
	}
}

func TestTimed(t *testing.T) {
	fb := install(t)

	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	if err := Timed("divvy", "gold", logger, func() error { return nil }); err != nil {
		t.Fatalf("Timed: %v", err)
	}
	want := errors.New("write failed")
	if err := Timed("divvy", "gold", logger, func() error { return want }); !errors.Is(err, want) {
		t.Fatalf("want %v, got %v", want, err)
	}

	if len(fb.counters) != 2 || fb.counters[1].labels["status"] != "failure" {
		t.Fatalf("counters=%#v", fb.counters)
	}
	out := buf.String()
	for _, s := range []string{`"message":"step started"`, `"message":"step finished"`, `"message":"step failed"`, `"step":"gold"`} {
		if !strings.Contains(out, s) {
			t.Fatalf("log missing %s:\n%s", s, out)
		}
	}
}

func TestSetBackendAndFlush(t *testing.T) {
	fb := install(t)

	if err := Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if fb.flushCount != 1 {
		t.Fatalf("flushCount=%d, want 1", fb.flushCount)
	}

	SetBackend(nil)
	if current() != fb {
		t.Fatal("SetBackend(nil) should not change backend")
	}
}
