package file

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeCSV(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "202202-divvy-tripdata.csv")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write test file: %v", err)
	}
	return p
}

func TestLocalOpen(t *testing.T) {
	t.Parallel()

	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	cases := []struct {
		name        string
		path        func(t *testing.T) string
		ctx         context.Context
		wantErrIs   error
		wantContent string
	}{
		{
			name:        "reads_content",
			path:        func(t *testing.T) string { return writeCSV(t, "ride_id\nR1\n") },
			ctx:         context.Background(),
			wantContent: "ride_id\nR1\n",
		},
		{
			name:      "missing_file",
			path:      func(t *testing.T) string { return filepath.Join(t.TempDir(), "missing.csv") },
			ctx:       context.Background(),
			wantErrIs: os.ErrNotExist,
		},
		{
			name:      "canceled_context",
			path:      func(t *testing.T) string { return writeCSV(t, "ignored") },
			ctx:       canceled,
			wantErrIs: context.Canceled,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			path := c.path(t)
			rc, err := NewLocal(path).Open(c.ctx)
			if c.wantErrIs != nil {
				if !errors.Is(err, c.wantErrIs) {
					t.Fatalf("errors.Is(%v, %v) = false", err, c.wantErrIs)
				}
				if rc != nil {
					t.Fatalf("got non-nil ReadCloser on error: %T", rc)
				}
				if c.wantErrIs == os.ErrNotExist && !strings.Contains(err.Error(), path) {
					t.Fatalf("error %q should name the path", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer rc.Close()
			got, err := io.ReadAll(rc)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if string(got) != c.wantContent {
				t.Fatalf("content=%q, want %q", got, c.wantContent)
			}
		})
	}
}
