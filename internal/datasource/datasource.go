// Package datasource opens the raw trip CSV for the bronze (and, by default,
// silver) stage.
package datasource

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"tripetl/internal/config"
	"tripetl/internal/datasource/file"
	"tripetl/internal/datasource/httpds"
)

// Source yields the raw bytes of one dataset. Callers must close the reader.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// New builds the Source described by cfg. logger receives HTTP retry lines.
func New(cfg config.Source, logger zerolog.Logger) (Source, error) {
	switch cfg.Kind {
	case "", "file":
		if cfg.File.Path == "" {
			return nil, fmt.Errorf("datasource: file source requires a path")
		}
		return file.NewLocal(cfg.File.Path), nil
	case "http":
		c := httpds.NewClient(httpds.Config{
			Timeout:    time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second,
			MaxRetries: cfg.HTTP.MaxRetries,
			Logger:     &logger,
		})
		return httpds.NewSource(c, cfg.HTTP.URL), nil
	}
	return nil, fmt.Errorf("datasource: unknown source kind %q", cfg.Kind)
}
