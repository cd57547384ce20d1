package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tripetl/internal/schema"
)

// DefaultChunkSize is the write batch size used when none is configured.
const DefaultChunkSize = 500

// ErrInvalidChunkSize is returned for a chunk size <= 0.
var ErrInvalidChunkSize = errors.New("storage: chunk size must be > 0")

// ChunkError reports the chunk whose write failed. Chunks before it were
// written; chunks after it were not attempted.
type ChunkError struct {
	Index  int // 0-based chunk number
	Offset int // position of the chunk's first record in the input
	Size   int
	Err    error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("storage: chunk #%d (offset=%d size=%d): %v", e.Index+1, e.Offset, e.Size, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }

// WriteFn writes one chunk.
type WriteFn[T any] func(ctx context.Context, chunk []T) error

// LoadInChunks splits records into consecutive chunks of at most chunkSize
// and calls write once per chunk, in order. The chunks partition records
// exactly; an empty input writes nothing. The first failing chunk stops the
// load and is returned as a *ChunkError. It returns the number of records in
// successfully written chunks.
//
// Progress is logged at debug level after every chunk.
func LoadInChunks[T any](ctx context.Context, logger zerolog.Logger, records []T, chunkSize int, write WriteFn[T]) (int64, error) {
	if chunkSize <= 0 {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidChunkSize, chunkSize)
	}
	if write == nil {
		return 0, errors.New("storage: write must not be nil")
	}

	var (
		total     int64
		start     = time.Now()
		lastFlush = start
	)
	for i, off := 0, 0; off < len(records); i, off = i+1, off+chunkSize {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		end := off + chunkSize
		if end > len(records) {
			end = len(records)
		}
		chunk := records[off:end]

		if err := write(ctx, chunk); err != nil {
			logger.Error().Err(err).Int("batch", i+1).Int64("total_inserted", total).Msg("loader: write failed")
			return total, &ChunkError{Index: i, Offset: off, Size: len(chunk), Err: err}
		}
		total += int64(len(chunk))

		now := time.Now()
		sinceLast := now.Sub(lastFlush)
		rps := float64(0)
		if sinceLast > 0 {
			rps = float64(len(chunk)) / sinceLast.Seconds()
		}
		logger.Debug().Msgf("batch #%d: rps=%.0f inserted=%d total_inserted=%d elapsed=%s since_last=%s",
			i+1, rps, len(chunk), total,
			now.Sub(start).Truncate(time.Millisecond), sinceLast.Truncate(time.Millisecond))
		lastFlush = now
	}
	logger.Info().Int64("total_inserted", total).Dur("elapsed", time.Since(start)).Msg("loader: input exhausted")
	return total, nil
}

// TableWriter returns a WriteFn that writes row chunks to t through repo.
func TableWriter(repo Repository, t schema.Table) WriteFn[[]any] {
	return func(ctx context.Context, chunk [][]any) error {
		_, err := repo.WriteBatch(ctx, t, chunk)
		return err
	}
}

// LastByKey drops earlier rows that share a primary key with a later row,
// keeping the survivors in input order. Backends whose batched upsert cannot
// touch the same key twice use it before sending a chunk.
func LastByKey(t schema.Table, rows [][]any) [][]any {
	idx := t.KeyIndexes()
	if len(idx) == 0 || len(rows) < 2 {
		return rows
	}
	key := func(r []any) string {
		var k string
		for _, i := range idx {
			k += fmt.Sprintf("%v\x1f", r[i])
		}
		return k
	}
	last := make(map[string]int, len(rows))
	for i, r := range rows {
		last[key(r)] = i
	}
	if len(last) == len(rows) {
		return rows
	}
	out := make([][]any, 0, len(last))
	for i, r := range rows {
		if last[key(r)] == i {
			out = append(out, r)
		}
	}
	return out
}
