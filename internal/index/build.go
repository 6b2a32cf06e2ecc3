package index

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// maxLineSize bounds a single dump line; titles are far shorter.
const maxLineSize = 1 << 20

// BuildStats summarises one index build.
type BuildStats struct {
	Lines    int           `json:"lines"`
	Inserted int           `json:"inserted"`
	Skipped  int           `json:"skipped"`
	Duration time.Duration `json:"duration"`
}

// Build streams the decompressed raw index from r into table in a single
// transaction. Lines with the wrong field count are skipped; a bad number or
// a storage failure aborts the whole build and leaves nothing queryable.
func Build(ctx context.Context, table Table, r io.Reader) (BuildStats, error) {
	logger := slog.Default().With("component", "index-builder")
	start := time.Now()
	var stats BuildStats

	err := table.Load(ctx, func(insert InsertFunc) error {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), maxLineSize)
		for scanner.Scan() {
			stats.Lines++
			line := strings.TrimSuffix(scanner.Text(), "\r")
			rec, ok, err := ParseLine(line)
			if err != nil {
				return fmt.Errorf("line %d: %w", stats.Lines, err)
			}
			if !ok {
				stats.Skipped++
				continue
			}
			if err := insert(rec); err != nil {
				return fmt.Errorf("inserting line %d: %w", stats.Lines, err)
			}
			stats.Inserted++
			if stats.Inserted%1_000_000 == 0 {
				logger.Info("index build progress", "inserted", stats.Inserted)
				if err := ctx.Err(); err != nil {
					return err
				}
			}
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("reading index dump: %w", err)
		}
		return nil
	})
	stats.Duration = time.Since(start)
	if err != nil {
		return stats, fmt.Errorf("building index: %w", err)
	}
	logger.Info("index built",
		"lines", stats.Lines,
		"inserted", stats.Inserted,
		"skipped", stats.Skipped,
		"duration", stats.Duration,
	)
	return stats, nil
}
