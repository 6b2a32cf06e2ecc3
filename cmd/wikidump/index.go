package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/wikidump/internal/events"
	"github.com/Adithya-Monish-Kumar-K/wikidump/internal/index"
	"github.com/Adithya-Monish-Kumar-K/wikidump/internal/index/sqltable"
	"github.com/Adithya-Monish-Kumar-K/wikidump/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/wikidump/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/wikidump/pkg/kafka"
)

func runIndex(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	dumpPath := fs.String("dump", "", "raw index dump (default corpus.indexDumpPath)")
	rebuild := fs.Bool("rebuild", false, "drop an existing index before building")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if cfg.Store.Driver == config.DriverMemory {
		return fmt.Errorf("the %q store keeps nothing between runs; articled builds it at startup", config.DriverMemory)
	}
	if *dumpPath == "" {
		*dumpPath = cfg.Corpus.IndexDumpPath
	}

	table, closer, err := sqltable.Open(cfg)
	if err != nil {
		return fmt.Errorf("opening index store: %w", err)
	}
	defer closer.Close()

	if *rebuild {
		if err := table.Drop(ctx); err != nil {
			return fmt.Errorf("dropping index: %w", err)
		}
		slog.Info("existing index dropped", "driver", cfg.Store.Driver)
	}

	dump, err := index.OpenDump(*dumpPath)
	if err != nil {
		return err
	}
	defer dump.Close()

	slog.Info("building index", "dump", *dumpPath, "driver", cfg.Store.Driver)
	stats, err := index.Build(ctx, table, dump)
	if errors.Is(err, apperrors.ErrIndexExists) {
		return fmt.Errorf("%w; pass -rebuild to replace it", err)
	}
	if err != nil {
		return err
	}

	if cfg.Kafka.Enabled {
		announce(ctx, cfg, stats)
	}
	return nil
}

// announce publishes the build result. A broker outage does not fail a
// build that already committed.
func announce(ctx context.Context, cfg *config.Config, stats index.BuildStats) {
	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
	defer producer.Close()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	err := events.PublishIndexBuilt(ctx, producer, events.IndexBuiltEvent{
		Driver:     cfg.Store.Driver,
		Corpus:     cfg.Corpus.Path,
		Lines:      int64(stats.Lines),
		Inserted:   int64(stats.Inserted),
		Skipped:    int64(stats.Skipped),
		DurationMs: stats.Duration.Milliseconds(),
		Timestamp:  time.Now().UTC(),
	})
	if err != nil {
		slog.Warn("index built but not announced", "topic", cfg.Kafka.Topics.IndexComplete, "error", err)
		return
	}
	slog.Info("index build announced", "topic", cfg.Kafka.Topics.IndexComplete)
}
