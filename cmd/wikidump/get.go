package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/wikidump/internal/article"
	"github.com/Adithya-Monish-Kumar-K/wikidump/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/wikidump/internal/index"
	"github.com/Adithya-Monish-Kumar-K/wikidump/internal/index/sqltable"
	"github.com/Adithya-Monish-Kumar-K/wikidump/pkg/config"
)

func runGet(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: wikidump get [-config f] <title>")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	title := strings.Join(fs.Args(), " ")
	if title == "" {
		fs.Usage()
		os.Exit(2)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	table, closer, err := sqltable.Open(cfg)
	if err != nil {
		return fmt.Errorf("opening index store: %w", err)
	}
	defer closer.Close()

	if cfg.Store.Driver == config.DriverMemory {
		if err := buildFromDump(ctx, table, cfg.Corpus.IndexDumpPath); err != nil {
			return err
		}
	}

	svc := article.NewService(table, corpus.NewDecoder(cfg.Corpus.Path))
	text, found, err := svc.GetRawArticle(ctx, title)
	if err != nil {
		return err
	}
	if !found {
		fmt.Printf("Word %s not found\n", title)
		return errNotFound
	}
	fmt.Print(text)
	return nil
}

func buildFromDump(ctx context.Context, table index.Table, path string) error {
	dump, err := index.OpenDump(path)
	if err != nil {
		return err
	}
	defer dump.Close()
	_, err = index.Build(ctx, table, dump)
	return err
}
