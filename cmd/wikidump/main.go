// Command wikidump builds the title index for a multistream corpus, looks
// articles up in it and packs page dumps into new multistream corpora.
//
// Usage:
//
//	wikidump index [-config f] [-dump path] [-rebuild]
//	wikidump get   [-config f] <title>
//	wikidump pack  -in pages.xml -corpus out.xml.bz2 -index out-index.txt.bz2 [-pages 100] [-format bzip2|gzip]
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/wikidump/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/wikidump/pkg/logger"
)

// errNotFound makes main exit with status 1 without printing anything more.
var errNotFound = errors.New("not found")

const usage = `usage: wikidump <command> [flags]

commands:
  index   build the title index from the raw index dump
  get     print the raw text of one article
  pack    compress a page dump into a multistream corpus and index
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "index":
		err = runIndex(ctx, os.Args[2:])
	case "get":
		err = runGet(ctx, os.Args[2:])
	case "pack":
		err = runPack(ctx, os.Args[2:])
	case "-h", "-help", "--help", "help":
		fmt.Fprint(os.Stdout, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if errors.Is(err, errNotFound) {
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "wikidump %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

// loadConfig reads the config and points logging at stderr, keeping stdout
// free for article text.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logger.SetupWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}
