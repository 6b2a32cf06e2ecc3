package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/dsnet/compress/bzip2"

	"github.com/Adithya-Monish-Kumar-K/wikidump/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/wikidump/internal/multistream"
)

func runPack(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("pack", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file (logging only)")
	in := fs.String("in", "", "uncompressed page dump to read (- for stdin)")
	corpusPath := fs.String("corpus", "", "multistream corpus to write")
	indexPath := fs.String("index", "", "bzip2-compressed raw index to write")
	pages := fs.Int("pages", multistream.DefaultPagesPerBlock, "pages per compressed block")
	format := fs.String("format", "bzip2", "block compression: bzip2 or gzip")
	level := fs.Int("level", 0, "compression level (0 for the codec default)")
	fs.Parse(args)

	if *in == "" || *corpusPath == "" || *indexPath == "" {
		fs.Usage()
		os.Exit(2)
	}
	if _, err := loadConfig(*configPath); err != nil {
		return err
	}

	var blockFormat corpus.Format
	switch strings.ToLower(*format) {
	case "bzip2", "bz2":
		blockFormat = corpus.FormatBzip2
	case "gzip", "gz":
		blockFormat = corpus.FormatGzip
	default:
		return fmt.Errorf("unknown format %q", *format)
	}

	src, err := openInput(*in)
	if err != nil {
		return err
	}
	defer src.Close()

	corpusFile, err := os.Create(*corpusPath)
	if err != nil {
		return fmt.Errorf("creating corpus: %w", err)
	}
	defer corpusFile.Close()
	indexFile, err := os.Create(*indexPath)
	if err != nil {
		return fmt.Errorf("creating index: %w", err)
	}
	defer indexFile.Close()

	// The raw index is one bzip2 stream, the format the index command reads.
	indexStream, err := bzip2.NewWriter(indexFile, &bzip2.WriterConfig{Level: bzip2.DefaultCompression})
	if err != nil {
		return fmt.Errorf("creating index stream: %w", err)
	}
	out := bufio.NewWriterSize(corpusFile, 1<<20)

	w, err := multistream.NewWriter(out, indexStream, blockFormat, *level)
	if err != nil {
		return err
	}
	stats, err := multistream.Pack(ctx, bufio.NewReaderSize(src, 1<<20), w, *pages)
	if err != nil {
		return err
	}
	if err := out.Flush(); err != nil {
		return fmt.Errorf("writing corpus: %w", err)
	}
	if err := indexStream.Close(); err != nil {
		return fmt.Errorf("finishing index: %w", err)
	}
	if err := corpusFile.Sync(); err != nil {
		return fmt.Errorf("syncing corpus: %w", err)
	}

	slog.Info("corpus packed",
		"corpus", *corpusPath,
		"index", *indexPath,
		"format", blockFormat.String(),
		"pages", stats.Pages,
		"blocks", stats.Blocks,
		"skipped", stats.Skipped,
		"bytes", w.Offset(),
	)
	return nil
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening page dump: %w", err)
	}
	return f, nil
}
