package multistream

import (
	"bufio"
	"context"
	"fmt"
	"html"
	"io"
	"log/slog"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/wikidump/internal/extract"
)

// PackStats summarises a Pack run.
type PackStats struct {
	Pages   int `json:"pages"`
	Blocks  int `json:"blocks"`
	Skipped int `json:"skipped"`
}

// Pack splits an uncompressed XML dump into header, page blocks and trailer
// and writes each as its own stream. The header (everything before the first
// <page>) and trailer (everything after the last </page>) get streams of
// their own, as in the published dumps. Records without a title or id are
// kept in the corpus but left out of the index.
func Pack(ctx context.Context, r io.Reader, w *Writer, pagesPerBlock int) (PackStats, error) {
	if pagesPerBlock <= 0 {
		pagesPerBlock = DefaultPagesPerBlock
	}
	logger := slog.Default().With("component", "packer")
	var stats PackStats

	var (
		header  strings.Builder
		current strings.Builder
		trailer strings.Builder
		pending []Page
		inPage  bool
		sawPage bool
	)

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if _, err := w.WriteBlock(pending); err != nil {
			return err
		}
		stats.Blocks++
		pending = pending[:0]
		return ctx.Err()
	}

	endPage := func() error {
		inPage = false
		pending = append(pending, newPage(current.String(), &stats))
		current.Reset()
		if len(pending) >= pagesPerBlock {
			return flush()
		}
		return nil
	}

	br := bufio.NewReaderSize(r, 1<<20)
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			switch {
			case inPage:
				current.WriteString(line)
				if strings.Contains(line, "</page>") {
					if err := endPage(); err != nil {
						return stats, err
					}
				}
			case strings.Contains(line, "<page>"):
				if !sawPage {
					sawPage = true
					if _, err := w.WriteStream([]byte(header.String())); err != nil {
						return stats, err
					}
				}
				// Anything between pages belongs to the trailer only if no
				// page follows it.
				if trailer.Len() > 0 {
					current.WriteString(trailer.String())
					trailer.Reset()
				}
				inPage = true
				current.WriteString(line)
				if strings.Contains(line, "</page>") {
					if err := endPage(); err != nil {
						return stats, err
					}
				}
			case sawPage:
				trailer.WriteString(line)
			default:
				header.WriteString(line)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("reading dump: %w", err)
		}
	}
	if inPage {
		return stats, fmt.Errorf("dump ends inside a <page> record")
	}
	if err := flush(); err != nil {
		return stats, err
	}
	if !sawPage {
		if _, err := w.WriteStream([]byte(header.String())); err != nil {
			return stats, err
		}
	} else if trailer.Len() > 0 {
		if _, err := w.WriteStream([]byte(trailer.String())); err != nil {
			return stats, err
		}
	}
	logger.Info("dump packed", "pages", stats.Pages, "blocks", stats.Blocks, "skipped", stats.Skipped)
	return stats, nil
}

func newPage(raw string, stats *PackStats) Page {
	stats.Pages++
	title, okTitle := extract.PageTitle(raw)
	id, okID := extract.PageID(raw)
	if !okTitle || !okID {
		stats.Skipped++
		return Page{Raw: raw}
	}
	return Page{ID: id, Title: html.UnescapeString(title), Raw: raw}
}
