// Package multistream produces multistream corpora: a sequence of
// independently decompressible streams, each holding a run of pages, plus the
// raw "offset:id:title" index that points every page at the offset of its
// stream. Concatenated streams remain a valid single bzip2/gzip file for
// ordinary tools.
package multistream

import (
	"fmt"
	"io"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"

	"github.com/Adithya-Monish-Kumar-K/wikidump/internal/corpus"
)

// DefaultPagesPerBlock matches the packaging of the published dumps.
const DefaultPagesPerBlock = 100

// Page is one serialized <page> record.
type Page struct {
	ID    uint64
	Title string
	Raw   string
}

type countWriter struct {
	w   io.Writer
	off uint64
}

func (cw *countWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.off += uint64(n)
	return n, err
}

// Writer appends streams to a corpus and index lines to an index sink.
type Writer struct {
	out    *countWriter
	index  io.Writer
	format corpus.Format
	level  int
}

// NewWriter writes compressed streams to out and raw index lines to index.
// level is passed to the compressor; 0 selects its default.
func NewWriter(out io.Writer, index io.Writer, format corpus.Format, level int) (*Writer, error) {
	switch format {
	case corpus.FormatBzip2, corpus.FormatGzip:
	default:
		return nil, fmt.Errorf("unsupported stream format %s", format)
	}
	return &Writer{
		out:    &countWriter{w: out},
		index:  index,
		format: format,
		level:  level,
	}, nil
}

// Offset is the position where the next stream will start.
func (w *Writer) Offset() uint64 {
	return w.out.off
}

// WriteStream compresses text as one standalone stream and returns its
// starting offset. Used for the dump header and trailer, which carry no
// index lines.
func (w *Writer) WriteStream(text []byte) (uint64, error) {
	start := w.out.off
	zw, err := w.newCompressor()
	if err != nil {
		return 0, err
	}
	if _, err := zw.Write(text); err != nil {
		zw.Close()
		return 0, fmt.Errorf("compressing stream at %d: %w", start, err)
	}
	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("closing stream at %d: %w", start, err)
	}
	return start, nil
}

// WriteBlock packs pages into one stream and records an index line for each
// page that has a title.
func (w *Writer) WriteBlock(pages []Page) (uint64, error) {
	if len(pages) == 0 {
		return w.out.off, nil
	}
	size := 0
	for _, p := range pages {
		size += len(p.Raw)
	}
	buf := make([]byte, 0, size)
	for _, p := range pages {
		buf = append(buf, p.Raw...)
	}
	start, err := w.WriteStream(buf)
	if err != nil {
		return 0, err
	}
	for _, p := range pages {
		if p.Title == "" {
			continue
		}
		if _, err := fmt.Fprintf(w.index, "%d:%d:%s\n", start, p.ID, p.Title); err != nil {
			return 0, fmt.Errorf("writing index line for %q: %w", p.Title, err)
		}
	}
	return start, nil
}

func (w *Writer) newCompressor() (io.WriteCloser, error) {
	switch w.format {
	case corpus.FormatBzip2:
		level := w.level
		if level == 0 {
			level = bzip2.DefaultCompression
		}
		zw, err := bzip2.NewWriter(w.out, &bzip2.WriterConfig{Level: level})
		if err != nil {
			return nil, fmt.Errorf("creating bzip2 writer: %w", err)
		}
		return zw, nil
	default:
		level := w.level
		if level == 0 {
			level = gzip.DefaultCompression
		}
		zw, err := gzip.NewWriterLevel(w.out, level)
		if err != nil {
			return nil, fmt.Errorf("creating gzip writer: %w", err)
		}
		return zw, nil
	}
}
