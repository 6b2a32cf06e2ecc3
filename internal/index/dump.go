package index

import (
	"bufio"
	"bytes"
	"compress/bzip2"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
)

var (
	bzip2Magic = []byte("BZh")
	gzipMagic  = []byte{0x1f, 0x8b}
)

type dumpReader struct {
	io.Reader
	closers []io.Closer
}

func (d *dumpReader) Close() error {
	var first error
	for _, c := range d.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// OpenDump opens a raw index dump and returns its decompressed text. The
// published dumps are bzip2; gzip and plain text are accepted too. Both
// decoders read across concatenated streams, so a multi-stream index file
// yields every line.
func OpenDump(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening index dump: %w", err)
	}
	br := bufio.NewReaderSize(f, 256*1024)
	head, err := br.Peek(3)
	if err != nil && err != io.EOF {
		f.Close()
		return nil, fmt.Errorf("reading index dump header: %w", err)
	}

	switch {
	case bytes.HasPrefix(head, bzip2Magic):
		return &dumpReader{Reader: bzip2.NewReader(br), closers: []io.Closer{f}}, nil
	case bytes.HasPrefix(head, gzipMagic):
		gz, err := gzip.NewReader(br)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("opening gzip index dump: %w", err)
		}
		return &dumpReader{Reader: gz, closers: []io.Closer{gz, f}}, nil
	default:
		return &dumpReader{Reader: br, closers: []io.Closer{f}}, nil
	}
}
