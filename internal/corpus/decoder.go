// Package corpus decodes single compressed blocks out of a multistream
// corpus file. Each block is an independent bzip2 stream (or gzip member)
// that starts exactly at an offset listed in the index, so one article is
// reached by seeking there and decompressing that block alone.
package corpus

import (
	"bufio"
	"bytes"
	"compress/bzip2"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"

	apperrors "github.com/Adithya-Monish-Kumar-K/wikidump/pkg/errors"
)

// Format identifies a block's compression.
type Format int

const (
	FormatUnknown Format = iota
	FormatBzip2
	FormatGzip
)

func (f Format) String() string {
	switch f {
	case FormatBzip2:
		return "bzip2"
	case FormatGzip:
		return "gzip"
	default:
		return "unknown"
	}
}

// Block is the compressed extent of one stream. End is exclusive; zero means
// no bound other than the end of the file. Decoding stops at the stream's own
// end marker either way.
type Block struct {
	Start uint64
	End   uint64
}

func (b Block) String() string {
	if b.End == 0 {
		return fmt.Sprintf("[%d, eof)", b.Start)
	}
	return fmt.Sprintf("[%d, %d)", b.Start, b.End)
}

// Decoder reads blocks from one corpus file. It holds no open handle between
// calls and is safe for concurrent use.
type Decoder struct {
	path   string
	logger *slog.Logger
}

func NewDecoder(path string) *Decoder {
	return &Decoder{
		path:   path,
		logger: slog.Default().With("component", "block-decoder"),
	}
}

// Path returns the corpus file path.
func (d *Decoder) Path() string {
	return d.path
}

// DecodeBlockAt decompresses the stream starting at offset until its logical
// end: the bzip2 end-of-stream marker or the gzip member trailer.
func (d *Decoder) DecodeBlockAt(offset uint64) (string, error) {
	return d.DecodeBlock(Block{Start: offset})
}

// DecodeBlock opens the corpus, seeks to b.Start and decodes the whole block.
// A missing or unreadable file wraps errors.ErrCorpusIO; an offset past the
// end of the file or bytes that do not start a valid stream wrap
// errors.ErrDecode.
func (d *Decoder) DecodeBlock(b Block) (string, error) {
	f, err := os.Open(d.path)
	if err != nil {
		return "", fmt.Errorf("%w: opening corpus: %w", apperrors.ErrCorpusIO, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("%w: stat corpus: %w", apperrors.ErrCorpusIO, err)
	}
	size := uint64(info.Size())
	if b.Start >= size {
		return "", fmt.Errorf("%w: offset %d beyond corpus size %d", apperrors.ErrDecode, b.Start, size)
	}
	end := b.End
	if end == 0 || end > size {
		end = size
	}
	if end <= b.Start {
		return "", fmt.Errorf("%w: empty block %s", apperrors.ErrDecode, b)
	}

	section := io.NewSectionReader(f, int64(b.Start), int64(end-b.Start))
	br := bufio.NewReaderSize(section, 64*1024)
	format, err := sniff(br)
	if err != nil {
		return "", fmt.Errorf("%w: block %s: %w", apperrors.ErrDecode, b, err)
	}

	text, err := decode(br, format)
	if err != nil {
		return "", fmt.Errorf("%w: block %s (%s): %w", apperrors.ErrDecode, b, format, err)
	}
	d.logger.Debug("block decoded",
		"block", b.String(),
		"format", format.String(),
		"compressed_bytes", end-b.Start,
		"decoded_bytes", len(text),
	)
	return text, nil
}

// Sniff reports the block format at offset without decoding it.
func (d *Decoder) Sniff(offset uint64) (Format, error) {
	f, err := os.Open(d.path)
	if err != nil {
		return FormatUnknown, fmt.Errorf("%w: opening corpus: %w", apperrors.ErrCorpusIO, err)
	}
	defer f.Close()
	if _, err := f.Seek(int64(offset), io.SeekStart); err != nil {
		return FormatUnknown, fmt.Errorf("%w: seeking to %d: %w", apperrors.ErrDecode, offset, err)
	}
	format, err := sniff(bufio.NewReader(f))
	if err != nil {
		return FormatUnknown, fmt.Errorf("%w: offset %d: %w", apperrors.ErrDecode, offset, err)
	}
	return format, nil
}

func sniff(br *bufio.Reader) (Format, error) {
	head, err := br.Peek(4)
	if err != nil && len(head) < 2 {
		return FormatUnknown, fmt.Errorf("reading block header: %w", err)
	}
	switch {
	case len(head) == 4 && bytes.HasPrefix(head, []byte("BZh")) && head[3] >= '1' && head[3] <= '9':
		return FormatBzip2, nil
	case head[0] == 0x1f && head[1] == 0x8b:
		return FormatGzip, nil
	default:
		return FormatUnknown, fmt.Errorf("no stream header at block start (got % x)", head)
	}
}

// decode reads exactly one stream. gzip stops at the member end on its own;
// bzip2 input is cut at the end-of-stream marker.
func decode(br *bufio.Reader, format Format) (string, error) {
	var r io.Reader
	switch format {
	case FormatBzip2:
		r = bzip2.NewReader(newStreamEndReader(br))
	case FormatGzip:
		gz, err := gzip.NewReader(br)
		if err != nil {
			return "", err
		}
		gz.Multistream(false)
		defer gz.Close()
		r = gz
	default:
		return "", fmt.Errorf("unsupported format %s", format)
	}

	var sb strings.Builder
	if _, err := io.Copy(&sb, r); err != nil {
		return "", err
	}
	return sb.String(), nil
}
