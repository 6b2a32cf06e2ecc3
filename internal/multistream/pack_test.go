package multistream

import (
	"bytes"
	"compress/bzip2"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"

	"github.com/Adithya-Monish-Kumar-K/wikidump/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/wikidump/internal/extract"
	"github.com/Adithya-Monish-Kumar-K/wikidump/internal/index"
)

const dumpHeader = "<mediawiki xml:lang=\"en\">\n  <siteinfo>\n    <sitename>Wiktionary</sitename>\n  </siteinfo>\n"
const dumpTrailer = "</mediawiki>\n"

func testPage(id int, title, text string) string {
	return fmt.Sprintf("  <page>\n    <title>%s</title>\n    <ns>0</ns>\n    <id>%d</id>\n    <revision>\n      <id>%d</id>\n      <text bytes=\"%d\" xml:space=\"preserve\">%s</text>\n    </revision>\n  </page>\n",
		title, id, id*100, len(text), text)
}

func testDump(n int) string {
	var sb strings.Builder
	sb.WriteString(dumpHeader)
	for i := 1; i <= n; i++ {
		sb.WriteString(testPage(i, fmt.Sprintf("word%d", i), fmt.Sprintf("body of word %d", i)))
	}
	sb.WriteString(dumpTrailer)
	return sb.String()
}

func TestPackRoundTrip(t *testing.T) {
	for _, format := range []corpus.Format{corpus.FormatBzip2, corpus.FormatGzip} {
		t.Run(format.String(), func(t *testing.T) {
			dump := testDump(5)
			var out, idx bytes.Buffer
			w, err := NewWriter(&out, &idx, format, 0)
			if err != nil {
				t.Fatalf("NewWriter failed: %v", err)
			}
			stats, err := Pack(context.Background(), strings.NewReader(dump), w, 2)
			if err != nil {
				t.Fatalf("Pack failed: %v", err)
			}
			if stats.Pages != 5 || stats.Blocks != 3 || stats.Skipped != 0 {
				t.Errorf("unexpected stats %+v", stats)
			}

			path := filepath.Join(t.TempDir(), "corpus")
			if err := os.WriteFile(path, out.Bytes(), 0o644); err != nil {
				t.Fatalf("writing corpus: %v", err)
			}
			dec := corpus.NewDecoder(path)

			lines := strings.Split(strings.TrimSpace(idx.String()), "\n")
			if len(lines) != 5 {
				t.Fatalf("expected 5 index lines, got %d: %q", len(lines), idx.String())
			}
			offsets := make(map[uint64]int)
			for _, line := range lines {
				rec, ok, err := index.ParseLine(line)
				if err != nil || !ok {
					t.Fatalf("bad index line %q: ok=%v err=%v", line, ok, err)
				}
				offsets[rec.Offset]++
				block, err := dec.DecodeBlockAt(rec.Offset)
				if err != nil {
					t.Fatalf("DecodeBlockAt(%d) failed: %v", rec.Offset, err)
				}
				if _, ok := extract.Extract(block, rec.Title); !ok {
					t.Errorf("title %q not in its block", rec.Title)
				}
			}
			if len(offsets) != 3 {
				t.Errorf("expected 3 distinct block offsets, got %d", len(offsets))
			}
			if offsets[0] != 0 {
				t.Error("no page may share the header stream offset")
			}

			whole, err := decompressAll(format, out.Bytes())
			if err != nil {
				t.Fatalf("decompressing whole corpus: %v", err)
			}
			if whole != dump {
				t.Error("concatenated streams do not reproduce the input dump")
			}
		})
	}
}

func TestPackSkipsRecordsWithoutTitle(t *testing.T) {
	dump := dumpHeader + "  <page>\n    <ns>0</ns>\n  </page>\n" + testPage(2, "kept", "x") + dumpTrailer
	var out, idx bytes.Buffer
	w, err := NewWriter(&out, &idx, corpus.FormatBzip2, 1)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	stats, err := Pack(context.Background(), strings.NewReader(dump), w, 10)
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	if stats.Pages != 2 || stats.Skipped != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if got := strings.Count(idx.String(), "\n"); got != 1 {
		t.Errorf("expected 1 index line, got %d", got)
	}
}

func TestPackUnescapesIndexTitles(t *testing.T) {
	dump := dumpHeader + testPage(3, "AT&amp;T", "telecom") + dumpTrailer
	var out, idx bytes.Buffer
	w, _ := NewWriter(&out, &idx, corpus.FormatGzip, 0)
	if _, err := Pack(context.Background(), strings.NewReader(dump), w, 10); err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	if !strings.HasSuffix(strings.TrimSpace(idx.String()), ":3:AT&T") {
		t.Errorf("unexpected index %q", idx.String())
	}
}

func TestPackSingleLinePages(t *testing.T) {
	var dump strings.Builder
	dump.WriteString(dumpHeader)
	for i := 1; i <= 5; i++ {
		fmt.Fprintf(&dump, "  <page><title>w%d</title><id>%d</id><text xml:space=\"preserve\">%d</text></page>\n", i, i, i)
	}
	dump.WriteString(dumpTrailer)

	var out, idx bytes.Buffer
	w, _ := NewWriter(&out, &idx, corpus.FormatGzip, 0)
	stats, err := Pack(context.Background(), strings.NewReader(dump.String()), w, 2)
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	if stats.Pages != 5 || stats.Blocks != 3 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestPackRejectsTruncatedDump(t *testing.T) {
	dump := dumpHeader + "  <page>\n    <title>cut</title>\n"
	var out, idx bytes.Buffer
	w, _ := NewWriter(&out, &idx, corpus.FormatGzip, 0)
	if _, err := Pack(context.Background(), strings.NewReader(dump), w, 10); err == nil {
		t.Fatal("expected error for truncated dump")
	}
}

func TestNewWriterRejectsUnknownFormat(t *testing.T) {
	if _, err := NewWriter(io.Discard, io.Discard, corpus.FormatUnknown, 0); err == nil {
		t.Fatal("expected error")
	}
}

func decompressAll(format corpus.Format, data []byte) (string, error) {
	var r io.Reader
	switch format {
	case corpus.FormatBzip2:
		r = bzip2.NewReader(bytes.NewReader(data))
	default:
		gz, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return "", err
		}
		defer gz.Close()
		r = gz
	}
	b, err := io.ReadAll(r)
	return string(b), err
}
