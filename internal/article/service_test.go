package article_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Adithya-Monish-Kumar-K/wikidump/internal/article"
	"github.com/Adithya-Monish-Kumar-K/wikidump/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/wikidump/internal/index"
	"github.com/Adithya-Monish-Kumar-K/wikidump/internal/multistream"
	apperrors "github.com/Adithya-Monish-Kumar-K/wikidump/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/wikidump/pkg/metrics"
)

var titles = []string{
	"Example",
	"ungefähr",
	"C++",
	"[[bracketed]]",
	"a.b*c?",
	"AT&T",
	"(group)|alt",
	"plain",
}

// newCorpus packs one page per title into a bzip2 multistream corpus and
// builds a MemTable from the generated index.
func newCorpus(t *testing.T, perBlock int) (string, *index.MemTable, []byte) {
	t.Helper()
	var dump strings.Builder
	dump.WriteString("<mediawiki>\n  <siteinfo><sitename>test</sitename></siteinfo>\n")
	for i, title := range titles {
		escaped := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;").Replace(title)
		fmt.Fprintf(&dump, "  <page>\n    <title>%s</title>\n    <id>%d</id>\n    <revision>\n      <text bytes=\"1\" xml:space=\"preserve\">payload of %s</text>\n    </revision>\n  </page>\n",
			escaped, i+1, escaped)
	}
	dump.WriteString("</mediawiki>\n")

	var out, idx bytes.Buffer
	w, err := multistream.NewWriter(&out, &idx, corpus.FormatBzip2, 0)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	if _, err := multistream.Pack(context.Background(), strings.NewReader(dump.String()), w, perBlock); err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	path := filepath.Join(t.TempDir(), "corpus.xml.bz2")
	if err := os.WriteFile(path, out.Bytes(), 0o644); err != nil {
		t.Fatalf("writing corpus: %v", err)
	}
	table := index.NewMemTable()
	if _, err := index.Build(context.Background(), table, bytes.NewReader(idx.Bytes())); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return path, table, idx.Bytes()
}

func TestGetRawArticleEveryIndexedTitle(t *testing.T) {
	path, table, _ := newCorpus(t, 3)
	svc := article.NewService(table, corpus.NewDecoder(path))
	for _, title := range titles {
		t.Run(title, func(t *testing.T) {
			text, found, err := svc.GetRawArticle(context.Background(), title)
			if err != nil {
				t.Fatalf("GetRawArticle error: %v", err)
			}
			if !found {
				t.Fatal("expected article to be found")
			}
			if !strings.HasPrefix(text, "payload of ") {
				t.Errorf("unexpected payload %q", text)
			}
			if strings.Contains(text, "<text") || strings.Contains(text, "</text>") {
				t.Errorf("payload contains a marker: %q", text)
			}
		})
	}
}

func TestGetRawArticleAbsentTitle(t *testing.T) {
	path, table, _ := newCorpus(t, 3)
	svc := article.NewService(table, corpus.NewDecoder(path))
	for _, title := range []string{"missing", "exampl", "Example ", ".*"} {
		text, found, err := svc.GetRawArticle(context.Background(), title)
		if err != nil {
			t.Fatalf("GetRawArticle(%q) error: %v", title, err)
		}
		if found || text != "" {
			t.Errorf("GetRawArticle(%q) = %q, %v; want not found", title, text, found)
		}
	}
}

func TestGetRawArticleStaleOffset(t *testing.T) {
	path, _, _ := newCorpus(t, 3)
	table := index.NewMemTable()
	if _, err := index.Build(context.Background(), table, strings.NewReader("5:1:Example\n")); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	svc := article.NewService(table, corpus.NewDecoder(path))
	_, found, err := svc.GetRawArticle(context.Background(), "Example")
	if !errors.Is(err, apperrors.ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
	if found {
		t.Error("stale offset must not report found")
	}
}

func TestGetRawArticleIndexedButMissingFromBlock(t *testing.T) {
	path, _, idx := newCorpus(t, 3)
	first, _, _ := index.ParseLine(strings.SplitN(string(idx), "\n", 2)[0])

	ghost := index.NewMemTable()
	dump := fmt.Sprintf("%d:99:Ghost\n", first.Offset)
	if _, err := index.Build(context.Background(), ghost, strings.NewReader(dump)); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	svc := article.NewService(ghost, corpus.NewDecoder(path))
	_, found, err := svc.GetRawArticle(context.Background(), "Ghost")
	if err != nil {
		t.Fatalf("expected soft miss, got %v", err)
	}
	if found {
		t.Error("expected not found")
	}
}

func TestGetRawArticleMissingCorpus(t *testing.T) {
	_, table, _ := newCorpus(t, 3)
	svc := article.NewService(table, corpus.NewDecoder(filepath.Join(t.TempDir(), "gone.bz2")))
	_, _, err := svc.GetRawArticle(context.Background(), "Example")
	if !errors.Is(err, apperrors.ErrCorpusIO) {
		t.Fatalf("expected ErrCorpusIO, got %v", err)
	}
}

type recordingDecoder struct {
	inner   article.BlockDecoder
	decoded []string
}

func (r *recordingDecoder) DecodeBlock(b corpus.Block) (string, error) {
	text, err := r.inner.DecodeBlock(b)
	r.decoded = append(r.decoded, text)
	return text, err
}

// Pages in a namespace have colons in their titles, so their index lines
// are skipped and the block they share is unknown to the index.
func TestGetRawArticleDoesNotDecodeUnindexedBlock(t *testing.T) {
	dump := "<mediawiki>\n" +
		"  <page><title>a1</title><id>1</id><text xml:space=\"preserve\">one</text></page>\n" +
		"  <page><title>a2</title><id>2</id><text xml:space=\"preserve\">two</text></page>\n" +
		"  <page><title>Template:x</title><id>3</id><text xml:space=\"preserve\">tx</text></page>\n" +
		"  <page><title>Template:y</title><id>4</id><text xml:space=\"preserve\">ty</text></page>\n" +
		"  <page><title>b1</title><id>5</id><text xml:space=\"preserve\">b-one</text></page>\n" +
		"  <page><title>b2</title><id>6</id><text xml:space=\"preserve\">b-two</text></page>\n" +
		"</mediawiki>\n"

	var out, idx bytes.Buffer
	w, err := multistream.NewWriter(&out, &idx, corpus.FormatBzip2, 0)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	if _, err := multistream.Pack(context.Background(), strings.NewReader(dump), w, 2); err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	path := filepath.Join(t.TempDir(), "corpus.xml.bz2")
	if err := os.WriteFile(path, out.Bytes(), 0o644); err != nil {
		t.Fatalf("writing corpus: %v", err)
	}
	table := index.NewMemTable()
	stats, err := index.Build(context.Background(), table, &idx)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if stats.Skipped != 2 {
		t.Fatalf("skipped %d lines, want the 2 namespaced titles", stats.Skipped)
	}

	rec := &recordingDecoder{inner: corpus.NewDecoder(path)}
	svc := article.NewService(table, rec)
	text, found, err := svc.GetRawArticle(context.Background(), "a1")
	if err != nil || !found || text != "one" {
		t.Fatalf("GetRawArticle(a1) = %q, %v, %v", text, found, err)
	}
	if len(rec.decoded) != 1 {
		t.Fatalf("decoded %d blocks, want 1", len(rec.decoded))
	}
	if strings.Contains(rec.decoded[0], "Template:x") {
		t.Error("decoded the unindexed block that follows")
	}
}

func TestGetRawArticleInvalidUTF8Title(t *testing.T) {
	path, _, idx := newCorpus(t, 3)
	first, _, _ := index.ParseLine(strings.SplitN(string(idx), "\n", 2)[0])

	table := index.NewMemTable()
	dump := fmt.Sprintf("%d:1:bad\xff\n", first.Offset)
	if _, err := index.Build(context.Background(), table, strings.NewReader(dump)); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	svc := article.NewService(table, corpus.NewDecoder(path))
	text, found, err := svc.GetRawArticle(context.Background(), "bad\xff")
	if err != nil {
		t.Fatalf("GetRawArticle error: %v", err)
	}
	if found || text != "" {
		t.Errorf("GetRawArticle = %q, %v; want not found", text, found)
	}
}

type failingIndex struct{}

func (failingIndex) Lookup(context.Context, string) (uint64, bool, error) {
	return 0, false, fmt.Errorf("%w: disk gone", apperrors.ErrStore)
}

func (failingIndex) NextOffset(context.Context, uint64) (uint64, bool, error) {
	return 0, false, nil
}

func TestGetRawArticleStoreFailure(t *testing.T) {
	svc := article.NewService(failingIndex{}, corpus.NewDecoder("unused"))
	_, _, err := svc.GetRawArticle(context.Background(), "Example")
	if !errors.Is(err, apperrors.ErrStore) {
		t.Fatalf("expected ErrStore, got %v", err)
	}
}

func TestGetRawArticleMetrics(t *testing.T) {
	path, table, _ := newCorpus(t, 4)
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	svc := article.NewService(table, corpus.NewDecoder(path), article.WithMetrics(m))
	ctx := context.Background()

	svc.GetRawArticle(ctx, "Example")
	svc.GetRawArticle(ctx, "plain")
	svc.GetRawArticle(ctx, "nope")

	if got := testutil.ToFloat64(m.ArticleLookupsTotal.WithLabelValues(metrics.ResultFound)); got != 2 {
		t.Errorf("found counter = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ArticleLookupsTotal.WithLabelValues(metrics.ResultNotFound)); got != 1 {
		t.Errorf("not_found counter = %v, want 1", got)
	}
}

func TestGetRawArticleWithBlockCache(t *testing.T) {
	path, table, _ := newCorpus(t, 4)
	cached, err := corpus.NewCachedDecoder(corpus.NewDecoder(path), 8)
	if err != nil {
		t.Fatalf("NewCachedDecoder failed: %v", err)
	}
	svc := article.NewService(table, cached)
	for _, title := range titles {
		if _, found, err := svc.GetRawArticle(context.Background(), title); err != nil || !found {
			t.Fatalf("GetRawArticle(%q) found=%v err=%v", title, found, err)
		}
	}
	hits, misses := cached.Stats()
	if misses != 2 || hits != int64(len(titles))-2 {
		t.Errorf("cache stats = %d hits, %d misses", hits, misses)
	}
}
