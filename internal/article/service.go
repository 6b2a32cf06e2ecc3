// Package article is the lookup pipeline: title → block offset → decoded
// block → raw article text. Each call is independent and stateless.
package article

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/wikidump/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/wikidump/internal/extract"
	"github.com/Adithya-Monish-Kumar-K/wikidump/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/wikidump/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/wikidump/pkg/tracing"
)

// OffsetIndex resolves titles to block offsets. index.Table satisfies it.
type OffsetIndex interface {
	Lookup(ctx context.Context, title string) (offset uint64, found bool, err error)
	NextOffset(ctx context.Context, offset uint64) (next uint64, found bool, err error)
}

// BlockDecoder produces the decoded text of one compressed block.
type BlockDecoder interface {
	DecodeBlock(b corpus.Block) (string, error)
}

type Service struct {
	index   OffsetIndex
	decoder BlockDecoder
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type Option func(*Service)

// WithMetrics records lookup outcomes and stage latencies on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(idx OffsetIndex, decoder BlockDecoder, opts ...Option) *Service {
	s := &Service{
		index:   idx,
		decoder: decoder,
		logger:  slog.Default().With("component", "article-service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetRawArticle returns the raw payload of title. A title missing from the
// index, or missing from its block, returns found == false and a nil error.
// Index failures and decode failures are returned as errors; they wrap
// errors.ErrStore, errors.ErrCorpusIO or errors.ErrDecode.
func (s *Service) GetRawArticle(ctx context.Context, title string) (text string, found bool, err error) {
	ctx, span := tracing.Start(ctx, "article.get")
	span.SetAttr("title", title)
	defer func() {
		span.SetAttr("found", found)
		span.End()
		s.recordResult(found, err)
	}()
	log := s.logger
	if id := logger.RequestID(ctx); id != "" {
		log = log.With("request_id", id)
	}

	offset, ok, err := s.lookup(ctx, title)
	if err != nil {
		return "", false, err
	}
	if !ok {
		log.Debug("title not in index", "title", title)
		return "", false, nil
	}

	block, err := s.blockAt(ctx, offset)
	if err != nil {
		return "", false, err
	}

	decoded, err := s.decode(ctx, block)
	if err != nil {
		log.Error("block decode failed", "title", title, "block", block.String(), "error", err)
		return "", false, fmt.Errorf("decoding block for %q: %w", title, err)
	}

	_, extractSpan := tracing.Start(ctx, "article.extract")
	start := time.Now()
	text, found = extract.Extract(decoded, title)
	s.observe("extract", start)
	extractSpan.End()

	if !found {
		log.Warn("title indexed but not found in its block", "title", title, "block", block.String())
	}
	return text, found, nil
}

func (s *Service) lookup(ctx context.Context, title string) (uint64, bool, error) {
	ctx, span := tracing.Start(ctx, "article.lookup")
	defer span.End()
	start := time.Now()
	offset, ok, err := s.index.Lookup(ctx, title)
	s.observe("index", start)
	if err != nil {
		return 0, false, fmt.Errorf("looking up %q: %w", title, err)
	}
	span.SetAttr("offset", offset)
	return offset, ok, nil
}

// blockAt bounds the block starting at offset by the next distinct offset in
// the index; the last block runs to the end of the file.
func (s *Service) blockAt(ctx context.Context, offset uint64) (corpus.Block, error) {
	next, ok, err := s.index.NextOffset(ctx, offset)
	if err != nil {
		return corpus.Block{}, fmt.Errorf("bounding block at %d: %w", offset, err)
	}
	b := corpus.Block{Start: offset}
	if ok {
		b.End = next
	}
	return b, nil
}

func (s *Service) decode(ctx context.Context, b corpus.Block) (string, error) {
	_, span := tracing.Start(ctx, "article.decode")
	defer span.End()
	span.SetAttr("block", b.String())
	start := time.Now()
	text, err := s.decoder.DecodeBlock(b)
	s.observe("decode", start)
	if err != nil {
		return "", err
	}
	span.SetAttr("decoded_bytes", len(text))
	if s.metrics != nil {
		s.metrics.DecodedBlockBytes.Observe(float64(len(text)))
	}
	return text, nil
}

func (s *Service) observe(stage string, start time.Time) {
	if s.metrics != nil {
		s.metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}

func (s *Service) recordResult(found bool, err error) {
	if s.metrics == nil {
		return
	}
	switch {
	case err != nil:
		s.metrics.ArticleLookupsTotal.WithLabelValues(metrics.ResultError).Inc()
	case found:
		s.metrics.ArticleLookupsTotal.WithLabelValues(metrics.ResultFound).Inc()
	default:
		s.metrics.ArticleLookupsTotal.WithLabelValues(metrics.ResultNotFound).Inc()
	}
}
