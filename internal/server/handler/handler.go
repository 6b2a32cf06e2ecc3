// Package handler serves articles over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/wikidump/internal/events"
	"github.com/Adithya-Monish-Kumar-K/wikidump/internal/server/cache"
	apperrors "github.com/Adithya-Monish-Kumar-K/wikidump/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/wikidump/pkg/logger"
)

// ArticleGetter is the lookup pipeline.
type ArticleGetter interface {
	GetRawArticle(ctx context.Context, title string) (string, bool, error)
}

// LookupTracker receives one event per served lookup.
type LookupTracker interface {
	Track(event events.LookupEvent)
}

// BlockCache is the in-process decoded-block cache.
type BlockCache interface {
	Stats() (hits, misses int64)
	Purge()
}

type Handler struct {
	articles   ArticleGetter
	cache      *cache.ArticleCache
	blockCache BlockCache
	tracker    LookupTracker
	logger     *slog.Logger
}

type Option func(*Handler)

func WithArticleCache(c *cache.ArticleCache) Option {
	return func(h *Handler) { h.cache = c }
}

func WithBlockCache(c BlockCache) Option {
	return func(h *Handler) { h.blockCache = c }
}

func WithTracker(t LookupTracker) Option {
	return func(h *Handler) { h.tracker = t }
}

func New(articles ArticleGetter, opts ...Option) *Handler {
	h := &Handler{
		articles: articles,
		logger:   slog.Default().With("component", "article-handler"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/articles/{title...}", h.GetArticle)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

// GetArticle writes the raw payload as text/plain. Titles may contain
// slashes, so the route captures the rest of the path.
func (h *Handler) GetArticle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	title := r.PathValue("title")
	if strings.TrimSpace(title) == "" || strings.ContainsAny(title, "\n\r") {
		h.writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	var (
		text     string
		found    bool
		cacheHit bool
		err      error
	)
	if h.cache != nil {
		text, found, cacheHit, err = h.cache.GetOrCompute(ctx, title, func(ctx context.Context) (string, bool, error) {
			return h.articles.GetRawArticle(ctx, title)
		})
	} else {
		text, found, err = h.articles.GetRawArticle(ctx, title)
	}
	latency := time.Since(start)

	result := events.ResultFound
	switch {
	case err != nil:
		result = events.ResultError
	case !found:
		result = events.ResultNotFound
	}
	h.track(ctx, events.LookupEvent{
		Title:     title,
		Result:    result,
		CacheHit:  cacheHit,
		Bytes:     len(text),
		LatencyMs: latency.Milliseconds(),
		Timestamp: time.Now().UTC(),
	})

	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		log.Error("article lookup failed", "title", title, "status", status, "error", err)
		h.writeError(w, status, http.StatusText(status))
		return
	}
	if !found {
		h.writeError(w, http.StatusNotFound, apperrors.ErrArticleNotFound.Error())
		return
	}

	log.Info("article served",
		"title", title,
		"bytes", len(text),
		"cache_hit", cacheHit,
		"latency_ms", latency.Milliseconds(),
	)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(text)); err != nil {
		log.Warn("failed to write article", "title", title, "error", err)
	}
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"articles": cacheStats(h.cache != nil, func() (int64, int64) { return h.cache.Stats() }),
		"blocks":   cacheStats(h.blockCache != nil, func() (int64, int64) { return h.blockCache.Stats() }),
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// CacheInvalidate drops cached articles and decoded blocks.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil && h.blockCache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	deleted, err := h.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "articles_deleted": deleted})
}

// Invalidate empties both caches. It also runs when a new index build is
// announced.
func (h *Handler) Invalidate(ctx context.Context) (int64, error) {
	if h.blockCache != nil {
		h.blockCache.Purge()
	}
	if h.cache == nil {
		return 0, nil
	}
	return h.cache.Invalidate(ctx)
}

func (h *Handler) track(ctx context.Context, event events.LookupEvent) {
	if h.tracker == nil {
		return
	}
	event.RequestID = logger.RequestID(ctx)
	h.tracker.Track(event)
}

func cacheStats(enabled bool, stats func() (int64, int64)) map[string]any {
	if !enabled {
		return map[string]any{"status": "disabled"}
	}
	hits, misses := stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	return map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
