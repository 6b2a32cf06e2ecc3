// Package tracing provides lightweight spans that propagate through Go
// contexts. A root span and its children form a tree that is written to slog
// when the root ends, if the trace was sampled.
package tracing

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	mrand "math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/wikidump/pkg/config"
)

type contextKey struct{}

var (
	enabled    atomic.Bool
	sampleRate atomic.Value
)

// Configure switches span logging on or off for the process.
func Configure(cfg config.TracingConfig) {
	enabled.Store(cfg.Enabled)
	sampleRate.Store(cfg.SampleRate)
}

// Span is a timed operation within a trace.
type Span struct {
	Name      string
	TraceID   string
	StartTime time.Time
	Duration  time.Duration
	Children  []*Span
	Attrs     map[string]any

	root    bool
	sampled bool
	mu      sync.Mutex
}

// Start begins a span named name. It becomes a child of the span already in
// ctx, or the root of a new trace.
func Start(ctx context.Context, name string) (context.Context, *Span) {
	span := &Span{
		Name:      name,
		StartTime: time.Now(),
		Attrs:     make(map[string]any),
	}
	if parent := FromContext(ctx); parent != nil {
		span.TraceID = parent.TraceID
		span.sampled = parent.sampled
		parent.mu.Lock()
		parent.Children = append(parent.Children, span)
		parent.mu.Unlock()
	} else {
		span.root = true
		span.TraceID = newTraceID()
		span.sampled = shouldSample()
	}
	return context.WithValue(ctx, contextKey{}, span), span
}

// FromContext returns the current span, or nil.
func FromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(contextKey{}).(*Span)
	return span
}

// SetAttr attaches a key-value attribute to the span.
func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.Attrs[key] = value
	s.mu.Unlock()
}

// End records the duration. Ending a sampled root logs the whole tree.
func (s *Span) End() {
	s.Duration = time.Since(s.StartTime)
	if s.root && s.sampled {
		s.log(0)
	}
}

func (s *Span) log(depth int) {
	s.mu.Lock()
	attrs := []any{
		"trace_id", s.TraceID,
		"span", s.Name,
		"duration_ms", float64(s.Duration.Microseconds()) / 1000,
		"depth", depth,
	}
	for k, v := range s.Attrs {
		attrs = append(attrs, k, v)
	}
	children := append([]*Span(nil), s.Children...)
	s.mu.Unlock()

	slog.Info("span", attrs...)
	for _, child := range children {
		child.log(depth + 1)
	}
}

func shouldSample() bool {
	if !enabled.Load() {
		return false
	}
	rate, _ := sampleRate.Load().(float64)
	return rate >= 1 || mrand.Float64() < rate
}

func newTraceID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
