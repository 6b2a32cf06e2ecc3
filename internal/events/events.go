// Package events defines the messages wikidump exchanges over Kafka: one
// LookupEvent per served article request and one IndexBuiltEvent per
// completed index build.
package events

import "time"

type EventType string

const (
	EventLookup     EventType = "article_lookup"
	EventIndexBuilt EventType = "index_built"
)

// Lookup outcomes carried by LookupEvent.Result.
const (
	ResultFound    = "found"
	ResultNotFound = "not_found"
	ResultError    = "error"
)

type LookupEvent struct {
	Type      EventType `json:"type"`
	Title     string    `json:"title"`
	Result    string    `json:"result"`
	CacheHit  bool      `json:"cache_hit"`
	Bytes     int       `json:"bytes"`
	LatencyMs int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

type IndexBuiltEvent struct {
	Type       EventType `json:"type"`
	Driver     string    `json:"driver"`
	Corpus     string    `json:"corpus"`
	Lines      int64     `json:"lines"`
	Inserted   int64     `json:"inserted"`
	Skipped    int64     `json:"skipped"`
	DurationMs int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}
