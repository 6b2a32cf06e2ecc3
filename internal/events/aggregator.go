package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/wikidump/pkg/kafka"
)

const (
	maxLatencySamples = 10000
	maxTrackedTitles  = 10000
)

type LookupStats struct {
	TotalLookups     int64        `json:"total_lookups"`
	Found            int64        `json:"found"`
	NotFound         int64        `json:"not_found"`
	Errors           int64        `json:"errors"`
	CacheHits        int64        `json:"cache_hits"`
	AvgLatencyMs     float64      `json:"avg_latency_ms"`
	P50LatencyMs     int64        `json:"p50_latency_ms"`
	P95LatencyMs     int64        `json:"p95_latency_ms"`
	P99LatencyMs     int64        `json:"p99_latency_ms"`
	TopTitles        []TitleCount `json:"top_titles"`
	MissingTitles    []TitleCount `json:"missing_titles"`
	LookupsPerMinute float64      `json:"lookups_per_minute"`
}

type TitleCount struct {
	Title string `json:"title"`
	Count int64  `json:"count"`
}

// Aggregator folds lookup events into in-memory stats. Latencies keep the
// most recent maxLatencySamples values. Per-title counts are capped: when a
// map is full the least counted half is dropped before a new title is added.
type Aggregator struct {
	mu        sync.RWMutex
	stats     LookupStats
	latencies []int64
	next      int
	titles    map[string]int64
	missing   map[string]int64
	maxTitles int
	startTime time.Time
	logger    *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies: make([]int64, 0, 1024),
		titles:    make(map[string]int64),
		missing:   make(map[string]int64),
		maxTitles: maxTrackedTitles,
		startTime: time.Now(),
		logger:    slog.Default().With("component", "lookup-aggregator"),
	}
}

// HandleLookups returns a consumer callback feeding agg. Undecodable
// messages are logged and skipped so they do not block the partition.
func HandleLookups(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[LookupEvent](value)
		if err != nil || event.Type != EventLookup {
			agg.logger.Warn("skipping non-lookup message", "key", string(key), "error", err)
			return nil
		}
		agg.Record(event)
		return nil
	}
}

func (a *Aggregator) Record(event LookupEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stats.TotalLookups++
	switch event.Result {
	case ResultFound:
		a.stats.Found++
		a.count(a.titles, event.Title)
	case ResultNotFound:
		a.stats.NotFound++
		a.count(a.missing, event.Title)
	default:
		a.stats.Errors++
	}
	if event.CacheHit {
		a.stats.CacheHits++
	}

	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.next] = event.LatencyMs
		a.next = (a.next + 1) % maxLatencySamples
	}
}

func (a *Aggregator) count(counts map[string]int64, title string) {
	if _, ok := counts[title]; !ok && len(counts) >= a.maxTitles {
		keep := make(map[string]struct{}, a.maxTitles/2)
		for _, tc := range topN(counts, a.maxTitles/2) {
			keep[tc.Title] = struct{}{}
		}
		for t := range counts {
			if _, ok := keep[t]; !ok {
				delete(counts, t)
			}
		}
	}
	counts[title]++
}

func (a *Aggregator) Stats() LookupStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := a.stats
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopTitles = topN(a.titles, 10)
	stats.MissingTitles = topN(a.missing, 10)
	if elapsed := time.Since(a.startTime).Minutes(); elapsed > 0 {
		stats.LookupsPerMinute = float64(stats.TotalLookups) / elapsed
	}
	return stats
}

// StatsHandler serves the current stats as JSON.
func (a *Aggregator) StatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(a.Stats()); err != nil {
			a.logger.Error("failed to write stats response", "error", err)
		}
	}
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []TitleCount {
	result := make([]TitleCount, 0, len(counts))
	for title, count := range counts {
		result = append(result, TitleCount{Title: title, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Title < result[j].Title
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
