package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/wikidump/pkg/kafka"
)

// Publisher is the Kafka write side. *kafka.Producer satisfies it.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Collector accumulates lookup events and flushes them to Kafka either when
// the batch reaches batchSize or after flushInterval, whichever comes first.
// Tracking never blocks a request.
type Collector struct {
	publisher     Publisher
	mu            sync.Mutex
	buffer        []kafka.Event
	batchSize     int
	maxBuffered   int
	flushInterval time.Duration
	flushCh       chan struct{}
	logger        *slog.Logger
	done          chan struct{}
}

func NewCollector(publisher Publisher, batchSize int, flushInterval time.Duration) *Collector {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &Collector{
		publisher:     publisher,
		buffer:        make([]kafka.Event, 0, batchSize),
		batchSize:     batchSize,
		maxBuffered:   batchSize * 10,
		flushInterval: flushInterval,
		flushCh:       make(chan struct{}, 1),
		logger:        slog.Default().With("component", "lookup-collector"),
		done:          make(chan struct{}),
	}
}

// Start launches the background flush loop. It runs until ctx is cancelled,
// then makes a final flush with a short deadline.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.flushInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.flush(ctx)
			case <-c.flushCh:
				c.flush(ctx)
			case <-ctx.Done():
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				c.flush(flushCtx)
				cancel()
				return
			}
		}
	}()
	c.logger.Info("lookup collector started",
		"batch_size", c.batchSize,
		"flush_interval", c.flushInterval,
	)
}

// Track buffers one lookup event keyed by title.
func (c *Collector) Track(event LookupEvent) {
	if event.Type == "" {
		event.Type = EventLookup
	}
	c.mu.Lock()
	if len(c.buffer) >= c.maxBuffered {
		c.mu.Unlock()
		c.logger.Warn("lookup event dropped (buffer full)")
		return
	}
	c.buffer = append(c.buffer, kafka.Event{Key: event.Title, Value: event})
	shouldFlush := len(c.buffer) >= c.batchSize
	c.mu.Unlock()

	if shouldFlush {
		select {
		case c.flushCh <- struct{}{}:
		default:
		}
	}
}

// Close waits for the flush loop to finish. Cancel the Start context first.
func (c *Collector) Close() {
	<-c.done
}

// BufferLen returns the current number of buffered events.
func (c *Collector) BufferLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buffer)
}

func (c *Collector) flush(ctx context.Context) {
	c.mu.Lock()
	if len(c.buffer) == 0 {
		c.mu.Unlock()
		return
	}
	batch := c.buffer
	c.buffer = make([]kafka.Event, 0, c.batchSize)
	c.mu.Unlock()

	if err := c.publisher.PublishBatch(ctx, batch); err != nil {
		c.logger.Error("batch flush failed", "batch_size", len(batch), "error", err)
		c.mu.Lock()
		c.buffer = append(batch, c.buffer...)
		if len(c.buffer) > c.maxBuffered {
			dropped := len(c.buffer) - c.maxBuffered
			c.buffer = c.buffer[:c.maxBuffered]
			c.logger.Warn("buffer overflow, events dropped", "dropped", dropped)
		}
		c.mu.Unlock()
		return
	}
	c.logger.Debug("batch flushed", "events", len(batch))
}
