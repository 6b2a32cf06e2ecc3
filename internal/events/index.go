package events

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/wikidump/pkg/kafka"
)

// PublishIndexBuilt announces a finished index build. The corpus path is the
// message key so rebuilds of one corpus stay ordered.
func PublishIndexBuilt(ctx context.Context, pub Publisher, event IndexBuiltEvent) error {
	event.Type = EventIndexBuilt
	if err := pub.PublishBatch(ctx, []kafka.Event{{Key: event.Corpus, Value: event}}); err != nil {
		return fmt.Errorf("announcing index build: %w", err)
	}
	return nil
}

// HandleIndexBuilt returns a consumer callback that runs onBuilt for every
// index build announcement. An error from onBuilt leaves the message
// uncommitted.
func HandleIndexBuilt(onBuilt func(ctx context.Context, event IndexBuiltEvent) error) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-events")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[IndexBuiltEvent](value)
		if err != nil || event.Type != EventIndexBuilt {
			logger.Warn("skipping non-build message", "key", string(key), "error", err)
			return nil
		}
		logger.Info("index build announced",
			"corpus", event.Corpus,
			"driver", event.Driver,
			"inserted", event.Inserted,
		)
		return onBuilt(ctx, event)
	}
}
