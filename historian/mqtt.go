package historian

import (
	"context"
	"log/slog"

	"github.com/absmach/sparkpipe/pkg/mqtt"
)

// Subscribe routes the whole Sparkplug namespace into the ingestor.
func Subscribe(ctx context.Context, pubsub mqtt.PubSub, ing *Ingestor, logger *slog.Logger) error {
	topic := ing.Topic()
	if err := pubsub.Subscribe(ctx, topic, ing.Handle); err != nil {
		return err
	}
	logger.InfoContext(ctx, "subscribed to sparkplug namespace", slog.String("topic", topic))

	return nil
}

// Unsubscribe stops delivery and disconnects from the broker. It runs first
// during shutdown so no message arrives after the ingestor drains.
func Unsubscribe(ctx context.Context, pubsub mqtt.PubSub, ing *Ingestor) error {
	if err := pubsub.Unsubscribe(ctx, ing.Topic()); err != nil {
		return err
	}

	return pubsub.Disconnect(ctx)
}
