package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aescanero/eventring/pkg/ports"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StreamWriter is the part of the Redis client used by StreamsDeliverer.
// *redis.Client satisfies it.
type StreamWriter interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// StreamsDeliverer implements ports.Deliverer by appending events to a Redis
// stream.
type StreamsDeliverer struct {
	client StreamWriter
	logger *zap.Logger
	stream string
	maxLen int64
}

// NewStreamsDeliverer creates a new Redis Streams deliverer. A positive maxLen
// trims the stream approximately to that many entries. client must be non-nil;
// a nil *redis.Client is rejected as well.
func NewStreamsDeliverer(client StreamWriter, stream string, maxLen int64, logger *zap.Logger) (*StreamsDeliverer, error) {
	if c, ok := client.(*redis.Client); client == nil || (ok && c == nil) {
		return nil, fmt.Errorf("redis client is required")
	}
	if stream == "" {
		return nil, fmt.Errorf("stream name is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamsDeliverer{
		client: client,
		logger: logger,
		stream: stream,
		maxLen: maxLen,
	}, nil
}

// Deliver appends the event to the stream
func (d *StreamsDeliverer) Deliver(ctx context.Context, event ports.Event) error {
	// Serialize event
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	// Add to stream
	args := &redis.XAddArgs{
		Stream: d.stream,
		Values: map[string]interface{}{
			"id":   event.ID,
			"type": event.Type,
			"data": string(data),
		},
	}
	if d.maxLen > 0 {
		args.MaxLen = d.maxLen
		args.Approx = true
	}

	entryID, err := d.client.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("failed to add to stream: %w", err)
	}

	d.logger.Debug("event delivered",
		zap.String("event_id", event.ID),
		zap.String("type", event.Type),
		zap.String("stream", d.stream),
		zap.String("entry_id", entryID))

	return nil
}

// Stream returns the target stream key
func (d *StreamsDeliverer) Stream() string {
	return d.stream
}
