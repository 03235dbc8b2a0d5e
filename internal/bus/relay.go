package bus

import (
	"context"
	"encoding/json"
	"time"

	"resto-platform/internal/util"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const forwardTimeout = 2 * time.Second

// envelope wraps an event for the wire. Origin lets an instance skip its
// own messages when they come back around.
type envelope struct {
	Origin string `json:"origin"`
	Event  Event  `json:"event"`
}

// Relay fans bus events out across instances through Redis Pub/Sub, so a
// subscriber connected to any instance sees events published on every
// instance. Best-effort like the bus itself: relay failures are logged,
// never surfaced to the publisher.
type Relay struct {
	rdb     *redis.Client
	channel string
	origin  string
	logger  *zap.Logger
}

// NewRelay creates a relay over the given Redis client and channel.
func NewRelay(rdb *redis.Client, channel string) *Relay {
	return &Relay{
		rdb:     rdb,
		channel: channel,
		origin:  uuid.New().String(),
		logger:  util.GetLogger(),
	}
}

// Forward hands an event to Redis without blocking the publisher.
func (r *Relay) Forward(evt Event) {
	raw, err := json.Marshal(envelope{Origin: r.origin, Event: evt})
	if err != nil {
		r.logger.Error("Failed to marshal relay envelope", zap.Error(err))
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), forwardTimeout)
		defer cancel()

		if err := r.rdb.Publish(ctx, r.channel, raw).Err(); err != nil {
			r.logger.Warn("Failed to relay bus event", zap.Error(err))
		}
	}()
}

// Run subscribes to the relay channel and rebroadcasts remote events
// locally until the context is cancelled.
func (r *Relay) Run(ctx context.Context, deliver func(Event)) {
	sub := r.rdb.Subscribe(ctx, r.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.logger.Warn("Dropping malformed relay envelope", zap.Error(err))
				continue
			}
			if env.Origin == r.origin {
				continue
			}
			deliver(env.Event)
		}
	}
}
