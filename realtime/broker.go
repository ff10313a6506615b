package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Broker publishes events to a topic. Delivery is best effort.
type Broker interface {
	Publish(ctx context.Context, topic string, evt Event) error
}

// LocalBroker delivers straight to an in-process hub.
type LocalBroker struct {
	hub *Hub
}

func NewLocalBroker(hub *Hub) *LocalBroker {
	return &LocalBroker{hub: hub}
}

func (b *LocalBroker) Publish(_ context.Context, topic string, evt Event) error {
	b.hub.Publish(topic, evt)
	return nil
}

// DefaultChannelPrefix namespaces roomie topics on a shared Redis.
const DefaultChannelPrefix = "roomie:"

// RedisBroker relays events through Redis pub/sub so every server instance
// delivers them to its own local subscribers.
type RedisBroker struct {
	client *redis.Client
	hub    *Hub
	prefix string
}

func NewRedisBroker(client *redis.Client, hub *Hub) *RedisBroker {
	return &RedisBroker{client: client, hub: hub, prefix: DefaultChannelPrefix}
}

func (b *RedisBroker) Publish(ctx context.Context, topic string, evt Event) error {
	evt.Topic = topic
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := b.client.Publish(ctx, b.prefix+topic, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", topic, err)
	}
	return nil
}

// Run forwards every Redis event into the local hub until ctx is done.
func (b *RedisBroker) Run(ctx context.Context) error {
	ps := b.client.PSubscribe(ctx, b.prefix+"*")
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("redis psubscribe: %w", err)
	}
	slog.Info("redis broker subscribed", "pattern", b.prefix+"*")

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.deliver(msg.Channel, []byte(msg.Payload))
		}
	}
}

func (b *RedisBroker) deliver(channel string, payload []byte) {
	var evt Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		slog.Warn("dropping malformed realtime event", "channel", channel, "error", err)
		return
	}
	b.hub.Publish(strings.TrimPrefix(channel, b.prefix), evt)
}
