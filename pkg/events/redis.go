package events

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/reconsumeralization/modernmen-sub011/internal/models"
)

// RedisPublisher broadcasts events on a Redis pub/sub channel.
type RedisPublisher struct {
	client  redis.UniversalClient
	channel string
}

// NewRedisPublisher builds a publisher on channel.
func NewRedisPublisher(client redis.UniversalClient, channel string) *RedisPublisher {
	if channel == "" {
		channel = "scheduling-events"
	}
	return &RedisPublisher{client: client, channel: channel}
}

// Publish sends the JSON encoded event.
func (p *RedisPublisher) Publish(ctx context.Context, event models.Event) error {
	data, err := Encode(event)
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("publish %s to %s: %w", event.Type, p.channel, err)
	}
	return nil
}

// Close leaves the shared client open; its owner closes it.
func (p *RedisPublisher) Close() error { return nil }
