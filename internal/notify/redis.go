package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisPublisher publishes notifications as JSON on the user's channel.
type RedisPublisher struct {
	client publisher
}

func NewRedisPublisher(addr string) *RedisPublisher {
	return &RedisPublisher{client: redis.NewClient(&redis.Options{Addr: addr})}
}

func (p *RedisPublisher) Notify(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := p.client.Publish(ctx, n.Channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", n.Channel, err)
	}
	return nil
}

// Close releases the underlying client when it owns one.
func (p *RedisPublisher) Close() error {
	if c, ok := p.client.(*redis.Client); ok {
		return c.Close()
	}
	return nil
}
