// Package eventbus fans validated samples out to Redis pub/sub for
// downstream consumers. The fan-out is best effort and optional; the
// ingestion path never depends on it.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/Shilirayen01/sys-acquisition/internal/domain"
	"github.com/Shilirayen01/sys-acquisition/internal/ports"
)

type Config struct {
	Addr     string
	Channel  string
	Password string
	DB       int
}

type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher connects and pings once so a misconfigured bus fails
// at startup rather than silently dropping every publish.
func NewRedisPublisher(ctx context.Context, cfg Config) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("event bus ping: %w", err)
	}
	return &RedisPublisher{client: client, channel: cfg.Channel}, nil
}

func (p *RedisPublisher) Publish(ctx context.Context, s *domain.Sample) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("event bus encode: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("event bus publish: %w", err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

var _ ports.EventPublisher = (*RedisPublisher)(nil)
