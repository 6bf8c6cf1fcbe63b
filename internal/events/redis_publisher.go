package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisPublisher forwards events to a Redis pub/sub channel so every console
// instance can refresh its ticket views.
type RedisPublisher struct {
	client  redis.UniversalClient
	channel string
	logger  *zap.Logger
}

// NewRedisPublisher builds a publisher on channel.
func NewRedisPublisher(client redis.UniversalClient, channel string, logger *zap.Logger) (*RedisPublisher, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	if channel == "" {
		channel = "ticket-events"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPublisher{client: client, channel: channel, logger: logger}, nil
}

// Publish serializes event as JSON and publishes it.
func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.ID, err)
	}
	if err := p.client.Publish(ctx, p.channel, raw).Err(); err != nil {
		return fmt.Errorf("publish event %s: %w", event.ID, err)
	}
	return nil
}

// Subscribe delivers decoded events to onEvent until ctx is done.
func (p *RedisPublisher) Subscribe(ctx context.Context, onEvent func(Event)) error {
	if onEvent == nil {
		return errors.New("onEvent callback required")
	}
	sub := p.client.Subscribe(ctx, p.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
					p.logger.Warn("bad ticket event payload", zap.Error(err))
					continue
				}
				onEvent(ev)
			}
		}
	}()
	return nil
}
