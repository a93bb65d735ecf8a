package feed

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisSource implements Source over Redis pub/sub. The transcription and
// coaching producers publish rows as they are generated server-side.
type RedisSource struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewRedisSource connects to Redis and verifies the connection
func NewRedisSource(ctx context.Context, addr, password string, db int, logger zerolog.Logger) (*RedisSource, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info().Str("addr", addr).Msg("redis source connected")
	return &RedisSource{
		client: client,
		logger: logger.With().Str("component", "redis_source").Logger(),
	}, nil
}

// Subscribe opens a pub/sub subscription on one channel
func (r *RedisSource) Subscribe(ctx context.Context, channel string) (*Subscription, error) {
	pubsub := r.client.Subscribe(ctx, channel)

	// Force the subscription onto the wire so failures surface here
	// instead of on the first missed message.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			select {
			case out <- []byte(msg.Payload):
			case <-ctx.Done():
				return
			}
		}
	}()

	return &Subscription{C: out, cancel: func() {
		if err := pubsub.Close(); err != nil {
			r.logger.Warn().Err(err).Str("channel", channel).Msg("failed to close subscription")
		}
	}}, nil
}

// Publish delivers a payload to a channel
func (r *RedisSource) Publish(ctx context.Context, channel string, payload []byte) error {
	return r.client.Publish(ctx, channel, payload).Err()
}

// Close releases the underlying client
func (r *RedisSource) Close() error {
	return r.client.Close()
}
