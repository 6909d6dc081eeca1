package events

import (
	"context"
	"encoding/json"
	"time"

	"log/slog"

	redis "github.com/redis/go-redis/v9"

	"github.com/au2001/graph-node/internal/domain"
)

// RedisPublisher publishes execution events on a Redis pub/sub channel so
// external tooling can follow executions without polling the store.
type RedisPublisher struct {
	client  *redis.Client
	logger  *slog.Logger
	channel string
	timeout time.Duration
}

// NewRedisPublisher connects to Redis and verifies the connection before
// returning a publisher.
func NewRedisPublisher(addr, password string, db int, channel string, logger *slog.Logger) (*RedisPublisher, error) {
	opts := &redis.Options{Addr: addr, Password: password, DB: db}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	if channel == "" {
		channel = "graphman:executions"
	}
	return &RedisPublisher{
		client:  client,
		logger:  logger,
		channel: channel,
		timeout: 250 * time.Millisecond,
	}, nil
}

// Publish implements Sink. Errors are returned for the caller to log; the
// publish itself is bounded so a slow Redis cannot stall an execution.
func (p *RedisPublisher) Publish(ctx context.Context, event domain.ExecutionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()
	if err := p.client.Publish(pubCtx, p.channel, payload).Err(); err != nil {
		if p.logger != nil {
			p.logger.Warn("execution event publish failed", "channel", p.channel, "error", err)
		}
		return err
	}
	return nil
}

// Close releases the Redis connection.
func (p *RedisPublisher) Close() {
	if p.client != nil {
		_ = p.client.Close()
	}
}
