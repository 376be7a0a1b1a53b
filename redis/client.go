// Package redis wraps the asynq client and server used for background syncs.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	goredis "github.com/redis/go-redis/v9"

	"github.com/monahq/mona/redis/config"
	"github.com/monahq/mona/redis/tasks"
)

// Client enqueues background tasks onto the Redis queue.
type Client struct {
	client *asynq.Client
	conn   *goredis.Client
	cfg    *config.RedisConfig
}

// NewClient creates a queue client and verifies the Redis connection.
func NewClient(cfg *config.RedisConfig) (*Client, error) {
	conn := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.Ping(ctx).Err(); err != nil {
		_ = conn.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &Client{client: client, conn: conn, cfg: cfg}, nil
}

// EnqueueSync schedules a background sync for the integration. Duplicate
// tasks for the same integration are suppressed while one is still pending.
func (c *Client) EnqueueSync(ctx context.Context, integrationID string) error {
	task, err := tasks.NewSyncTask(integrationID)
	if err != nil {
		return err
	}

	return c.EnqueueTask(ctx, task,
		asynq.Queue(tasks.QueueDefault),
		asynq.MaxRetry(c.cfg.MaxRetries),
		asynq.Unique(10*time.Minute),
	)
}

// EnqueueTask enqueues an arbitrary task with the given options.
func (c *Client) EnqueueTask(ctx context.Context, task *asynq.Task, opts ...asynq.Option) error {
	if _, err := c.client.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("failed to enqueue %s task: %w", task.Type(), err)
	}

	return nil
}

// Healthy reports whether the queue is reachable.
func (c *Client) Healthy(ctx context.Context) bool {
	return c.conn.Ping(ctx).Err() == nil
}

// Close releases the underlying Redis connections.
func (c *Client) Close() error {
	if err := c.client.Close(); err != nil {
		_ = c.conn.Close()

		return fmt.Errorf("failed to close Redis client: %w", err)
	}

	return c.conn.Close()
}
