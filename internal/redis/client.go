// Package redis publishes duplication statistics to Redis and backs the
// distributed rate limiter.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"traffic-duplicator/internal/workerpool"
)

type Client struct {
	rdb    *redis.Client
	config *Config
}

type Config struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
	// Program names the stats keys, so several duplicators can share a server
	Program string `json:"program"`
}

func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("redis config is required")
	}

	if config.Address == "" {
		config.Address = "localhost:6379"
	}
	if config.PoolSize == 0 {
		config.PoolSize = 10
	}
	if config.Program == "" {
		config.Program = "traffic-duplicator"
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{
		rdb:    rdb,
		config: config,
	}, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.rdb.Ping(ctx).Err()
}

// StatsKey holds the cumulative counters of the program
func (c *Client) StatsKey() string {
	return "dup:stats:" + c.config.Program
}

// PoolKey holds the latest pool size and backlog of the program
func (c *Client) PoolKey() string {
	return "dup:pool:" + c.config.Program
}

// EventsChannel receives every snapshot as JSON
func (c *Client) EventsChannel() string {
	return "dup:events:" + c.config.Program
}

// Report adds the counters of a snapshot to the stats hash, records the
// current pool state and publishes the snapshot.
func (c *Client) Report(ctx context.Context, snapshot workerpool.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	pipe := c.rdb.TxPipeline()

	statsKey := c.StatsKey()
	pipe.HIncrBy(ctx, statsKey, "in", snapshot.In)
	pipe.HIncrBy(ctx, statsKey, "out", snapshot.Out)
	pipe.HIncrBy(ctx, statsKey, "drop", snapshot.Drop)
	pipe.HIncrBy(ctx, statsKey, "crashes", snapshot.Crashes)
	for name, value := range snapshot.Providers {
		pipe.HIncrBy(ctx, statsKey, name, value)
	}

	pipe.HSet(ctx, c.PoolKey(),
		"threads", snapshot.Threads,
		"queued", snapshot.Queued,
		"updated_at", snapshot.Time.UTC().Format(time.RFC3339Nano),
	)
	pipe.Publish(ctx, c.EventsChannel(), data)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to report stats: %w", err)
	}
	return nil
}

// Stats returns the cumulative counters of the program
func (c *Client) Stats(ctx context.Context) (map[string]int64, error) {
	raw, err := c.rdb.HGetAll(ctx, c.StatsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read stats: %w", err)
	}

	stats := make(map[string]int64, len(raw))
	for name, value := range raw {
		var n int64
		if _, err := fmt.Sscan(value, &n); err != nil {
			return nil, fmt.Errorf("invalid counter %s=%q: %w", name, value, err)
		}
		stats[name] = n
	}
	return stats, nil
}

// CheckRateLimit records one call in the sliding window of key and reports
// whether fewer than limit calls were already recorded within window.
func (c *Client) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error) {
	now := time.Now()
	windowStart := now.Add(-window).UnixNano()

	pipe := c.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart))
	countCmd := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, &redis.Z{Score: float64(now.UnixNano()), Member: uuid.NewString()})
	pipe.Expire(ctx, key, window*2)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("failed to check rate limit: %w", err)
	}

	count := int(countCmd.Val())
	return count < limit, count, nil
}

// Subscribe listens to the events channel
func (c *Client) Subscribe(ctx context.Context) *redis.PubSub {
	return c.rdb.Subscribe(ctx, c.EventsChannel())
}
