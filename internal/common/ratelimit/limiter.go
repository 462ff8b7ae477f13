package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// KeyedLimiter grants tokens per key
type KeyedLimiter interface {
	TryAcquireForKey(key string) bool
	Stats() map[string]interface{}
}

// RedisInterface is the part of the Redis client the distributed backend needs
type RedisInterface interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error)
}

// New creates the limiter selected by config.Type. redisClient is only
// required for the Redis backend.
func New(config Config, redisClient RedisInterface) (KeyedLimiter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case BackendRedis:
		return NewDistributedLimiter(config, redisClient)
	default:
		return NewLocalLimiter(config)
	}
}

// distributedLimiter counts tokens in a Redis sliding window
type distributedLimiter struct {
	config      Config
	redisClient RedisInterface
	timeout     time.Duration
}

// NewDistributedLimiter creates a Redis-backed limiter
func NewDistributedLimiter(config Config, redisClient RedisInterface) (KeyedLimiter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if redisClient == nil {
		return nil, fmt.Errorf("redis client is required for distributed rate limiter")
	}
	return &distributedLimiter{
		config:      config,
		redisClient: redisClient,
		timeout:     100 * time.Millisecond,
	}, nil
}

// TryAcquireForKey checks the window of key. Redis errors allow the call.
func (rl *distributedLimiter) TryAcquireForKey(key string) bool {
	if !rl.config.Enabled {
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), rl.timeout)
	defer cancel()

	allowed, _, err := rl.redisClient.CheckRateLimit(ctx, rl.config.KeyPrefix+key, rl.config.RequestsPerSecond, time.Second)
	if err != nil {
		return true
	}
	return allowed
}

func (rl *distributedLimiter) Stats() map[string]interface{} {
	return map[string]interface{}{
		"type":                "redis",
		"enabled":             rl.config.Enabled,
		"requests_per_second": rl.config.RequestsPerSecond,
		"key_prefix":          rl.config.KeyPrefix,
	}
}
