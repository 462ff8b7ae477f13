package app

import (
	"traffic-duplicator/internal/common/logging"
	"traffic-duplicator/internal/common/ratelimit"
)

// initializeRateLimiter caps copies per destination when DUP_RATE_LIMIT is
// set. The Redis backend falls back to a local limiter when Redis is not
// connected.
func (app *App) initializeRateLimiter() error {
	rlConfig := app.Config.RateLimitConfig()
	if !rlConfig.Enabled {
		return nil
	}

	if rlConfig.Type == ratelimit.BackendRedis && app.RedisClient == nil {
		app.Logger.Warn("Redis unavailable, using local rate limiter")
		rlConfig.Type = ratelimit.BackendLocal
	}

	var redisClient ratelimit.RedisInterface
	if app.RedisClient != nil {
		redisClient = app.RedisClient
	}

	limiter, err := ratelimit.New(rlConfig, redisClient)
	if err != nil {
		return err
	}
	app.Limiter = limiter

	app.Logger.Info("Rate Limiting: Enabled",
		logging.Field{Key: "backend", Value: string(rlConfig.Type)},
		logging.Field{Key: "per_second", Value: rlConfig.RequestsPerSecond},
		logging.Field{Key: "burst", Value: rlConfig.BurstSize},
	)
	return nil
}
