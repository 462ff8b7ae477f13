package app

import (
	"traffic-duplicator/internal/common/logging"
	"traffic-duplicator/internal/redis"
)

func (app *App) initializeRedis() error {
	redisConfig := app.Config.RedisConfig()
	if redisConfig == nil {
		app.Logger.Info("Redis: Not configured (stats sink and distributed rate limiting disabled)")
		return nil
	}

	redisClient, err := redis.NewClient(redisConfig)
	if err != nil {
		return err
	}

	app.RedisClient = redisClient
	app.Logger.Info("Redis: Connected",
		logging.Field{Key: "address", Value: redisConfig.Address},
		logging.Field{Key: "stats_key", Value: redisClient.StatsKey()},
	)
	return nil
}
