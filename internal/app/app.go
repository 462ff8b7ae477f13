package app

import (
	"time"

	"traffic-duplicator/internal/circuitbreaker"
	httpclient "traffic-duplicator/internal/common/http"
	"traffic-duplicator/internal/common/logging"
	"traffic-duplicator/internal/common/ratelimit"
	"traffic-duplicator/internal/config"
	"traffic-duplicator/internal/dispatcher"
	"traffic-duplicator/internal/redis"
	"traffic-duplicator/internal/routing"
)

// OriginTimeout bounds the proxied call to DUP_ORIGIN
const OriginTimeout = 30 * time.Second

// App holds all the application dependencies
type App struct {
	Config      *config.Config
	Rules       *routing.Rules
	Breakers    *circuitbreaker.Manager
	Limiter     ratelimit.KeyedLimiter
	RedisClient *redis.Client
	Dispatcher  *dispatcher.Dispatcher
	Origin      *httpclient.Client
	Logger      logging.Logger
}

// New creates a new application instance with all dependencies
func New(cfg *config.Config) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logging.GetGlobalLogger().WithFields(logging.Field{Key: "component", Value: "app"}),
	}

	if err := app.initializeRules(); err != nil {
		return nil, err
	}

	if err := app.initializeRedis(); err != nil {
		// Redis is optional, just log the error
		app.Logger.Warn("Redis initialization failed, continuing without Redis",
			logging.Field{Key: "error", Value: err.Error()})
	}

	if err := app.initializeRateLimiter(); err != nil {
		return nil, err
	}

	app.initializeBreakers()

	if err := app.initializeDispatcher(); err != nil {
		app.Cleanup()
		return nil, err
	}

	if cfg.Origin != "" {
		app.Origin = httpclient.NewClient(httpclient.WithTimeout(OriginTimeout))
	}

	return app, nil
}

func (app *App) initializeRules() error {
	if app.Config.RulesFile == "" {
		app.Rules = routing.NewRules()
		app.Logger.Warn("No rule file configured, nothing will be duplicated")
		return nil
	}

	rules, err := config.LoadRules(app.Config.RulesFile)
	if err != nil {
		return err
	}
	app.Rules = rules
	app.Logger.Info("Rules loaded",
		logging.Field{Key: "file", Value: app.Config.RulesFile},
		logging.Field{Key: "locations", Value: rules.Len()},
	)
	return nil
}

func (app *App) initializeBreakers() {
	if !app.Config.BreakerEnabled {
		return
	}
	app.Breakers = circuitbreaker.NewManager(circuitbreaker.DefaultConfig(), app.Logger)
}

// Cleanup releases all resources
func (app *App) Cleanup() {
	if app.Dispatcher != nil {
		app.Dispatcher.Close()
	}
	if app.Limiter != nil {
		app.Logger.Info("Rate limiter stats", logging.Field{Key: "stats", Value: app.Limiter.Stats()})
	}
	if app.Origin != nil {
		app.Origin.Close()
	}
	if app.RedisClient != nil {
		app.RedisClient.Close()
	}
}
