package app

import (
	httpclient "traffic-duplicator/internal/common/http"
	"traffic-duplicator/internal/common/logging"
	"traffic-duplicator/internal/dispatcher"
)

// newClientFactory gives every worker its own client. Breakers are shared so
// that all workers see the same destination state.
func (app *App) newClientFactory() dispatcher.ClientFactory {
	opts := []httpclient.ClientOption{
		httpclient.WithTimeout(app.Config.Timeout),
	}
	if app.Breakers != nil {
		opts = append(opts, httpclient.WithBreakers(app.Breakers))
	}
	return func() dispatcher.Client {
		return httpclient.NewClient(opts...)
	}
}

func (app *App) initializeDispatcher() error {
	cfg := app.Config

	var opts []dispatcher.Option
	if app.Limiter != nil {
		opts = append(opts, dispatcher.WithLimiter(app.Limiter))
	}

	d := dispatcher.New(app.Rules, app.newClientFactory(), dispatcher.Config{
		Name:        cfg.ProgramName,
		Synchronous: cfg.Synchronous,
		Timeout:     cfg.Timeout,
		Amplify:     cfg.Amplify,
	}, opts...)

	pool := d.Pool()
	minThreads := cfg.MinThreads
	if cfg.Synchronous {
		minThreads = 0
	}
	if err := pool.SetThreadBounds(minThreads, cfg.MaxThreads); err != nil {
		return err
	}
	if err := pool.SetQueueBounds(cfg.MinQueued, cfg.MaxQueued); err != nil {
		return err
	}
	if err := pool.SetStatsInterval(cfg.StatsInterval); err != nil {
		return err
	}
	pool.SetDropThreshold(cfg.DropThreshold())
	if app.RedisClient != nil {
		pool.AddReporter(app.RedisClient)
	}

	if err := d.Start(); err != nil {
		return err
	}
	app.Dispatcher = d

	app.Logger.Info("Dispatcher started",
		logging.Field{Key: "mode", Value: d.Mode()},
		logging.Field{Key: "min_threads", Value: minThreads},
		logging.Field{Key: "max_threads", Value: cfg.MaxThreads},
		logging.Field{Key: "drop_threshold", Value: cfg.DropThreshold()},
	)
	return nil
}
