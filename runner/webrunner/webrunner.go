// Package webrunner runs the HTTP API server.
package webrunner

import (
	"context"
	"os"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/monahq/mona/chatbot"
	"github.com/monahq/mona/config"
	"github.com/monahq/mona/redis"
	redisconfig "github.com/monahq/mona/redis/config"
	"github.com/monahq/mona/runner"
	"github.com/monahq/mona/web"
	"github.com/monahq/mona/web/auth"
	"github.com/monahq/mona/web/handlers"
)

type webrunner struct {
	srv    *web.Server
	stores *runner.Stores
	queue  *redis.Client
	logger *zap.Logger
}

// New wires the web server over the configured stores. When Redis is
// configured the server enqueues background syncs instead of running them
// inline.
func New(cfg *config.Config, logger *zap.Logger) (runner.Runner, error) {
	stores, err := runner.OpenStores(cfg, logger)
	if err != nil {
		return nil, err
	}

	services, err := runner.BuildServices(cfg, stores, runner.Telemetry(cfg), logger)
	if err != nil {
		_ = stores.Close()

		return nil, err
	}

	var chat *chatbot.Service

	if cfg.ChatbotURL != "" {
		client := chatbot.NewClient(cfg.ChatbotURL, cfg.ChatbotAPIKey, cfg.ChatbotModel)
		chat = chatbot.NewService(client, stores.Chat, stores.Events, stores.Emails, logger,
			chatbot.WithHistoryLimit(cfg.ChatHistorySize))
	}

	deps := handlers.Dependencies{
		Logger:     logger,
		DB:         stores.DB,
		Service:    services.Service,
		Runs:       stores.Runs,
		Events:     stores.Events,
		Emails:     stores.Emails,
		Chat:       chat,
		StaleAfter: cfg.SyncRunStaleAfter,
	}

	var queue *redis.Client

	if redisConfigured() {
		redisCfg, err := redisconfig.NewRedisConfig()
		if err != nil {
			_ = stores.Close()

			return nil, err
		}

		queue, err = redis.NewClient(redisCfg)
		if err != nil {
			_ = stores.Close()

			return nil, err
		}

		deps.Enqueuer = queue
	}

	srv := web.New(web.Config{
		Addr:           cfg.Addr,
		AllowedOrigin:  cfg.FrontendURL,
		AuthMiddleware: auth.NewMiddleware(string(cfg.JWTSecret), stores.Users, logger),
		Deps:           deps,
	})

	return &webrunner{
		srv:    srv,
		stores: stores,
		queue:  queue,
		logger: logger,
	}, nil
}

func (w *webrunner) Run(ctx context.Context) error {
	return w.srv.Start(ctx)
}

func (w *webrunner) Close(ctx context.Context) error {
	var errs error

	if w.queue != nil {
		errs = multierr.Append(errs, w.queue.Close())
	}

	errs = multierr.Append(errs, w.stores.Close())

	return errs
}

func redisConfigured() bool {
	return os.Getenv("REDIS_URL") != "" || os.Getenv("REDIS_HOST") != ""
}
