// Package workerrunner runs the background sync worker: an asynq consumer
// for queued sync tasks plus the periodic scheduler that feeds it.
package workerrunner

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/monahq/mona/config"
	"github.com/monahq/mona/redis"
	redisconfig "github.com/monahq/mona/redis/config"
	"github.com/monahq/mona/redis/tasks"
	"github.com/monahq/mona/runner"
)

type workerrunner struct {
	server    *redis.Server
	mux       *asynq.ServeMux
	scheduler *redis.Scheduler
	queue     *redis.Client
	stores    *runner.Stores
	logger    *zap.Logger
}

// New wires the sync engine into an asynq worker.
func New(cfg *config.Config, logger *zap.Logger) (runner.Runner, error) {
	redisCfg, err := redisconfig.NewRedisConfig()
	if err != nil {
		return nil, err
	}

	stores, err := runner.OpenStores(cfg, logger)
	if err != nil {
		return nil, err
	}

	services, err := runner.BuildServices(cfg, stores, runner.Telemetry(cfg), logger)
	if err != nil {
		_ = stores.Close()

		return nil, err
	}

	queue, err := redis.NewClient(redisCfg)
	if err != nil {
		_ = stores.Close()

		return nil, err
	}

	handler := tasks.NewHandler(services.Syncer, logger)

	mux := asynq.NewServeMux()
	mux.Handle(tasks.TypeSyncIntegration, handler)
	mux.Handle(tasks.TypeHealthCheck, handler)
	mux.Handle(tasks.TypeConnectionTest, handler)

	return &workerrunner{
		server:    redis.NewServer(redisCfg, logger),
		mux:       mux,
		scheduler: redis.NewScheduler(stores.Integrations, queue, cfg.SyncInterval, logger),
		queue:     queue,
		stores:    stores,
		logger:    logger,
	}, nil
}

// Run consumes tasks and schedules periodic syncs until the context is
// cancelled.
func (w *workerrunner) Run(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return err
	}

	w.logger.Info("sync worker started")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return w.scheduler.Run(ctx)
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		return w.server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (w *workerrunner) Close(ctx context.Context) error {
	return multierr.Combine(w.queue.Close(), w.stores.Close())
}
