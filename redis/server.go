package redis

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/monahq/mona/redis/config"
)

// Server consumes queued tasks and hands them to the registered handlers.
type Server struct {
	server *asynq.Server
	logger *zap.Logger
}

// NewServer creates the asynq consumer for the configured queues.
func NewServer(cfg *config.RedisConfig, logger *zap.Logger) *Server {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:         cfg.Addr(),
			Password:     cfg.Password,
			DB:           cfg.DB,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		},
		asynq.Config{
			Concurrency: cfg.Workers,
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				// Exponential backoff capped at the configured interval.
				delay := time.Duration(1<<uint(n)) * time.Second
				if delay > cfg.RetryInterval {
					delay = cfg.RetryInterval
				}

				logger.Warn("task failed, retry scheduled",
					zap.String("type", task.Type()),
					zap.Int("attempt", n),
					zap.Duration("delay", delay),
					zap.Error(err))

				return delay
			},
			Queues:         cfg.QueuePriorities,
			StrictPriority: true,
			Logger:         zapAsynqLogger{logger},
		},
	)

	return &Server{server: srv, logger: logger}
}

// Start begins consuming tasks with the given mux. It does not block.
func (s *Server) Start(mux *asynq.ServeMux) error {
	return s.server.Start(mux)
}

// Shutdown waits for in-flight tasks and stops the consumer.
func (s *Server) Shutdown(ctx context.Context) error {
	done := make(chan struct{})

	go func() {
		s.server.Shutdown()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// zapAsynqLogger adapts zap to asynq's internal logging interface.
type zapAsynqLogger struct {
	logger *zap.Logger
}

func (l zapAsynqLogger) Debug(args ...interface{}) { l.logger.Sugar().Debug(args...) }
func (l zapAsynqLogger) Info(args ...interface{})  { l.logger.Sugar().Info(args...) }
func (l zapAsynqLogger) Warn(args ...interface{})  { l.logger.Sugar().Warn(args...) }
func (l zapAsynqLogger) Error(args ...interface{}) { l.logger.Sugar().Error(args...) }
func (l zapAsynqLogger) Fatal(args ...interface{}) { l.logger.Sugar().Fatal(args...) }
