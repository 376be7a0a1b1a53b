package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/monahq/mona/config"
	"github.com/monahq/mona/runner"
	"github.com/monahq/mona/runner/webrunner"
	"github.com/monahq/mona/runner/workerrunner"
)

func main() {
	_ = godotenv.Load()

	opts := runner.ParseOptions()

	logger, err := runner.NewLogger(opts.Debug)
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	defer func() { _ = logger.Sync() }()

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	instance, err := runnerFactory(opts, cfg, logger)
	if err != nil {
		logger.Error("failed to start", zap.Error(err))
		_ = runner.Telemetry(cfg).Close()
		os.Exit(1)
	}

	if err := instance.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("runner exited", zap.Error(err))
		_ = instance.Close(ctx)
		_ = runner.Telemetry(cfg).Close()
		os.Exit(1)
	}

	_ = instance.Close(ctx)
	_ = runner.Telemetry(cfg).Close()
}

func runnerFactory(opts *runner.Options, cfg *config.Config, logger *zap.Logger) (runner.Runner, error) {
	switch opts.RunMode {
	case runner.RunModeWeb:
		return webrunner.New(cfg, logger)
	case runner.RunModeWorker:
		return workerrunner.New(cfg, logger)
	default:
		return nil, fmt.Errorf("%w: %d", runner.ErrInvalidRunMode, opts.RunMode)
	}
}
