// Package runner wires configuration, storage and services into runnable
// process modes.
package runner

import (
	"context"
	"errors"
	"flag"
	"sync"

	"go.uber.org/zap"

	"github.com/monahq/mona/config"
	"github.com/monahq/mona/tlmt"
	"github.com/monahq/mona/tlmt/gonoop"
	"github.com/monahq/mona/tlmt/goposthog"
)

const (
	RunModeWeb = iota + 1
	RunModeWorker
)

var ErrInvalidRunMode = errors.New("invalid run mode")

// Runner is one process mode of the service.
type Runner interface {
	Run(context.Context) error
	Close(context.Context) error
}

// Options selects the process mode. Everything else comes from the
// environment via config.FromEnv.
type Options struct {
	RunMode int
	Debug   bool
}

// ParseOptions reads the command line flags.
func ParseOptions() *Options {
	opts := Options{RunMode: RunModeWeb}

	var worker bool

	flag.BoolVar(&worker, "worker", false, "run the background sync worker instead of the web server")
	flag.BoolVar(&opts.Debug, "debug", false, "enable debug logging")
	flag.Parse()

	if worker {
		opts.RunMode = RunModeWorker
	}

	return &opts
}

// NewLogger builds the process logger.
func NewLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}

	return zap.NewProduction()
}

var (
	telemetryOnce sync.Once
	telemetry     tlmt.Telemetry
)

// Telemetry returns the process-wide telemetry sink. It falls back to a
// no-op sink when telemetry is disabled or unconfigured.
func Telemetry(cfg *config.Config) tlmt.Telemetry {
	telemetryOnce.Do(func() {
		if cfg.DisableTelemetry || cfg.PosthogAPIKey == "" {
			telemetry = gonoop.New()

			return
		}

		val, err := goposthog.New(cfg.PosthogAPIKey, cfg.PosthogEndpoint)
		if err != nil || val == nil {
			telemetry = gonoop.New()

			return
		}

		telemetry = val
	})

	return telemetry
}
