package redis

import (
	"context"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/monahq/mona/models"
)

// Enqueuer schedules a background sync for one integration.
type Enqueuer interface {
	EnqueueSync(ctx context.Context, integrationID string) error
}

// Scheduler periodically enqueues a sync task for every integration that
// has sync enabled. Duplicate suppression happens at enqueue time, so a
// tick that overlaps a still-running sync is harmless.
type Scheduler struct {
	integrations models.IntegrationRepository
	enqueuer     Enqueuer
	interval     time.Duration
	logger       *zap.Logger
}

// NewScheduler creates a scheduler ticking at the given interval.
func NewScheduler(
	integrations models.IntegrationRepository,
	enqueuer Enqueuer,
	interval time.Duration,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		integrations: integrations,
		enqueuer:     enqueuer,
		interval:     interval,
		logger:       logger,
	}
}

// Run ticks until the context is cancelled. The first tick fires after one
// interval so a restarting worker does not immediately re-sync everything.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.tick(ctx); err != nil {
				s.logger.Error("sync scheduling tick failed", zap.Error(err))
			}
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) error {
	integrations, err := s.integrations.ListSyncEnabled(ctx)
	if err != nil {
		return err
	}

	var errs error

	for _, integ := range integrations {
		if err := s.enqueuer.EnqueueSync(ctx, integ.ID); err != nil {
			s.logger.Warn("failed to enqueue sync",
				zap.String("integration_id", integ.ID),
				zap.String("provider", string(integ.Provider)),
				zap.Error(err))

			errs = multierr.Append(errs, err)
		}
	}

	s.logger.Debug("sync scheduling tick done", zap.Int("integrations", len(integrations)))

	return errs
}
