package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/monahq/mona/models"
	"github.com/monahq/mona/provider"
	"github.com/monahq/mona/tlmt"
)

// Syncer pulls provider resources into local storage. At most one run per
// integration executes at a time; a second caller fails fast with
// ErrSyncInProgress instead of queueing behind the first.
type Syncer struct {
	integrations models.IntegrationRepository
	events       models.CalendarEventRepository
	emails       models.EmailMessageRepository
	runs         models.SyncRunRepository
	tokens       *TokenManager
	registry     *provider.Registry
	telemetry    tlmt.Telemetry
	logger       *zap.Logger
	locks        *keyedMutex
	now          func() time.Time
}

func NewSyncer(
	integrations models.IntegrationRepository,
	events models.CalendarEventRepository,
	emails models.EmailMessageRepository,
	runs models.SyncRunRepository,
	tokens *TokenManager,
	registry *provider.Registry,
	telemetry tlmt.Telemetry,
	logger *zap.Logger,
) *Syncer {
	return &Syncer{
		integrations: integrations,
		events:       events,
		emails:       emails,
		runs:         runs,
		tokens:       tokens,
		registry:     registry,
		telemetry:    telemetry,
		logger:       logger,
		locks:        newKeyedMutex(),
		now:          time.Now,
	}
}

// Run executes one sync for the integration and returns its audit record.
// The record is created in the started state before any provider call and
// finalized into exactly one terminal state no matter how the run ends,
// including cancellation mid-flight.
func (s *Syncer) Run(ctx context.Context, integrationID string) (models.SyncRun, error) {
	integ, err := s.integrations.Get(ctx, integrationID)
	if err != nil {
		return models.SyncRun{}, err
	}

	if integ.Status != models.StatusConnected {
		return models.SyncRun{}, fmt.Errorf("integration %s: %w", integ.ID, ErrNotConnected)
	}

	if !integ.SyncEnabled {
		return models.SyncRun{}, fmt.Errorf("integration %s: %w", integ.ID, ErrSyncDisabled)
	}

	resource, ok := integ.Provider.SyncResource()
	if !ok {
		return models.SyncRun{}, fmt.Errorf("provider %s: %w", integ.Provider, provider.ErrUnsupportedResource)
	}

	unlock, acquired := s.locks.TryLock(integ.ID)
	if !acquired {
		return models.SyncRun{}, fmt.Errorf("integration %s: %w", integ.ID, ErrSyncInProgress)
	}
	defer unlock()

	adapter, err := s.registry.Resolve(integ.Provider)
	if err != nil {
		return models.SyncRun{}, err
	}

	run := models.SyncRun{
		ID:            uuid.New().String(),
		IntegrationID: integ.ID,
		ResourceType:  resource,
		Status:        models.SyncStarted,
		StartedAt:     s.now(),
	}

	if err := s.runs.Create(ctx, &run); err != nil {
		return models.SyncRun{}, err
	}

	s.logger.Info("sync started",
		zap.String("run_id", run.ID),
		zap.String("integration_id", integ.ID),
		zap.String("provider", string(integ.Provider)),
		zap.String("resource", string(resource)))

	runErr := s.execute(ctx, &integ, adapter, resource, &run)

	s.finalize(ctx, &integ, &run, runErr)

	// Per-item failures stay on the run record; a run that still produced
	// data is a success to callers.
	if run.Status == models.SyncPartial {
		return run, nil
	}

	return run, runErr
}

// execute fetches and upserts, mutating the run's counters in place so a
// cancellation mid-loop still finalizes with the counts so far.
func (s *Syncer) execute(ctx context.Context, integ *models.Integration, adapter provider.Adapter, resource models.ResourceType, run *models.SyncRun) error {
	var items []provider.Item

	err := s.tokens.CallWithRetry(ctx, integ, func(token string) error {
		var fetchErr error
		items, fetchErr = adapter.FetchResources(ctx, token, resource, provider.DefaultWindow(s.now()))

		return fetchErr
	})
	if err != nil {
		return err
	}

	var itemErrs error

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}

		run.ItemsProcessed++

		if item.Err != nil {
			run.ItemsFailed++
			itemErrs = multierr.Append(itemErrs, item.Err)

			s.logger.Warn("skipping malformed item",
				zap.String("run_id", run.ID),
				zap.String("provider_id", item.ProviderID),
				zap.Error(item.Err))

			continue
		}

		created, err := s.upsert(ctx, integ, item)
		if err != nil {
			run.ItemsFailed++
			itemErrs = multierr.Append(itemErrs, fmt.Errorf("item %s: %w", item.ProviderID, err))

			continue
		}

		if created {
			run.ItemsCreated++
		} else {
			run.ItemsUpdated++
		}
	}

	return itemErrs
}

func (s *Syncer) upsert(ctx context.Context, integ *models.Integration, item provider.Item) (bool, error) {
	switch {
	case item.Event != nil:
		item.Event.IntegrationID = integ.ID
		item.Event.SyncedAt = s.now()

		return s.events.Upsert(ctx, item.Event)
	case item.Email != nil:
		item.Email.IntegrationID = integ.ID
		item.Email.SyncedAt = s.now()

		return s.emails.Upsert(ctx, item.Email)
	default:
		return false, fmt.Errorf("item %s carries no entity", item.ProviderID)
	}
}

// finalize writes the terminal state. It runs on a context detached from
// cancellation so an aborted sync is still recorded as failed rather than
// left dangling in started.
func (s *Syncer) finalize(ctx context.Context, integ *models.Integration, run *models.SyncRun, runErr error) {
	ctx = context.WithoutCancel(ctx)

	succeeded := run.ItemsCreated + run.ItemsUpdated

	switch {
	case runErr == nil:
		run.Status = models.SyncCompleted
	case errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded):
		run.Status = models.SyncFailed
		run.ErrorMessage = "cancelled: " + runErr.Error()
	case succeeded > 0:
		run.Status = models.SyncPartial
		run.ErrorMessage = runErr.Error()
	default:
		run.Status = models.SyncFailed
		run.ErrorMessage = runErr.Error()
	}

	run.CompletedAt = s.now()

	if err := s.runs.Finalize(ctx, run); err != nil {
		s.logger.Error("failed to finalize sync run", zap.Error(err),
			zap.String("run_id", run.ID))
	}

	if run.Status != models.SyncFailed {
		integ.LastSync = run.CompletedAt
		integ.UpdatedAt = run.CompletedAt

		// Touch only last_sync: the integration snapshot was taken at run
		// start and its token columns may be stale by now.
		if err := s.integrations.SetLastSync(ctx, integ.ID, run.CompletedAt); err != nil {
			s.logger.Error("failed to update last sync time", zap.Error(err),
				zap.String("integration_id", integ.ID))
		}
	}

	s.logger.Info("sync finished",
		zap.String("run_id", run.ID),
		zap.String("integration_id", integ.ID),
		zap.String("status", string(run.Status)),
		zap.Int("processed", run.ItemsProcessed),
		zap.Int("created", run.ItemsCreated),
		zap.Int("updated", run.ItemsUpdated),
		zap.Int("failed", run.ItemsFailed))

	_ = s.telemetry.Send(ctx, tlmt.NewEvent(integ.UserID, "integration_sync", map[string]any{
		"provider":  string(integ.Provider),
		"resource":  string(run.ResourceType),
		"status":    string(run.Status),
		"processed": run.ItemsProcessed,
		"created":   run.ItemsCreated,
		"updated":   run.ItemsUpdated,
		"failed":    run.ItemsFailed,
	}))
}
