// Package tasks implements the background task handlers the worker runs.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/monahq/mona/integration"
	"github.com/monahq/mona/models"
	"github.com/monahq/mona/provider"
)

// SyncRunner executes one sync for an integration.
type SyncRunner interface {
	Run(ctx context.Context, integrationID string) (models.SyncRun, error)
}

// Handler dispatches queued tasks to their processors.
type Handler struct {
	syncer      SyncRunner
	logger      *zap.Logger
	taskTimeout time.Duration
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithTaskTimeout bounds the processing time of a single task.
func WithTaskTimeout(timeout time.Duration) HandlerOption {
	return func(h *Handler) {
		h.taskTimeout = timeout
	}
}

// NewHandler creates a task handler backed by the given syncer.
func NewHandler(syncer SyncRunner, logger *zap.Logger, opts ...HandlerOption) *Handler {
	h := &Handler{
		syncer:      syncer,
		logger:      logger,
		taskTimeout: 10 * time.Minute,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// ProcessTask processes a task based on its type.
func (h *Handler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	ctx, cancel := context.WithTimeout(ctx, h.taskTimeout)
	defer cancel()

	switch task.Type() {
	case TypeSyncIntegration:
		return h.processSyncTask(ctx, task)
	case TypeHealthCheck, TypeConnectionTest:
		return nil
	default:
		return fmt.Errorf("unknown task type %q: %w", task.Type(), asynq.SkipRetry)
	}
}

func (h *Handler) processSyncTask(ctx context.Context, task *asynq.Task) error {
	var payload SyncPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal sync payload: %w: %w", err, asynq.SkipRetry)
	}

	if payload.IntegrationID == "" {
		return fmt.Errorf("sync payload has no integration id: %w", asynq.SkipRetry)
	}

	run, err := h.syncer.Run(ctx, payload.IntegrationID)
	if err != nil {
		// A manual sync already holds the integration, the queued run is
		// redundant rather than failed.
		if errors.Is(err, integration.ErrSyncInProgress) {
			h.logger.Info("skipping sync, another run is in progress",
				zap.String("integration_id", payload.IntegrationID))

			return nil
		}

		if isTerminalSyncError(err) {
			h.logger.Warn("dropping sync task",
				zap.String("integration_id", payload.IntegrationID),
				zap.Error(err))

			return fmt.Errorf("sync cannot succeed: %w: %w", err, asynq.SkipRetry)
		}

		return fmt.Errorf("sync failed for integration %s: %w", payload.IntegrationID, err)
	}

	h.logger.Info("sync task finished",
		zap.String("integration_id", payload.IntegrationID),
		zap.String("run_id", run.ID),
		zap.String("status", string(run.Status)),
		zap.Int("created", run.ItemsCreated),
		zap.Int("updated", run.ItemsUpdated),
		zap.Int("failed", run.ItemsFailed))

	return nil
}

// isTerminalSyncError reports whether retrying the task cannot change the
// outcome.
func isTerminalSyncError(err error) bool {
	return errors.Is(err, models.ErrNotFound) ||
		errors.Is(err, integration.ErrNotConnected) ||
		errors.Is(err, integration.ErrSyncDisabled) ||
		errors.Is(err, provider.ErrUnsupportedResource) ||
		errors.Is(err, provider.ErrUnsupportedProvider)
}
