package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// Task types handled by the worker.
const (
	TypeSyncIntegration = "sync:integration"
	TypeHealthCheck     = "health:check"
	TypeConnectionTest  = "connection:test"
)

// Queue names, highest priority first.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// SyncPayload carries the integration a sync task operates on.
type SyncPayload struct {
	IntegrationID string `json:"integration_id"`
}

// NewSyncTask builds a sync task for the given integration.
func NewSyncTask(integrationID string) (*asynq.Task, error) {
	if integrationID == "" {
		return nil, fmt.Errorf("integration id is required")
	}

	data, err := json.Marshal(SyncPayload{IntegrationID: integrationID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sync payload: %w", err)
	}

	return asynq.NewTask(TypeSyncIntegration, data), nil
}
