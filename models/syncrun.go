package models

import (
	"context"
	"time"
)

// SyncRunStatus is the outcome state of a sync run.
// A run starts in started and ends in exactly one terminal state.
type SyncRunStatus string

const (
	SyncStarted   SyncRunStatus = "started"
	SyncCompleted SyncRunStatus = "completed"
	SyncFailed    SyncRunStatus = "failed"
	SyncPartial   SyncRunStatus = "partial"
)

// Terminal reports whether the status is a final one.
func (s SyncRunStatus) Terminal() bool {
	return s == SyncCompleted || s == SyncFailed || s == SyncPartial
}

// SyncRun is the audit record of one sync attempt.
type SyncRun struct {
	ID             string        `json:"id"`
	IntegrationID  string        `json:"integration_id"`
	ResourceType   ResourceType  `json:"resource_type"`
	Status         SyncRunStatus `json:"status"`
	ItemsProcessed int           `json:"items_processed"`
	ItemsCreated   int           `json:"items_created"`
	ItemsUpdated   int           `json:"items_updated"`
	ItemsDeleted   int           `json:"items_deleted"`
	ItemsFailed    int           `json:"items_failed"`
	ErrorMessage   string        `json:"error_message,omitempty"`
	StartedAt      time.Time     `json:"started_at"`
	CompletedAt    time.Time     `json:"completed_at,omitempty"`
}

// EffectiveStatus folds staleness into the reported status: a run still
// marked started after staleAfter is treated as failed by consumers.
func (r *SyncRun) EffectiveStatus(now time.Time, staleAfter time.Duration) SyncRunStatus {
	if r.Status == SyncStarted && staleAfter > 0 && now.Sub(r.StartedAt) > staleAfter {
		return SyncFailed
	}

	return r.Status
}

// SyncRunQuery filters sync-run listings. Zero values mean "no filter".
type SyncRunQuery struct {
	UserID        string
	IntegrationID string
	ResourceType  ResourceType
	Status        SyncRunStatus
	Limit         int
}

// SyncRunRepository persists sync audit records.
// Finalize must only move a run out of started; terminal runs are immutable.
type SyncRunRepository interface {
	Create(ctx context.Context, run *SyncRun) error
	Finalize(ctx context.Context, run *SyncRun) error
	Get(ctx context.Context, id string) (SyncRun, error)
	Select(ctx context.Context, q SyncRunQuery) ([]SyncRun, error)
}
