package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/monahq/mona/models"
)

type syncRunRepo struct {
	db *sql.DB
}

func NewSyncRunRepository(db *sql.DB) models.SyncRunRepository {
	return &syncRunRepo{db: db}
}

func (repo *syncRunRepo) Create(ctx context.Context, run *models.SyncRun) error {
	const q = `INSERT INTO sync_runs (id, integration_id, resource_type, status, items_processed,
		items_created, items_updated, items_deleted, items_failed, error_message,
		started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := repo.db.ExecContext(ctx, q,
		run.ID, run.IntegrationID, run.ResourceType, run.Status,
		run.ItemsProcessed, run.ItemsCreated, run.ItemsUpdated, run.ItemsDeleted,
		run.ItemsFailed, run.ErrorMessage, run.StartedAt, nullTime(run.CompletedAt))

	return err
}

// Finalize moves a run out of started into its terminal state. Terminal
// runs are immutable: a second finalize is a not-found error.
func (repo *syncRunRepo) Finalize(ctx context.Context, run *models.SyncRun) error {
	if !run.Status.Terminal() {
		return errors.New("finalize requires a terminal status")
	}

	const q = `UPDATE sync_runs SET status = $1, items_processed = $2, items_created = $3,
		items_updated = $4, items_deleted = $5, items_failed = $6, error_message = $7, completed_at = $8
		WHERE id = $9 AND status = $10`

	res, err := repo.db.ExecContext(ctx, q,
		run.Status, run.ItemsProcessed, run.ItemsCreated, run.ItemsUpdated,
		run.ItemsDeleted, run.ItemsFailed, run.ErrorMessage, nullTime(run.CompletedAt),
		run.ID, models.SyncStarted)
	if err != nil {
		return err
	}

	return requireAffected(res)
}

func (repo *syncRunRepo) Get(ctx context.Context, id string) (models.SyncRun, error) {
	const q = `SELECT id, integration_id, resource_type, status, items_processed,
		items_created, items_updated, items_deleted, items_failed, error_message,
		started_at, completed_at
		FROM sync_runs WHERE id = $1`

	return rowToSyncRun(repo.db.QueryRowContext(ctx, q, id))
}

func (repo *syncRunRepo) Select(ctx context.Context, params models.SyncRunQuery) ([]models.SyncRun, error) {
	q := `SELECT r.id, r.integration_id, r.resource_type, r.status, r.items_processed,
		r.items_created, r.items_updated, r.items_deleted, r.items_failed, r.error_message,
		r.started_at, r.completed_at
		FROM sync_runs r JOIN integrations i ON i.id = r.integration_id`

	b := newQueryBuilder()

	if params.UserID != "" {
		b.where("i.user_id", params.UserID)
	}

	if params.IntegrationID != "" {
		b.where("r.integration_id", params.IntegrationID)
	}

	if params.ResourceType != "" {
		b.where("r.resource_type", params.ResourceType)
	}

	if params.Status != "" {
		b.where("r.status", params.Status)
	}

	q += b.clause() + " ORDER BY r.started_at DESC"

	if params.Limit > 0 {
		q += b.limit(params.Limit)
	}

	rows, err := repo.db.QueryContext(ctx, q, b.args...)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	var ans []models.SyncRun

	for rows.Next() {
		run, err := rowToSyncRun(rows)
		if err != nil {
			return nil, err
		}

		ans = append(ans, run)
	}

	return ans, rows.Err()
}

func rowToSyncRun(row scannable) (models.SyncRun, error) {
	var (
		run         models.SyncRun
		completedAt sql.NullTime
	)

	err := row.Scan(&run.ID, &run.IntegrationID, &run.ResourceType, &run.Status,
		&run.ItemsProcessed, &run.ItemsCreated, &run.ItemsUpdated, &run.ItemsDeleted,
		&run.ItemsFailed, &run.ErrorMessage, &run.StartedAt, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.SyncRun{}, models.ErrNotFound
		}

		return models.SyncRun{}, err
	}

	run.CompletedAt = timeFromNull(completedAt)

	return run, nil
}
