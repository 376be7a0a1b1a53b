package sqlite

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

const syncRunColumns = `id, integration_id, resource_type, status, items_processed,
	items_created, items_updated, items_deleted, items_failed, error_message,
	started_at, completed_at`

func (repo *syncRunRepo) Create(ctx context.Context, run *models.SyncRun) error {
	const q = `INSERT INTO sync_runs (` + `id, integration_id, resource_type, status, items_processed,
		items_created, items_updated, items_deleted, items_failed, error_message,
		started_at, completed_at` + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := repo.db.ExecContext(ctx, q,
		run.ID, run.IntegrationID, run.ResourceType, run.Status,
		run.ItemsProcessed, run.ItemsCreated, run.ItemsUpdated, run.ItemsDeleted,
		run.ItemsFailed, run.ErrorMessage, timeToUnix(run.StartedAt),
		timeToUnix(run.CompletedAt))

	return err
}

// Finalize moves a run out of started into its terminal state. Terminal
// runs are immutable: a second finalize is a not-found error.
func (repo *syncRunRepo) Finalize(ctx context.Context, run *models.SyncRun) error {
	if !run.Status.Terminal() {
		return errors.New("finalize requires a terminal status")
	}

	const q = `UPDATE sync_runs SET status = ?, items_processed = ?, items_created = ?,
		items_updated = ?, items_deleted = ?, items_failed = ?, error_message = ?, completed_at = ?
		WHERE id = ? AND status = ?`

	res, err := repo.db.ExecContext(ctx, q,
		run.Status, run.ItemsProcessed, run.ItemsCreated, run.ItemsUpdated,
		run.ItemsDeleted, run.ItemsFailed, run.ErrorMessage, timeToUnix(run.CompletedAt),
		run.ID, models.SyncStarted)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return models.ErrNotFound
	}

	return nil
}

func (repo *syncRunRepo) Get(ctx context.Context, id string) (models.SyncRun, error) {
	q := `SELECT ` + syncRunColumns + ` FROM sync_runs WHERE id = ?`

	return rowToSyncRun(repo.db.QueryRowContext(ctx, q, id))
}

func (repo *syncRunRepo) Select(ctx context.Context, params models.SyncRunQuery) ([]models.SyncRun, error) {
	q := `SELECT r.id, r.integration_id, r.resource_type, r.status, r.items_processed,
		r.items_created, r.items_updated, r.items_deleted, r.items_failed, r.error_message,
		r.started_at, r.completed_at
		FROM sync_runs r JOIN integrations i ON i.id = r.integration_id`

	var (
		where []string
		args  []any
	)

	if params.UserID != "" {
		where = append(where, "i.user_id = ?")
		args = append(args, params.UserID)
	}

	if params.IntegrationID != "" {
		where = append(where, "r.integration_id = ?")
		args = append(args, params.IntegrationID)
	}

	if params.ResourceType != "" {
		where = append(where, "r.resource_type = ?")
		args = append(args, params.ResourceType)
	}

	if params.Status != "" {
		where = append(where, "r.status = ?")
		args = append(args, params.Status)
	}

	q += whereClause(where) + " ORDER BY r.started_at DESC"

	if params.Limit > 0 {
		q += " LIMIT ?"

		args = append(args, params.Limit)
	}

	rows, err := repo.db.QueryContext(ctx, q, args...)
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
		startedAt   int64
		completedAt int64
	)

	err := row.Scan(&run.ID, &run.IntegrationID, &run.ResourceType, &run.Status,
		&run.ItemsProcessed, &run.ItemsCreated, &run.ItemsUpdated, &run.ItemsDeleted,
		&run.ItemsFailed, &run.ErrorMessage, &startedAt, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.SyncRun{}, models.ErrNotFound
		}

		return models.SyncRun{}, err
	}

	run.StartedAt = unixToTime(startedAt)
	run.CompletedAt = unixToTime(completedAt)

	return run, nil
}
