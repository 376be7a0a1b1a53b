package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/monahq/mona/models"
)

type integrationRepo struct {
	db *sql.DB
}

func NewIntegrationRepository(db *sql.DB) models.IntegrationRepository {
	return &integrationRepo{db: db}
}

const integrationColumns = `id, user_id, provider, status, access_token, refresh_token,
	token_expires_at, provider_user_id, provider_email, last_sync, sync_enabled,
	created_at, updated_at`

func (repo *integrationRepo) Get(ctx context.Context, id string) (models.Integration, error) {
	q := `SELECT ` + integrationColumns + ` FROM integrations WHERE id = ?`

	return rowToIntegration(repo.db.QueryRowContext(ctx, q, id))
}

func (repo *integrationRepo) GetByUserProvider(ctx context.Context, userID string, provider models.Provider) (models.Integration, error) {
	q := `SELECT ` + integrationColumns + ` FROM integrations WHERE user_id = ? AND provider = ?`

	return rowToIntegration(repo.db.QueryRowContext(ctx, q, userID, provider))
}

func (repo *integrationRepo) ListByUser(ctx context.Context, userID string) ([]models.Integration, error) {
	q := `SELECT ` + integrationColumns + ` FROM integrations WHERE user_id = ? ORDER BY created_at`

	return repo.selectIntegrations(ctx, q, userID)
}

func (repo *integrationRepo) ListSyncEnabled(ctx context.Context) ([]models.Integration, error) {
	q := `SELECT ` + integrationColumns + ` FROM integrations WHERE sync_enabled = 1 AND status = ? ORDER BY created_at`

	return repo.selectIntegrations(ctx, q, models.StatusConnected)
}

func (repo *integrationRepo) selectIntegrations(ctx context.Context, q string, args ...any) ([]models.Integration, error) {
	rows, err := repo.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	var ans []models.Integration

	for rows.Next() {
		integ, err := rowToIntegration(rows)
		if err != nil {
			return nil, err
		}

		ans = append(ans, integ)
	}

	return ans, rows.Err()
}

// Save upserts on (user_id, provider): reconnecting a provider replaces
// the stored tokens on the existing row and keeps its id.
func (repo *integrationRepo) Save(ctx context.Context, integ *models.Integration) error {
	existing, err := repo.GetByUserProvider(ctx, integ.UserID, integ.Provider)

	switch {
	case err == nil:
		integ.ID = existing.ID
		integ.CreatedAt = existing.CreatedAt

		return repo.Update(ctx, integ)
	case errors.Is(err, models.ErrNotFound):
		return repo.insert(ctx, integ)
	default:
		return err
	}
}

func (repo *integrationRepo) insert(ctx context.Context, integ *models.Integration) error {
	const q = `INSERT INTO integrations (` + `id, user_id, provider, status, access_token, refresh_token,
		token_expires_at, provider_user_id, provider_email, last_sync, sync_enabled,
		created_at, updated_at` + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	now := time.Now().UTC()
	if integ.CreatedAt.IsZero() {
		integ.CreatedAt = now
	}

	if integ.UpdatedAt.IsZero() {
		integ.UpdatedAt = now
	}

	_, err := repo.db.ExecContext(ctx, q,
		integ.ID, integ.UserID, integ.Provider, integ.Status,
		integ.AccessToken, integ.RefreshToken, timeToUnix(integ.TokenExpiresAt),
		integ.ProviderUserID, integ.ProviderEmail, timeToUnix(integ.LastSync),
		boolToInt(integ.SyncEnabled), timeToUnix(integ.CreatedAt), timeToUnix(integ.UpdatedAt))

	return err
}

func (repo *integrationRepo) Update(ctx context.Context, integ *models.Integration) error {
	const q = `UPDATE integrations SET status = ?, access_token = ?, refresh_token = ?,
		token_expires_at = ?, provider_user_id = ?, provider_email = ?, last_sync = ?,
		sync_enabled = ?, updated_at = ?
		WHERE id = ?`

	if integ.UpdatedAt.IsZero() {
		integ.UpdatedAt = time.Now().UTC()
	}

	res, err := repo.db.ExecContext(ctx, q,
		integ.Status, integ.AccessToken, integ.RefreshToken,
		timeToUnix(integ.TokenExpiresAt), integ.ProviderUserID, integ.ProviderEmail,
		timeToUnix(integ.LastSync), boolToInt(integ.SyncEnabled), timeToUnix(integ.UpdatedAt),
		integ.ID)
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

// Delete removes the integration; synced resources and sync runs go with
// it through the foreign key cascade.
func (repo *integrationRepo) SetLastSync(ctx context.Context, id string, lastSync time.Time) error {
	const q = `UPDATE integrations SET last_sync = ?, updated_at = ? WHERE id = ?`

	res, err := repo.db.ExecContext(ctx, q, timeToUnix(lastSync), timeToUnix(lastSync), id)
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

func (repo *integrationRepo) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM integrations WHERE id = ?`

	res, err := repo.db.ExecContext(ctx, q, id)
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

func rowToIntegration(row scannable) (models.Integration, error) {
	var (
		integ       models.Integration
		expiresAt   int64
		lastSync    int64
		syncEnabled int64
		createdAt   int64
		updatedAt   int64
	)

	err := row.Scan(&integ.ID, &integ.UserID, &integ.Provider, &integ.Status,
		&integ.AccessToken, &integ.RefreshToken, &expiresAt,
		&integ.ProviderUserID, &integ.ProviderEmail, &lastSync, &syncEnabled,
		&createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Integration{}, models.ErrNotFound
		}

		return models.Integration{}, err
	}

	integ.TokenExpiresAt = unixToTime(expiresAt)
	integ.LastSync = unixToTime(lastSync)
	integ.SyncEnabled = syncEnabled != 0
	integ.CreatedAt = unixToTime(createdAt)
	integ.UpdatedAt = unixToTime(updatedAt)

	return integ, nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}

	return 0
}
