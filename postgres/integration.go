package postgres

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
	q := `SELECT ` + integrationColumns + ` FROM integrations WHERE id = $1`

	return rowToIntegration(repo.db.QueryRowContext(ctx, q, id))
}

func (repo *integrationRepo) GetByUserProvider(ctx context.Context, userID string, provider models.Provider) (models.Integration, error) {
	q := `SELECT ` + integrationColumns + ` FROM integrations WHERE user_id = $1 AND provider = $2`

	return rowToIntegration(repo.db.QueryRowContext(ctx, q, userID, provider))
}

func (repo *integrationRepo) ListByUser(ctx context.Context, userID string) ([]models.Integration, error) {
	q := `SELECT ` + integrationColumns + ` FROM integrations WHERE user_id = $1 ORDER BY created_at`

	return repo.selectIntegrations(ctx, q, userID)
}

func (repo *integrationRepo) ListSyncEnabled(ctx context.Context) ([]models.Integration, error) {
	q := `SELECT ` + integrationColumns + ` FROM integrations WHERE sync_enabled AND status = $1 ORDER BY created_at`

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

// Save upserts on (user_id, provider) so reconnecting replaces tokens on
// the existing row.
func (repo *integrationRepo) Save(ctx context.Context, integ *models.Integration) error {
	now := time.Now().UTC()
	if integ.CreatedAt.IsZero() {
		integ.CreatedAt = now
	}

	if integ.UpdatedAt.IsZero() {
		integ.UpdatedAt = now
	}

	const q = `INSERT INTO integrations (` + `id, user_id, provider, status, access_token, refresh_token,
		token_expires_at, provider_user_id, provider_email, last_sync, sync_enabled,
		created_at, updated_at` + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (user_id, provider) DO UPDATE SET
			status = EXCLUDED.status,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_expires_at = EXCLUDED.token_expires_at,
			provider_user_id = EXCLUDED.provider_user_id,
			provider_email = EXCLUDED.provider_email,
			sync_enabled = EXCLUDED.sync_enabled,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at`

	row := repo.db.QueryRowContext(ctx, q,
		integ.ID, integ.UserID, integ.Provider, integ.Status,
		integ.AccessToken, integ.RefreshToken, nullTime(integ.TokenExpiresAt),
		integ.ProviderUserID, integ.ProviderEmail, nullTime(integ.LastSync),
		integ.SyncEnabled, integ.CreatedAt, integ.UpdatedAt)

	return row.Scan(&integ.ID, &integ.CreatedAt)
}

func (repo *integrationRepo) Update(ctx context.Context, integ *models.Integration) error {
	const q = `UPDATE integrations SET status = $1, access_token = $2, refresh_token = $3,
		token_expires_at = $4, provider_user_id = $5, provider_email = $6, last_sync = $7,
		sync_enabled = $8, updated_at = $9
		WHERE id = $10`

	if integ.UpdatedAt.IsZero() {
		integ.UpdatedAt = time.Now().UTC()
	}

	res, err := repo.db.ExecContext(ctx, q,
		integ.Status, integ.AccessToken, integ.RefreshToken,
		nullTime(integ.TokenExpiresAt), integ.ProviderUserID, integ.ProviderEmail,
		nullTime(integ.LastSync), integ.SyncEnabled, integ.UpdatedAt, integ.ID)
	if err != nil {
		return err
	}

	return requireAffected(res)
}

func (repo *integrationRepo) SetLastSync(ctx context.Context, id string, lastSync time.Time) error {
	const q = `UPDATE integrations SET last_sync = $1, updated_at = $2 WHERE id = $3`

	res, err := repo.db.ExecContext(ctx, q, nullTime(lastSync), lastSync, id)
	if err != nil {
		return err
	}

	return requireAffected(res)
}

func (repo *integrationRepo) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM integrations WHERE id = $1`

	res, err := repo.db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}

	return requireAffected(res)
}

func rowToIntegration(row scannable) (models.Integration, error) {
	var (
		integ     models.Integration
		expiresAt sql.NullTime
		lastSync  sql.NullTime
	)

	err := row.Scan(&integ.ID, &integ.UserID, &integ.Provider, &integ.Status,
		&integ.AccessToken, &integ.RefreshToken, &expiresAt,
		&integ.ProviderUserID, &integ.ProviderEmail, &lastSync, &integ.SyncEnabled,
		&integ.CreatedAt, &integ.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Integration{}, models.ErrNotFound
		}

		return models.Integration{}, err
	}

	integ.TokenExpiresAt = timeFromNull(expiresAt)
	integ.LastSync = timeFromNull(lastSync)

	return integ, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func timeFromNull(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}

	return t.Time.UTC()
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return models.ErrNotFound
	}

	return nil
}
