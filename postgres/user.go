package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/monahq/mona/models"
)

type userRepo struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) models.UserRepository {
	return &userRepo{db: db}
}

func (repo *userRepo) GetByID(ctx context.Context, id string) (models.User, error) {
	const q = `SELECT id, email, created_at, updated_at FROM users WHERE id = $1`

	return rowToUser(repo.db.QueryRowContext(ctx, q, id))
}

func (repo *userRepo) GetByEmail(ctx context.Context, email string) (models.User, error) {
	const q = `SELECT id, email, created_at, updated_at FROM users WHERE email = $1`

	return rowToUser(repo.db.QueryRowContext(ctx, q, email))
}

func (repo *userRepo) Create(ctx context.Context, user *models.User) error {
	const q = `INSERT INTO users (id, email, created_at, updated_at) VALUES ($1, $2, $3, $4)`

	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}

	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = now
	}

	_, err := repo.db.ExecContext(ctx, q, user.ID, user.Email, user.CreatedAt, user.UpdatedAt)

	return err
}

func (repo *userRepo) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM users WHERE id = $1`

	_, err := repo.db.ExecContext(ctx, q, id)

	return err
}

func rowToUser(row scannable) (models.User, error) {
	var user models.User

	err := row.Scan(&user.ID, &user.Email, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, models.ErrNotFound
		}

		return models.User{}, err
	}

	return user, nil
}
