package sqlite

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
	const q = `SELECT id, email, created_at, updated_at FROM users WHERE id = ?`

	return rowToUser(repo.db.QueryRowContext(ctx, q, id))
}

func (repo *userRepo) GetByEmail(ctx context.Context, email string) (models.User, error) {
	const q = `SELECT id, email, created_at, updated_at FROM users WHERE email = ?`

	return rowToUser(repo.db.QueryRowContext(ctx, q, email))
}

func (repo *userRepo) Create(ctx context.Context, user *models.User) error {
	const q = `INSERT INTO users (id, email, created_at, updated_at) VALUES (?, ?, ?, ?)`

	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}

	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = now
	}

	_, err := repo.db.ExecContext(ctx, q, user.ID, user.Email,
		timeToUnix(user.CreatedAt), timeToUnix(user.UpdatedAt))

	return err
}

func (repo *userRepo) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM users WHERE id = ?`

	_, err := repo.db.ExecContext(ctx, q, id)

	return err
}

func rowToUser(row scannable) (models.User, error) {
	var (
		user      models.User
		createdAt int64
		updatedAt int64
	)

	err := row.Scan(&user.ID, &user.Email, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, models.ErrNotFound
		}

		return models.User{}, err
	}

	user.CreatedAt = unixToTime(createdAt)
	user.UpdatedAt = unixToTime(updatedAt)

	return user, nil
}
