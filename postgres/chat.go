package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/monahq/mona/models"
)

type chatMessageRepo struct {
	db *sql.DB
}

func NewChatMessageRepository(db *sql.DB) models.ChatMessageRepository {
	return &chatMessageRepo{db: db}
}

func (repo *chatMessageRepo) Append(ctx context.Context, msg *models.ChatMessage) error {
	const q = `INSERT INTO chat_messages (id, session_id, user_id, role, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}

	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	_, err := repo.db.ExecContext(ctx, q, msg.ID, msg.SessionID, msg.UserID,
		msg.Role, msg.Content, msg.CreatedAt)

	return err
}

// History returns the most recent messages of a session, oldest first.
func (repo *chatMessageRepo) History(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error) {
	q := `SELECT id, session_id, user_id, role, content, created_at FROM chat_messages
		WHERE session_id = $1 ORDER BY created_at DESC`

	args := []any{sessionID}

	if limit > 0 {
		q += " LIMIT $2"

		args = append(args, limit)
	}

	rows, err := repo.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	var ans []models.ChatMessage

	for rows.Next() {
		var msg models.ChatMessage

		err := rows.Scan(&msg.ID, &msg.SessionID, &msg.UserID, &msg.Role, &msg.Content, &msg.CreatedAt)
		if err != nil {
			return nil, err
		}

		ans = append(ans, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(ans)-1; i < j; i, j = i+1, j-1 {
		ans[i], ans[j] = ans[j], ans[i]
	}

	return ans, nil
}
