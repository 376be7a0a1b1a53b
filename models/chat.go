package models

import (
	"context"
	"time"
)

// ChatMessage is one message of a chatbot session. History is keyed by
// session id so concurrent sessions never share state.
type ChatMessage struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"` // system, user or assistant
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatMessageRepository persists per-session chat history.
type ChatMessageRepository interface {
	Append(ctx context.Context, msg *ChatMessage) error
	History(ctx context.Context, sessionID string, limit int) ([]ChatMessage, error)
}
