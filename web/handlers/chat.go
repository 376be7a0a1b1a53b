package handlers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/monahq/mona/web/auth"
)

// ChatHandlers exposes the assistant.
type ChatHandlers struct{ Deps Dependencies }

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

func (h *ChatHandlers) Chat(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		renderError(w, err)

		return
	}

	if h.Deps.Chat == nil {
		renderJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "chatbot is not configured"})

		return
	}

	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		renderJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})

		return
	}

	if strings.TrimSpace(req.Message) == "" {
		renderJSON(w, http.StatusBadRequest, map[string]string{"error": "message is required"})

		return
	}

	// A fresh session id is issued when the client does not send one.
	if req.SessionID == "" {
		req.SessionID = uuid.New().String()
	}

	reply, err := h.Deps.Chat.Chat(r.Context(), userID, req.SessionID, req.Message)
	if err != nil {
		renderError(w, err)

		return
	}

	renderJSON(w, http.StatusOK, map[string]string{
		"session_id": req.SessionID,
		"reply":      reply,
	})
}
