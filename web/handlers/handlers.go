// Package handlers contains the HTTP handlers of the JSON API.
package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/monahq/mona/chatbot"
	"github.com/monahq/mona/integration"
	"github.com/monahq/mona/models"
	"github.com/monahq/mona/provider"
	"github.com/monahq/mona/web/auth"
)

// Enqueuer schedules a background sync instead of running it in the
// request. Deployments without a worker leave it nil and sync inline.
type Enqueuer interface {
	EnqueueSync(ctx context.Context, integrationID string) error
}

// Dependencies aggregates shared services used by handlers.
type Dependencies struct {
	Logger     *zap.Logger
	DB         *sql.DB
	Service    *integration.Service
	Runs       models.SyncRunRepository
	Events     models.CalendarEventRepository
	Emails     models.EmailMessageRepository
	Chat       *chatbot.Service
	Enqueuer   Enqueuer
	StaleAfter time.Duration
}

// HandlerGroup groups all handler categories for routing setup.
type HandlerGroup struct {
	Integration *IntegrationHandlers
	Resources   *ResourceHandlers
	GitHub      *GitHubHandlers
	Chat        *ChatHandlers
	Health      *HealthHandlers
}

func NewHandlerGroup(deps Dependencies) *HandlerGroup {
	return &HandlerGroup{
		Integration: &IntegrationHandlers{Deps: deps},
		Resources:   &ResourceHandlers{Deps: deps},
		GitHub:      &GitHubHandlers{Deps: deps},
		Chat:        &ChatHandlers{Deps: deps},
		Health:      &HealthHandlers{Deps: deps},
	}
}

type HealthHandlers struct{ Deps Dependencies }

func (h *HealthHandlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	dbStatus := "not_configured"

	if h.Deps.DB != nil {
		if err := h.Deps.DB.Ping(); err != nil {
			dbStatus = "unhealthy"
		} else {
			dbStatus = "healthy"
		}
	}

	renderJSON(w, http.StatusOK, map[string]any{
		"status":   "healthy",
		"service":  "mona",
		"database": dbStatus,
		"time":     time.Now().UTC().Format(time.RFC3339),
	})
}

func renderJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}

// renderError maps the error taxonomy onto HTTP status codes.
func renderError(w http.ResponseWriter, err error) {
	var (
		refreshErr  *integration.TokenRefreshError
		requestErr  *provider.RequestError
		exchangeErr *provider.TokenExchangeError
	)

	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, models.ErrNotFound), errors.Is(err, integration.ErrNotOwner):
		// Other users' integrations are indistinguishable from missing
		// ones.
		status = http.StatusNotFound
	case errors.Is(err, integration.ErrSyncInProgress),
		errors.Is(err, integration.ErrNotConnected),
		errors.Is(err, integration.ErrSyncDisabled):
		status = http.StatusConflict
	case errors.Is(err, integration.ErrInvalidState),
		errors.Is(err, provider.ErrUnsupportedProvider),
		errors.Is(err, provider.ErrUnsupportedResource),
		errors.Is(err, provider.ErrNoRefreshToken):
		status = http.StatusBadRequest
	case errors.As(err, &refreshErr):
		// The integration needs re-authorization; the caller's own
		// session is fine.
		status = http.StatusConflict
	case errors.As(err, &requestErr), errors.As(err, &exchangeErr):
		status = http.StatusBadGateway
	case errors.Is(err, auth.ErrNoUser):
		status = http.StatusUnauthorized
	}

	renderJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	return dec.Decode(v)
}
