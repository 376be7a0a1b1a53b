package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/monahq/mona/models"
	"github.com/monahq/mona/web/auth"
)

// ResourceHandlers serves the synced calendar events, email messages and
// sync audit records.
type ResourceHandlers struct{ Deps Dependencies }

const defaultListLimit = 100

func (h *ResourceHandlers) ListSyncRuns(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		renderError(w, err)

		return
	}

	query := models.SyncRunQuery{
		UserID:        userID,
		IntegrationID: r.URL.Query().Get("integration_id"),
		ResourceType:  models.ResourceType(r.URL.Query().Get("resource_type")),
		Status:        models.SyncRunStatus(r.URL.Query().Get("status")),
		Limit:         queryLimit(r),
	}

	runs, err := h.Deps.Runs.Select(r.Context(), query)
	if err != nil {
		renderError(w, err)

		return
	}

	renderJSON(w, http.StatusOK, map[string]any{"runs": h.withEffectiveStatus(runs)})
}

func (h *ResourceHandlers) GetSyncRun(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		renderError(w, err)

		return
	}

	run, err := h.Deps.Runs.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		renderError(w, err)

		return
	}

	if _, err := h.Deps.Service.GetOwned(r.Context(), userID, run.IntegrationID); err != nil {
		renderError(w, err)

		return
	}

	run.Status = run.EffectiveStatus(time.Now(), h.Deps.StaleAfter)

	renderJSON(w, http.StatusOK, map[string]any{"run": run})
}

// withEffectiveStatus folds stale started runs into failed for display.
func (h *ResourceHandlers) withEffectiveStatus(runs []models.SyncRun) []models.SyncRun {
	now := time.Now()

	out := make([]models.SyncRun, 0, len(runs))

	for _, run := range runs {
		run.Status = run.EffectiveStatus(now, h.Deps.StaleAfter)
		out = append(out, run)
	}

	return out
}

func (h *ResourceHandlers) GetCalendarEvent(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		renderError(w, err)

		return
	}

	event, err := h.Deps.Events.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		renderError(w, err)

		return
	}

	if _, err := h.Deps.Service.GetOwned(r.Context(), userID, event.IntegrationID); err != nil {
		renderError(w, err)

		return
	}

	renderJSON(w, http.StatusOK, map[string]any{"event": event})
}

func (h *ResourceHandlers) GetEmail(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		renderError(w, err)

		return
	}

	msg, err := h.Deps.Emails.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		renderError(w, err)

		return
	}

	if _, err := h.Deps.Service.GetOwned(r.Context(), userID, msg.IntegrationID); err != nil {
		renderError(w, err)

		return
	}

	renderJSON(w, http.StatusOK, map[string]any{"email": msg})
}

func (h *ResourceHandlers) ListCalendarEvents(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		renderError(w, err)

		return
	}

	query := models.CalendarEventQuery{
		UserID:        userID,
		IntegrationID: r.URL.Query().Get("integration_id"),
		Provider:      models.Provider(r.URL.Query().Get("provider")),
		Search:        r.URL.Query().Get("q"),
		Limit:         queryLimit(r),
	}

	if from, ok := queryTime(r, "from"); ok {
		query.From = from
	}

	if to, ok := queryTime(r, "to"); ok {
		query.To = to
	}

	events, err := h.Deps.Events.Select(r.Context(), query)
	if err != nil {
		renderError(w, err)

		return
	}

	if events == nil {
		events = []models.CalendarEvent{}
	}

	renderJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *ResourceHandlers) ListEmails(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		renderError(w, err)

		return
	}

	query := models.EmailMessageQuery{
		UserID:        userID,
		IntegrationID: r.URL.Query().Get("integration_id"),
		Provider:      models.Provider(r.URL.Query().Get("provider")),
		Search:        r.URL.Query().Get("q"),
		Limit:         queryLimit(r),
	}

	if v := r.URL.Query().Get("is_read"); v != "" {
		isRead, err := strconv.ParseBool(v)
		if err == nil {
			query.IsRead = &isRead
		}
	}

	if v := r.URL.Query().Get("is_important"); v != "" {
		isImportant, err := strconv.ParseBool(v)
		if err == nil {
			query.IsImportant = &isImportant
		}
	}

	emails, err := h.Deps.Emails.Select(r.Context(), query)
	if err != nil {
		renderError(w, err)

		return
	}

	if emails == nil {
		emails = []models.EmailMessage{}
	}

	renderJSON(w, http.StatusOK, map[string]any{"emails": emails})
}

func queryLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return defaultListLimit
	}

	return limit
}

func queryTime(r *http.Request, key string) (time.Time, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return time.Time{}, false
	}

	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, false
	}

	return t, true
}
