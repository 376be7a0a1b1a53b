package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/monahq/mona/models"
	"github.com/monahq/mona/web/auth"
)

const stateCookieName = "oauth_state"

// IntegrationHandlers covers the OAuth flow and integration lifecycle.
type IntegrationHandlers struct{ Deps Dependencies }

func (h *IntegrationHandlers) ListProviders(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, map[string]any{
		"providers": h.Deps.Service.Providers(),
	})
}

func (h *IntegrationHandlers) List(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		renderError(w, err)

		return
	}

	list, err := h.Deps.Service.List(r.Context(), userID)
	if err != nil {
		renderError(w, err)

		return
	}

	if list == nil {
		list = []models.Integration{}
	}

	renderJSON(w, http.StatusOK, map[string]any{"integrations": list})
}

// Connect starts the OAuth flow and returns the consent URL. The issued
// state is also stored in a short-lived cookie so Complete can verify
// the echo byte for byte.
func (h *IntegrationHandlers) Connect(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		renderError(w, err)

		return
	}

	p := models.Provider(mux.Vars(r)["provider"])

	authURL, state, err := h.Deps.Service.InitiateOAuth(r.Context(), userID, p)
	if err != nil {
		renderError(w, err)

		return
	}

	isSecure := r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		Secure:   isSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   300,
	})

	renderJSON(w, http.StatusOK, map[string]string{
		"auth_url": authURL,
		"state":    state,
	})
}

type completeRequest struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

// Complete finishes the OAuth flow with the code and state the provider
// redirected back with.
func (h *IntegrationHandlers) Complete(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		renderError(w, err)

		return
	}

	p := models.Provider(mux.Vars(r)["provider"])

	var req completeRequest
	if err := decodeJSON(r, &req); err != nil {
		renderJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})

		return
	}

	var expectedState string
	if cookie, err := r.Cookie(stateCookieName); err == nil {
		expectedState = cookie.Value
	}

	// Clear the state cookie regardless of outcome.
	isSecure := r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   isSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})

	integ, err := h.Deps.Service.CompleteOAuth(r.Context(), userID, p, req.Code, req.State, expectedState)
	if err != nil {
		renderError(w, err)

		return
	}

	renderJSON(w, http.StatusOK, map[string]any{"integration": integ})
}

// Sync triggers a sync for an integration. With a configured worker the
// run is always enqueued so every sync executes in the worker process;
// only queue-less deployments sync inline.
func (h *IntegrationHandlers) Sync(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		renderError(w, err)

		return
	}

	id := mux.Vars(r)["id"]

	if h.Deps.Enqueuer != nil {
		if _, err := h.Deps.Service.GetOwned(r.Context(), userID, id); err != nil {
			renderError(w, err)

			return
		}

		if err := h.Deps.Enqueuer.EnqueueSync(r.Context(), id); err != nil {
			renderError(w, err)

			return
		}

		renderJSON(w, http.StatusAccepted, map[string]string{"status": "enqueued"})

		return
	}

	run, err := h.Deps.Service.SyncNow(r.Context(), userID, id)
	if err != nil && run.ID == "" {
		renderError(w, err)

		return
	}

	// A partial or failed run still returns its audit record.
	renderJSON(w, http.StatusOK, map[string]any{"run": run})
}

func (h *IntegrationHandlers) Disconnect(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		renderError(w, err)

		return
	}

	integ, err := h.Deps.Service.Disconnect(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		renderError(w, err)

		return
	}

	renderJSON(w, http.StatusOK, map[string]any{"integration": integ})
}

type syncEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

func (h *IntegrationHandlers) SetSyncEnabled(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		renderError(w, err)

		return
	}

	var req syncEnabledRequest
	if err := decodeJSON(r, &req); err != nil {
		renderJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})

		return
	}

	integ, err := h.Deps.Service.SetSyncEnabled(r.Context(), userID, mux.Vars(r)["id"], req.Enabled)
	if err != nil {
		renderError(w, err)

		return
	}

	renderJSON(w, http.StatusOK, map[string]any{"integration": integ})
}

func (h *IntegrationHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		renderError(w, err)

		return
	}

	if err := h.Deps.Service.Delete(r.Context(), userID, mux.Vars(r)["id"]); err != nil {
		renderError(w, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}
