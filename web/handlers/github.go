package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/monahq/mona/provider"
	"github.com/monahq/mona/web/auth"
)

// GitHubHandlers proxies repository operations through a connected
// GitHub integration. Tokens stay server side; the frontend only ever
// sees repository data.
type GitHubHandlers struct{ Deps Dependencies }

// call runs fn against the GitHub adapter of the user's integration.
func (h *GitHubHandlers) call(w http.ResponseWriter, r *http.Request, fn func(gh *provider.GitHubAdapter, token string) (any, error)) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		renderError(w, err)

		return
	}

	id := mux.Vars(r)["id"]

	var result any

	err = h.Deps.Service.CallProvider(r.Context(), userID, id, func(adapter provider.Adapter, token string) error {
		gh, ok := adapter.(*provider.GitHubAdapter)
		if !ok {
			return provider.ErrUnsupportedProvider
		}

		var callErr error
		result, callErr = fn(gh, token)

		return callErr
	})
	if err != nil {
		renderError(w, err)

		return
	}

	renderJSON(w, http.StatusOK, result)
}

func (h *GitHubHandlers) ListRepos(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))

	h.call(w, r, func(gh *provider.GitHubAdapter, token string) (any, error) {
		repos, err := gh.ListRepos(r.Context(), token, page, perPage)
		if err != nil {
			return nil, err
		}

		if repos == nil {
			repos = []provider.Repo{}
		}

		return map[string]any{"repos": repos}, nil
	})
}

func (h *GitHubHandlers) GetRepo(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	h.call(w, r, func(gh *provider.GitHubAdapter, token string) (any, error) {
		repo, err := gh.GetRepo(r.Context(), token, vars["owner"], vars["name"])
		if err != nil {
			return nil, err
		}

		return map[string]any{"repo": repo}, nil
	})
}

func (h *GitHubHandlers) CreateRepo(w http.ResponseWriter, r *http.Request) {
	var in provider.RepoCreate
	if err := decodeJSON(r, &in); err != nil {
		renderJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})

		return
	}

	h.call(w, r, func(gh *provider.GitHubAdapter, token string) (any, error) {
		repo, err := gh.CreateRepo(r.Context(), token, in)
		if err != nil {
			return nil, err
		}

		return map[string]any{"repo": repo}, nil
	})
}

func (h *GitHubHandlers) UpdateRepo(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var in provider.RepoUpdate
	if err := decodeJSON(r, &in); err != nil {
		renderJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})

		return
	}

	h.call(w, r, func(gh *provider.GitHubAdapter, token string) (any, error) {
		repo, err := gh.UpdateRepo(r.Context(), token, vars["owner"], vars["name"], in)
		if err != nil {
			return nil, err
		}

		return map[string]any{"repo": repo}, nil
	})
}

func (h *GitHubHandlers) DeleteRepo(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	h.call(w, r, func(gh *provider.GitHubAdapter, token string) (any, error) {
		if err := gh.DeleteRepo(r.Context(), token, vars["owner"], vars["name"]); err != nil {
			return nil, err
		}

		return map[string]string{"status": "deleted"}, nil
	})
}

func (h *GitHubHandlers) ListBranches(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	h.call(w, r, func(gh *provider.GitHubAdapter, token string) (any, error) {
		branches, err := gh.ListBranches(r.Context(), token, vars["owner"], vars["name"])
		if err != nil {
			return nil, err
		}

		if branches == nil {
			branches = []provider.Branch{}
		}

		return map[string]any{"branches": branches}, nil
	})
}

func (h *GitHubHandlers) ListCommits(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	sha := r.URL.Query().Get("sha")

	h.call(w, r, func(gh *provider.GitHubAdapter, token string) (any, error) {
		commits, err := gh.ListCommits(r.Context(), token, vars["owner"], vars["name"], sha, page, perPage)
		if err != nil {
			return nil, err
		}

		if commits == nil {
			commits = []provider.Commit{}
		}

		return map[string]any{"commits": commits}, nil
	})
}
