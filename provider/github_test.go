package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monahq/mona/config"
	"github.com/monahq/mona/models"
)

func testGitHubAdapter() *GitHubAdapter {
	return NewGitHub(config.OAuthClient{ClientID: "id", ClientSecret: "secret"}, "http://localhost/cb")
}

func TestGitHubAdapter_RefreshUnsupported(t *testing.T) {
	adapter := testGitHubAdapter()

	_, err := adapter.Refresh(context.Background(), "anything")
	require.ErrorIs(t, err, ErrNoRefreshToken)
}

func TestGitHubAdapter_FetchResourcesUnsupported(t *testing.T) {
	adapter := testGitHubAdapter()

	_, err := adapter.FetchResources(context.Background(), "tok", models.ResourceCalendar, Window{})
	require.ErrorIs(t, err, ErrUnsupportedResource)
}

func TestGitHubAdapter_UserIdentity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/user", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":42,"login":"octocat","name":"The Octocat","email":"octo@example.com"}`))
	}))
	defer srv.Close()

	adapter := testGitHubAdapter()
	adapter.apiBase = srv.URL
	adapter.httpClient = srv.Client()

	identity, err := adapter.UserIdentity(context.Background(), "tok")
	require.NoError(t, err)

	assert.Equal(t, "42", identity.ExternalID)
	assert.Equal(t, "The Octocat", identity.DisplayName)
}

func TestGitHubAdapter_RepoPassthrough(t *testing.T) {
	// Method-qualified ServeMux patterns ("GET /path") need go1.22+; dispatch
	// on r.Method here so the test runs on go1.21.
	mux := http.NewServeMux()
	mux.HandleFunc("/user/repos", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			assert.Equal(t, "updated", r.URL.Query().Get("sort"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`[{"id":1,"name":"mona","full_name":"octocat/mona","private":true}]`))
		case http.MethodPost:
			var in RepoCreate
			require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			assert.Equal(t, "new-repo", in.Name)

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":2,"name":"new-repo","full_name":"octocat/new-repo"}`))
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/repos/octocat/mona", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/repos/octocat/mona/branches", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"name":"main","protected":true,"commit":{"sha":"abc123"}}]`))
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	adapter := testGitHubAdapter()
	adapter.apiBase = srv.URL
	adapter.httpClient = srv.Client()

	ctx := context.Background()

	repos, err := adapter.ListRepos(ctx, "tok", 1, 30)
	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.Equal(t, "octocat/mona", repos[0].FullName)

	created, err := adapter.CreateRepo(ctx, "tok", RepoCreate{Name: "new-repo", Private: true})
	require.NoError(t, err)
	assert.Equal(t, int64(2), created.ID)

	require.NoError(t, adapter.DeleteRepo(ctx, "tok", "octocat", "mona"))

	branches, err := adapter.ListBranches(ctx, "tok", "octocat", "mona")
	require.NoError(t, err)
	require.Len(t, branches, 1)
	assert.Equal(t, "abc123", branches[0].Commit.SHA)
}

func TestGitHubAdapter_UnauthorizedSurfacesRequestError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"message":"Bad credentials"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	adapter := testGitHubAdapter()
	adapter.apiBase = srv.URL
	adapter.httpClient = srv.Client()

	_, err := adapter.ListRepos(context.Background(), "bad", 1, 30)

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.True(t, reqErr.Unauthorized())
	assert.Contains(t, reqErr.Body, "Bad credentials")
}
