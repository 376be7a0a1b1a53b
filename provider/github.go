package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	githubep "golang.org/x/oauth2/github"

	"github.com/monahq/mona/config"
	"github.com/monahq/mona/models"
)

const githubAPI = "https://api.github.com"

// GitHubAdapter serves the github provider. GitHub OAuth tokens carry no
// expiry and no refresh token, so a zero Token.Expiry means never expires
// and Refresh always fails with ErrNoRefreshToken.
type GitHubAdapter struct {
	cfg *oauth2.Config

	httpClient *http.Client
	apiBase    string
}

// NewGitHub builds the github adapter.
func NewGitHub(creds config.OAuthClient, redirectURL string) *GitHubAdapter {
	return &GitHubAdapter{
		cfg: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"repo", "user:email", "notifications"},
			Endpoint:     githubep.Endpoint,
		},
		apiBase: githubAPI,
	}
}

func (a *GitHubAdapter) Provider() models.Provider { return models.ProviderGitHub }

func (a *GitHubAdapter) AuthorizationURL(state string) string {
	return a.cfg.AuthCodeURL(state)
}

func (a *GitHubAdapter) ExchangeCode(ctx context.Context, code string) (Token, error) {
	tok, err := a.cfg.Exchange(a.oauthContext(ctx), code)
	if err != nil {
		return Token{}, &TokenExchangeError{Provider: models.ProviderGitHub, Err: err}
	}

	// GitHub tokens do not expire; x/oauth2 reports a zero expiry here.
	return Token{AccessToken: tok.AccessToken, Expiry: tok.Expiry}, nil
}

func (a *GitHubAdapter) Refresh(_ context.Context, _ string) (Token, error) {
	return Token{}, ErrNoRefreshToken
}

func (a *GitHubAdapter) UserIdentity(ctx context.Context, accessToken string) (UserIdentity, error) {
	var user struct {
		ID    int64  `json:"id"`
		Login string `json:"login"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}

	if err := bearerDo(ctx, a.httpClient, models.ProviderGitHub, http.MethodGet, a.apiBase+"/user", accessToken, nil, nil, &user); err != nil {
		return UserIdentity{}, err
	}

	display := user.Name
	if display == "" {
		display = user.Login
	}

	return UserIdentity{
		ExternalID:  strconv.FormatInt(user.ID, 10),
		Email:       user.Email,
		DisplayName: display,
	}, nil
}

// FetchResources is unsupported: GitHub has no calendar or mailbox to
// mirror. Repository data flows through the passthrough methods below.
func (a *GitHubAdapter) FetchResources(_ context.Context, _ string, resource models.ResourceType, _ Window) ([]Item, error) {
	return nil, fmt.Errorf("%w: %s for github", ErrUnsupportedResource, resource)
}

// Repo is a GitHub repository as exposed by the passthrough endpoints.
type Repo struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	FullName      string    `json:"full_name"`
	Description   string    `json:"description"`
	Private       bool      `json:"private"`
	HTMLURL       string    `json:"html_url"`
	DefaultBranch string    `json:"default_branch"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// RepoCreate is the payload for creating a repository.
type RepoCreate struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Private     bool   `json:"private"`
	AutoInit    bool   `json:"auto_init"`
}

// RepoUpdate carries only the fields to change; nil means leave as is.
type RepoUpdate struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Private     *bool   `json:"private,omitempty"`
}

// Branch is a repository branch summary.
type Branch struct {
	Name      string `json:"name"`
	Protected bool   `json:"protected"`
	Commit    struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

// Commit is a repository commit summary.
type Commit struct {
	SHA     string `json:"sha"`
	HTMLURL string `json:"html_url"`
	Commit  struct {
		Message string `json:"message"`
		Author  struct {
			Name  string    `json:"name"`
			Email string    `json:"email"`
			Date  time.Time `json:"date"`
		} `json:"author"`
	} `json:"commit"`
}

func (a *GitHubAdapter) ListRepos(ctx context.Context, accessToken string, page, perPage int) ([]Repo, error) {
	if perPage <= 0 {
		perPage = 30
	}

	if page <= 0 {
		page = 1
	}

	query := url.Values{
		"type":     {"all"},
		"sort":     {"updated"},
		"per_page": {strconv.Itoa(perPage)},
		"page":     {strconv.Itoa(page)},
	}

	var repos []Repo
	if err := bearerDo(ctx, a.httpClient, models.ProviderGitHub, http.MethodGet, a.apiBase+"/user/repos", accessToken, query, nil, &repos); err != nil {
		return nil, err
	}

	return repos, nil
}

func (a *GitHubAdapter) GetRepo(ctx context.Context, accessToken, owner, name string) (Repo, error) {
	var repo Repo

	endpoint := fmt.Sprintf("%s/repos/%s/%s", a.apiBase, owner, name)
	if err := bearerDo(ctx, a.httpClient, models.ProviderGitHub, http.MethodGet, endpoint, accessToken, nil, nil, &repo); err != nil {
		return Repo{}, err
	}

	return repo, nil
}

func (a *GitHubAdapter) CreateRepo(ctx context.Context, accessToken string, in RepoCreate) (Repo, error) {
	var repo Repo
	if err := bearerDo(ctx, a.httpClient, models.ProviderGitHub, http.MethodPost, a.apiBase+"/user/repos", accessToken, nil, in, &repo); err != nil {
		return Repo{}, err
	}

	return repo, nil
}

func (a *GitHubAdapter) UpdateRepo(ctx context.Context, accessToken, owner, name string, in RepoUpdate) (Repo, error) {
	var repo Repo

	endpoint := fmt.Sprintf("%s/repos/%s/%s", a.apiBase, owner, name)
	if err := bearerDo(ctx, a.httpClient, models.ProviderGitHub, http.MethodPatch, endpoint, accessToken, nil, in, &repo); err != nil {
		return Repo{}, err
	}

	return repo, nil
}

func (a *GitHubAdapter) DeleteRepo(ctx context.Context, accessToken, owner, name string) error {
	endpoint := fmt.Sprintf("%s/repos/%s/%s", a.apiBase, owner, name)

	return bearerDo(ctx, a.httpClient, models.ProviderGitHub, http.MethodDelete, endpoint, accessToken, nil, nil, nil)
}

func (a *GitHubAdapter) ListBranches(ctx context.Context, accessToken, owner, name string) ([]Branch, error) {
	var branches []Branch

	endpoint := fmt.Sprintf("%s/repos/%s/%s/branches", a.apiBase, owner, name)
	if err := bearerDo(ctx, a.httpClient, models.ProviderGitHub, http.MethodGet, endpoint, accessToken, nil, nil, &branches); err != nil {
		return nil, err
	}

	return branches, nil
}

func (a *GitHubAdapter) ListCommits(ctx context.Context, accessToken, owner, name, sha string, page, perPage int) ([]Commit, error) {
	if perPage <= 0 {
		perPage = 30
	}

	if page <= 0 {
		page = 1
	}

	query := url.Values{
		"per_page": {strconv.Itoa(perPage)},
		"page":     {strconv.Itoa(page)},
	}

	if sha != "" {
		query.Set("sha", sha)
	}

	var commits []Commit

	endpoint := fmt.Sprintf("%s/repos/%s/%s/commits", a.apiBase, owner, name)
	if err := bearerDo(ctx, a.httpClient, models.ProviderGitHub, http.MethodGet, endpoint, accessToken, query, nil, &commits); err != nil {
		return nil, err
	}

	return commits, nil
}

func (a *GitHubAdapter) oauthContext(ctx context.Context) context.Context {
	if a.httpClient == nil {
		return ctx
	}

	return context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
}
