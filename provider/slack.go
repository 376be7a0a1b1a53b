package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/monahq/mona/config"
	"github.com/monahq/mona/models"
)

const (
	slackAuthURL  = "https://slack.com/oauth/v2/authorize"
	slackTokenURL = "https://slack.com/api/oauth.v2.access"
	slackAPI      = "https://slack.com/api"
)

// slackScopes are comma separated in the authorization URL, unlike the
// space-separated Google and Microsoft scope lists.
var slackScopes = []string{
	"channels:read",
	"chat:write",
	"users:read",
	"users:read.email",
	"team:read",
}

// SlackAdapter serves the slack provider. Slack signals token-endpoint
// failure with HTTP 200 and "ok": false, so the exchange is done by hand
// rather than through x/oauth2.
type SlackAdapter struct {
	creds       config.OAuthClient
	redirectURL string

	httpClient *http.Client
	authURL    string
	tokenURL   string
	apiBase    string
}

// NewSlack builds the slack adapter.
func NewSlack(creds config.OAuthClient, redirectURL string) *SlackAdapter {
	return &SlackAdapter{
		creds:       creds,
		redirectURL: redirectURL,
		authURL:     slackAuthURL,
		tokenURL:    slackTokenURL,
		apiBase:     slackAPI,
	}
}

func (a *SlackAdapter) Provider() models.Provider { return models.ProviderSlack }

func (a *SlackAdapter) AuthorizationURL(state string) string {
	params := url.Values{
		"client_id":     {a.creds.ClientID},
		"scope":         {strings.Join(slackScopes, ",")},
		"redirect_uri":  {a.redirectURL},
		"response_type": {"code"},
		"state":         {state},
	}

	return a.authURL + "?" + params.Encode()
}

type slackTokenResponse struct {
	OK           bool   `json:"ok"`
	ErrorCode    string `json:"error"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	AuthedUser   struct {
		ID string `json:"id"`
	} `json:"authed_user"`
}

func (a *SlackAdapter) ExchangeCode(ctx context.Context, code string) (Token, error) {
	form := url.Values{
		"client_id":     {a.creds.ClientID},
		"client_secret": {a.creds.ClientSecret},
		"code":          {code},
		"redirect_uri":  {a.redirectURL},
	}

	var resp slackTokenResponse
	if err := formPost(ctx, a.httpClient, models.ProviderSlack, a.tokenURL, form, nil, &resp); err != nil {
		return Token{}, err
	}

	if !resp.OK {
		return Token{}, &TokenExchangeError{Provider: models.ProviderSlack, Body: resp.ErrorCode}
	}

	return Token{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		Expiry:       expiryFrom(time.Now(), resp.ExpiresIn),
	}, nil
}

// Refresh handles Slack token rotation. Workspaces without rotation
// enabled never issue refresh tokens; those tokens simply do not expire.
func (a *SlackAdapter) Refresh(ctx context.Context, refreshToken string) (Token, error) {
	if refreshToken == "" {
		return Token{}, ErrNoRefreshToken
	}

	form := url.Values{
		"client_id":     {a.creds.ClientID},
		"client_secret": {a.creds.ClientSecret},
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}

	var resp slackTokenResponse
	if err := formPost(ctx, a.httpClient, models.ProviderSlack, a.tokenURL, form, nil, &resp); err != nil {
		return Token{}, err
	}

	if !resp.OK {
		return Token{}, &TokenExchangeError{Provider: models.ProviderSlack, Body: resp.ErrorCode}
	}

	return Token{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		Expiry:       expiryFrom(time.Now(), resp.ExpiresIn),
	}, nil
}

func (a *SlackAdapter) UserIdentity(ctx context.Context, accessToken string) (UserIdentity, error) {
	var resp struct {
		OK        bool   `json:"ok"`
		ErrorCode string `json:"error"`
		UserID    string `json:"user_id"`
		User      string `json:"user"`
		Team      string `json:"team"`
	}

	if err := bearerDo(ctx, a.httpClient, models.ProviderSlack, http.MethodGet, a.apiBase+"/auth.test", accessToken, nil, nil, &resp); err != nil {
		return UserIdentity{}, err
	}

	if !resp.OK {
		// Slack reports auth failures in-band with HTTP 200.
		if resp.ErrorCode == "invalid_auth" || resp.ErrorCode == "token_expired" || resp.ErrorCode == "token_revoked" {
			return UserIdentity{}, &RequestError{Provider: models.ProviderSlack, StatusCode: http.StatusUnauthorized, Body: resp.ErrorCode}
		}

		return UserIdentity{}, &RequestError{Provider: models.ProviderSlack, StatusCode: http.StatusOK, Body: resp.ErrorCode}
	}

	return UserIdentity{ExternalID: resp.UserID, DisplayName: resp.User + " (" + resp.Team + ")"}, nil
}

// FetchResources is unsupported: Slack has no time-windowed resource the
// sync engine mirrors.
func (a *SlackAdapter) FetchResources(_ context.Context, _ string, resource models.ResourceType, _ Window) ([]Item, error) {
	return nil, fmt.Errorf("%w: %s for slack", ErrUnsupportedResource, resource)
}
