package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monahq/mona/config"
)

func testSlackAdapter() *SlackAdapter {
	return NewSlack(config.OAuthClient{ClientID: "id", ClientSecret: "secret"}, "http://localhost/cb")
}

func TestSlackAdapter_AuthorizationURL_CommaScopes(t *testing.T) {
	adapter := testSlackAdapter()

	raw := adapter.AuthorizationURL("st")

	u, err := url.Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "channels:read,chat:write,users:read,users:read.email,team:read", u.Query().Get("scope"))
	assert.Equal(t, "st", u.Query().Get("state"))
}

func TestSlackAdapter_ExchangeCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "the-code", r.Form.Get("code"))
		assert.Equal(t, "id", r.Form.Get("client_id"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"access_token":"xoxb-1","authed_user":{"id":"U1"}}`))
	}))
	defer srv.Close()

	adapter := testSlackAdapter()
	adapter.tokenURL = srv.URL
	adapter.httpClient = srv.Client()

	tok, err := adapter.ExchangeCode(context.Background(), "the-code")
	require.NoError(t, err)

	assert.Equal(t, "xoxb-1", tok.AccessToken)
	assert.True(t, tok.Expiry.IsZero(), "no expires_in means the token never expires")
}

func TestSlackAdapter_ExchangeCode_OKFalse(t *testing.T) {
	// Slack reports failure with HTTP 200 and ok:false.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":false,"error":"invalid_code"}`))
	}))
	defer srv.Close()

	adapter := testSlackAdapter()
	adapter.tokenURL = srv.URL
	adapter.httpClient = srv.Client()

	_, err := adapter.ExchangeCode(context.Background(), "bad")

	var exchangeErr *TokenExchangeError
	require.ErrorAs(t, err, &exchangeErr)
	assert.Equal(t, "invalid_code", exchangeErr.Body)
}

func TestSlackAdapter_RefreshWithoutToken(t *testing.T) {
	adapter := testSlackAdapter()

	_, err := adapter.Refresh(context.Background(), "")
	require.ErrorIs(t, err, ErrNoRefreshToken)
}

func TestSlackAdapter_UserIdentity_InvalidAuthMapsTo401(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":false,"error":"invalid_auth"}`))
	}))
	defer srv.Close()

	adapter := testSlackAdapter()
	adapter.apiBase = srv.URL
	adapter.httpClient = srv.Client()

	_, err := adapter.UserIdentity(context.Background(), "revoked")
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
}
