package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/monahq/mona/config"
	"github.com/monahq/mona/models"
)

const (
	calendlyAuthURL  = "https://auth.calendly.com/oauth/authorize"
	calendlyTokenURL = "https://auth.calendly.com/oauth/token"
	calendlyAPI      = "https://api.calendly.com"
)

// CalendlyAdapter serves the calendly provider. Calendly's token endpoint
// authenticates the application with HTTP basic auth instead of body
// parameters, and scheduled events look 90 days ahead.
type CalendlyAdapter struct {
	creds       config.OAuthClient
	redirectURL string

	httpClient *http.Client
	authURL    string
	tokenURL   string
	apiBase    string
}

// NewCalendly builds the calendly adapter.
func NewCalendly(creds config.OAuthClient, redirectURL string) *CalendlyAdapter {
	return &CalendlyAdapter{
		creds:       creds,
		redirectURL: redirectURL,
		authURL:     calendlyAuthURL,
		tokenURL:    calendlyTokenURL,
		apiBase:     calendlyAPI,
	}
}

func (a *CalendlyAdapter) Provider() models.Provider { return models.ProviderCalendly }

func (a *CalendlyAdapter) AuthorizationURL(state string) string {
	params := url.Values{
		"client_id":     {a.creds.ClientID},
		"response_type": {"code"},
		"redirect_uri":  {a.redirectURL},
		"state":         {state},
	}

	return a.authURL + "?" + params.Encode()
}

func (a *CalendlyAdapter) basicAuth() string {
	raw := a.creds.ClientID + ":" + a.creds.ClientSecret

	return "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))
}

type calendlyTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (a *CalendlyAdapter) ExchangeCode(ctx context.Context, code string) (Token, error) {
	form := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {a.redirectURL},
	}

	headers := map[string]string{"Authorization": a.basicAuth()}

	var resp calendlyTokenResponse
	if err := formPost(ctx, a.httpClient, models.ProviderCalendly, a.tokenURL, form, headers, &resp); err != nil {
		return Token{}, err
	}

	if resp.AccessToken == "" {
		return Token{}, &TokenExchangeError{Provider: models.ProviderCalendly, Body: "empty access token in response"}
	}

	expiresIn := resp.ExpiresIn
	if expiresIn == 0 {
		expiresIn = 3600
	}

	return Token{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		Expiry:       expiryFrom(time.Now(), expiresIn),
	}, nil
}

func (a *CalendlyAdapter) Refresh(ctx context.Context, refreshToken string) (Token, error) {
	if refreshToken == "" {
		return Token{}, ErrNoRefreshToken
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}

	headers := map[string]string{"Authorization": a.basicAuth()}

	var resp calendlyTokenResponse
	if err := formPost(ctx, a.httpClient, models.ProviderCalendly, a.tokenURL, form, headers, &resp); err != nil {
		return Token{}, err
	}

	if resp.AccessToken == "" {
		return Token{}, &TokenExchangeError{Provider: models.ProviderCalendly, Body: "empty access token in response"}
	}

	expiresIn := resp.ExpiresIn
	if expiresIn == 0 {
		expiresIn = 3600
	}

	return Token{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		Expiry:       expiryFrom(time.Now(), expiresIn),
	}, nil
}

func (a *CalendlyAdapter) UserIdentity(ctx context.Context, accessToken string) (UserIdentity, error) {
	resource, err := a.currentUser(ctx, accessToken)
	if err != nil {
		return UserIdentity{}, err
	}

	return UserIdentity{
		ExternalID:  lastURIPart(resource.URI),
		Email:       resource.Email,
		DisplayName: resource.Name,
	}, nil
}

type calendlyUser struct {
	URI   string `json:"uri"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (a *CalendlyAdapter) currentUser(ctx context.Context, accessToken string) (calendlyUser, error) {
	var resp struct {
		Resource calendlyUser `json:"resource"`
	}

	if err := bearerDo(ctx, a.httpClient, models.ProviderCalendly, http.MethodGet, a.apiBase+"/users/me", accessToken, nil, nil, &resp); err != nil {
		return calendlyUser{}, err
	}

	return resp.Resource, nil
}

func (a *CalendlyAdapter) FetchResources(ctx context.Context, accessToken string, resource models.ResourceType, window Window) ([]Item, error) {
	if resource != models.ResourceCalendar {
		return nil, fmt.Errorf("%w: %s for calendly", ErrUnsupportedResource, resource)
	}

	user, err := a.currentUser(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	// Scheduled events are mostly in the future; look 90 days out
	// regardless of the default horizon.
	to := window.To
	if ahead := time.Now().AddDate(0, 0, 90); to.Before(ahead) {
		to = ahead
	}

	query := url.Values{
		"user":           {user.URI},
		"status":         {"active"},
		"min_start_time": {window.From.UTC().Format(time.RFC3339)},
		"max_start_time": {to.UTC().Format(time.RFC3339)},
	}

	var resp struct {
		Collection []struct {
			URI       string `json:"uri"`
			Name      string `json:"name"`
			Status    string `json:"status"`
			StartTime string `json:"start_time"`
			EndTime   string `json:"end_time"`
			UpdatedAt string `json:"updated_at"`
		} `json:"collection"`
	}

	if err := bearerDo(ctx, a.httpClient, models.ProviderCalendly, http.MethodGet, a.apiBase+"/scheduled_events", accessToken, query, nil, &resp); err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(resp.Collection))

	for _, ev := range resp.Collection {
		id := lastURIPart(ev.URI)
		if id == "" {
			items = append(items, Item{Err: &ItemParseError{Reason: "event without uri"}})

			continue
		}

		start, err := time.Parse(time.RFC3339, ev.StartTime)
		if err != nil {
			items = append(items, Item{ProviderID: id, Err: &ItemParseError{ProviderID: id, Reason: "bad start_time"}})

			continue
		}

		end, err := time.Parse(time.RFC3339, ev.EndTime)
		if err != nil {
			items = append(items, Item{ProviderID: id, Err: &ItemParseError{ProviderID: id, Reason: "bad end_time"}})

			continue
		}

		status := "cancelled"
		if ev.Status == "active" {
			status = "confirmed"
		}

		title := ev.Name
		if title == "" {
			title = "Calendly Event"
		}

		lastModified := time.Now().UTC()
		if ev.UpdatedAt != "" {
			if ts, err := time.Parse(time.RFC3339, ev.UpdatedAt); err == nil {
				lastModified = ts
			}
		}

		event := models.CalendarEvent{
			ProviderEventID: id,
			Title:           title,
			Description:     "Calendly meeting: " + ev.Name,
			StartTime:       start.UTC(),
			EndTime:         end.UTC(),
			EventStatus:     status,
			LastModified:    lastModified,
		}

		items = append(items, Item{ProviderID: id, Event: &event})
	}

	return items, nil
}

func lastURIPart(uri string) string {
	if uri == "" {
		return ""
	}

	parts := strings.Split(strings.TrimRight(uri, "/"), "/")

	return parts[len(parts)-1]
}
