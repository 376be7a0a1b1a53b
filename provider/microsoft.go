package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"github.com/monahq/mona/config"
	"github.com/monahq/mona/models"
)

const (
	microsoftGraphAPI = "https://graph.microsoft.com/v1.0"

	microsoftCalendarTop = 100
	microsoftMailTop     = 50
)

// MicrosoftAdapter serves the microsoft_calendar and microsoft_outlook
// providers through the Graph API, sharing one Azure AD application.
type MicrosoftAdapter struct {
	provider models.Provider
	cfg      *oauth2.Config

	httpClient *http.Client
	graphAPI   string
}

// NewMicrosoft builds an adapter for one of the microsoft_* providers.
func NewMicrosoft(creds config.OAuthClient, redirectURL string, p models.Provider) *MicrosoftAdapter {
	var scopes []string

	switch p {
	case models.ProviderMicrosoftCalendar:
		scopes = []string{
			"https://graph.microsoft.com/Calendars.Read",
			"https://graph.microsoft.com/User.Read",
			"offline_access",
		}
	case models.ProviderMicrosoftOutlook:
		scopes = []string{
			"https://graph.microsoft.com/Mail.Read",
			"https://graph.microsoft.com/User.Read",
			"offline_access",
		}
	}

	return &MicrosoftAdapter{
		provider: p,
		cfg: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  redirectURL,
			Scopes:       scopes,
			Endpoint:     microsoft.AzureADEndpoint("common"),
		},
		graphAPI: microsoftGraphAPI,
	}
}

func (a *MicrosoftAdapter) Provider() models.Provider { return a.provider }

func (a *MicrosoftAdapter) AuthorizationURL(state string) string {
	return a.cfg.AuthCodeURL(state, oauth2.SetAuthURLParam("response_mode", "query"))
}

func (a *MicrosoftAdapter) ExchangeCode(ctx context.Context, code string) (Token, error) {
	tok, err := a.cfg.Exchange(a.oauthContext(ctx), code)
	if err != nil {
		return Token{}, &TokenExchangeError{Provider: a.provider, Err: err}
	}

	return Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}, nil
}

func (a *MicrosoftAdapter) Refresh(ctx context.Context, refreshToken string) (Token, error) {
	if refreshToken == "" {
		return Token{}, ErrNoRefreshToken
	}

	src := a.cfg.TokenSource(a.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken})

	tok, err := src.Token()
	if err != nil {
		return Token{}, &TokenExchangeError{Provider: a.provider, Err: err}
	}

	return Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}, nil
}

func (a *MicrosoftAdapter) UserIdentity(ctx context.Context, accessToken string) (UserIdentity, error) {
	var me struct {
		ID                string `json:"id"`
		Mail              string `json:"mail"`
		UserPrincipalName string `json:"userPrincipalName"`
		DisplayName       string `json:"displayName"`
	}

	if err := bearerDo(ctx, a.httpClient, a.provider, http.MethodGet, a.graphAPI+"/me", accessToken, nil, nil, &me); err != nil {
		return UserIdentity{}, err
	}

	email := me.Mail
	if email == "" {
		email = me.UserPrincipalName
	}

	return UserIdentity{ExternalID: me.ID, Email: email, DisplayName: me.DisplayName}, nil
}

func (a *MicrosoftAdapter) FetchResources(ctx context.Context, accessToken string, resource models.ResourceType, window Window) ([]Item, error) {
	switch {
	case resource == models.ResourceCalendar && a.provider == models.ProviderMicrosoftCalendar:
		return a.fetchCalendarEvents(ctx, accessToken, window)
	case resource == models.ResourceEmail && a.provider == models.ProviderMicrosoftOutlook:
		return a.fetchMailMessages(ctx, accessToken)
	default:
		return nil, fmt.Errorf("%w: %s for %s", ErrUnsupportedResource, resource, a.provider)
	}
}

type graphEvent struct {
	ID           string `json:"id"`
	Subject      string `json:"subject"`
	BodyPreview  string `json:"bodyPreview"`
	IsAllDay     bool   `json:"isAllDay"`
	LastModified string `json:"lastModifiedDateTime"`
	Start        struct {
		DateTime string `json:"dateTime"`
		TimeZone string `json:"timeZone"`
	} `json:"start"`
	End struct {
		DateTime string `json:"dateTime"`
		TimeZone string `json:"timeZone"`
	} `json:"end"`
	Location struct {
		DisplayName string `json:"displayName"`
	} `json:"location"`
	Organizer struct {
		EmailAddress struct {
			Address string `json:"address"`
		} `json:"emailAddress"`
	} `json:"organizer"`
	Attendees []struct {
		EmailAddress struct {
			Address string `json:"address"`
			Name    string `json:"name"`
		} `json:"emailAddress"`
		Status struct {
			Response string `json:"response"`
		} `json:"status"`
	} `json:"attendees"`
}

func (a *MicrosoftAdapter) fetchCalendarEvents(ctx context.Context, accessToken string, window Window) ([]Item, error) {
	from := window.From.UTC().Format(time.RFC3339)
	to := window.To.UTC().Format(time.RFC3339)

	query := url.Values{
		"$filter":  {fmt.Sprintf("start/dateTime ge '%s' and end/dateTime le '%s'", from, to)},
		"$orderby": {"start/dateTime"},
		"$top":     {strconv.Itoa(microsoftCalendarTop)},
	}

	var resp struct {
		Value []graphEvent `json:"value"`
	}

	if err := bearerDo(ctx, a.httpClient, a.provider, http.MethodGet, a.graphAPI+"/me/events", accessToken, query, nil, &resp); err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(resp.Value))

	for _, ev := range resp.Value {
		items = append(items, a.eventToItem(ev))
	}

	return items, nil
}

func (a *MicrosoftAdapter) eventToItem(ev graphEvent) Item {
	if ev.ID == "" {
		return Item{Err: &ItemParseError{Reason: "event without id"}}
	}

	start, err := parseGraphTime(ev.Start.DateTime)
	if err != nil {
		return Item{ProviderID: ev.ID, Err: &ItemParseError{ProviderID: ev.ID, Reason: "bad start time: " + err.Error()}}
	}

	end, err := parseGraphTime(ev.End.DateTime)
	if err != nil {
		return Item{ProviderID: ev.ID, Err: &ItemParseError{ProviderID: ev.ID, Reason: "bad end time: " + err.Error()}}
	}

	title := ev.Subject
	if title == "" {
		title = "No Title"
	}

	lastModified := time.Now().UTC()
	if ev.LastModified != "" {
		if ts, err := time.Parse(time.RFC3339, ev.LastModified); err == nil {
			lastModified = ts
		}
	}

	event := models.CalendarEvent{
		ProviderEventID: ev.ID,
		Title:           title,
		Description:     ev.BodyPreview,
		Location:        ev.Location.DisplayName,
		StartTime:       start,
		EndTime:         end,
		IsAllDay:        ev.IsAllDay,
		Timezone:        ev.Start.TimeZone,
		CreatedBy:       ev.Organizer.EmailAddress.Address,
		EventStatus:     "confirmed",
		LastModified:    lastModified,
	}

	for _, att := range ev.Attendees {
		event.Attendees = append(event.Attendees, models.Attendee{
			Email:          att.EmailAddress.Address,
			DisplayName:    att.EmailAddress.Name,
			ResponseStatus: att.Status.Response,
		})
	}

	return Item{ProviderID: ev.ID, Event: &event}
}

// parseGraphTime handles Graph's fractional-seconds timestamps, which come
// without a zone suffix and are documented as UTC.
func parseGraphTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05.9999999", "2006-01-02T15:04:05"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func (a *MicrosoftAdapter) fetchMailMessages(ctx context.Context, accessToken string) ([]Item, error) {
	query := url.Values{
		"$orderby": {"receivedDateTime desc"},
		"$top":     {strconv.Itoa(microsoftMailTop)},
		"$select":  {"id,subject,bodyPreview,from,toRecipients,receivedDateTime,isRead,importance"},
	}

	var resp struct {
		Value []struct {
			ID           string `json:"id"`
			Subject      string `json:"subject"`
			BodyPreview  string `json:"bodyPreview"`
			ReceivedAt   string `json:"receivedDateTime"`
			IsRead       bool   `json:"isRead"`
			Importance   string `json:"importance"`
			From         struct {
				EmailAddress struct {
					Address string `json:"address"`
					Name    string `json:"name"`
				} `json:"emailAddress"`
			} `json:"from"`
			ToRecipients []struct {
				EmailAddress struct {
					Address string `json:"address"`
				} `json:"emailAddress"`
			} `json:"toRecipients"`
		} `json:"value"`
	}

	if err := bearerDo(ctx, a.httpClient, a.provider, http.MethodGet, a.graphAPI+"/me/messages", accessToken, query, nil, &resp); err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(resp.Value))

	for _, msg := range resp.Value {
		if msg.ID == "" {
			items = append(items, Item{Err: &ItemParseError{Reason: "message without id"}})

			continue
		}

		receivedAt, err := time.Parse(time.RFC3339, msg.ReceivedAt)
		if err != nil {
			items = append(items, Item{ProviderID: msg.ID, Err: &ItemParseError{ProviderID: msg.ID, Reason: "bad receivedDateTime"}})

			continue
		}

		subject := msg.Subject
		if subject == "" {
			subject = "No Subject"
		}

		recipients := make([]string, 0, len(msg.ToRecipients))
		for _, rcpt := range msg.ToRecipients {
			recipients = append(recipients, rcpt.EmailAddress.Address)
		}

		email := models.EmailMessage{
			ProviderMessageID: msg.ID,
			Subject:           subject,
			Sender:            msg.From.EmailAddress.Address,
			Recipients:        recipients,
			BodyText:          msg.BodyPreview,
			ReceivedAt:        receivedAt.UTC(),
			IsRead:            msg.IsRead,
			IsImportant:       msg.Importance == "high",
		}

		items = append(items, Item{ProviderID: msg.ID, Email: &email})
	}

	return items, nil
}

func (a *MicrosoftAdapter) oauthContext(ctx context.Context) context.Context {
	if a.httpClient == nil {
		return ctx
	}

	return context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
}
