package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/monahq/mona/config"
	"github.com/monahq/mona/models"
)

const (
	googleCalendarAPI = "https://www.googleapis.com/calendar/v3"
	googleGmailAPI    = "https://gmail.googleapis.com/gmail/v1"
	googleUserinfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

	googleCalendarMaxResults = 250
	googleGmailMaxResults    = 50
)

// GoogleAdapter serves the google_calendar and google_gmail providers.
// Both share one OAuth application; the provider kind picks the scopes
// and which API the resource fetch talks to.
type GoogleAdapter struct {
	provider models.Provider
	cfg      *oauth2.Config

	// overridable for tests
	httpClient  *http.Client
	calendarAPI string
	gmailAPI    string
	userinfoURL string
}

// NewGoogle builds an adapter for one of the google_* providers.
func NewGoogle(creds config.OAuthClient, redirectURL string, p models.Provider) *GoogleAdapter {
	var scopes []string

	switch p {
	case models.ProviderGoogleCalendar:
		scopes = []string{"https://www.googleapis.com/auth/calendar.readonly"}
	case models.ProviderGoogleGmail:
		scopes = []string{"https://www.googleapis.com/auth/gmail.readonly"}
	}

	return &GoogleAdapter{
		provider: p,
		cfg: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  redirectURL,
			Scopes:       scopes,
			Endpoint:     google.Endpoint,
		},
		calendarAPI: googleCalendarAPI,
		gmailAPI:    googleGmailAPI,
		userinfoURL: googleUserinfoURL,
	}
}

func (a *GoogleAdapter) Provider() models.Provider { return a.provider }

// AuthorizationURL builds the consent URL. Offline access plus forced
// approval is what makes Google return a refresh token.
func (a *GoogleAdapter) AuthorizationURL(state string) string {
	return a.cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (a *GoogleAdapter) ExchangeCode(ctx context.Context, code string) (Token, error) {
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

func (a *GoogleAdapter) Refresh(ctx context.Context, refreshToken string) (Token, error) {
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

func (a *GoogleAdapter) UserIdentity(ctx context.Context, accessToken string) (UserIdentity, error) {
	var info struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}

	if err := bearerDo(ctx, a.httpClient, a.provider, http.MethodGet, a.userinfoURL, accessToken, nil, nil, &info); err != nil {
		return UserIdentity{}, err
	}

	return UserIdentity{ExternalID: info.ID, Email: info.Email, DisplayName: info.Name}, nil
}

func (a *GoogleAdapter) FetchResources(ctx context.Context, accessToken string, resource models.ResourceType, window Window) ([]Item, error) {
	switch {
	case resource == models.ResourceCalendar && a.provider == models.ProviderGoogleCalendar:
		return a.fetchCalendarEvents(ctx, accessToken, window)
	case resource == models.ResourceEmail && a.provider == models.ProviderGoogleGmail:
		return a.fetchGmailMessages(ctx, accessToken, window)
	default:
		return nil, fmt.Errorf("%w: %s for %s", ErrUnsupportedResource, resource, a.provider)
	}
}

type googleEvent struct {
	ID          string `json:"id"`
	Summary     string `json:"summary"`
	Description string `json:"description"`
	Location    string `json:"location"`
	Status      string `json:"status"`
	Updated     string `json:"updated"`
	Creator     struct {
		Email string `json:"email"`
	} `json:"creator"`
	Start     googleEventTime `json:"start"`
	End       googleEventTime `json:"end"`
	Attendees []struct {
		Email          string `json:"email"`
		DisplayName    string `json:"displayName"`
		ResponseStatus string `json:"responseStatus"`
	} `json:"attendees"`
}

type googleEventTime struct {
	Date     string `json:"date"`
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

func (a *GoogleAdapter) fetchCalendarEvents(ctx context.Context, accessToken string, window Window) ([]Item, error) {
	query := url.Values{
		"timeMin":      {window.From.UTC().Format(time.RFC3339)},
		"timeMax":      {window.To.UTC().Format(time.RFC3339)},
		"singleEvents": {"true"},
		"orderBy":      {"startTime"},
		"maxResults":   {strconv.Itoa(googleCalendarMaxResults)},
	}

	var resp struct {
		Items []googleEvent `json:"items"`
	}

	endpoint := a.calendarAPI + "/calendars/primary/events"
	if err := bearerDo(ctx, a.httpClient, a.provider, http.MethodGet, endpoint, accessToken, query, nil, &resp); err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(resp.Items))

	for _, ev := range resp.Items {
		items = append(items, a.eventToItem(ev))
	}

	return items, nil
}

func (a *GoogleAdapter) eventToItem(ev googleEvent) Item {
	if ev.ID == "" {
		return Item{Err: &ItemParseError{Reason: "event without id"}}
	}

	start, allDay, err := parseGoogleTime(ev.Start)
	if err != nil {
		return Item{ProviderID: ev.ID, Err: &ItemParseError{ProviderID: ev.ID, Reason: "bad start time: " + err.Error()}}
	}

	end, _, err := parseGoogleTime(ev.End)
	if err != nil {
		return Item{ProviderID: ev.ID, Err: &ItemParseError{ProviderID: ev.ID, Reason: "bad end time: " + err.Error()}}
	}

	title := ev.Summary
	if title == "" {
		title = "No Title"
	}

	status := ev.Status
	if status == "" {
		status = "confirmed"
	}

	lastModified := time.Now().UTC()
	if ev.Updated != "" {
		if ts, err := time.Parse(time.RFC3339, ev.Updated); err == nil {
			lastModified = ts
		}
	}

	event := models.CalendarEvent{
		ProviderEventID: ev.ID,
		Title:           title,
		Description:     ev.Description,
		Location:        ev.Location,
		StartTime:       start,
		EndTime:         end,
		IsAllDay:        allDay,
		Timezone:        ev.Start.TimeZone,
		CreatedBy:       ev.Creator.Email,
		EventStatus:     status,
		LastModified:    lastModified,
	}

	for _, att := range ev.Attendees {
		event.Attendees = append(event.Attendees, models.Attendee{
			Email:          att.Email,
			DisplayName:    att.DisplayName,
			ResponseStatus: att.ResponseStatus,
		})
	}

	return Item{ProviderID: ev.ID, Event: &event}
}

func parseGoogleTime(t googleEventTime) (time.Time, bool, error) {
	if t.Date != "" {
		ts, err := time.Parse("2006-01-02", t.Date)

		return ts.UTC(), true, err
	}

	if t.DateTime != "" {
		ts, err := time.Parse(time.RFC3339, t.DateTime)

		return ts, false, err
	}

	return time.Time{}, false, fmt.Errorf("no date or dateTime")
}

func (a *GoogleAdapter) fetchGmailMessages(ctx context.Context, accessToken string, window Window) ([]Item, error) {
	query := url.Values{
		"maxResults": {strconv.Itoa(googleGmailMaxResults)},
		"q":          {"in:inbox after:" + strconv.FormatInt(window.From.Unix(), 10)},
	}

	var list struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}

	endpoint := a.gmailAPI + "/users/me/messages"
	if err := bearerDo(ctx, a.httpClient, a.provider, http.MethodGet, endpoint, accessToken, query, nil, &list); err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(list.Messages))

	for _, ref := range list.Messages {
		if ref.ID == "" {
			items = append(items, Item{Err: &ItemParseError{Reason: "message without id"}})

			continue
		}

		item, err := a.fetchGmailMessage(ctx, accessToken, ref.ID)
		if err != nil {
			return nil, err
		}

		items = append(items, item)
	}

	return items, nil
}

type gmailPart struct {
	MimeType string `json:"mimeType"`
	Filename string `json:"filename"`
	Body     struct {
		Data string `json:"data"`
	} `json:"body"`
}

func (a *GoogleAdapter) fetchGmailMessage(ctx context.Context, accessToken, id string) (Item, error) {
	var msg struct {
		ID           string `json:"id"`
		ThreadID     string `json:"threadId"`
		InternalDate string `json:"internalDate"`
		LabelIDs     []string `json:"labelIds"`
		Payload      struct {
			gmailPart
			Headers []struct {
				Name  string `json:"name"`
				Value string `json:"value"`
			} `json:"headers"`
			Parts []gmailPart `json:"parts"`
		} `json:"payload"`
	}

	endpoint := a.gmailAPI + "/users/me/messages/" + id
	if err := bearerDo(ctx, a.httpClient, a.provider, http.MethodGet, endpoint, accessToken, nil, nil, &msg); err != nil {
		return Item{}, err
	}

	headers := make(map[string]string, len(msg.Payload.Headers))
	for _, h := range msg.Payload.Headers {
		headers[h.Name] = h.Value
	}

	msec, err := strconv.ParseInt(msg.InternalDate, 10, 64)
	if err != nil {
		return Item{ProviderID: id, Err: &ItemParseError{ProviderID: id, Reason: "bad internalDate"}}, nil
	}

	var bodyText, bodyHTML string

	parts := msg.Payload.Parts
	if len(parts) == 0 {
		parts = []gmailPart{msg.Payload.gmailPart}
	}

	attachments := 0

	for _, part := range parts {
		switch part.MimeType {
		case "text/plain":
			bodyText = decodeGmailBody(part.Body.Data)
		case "text/html":
			bodyHTML = decodeGmailBody(part.Body.Data)
		}

		if part.Filename != "" {
			attachments++
		}
	}

	subject := headers["Subject"]
	if subject == "" {
		subject = "No Subject"
	}

	isRead := true
	isImportant := false

	for _, label := range msg.LabelIDs {
		switch label {
		case "UNREAD":
			isRead = false
		case "IMPORTANT":
			isImportant = true
		}
	}

	email := models.EmailMessage{
		ProviderMessageID: id,
		ThreadID:          msg.ThreadID,
		Subject:           subject,
		Sender:            headers["From"],
		Recipients:        []string{headers["To"]},
		BodyText:          bodyText,
		BodyHTML:          bodyHTML,
		ReceivedAt:        time.UnixMilli(msec).UTC(),
		IsRead:            isRead,
		IsImportant:       isImportant,
		Labels:            msg.LabelIDs,
		HasAttachments:    attachments > 0,
		AttachmentCount:   attachments,
	}

	return Item{ProviderID: id, Email: &email}, nil
}

// decodeGmailBody decodes Gmail's base64url body data, returning the raw
// value when it does not decode.
func decodeGmailBody(data string) string {
	if data == "" {
		return ""
	}

	decoded, err := base64.RawURLEncoding.DecodeString(data)
	if err != nil {
		return data
	}

	return string(decoded)
}

// oauthContext injects the test HTTP client into x/oauth2 when set.
func (a *GoogleAdapter) oauthContext(ctx context.Context) context.Context {
	if a.httpClient == nil {
		return ctx
	}

	return context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
}
