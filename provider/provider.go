// Package provider contains the adapters that talk to external OAuth
// providers (Google, Microsoft, GitHub, Slack, Calendly) and the registry
// that resolves a provider identifier to its adapter.
package provider

import (
	"context"
	"time"

	"github.com/monahq/mona/models"
)

// Token is a decrypted provider token set. A zero Expiry means the token
// never expires (GitHub OAuth tokens, for instance).
type Token struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// UserIdentity is the provider-side identity fetched once at connect time.
type UserIdentity struct {
	ExternalID  string
	Email       string
	DisplayName string
}

// Window bounds the time range of a resource fetch. Providers without a
// natural time axis ignore it.
type Window struct {
	From time.Time
	To   time.Time
}

// DefaultWindow is the horizon used for calendar and email fetches.
func DefaultWindow(now time.Time) Window {
	return Window{
		From: now.AddDate(0, 0, -30),
		To:   now.AddDate(0, 0, 30),
	}
}

// Item is one provider record normalized into a local entity. Exactly one
// of Event and Email is set, unless the provider payload was malformed in
// which case Err carries an *ItemParseError and the item is skipped.
type Item struct {
	ProviderID string
	Event      *models.CalendarEvent
	Email      *models.EmailMessage
	Err        error
}

// Adapter is the capability set every provider implements.
//
// Refresh is not idempotent against the provider: each call may rotate the
// refresh token, so callers must persist any returned refresh token
// immediately.
//
// FetchResources performs a fresh provider fetch on every call; nothing is
// cached between calls.
type Adapter interface {
	Provider() models.Provider
	AuthorizationURL(state string) string
	ExchangeCode(ctx context.Context, code string) (Token, error)
	Refresh(ctx context.Context, refreshToken string) (Token, error)
	UserIdentity(ctx context.Context, accessToken string) (UserIdentity, error)
	FetchResources(ctx context.Context, accessToken string, resource models.ResourceType, window Window) ([]Item, error)
}
