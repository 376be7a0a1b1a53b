package models

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

// Provider identifies an external service a user can connect.
type Provider string

const (
	ProviderGoogleCalendar    Provider = "google_calendar"
	ProviderGoogleGmail       Provider = "google_gmail"
	ProviderMicrosoftCalendar Provider = "microsoft_calendar"
	ProviderMicrosoftOutlook  Provider = "microsoft_outlook"
	ProviderGitHub            Provider = "github"
	ProviderSlack             Provider = "slack"
	ProviderCalendly          Provider = "calendly"
)

// AllProviders lists every provider the backend knows about.
var AllProviders = []Provider{
	ProviderGoogleCalendar,
	ProviderGoogleGmail,
	ProviderMicrosoftCalendar,
	ProviderMicrosoftOutlook,
	ProviderGitHub,
	ProviderSlack,
	ProviderCalendly,
}

// SyncResource returns the resource kind a provider mirrors locally.
// Providers without syncable data (GitHub, Slack) report false.
func (p Provider) SyncResource() (ResourceType, bool) {
	switch p {
	case ProviderGoogleCalendar, ProviderMicrosoftCalendar, ProviderCalendly:
		return ResourceCalendar, true
	case ProviderGoogleGmail, ProviderMicrosoftOutlook:
		return ResourceEmail, true
	default:
		return "", false
	}
}

func (p Provider) Valid() bool {
	for _, known := range AllProviders {
		if p == known {
			return true
		}
	}

	return false
}

// IntegrationStatus is the connection state of an integration.
type IntegrationStatus string

const (
	StatusConnected    IntegrationStatus = "connected"
	StatusDisconnected IntegrationStatus = "disconnected"
	StatusError        IntegrationStatus = "error"
	StatusExpired      IntegrationStatus = "expired"
)

// Integration represents one user's connection to one provider.
// Token fields hold vault-encrypted blobs, never plaintext.
// A zero TokenExpiresAt means the token never expires.
type Integration struct {
	ID             string            `json:"id"`
	UserID         string            `json:"user_id"`
	Provider       Provider          `json:"provider"`
	Status         IntegrationStatus `json:"status"`
	AccessToken    string            `json:"-"`
	RefreshToken   string            `json:"-"`
	TokenExpiresAt time.Time         `json:"token_expires_at"`
	ProviderUserID string            `json:"provider_user_id"`
	ProviderEmail  string            `json:"provider_email"`
	LastSync       time.Time         `json:"last_sync"`
	SyncEnabled    bool              `json:"sync_enabled"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// TokenExpired reports whether the access token expiry has passed.
func (i *Integration) TokenExpired(now time.Time) bool {
	if i.TokenExpiresAt.IsZero() {
		return false
	}

	return !now.Before(i.TokenExpiresAt)
}

// IntegrationRepository manages integration persistence.
// Save upserts on the (user_id, provider) unique key.
// Delete cascades to synced resources and sync runs.
type IntegrationRepository interface {
	Get(ctx context.Context, id string) (Integration, error)
	GetByUserProvider(ctx context.Context, userID string, provider Provider) (Integration, error)
	ListByUser(ctx context.Context, userID string) ([]Integration, error)
	ListSyncEnabled(ctx context.Context) ([]Integration, error)
	Save(ctx context.Context, integration *Integration) error
	Update(ctx context.Context, integration *Integration) error
	// SetLastSync advances last_sync without touching the rest of the
	// record, so a finishing sync can never clobber tokens rotated by a
	// concurrent refresh in another process.
	SetLastSync(ctx context.Context, id string, lastSync time.Time) error
	Delete(ctx context.Context, id string) error
}
