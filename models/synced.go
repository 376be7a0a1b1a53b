package models

import (
	"context"
	"time"
)

// ResourceType is the kind of provider data a sync run mirrors locally.
type ResourceType string

const (
	ResourceCalendar ResourceType = "calendar"
	ResourceEmail    ResourceType = "email"
)

// Attendee is one participant of a calendar event.
type Attendee struct {
	Email          string `json:"email"`
	DisplayName    string `json:"display_name,omitempty"`
	ResponseStatus string `json:"response_status,omitempty"`
}

// CalendarEvent is a provider-originated event mirrored locally.
// (IntegrationID, ProviderEventID) is the idempotence key for upsert.
type CalendarEvent struct {
	ID              string     `json:"id"`
	IntegrationID   string     `json:"integration_id"`
	ProviderEventID string     `json:"provider_event_id"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	Location        string     `json:"location,omitempty"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         time.Time  `json:"end_time"`
	IsAllDay        bool       `json:"is_all_day"`
	Timezone        string     `json:"timezone,omitempty"`
	Attendees       []Attendee `json:"attendees,omitempty"`
	CreatedBy       string     `json:"created_by,omitempty"`
	EventStatus     string     `json:"event_status"`
	LastModified    time.Time  `json:"last_modified"`
	SyncedAt        time.Time  `json:"synced_at"`
}

// CalendarEventQuery filters event listings. Zero values mean "no filter".
type CalendarEventQuery struct {
	UserID        string
	IntegrationID string
	Provider      Provider
	From          time.Time
	To            time.Time
	Search        string
	Limit         int
}

// CalendarEventRepository persists synced calendar events.
type CalendarEventRepository interface {
	// Upsert inserts or updates on (integration_id, provider_event_id)
	// and reports whether a new row was created.
	Upsert(ctx context.Context, event *CalendarEvent) (created bool, err error)
	Select(ctx context.Context, q CalendarEventQuery) ([]CalendarEvent, error)
	Get(ctx context.Context, id string) (CalendarEvent, error)
}

// EmailMessage is a provider-originated message mirrored locally.
// (IntegrationID, ProviderMessageID) is the idempotence key for upsert.
type EmailMessage struct {
	ID                string    `json:"id"`
	IntegrationID     string    `json:"integration_id"`
	ProviderMessageID string    `json:"provider_message_id"`
	ThreadID          string    `json:"thread_id,omitempty"`
	Subject           string    `json:"subject"`
	Sender            string    `json:"sender"`
	Recipients        []string  `json:"recipients,omitempty"`
	BodyText          string    `json:"body_text,omitempty"`
	BodyHTML          string    `json:"body_html,omitempty"`
	ReceivedAt        time.Time `json:"received_at"`
	IsRead            bool      `json:"is_read"`
	IsImportant       bool      `json:"is_important"`
	Labels            []string  `json:"labels,omitempty"`
	HasAttachments    bool      `json:"has_attachments"`
	AttachmentCount   int       `json:"attachment_count"`
	SyncedAt          time.Time `json:"synced_at"`
}

// EmailMessageQuery filters message listings. Zero values mean "no filter".
type EmailMessageQuery struct {
	UserID        string
	IntegrationID string
	Provider      Provider
	IsRead        *bool
	IsImportant   *bool
	Search        string
	Limit         int
}

// EmailMessageRepository persists synced email messages.
type EmailMessageRepository interface {
	Upsert(ctx context.Context, msg *EmailMessage) (created bool, err error)
	Select(ctx context.Context, q EmailMessageQuery) ([]EmailMessage, error)
	Get(ctx context.Context, id string) (EmailMessage, error)
}
