package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"github.com/monahq/mona/models"
)

type calendarEventRepo struct {
	db *sql.DB
}

func NewCalendarEventRepository(db *sql.DB) models.CalendarEventRepository {
	return &calendarEventRepo{db: db}
}

// Upsert inserts or updates on (integration_id, provider_event_id). The
// incoming row wins wholesale; there is no per-field merge.
func (repo *calendarEventRepo) Upsert(ctx context.Context, event *models.CalendarEvent) (bool, error) {
	attendees, err := json.Marshal(event.Attendees)
	if err != nil {
		return false, err
	}

	tx, err := repo.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}

	defer tx.Rollback()

	var existingID string

	err = tx.QueryRowContext(ctx,
		`SELECT id FROM calendar_events WHERE integration_id = $1 AND provider_event_id = $2 FOR UPDATE`,
		event.IntegrationID, event.ProviderEventID).Scan(&existingID)

	created := false

	switch {
	case errors.Is(err, sql.ErrNoRows):
		created = true

		if event.ID == "" {
			event.ID = uuid.New().String()
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO calendar_events (id, integration_id, provider_event_id, title, description, location,
				start_time, end_time, is_all_day, timezone, attendees, created_by, event_status,
				last_modified, synced_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			event.ID, event.IntegrationID, event.ProviderEventID, event.Title,
			event.Description, event.Location, event.StartTime, event.EndTime,
			event.IsAllDay, event.Timezone, string(attendees), event.CreatedBy,
			event.EventStatus, nullTime(event.LastModified), event.SyncedAt)
	case err == nil:
		event.ID = existingID

		_, err = tx.ExecContext(ctx,
			`UPDATE calendar_events SET title = $1, description = $2, location = $3,
				start_time = $4, end_time = $5, is_all_day = $6, timezone = $7, attendees = $8,
				created_by = $9, event_status = $10, last_modified = $11, synced_at = $12
				WHERE id = $13`,
			event.Title, event.Description, event.Location, event.StartTime,
			event.EndTime, event.IsAllDay, event.Timezone, string(attendees),
			event.CreatedBy, event.EventStatus, nullTime(event.LastModified),
			event.SyncedAt, existingID)
	}

	if err != nil {
		return false, err
	}

	return created, tx.Commit()
}

func (repo *calendarEventRepo) Get(ctx context.Context, id string) (models.CalendarEvent, error) {
	const q = `SELECT id, integration_id, provider_event_id, title, description, location,
		start_time, end_time, is_all_day, timezone, attendees, created_by, event_status,
		last_modified, synced_at
		FROM calendar_events WHERE id = $1`

	return rowToEvent(repo.db.QueryRowContext(ctx, q, id))
}

func (repo *calendarEventRepo) Select(ctx context.Context, params models.CalendarEventQuery) ([]models.CalendarEvent, error) {
	q := `SELECT e.id, e.integration_id, e.provider_event_id, e.title, e.description, e.location,
		e.start_time, e.end_time, e.is_all_day, e.timezone, e.attendees, e.created_by, e.event_status,
		e.last_modified, e.synced_at
		FROM calendar_events e JOIN integrations i ON i.id = e.integration_id`

	b := newQueryBuilder()

	if params.UserID != "" {
		b.where("i.user_id", params.UserID)
	}

	if params.Provider != "" {
		b.where("i.provider", params.Provider)
	}

	if params.IntegrationID != "" {
		b.where("e.integration_id", params.IntegrationID)
	}

	if !params.From.IsZero() {
		b.whereOp("e.end_time >=", params.From)
	}

	if !params.To.IsZero() {
		b.whereOp("e.start_time <=", params.To)
	}

	if params.Search != "" {
		b.whereSearch([]string{"e.title", "e.description"}, params.Search)
	}

	q += b.clause() + " ORDER BY e.start_time"

	if params.Limit > 0 {
		q += b.limit(params.Limit)
	}

	rows, err := repo.db.QueryContext(ctx, q, b.args...)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	var ans []models.CalendarEvent

	for rows.Next() {
		ev, err := rowToEvent(rows)
		if err != nil {
			return nil, err
		}

		ans = append(ans, ev)
	}

	return ans, rows.Err()
}

func rowToEvent(row scannable) (models.CalendarEvent, error) {
	var (
		ev           models.CalendarEvent
		attendees    string
		lastModified sql.NullTime
	)

	err := row.Scan(&ev.ID, &ev.IntegrationID, &ev.ProviderEventID, &ev.Title,
		&ev.Description, &ev.Location, &ev.StartTime, &ev.EndTime, &ev.IsAllDay,
		&ev.Timezone, &attendees, &ev.CreatedBy, &ev.EventStatus,
		&lastModified, &ev.SyncedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.CalendarEvent{}, models.ErrNotFound
		}

		return models.CalendarEvent{}, err
	}

	ev.LastModified = timeFromNull(lastModified)

	if err := json.Unmarshal([]byte(attendees), &ev.Attendees); err != nil {
		return models.CalendarEvent{}, err
	}

	return ev, nil
}

type emailMessageRepo struct {
	db *sql.DB
}

func NewEmailMessageRepository(db *sql.DB) models.EmailMessageRepository {
	return &emailMessageRepo{db: db}
}

func (repo *emailMessageRepo) Upsert(ctx context.Context, msg *models.EmailMessage) (bool, error) {
	recipients, err := json.Marshal(msg.Recipients)
	if err != nil {
		return false, err
	}

	labels, err := json.Marshal(msg.Labels)
	if err != nil {
		return false, err
	}

	tx, err := repo.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}

	defer tx.Rollback()

	var existingID string

	err = tx.QueryRowContext(ctx,
		`SELECT id FROM email_messages WHERE integration_id = $1 AND provider_message_id = $2 FOR UPDATE`,
		msg.IntegrationID, msg.ProviderMessageID).Scan(&existingID)

	created := false

	switch {
	case errors.Is(err, sql.ErrNoRows):
		created = true

		if msg.ID == "" {
			msg.ID = uuid.New().String()
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO email_messages (id, integration_id, provider_message_id, thread_id, subject, sender,
				recipients, body_text, body_html, received_at, is_read, is_important, labels,
				has_attachments, attachment_count, synced_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
			msg.ID, msg.IntegrationID, msg.ProviderMessageID, msg.ThreadID,
			msg.Subject, msg.Sender, string(recipients), msg.BodyText, msg.BodyHTML,
			nullTime(msg.ReceivedAt), msg.IsRead, msg.IsImportant, string(labels),
			msg.HasAttachments, msg.AttachmentCount, msg.SyncedAt)
	case err == nil:
		msg.ID = existingID

		_, err = tx.ExecContext(ctx,
			`UPDATE email_messages SET thread_id = $1, subject = $2, sender = $3, recipients = $4,
				body_text = $5, body_html = $6, received_at = $7, is_read = $8, is_important = $9,
				labels = $10, has_attachments = $11, attachment_count = $12, synced_at = $13
				WHERE id = $14`,
			msg.ThreadID, msg.Subject, msg.Sender, string(recipients), msg.BodyText,
			msg.BodyHTML, nullTime(msg.ReceivedAt), msg.IsRead, msg.IsImportant,
			string(labels), msg.HasAttachments, msg.AttachmentCount, msg.SyncedAt,
			existingID)
	}

	if err != nil {
		return false, err
	}

	return created, tx.Commit()
}

func (repo *emailMessageRepo) Get(ctx context.Context, id string) (models.EmailMessage, error) {
	const q = `SELECT id, integration_id, provider_message_id, thread_id, subject, sender,
		recipients, body_text, body_html, received_at, is_read, is_important, labels,
		has_attachments, attachment_count, synced_at
		FROM email_messages WHERE id = $1`

	return rowToEmail(repo.db.QueryRowContext(ctx, q, id))
}

func (repo *emailMessageRepo) Select(ctx context.Context, params models.EmailMessageQuery) ([]models.EmailMessage, error) {
	q := `SELECT m.id, m.integration_id, m.provider_message_id, m.thread_id, m.subject, m.sender,
		m.recipients, m.body_text, m.body_html, m.received_at, m.is_read, m.is_important, m.labels,
		m.has_attachments, m.attachment_count, m.synced_at
		FROM email_messages m JOIN integrations i ON i.id = m.integration_id`

	b := newQueryBuilder()

	if params.UserID != "" {
		b.where("i.user_id", params.UserID)
	}

	if params.Provider != "" {
		b.where("i.provider", params.Provider)
	}

	if params.IntegrationID != "" {
		b.where("m.integration_id", params.IntegrationID)
	}

	if params.IsRead != nil {
		b.where("m.is_read", *params.IsRead)
	}

	if params.IsImportant != nil {
		b.where("m.is_important", *params.IsImportant)
	}

	if params.Search != "" {
		b.whereSearch([]string{"m.subject", "m.sender", "m.body_text"}, params.Search)
	}

	q += b.clause() + " ORDER BY m.received_at DESC"

	if params.Limit > 0 {
		q += b.limit(params.Limit)
	}

	rows, err := repo.db.QueryContext(ctx, q, b.args...)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	var ans []models.EmailMessage

	for rows.Next() {
		msg, err := rowToEmail(rows)
		if err != nil {
			return nil, err
		}

		ans = append(ans, msg)
	}

	return ans, rows.Err()
}

func rowToEmail(row scannable) (models.EmailMessage, error) {
	var (
		msg        models.EmailMessage
		recipients string
		labels     string
		receivedAt sql.NullTime
	)

	err := row.Scan(&msg.ID, &msg.IntegrationID, &msg.ProviderMessageID, &msg.ThreadID,
		&msg.Subject, &msg.Sender, &recipients, &msg.BodyText, &msg.BodyHTML,
		&receivedAt, &msg.IsRead, &msg.IsImportant, &labels,
		&msg.HasAttachments, &msg.AttachmentCount, &msg.SyncedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.EmailMessage{}, models.ErrNotFound
		}

		return models.EmailMessage{}, err
	}

	msg.ReceivedAt = timeFromNull(receivedAt)

	if err := json.Unmarshal([]byte(recipients), &msg.Recipients); err != nil {
		return models.EmailMessage{}, err
	}

	if err := json.Unmarshal([]byte(labels), &msg.Labels); err != nil {
		return models.EmailMessage{}, err
	}

	return msg, nil
}
