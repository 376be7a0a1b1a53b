package sqlite

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

const eventColumns = `id, integration_id, provider_event_id, title, description, location,
	start_time, end_time, is_all_day, timezone, attendees, created_by, event_status,
	last_modified, synced_at`

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
		`SELECT id FROM calendar_events WHERE integration_id = ? AND provider_event_id = ?`,
		event.IntegrationID, event.ProviderEventID).Scan(&existingID)

	created := false

	switch {
	case errors.Is(err, sql.ErrNoRows):
		created = true

		if event.ID == "" {
			event.ID = uuid.New().String()
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO calendar_events (`+`id, integration_id, provider_event_id, title, description, location,
				start_time, end_time, is_all_day, timezone, attendees, created_by, event_status,
				last_modified, synced_at`+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			event.ID, event.IntegrationID, event.ProviderEventID, event.Title,
			event.Description, event.Location, timeToUnix(event.StartTime),
			timeToUnix(event.EndTime), boolToInt(event.IsAllDay), event.Timezone,
			string(attendees), event.CreatedBy, event.EventStatus,
			timeToUnix(event.LastModified), timeToUnix(event.SyncedAt))
	case err == nil:
		event.ID = existingID

		_, err = tx.ExecContext(ctx,
			`UPDATE calendar_events SET title = ?, description = ?, location = ?,
				start_time = ?, end_time = ?, is_all_day = ?, timezone = ?, attendees = ?,
				created_by = ?, event_status = ?, last_modified = ?, synced_at = ?
				WHERE id = ?`,
			event.Title, event.Description, event.Location, timeToUnix(event.StartTime),
			timeToUnix(event.EndTime), boolToInt(event.IsAllDay), event.Timezone,
			string(attendees), event.CreatedBy, event.EventStatus,
			timeToUnix(event.LastModified), timeToUnix(event.SyncedAt), existingID)
	}

	if err != nil {
		return false, err
	}

	return created, tx.Commit()
}

func (repo *calendarEventRepo) Get(ctx context.Context, id string) (models.CalendarEvent, error) {
	q := `SELECT ` + eventColumns + ` FROM calendar_events WHERE id = ?`

	return rowToEvent(repo.db.QueryRowContext(ctx, q, id))
}

func (repo *calendarEventRepo) Select(ctx context.Context, params models.CalendarEventQuery) ([]models.CalendarEvent, error) {
	q := `SELECT ` + eventColumns + ` FROM calendar_events e`

	var (
		where []string
		args  []any
	)

	if params.UserID != "" || params.Provider != "" {
		q = `SELECT e.id, e.integration_id, e.provider_event_id, e.title, e.description, e.location,
			e.start_time, e.end_time, e.is_all_day, e.timezone, e.attendees, e.created_by, e.event_status,
			e.last_modified, e.synced_at
			FROM calendar_events e JOIN integrations i ON i.id = e.integration_id`

		if params.UserID != "" {
			where = append(where, "i.user_id = ?")
			args = append(args, params.UserID)
		}

		if params.Provider != "" {
			where = append(where, "i.provider = ?")
			args = append(args, params.Provider)
		}
	}

	if params.IntegrationID != "" {
		where = append(where, "e.integration_id = ?")
		args = append(args, params.IntegrationID)
	}

	if !params.From.IsZero() {
		where = append(where, "e.end_time >= ?")
		args = append(args, timeToUnix(params.From))
	}

	if !params.To.IsZero() {
		where = append(where, "e.start_time <= ?")
		args = append(args, timeToUnix(params.To))
	}

	if params.Search != "" {
		where = append(where, "(e.title LIKE ? OR e.description LIKE ?)")
		pattern := "%" + params.Search + "%"
		args = append(args, pattern, pattern)
	}

	q += whereClause(where) + " ORDER BY e.start_time"

	if params.Limit > 0 {
		q += " LIMIT ?"

		args = append(args, params.Limit)
	}

	rows, err := repo.db.QueryContext(ctx, q, args...)
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
		startTime    int64
		endTime      int64
		isAllDay     int64
		attendees    string
		lastModified int64
		syncedAt     int64
	)

	err := row.Scan(&ev.ID, &ev.IntegrationID, &ev.ProviderEventID, &ev.Title,
		&ev.Description, &ev.Location, &startTime, &endTime, &isAllDay,
		&ev.Timezone, &attendees, &ev.CreatedBy, &ev.EventStatus,
		&lastModified, &syncedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.CalendarEvent{}, models.ErrNotFound
		}

		return models.CalendarEvent{}, err
	}

	ev.StartTime = unixToTime(startTime)
	ev.EndTime = unixToTime(endTime)
	ev.IsAllDay = isAllDay != 0
	ev.LastModified = unixToTime(lastModified)
	ev.SyncedAt = unixToTime(syncedAt)

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

const emailColumns = `id, integration_id, provider_message_id, thread_id, subject, sender,
	recipients, body_text, body_html, received_at, is_read, is_important, labels,
	has_attachments, attachment_count, synced_at`

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
		`SELECT id FROM email_messages WHERE integration_id = ? AND provider_message_id = ?`,
		msg.IntegrationID, msg.ProviderMessageID).Scan(&existingID)

	created := false

	switch {
	case errors.Is(err, sql.ErrNoRows):
		created = true

		if msg.ID == "" {
			msg.ID = uuid.New().String()
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO email_messages (`+`id, integration_id, provider_message_id, thread_id, subject, sender,
				recipients, body_text, body_html, received_at, is_read, is_important, labels,
				has_attachments, attachment_count, synced_at`+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			msg.ID, msg.IntegrationID, msg.ProviderMessageID, msg.ThreadID,
			msg.Subject, msg.Sender, string(recipients), msg.BodyText, msg.BodyHTML,
			timeToUnix(msg.ReceivedAt), boolToInt(msg.IsRead), boolToInt(msg.IsImportant),
			string(labels), boolToInt(msg.HasAttachments), msg.AttachmentCount,
			timeToUnix(msg.SyncedAt))
	case err == nil:
		msg.ID = existingID

		_, err = tx.ExecContext(ctx,
			`UPDATE email_messages SET thread_id = ?, subject = ?, sender = ?, recipients = ?,
				body_text = ?, body_html = ?, received_at = ?, is_read = ?, is_important = ?,
				labels = ?, has_attachments = ?, attachment_count = ?, synced_at = ?
				WHERE id = ?`,
			msg.ThreadID, msg.Subject, msg.Sender, string(recipients), msg.BodyText,
			msg.BodyHTML, timeToUnix(msg.ReceivedAt), boolToInt(msg.IsRead),
			boolToInt(msg.IsImportant), string(labels), boolToInt(msg.HasAttachments),
			msg.AttachmentCount, timeToUnix(msg.SyncedAt), existingID)
	}

	if err != nil {
		return false, err
	}

	return created, tx.Commit()
}

func (repo *emailMessageRepo) Get(ctx context.Context, id string) (models.EmailMessage, error) {
	q := `SELECT ` + emailColumns + ` FROM email_messages WHERE id = ?`

	return rowToEmail(repo.db.QueryRowContext(ctx, q, id))
}

func (repo *emailMessageRepo) Select(ctx context.Context, params models.EmailMessageQuery) ([]models.EmailMessage, error) {
	q := `SELECT m.id, m.integration_id, m.provider_message_id, m.thread_id, m.subject, m.sender,
		m.recipients, m.body_text, m.body_html, m.received_at, m.is_read, m.is_important, m.labels,
		m.has_attachments, m.attachment_count, m.synced_at
		FROM email_messages m JOIN integrations i ON i.id = m.integration_id`

	var (
		where []string
		args  []any
	)

	if params.UserID != "" {
		where = append(where, "i.user_id = ?")
		args = append(args, params.UserID)
	}

	if params.Provider != "" {
		where = append(where, "i.provider = ?")
		args = append(args, params.Provider)
	}

	if params.IntegrationID != "" {
		where = append(where, "m.integration_id = ?")
		args = append(args, params.IntegrationID)
	}

	if params.IsRead != nil {
		where = append(where, "m.is_read = ?")
		args = append(args, boolToInt(*params.IsRead))
	}

	if params.IsImportant != nil {
		where = append(where, "m.is_important = ?")
		args = append(args, boolToInt(*params.IsImportant))
	}

	if params.Search != "" {
		where = append(where, "(m.subject LIKE ? OR m.sender LIKE ? OR m.body_text LIKE ?)")
		pattern := "%" + params.Search + "%"
		args = append(args, pattern, pattern, pattern)
	}

	q += whereClause(where) + " ORDER BY m.received_at DESC"

	if params.Limit > 0 {
		q += " LIMIT ?"

		args = append(args, params.Limit)
	}

	rows, err := repo.db.QueryContext(ctx, q, args...)
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
		msg         models.EmailMessage
		recipients  string
		receivedAt  int64
		isRead      int64
		isImportant int64
		labels      string
		attachments int64
		syncedAt    int64
	)

	err := row.Scan(&msg.ID, &msg.IntegrationID, &msg.ProviderMessageID, &msg.ThreadID,
		&msg.Subject, &msg.Sender, &recipients, &msg.BodyText, &msg.BodyHTML,
		&receivedAt, &isRead, &isImportant, &labels, &attachments,
		&msg.AttachmentCount, &syncedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.EmailMessage{}, models.ErrNotFound
		}

		return models.EmailMessage{}, err
	}

	msg.ReceivedAt = unixToTime(receivedAt)
	msg.IsRead = isRead != 0
	msg.IsImportant = isImportant != 0
	msg.HasAttachments = attachments != 0
	msg.SyncedAt = unixToTime(syncedAt)

	if err := json.Unmarshal([]byte(recipients), &msg.Recipients); err != nil {
		return models.EmailMessage{}, err
	}

	if err := json.Unmarshal([]byte(labels), &msg.Labels); err != nil {
		return models.EmailMessage{}, err
	}

	return msg, nil
}
