// Package sqlite implements the repository interfaces on an embedded
// sqlite database. It is the default storage for single-node deployments;
// the postgres package implements the same interfaces for shared ones.
package sqlite

import (
	"database/sql"
	"strings"
	"time"

	_ "modernc.org/sqlite" // sqlite driver
)

// Open initializes a sqlite database at path and creates the schema.
// Use ":memory:" for an ephemeral database.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return nil, err
		}
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return db, createSchema(db)
}

func createSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			created_at INT NOT NULL,
			updated_at INT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS integrations (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			provider TEXT NOT NULL,
			status TEXT NOT NULL,
			access_token TEXT NOT NULL,
			refresh_token TEXT NOT NULL DEFAULT '',
			token_expires_at INT NOT NULL DEFAULT 0,
			provider_user_id TEXT NOT NULL DEFAULT '',
			provider_email TEXT NOT NULL DEFAULT '',
			last_sync INT NOT NULL DEFAULT 0,
			sync_enabled INT NOT NULL DEFAULT 1,
			created_at INT NOT NULL,
			updated_at INT NOT NULL,
			UNIQUE (user_id, provider)
		)`,
		`CREATE TABLE IF NOT EXISTS calendar_events (
			id TEXT PRIMARY KEY,
			integration_id TEXT NOT NULL REFERENCES integrations(id) ON DELETE CASCADE,
			provider_event_id TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			location TEXT NOT NULL DEFAULT '',
			start_time INT NOT NULL,
			end_time INT NOT NULL,
			is_all_day INT NOT NULL DEFAULT 0,
			timezone TEXT NOT NULL DEFAULT '',
			attendees TEXT NOT NULL DEFAULT '[]',
			created_by TEXT NOT NULL DEFAULT '',
			event_status TEXT NOT NULL DEFAULT '',
			last_modified INT NOT NULL DEFAULT 0,
			synced_at INT NOT NULL,
			UNIQUE (integration_id, provider_event_id)
		)`,
		`CREATE TABLE IF NOT EXISTS email_messages (
			id TEXT PRIMARY KEY,
			integration_id TEXT NOT NULL REFERENCES integrations(id) ON DELETE CASCADE,
			provider_message_id TEXT NOT NULL,
			thread_id TEXT NOT NULL DEFAULT '',
			subject TEXT NOT NULL DEFAULT '',
			sender TEXT NOT NULL DEFAULT '',
			recipients TEXT NOT NULL DEFAULT '[]',
			body_text TEXT NOT NULL DEFAULT '',
			body_html TEXT NOT NULL DEFAULT '',
			received_at INT NOT NULL DEFAULT 0,
			is_read INT NOT NULL DEFAULT 0,
			is_important INT NOT NULL DEFAULT 0,
			labels TEXT NOT NULL DEFAULT '[]',
			has_attachments INT NOT NULL DEFAULT 0,
			attachment_count INT NOT NULL DEFAULT 0,
			synced_at INT NOT NULL,
			UNIQUE (integration_id, provider_message_id)
		)`,
		`CREATE TABLE IF NOT EXISTS sync_runs (
			id TEXT PRIMARY KEY,
			integration_id TEXT NOT NULL REFERENCES integrations(id) ON DELETE CASCADE,
			resource_type TEXT NOT NULL,
			status TEXT NOT NULL,
			items_processed INT NOT NULL DEFAULT 0,
			items_created INT NOT NULL DEFAULT 0,
			items_updated INT NOT NULL DEFAULT 0,
			items_deleted INT NOT NULL DEFAULT 0,
			items_failed INT NOT NULL DEFAULT 0,
			error_message TEXT NOT NULL DEFAULT '',
			started_at INT NOT NULL,
			completed_at INT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at INT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_integrations_user ON integrations(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_integration ON calendar_events(integration_id)`,
		`CREATE INDEX IF NOT EXISTS idx_emails_integration ON email_messages(integration_id)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_integration ON sync_runs(integration_id, started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_session ON chat_messages(session_id, created_at)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}

	return " WHERE " + strings.Join(conds, " AND ")
}

// Timestamps are stored as unix seconds; 0 means the zero time.
func timeToUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}

	return t.Unix()
}

func unixToTime(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}

	return time.Unix(v, 0).UTC()
}
