package sqlite

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/monahq/mona/models"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := Open(":memory:")
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })

	return db
}

func seedIntegration(t *testing.T, db *sql.DB, userID string, p models.Provider) models.Integration {
	t.Helper()

	repo := NewIntegrationRepository(db)

	integ := models.Integration{
		ID:             "integ-" + userID + "-" + string(p),
		UserID:         userID,
		Provider:       p,
		Status:         models.StatusConnected,
		AccessToken:    "encrypted-access",
		RefreshToken:   "encrypted-refresh",
		TokenExpiresAt: time.Now().Add(time.Hour).UTC().Truncate(time.Second),
		SyncEnabled:    true,
	}

	require.NoError(t, repo.Save(context.Background(), &integ))

	return integ
}

func TestIntegrationRepositoryRoundtrip(t *testing.T) {
	db := testDB(t)
	repo := NewIntegrationRepository(db)

	integ := seedIntegration(t, db, "user-1", models.ProviderGoogleCalendar)

	got, err := repo.Get(context.Background(), integ.ID)
	require.NoError(t, err)
	require.Equal(t, integ.UserID, got.UserID)
	require.Equal(t, integ.Provider, got.Provider)
	require.Equal(t, "encrypted-access", got.AccessToken)
	require.True(t, got.SyncEnabled)
	require.True(t, integ.TokenExpiresAt.Equal(got.TokenExpiresAt))
	require.True(t, got.LastSync.IsZero())
}

func TestIntegrationRepositoryGetMissing(t *testing.T) {
	db := testDB(t)
	repo := NewIntegrationRepository(db)

	_, err := repo.Get(context.Background(), "missing")
	require.ErrorIs(t, err, models.ErrNotFound)

	err = repo.Update(context.Background(), &models.Integration{ID: "missing"})
	require.ErrorIs(t, err, models.ErrNotFound)

	err = repo.Delete(context.Background(), "missing")
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestIntegrationRepositorySaveUpsertsOnUserProvider(t *testing.T) {
	db := testDB(t)
	repo := NewIntegrationRepository(db)

	first := seedIntegration(t, db, "user-1", models.ProviderSlack)

	second := models.Integration{
		ID:          "replacement-id",
		UserID:      "user-1",
		Provider:    models.ProviderSlack,
		Status:      models.StatusConnected,
		AccessToken: "new-access",
		SyncEnabled: true,
	}

	require.NoError(t, repo.Save(context.Background(), &second))

	// The row keeps its original id.
	require.Equal(t, first.ID, second.ID)

	list, err := repo.ListByUser(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "new-access", list[0].AccessToken)
}

func TestIntegrationRepositorySetLastSyncTouchesNothingElse(t *testing.T) {
	db := testDB(t)
	repo := NewIntegrationRepository(db)

	integ := seedIntegration(t, db, "user-1", models.ProviderGoogleCalendar)

	// Simulate a concurrent refresh rotating the stored tokens.
	integ.AccessToken = "rotated-access"
	integ.RefreshToken = "rotated-refresh"
	require.NoError(t, repo.Update(context.Background(), &integ))

	at := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.SetLastSync(context.Background(), integ.ID, at))

	got, err := repo.Get(context.Background(), integ.ID)
	require.NoError(t, err)
	require.True(t, at.Equal(got.LastSync))
	require.True(t, at.Equal(got.UpdatedAt))
	require.Equal(t, "rotated-access", got.AccessToken)
	require.Equal(t, "rotated-refresh", got.RefreshToken)
	require.Equal(t, models.StatusConnected, got.Status)
	require.True(t, got.SyncEnabled)

	err = repo.SetLastSync(context.Background(), "missing", at)
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestIntegrationRepositoryListSyncEnabled(t *testing.T) {
	db := testDB(t)
	repo := NewIntegrationRepository(db)

	enabled := seedIntegration(t, db, "user-1", models.ProviderGoogleCalendar)
	disabled := seedIntegration(t, db, "user-1", models.ProviderGoogleGmail)
	disconnected := seedIntegration(t, db, "user-2", models.ProviderSlack)

	disabled.SyncEnabled = false
	require.NoError(t, repo.Update(context.Background(), &disabled))

	disconnected.Status = models.StatusDisconnected
	require.NoError(t, repo.Update(context.Background(), &disconnected))

	list, err := repo.ListSyncEnabled(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, enabled.ID, list[0].ID)
}

func TestCalendarEventUpsert(t *testing.T) {
	db := testDB(t)
	integ := seedIntegration(t, db, "user-1", models.ProviderGoogleCalendar)
	repo := NewCalendarEventRepository(db)

	start := time.Now().UTC().Truncate(time.Second)

	event := models.CalendarEvent{
		IntegrationID:   integ.ID,
		ProviderEventID: "ev-1",
		Title:           "Standup",
		StartTime:       start,
		EndTime:         start.Add(time.Hour),
		Attendees: []models.Attendee{
			{Email: "a@b.example", ResponseStatus: "accepted"},
		},
		EventStatus: "confirmed",
		SyncedAt:    start,
	}

	created, err := repo.Upsert(context.Background(), &event)
	require.NoError(t, err)
	require.True(t, created)
	require.NotEmpty(t, event.ID)

	// Same provider id again: update in place, no duplicate.
	update := event
	update.ID = ""
	update.Title = "Standup (moved)"

	created, err = repo.Upsert(context.Background(), &update)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, event.ID, update.ID)

	got, err := repo.Get(context.Background(), event.ID)
	require.NoError(t, err)
	require.Equal(t, "Standup (moved)", got.Title)
	require.Len(t, got.Attendees, 1)
	require.Equal(t, "a@b.example", got.Attendees[0].Email)
}

func TestCalendarEventSelectFilters(t *testing.T) {
	db := testDB(t)
	integ := seedIntegration(t, db, "user-1", models.ProviderGoogleCalendar)
	other := seedIntegration(t, db, "user-2", models.ProviderGoogleCalendar)
	repo := NewCalendarEventRepository(db)

	base := time.Now().UTC().Truncate(time.Second)

	for i, tc := range []struct {
		integ models.Integration
		id    string
		title string
		start time.Time
	}{
		{integ, "ev-1", "Standup", base},
		{integ, "ev-2", "Planning", base.Add(48 * time.Hour)},
		{other, "ev-3", "Standup", base},
	} {
		event := models.CalendarEvent{
			IntegrationID:   tc.integ.ID,
			ProviderEventID: tc.id,
			Title:           tc.title,
			StartTime:       tc.start,
			EndTime:         tc.start.Add(time.Hour),
			SyncedAt:        base,
		}

		_, err := repo.Upsert(context.Background(), &event)
		require.NoError(t, err, "event %d", i)
	}

	byUser, err := repo.Select(context.Background(), models.CalendarEventQuery{UserID: "user-1"})
	require.NoError(t, err)
	require.Len(t, byUser, 2)

	windowed, err := repo.Select(context.Background(), models.CalendarEventQuery{
		UserID: "user-1",
		From:   base.Add(-time.Hour),
		To:     base.Add(2 * time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, windowed, 1)
	require.Equal(t, "Standup", windowed[0].Title)

	searched, err := repo.Select(context.Background(), models.CalendarEventQuery{Search: "plann"})
	require.NoError(t, err)
	require.Len(t, searched, 1)
	require.Equal(t, "Planning", searched[0].Title)
}

func TestEmailMessageUpsertAndSelect(t *testing.T) {
	db := testDB(t)
	integ := seedIntegration(t, db, "user-1", models.ProviderGoogleGmail)
	repo := NewEmailMessageRepository(db)

	now := time.Now().UTC().Truncate(time.Second)

	msg := models.EmailMessage{
		IntegrationID:     integ.ID,
		ProviderMessageID: "msg-1",
		Subject:           "Quarterly numbers",
		Sender:            "cfo@corp.example",
		Recipients:        []string{"me@corp.example"},
		BodyText:          "see attached",
		ReceivedAt:        now,
		IsRead:            false,
		Labels:            []string{"INBOX"},
		SyncedAt:          now,
	}

	created, err := repo.Upsert(context.Background(), &msg)
	require.NoError(t, err)
	require.True(t, created)

	msg.IsRead = true

	created, err = repo.Upsert(context.Background(), &msg)
	require.NoError(t, err)
	require.False(t, created)

	unread := false
	list, err := repo.Select(context.Background(), models.EmailMessageQuery{UserID: "user-1", IsRead: &unread})
	require.NoError(t, err)
	require.Empty(t, list)

	read := true
	list, err = repo.Select(context.Background(), models.EmailMessageQuery{UserID: "user-1", IsRead: &read})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, []string{"me@corp.example"}, list[0].Recipients)
	require.Equal(t, []string{"INBOX"}, list[0].Labels)
}

func TestSyncRunFinalizeIsOneShot(t *testing.T) {
	db := testDB(t)
	integ := seedIntegration(t, db, "user-1", models.ProviderGoogleCalendar)
	repo := NewSyncRunRepository(db)

	run := models.SyncRun{
		ID:            "run-1",
		IntegrationID: integ.ID,
		ResourceType:  models.ResourceCalendar,
		Status:        models.SyncStarted,
		StartedAt:     time.Now().UTC().Truncate(time.Second),
	}

	require.NoError(t, repo.Create(context.Background(), &run))

	run.Status = models.SyncCompleted
	run.ItemsProcessed = 3
	run.ItemsCreated = 3
	run.CompletedAt = time.Now().UTC().Truncate(time.Second)

	require.NoError(t, repo.Finalize(context.Background(), &run))

	got, err := repo.Get(context.Background(), run.ID)
	require.NoError(t, err)
	require.Equal(t, models.SyncCompleted, got.Status)
	require.Equal(t, 3, got.ItemsCreated)

	// Terminal runs are immutable.
	run.Status = models.SyncFailed
	require.ErrorIs(t, repo.Finalize(context.Background(), &run), models.ErrNotFound)

	// Finalizing into started is rejected outright.
	run.Status = models.SyncStarted
	require.Error(t, repo.Finalize(context.Background(), &run))
}

func TestSyncRunSelectByUser(t *testing.T) {
	db := testDB(t)
	integ := seedIntegration(t, db, "user-1", models.ProviderGoogleCalendar)
	other := seedIntegration(t, db, "user-2", models.ProviderGoogleCalendar)
	repo := NewSyncRunRepository(db)

	for i, in := range []models.Integration{integ, other} {
		run := models.SyncRun{
			ID:            "run-" + in.UserID,
			IntegrationID: in.ID,
			ResourceType:  models.ResourceCalendar,
			Status:        models.SyncStarted,
			StartedAt:     time.Now().Add(time.Duration(i) * time.Second).UTC(),
		}
		require.NoError(t, repo.Create(context.Background(), &run))
	}

	runs, err := repo.Select(context.Background(), models.SyncRunQuery{UserID: "user-1"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, integ.ID, runs[0].IntegrationID)
}

func TestDeleteIntegrationCascades(t *testing.T) {
	db := testDB(t)
	integ := seedIntegration(t, db, "user-1", models.ProviderGoogleCalendar)

	events := NewCalendarEventRepository(db)
	runs := NewSyncRunRepository(db)

	now := time.Now().UTC().Truncate(time.Second)

	event := models.CalendarEvent{
		IntegrationID:   integ.ID,
		ProviderEventID: "ev-1",
		Title:           "Standup",
		StartTime:       now,
		EndTime:         now.Add(time.Hour),
		SyncedAt:        now,
	}

	_, err := events.Upsert(context.Background(), &event)
	require.NoError(t, err)

	run := models.SyncRun{
		ID:            "run-1",
		IntegrationID: integ.ID,
		ResourceType:  models.ResourceCalendar,
		Status:        models.SyncStarted,
		StartedAt:     now,
	}
	require.NoError(t, runs.Create(context.Background(), &run))

	require.NoError(t, NewIntegrationRepository(db).Delete(context.Background(), integ.ID))

	_, err = events.Get(context.Background(), event.ID)
	require.ErrorIs(t, err, models.ErrNotFound)

	_, err = runs.Get(context.Background(), run.ID)
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestUserRepository(t *testing.T) {
	db := testDB(t)
	repo := NewUserRepository(db)

	user := models.User{ID: "user-1", Email: "me@corp.example"}
	require.NoError(t, repo.Create(context.Background(), &user))

	got, err := repo.GetByEmail(context.Background(), "me@corp.example")
	require.NoError(t, err)
	require.Equal(t, "user-1", got.ID)

	_, err = repo.GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestChatMessageHistory(t *testing.T) {
	db := testDB(t)
	repo := NewChatMessageRepository(db)

	base := time.Now().UTC()

	for i, content := range []string{"hi", "hello, how can I help?", "what is on my calendar?"} {
		msg := models.ChatMessage{
			SessionID: "session-1",
			UserID:    "user-1",
			Role:      "user",
			Content:   content,
			CreatedAt: base.Add(time.Duration(i) * time.Millisecond),
		}
		require.NoError(t, repo.Append(context.Background(), &msg))
	}

	other := models.ChatMessage{SessionID: "session-2", UserID: "user-1", Role: "user", Content: "unrelated"}
	require.NoError(t, repo.Append(context.Background(), &other))

	history, err := repo.History(context.Background(), "session-1", 2)
	require.NoError(t, err)
	require.Len(t, history, 2)

	// Most recent two, oldest first.
	require.Equal(t, "hello, how can I help?", history[0].Content)
	require.Equal(t, "what is on my calendar?", history[1].Content)
}
