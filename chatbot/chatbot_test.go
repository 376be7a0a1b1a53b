package chatbot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/monahq/mona/models"
)

func TestClientComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req completionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "test-model", req.Model)
		require.Len(t, req.Messages, 2)

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "hello there"}},
			},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/v1", "test-key", "test-model")

	reply, err := client.Complete(context.Background(), []Message{
		{Role: "system", Content: "you are a test"},
		{Role: "user", Content: "hi"},
	})
	require.NoError(t, err)
	require.Equal(t, "hello there", reply)
}

func TestClientCompleteUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "rate limited"},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "k", "m")

	_, err := client.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}})
	require.ErrorContains(t, err, "rate limited")
}

type fakeCompleter struct {
	got   []Message
	reply string
}

func (f *fakeCompleter) Complete(_ context.Context, messages []Message) (string, error) {
	f.got = messages

	return f.reply, nil
}

type memChat struct {
	mu    sync.Mutex
	items []models.ChatMessage
}

func (m *memChat) Append(_ context.Context, msg *models.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items = append(m.items, *msg)

	return nil
}

func (m *memChat) History(_ context.Context, sessionID string, limit int) ([]models.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.ChatMessage

	for _, msg := range m.items {
		if msg.SessionID == sessionID {
			out = append(out, msg)
		}
	}

	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}

	return out, nil
}

type staticEvents struct{ events []models.CalendarEvent }

func (s *staticEvents) Upsert(context.Context, *models.CalendarEvent) (bool, error) {
	return false, nil
}

func (s *staticEvents) Select(context.Context, models.CalendarEventQuery) ([]models.CalendarEvent, error) {
	return s.events, nil
}

func (s *staticEvents) Get(context.Context, string) (models.CalendarEvent, error) {
	return models.CalendarEvent{}, models.ErrNotFound
}

type staticEmails struct{ emails []models.EmailMessage }

func (s *staticEmails) Upsert(context.Context, *models.EmailMessage) (bool, error) {
	return false, nil
}

func (s *staticEmails) Select(context.Context, models.EmailMessageQuery) ([]models.EmailMessage, error) {
	return s.emails, nil
}

func (s *staticEmails) Get(context.Context, string) (models.EmailMessage, error) {
	return models.EmailMessage{}, models.ErrNotFound
}

func TestServiceChatGroundsPromptAndPersists(t *testing.T) {
	completer := &fakeCompleter{reply: "You have a standup at 9."}
	history := &memChat{}

	events := &staticEvents{events: []models.CalendarEvent{
		{Title: "Standup", StartTime: time.Now().Add(time.Hour), Location: "Zoom"},
	}}
	emails := &staticEmails{emails: []models.EmailMessage{
		{Subject: "Q3 numbers", Sender: "cfo@corp.example"},
	}}

	svc := NewService(completer, history, events, emails, zap.NewNop())

	reply, err := svc.Chat(context.Background(), "user-1", "session-1", "what is my next meeting?")
	require.NoError(t, err)
	require.Equal(t, "You have a standup at 9.", reply)

	// System prompt carries the synced context.
	require.Equal(t, "system", completer.got[0].Role)
	require.Contains(t, completer.got[0].Content, "Standup")
	require.Contains(t, completer.got[0].Content, "Q3 numbers")

	// Both turns are persisted to the session.
	stored, err := history.History(context.Background(), "session-1", 0)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	require.Equal(t, "user", stored[0].Role)
	require.Equal(t, "assistant", stored[1].Role)
}

func TestServiceChatSessionsAreIsolated(t *testing.T) {
	completer := &fakeCompleter{reply: "ok"}
	history := &memChat{}
	svc := NewService(completer, history, &staticEvents{}, &staticEmails{}, zap.NewNop())

	_, err := svc.Chat(context.Background(), "user-1", "session-a", "first in a")
	require.NoError(t, err)

	_, err = svc.Chat(context.Background(), "user-1", "session-b", "first in b")
	require.NoError(t, err)

	// The second call in session-a sees only session-a history: the
	// system prompt plus two prior turns plus the new user message.
	_, err = svc.Chat(context.Background(), "user-1", "session-a", "second in a")
	require.NoError(t, err)
	require.Len(t, completer.got, 4)
	require.Equal(t, "first in a", completer.got[1].Content)
}
