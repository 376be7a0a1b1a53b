package chatbot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/monahq/mona/models"
)

const (
	defaultHistoryLimit = 20
	contextEventLimit   = 10
	contextEmailLimit   = 5
)

// Completer produces a reply for a conversation.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// Service answers user messages with the synced calendar and inbox as
// grounding context.
type Service struct {
	completer    Completer
	history      models.ChatMessageRepository
	events       models.CalendarEventRepository
	emails       models.EmailMessageRepository
	logger       *zap.Logger
	historyLimit int
	now          func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithHistoryLimit bounds how many stored messages feed back into the
// prompt per turn.
func WithHistoryLimit(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}

func NewService(completer Completer, history models.ChatMessageRepository, events models.CalendarEventRepository, emails models.EmailMessageRepository, logger *zap.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		completer:    completer,
		history:      history,
		events:       events,
		emails:       emails,
		logger:       logger,
		historyLimit: defaultHistoryLimit,
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Chat handles one user turn: it assembles the prompt from the session
// history and the user's synced data, asks the upstream model, and
// persists both sides of the exchange.
func (s *Service) Chat(ctx context.Context, userID, sessionID, text string) (string, error) {
	messages := []Message{{Role: "system", Content: s.systemPrompt(ctx, userID)}}

	history, err := s.history.History(ctx, sessionID, s.historyLimit)
	if err != nil {
		return "", err
	}

	for _, msg := range history {
		messages = append(messages, Message{Role: msg.Role, Content: msg.Content})
	}

	messages = append(messages, Message{Role: "user", Content: text})

	reply, err := s.completer.Complete(ctx, messages)
	if err != nil {
		return "", err
	}

	for _, msg := range []models.ChatMessage{
		{SessionID: sessionID, UserID: userID, Role: "user", Content: text},
		{SessionID: sessionID, UserID: userID, Role: "assistant", Content: reply},
	} {
		msg := msg
		if err := s.history.Append(ctx, &msg); err != nil {
			s.logger.Error("failed to persist chat message", zap.Error(err),
				zap.String("session_id", sessionID))
		}
	}

	return reply, nil
}

// systemPrompt grounds the assistant in the user's synced data. Context
// fetch failures degrade to a plain prompt instead of failing the chat.
func (s *Service) systemPrompt(ctx context.Context, userID string) string {
	var b strings.Builder

	b.WriteString("You are Mona, a personal assistant. ")
	b.WriteString("Answer briefly and use the calendar and inbox context below when relevant.\n")

	now := s.now()

	events, err := s.events.Select(ctx, models.CalendarEventQuery{
		UserID: userID,
		From:   now,
		To:     now.AddDate(0, 0, 7),
		Limit:  contextEventLimit,
	})
	if err != nil {
		s.logger.Warn("could not load calendar context", zap.Error(err))
	}

	if len(events) > 0 {
		b.WriteString("\nUpcoming events:\n")

		for _, ev := range events {
			fmt.Fprintf(&b, "- %s at %s", ev.Title, ev.StartTime.Format("Mon Jan 2 15:04"))

			if ev.Location != "" {
				fmt.Fprintf(&b, " (%s)", ev.Location)
			}

			b.WriteString("\n")
		}
	}

	unread := false

	emails, err := s.emails.Select(ctx, models.EmailMessageQuery{
		UserID: userID,
		IsRead: &unread,
		Limit:  contextEmailLimit,
	})
	if err != nil {
		s.logger.Warn("could not load inbox context", zap.Error(err))
	}

	if len(emails) > 0 {
		b.WriteString("\nUnread emails:\n")

		for _, msg := range emails {
			fmt.Fprintf(&b, "- %q from %s\n", msg.Subject, msg.Sender)
		}
	}

	return b.String()
}
