package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/fighterboy13/WhatsApp/internal/model"
)

// Sender delivers one message synchronously on behalf of a session.
type Sender struct {
	sessions SessionLookup
	timeout  time.Duration
}

func NewSender(sessions SessionLookup, timeout time.Duration) *Sender {
	return &Sender{
		sessions: sessions,
		timeout:  timeout,
	}
}

func (s *Sender) Send(ctx context.Context, sessionID, number, body string) (chatID string, err error) {
	if strings.TrimSpace(sessionID) == "" || strings.TrimSpace(number) == "" || body == "" {
		return "", invalid("sessionId, number and message are required")
	}

	t, ok := s.sessions.Get(sessionID)
	if !ok {
		return "", ErrSessionNotFound
	}

	chatID = model.ChatID(number)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if err := t.SendMessage(ctx, chatID, body); err != nil {
		slog.Warn("send failed", "session", sessionID, "to", chatID, "err", err)
		return "", &SendError{ChatID: chatID, Err: err}
	}

	slog.Info("message sent", "session", sessionID, "to", chatID)
	return chatID, nil
}
