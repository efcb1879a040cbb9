package service

import (
	"errors"
	"fmt"

	"github.com/fighterboy13/WhatsApp/internal/repo"
)

var (
	ErrInvalidRequest  = errors.New("invalid request")
	ErrSessionNotFound = errors.New("session not found")
	ErrTaskNotFound    = repo.ErrTaskNotFound
	ErrEngineClosed    = errors.New("bulk engine is shutting down")
)

// InitError reports a transport that could not be started for a session.
type InitError struct {
	SessionID string
	Err       error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("initialize session %s: %v", e.SessionID, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// SendError wraps a transport failure on the single-message path.
type SendError struct {
	ChatID string
	Err    error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send to %s: %v", e.ChatID, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
