package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/fighterboy13/WhatsApp/internal/model"
)

// Transport is the messaging capability behind a session.
type Transport interface {
	Initialize(ctx context.Context) error
	SendMessage(ctx context.Context, chatID, body string) error
	Destroy(ctx context.Context) error
	OnEvent(fn func(model.TransportEvent))
}

// PairingCoder is implemented by transports that obtain a real pairing code
// from the network during Initialize.
type PairingCoder interface {
	PairingCode() string
}

type TransportFactory func(sessionID, clientID string) (Transport, error)

type SessionLookup interface {
	Get(sessionID string) (Transport, bool)
}

type sessionEntry struct {
	raw  Transport
	send Transport
}

type Sessions struct {
	factory   TransportFactory
	perMinute int

	mu       sync.RWMutex
	sessions map[string]sessionEntry
}

func NewSessions(factory TransportFactory) *Sessions {
	return &Sessions{
		factory:  factory,
		sessions: make(map[string]sessionEntry),
	}
}

// WithThrottle caps sends per session across every caller sharing it.
func (s *Sessions) WithThrottle(perMinute int) *Sessions {
	s.perMinute = perMinute
	return s
}

func (s *Sessions) Create(ctx context.Context, phoneNumber string) (sessionID, pairingCode string, err error) {
	phoneNumber = strings.TrimSpace(phoneNumber)
	if phoneNumber == "" {
		return "", "", invalid("phone number is required")
	}

	clientID := fmt.Sprintf("client-%s-%s", phoneNumber, uuid.NewString())
	t, err := s.factory(phoneNumber, clientID)
	if err != nil {
		return "", "", &InitError{SessionID: phoneNumber, Err: err}
	}

	t.OnEvent(func(ev model.TransportEvent) {
		switch ev {
		case model.EventReady:
			slog.Info("client ready", "session", phoneNumber)
		case model.EventAuthenticated:
			slog.Info("client authenticated", "session", phoneNumber)
		case model.EventDisconnected:
			slog.Warn("client disconnected", "session", phoneNumber)
			s.removeIf(phoneNumber, t)
		}
	})

	if err := t.Initialize(ctx); err != nil {
		if derr := t.Destroy(context.WithoutCancel(ctx)); derr != nil {
			slog.Warn("destroy after failed init", "session", phoneNumber, "err", derr)
		}
		return "", "", &InitError{SessionID: phoneNumber, Err: err}
	}

	code := ""
	if pc, ok := t.(PairingCoder); ok {
		code = formatPairingCode(pc.PairingCode())
	}
	if code == "" {
		code = cosmeticPairingCode()
	}

	entry := sessionEntry{raw: t, send: t}
	if s.perMinute > 0 {
		entry.send = &throttled{
			Transport: t,
			limiter:   rate.NewLimiter(rate.Every(time.Minute/time.Duration(s.perMinute)), 1),
		}
	}

	s.mu.Lock()
	prev, replaced := s.sessions[phoneNumber]
	s.sessions[phoneNumber] = entry
	s.mu.Unlock()

	if replaced {
		slog.Info("replacing existing session", "session", phoneNumber)
		if err := prev.raw.Destroy(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("destroy replaced session", "session", phoneNumber, "err", err)
		}
	}

	slog.Info("session created", "session", phoneNumber, "client", clientID)
	return phoneNumber, code, nil
}

func (s *Sessions) Get(sessionID string) (Transport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return e.send, true
}

// Remove drops a session without tearing its transport down. It is safe to
// call for unknown ids.
func (s *Sessions) Remove(sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
}

func (s *Sessions) removeIf(sessionID string, t Transport) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.sessions[sessionID]; ok && e.raw == t {
		delete(s.sessions, sessionID)
		slog.Info("session removed", "session", sessionID)
	}
}

func (s *Sessions) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close destroys every registered transport. Individual failures are logged
// and collected; they never stop the remaining teardowns.
func (s *Sessions) Close(ctx context.Context) error {
	s.mu.Lock()
	all := s.sessions
	s.sessions = make(map[string]sessionEntry)
	s.mu.Unlock()

	var errs []error
	for id, e := range all {
		if err := e.raw.Destroy(ctx); err != nil {
			slog.Error("error closing session", "session", id, "err", err)
			errs = append(errs, fmt.Errorf("session %s: %w", id, err))
			continue
		}
		slog.Info("session closed", "session", id)
	}
	return errors.Join(errs...)
}

type throttled struct {
	Transport
	limiter *rate.Limiter
}

func (t *throttled) SendMessage(ctx context.Context, chatID, body string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		// Wait refuses up front when the delay would outlast the deadline.
		if _, ok := ctx.Deadline(); ok && ctx.Err() == nil {
			return fmt.Errorf("throttle: %w: %v", context.DeadlineExceeded, err)
		}
		return err
	}
	return t.Transport.SendMessage(ctx, chatID, body)
}

const pairingAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// cosmeticPairingCode is display-only and carries no secret.
func cosmeticPairingCode() string {
	b := make([]byte, 8)
	for i := range b {
		b[i] = pairingAlphabet[rand.IntN(len(pairingAlphabet))]
	}
	return formatPairingCode(string(b))
}

func formatPairingCode(code string) string {
	code = strings.ToUpper(strings.ReplaceAll(code, "-", ""))
	if len(code) != 8 {
		return ""
	}
	return code[:4] + "-" + code[4:]
}
