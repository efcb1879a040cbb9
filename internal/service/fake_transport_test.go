package service_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fighterboy13/WhatsApp/internal/model"
	"github.com/fighterboy13/WhatsApp/internal/service"
)

var errBoom = errors.New("boom")

// fakeTransport records every send. beforeSend, when set, runs at the
// start of each SendMessage call with the 0-based call index.
type fakeTransport struct {
	mu         sync.Mutex
	chats      []string
	fail       map[string]error
	initErr    error
	destroyErr error
	destroyed  int
	code       string
	handler    func(model.TransportEvent)
	beforeSend func(ctx context.Context, idx int) error
}

func (f *fakeTransport) Initialize(ctx context.Context) error {
	return f.initErr
}

func (f *fakeTransport) SendMessage(ctx context.Context, chatID, body string) error {
	f.mu.Lock()
	idx := len(f.chats)
	f.chats = append(f.chats, chatID)
	hook := f.beforeSend
	err := f.fail[chatID]
	f.mu.Unlock()

	if hook != nil {
		if herr := hook(ctx, idx); herr != nil {
			return herr
		}
	}
	return err
}

func (f *fakeTransport) Destroy(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed++
	return f.destroyErr
}

func (f *fakeTransport) OnEvent(fn func(model.TransportEvent)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = fn
}

func (f *fakeTransport) emit(ev model.TransportEvent) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

func (f *fakeTransport) PairingCode() string { return f.code }

func (f *fakeTransport) sentTo() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.chats...)
}

func (f *fakeTransport) destroyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.destroyed
}

type staticSessions map[string]service.Transport

func (s staticSessions) Get(id string) (service.Transport, bool) {
	t, ok := s[id]
	return t, ok
}

type fataler interface {
	Helper()
	Fatalf(format string, args ...any)
}

func waitTerminal(t fataler, e *service.BulkEngine, id string, timeout time.Duration) model.Task {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		task, err := e.Task(id)
		if err != nil {
			t.Fatalf("Task(%s) error: %v", id, err)
		}
		if task.Terminal() {
			return task
		}
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for task %s to finish, last=%+v", id, task)
		}
		time.Sleep(2 * time.Millisecond)
	}
}
