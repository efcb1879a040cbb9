package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fighterboy13/WhatsApp/internal/model"
	"github.com/fighterboy13/WhatsApp/internal/repo"
)

// MaxBulkDelay bounds the pause between two recipients of a bulk task.
const MaxBulkDelay = 24 * time.Hour

type BulkRequest struct {
	SessionID  string
	Recipients []string
	Body       string
	Delay      time.Duration
}

// BulkEngine runs bulk-send tasks. Each task is a goroutine that walks its
// recipients in order and is the only writer of the task's counters.
type BulkEngine struct {
	sessions    SessionLookup
	tasks       repo.TaskRepository
	sendTimeout time.Duration
	newTaskID   func() string

	onSent   func(ctx context.Context, taskID, chatID string) error
	onFailed func(ctx context.Context, taskID, chatID, reason string) error

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	closed  bool
	active  map[string]struct{}
	running sync.WaitGroup
}

func NewBulkEngine(sessions SessionLookup, tasks repo.TaskRepository, sendTimeout time.Duration) *BulkEngine {
	ctx, cancel := context.WithCancel(context.Background())
	return &BulkEngine{
		sessions:    sessions,
		tasks:       tasks,
		sendTimeout: sendTimeout,
		newTaskID:   newTaskID,
		ctx:         ctx,
		cancel:      cancel,
		active:      make(map[string]struct{}),
	}
}

func (e *BulkEngine) WithHooks(
	onSent func(ctx context.Context, taskID, chatID string) error,
	onFailed func(ctx context.Context, taskID, chatID, reason string) error,
) *BulkEngine {
	e.onSent = onSent
	e.onFailed = onFailed
	return e
}

// Start validates the request, registers the task and launches its loop.
// The returned snapshot is the task as registered, before any send.
func (e *BulkEngine) Start(req BulkRequest) (model.Task, error) {
	if strings.TrimSpace(req.SessionID) == "" || len(req.Recipients) == 0 || req.Body == "" {
		return model.Task{}, invalid("sessionId, numbers and message are required")
	}
	if req.Delay < 0 {
		return model.Task{}, invalid("delay must not be negative")
	}
	if req.Delay > MaxBulkDelay {
		return model.Task{}, invalid("delay must not exceed %s", MaxBulkDelay)
	}

	t, ok := e.sessions.Get(req.SessionID)
	if !ok {
		return model.Task{}, ErrSessionNotFound
	}

	recipients := append([]string(nil), req.Recipients...)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return model.Task{}, ErrEngineClosed
	}

	task := model.Task{
		SessionID: req.SessionID,
		Status:    model.TaskRunning,
		Total:     len(recipients),
		Logs:      []string{},
	}

	var err error
	for attempt := 0; attempt < 3; attempt++ {
		task.ID = e.newTaskID()
		if err = e.tasks.Register(task); !errors.Is(err, repo.ErrTaskExists) {
			break
		}
	}
	if err != nil {
		return model.Task{}, fmt.Errorf("register task: %w", err)
	}

	stop, _ := e.tasks.Stopped(task.ID)
	e.active[task.ID] = struct{}{}
	e.running.Add(1)

	go e.run(task.ID, t, stop, recipients, req.Body, req.Delay)

	slog.Info("bulk task started",
		"task", task.ID,
		"session", req.SessionID,
		"total", task.Total,
		"delay", req.Delay.String(),
	)

	registered, _ := e.tasks.Get(task.ID)
	return registered, nil
}

func (e *BulkEngine) Stop(taskID string) error {
	if err := e.tasks.RequestStop(taskID); err != nil {
		return err
	}
	slog.Info("bulk task stop requested", "task", taskID)
	return nil
}

func (e *BulkEngine) Task(taskID string) (model.Task, error) {
	task, ok := e.tasks.Get(taskID)
	if !ok {
		return model.Task{}, ErrTaskNotFound
	}
	return task, nil
}

func (e *BulkEngine) RunningCount() int {
	return e.tasks.CountRunning()
}

// Shutdown stops accepting tasks, asks every running loop to stop and waits
// for them. When ctx expires first, in-flight sends are cancelled.
func (e *BulkEngine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	ids := make([]string, 0, len(e.active))
	for id := range e.active {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	for _, id := range ids {
		if err := e.tasks.RequestStop(id); err != nil && !errors.Is(err, repo.ErrTaskNotFound) {
			slog.Warn("stop task on shutdown", "task", id, "err", err)
		}
	}

	done := make(chan struct{})
	go func() {
		e.running.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.cancel()
		return nil
	case <-ctx.Done():
		e.cancel()
		return ctx.Err()
	}
}

func (e *BulkEngine) run(taskID string, t Transport, stop <-chan struct{}, recipients []string, body string, delay time.Duration) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("bulk task panic recovered", "task", taskID, "panic", r)
		}

		final, err := e.tasks.Finish(taskID)
		if err != nil {
			slog.Warn("finish bulk task", "task", taskID, "err", err)
		} else {
			slog.Info("bulk task finished",
				"task", taskID,
				"status", final.Status,
				"sent", final.Sent,
				"failed", final.Failed,
				"total", final.Total,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		}

		e.mu.Lock()
		delete(e.active, taskID)
		e.mu.Unlock()
		e.running.Done()
	}()

	for i, recipient := range recipients {
		if isStopped(stop) {
			return
		}

		o := e.sendOne(taskID, t, recipient, body)

		applied, err := e.tasks.Record(taskID, o)
		if err != nil {
			slog.Warn("record outcome", "task", taskID, "to", recipient, "err", err)
			return
		}
		if !applied {
			slog.Debug("outcome discarded after stop", "task", taskID, "to", recipient)
		}

		if i == len(recipients)-1 {
			break
		}
		if !e.wait(stop, delay) {
			return
		}
	}
}

func (e *BulkEngine) sendOne(taskID string, t Transport, recipient, body string) model.Outcome {
	chatID := model.ChatID(recipient)

	ctx := e.ctx
	if e.sendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.sendTimeout)
		defer cancel()
	}

	err := deliver(ctx, t, chatID, body)
	switch {
	case err == nil:
		if e.onSent != nil {
			if herr := e.onSent(e.ctx, taskID, chatID); herr != nil {
				slog.Warn("onSent hook failed", "task", taskID, "to", chatID, "err", herr)
			}
		}
		return model.Outcome{Kind: model.OutcomeSent, Recipient: recipient}

	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		e.failed(taskID, chatID, "timed out")
		return model.Outcome{Kind: model.OutcomeTimedOut, Recipient: recipient}

	default:
		e.failed(taskID, chatID, err.Error())
		return model.Outcome{Kind: model.OutcomeFailed, Recipient: recipient}
	}
}

// deliver turns a panicking transport into an ordinary send error so one
// recipient cannot take the rest of the task down.
func deliver(ctx context.Context, t Transport, chatID, body string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("transport panic recovered", "to", chatID, "panic", r)
			err = fmt.Errorf("transport panic: %v", r)
		}
	}()
	return t.SendMessage(ctx, chatID, body)
}

func (e *BulkEngine) failed(taskID, chatID, reason string) {
	slog.Warn("bulk send failed", "task", taskID, "to", chatID, "reason", reason)
	if e.onFailed != nil {
		if err := e.onFailed(e.ctx, taskID, chatID, reason); err != nil {
			slog.Warn("onFailed hook failed", "task", taskID, "to", chatID, "err", err)
		}
	}
}

// wait sleeps for delay unless the task is stopped or the engine is torn
// down first. It reports whether the loop should continue.
func (e *BulkEngine) wait(stop <-chan struct{}, delay time.Duration) bool {
	if delay <= 0 {
		return !isStopped(stop)
	}

	tmr := time.NewTimer(delay)
	defer tmr.Stop()

	select {
	case <-stop:
		return false
	case <-e.ctx.Done():
		return false
	case <-tmr.C:
		return !isStopped(stop)
	}
}

func isStopped(stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}

func newTaskID() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:7]
	return fmt.Sprintf("TASK-%d-%s", time.Now().UnixMilli(), suffix)
}
