package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Scheduler runs a named job immediately on Start and then on every tick
// until Stop. A panicking job is logged and the schedule keeps going.
type Scheduler struct {
	name     string
	interval time.Duration
	job      func(context.Context)

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(name string, interval time.Duration, job func(context.Context)) (*Scheduler, error) {
	if interval <= 0 {
		return nil, errors.New("interval must be > 0")
	}
	if job == nil {
		return nil, errors.New("job must not be nil")
	}
	return &Scheduler{
		name:     name,
		interval: interval,
		job:      job,
		done:     make(chan struct{}),
	}, nil
}

func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running.Store(true)

	go s.loop(ctx, s.done)

	return true
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("scheduler started", "job", s.name, "interval", s.interval.String())

	s.runJob(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runJob(ctx)
		}
	}
}

func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return false
	}

	s.cancel()
	<-s.done
	s.running.Store(false)

	slog.Info("scheduler stopped", "job", s.name)
	return true
}

func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

func (s *Scheduler) runJob(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("scheduled job panic recovered", "job", s.name, "panic", r)
		}
	}()

	start := time.Now()
	s.job(ctx)
	slog.Debug("scheduled job completed", "job", s.name, "duration_ms", time.Since(start).Milliseconds())
}

// EvictionJob returns a job that drops finished tasks older than retention.
func EvictionJob(evict func(before time.Time) int, retention time.Duration) func(context.Context) {
	return func(context.Context) {
		if n := evict(time.Now().Add(-retention)); n > 0 {
			slog.Info("evicted finished tasks", "count", n, "retention", retention.String())
		}
	}
}
