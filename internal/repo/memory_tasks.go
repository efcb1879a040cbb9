package repo

import (
	"sync"
	"time"

	"github.com/fighterboy13/WhatsApp/internal/model"
)

type taskEntry struct {
	task     model.Task
	stopOnce sync.Once
	stopCh   chan struct{}
}

func (e *taskEntry) signalStop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
}

// MemoryTaskRepo keeps bulk tasks in process memory. Every read returns a
// copy, so callers may hold snapshots while the owning loop keeps writing.
type MemoryTaskRepo struct {
	mu    sync.Mutex
	tasks map[string]*taskEntry
	now   func() time.Time
}

func NewMemoryTaskRepo() *MemoryTaskRepo {
	return &MemoryTaskRepo{
		tasks: make(map[string]*taskEntry),
		now:   time.Now,
	}
}

func (r *MemoryTaskRepo) Register(task model.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[task.ID]; ok {
		return ErrTaskExists
	}
	if task.Status == "" {
		task.Status = model.TaskRunning
	}
	if task.StartedAt.IsZero() {
		task.StartedAt = r.now().UTC()
	}
	task.Logs = append([]string{}, task.Logs...)

	r.tasks[task.ID] = &taskEntry{task: task, stopCh: make(chan struct{})}
	return nil
}

func (r *MemoryTaskRepo) Get(id string) (model.Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.tasks[id]
	if !ok {
		return model.Task{}, false
	}
	return snapshot(e.task), true
}

func (r *MemoryTaskRepo) RequestStop(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	// Terminal tasks keep their status and counters.
	if e.task.Status == model.TaskRunning {
		e.task.Status = model.TaskStopped
		finished := r.now().UTC()
		e.task.FinishedAt = &finished
	}
	e.signalStop()
	return nil
}

func (r *MemoryTaskRepo) Stopped(id string) (<-chan struct{}, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.tasks[id]
	if !ok {
		return nil, false
	}
	return e.stopCh, true
}

// Record applies one outcome. It reports false when the task has already
// left the running state and the outcome was discarded.
func (r *MemoryTaskRepo) Record(id string, o model.Outcome) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.tasks[id]
	if !ok {
		return false, ErrTaskNotFound
	}
	if e.task.Status != model.TaskRunning {
		return false, nil
	}
	if e.task.Sent+e.task.Failed >= e.task.Total {
		return false, nil
	}

	if o.Kind == model.OutcomeSent {
		e.task.Sent++
	} else {
		e.task.Failed++
	}
	e.task.Logs = append(e.task.Logs, o.LogLine())
	return true, nil
}

func (r *MemoryTaskRepo) Finish(id string) (model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.tasks[id]
	if !ok {
		return model.Task{}, ErrTaskNotFound
	}
	if e.task.Status == model.TaskRunning {
		e.task.Status = model.TaskCompleted
		finished := r.now().UTC()
		e.task.FinishedAt = &finished
	}
	return snapshot(e.task), nil
}

func (r *MemoryTaskRepo) CountRunning() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, e := range r.tasks {
		if e.task.Status == model.TaskRunning {
			n++
		}
	}
	return n
}

// EvictFinished drops terminal tasks that finished before the cutoff and
// returns how many were removed.
func (r *MemoryTaskRepo) EvictFinished(before time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, e := range r.tasks {
		if e.task.Status == model.TaskRunning || e.task.FinishedAt == nil {
			continue
		}
		if e.task.FinishedAt.Before(before) {
			delete(r.tasks, id)
			n++
		}
	}
	return n
}

func snapshot(t model.Task) model.Task {
	t.Logs = append(make([]string, 0, len(t.Logs)), t.Logs...)
	if t.FinishedAt != nil {
		f := *t.FinishedAt
		t.FinishedAt = &f
	}
	return t
}
