package repo

import (
	"errors"
	"time"

	"github.com/fighterboy13/WhatsApp/internal/model"
)

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrTaskExists   = errors.New("task already exists")
)

type TaskRepository interface {
	Register(task model.Task) error
	Get(id string) (model.Task, bool)
	RequestStop(id string) error
	// Stopped is closed once a stop has been requested for the task.
	Stopped(id string) (<-chan struct{}, bool)
	Record(id string, o model.Outcome) (bool, error)
	Finish(id string) (model.Task, error)
	CountRunning() int
	EvictFinished(before time.Time) int
}
