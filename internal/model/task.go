package model

import "time"

type TaskStatus string

const (
	TaskRunning   TaskStatus = "running"
	TaskStopped   TaskStatus = "stopped"
	TaskCompleted TaskStatus = "completed"
)

// Task is a point-in-time copy of a bulk task. Values handed out by the
// registry never alias its internal state.
type Task struct {
	ID         string     `json:"id"`
	SessionID  string     `json:"sessionId"`
	Status     TaskStatus `json:"status"`
	Total      int        `json:"total"`
	Sent       int        `json:"sent"`
	Failed     int        `json:"failed"`
	Logs       []string   `json:"logs"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

func (t Task) Terminal() bool {
	return t.Status != TaskRunning
}

type OutcomeKind int

const (
	OutcomeSent OutcomeKind = iota
	OutcomeFailed
	OutcomeTimedOut
)

// Outcome is the result of one send attempt inside a bulk task.
type Outcome struct {
	Kind      OutcomeKind
	Recipient string
}

func (o Outcome) LogLine() string {
	switch o.Kind {
	case OutcomeSent:
		return "✓ Sent to " + o.Recipient
	case OutcomeTimedOut:
		return "✗ Timed out: " + o.Recipient
	default:
		return "✗ Failed: " + o.Recipient
	}
}
