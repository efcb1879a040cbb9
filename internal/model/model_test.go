package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestChatID(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in, want string
	}{
		{"15551234567", "15551234567@c.us"},
		{"group123@g.us", "group123@g.us"},
		{"15551234567@c.us", "15551234567@c.us"},
		{"", "@c.us"},
	}
	for _, tc := range cases {
		if got := ChatID(tc.in); got != tc.want {
			t.Fatalf("ChatID(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestOutcome_LogLine(t *testing.T) {
	t.Parallel()

	cases := []struct {
		o    Outcome
		want string
	}{
		{Outcome{Kind: OutcomeSent, Recipient: "A"}, "✓ Sent to A"},
		{Outcome{Kind: OutcomeFailed, Recipient: "B"}, "✗ Failed: B"},
		{Outcome{Kind: OutcomeTimedOut, Recipient: "C"}, "✗ Timed out: C"},
	}
	for _, tc := range cases {
		if got := tc.o.LogLine(); got != tc.want {
			t.Fatalf("LogLine() = %q, want %q", got, tc.want)
		}
	}
}

func TestTask_JSONShape(t *testing.T) {
	t.Parallel()

	task := Task{
		ID:        "TASK-1",
		SessionID: "s1",
		Status:    TaskRunning,
		Total:     2,
		Logs:      []string{},
		StartedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if task.Terminal() {
		t.Fatalf("running task must not be terminal")
	}

	raw, err := json.Marshal(task)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(raw)
	for _, want := range []string{`"id":"TASK-1"`, `"status":"running"`, `"logs":[]`, `"sent":0`} {
		if !strings.Contains(s, want) {
			t.Fatalf("expected %s in %s", want, s)
		}
	}
	if strings.Contains(s, "finishedAt") {
		t.Fatalf("running task should omit finishedAt: %s", s)
	}

	task.Status = TaskStopped
	if !task.Terminal() {
		t.Fatalf("stopped task must be terminal")
	}
}
