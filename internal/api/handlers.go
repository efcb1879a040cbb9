package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fighterboy13/WhatsApp/internal/model"
	"github.com/fighterboy13/WhatsApp/internal/service"
)

const maxBodyBytes = 1 << 20

type SessionService interface {
	Create(ctx context.Context, phoneNumber string) (sessionID, pairingCode string, err error)
	Count() int
}

type MessageSender interface {
	Send(ctx context.Context, sessionID, number, body string) (chatID string, err error)
}

type TaskEngine interface {
	Start(req service.BulkRequest) (model.Task, error)
	Stop(taskID string) error
	Task(taskID string) (model.Task, error)
	RunningCount() int
}

type Handler struct {
	sessions     SessionService
	sender       MessageSender
	tasks        TaskEngine
	defaultDelay time.Duration

	upgrader       websocket.Upgrader
	streamInterval time.Duration
	writeWait      time.Duration
}

func NewHandler(sessions SessionService, sender MessageSender, tasks TaskEngine, defaultDelay time.Duration) *Handler {
	return &Handler{
		sessions:     sessions,
		sender:       sender,
		tasks:        tasks,
		defaultDelay: defaultDelay,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		streamInterval: 300 * time.Millisecond,
		writeWait:      5 * time.Second,
	}
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type taskResponse struct {
	Success bool       `json:"success"`
	Task    model.Task `json:"task"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"message":   "WhatsApp Auto Sender API is running",
		"timestamp": time.Now().UTC(),
	})
}

func (h *Handler) GeneratePairing(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PhoneNumber string `json:"phoneNumber"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.PhoneNumber) == "" {
		writeError(w, http.StatusBadRequest, "Phone number is required", "")
		return
	}

	sessionID, code, err := h.sessions.Create(r.Context(), req.PhoneNumber)
	if err != nil {
		slog.Error("pairing failed", "phone", req.PhoneNumber, "err", err)
		h.fail(w, err, "Failed to generate pairing code")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"pairingCode": code,
		"sessionId":   sessionID,
		"message":     "Session created successfully",
	})
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"sessionId"`
		Number    string `json:"number"`
		Message   string `json:"message"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	_, err := h.sender.Send(r.Context(), req.SessionID, req.Number, req.Message)
	if err != nil {
		h.fail(w, err, "Failed to send message")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Message sent successfully",
		"to":      req.Number,
	})
}

func (h *Handler) SendBulk(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string   `json:"sessionId"`
		Numbers   []string `json:"numbers"`
		Message   string   `json:"message"`
		Delay     *float64 `json:"delay"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	delay := h.defaultDelay
	if req.Delay != nil {
		// Checked before conversion; larger values wrap to negative durations.
		if *req.Delay > service.MaxBulkDelay.Seconds() {
			h.fail(w, fmt.Errorf("%w: delay must not exceed %s", service.ErrInvalidRequest, service.MaxBulkDelay), "Failed to start bulk task")
			return
		}
		delay = time.Duration(*req.Delay * float64(time.Second))
	}

	task, err := h.tasks.Start(service.BulkRequest{
		SessionID:  req.SessionID,
		Recipients: req.Numbers,
		Body:       req.Message,
		Delay:      delay,
	})
	if err != nil {
		h.fail(w, err, "Failed to start bulk task")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"taskId":  task.ID,
		"total":   task.Total,
	})
}

func (h *Handler) TaskStatus(w http.ResponseWriter, r *http.Request) {
	task, err := h.tasks.Task(r.PathValue("taskId"))
	if err != nil {
		h.fail(w, err, "Failed to read task")
		return
	}
	writeJSON(w, http.StatusOK, taskResponse{Success: true, Task: task})
}

func (h *Handler) StopTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TaskID string `json:"taskId"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.TaskID == "" {
		writeError(w, http.StatusBadRequest, "Task ID is required", "")
		return
	}

	if err := h.tasks.Stop(req.TaskID); err != nil {
		h.fail(w, err, "Failed to stop task")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Task stopped",
	})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"activeSessions": h.sessions.Count(),
		"activeTasks":    h.tasks.RunningCount(),
	})
}

// TaskStream pushes a task snapshot whenever it changes and closes the
// socket once the task is terminal.
func (h *Handler) TaskStream(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("taskId")
	task, err := h.tasks.Task(taskID)
	if err != nil {
		h.fail(w, err, "Failed to read task")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("task stream upgrade failed", "task", taskID, "err", err)
		return
	}
	defer conn.Close()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.streamInterval)
	defer ticker.Stop()

	var last *model.Task
	for {
		if last == nil || changed(*last, task) {
			_ = conn.SetWriteDeadline(time.Now().Add(h.writeWait))
			if err := conn.WriteJSON(taskResponse{Success: true, Task: task}); err != nil {
				slog.Debug("task stream write failed", "task", taskID, "err", err)
				return
			}
			snap := task
			last = &snap
		}
		if task.Terminal() {
			h.closeStream(conn, websocket.CloseNormalClosure, "task finished")
			return
		}

		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		if task, err = h.tasks.Task(taskID); err != nil {
			h.closeStream(conn, websocket.CloseGoingAway, "task no longer available")
			return
		}
	}
}

func (h *Handler) closeStream(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(h.writeWait))
}

func changed(a, b model.Task) bool {
	return a.Status != b.Status || a.Sent != b.Sent || a.Failed != b.Failed || len(a.Logs) != len(b.Logs)
}

// fail maps service errors onto the HTTP error contract. fallback names the
// category used for transport-level failures.
func (h *Handler) fail(w http.ResponseWriter, err error, fallback string) {
	var initErr *service.InitError
	var sendErr *service.SendError

	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "Missing required fields", err.Error())
	case errors.Is(err, service.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "Session not found", "")
	case errors.Is(err, service.ErrTaskNotFound):
		writeError(w, http.StatusNotFound, "Task not found", "")
	case errors.Is(err, service.ErrEngineClosed):
		writeError(w, http.StatusServiceUnavailable, "Service is shutting down", "")
	case errors.As(err, &initErr):
		writeError(w, http.StatusInternalServerError, fallback, initErr.Err.Error())
	case errors.As(err, &sendErr):
		writeError(w, http.StatusInternalServerError, fallback, sendErr.Err.Error())
	default:
		writeError(w, http.StatusInternalServerError, fallback, err.Error())
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", err.Error())
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
	writeJSON(w, status, errorResponse{Success: false, Error: msg, Details: details})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
