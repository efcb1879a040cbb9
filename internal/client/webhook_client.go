package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/fighterboy13/WhatsApp/internal/model"
)

// WebhookClient delivers messages through an HTTP gateway that accepts
// {phoneNumber, message} and answers 202 with a messageId.
type WebhookClient struct {
	url    string
	client *http.Client

	mu       sync.Mutex
	handlers []func(model.TransportEvent)
}

func NewWebhookClient(url string, timeout time.Duration) *WebhookClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookClient{
		url: url,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type sendRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Message     string `json:"message"`
}

type sendResponse struct {
	Message   string `json:"message"`
	MessageID string `json:"messageId"`
}

// Initialize has nothing to negotiate with the gateway, so the session is
// ready and authenticated straight away.
func (c *WebhookClient) Initialize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.emit(model.EventReady)
	c.emit(model.EventAuthenticated)
	return nil
}

func (c *WebhookClient) SendMessage(ctx context.Context, chatID, body string) error {
	_, err := c.Send(ctx, chatID, body)
	return err
}

func (c *WebhookClient) Send(ctx context.Context, chatID, message string) (string, error) {
	reqBody, err := json.Marshal(sendRequest{
		PhoneNumber: chatID,
		Message:     message,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("unexpected status code: %d body=%q", resp.StatusCode, string(body))
	}

	var sr sendResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return "", fmt.Errorf("failed to decode json: %w body=%q", err, string(body))
	}
	if sr.MessageID == "" {
		return "", fmt.Errorf("missing messageId in response body=%q", string(body))
	}

	return sr.MessageID, nil
}

func (c *WebhookClient) Destroy(ctx context.Context) error {
	c.client.CloseIdleConnections()
	return nil
}

func (c *WebhookClient) OnEvent(fn func(model.TransportEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, fn)
}

func (c *WebhookClient) emit(ev model.TransportEvent) {
	c.mu.Lock()
	handlers := append([]func(model.TransportEvent){}, c.handlers...)
	c.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}
