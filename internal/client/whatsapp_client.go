package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/fighterboy13/WhatsApp/internal/model"
)

const pairDisplayName = "Chrome (Linux)"

// WhatsAppClient is one multi-device WhatsApp login. Every instance gets a
// brand new device in the shared store, so pairing always starts clean.
type WhatsAppClient struct {
	phone    string
	clientID string
	client   *whatsmeow.Client

	mu       sync.Mutex
	handlers []func(model.TransportEvent)
	code     string
	stopQR   context.CancelFunc
}

func NewWhatsAppClient(container *sqlstore.Container, phone, clientID string) *WhatsAppClient {
	device := container.NewDevice()
	c := &WhatsAppClient{
		phone:    phone,
		clientID: clientID,
		client:   whatsmeow.NewClient(device, NewWALogger("whatsapp").Sub(clientID)),
	}
	c.client.AddEventHandler(c.handleEvent)
	return c
}

// Initialize connects to the network. An unpaired device additionally
// requests a phone pairing code that the user types into their app.
func (c *WhatsAppClient) Initialize(ctx context.Context) error {
	if c.client.Store.ID != nil {
		if err := c.client.Connect(); err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		return nil
	}

	phone := digitsOnly(c.phone)
	if phone == "" {
		return errors.New("phone number has no digits")
	}

	// The pairing window outlives the request that opened it; Destroy
	// closes it.
	qrCtx, stopQR := context.WithCancel(context.Background())
	c.mu.Lock()
	c.stopQR = stopQR
	c.mu.Unlock()

	qr, err := c.client.GetQRChannel(qrCtx)
	if err != nil {
		stopQR()
		return fmt.Errorf("open pairing channel: %w", err)
	}
	if err := c.client.Connect(); err != nil {
		stopQR()
		return fmt.Errorf("connect: %w", err)
	}

	if err := awaitFirstCode(ctx, qr); err != nil {
		stopQR()
		c.client.Disconnect()
		return err
	}
	go watchPairing(qr, c.pairingLost)

	code, err := c.client.PairPhone(ctx, phone, true, whatsmeow.PairClientChrome, pairDisplayName)
	if err != nil {
		stopQR()
		c.client.Disconnect()
		return fmt.Errorf("request pairing code: %w", err)
	}

	c.mu.Lock()
	c.code = code
	c.mu.Unlock()
	return nil
}

func (c *WhatsAppClient) PairingCode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.code
}

func (c *WhatsAppClient) SendMessage(ctx context.Context, chatID, body string) error {
	jid, err := ToJID(chatID)
	if err != nil {
		return err
	}
	if !c.client.IsConnected() {
		return errors.New("client is not connected")
	}

	_, err = c.client.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(body),
	})
	return err
}

func (c *WhatsAppClient) Destroy(ctx context.Context) error {
	c.mu.Lock()
	stopQR := c.stopQR
	c.mu.Unlock()
	if stopQR != nil {
		stopQR()
	}
	c.client.Disconnect()
	return nil
}

func (c *WhatsAppClient) pairingLost(reason string) {
	slog.Warn("pairing window closed", "client", c.clientID, "reason", reason)
	c.client.Disconnect()
	c.emit(model.EventDisconnected)
}

// awaitFirstCode blocks until the server has issued its first QR ref, the
// point from which a phone pairing code may be requested.
func awaitFirstCode(ctx context.Context, qr <-chan whatsmeow.QRChannelItem) error {
	select {
	case item, ok := <-qr:
		if !ok {
			return errors.New("pairing channel closed before first code")
		}
		if item.Event != "code" {
			return qrItemError(item)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// watchPairing drains the QR channel until pairing resolves. Anything but
// success ends the session through lost. A channel closed without a
// verdict was cancelled by Destroy and needs no report.
func watchPairing(qr <-chan whatsmeow.QRChannelItem, lost func(reason string)) {
	for item := range qr {
		switch item.Event {
		case "code":
			continue
		case "success":
			return
		default:
			lost(qrItemError(item).Error())
			return
		}
	}
}

func qrItemError(item whatsmeow.QRChannelItem) error {
	if item.Error != nil {
		return fmt.Errorf("pairing %s: %w", item.Event, item.Error)
	}
	return fmt.Errorf("pairing %s", item.Event)
}

func (c *WhatsAppClient) OnEvent(fn func(model.TransportEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, fn)
}

func (c *WhatsAppClient) handleEvent(evt any) {
	switch evt.(type) {
	case *events.Connected:
		c.emit(model.EventReady)
	case *events.PairSuccess:
		c.emit(model.EventAuthenticated)
	case *events.LoggedOut, *events.StreamReplaced, *events.PairError:
		c.emit(model.EventDisconnected)
	}
}

func (c *WhatsAppClient) emit(ev model.TransportEvent) {
	c.mu.Lock()
	handlers := append([]func(model.TransportEvent){}, c.handlers...)
	c.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

// ToJID parses a chat identifier. The legacy "c.us" user server is mapped
// onto the multi-device user server.
func ToJID(chatID string) (types.JID, error) {
	user, server, ok := strings.Cut(chatID, "@")
	if !ok || user == "" || server == "" {
		return types.JID{}, fmt.Errorf("invalid chat id %q", chatID)
	}
	if server == "c.us" {
		return types.NewJID(digitsOnly(user), types.DefaultUserServer), nil
	}
	jid, err := types.ParseJID(chatID)
	if err != nil {
		return types.JID{}, fmt.Errorf("invalid chat id %q: %w", chatID, err)
	}
	return jid, nil
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
