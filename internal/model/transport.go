package model

import "strings"

type TransportEvent string

const (
	EventReady         TransportEvent = "ready"
	EventAuthenticated TransportEvent = "authenticated"
	EventDisconnected  TransportEvent = "disconnected"
)

// UserChatSuffix is appended to bare numbers to form a routable chat id.
const UserChatSuffix = "@c.us"

// ChatID turns a recipient into a chat identifier. Anything that already
// carries an address separator is passed through untouched.
func ChatID(recipient string) string {
	if strings.Contains(recipient, "@") {
		return recipient
	}
	return recipient + UserChatSuffix
}
