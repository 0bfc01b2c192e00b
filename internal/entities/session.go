package entities

import (
	"fmt"
	"strings"
	"time"
)

// Channel identifies the transport a conversation arrived on.
type Channel string

const (
	ChannelWhatsApp Channel = "WHATSAPP"
	ChannelWeb      Channel = "WEB"
	ChannelEmail    Channel = "EMAIL"
)

// ParseChannel converts a stored channel value back to the enum.
func ParseChannel(s string) (Channel, error) {
	switch Channel(strings.ToUpper(s)) {
	case ChannelWhatsApp:
		return ChannelWhatsApp, nil
	case ChannelWeb:
		return ChannelWeb, nil
	case ChannelEmail:
		return ChannelEmail, nil
	}
	return "", fmt.Errorf("unknown channel %q", s)
}

// SessionKey builds the stable conversation identity:
// lowercase channel name + ":" + the channel's raw sender id.
func SessionKey(c Channel, rawID string) string {
	return strings.ToLower(string(c)) + ":" + rawID
}

// Session is one customer conversation across any number of messages.
// CPF is empty until captured and is never overwritten once set.
type Session struct {
	Key       string
	Channel   Channel
	Customer  string // display name; empty for web until resolved
	CPF       string // exactly 11 digits once captured
	Context   string // opaque jsonb blob, not interpreted here
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ChatRole tags a chat log entry as customer or bot output.
type ChatRole string

const (
	RoleUser ChatRole = "USER"
	RoleBot  ChatRole = "BOT"
)

// ChatLogEntry is an append-only audit record of one message.
type ChatLogEntry struct {
	ID         int64
	SessionKey string
	CPF        string
	Channel    Channel
	Role       ChatRole
	Message    string
	CreatedAt  time.Time
}
