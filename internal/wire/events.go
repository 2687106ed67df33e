// ABOUTME: Wire event names and JSON payload shapes for the chat socket protocol
// ABOUTME: Field names and event names are a compatibility contract with the frontend

package wire

import (
	"time"

	"github.com/havana-uni/inquiry-gateway/internal/store"
)

// Inbound event names (frontend -> gateway)
const (
	EventStudentConnect          = "student_connect"
	EventStudentMessage          = "student_message"
	EventAdminConnect            = "admin_connect"
	EventAdminDisconnectFromChat = "admin_disconnect_from_chat"
	EventAdminMessage            = "admin_message"
	EventToggleHumanEnabled      = "toggle_human_enabled"
)

// Outbound event names (gateway -> frontend)
const (
	EventChatCreated         = "chat_created"
	EventStudentConnected    = "student_connected"
	EventAdminConnected      = "admin_connected"
	EventNewMessage          = "new_message"
	EventEscalationTriggered = "escalation_triggered"
	EventHumanEnabledChanged = "human_enabled_changed"
	EventAdminStatusChanged  = "admin_status_changed"
	EventBookingConfirmed    = "booking_confirmed"
	EventError               = "error"
)

// Event pairs an event name with its payload for delivery to a connection
type Event struct {
	Name string
	Data any
}

// Chat is the wire representation of a chat
type Chat struct {
	ID             string `json:"id"`
	IsHumanEnabled bool   `json:"is_human_enabled"`
	CreatedAt      string `json:"created_at"`
}

// Message is the wire representation of a chat message
type Message struct {
	ID        string `json:"id"`
	ChatID    string `json:"chat_id"`
	Role      string `json:"role"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
}

// Slot is the wire representation of a booking slot
type Slot struct {
	ID   string `json:"id"`
	Date string `json:"date"`
	Time string `json:"time"`
}

// Inbound payloads

type StudentConnectRequest struct {
	ChatID string `json:"chat_id,omitempty"`
}

type StudentMessageRequest struct {
	ChatID  string `json:"chat_id"`
	Message string `json:"message"`
}

type AdminConnectRequest struct {
	ChatID string `json:"chat_id"`
}

type AdminDisconnectRequest struct {
	ChatID string `json:"chat_id"`
}

type AdminMessageRequest struct {
	ChatID  string `json:"chat_id"`
	Message string `json:"message"`
}

type ToggleHumanEnabledRequest struct {
	ChatID    string `json:"chat_id"`
	IsEnabled bool   `json:"is_enabled"`
}

// Outbound payloads

type ChatCreated struct {
	ChatID string `json:"chat_id"`
}

type StudentConnected struct {
	ChatID           string    `json:"chat_id"`
	Chat             *Chat     `json:"chat"`
	History          []Message `json:"history"`
	IsAdminConnected bool      `json:"is_admin_connected"`
}

type AdminConnected struct {
	ChatID  string    `json:"chat_id"`
	Chat    *Chat     `json:"chat"`
	History []Message `json:"history"`
}

type EscalationTriggered struct {
	ChatID         string `json:"chat_id"`
	IsHumanEnabled bool   `json:"is_human_enabled"`
}

type HumanEnabledChanged struct {
	ChatID         string `json:"chat_id"`
	IsHumanEnabled bool   `json:"is_human_enabled"`
}

type AdminStatusChanged struct {
	ChatID           string `json:"chat_id"`
	IsAdminConnected bool   `json:"is_admin_connected"`
}

type BookingConfirmed struct {
	ChatID string `json:"chat_id"`
	Slot   Slot   `json:"slot"`
}

type Error struct {
	Message string `json:"message"`
}

// FromChat converts a stored chat to its wire shape
func FromChat(c *store.Chat) *Chat {
	if c == nil {
		return nil
	}
	return &Chat{
		ID:             c.ID,
		IsHumanEnabled: c.IsHumanEnabled,
		CreatedAt:      c.CreatedAt.Format(time.RFC3339),
	}
}

// FromMessage converts a stored message to its wire shape
func FromMessage(m *store.Message) Message {
	return Message{
		ID:        m.ID,
		ChatID:    m.ChatID,
		Role:      m.Role,
		Message:   m.Text,
		CreatedAt: m.CreatedAt.Format(time.RFC3339),
	}
}

// FromMessages converts stored history to wire messages, preserving order.
// Returns an empty (non-nil) slice so the history field marshals as [].
func FromMessages(msgs []*store.Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, FromMessage(m))
	}
	return out
}

// FromSlot converts a stored booking slot to its wire shape
func FromSlot(s *store.BookingSlot) Slot {
	return Slot{
		ID:   s.ID,
		Date: s.Date,
		Time: s.Time,
	}
}
