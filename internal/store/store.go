// ABOUTME: Store interface and data types for inquiry-gateway persistence
// ABOUTME: Defines Chat, Message, BookingSlot structs and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrSlotUnavailable is returned when a booking slot is already claimed,
// soft-deleted, or does not exist at claim time.
var ErrSlotUnavailable = errors.New("slot unavailable")

// Role constants for message authorship
const (
	RoleAI            = "ai"             // assistant-generated reply
	RoleHuman         = "human"          // student message
	RoleHumanOperator = "human_operator" // admin reply during intervention
)

// Chat represents a single student conversation.
// IsHumanEnabled=true means the AI is suspended and a human operator answers.
type Chat struct {
	ID             string
	IsHumanEnabled bool
	CreatedAt      time.Time
}

// Message is a single chat message. Messages are immutable once created;
// Seq is a persisted monotonic sequence that totally orders messages per chat.
type Message struct {
	Seq       int64
	ID        string
	ChatID    string
	Role      string
	Text      string
	CreatedAt time.Time
}

// BookingSlot is a bookable advisor call slot. A slot is free while ChatID
// is nil and claimed once a chat books it. Date is YYYY-MM-DD, Time is HHMM.
type BookingSlot struct {
	ID        string
	Date      string
	Time      string
	ChatID    *string
	CreatedAt time.Time
}

// Store defines the interface for chat, message, and booking persistence
type Store interface {
	// Chats
	CreateChat(ctx context.Context) (*Chat, error)
	GetChat(ctx context.Context, id string) (*Chat, error)
	ListChats(ctx context.Context) ([]*Chat, error)
	SetHumanEnabled(ctx context.Context, chatID string, enabled bool) error

	// Messages
	AppendMessage(ctx context.Context, chatID, role, text string) (*Message, error)
	GetHistory(ctx context.Context, chatID string) ([]*Message, error)

	// Booking slots
	CreateSlot(ctx context.Context, date, timeOfDay string) (*BookingSlot, error)
	ListFreeSlots(ctx context.Context, from time.Time, days int) ([]*BookingSlot, error)
	// ClaimSlot atomically assigns a free slot to a chat. Returns
	// ErrSlotUnavailable if the slot is missing, deleted, or already claimed.
	ClaimSlot(ctx context.Context, slotID, chatID string) (*BookingSlot, error)

	// Close releases any resources held by the store
	Close() error
}
