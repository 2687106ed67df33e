// ABOUTME: ReplyEngine interface and tool intent types
// ABOUTME: The engine produces AI replies and structured tool invocations

package reply

import (
	"context"
	"encoding/json"

	"github.com/havana-uni/inquiry-gateway/internal/store"
)

// Tool names the engine may invoke
const (
	ToolHumanEscalation = "human_escalation"
	ToolGetBookingSlots = "get_booking_slots"
	ToolBookTimeSlot    = "book_time_slot"
)

// FallbackText is persisted as the AI reply when the engine fails
const FallbackText = "I'm having trouble processing your request. Would you like to speak with a human advisor?"

// ToolCall is a structured action request emitted by the engine
type ToolCall struct {
	ID   string
	Name string
	Args json.RawMessage
}

// ToolResult carries the outcome of executing a tool call back to the engine
type ToolResult struct {
	CallID  string
	Name    string
	Output  string
	IsError bool
}

// Reply is the engine's answer to a conversation turn. ToolCalls are listed
// in the order the model emitted them; callers process them in that order.
type Reply struct {
	Text      string
	ToolCalls []ToolCall
}

// Engine generates AI replies for a chat history.
//
// GenerateReply returns the model's first pass: either direct text or a set
// of tool calls (or both). When tool calls were returned, the caller executes
// them and asks ComposeFinal for the closing message so the reply can
// reference tool outcomes: a lost booking race becomes a corrective reply
// instead of a false confirmation.
type Engine interface {
	GenerateReply(ctx context.Context, history []*store.Message) (*Reply, error)
	ComposeFinal(ctx context.Context, history []*store.Message, prior *Reply, results []ToolResult) (string, error)
}

// EscalationArgs are the arguments of the human_escalation tool
type EscalationArgs struct {
	Reason string `json:"reason"`
}

// BookSlotArgs are the arguments of the book_time_slot tool.
// Either SlotID or the Date+Time pair identifies the slot.
type BookSlotArgs struct {
	SlotID string `json:"slot_id,omitempty"`
	Date   string `json:"date,omitempty"`
	Time   string `json:"time,omitempty"`
}
