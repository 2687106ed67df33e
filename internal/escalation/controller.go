// ABOUTME: EscalationController owns the AI-vs-human state of each chat
// ABOUTME: Executes tool intents: escalation, slot listing, and atomic booking

package escalation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/havana-uni/inquiry-gateway/internal/reply"
	"github.com/havana-uni/inquiry-gateway/internal/store"
	"github.com/havana-uni/inquiry-gateway/internal/wire"
)

// slotLookaheadDays bounds how far ahead the slot listing reaches
const slotLookaheadDays = 14

// Store defines what the controller needs from persistence
type Store interface {
	SetHumanEnabled(ctx context.Context, chatID string, enabled bool) error
	ListFreeSlots(ctx context.Context, from time.Time, days int) ([]*store.BookingSlot, error)
	ClaimSlot(ctx context.Context, slotID, chatID string) (*store.BookingSlot, error)
}

// Broadcaster delivers events to every connection bound to a chat
type Broadcaster interface {
	Broadcast(chatID string, ev wire.Event)
}

// Controller is the single authority for whether the AI or a human answers
// a chat, and for booking confirmation semantics.
type Controller struct {
	store    Store
	registry Broadcaster
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Controller. Pass nil logger for default.
func New(st Store, registry Broadcaster, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		store:    st,
		registry: registry,
		logger:   logger.With("component", "escalation"),
		now:      time.Now,
	}
}

// SetHumanEnabled applies an explicit admin toggle: persists the flag and
// announces human_enabled_changed to every binding for the chat.
func (c *Controller) SetHumanEnabled(ctx context.Context, chatID string, enabled bool) error {
	if err := c.store.SetHumanEnabled(ctx, chatID, enabled); err != nil {
		return err
	}

	c.registry.Broadcast(chatID, wire.Event{
		Name: wire.EventHumanEnabledChanged,
		Data: wire.HumanEnabledChanged{ChatID: chatID, IsHumanEnabled: enabled},
	})

	c.logger.Info("human intervention toggled", "chat_id", chatID, "enabled", enabled)
	return nil
}

// Escalate applies an engine-signaled escalation: persists the flag and
// announces escalation_triggered to every binding for the chat.
func (c *Controller) Escalate(ctx context.Context, chatID, reason string) error {
	if err := c.store.SetHumanEnabled(ctx, chatID, true); err != nil {
		return err
	}

	c.registry.Broadcast(chatID, wire.Event{
		Name: wire.EventEscalationTriggered,
		Data: wire.EscalationTriggered{ChatID: chatID, IsHumanEnabled: true},
	})

	c.logger.Info("escalation triggered", "chat_id", chatID, "reason", reason)
	return nil
}

// ExecuteTool runs one tool intent for a chat and returns the result to feed
// back to the engine. Failures come back as error results, never as Go
// errors: the engine composes a corrective reply from them.
func (c *Controller) ExecuteTool(ctx context.Context, chatID string, call reply.ToolCall) reply.ToolResult {
	res := reply.ToolResult{CallID: call.ID, Name: call.Name}

	switch call.Name {
	case reply.ToolHumanEscalation:
		var args reply.EscalationArgs
		if len(call.Args) > 0 {
			if err := json.Unmarshal(call.Args, &args); err != nil {
				c.logger.Warn("bad escalation args", "chat_id", chatID, "error", err)
			}
		}
		if err := c.Escalate(ctx, chatID, args.Reason); err != nil {
			res.Output = "Error: could not escalate the conversation"
			res.IsError = true
			c.logger.Error("escalation failed", "chat_id", chatID, "error", err)
			return res
		}
		res.Output = fmt.Sprintf("ESCALATION_TRIGGERED: %s", args.Reason)

	case reply.ToolGetBookingSlots:
		res = c.listSlots(ctx, res)

	case reply.ToolBookTimeSlot:
		res = c.bookSlot(ctx, chatID, call, res)

	default:
		res.Output = fmt.Sprintf("Error: unknown tool %q", call.Name)
		res.IsError = true
		c.logger.Warn("unknown tool intent", "chat_id", chatID, "tool", call.Name)
	}

	return res
}

// slotView is the JSON shape handed to the model for each free slot
type slotView struct {
	ID      string `json:"id"`
	Date    string `json:"date"`
	Time    string `json:"time"`
	TimeRaw string `json:"time_raw"`
}

func (c *Controller) listSlots(ctx context.Context, res reply.ToolResult) reply.ToolResult {
	slots, err := c.store.ListFreeSlots(ctx, c.now(), slotLookaheadDays)
	if err != nil {
		res.Output = "Error: could not retrieve booking slots"
		res.IsError = true
		c.logger.Error("listing slots failed", "error", err)
		return res
	}
	if len(slots) == 0 {
		res.Output = "No available slots at the moment."
		return res
	}

	views := make([]slotView, 0, len(slots))
	for _, s := range slots {
		views = append(views, slotView{
			ID:      s.ID,
			Date:    s.Date,
			Time:    formatClockTime(s.Time),
			TimeRaw: s.Time,
		})
	}
	data, err := json.Marshal(views)
	if err != nil {
		res.Output = "Error: could not format booking slots"
		res.IsError = true
		return res
	}
	res.Output = string(data)
	return res
}

func (c *Controller) bookSlot(ctx context.Context, chatID string, call reply.ToolCall, res reply.ToolResult) reply.ToolResult {
	var args reply.BookSlotArgs
	if err := json.Unmarshal(call.Args, &args); err != nil {
		res.Output = "Error: Please provide either a slot_id or both date and time"
		res.IsError = true
		return res
	}

	slotID := args.SlotID
	if slotID == "" {
		if args.Date == "" || args.Time == "" {
			res.Output = "Error: Please provide either a slot_id or both date and time"
			res.IsError = true
			return res
		}
		resolved, err := c.resolveSlot(ctx, args.Date, args.Time)
		if err != nil {
			res.Output = fmt.Sprintf("Error: No available slot found for %s at %s", args.Date, args.Time)
			res.IsError = true
			return res
		}
		slotID = resolved
	}

	// The claim re-checks availability atomically; an earlier slot listing is
	// only a snapshot and may have lost a race with another chat by now.
	slot, err := c.store.ClaimSlot(ctx, slotID, chatID)
	if errors.Is(err, store.ErrSlotUnavailable) {
		res.Output = "Booking failed - slot may no longer be available"
		res.IsError = true
		c.logger.Info("booking race lost", "chat_id", chatID, "slot_id", slotID)
		return res
	}
	if err != nil {
		res.Output = "Booking failed - please try again later"
		res.IsError = true
		c.logger.Error("claiming slot failed", "chat_id", chatID, "slot_id", slotID, "error", err)
		return res
	}

	c.registry.Broadcast(chatID, wire.Event{
		Name: wire.EventBookingConfirmed,
		Data: wire.BookingConfirmed{ChatID: chatID, Slot: wire.FromSlot(slot)},
	})

	res.Output = fmt.Sprintf("Booking successful: %s at %s", slot.Date, formatClockTime(slot.Time))
	return res
}

// resolveSlot finds a free slot matching a natural-language date/time pair
func (c *Controller) resolveSlot(ctx context.Context, date, timeOfDay string) (string, error) {
	normalized := normalizeTime(timeOfDay)

	slots, err := c.store.ListFreeSlots(ctx, c.now(), slotLookaheadDays)
	if err != nil {
		return "", err
	}
	for _, s := range slots {
		if s.Date == date && s.Time == normalized {
			return s.ID, nil
		}
	}
	return "", store.ErrSlotUnavailable
}

// normalizeTime converts "9:00", "900", or "09:00" into the stored HHMM form
func normalizeTime(t string) string {
	t = strings.ReplaceAll(t, ":", "")
	for len(t) < 4 {
		t = "0" + t
	}
	return t
}

// formatClockTime renders a stored HHMM time as HH:MM
func formatClockTime(t string) string {
	if len(t) != 4 {
		return t
	}
	return t[:2] + ":" + t[2:]
}
