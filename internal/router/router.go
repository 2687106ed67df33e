// ABOUTME: MessageRouter orchestrates one full request/response cycle per inbound event
// ABOUTME: Persists messages, invokes the reply engine, applies escalation, fans out events

package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/havana-uni/inquiry-gateway/internal/registry"
	"github.com/havana-uni/inquiry-gateway/internal/reply"
	"github.com/havana-uni/inquiry-gateway/internal/store"
	"github.com/havana-uni/inquiry-gateway/internal/wire"
)

// Router errors. ErrChatNotFound is surfaced to the requesting connection;
// the rejection errors are no-ops the transport logs and swallows.
var (
	ErrChatNotFound    = errors.New("chat not found")
	ErrEmptyMessage    = errors.New("empty message")
	ErrNotStudentBound = errors.New("connection is not the chat's student")
	ErrHumanNotEnabled = errors.New("human intervention not enabled for this chat")
)

// Store defines what the router needs from persistence
type Store interface {
	CreateChat(ctx context.Context) (*store.Chat, error)
	GetChat(ctx context.Context, id string) (*store.Chat, error)
	AppendMessage(ctx context.Context, chatID, role, text string) (*store.Message, error)
	GetHistory(ctx context.Context, chatID string) ([]*store.Message, error)
}

// Escalator is the router's view of the escalation controller
type Escalator interface {
	SetHumanEnabled(ctx context.Context, chatID string, enabled bool) error
	ExecuteTool(ctx context.Context, chatID string, call reply.ToolCall) reply.ToolResult
}

// Registry is the router's view of the connection registry
type Registry interface {
	Bind(conn registry.Conn, chatID string, role registry.Role)
	Unbind(connID, chatID string) (registry.Role, bool)
	UnbindAll(connID string) []registry.Binding
	IsBound(connID, chatID string, role registry.Role) bool
	IsAdminConnected(chatID string) bool
	Broadcast(chatID string, ev wire.Event)
}

// Router decides, for every inbound event, who answers and who hears about
// it. Events for the same chat are serialized; different chats run in
// parallel.
type Router struct {
	store      Store
	engine     reply.Engine
	escalation Escalator
	registry   Registry
	locks      *chatLocks
	logger     *slog.Logger
}

// New creates a Router. Pass nil logger for default.
func New(st Store, engine reply.Engine, esc Escalator, reg Registry, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		store:      st,
		engine:     engine,
		escalation: esc,
		registry:   reg,
		locks:      newChatLocks(),
		logger:     logger.With("component", "router"),
	}
}

// StudentConnect joins a student connection to a chat. With an empty chatID a
// fresh chat is created and announced via chat_created; otherwise the
// existing chat is loaded. The caller receives student_connected with the
// chat, its history, and current admin presence.
func (r *Router) StudentConnect(ctx context.Context, conn registry.Conn, chatID string) error {
	var chat *store.Chat
	var history []*store.Message

	if chatID == "" {
		created, err := r.store.CreateChat(ctx)
		if err != nil {
			return fmt.Errorf("creating chat: %w", err)
		}
		chat = created
		if err := conn.Send(wire.Event{
			Name: wire.EventChatCreated,
			Data: wire.ChatCreated{ChatID: chat.ID},
		}); err != nil {
			return err
		}
		r.logger.Info("chat created", "chat_id", chat.ID, "conn_id", conn.ID())
	} else {
		existing, err := r.store.GetChat(ctx, chatID)
		if errors.Is(err, store.ErrNotFound) {
			r.logger.Warn("student connect to unknown chat", "chat_id", chatID, "conn_id", conn.ID())
			return ErrChatNotFound
		}
		if err != nil {
			return fmt.Errorf("loading chat: %w", err)
		}
		chat = existing

		history, err = r.store.GetHistory(ctx, chat.ID)
		if err != nil {
			return fmt.Errorf("loading history: %w", err)
		}
	}

	r.registry.Bind(conn, chat.ID, registry.RoleStudent)

	err := conn.Send(wire.Event{
		Name: wire.EventStudentConnected,
		Data: wire.StudentConnected{
			ChatID:           chat.ID,
			Chat:             wire.FromChat(chat),
			History:          wire.FromMessages(history),
			IsAdminConnected: r.registry.IsAdminConnected(chat.ID),
		},
	})
	if err != nil {
		return err
	}

	r.logger.Info("student connected", "chat_id", chat.ID, "conn_id", conn.ID())
	return nil
}

// StudentMessage handles a message from the chat's student. The message is
// persisted and broadcast; while the AI is active the reply engine produces
// an answer, with tool intents routed through the escalation controller
// before the reply is persisted so it can reference tool outcomes.
func (r *Router) StudentMessage(ctx context.Context, conn registry.Conn, chatID, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	if !r.registry.IsBound(conn.ID(), chatID, registry.RoleStudent) {
		r.logger.Warn("student message without binding", "chat_id", chatID, "conn_id", conn.ID())
		return ErrNotStudentBound
	}

	unlock := r.locks.Lock(chatID)
	defer unlock()

	chat, err := r.store.GetChat(ctx, chatID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrChatNotFound
	}
	if err != nil {
		return fmt.Errorf("loading chat: %w", err)
	}

	if _, err := r.persistAndBroadcast(ctx, chatID, store.RoleHuman, text); err != nil {
		return err
	}

	if chat.IsHumanEnabled {
		r.logger.Debug("human enabled, skipping AI response", "chat_id", chatID)
		return nil
	}

	history, err := r.store.GetHistory(ctx, chatID)
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}

	answer := r.generateAnswer(ctx, chatID, history)
	if _, err := r.persistAndBroadcast(ctx, chatID, store.RoleAI, answer); err != nil {
		return err
	}
	return nil
}

// generateAnswer runs the engine and resolves tool intents, falling back to
// a canned reply on engine failure. Engine failure never escalates by
// itself; only an explicit escalation intent flips the chat to human.
func (r *Router) generateAnswer(ctx context.Context, chatID string, history []*store.Message) string {
	rep, err := r.engine.GenerateReply(ctx, history)
	if err != nil {
		r.logger.Error("reply generation failed", "chat_id", chatID, "error", err)
		return reply.FallbackText
	}

	answer := rep.Text
	if len(rep.ToolCalls) > 0 {
		// Intents run in the order the engine emitted them
		results := make([]reply.ToolResult, 0, len(rep.ToolCalls))
		for _, call := range rep.ToolCalls {
			results = append(results, r.escalation.ExecuteTool(ctx, chatID, call))
		}

		final, err := r.engine.ComposeFinal(ctx, history, rep, results)
		if err != nil {
			r.logger.Error("final composition failed", "chat_id", chatID, "error", err)
		} else if final != "" {
			answer = final
		}
	}

	if answer == "" {
		answer = reply.FallbackText
	}
	return answer
}

// AdminConnect joins an admin connection to a chat and announces the
// presence change to everyone watching it.
func (r *Router) AdminConnect(ctx context.Context, conn registry.Conn, chatID string) error {
	chat, err := r.store.GetChat(ctx, chatID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrChatNotFound
	}
	if err != nil {
		return fmt.Errorf("loading chat: %w", err)
	}

	history, err := r.store.GetHistory(ctx, chatID)
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}

	r.registry.Bind(conn, chatID, registry.RoleAdmin)

	if err := conn.Send(wire.Event{
		Name: wire.EventAdminConnected,
		Data: wire.AdminConnected{
			ChatID:  chatID,
			Chat:    wire.FromChat(chat),
			History: wire.FromMessages(history),
		},
	}); err != nil {
		return err
	}

	r.registry.Broadcast(chatID, wire.Event{
		Name: wire.EventAdminStatusChanged,
		Data: wire.AdminStatusChanged{ChatID: chatID, IsAdminConnected: true},
	})

	r.logger.Info("admin connected", "chat_id", chatID, "conn_id", conn.ID())
	return nil
}

// AdminDisconnect detaches an admin from one chat. The presence change is
// announced only when the last admin binding for the chat goes away.
func (r *Router) AdminDisconnect(connID, chatID string) {
	role, removed := r.registry.Unbind(connID, chatID)
	if !removed || role != registry.RoleAdmin {
		return
	}
	if !r.registry.IsAdminConnected(chatID) {
		r.registry.Broadcast(chatID, wire.Event{
			Name: wire.EventAdminStatusChanged,
			Data: wire.AdminStatusChanged{ChatID: chatID, IsAdminConnected: false},
		})
	}
	r.logger.Info("admin disconnected from chat", "chat_id", chatID, "conn_id", connID)
}

// Disconnect removes all bindings for a connection (transport close) and
// announces admin presence changes for chats that lost their last admin.
func (r *Router) Disconnect(connID string) {
	for _, b := range r.registry.UnbindAll(connID) {
		if b.Role == registry.RoleAdmin && !r.registry.IsAdminConnected(b.ChatID) {
			r.registry.Broadcast(b.ChatID, wire.Event{
				Name: wire.EventAdminStatusChanged,
				Data: wire.AdminStatusChanged{ChatID: b.ChatID, IsAdminConnected: false},
			})
		}
	}
}

// AdminMessage handles a message from a human operator. Rejected unless the
// chat is in human-active state, so an admin cannot collide with an
// in-flight AI answer.
func (r *Router) AdminMessage(ctx context.Context, conn registry.Conn, chatID, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	unlock := r.locks.Lock(chatID)
	defer unlock()

	chat, err := r.store.GetChat(ctx, chatID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrChatNotFound
	}
	if err != nil {
		return fmt.Errorf("loading chat: %w", err)
	}

	if !chat.IsHumanEnabled {
		r.logger.Warn("admin message while AI active, rejecting", "chat_id", chatID, "conn_id", conn.ID())
		return ErrHumanNotEnabled
	}

	if _, err := r.persistAndBroadcast(ctx, chatID, store.RoleHumanOperator, text); err != nil {
		return err
	}
	return nil
}

// ToggleHumanEnabled applies an explicit admin toggle via the escalation
// controller, which persists the flag and announces the change.
func (r *Router) ToggleHumanEnabled(ctx context.Context, chatID string, enabled bool) error {
	unlock := r.locks.Lock(chatID)
	defer unlock()

	err := r.escalation.SetHumanEnabled(ctx, chatID, enabled)
	if errors.Is(err, store.ErrNotFound) {
		return ErrChatNotFound
	}
	return err
}

// persistAndBroadcast appends a message to the chat and fans out new_message
func (r *Router) persistAndBroadcast(ctx context.Context, chatID, role, text string) (*store.Message, error) {
	msg, err := r.store.AppendMessage(ctx, chatID, role, text)
	if err != nil {
		return nil, fmt.Errorf("persisting message: %w", err)
	}

	r.registry.Broadcast(chatID, wire.Event{
		Name: wire.EventNewMessage,
		Data: wire.FromMessage(msg),
	})
	return msg, nil
}
