// ABOUTME: In-memory registry of live connections bound to chats by role
// ABOUTME: Answers admin presence queries and fans out events to chat bindings

package registry

import (
	"log/slog"
	"sync"

	"github.com/havana-uni/inquiry-gateway/internal/wire"
)

// Role distinguishes how a connection observes a chat
type Role string

const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

// Conn is a live transport connection able to receive outbound events.
// Send must not block indefinitely; a failed send marks the connection dead.
type Conn interface {
	ID() string
	Send(ev wire.Event) error
}

// Binding is an ephemeral association of a connection to a chat and role
type Binding struct {
	ConnID string
	ChatID string
	Role   Role
}

// Registry tracks which connections observe which chats, in which role.
// Bindings are ephemeral: they vanish on disconnect and are never persisted.
type Registry struct {
	mu     sync.RWMutex
	chats  map[string]map[string]*entry // chatID -> connID -> entry
	conns  map[string]map[string]Role   // connID -> chatID -> role
	logger *slog.Logger
}

type entry struct {
	conn Conn
	role Role
}

// New creates a Registry. Pass nil logger for default.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		chats:  make(map[string]map[string]*entry),
		conns:  make(map[string]map[string]Role),
		logger: logger.With("component", "registry"),
	}
}

// Bind adds or replaces the binding of conn to chatID. Re-binding the same
// connection to the same chat is idempotent. A student connection observes
// exactly one chat at a time, so a student bind drops the connection's
// student bindings to any other chat first.
func (r *Registry) Bind(conn Conn, chatID string, role Role) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if role == RoleStudent {
		for otherChat, otherRole := range r.conns[conn.ID()] {
			if otherChat != chatID && otherRole == RoleStudent {
				r.removeLocked(conn.ID(), otherChat)
			}
		}
	}

	if _, ok := r.chats[chatID]; !ok {
		r.chats[chatID] = make(map[string]*entry)
	}
	r.chats[chatID][conn.ID()] = &entry{conn: conn, role: role}

	if _, ok := r.conns[conn.ID()]; !ok {
		r.conns[conn.ID()] = make(map[string]Role)
	}
	r.conns[conn.ID()][chatID] = role

	r.logger.Debug("connection bound", "conn_id", conn.ID(), "chat_id", chatID, "role", role)
}

// Unbind removes the binding of a connection to one chat.
// Returns the removed role and whether a binding existed.
func (r *Registry) Unbind(connID, chatID string) (Role, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	role, ok := r.conns[connID][chatID]
	if !ok {
		return "", false
	}
	r.removeLocked(connID, chatID)

	r.logger.Debug("connection unbound", "conn_id", connID, "chat_id", chatID, "role", role)
	return role, true
}

// UnbindAll removes every binding for a connection (transport disconnect).
// Returns the removed bindings so callers can emit presence changes.
func (r *Registry) UnbindAll(connID string) []Binding {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []Binding
	for chatID, role := range r.conns[connID] {
		removed = append(removed, Binding{ConnID: connID, ChatID: chatID, Role: role})
	}
	for _, b := range removed {
		r.removeLocked(connID, b.ChatID)
	}

	if len(removed) > 0 {
		r.logger.Debug("connection unbound from all chats", "conn_id", connID, "bindings", len(removed))
	}
	return removed
}

// IsBound reports whether the connection holds a binding to the chat in the given role
func (r *Registry) IsBound(connID, chatID string, role Role) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns[connID][chatID] == role
}

// IsAdminConnected reports whether at least one admin binding exists for the chat
func (r *Registry) IsAdminConnected(chatID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.chats[chatID] {
		if e.role == RoleAdmin {
			return true
		}
	}
	return false
}

// Broadcast delivers an event to every connection bound to the chat,
// regardless of role. Delivery is best-effort, at most once: a connection
// whose send fails is treated as dead and implicitly unbound from the chat.
func (r *Registry) Broadcast(chatID string, ev wire.Event) {
	r.mu.RLock()
	targets := make([]Conn, 0, len(r.chats[chatID]))
	for _, e := range r.chats[chatID] {
		targets = append(targets, e.conn)
	}
	r.mu.RUnlock()

	var dead []string
	for _, conn := range targets {
		if err := conn.Send(ev); err != nil {
			r.logger.Warn("dropping dead connection from chat",
				"conn_id", conn.ID(), "chat_id", chatID, "event", ev.Name, "error", err)
			dead = append(dead, conn.ID())
		}
	}

	for _, connID := range dead {
		r.Unbind(connID, chatID)
	}
}

// removeLocked deletes one binding and cleans up empty map entries.
// Caller must hold r.mu.
func (r *Registry) removeLocked(connID, chatID string) {
	if m, ok := r.chats[chatID]; ok {
		delete(m, connID)
		if len(m) == 0 {
			delete(r.chats, chatID)
		}
	}
	if m, ok := r.conns[connID]; ok {
		delete(m, chatID)
		if len(m) == 0 {
			delete(r.conns, connID)
		}
	}
}
