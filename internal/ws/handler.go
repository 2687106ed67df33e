// ABOUTME: WebSocket endpoint: upgrades HTTP, decodes event envelopes, dispatches to the router
// ABOUTME: Maps router rejections to error events; transport close triggers full unbind

package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/havana-uni/inquiry-gateway/internal/registry"
	"github.com/havana-uni/inquiry-gateway/internal/router"
	"github.com/havana-uni/inquiry-gateway/internal/wire"
)

// Router is what the transport needs from the message router
type Router interface {
	StudentConnect(ctx context.Context, conn registry.Conn, chatID string) error
	StudentMessage(ctx context.Context, conn registry.Conn, chatID, text string) error
	AdminConnect(ctx context.Context, conn registry.Conn, chatID string) error
	AdminDisconnect(connID, chatID string)
	AdminMessage(ctx context.Context, conn registry.Conn, chatID, text string) error
	ToggleHumanEnabled(ctx context.Context, chatID string, enabled bool) error
	Disconnect(connID string)
}

// Handler serves the /ws endpoint
type Handler struct {
	router   Router
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler creates the WebSocket handler. Pass nil logger for default.
func NewHandler(r Router, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		router: r,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The gateway sits behind the campus reverse proxy; origin
			// enforcement happens there.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger.With("component", "ws"),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := newClient(conn, h.logger)
	h.logger.Info("connection opened", "conn_id", client.ID(), "remote", r.RemoteAddr)

	go client.writePump()
	h.readPump(r.Context(), client)

	h.router.Disconnect(client.ID())
	client.close()
	h.logger.Info("connection closed", "conn_id", client.ID())
}

func (h *Handler) readPump(ctx context.Context, client *Client) {
	client.conn.SetReadLimit(maxMessageSize)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("read error", "conn_id", client.ID(), "error", err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			h.logger.Warn("malformed frame", "conn_id", client.ID(), "error", err)
			continue
		}
		h.dispatch(ctx, client, env)
	}
}

// dispatch routes one inbound envelope. Rejections the frontend can act on
// become error events; binding/validation rejections are logged no-ops.
func (h *Handler) dispatch(ctx context.Context, client *Client, env Envelope) {
	var err error
	switch env.Event {
	case wire.EventStudentConnect:
		var req wire.StudentConnectRequest
		if err = json.Unmarshal(orEmpty(env.Data), &req); err == nil {
			err = h.router.StudentConnect(ctx, client, req.ChatID)
		}
	case wire.EventStudentMessage:
		var req wire.StudentMessageRequest
		if err = json.Unmarshal(orEmpty(env.Data), &req); err == nil {
			err = h.router.StudentMessage(ctx, client, req.ChatID, req.Message)
		}
	case wire.EventAdminConnect:
		var req wire.AdminConnectRequest
		if err = json.Unmarshal(orEmpty(env.Data), &req); err == nil {
			err = h.router.AdminConnect(ctx, client, req.ChatID)
		}
	case wire.EventAdminDisconnectFromChat:
		var req wire.AdminDisconnectRequest
		if err = json.Unmarshal(orEmpty(env.Data), &req); err == nil {
			h.router.AdminDisconnect(client.ID(), req.ChatID)
		}
	case wire.EventAdminMessage:
		var req wire.AdminMessageRequest
		if err = json.Unmarshal(orEmpty(env.Data), &req); err == nil {
			err = h.router.AdminMessage(ctx, client, req.ChatID, req.Message)
		}
	case wire.EventToggleHumanEnabled:
		var req wire.ToggleHumanEnabledRequest
		if err = json.Unmarshal(orEmpty(env.Data), &req); err == nil {
			err = h.router.ToggleHumanEnabled(ctx, req.ChatID, req.IsEnabled)
		}
	default:
		h.logger.Warn("unknown event", "conn_id", client.ID(), "event", env.Event)
		return
	}

	if err != nil {
		h.reportError(client, env.Event, err)
	}
}

func (h *Handler) reportError(client *Client, event string, err error) {
	switch {
	case errors.Is(err, router.ErrChatNotFound):
		h.sendError(client, "Chat not found")
	case errors.Is(err, router.ErrHumanNotEnabled):
		h.sendError(client, "Human intervention not enabled for this chat")
	case errors.Is(err, router.ErrEmptyMessage), errors.Is(err, router.ErrNotStudentBound):
		h.logger.Debug("rejected event", "conn_id", client.ID(), "event", event, "error", err)
	default:
		h.logger.Error("event handling failed", "conn_id", client.ID(), "event", event, "error", err)
		h.sendError(client, "Internal server error")
	}
}

func (h *Handler) sendError(client *Client, msg string) {
	_ = client.Send(wire.Event{Name: wire.EventError, Data: wire.Error{Message: msg}})
}

func orEmpty(data json.RawMessage) json.RawMessage {
	if len(data) == 0 {
		return json.RawMessage("{}")
	}
	return data
}
