// ABOUTME: REST endpoints for the admin dashboard: chat listing, history, model switching
// ABOUTME: Responses use the {"success": ...} envelope the frontend expects

package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/havana-uni/inquiry-gateway/internal/reply"
	"github.com/havana-uni/inquiry-gateway/internal/store"
	"github.com/havana-uni/inquiry-gateway/internal/wire"
)

// Store is what the REST layer reads from persistence
type Store interface {
	ListChats(ctx context.Context) ([]*store.Chat, error)
	GetChat(ctx context.Context, id string) (*store.Chat, error)
	GetHistory(ctx context.Context, chatID string) ([]*store.Message, error)
}

// ModelSelector switches the active reply provider
type ModelSelector interface {
	Current() string
	Set(name string) error
}

// Handler serves the /api routes
type Handler struct {
	store    Store
	selector ModelSelector
	ws       http.Handler
	logger   *slog.Logger
}

// New creates the REST handler. Pass nil logger for default.
func New(st Store, selector ModelSelector, ws http.Handler, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:    st,
		selector: selector,
		ws:       ws,
		logger:   logger.With("component", "httpapi"),
	}
}

// Routes assembles the full HTTP surface: REST API, websocket endpoint,
// health check.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/api/chats", h.listChats)
	r.Get("/api/chats/{chatID}", h.getChat)
	r.Get("/api/model", h.getModel)
	r.Post("/api/model", h.setModel)
	r.Get("/healthz", h.health)
	if h.ws != nil {
		r.Handle("/ws", h.ws)
	}
	return r
}

type chatListResponse struct {
	Success bool         `json:"success"`
	Chats   []*wire.Chat `json:"chats"`
}

type chatDetailResponse struct {
	Success bool           `json:"success"`
	Chat    *wire.Chat     `json:"chat"`
	History []wire.Message `json:"history"`
}

type modelResponse struct {
	Success bool   `json:"success"`
	Model   string `json:"model"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (h *Handler) listChats(w http.ResponseWriter, r *http.Request) {
	chats, err := h.store.ListChats(r.Context())
	if err != nil {
		h.internalError(w, "listing chats", err)
		return
	}

	out := make([]*wire.Chat, 0, len(chats))
	for _, c := range chats {
		out = append(out, wire.FromChat(c))
	}
	h.writeJSON(w, http.StatusOK, chatListResponse{Success: true, Chats: out})
}

func (h *Handler) getChat(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")

	chat, err := h.store.GetChat(r.Context(), chatID)
	if errors.Is(err, store.ErrNotFound) {
		h.writeJSON(w, http.StatusNotFound, errorResponse{Error: "Chat not found"})
		return
	}
	if err != nil {
		h.internalError(w, "loading chat", err)
		return
	}

	history, err := h.store.GetHistory(r.Context(), chatID)
	if err != nil {
		h.internalError(w, "loading history", err)
		return
	}

	h.writeJSON(w, http.StatusOK, chatDetailResponse{
		Success: true,
		Chat:    wire.FromChat(chat),
		History: wire.FromMessages(history),
	})
}

func (h *Handler) getModel(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, modelResponse{Success: true, Model: h.selector.Current()})
}

func (h *Handler) setModel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model string `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	}

	if err := h.selector.Set(req.Model); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: `Invalid model name. Use "openai" or "gemini".`,
		})
		return
	}

	h.logger.Info("model switched", "model", req.Model)
	h.writeJSON(w, http.StatusOK, modelResponse{Success: true, Model: req.Model})
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) internalError(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op+" failed", "error", err)
	h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal server error"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("writing response failed", "error", err)
	}
}

var _ ModelSelector = (*reply.Selector)(nil)
