// ABOUTME: Gateway orchestrator that wires the store, reply engine, router, and HTTP server
// ABOUTME: Owns component lifecycle from construction through graceful shutdown

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/havana-uni/inquiry-gateway/internal/config"
	"github.com/havana-uni/inquiry-gateway/internal/escalation"
	"github.com/havana-uni/inquiry-gateway/internal/httpapi"
	"github.com/havana-uni/inquiry-gateway/internal/registry"
	"github.com/havana-uni/inquiry-gateway/internal/reply"
	"github.com/havana-uni/inquiry-gateway/internal/router"
	"github.com/havana-uni/inquiry-gateway/internal/store"
	"github.com/havana-uni/inquiry-gateway/internal/ws"
)

// Gateway owns the assembled inquiry gateway: persistence, the reply
// engine, the message router, and the HTTP server that carries both the
// REST API and the websocket endpoint.
type Gateway struct {
	config     *config.Config
	store      *store.SQLiteStore
	registry   *registry.Registry
	selector   *reply.Selector
	engine     *reply.OpenAIEngine
	router     *router.Router
	httpServer *http.Server
	logger     *slog.Logger
}

// initStore creates the store from config, honoring the INQUIRY_DB_PATH
// override used by deploy scripts.
func initStore(cfg *config.Config) (*store.SQLiteStore, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("INQUIRY_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// New assembles a Gateway from configuration. Pass nil logger for default.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	st, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	selector, err := reply.NewSelector(cfg.AI.DefaultProvider)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("creating provider selector: %w", err)
	}

	campusData := reply.LoadCampusData(cfg.AI.CampusDataPath, logger)
	engine := reply.NewOpenAIEngine(selector, map[string]reply.ProviderSettings{
		reply.ProviderOpenAI: {
			APIKey:  cfg.AI.OpenAI.APIKey,
			BaseURL: cfg.AI.OpenAI.BaseURL,
			Model:   cfg.AI.OpenAI.Model,
		},
		reply.ProviderGemini: {
			APIKey:  cfg.AI.Gemini.APIKey,
			BaseURL: cfg.AI.Gemini.BaseURL,
			Model:   cfg.AI.Gemini.Model,
		},
	}, campusData, cfg.AI.HistoryWindow, logger)

	reg := registry.New(logger)
	esc := escalation.New(st, reg, logger)
	rt := router.New(st, engine, esc, reg, logger)

	wsHandler := ws.NewHandler(rt, logger)
	api := httpapi.New(st, selector, wsHandler, logger)

	g := &Gateway{
		config:   cfg,
		store:    st,
		registry: reg,
		selector: selector,
		engine:   engine,
		router:   rt,
		logger:   logger,
	}
	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return g, nil
}

// Run starts the HTTP server and blocks until the context is canceled or
// the server fails, then shuts down gracefully.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", g.config.Server.HTTPAddr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown runs Shutdown with a fresh context and timeout. Uses
// context.Background() intentionally since the run context is already
// canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown stops the HTTP server and releases resources
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}
	if err := g.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}
	return errors.Join(errs...)
}

// Store exposes the gateway's store for maintenance commands
func (g *Gateway) Store() *store.SQLiteStore { return g.store }
