// Package bridge is the HTTP surface in front of the conversation manager
// and the inference backend: chat and generate endpoints, session and
// document management, tool calling, health, and metrics. It binds to
// loopback by default.
package bridge

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/Kenbark42/dominus-ai/internal/backend"
	"github.com/Kenbark42/dominus-ai/internal/conversation"
	"github.com/Kenbark42/dominus-ai/internal/rag"
	"github.com/Kenbark42/dominus-ai/internal/tool"
)

// Backend is the inference client surface the bridge depends on.
type Backend interface {
	Generate(ctx context.Context, req backend.GenerateRequest) (*backend.GenerateResponse, error)
	GenerateStream(ctx context.Context, req backend.GenerateRequest, fn func(backend.GenerateResponse) error) error
	Health(ctx context.Context) error
	Model() string
	Options(p backend.Params) backend.Options
}

// Config holds the bridge server configuration.
type Config struct {
	// Bind is the listen address.
	Bind string

	// BearerToken, when non-empty, is required on every endpoint except
	// /health and /metrics.
	BearerToken string

	// SystemPrompt is prepended to non-continuation prompts when the
	// request does not carry its own.
	SystemPrompt string

	// ToolMaxRounds bounds tool-call iterations in /generate_with_tools.
	ToolMaxRounds int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

func (c *Config) defaults() {
	if c.Bind == "" {
		c.Bind = "127.0.0.1:8080"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 600 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	if c.ToolMaxRounds <= 0 {
		c.ToolMaxRounds = 3
	}
}

// Server is the bridge HTTP server.
type Server struct {
	config  Config
	manager *conversation.Manager
	backend Backend

	// Optional collaborators; nil disables the corresponding endpoints.
	engine   *rag.Engine
	tools    *tool.Registry
	executor *tool.Executor

	metrics   *Metrics
	logger    *slog.Logger
	tracer    trace.Tracer
	server    *http.Server
	startedAt time.Time
}

// New creates a bridge server. Manager and backend are required; engine,
// tools, and executor may be nil to disable their endpoints.
func New(cfg Config, manager *conversation.Manager, be Backend, engine *rag.Engine, tools *tool.Registry, executor *tool.Executor, logger *slog.Logger) *Server {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		config:   cfg,
		manager:  manager,
		backend:  be,
		engine:   engine,
		tools:    tools,
		executor: executor,
		metrics:  NewMetrics(manager),
		logger:   logger,
		tracer:   otel.Tracer("dominus/bridge"),
	}
}

// Handler returns the fully wired route tree. Exposed for tests.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// buildRouter constructs the chi mux with all routes wired.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(s.metrics.middleware)
	r.Use(corsMiddleware)

	// Public — no auth required.
	r.Get("/health", s.handleHealth())
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Group(func(r chi.Router) {
		if s.config.BearerToken != "" {
			r.Use(authMiddleware(s.config.BearerToken))
		}

		r.Post("/chat", s.handleChat())
		r.Post("/generate", s.handleGenerate())
		r.Get("/ws/chat", s.handleChatStream())

		r.Post("/session/create", s.handleSessionCreate())
		r.Post("/session/info", s.handleSessionInfo())

		r.Route("/api", func(r chi.Router) {
			r.Get("/sessions", s.handleListSessions())
			r.Delete("/sessions/{id}", s.handleDeleteSession())
		})

		if s.engine != nil {
			r.Route("/documents", func(r chi.Router) {
				r.Post("/ingest", s.handleDocumentIngest())
				r.Post("/search", s.handleDocumentSearch())
				r.Get("/collections", s.handleListCollections())
				r.Delete("/collections/{name}", s.handleDeleteCollection())
				r.Get("/stats", s.handleDocumentStats())
			})
		}

		if s.tools != nil && s.executor != nil {
			r.Get("/tools/list", s.handleListTools())
			r.Post("/tools/list", s.handleListTools())
			r.Post("/tools/execute", s.handleExecuteTool())
			r.Post("/generate_with_tools", s.handleGenerateWithTools())
		}
	})

	return r
}

// corsMiddleware adds permissive CORS headers and answers preflight
// requests, for browser clients on other origins (local web UIs).
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start begins serving in a background goroutine.
func (s *Server) Start() error {
	s.startedAt = time.Now()

	s.server = &http.Server{
		Addr:         s.config.Bind,
		Handler:      s.buildRouter(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", s.config.Bind)
	if err != nil {
		return errors.New("bridge: listen failed: " + err.Error())
	}

	go func() {
		s.logger.Info("bridge listening", "addr", s.config.Bind)
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("bridge serve error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts the server down with the configured timeout.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("bridge shutting down")
	return s.server.Shutdown(shutdownCtx)
}
