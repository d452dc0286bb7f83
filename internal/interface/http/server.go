// Package http exposes the planner over HTTP: liveness and readiness probes,
// dispatcher statistics and thin JSON endpoints over the task use cases.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/study-planner/planner-core/internal/infrastructure/messaging"
	"github.com/study-planner/planner-core/internal/interface/http/handlers"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	Host string
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// MaxBodyBytes caps request bodies of the write endpoints.
	MaxBodyBytes int64

	Version string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		MaxBodyBytes: 64 << 10,
	}
}

// Address returns the server address string.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// DispatcherStats is the read side of the event dispatcher.
type DispatcherStats interface {
	Metrics() *messaging.DispatcherMetrics
	DeadLetterQueue() *messaging.DeadLetterQueue
	Policy() messaging.FailurePolicy
}

// Dependencies contains everything the handlers need. Nil use cases leave
// their routes unregistered.
type Dependencies struct {
	UseCases   UseCases
	Dispatcher DispatcherStats
	Health     *handlers.HealthChecker
	Logger     *slog.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server is the planner HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	logger     *slog.Logger
	httpServer *http.Server
	handler    http.Handler

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a server and registers its routes.
func NewServer(config Config, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Health == nil {
		deps.Health = handlers.NewHealthChecker(config.Version)
	}

	s := &Server{
		config: config,
		deps:   deps,
		logger: deps.Logger.With("component", "http"),
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)
	s.handler = s.chain(mux, s.recoveryMiddleware, s.requestIDMiddleware, s.loggingMiddleware)

	s.httpServer = &http.Server{
		Addr:         config.Address(),
		Handler:      s.handler,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	// Probes
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.HandleFunc("GET /live", s.handleLive)

	if s.deps.Dispatcher != nil {
		mux.HandleFunc("GET /debug/dispatcher", s.handleDispatcherStats)
	}

	s.registerUseCaseRoutes(mux)
}

// chain applies middlewares so that the first one is outermost.
func (s *Server) chain(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// ══════════════════════════════════════════════════════════════════════════════
// PROBE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.deps.Health.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.IsRunning() {
		writeJSONError(w, http.StatusServiceUnavailable, "not_ready", "server is starting")
		return
	}
	s.handleHealth(w, r)
}

func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

type dispatcherStatsResponse struct {
	Policy      string                              `json:"policy"`
	Metrics     messaging.DispatcherMetricsSnapshot `json:"metrics"`
	DeadLetters []deadLetterDTO                     `json:"dead_letters"`
}

type deadLetterDTO struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Handler   string    `json:"handler"`
	Error     string    `json:"error"`
	FailedAt  time.Time `json:"failed_at"`
}

func (s *Server) handleDispatcherStats(w http.ResponseWriter, _ *http.Request) {
	var entries []messaging.DeadLetterEntry
	if dlq := s.deps.Dispatcher.DeadLetterQueue(); dlq != nil {
		entries = dlq.Entries()
	}
	resp := dispatcherStatsResponse{
		Policy:      s.deps.Dispatcher.Policy().String(),
		Metrics:     s.deps.Dispatcher.Metrics().Snapshot(),
		DeadLetters: make([]deadLetterDTO, 0, len(entries)),
	}
	for _, e := range entries {
		dto := deadLetterDTO{Handler: e.HandlerName, FailedAt: e.FailedAt}
		if e.Event != nil {
			dto.EventID = e.Event.EventID()
			dto.EventType = string(e.Event.EventType())
		}
		if e.Error != nil {
			dto.Error = e.Error.Error()
		}
		resp.DeadLetters = append(resp.DeadLetters, dto)
	}
	writeJSON(w, http.StatusOK, resp)
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

type contextKey string

const contextKeyRequestID contextKey = "request_id"

// RequestIDHeader carries the request id in and out. It also becomes the
// correlation id of the events the request produces.
const RequestIDHeader = "X-Request-ID"

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = generateRequestID()
		}
		w.Header().Set(RequestIDHeader, id)

		ctx := context.WithValue(r.Context(), contextKeyRequestID, id)
		ctx = messaging.WithCorrelationID(ctx, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		level := slog.LevelDebug
		switch {
		case rw.statusCode >= 500:
			level = slog.LevelError
		case rw.statusCode >= 400:
			level = slog.LevelWarn
		}
		s.logger.Log(r.Context(), level, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.statusCode,
			"duration", time.Since(start),
			"request_id", RequestID(r.Context()),
		)
	})
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic in http handler",
					"panic", rec,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)
				writeJSONError(w, http.StatusInternalServerError, "internal", "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// RequestID returns the request id stored in ctx.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(contextKeyRequestID).(string); ok {
		return id
	}
	return ""
}

func generateRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", "address", s.config.Address())

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server. Called before Start, it makes
// Start return immediately.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// markRunning is used by tests that drive Handler without listening.
func (s *Server) markRunning() {
	s.mu.Lock()
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}
