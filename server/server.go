// Package server implements the todomagic HTTP server, REST API, auth, and SSE real-time events.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/GoCodeAlone/todomagic/comms"
	"github.com/GoCodeAlone/todomagic/config"
	"github.com/GoCodeAlone/todomagic/server/api"
	"github.com/GoCodeAlone/todomagic/server/ws"
)

// Server is the todomagic HTTP server.
type Server struct {
	cfg     config.Config
	mux     *http.ServeMux
	httpSrv *http.Server
	logger  *slog.Logger

	lists    api.ListManager
	bus      comms.Bus
	hub      *ws.Hub
	handlers *api.Handlers

	runMu       sync.Mutex
	unsubscribe func()
	stopped     bool

	// JWT secret caching
	secretOnce      sync.Once
	generatedSecret string

	startTime time.Time
	version   string
}

// New creates a new Server with the given config and logger.
func New(cfg config.Config, ver string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:       cfg,
		mux:       http.NewServeMux(),
		logger:    logger,
		hub:       ws.NewHub(logger),
		startTime: time.Now(),
		version:   ver,
	}
}

// SetListManager attaches the list manager the API drives.
func (s *Server) SetListManager(mgr api.ListManager) {
	s.lists = mgr
}

// SetBus attaches a comms bus to the server. Its events are streamed to SSE clients.
func (s *Server) SetBus(bus comms.Bus) {
	s.bus = bus
	s.hub.SetHistory(bus.History)
}

// Start registers routes and begins listening. It returns
// http.ErrServerClosed after Stop.
func (s *Server) Start() error {
	s.registerRoutes()

	addr := s.cfg.Server.Addr
	if addr == "" {
		addr = ":9090"
	}

	s.runMu.Lock()
	if s.stopped {
		s.runMu.Unlock()
		return http.ErrServerClosed
	}
	if s.bus != nil {
		s.unsubscribe = s.bus.Subscribe(comms.Wildcard, s.hub.Forward)
	}
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 15 * time.Second,
	}
	srv := s.httpSrv
	s.runMu.Unlock()

	s.logger.Info("server listening", slog.String("addr", addr))
	return srv.ListenAndServe()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.runMu.Lock()
	s.stopped = true
	unsubscribe, srv := s.unsubscribe, s.httpSrv
	s.unsubscribe = nil
	s.runMu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	s.hub.Close()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// registerRoutes sets up all HTTP routes.
func (s *Server) registerRoutes() {
	h := &api.Handlers{
		Lists:   s.lists,
		Bus:     s.bus,
		Logger:  s.logger,
		Version: s.version,
		StartAt: s.startTime,
	}
	s.handlers = h

	// Public routes (no auth required)
	s.mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	s.mux.HandleFunc("GET /api/status", h.StatusHandler())

	// SSE; auth handled inline because EventSource can't set headers
	s.mux.HandleFunc("GET /events", s.handleSSE)

	// Protected API, wrapped in auth middleware
	apiMux := http.NewServeMux()
	h.RegisterRoutes(apiMux)
	apiMux.HandleFunc("GET /api/auth/me", s.handleMe)

	s.mux.Handle("/api/", s.authMiddleware(apiMux))
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes a JSON error response.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleSSE streams bus events. The token travels as a query parameter.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if _, err := verifyToken(s.jwtSecret(), token); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	s.hub.ServeSSE(w, r)
}
