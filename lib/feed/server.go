// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package feed

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bureau-foundation/plotline/lib/clock"
	"github.com/bureau-foundation/plotline/lib/metrics"
	"github.com/bureau-foundation/plotline/lib/sessionindex"
)

const (
	DefaultPushInterval = 50 * time.Millisecond

	defaultSessionLimit = 100
	writeTimeout        = 10 * time.Second
	pingInterval        = 30 * time.Second
	shutdownTimeout     = 5 * time.Second
)

// SessionLister lists persisted sessions. *sessionindex.Index
// satisfies it.
type SessionLister interface {
	List(ctx context.Context, limit int) ([]sessionindex.Entry, error)
}

// ServerConfig configures NewServer. Publisher is required.
type ServerConfig struct {
	Publisher *Publisher

	// Registry, if set, is served at /metrics.
	Registry *prometheus.Registry

	// Sessions, if set, backs /api/sessions. Without it the route
	// returns 404.
	Sessions SessionLister

	// PushInterval is the websocket update cadence. Defaults to
	// DefaultPushInterval.
	PushInterval time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

// Server serves the feed routes.
type Server struct {
	publisher    *Publisher
	registry     *prometheus.Registry
	sessions     SessionLister
	pushInterval time.Duration
	clock        clock.Clock
	logger       *slog.Logger
	upgrader     websocket.Upgrader

	// done is closed when Serve begins shutting down; websocket
	// streams watch it because http.Server.Shutdown ignores hijacked
	// connections.
	mu      sync.Mutex
	closing bool
	done    chan struct{}
	streams sync.WaitGroup
}

// NewServer returns a Server.
func NewServer(config ServerConfig) *Server {
	pushInterval := config.PushInterval
	if pushInterval <= 0 {
		pushInterval = DefaultPushInterval
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		publisher:    config.Publisher,
		registry:     config.Registry,
		sessions:     config.Sessions,
		pushInterval: pushInterval,
		clock:        clk,
		logger:       logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 << 10,
		},
		done: make(chan struct{}),
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()
	router.Use(requestLogger(s.logger))

	if s.registry != nil {
		router.Handle("/metrics", metrics.Handler(s.registry))
	}
	router.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/windows", s.handleWindows)
		r.Get("/windows/{group}", s.handleWindow)
		r.Get("/sessions", s.handleSessions)
	})
	router.Get("/ws", s.handleStream)
	return router
}

// Serve serves on listener until ctx is cancelled, then shuts down
// gracefully and closes every websocket stream.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve(listener) }()
	s.logger.Info("feed listening", "address", listener.Addr().String())

	var err error
	select {
	case <-ctx.Done():
	case err = <-serveErr:
	}

	s.mu.Lock()
	if !s.closing {
		s.closing = true
		close(s.done)
	}
	s.mu.Unlock()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		s.logger.Warn("feed shutdown incomplete", "error", shutdownErr)
	}
	if err == nil {
		err = <-serveErr
	}
	s.streams.Wait()

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) latest(w http.ResponseWriter) (*View, bool) {
	view := s.publisher.Load()
	if view == nil {
		http.Error(w, "no data published yet", http.StatusServiceUnavailable)
		return nil, false
	}
	return view, true
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	view, ok := s.latest(w)
	if !ok {
		return
	}
	status := *view
	status.Windows = nil
	writeJSON(w, s.logger, status)
}

func (s *Server) handleWindows(w http.ResponseWriter, r *http.Request) {
	view, ok := s.latest(w)
	if !ok {
		return
	}
	writeJSON(w, s.logger, view.Windows)
}

func (s *Server) handleWindow(w http.ResponseWriter, r *http.Request) {
	view, ok := s.latest(w)
	if !ok {
		return
	}
	group := chi.URLParam(r, "group")
	snapshot, found := view.Window(group)
	if !found {
		http.Error(w, "unknown group "+strconv.Quote(group), http.StatusNotFound)
		return
	}
	writeJSON(w, s.logger, snapshot)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		http.Error(w, "session index disabled", http.StatusNotFound)
		return
	}
	limit := defaultSessionLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	entries, err := s.sessions.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing sessions failed", "error", err)
		http.Error(w, "listing sessions failed", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []sessionindex.Entry{}
	}
	writeJSON(w, s.logger, entries)
}

// handleStream upgrades to a websocket and writes the latest View
// every push interval, skipping views the client already has.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	if !s.beginStream() {
		conn.Close()
		return
	}
	defer s.streams.Done()

	logger := s.logger.With("remote", r.RemoteAddr)
	logger.Info("feed client connected")
	defer logger.Info("feed client disconnected")

	// Drain client frames so close and pong control messages are
	// processed; any read error ends the stream.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	defer func() {
		conn.Close()
		<-clientGone
	}()

	ticker := s.clock.NewTicker(s.pushInterval)
	defer ticker.Stop()
	ping := s.clock.NewTicker(pingInterval)
	defer ping.Stop()

	var sent uint64
	send := func() bool {
		view := s.publisher.Load()
		if view == nil || view.Sequence == sent {
			return true
		}
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(view); err != nil {
			logger.Debug("feed write failed", "error", err)
			return false
		}
		sent = view.Sequence
		return true
	}

	if !send() {
		return
	}
	for {
		select {
		case <-s.done:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "collector shutting down"),
				time.Now().Add(time.Second))
			return
		case <-clientGone:
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		case <-ticker.C:
			if !send() {
				return
			}
		}
	}
}

// beginStream registers a websocket stream unless shutdown has begun.
func (s *Server) beginStream() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.streams.Add(1)
	return true
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, value any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(value); err != nil {
		logger.Debug("writing response failed", "error", err)
	}
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(wrapped, r)
			logger.Debug("feed request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", responseStatus(wrapped, r),
				"duration", time.Since(start),
			)
		})
	}
}

// responseStatus reports the status written through wrapped. A
// hijacked websocket upgrade never writes through it.
func responseStatus(wrapped middleware.WrapResponseWriter, r *http.Request) int {
	if status := wrapped.Status(); status != 0 {
		return status
	}
	if websocket.IsWebSocketUpgrade(r) {
		return http.StatusSwitchingProtocols
	}
	return http.StatusOK
}
