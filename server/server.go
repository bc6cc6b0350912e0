// Package server implements the connection protocol engine: it accepts
// WebSocket upgrades at a single endpoint, authenticates them, and drives
// each accepted connection through the per-session state machine.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hblackburnRedev/SmartMeter/billing"
	"github.com/hblackburnRedev/SmartMeter/config"
	"github.com/hblackburnRedev/SmartMeter/directory"
	"github.com/hblackburnRedev/SmartMeter/logging"
)

// Literal rejection bodies. Clients match on these strings, so they are part
// of the wire contract.
const (
	msgWebSocketOnly      = "This server only supports WebSocket connections."
	msgInvalidCredentials = "Unauthorized: invalid credentials."
	msgInvalidAPIKey      = "Unauthorized: invalid API key."
)

// Credential parameter and header names. Query parameters win when both are
// present.
const (
	paramClientID = "clientId"
	paramAPIKey   = "apiKey"

	headerClientID = "ClientId"
	headerAPIKey   = "ApiKey"
)

// GracefulShutdownTimeout is the timeout for graceful server shutdown.
const GracefulShutdownTimeout = 10 * time.Second

// upgrader upgrades HTTP connections to WebSocket.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Meters connect from arbitrary networks; origin checks don't apply.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server owns the listen loop and orchestrates the registry, directory,
// billing engine and broadcaster.
type Server struct {
	logger   logging.Logger
	cfg      *config.ServerConfig
	registry *Registry
	engine   *billing.Engine
	dir      *directory.Directory

	httpServer *http.Server

	// Lifecycle
	mu       sync.Mutex
	started  bool
	closed   bool
	cancelFn context.CancelFunc
	wg       sync.WaitGroup

	// connCtx is the context every session's read loop watches for shutdown.
	connCtx context.Context
}

// New creates a telemetry server.
func New(
	logger logging.Logger,
	cfg *config.ServerConfig,
	registry *Registry,
	engine *billing.Engine,
	dir *directory.Directory,
) *Server {
	return &Server{
		logger:   logging.ForComponent(logger, logging.ComponentServer),
		cfg:      cfg,
		registry: registry,
		engine:   engine,
		dir:      dir,
	}
}

// Start begins accepting connections. It returns once the listener is
// running; Close performs the graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("server is closed")
	}
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("server already started")
	}
	s.started = true
	ctx, s.cancelFn = context.WithCancel(ctx)
	s.connCtx = ctx
	s.mu.Unlock()

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleConnect)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	s.httpServer = &http.Server{
		Addr:    s.cfg.ListenAddr,
		Handler: mux,
		// WriteTimeout stays 0: upgraded connections are long-lived and
		// manage their own write deadlines.
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info().Str(logging.FieldListenAddr, s.cfg.ListenAddr).Msg("telemetry server listening")

		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	return nil
}

// handleConnect authenticates an inbound request and, on success, upgrades
// it and runs the session to completion. Authentication errors never reach
// the state machine.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		authRejections.WithLabelValues(rejectReasonNotWebSocket).Inc()
		s.logger.Warn().
			Str(logging.FieldRemoteAddr, r.RemoteAddr).
			Str(logging.FieldPath, r.URL.Path).
			Msg("rejecting non-websocket request")
		http.Error(w, msgWebSocketOnly, http.StatusBadRequest)
		return
	}

	clientID, apiKey := extractCredentials(r)
	if clientID == "" || apiKey == "" {
		authRejections.WithLabelValues(rejectReasonMissingCredentials).Inc()
		s.logger.Warn().
			Str(logging.FieldRemoteAddr, r.RemoteAddr).
			Msg("rejecting connection with missing credentials")
		http.Error(w, msgInvalidCredentials, http.StatusUnauthorized)
		return
	}
	if apiKey != s.cfg.APIKey {
		authRejections.WithLabelValues(rejectReasonInvalidAPIKey).Inc()
		s.logger.Warn().
			Str(logging.FieldRemoteAddr, r.RemoteAddr).
			Str(logging.FieldClientID, clientID).
			Msg("rejecting connection with invalid API key")
		http.Error(w, msgInvalidAPIKey, http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written its own error response.
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	session := newSession(s.logger, uuid.NewString(), clientID, conn, s.registry, s.engine, s.dir)
	s.registry.Add(session)
	sessionsActive.Inc()
	sessionsTotal.Inc()

	s.logger.Info().
		Str(logging.FieldSessionID, session.Key).
		Str(logging.FieldClientID, clientID).
		Str(logging.FieldRemoteAddr, r.RemoteAddr).
		Msg("session established")

	// The handler goroutine belongs to the connection; run it to completion
	// with panic isolation so one bad session never takes the server down.
	logging.RecoverGoRoutine(s.logger, logging.ComponentSession, func(ctx context.Context) {
		session.Run(ctx)
	})(s.connCtx)
}

// extractCredentials pulls the client identity and API key from the request.
// Query parameters take precedence over headers.
func extractCredentials(r *http.Request) (clientID, apiKey string) {
	query := r.URL.Query()

	clientID = query.Get(paramClientID)
	if clientID == "" {
		clientID = r.Header.Get(headerClientID)
	}

	apiKey = query.Get(paramAPIKey)
	if apiKey == "" {
		apiKey = r.Header.Get(headerAPIKey)
	}

	return clientID, apiKey
}

// Close gracefully shuts the server down: stop accepting, close every open
// session with endpoint-unavailable, then stop the listener.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancelFn := s.cancelFn
	s.mu.Unlock()

	// Cancelling the connection context transitions every in-flight session
	// to closing with "endpoint unavailable" and unblocks their reads.
	if cancelFn != nil {
		cancelFn()
	}

	if s.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), GracefulShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn().Err(err).Msg("error during server shutdown")
		}
	}

	s.wg.Wait()
	s.logger.Info().Msg("telemetry server stopped")
	return nil
}
