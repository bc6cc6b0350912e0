package server

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hblackburnRedev/SmartMeter/billing"
	"github.com/hblackburnRedev/SmartMeter/directory"
	"github.com/hblackburnRedev/SmartMeter/logging"
	"github.com/hblackburnRedev/SmartMeter/protocol"
)

// WebSocket timeout constants for connection keep-alive. Meter connections
// are long-lived; pings detect dead peers between readings.
const (
	// wsWriteWait is the time allowed to write a message to the peer.
	wsWriteWait = 10 * time.Second

	// wsPongWait is the time allowed to wait for the next pong message.
	wsPongWait = 60 * time.Second

	// wsPingPeriod is the period between pings. Must be less than wsPongWait.
	wsPingPeriod = (wsPongWait * 9) / 10
)

// errSessionClosed is returned by send operations on a closed session.
var errSessionClosed = errors.New("session is closed")

// sessionState identifies where a connection is in its protocol lifecycle.
// The credential check happens before a session exists, so the first session
// state is awaiting-first-message.
type sessionState int32

const (
	stateAwaitingFirstMessage sessionState = iota
	stateRegistrationPending
	stateSteady
	stateClosing
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateAwaitingFirstMessage:
		return "awaiting_first_message"
	case stateRegistrationPending:
		return "registration_pending"
	case stateSteady:
		return "steady"
	case stateClosing:
		return "closing"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// transitionResult is the outcome of one state machine step: an optional
// reply frame, the next state, and, when the next state is closing, the close
// code and frame text to send.
type transitionResult struct {
	reply     []byte
	next      sessionState
	closeCode int
	closeText string
}

// Session is one authenticated live connection and its server-side
// bookkeeping. The run loop owns the connection for its lifetime; inbound
// messages are processed strictly in arrival order.
type Session struct {
	// Key is the opaque unique id the session is registered under.
	Key string

	// ClientID is the stable external identity supplied at connect time.
	ClientID string

	logger   logging.Logger
	conn     *websocket.Conn
	registry *Registry
	engine   *billing.Engine
	dir      *directory.Directory

	ctx   context.Context
	state atomic.Int32

	// writeMu serializes data frames between the run loop's replies and the
	// broadcaster's pushes. Control frames don't need it.
	writeMu sync.Mutex
	closed  atomic.Bool
}

func newSession(
	logger logging.Logger,
	key, clientID string,
	conn *websocket.Conn,
	registry *Registry,
	engine *billing.Engine,
	dir *directory.Directory,
) *Session {
	s := &Session{
		Key:      key,
		ClientID: clientID,
		logger:   logging.ForComponent(logging.ForSession(logger, key, clientID), logging.ComponentSession),
		conn:     conn,
		registry: registry,
		engine:   engine,
		dir:      dir,
		ctx:      context.Background(),
	}
	s.state.Store(int32(stateAwaitingFirstMessage))
	return s
}

func (s *Session) currentState() sessionState {
	return sessionState(s.state.Load())
}

func (s *Session) setState(next sessionState) {
	old := sessionState(s.state.Swap(int32(next)))
	if old != next {
		s.logger.Info().
			Str(logging.FieldOldState, old.String()).
			Str(logging.FieldNewState, next.String()).
			Msg("session state transition")
	}
}

// IsOpen reports whether the session can still be written to.
func (s *Session) IsOpen() bool {
	return !s.closed.Load()
}

// Run drives the session to completion: classify the client against the
// directory, then process inbound frames until a close condition. Blocking
// reads are unblocked by closeWithReason on shutdown.
func (s *Session) Run(ctx context.Context) {
	s.ctx = ctx

	// Unblock the read loop when the server shuts down.
	stopWatcher := make(chan struct{})
	defer close(stopWatcher)
	go func() {
		select {
		case <-ctx.Done():
			s.closeWithReason(CloseGoingAway, closeReasonUnavailable)
		case <-stopWatcher:
		}
	}()

	go logging.RecoverGoRoutine(s.logger, logging.ComponentSession, func(ctx context.Context) {
		s.pingLoop(ctx)
	})(ctx)

	if res := s.classify(); res.next == stateClosing {
		s.setState(stateClosing)
		s.closeWithReason(res.closeCode, res.closeText)
		return
	} else {
		s.setState(res.next)
	}

	s.readLoop()
}

// classify resolves the client directory once per connection: a known client
// goes straight to steady state, an unknown one must register first.
func (s *Session) classify() transitionResult {
	exists, err := s.dir.Exists(s.ClientID)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to resolve client directory")
		return transitionResult{next: stateClosing, closeCode: CloseInternalError, closeText: err.Error()}
	}
	if exists {
		return transitionResult{next: stateSteady}
	}
	return transitionResult{next: stateRegistrationPending}
}

// readLoop processes inbound frames in arrival order until the session
// closes. Each frame is handled with panic protection so an unhandled fault
// closes only this connection.
func (s *Session) readLoop() {
	_ = s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			s.handleReadError(err)
			return
		}

		// Reset the read deadline on every inbound frame, not just pongs.
		_ = s.conn.SetReadDeadline(time.Now().Add(wsPongWait))

		if messageType != websocket.TextMessage {
			s.logger.Warn().
				Int(logging.FieldMessageType, messageType).
				Msg("rejecting non-text frame")
			s.setState(stateClosing)
			s.closeWithReason(CloseInvalidPayload, closeReasonInvalidPayload)
			return
		}

		var res transitionResult
		panicErr := logging.RecoverWithLogger(s.logger, logging.ComponentSession, "handle_message", func() error {
			res = s.handleMessage(data)
			return nil
		})
		if panicErr != nil {
			s.setState(stateClosing)
			s.closeWithReason(CloseInternalError, panicErr.Error())
			return
		}

		if res.reply != nil {
			if err := s.sendText(res.reply); err != nil {
				s.logger.Warn().Err(err).Msg("failed to write reply")
				s.setState(stateClosing)
				s.closeWithReason(CloseInternalError, closeReasonInternalError)
				return
			}
		}

		s.setState(res.next)
		if res.next == stateClosing {
			s.closeWithReason(res.closeCode, res.closeText)
			return
		}
	}
}

// handleReadError maps a failed read to the matching close path.
func (s *Session) handleReadError(err error) {
	// Our own close already tore the connection down.
	if s.closed.Load() {
		return
	}

	// Server shutdown while blocked in a read.
	if s.ctx.Err() != nil {
		s.setState(stateClosing)
		s.closeWithReason(CloseGoingAway, closeReasonUnavailable)
		return
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		s.logger.Info().
			Int(logging.FieldCloseCode, closeErr.Code).
			Str(logging.FieldCloseReason, closeErr.Text).
			Msg("peer closed connection")
		s.setState(stateClosing)
		s.closeWithReason(CloseNormalClosure, closeReasonNormal)
		return
	}

	// No close handshake: the peer vanished (reset, pong timeout).
	s.logger.Warn().Err(err).Msg("connection lost without close handshake")
	s.setState(stateClosing)
	s.closeWithReason(CloseAbnormalClosure, closeReasonAbnormal)
}

// handleMessage advances the state machine by one inbound text frame.
// It touches no connection state, so each transition is unit-testable
// without a network connection.
func (s *Session) handleMessage(data []byte) transitionResult {
	state := s.currentState()
	switch state {
	case stateRegistrationPending:
		return s.handleRegistration(data)
	case stateSteady:
		return s.handleReading(data)
	default:
		messagesProcessed.WithLabelValues(state.String(), outcomeError).Inc()
		s.logger.Error().
			Str(logging.FieldState, state.String()).
			Msg("message received in unexpected state")
		return transitionResult{next: stateClosing, closeCode: CloseInternalError, closeText: closeReasonInternalError}
	}
}

// handleRegistration processes the mandatory first message of an unknown
// client.
func (s *Session) handleRegistration(data []byte) transitionResult {
	var req protocol.RegistrationRequest
	if err := protocol.DecodeStrict(data, &req); err != nil {
		messagesProcessed.WithLabelValues(stateRegistrationPending.String(), outcomeRejected).Inc()
		s.logger.Warn().Err(err).Msg("invalid registration payload")
		return transitionResult{next: stateClosing, closeCode: CloseInvalidPayload, closeText: closeReasonInvalidPayload}
	}

	profile, err := s.dir.Create(s.ClientID, req.Name, req.Address)
	if err != nil {
		// The client was classified as unregistered when the connection was
		// accepted, so any create failure here is unexpected.
		messagesProcessed.WithLabelValues(stateRegistrationPending.String(), outcomeError).Inc()
		s.logger.Error().Err(err).Msg("failed to create client profile")
		return transitionResult{next: stateClosing, closeCode: CloseInternalError, closeText: err.Error()}
	}

	reply, err := protocol.Encode(profile)
	if err != nil {
		messagesProcessed.WithLabelValues(stateRegistrationPending.String(), outcomeError).Inc()
		return transitionResult{next: stateClosing, closeCode: CloseInternalError, closeText: err.Error()}
	}

	messagesProcessed.WithLabelValues(stateRegistrationPending.String(), outcomeOK).Inc()
	s.logger.Info().Msg("client registered")
	return transitionResult{reply: reply, next: stateSteady}
}

// handleReading processes one usage reading in steady state.
func (s *Session) handleReading(data []byte) transitionResult {
	var req protocol.ReadingRequest
	if err := protocol.DecodeStrict(data, &req); err != nil {
		messagesProcessed.WithLabelValues(stateSteady.String(), outcomeRejected).Inc()
		s.logger.Warn().Err(err).Msg("invalid reading payload")
		return transitionResult{next: stateClosing, closeCode: CloseInvalidPayload, closeText: closeReasonInvalidPayload}
	}

	total, err := s.engine.CalculatePrice(s.ctx, req.Region, req.Usage, s.ClientID)
	if err != nil {
		// Unknown region or negative usage is client-supplied garbage and
		// closes with invalid payload semantics; anything else is internal.
		if errors.Is(err, billing.ErrRegionNotFound) || errors.Is(err, billing.ErrNegativeUsage) {
			messagesProcessed.WithLabelValues(stateSteady.String(), outcomeRejected).Inc()
			s.logger.Warn().
				Err(err).
				Str(logging.FieldRegion, req.Region).
				Msg("reading rejected")
			return transitionResult{next: stateClosing, closeCode: CloseInvalidPayload, closeText: closeReasonInvalidPayload}
		}
		messagesProcessed.WithLabelValues(stateSteady.String(), outcomeError).Inc()
		s.logger.Error().Err(err).Msg("failed to price reading")
		return transitionResult{next: stateClosing, closeCode: CloseInternalError, closeText: err.Error()}
	}

	reply, err := protocol.Encode(protocol.ReadingResponse{
		Region: req.Region,
		Usage:  req.Usage,
		Total:  total,
	})
	if err != nil {
		messagesProcessed.WithLabelValues(stateSteady.String(), outcomeError).Inc()
		return transitionResult{next: stateClosing, closeCode: CloseInternalError, closeText: err.Error()}
	}

	messagesProcessed.WithLabelValues(stateSteady.String(), outcomeOK).Inc()
	return transitionResult{reply: reply, next: stateSteady}
}

// pingLoop sends periodic pings so dead peers are detected between readings.
func (s *Session) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.closed.Load() {
				return
			}
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				s.logger.Debug().Err(err).Msg("ping failed - connection may be dead")
				return
			}
		}
	}
}

// sendText writes a text frame, serialized against broadcaster pushes.
func (s *Session) sendText(data []byte) error {
	if s.closed.Load() {
		return errSessionClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// SendGridStatus pushes an unsolicited grid status event to the client.
func (s *Session) SendGridStatus(ev protocol.GridStatusEvent) error {
	data, err := protocol.Encode(ev)
	if err != nil {
		return err
	}
	return s.sendText(data)
}

// closeWithReason finishes the session exactly once: the registry entry is
// removed unconditionally before the connection is disposed, and a close
// frame is attempted only if the channel is still writable.
func (s *Session) closeWithReason(code int, text string) {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}

	s.registry.Remove(s.Key)
	sessionsActive.Dec()
	sessionsClosed.WithLabelValues(closeCodeName(code)).Inc()

	s.logger.Info().
		Int(logging.FieldCloseCode, code).
		Str(logging.FieldCloseReason, text).
		Msg("session closing")

	// 1006 is reserved for reporting and must not go out in a close frame;
	// the channel is already dead on that path anyway.
	if code != CloseAbnormalClosure {
		deadline := time.Now().Add(wsWriteWait)
		closeMsg := websocket.FormatCloseMessage(code, text)
		if err := s.conn.WriteControl(websocket.CloseMessage, closeMsg, deadline); err != nil {
			s.logger.Debug().Err(err).Msg("failed to send close frame")
		}
	}

	_ = s.conn.Close()
	s.setState(stateClosed)
}
