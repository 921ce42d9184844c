package proxy

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gateway-bridge/internal/infrastructure/logging"
)

// SessionState is the explicit lifecycle state of a proxy session's
// upstream link.
type SessionState int

const (
	// StateConnecting: an upstream dial is in flight.
	StateConnecting SessionState = iota

	// StateAuthenticating: the transport is open and the auth frame has
	// been sent; waiting for the daemon's verdict.
	StateAuthenticating

	// StateReady: the daemon accepted the credential; requests relay.
	StateReady

	// StateReconnectWait: the link dropped; a backoff timer is pending.
	StateReconnectWait

	// StateClosed is terminal. No further transitions occur.
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateReady:
		return "ready"
	case StateReconnectWait:
		return "reconnect_wait"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Notifier delivers control messages to the owning client connection.
// *Client satisfies it; tests substitute a recorder.
type Notifier interface {
	Notify(msgType string, data any)
	CloseClient(code int, reason string)
}

// SessionConfig carries the per-session settings taken from the upstream
// configuration at accept time.
type SessionConfig struct {
	ClientID int64

	// APIKey is sent to the daemon on every (re)connect.
	APIKey string

	// AuthTimeout bounds the wait for the daemon's auth verdict. Zero
	// disables the timeout.
	AuthTimeout time.Duration

	// MaxReconnectDelay caps the backoff in seconds.
	MaxReconnectDelay float64
}

// Session owns the upstream connection lifecycle for exactly one client.
//
// State transitions: Connecting -> Authenticating -> Ready, with
// Authenticating and Ready dropping back through ReconnectWait ->
// Connecting on upstream loss, and any state reaching the terminal
// Closed via Close.
//
// All mutable fields are guarded by mu; upstream writes are serialised
// by writeMu so the auth frame and relayed requests never interleave.
type Session struct {
	cfg       SessionConfig
	connector Connector
	notify    Notifier
	sched     Scheduler
	backoff   *Backoff
	logger    *logging.Logger
	metrics   Recorder

	mu             sync.Mutex
	state          SessionState
	upstream       UpstreamConn
	upstreamExpiry int64 // Unix seconds, supplied by the daemon on auth success
	reconnectTimer Timer
	authTimer      Timer
	onClose        func()

	// gen identifies the current upstream socket. Callbacks from an
	// older socket (reader exit, auth timeout) carry the generation they
	// were created under and are ignored once it goes stale.
	gen uint64

	writeMu sync.Mutex
}

// NewSession creates a session and immediately begins connecting
// upstream. onClose is invoked exactly once when the session closes, so
// the owner can drop it from its maps.
func NewSession(cfg SessionConfig, connector Connector, notify Notifier, sched Scheduler, logger *logging.Logger, metrics Recorder, onClose func()) *Session {
	if metrics == nil {
		metrics = NopRecorder{}
	}
	s := &Session{
		cfg:       cfg,
		connector: connector,
		notify:    notify,
		sched:     sched,
		backoff:   NewBackoff(cfg.MaxReconnectDelay),
		logger:    logger,
		metrics:   metrics,
		state:     StateConnecting,
		onClose:   onClose,
	}
	go s.connect()
	return s
}

// State returns the session's current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// UpstreamExpiry returns the daemon-supplied session expiration, zero
// before authentication succeeds.
func (s *Session) UpstreamExpiry() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upstreamExpiry
}

// connect opens a new upstream socket. Dial failures never retry
// synchronously; the next attempt always goes through the backoff timer.
func (s *Session) connect() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateConnecting
	s.mu.Unlock()

	conn, err := s.connector.Connect(context.Background())
	if err != nil {
		s.logger.Warn("upstream connect failed",
			"client_id", s.cfg.ClientID,
			"error", err,
		)
		s.reconnect()
		return
	}

	s.onOpen(conn)
}

// onOpen installs a freshly connected upstream socket: cancels any
// pending reconnect timer, resets the backoff (a transport-level connect
// counts as recovery even before the daemon's auth verdict), sends the
// auth frame, and starts the reader.
func (s *Session) onOpen(conn UpstreamConn) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		conn.Close()
		return
	}

	s.stopReconnectTimerLocked()
	s.backoff.Reset()

	s.gen++
	gen := s.gen
	s.upstream = conn
	s.state = StateAuthenticating

	if s.cfg.AuthTimeout > 0 {
		s.authTimer = s.sched.AfterFunc(s.cfg.AuthTimeout, func() {
			s.onAuthTimeout(gen)
		})
	}
	s.mu.Unlock()

	s.logger.Debug("upstream connected", "client_id", s.cfg.ClientID)

	s.authenticate()
	go s.readLoop(conn, gen)
}

// authenticate sends the API credential to the daemon. No-op unless the
// session is awaiting authentication with a live socket.
func (s *Session) authenticate() {
	s.mu.Lock()
	if s.state != StateAuthenticating || s.upstream == nil {
		s.mu.Unlock()
		return
	}
	conn := s.upstream
	s.mu.Unlock()

	frame, err := json.Marshal(authRequest{Type: "auth", Token: s.cfg.APIKey})
	if err != nil {
		s.logger.Error("failed to encode upstream auth request", "client_id", s.cfg.ClientID, "error", err)
		return
	}

	if err := s.writeUpstream(conn, frame); err != nil {
		// The reader will observe the broken socket and drive reconnect.
		s.logger.Warn("failed to send upstream auth request", "client_id", s.cfg.ClientID, "error", err)
	}
}

// readLoop delivers upstream frames until the socket drops.
func (s *Session) readLoop(conn UpstreamConn, gen uint64) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			s.onUpstreamClose(gen, err)
			return
		}
		s.onMessage(gen, raw)
	}
}

// onMessage classifies one upstream frame and routes it to the client.
func (s *Session) onMessage(gen uint64, raw []byte) {
	s.mu.Lock()
	if s.state == StateClosed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	authenticated := s.state == StateReady
	s.mu.Unlock()

	var msg map[string]any
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.logger.Warn("dropping malformed upstream frame",
			"client_id", s.cfg.ClientID,
			"error", err,
		)
		return
	}

	if !authenticated {
		switch {
		case IsAuthSuccessMessage(msg):
			s.onAuthSuccess(gen, msg)
			return
		case IsAuthErrorMessage(msg):
			s.onAuthError(gen, msg)
			return
		}
	} else if IsAuthErrorMessage(msg) {
		// Credential revoked or expired mid-session. Report it; the
		// daemon drops the transport on its own schedule.
		s.notify.Notify(MsgUpstreamAuthFailed, authErrorData(msg))
		return
	}

	s.metrics.FrameRelayed(s.cfg.ClientID, DirUpstreamToClient)
	s.notify.Notify(MsgUpstreamResponse, json.RawMessage(raw))
}

// onAuthSuccess promotes the session to Ready.
func (s *Session) onAuthSuccess(gen uint64, msg map[string]any) {
	s.mu.Lock()
	if s.state != StateAuthenticating || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.state = StateReady
	var expiry int64
	if exp, ok := msg["expiration"].(float64); ok {
		expiry = int64(exp)
		s.upstreamExpiry = expiry
	}
	s.stopAuthTimerLocked()
	s.mu.Unlock()

	s.logger.Info("upstream authenticated", "client_id", s.cfg.ClientID, "expiration", expiry)
	s.notify.Notify(MsgUpstreamReady, readyData{Expiration: expiry})
}

// onAuthError reports a rejected credential and drops the socket. The
// close is deliberate: the reader observes it and schedules the backoff
// reconnect, rather than trusting the daemon to hang up promptly.
func (s *Session) onAuthError(gen uint64, msg map[string]any) {
	s.logger.Warn("upstream rejected authentication",
		"client_id", s.cfg.ClientID,
		"error", msg["error"],
		"code", msg["code"],
	)
	s.notify.Notify(MsgUpstreamAuthFailed, authErrorData(msg))

	s.mu.Lock()
	conn := s.upstream
	current := gen == s.gen && s.state != StateClosed
	s.mu.Unlock()

	if current && conn != nil {
		conn.Close()
	}
}

// onAuthTimeout fires when the daemon never answered the auth frame.
// Dropping the socket routes recovery through the normal close path.
func (s *Session) onAuthTimeout(gen uint64) {
	s.mu.Lock()
	if s.state != StateAuthenticating || gen != s.gen {
		s.mu.Unlock()
		return
	}
	conn := s.upstream
	s.mu.Unlock()

	s.logger.Warn("upstream authentication timed out", "client_id", s.cfg.ClientID)
	if conn != nil {
		conn.Close()
	}
}

// onUpstreamClose handles a dropped upstream socket: clears local state,
// tells the client, and schedules a reconnect unless the session is
// closing.
func (s *Session) onUpstreamClose(gen uint64, err error) {
	s.mu.Lock()
	if s.state == StateClosed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.upstream = nil
	s.upstreamExpiry = 0
	s.stopAuthTimerLocked()
	s.mu.Unlock()

	s.logger.Info("upstream disconnected",
		"client_id", s.cfg.ClientID,
		"error", err,
	)
	s.notify.Notify(MsgUpstreamDisconnected, nil)
	s.reconnect()
}

// reconnect schedules the next connection attempt through the backoff
// generator. Never dials synchronously.
func (s *Session) reconnect() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	delay := s.backoff.Next()
	attempt := s.backoff.Attempts()
	s.state = StateReconnectWait
	s.stopReconnectTimerLocked()
	s.reconnectTimer = s.sched.AfterFunc(time.Duration(delay*float64(time.Second)), s.connect)
	s.mu.Unlock()

	s.logger.Info("scheduling upstream reconnect",
		"client_id", s.cfg.ClientID,
		"attempt", attempt,
		"delay_seconds", delay,
	)
	s.metrics.ReconnectAttempt(s.cfg.ClientID, attempt, delay)
	s.notify.Notify(MsgUpstreamReconnecting, reconnectingData{Attempt: attempt, Delay: delay})
}

// HandleClientMessage validates one client frame and relays it upstream.
//
// Rejections go back to the client as control messages: structurally
// invalid requests as upstream_request_invalid, and requests that arrive
// without a ready authenticated upstream as upstream_request_failed.
// Nothing is ever relayed before the daemon accepts the credential.
func (s *Session) HandleClientMessage(raw []byte) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	state := s.state
	conn := s.upstream
	s.mu.Unlock()

	var msg map[string]any
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.notify.Notify(MsgRequestInvalid, string(raw))
		return
	}
	if !IsDaemonAPIMessage(msg) {
		s.notify.Notify(MsgRequestInvalid, json.RawMessage(raw))
		return
	}

	if conn == nil || state != StateReady {
		s.notify.Notify(MsgRequestFailed, requestFailedFor(msg))
		return
	}

	if err := s.writeUpstream(conn, raw); err != nil {
		s.logger.Warn("upstream relay failed",
			"client_id", s.cfg.ClientID,
			"error", err,
		)
		s.notify.Notify(MsgRequestFailed, requestFailedFor(msg))
		return
	}
	s.metrics.FrameRelayed(s.cfg.ClientID, DirClientToUpstream)
}

// Close terminates the session. Idempotent; the first call wins. It
// cancels any pending reconnect, fires the close callback exactly once,
// closes the upstream socket, and closes the client connection. All
// other methods are no-ops afterwards.
func (s *Session) Close(code int, reason string) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	s.stopReconnectTimerLocked()
	s.stopAuthTimerLocked()
	conn := s.upstream
	s.upstream = nil
	onClose := s.onClose
	s.onClose = nil
	s.mu.Unlock()

	s.logger.Debug("closing session", "client_id", s.cfg.ClientID, "reason", reason)

	if onClose != nil {
		onClose()
	}
	if conn != nil {
		conn.Close()
	}
	s.notify.CloseClient(code, reason)
}

// writeUpstream serialises writes so the auth frame and relayed requests
// never interleave on the wire.
func (s *Session) writeUpstream(conn UpstreamConn, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Session) stopReconnectTimerLocked() {
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
}

func (s *Session) stopAuthTimerLocked() {
	if s.authTimer != nil {
		s.authTimer.Stop()
		s.authTimer = nil
	}
}

// authErrorData extracts the daemon's error description for the client.
func authErrorData(msg map[string]any) authFailedData {
	data := authFailedData{}
	if e, ok := msg["error"].(string); ok {
		data.Error = e
	}
	if c, ok := msg["code"].(float64); ok {
		data.Code = int(c)
	}
	return data
}

// requestFailedFor echoes the identifiers of an unrelayable request.
func requestFailedFor(msg map[string]any) requestFailedData {
	data := requestFailedData{}
	if t, ok := msg["mType"].(string); ok {
		data.MType = t
	}
	if inner, ok := msg["data"].(map[string]any); ok {
		if id, ok := inner["msgId"].(string); ok {
			data.MsgID = id
		}
	}
	return data
}
