package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gateway-bridge/internal/infrastructure/logging"
)

// TokenVerifier resolves a raw client token to the subject it
// identifies and its expiry. A non-nil error means the token is
// rejected; the registry does not distinguish why beyond logging.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (subject string, expiresAt time.Time, err error)
}

// Registry accepts client connections, gates them through the token
// verifier, and owns the session and expiration maps. It never touches
// upstream sockets directly; all upstream lifecycle logic lives in
// Session.
type Registry struct {
	sessionCfg SessionConfig
	verifier   TokenVerifier
	connector  Connector
	sched      Scheduler
	logger     *logging.Logger
	metrics    Recorder

	mu          sync.Mutex
	sessions    map[int64]*Session
	expirations map[int64]time.Time
	subjects    map[int64]string
}

// NewRegistry creates a connection registry. sessionCfg.ClientID is
// ignored; each accepted connection gets its own identifier.
func NewRegistry(sessionCfg SessionConfig, verifier TokenVerifier, connector Connector, sched Scheduler, logger *logging.Logger, metrics Recorder) *Registry {
	if metrics == nil {
		metrics = NopRecorder{}
	}
	if sched == nil {
		sched = NewScheduler()
	}
	return &Registry{
		sessionCfg:  sessionCfg,
		verifier:    verifier,
		connector:   connector,
		sched:       sched,
		logger:      logger,
		metrics:     metrics,
		sessions:    make(map[int64]*Session),
		expirations: make(map[int64]time.Time),
		subjects:    make(map[int64]string),
	}
}

// ServeHTTP upgrades the request to a WebSocket and runs the connection
// handshake: token present, token valid, session created. Rejections are
// reported over the socket with proxy_auth_failed and a policy-violation
// close (1008), matching how browsers expect auth failures mid-upgrade.
func (reg *Registry) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		reg.logger.Error("websocket upgrade failed", "error", err, "remote_addr", r.RemoteAddr)
		return
	}

	client := newClient(conn, reg.logger)

	if token == "" {
		reg.logger.Warn("client connection without token",
			"client_id", client.ID(),
			"remote_addr", client.RemoteAddr(),
		)
		client.Notify(MsgProxyAuthFailed, proxyAuthFailedData{Error: AuthErrMissingToken, Code: AuthCodeMissingToken})
		client.CloseClient(websocket.ClosePolicyViolation, "missing token")
		return
	}

	subject, expiresAt, err := reg.verifier.Verify(r.Context(), token)
	if err != nil {
		reg.logger.Warn("client token rejected",
			"client_id", client.ID(),
			"remote_addr", client.RemoteAddr(),
			"error", err,
		)
		client.Notify(MsgProxyAuthFailed, proxyAuthFailedData{Error: AuthErrInvalidToken, Code: AuthCodeInvalidToken})
		client.CloseClient(websocket.ClosePolicyViolation, "invalid token")
		return
	}

	reg.accept(client, subject, expiresAt)
}

// accept installs an authenticated client: creates its session (which
// immediately begins connecting upstream), registers both map entries,
// and starts the client read loop.
func (reg *Registry) accept(client *Client, subject string, expiresAt time.Time) {
	cfg := reg.sessionCfg
	cfg.ClientID = client.ID()

	session := NewSession(cfg, reg.connector, client, reg.sched, reg.logger, reg.metrics,
		func() { reg.remove(client.ID()) })

	reg.mu.Lock()
	reg.sessions[client.ID()] = session
	reg.expirations[client.ID()] = expiresAt
	reg.subjects[client.ID()] = subject
	active := len(reg.sessions)
	reg.mu.Unlock()

	reg.logger.Info("client session opened",
		"client_id", client.ID(),
		"remote_addr", client.RemoteAddr(),
		"token_expires", expiresAt,
		"active_sessions", active,
	)
	reg.metrics.SessionOpened(client.ID())
	reg.metrics.ActiveSessions(active)

	go client.readLoop(
		func(raw []byte) { reg.HandleMessage(client, raw) },
		func() { reg.HandleDisconnect(client) },
	)
}

// HandleMessage dispatches one inbound client frame. Expired client
// tokens terminate the connection before any relay; a frame for an
// unknown client is dropped silently. Session refresh requests are
// consumed here; everything else goes to the session.
func (reg *Registry) HandleMessage(client *Client, raw []byte) {
	reg.mu.Lock()
	expiresAt, tracked := reg.expirations[client.ID()]
	session := reg.sessions[client.ID()]
	reg.mu.Unlock()

	if tracked && time.Now().After(expiresAt) {
		reg.logger.Info("client token expired mid-session",
			"client_id", client.ID(),
			"remote_addr", client.RemoteAddr(),
		)
		client.Notify(MsgProxySessionExpired, nil)
		client.CloseClient(websocket.ClosePolicyViolation, "session expired")
		return
	}

	var msg map[string]any
	if err := json.Unmarshal(raw, &msg); err == nil && IsSessionRefreshMessage(msg) {
		reg.handleRefresh(client, msg)
		return
	}

	if session == nil {
		// Should not occur post-handshake; drop defensively.
		return
	}

	session.HandleClientMessage(raw)
}

// handleRefresh replaces a client's tracked expiration with the one
// from a freshly verified token. The replacement must identify the
// same subject the session was opened for. Failures leave the current
// expiry in place and never terminate the connection; the client can
// retry or ride out the remaining validity.
func (reg *Registry) handleRefresh(client *Client, msg map[string]any) {
	data, _ := msg["data"].(map[string]any)
	token, _ := data["token"].(string)

	subject, expiresAt, err := reg.verifier.Verify(context.Background(), token)
	if err != nil {
		reg.logger.Warn("session refresh token rejected",
			"client_id", client.ID(),
			"remote_addr", client.RemoteAddr(),
			"error", err,
		)
		client.Notify(MsgProxySessionRefreshFailed, nil)
		return
	}

	reg.mu.Lock()
	owner, tracked := reg.subjects[client.ID()]
	if tracked && owner == subject {
		reg.expirations[client.ID()] = expiresAt
	}
	reg.mu.Unlock()

	if !tracked || owner != subject {
		reg.logger.Warn("session refresh subject mismatch",
			"client_id", client.ID(),
			"remote_addr", client.RemoteAddr(),
		)
		client.Notify(MsgProxySessionRefreshFailed, nil)
		return
	}

	reg.logger.Info("client session refreshed",
		"client_id", client.ID(),
		"token_expires", expiresAt,
	)
	client.Notify(MsgProxySessionRefreshSuccess, nil)
}

// HandleDisconnect tears down the session for a departed client.
// Idempotent; a second call for the same identifier is a no-op.
func (reg *Registry) HandleDisconnect(client *Client) {
	reg.mu.Lock()
	session := reg.sessions[client.ID()]
	reg.mu.Unlock()

	if session == nil {
		return
	}

	session.Close(websocket.CloseNormalClosure, "client disconnected")
}

// remove drops both map entries for a closed session. Invoked by the
// session's close callback, exactly once per session.
func (reg *Registry) remove(clientID int64) {
	reg.mu.Lock()
	_, existed := reg.sessions[clientID]
	delete(reg.sessions, clientID)
	delete(reg.expirations, clientID)
	delete(reg.subjects, clientID)
	active := len(reg.sessions)
	reg.mu.Unlock()

	if !existed {
		return
	}

	reg.logger.Info("client session closed",
		"client_id", clientID,
		"active_sessions", active,
	)
	reg.metrics.SessionClosed(clientID)
	reg.metrics.ActiveSessions(active)
}

// SessionCount returns the number of open sessions.
func (reg *Registry) SessionCount() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.sessions)
}

// CloseAll terminates every open session. Used during shutdown so each
// client receives a going-away close.
func (reg *Registry) CloseAll() {
	reg.mu.Lock()
	sessions := make([]*Session, 0, len(reg.sessions))
	for _, s := range reg.sessions {
		sessions = append(sessions, s)
	}
	reg.mu.Unlock()

	for _, s := range sessions {
		s.Close(websocket.CloseGoingAway, "server shutting down")
	}
}
