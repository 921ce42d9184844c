package proxy

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gateway-bridge/internal/infrastructure/logging"
)

// Client connection constants.
const (
	// clientSendBufferSize is the per-client outbound message buffer size.
	// A full buffer drops frames rather than blocking the relay path.
	clientSendBufferSize = 256

	clientWriteWait  = 10 * time.Second
	clientPingPeriod = 54 * time.Second
	clientPongWait   = 60 * time.Second

	// clientMaxMessageSize bounds inbound client frames.
	clientMaxMessageSize = 1 << 20 // 1MB
)

// clientIDCounter issues process-unique client identifiers. Monotonic and
// never reused, so a stale callback can never address a newer connection
// that happens to share its identifier.
var clientIDCounter atomic.Int64

// upgrader configures the WebSocket upgrader for client connections.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// Client is one live browser connection. It owns the outbound write pump;
// all frames to the client go through the bounded send channel.
type Client struct {
	id         int64
	conn       *websocket.Conn
	remoteAddr string
	send       chan []byte
	logger     *logging.Logger

	closeOnce sync.Once
	closed    atomic.Bool

	closeMu     sync.Mutex
	closeCode   int
	closeReason string
}

// newClient wraps an upgraded connection and starts its write pump.
func newClient(conn *websocket.Conn, logger *logging.Logger) *Client {
	c := &Client{
		id:         clientIDCounter.Add(1),
		conn:       conn,
		remoteAddr: conn.RemoteAddr().String(),
		send:       make(chan []byte, clientSendBufferSize),
		logger:     logger,
	}
	go c.writePump()
	return c
}

// ID returns the process-unique client identifier.
func (c *Client) ID() int64 {
	return c.id
}

// RemoteAddr returns the client's network address for log correlation.
func (c *Client) RemoteAddr() string {
	return c.remoteAddr
}

// Notify sends a control message to the client. Best effort: frames are
// dropped if the client's buffer is full or the connection is closing.
func (c *Client) Notify(msgType string, data any) {
	raw := encodeControl(msgType, data)
	if raw == nil {
		c.logger.Error("failed to encode control message", "type", msgType, "client_id", c.id)
		return
	}
	c.trySend(raw)
}

// trySend attempts to queue data for the write pump. It silently handles
// closed channels (client disconnected mid-send) and full buffers (slow
// client).
func (c *Client) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case c.send <- data:
	default:
		// Client buffer full, skip
	}
}

// CloseClient tears the connection down with the given close code.
// Idempotent. The close frame goes through the write pump so any
// control messages already queued are flushed first.
func (c *Client) CloseClient(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.closeMu.Lock()
		c.closeCode = code
		c.closeReason = reason
		c.closeMu.Unlock()
		close(c.send)
	})
}

// writePump drains the send channel onto the connection and keeps the
// client alive with protocol-level pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(clientPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				// CloseClient shut the channel; buffered frames have
				// drained, so the close frame goes out last.
				c.closeMu.Lock()
				code, reason := c.closeCode, c.closeReason
				c.closeMu.Unlock()
				//nolint:errcheck // Best-effort close frame; transport may already be gone
				c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(code, reason),
					time.Now().Add(clientWriteWait))
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(clientWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(clientWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop reads client frames and hands them to onMessage until the
// connection drops, then calls onClose exactly once.
func (c *Client) readLoop(onMessage func([]byte), onClose func()) {
	defer onClose()

	c.conn.SetReadLimit(clientMaxMessageSize)
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(clientPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(clientPongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if !c.closed.Load() && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.ClosePolicyViolation) {
				c.logger.Warn("client read error", "client_id", c.id, "remote_addr", c.remoteAddr, "error", err)
			} else {
				c.logger.Debug("client connection closed", "client_id", c.id, "remote_addr", c.remoteAddr)
			}
			return
		}
		// Any client frame resets the read deadline, keeping the
		// connection alive even if the browser skips pong replies.
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(clientPongWait))
		onMessage(message)
	}
}
