package proxy

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultConnectTimeout bounds upstream socket establishment.
const DefaultConnectTimeout = 10 * time.Second

// UpstreamConn is the subset of a WebSocket connection the session needs.
// *websocket.Conn satisfies it; tests substitute an in-memory fake.
type UpstreamConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Connector opens new upstream sockets. Sessions hold a Connector rather
// than dialing directly so the reconnect path can be exercised without a
// network.
type Connector interface {
	Connect(ctx context.Context) (UpstreamConn, error)
}

// Dialer connects to the daemon API WebSocket endpoint. A wss:// scheme
// enables TLS with a modern minimum version.
type Dialer struct {
	url     string
	timeout time.Duration
}

// NewDialer creates a connector for the given upstream URL.
func NewDialer(rawURL string, timeout time.Duration) (*Dialer, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing upstream url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("upstream url scheme must be ws or wss, got %q", u.Scheme)
	}
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	return &Dialer{url: rawURL, timeout: timeout}, nil
}

// Connect dials the upstream endpoint, honouring the configured timeout
// and any earlier cancellation on ctx.
func (d *Dialer) Connect(ctx context.Context) (UpstreamConn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: d.timeout,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}

	dialCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	conn, _, err := dialer.DialContext(dialCtx, d.url, nil) //nolint:bodyclose // gorilla replaces the body with an empty reader on success
	if err != nil {
		return nil, fmt.Errorf("dialing upstream %s: %w", d.url, err)
	}
	return conn, nil
}
