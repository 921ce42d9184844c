// Package proxy bridges browser WebSocket clients to the gateway daemon's
// JSON API socket.
//
// Each accepted client gets its own Session, which owns exactly one
// upstream connection at a time. The session dials the daemon, performs
// the api-key auth handshake, and then relays frames in both directions.
// A lost upstream socket is redialled with capped exponential backoff and
// jitter; the client is kept informed through typed control messages
// (upstream_ready, upstream_reconnecting, upstream_response, and so on)
// so it never needs to reconnect itself.
//
// Clients authenticate with a JWT passed as a token query parameter on
// the /ws upgrade. Missing or invalid tokens are reported over the socket
// and closed with a policy-violation frame (1008). Token expiry is
// enforced on every inbound client frame; a client can extend its
// session before expiry by sending a proxy_session_refresh frame with a
// fresh token for the same user.
//
// The Registry tracks live sessions and their token expirations. Server
// wires the registry into an HTTP listener alongside the login endpoint
// that issues tokens and the health probe.
package proxy
