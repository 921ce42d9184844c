package proxy

import (
	"encoding/json"
	"time"
)

// Control message types sent from the proxy to clients. These frames
// describe proxy and upstream state and are distinct from relayed daemon
// API payloads.
const (
	MsgProxyAuthFailed            = "proxy_auth_failed"
	MsgProxySessionExpired        = "proxy_session_expired"
	MsgProxySessionRefreshSuccess = "proxy_session_refresh_success"
	MsgProxySessionRefreshFailed  = "proxy_session_refresh_failed"
	MsgUpstreamReady              = "upstream_ready"
	MsgUpstreamAuthFailed         = "upstream_auth_failed"
	MsgUpstreamDisconnected       = "upstream_disconnected"
	MsgUpstreamReconnecting       = "upstream_reconnecting"
	MsgUpstreamResponse           = "upstream_response"
	MsgRequestInvalid             = "upstream_request_invalid"
	MsgRequestFailed              = "upstream_request_failed"
)

// MsgProxySessionRefresh is the one client-originated control frame:
// a replacement access token to extend the session past the original
// token's expiry.
const MsgProxySessionRefresh = "proxy_session_refresh"

// Error codes carried by proxy_auth_failed. The numeric code mirrors
// the symbolic string for clients that switch on numbers.
const (
	AuthErrMissingToken = "missing_token"
	AuthErrInvalidToken = "invalid_token"

	AuthCodeMissingToken = 0
	AuthCodeInvalidToken = 1
)

// ControlMessage is the envelope for every proxy-originated client frame.
type ControlMessage struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
}

// authRequest is the frame sent to the upstream daemon after the
// transport opens.
type authRequest struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// readyData is the payload of upstream_ready: the daemon-supplied
// session expiration, so the client can anticipate the upstream cutoff.
type readyData struct {
	Expiration int64 `json:"expiration"`
}

// reconnectingData is the payload of upstream_reconnecting.
type reconnectingData struct {
	Attempt int     `json:"attempt"`
	Delay   float64 `json:"delay"`
}

// proxyAuthFailedData is the payload of proxy_auth_failed. The code is
// always present, missing_token being code zero.
type proxyAuthFailedData struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// authFailedData is the payload of upstream_auth_failed.
type authFailedData struct {
	Error string `json:"error"`
	Code  int    `json:"code,omitempty"`
}

// requestFailedData echoes the identifiers of a request the proxy could
// not relay, so the client can correlate the failure.
type requestFailedData struct {
	MType string `json:"mType"`
	MsgID string `json:"msgId"`
}

// newControlMessage builds an envelope with the current Unix timestamp.
func newControlMessage(msgType string, data any) ControlMessage {
	return ControlMessage{
		Type:      msgType,
		Timestamp: time.Now().Unix(),
		Data:      data,
	}
}

// encodeControl marshals a control message for transmission.
// Returns nil when the payload cannot be encoded; callers drop the frame.
func encodeControl(msgType string, data any) []byte {
	raw, err := json.Marshal(newControlMessage(msgType, data))
	if err != nil {
		return nil
	}
	return raw
}
