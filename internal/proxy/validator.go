package proxy

// Structural classification of upstream and client JSON payloads.
//
// These are shape checks only. The proxy never interprets daemon API
// semantics beyond confirming a message type and message ID exist; an
// unrecognised payload falls through to the caller's fallback branch.

// Upstream authentication response discriminators.
const (
	upstreamTypeAuthSuccess = "auth_success"
	upstreamTypeAuthFailed  = "auth_failed"
)

// IsDaemonAPIMessage reports whether msg looks like a daemon API request:
// a string mType field and a nested data object with a string msgId.
func IsDaemonAPIMessage(msg map[string]any) bool {
	if _, ok := msg["mType"].(string); !ok {
		return false
	}
	data, ok := msg["data"].(map[string]any)
	if !ok {
		return false
	}
	_, ok = data["msgId"].(string)
	return ok
}

// IsAuthSuccessMessage reports whether msg matches the upstream's
// authentication-success shape: type "auth_success" with an integer
// expiration timestamp and a boolean service-mode flag. A frame missing
// either field is not a verdict and relays like any other payload.
func IsAuthSuccessMessage(msg map[string]any) bool {
	if t, ok := msg["type"].(string); !ok || t != upstreamTypeAuthSuccess {
		return false
	}
	if _, ok := msg["service"].(bool); !ok {
		return false
	}
	return isIntegral(msg["expiration"])
}

// IsAuthErrorMessage reports whether msg matches the upstream's
// authentication-error shape: type "auth_failed" with an error string
// and a numeric code.
func IsAuthErrorMessage(msg map[string]any) bool {
	if t, ok := msg["type"].(string); !ok || t != upstreamTypeAuthFailed {
		return false
	}
	if _, ok := msg["error"].(string); !ok {
		return false
	}
	return isIntegral(msg["code"])
}

// IsSessionRefreshMessage reports whether msg is a client session
// refresh request: type "proxy_session_refresh", an integer timestamp,
// and a data object carrying the replacement token. The one client
// frame the proxy interprets instead of relaying.
func IsSessionRefreshMessage(msg map[string]any) bool {
	if t, ok := msg["type"].(string); !ok || t != MsgProxySessionRefresh {
		return false
	}
	if !isIntegral(msg["timestamp"]) {
		return false
	}
	data, ok := msg["data"].(map[string]any)
	if !ok {
		return false
	}
	_, ok = data["token"].(string)
	return ok
}

// isIntegral reports whether v is a JSON number with no fractional part.
// encoding/json decodes all numbers as float64.
func isIntegral(v any) bool {
	f, ok := v.(float64)
	return ok && f == float64(int64(f))
}
