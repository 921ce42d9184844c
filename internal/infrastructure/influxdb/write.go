package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteSessionEvent records a proxy session lifecycle event.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - sessionKey: Registry key of the session (e.g., "sess-42")
//   - event: Lifecycle event (e.g., "opened", "closed", "expired")
//
// Example:
//
//	client.WriteSessionEvent("sess-42", "opened")
func (c *Client) WriteSessionEvent(sessionKey string, event string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"proxy_sessions",
		map[string]string{
			"session": sessionKey,
			"event":   event,
		},
		map[string]interface{}{
			"count": 1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteActiveSessions records the current number of open proxy sessions.
func (c *Client) WriteActiveSessions(active int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"proxy_sessions_active",
		nil,
		map[string]interface{}{
			"active": active,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteReconnectAttempt records an upstream reconnect attempt and the
// delay chosen for it.
//
// Parameters:
//   - sessionKey: Registry key of the session driving the reconnect
//   - attempt: 1-based attempt number within the current outage
//   - delaySeconds: Backoff delay before this attempt
func (c *Client) WriteReconnectAttempt(sessionKey string, attempt int, delaySeconds float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"upstream_reconnects",
		map[string]string{
			"session": sessionKey,
		},
		map[string]interface{}{
			"attempt":       attempt,
			"delay_seconds": delaySeconds,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteRelayedFrames records frames relayed through a proxy session.
//
// Parameters:
//   - sessionKey: Registry key of the session
//   - direction: "client_to_upstream" or "upstream_to_client"
//   - count: Number of frames relayed since the last report
func (c *Client) WriteRelayedFrames(sessionKey string, direction string, count int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"relayed_frames",
		map[string]string{
			"session":   sessionKey,
			"direction": direction,
		},
		map[string]interface{}{
			"count": count,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "bridge-01"},
//	    map[string]interface{}{"goroutines": 42})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
