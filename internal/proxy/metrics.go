package proxy

import (
	"strconv"

	"github.com/nerrad567/gateway-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/gateway-bridge/internal/infrastructure/mqtt"
)

// Relay directions reported to the metrics sink.
const (
	DirClientToUpstream = "client_to_upstream"
	DirUpstreamToClient = "upstream_to_client"
)

// Recorder receives proxy observability events. Implementations must be
// non-blocking; recording never delays the relay path.
type Recorder interface {
	SessionOpened(clientID int64)
	SessionClosed(clientID int64)
	ActiveSessions(n int)
	ReconnectAttempt(clientID int64, attempt int, delaySeconds float64)
	FrameRelayed(clientID int64, direction string)
}

// NopRecorder discards all events. Used when no metrics sink is configured.
type NopRecorder struct{}

func (NopRecorder) SessionOpened(int64)                  {}
func (NopRecorder) SessionClosed(int64)                  {}
func (NopRecorder) ActiveSessions(int)                   {}
func (NopRecorder) ReconnectAttempt(int64, int, float64) {}
func (NopRecorder) FrameRelayed(int64, string)           {}

// InfluxRecorder writes proxy events to InfluxDB via the batched write API.
type InfluxRecorder struct {
	client *influxdb.Client
}

// NewInfluxRecorder wraps an InfluxDB client as a metrics sink.
func NewInfluxRecorder(client *influxdb.Client) *InfluxRecorder {
	return &InfluxRecorder{client: client}
}

func (r *InfluxRecorder) SessionOpened(clientID int64) {
	r.client.WriteSessionEvent(sessionKey(clientID), "opened")
}

func (r *InfluxRecorder) SessionClosed(clientID int64) {
	r.client.WriteSessionEvent(sessionKey(clientID), "closed")
}

func (r *InfluxRecorder) ActiveSessions(n int) {
	r.client.WriteActiveSessions(n)
}

func (r *InfluxRecorder) ReconnectAttempt(clientID int64, attempt int, delaySeconds float64) {
	r.client.WriteReconnectAttempt(sessionKey(clientID), attempt, delaySeconds)
}

func (r *InfluxRecorder) FrameRelayed(clientID int64, direction string) {
	r.client.WriteRelayedFrames(sessionKey(clientID), direction, 1)
}

// MQTTRecorder publishes session lifecycle events to the broker so other
// services can observe the gateway link. Frame-level events are skipped;
// per-frame broker traffic would swamp the bus.
type MQTTRecorder struct {
	client *mqtt.Client
}

// NewMQTTRecorder wraps an MQTT client as a lifecycle event sink.
func NewMQTTRecorder(client *mqtt.Client) *MQTTRecorder {
	return &MQTTRecorder{client: client}
}

func (r *MQTTRecorder) SessionOpened(clientID int64) {
	r.publishEvent("session_opened", map[string]any{"session": sessionKey(clientID)})
}

func (r *MQTTRecorder) SessionClosed(clientID int64) {
	r.publishEvent("session_closed", map[string]any{"session": sessionKey(clientID)})
}

func (r *MQTTRecorder) ActiveSessions(n int) {
	//nolint:errcheck // Best-effort gauge; broker outages must not affect the proxy
	r.client.PublishJSON(mqtt.Topics{}.ProxySessions(), map[string]any{"active": n}, true)
}

func (r *MQTTRecorder) ReconnectAttempt(clientID int64, attempt int, delaySeconds float64) {
	r.publishEvent("upstream_reconnecting", map[string]any{
		"session": sessionKey(clientID),
		"attempt": attempt,
		"delay":   delaySeconds,
	})
}

func (r *MQTTRecorder) FrameRelayed(int64, string) {}

func (r *MQTTRecorder) publishEvent(event string, payload map[string]any) {
	//nolint:errcheck // Best-effort announcement; broker outages must not affect the proxy
	r.client.PublishJSON(mqtt.Topics{}.ProxyEvent(event), payload, false)
}

// MultiRecorder fans events out to several sinks.
type MultiRecorder []Recorder

func (m MultiRecorder) SessionOpened(clientID int64) {
	for _, r := range m {
		r.SessionOpened(clientID)
	}
}

func (m MultiRecorder) SessionClosed(clientID int64) {
	for _, r := range m {
		r.SessionClosed(clientID)
	}
}

func (m MultiRecorder) ActiveSessions(n int) {
	for _, r := range m {
		r.ActiveSessions(n)
	}
}

func (m MultiRecorder) ReconnectAttempt(clientID int64, attempt int, delaySeconds float64) {
	for _, r := range m {
		r.ReconnectAttempt(clientID, attempt, delaySeconds)
	}
}

func (m MultiRecorder) FrameRelayed(clientID int64, direction string) {
	for _, r := range m {
		r.FrameRelayed(clientID, direction)
	}
}

// sessionKey renders a client identifier as a metrics tag value.
func sessionKey(clientID int64) string {
	return "sess-" + strconv.FormatInt(clientID, 10)
}
