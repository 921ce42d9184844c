package mqtt

import "fmt"

// Topic prefixes for Gateway Bridge announcements.
//
// The bridge is a publisher only: it announces its own availability and
// the lifecycle of proxied WebSocket sessions so dashboards and other
// services on the broker can observe the gateway link without polling.
const (
	// TopicPrefix is the base for all Gateway Bridge topics.
	TopicPrefix = "gatewaybridge"

	// TopicPrefixSystem is the base for service availability topics.
	TopicPrefixSystem = "gatewaybridge/system"

	// TopicPrefixProxy is the base for proxy session topics.
	TopicPrefixProxy = "gatewaybridge/proxy"
)

// Topics provides builders for Gateway Bridge MQTT topics.
// Using these helpers keeps topic naming consistent across the codebase.
type Topics struct{}

// SystemStatus returns the service availability topic.
// Carries retained online/offline payloads plus the LWT.
//
// Example: gatewaybridge/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// ProxySessions returns the retained session-count topic.
//
// Example: gatewaybridge/proxy/sessions
func (Topics) ProxySessions() string {
	return fmt.Sprintf("%s/sessions", TopicPrefixProxy)
}

// ProxyEvent returns the topic for a proxy lifecycle event.
//
// Example: gatewaybridge/proxy/event/upstream_reconnecting
func (Topics) ProxyEvent(event string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefixProxy, event)
}

// UpstreamStatus returns the topic for daemon link state.
//
// Example: gatewaybridge/proxy/upstream
func (Topics) UpstreamStatus() string {
	return fmt.Sprintf("%s/upstream", TopicPrefixProxy)
}

// AllProxyEvents returns a pattern matching every proxy lifecycle event.
//
// Pattern: gatewaybridge/proxy/event/+
func (Topics) AllProxyEvents() string {
	return fmt.Sprintf("%s/event/+", TopicPrefixProxy)
}
