// Package mqtt provides MQTT announcement connectivity for Gateway Bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing bridge availability and proxy session events
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// The bridge is publish-only on MQTT. It announces its own availability
// on a retained status topic and emits proxy lifecycle events (client
// sessions opening and closing, upstream reconnect attempts) so other
// services on the broker can observe the gateway link without polling
// the HTTP API.
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	topic := mqtt.Topics{}.ProxyEvent("upstream_reconnecting")
//	client.PublishJSON(topic, payload, false)
package mqtt
