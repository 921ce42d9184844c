// Package influxdb provides InfluxDB connectivity for Gateway Bridge.
//
// It wraps the official influxdb-client-go v2 library with patterns for
// connection management, proxy metric writing, and health monitoring.
//
// # Purpose
//
// This package handles time-series storage for proxy observability:
//   - Session lifecycle events (opened, closed, expired)
//   - Upstream reconnect attempts and backoff delays
//   - Relayed frame counts per session and direction
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "gatewaybridge",
//	    Bucket: "metrics",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteSessionEvent("sess-42", "opened")
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are delivered via a
// callback. Connection and health check errors are returned directly.
package influxdb
