package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	originalEnv := os.Getenv("GATEWAYBRIDGE_CONFIG")
	defer os.Setenv("GATEWAYBRIDGE_CONFIG", originalEnv)

	os.Setenv("GATEWAYBRIDGE_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_MissingJWTSecret verifies run fails when no JWT secret is set.
func TestRun_MissingJWTSecret(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")
	dbPath := filepath.Join(tmpDir, "test.db")

	configContent := `
database:
  path: "` + dbPath + `"
  wal_mode: true
  busy_timeout: 5

upstream:
  url: "ws://127.0.0.1:1338"
  api_key: "test-key"

mqtt:
  enabled: false

influxdb:
  enabled: false

logging:
  level: error
  format: text
  output: stderr
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	originalEnv := os.Getenv("GATEWAYBRIDGE_CONFIG")
	defer os.Setenv("GATEWAYBRIDGE_CONFIG", originalEnv)
	os.Setenv("GATEWAYBRIDGE_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail without a JWT secret")
	}
}

// TestRun_StartupAndShutdown runs the full startup path with MQTT and
// InfluxDB disabled, then shuts down on context expiry.
func TestRun_StartupAndShutdown(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")
	dbPath := filepath.Join(tmpDir, "test.db")

	configContent := `
database:
  path: "` + dbPath + `"
  wal_mode: true
  busy_timeout: 5

upstream:
  url: "ws://127.0.0.1:1338"
  api_key: "test-key"
  connect_timeout: 2
  auth_timeout: 5
  reconnect_max_delay: 60

auth:
  jwt_secret: "test-secret-key-for-jwt-signing-32ch"
  access_token_ttl: 90

mqtt:
  enabled: false

influxdb:
  enabled: false

logging:
  level: error
  format: text
  output: stderr

server:
  host: "127.0.0.1"
  port: 18099
  timeouts:
    read: 30
    write: 30
    idle: 60
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	originalEnv := os.Getenv("GATEWAYBRIDGE_CONFIG")
	defer os.Setenv("GATEWAYBRIDGE_CONFIG", originalEnv)
	os.Setenv("GATEWAYBRIDGE_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := run(ctx); err != nil {
		t.Fatalf("run() returned error: %v", err)
	}

	// The seeded database survives shutdown.
	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("database file missing after shutdown: %v", err)
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	originalEnv := os.Getenv("GATEWAYBRIDGE_CONFIG")
	defer os.Setenv("GATEWAYBRIDGE_CONFIG", originalEnv)

	os.Unsetenv("GATEWAYBRIDGE_CONFIG")

	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	originalEnv := os.Getenv("GATEWAYBRIDGE_CONFIG")
	defer os.Setenv("GATEWAYBRIDGE_CONFIG", originalEnv)

	expected := "/custom/path/config.yaml"
	os.Setenv("GATEWAYBRIDGE_CONFIG", expected)

	if path := getConfigPath(); path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

// TestBuildRecorder_NoSinks verifies nil is returned when nothing is
// configured, so the server falls back to the no-op recorder.
func TestBuildRecorder_NoSinks(t *testing.T) {
	if rec := buildRecorder(nil, nil); rec != nil {
		t.Errorf("buildRecorder(nil, nil) = %v, want nil", rec)
	}
}
