// Gateway Bridge - IoT gateway WebSocket proxy
//
// Gateway Bridge sits between browser clients and an IQRF gateway
// daemon. It terminates client WebSockets, authenticates them with
// JWTs, and relays daemon API traffic over a per-client upstream
// connection that reconnects automatically when the daemon restarts.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/gateway-bridge/migrations"

	"github.com/nerrad567/gateway-bridge/internal/auth"
	"github.com/nerrad567/gateway-bridge/internal/infrastructure/config"
	"github.com/nerrad567/gateway-bridge/internal/infrastructure/database"
	"github.com/nerrad567/gateway-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/gateway-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/gateway-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/gateway-bridge/internal/proxy"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gateway Bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Seed the initial owner account on first boot
	userRepo := auth.NewUserRepository(db.DB)
	if _, seedErr := auth.SeedOwner(ctx, userRepo, log.Logger); seedErr != nil {
		return fmt.Errorf("seeding owner account: %w", seedErr)
	}

	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, userRepo)

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Start the proxy server
	server, err := proxy.NewServer(proxy.Deps{
		Server:   cfg.Server,
		Upstream: cfg.Upstream,
		Auth:     cfg.Auth,
		Logger:   log,
		Verifier: verifier,
		Metrics:  buildRecorder(mqttClient, influxClient),
		Checks:   buildHealthChecks(db, mqttClient, influxClient),
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating proxy server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting proxy server: %w", err)
	}
	defer func() {
		log.Info("stopping proxy server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing proxy server", "error", closeErr)
		}
	}()
	log.Info("proxy server started",
		"address", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		"upstream", cfg.Upstream.URL,
	)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. Proxy server (closes client sessions)
	// 2. InfluxDB (if enabled)
	// 3. MQTT (if enabled)
	// 4. Database

	log.Info("Gateway Bridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GATEWAYBRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GATEWAYBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// buildRecorder assembles the metrics fan-out from whichever sinks are
// configured. Returns nil when none are, which the server treats as a
// no-op recorder.
func buildRecorder(mqttClient *mqtt.Client, influxClient *influxdb.Client) proxy.Recorder {
	var sinks proxy.MultiRecorder
	if mqttClient != nil {
		sinks = append(sinks, proxy.NewMQTTRecorder(mqttClient))
	}
	if influxClient != nil {
		sinks = append(sinks, proxy.NewInfluxRecorder(influxClient))
	}
	if len(sinks) == 0 {
		return nil
	}
	return sinks
}

// buildHealthChecks wires component probes into the /healthz handler.
func buildHealthChecks(db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) map[string]proxy.HealthChecker {
	checks := map[string]proxy.HealthChecker{
		"database": db.HealthCheck,
	}
	if mqttClient != nil {
		checks["mqtt"] = mqttClient.HealthCheck
	}
	if influxClient != nil {
		checks["influxdb"] = influxClient.HealthCheck
	}
	return checks
}

// healthCheck verifies all infrastructure connections at startup.
// Optional clients may be nil when their subsystem is disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
