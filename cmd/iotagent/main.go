// IoT Agent NGSI
//
// The agent provisions devices, registers them as context providers with an
// NGSI Context Broker and forwards their measures as entity updates.
// Devices are managed over the northbound REST API and report measures over
// MQTT.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	kitprometheus "github.com/go-kit/kit/metrics/prometheus"

	_ "github.com/nerrad567/iotagent-ngsi/migrations"

	"github.com/nerrad567/iotagent-ngsi/internal/api"
	"github.com/nerrad567/iotagent-ngsi/internal/audit"
	"github.com/nerrad567/iotagent-ngsi/internal/bridges/measures"
	"github.com/nerrad567/iotagent-ngsi/internal/device"
	devicemongo "github.com/nerrad567/iotagent-ngsi/internal/device/mongodb"
	"github.com/nerrad567/iotagent-ngsi/internal/infrastructure/config"
	"github.com/nerrad567/iotagent-ngsi/internal/infrastructure/database"
	"github.com/nerrad567/iotagent-ngsi/internal/infrastructure/influxdb"
	"github.com/nerrad567/iotagent-ngsi/internal/infrastructure/logging"
	"github.com/nerrad567/iotagent-ngsi/internal/infrastructure/mongodb"
	"github.com/nerrad567/iotagent-ngsi/internal/infrastructure/mqtt"
	"github.com/nerrad567/iotagent-ngsi/internal/ngsi"
	"github.com/nerrad567/iotagent-ngsi/internal/security"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

// serviceMetrics registers the service metrics with the default Prometheus
// registry once per process.
var serviceMetrics = sync.OnceValues(func() (*kitprometheus.Counter, *kitprometheus.Summary) {
	return ngsi.MakeMetrics("iotagent", "ngsi")
})

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the agent and blocks until ctx is cancelled.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting IoT Agent",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"broker", cfg.BrokerURL(),
		"registry", cfg.DeviceRegistry.Type,
		"types", len(cfg.Types),
	)

	checks := make(map[string]api.HealthChecker)

	registry, trail, closeRegistry, err := openRegistry(ctx, cfg, log, checks)
	if err != nil {
		return err
	}
	defer closeRegistry()

	tokens, err := security.New(cfg.Authentication, nil)
	if err != nil {
		return fmt.Errorf("creating token provider: %w", err)
	}
	if ks, ok := tokens.(*security.KeystoneProvider); ok {
		ks.SetLogger(log)
	}
	if cfg.Authentication.Enabled {
		log.Info("authentication enabled", "type", cfg.Authentication.Type)
	}

	svc, err := ngsi.New(ngsi.Deps{
		Config:   cfg,
		Registry: registry,
		Tokens:   tokens,
		Logger:   log,
	})
	if err != nil {
		return fmt.Errorf("creating NGSI service: %w", err)
	}

	var agent ngsi.Agent = svc
	if trail != nil {
		agent = audit.Middleware(agent, trail, log)
	}
	agent = ngsi.LoggingMiddleware(agent, log)
	counter, latency := serviceMetrics()
	agent = ngsi.MetricsMiddleware(agent, counter, latency)

	var history *influxdb.Client
	if cfg.InfluxDB.Enabled {
		history, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := history.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		history.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		checks["influxdb"] = history.HealthCheck
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	if cfg.MQTT.Enabled {
		stop, mqttErr := startMeasures(ctx, cfg, agent, history, log, checks)
		if mqttErr != nil {
			return mqttErr
		}
		defer stop()
	} else {
		log.Info("MQTT southbound disabled")
	}

	if cfg.API.Enabled {
		server, apiErr := api.New(api.Deps{
			Config:  cfg.API,
			Logger:  log,
			Agent:   agent,
			Checks:  checks,
			Audit:   trail,
			Version: version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API server disabled")
	}

	for name, check := range checks {
		if err := check(ctx); err != nil {
			return fmt.Errorf("health check %s: %w", name, err)
		}
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

func getConfigPath() string {
	if path := os.Getenv("IOTA_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// openRegistry builds the device registry selected by device_registry.type.
// Persistent backends are fronted by a CachedRegistry loaded at startup.
// The SQLite backend also returns the provisioning trail stored alongside it;
// the other backends return a nil trail.
func openRegistry(ctx context.Context, cfg *config.Config, log *logging.Logger, checks map[string]api.HealthChecker) (device.Registry, audit.Repository, func(), error) {
	switch cfg.DeviceRegistry.Type {
	case "sqlite":
		db, err := database.Open(database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("opening database: %w", err)
		}
		closeDB := func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}

		if err := db.Migrate(ctx); err != nil {
			closeDB()
			return nil, nil, nil, fmt.Errorf("running migrations: %w", err)
		}
		checks["database"] = db.HealthCheck

		registry, err := cachedRegistry(ctx, device.NewSQLiteRepository(db.DB), log)
		if err != nil {
			closeDB()
			return nil, nil, nil, err
		}
		log.Info("SQLite device registry ready", "path", db.Path(), "devices", registry.Count())
		return registry, audit.NewSQLiteRepository(db.DB), closeDB, nil

	case "mongodb":
		mdb, err := mongodb.Connect(ctx, cfg.DeviceRegistry)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connecting to MongoDB: %w", err)
		}
		closeMongo := func() {
			log.Info("disconnecting from MongoDB")
			if closeErr := mongodb.Disconnect(context.Background(), mdb); closeErr != nil {
				log.Error("error disconnecting from MongoDB", "error", closeErr)
			}
		}

		repo := devicemongo.NewRepository(mdb)
		if err := repo.EnsureIndexes(ctx); err != nil {
			closeMongo()
			return nil, nil, nil, fmt.Errorf("creating MongoDB indexes: %w", err)
		}
		checks["mongodb"] = func(ctx context.Context) error { return mongodb.Ping(ctx, mdb) }

		registry, err := cachedRegistry(ctx, repo, log)
		if err != nil {
			closeMongo()
			return nil, nil, nil, err
		}
		log.Info("MongoDB device registry ready", "database", mdb.Name(), "devices", registry.Count())
		return registry, nil, closeMongo, nil

	default:
		log.Info("in-memory device registry ready")
		return device.NewMemoryRegistry(), nil, func() {}, nil
	}
}

func cachedRegistry(ctx context.Context, backend device.Registry, log *logging.Logger) (*device.CachedRegistry, error) {
	registry := device.NewCachedRegistry(backend)
	registry.SetLogger(log)
	if err := registry.RefreshCache(ctx); err != nil {
		return nil, fmt.Errorf("loading device registry: %w", err)
	}
	return registry, nil
}

// startMeasures connects to MQTT and starts the measures bridge. The
// returned func stops the bridge and disconnects.
func startMeasures(ctx context.Context, cfg *config.Config, agent ngsi.Agent, history *influxdb.Client, log *logging.Logger, checks map[string]api.HealthChecker) (func(), error) {
	client, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log)
	client.SetOnConnect(func() {
		log.Info("MQTT connected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	checks["mqtt"] = client.HealthCheck
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	opts := measures.Options{
		Agent:      agent,
		Subscriber: client,
		QoS:        byte(cfg.MQTT.QoS), //nolint:gosec // validated to 0..2 by config
		Logger:     log,
	}
	if history != nil {
		opts.History = history
	}

	bridge, err := measures.New(opts)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("creating measures bridge: %w", err)
	}
	if err := bridge.Start(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("starting measures bridge: %w", err)
	}

	return func() {
		bridge.Stop()
		log.Info("disconnecting from MQTT")
		if closeErr := client.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}, nil
}
