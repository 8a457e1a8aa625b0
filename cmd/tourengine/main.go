// Tour Engine - Immersive Property Tour Server
//
// This is the main entry point for the tour engine. It serves panoramic
// property tours to browser viewers: each viewer opens a session, and the
// engine owns navigation, orientation, measurements, virtual staging and the
// neighbourhood overview for that session.
//
// Optional backends:
//   - MQTT: session events out, catalogue changes in (multi-instance)
//   - InfluxDB: scene dwell, measurement and staging metrics
//   - Staging service: external generator for virtually staged images
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	_ "github.com/nerrad567/gray-logic-tour/migrations"

	"github.com/nerrad567/gray-logic-tour/internal/api"
	"github.com/nerrad567/gray-logic-tour/internal/assets"
	"github.com/nerrad567/gray-logic-tour/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-tour/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-tour/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-tour/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-tour/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-tour/internal/measurement"
	"github.com/nerrad567/gray-logic-tour/internal/orientation"
	"github.com/nerrad567/gray-logic-tour/internal/session"
	"github.com/nerrad567/gray-logic-tour/internal/staging"
	"github.com/nerrad567/gray-logic-tour/internal/tour"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"

	// assetCheckTimeout bounds one panorama reachability check.
	assetCheckTimeout = 15 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting tour engine",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Database
	db, err := database.Open(ctx, database.Config{
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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Tour catalogue
	registry := tour.NewRegistry(tour.NewSQLiteRepository(db.DB))
	registry.SetLogger(log)
	if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading tour catalogue: %w", refreshErr)
	}
	log.Info("tour catalogue loaded", "tours", registry.Count())

	hub := api.NewHub(cfg.WebSocket, log)
	notifier := &catalogueNotifier{hub: hub}
	registry.SetNotifier(notifier)

	// MQTT (optional)
	var mqttClient *mqtt.Client
	var events *mqtt.EventPublisher
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
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		events = mqtt.NewEventPublisher(mqttClient, cfg.Site.ID+"/"+uuid.NewString())
		notifier.bus = events

		if subErr := subscribeTourChanges(ctx, mqttClient, events.Origin(), registry, hub, log); subErr != nil {
			return fmt.Errorf("subscribing to catalogue changes: %w", subErr)
		}
	} else {
		log.Info("MQTT disabled")
	}

	// InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
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

	// Sessions
	archive := measurement.NewSQLiteArchive(db.DB)
	deps := session.Deps{
		Logger:      log,
		Broadcaster: hub,
		Archive:     archive,
		History:     staging.NewSQLiteRepository(db.DB),
	}
	// Interfaces stay nil when a backend is off; a typed nil pointer would not.
	if events != nil {
		deps.Events = events
	}
	if influxClient != nil {
		deps.Metrics = influxClient
	}

	if cfg.Staging.Enabled {
		deps.Generator = staging.NewHTTPGenerator(cfg.Staging.Endpoint, cfg.Staging.APIKey, cfg.Staging.TimeoutDuration())
		log.Info("virtual staging enabled", "endpoint", cfg.Staging.Endpoint)
	} else {
		log.Info("virtual staging disabled")
	}

	var preloader *assets.Preloader
	if cfg.Viewer.PreloadAssets {
		preloader = assets.NewPreloader(assets.NewHTTPChecker(assetCheckTimeout), assets.DefaultConcurrency)
		deps.Preloader = preloader
	}

	sessions := session.NewManager(sessionConfig(cfg), registry, deps)
	sessionsDone := make(chan struct{})
	go func() {
		defer close(sessionsDone)
		sessions.Run(ctx)
	}()
	log.Info("session manager started",
		"max_sessions", cfg.Viewer.MaxSessions,
		"session_ttl_minutes", cfg.Viewer.SessionTTL,
	)

	// API server
	apiDeps := api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Security:    cfg.Security,
		Logger:      log,
		Tours:       registry,
		Sessions:    sessions,
		Archive:     archive,
		DB:          db,
		ExternalHub: hub,
		Version:     version,
	}
	if mqttClient != nil {
		apiDeps.MQTT = mqttClient
	}
	if influxClient != nil {
		apiDeps.InfluxDB = influxClient
	}
	server, err := api.New(apiDeps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Run closes every session on cancel; wait so dwell metrics and
	// session.closed events go out before the backends disconnect.
	<-sessionsDone
	if preloader != nil {
		preloader.Wait()
	}

	log.Info("tour engine stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses TOURENGINE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("TOURENGINE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// sessionConfig maps the viewer section onto session tuning.
func sessionConfig(cfg *config.Config) session.Config {
	return session.Config{
		Orientation: orientation.Config{
			DragSensitivity:  cfg.Viewer.DragSensitivity,
			WheelSensitivity: cfg.Viewer.WheelSensitivity,
			AutoRotateRate:   cfg.Viewer.AutoRotateRate,
			AutoRotate:       cfg.Viewer.AutoRotate,
		},
		PixelsPerMeter: cfg.Viewer.DefaultPixelsPerMeter,
		TTL:            cfg.Viewer.SessionTTLDuration(),
		TickInterval:   cfg.Viewer.TickIntervalDuration(),
		MaxSessions:    cfg.Viewer.MaxSessions,
		SiteID:         cfg.Site.ID,
	}
}

// catalogueNotifier fans tour changes out to WebSocket viewers and, when
// MQTT is enabled, to other engine instances.
type catalogueNotifier struct {
	hub *api.Hub
	bus *mqtt.EventPublisher
}

func (n *catalogueNotifier) PublishTourChanged(tourID, change string) error {
	n.hub.Broadcast(api.ChannelTours, tourChange{TourID: tourID, Change: change})
	if n.bus == nil {
		return nil
	}
	return n.bus.PublishTourChanged(tourID, change)
}

// tourChange is the payload on the "tours" WebSocket channel.
type tourChange struct {
	TourID string `json:"tour_id"`
	Change string `json:"change"`
}

// subscribeTourChanges reloads tours edited by other instances and relays
// the change to local viewers. Events carrying our own origin are skipped;
// the registry already holds them.
func subscribeTourChanges(ctx context.Context, client *mqtt.Client, origin string, registry *tour.Registry, hub *api.Hub, log *logging.Logger) error {
	return client.Subscribe(mqtt.Topics{}.AllTourChanges(), client.DefaultQoS(), func(topic string, payload []byte) error {
		tourID, ok := mqtt.ParseTourChanged(topic)
		if !ok {
			return fmt.Errorf("unexpected topic %q", topic)
		}
		ev, err := mqtt.DecodeEvent(payload)
		if err != nil {
			return err
		}
		if ev.Origin == origin {
			return nil
		}

		if err := registry.Reload(ctx, tourID); err != nil {
			return err
		}
		change := strings.TrimPrefix(ev.Type, "tour.")
		log.Info("tour changed on another instance", "tour_id", tourID, "change", change, "origin", ev.Origin)
		hub.Broadcast(api.ChannelTours, tourChange{TourID: tourID, Change: change})
		return nil
	})
}

// healthCheck verifies all infrastructure connections are healthy.
// Disabled backends are passed as nil and skipped.
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
