// SceneWatch - Scene Activity Inference Engine
//
// This is the main entry point for the SceneWatch daemon. SceneWatch
// watches live entity state over MQTT, matches it against declarative
// scene definitions, and publishes each scene's active/inactive state
// as a virtual switch that stays truthful even when individual lights
// are adjusted by hand.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/scenewatch/scenewatch/migrations"

	"github.com/scenewatch/scenewatch/internal/api"
	"github.com/scenewatch/scenewatch/internal/bridge"
	"github.com/scenewatch/scenewatch/internal/infrastructure/config"
	"github.com/scenewatch/scenewatch/internal/infrastructure/database"
	"github.com/scenewatch/scenewatch/internal/infrastructure/influxdb"
	"github.com/scenewatch/scenewatch/internal/infrastructure/logging"
	"github.com/scenewatch/scenewatch/internal/infrastructure/mqtt"
	"github.com/scenewatch/scenewatch/internal/loader"
	"github.com/scenewatch/scenewatch/internal/scene"
	"github.com/scenewatch/scenewatch/internal/store"
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

// registryWait is how long startup waits for the retained scene-entity
// registry announcement before loading definitions anyway.
const registryWait = 2 * time.Second

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting SceneWatch",
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

	// Scene state repository: last-known published booleans and the
	// transition history behind /scenes/{id}/transitions.
	stateRepo := store.NewSQLiteRepository(db.DB)
	if states, listErr := stateRepo.List(ctx); listErr == nil {
		log.Info("persisted scene state loaded", "scenes", len(states))
	} else {
		log.Warn("could not read persisted scene state", "error", listErr)
	}

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
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

	// Announce availability, and again after every reconnect so the
	// retained status survives broker restarts.
	topics := mqtt.Topics{}
	publishStatus := func(status string) {
		if pubErr := mqttClient.PublishRetained(topics.SystemStatus(), []byte(status)); pubErr != nil {
			log.Warn("failed to publish system status", "status", status, "error", pubErr)
		}
	}
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
		publishStatus("online")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	publishStatus("online")
	defer publishStatus("offline")

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

	// The bridge is the engine's Commander and Directory, and the engine
	// is the bridge's event sink. The proxy breaks that construction
	// cycle: build the bridge against the proxy, build the engine against
	// the bridge, then point the proxy at the engine before anything
	// subscribes.
	proxy := &engineProxy{}
	mqttBridge := bridge.New(mqttClient, proxy, log)

	engine := scene.NewEngine(scene.Options{
		SettleTime:        cfg.SettleTime(),
		NumberTolerance:   cfg.Engine.NumberTolerance,
		IgnoreUnavailable: cfg.Engine.IgnoreUnavailable,
		IgnoreAttributes:  cfg.Engine.IgnoreAttributes,
		ExcludeEnabled:    cfg.Engine.Exclusion.Enabled,
		ExcludePatterns:   scene.SplitPatterns(cfg.Engine.Exclusion.Patterns),
	}, mqttBridge, mqttBridge, log)
	proxy.engine = engine

	reloader := &sceneReloader{
		loader: loader.New(cfg.Scenes.Path, log),
		engine: engine,
		bridge: mqttBridge,
		store:  stateRepo,
		log:    log,
	}

	// Create the API server before the engine starts so its broadcast
	// callback can be registered (callbacks must be registered pre-Start).
	apiServer, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log,
		Engine:   engine,
		Store:    stateRepo,
		Reloader: reloader,
		Schema:   db,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	// Published-state flips fan out to the switch mirror, WebSocket
	// clients, SQLite, and InfluxDB. Callbacks run on the engine loop, so
	// everything that blocks goes through a goroutine.
	engine.OnActiveChanged(mqttBridge.HandleActiveChanged)
	engine.OnActiveChanged(apiServer.BroadcastActiveChanged)
	engine.OnActiveChanged(func(sceneID string, active bool) {
		go persistTransition(engine, stateRepo, influxClient, log, sceneID, active)
	})

	engine.Start(ctx)
	defer func() {
		log.Info("stopping scene engine")
		engine.Close()
	}()
	log.Info("scene engine started")

	if startErr := mqttBridge.Start(); startErr != nil {
		return fmt.Errorf("starting MQTT bridge: %w", startErr)
	}
	log.Info("MQTT bridge started")

	// Give the retained registry announcement a moment to arrive so the
	// initial load can resolve host scene entities. Late arrivals are
	// still picked up by the engine's slug matching.
	select {
	case <-mqttBridge.RegistryReady():
		log.Info("scene entity registry received")
	case <-time.After(registryWait):
		log.Warn("no scene entity registry announcement yet, loading without it")
	case <-ctx.Done():
		return nil
	}

	count, err := reloader.Reload(ctx)
	if err != nil {
		return fmt.Errorf("loading scene definitions: %w", err)
	}
	log.Info("scene definitions loaded", "path", cfg.Scenes.Path, "scenes", count)

	// Start API server
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	// SIGHUP re-reads scene definitions without a restart
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for range hup {
			n, reloadErr := reloader.Reload(context.Background())
			if reloadErr != nil {
				log.Error("SIGHUP reload failed", "error", reloadErr)
				continue
			}
			log.Info("scenes reloaded on SIGHUP", "scenes", n)
		}
	}()

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. API server
	// 2. Scene engine
	// 3. InfluxDB (if enabled)
	// 4. MQTT (after the retained offline status)
	// 5. Database

	log.Info("SceneWatch stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses SCENEWATCH_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("SCENEWATCH_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// persistTransition records one published-state flip in SQLite and, when
// enabled, InfluxDB. Runs on its own goroutine so store latency never
// stalls the engine loop.
func persistTransition(engine *scene.Engine, repo store.Repository, influx *influxdb.Client, log *logging.Logger, sceneID string, active bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st, err := engine.Status(sceneID)
	if err != nil {
		// Engine shutting down or scene dropped by a concurrent reload.
		log.Debug("skipping transition persist", "scene_id", sceneID, "error", err)
		return
	}

	if err := repo.Upsert(ctx, &store.SceneState{
		SceneID:   st.ID,
		Slug:      st.Slug,
		Name:      st.Name,
		Active:    active,
		Phase:     st.Phase,
		RawActive: st.RawActive,
	}); err != nil {
		log.Error("failed to persist scene state", "scene_id", sceneID, "error", err)
	}
	if err := repo.RecordTransition(ctx, sceneID, active); err != nil {
		log.Error("failed to record transition", "scene_id", sceneID, "error", err)
	}

	if influx != nil {
		influx.WriteSceneTransition(st.ID, st.Slug, active)
		influx.WriteSceneCounts(st.ID, st.Counts.Matched, st.Counts.Mismatched, st.Counts.Ignored, st.Counts.Excluded)
	}
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}

// sceneReloader reads scene definitions from disk and installs them in
// the engine, then refreshes the MQTT switch mirror and prunes persisted
// state for scenes that no longer exist. Serves the initial load, SIGHUP,
// and POST /api/v1/reload.
type sceneReloader struct {
	loader *loader.Loader
	engine *scene.Engine
	bridge *bridge.Bridge
	store  store.Repository
	log    *logging.Logger
}

// Reload implements api.Reloader.
func (r *sceneReloader) Reload(ctx context.Context) (int, error) {
	defs, err := r.loader.Load()
	if err != nil {
		return 0, fmt.Errorf("reading scene definitions: %w", err)
	}

	for _, loadErr := range r.engine.LoadScenes(defs) {
		r.log.Warn("scene definition rejected", "error", loadErr)
	}

	statuses, err := r.engine.Statuses()
	if err != nil {
		return 0, fmt.Errorf("querying scene statuses: %w", err)
	}
	r.bridge.UpdateScenes(statuses)

	keep := make([]string, 0, len(statuses))
	for _, st := range statuses {
		keep = append(keep, st.ID)
	}
	if pruneErr := r.store.Prune(ctx, keep); pruneErr != nil {
		r.log.Warn("failed to prune stale scene state", "error", pruneErr)
	}

	return len(statuses), nil
}

// engineProxy defers the bridge's engine reference until after the
// engine exists. All calls before the field is set are dropped; the
// bridge does not subscribe until Start(), which runs after wiring.
type engineProxy struct {
	engine *scene.Engine
}

// HandleEntityEvent implements bridge.SceneEngine.
func (p *engineProxy) HandleEntityEvent(snap scene.Snapshot) {
	if p.engine != nil {
		p.engine.HandleEntityEvent(snap)
	}
}

// Activate implements bridge.SceneEngine.
func (p *engineProxy) Activate(sceneID string) error {
	if p.engine == nil {
		return scene.ErrEngineClosed
	}
	return p.engine.Activate(sceneID)
}

// Deactivate implements bridge.SceneEngine.
func (p *engineProxy) Deactivate(sceneID string) error {
	if p.engine == nil {
		return scene.ErrEngineClosed
	}
	return p.engine.Deactivate(sceneID)
}

// NotifyExternalActivation implements bridge.SceneEngine.
func (p *engineProxy) NotifyExternalActivation(sceneEntityID string, transition time.Duration) {
	if p.engine != nil {
		p.engine.NotifyExternalActivation(sceneEntityID, transition)
	}
}
