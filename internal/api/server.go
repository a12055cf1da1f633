package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/scenewatch/scenewatch/internal/infrastructure/config"
	"github.com/scenewatch/scenewatch/internal/infrastructure/database"
	"github.com/scenewatch/scenewatch/internal/infrastructure/logging"
	"github.com/scenewatch/scenewatch/internal/scene"
	"github.com/scenewatch/scenewatch/internal/store"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// SceneService is the engine subset the API reads and drives.
type SceneService interface {
	Statuses() ([]scene.SceneStatus, error)
	Status(sceneID string) (scene.SceneStatus, error)
	Activate(sceneID string) error
	Deactivate(sceneID string) error
}

// Reloader re-reads scene definitions and installs them into the engine.
// Returns the number of scenes loaded.
type Reloader interface {
	Reload(ctx context.Context) (int, error)
}

// SchemaReporter reports database schema migration state, surfaced by the
// health endpoint. Satisfied by *database.DB.
type SchemaReporter interface {
	MigrationStatus(ctx context.Context) (database.Status, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Engine   SceneService
	Store    store.Repository // optional: transition history endpoints
	Reloader Reloader         // optional: POST /reload
	Schema   SchemaReporter   // optional: migration status on /health
	Version  string
}

// Server is the HTTP API server for SceneWatch.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg      config.APIConfig
	wsCfg    config.WebSocketConfig
	secCfg   config.SecurityConfig
	logger   *logging.Logger
	engine   SceneService
	store    store.Repository
	reloader Reloader
	schema   SchemaReporter
	version  string
	server   *http.Server
	hub      *Hub
	cancel   context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, engine)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("scene engine is required")
	}

	return &Server{
		cfg:      deps.Config,
		wsCfg:    deps.WS,
		secCfg:   deps.Security,
		logger:   deps.Logger,
		engine:   deps.Engine,
		store:    deps.Store,
		reloader: deps.Reloader,
		schema:   deps.Schema,
		version:  deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, and launches the HTTP
// listener in a background goroutine. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	// Internal context so Close() can stop the hub independently of the
	// parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = NewHub(s.wsCfg, s.logger)
	go s.hub.Run(srvCtx)

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// BroadcastActiveChanged pushes a scene flip to subscribed WebSocket
// clients. Safe to register with the engine's OnActiveChanged: the
// broadcast runs on its own goroutine and never blocks the caller.
func (s *Server) BroadcastActiveChanged(sceneID string, active bool) {
	if s.hub == nil {
		return
	}
	go s.hub.Broadcast(ChannelActiveChanged, map[string]any{
		"scene_id": sceneID,
		"active":   active,
	})
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
