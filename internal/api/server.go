package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-tour/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-tour/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-tour/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-tour/internal/measurement"
	"github.com/nerrad567/gray-logic-tour/internal/session"
	"github.com/nerrad567/gray-logic-tour/internal/tour"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// TourCatalogue is the tour store the API reads and edits. *tour.Registry
// satisfies it.
type TourCatalogue interface {
	GetTour(ctx context.Context, id string) (*tour.Tour, error)
	GetTourBySlug(ctx context.Context, slug string) (*tour.Tour, error)
	ListTours(ctx context.Context) []tour.Tour
	CreateTour(ctx context.Context, t *tour.Tour) error
	UpdateTour(ctx context.Context, t *tour.Tour) error
	DeleteTour(ctx context.Context, id string) error
	Count() int
}

// ConnectionStatus reports whether an optional backend is reachable.
type ConnectionStatus interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Tours    TourCatalogue
	Sessions *session.Manager
	Archive  measurement.Archive // optional: export history endpoints
	DB       *database.DB        // optional: pool statistics in /metrics
	MQTT     ConnectionStatus    // optional
	InfluxDB ConnectionStatus    // optional

	// ExternalHub is used instead of creating a hub, so the session manager
	// and the server broadcast through the same one.
	ExternalHub *Hub
	Version     string
}

// Server is the HTTP API server for the tour engine.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	secCfg    config.SecurityConfig
	logger    *logging.Logger
	tours     TourCatalogue
	sessions  *session.Manager
	archive   measurement.Archive
	db        *database.DB
	mqtt      ConnectionStatus
	influx    ConnectionStatus
	version   string
	startTime time.Time
	tickets   *ticketStore

	server *http.Server
	hub    *Hub
	cancel context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Tours == nil {
		return nil, fmt.Errorf("tour catalogue is required")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		secCfg:    deps.Security,
		logger:    deps.Logger,
		tours:     deps.Tours,
		sessions:  deps.Sessions,
		archive:   deps.Archive,
		db:        deps.DB,
		mqtt:      deps.MQTT,
		influx:    deps.InfluxDB,
		version:   deps.Version,
		startTime: time.Now(),
		tickets:   newTicketStore(),
	}

	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
	}

	return s, nil
}

// Hub returns the server's WebSocket hub, or nil before Start when no
// external hub was supplied.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub and ticket cleanup, and
// launches the HTTP listener in a background goroutine. The server can be
// stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	// The server owns the hub lifecycle either way; an injected hub is
	// shared with the session manager, not with another server.
	go s.hub.Run(srvCtx)

	go s.cleanTicketsLoop(srvCtx)

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
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
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

// HealthCheck verifies the API server is running.
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
