package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/iotagent-ngsi/internal/audit"
	"github.com/nerrad567/iotagent-ngsi/internal/infrastructure/config"
	"github.com/nerrad567/iotagent-ngsi/internal/infrastructure/logging"
	"github.com/nerrad567/iotagent-ngsi/internal/ngsi"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker reports whether a dependency is usable.
type HealthChecker func(ctx context.Context) error

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config config.APIConfig
	Logger *logging.Logger
	Agent  ngsi.Agent

	// Metrics serves GET /metrics. Defaults to the Prometheus default registry.
	Metrics http.Handler

	// Checks are run by GET /health, keyed by component name.
	Checks map[string]HealthChecker

	// Audit serves GET /iot/audit. The route is not mounted when nil.
	Audit audit.Repository

	Version string
}

// Server is the northbound HTTP API of the agent.
//
// It is created with New() and started with Start().
type Server struct {
	cfg     config.APIConfig
	logger  *logging.Logger
	agent   ngsi.Agent
	metrics http.Handler
	checks  map[string]HealthChecker
	audit   audit.Repository
	version string
	server  *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Agent == nil {
		return nil, fmt.Errorf("agent is required")
	}

	metrics := deps.Metrics
	if metrics == nil {
		metrics = promhttp.Handler()
	}

	return &Server{
		cfg:     deps.Config,
		logger:  deps.Logger,
		agent:   deps.Agent,
		metrics: metrics,
		checks:  deps.Checks,
		audit:   deps.Audit,
		version: deps.Version,
	}, nil
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
