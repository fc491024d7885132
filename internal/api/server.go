package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/touchstream/spoke/internal/api/models"
	"github.com/touchstream/spoke/internal/device"
	"github.com/touchstream/spoke/internal/logging"
	"github.com/touchstream/spoke/internal/supervisor"
	"github.com/touchstream/spoke/internal/updater"
	"github.com/touchstream/spoke/internal/version"
)

// Power triggers host power operations.
type Power interface {
	Reboot(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// EncoderSupervisor is the read surface the control server needs from the
// streaming supervisor. All writes flow through the store's events, never
// through this interface.
type EncoderSupervisor interface {
	Active() bool
	Status() supervisor.Status
}

// Options configures the control server.
type Options struct {
	Store      *device.Store
	Supervisor EncoderSupervisor
	Power      Power
	Updater    updater.Service

	// Model and IP providers, overridable in tests.
	ModelFunc func() string
	IPFunc    func() string

	// PrometheusHandler, when set, is mounted at GET /metrics.
	PrometheusHandler http.Handler
}

// Server is the control protocol server: the only writable boundary into
// the configuration store and the only trigger for management actions.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	options    *Options
	logger     *slog.Logger
}

// NewServer creates the control server with Huma v2 on Go native routing.
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()

	corsConfig := DefaultCORSConfig()
	AddCORSHandler(mux, corsConfig)

	config := huma.DefaultConfig("TouchStream Spoke", version.String())
	config.Info.Description = "Adoption and streaming control protocol for TouchStream spoke devices"
	// Relative paths in OpenAPI so the docs work from any host.
	config.Servers = []*huma.Server{}

	api := humago.New(mux, config)

	server := &Server{
		api:     api,
		mux:     mux,
		options: opts,
		logger:  logging.GetLogger("api"),
	}

	api.UseMiddleware(NewCORSMiddleware(corsConfig))
	api.UseMiddleware(HTTPLoggingMiddleware)

	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}

	server.registerRoutes()

	return server
}

// Mux returns the underlying HTTP mux, used by tests.
func (s *Server) Mux() *http.ServeMux {
	return s.mux
}

// Start starts the HTTP server on the specified address.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting control server", "addr", addr)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}
	return s.httpServer.ListenAndServe()
}

// Stop shuts the server down without waiting for open connections; the
// clients are fire-and-forget discovery apps.
func (s *Server) Stop() error {
	s.logger.Info("Stopping control server")
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

// registerRoutes sets up all control endpoints.
func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health",
		Description: "Check control server health",
		Tags:        []string{"system"},
	}, func(_ context.Context, _ *struct{}) (*models.HealthResponse, error) {
		return &models.HealthResponse{Body: models.HealthData{Status: "ok"}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/version",
		Summary:     "Version",
		Description: "Get application version information",
		Tags:        []string{"system"},
	}, func(_ context.Context, _ *struct{}) (*models.VersionResponse, error) {
		info := version.Get()
		return &models.VersionResponse{
			Body: models.VersionData{
				Version:   info.Version,
				GitCommit: info.GitCommit,
				BuildDate: info.BuildDate,
				GoVersion: info.GoVersion,
				Platform:  info.Platform,
			},
		}, nil
	})

	s.registerDiscoveryRoutes()
	s.registerPowerRoutes()
	s.registerUpdateRoutes()
}
