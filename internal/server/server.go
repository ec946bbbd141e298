// Package server exposes metrics, health probes and the commander status
// over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/therealutkarshpriyadarshi/edjournal/internal/health"
	"github.com/therealutkarshpriyadarshi/edjournal/internal/logging"
)

// Server provides HTTP endpoints for metrics and health checks
type Server struct {
	metricsServer *http.Server
	healthServer  *http.Server
	listeners     map[*http.Server]net.Listener
	logger        *logging.Logger
}

// Config holds server configuration
type Config struct {
	MetricsAddress  string
	MetricsPath     string
	HealthAddress   string
	LivenessPath    string
	ReadinessPath   string
	StatusPath      string
	MetricsRegistry *prometheus.Registry
	HealthChecker   *health.Checker
	// Status returns the document served at StatusPath. Nil disables it.
	Status func() any
	Logger *logging.Logger
}

// New creates a new server
func New(cfg Config) *Server {
	s := &Server{
		listeners: make(map[*http.Server]net.Listener),
		logger:    cfg.Logger,
	}
	if s.logger == nil {
		s.logger = logging.Global()
	}
	s.logger = s.logger.WithComponent("server")

	if cfg.MetricsAddress != "" && cfg.MetricsRegistry != nil {
		s.metricsServer = newHTTPServer(cfg.MetricsAddress, MetricsHandler(cfg))
	}
	if cfg.HealthAddress != "" && cfg.HealthChecker != nil {
		s.healthServer = newHTTPServer(cfg.HealthAddress, HealthHandler(cfg))
	}
	return s
}

func newHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// MetricsHandler serves the registry at MetricsPath.
func MetricsHandler(cfg Config) http.Handler {
	path := cfg.MetricsPath
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(cfg.MetricsRegistry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	return mux
}

// HealthHandler serves the probes and, when configured, the status document.
func HealthHandler(cfg Config) http.Handler {
	livenessPath := cfg.LivenessPath
	if livenessPath == "" {
		livenessPath = "/health/live"
	}
	readinessPath := cfg.ReadinessPath
	if readinessPath == "" {
		readinessPath = "/health/ready"
	}

	mux := http.NewServeMux()
	mux.HandleFunc(livenessPath, cfg.HealthChecker.LivenessHandler())
	mux.HandleFunc(readinessPath, cfg.HealthChecker.ReadinessHandler())
	mux.HandleFunc("/health", cfg.HealthChecker.HTTPHandler())

	if cfg.Status != nil {
		statusPath := cfg.StatusPath
		if statusPath == "" {
			statusPath = "/status"
		}
		mux.HandleFunc(statusPath, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if err := sonic.ConfigDefault.NewEncoder(w).Encode(cfg.Status()); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
		})
	}
	return mux
}

// Start binds both listeners and serves in the background. Bind errors are
// returned immediately.
func (s *Server) Start() error {
	for _, srv := range []*http.Server{s.metricsServer, s.healthServer} {
		if srv == nil {
			continue
		}
		ln, err := net.Listen("tcp", srv.Addr)
		if err != nil {
			_ = s.Stop(context.Background())
			return fmt.Errorf("failed to listen on %s: %w", srv.Addr, err)
		}
		s.listeners[srv] = ln

		s.logger.Info().
			Str("address", ln.Addr().String()).
			Msg("Starting HTTP server")

		go func() {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error().Err(err).Str("address", srv.Addr).Msg("HTTP server failed")
			}
		}()
	}
	return nil
}

// MetricsAddr returns the bound metrics address, or "" before Start.
func (s *Server) MetricsAddr() string { return s.addr(s.metricsServer) }

// HealthAddr returns the bound health address, or "" before Start.
func (s *Server) HealthAddr() string { return s.addr(s.healthServer) }

func (s *Server) addr(srv *http.Server) string {
	if ln, ok := s.listeners[srv]; ok {
		return ln.Addr().String()
	}
	return ""
}

// Stop gracefully shuts down the servers
func (s *Server) Stop(ctx context.Context) error {
	var err error
	for _, srv := range []*http.Server{s.metricsServer, s.healthServer} {
		if srv == nil {
			continue
		}
		if _, started := s.listeners[srv]; !started {
			continue
		}
		if shutdownErr := srv.Shutdown(ctx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Str("address", srv.Addr).Msg("Error shutting down HTTP server")
			err = errors.Join(err, shutdownErr)
		}
		delete(s.listeners, srv)
	}
	return err
}
