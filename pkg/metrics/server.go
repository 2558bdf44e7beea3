package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marmos91/stripefs/internal/logger"
)

const (
	// DefaultPort is the metrics port used when none is configured.
	DefaultPort = 9090

	// stopTimeout bounds the graceful shutdown that follows cancellation of
	// the context passed to Start.
	stopTimeout = 5 * time.Second
)

// Server exposes the client's Prometheus registry over HTTP while a
// handle is mounted.
//
// Endpoints:
//   - GET /metrics: Prometheus metrics in text format, or 503 when
//     collection was never enabled with InitRegistry
//   - GET /: a one-line pointer to /metrics
type Server struct {
	httpServer *http.Server
	port       int
	stopOnce   sync.Once
}

// ServerConfig configures the metrics HTTP server.
type ServerConfig struct {
	// Port to listen on for HTTP requests.
	// Default: 9090
	Port int
}

// applyDefaults fills in zero values with sensible defaults.
func (c *ServerConfig) applyDefaults() {
	if c.Port <= 0 {
		c.Port = DefaultPort
	}
}

// NewServer creates a metrics server for the global registry.
//
// The server does not listen until Start is called. Whether /metrics
// serves the registry is decided here, so InitRegistry must run first.
//
// Parameters:
//   - config: Listening port (zero selects DefaultPort)
//
// Returns:
//   - *Server: Configured but stopped server
func NewServer(config ServerConfig) *Server {
	config.applyDefaults()

	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsHandler())
	mux.HandleFunc("/", indexHandler(config.Port))

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", config.Port),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		port: config.Port,
	}
}

// metricsHandler serves the global registry, or a 503 explaining that
// collection is off.
func metricsHandler() http.Handler {
	if registry := GetRegistry(); registry != nil {
		logger.Debug("Metrics endpoint registered at /metrics")
		return promhttp.HandlerFor(registry, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		})
	}

	logger.Debug("Metrics collection disabled")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = fmt.Fprintln(w, "Metrics collection is disabled")
	})
}

func indexHandler(port int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = fmt.Fprintf(w, "StripeFS client metrics: scrape http://<host>:%d/metrics\n", port)
	}
}

// Start binds the port and serves until ctx is cancelled or serving fails.
//
// The listener is opened before Start blocks, so a port that is already
// taken is reported right away. Cancelling ctx triggers a graceful
// shutdown bounded by five seconds.
//
// Parameters:
//   - ctx: Controls the server lifetime
//
// Returns:
//   - error: nil after a graceful shutdown, a bind error, a serving error,
//     or the shutdown error from Stop
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("metrics server failed to listen on port %d: %w", s.port, err)
	}
	logger.Info("Metrics server listening on port %d", s.port)

	served := make(chan error, 1)
	go func() {
		served <- s.httpServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		logger.Debug("Metrics server shutdown signal received")
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		return s.Stop(stopCtx)
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server failed: %w", err)
	}
}

// Stop gracefully shuts the server down.
//
// Stop is safe to call more than once, before Start, and concurrently
// with Start. Only the first call does any work.
//
// Parameters:
//   - ctx: Bounds the wait for in-flight scrapes
//
// Returns:
//   - error: The shutdown error of the first call, nil afterwards
func (s *Server) Stop(ctx context.Context) error {
	var stopErr error
	s.stopOnce.Do(func() {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			stopErr = fmt.Errorf("metrics server shutdown error: %w", err)
			logger.Error("Metrics server shutdown error: %v", err)
			return
		}
		logger.Info("Metrics server on port %d stopped", s.port)
	})
	return stopErr
}

// Handler returns the server's HTTP handler, for serving it in-process.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Port returns the configured TCP port.
func (s *Server) Port() int {
	return s.port
}
