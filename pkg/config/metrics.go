package config

import (
	"github.com/marmos91/stripefs/pkg/metrics"
	promMetrics "github.com/marmos91/stripefs/pkg/metrics/prometheus"
	objectsS3 "github.com/marmos91/stripefs/pkg/objectstore/s3"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// MountMetrics is the collector for mount operations (never nil, uses noop if disabled)
	MountMetrics metrics.MountMetrics

	// S3Metrics is the collector for S3 replicas (nil if disabled)
	S3Metrics objectsS3.S3Metrics
}

// InitializeMetrics creates and initializes all metrics components based on configuration.
//
// If metrics are enabled:
//   - Initializes the global Prometheus registry
//   - Creates the metrics HTTP server
//   - Creates Prometheus-backed metrics instances for all components
//
// If metrics are disabled:
//   - Returns nil server
//   - Returns no-op metrics implementations
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{
			MountMetrics: metrics.NewNoopMountMetrics(),
		}
	}

	metrics.InitRegistry()

	return &MetricsResult{
		Server: metrics.NewServer(metrics.ServerConfig{
			Port: cfg.Metrics.Port,
		}),
		MountMetrics: promMetrics.NewMountMetrics(),
		S3Metrics:    promMetrics.NewS3Metrics(),
	}
}
