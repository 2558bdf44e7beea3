// Package metrics provides Prometheus metrics collection for StripeFS.
//
// Metrics are optional: until InitRegistry is called every constructor
// returns a no-op implementation, and components accept nil to mean the
// same.
//
// Usage:
//
//	metrics.InitRegistry()
//	mountMetrics := prommetrics.NewMountMetrics()
//	m := mount.New("admin", mount.WithMetrics(mountMetrics))
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// registry is written once by InitRegistry and read everywhere else
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry initializes the global Prometheus registry.
//
// Call it before creating metrics instances. Later calls are ignored.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
	})
}

// GetRegistry returns the global Prometheus registry.
//
// Returns nil if InitRegistry() has not been called.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}
