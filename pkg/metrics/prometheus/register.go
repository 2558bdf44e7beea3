// Package prometheus holds the Prometheus-backed metrics implementations.
package prometheus

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// register adds c to reg, returning the collector already registered
// under the same descriptor when there is one. This lets several mounts in
// one process share the same series.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// status returns the status label for an operation outcome.
func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
