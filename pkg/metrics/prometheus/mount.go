package prometheus

import (
	"errors"
	"io/fs"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/marmos91/stripefs/pkg/metrics"
)

// mountMetrics is the Prometheus implementation of metrics.MountMetrics.
type mountMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesTotal        *prometheus.CounterVec
	openFiles         prometheus.Gauge
}

// NewMountMetrics creates a Prometheus-backed MountMetrics instance.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry
// not called).
func NewMountMetrics() metrics.MountMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopMountMetrics()
	}

	reg := metrics.GetRegistry()

	return &mountMetrics{
		operationsTotal: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stripefs_mount_operations_total",
				Help: "Total number of mount operations by operation, status and errno",
			},
			[]string{"operation", "status", "errno"},
		)),
		operationDuration: register(reg, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "stripefs_mount_operation_duration_milliseconds",
				Help: "Duration of mount operations in milliseconds",
				Buckets: []float64{
					0.1,  // 100us
					1,    // 1ms
					10,   // 10ms
					100,  // 100ms
					1000, // 1s
				},
			},
			[]string{"operation"},
		)),
		bytesTotal: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stripefs_mount_bytes_total",
				Help: "Total file data bytes moved by direction",
			},
			[]string{"direction"},
		)),
		openFiles: register(reg, prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "stripefs_mount_open_files",
				Help: "Current number of open file descriptors",
			},
		)),
	}
}

func (m *mountMetrics) RecordOperation(op string, duration time.Duration, err error) {
	m.operationsTotal.WithLabelValues(op, status(err), errnoLabel(err)).Inc()
	m.operationDuration.WithLabelValues(op).Observe(float64(duration) / float64(time.Millisecond))
}

func (m *mountMetrics) RecordBytes(direction string, n int64) {
	if n > 0 {
		m.bytesTotal.WithLabelValues(direction).Add(float64(n))
	}
}

func (m *mountMetrics) SetOpenFiles(n int) {
	m.openFiles.Set(float64(n))
}

// errnoLabel extracts the errno name carried by a *fs.PathError.
func errnoLabel(err error) string {
	if err == nil {
		return ""
	}
	var pe *fs.PathError
	if errors.As(err, &pe) {
		var errno syscall.Errno
		if errors.As(pe.Err, &errno) {
			return errno.Error()
		}
	}
	return "other"
}
