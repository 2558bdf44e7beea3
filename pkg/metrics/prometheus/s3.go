package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/marmos91/stripefs/pkg/metrics"
	"github.com/marmos91/stripefs/pkg/objectstore/s3"
)

// s3Metrics is the Prometheus implementation of s3.S3Metrics.
type s3Metrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesTransferred  *prometheus.CounterVec
}

// NewS3Metrics creates a Prometheus-backed S3Metrics instance.
//
// Returns nil if metrics are not enabled, which makes the S3 object store
// fall back to its built-in no-op implementation.
func NewS3Metrics() s3.S3Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &s3Metrics{
		operationsTotal: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stripefs_s3_operations_total",
				Help: "Total number of S3 operations by operation type and status",
			},
			[]string{"operation", "status"},
		)),
		operationDuration: register(reg, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "stripefs_s3_operation_duration_seconds",
				Help: "Duration of S3 operations in seconds",
				Buckets: []float64{
					0.01, // 10ms
					0.05, // 50ms
					0.1,  // 100ms
					0.5,  // 500ms
					1.0,  // 1s
					5.0,  // 5s
					30.0, // 30s
				},
			},
			[]string{"operation"},
		)),
		bytesTransferred: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stripefs_s3_bytes_transferred_total",
				Help: "Total bytes transferred in S3 operations",
			},
			[]string{"operation"},
		)),
	}
}

func (m *s3Metrics) ObserveOperation(operation string, duration time.Duration, err error) {
	m.operationsTotal.WithLabelValues(operation, status(err)).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *s3Metrics) RecordBytes(operation string, bytes int64) {
	if bytes > 0 {
		m.bytesTransferred.WithLabelValues(operation).Add(float64(bytes))
	}
}
