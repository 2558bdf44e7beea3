package s3

import "time"

// S3Metrics receives observations from the S3 object store.
//
// The Prometheus implementation lives in pkg/metrics/prometheus; it is
// injected here so this package does not depend on the metrics stack.
type S3Metrics interface {
	// ObserveOperation records one S3-backed operation and its outcome.
	ObserveOperation(operation string, duration time.Duration, err error)

	// RecordBytes records bytes moved by an operation ("read" or "write").
	RecordBytes(operation string, bytes int64)
}

type noopMetrics struct{}

func (noopMetrics) ObserveOperation(string, time.Duration, error) {}
func (noopMetrics) RecordBytes(string, int64)                      {}
