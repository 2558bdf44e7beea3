package metrics

import "time"

// MountMetrics provides observability for mount handle operations.
//
// Implementations collect operation counts and latency, data throughput
// and the number of open file descriptors. Components treat a nil
// MountMetrics as a no-op.
type MountMetrics interface {
	// RecordOperation records a completed operation.
	//
	// Parameters:
	//   - op: Operation name (e.g., "open", "read", "rename")
	//   - duration: Time taken by the operation
	//   - err: Error if the operation failed, nil if successful
	RecordOperation(op string, duration time.Duration, err error)

	// RecordBytes records file data moved.
	//
	// Parameters:
	//   - direction: "read" or "write"
	//   - n: Number of bytes
	RecordBytes(direction string, n int64)

	// SetOpenFiles updates the number of open descriptors.
	SetOpenFiles(n int)
}

// NewNoopMountMetrics returns a MountMetrics that discards everything.
func NewNoopMountMetrics() MountMetrics {
	return noopMountMetrics{}
}

type noopMountMetrics struct{}

func (noopMountMetrics) RecordOperation(string, time.Duration, error) {}
func (noopMountMetrics) RecordBytes(string, int64)                    {}
func (noopMountMetrics) SetOpenFiles(int)                             {}
