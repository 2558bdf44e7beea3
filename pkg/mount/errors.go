package mount

import (
	"context"
	"errors"
	"io/fs"
	"strconv"
	"syscall"

	"github.com/marmos91/stripefs/pkg/metadata"
	"github.com/marmos91/stripefs/pkg/objectstore"
)

// ============================================================================
// Lifecycle errors
// ============================================================================

// These errors are returned bare (never wrapped) so callers can compare
// them directly or with errors.Is.
var (
	// ErrNotMounted is returned by every filesystem operation on a handle
	// that is not mounted. No validation or I/O happens first.
	ErrNotMounted = errors.New("mount: not mounted")

	// ErrAlreadyMounted is returned by Mount and Release on a mounted handle.
	ErrAlreadyMounted = errors.New("mount: already mounted")

	// ErrShutDown is returned by Mount and ConfSet once the handle has
	// been shut down or released.
	ErrShutDown = errors.New("mount: handle is shut down")
)

// ============================================================================
// Errno mapping
// ============================================================================

// ioError reports an object or store failure as EIO while keeping the
// cause reachable through errors.Is and errors.As.
type ioError struct {
	err error
}

func (e *ioError) Error() string {
	return e.err.Error()
}

func (e *ioError) Unwrap() []error {
	return []error{syscall.EIO, e.err}
}

// toErrno converts a store error to the errno an application expects.
//
// Mapping:
//   - metadata.StoreError codes map one to one
//   - objectstore.ErrStorageFull -> ENOSPC
//   - context errors are kept as is
//   - anything else -> EIO, wrapping the cause
func toErrno(err error) error {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}

	if code, ok := metadata.CodeOf(err); ok {
		switch code {
		case metadata.ErrNotFound:
			return syscall.ENOENT
		case metadata.ErrAlreadyExists:
			return syscall.EEXIST
		case metadata.ErrNotEmpty:
			return syscall.ENOTEMPTY
		case metadata.ErrIsDirectory:
			return syscall.EISDIR
		case metadata.ErrNotDirectory:
			return syscall.ENOTDIR
		case metadata.ErrInvalidArgument:
			return syscall.EINVAL
		case metadata.ErrNoSpace:
			return syscall.ENOSPC
		case metadata.ErrStaleHandle:
			return syscall.ESTALE
		}
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, objectstore.ErrStorageFull):
		return syscall.ENOSPC
	}
	return &ioError{err: err}
}

// pathError wraps err for op on path.
func pathError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &fs.PathError{Op: op, Path: path, Err: toErrno(err)}
}

// fdError wraps err for op on descriptor fd.
func fdError(op string, fd int, err error) error {
	if err == nil {
		return nil
	}
	return &fs.PathError{Op: op, Path: "fd " + strconv.Itoa(fd), Err: toErrno(err)}
}
