package objectstore

import "errors"

// ============================================================================
// Standard Object Store Errors
// ============================================================================

// These errors give every backend the same failure vocabulary. Callers
// check them with errors.Is; backends wrap them with context:
//
//	return fmt.Errorf("object %s: %w", id, objectstore.ErrObjectNotFound)

var (
	// ErrObjectNotFound indicates the requested object does not exist.
	//
	// Returned by ReadObject, TruncateObject and StatObject. RemoveObject
	// never returns it.
	ErrObjectNotFound = errors.New("object not found")

	// ErrInvalidOffset indicates an offset that would overflow the object
	// address space.
	ErrInvalidOffset = errors.New("invalid offset")

	// ErrStorageFull indicates the backend has no space left.
	//
	// This is a transient error: it may succeed after cleanup.
	ErrStorageFull = errors.New("storage full")

	// ErrUnavailable indicates the backend is temporarily unreachable.
	//
	// This is a transient error: retrying may succeed.
	ErrUnavailable = errors.New("storage unavailable")

	// ErrInvalidObjectID indicates an empty or malformed object ID.
	ErrInvalidObjectID = errors.New("invalid object ID")
)

// ValidateID rejects IDs no backend can store.
func ValidateID(id ObjectID) error {
	if id == "" {
		return ErrInvalidObjectID
	}
	return nil
}

// maxObjectOffset bounds offset+length so that int64 conversions in the
// backends cannot overflow.
const maxObjectOffset = 1<<63 - 1

// CheckRange rejects ranges that overflow the object address space.
func CheckRange(offset, length uint64) error {
	if offset > maxObjectOffset || length > maxObjectOffset-offset {
		return ErrInvalidOffset
	}
	return nil
}
