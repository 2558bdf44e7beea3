package objectstore

import (
	"context"
	"time"
)

// ObjectID names an object inside a pool.
//
// File data objects are named by layout.ObjectName ("<ino hex>.<objectno
// hex, 8 digits>"), but stores treat the ID as opaque.
type ObjectID string

// ============================================================================
// ObjectStore Interface
// ============================================================================

// ObjectStore provides byte-addressable storage for the objects that back
// striped file data.
//
// Separation of Concerns:
//
// The object store manages only raw object bytes. It does NOT manage:
//   - Inodes, attributes and directory structure → handled by metadata.Store
//   - Striping (which file range lands in which object) → handled by pkg/layout
//   - Replication → handled by replicated.Pool, which fans out to N stores
//
// Object Semantics:
// Objects behave like sparse files:
//   - Writing at an offset beyond the current size zero-fills the gap
//   - Reading past the end returns a short (possibly empty) result
//   - Truncate shrinks or zero-extends
//
// Thread Safety:
// Implementations must be safe for concurrent use by multiple goroutines.
// Concurrent writes to the same object are serialized per object by the
// implementations in this module, but the interleaving order is undefined.
type ObjectStore interface {
	// ReadObject reads up to length bytes starting at offset.
	//
	// The result is short when the object ends before offset+length, and
	// empty (not an error) when offset is at or past the end.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - id: Object identifier
	//   - offset: Byte offset inside the object
	//   - length: Maximum number of bytes to return
	//
	// Returns:
	//   - []byte: Data read (owned by the caller)
	//   - error: ErrObjectNotFound if the object doesn't exist, or context/IO errors
	ReadObject(ctx context.Context, id ObjectID, offset, length uint64) ([]byte, error)

	// WriteObject writes data at offset, creating the object if needed.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - id: Object identifier (created if it doesn't exist)
	//   - offset: Byte offset where writing begins
	//   - data: Data to write
	//
	// Returns:
	//   - error: ErrStorageFull when a size limit is hit, or context/IO errors
	WriteObject(ctx context.Context, id ObjectID, offset uint64, data []byte) error

	// TruncateObject sets the object size.
	//
	// Returns:
	//   - error: ErrObjectNotFound if the object doesn't exist, or context/IO errors
	TruncateObject(ctx context.Context, id ObjectID, size uint64) error

	// RemoveObject deletes an object.
	//
	// The operation is idempotent: removing a missing object returns nil.
	RemoveObject(ctx context.Context, id ObjectID) error

	// StatObject returns the object's size and modification time.
	//
	// Returns:
	//   - *ObjectInfo: Object information
	//   - error: ErrObjectNotFound if the object doesn't exist, or context/IO errors
	StatObject(ctx context.Context, id ObjectID) (*ObjectInfo, error)

	// GetStorageStats returns statistics about the store.
	GetStorageStats(ctx context.Context) (*StorageStats, error)
}

// ============================================================================
// GarbageCollectableStore Interface
// ============================================================================

// GarbageCollectableStore is implemented by stores that can enumerate and
// bulk-remove objects. The orphan collector in pkg/gc requires it.
type GarbageCollectableStore interface {
	ObjectStore

	// ListObjects returns the IDs of all objects in the store.
	//
	// For large stores this may be slow and memory intensive.
	ListObjects(ctx context.Context) ([]ObjectID, error)

	// RemoveBatch removes several objects in one operation.
	//
	// The operation is best-effort: per-object failures are returned in
	// the map and do not stop the batch.
	//
	// Returns:
	//   - map[ObjectID]error: Failed removals (empty = all succeeded)
	//   - error: Only returned for context cancellation
	RemoveBatch(ctx context.Context, ids []ObjectID) (map[ObjectID]error, error)
}

// ============================================================================
// Value Types
// ============================================================================

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	ID      ObjectID
	Size    uint64
	ModTime time.Time
}

// StorageStats contains statistics about object storage.
type StorageStats struct {
	// TotalSize is the total capacity in bytes. Unbounded stores report
	// the maximum uint64 value.
	TotalSize uint64

	// UsedSize is the number of bytes held by objects.
	UsedSize uint64

	// AvailableSize is the remaining capacity in bytes.
	AvailableSize uint64

	// ObjectCount is the number of stored objects.
	ObjectCount uint64

	// AverageSize is UsedSize / ObjectCount (0 when empty).
	AverageSize uint64
}
