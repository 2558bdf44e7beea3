package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/marmos91/stripefs/pkg/objectstore"
)

// MemoryObjectStore implements ObjectStore using in-memory storage.
//
// This implementation keeps every object in a map. It's designed for:
//   - Testing and development
//   - Ephemeral mounts (data is lost when the process exits)
//
// Implemented Interfaces:
//   - objectstore.ObjectStore
//   - objectstore.GarbageCollectableStore
//
// Thread Safety:
// All operations are protected by a sync.RWMutex. Data is copied on read
// and write so callers may reuse their buffers.
type MemoryObjectStore struct {
	mu      sync.RWMutex
	objects map[objectstore.ObjectID]*object

	// used is the sum of all object sizes.
	used uint64

	// maxSize caps used; 0 means unlimited.
	maxSize uint64
}

type object struct {
	data    []byte
	modTime time.Time
}

// Config configures a MemoryObjectStore.
type Config struct {
	// MaxSize is the maximum number of bytes held across all objects.
	// Writes that would exceed it fail with ErrStorageFull. 0 = unlimited.
	MaxSize uint64 `mapstructure:"max_size"`
}

// NewMemoryObjectStore creates an empty in-memory object store.
//
// Parameters:
//   - ctx: Context for cancellation (checked before initialization)
//   - cfg: Store configuration
//
// Returns:
//   - *MemoryObjectStore: Initialized store
//   - error: Only returns error if context is cancelled
func NewMemoryObjectStore(ctx context.Context, cfg Config) (*MemoryObjectStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &MemoryObjectStore{
		objects: make(map[objectstore.ObjectID]*object),
		maxSize: cfg.MaxSize,
	}, nil
}

// ============================================================================
// ObjectStore Interface Implementation
// ============================================================================

// ReadObject returns a copy of up to length bytes starting at offset.
func (s *MemoryObjectStore) ReadObject(ctx context.Context, id objectstore.ObjectID, offset, length uint64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, exists := s.objects[id]
	if !exists {
		return nil, fmt.Errorf("object %s: %w", id, objectstore.ErrObjectNotFound)
	}

	size := uint64(len(obj.data))
	if offset >= size {
		return []byte{}, nil
	}

	end := size
	if length < size-offset {
		end = offset + length
	}

	out := make([]byte, end-offset)
	copy(out, obj.data[offset:end])
	return out, nil
}

// WriteObject writes data at offset, zero-filling any gap.
func (s *MemoryObjectStore) WriteObject(ctx context.Context, id objectstore.ObjectID, offset uint64, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := objectstore.ValidateID(id); err != nil {
		return err
	}
	if err := objectstore.CheckRange(offset, uint64(len(data))); err != nil {
		return fmt.Errorf("object %s: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	obj, exists := s.objects[id]
	if !exists {
		obj = &object{}
	}

	end := offset + uint64(len(data))
	if end > uint64(len(obj.data)) {
		if err := s.reserve(end - uint64(len(obj.data))); err != nil {
			return fmt.Errorf("object %s: %w", id, err)
		}
		grown := make([]byte, end)
		copy(grown, obj.data)
		obj.data = grown
	}

	copy(obj.data[offset:], data)
	obj.modTime = time.Now()
	s.objects[id] = obj
	return nil
}

// TruncateObject shrinks or zero-extends an existing object.
func (s *MemoryObjectStore) TruncateObject(ctx context.Context, id objectstore.ObjectID, size uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	obj, exists := s.objects[id]
	if !exists {
		return fmt.Errorf("truncate failed for %s: %w", id, objectstore.ErrObjectNotFound)
	}

	current := uint64(len(obj.data))
	switch {
	case size < current:
		s.used -= current - size
		obj.data = obj.data[:size:size]
	case size > current:
		if err := s.reserve(size - current); err != nil {
			return fmt.Errorf("object %s: %w", id, err)
		}
		grown := make([]byte, size)
		copy(grown, obj.data)
		obj.data = grown
	default:
		return nil
	}

	obj.modTime = time.Now()
	return nil
}

// RemoveObject deletes an object. Missing objects are not an error.
func (s *MemoryObjectStore) RemoveObject(ctx context.Context, id objectstore.ObjectID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(id)
	return nil
}

// StatObject returns the object's size and modification time.
func (s *MemoryObjectStore) StatObject(ctx context.Context, id objectstore.ObjectID) (*objectstore.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, exists := s.objects[id]
	if !exists {
		return nil, fmt.Errorf("object %s: %w", id, objectstore.ErrObjectNotFound)
	}

	return &objectstore.ObjectInfo{
		ID:      id,
		Size:    uint64(len(obj.data)),
		ModTime: obj.modTime,
	}, nil
}

// GetStorageStats reports usage against the configured limit.
func (s *MemoryObjectStore) GetStorageStats(ctx context.Context) (*objectstore.StorageStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	count := uint64(len(s.objects))
	average := uint64(0)
	if count > 0 {
		average = s.used / count
	}

	total := ^uint64(0)
	available := ^uint64(0)
	if s.maxSize > 0 {
		total = s.maxSize
		available = s.maxSize - s.used
	}

	return &objectstore.StorageStats{
		TotalSize:     total,
		UsedSize:      s.used,
		AvailableSize: available,
		ObjectCount:   count,
		AverageSize:   average,
	}, nil
}

// ============================================================================
// GarbageCollectableStore Interface Implementation
// ============================================================================

// ListObjects returns all object IDs in lexical order.
func (s *MemoryObjectStore) ListObjects(ctx context.Context) ([]objectstore.ObjectID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]objectstore.ObjectID, 0, len(s.objects))
	for id := range s.objects {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// RemoveBatch removes all ids under a single lock acquisition.
func (s *MemoryObjectStore) RemoveBatch(ctx context.Context, ids []objectstore.ObjectID) (map[objectstore.ObjectID]error, error) {
	failures := make(map[objectstore.ObjectID]error)

	if err := ctx.Err(); err != nil {
		for _, id := range ids {
			failures[id] = err
		}
		return failures, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		s.removeLocked(id)
	}
	return failures, nil
}

// ============================================================================
// Helpers
// ============================================================================

// reserve accounts for n more bytes. Caller holds s.mu.
func (s *MemoryObjectStore) reserve(n uint64) error {
	if s.maxSize > 0 && s.used+n > s.maxSize {
		return objectstore.ErrStorageFull
	}
	s.used += n
	return nil
}

// removeLocked drops an object. Caller holds s.mu.
func (s *MemoryObjectStore) removeLocked(id objectstore.ObjectID) {
	obj, exists := s.objects[id]
	if !exists {
		return
	}
	s.used -= uint64(len(obj.data))
	delete(s.objects, id)
}
