package fs

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/marmos91/stripefs/pkg/objectstore"
)

const (
	defaultFDCacheSize = 512
	lockStripes        = 64
)

// FSObjectStore implements ObjectStore on the local filesystem.
//
// Each object is one regular file under the base directory, named by the
// hex encoding of its ID so that arbitrary IDs are filesystem-safe. Sparse
// writes rely on the host filesystem's hole support.
//
// Thread Safety:
// Operations on the same object are serialized by a striped lock table.
// Open file descriptors are kept in an LRU cache; call Close to release
// them.
type FSObjectStore struct {
	basePath string
	fdCache  *fdCache
	locks    [lockStripes]sync.Mutex
}

// Config configures an FSObjectStore.
type Config struct {
	// Path is the directory holding the object files. Created if missing.
	Path string `mapstructure:"path" validate:"required"`

	// FDCacheSize bounds the number of idle open files. 0 = default (512).
	FDCacheSize int `mapstructure:"fd_cache_size"`
}

// NewFSObjectStore creates a filesystem object store rooted at cfg.Path.
//
// The base directory is created with permissions 0755 if needed.
//
// Parameters:
//   - ctx: Context for cancellation and timeouts
//   - cfg: Store configuration
//
// Returns:
//   - *FSObjectStore: Initialized store
//   - error: Returns error if directory creation fails or context is cancelled
func NewFSObjectStore(ctx context.Context, cfg Config) (*FSObjectStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if cfg.Path == "" {
		return nil, fmt.Errorf("filesystem object store: path is required")
	}

	if err := os.MkdirAll(cfg.Path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	size := cfg.FDCacheSize
	if size <= 0 {
		size = defaultFDCacheSize
	}

	return &FSObjectStore{
		basePath: cfg.Path,
		fdCache:  newFDCache(size),
	}, nil
}

// objectPath returns the file backing id.
func (s *FSObjectStore) objectPath(id objectstore.ObjectID) string {
	return filepath.Join(s.basePath, hex.EncodeToString([]byte(id)))
}

func (s *FSObjectStore) lockFor(id objectstore.ObjectID) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &s.locks[h.Sum32()%lockStripes]
}

// ============================================================================
// ObjectStore Interface Implementation
// ============================================================================

// ReadObject reads up to length bytes starting at offset.
func (s *FSObjectStore) ReadObject(ctx context.Context, id objectstore.ObjectID, offset, length uint64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := objectstore.CheckRange(offset, length); err != nil {
		return nil, fmt.Errorf("object %s: %w", id, err)
	}

	mu := s.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	entry, err := s.fdCache.acquire(id, s.objectPath(id), false)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("object %s: %w", id, objectstore.ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to open object: %w", err)
	}
	defer s.fdCache.release(entry)

	info, err := entry.file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat object: %w", err)
	}

	size := uint64(info.Size())
	if offset >= size {
		return []byte{}, nil
	}
	if length > size-offset {
		length = size - offset
	}

	buf := make([]byte, length)
	n, err := entry.file.ReadAt(buf, int64(offset))
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	return buf[:n], nil
}

// WriteObject writes data at offset, creating the object file if needed.
func (s *FSObjectStore) WriteObject(ctx context.Context, id objectstore.ObjectID, offset uint64, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := objectstore.ValidateID(id); err != nil {
		return err
	}
	if err := objectstore.CheckRange(offset, uint64(len(data))); err != nil {
		return fmt.Errorf("object %s: %w", id, err)
	}

	mu := s.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	entry, err := s.fdCache.acquire(id, s.objectPath(id), true)
	if err != nil {
		return fmt.Errorf("failed to open object for writing: %w", err)
	}
	defer s.fdCache.release(entry)

	if len(data) == 0 {
		// A zero-length write still extends the object to offset.
		info, err := entry.file.Stat()
		if err != nil {
			return fmt.Errorf("failed to stat object: %w", err)
		}
		if uint64(info.Size()) < offset {
			if err := entry.file.Truncate(int64(offset)); err != nil {
				return mapWriteError(id, err)
			}
		}
		return nil
	}

	if _, err := entry.file.WriteAt(data, int64(offset)); err != nil {
		return mapWriteError(id, err)
	}
	return nil
}

// TruncateObject resizes an existing object file.
func (s *FSObjectStore) TruncateObject(ctx context.Context, id objectstore.ObjectID, size uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := objectstore.CheckRange(size, 0); err != nil {
		return fmt.Errorf("object %s: %w", id, err)
	}

	mu := s.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	entry, err := s.fdCache.acquire(id, s.objectPath(id), false)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("truncate failed for %s: %w", id, objectstore.ErrObjectNotFound)
		}
		return fmt.Errorf("failed to open object for truncate: %w", err)
	}
	defer s.fdCache.release(entry)

	if err := entry.file.Truncate(int64(size)); err != nil {
		return mapWriteError(id, err)
	}
	return nil
}

// RemoveObject deletes the object file. Missing files are not an error.
func (s *FSObjectStore) RemoveObject(ctx context.Context, id objectstore.ObjectID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	mu := s.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	s.fdCache.remove(id)

	if err := os.Remove(s.objectPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// StatObject stats the object file.
func (s *FSObjectStore) StatObject(ctx context.Context, id objectstore.ObjectID) (*objectstore.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(s.objectPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("object %s: %w", id, objectstore.ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to stat object: %w", err)
	}

	return &objectstore.ObjectInfo{
		ID:      id,
		Size:    uint64(info.Size()),
		ModTime: info.ModTime(),
	}, nil
}

// GetStorageStats scans the base directory to compute usage.
//
// Capacity is reported as unbounded; the host filesystem enforces the
// real limit and surfaces it as ErrStorageFull on write.
func (s *FSObjectStore) GetStorageStats(ctx context.Context) (*objectstore.StorageStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read object directory: %w", err)
	}

	var used, count uint64
	for i, entry := range entries {
		if i%100 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		used += uint64(info.Size())
		count++
	}

	average := uint64(0)
	if count > 0 {
		average = used / count
	}

	return &objectstore.StorageStats{
		TotalSize:     ^uint64(0),
		UsedSize:      used,
		AvailableSize: ^uint64(0),
		ObjectCount:   count,
		AverageSize:   average,
	}, nil
}

// Close closes all cached file descriptors.
func (s *FSObjectStore) Close() error {
	return s.fdCache.close()
}

// ============================================================================
// GarbageCollectableStore Interface Implementation
// ============================================================================

// ListObjects decodes every object file name in the base directory.
// Files whose names are not valid hex are ignored.
func (s *FSObjectStore) ListObjects(ctx context.Context) ([]objectstore.ObjectID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read object directory: %w", err)
	}

	ids := make([]objectstore.ObjectID, 0, len(entries))
	for i, entry := range entries {
		if i%100 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if !entry.Type().IsRegular() {
			continue
		}
		raw, err := hex.DecodeString(entry.Name())
		if err != nil || len(raw) == 0 {
			continue
		}
		ids = append(ids, objectstore.ObjectID(raw))
	}
	return ids, nil
}

// RemoveBatch removes objects one by one.
func (s *FSObjectStore) RemoveBatch(ctx context.Context, ids []objectstore.ObjectID) (map[objectstore.ObjectID]error, error) {
	failures := make(map[objectstore.ObjectID]error)

	for i, id := range ids {
		if i%10 == 0 {
			if err := ctx.Err(); err != nil {
				for j := i; j < len(ids); j++ {
					failures[ids[j]] = err
				}
				return failures, err
			}
		}

		if err := s.RemoveObject(ctx, id); err != nil {
			failures[id] = err
		}
	}

	return failures, nil
}

func mapWriteError(id objectstore.ObjectID, err error) error {
	if errors.Is(err, syscall.ENOSPC) {
		return fmt.Errorf("object %s: %w", id, objectstore.ErrStorageFull)
	}
	return fmt.Errorf("failed to write object %s: %w", id, err)
}
