// Package memory implements an in-memory metadata.Store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/marmos91/stripefs/pkg/metadata"
)

// Config configures a MemoryMetadataStore.
type Config struct {
	// MaxFiles limits the number of inodes, 0 for unlimited.
	MaxFiles uint64 `mapstructure:"max_files"`
}

// MemoryMetadataStore keeps the whole namespace in maps guarded by a
// single RWMutex. Contents are lost when the process exits.
type MemoryMetadataStore struct {
	mu       sync.RWMutex
	inodes   map[uint64]*metadata.Inode
	children map[uint64]map[string]uint64
	nextIno  uint64
	maxFiles uint64
}

// NewMemoryMetadataStore creates a store holding only the root directory.
func NewMemoryMetadataStore(ctx context.Context, cfg Config) (*MemoryMetadataStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	root := metadata.NewRootInode(time.Now())
	return &MemoryMetadataStore{
		inodes:   map[uint64]*metadata.Inode{root.Ino: root},
		children: map[uint64]map[string]uint64{root.Ino: {}},
		nextIno:  metadata.FirstIno,
		maxFiles: cfg.MaxFiles,
	}, nil
}

// NewMemoryMetadataStoreWithDefaults creates an unlimited store.
func NewMemoryMetadataStoreWithDefaults() *MemoryMetadataStore {
	s, _ := NewMemoryMetadataStore(context.Background(), Config{})
	return s
}

// ============================================================================
// Lookups
// ============================================================================

func (s *MemoryMetadataStore) Root(ctx context.Context) (*metadata.Inode, error) {
	return s.GetInode(ctx, metadata.RootIno)
}

func (s *MemoryMetadataStore) GetInode(ctx context.Context, ino uint64) (*metadata.Inode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	inode, ok := s.inodes[ino]
	if !ok {
		return nil, metadata.NewNotFoundError("")
	}
	return inode.Clone(), nil
}

func (s *MemoryMetadataStore) Lookup(ctx context.Context, parent uint64, name string) (*metadata.Inode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := s.dirLocked(parent)
	if err != nil {
		return nil, err
	}
	ino, ok := entries[name]
	if !ok {
		return nil, metadata.NewNotFoundError(name)
	}
	inode, ok := s.inodes[ino]
	if !ok {
		return nil, metadata.NewError(metadata.ErrStaleHandle, "dangling entry", name)
	}
	return inode.Clone(), nil
}

func (s *MemoryMetadataStore) ReadDir(ctx context.Context, ino uint64) ([]metadata.DirEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := s.dirLocked(ino)
	if err != nil {
		return nil, err
	}

	result := make([]metadata.DirEntry, 0, len(entries))
	for name, child := range entries {
		var typ metadata.FileType
		if inode, ok := s.inodes[child]; ok {
			typ = inode.Type
		}
		result = append(result, metadata.DirEntry{Name: name, Ino: child, Type: typ})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// ============================================================================
// Namespace mutation
// ============================================================================

func (s *MemoryMetadataStore) Create(ctx context.Context, parent uint64, name string, attrs metadata.CreateAttrs) (*metadata.Inode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := metadata.ValidateCreate(name, attrs); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.dirLocked(parent)
	if err != nil {
		return nil, err
	}
	if _, exists := entries[name]; exists {
		return nil, metadata.NewError(metadata.ErrAlreadyExists, "file exists", name)
	}
	if s.maxFiles > 0 && uint64(len(s.inodes)) >= s.maxFiles {
		return nil, metadata.NewError(metadata.ErrNoSpace, "inode limit reached", name)
	}

	now := time.Now()
	inode := metadata.NewInode(s.nextIno, parent, attrs, now)
	s.nextIno++

	s.inodes[inode.Ino] = inode
	entries[name] = inode.Ino

	p := s.inodes[parent]
	p.Mtime = now
	p.Ctime = now
	if inode.IsDir() {
		s.children[inode.Ino] = make(map[string]uint64)
		p.Nlink++
	}

	return inode.Clone(), nil
}

func (s *MemoryMetadataStore) Unlink(ctx context.Context, parent uint64, name string) (*metadata.Inode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.dirLocked(parent)
	if err != nil {
		return nil, err
	}
	ino, ok := entries[name]
	if !ok {
		return nil, metadata.NewNotFoundError(name)
	}
	inode := s.inodes[ino]
	if inode.IsDir() {
		return nil, metadata.NewError(metadata.ErrIsDirectory, "is a directory", name)
	}

	now := time.Now()
	delete(entries, name)
	s.touchLocked(parent, now)

	inode.Nlink--
	inode.Ctime = now
	if inode.Nlink == 0 {
		delete(s.inodes, ino)
	}
	return inode.Clone(), nil
}

func (s *MemoryMetadataStore) Rmdir(ctx context.Context, parent uint64, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.dirLocked(parent)
	if err != nil {
		return err
	}
	ino, ok := entries[name]
	if !ok {
		return metadata.NewNotFoundError(name)
	}
	inode := s.inodes[ino]
	if !inode.IsDir() {
		return metadata.NewError(metadata.ErrNotDirectory, "not a directory", name)
	}
	if len(s.children[ino]) > 0 {
		return metadata.NewError(metadata.ErrNotEmpty, "directory not empty", name)
	}

	delete(entries, name)
	delete(s.children, ino)
	delete(s.inodes, ino)

	p := s.touchLocked(parent, time.Now())
	p.Nlink--
	return nil
}

func (s *MemoryMetadataStore) Rename(ctx context.Context, oldParent uint64, oldName string, newParent uint64, newName string) (*metadata.Inode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := metadata.ValidateName(newName); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	srcEntries, err := s.dirLocked(oldParent)
	if err != nil {
		return nil, err
	}
	dstEntries, err := s.dirLocked(newParent)
	if err != nil {
		return nil, err
	}
	srcIno, ok := srcEntries[oldName]
	if !ok {
		return nil, metadata.NewNotFoundError(oldName)
	}
	src := s.inodes[srcIno]

	if oldParent == newParent && oldName == newName {
		return nil, nil
	}

	if src.IsDir() {
		inside, err := metadata.IsAncestor(srcIno, newParent, s.getLocked)
		if err != nil {
			return nil, err
		}
		if inside {
			return nil, metadata.NewError(metadata.ErrInvalidArgument, "cannot move a directory into itself", newName)
		}
	}

	now := time.Now()
	var dropped *metadata.Inode

	if dstIno, exists := dstEntries[newName]; exists {
		if dstIno == srcIno {
			return nil, nil
		}
		dst := s.inodes[dstIno]
		if err := metadata.CheckRenameTarget(src, dst, len(s.children[dstIno]) > 0, newName); err != nil {
			return nil, err
		}

		delete(dstEntries, newName)
		if dst.IsDir() {
			delete(s.children, dstIno)
			delete(s.inodes, dstIno)
			s.inodes[newParent].Nlink--
		} else {
			dst.Nlink--
			dst.Ctime = now
			if dst.Nlink == 0 {
				delete(s.inodes, dstIno)
				dropped = dst.Clone()
			}
		}
	}

	delete(srcEntries, oldName)
	dstEntries[newName] = srcIno
	src.Parent = newParent
	src.Ctime = now

	s.touchLocked(oldParent, now)
	np := s.touchLocked(newParent, now)
	if src.IsDir() && oldParent != newParent {
		s.inodes[oldParent].Nlink--
		np.Nlink++
	}

	return dropped, nil
}

// ============================================================================
// Attributes
// ============================================================================

func (s *MemoryMetadataStore) SetAttr(ctx context.Context, ino uint64, attrs metadata.SetAttrs) (*metadata.Inode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inode, ok := s.inodes[ino]
	if !ok {
		return nil, metadata.NewNotFoundError("")
	}

	updated := inode.Clone()
	if err := metadata.ApplySetAttrs(updated, attrs, time.Now()); err != nil {
		return nil, err
	}
	s.inodes[ino] = updated
	return updated.Clone(), nil
}

func (s *MemoryMetadataStore) ExtendSize(ctx context.Context, ino uint64, end uint64, mtime time.Time) (*metadata.Inode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inode, ok := s.inodes[ino]
	if !ok {
		return nil, metadata.NewNotFoundError("")
	}
	if inode.IsDir() {
		return nil, metadata.NewError(metadata.ErrIsDirectory, "cannot extend a directory", "")
	}
	if end > inode.Size {
		inode.Size = end
	}
	inode.Mtime = mtime
	inode.Ctime = mtime
	return inode.Clone(), nil
}

// ============================================================================
// Maintenance
// ============================================================================

func (s *MemoryMetadataStore) ListInodes(ctx context.Context) ([]uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	inos := make([]uint64, 0, len(s.inodes))
	for ino := range s.inodes {
		inos = append(inos, ino)
	}
	sort.Slice(inos, func(i, j int) bool { return inos[i] < inos[j] })
	return inos, nil
}

func (s *MemoryMetadataStore) GetStatistics(ctx context.Context) (*metadata.Statistics, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &metadata.Statistics{MaxFiles: s.maxFiles}
	for _, inode := range s.inodes {
		if inode.IsDir() {
			stats.Directories++
			continue
		}
		stats.Files++
		stats.TotalSize += inode.Size
	}
	return stats, nil
}

func (s *MemoryMetadataStore) Healthcheck(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryMetadataStore) Close() error {
	return nil
}

// ============================================================================
// Helpers (callers hold s.mu)
// ============================================================================

func (s *MemoryMetadataStore) dirLocked(ino uint64) (map[string]uint64, error) {
	inode, ok := s.inodes[ino]
	if !ok {
		return nil, metadata.NewNotFoundError("")
	}
	if !inode.IsDir() {
		return nil, metadata.NewError(metadata.ErrNotDirectory, "not a directory", "")
	}
	return s.children[ino], nil
}

func (s *MemoryMetadataStore) getLocked(ino uint64) (*metadata.Inode, error) {
	inode, ok := s.inodes[ino]
	if !ok {
		return nil, metadata.NewNotFoundError("")
	}
	return inode, nil
}

func (s *MemoryMetadataStore) touchLocked(ino uint64, now time.Time) *metadata.Inode {
	inode := s.inodes[ino]
	inode.Mtime = now
	inode.Ctime = now
	return inode
}
