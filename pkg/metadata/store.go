package metadata

import (
	"context"
	"time"
)

// Store is the namespace of a filesystem: inodes and the directory entries
// linking them.
//
// Every method honors context cancellation by checking ctx.Err() before
// doing any work. Domain failures are returned as *StoreError; callers
// inspect the code with CodeOf or IsCode.
//
// Thread safety: implementations must be safe for concurrent use.
type Store interface {
	// ========================================================================
	// Lookups
	// ========================================================================

	// Root returns the root directory inode.
	Root(ctx context.Context) (*Inode, error)

	// GetInode returns the inode numbered ino.
	//
	// Returns:
	//   - ErrNotFound if ino does not exist
	GetInode(ctx context.Context, ino uint64) (*Inode, error)

	// Lookup resolves name inside directory parent.
	//
	// Returns:
	//   - ErrNotFound if parent or the entry does not exist
	//   - ErrNotDirectory if parent is not a directory
	Lookup(ctx context.Context, parent uint64, name string) (*Inode, error)

	// ReadDir lists directory ino, sorted by name, without "." or "..".
	//
	// Returns:
	//   - ErrNotDirectory if ino is not a directory
	ReadDir(ctx context.Context, ino uint64) ([]DirEntry, error)

	// ========================================================================
	// Namespace mutation
	// ========================================================================

	// Create adds a file or directory named name under parent.
	//
	// New directories start with nlink 2 and raise the parent's nlink.
	//
	// Returns:
	//   - ErrAlreadyExists if the name is taken
	//   - ErrNotDirectory if parent is not a directory
	//   - ErrInvalidArgument for bad names, types or layouts
	//   - ErrNoSpace when the inode limit is reached
	Create(ctx context.Context, parent uint64, name string, attrs CreateAttrs) (*Inode, error)

	// Unlink removes the file entry name from parent.
	//
	// The returned inode carries the updated link count; when it is 0 the
	// inode has been deleted and its data should be purged.
	//
	// Returns:
	//   - ErrIsDirectory if the entry is a directory
	Unlink(ctx context.Context, parent uint64, name string) (*Inode, error)

	// Rmdir removes the empty directory name from parent.
	//
	// Returns:
	//   - ErrNotDirectory if the entry is not a directory
	//   - ErrNotEmpty if the directory has entries
	Rmdir(ctx context.Context, parent uint64, name string) error

	// Rename moves oldParent/oldName to newParent/newName.
	//
	// An existing target is replaced when the types agree (file over file,
	// empty directory over directory). A directory cannot be moved into
	// its own subtree. When the replaced inode lost its last link it is
	// returned so the caller can purge its data; otherwise the result is
	// nil.
	Rename(ctx context.Context, oldParent uint64, oldName string, newParent uint64, newName string) (*Inode, error)

	// ========================================================================
	// Attributes
	// ========================================================================

	// SetAttr updates the selected attributes of ino and returns the
	// result. Setting Size on a directory fails with ErrIsDirectory.
	SetAttr(ctx context.Context, ino uint64, attrs SetAttrs) (*Inode, error)

	// ExtendSize sets size = max(size, end) and updates mtime.
	ExtendSize(ctx context.Context, ino uint64, end uint64, mtime time.Time) (*Inode, error)

	// ========================================================================
	// Maintenance
	// ========================================================================

	// ListInodes returns the numbers of all inodes, root included.
	ListInodes(ctx context.Context) ([]uint64, error)

	// GetStatistics summarizes the namespace.
	GetStatistics(ctx context.Context) (*Statistics, error)

	// Healthcheck verifies the backing store is usable.
	Healthcheck(ctx context.Context) error

	// Close releases the store's resources.
	Close() error
}

// IsAncestor reports whether ancestor lies on the parent chain of ino
// (ino itself included). get must return the inode for a number.
func IsAncestor(ancestor, ino uint64, get func(uint64) (*Inode, error)) (bool, error) {
	cur := ino
	for {
		if cur == ancestor {
			return true, nil
		}
		if cur == RootIno {
			return false, nil
		}
		inode, err := get(cur)
		if err != nil {
			return false, err
		}
		cur = inode.Parent
	}
}

// CheckRenameTarget validates replacing dst with src.
func CheckRenameTarget(src, dst *Inode, dstHasChildren bool, name string) error {
	switch {
	case src.IsDir() && !dst.IsDir():
		return NewError(ErrNotDirectory, "cannot replace a file with a directory", name)
	case !src.IsDir() && dst.IsDir():
		return NewError(ErrIsDirectory, "cannot replace a directory with a file", name)
	case dst.IsDir() && dstHasChildren:
		return NewError(ErrNotEmpty, "directory not empty", name)
	}
	return nil
}
