package metadata

import (
	"strings"
	"time"

	"github.com/marmos91/stripefs/pkg/layout"
)

// FileType is the type of an inode.
type FileType uint32

const (
	FileTypeRegular   FileType = 1
	FileTypeDirectory FileType = 2
)

func (t FileType) String() string {
	switch t {
	case FileTypeRegular:
		return "file"
	case FileTypeDirectory:
		return "directory"
	default:
		return "unknown"
	}
}

const (
	// RootIno is the inode number of the filesystem root.
	RootIno uint64 = 1

	// FirstIno is the first inode number handed out to created entries.
	// Inode numbers below it are reserved.
	FirstIno uint64 = 1 << 40

	// MaxNameLen is the longest entry name accepted.
	MaxNameLen = 255
)

// Inode is the metadata of a file or directory.
type Inode struct {
	Ino    uint64
	Parent uint64
	Type   FileType

	// Mode holds the permission bits only (no type bits).
	Mode  uint32
	UID   uint32
	GID   uint32
	Nlink uint32

	// Size is the logical file size. Always 0 for directories.
	Size uint64

	Atime time.Time
	Mtime time.Time
	Ctime time.Time

	// Layout is how file data is striped. Empty for directories.
	Layout layout.FileLayout
}

// IsDir reports whether the inode is a directory.
func (i *Inode) IsDir() bool {
	return i.Type == FileTypeDirectory
}

// Clone returns a copy of the inode.
func (i *Inode) Clone() *Inode {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}

// DirEntry is one entry of a directory listing.
type DirEntry struct {
	Name string
	Ino  uint64
	Type FileType
}

// CreateAttrs are the attributes of a new inode.
type CreateAttrs struct {
	Type   FileType
	Mode   uint32
	UID    uint32
	GID    uint32
	Layout layout.FileLayout
}

// SetAttrs selects the attributes to change. Nil fields are left alone.
type SetAttrs struct {
	Mode  *uint32
	UID   *uint32
	GID   *uint32
	Size  *uint64
	Atime *time.Time
	Mtime *time.Time
}

// Statistics summarizes the namespace.
type Statistics struct {
	Files       uint64
	Directories uint64
	TotalSize   uint64

	// MaxFiles is the inode limit, 0 when unlimited.
	MaxFiles uint64
}

// ValidateName checks that name can be used as a directory entry.
func ValidateName(name string) error {
	switch {
	case name == "":
		return NewError(ErrInvalidArgument, "empty name", name)
	case name == "." || name == "..":
		return NewError(ErrInvalidArgument, "reserved name", name)
	case strings.ContainsRune(name, '/'):
		return NewError(ErrInvalidArgument, "name contains '/'", name)
	case len(name) > MaxNameLen:
		return NewError(ErrInvalidArgument, "name too long", name)
	}
	return nil
}

// ApplySetAttrs applies attrs to inode and bumps ctime. Size changes on a
// directory fail with ErrIsDirectory.
func ApplySetAttrs(inode *Inode, attrs SetAttrs, now time.Time) error {
	if attrs.Size != nil && inode.IsDir() {
		return NewError(ErrIsDirectory, "cannot set size of a directory", "")
	}
	if attrs.Mode != nil {
		inode.Mode = *attrs.Mode & 0o7777
	}
	if attrs.UID != nil {
		inode.UID = *attrs.UID
	}
	if attrs.GID != nil {
		inode.GID = *attrs.GID
	}
	if attrs.Size != nil {
		if *attrs.Size != inode.Size {
			inode.Mtime = now
		}
		inode.Size = *attrs.Size
	}
	if attrs.Atime != nil {
		inode.Atime = *attrs.Atime
	}
	if attrs.Mtime != nil {
		inode.Mtime = *attrs.Mtime
	}
	inode.Ctime = now
	return nil
}

// NewRootInode returns the inode of a fresh root directory.
func NewRootInode(now time.Time) *Inode {
	return &Inode{
		Ino:    RootIno,
		Parent: RootIno,
		Type:   FileTypeDirectory,
		Mode:   0o755,
		Nlink:  2,
		Atime:  now,
		Mtime:  now,
		Ctime:  now,
	}
}

// NewInode returns the inode for a freshly created entry.
func NewInode(ino, parent uint64, attrs CreateAttrs, now time.Time) *Inode {
	inode := &Inode{
		Ino:    ino,
		Parent: parent,
		Type:   attrs.Type,
		Mode:   attrs.Mode & 0o7777,
		UID:    attrs.UID,
		GID:    attrs.GID,
		Nlink:  1,
		Atime:  now,
		Mtime:  now,
		Ctime:  now,
	}
	if attrs.Type == FileTypeDirectory {
		inode.Nlink = 2
	} else {
		inode.Layout = attrs.Layout
	}
	return inode
}

// ValidateCreate checks the arguments shared by every Create implementation.
func ValidateCreate(name string, attrs CreateAttrs) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	switch attrs.Type {
	case FileTypeRegular:
		if err := attrs.Layout.Validate(); err != nil {
			return NewError(ErrInvalidArgument, err.Error(), name)
		}
	case FileTypeDirectory:
	default:
		return NewError(ErrInvalidArgument, "unsupported file type", name)
	}
	return nil
}
