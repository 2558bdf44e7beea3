package mount

import (
	"time"

	"github.com/marmos91/stripefs/pkg/metadata"
)

// State is the lifecycle state of a Mount.
type State int

const (
	// StateUnmounted is the initial state; only lifecycle and
	// configuration calls succeed.
	StateUnmounted State = iota

	// StateMounted serves filesystem operations.
	StateMounted

	// StateShutDown is terminal.
	StateShutDown
)

func (s State) String() string {
	switch s {
	case StateUnmounted:
		return "unmounted"
	case StateMounted:
		return "mounted"
	case StateShutDown:
		return "shut down"
	default:
		return "unknown"
	}
}

// File type bits carried in Stat.Mode.
const (
	ModeTypeMask uint32 = 0o170000
	ModeDir      uint32 = 0o040000
	ModeRegular  uint32 = 0o100000
)

// Setattr mask bits select the Stat fields applied by Setattr.
const (
	SetattrMode  = 1 << 0
	SetattrUID   = 1 << 1
	SetattrGID   = 1 << 2
	SetattrMtime = 1 << 3
	SetattrAtime = 1 << 4
	SetattrSize  = 1 << 5
)

// Whence values for Lseek.
const (
	SeekSet = 0
	SeekCur = 1
	SeekEnd = 2
)

// statBlockSize is the unit of StatVFS block counts.
const statBlockSize = 4096

// Stat holds the attributes of a file or directory.
type Stat struct {
	Ino     uint64
	Mode    uint32 // type bits | permission bits
	Nlink   uint32
	UID     uint32
	GID     uint32
	Size    uint64
	Blksize uint32 // stripe unit for files
	Blocks  uint64 // 512-byte blocks
	Atime   time.Time
	Mtime   time.Time
	Ctime   time.Time
}

// IsDir reports whether st describes a directory.
func (st *Stat) IsDir() bool {
	return st.Mode&ModeTypeMask == ModeDir
}

// StatVFS holds filesystem statistics.
type StatVFS struct {
	Bsize   uint64
	Frsize  uint64
	Blocks  uint64
	Bfree   uint64
	Bavail  uint64
	Files   uint64
	Ffree   uint64
	Favail  uint64
	Fsid    uint64
	Flag    uint64
	Namemax uint64
}

func statFromInode(inode *metadata.Inode) *Stat {
	st := &Stat{
		Ino:     inode.Ino,
		Mode:    inode.Mode & 0o7777,
		Nlink:   inode.Nlink,
		UID:     inode.UID,
		GID:     inode.GID,
		Size:    inode.Size,
		Blksize: statBlockSize,
		Blocks:  (inode.Size + 511) / 512,
		Atime:   inode.Atime,
		Mtime:   inode.Mtime,
		Ctime:   inode.Ctime,
	}
	if inode.IsDir() {
		st.Mode |= ModeDir
	} else {
		st.Mode |= ModeRegular
		if inode.Layout.StripeUnit != 0 {
			st.Blksize = inode.Layout.StripeUnit
		}
	}
	return st
}

// setAttrsFromStat selects the fields of st named by mask.
func setAttrsFromStat(st *Stat, mask int) metadata.SetAttrs {
	var attrs metadata.SetAttrs
	if mask&SetattrMode != 0 {
		mode := st.Mode & 0o7777
		attrs.Mode = &mode
	}
	if mask&SetattrUID != 0 {
		uid := st.UID
		attrs.UID = &uid
	}
	if mask&SetattrGID != 0 {
		gid := st.GID
		attrs.GID = &gid
	}
	if mask&SetattrMtime != 0 {
		mtime := st.Mtime
		attrs.Mtime = &mtime
	}
	if mask&SetattrAtime != 0 {
		atime := st.Atime
		attrs.Atime = &atime
	}
	if mask&SetattrSize != 0 {
		size := st.Size
		attrs.Size = &size
	}
	return attrs
}
