package badger

import (
	"encoding/binary"
)

// Database Key Namespace
// ======================
//
// Inode numbers are encoded big-endian so that prefix scans walk them in
// numeric order.
//
// Data Type        Prefix   Key Format                    Value
// ===========================================================================
// Inodes           "i:"     i:<ino>                       inodeRecord (XDR)
// Directory entry  "d:"     d:<parentIno><name>           direntRecord (XDR)
// Parent pointer   "p:"     p:<ino>                       parent ino (8 bytes)
// Inode sequence   "seq:"   seq:ino                       badger.Sequence
//
// The root inode (1) is written when an empty database is opened.

const (
	prefixInode  = "i:"
	prefixDirent = "d:"
	prefixParent = "p:"
)

var keyInoSequence = []byte("seq:ino")

func inoBytes(ino uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], ino)
	return b[:]
}

func keyInode(ino uint64) []byte {
	return append([]byte(prefixInode), inoBytes(ino)...)
}

func keyParent(ino uint64) []byte {
	return append([]byte(prefixParent), inoBytes(ino)...)
}

func keyDirentPrefix(parent uint64) []byte {
	return append([]byte(prefixDirent), inoBytes(parent)...)
}

func keyDirent(parent uint64, name string) []byte {
	return append(keyDirentPrefix(parent), name...)
}

// inoFromInodeKey extracts the inode number from an "i:" key.
func inoFromInodeKey(key []byte) (uint64, bool) {
	if len(key) != len(prefixInode)+8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(key[len(prefixInode):]), true
}

// nameFromDirentKey extracts the entry name from a "d:" key.
func nameFromDirentKey(key []byte) string {
	return string(key[len(prefixDirent)+8:])
}
