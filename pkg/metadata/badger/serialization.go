package badger

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	xdr "github.com/rasky/go-xdr/xdr2"

	"github.com/marmos91/stripefs/pkg/layout"
	"github.com/marmos91/stripefs/pkg/metadata"
)

// inodeRecord is the on-disk form of an inode. XDR needs fixed-size
// fields, so times are split into seconds and nanoseconds. The parent
// pointer lives under its own "p:" key.
type inodeRecord struct {
	Ino   uint64
	Type  uint32
	Mode  uint32
	UID   uint32
	GID   uint32
	Nlink uint32
	Size  uint64

	AtimeSec  int64
	AtimeNsec uint32
	MtimeSec  int64
	MtimeNsec uint32
	CtimeSec  int64
	CtimeNsec uint32

	StripeUnit  uint32
	StripeCount uint32
	ObjectSize  uint32
	Pool        string
}

// direntRecord is the value of a "d:" key.
type direntRecord struct {
	Ino  uint64
	Type uint32
}

func encodeInode(inode *metadata.Inode) ([]byte, error) {
	rec := inodeRecord{
		Ino:         inode.Ino,
		Type:        uint32(inode.Type),
		Mode:        inode.Mode,
		UID:         inode.UID,
		GID:         inode.GID,
		Nlink:       inode.Nlink,
		Size:        inode.Size,
		AtimeSec:    inode.Atime.Unix(),
		AtimeNsec:   uint32(inode.Atime.Nanosecond()),
		MtimeSec:    inode.Mtime.Unix(),
		MtimeNsec:   uint32(inode.Mtime.Nanosecond()),
		CtimeSec:    inode.Ctime.Unix(),
		CtimeNsec:   uint32(inode.Ctime.Nanosecond()),
		StripeUnit:  inode.Layout.StripeUnit,
		StripeCount: inode.Layout.StripeCount,
		ObjectSize:  inode.Layout.ObjectSize,
		Pool:        inode.Layout.Pool,
	}

	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, &rec); err != nil {
		return nil, fmt.Errorf("failed to encode inode %d: %w", inode.Ino, err)
	}
	return buf.Bytes(), nil
}

func decodeInode(data []byte, parent uint64) (*metadata.Inode, error) {
	var rec inodeRecord
	if _, err := xdr.Unmarshal(bytes.NewReader(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode inode: %w", err)
	}

	return &metadata.Inode{
		Ino:    rec.Ino,
		Parent: parent,
		Type:   metadata.FileType(rec.Type),
		Mode:   rec.Mode,
		UID:    rec.UID,
		GID:    rec.GID,
		Nlink:  rec.Nlink,
		Size:   rec.Size,
		Atime:  time.Unix(rec.AtimeSec, int64(rec.AtimeNsec)),
		Mtime:  time.Unix(rec.MtimeSec, int64(rec.MtimeNsec)),
		Ctime:  time.Unix(rec.CtimeSec, int64(rec.CtimeNsec)),
		Layout: layout.FileLayout{
			StripeUnit:  rec.StripeUnit,
			StripeCount: rec.StripeCount,
			ObjectSize:  rec.ObjectSize,
			Pool:        rec.Pool,
		},
	}, nil
}

func encodeDirent(ino uint64, typ metadata.FileType) ([]byte, error) {
	var buf bytes.Buffer
	rec := direntRecord{Ino: ino, Type: uint32(typ)}
	if _, err := xdr.Marshal(&buf, &rec); err != nil {
		return nil, fmt.Errorf("failed to encode dirent: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeDirent(data []byte) (direntRecord, error) {
	var rec direntRecord
	if _, err := xdr.Unmarshal(bytes.NewReader(data), &rec); err != nil {
		return rec, fmt.Errorf("failed to decode dirent: %w", err)
	}
	return rec, nil
}

func encodeParent(parent uint64) []byte {
	return inoBytes(parent)
}

func decodeParent(data []byte) (uint64, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("invalid parent pointer length %d", len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}
