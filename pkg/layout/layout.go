// Package layout maps byte ranges of a file onto the objects that store it.
//
// A file is cut into blocks of StripeUnit bytes. Consecutive blocks are
// dealt round-robin across StripeCount objects (an "object set"); once
// every object in the set holds ObjectSize bytes, striping continues in
// the next object set.
//
//	stripe unit = 1, stripe count = 3, object size = 2 (units):
//
//	          obj0  obj1  obj2   | obj3  obj4  obj5
//	stripe 0   b0    b1    b2    |  b6    b7    b8
//	stripe 1   b3    b4    b5    |  b9    b10   b11
//	           \__ object set 0 _/ \__ object set 1 _/
package layout

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// MinStripeUnit is the alignment every stripe unit must honor.
const MinStripeUnit = 64 * 1024

const (
	DefaultStripeUnit  = 4 * 1024 * 1024
	DefaultStripeCount = 1
	DefaultObjectSize  = 4 * 1024 * 1024
	DefaultPool        = "data"
)

// ErrInvalidLayout is returned by Validate for layouts the striping math
// cannot serve.
var ErrInvalidLayout = errors.New("invalid file layout")

// FileLayout describes how a file is striped across objects.
type FileLayout struct {
	// StripeUnit is the size of one block, in bytes.
	StripeUnit uint32 `mapstructure:"stripe_unit" yaml:"stripe_unit"`

	// StripeCount is the number of objects a stripe spans.
	StripeCount uint32 `mapstructure:"stripe_count" yaml:"stripe_count"`

	// ObjectSize is the maximum number of bytes stored in one object.
	ObjectSize uint32 `mapstructure:"object_size" yaml:"object_size"`

	// Pool names the object pool holding the data.
	Pool string `mapstructure:"pool" yaml:"pool"`
}

// DefaultLayout returns the layout given to files created without one.
func DefaultLayout() FileLayout {
	return FileLayout{
		StripeUnit:  DefaultStripeUnit,
		StripeCount: DefaultStripeCount,
		ObjectSize:  DefaultObjectSize,
		Pool:        DefaultPool,
	}
}

// IsZero reports whether no field of the layout is set.
func (l FileLayout) IsZero() bool {
	return l == FileLayout{}
}

// Validate checks the layout invariants.
func (l FileLayout) Validate() error {
	if l.StripeUnit == 0 {
		return fmt.Errorf("%w: stripe unit must be positive", ErrInvalidLayout)
	}
	if l.StripeUnit%MinStripeUnit != 0 {
		return fmt.Errorf("%w: stripe unit %d is not a multiple of %d",
			ErrInvalidLayout, l.StripeUnit, MinStripeUnit)
	}
	if l.StripeCount == 0 {
		return fmt.Errorf("%w: stripe count must be positive", ErrInvalidLayout)
	}
	if l.ObjectSize == 0 {
		return fmt.Errorf("%w: object size must be positive", ErrInvalidLayout)
	}
	if l.ObjectSize%l.StripeUnit != 0 {
		return fmt.Errorf("%w: object size %d is not a multiple of stripe unit %d",
			ErrInvalidLayout, l.ObjectSize, l.StripeUnit)
	}
	if l.Pool == "" {
		return fmt.Errorf("%w: pool is required", ErrInvalidLayout)
	}
	return nil
}

// StripesPerObject returns how many stripe units fit in one object.
func (l FileLayout) StripesPerObject() uint64 {
	return uint64(l.ObjectSize) / uint64(l.StripeUnit)
}

// Period returns the number of file bytes covered by one object set.
func (l FileLayout) Period() uint64 {
	return uint64(l.StripeCount) * uint64(l.ObjectSize)
}

func (l FileLayout) String() string {
	return fmt.Sprintf("su=%d sc=%d os=%d pool=%s", l.StripeUnit, l.StripeCount, l.ObjectSize, l.Pool)
}

// ObjectName returns the name of object objectno of inode ino.
func ObjectName(ino, objectno uint64) string {
	return fmt.Sprintf("%x.%08x", ino, objectno)
}

// ParseObjectName splits an object name produced by ObjectName.
func ParseObjectName(name string) (ino, objectno uint64, err error) {
	inoPart, objPart, ok := strings.Cut(name, ".")
	if !ok || inoPart == "" || objPart == "" {
		return 0, 0, fmt.Errorf("malformed object name %q", name)
	}
	ino, err = strconv.ParseUint(inoPart, 16, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed object name %q: %w", name, err)
	}
	objectno, err = strconv.ParseUint(objPart, 16, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed object name %q: %w", name, err)
	}
	return ino, objectno, nil
}

// BufferExtent is a (offset, length) range. Depending on context the
// offset is relative to a caller buffer or to the start of a file.
type BufferExtent struct {
	Offset uint64
	Length uint64
}

// ObjectExtent is the contiguous range of one object touched by a file
// range, together with where each piece lands in the caller's buffer.
type ObjectExtent struct {
	Name     string
	ObjectNo uint64

	// Offset and Length delimit the range inside the object.
	Offset uint64
	Length uint64

	// BufferExtents lists, in object order, the buffer ranges that map
	// onto [Offset, Offset+Length).
	BufferExtents []BufferExtent
}

// FileToExtents maps the file range [offset, offset+length) of inode ino
// onto object extents, one per object, sorted by object number.
//
// The layout must satisfy Validate's arithmetic constraints (non-zero
// fields, ObjectSize a multiple of StripeUnit); alignment to
// MinStripeUnit is not required here.
func FileToExtents(ino uint64, l FileLayout, offset, length uint64) []ObjectExtent {
	if length == 0 {
		return nil
	}

	su := uint64(l.StripeUnit)
	sc := uint64(l.StripeCount)
	spo := l.StripesPerObject()

	byObject := make(map[uint64]*ObjectExtent)

	cur := offset
	left := length
	for left > 0 {
		blockno := cur / su
		stripeno := blockno / sc
		stripepos := blockno % sc
		objectsetno := stripeno / spo
		objectno := objectsetno*sc + stripepos

		ex, ok := byObject[objectno]
		if !ok {
			ex = &ObjectExtent{
				Name:     ObjectName(ino, objectno),
				ObjectNo: objectno,
			}
			byObject[objectno] = ex
		}

		blockStart := (stripeno % spo) * su
		blockOff := cur % su
		xOffset := blockStart + blockOff
		xLen := su - blockOff
		if left < xLen {
			xLen = left
		}

		if ex.Length == 0 {
			ex.Offset = xOffset
			ex.Length = xLen
		} else {
			// A file range only ever visits an object in increasing,
			// adjacent blocks.
			ex.Length += xLen
		}
		ex.BufferExtents = append(ex.BufferExtents, BufferExtent{Offset: cur - offset, Length: xLen})

		left -= xLen
		cur += xLen
	}

	extents := make([]ObjectExtent, 0, len(byObject))
	for _, ex := range byObject {
		extents = append(extents, *ex)
	}
	sort.Slice(extents, func(i, j int) bool {
		return extents[i].ObjectNo < extents[j].ObjectNo
	})
	return extents
}

// ExtentToFile is the reverse of FileToExtents: it maps the range
// [off, off+length) of object objectno back onto file ranges.
func ExtentToFile(l FileLayout, objectno, off, length uint64) []BufferExtent {
	su := uint64(l.StripeUnit)
	sc := uint64(l.StripeCount)
	spo := l.StripesPerObject()

	extents := make([]BufferExtent, 0, length/su+1)

	offInBlock := off % su
	for length > 0 {
		stripepos := objectno % sc
		objectsetno := objectno / sc
		stripeno := off/su + objectsetno*spo
		blockno := stripeno*sc + stripepos
		extentOff := blockno*su + offInBlock
		extentLen := su - offInBlock
		if length < extentLen {
			extentLen = length
		}
		extents = append(extents, BufferExtent{Offset: extentOff, Length: extentLen})

		offInBlock = 0
		off += extentLen
		length -= extentLen
	}
	return extents
}

// ObjectCount returns how many objects (numbered from zero) may hold data
// for a file of the given size.
func ObjectCount(l FileLayout, size uint64) uint64 {
	if size == 0 {
		return 0
	}

	su := uint64(l.StripeUnit)
	sc := uint64(l.StripeCount)
	spo := l.StripesPerObject()

	lastBlock := (size - 1) / su
	objectsetno := lastBlock / (spo * sc)
	inSet := lastBlock - objectsetno*spo*sc + 1
	if inSet > sc {
		inSet = sc
	}
	return objectsetno*sc + inSet
}
