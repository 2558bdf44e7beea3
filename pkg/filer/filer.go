// Package filer performs striped file I/O on top of an object store.
//
// A file's bytes are spread over many objects according to its
// layout.FileLayout. The filer translates file ranges into per-object
// operations, runs them concurrently and stitches the results together.
// It holds no per-file state; sizes are tracked by the caller.
package filer

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/marmos91/stripefs/internal/logger"
	"github.com/marmos91/stripefs/internal/ratelimiter"
	"github.com/marmos91/stripefs/pkg/layout"
	"github.com/marmos91/stripefs/pkg/objectstore"
)

// DefaultConcurrency bounds the number of in-flight object operations per
// filer call when Options leaves it unset.
const DefaultConcurrency = 8

// Options configures a Filer.
type Options struct {
	// Concurrency is the maximum number of concurrent object operations
	// per call. Zero selects DefaultConcurrency.
	Concurrency int

	// OpsPerSecond caps the sustained rate of object operations across
	// all calls. Zero means unlimited.
	OpsPerSecond uint

	// OpsBurst is the number of operations allowed above the sustained
	// rate. Zero selects OpsPerSecond.
	OpsBurst uint
}

// Filer maps file I/O onto objects.
type Filer struct {
	store       objectstore.ObjectStore
	concurrency int
	throttle    *ratelimiter.RateLimiter
}

// New returns a filer over store.
func New(store objectstore.ObjectStore, opts Options) *Filer {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	f := &Filer{store: store, concurrency: opts.Concurrency}
	if opts.OpsPerSecond > 0 {
		burst := opts.OpsBurst
		if burst == 0 {
			burst = opts.OpsPerSecond
		}
		f.throttle = ratelimiter.New(opts.OpsPerSecond, burst)
	}
	return f
}

// Store returns the underlying object store.
func (f *Filer) Store() objectstore.ObjectStore {
	return f.store
}

func (f *Filer) group(ctx context.Context) (*errgroup.Group, context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	return g, gctx
}

// Read returns length bytes of inode ino starting at offset.
//
// Missing objects and short objects read as zeros, so the result is always
// exactly length bytes long. Callers clamp length to the file size.
func (f *Filer) Read(ctx context.Context, ino uint64, l layout.FileLayout, offset, length uint64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if length == 0 {
		return []byte{}, nil
	}

	extents := layout.FileToExtents(ino, l, offset, length)
	chunks := make([][]byte, len(extents))

	g, gctx := f.group(ctx)
	for i, ex := range extents {
		g.Go(func() error {
			if err := f.throttle.Wait(gctx); err != nil {
				return err
			}
			data, err := f.store.ReadObject(gctx, objectstore.ObjectID(ex.Name), ex.Offset, ex.Length)
			if errors.Is(err, objectstore.ErrObjectNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("read %s: %w", ex.Name, err)
			}
			chunks[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := layout.NewStripedReadResult()
	for i, ex := range extents {
		result.AddPartialResult(chunks[i], ex.BufferExtents)
	}
	return result.Assemble(true), nil
}

// Write stores data at offset of inode ino.
func (f *Filer) Write(ctx context.Context, ino uint64, l layout.FileLayout, offset uint64, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	extents := layout.FileToExtents(ino, l, offset, uint64(len(data)))

	g, gctx := f.group(ctx)
	for _, ex := range extents {
		g.Go(func() error {
			if err := f.throttle.Wait(gctx); err != nil {
				return err
			}
			chunk := gather(data, ex)
			if err := f.store.WriteObject(gctx, objectstore.ObjectID(ex.Name), ex.Offset, chunk); err != nil {
				return fmt.Errorf("write %s: %w", ex.Name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// gather copies the buffer pieces of an extent into one contiguous chunk.
func gather(data []byte, ex layout.ObjectExtent) []byte {
	if len(ex.BufferExtents) == 1 {
		be := ex.BufferExtents[0]
		return data[be.Offset : be.Offset+be.Length]
	}
	chunk := make([]byte, 0, ex.Length)
	for _, be := range ex.BufferExtents {
		chunk = append(chunk, data[be.Offset:be.Offset+be.Length]...)
	}
	return chunk
}

// Truncate discards the data of inode ino between newSize and oldSize.
//
// Objects holding only bytes past newSize are removed; an object straddling
// newSize is truncated. Growing a file needs no object I/O since unwritten
// ranges read as zeros.
func (f *Filer) Truncate(ctx context.Context, ino uint64, l layout.FileLayout, oldSize, newSize uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if newSize >= oldSize {
		return nil
	}

	extents := layout.FileToExtents(ino, l, newSize, oldSize-newSize)
	logger.Debug("truncate ino %x: %d -> %d touches %d objects", ino, oldSize, newSize, len(extents))

	g, gctx := f.group(ctx)
	for _, ex := range extents {
		g.Go(func() error {
			if err := f.throttle.Wait(gctx); err != nil {
				return err
			}
			id := objectstore.ObjectID(ex.Name)
			if ex.Offset == 0 {
				if err := f.store.RemoveObject(gctx, id); err != nil {
					return fmt.Errorf("remove %s: %w", ex.Name, err)
				}
				return nil
			}
			err := f.store.TruncateObject(gctx, id, ex.Offset)
			if err != nil && !errors.Is(err, objectstore.ErrObjectNotFound) {
				return fmt.Errorf("truncate %s: %w", ex.Name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// PurgeRange removes objects first..first+num-1 of inode ino. Missing
// objects are ignored.
func (f *Filer) PurgeRange(ctx context.Context, ino uint64, first, num uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	g, gctx := f.group(ctx)
	for objectno := first; objectno < first+num; objectno++ {
		g.Go(func() error {
			if err := f.throttle.Wait(gctx); err != nil {
				return err
			}
			name := layout.ObjectName(ino, objectno)
			if err := f.store.RemoveObject(gctx, objectstore.ObjectID(name)); err != nil {
				return fmt.Errorf("remove %s: %w", name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Purge removes every object that may hold data for a file of size bytes.
func (f *Filer) Purge(ctx context.Context, ino uint64, l layout.FileLayout, size uint64) error {
	return f.PurgeRange(ctx, ino, 0, layout.ObjectCount(l, size))
}

// Probe returns the end of the data stored for inode ino, looking at
// objects 0..maxObjects-1. Sparse tails (set by truncate without data)
// are invisible to a probe.
func (f *Filer) Probe(ctx context.Context, ino uint64, l layout.FileLayout, maxObjects uint64) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	ends := make([]uint64, maxObjects)

	g, gctx := f.group(ctx)
	for objectno := uint64(0); objectno < maxObjects; objectno++ {
		g.Go(func() error {
			if err := f.throttle.Wait(gctx); err != nil {
				return err
			}
			name := layout.ObjectName(ino, objectno)
			info, err := f.store.StatObject(gctx, objectstore.ObjectID(name))
			if errors.Is(err, objectstore.ErrObjectNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("stat %s: %w", name, err)
			}
			if info.Size == 0 {
				return nil
			}
			for _, fe := range layout.ExtentToFile(l, objectno, 0, info.Size) {
				if end := fe.Offset + fe.Length; end > ends[objectno] {
					ends[objectno] = end
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	var end uint64
	for _, e := range ends {
		end = max(end, e)
	}
	return end, nil
}
