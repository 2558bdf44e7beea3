// Package replicated groups several object stores into one pool that keeps
// a full copy of every object on each store.
package replicated

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/marmos91/stripefs/pkg/objectstore"
)

// Pool is a named set of replica stores.
//
// Mutations (write, truncate, remove) are sent to every replica
// concurrently and succeed only when all replicas succeed. Reads are
// served by the first replica, in order, that has the object. Storage
// statistics come from the primary (first) replica.
//
// Pool implements objectstore.GarbageCollectableStore. ListObjects fails
// if any replica cannot list its objects. RemoveBatch falls back to
// per-object RemoveObject calls on such replicas.
type Pool struct {
	name     string
	replicas []objectstore.ObjectStore
}

// NewPool returns a pool over replicas. At least one replica is required.
func NewPool(name string, replicas ...objectstore.ObjectStore) (*Pool, error) {
	if name == "" {
		return nil, fmt.Errorf("pool name is required")
	}
	if len(replicas) == 0 {
		return nil, fmt.Errorf("pool %s: at least one replica is required", name)
	}
	for i, r := range replicas {
		if r == nil {
			return nil, fmt.Errorf("pool %s: replica %d is nil", name, i)
		}
	}

	return &Pool{name: name, replicas: replicas}, nil
}

// Name returns the pool name.
func (p *Pool) Name() string {
	return p.name
}

// Replication returns the number of copies kept of each object.
func (p *Pool) Replication() int {
	return len(p.replicas)
}

// Replicas returns the underlying stores, primary first.
func (p *Pool) Replicas() []objectstore.ObjectStore {
	out := make([]objectstore.ObjectStore, len(p.replicas))
	copy(out, p.replicas)
	return out
}

// ReadObject reads from the first replica holding the object. A replica
// failing with anything other than ErrObjectNotFound is skipped; its error
// is returned only if no replica can serve the read.
func (p *Pool) ReadObject(ctx context.Context, id objectstore.ObjectID, offset, length uint64) ([]byte, error) {
	var firstErr error
	for _, r := range p.replicas {
		data, err := r.ReadObject(ctx, id, offset, length)
		if err == nil {
			return data, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if !errors.Is(err, objectstore.ErrObjectNotFound) && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return nil, fmt.Errorf("object %s: %w", id, objectstore.ErrObjectNotFound)
}

// WriteObject writes to all replicas.
func (p *Pool) WriteObject(ctx context.Context, id objectstore.ObjectID, offset uint64, data []byte) error {
	return p.fanOut(ctx, func(ctx context.Context, r objectstore.ObjectStore) error {
		return r.WriteObject(ctx, id, offset, data)
	})
}

// TruncateObject truncates on all replicas.
func (p *Pool) TruncateObject(ctx context.Context, id objectstore.ObjectID, size uint64) error {
	return p.fanOut(ctx, func(ctx context.Context, r objectstore.ObjectStore) error {
		return r.TruncateObject(ctx, id, size)
	})
}

// RemoveObject removes from all replicas.
func (p *Pool) RemoveObject(ctx context.Context, id objectstore.ObjectID) error {
	return p.fanOut(ctx, func(ctx context.Context, r objectstore.ObjectStore) error {
		return r.RemoveObject(ctx, id)
	})
}

// StatObject stats the first replica holding the object.
func (p *Pool) StatObject(ctx context.Context, id objectstore.ObjectID) (*objectstore.ObjectInfo, error) {
	var firstErr error
	for _, r := range p.replicas {
		info, err := r.StatObject(ctx, id)
		if err == nil {
			return info, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if !errors.Is(err, objectstore.ErrObjectNotFound) && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return nil, fmt.Errorf("object %s: %w", id, objectstore.ErrObjectNotFound)
}

// GetStorageStats returns the primary replica's statistics.
func (p *Pool) GetStorageStats(ctx context.Context) (*objectstore.StorageStats, error) {
	return p.replicas[0].GetStorageStats(ctx)
}

// ListObjects returns the union of all replicas' objects, sorted.
func (p *Pool) ListObjects(ctx context.Context) ([]objectstore.ObjectID, error) {
	seen := make(map[objectstore.ObjectID]struct{})
	for i, r := range p.replicas {
		gcs, ok := r.(objectstore.GarbageCollectableStore)
		if !ok {
			return nil, fmt.Errorf("pool %s: replica %d cannot list objects", p.name, i)
		}
		ids, err := gcs.ListObjects(ctx)
		if err != nil {
			return nil, fmt.Errorf("pool %s: replica %d: %w", p.name, i, err)
		}
		for _, id := range ids {
			seen[id] = struct{}{}
		}
	}

	ids := make([]objectstore.ObjectID, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// RemoveBatch removes ids from every replica. An id is reported as failed
// if any replica failed to remove it.
func (p *Pool) RemoveBatch(ctx context.Context, ids []objectstore.ObjectID) (map[objectstore.ObjectID]error, error) {
	failures := make(map[objectstore.ObjectID]error)

	for _, r := range p.replicas {
		if gcs, ok := r.(objectstore.GarbageCollectableStore); ok {
			failed, err := gcs.RemoveBatch(ctx, ids)
			for id, ferr := range failed {
				if _, dup := failures[id]; !dup {
					failures[id] = ferr
				}
			}
			if err != nil {
				return failures, err
			}
			continue
		}

		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return failures, err
			}
			if err := r.RemoveObject(ctx, id); err != nil {
				if _, dup := failures[id]; !dup {
					failures[id] = err
				}
			}
		}
	}

	return failures, nil
}

// Close closes every replica that holds resources.
func (p *Pool) Close() error {
	var errs []error
	for _, r := range p.replicas {
		if c, ok := r.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// fanOut runs op on every replica concurrently and returns the first error.
func (p *Pool) fanOut(ctx context.Context, op func(context.Context, objectstore.ObjectStore) error) error {
	if len(p.replicas) == 1 {
		return op(ctx, p.replicas[0])
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, r := range p.replicas {
		g.Go(func() error {
			return op(gctx, r)
		})
	}
	return g.Wait()
}
