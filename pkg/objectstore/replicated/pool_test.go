package replicated

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/stripefs/pkg/objectstore"
	"github.com/marmos91/stripefs/pkg/objectstore/memory"
	objecttesting "github.com/marmos91/stripefs/pkg/objectstore/testing"
)

func newMemoryReplicas(t *testing.T, n int) []objectstore.ObjectStore {
	t.Helper()
	replicas := make([]objectstore.ObjectStore, n)
	for i := range replicas {
		store, err := memory.NewMemoryObjectStore(context.Background(), memory.Config{})
		require.NoError(t, err)
		replicas[i] = store
	}
	return replicas
}

func TestPool(t *testing.T) {
	suite := &objecttesting.StoreTestSuite{
		NewStore: func() objectstore.ObjectStore {
			pool, err := NewPool("data", newMemoryReplicas(t, 3)...)
			if err != nil {
				t.Fatalf("Failed to create pool: %v", err)
			}
			return pool
		},
	}

	suite.Run(t)
}

func TestNewPool_Validation(t *testing.T) {
	_, err := NewPool("", newMemoryReplicas(t, 1)...)
	assert.Error(t, err)

	_, err = NewPool("data")
	assert.Error(t, err)

	_, err = NewPool("data", nil)
	assert.Error(t, err)
}

func TestPool_WritesEveryReplica(t *testing.T) {
	ctx := context.Background()
	replicas := newMemoryReplicas(t, 3)

	pool, err := NewPool("data", replicas...)
	require.NoError(t, err)
	assert.Equal(t, 3, pool.Replication())
	assert.Equal(t, "data", pool.Name())

	require.NoError(t, pool.WriteObject(ctx, "obj", 0, []byte("replicated")))

	for i, r := range replicas {
		data, err := r.ReadObject(ctx, "obj", 0, 100)
		require.NoError(t, err, "replica %d", i)
		assert.Equal(t, []byte("replicated"), data, "replica %d", i)
	}

	require.NoError(t, pool.RemoveObject(ctx, "obj"))
	for i, r := range replicas {
		_, err := r.StatObject(ctx, "obj")
		assert.ErrorIs(t, err, objectstore.ErrObjectNotFound, "replica %d", i)
	}
}

func TestPool_ReadFallsBackToLaterReplica(t *testing.T) {
	ctx := context.Background()
	replicas := newMemoryReplicas(t, 2)

	pool, err := NewPool("data", replicas...)
	require.NoError(t, err)

	// Only the secondary holds the object.
	require.NoError(t, replicas[1].WriteObject(ctx, "obj", 0, []byte("secondary")))

	data, err := pool.ReadObject(ctx, "obj", 0, 100)
	require.NoError(t, err)
	assert.Equal(t, []byte("secondary"), data)

	info, err := pool.StatObject(ctx, "obj")
	require.NoError(t, err)
	assert.Equal(t, uint64(9), info.Size)

	ids, err := pool.ListObjects(ctx)
	require.NoError(t, err)
	assert.Equal(t, []objectstore.ObjectID{"obj"}, ids)
}

// failingStore fails every mutation.
type failingStore struct {
	objectstore.ObjectStore
}

var errReplicaDown = errors.New("replica down")

func (failingStore) WriteObject(context.Context, objectstore.ObjectID, uint64, []byte) error {
	return errReplicaDown
}

func (failingStore) ReadObject(context.Context, objectstore.ObjectID, uint64, uint64) ([]byte, error) {
	return nil, errReplicaDown
}

func TestPool_WriteFailsIfAnyReplicaFails(t *testing.T) {
	ctx := context.Background()
	replicas := newMemoryReplicas(t, 1)

	pool, err := NewPool("data", replicas[0], failingStore{})
	require.NoError(t, err)

	err = pool.WriteObject(ctx, "obj", 0, []byte("x"))
	assert.ErrorIs(t, err, errReplicaDown)
}

func TestPool_ReadSkipsBrokenReplica(t *testing.T) {
	ctx := context.Background()
	healthy := newMemoryReplicas(t, 1)[0]
	require.NoError(t, healthy.WriteObject(ctx, "obj", 0, []byte("ok")))

	pool, err := NewPool("data", failingStore{}, healthy)
	require.NoError(t, err)

	data, err := pool.ReadObject(ctx, "obj", 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), data)

	// Nothing can serve a missing object; the broken replica's error wins.
	_, err = pool.ReadObject(ctx, "missing", 0, 2)
	assert.ErrorIs(t, err, errReplicaDown)
}

// unlistedStore hides the listing methods of the store it wraps.
type unlistedStore struct {
	objectstore.ObjectStore
}

func TestPool_ListingNeedsEveryReplica(t *testing.T) {
	ctx := context.Background()
	replicas := newMemoryReplicas(t, 2)
	pool, err := NewPool("data", replicas[0], unlistedStore{replicas[1]})
	require.NoError(t, err)

	require.NoError(t, pool.WriteObject(ctx, "a", 0, []byte("x")))

	_, err = pool.ListObjects(ctx)
	assert.Error(t, err)

	failures, err := pool.RemoveBatch(ctx, []objectstore.ObjectID{"a"})
	require.NoError(t, err)
	assert.Empty(t, failures)
	for _, r := range replicas {
		_, err := r.StatObject(ctx, "a")
		assert.ErrorIs(t, err, objectstore.ErrObjectNotFound)
	}
}
