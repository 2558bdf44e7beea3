package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/stripefs/pkg/objectstore"
	objecttesting "github.com/marmos91/stripefs/pkg/objectstore/testing"
)

func TestFSObjectStore(t *testing.T) {
	suite := &objecttesting.StoreTestSuite{
		NewStore: func() objectstore.ObjectStore {
			store, err := NewFSObjectStore(context.Background(), Config{Path: t.TempDir()})
			if err != nil {
				t.Fatalf("Failed to create FSObjectStore: %v", err)
			}
			t.Cleanup(func() { _ = store.Close() })
			return store
		},
	}

	suite.Run(t)
}

func TestFSObjectStore_RequiresPath(t *testing.T) {
	_, err := NewFSObjectStore(context.Background(), Config{})
	assert.Error(t, err)
}

func TestFSObjectStore_HexEncodedNames(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := NewFSObjectStore(ctx, Config{Path: dir})
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.WriteObject(ctx, "1.00000000", 0, []byte("x")))

	_, err = os.Stat(filepath.Join(dir, "312e3030303030303030"))
	require.NoError(t, err)

	// Stray files that are not hex names are ignored by listing.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("hi"), 0644))

	ids, err := store.ListObjects(ctx)
	require.NoError(t, err)
	assert.Equal(t, []objectstore.ObjectID{"1.00000000"}, ids)
}

func TestFSObjectStore_FDCacheEviction(t *testing.T) {
	ctx := context.Background()

	store, err := NewFSObjectStore(ctx, Config{Path: t.TempDir(), FDCacheSize: 2})
	require.NoError(t, err)
	defer store.Close()

	for _, id := range []objectstore.ObjectID{"a", "b", "c", "d"} {
		require.NoError(t, store.WriteObject(ctx, id, 0, []byte(id)))
	}
	assert.LessOrEqual(t, store.fdCache.len(), 2)

	// Evicted objects reopen transparently.
	data, err := store.ReadObject(ctx, "a", 0, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), data)
}

func TestFSObjectStore_RemoveThenRecreate(t *testing.T) {
	ctx := context.Background()

	store, err := NewFSObjectStore(ctx, Config{Path: t.TempDir()})
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.WriteObject(ctx, "obj", 0, []byte("old contents")))
	require.NoError(t, store.RemoveObject(ctx, "obj"))
	require.NoError(t, store.WriteObject(ctx, "obj", 0, []byte("new")))

	data, err := store.ReadObject(ctx, "obj", 0, 100)
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), data)
}

func TestFSObjectStore_ZeroLengthWriteExtends(t *testing.T) {
	ctx := context.Background()

	store, err := NewFSObjectStore(ctx, Config{Path: t.TempDir()})
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.WriteObject(ctx, "obj", 16, nil))

	info, err := store.StatObject(ctx, "obj")
	require.NoError(t, err)
	assert.Equal(t, uint64(16), info.Size)
}
