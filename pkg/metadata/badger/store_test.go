package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/stripefs/pkg/layout"
	"github.com/marmos91/stripefs/pkg/metadata"
	metatesting "github.com/marmos91/stripefs/pkg/metadata/testing"
)

func newTestStore(t *testing.T, dir string) *BadgerMetadataStore {
	t.Helper()
	store, err := NewBadgerMetadataStore(context.Background(), BadgerMetadataStoreConfig{
		DBPath:           dir,
		BlockCacheSizeMB: 8,
		IndexCacheSizeMB: 8,
	})
	require.NoError(t, err)
	return store
}

func TestBadgerMetadataStore(t *testing.T) {
	suite := &metatesting.StoreTestSuite{
		NewStore: func() metadata.Store {
			store := newTestStore(t, t.TempDir())
			t.Cleanup(func() { _ = store.Close() })
			return store
		},
	}
	suite.Run(t)
}

func TestBadgerMetadataStore_InMemory(t *testing.T) {
	ctx := context.Background()
	store, err := NewBadgerMetadataStore(ctx, BadgerMetadataStoreConfig{InMemory: true, BlockCacheSizeMB: 8, IndexCacheSizeMB: 8})
	require.NoError(t, err)
	defer store.Close()

	root, err := store.Root(ctx)
	require.NoError(t, err)
	assert.True(t, root.IsDir())
}

func TestBadgerMetadataStore_RequiresPath(t *testing.T) {
	_, err := NewBadgerMetadataStore(context.Background(), BadgerMetadataStoreConfig{})
	require.Error(t, err)
}

func TestBadgerMetadataStore_Persistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	l := layout.FileLayout{StripeUnit: layout.MinStripeUnit, StripeCount: 3, ObjectSize: 2 * layout.MinStripeUnit, Pool: "fast"}

	store := newTestStore(t, dir)
	sub, err := store.Create(ctx, metadata.RootIno, "sub", metadata.CreateAttrs{Type: metadata.FileTypeDirectory, Mode: 0o700})
	require.NoError(t, err)
	file, err := store.Create(ctx, sub.Ino, "file", metadata.CreateAttrs{Type: metadata.FileTypeRegular, Mode: 0o640, UID: 7, Layout: l})
	require.NoError(t, err)
	_, err = store.ExtendSize(ctx, file.Ino, 12345, time.Unix(1700000000, 42))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store = newTestStore(t, dir)
	defer store.Close()

	got, err := store.Lookup(ctx, sub.Ino, "file")
	require.NoError(t, err)
	assert.Equal(t, file.Ino, got.Ino)
	assert.Equal(t, sub.Ino, got.Parent)
	assert.Equal(t, uint32(0o640), got.Mode)
	assert.Equal(t, uint32(7), got.UID)
	assert.Equal(t, uint64(12345), got.Size)
	assert.Equal(t, l, got.Layout)
	assert.True(t, time.Unix(1700000000, 42).Equal(got.Mtime))

	// Inode numbers handed out after a reopen never collide.
	other, err := store.Create(ctx, metadata.RootIno, "other", metadata.CreateAttrs{Type: metadata.FileTypeDirectory})
	require.NoError(t, err)
	assert.NotEqual(t, sub.Ino, other.Ino)
	assert.NotEqual(t, file.Ino, other.Ino)
}

func TestBadgerMetadataStore_MaxFiles(t *testing.T) {
	ctx := context.Background()
	store, err := NewBadgerMetadataStore(ctx, BadgerMetadataStoreConfig{DBPath: t.TempDir(), MaxFiles: 2, BlockCacheSizeMB: 8, IndexCacheSizeMB: 8})
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Create(ctx, metadata.RootIno, "one", metadata.CreateAttrs{Type: metadata.FileTypeDirectory})
	require.NoError(t, err)
	_, err = store.Create(ctx, metadata.RootIno, "two", metadata.CreateAttrs{Type: metadata.FileTypeDirectory})
	metatesting.AssertCode(t, metadata.ErrNoSpace, err)
}

func TestKeys(t *testing.T) {
	key := keyDirent(metadata.FirstIno, "name")
	assert.Equal(t, "name", nameFromDirentKey(key))

	ino, ok := inoFromInodeKey(keyInode(42))
	require.True(t, ok)
	assert.Equal(t, uint64(42), ino)

	_, ok = inoFromInodeKey([]byte("i:short"))
	assert.False(t, ok)
}
