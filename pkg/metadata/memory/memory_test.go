package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/stripefs/pkg/metadata"
	metatesting "github.com/marmos91/stripefs/pkg/metadata/testing"
)

func TestMemoryMetadataStore(t *testing.T) {
	suite := &metatesting.StoreTestSuite{
		NewStore: func() metadata.Store {
			return NewMemoryMetadataStoreWithDefaults()
		},
	}
	suite.Run(t)
}

func TestMemoryMetadataStore_MaxFiles(t *testing.T) {
	ctx := context.Background()
	store, err := NewMemoryMetadataStore(ctx, Config{MaxFiles: 2})
	require.NoError(t, err)

	// The root counts against the limit.
	_, err = store.Create(ctx, metadata.RootIno, "one", metadata.CreateAttrs{Type: metadata.FileTypeDirectory})
	require.NoError(t, err)

	_, err = store.Create(ctx, metadata.RootIno, "two", metadata.CreateAttrs{Type: metadata.FileTypeDirectory})
	metatesting.AssertCode(t, metadata.ErrNoSpace, err)

	stats, err := store.GetStatistics(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(2), stats.MaxFiles)
}

func TestMemoryMetadataStore_CancelledContext(t *testing.T) {
	store := NewMemoryMetadataStoreWithDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Root(ctx)
	require.ErrorIs(t, err, context.Canceled)

	_, err = store.Create(ctx, metadata.RootIno, "x", metadata.CreateAttrs{Type: metadata.FileTypeDirectory})
	require.ErrorIs(t, err, context.Canceled)
}

func TestMemoryMetadataStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryMetadataStoreWithDefaults()

	root, err := store.Root(ctx)
	require.NoError(t, err)
	root.Mode = 0

	again, err := store.Root(ctx)
	require.NoError(t, err)
	require.Equal(t, uint32(0o755), again.Mode)
}
