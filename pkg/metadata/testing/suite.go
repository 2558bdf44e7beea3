package testing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/stripefs/pkg/layout"
	"github.com/marmos91/stripefs/pkg/metadata"
)

// StoreTestSuite is a reusable test suite for metadata.Store
// implementations. Every backend runs the same namespace checks.
//
// Usage:
//
//	func TestMyStore(t *testing.T) {
//	    suite := &metatesting.StoreTestSuite{
//	        NewStore: func() metadata.Store {
//	            return mystore.New()
//	        },
//	    }
//	    suite.Run(t)
//	}
type StoreTestSuite struct {
	// NewStore creates a fresh, empty store for each test.
	NewStore func() metadata.Store
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("Lookups", suite.RunLookupTests)
	t.Run("Create", suite.RunCreateTests)
	t.Run("Remove", suite.RunRemoveTests)
	t.Run("Rename", suite.RunRenameTests)
	t.Run("Attributes", suite.RunAttrTests)
	t.Run("Maintenance", suite.RunMaintenanceTests)
}

func testContext() context.Context {
	return context.Background()
}

// AssertCode checks that err is a *metadata.StoreError with code.
func AssertCode(t *testing.T, code metadata.ErrorCode, err error) {
	t.Helper()
	require.Error(t, err)
	got, ok := metadata.CodeOf(err)
	require.True(t, ok, "expected StoreError, got %T: %v", err, err)
	require.Equal(t, code, got, "unexpected error code: %v", err)
}

func testLayout() layout.FileLayout {
	return layout.FileLayout{
		StripeUnit:  layout.MinStripeUnit,
		StripeCount: 2,
		ObjectSize:  4 * layout.MinStripeUnit,
		Pool:        "data",
	}
}

func mustCreateFile(t *testing.T, store metadata.Store, parent uint64, name string) *metadata.Inode {
	t.Helper()
	inode, err := store.Create(testContext(), parent, name, metadata.CreateAttrs{
		Type:   metadata.FileTypeRegular,
		Mode:   0o644,
		UID:    1000,
		GID:    1000,
		Layout: testLayout(),
	})
	require.NoError(t, err, "Create file %s", name)
	return inode
}

func mustCreateDir(t *testing.T, store metadata.Store, parent uint64, name string) *metadata.Inode {
	t.Helper()
	inode, err := store.Create(testContext(), parent, name, metadata.CreateAttrs{
		Type: metadata.FileTypeDirectory,
		Mode: 0o755,
	})
	require.NoError(t, err, "Create dir %s", name)
	return inode
}

func mustGet(t *testing.T, store metadata.Store, ino uint64) *metadata.Inode {
	t.Helper()
	inode, err := store.GetInode(testContext(), ino)
	require.NoError(t, err)
	return inode
}

func entryNames(t *testing.T, store metadata.Store, ino uint64) []string {
	t.Helper()
	entries, err := store.ReadDir(testContext(), ino)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	return names
}
