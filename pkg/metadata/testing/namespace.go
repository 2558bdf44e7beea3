package testing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/stripefs/pkg/metadata"
)

// RunLookupTests covers Root, GetInode, Lookup and ReadDir.
func (suite *StoreTestSuite) RunLookupTests(t *testing.T) {
	t.Run("Root", suite.testRoot)
	t.Run("GetInode_NotFound", suite.testGetInodeNotFound)
	t.Run("Lookup_NotFound", suite.testLookupNotFound)
	t.Run("Lookup_NotDirectory", suite.testLookupNotDirectory)
	t.Run("ReadDir_Sorted", suite.testReadDirSorted)
	t.Run("ReadDir_Empty", suite.testReadDirEmpty)
}

// RunCreateTests covers Create.
func (suite *StoreTestSuite) RunCreateTests(t *testing.T) {
	t.Run("File", suite.testCreateFile)
	t.Run("Directory", suite.testCreateDirectory)
	t.Run("AlreadyExists", suite.testCreateExists)
	t.Run("InvalidNames", suite.testCreateInvalidNames)
	t.Run("InvalidLayout", suite.testCreateInvalidLayout)
	t.Run("ParentNotDirectory", suite.testCreateParentNotDirectory)
	t.Run("UniqueInodes", suite.testCreateUniqueInodes)
}

// RunRemoveTests covers Unlink and Rmdir.
func (suite *StoreTestSuite) RunRemoveTests(t *testing.T) {
	t.Run("Unlink_File", suite.testUnlinkFile)
	t.Run("Unlink_Directory", suite.testUnlinkDirectory)
	t.Run("Unlink_NotFound", suite.testUnlinkNotFound)
	t.Run("Rmdir_Empty", suite.testRmdirEmpty)
	t.Run("Rmdir_NotEmpty", suite.testRmdirNotEmpty)
	t.Run("Rmdir_NotDirectory", suite.testRmdirNotDirectory)
}

// RunRenameTests covers Rename.
func (suite *StoreTestSuite) RunRenameTests(t *testing.T) {
	t.Run("SameDirectory", suite.testRenameSameDir)
	t.Run("AcrossDirectories", suite.testRenameAcrossDirs)
	t.Run("ReplaceFile", suite.testRenameReplaceFile)
	t.Run("ReplaceEmptyDirectory", suite.testRenameReplaceEmptyDir)
	t.Run("ReplaceNonEmptyDirectory", suite.testRenameReplaceNonEmptyDir)
	t.Run("TypeMismatch", suite.testRenameTypeMismatch)
	t.Run("IntoOwnSubtree", suite.testRenameIntoSubtree)
	t.Run("SourceMissing", suite.testRenameSourceMissing)
	t.Run("ToItself", suite.testRenameToItself)
}

// ============================================================================
// Lookups
// ============================================================================

func (suite *StoreTestSuite) testRoot(t *testing.T) {
	store := suite.NewStore()

	root, err := store.Root(testContext())
	require.NoError(t, err)
	assert.Equal(t, metadata.RootIno, root.Ino)
	assert.True(t, root.IsDir())
	assert.Equal(t, uint64(0), root.Size)
	assert.True(t, root.Layout.IsZero())
}

func (suite *StoreTestSuite) testGetInodeNotFound(t *testing.T) {
	store := suite.NewStore()

	_, err := store.GetInode(testContext(), metadata.FirstIno+12345)
	AssertCode(t, metadata.ErrNotFound, err)
}

func (suite *StoreTestSuite) testLookupNotFound(t *testing.T) {
	store := suite.NewStore()

	_, err := store.Lookup(testContext(), metadata.RootIno, "missing")
	AssertCode(t, metadata.ErrNotFound, err)
}

func (suite *StoreTestSuite) testLookupNotDirectory(t *testing.T) {
	store := suite.NewStore()
	file := mustCreateFile(t, store, metadata.RootIno, "file")

	_, err := store.Lookup(testContext(), file.Ino, "child")
	AssertCode(t, metadata.ErrNotDirectory, err)
}

func (suite *StoreTestSuite) testReadDirSorted(t *testing.T) {
	store := suite.NewStore()
	mustCreateFile(t, store, metadata.RootIno, "charlie")
	mustCreateDir(t, store, metadata.RootIno, "alpha")
	mustCreateFile(t, store, metadata.RootIno, "bravo")

	entries, err := store.ReadDir(testContext(), metadata.RootIno)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "alpha", entries[0].Name)
	assert.Equal(t, metadata.FileTypeDirectory, entries[0].Type)
	assert.Equal(t, "bravo", entries[1].Name)
	assert.Equal(t, metadata.FileTypeRegular, entries[1].Type)
	assert.Equal(t, "charlie", entries[2].Name)
}

func (suite *StoreTestSuite) testReadDirEmpty(t *testing.T) {
	store := suite.NewStore()

	entries, err := store.ReadDir(testContext(), metadata.RootIno)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// ============================================================================
// Create
// ============================================================================

func (suite *StoreTestSuite) testCreateFile(t *testing.T) {
	store := suite.NewStore()
	file := mustCreateFile(t, store, metadata.RootIno, "file")

	assert.GreaterOrEqual(t, file.Ino, metadata.FirstIno)
	assert.Equal(t, metadata.RootIno, file.Parent)
	assert.Equal(t, metadata.FileTypeRegular, file.Type)
	assert.Equal(t, uint32(0o644), file.Mode)
	assert.Equal(t, uint32(1000), file.UID)
	assert.Equal(t, uint32(1), file.Nlink)
	assert.Equal(t, uint64(0), file.Size)
	assert.Equal(t, testLayout(), file.Layout)

	found, err := store.Lookup(testContext(), metadata.RootIno, "file")
	require.NoError(t, err)
	assert.Equal(t, file.Ino, found.Ino)
	assert.Equal(t, testLayout(), found.Layout)
	assert.True(t, file.Mtime.Equal(found.Mtime))
}

func (suite *StoreTestSuite) testCreateDirectory(t *testing.T) {
	store := suite.NewStore()
	before := mustGet(t, store, metadata.RootIno).Nlink

	dir := mustCreateDir(t, store, metadata.RootIno, "dir")
	assert.True(t, dir.IsDir())
	assert.Equal(t, uint32(2), dir.Nlink)
	assert.True(t, dir.Layout.IsZero())
	assert.Equal(t, before+1, mustGet(t, store, metadata.RootIno).Nlink)

	child := mustCreateFile(t, store, dir.Ino, "child")
	assert.Equal(t, dir.Ino, child.Parent)
	assert.Equal(t, []string{"child"}, entryNames(t, store, dir.Ino))
}

func (suite *StoreTestSuite) testCreateExists(t *testing.T) {
	store := suite.NewStore()
	mustCreateFile(t, store, metadata.RootIno, "dup")

	_, err := store.Create(testContext(), metadata.RootIno, "dup", metadata.CreateAttrs{Type: metadata.FileTypeDirectory})
	AssertCode(t, metadata.ErrAlreadyExists, err)
}

func (suite *StoreTestSuite) testCreateInvalidNames(t *testing.T) {
	store := suite.NewStore()

	for _, name := range []string{"", ".", "..", "a/b", strings.Repeat("x", metadata.MaxNameLen+1)} {
		_, err := store.Create(testContext(), metadata.RootIno, name, metadata.CreateAttrs{Type: metadata.FileTypeDirectory})
		AssertCode(t, metadata.ErrInvalidArgument, err)
	}
	assert.Empty(t, entryNames(t, store, metadata.RootIno))
}

func (suite *StoreTestSuite) testCreateInvalidLayout(t *testing.T) {
	store := suite.NewStore()
	bad := testLayout()
	bad.ObjectSize = bad.StripeUnit + 1

	_, err := store.Create(testContext(), metadata.RootIno, "bad", metadata.CreateAttrs{
		Type:   metadata.FileTypeRegular,
		Layout: bad,
	})
	AssertCode(t, metadata.ErrInvalidArgument, err)
}

func (suite *StoreTestSuite) testCreateParentNotDirectory(t *testing.T) {
	store := suite.NewStore()
	file := mustCreateFile(t, store, metadata.RootIno, "file")

	_, err := store.Create(testContext(), file.Ino, "child", metadata.CreateAttrs{Type: metadata.FileTypeDirectory})
	AssertCode(t, metadata.ErrNotDirectory, err)
}

func (suite *StoreTestSuite) testCreateUniqueInodes(t *testing.T) {
	store := suite.NewStore()

	seen := make(map[uint64]bool)
	for _, name := range []string{"a", "b", "c", "d"} {
		ino := mustCreateFile(t, store, metadata.RootIno, name).Ino
		assert.False(t, seen[ino], "inode %d reused", ino)
		seen[ino] = true
	}
}

// ============================================================================
// Remove
// ============================================================================

func (suite *StoreTestSuite) testUnlinkFile(t *testing.T) {
	store := suite.NewStore()
	file := mustCreateFile(t, store, metadata.RootIno, "file")

	inode, err := store.Unlink(testContext(), metadata.RootIno, "file")
	require.NoError(t, err)
	assert.Equal(t, file.Ino, inode.Ino)
	assert.Equal(t, uint32(0), inode.Nlink)

	_, err = store.GetInode(testContext(), file.Ino)
	AssertCode(t, metadata.ErrNotFound, err)
	_, err = store.Lookup(testContext(), metadata.RootIno, "file")
	AssertCode(t, metadata.ErrNotFound, err)
}

func (suite *StoreTestSuite) testUnlinkDirectory(t *testing.T) {
	store := suite.NewStore()
	mustCreateDir(t, store, metadata.RootIno, "dir")

	_, err := store.Unlink(testContext(), metadata.RootIno, "dir")
	AssertCode(t, metadata.ErrIsDirectory, err)
}

func (suite *StoreTestSuite) testUnlinkNotFound(t *testing.T) {
	store := suite.NewStore()

	_, err := store.Unlink(testContext(), metadata.RootIno, "missing")
	AssertCode(t, metadata.ErrNotFound, err)
}

func (suite *StoreTestSuite) testRmdirEmpty(t *testing.T) {
	store := suite.NewStore()
	before := mustGet(t, store, metadata.RootIno).Nlink
	dir := mustCreateDir(t, store, metadata.RootIno, "dir")

	require.NoError(t, store.Rmdir(testContext(), metadata.RootIno, "dir"))

	_, err := store.GetInode(testContext(), dir.Ino)
	AssertCode(t, metadata.ErrNotFound, err)
	assert.Equal(t, before, mustGet(t, store, metadata.RootIno).Nlink)
}

func (suite *StoreTestSuite) testRmdirNotEmpty(t *testing.T) {
	store := suite.NewStore()
	dir := mustCreateDir(t, store, metadata.RootIno, "dir")
	mustCreateFile(t, store, dir.Ino, "child")

	err := store.Rmdir(testContext(), metadata.RootIno, "dir")
	AssertCode(t, metadata.ErrNotEmpty, err)
}

func (suite *StoreTestSuite) testRmdirNotDirectory(t *testing.T) {
	store := suite.NewStore()
	mustCreateFile(t, store, metadata.RootIno, "file")

	err := store.Rmdir(testContext(), metadata.RootIno, "file")
	AssertCode(t, metadata.ErrNotDirectory, err)
}

// ============================================================================
// Rename
// ============================================================================

func (suite *StoreTestSuite) testRenameSameDir(t *testing.T) {
	store := suite.NewStore()
	file := mustCreateFile(t, store, metadata.RootIno, "old")

	dropped, err := store.Rename(testContext(), metadata.RootIno, "old", metadata.RootIno, "new")
	require.NoError(t, err)
	assert.Nil(t, dropped)

	assert.Equal(t, []string{"new"}, entryNames(t, store, metadata.RootIno))
	found, err := store.Lookup(testContext(), metadata.RootIno, "new")
	require.NoError(t, err)
	assert.Equal(t, file.Ino, found.Ino)
}

func (suite *StoreTestSuite) testRenameAcrossDirs(t *testing.T) {
	store := suite.NewStore()
	a := mustCreateDir(t, store, metadata.RootIno, "a")
	b := mustCreateDir(t, store, metadata.RootIno, "b")
	sub := mustCreateDir(t, store, a.Ino, "sub")

	_, err := store.Rename(testContext(), a.Ino, "sub", b.Ino, "moved")
	require.NoError(t, err)

	assert.Empty(t, entryNames(t, store, a.Ino))
	assert.Equal(t, []string{"moved"}, entryNames(t, store, b.Ino))
	assert.Equal(t, b.Ino, mustGet(t, store, sub.Ino).Parent)
	assert.Equal(t, uint32(2), mustGet(t, store, a.Ino).Nlink)
	assert.Equal(t, uint32(3), mustGet(t, store, b.Ino).Nlink)
}

func (suite *StoreTestSuite) testRenameReplaceFile(t *testing.T) {
	store := suite.NewStore()
	src := mustCreateFile(t, store, metadata.RootIno, "src")
	dst := mustCreateFile(t, store, metadata.RootIno, "dst")

	dropped, err := store.Rename(testContext(), metadata.RootIno, "src", metadata.RootIno, "dst")
	require.NoError(t, err)
	require.NotNil(t, dropped)
	assert.Equal(t, dst.Ino, dropped.Ino)
	assert.Equal(t, uint32(0), dropped.Nlink)

	found, err := store.Lookup(testContext(), metadata.RootIno, "dst")
	require.NoError(t, err)
	assert.Equal(t, src.Ino, found.Ino)
	_, err = store.GetInode(testContext(), dst.Ino)
	AssertCode(t, metadata.ErrNotFound, err)
}

func (suite *StoreTestSuite) testRenameReplaceEmptyDir(t *testing.T) {
	store := suite.NewStore()
	mustCreateDir(t, store, metadata.RootIno, "src")
	dst := mustCreateDir(t, store, metadata.RootIno, "dst")
	before := mustGet(t, store, metadata.RootIno).Nlink

	_, err := store.Rename(testContext(), metadata.RootIno, "src", metadata.RootIno, "dst")
	require.NoError(t, err)

	assert.Equal(t, []string{"dst"}, entryNames(t, store, metadata.RootIno))
	_, err = store.GetInode(testContext(), dst.Ino)
	AssertCode(t, metadata.ErrNotFound, err)
	assert.Equal(t, before-1, mustGet(t, store, metadata.RootIno).Nlink)
}

func (suite *StoreTestSuite) testRenameReplaceNonEmptyDir(t *testing.T) {
	store := suite.NewStore()
	mustCreateDir(t, store, metadata.RootIno, "src")
	dst := mustCreateDir(t, store, metadata.RootIno, "dst")
	mustCreateFile(t, store, dst.Ino, "child")

	_, err := store.Rename(testContext(), metadata.RootIno, "src", metadata.RootIno, "dst")
	AssertCode(t, metadata.ErrNotEmpty, err)
}

func (suite *StoreTestSuite) testRenameTypeMismatch(t *testing.T) {
	store := suite.NewStore()
	mustCreateDir(t, store, metadata.RootIno, "dir")
	mustCreateFile(t, store, metadata.RootIno, "file")

	_, err := store.Rename(testContext(), metadata.RootIno, "dir", metadata.RootIno, "file")
	AssertCode(t, metadata.ErrNotDirectory, err)

	_, err = store.Rename(testContext(), metadata.RootIno, "file", metadata.RootIno, "dir")
	AssertCode(t, metadata.ErrIsDirectory, err)
}

func (suite *StoreTestSuite) testRenameIntoSubtree(t *testing.T) {
	store := suite.NewStore()
	a := mustCreateDir(t, store, metadata.RootIno, "a")
	b := mustCreateDir(t, store, a.Ino, "b")

	_, err := store.Rename(testContext(), metadata.RootIno, "a", b.Ino, "a")
	AssertCode(t, metadata.ErrInvalidArgument, err)

	_, err = store.Rename(testContext(), metadata.RootIno, "a", a.Ino, "self")
	AssertCode(t, metadata.ErrInvalidArgument, err)
}

func (suite *StoreTestSuite) testRenameSourceMissing(t *testing.T) {
	store := suite.NewStore()

	_, err := store.Rename(testContext(), metadata.RootIno, "missing", metadata.RootIno, "x")
	AssertCode(t, metadata.ErrNotFound, err)
}

func (suite *StoreTestSuite) testRenameToItself(t *testing.T) {
	store := suite.NewStore()
	file := mustCreateFile(t, store, metadata.RootIno, "same")

	dropped, err := store.Rename(testContext(), metadata.RootIno, "same", metadata.RootIno, "same")
	require.NoError(t, err)
	assert.Nil(t, dropped)
	assert.Equal(t, file.Ino, mustGet(t, store, file.Ino).Ino)
}
