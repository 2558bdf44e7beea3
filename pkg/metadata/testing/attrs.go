package testing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/stripefs/pkg/metadata"
)

// RunAttrTests covers SetAttr and ExtendSize.
func (suite *StoreTestSuite) RunAttrTests(t *testing.T) {
	t.Run("SetAttr_Mode", suite.testSetAttrMode)
	t.Run("SetAttr_Owner", suite.testSetAttrOwner)
	t.Run("SetAttr_Size", suite.testSetAttrSize)
	t.Run("SetAttr_SizeOnDirectory", suite.testSetAttrSizeOnDir)
	t.Run("SetAttr_Times", suite.testSetAttrTimes)
	t.Run("SetAttr_NotFound", suite.testSetAttrNotFound)
	t.Run("ExtendSize", suite.testExtendSize)
}

// RunMaintenanceTests covers ListInodes, GetStatistics and Healthcheck.
func (suite *StoreTestSuite) RunMaintenanceTests(t *testing.T) {
	t.Run("ListInodes", suite.testListInodes)
	t.Run("GetStatistics", suite.testStatistics)
	t.Run("Healthcheck", suite.testHealthcheck)
}

func (suite *StoreTestSuite) testSetAttrMode(t *testing.T) {
	store := suite.NewStore()
	file := mustCreateFile(t, store, metadata.RootIno, "file")

	mode := uint32(0o600)
	updated, err := store.SetAttr(testContext(), file.Ino, metadata.SetAttrs{Mode: &mode})
	require.NoError(t, err)
	assert.Equal(t, mode, updated.Mode)
	assert.Equal(t, mode, mustGet(t, store, file.Ino).Mode)
	assert.Equal(t, file.UID, updated.UID)
}

func (suite *StoreTestSuite) testSetAttrOwner(t *testing.T) {
	store := suite.NewStore()
	file := mustCreateFile(t, store, metadata.RootIno, "file")

	uid, gid := uint32(42), uint32(43)
	_, err := store.SetAttr(testContext(), file.Ino, metadata.SetAttrs{UID: &uid, GID: &gid})
	require.NoError(t, err)

	got := mustGet(t, store, file.Ino)
	assert.Equal(t, uid, got.UID)
	assert.Equal(t, gid, got.GID)
	assert.Equal(t, file.Mode, got.Mode)
}

func (suite *StoreTestSuite) testSetAttrSize(t *testing.T) {
	store := suite.NewStore()
	file := mustCreateFile(t, store, metadata.RootIno, "file")

	size := uint64(1 << 20)
	updated, err := store.SetAttr(testContext(), file.Ino, metadata.SetAttrs{Size: &size})
	require.NoError(t, err)
	assert.Equal(t, size, updated.Size)
	assert.Equal(t, size, mustGet(t, store, file.Ino).Size)
}

func (suite *StoreTestSuite) testSetAttrSizeOnDir(t *testing.T) {
	store := suite.NewStore()
	dir := mustCreateDir(t, store, metadata.RootIno, "dir")

	size := uint64(10)
	_, err := store.SetAttr(testContext(), dir.Ino, metadata.SetAttrs{Size: &size})
	AssertCode(t, metadata.ErrIsDirectory, err)
}

func (suite *StoreTestSuite) testSetAttrTimes(t *testing.T) {
	store := suite.NewStore()
	file := mustCreateFile(t, store, metadata.RootIno, "file")

	atime := time.Unix(1000, 500)
	mtime := time.Unix(2000, 0)
	_, err := store.SetAttr(testContext(), file.Ino, metadata.SetAttrs{Atime: &atime, Mtime: &mtime})
	require.NoError(t, err)

	got := mustGet(t, store, file.Ino)
	assert.True(t, atime.Equal(got.Atime), "atime %v", got.Atime)
	assert.True(t, mtime.Equal(got.Mtime), "mtime %v", got.Mtime)
	assert.False(t, got.Ctime.Before(file.Ctime))
}

func (suite *StoreTestSuite) testSetAttrNotFound(t *testing.T) {
	store := suite.NewStore()

	mode := uint32(0o600)
	_, err := store.SetAttr(testContext(), metadata.FirstIno+999, metadata.SetAttrs{Mode: &mode})
	AssertCode(t, metadata.ErrNotFound, err)
}

func (suite *StoreTestSuite) testExtendSize(t *testing.T) {
	store := suite.NewStore()
	file := mustCreateFile(t, store, metadata.RootIno, "file")
	mtime := time.Unix(5000, 0)

	updated, err := store.ExtendSize(testContext(), file.Ino, 100, mtime)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), updated.Size)
	assert.True(t, mtime.Equal(updated.Mtime))

	// A smaller end never shrinks the file.
	updated, err = store.ExtendSize(testContext(), file.Ino, 10, mtime)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), updated.Size)
	assert.Equal(t, uint64(100), mustGet(t, store, file.Ino).Size)
}

func (suite *StoreTestSuite) testListInodes(t *testing.T) {
	store := suite.NewStore()
	dir := mustCreateDir(t, store, metadata.RootIno, "dir")
	file := mustCreateFile(t, store, dir.Ino, "file")

	inos, err := store.ListInodes(testContext())
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint64{metadata.RootIno, dir.Ino, file.Ino}, inos)
}

func (suite *StoreTestSuite) testStatistics(t *testing.T) {
	store := suite.NewStore()
	dir := mustCreateDir(t, store, metadata.RootIno, "dir")
	a := mustCreateFile(t, store, dir.Ino, "a")
	mustCreateFile(t, store, dir.Ino, "b")

	_, err := store.ExtendSize(testContext(), a.Ino, 300, time.Now())
	require.NoError(t, err)

	stats, err := store.GetStatistics(testContext())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stats.Files)
	assert.Equal(t, uint64(2), stats.Directories)
	assert.Equal(t, uint64(300), stats.TotalSize)
}

func (suite *StoreTestSuite) testHealthcheck(t *testing.T) {
	store := suite.NewStore()
	assert.NoError(t, store.Healthcheck(testContext()))
}
