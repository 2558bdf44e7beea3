package testing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/stripefs/pkg/objectstore"
)

// RunWriteTests executes all mutation tests.
func (suite *StoreTestSuite) RunWriteTests(t *testing.T) {
	t.Run("WriteObject_Create", suite.testWriteCreate)
	t.Run("WriteObject_Overwrite", suite.testWriteOverwrite)
	t.Run("WriteObject_Append", suite.testWriteAppend)
	t.Run("WriteObject_Sparse", suite.testWriteSparse)
	t.Run("WriteObject_PreservesTail", suite.testWritePreservesTail)
	t.Run("WriteObject_Large", suite.testWriteLarge)
	t.Run("TruncateObject_Shrink", suite.testTruncateShrink)
	t.Run("TruncateObject_Grow", suite.testTruncateGrow)
	t.Run("TruncateObject_NotFound", suite.testTruncateNotFound)
	t.Run("RemoveObject_Success", suite.testRemoveSuccess)
	t.Run("RemoveObject_Idempotent", suite.testRemoveIdempotent)
}

// ============================================================================
// WriteObject Tests
// ============================================================================

func (suite *StoreTestSuite) testWriteCreate(t *testing.T) {
	store := suite.NewStore()
	id := generateTestID("write-create")

	mustWrite(t, store, id, 0, []byte("Created via WriteObject"))

	assertObjectExists(t, store, id, true)
	assertObjectEquals(t, store, id, []byte("Created via WriteObject"))
}

func (suite *StoreTestSuite) testWriteOverwrite(t *testing.T) {
	store := suite.NewStore()
	id := generateTestID("write-overwrite")

	mustWrite(t, store, id, 0, []byte("Hello, World"))
	mustWrite(t, store, id, 7, []byte("Ceph!"))

	assertObjectEquals(t, store, id, []byte("Hello, Ceph!"))
}

func (suite *StoreTestSuite) testWriteAppend(t *testing.T) {
	store := suite.NewStore()
	id := generateTestID("write-append")

	mustWrite(t, store, id, 0, []byte("Hello"))
	mustWrite(t, store, id, 5, []byte(", World"))

	assertObjectEquals(t, store, id, []byte("Hello, World"))
}

func (suite *StoreTestSuite) testWriteSparse(t *testing.T) {
	store := suite.NewStore()
	id := generateTestID("write-sparse")

	// Write at offset 100 (should fill 0-99 with zeros)
	mustWrite(t, store, id, 100, []byte("Data"))

	assert.Equal(t, uint64(104), mustSize(t, store, id))

	data := mustRead(t, store, id, 0, 104)
	require.Len(t, data, 104)
	for i := 0; i < 100; i++ {
		if data[i] != 0 {
			t.Fatalf("byte %d should be zero, got %d", i, data[i])
		}
	}
	assert.Equal(t, []byte("Data"), data[100:])
}

func (suite *StoreTestSuite) testWritePreservesTail(t *testing.T) {
	store := suite.NewStore()
	id := generateTestID("write-tail")

	mustWrite(t, store, id, 0, []byte("0123456789"))
	mustWrite(t, store, id, 0, []byte("ab"))

	assertObjectEquals(t, store, id, []byte("ab23456789"))
}

func (suite *StoreTestSuite) testWriteLarge(t *testing.T) {
	store := suite.NewStore()
	id := generateTestID("write-large")

	data := generateTestData(1 << 20)
	mustWrite(t, store, id, 0, data)

	assert.Equal(t, uint64(len(data)), mustSize(t, store, id))
	assert.Equal(t, data[4096:8192], mustRead(t, store, id, 4096, 4096))
}

// ============================================================================
// TruncateObject Tests
// ============================================================================

func (suite *StoreTestSuite) testTruncateShrink(t *testing.T) {
	store := suite.NewStore()
	id := generateTestID("truncate-shrink")

	mustWrite(t, store, id, 0, []byte("Hello, World"))
	require.NoError(t, store.TruncateObject(testContext(), id, 5))

	assert.Equal(t, uint64(5), mustSize(t, store, id))
	assertObjectEquals(t, store, id, []byte("Hello"))
}

func (suite *StoreTestSuite) testTruncateGrow(t *testing.T) {
	store := suite.NewStore()
	id := generateTestID("truncate-grow")

	mustWrite(t, store, id, 0, []byte("Hi"))
	require.NoError(t, store.TruncateObject(testContext(), id, 6))

	assert.Equal(t, uint64(6), mustSize(t, store, id))
	assertObjectEquals(t, store, id, []byte{'H', 'i', 0, 0, 0, 0})
}

func (suite *StoreTestSuite) testTruncateNotFound(t *testing.T) {
	store := suite.NewStore()

	err := store.TruncateObject(testContext(), generateTestID("truncate-missing"), 10)
	AssertErrorIs(t, objectstore.ErrObjectNotFound, err)
}

// ============================================================================
// RemoveObject Tests
// ============================================================================

func (suite *StoreTestSuite) testRemoveSuccess(t *testing.T) {
	store := suite.NewStore()
	id := generateTestID("remove")

	mustWrite(t, store, id, 0, []byte("data"))
	require.NoError(t, store.RemoveObject(testContext(), id))

	assertObjectExists(t, store, id, false)

	_, err := store.ReadObject(testContext(), id, 0, 4)
	AssertErrorIs(t, objectstore.ErrObjectNotFound, err)
}

func (suite *StoreTestSuite) testRemoveIdempotent(t *testing.T) {
	store := suite.NewStore()
	id := generateTestID("remove-twice")

	require.NoError(t, store.RemoveObject(testContext(), id))

	mustWrite(t, store, id, 0, []byte("data"))
	require.NoError(t, store.RemoveObject(testContext(), id))
	require.NoError(t, store.RemoveObject(testContext(), id))
}
