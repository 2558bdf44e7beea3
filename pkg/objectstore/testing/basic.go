package testing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/stripefs/pkg/objectstore"
)

// RunBasicTests executes read and stat tests.
func (suite *StoreTestSuite) RunBasicTests(t *testing.T) {
	t.Run("ReadObject_NotFound", suite.testReadNotFound)
	t.Run("ReadObject_Range", suite.testReadRange)
	t.Run("ReadObject_ShortAtEnd", suite.testReadShortAtEnd)
	t.Run("ReadObject_PastEnd", suite.testReadPastEnd)
	t.Run("StatObject_NotFound", suite.testStatNotFound)
	t.Run("StatObject_Size", suite.testStatSize)
}

// ============================================================================
// ReadObject Tests
// ============================================================================

func (suite *StoreTestSuite) testReadNotFound(t *testing.T) {
	store := suite.NewStore()

	_, err := store.ReadObject(testContext(), generateTestID("missing"), 0, 10)
	AssertErrorIs(t, objectstore.ErrObjectNotFound, err)
}

func (suite *StoreTestSuite) testReadRange(t *testing.T) {
	store := suite.NewStore()
	id := generateTestID("read-range")

	mustWrite(t, store, id, 0, []byte("Hello, World!"))

	assert.Equal(t, []byte("World"), mustRead(t, store, id, 7, 5))
	assert.Equal(t, []byte("Hello"), mustRead(t, store, id, 0, 5))
}

func (suite *StoreTestSuite) testReadShortAtEnd(t *testing.T) {
	store := suite.NewStore()
	id := generateTestID("read-short")

	mustWrite(t, store, id, 0, []byte("abcdef"))

	assert.Equal(t, []byte("ef"), mustRead(t, store, id, 4, 100))
}

func (suite *StoreTestSuite) testReadPastEnd(t *testing.T) {
	store := suite.NewStore()
	id := generateTestID("read-past-end")

	mustWrite(t, store, id, 0, []byte("abc"))

	data := mustRead(t, store, id, 3, 10)
	assert.Empty(t, data)

	data = mustRead(t, store, id, 1000, 10)
	assert.Empty(t, data)
}

// ============================================================================
// StatObject Tests
// ============================================================================

func (suite *StoreTestSuite) testStatNotFound(t *testing.T) {
	store := suite.NewStore()

	_, err := store.StatObject(testContext(), generateTestID("stat-missing"))
	AssertErrorIs(t, objectstore.ErrObjectNotFound, err)
}

func (suite *StoreTestSuite) testStatSize(t *testing.T) {
	store := suite.NewStore()
	id := generateTestID("stat-size")

	mustWrite(t, store, id, 0, generateTestData(1234))

	info, err := store.StatObject(testContext(), id)
	require.NoError(t, err)
	assert.Equal(t, id, info.ID)
	assert.Equal(t, uint64(1234), info.Size)
	assert.False(t, info.ModTime.IsZero())
}
