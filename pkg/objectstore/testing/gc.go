package testing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/stripefs/pkg/objectstore"
)

// RunGCTests executes all GarbageCollectableStore operation tests.
func (suite *StoreTestSuite) RunGCTests(t *testing.T) {
	t.Run("ListObjects_Empty", suite.testListEmpty)
	t.Run("ListObjects_Multiple", suite.testListMultiple)
	t.Run("RemoveBatch_Empty", suite.testRemoveBatchEmpty)
	t.Run("RemoveBatch_Multiple", suite.testRemoveBatchMultiple)
	t.Run("RemoveBatch_MissingIDs", suite.testRemoveBatchMissing)
}

// RunStatsTests executes all storage statistics tests.
func (suite *StoreTestSuite) RunStatsTests(t *testing.T) {
	t.Run("GetStorageStats_Empty", suite.testStatsEmpty)
	t.Run("GetStorageStats_WithObjects", suite.testStatsWithObjects)
	t.Run("GetStorageStats_AfterRemove", suite.testStatsAfterRemove)
}

// ============================================================================
// ListObjects Tests
// ============================================================================

func (suite *StoreTestSuite) testListEmpty(t *testing.T) {
	store := suite.NewStore()
	gc, ok := store.(objectstore.GarbageCollectableStore)
	if !ok {
		t.Skip("Store does not implement GarbageCollectableStore")
	}

	ids, err := gc.ListObjects(testContext())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func (suite *StoreTestSuite) testListMultiple(t *testing.T) {
	store := suite.NewStore()
	gc, ok := store.(objectstore.GarbageCollectableStore)
	if !ok {
		t.Skip("Store does not implement GarbageCollectableStore")
	}

	ids := []objectstore.ObjectID{
		generateTestID("list-1"),
		generateTestID("list-2"),
		generateTestID("list-3"),
	}
	for _, id := range ids {
		mustWrite(t, store, id, 0, []byte("data"))
	}

	all, err := gc.ListObjects(testContext())
	require.NoError(t, err)
	assert.ElementsMatch(t, ids, all)
}

// ============================================================================
// RemoveBatch Tests
// ============================================================================

func (suite *StoreTestSuite) testRemoveBatchEmpty(t *testing.T) {
	store := suite.NewStore()
	gc, ok := store.(objectstore.GarbageCollectableStore)
	if !ok {
		t.Skip("Store does not implement GarbageCollectableStore")
	}

	failures, err := gc.RemoveBatch(testContext(), []objectstore.ObjectID{})
	require.NoError(t, err)
	assert.Empty(t, failures)
}

func (suite *StoreTestSuite) testRemoveBatchMultiple(t *testing.T) {
	store := suite.NewStore()
	gc, ok := store.(objectstore.GarbageCollectableStore)
	if !ok {
		t.Skip("Store does not implement GarbageCollectableStore")
	}

	ids := []objectstore.ObjectID{
		generateTestID("batch-1"),
		generateTestID("batch-2"),
		generateTestID("batch-3"),
	}
	for _, id := range ids {
		mustWrite(t, store, id, 0, []byte("data"))
	}
	keep := generateTestID("batch-keep")
	mustWrite(t, store, keep, 0, []byte("data"))

	failures, err := gc.RemoveBatch(testContext(), ids)
	require.NoError(t, err)
	assert.Empty(t, failures)

	for _, id := range ids {
		assertObjectExists(t, store, id, false)
	}
	assertObjectExists(t, store, keep, true)
}

func (suite *StoreTestSuite) testRemoveBatchMissing(t *testing.T) {
	store := suite.NewStore()
	gc, ok := store.(objectstore.GarbageCollectableStore)
	if !ok {
		t.Skip("Store does not implement GarbageCollectableStore")
	}

	existing := generateTestID("batch-exists")
	mustWrite(t, store, existing, 0, []byte("data"))

	// Removal is idempotent, so missing IDs are not failures.
	failures, err := gc.RemoveBatch(testContext(), []objectstore.ObjectID{
		existing,
		generateTestID("batch-never-written"),
	})
	require.NoError(t, err)
	assert.Empty(t, failures)
	assertObjectExists(t, store, existing, false)
}

// ============================================================================
// GetStorageStats Tests
// ============================================================================

func (suite *StoreTestSuite) testStatsEmpty(t *testing.T) {
	store := suite.NewStore()

	stats, err := store.GetStorageStats(testContext())
	require.NoError(t, err)
	require.NotNil(t, stats)

	assert.Equal(t, uint64(0), stats.UsedSize)
	assert.Equal(t, uint64(0), stats.ObjectCount)
	assert.Equal(t, uint64(0), stats.AverageSize)
}

func (suite *StoreTestSuite) testStatsWithObjects(t *testing.T) {
	store := suite.NewStore()

	mustWrite(t, store, generateTestID("stats-1"), 0, generateTestData(100))
	mustWrite(t, store, generateTestID("stats-2"), 0, generateTestData(200))
	mustWrite(t, store, generateTestID("stats-3"), 0, generateTestData(300))

	stats, err := store.GetStorageStats(testContext())
	require.NoError(t, err)

	assert.Equal(t, uint64(600), stats.UsedSize)
	assert.Equal(t, uint64(3), stats.ObjectCount)
	assert.Equal(t, uint64(200), stats.AverageSize)
}

func (suite *StoreTestSuite) testStatsAfterRemove(t *testing.T) {
	store := suite.NewStore()

	id1 := generateTestID("stats-remove-1")
	id2 := generateTestID("stats-remove-2")
	mustWrite(t, store, id1, 0, generateTestData(100))
	mustWrite(t, store, id2, 0, generateTestData(50))

	require.NoError(t, store.RemoveObject(testContext(), id1))

	stats, err := store.GetStorageStats(testContext())
	require.NoError(t, err)
	assert.Equal(t, uint64(50), stats.UsedSize)
	assert.Equal(t, uint64(1), stats.ObjectCount)
}
