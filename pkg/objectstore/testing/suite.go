package testing

import (
	"context"
	"testing"

	"github.com/marmos91/stripefs/pkg/objectstore"
)

// StoreTestSuite is a comprehensive test suite for ObjectStore
// implementations. It tests the interface contract, not implementation
// details, so every backend (memory, filesystem, S3, replicated pool) runs
// the same checks.
//
// Usage:
//
//	func TestMyObjectStore(t *testing.T) {
//	    suite := &objecttesting.StoreTestSuite{
//	        NewStore: func() objectstore.ObjectStore {
//	            return mystore.New()
//	        },
//	    }
//	    suite.Run(t)
//	}
type StoreTestSuite struct {
	// NewStore is a factory function that creates a fresh ObjectStore
	// instance for each test. This ensures test isolation.
	NewStore func() objectstore.ObjectStore
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("BasicOperations", suite.RunBasicTests)
	t.Run("WriteOperations", suite.RunWriteTests)
	t.Run("GarbageCollection", suite.RunGCTests)
	t.Run("Statistics", suite.RunStatsTests)
}

// testContext returns a standard test context.
func testContext() context.Context {
	return context.Background()
}
