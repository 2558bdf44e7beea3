package testing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/stripefs/pkg/objectstore"
)

// AssertErrorIs checks if the error matches the expected error using errors.Is.
func AssertErrorIs(t *testing.T, expected error, actual error) {
	t.Helper()
	if !errors.Is(actual, expected) {
		t.Errorf("Expected error %v, got %v", expected, actual)
	}
}

// mustWrite writes data at offset and fails the test if it errors.
func mustWrite(t *testing.T, store objectstore.ObjectStore, id objectstore.ObjectID, offset uint64, data []byte) {
	t.Helper()
	err := store.WriteObject(testContext(), id, offset, data)
	require.NoError(t, err, "WriteObject should succeed")
}

// mustRead reads a range and fails the test if it errors.
func mustRead(t *testing.T, store objectstore.ObjectStore, id objectstore.ObjectID, offset, length uint64) []byte {
	t.Helper()
	data, err := store.ReadObject(testContext(), id, offset, length)
	require.NoError(t, err, "ReadObject should succeed")
	return data
}

// mustSize stats an object and returns its size.
func mustSize(t *testing.T, store objectstore.ObjectStore, id objectstore.ObjectID) uint64 {
	t.Helper()
	info, err := store.StatObject(testContext(), id)
	require.NoError(t, err, "StatObject should succeed")
	return info.Size
}

// assertObjectExists checks whether StatObject finds the object.
func assertObjectExists(t *testing.T, store objectstore.ObjectStore, id objectstore.ObjectID, expected bool) {
	t.Helper()
	_, err := store.StatObject(testContext(), id)
	if expected {
		assert.NoError(t, err, "object %s should exist", id)
		return
	}
	AssertErrorIs(t, objectstore.ErrObjectNotFound, err)
}

// assertObjectEquals reads the whole object and compares it.
func assertObjectEquals(t *testing.T, store objectstore.ObjectStore, id objectstore.ObjectID, expected []byte) {
	t.Helper()
	actual := mustRead(t, store, id, 0, uint64(len(expected))+64)
	assert.Equal(t, expected, actual, "Object data mismatch")
}

// generateTestData creates test data of specified size.
func generateTestData(size int) []byte {
	data := make([]byte, size)
	for i := 0; i < size; i++ {
		data[i] = byte(i % 256)
	}
	return data
}

// generateTestID generates an object ID shaped like a data object name.
func generateTestID(name string) objectstore.ObjectID {
	return objectstore.ObjectID("test-" + name + ".00000000")
}
