package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug": LevelDebug,
		"INFO":  LevelInfo,
		"Warn":  LevelWarn,
		"error": LevelError,
	}
	for name, want := range cases {
		got, err := ParseLevel(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestSetLevelIgnoresUnknown(t *testing.T) {
	SetLevel("ERROR")
	defer SetLevel("INFO")

	SetLevel("nonsense")
	assert.Equal(t, LevelError, GetLevel())
}

func TestConfigureFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stripefs.log")

	require.NoError(t, Configure("DEBUG", "json", path))
	defer func() { _ = Configure("INFO", "text", "stdout") }()

	Debug("opened fd=%d", 3)
	Info("mounted id=%s", "admin")
	require.NoError(t, Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	out := string(data)
	assert.True(t, strings.Contains(out, `"msg":"opened fd=3"`), out)
	assert.True(t, strings.Contains(out, `"msg":"mounted id=admin"`), out)
}

func TestConfigureClosesPreviousFile(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.log")
	second := filepath.Join(dir, "second.log")

	require.NoError(t, Configure("INFO", "text", first))
	defer func() { _ = Configure("INFO", "text", "stdout") }()

	mu.RLock()
	firstFile := outFile
	mu.RUnlock()
	require.NotNil(t, firstFile)

	require.NoError(t, Configure("INFO", "text", second))
	Info("after switch")
	require.NoError(t, Sync())

	_, err := firstFile.Write([]byte("late\n"))
	assert.ErrorIs(t, err, os.ErrClosed)

	data, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.Contains(t, string(data), "after switch")

	data, err = os.ReadFile(first)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "after switch")

	// Going back to a standard stream closes the last file too.
	require.NoError(t, Configure("INFO", "text", "stderr"))
	mu.RLock()
	assert.Nil(t, outFile)
	mu.RUnlock()
}

func TestConfigureRejectsBadInput(t *testing.T) {
	assert.Error(t, Configure("LOUD", "text", "stdout"))
	assert.Error(t, Configure("INFO", "xml", "stdout"))
}
