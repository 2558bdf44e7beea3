package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/stripefs/pkg/config"
)

// writeTestConfig writes a config using on-disk stores under dir so that
// state survives between command invocations.
func writeTestConfig(t *testing.T, dir string) string {
	t.Helper()

	cfg := config.GetDefaultConfig()
	cfg.Logging.Output = "stderr"
	cfg.Metadata.Type = "badger"
	cfg.Metadata.Badger = map[string]any{"db_path": filepath.Join(dir, "meta")}
	cfg.Objects.Type = "filesystem"
	cfg.Objects.Filesystem = map[string]any{"path": filepath.Join(dir, "objects")}

	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func run(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", configPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCLI_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir)

	local := filepath.Join(dir, "local.txt")
	require.NoError(t, os.WriteFile(local, []byte("striped hello\n"), 0o644))

	_, err := run(t, cfgPath, "mkdir", "-p", "/a/b")
	require.NoError(t, err)

	out, err := run(t, cfgPath, "put", local, "/a/b/file")
	require.NoError(t, err)
	assert.Contains(t, out, "14 bytes written")

	out, err = run(t, cfgPath, "ls", "/a/b")
	require.NoError(t, err)
	assert.Equal(t, "file\n", out)

	out, err = run(t, cfgPath, "get", "/a/b/file", "-")
	require.NoError(t, err)
	assert.Equal(t, "striped hello\n", out)

	out, err = run(t, cfgPath, "layout", "/a/b/file")
	require.NoError(t, err)
	assert.Contains(t, out, "replication:  1")

	out, err = run(t, cfgPath, "probe", "/a/b/file")
	require.NoError(t, err)
	assert.Equal(t, "recorded 14, probed 14\n", out)

	_, err = run(t, cfgPath, "mv", "/a/b/file", "/a/renamed")
	require.NoError(t, err)
	_, err = run(t, cfgPath, "rm", "/a/renamed")
	require.NoError(t, err)

	out, err = run(t, cfgPath, "gc", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "orphaned=0")

	_, err = run(t, cfgPath, "rmdir", "/a/b", "/a")
	require.NoError(t, err)

	_, err = run(t, cfgPath, "stat", "/a")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "no such file"), err.Error())
}

func TestCLI_Init(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stripefs.yaml")

	out, err := run(t, "", "init", "--path", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	_, err = run(t, "", "init", "--path", path)
	assert.Error(t, err)

	_, err = config.Load(path)
	require.NoError(t, err)
}
