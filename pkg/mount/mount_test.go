package mount

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/stripefs/pkg/config"
	"github.com/marmos91/stripefs/pkg/metadata"
	metaMemory "github.com/marmos91/stripefs/pkg/metadata/memory"
	"github.com/marmos91/stripefs/pkg/objectstore/memory"
	"github.com/marmos91/stripefs/pkg/objectstore/replicated"
)

const (
	testStripeUnit  = 65536
	testStripeCount = 2
	testObjectSize  = 131072
)

type testMount struct {
	*Mount
	meta    *metaMemory.MemoryMetadataStore
	objects *memory.MemoryObjectStore
}

// newTestMount mounts a handle over fresh in-memory stores with a layout
// of 64KiB units striped over two 128KiB objects.
func newTestMount(t *testing.T, opts ...Option) *testMount {
	t.Helper()
	ctx := context.Background()

	meta := metaMemory.NewMemoryMetadataStoreWithDefaults()
	objects, err := memory.NewMemoryObjectStore(ctx, memory.Config{})
	require.NoError(t, err)

	opts = append([]Option{WithMetadataStore(meta), WithObjectStore(objects)}, opts...)
	m := New("admin", opts...)
	require.NoError(t, m.ConfSet("layout.stripe_unit", "65536"))
	require.NoError(t, m.ConfSet("layout.stripe_count", "2"))
	require.NoError(t, m.ConfSet("layout.object_size", "131072"))
	require.NoError(t, m.Mount(ctx, "/"))

	t.Cleanup(func() {
		if m.IsMounted() {
			_ = m.Shutdown(context.Background())
		}
	})
	return &testMount{Mount: m, meta: meta, objects: objects}
}

// assertErrno checks that err is a *fs.PathError carrying errno.
func assertErrno(t *testing.T, errno syscall.Errno, err error) {
	t.Helper()
	require.Error(t, err)
	var pathErr *fs.PathError
	assert.True(t, errors.As(err, &pathErr), "expected *fs.PathError, got %T", err)
	assert.ErrorIs(t, err, errno)
}

// ============================================================================
// Lifecycle
// ============================================================================

func TestNew_DefaultID(t *testing.T) {
	m := New("")
	assert.Equal(t, DefaultID, m.ID())
	assert.NotEmpty(t, m.InstanceID())
	assert.NotEqual(t, m.InstanceID(), New("").InstanceID())

	id, err := m.ConfGet("client.id")
	require.NoError(t, err)
	assert.Equal(t, DefaultID, id)
}

func TestLifecycle_Transitions(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newGuardedMount(t)

	assert.Same(t, ErrNotMounted, m.Unmount(ctx))

	require.NoError(t, m.Mount(ctx, ""))
	assert.True(t, m.IsMounted())
	assert.Same(t, ErrAlreadyMounted, m.Mount(ctx, ""))
	assert.Same(t, ErrAlreadyMounted, m.Release())

	require.NoError(t, m.Unmount(ctx))
	assert.Equal(t, StateUnmounted, m.State())

	require.NoError(t, m.Mount(ctx, ""))
	require.NoError(t, m.Shutdown(ctx))
	assert.Equal(t, StateShutDown, m.State())

	assert.Same(t, ErrShutDown, m.Mount(ctx, ""))
	assert.Same(t, ErrShutDown, m.ConfSet("client.id", "other"))
	assert.NoError(t, m.Release())
	assert.Equal(t, StateShutDown, m.State())
}

func TestLifecycle_ReleaseUnmounted(t *testing.T) {
	m := New("admin")
	require.NoError(t, m.Release())
	assert.Equal(t, StateShutDown, m.State())
	assert.NoError(t, m.Release())
	assert.Same(t, ErrShutDown, m.Mount(context.Background(), ""))
}

func TestLifecycle_RemountKeepsInjectedStores(t *testing.T) {
	ctx := context.Background()
	tm := newTestMount(t)

	fd, err := tm.Open(ctx, "/keep", os.O_CREATE|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = tm.Write(ctx, fd, []byte("persisted"), 0)
	require.NoError(t, err)

	require.NoError(t, tm.Unmount(ctx))
	require.NoError(t, tm.Mount.Mount(ctx, ""))

	st, err := tm.Lstat(ctx, "/keep")
	require.NoError(t, err)
	assert.Equal(t, uint64(9), st.Size)

	// Descriptors do not survive an unmount.
	_, err = tm.Fstat(ctx, fd)
	assertErrno(t, syscall.EBADF, err)
}

func TestMount_Root(t *testing.T) {
	ctx := context.Background()
	tm := newTestMount(t)
	require.NoError(t, tm.Mkdirs(ctx, "/volumes/a", 0o755))
	fd, err := tm.Open(ctx, "/volumes/a/file", os.O_CREATE|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	require.NoError(t, tm.Close(fd))

	sub := New("admin", WithMetadataStore(tm.meta), WithObjectStore(tm.objects))
	require.NoError(t, sub.Mount(ctx, "/volumes/a"))
	defer sub.Shutdown(ctx)

	names, err := sub.Listdir(ctx, "/")
	require.NoError(t, err)
	assert.Equal(t, []string{"file"}, names)

	// ".." cannot escape the mount root.
	names, err = sub.Listdir(ctx, "/../..")
	require.NoError(t, err)
	assert.Equal(t, []string{"file"}, names)

	missing := New("admin", WithMetadataStore(tm.meta), WithObjectStore(tm.objects))
	assertErrno(t, syscall.ENOENT, missing.Mount(ctx, "/nope"))
	assert.Equal(t, StateUnmounted, missing.State())

	notDir := New("admin", WithMetadataStore(tm.meta), WithObjectStore(tm.objects))
	assertErrno(t, syscall.ENOTDIR, notDir.Mount(ctx, "/volumes/a/file"))
}

func TestMount_InvalidConfig(t *testing.T) {
	m, _, _ := newGuardedMount(t)
	require.NoError(t, m.ConfSet("layout.stripe_unit", "1000"))

	err := m.Mount(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "layout")
	assert.Equal(t, StateUnmounted, m.State())
}

func TestMount_FromConfiguration(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	cfg := config.GetDefaultConfig()
	cfg.Metadata.Type = "badger"
	cfg.Metadata.Badger = map[string]any{
		"db_path":        filepath.Join(dir, "meta"),
		"block_cache_mb": 8,
		"index_cache_mb": 8,
	}
	cfg.Objects.Type = "filesystem"
	cfg.Objects.Replication = 2
	cfg.Objects.Filesystem = map[string]any{"path": filepath.Join(dir, "objects")}

	m := New("admin", WithConfig(cfg))
	require.NoError(t, m.Mount(ctx, ""))

	fd, err := m.Open(ctx, "/f", os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	_, err = m.Write(ctx, fd, []byte("on disk"), 0)
	require.NoError(t, err)

	replication, err := m.GetFileReplication(fd)
	require.NoError(t, err)
	assert.Equal(t, 2, replication)
	require.NoError(t, m.Shutdown(ctx))

	for _, replica := range []string{"replica-0", "replica-1"} {
		entries, err := os.ReadDir(filepath.Join(dir, "objects", replica))
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	}

	// The stores were closed on shutdown, so a new handle can reopen them.
	again := New("admin", WithConfig(cfg))
	require.NoError(t, again.Mount(ctx, ""))
	defer again.Shutdown(ctx)

	st, err := again.Lstat(ctx, "/f")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), st.Size)
}

func TestMount_InjectedPool(t *testing.T) {
	ctx := context.Background()
	a, err := memory.NewMemoryObjectStore(ctx, memory.Config{})
	require.NoError(t, err)
	b, err := memory.NewMemoryObjectStore(ctx, memory.Config{})
	require.NoError(t, err)
	pool, err := replicated.NewPool("fast", a, b)
	require.NoError(t, err)

	m := New("admin", WithObjectStore(pool))
	require.NoError(t, m.Mount(ctx, ""))
	defer m.Shutdown(ctx)

	l, err := m.DefaultLayout()
	require.NoError(t, err)
	assert.Equal(t, "fast", l.Pool)

	fd, err := m.Open(ctx, "/f", os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	replication, err := m.GetFileReplication(fd)
	require.NoError(t, err)
	assert.Equal(t, 2, replication)

	_, err = m.Write(ctx, fd, []byte("x"), 0)
	require.NoError(t, err)
	for _, replica := range []*memory.MemoryObjectStore{a, b} {
		ids, err := replica.ListObjects(ctx)
		require.NoError(t, err)
		assert.Len(t, ids, 1)
	}
}

// ============================================================================
// Configuration
// ============================================================================

func TestConf_SetGet(t *testing.T) {
	m := New("admin")

	require.NoError(t, m.ConfSet("GC.Interval", "5m"))
	value, err := m.ConfGet("gc.interval")
	require.NoError(t, err)
	assert.Equal(t, "5m", value)

	assert.Error(t, m.ConfSet("bogus.key", "1"))
	assert.Error(t, m.ConfSet("layout", "1"))

	_, err = m.ConfGet("bogus.key")
	assert.Error(t, err)
}

func TestConf_ReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stripefs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("layout:\n  stripe_count: 3\n"), 0o644))

	m := New("admin")
	require.NoError(t, m.ConfReadFile(path))
	value, err := m.ConfGet("layout.stripe_count")
	require.NoError(t, err)
	assert.Equal(t, "3", value)

	assert.Error(t, m.ConfReadFile(filepath.Join(t.TempDir(), "missing.yaml")))
}

func TestConf_AppliesOnMount(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newGuardedMount(t)
	require.NoError(t, m.ConfSet("layout.stripe_count", "3"))
	require.NoError(t, m.ConfSet("client.uid", "1000"))
	require.NoError(t, m.Mount(ctx, ""))
	defer m.Shutdown(ctx)

	fd, err := m.Open(ctx, "/f", os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	count, err := m.GetFileStripeCount(fd)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	st, err := m.Fstat(ctx, fd)
	require.NoError(t, err)
	assert.Equal(t, uint32(1000), st.UID)
}

// ============================================================================
// Errors and metrics
// ============================================================================

func TestToErrno(t *testing.T) {
	tests := []struct {
		err  error
		want error
	}{
		{metadata.NewNotFoundError("x"), syscall.ENOENT},
		{metadata.NewError(metadata.ErrAlreadyExists, "", ""), syscall.EEXIST},
		{metadata.NewError(metadata.ErrNotEmpty, "", ""), syscall.ENOTEMPTY},
		{metadata.NewError(metadata.ErrIsDirectory, "", ""), syscall.EISDIR},
		{metadata.NewError(metadata.ErrNotDirectory, "", ""), syscall.ENOTDIR},
		{metadata.NewError(metadata.ErrInvalidArgument, "", ""), syscall.EINVAL},
		{metadata.NewError(metadata.ErrNoSpace, "", ""), syscall.ENOSPC},
		{metadata.NewError(metadata.ErrStaleHandle, "", ""), syscall.ESTALE},
		{syscall.EBADF, syscall.EBADF},
		{context.Canceled, context.Canceled},
		{metadata.NewIOError("read", errors.New("disk")), syscall.EIO},
	}
	for _, tt := range tests {
		assert.ErrorIs(t, toErrno(tt.err), tt.want, "mapping %v", tt.err)
	}

	boom := errors.New("backend exploded")
	mapped := toErrno(fmt.Errorf("write object: %w", boom))
	assert.ErrorIs(t, mapped, syscall.EIO)
	assert.ErrorIs(t, mapped, boom)
}

type recordingMetrics struct {
	ops   map[string]int
	bytes map[string]int64
	open  int
}

func (r *recordingMetrics) RecordOperation(op string, _ time.Duration, _ error) { r.ops[op]++ }
func (r *recordingMetrics) RecordBytes(direction string, n int64)             { r.bytes[direction] += n }
func (r *recordingMetrics) SetOpenFiles(n int)                                { r.open = n }

func TestMetrics_Recorded(t *testing.T) {
	ctx := context.Background()
	rec := &recordingMetrics{ops: map[string]int{}, bytes: map[string]int64{}}
	tm := newTestMount(t, WithMetrics(rec))

	fd, err := tm.Open(ctx, "/m", os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.open)

	_, err = tm.Write(ctx, fd, []byte("hello"), 0)
	require.NoError(t, err)
	_, err = tm.Read(ctx, fd, make([]byte, 5), 0)
	require.NoError(t, err)
	require.NoError(t, tm.Close(fd))

	assert.Equal(t, 1, rec.ops["open"])
	assert.Equal(t, 1, rec.ops["write"])
	assert.Equal(t, int64(5), rec.bytes["write"])
	assert.Equal(t, int64(5), rec.bytes["read"])
	assert.Equal(t, 0, rec.open)
}
