package mount

import (
	"bytes"
	"context"
	"math/rand"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/stripefs/pkg/layout"
)

// ============================================================================
// Open and close
// ============================================================================

func TestOpen_Flags(t *testing.T) {
	ctx := context.Background()
	tm := newTestMount(t)

	_, err := tm.Open(ctx, "/f", os.O_RDONLY, 0)
	assertErrno(t, syscall.ENOENT, err)

	fd, err := tm.Open(ctx, "/f", os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	require.NoError(t, err)
	_, err = tm.Write(ctx, fd, []byte("hello"), 0)
	require.NoError(t, err)
	require.NoError(t, tm.Close(fd))

	fd, err = tm.Open(ctx, "/f", os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	assert.Equal(t, -1, fd)
	assertErrno(t, syscall.EEXIST, err)

	// O_CREATE without O_EXCL opens the existing file untouched.
	fd, err = tm.Open(ctx, "/f", os.O_CREATE|os.O_RDONLY, 0o600)
	require.NoError(t, err)
	st, err := tm.Fstat(ctx, fd)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), st.Size)
	assert.Equal(t, uint32(ModeRegular|0o640), st.Mode)

	_, err = tm.Write(ctx, fd, []byte("x"), 0)
	assertErrno(t, syscall.EBADF, err)
	assertErrno(t, syscall.EBADF, tm.Ftruncate(ctx, fd, 0))
	require.NoError(t, tm.Close(fd))

	_, err = tm.Open(ctx, "/f", os.O_WRONLY|os.O_RDWR, 0)
	assertErrno(t, syscall.EINVAL, err)

	_, err = tm.Open(ctx, "/missing/f", os.O_CREATE|os.O_WRONLY, 0o644)
	assertErrno(t, syscall.ENOENT, err)
}

func TestOpen_Truncate(t *testing.T) {
	ctx := context.Background()
	tm := newTestMount(t)
	tm.writeFile(t, "/f", bytes.Repeat([]byte("a"), 3*testStripeUnit))

	fd, err := tm.Open(ctx, "/f", os.O_WRONLY|os.O_TRUNC, 0)
	require.NoError(t, err)
	st, err := tm.Fstat(ctx, fd)
	require.NoError(t, err)
	assert.Zero(t, st.Size)
	assert.Equal(t, 0, tm.objectCount(t))

	// O_TRUNC is ignored for read-only opens.
	tm.writeFile(t, "/g", []byte("keep"))
	fd, err = tm.Open(ctx, "/g", os.O_RDONLY|os.O_TRUNC, 0)
	require.NoError(t, err)
	st, err = tm.Fstat(ctx, fd)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), st.Size)
}

func TestOpen_Directory(t *testing.T) {
	ctx := context.Background()
	tm := newTestMount(t)
	require.NoError(t, tm.Mkdir(ctx, "/d", 0o755))

	_, err := tm.Open(ctx, "/d", os.O_RDWR, 0)
	assertErrno(t, syscall.EISDIR, err)
	_, err = tm.Open(ctx, "/", os.O_WRONLY, 0)
	assertErrno(t, syscall.EISDIR, err)

	fd, err := tm.Open(ctx, "/d", os.O_RDONLY, 0)
	require.NoError(t, err)
	st, err := tm.Fstat(ctx, fd)
	require.NoError(t, err)
	assert.True(t, st.IsDir())

	_, err = tm.Read(ctx, fd, make([]byte, 4), 0)
	assertErrno(t, syscall.EISDIR, err)
}

func TestOpen_DescriptorNumbers(t *testing.T) {
	ctx := context.Background()
	tm := newTestMount(t)

	var fds []int
	for range 3 {
		fd, err := tm.Open(ctx, "/f", os.O_CREATE|os.O_RDWR, 0o644)
		require.NoError(t, err)
		fds = append(fds, fd)
	}
	assert.Equal(t, []int{3, 4, 5}, fds)

	// The lowest free number is reused.
	require.NoError(t, tm.Close(4))
	fd, err := tm.Open(ctx, "/f", os.O_RDONLY, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, fd)

	assertErrno(t, syscall.EBADF, tm.Close(42))
	require.NoError(t, tm.Close(3))
	assertErrno(t, syscall.EBADF, tm.Close(3))
}

// ============================================================================
// Descriptor I/O
// ============================================================================

func TestReadWrite_Positions(t *testing.T) {
	ctx := context.Background()
	tm := newTestMount(t)

	fd, err := tm.Open(ctx, "/f", os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)

	// Negative offsets use and advance the descriptor position.
	_, err = tm.Write(ctx, fd, []byte("hello "), -1)
	require.NoError(t, err)
	_, err = tm.Write(ctx, fd, []byte("world"), -1)
	require.NoError(t, err)

	pos, err := tm.Lseek(ctx, fd, 0, SeekCur)
	require.NoError(t, err)
	assert.Equal(t, int64(11), pos)

	// Explicit offsets leave the position alone.
	buf := make([]byte, 5)
	n, err := tm.Read(ctx, fd, buf, 6)
	require.NoError(t, err)
	assert.Equal(t, "world", string(buf[:n]))

	_, err = tm.Lseek(ctx, fd, 0, SeekSet)
	require.NoError(t, err)
	n, err = tm.Read(ctx, fd, buf, -1)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
	n, err = tm.Read(ctx, fd, buf, -1)
	require.NoError(t, err)
	assert.Equal(t, " worl", string(buf[:n]))
	n, err = tm.Read(ctx, fd, buf, -1)
	require.NoError(t, err)
	assert.Equal(t, "d", string(buf[:n]))

	n, err = tm.Read(ctx, fd, buf, -1)
	require.NoError(t, err)
	assert.Zero(t, n, "end of file")

	n, err = tm.Read(ctx, fd, buf, 1000)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWrite_Sparse(t *testing.T) {
	ctx := context.Background()
	tm := newTestMount(t)

	fd, err := tm.Open(ctx, "/f", os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	_, err = tm.Write(ctx, fd, []byte("end"), 100)
	require.NoError(t, err)

	st, err := tm.Fstat(ctx, fd)
	require.NoError(t, err)
	assert.Equal(t, uint64(103), st.Size)

	buf := make([]byte, 200)
	n, err := tm.Read(ctx, fd, buf, 0)
	require.NoError(t, err)
	require.Equal(t, 103, n)
	assert.Equal(t, make([]byte, 100), buf[:100])
	assert.Equal(t, "end", string(buf[100:103]))
}

func TestWrite_Append(t *testing.T) {
	ctx := context.Background()
	tm := newTestMount(t)
	tm.writeFile(t, "/log", []byte("one\n"))

	fd, err := tm.Open(ctx, "/log", os.O_WRONLY|os.O_APPEND, 0)
	require.NoError(t, err)

	// The offset is ignored in append mode.
	_, err = tm.Write(ctx, fd, []byte("two\n"), 0)
	require.NoError(t, err)
	_, err = tm.Write(ctx, fd, []byte("three\n"), -1)
	require.NoError(t, err)

	_, err = tm.Read(ctx, fd, make([]byte, 4), 0)
	assertErrno(t, syscall.EBADF, err)
	require.NoError(t, tm.Close(fd))

	fd, err = tm.Open(ctx, "/log", os.O_RDONLY, 0)
	require.NoError(t, err)
	buf := make([]byte, 64)
	n, err := tm.Read(ctx, fd, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\nthree\n", string(buf[:n]))
}

func TestReadWrite_AcrossObjects(t *testing.T) {
	ctx := context.Background()
	tm := newTestMount(t)

	data := make([]byte, 3*testObjectSize*testStripeCount+12345)
	rand.New(rand.NewSource(1)).Read(data)

	fd, err := tm.Open(ctx, "/big", os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	n, err := tm.Write(ctx, fd, data, 0)
	require.NoError(t, err)
	require.Equal(t, len(data), n)

	got := make([]byte, len(data))
	n, err = tm.Read(ctx, fd, got, 0)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	assert.True(t, bytes.Equal(data, got))

	// An unaligned window spanning several stripe units.
	off := testStripeUnit - 17
	window := make([]byte, 2*testStripeUnit+40)
	n, err = tm.Read(ctx, fd, window, int64(off))
	require.NoError(t, err)
	assert.Equal(t, data[off:off+n], window[:n])

	// Rewriting in the middle leaves the surroundings intact.
	patch := bytes.Repeat([]byte{0xee}, testStripeUnit)
	_, err = tm.Write(ctx, fd, patch, int64(off))
	require.NoError(t, err)
	copy(data[off:], patch)

	n, err = tm.Read(ctx, fd, got, 0)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	assert.True(t, bytes.Equal(data, got))

	ids, err := tm.objects.ListObjects(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, int(layout.ObjectCount(layout.FileLayout{
		StripeUnit:  testStripeUnit,
		StripeCount: testStripeCount,
		ObjectSize:  testObjectSize,
	}, uint64(len(data)))))
}

func TestLseek(t *testing.T) {
	ctx := context.Background()
	tm := newTestMount(t)
	tm.writeFile(t, "/f", make([]byte, 100))

	fd, err := tm.Open(ctx, "/f", os.O_RDONLY, 0)
	require.NoError(t, err)

	pos, err := tm.Lseek(ctx, fd, 10, SeekSet)
	require.NoError(t, err)
	assert.Equal(t, int64(10), pos)

	pos, err = tm.Lseek(ctx, fd, 5, SeekCur)
	require.NoError(t, err)
	assert.Equal(t, int64(15), pos)

	pos, err = tm.Lseek(ctx, fd, -20, SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(80), pos)

	// Seeking past the end is allowed.
	pos, err = tm.Lseek(ctx, fd, 50, SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(150), pos)

	_, err = tm.Lseek(ctx, fd, -1, SeekSet)
	assertErrno(t, syscall.EINVAL, err)
	_, err = tm.Lseek(ctx, fd, 0, 7)
	assertErrno(t, syscall.EINVAL, err)

	pos, err = tm.Lseek(ctx, fd, 0, SeekCur)
	require.NoError(t, err)
	assert.Equal(t, int64(150), pos, "failed seeks keep the position")

	_, err = tm.Lseek(ctx, 99, 0, SeekSet)
	assertErrno(t, syscall.EBADF, err)
}

func TestFtruncate(t *testing.T) {
	ctx := context.Background()
	tm := newTestMount(t)

	fd, err := tm.Open(ctx, "/f", os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	_, err = tm.Write(ctx, fd, bytes.Repeat([]byte("q"), 3*testStripeUnit), 0)
	require.NoError(t, err)

	require.NoError(t, tm.Ftruncate(ctx, fd, 5))
	st, err := tm.Fstat(ctx, fd)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), st.Size)
	assert.Equal(t, 1, tm.objectCount(t))

	require.NoError(t, tm.Ftruncate(ctx, fd, 8))
	buf := make([]byte, 16)
	n, err := tm.Read(ctx, fd, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("qqqqq\x00\x00\x00"), buf[:n])

	assertErrno(t, syscall.EINVAL, tm.Ftruncate(ctx, fd, -1))
	assertErrno(t, syscall.EBADF, tm.Ftruncate(ctx, 99, 0))
}

func TestFsync(t *testing.T) {
	ctx := context.Background()
	tm := newTestMount(t)

	fd, err := tm.Open(ctx, "/f", os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	require.NoError(t, tm.Fsync(ctx, fd, false))
	require.NoError(t, tm.Fsync(ctx, fd, true))
	assertErrno(t, syscall.EBADF, tm.Fsync(ctx, 99, false))

	// The file is gone once unlinked, even while still open.
	require.NoError(t, tm.Unlink(ctx, "/f"))
	assertErrno(t, syscall.ENOENT, tm.Fsync(ctx, fd, false))
}

// ============================================================================
// Layout
// ============================================================================

func TestLayout_FileGetters(t *testing.T) {
	ctx := context.Background()
	tm := newTestMount(t)

	fd, err := tm.Open(ctx, "/f", os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)

	unit, err := tm.GetFileStripeUnit(fd)
	require.NoError(t, err)
	assert.Equal(t, testStripeUnit, unit)

	count, err := tm.GetFileStripeCount(fd)
	require.NoError(t, err)
	assert.Equal(t, testStripeCount, count)

	size, err := tm.GetFileObjectSize(fd)
	require.NoError(t, err)
	assert.Equal(t, testObjectSize, size)

	pool, err := tm.GetFilePool(fd)
	require.NoError(t, err)
	assert.Equal(t, layout.DefaultPool, pool)

	replication, err := tm.GetFileReplication(fd)
	require.NoError(t, err)
	assert.Equal(t, 1, replication)

	unit, err = tm.GetFileStripeUnit(99)
	assert.Equal(t, -1, unit)
	assertErrno(t, syscall.EBADF, err)
}

func TestLayout_SetDefaults(t *testing.T) {
	ctx := context.Background()
	tm := newTestMount(t)

	require.NoError(t, tm.SetDefaultFileStripeUnit(1<<20))
	require.NoError(t, tm.SetDefaultFileStripeCount(4))
	require.NoError(t, tm.SetDefaultObjectSize(4<<20))

	fd, err := tm.Open(ctx, "/new", os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	unit, err := tm.GetFileStripeUnit(fd)
	require.NoError(t, err)
	assert.Equal(t, 1<<20, unit)
	count, err := tm.GetFileStripeCount(fd)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	// Existing files keep the layout they were created with.
	tm.writeFile(t, "/old", nil)
	require.NoError(t, tm.SetDefaultFileStripeCount(8))
	fd, err = tm.Open(ctx, "/old", os.O_RDONLY, 0)
	require.NoError(t, err)
	count, err = tm.GetFileStripeCount(fd)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	for name, err := range map[string]error{
		"unit":       tm.SetDefaultFileStripeUnit(0),
		"count":      tm.SetDefaultFileStripeCount(-1),
		"objectSize": tm.SetDefaultObjectSize(0),
		"pool":       tm.SetDefaultFilePool(""),
	} {
		assert.ErrorIs(t, err, syscall.EINVAL, name)
	}

	l, err := tm.DefaultLayout()
	require.NoError(t, err)
	assert.Equal(t, uint32(8), l.StripeCount)
}

func TestLayout_InvalidDefaultRejectedOnCreate(t *testing.T) {
	ctx := context.Background()
	tm := newTestMount(t)

	// A unit that does not divide the object size is accepted by the
	// setter and refused when a file is created with it.
	require.NoError(t, tm.SetDefaultFileStripeUnit(testStripeUnit+1))
	_, err := tm.Open(ctx, "/f", os.O_CREATE|os.O_RDWR, 0o644)
	assertErrno(t, syscall.EINVAL, err)

	_, err = tm.Lstat(ctx, "/f")
	assertErrno(t, syscall.ENOENT, err)

	require.NoError(t, tm.SetDefaultFileStripeUnit(testStripeUnit))
	require.NoError(t, tm.SetDefaultFilePool("elsewhere"))
	_, err = tm.Open(ctx, "/f", os.O_CREATE|os.O_RDWR, 0o644)
	assertErrno(t, syscall.EINVAL, err)
}

func TestOpenWithLayout(t *testing.T) {
	ctx := context.Background()
	tm := newTestMount(t)

	l := layout.FileLayout{
		StripeUnit:  layout.MinStripeUnit,
		StripeCount: 3,
		ObjectSize:  2 * layout.MinStripeUnit,
		Pool:        layout.DefaultPool,
	}
	fd, err := tm.OpenWithLayout(ctx, "/f", os.O_CREATE|os.O_RDWR, 0o644, l)
	require.NoError(t, err)

	data := bytes.Repeat([]byte("0123456789abcdef"), 5*layout.MinStripeUnit/16+1)
	_, err = tm.Write(ctx, fd, data, 0)
	require.NoError(t, err)
	assert.Equal(t, int(layout.ObjectCount(l, uint64(len(data)))), tm.objectCount(t))

	got := make([]byte, len(data))
	n, err := tm.Read(ctx, fd, got, 0)
	require.NoError(t, err)
	assert.Equal(t, data, got[:n])

	size, err := tm.GetFileObjectSize(fd)
	require.NoError(t, err)
	assert.Equal(t, 2*layout.MinStripeUnit, size)

	bad := l
	bad.Pool = "other"
	_, err = tm.OpenWithLayout(ctx, "/g", os.O_CREATE|os.O_RDWR, 0o644, bad)
	assertErrno(t, syscall.EINVAL, err)

	bad = l
	bad.StripeCount = 0
	_, err = tm.OpenWithLayout(ctx, "/g", os.O_CREATE|os.O_RDWR, 0o644, bad)
	assertErrno(t, syscall.EINVAL, err)
}
