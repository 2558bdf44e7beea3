package mount

import (
	"context"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/marmos91/stripefs/pkg/layout"
	"github.com/marmos91/stripefs/pkg/metadata"
)

// firstFD is the lowest descriptor number handed out.
const firstFD = 3

const accessModeMask = os.O_RDONLY | os.O_WRONLY | os.O_RDWR

// openFile is the state behind a descriptor. Its mutex serializes
// position updates and I/O issued through the same descriptor.
type openFile struct {
	mu     sync.Mutex
	ino    uint64
	path   string
	flags  int
	pos    int64
	layout layout.FileLayout
}

func (f *openFile) readable() bool {
	return f.flags&accessModeMask != os.O_WRONLY
}

func (f *openFile) writable() bool {
	mode := f.flags & accessModeMask
	return mode == os.O_WRONLY || mode == os.O_RDWR
}

// fileTable maps descriptor numbers to open files.
type fileTable struct {
	mu    sync.Mutex
	files map[int]*openFile
}

func newFileTable() *fileTable {
	return &fileTable{files: make(map[int]*openFile)}
}

// add registers f under the lowest free descriptor number.
func (t *fileTable) add(f *openFile) (fd, open int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fd = firstFD
	for {
		if _, used := t.files[fd]; !used {
			break
		}
		fd++
	}
	t.files[fd] = f
	return fd, len(t.files)
}

func (t *fileTable) get(fd int) (*openFile, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.files[fd]
	return f, ok
}

func (t *fileTable) remove(fd int) (open int, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.files[fd]; !ok {
		return len(t.files), false
	}
	delete(t.files, fd)
	return len(t.files), true
}

func (t *fileTable) closeAll() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.files)
	clear(t.files)
	return n
}

// file returns the open file behind fd, or EBADF.
func (s *session) file(fd int) (*openFile, error) {
	f, ok := s.files.get(fd)
	if !ok {
		return nil, syscall.EBADF
	}
	return f, nil
}

// ============================================================================
// Open and close
// ============================================================================

// Open opens p and returns a descriptor.
//
// flags accepts os.O_RDONLY, os.O_WRONLY, os.O_RDWR, os.O_CREATE,
// os.O_EXCL, os.O_TRUNC and os.O_APPEND. A created file gets the handle's
// default layout and permission bits mode.
//
// Returns:
//   - int: Descriptor, or -1 on error
//   - error: ENOENT, EEXIST (O_EXCL), EISDIR (writing a directory),
//     EINVAL (bad flags or default layout)
func (m *Mount) Open(ctx context.Context, p string, flags int, mode uint32) (fd int, err error) {
	s, err := m.enter()
	if err != nil {
		return -1, err
	}
	defer m.leave(s, "open", time.Now(), &err)

	s.layoutMu.Lock()
	l := s.defaultLayout
	s.layoutMu.Unlock()

	return s.open(ctx, p, flags, mode, l)
}

// OpenWithLayout is Open with an explicit layout for the file when it is
// created. The layout of an existing file is never changed.
func (m *Mount) OpenWithLayout(ctx context.Context, p string, flags int, mode uint32, l layout.FileLayout) (fd int, err error) {
	s, err := m.enter()
	if err != nil {
		return -1, err
	}
	defer m.leave(s, "open", time.Now(), &err)

	return s.open(ctx, p, flags, mode, l)
}

func (s *session) open(ctx context.Context, p string, flags int, mode uint32, l layout.FileLayout) (int, error) {
	if flags&accessModeMask == accessModeMask {
		return -1, pathError("open", p, syscall.EINVAL)
	}
	writable := flags&(os.O_WRONLY|os.O_RDWR) != 0

	parent, name, abs, err := s.resolveParent(ctx, p)
	if err != nil {
		return -1, pathError("open", p, err)
	}

	var inode *metadata.Inode
	if parent == nil {
		inode, err = s.meta.GetInode(ctx, s.root)
	} else {
		inode, err = s.meta.Lookup(ctx, parent.Ino, name)
	}

	switch {
	case err == nil:
		if flags&os.O_CREATE != 0 && flags&os.O_EXCL != 0 {
			return -1, pathError("open", p, metadata.NewError(metadata.ErrAlreadyExists, "already exists", abs))
		}
	case metadata.IsCode(err, metadata.ErrNotFound) && flags&os.O_CREATE != 0 && parent != nil:
		inode, err = s.create(ctx, parent.Ino, name, mode, l)
		if metadata.IsCode(err, metadata.ErrAlreadyExists) && flags&os.O_EXCL == 0 {
			inode, err = s.meta.Lookup(ctx, parent.Ino, name)
		}
		if err != nil {
			return -1, pathError("open", p, err)
		}
	default:
		return -1, pathError("open", p, err)
	}

	if inode.IsDir() && (writable || flags&os.O_TRUNC != 0) {
		return -1, pathError("open", p, metadata.NewError(metadata.ErrIsDirectory, "is a directory", abs))
	}

	if flags&os.O_TRUNC != 0 && writable && inode.Size > 0 {
		if inode, err = s.truncate(ctx, inode, 0); err != nil {
			return -1, pathError("open", p, err)
		}
	}

	fd, open := s.files.add(&openFile{
		ino:    inode.Ino,
		path:   abs,
		flags:  flags,
		layout: inode.Layout,
	})
	s.metrics.SetOpenFiles(open)
	return fd, nil
}

// create makes a regular file in the pool served by the session.
func (s *session) create(ctx context.Context, parent uint64, name string, mode uint32, l layout.FileLayout) (*metadata.Inode, error) {
	if err := l.Validate(); err != nil {
		return nil, metadata.NewError(metadata.ErrInvalidArgument, err.Error(), name)
	}
	if l.Pool != s.poolName {
		return nil, metadata.NewError(metadata.ErrInvalidArgument, "unknown pool "+l.Pool, name)
	}

	return s.meta.Create(ctx, parent, name, metadata.CreateAttrs{
		Type:   metadata.FileTypeRegular,
		Mode:   mode & 0o7777,
		UID:    s.cfg.Client.UID,
		GID:    s.cfg.Client.GID,
		Layout: l,
	})
}

// Close releases descriptor fd. Its number becomes available again.
func (m *Mount) Close(fd int) (err error) {
	s, err := m.enter()
	if err != nil {
		return err
	}
	defer m.leave(s, "close", time.Now(), &err)

	open, ok := s.files.remove(fd)
	if !ok {
		return fdError("close", fd, syscall.EBADF)
	}
	s.metrics.SetOpenFiles(open)
	return nil
}

// ============================================================================
// Descriptor I/O
// ============================================================================

// Lseek moves the position of fd and returns the new position.
//
// Returns:
//   - error: EINVAL for an unknown whence or a negative result
func (m *Mount) Lseek(ctx context.Context, fd int, offset int64, whence int) (pos int64, err error) {
	s, err := m.enter()
	if err != nil {
		return -1, err
	}
	defer m.leave(s, "lseek", time.Now(), &err)

	f, err := s.file(fd)
	if err != nil {
		return -1, fdError("lseek", fd, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch whence {
	case SeekSet:
		pos = offset
	case SeekCur:
		pos = f.pos + offset
	case SeekEnd:
		inode, err := s.meta.GetInode(ctx, f.ino)
		if err != nil {
			return -1, fdError("lseek", fd, err)
		}
		pos = int64(inode.Size) + offset
	default:
		return -1, fdError("lseek", fd, syscall.EINVAL)
	}
	if pos < 0 {
		return -1, fdError("lseek", fd, syscall.EINVAL)
	}

	f.pos = pos
	return pos, nil
}

// Read reads up to len(buf) bytes from fd at offset. A negative offset
// reads at the current position and advances it.
//
// Returns:
//   - int: Bytes read, 0 at end of file
//   - error: EBADF if fd is not open for reading, EISDIR for directories
func (m *Mount) Read(ctx context.Context, fd int, buf []byte, offset int64) (n int, err error) {
	s, err := m.enter()
	if err != nil {
		return 0, err
	}
	defer m.leave(s, "read", time.Now(), &err)

	f, err := s.file(fd)
	if err != nil {
		return 0, fdError("read", fd, err)
	}
	if !f.readable() {
		return 0, fdError("read", fd, syscall.EBADF)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	inode, err := s.meta.GetInode(ctx, f.ino)
	if err != nil {
		return 0, fdError("read", fd, err)
	}
	if inode.IsDir() {
		return 0, fdError("read", fd, syscall.EISDIR)
	}

	pos := offset
	if offset < 0 {
		pos = f.pos
	}
	if len(buf) == 0 || uint64(pos) >= inode.Size {
		return 0, nil
	}

	length := min(uint64(len(buf)), inode.Size-uint64(pos))
	data, err := s.filer.Read(ctx, f.ino, f.layout, uint64(pos), length)
	if err != nil {
		return 0, fdError("read", fd, err)
	}

	n = copy(buf, data)
	if offset < 0 {
		f.pos += int64(n)
	}
	s.metrics.RecordBytes("read", int64(n))
	return n, nil
}

// Write writes buf to fd at offset. A negative offset writes at the
// current position and advances it. With O_APPEND every write goes to the
// end of the file.
//
// Returns:
//   - int: Bytes written
//   - error: EBADF if fd is not open for writing
func (m *Mount) Write(ctx context.Context, fd int, buf []byte, offset int64) (n int, err error) {
	s, err := m.enter()
	if err != nil {
		return 0, err
	}
	defer m.leave(s, "write", time.Now(), &err)

	f, err := s.file(fd)
	if err != nil {
		return 0, fdError("write", fd, err)
	}
	if !f.writable() {
		return 0, fdError("write", fd, syscall.EBADF)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	pos := offset
	if offset < 0 {
		pos = f.pos
	}
	if f.flags&os.O_APPEND != 0 {
		inode, err := s.meta.GetInode(ctx, f.ino)
		if err != nil {
			return 0, fdError("write", fd, err)
		}
		pos = int64(inode.Size)
	}
	if len(buf) == 0 {
		return 0, nil
	}

	if err := s.filer.Write(ctx, f.ino, f.layout, uint64(pos), buf); err != nil {
		return 0, fdError("write", fd, err)
	}
	if _, err := s.meta.ExtendSize(ctx, f.ino, uint64(pos)+uint64(len(buf)), time.Now()); err != nil {
		return 0, fdError("write", fd, err)
	}

	if offset < 0 {
		f.pos = pos + int64(len(buf))
	}
	s.metrics.RecordBytes("write", int64(len(buf)))
	return len(buf), nil
}

// Fsync flushes fd. Writes reach every replica before Write returns, so
// this only checks that the file still exists.
func (m *Mount) Fsync(ctx context.Context, fd int, dataOnly bool) (err error) {
	s, err := m.enter()
	if err != nil {
		return err
	}
	defer m.leave(s, "fsync", time.Now(), &err)

	f, err := s.file(fd)
	if err != nil {
		return fdError("fsync", fd, err)
	}
	if _, err := s.meta.GetInode(ctx, f.ino); err != nil {
		return fdError("fsync", fd, err)
	}
	return nil
}

// Fstat returns the attributes of the file behind fd.
func (m *Mount) Fstat(ctx context.Context, fd int) (st *Stat, err error) {
	s, err := m.enter()
	if err != nil {
		return nil, err
	}
	defer m.leave(s, "fstat", time.Now(), &err)

	f, err := s.file(fd)
	if err != nil {
		return nil, fdError("fstat", fd, err)
	}
	inode, err := s.meta.GetInode(ctx, f.ino)
	if err != nil {
		return nil, fdError("fstat", fd, err)
	}
	return statFromInode(inode), nil
}

// Ftruncate sets the size of the file behind fd.
//
// Returns:
//   - error: EINVAL for a negative size, EBADF if fd is not writable
func (m *Mount) Ftruncate(ctx context.Context, fd int, size int64) (err error) {
	s, err := m.enter()
	if err != nil {
		return err
	}
	defer m.leave(s, "ftruncate", time.Now(), &err)

	f, err := s.file(fd)
	if err != nil {
		return fdError("ftruncate", fd, err)
	}
	if size < 0 {
		return fdError("ftruncate", fd, syscall.EINVAL)
	}
	if !f.writable() {
		return fdError("ftruncate", fd, syscall.EBADF)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	inode, err := s.meta.GetInode(ctx, f.ino)
	if err != nil {
		return fdError("ftruncate", fd, err)
	}
	if _, err := s.truncate(ctx, inode, uint64(size)); err != nil {
		return fdError("ftruncate", fd, err)
	}
	return nil
}
