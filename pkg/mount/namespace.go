package mount

import (
	"context"
	"math"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/marmos91/stripefs/pkg/layout"
	"github.com/marmos91/stripefs/pkg/metadata"
)

// ============================================================================
// Filesystem statistics
// ============================================================================

// Statfs returns statistics for the filesystem holding p.
//
// Block counts come from the object pool's primary replica, file counts
// from the metadata store.
func (m *Mount) Statfs(ctx context.Context, p string) (st *StatVFS, err error) {
	s, err := m.enter()
	if err != nil {
		return nil, err
	}
	defer m.leave(s, "statfs", time.Now(), &err)

	if _, _, err := s.resolve(ctx, p); err != nil {
		return nil, pathError("statfs", p, err)
	}

	poolStats, err := s.pool.GetStorageStats(ctx)
	if err != nil {
		return nil, pathError("statfs", p, err)
	}
	metaStats, err := s.meta.GetStatistics(ctx)
	if err != nil {
		return nil, pathError("statfs", p, err)
	}

	used := metaStats.Files + metaStats.Directories
	free := uint64(math.MaxUint64) - used
	if metaStats.MaxFiles > 0 {
		free = metaStats.MaxFiles - min(used, metaStats.MaxFiles)
	}

	return &StatVFS{
		Bsize:   statBlockSize,
		Frsize:  statBlockSize,
		Blocks:  poolStats.TotalSize / statBlockSize,
		Bfree:   poolStats.AvailableSize / statBlockSize,
		Bavail:  poolStats.AvailableSize / statBlockSize,
		Files:   used,
		Ffree:   free,
		Favail:  free,
		Fsid:    s.root,
		Namemax: metadata.MaxNameLen,
	}, nil
}

// ============================================================================
// Working directory
// ============================================================================

// Getcwd returns the working directory, relative to the mount root.
func (m *Mount) Getcwd() (cwd string, err error) {
	s, err := m.enter()
	if err != nil {
		return "", err
	}
	defer m.leave(s, "getcwd", time.Now(), &err)

	s.cwdMu.Lock()
	defer s.cwdMu.Unlock()
	return s.cwd, nil
}

// Chdir changes the working directory to p.
//
// Returns:
//   - error: ENOENT if p does not exist, ENOTDIR if it is not a directory
func (m *Mount) Chdir(ctx context.Context, p string) (err error) {
	s, err := m.enter()
	if err != nil {
		return err
	}
	defer m.leave(s, "chdir", time.Now(), &err)

	inode, abs, err := s.resolve(ctx, p)
	if err != nil {
		return pathError("chdir", p, err)
	}
	if !inode.IsDir() {
		return pathError("chdir", p, metadata.NewError(metadata.ErrNotDirectory, "not a directory", abs))
	}

	s.cwdMu.Lock()
	s.cwd = abs
	s.cwdMu.Unlock()
	return nil
}

// ============================================================================
// Directories
// ============================================================================

// Listdir returns the sorted names in directory p, without "." and "..".
func (m *Mount) Listdir(ctx context.Context, p string) (names []string, err error) {
	s, err := m.enter()
	if err != nil {
		return nil, err
	}
	defer m.leave(s, "listdir", time.Now(), &err)

	inode, _, err := s.resolve(ctx, p)
	if err != nil {
		return nil, pathError("listdir", p, err)
	}
	entries, err := s.meta.ReadDir(ctx, inode.Ino)
	if err != nil {
		return nil, pathError("listdir", p, err)
	}

	names = make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	slices.Sort(names)
	return names, nil
}

// Mkdir creates directory p with permission bits mode.
//
// Returns:
//   - error: EEXIST if p exists, ENOENT if the parent is missing
func (m *Mount) Mkdir(ctx context.Context, p string, mode uint32) (err error) {
	s, err := m.enter()
	if err != nil {
		return err
	}
	defer m.leave(s, "mkdir", time.Now(), &err)

	parent, name, abs, err := s.resolveParent(ctx, p)
	if err != nil {
		return pathError("mkdir", p, err)
	}
	if parent == nil {
		return pathError("mkdir", p, metadata.NewError(metadata.ErrAlreadyExists, "mount root", abs))
	}

	_, err = s.meta.Create(ctx, parent.Ino, name, s.dirAttrs(mode))
	return pathError("mkdir", p, err)
}

// Mkdirs creates directory p and any missing parents.
//
// Returns:
//   - error: EEXIST if p itself already exists, ENOTDIR if a component
//     is a file
func (m *Mount) Mkdirs(ctx context.Context, p string, mode uint32) (err error) {
	s, err := m.enter()
	if err != nil {
		return err
	}
	defer m.leave(s, "mkdirs", time.Now(), &err)

	if p == "" {
		return pathError("mkdirs", p, metadata.NewNotFoundError(p))
	}
	abs := s.abs(p)
	if abs == "/" {
		return pathError("mkdirs", p, metadata.NewError(metadata.ErrAlreadyExists, "mount root", abs))
	}

	cur, err := s.meta.GetInode(ctx, s.root)
	if err != nil {
		return pathError("mkdirs", p, err)
	}

	names := strings.Split(strings.TrimPrefix(abs, "/"), "/")
	for i, name := range names {
		last := i == len(names)-1

		next, err := s.meta.Lookup(ctx, cur.Ino, name)
		if metadata.IsCode(err, metadata.ErrNotFound) {
			next, err = s.meta.Create(ctx, cur.Ino, name, s.dirAttrs(mode))
			if metadata.IsCode(err, metadata.ErrAlreadyExists) && !last {
				next, err = s.meta.Lookup(ctx, cur.Ino, name)
			}
		} else if err == nil && last {
			err = metadata.NewError(metadata.ErrAlreadyExists, "already exists", abs)
		}
		if err != nil {
			return pathError("mkdirs", p, err)
		}
		if !next.IsDir() {
			return pathError("mkdirs", p, metadata.NewError(metadata.ErrNotDirectory, "not a directory", name))
		}
		cur = next
	}
	return nil
}

// Rmdir removes the empty directory p.
//
// Returns:
//   - error: ENOTEMPTY, ENOTDIR, or EBUSY for the mount root
func (m *Mount) Rmdir(ctx context.Context, p string) (err error) {
	s, err := m.enter()
	if err != nil {
		return err
	}
	defer m.leave(s, "rmdir", time.Now(), &err)

	parent, name, _, err := s.resolveParent(ctx, p)
	if err != nil {
		return pathError("rmdir", p, err)
	}
	if parent == nil {
		return pathError("rmdir", p, syscall.EBUSY)
	}
	return pathError("rmdir", p, s.meta.Rmdir(ctx, parent.Ino, name))
}

// ============================================================================
// Files
// ============================================================================

// Unlink removes file p. The file's objects are purged once its last link
// is gone.
//
// Returns:
//   - error: EISDIR if p is a directory
func (m *Mount) Unlink(ctx context.Context, p string) (err error) {
	s, err := m.enter()
	if err != nil {
		return err
	}
	defer m.leave(s, "unlink", time.Now(), &err)

	parent, name, abs, err := s.resolveParent(ctx, p)
	if err != nil {
		return pathError("unlink", p, err)
	}
	if parent == nil {
		return pathError("unlink", p, metadata.NewError(metadata.ErrIsDirectory, "mount root", abs))
	}

	inode, err := s.meta.Unlink(ctx, parent.Ino, name)
	if err != nil {
		return pathError("unlink", p, err)
	}
	s.purge(ctx, inode)
	return nil
}

// Rename moves from to to, replacing a compatible existing target. The
// objects of a replaced file are purged.
//
// Returns:
//   - error: EBUSY when either path is the mount root, EINVAL when a
//     directory would move into itself, or the replacement errors
//     EISDIR, ENOTDIR and ENOTEMPTY
func (m *Mount) Rename(ctx context.Context, from, to string) (err error) {
	s, err := m.enter()
	if err != nil {
		return err
	}
	defer m.leave(s, "rename", time.Now(), &err)

	oldParent, oldName, _, err := s.resolveParent(ctx, from)
	if err != nil {
		return pathError("rename", from, err)
	}
	newParent, newName, _, err := s.resolveParent(ctx, to)
	if err != nil {
		return pathError("rename", to, err)
	}
	if oldParent == nil {
		return pathError("rename", from, syscall.EBUSY)
	}
	if newParent == nil {
		return pathError("rename", to, syscall.EBUSY)
	}

	dropped, err := s.meta.Rename(ctx, oldParent.Ino, oldName, newParent.Ino, newName)
	if err != nil {
		return pathError("rename", from, err)
	}
	s.purge(ctx, dropped)
	return nil
}

// ============================================================================
// Attributes
// ============================================================================

// Lstat returns the attributes of p.
func (m *Mount) Lstat(ctx context.Context, p string) (st *Stat, err error) {
	s, err := m.enter()
	if err != nil {
		return nil, err
	}
	defer m.leave(s, "lstat", time.Now(), &err)

	inode, _, err := s.resolve(ctx, p)
	if err != nil {
		return nil, pathError("lstat", p, err)
	}
	return statFromInode(inode), nil
}

// Setattr applies the fields of st selected by mask (Setattr* bits) to p.
// Changing the size truncates or sparsely extends the file.
//
// Returns:
//   - error: EINVAL for a nil st, EISDIR when resizing a directory
func (m *Mount) Setattr(ctx context.Context, p string, st *Stat, mask int) (err error) {
	s, err := m.enter()
	if err != nil {
		return err
	}
	defer m.leave(s, "setattr", time.Now(), &err)

	if st == nil {
		return pathError("setattr", p, metadata.NewError(metadata.ErrInvalidArgument, "nil attributes", p))
	}

	inode, _, err := s.resolve(ctx, p)
	if err != nil {
		return pathError("setattr", p, err)
	}

	attrs := setAttrsFromStat(st, mask)
	if attrs.Size != nil {
		if inode, err = s.truncate(ctx, inode, *attrs.Size); err != nil {
			return pathError("setattr", p, err)
		}
		attrs.Size = nil
	}

	_, err = s.meta.SetAttr(ctx, inode.Ino, attrs)
	return pathError("setattr", p, err)
}

// ProbeSize discovers the end of the data stored for file p by looking at
// its objects, independently of the size recorded in metadata.
func (m *Mount) ProbeSize(ctx context.Context, p string) (size uint64, err error) {
	s, err := m.enter()
	if err != nil {
		return 0, err
	}
	defer m.leave(s, "probe", time.Now(), &err)

	inode, _, err := s.resolve(ctx, p)
	if err != nil {
		return 0, pathError("probe", p, err)
	}
	if inode.IsDir() {
		return 0, pathError("probe", p, metadata.NewError(metadata.ErrIsDirectory, "is a directory", p))
	}

	l := inode.Layout
	window := uint64(l.StripeCount)
	n := layout.ObjectCount(l, inode.Size) + window

	// Keep probing one object set further while data reaches the last one.
	for {
		end, err := s.filer.Probe(ctx, inode.Ino, l, n)
		if err != nil {
			return 0, pathError("probe", p, err)
		}
		if layout.ObjectCount(l, end) <= n-window {
			return end, nil
		}
		n += window
	}
}

// dirAttrs returns the attributes of a new directory.
func (s *session) dirAttrs(mode uint32) metadata.CreateAttrs {
	return metadata.CreateAttrs{
		Type: metadata.FileTypeDirectory,
		Mode: mode & 0o7777,
		UID:  s.cfg.Client.UID,
		GID:  s.cfg.Client.GID,
	}
}
