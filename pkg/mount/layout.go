package mount

import (
	"syscall"
	"time"

	"github.com/marmos91/stripefs/pkg/layout"
)

// ============================================================================
// Per-file layout
// ============================================================================

// fileLayout returns the layout of the file behind fd.
func (m *Mount) fileLayout(op string, fd int) (l layout.FileLayout, replication int, err error) {
	s, err := m.enter()
	if err != nil {
		return l, 0, err
	}
	defer m.leave(s, op, time.Now(), &err)

	f, err := s.file(fd)
	if err != nil {
		return l, 0, fdError(op, fd, err)
	}
	return f.layout, s.replication, nil
}

// GetFileStripeUnit returns the stripe unit of the file behind fd.
func (m *Mount) GetFileStripeUnit(fd int) (int, error) {
	l, _, err := m.fileLayout("get_file_stripe_unit", fd)
	if err != nil {
		return -1, err
	}
	return int(l.StripeUnit), nil
}

// GetFileStripeCount returns the stripe count of the file behind fd.
func (m *Mount) GetFileStripeCount(fd int) (int, error) {
	l, _, err := m.fileLayout("get_file_stripe_count", fd)
	if err != nil {
		return -1, err
	}
	return int(l.StripeCount), nil
}

// GetFileObjectSize returns the object size of the file behind fd.
func (m *Mount) GetFileObjectSize(fd int) (int, error) {
	l, _, err := m.fileLayout("get_file_object_size", fd)
	if err != nil {
		return -1, err
	}
	return int(l.ObjectSize), nil
}

// GetFilePool returns the pool holding the data of the file behind fd.
func (m *Mount) GetFilePool(fd int) (string, error) {
	l, _, err := m.fileLayout("get_file_pool", fd)
	if err != nil {
		return "", err
	}
	return l.Pool, nil
}

// GetFileReplication returns the number of copies kept of the file's
// objects, which is the replication of its pool.
func (m *Mount) GetFileReplication(fd int) (int, error) {
	_, replication, err := m.fileLayout("get_file_replication", fd)
	if err != nil {
		return -1, err
	}
	return replication, nil
}

// ============================================================================
// Default layout of new files
// ============================================================================

// setDefault applies update to the default layout under the layout lock.
func (m *Mount) setDefault(op string, valid bool, update func(*layout.FileLayout)) (err error) {
	s, err := m.enter()
	if err != nil {
		return err
	}
	defer m.leave(s, op, time.Now(), &err)

	if !valid {
		return syscall.EINVAL
	}

	s.layoutMu.Lock()
	update(&s.defaultLayout)
	s.layoutMu.Unlock()
	return nil
}

// SetDefaultFileStripeUnit sets the stripe unit of files created later.
// The full layout is validated when a file is created.
func (m *Mount) SetDefaultFileStripeUnit(stripeUnit int) error {
	return m.setDefault("set_default_file_stripe_unit", stripeUnit > 0 && uint64(stripeUnit) <= 1<<32-1,
		func(l *layout.FileLayout) { l.StripeUnit = uint32(stripeUnit) })
}

// SetDefaultFileStripeCount sets the stripe count of files created later.
func (m *Mount) SetDefaultFileStripeCount(stripeCount int) error {
	return m.setDefault("set_default_file_stripe_count", stripeCount > 0 && uint64(stripeCount) <= 1<<32-1,
		func(l *layout.FileLayout) { l.StripeCount = uint32(stripeCount) })
}

// SetDefaultObjectSize sets the object size of files created later.
func (m *Mount) SetDefaultObjectSize(objectSize int) error {
	return m.setDefault("set_default_object_size", objectSize > 0 && uint64(objectSize) <= 1<<32-1,
		func(l *layout.FileLayout) { l.ObjectSize = uint32(objectSize) })
}

// SetDefaultFilePool sets the pool of files created later.
func (m *Mount) SetDefaultFilePool(pool string) error {
	return m.setDefault("set_default_file_pool", pool != "",
		func(l *layout.FileLayout) { l.Pool = pool })
}

// DefaultLayout returns the layout given to files created by Open.
func (m *Mount) DefaultLayout() (l layout.FileLayout, err error) {
	s, err := m.enter()
	if err != nil {
		return l, err
	}
	defer m.leave(s, "get_default_layout", time.Now(), &err)

	s.layoutMu.Lock()
	defer s.layoutMu.Unlock()
	return s.defaultLayout, nil
}
