// Package mount implements the StripeFS client handle.
//
// A Mount is one client session. It starts unmounted: configuration can be
// read and changed, but every filesystem operation fails with
// ErrNotMounted until Mount succeeds. Once mounted, the handle serves a
// POSIX-like namespace rooted at the configured directory, with file data
// striped over the object pool by pkg/filer.
//
// Lifecycle:
//
//	Unmounted --Mount--> Mounted --Unmount--> Unmounted
//	Mounted --Shutdown--> ShutDown
//	Unmounted --Release--> ShutDown
//
// Thread safety: all methods are safe for concurrent use. Operations hold
// a read lock on the handle state for their whole duration, so Unmount and
// Shutdown wait for in-flight operations to finish.
package mount

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	"github.com/marmos91/stripefs/internal/logger"
	"github.com/marmos91/stripefs/pkg/config"
	"github.com/marmos91/stripefs/pkg/metadata"
	"github.com/marmos91/stripefs/pkg/metrics"
	"github.com/marmos91/stripefs/pkg/objectstore"
)

// DefaultID is the identity used when New is given an empty one.
const DefaultID = "admin"

// confSections are the top-level configuration keys ConfSet accepts.
var confSections = map[string]struct{}{
	"logging": {}, "client": {}, "layout": {}, "metadata": {},
	"objects": {}, "metrics": {}, "gc": {},
}

// Mount is a client handle to the filesystem.
type Mount struct {
	id       string
	instance uuid.UUID
	opts     options

	// confMu serializes access to v, which is not safe for concurrent use.
	confMu sync.Mutex
	v      *viper.Viper

	// mu guards state and sess. Filesystem operations hold it for reading.
	mu    sync.RWMutex
	state State
	sess  *session
}

// Option configures a Mount.
type Option func(*options)

type options struct {
	metadataStore metadata.Store
	objectStore   objectstore.ObjectStore
	metrics       metrics.MountMetrics
	config        *config.Config
}

// WithMetadataStore mounts over store instead of one built from the
// configuration. The store is not closed on unmount.
func WithMetadataStore(store metadata.Store) Option {
	return func(o *options) { o.metadataStore = store }
}

// WithObjectStore stores data in store instead of a pool built from the
// configuration. A *replicated.Pool keeps its name and replication; any
// other store becomes a single-replica pool named after objects.pool. The
// store is not closed on unmount.
func WithObjectStore(store objectstore.ObjectStore) Option {
	return func(o *options) { o.objectStore = store }
}

// WithMetrics records operations to m instead of the configured metrics.
func WithMetrics(m metrics.MountMetrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithConfig seeds the handle configuration with cfg. ConfSet and
// environment overrides still take precedence.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.config = cfg }
}

// New creates an unmounted handle for the user identity id.
//
// Parameters:
//   - id: User identity of the session (empty selects DefaultID)
//   - opts: Store, metrics and configuration overrides
//
// Returns:
//   - *Mount: Unmounted handle
func New(id string, opts ...Option) *Mount {
	if id == "" {
		id = DefaultID
	}

	m := &Mount{
		id:       id,
		instance: uuid.New(),
		v:        config.NewViper(),
		state:    StateUnmounted,
	}
	for _, opt := range opts {
		opt(&m.opts)
	}

	if m.opts.config != nil {
		if err := config.MergeConfig(m.v, m.opts.config); err != nil {
			logger.Warn("mount %s: ignoring initial configuration: %v", m.instance, err)
		}
	}
	m.v.Set("client.id", id)

	return m
}

// ID returns the user identity of the handle.
func (m *Mount) ID() string {
	return m.id
}

// InstanceID returns the unique identifier of this handle.
func (m *Mount) InstanceID() string {
	return m.instance.String()
}

// ============================================================================
// Configuration
// ============================================================================

// ConfSet sets configuration key (e.g. "layout.stripe_unit") to value.
// Changes apply at the next Mount.
//
// Returns:
//   - error: ErrShutDown after shutdown, or an error for unknown sections
func (m *Mount) ConfSet(key, value string) error {
	if m.State() == StateShutDown {
		return ErrShutDown
	}

	key = strings.ToLower(strings.TrimSpace(key))
	section, _, _ := strings.Cut(key, ".")
	if _, ok := confSections[section]; !ok || !strings.Contains(key, ".") {
		return fmt.Errorf("unknown configuration option %q", key)
	}

	m.confMu.Lock()
	defer m.confMu.Unlock()
	m.v.Set(key, value)
	return nil
}

// ConfGet returns the current value of key as a string.
func (m *Mount) ConfGet(key string) (string, error) {
	key = strings.ToLower(strings.TrimSpace(key))

	m.confMu.Lock()
	defer m.confMu.Unlock()

	if !m.v.IsSet(key) {
		return "", fmt.Errorf("unknown configuration option %q", key)
	}
	return fmt.Sprint(m.v.Get(key)), nil
}

// ConfReadFile loads a YAML or TOML configuration file. An empty path
// reads the default configuration file if it exists.
//
// Returns:
//   - error: ErrShutDown after shutdown, or read and parse errors
func (m *Mount) ConfReadFile(path string) error {
	if m.State() == StateShutDown {
		return ErrShutDown
	}
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	m.confMu.Lock()
	defer m.confMu.Unlock()
	return config.ReadConfigFile(m.v, path)
}

func (m *Mount) loadConfig() (*config.Config, error) {
	m.confMu.Lock()
	defer m.confMu.Unlock()
	return config.FromViper(m.v)
}

// ============================================================================
// Lifecycle
// ============================================================================

// State returns the lifecycle state of the handle.
func (m *Mount) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsMounted reports whether the handle is mounted.
func (m *Mount) IsMounted() bool {
	return m.State() == StateMounted
}

// Mount connects the handle to its stores and roots it at root.
//
// An empty root selects client.root from the configuration. Store
// initialization is bounded by client.mount_timeout.
//
// Returns:
//   - error: ErrAlreadyMounted, ErrShutDown, configuration errors, store
//     errors, or a *fs.PathError when root is missing or not a directory
func (m *Mount) Mount(ctx context.Context, root string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateMounted:
		return ErrAlreadyMounted
	case StateShutDown:
		return ErrShutDown
	}

	cfg, err := m.loadConfig()
	if err != nil {
		return err
	}
	if root == "" {
		root = cfg.Client.Root
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Client.MountTimeout)
	defer cancel()

	sess, err := openSession(ctx, m.id, cfg, m.opts, root)
	if err != nil {
		return err
	}

	m.sess = sess
	m.state = StateMounted
	logger.Info("mount %s: mounted %s as %s (pool=%s replication=%d)",
		m.instance, sess.rootPath, m.id, sess.poolName, sess.replication)
	return nil
}

// Unmount closes all descriptors and releases the stores. The handle can
// be mounted again afterwards.
func (m *Mount) Unmount(ctx context.Context) error {
	return m.teardown(ctx, StateUnmounted)
}

// Shutdown unmounts the handle for good.
func (m *Mount) Shutdown(ctx context.Context) error {
	return m.teardown(ctx, StateShutDown)
}

func (m *Mount) teardown(ctx context.Context, next State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateMounted {
		return ErrNotMounted
	}

	err := m.sess.close(ctx)
	m.sess = nil
	m.state = next
	logger.Info("mount %s: %s", m.instance, next)
	return err
}

// Release retires an unmounted handle. Releasing a shut down handle is a
// no-op.
//
// Returns:
//   - error: ErrAlreadyMounted when the handle is mounted
func (m *Mount) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateMounted:
		return ErrAlreadyMounted
	case StateUnmounted:
		m.state = StateShutDown
	}
	return nil
}

// ============================================================================
// Operation guard
// ============================================================================

// enter admits a filesystem operation. It fails with ErrNotMounted before
// anything else happens. On success the caller must defer leave.
func (m *Mount) enter() (*session, error) {
	m.mu.RLock()
	if m.state != StateMounted {
		m.mu.RUnlock()
		return nil, ErrNotMounted
	}
	return m.sess, nil
}

// leave records op and releases the state lock taken by enter.
func (m *Mount) leave(s *session, op string, start time.Time, errp *error) {
	s.metrics.RecordOperation(op, time.Since(start), *errp)
	m.mu.RUnlock()
}
