package mount

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/marmos91/stripefs/internal/logger"
	"github.com/marmos91/stripefs/pkg/config"
	"github.com/marmos91/stripefs/pkg/filer"
	"github.com/marmos91/stripefs/pkg/gc"
	"github.com/marmos91/stripefs/pkg/layout"
	"github.com/marmos91/stripefs/pkg/metadata"
	"github.com/marmos91/stripefs/pkg/metrics"
	"github.com/marmos91/stripefs/pkg/objectstore"
	"github.com/marmos91/stripefs/pkg/objectstore/replicated"
	objectsS3 "github.com/marmos91/stripefs/pkg/objectstore/s3"
)

// session holds everything a mounted handle uses. It lives from Mount to
// Unmount or Shutdown.
type session struct {
	id  string
	cfg *config.Config

	meta        metadata.Store
	pool        *replicated.Pool
	poolName    string
	replication int
	filer       *filer.Filer
	metrics     metrics.MountMetrics

	ownMeta bool
	ownPool bool

	collector     *gc.Collector
	metricsServer *metrics.Server
	stopMetrics   context.CancelFunc

	// root is the inode the handle is mounted on; rootPath its path in
	// the whole namespace.
	root     uint64
	rootPath string

	cwdMu sync.Mutex
	cwd   string

	layoutMu      sync.Mutex
	defaultLayout layout.FileLayout

	files *fileTable
}

// openSession builds the stores, resolves the mount root and starts the
// background services. Everything built here is released on failure.
func openSession(ctx context.Context, id string, cfg *config.Config, opts options, root string) (_ *session, err error) {
	s := &session{
		id:    id,
		cfg:   cfg,
		cwd:   "/",
		files: newFileTable(),
	}
	defer func() {
		if err != nil {
			if cerr := s.close(context.Background()); cerr != nil {
				logger.Warn("mount: cleanup after failed mount: %v", cerr)
			}
		}
	}()

	s3Metrics := metricsFor(cfg, opts, s)

	if opts.metadataStore != nil {
		s.meta = opts.metadataStore
	} else {
		if s.meta, err = config.CreateMetadataStore(ctx, &cfg.Metadata); err != nil {
			return nil, err
		}
		s.ownMeta = true
	}

	if err := s.openPool(ctx, opts.objectStore, s3Metrics); err != nil {
		return nil, err
	}

	s.filer = filer.New(s.pool, filer.Options{
		Concurrency:  cfg.Objects.Concurrency,
		OpsPerSecond: cfg.Objects.OpsPerSecond,
		OpsBurst:     cfg.Objects.OpsBurst,
	})

	s.defaultLayout = cfg.Layout
	if s.defaultLayout.Pool == cfg.Objects.Pool {
		s.defaultLayout.Pool = s.poolName
	}

	if err := s.meta.Healthcheck(ctx); err != nil {
		return nil, fmt.Errorf("metadata store unhealthy: %w", err)
	}

	rootPath := path.Clean("/" + root)
	inode, err := s.walk(ctx, metadata.RootIno, rootPath)
	if err != nil {
		return nil, pathError("mount", rootPath, err)
	}
	if !inode.IsDir() {
		return nil, pathError("mount", rootPath, metadata.NewError(metadata.ErrNotDirectory, "mount root is not a directory", rootPath))
	}
	s.root = inode.Ino
	s.rootPath = rootPath

	if cfg.GC.Enabled {
		s.collector, err = gc.NewCollector(s.meta, s.pool, gc.Config{
			Interval:  cfg.GC.Interval,
			BatchSize: cfg.GC.BatchSize,
			DryRun:    cfg.GC.DryRun,
		})
		if err != nil {
			return nil, err
		}
		s.collector.Start()
	}

	if s.metricsServer != nil {
		srvCtx, cancel := context.WithCancel(context.Background())
		s.stopMetrics = cancel
		go func(srv *metrics.Server) {
			if err := srv.Start(srvCtx); err != nil {
				logger.Error("Metrics server error: %v", err)
			}
		}(s.metricsServer)
	}

	return s, nil
}

// metricsFor selects the mount metrics of s and returns the S3 metrics
// for the pool, creating the metrics server when metrics are enabled.
func metricsFor(cfg *config.Config, opts options, s *session) (s3Metrics objectsS3.S3Metrics) {
	if opts.metrics != nil {
		s.metrics = opts.metrics
		return nil
	}

	result := config.InitializeMetrics(cfg)
	s.metrics = result.MountMetrics
	s.metricsServer = result.Server
	return result.S3Metrics
}

func (s *session) openPool(ctx context.Context, injected objectstore.ObjectStore, s3Metrics objectsS3.S3Metrics) error {
	switch store := injected.(type) {
	case nil:
		pool, err := config.CreateObjectStore(ctx, &s.cfg.Objects, s3Metrics)
		if err != nil {
			return err
		}
		s.pool = pool
		s.ownPool = true
	case *replicated.Pool:
		s.pool = store
	default:
		pool, err := replicated.NewPool(s.cfg.Objects.Pool, store)
		if err != nil {
			return err
		}
		s.pool = pool
	}

	s.poolName = s.pool.Name()
	s.replication = s.pool.Replication()
	return nil
}

// close stops background services, drops all descriptors and releases the
// stores the session owns.
func (s *session) close(ctx context.Context) error {
	var errs []error

	if s.collector != nil {
		if err := s.collector.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop gc: %w", err))
		}
	}
	if s.stopMetrics != nil {
		s.stopMetrics()
	}

	if n := s.files.closeAll(); n > 0 {
		logger.Debug("mount: dropped %d open descriptors", n)
	}
	if s.metrics != nil {
		s.metrics.SetOpenFiles(0)
	}

	if s.ownPool && s.pool != nil {
		if err := s.pool.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close object pool: %w", err))
		}
	}
	if s.ownMeta && s.meta != nil {
		if err := s.meta.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close metadata store: %w", err))
		}
	}

	return errors.Join(errs...)
}

// ============================================================================
// Path resolution
// ============================================================================

// abs returns p as a clean absolute path inside the mount.
func (s *session) abs(p string) string {
	if !path.IsAbs(p) {
		s.cwdMu.Lock()
		p = path.Join(s.cwd, p)
		s.cwdMu.Unlock()
	}
	return path.Clean(p)
}

// walk resolves the clean absolute path p starting at directory start.
func (s *session) walk(ctx context.Context, start uint64, p string) (*metadata.Inode, error) {
	inode, err := s.meta.GetInode(ctx, start)
	if err != nil {
		return nil, err
	}

	for _, name := range strings.Split(strings.TrimPrefix(p, "/"), "/") {
		if name == "" {
			continue
		}
		if !inode.IsDir() {
			return nil, metadata.NewError(metadata.ErrNotDirectory, "not a directory", p)
		}
		if inode, err = s.meta.Lookup(ctx, inode.Ino, name); err != nil {
			return nil, err
		}
	}
	return inode, nil
}

// resolve returns the inode at p and the clean absolute path.
func (s *session) resolve(ctx context.Context, p string) (*metadata.Inode, string, error) {
	if p == "" {
		return nil, p, metadata.NewNotFoundError(p)
	}
	abs := s.abs(p)
	inode, err := s.walk(ctx, s.root, abs)
	return inode, abs, err
}

// resolveParent returns the directory holding p and the final component.
// For the mount root the parent is nil and the name empty.
func (s *session) resolveParent(ctx context.Context, p string) (*metadata.Inode, string, string, error) {
	if p == "" {
		return nil, "", p, metadata.NewNotFoundError(p)
	}
	abs := s.abs(p)
	if abs == "/" {
		return nil, "", abs, nil
	}

	dir, name := path.Split(abs)
	parent, err := s.walk(ctx, s.root, dir)
	if err != nil {
		return nil, "", abs, err
	}
	if !parent.IsDir() {
		return nil, "", abs, metadata.NewError(metadata.ErrNotDirectory, "not a directory", dir)
	}
	return parent, name, abs, nil
}

// ============================================================================
// Data helpers
// ============================================================================

// purge removes the objects of a deleted file. Failures leave orphans for
// the garbage collector and are not reported to the caller.
func (s *session) purge(ctx context.Context, inode *metadata.Inode) {
	if inode == nil || inode.IsDir() || inode.Nlink > 0 {
		return
	}
	if err := s.filer.Purge(ctx, inode.Ino, inode.Layout, inode.Size); err != nil {
		logger.Warn("purge of inode %x failed, objects left for gc: %v", inode.Ino, err)
	}
}

// truncate sets the size of file inode, discarding data past newSize.
// Data is discarded before the size changes so a later extension never
// exposes stale bytes.
func (s *session) truncate(ctx context.Context, inode *metadata.Inode, newSize uint64) (*metadata.Inode, error) {
	if inode.IsDir() {
		return nil, metadata.NewError(metadata.ErrIsDirectory, "is a directory", "")
	}
	if newSize < inode.Size {
		if err := s.filer.Truncate(ctx, inode.Ino, inode.Layout, inode.Size, newSize); err != nil {
			return nil, err
		}
	}
	return s.meta.SetAttr(ctx, inode.Ino, metadata.SetAttrs{Size: &newSize})
}
