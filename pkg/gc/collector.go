// Package gc provides garbage collection for orphaned data objects.
//
// An object is orphaned when the inode its name refers to no longer exists
// in the metadata store. This can occur due to:
//   - Client crashes between unlinking an inode and purging its objects
//   - Failed purge operations
//   - Writes racing an unlink from another handle sharing the pool
//
// Objects whose names do not follow the "<ino>.<objectno>" scheme are not
// owned by the filesystem and are never removed.
package gc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/stripefs/internal/logger"
	"github.com/marmos91/stripefs/pkg/layout"
	"github.com/marmos91/stripefs/pkg/metadata"
	"github.com/marmos91/stripefs/pkg/objectstore"
)

// Collector performs periodic garbage collection on an object pool.
//
// Thread Safety: Safe for concurrent use. Runs are serialized.
type Collector struct {
	metadataStore metadata.Store
	objectStore   objectstore.GarbageCollectableStore
	config        Config

	runMu    sync.Mutex
	startMu  sync.Mutex
	started  bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// Config contains configuration for the garbage collector.
type Config struct {
	// Interval is how often to run garbage collection (default: 1h)
	Interval time.Duration

	// BatchSize is how many orphaned objects to remove per batch (default: 1000)
	BatchSize int

	// DryRun logs what would be removed without removing anything
	DryRun bool

	// RunTimeout bounds a single periodic run (default: 10m)
	RunTimeout time.Duration
}

// NewCollector creates a new garbage collector.
//
// The collector is initialized but not started. Call Start to begin
// background collection, or RunNow for a single pass.
//
// Parameters:
//   - metadataStore: Metadata store listing the live inodes
//   - objectStore: Object store to scan and remove orphaned objects from
//   - config: Garbage collection configuration
//
// Returns:
//   - *Collector: Initialized collector (not started)
//   - error: Returns error if the object store cannot enumerate objects
func NewCollector(
	metadataStore metadata.Store,
	objectStore objectstore.ObjectStore,
	config Config,
) (*Collector, error) {
	gcStore, ok := objectStore.(objectstore.GarbageCollectableStore)
	if !ok {
		return nil, fmt.Errorf("object store does not implement GarbageCollectableStore interface")
	}

	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 1000
	}
	if config.RunTimeout <= 0 {
		config.RunTimeout = 10 * time.Minute
	}

	return &Collector{
		metadataStore: metadataStore,
		objectStore:   gcStore,
		config:        config,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}, nil
}

// Start begins background garbage collection at the configured interval.
//
// Safe to call multiple times (subsequent calls are no-ops).
func (c *Collector) Start() {
	c.startMu.Lock()
	defer c.startMu.Unlock()
	if c.started {
		return
	}
	c.started = true

	logger.Info("Starting garbage collector: interval=%s batch_size=%d dry_run=%v",
		c.config.Interval, c.config.BatchSize, c.config.DryRun)

	go c.worker()
}

// Stop stops the garbage collector and waits for an in-progress run.
// Safe to call multiple times, and on a collector that was never started.
//
// Returns:
//   - error: ctx.Err() if the context expires before the worker exits
func (c *Collector) Stop(ctx context.Context) error {
	c.startMu.Lock()
	started := c.started
	c.startMu.Unlock()

	c.stopOnce.Do(func() { close(c.stopCh) })
	if !started {
		return nil
	}

	select {
	case <-c.doneCh:
		logger.Debug("Garbage collector stopped")
		return nil
	case <-ctx.Done():
		logger.Warn("Garbage collector shutdown timeout")
		return ctx.Err()
	}
}

// RunNow runs a collection pass and blocks until it completes.
func (c *Collector) RunNow(ctx context.Context) (*Stats, error) {
	logger.Info("Running garbage collection (manual trigger)...")
	return c.collect(ctx)
}

func (c *Collector) worker() {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), c.config.RunTimeout)
			stats, err := c.collect(ctx)
			cancel()

			if err != nil {
				logger.Error("Garbage collection failed: %v", err)
			} else {
				logger.Info("Garbage collection completed: %s", stats.Summary())
			}

		case <-c.stopCh:
			return
		}
	}
}

// collect performs a single garbage collection run:
//  1. List the objects in the pool
//  2. List the live inodes in the metadata store
//  3. Orphaned = objects whose inode is not live
//  4. Remove orphans in batches
//
// Objects are listed before inodes. An object can only exist once its inode
// was created, so every object in the listing belongs to an inode that is
// either in the later snapshot or really gone. Files created while the run
// is in progress are therefore never mistaken for orphans.
func (c *Collector) collect(ctx context.Context) (*Stats, error) {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	stats := &Stats{StartTime: time.Now()}
	defer func() { stats.EndTime = time.Now() }()

	existing, err := c.objectStore.ListObjects(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to list objects: %w", err)
	}
	stats.ExistingCount = uint64(len(existing))

	inodes, err := c.metadataStore.ListInodes(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to list inodes: %w", err)
	}
	stats.LiveInodes = uint64(len(inodes))

	live := make(map[uint64]struct{}, len(inodes))
	for _, ino := range inodes {
		live[ino] = struct{}{}
	}

	var orphaned []objectstore.ObjectID
	for _, id := range existing {
		ino, _, err := layout.ParseObjectName(string(id))
		if err != nil {
			stats.ForeignCount++
			continue
		}
		if _, ok := live[ino]; !ok {
			orphaned = append(orphaned, id)
		}
	}
	stats.OrphanedCount = uint64(len(orphaned))

	if len(orphaned) == 0 {
		logger.Debug("GC: no orphaned objects among %d", stats.ExistingCount)
		return stats, nil
	}

	if c.config.DryRun {
		logger.Info("GC: DRY RUN - would remove %d objects", stats.OrphanedCount)
		for i, id := range orphaned {
			if i == 10 {
				logger.Info("  ... and %d more", len(orphaned)-10)
				break
			}
			logger.Info("  - %s", id)
		}
		return stats, nil
	}

	for i := 0; i < len(orphaned); i += c.config.BatchSize {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		end := min(i+c.config.BatchSize, len(orphaned))
		batch := orphaned[i:end]

		failures, err := c.objectStore.RemoveBatch(ctx, batch)
		if err != nil {
			stats.FailedCount += uint64(len(batch))
			return stats, err
		}

		stats.DeletedCount += uint64(len(batch) - len(failures))
		stats.FailedCount += uint64(len(failures))

		for id, ferr := range failures {
			logger.Debug("GC: failed to remove %s: %v", id, ferr)
		}
	}

	logger.Info("GC: removed %d orphaned objects, %d failed", stats.DeletedCount, stats.FailedCount)
	return stats, nil
}

// Stats contains statistics from a garbage collection run.
type Stats struct {
	StartTime     time.Time // When collection started
	EndTime       time.Time // When collection ended
	LiveInodes    uint64    // Number of inodes in the metadata store
	ExistingCount uint64    // Number of objects in the pool
	ForeignCount  uint64    // Objects not named after an inode, left alone
	OrphanedCount uint64    // Objects whose inode no longer exists
	DeletedCount  uint64    // Orphans successfully removed
	FailedCount   uint64    // Orphans that failed to be removed
}

// Duration returns the total collection duration.
func (s *Stats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// Summary returns a human-readable summary of the collection.
func (s *Stats) Summary() string {
	return fmt.Sprintf("inodes=%d objects=%d foreign=%d orphaned=%d deleted=%d failed=%d duration=%s",
		s.LiveInodes, s.ExistingCount, s.ForeignCount, s.OrphanedCount,
		s.DeletedCount, s.FailedCount, s.Duration())
}
