package gc

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/stripefs/pkg/layout"
	"github.com/marmos91/stripefs/pkg/metadata"
	metaMemory "github.com/marmos91/stripefs/pkg/metadata/memory"
	"github.com/marmos91/stripefs/pkg/objectstore"
	"github.com/marmos91/stripefs/pkg/objectstore/memory"
)

type fixture struct {
	meta    *metaMemory.MemoryMetadataStore
	objects *memory.MemoryObjectStore
	liveIno uint64
}

// newFixture creates one live file with two objects, two orphaned objects
// of a vanished inode, and one object not named after an inode.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	meta := metaMemory.NewMemoryMetadataStoreWithDefaults()
	objects, err := memory.NewMemoryObjectStore(ctx, memory.Config{})
	require.NoError(t, err)

	inode, err := meta.Create(ctx, metadata.RootIno, "live", metadata.CreateAttrs{
		Type:   metadata.FileTypeRegular,
		Mode:   0o644,
		Layout: layout.DefaultLayout(),
	})
	require.NoError(t, err)

	write := func(name string) {
		require.NoError(t, objects.WriteObject(ctx, objectstore.ObjectID(name), 0, []byte("data")))
	}
	write(layout.ObjectName(inode.Ino, 0))
	write(layout.ObjectName(inode.Ino, 1))
	write(layout.ObjectName(inode.Ino+100, 0))
	write(layout.ObjectName(inode.Ino+100, 7))
	write("not-an-inode-object")

	return &fixture{meta: meta, objects: objects, liveIno: inode.Ino}
}

func (f *fixture) exists(name string) bool {
	_, err := f.objects.StatObject(context.Background(), objectstore.ObjectID(name))
	return err == nil
}

func TestNewCollector_Defaults(t *testing.T) {
	f := newFixture(t)
	c, err := NewCollector(f.meta, f.objects, Config{})
	require.NoError(t, err)
	assert.Equal(t, time.Hour, c.config.Interval)
	assert.Equal(t, 1000, c.config.BatchSize)
}

type plainStore struct {
	objectstore.ObjectStore
}

func TestNewCollector_RequiresListing(t *testing.T) {
	f := newFixture(t)
	_, err := NewCollector(f.meta, plainStore{f.objects}, Config{})
	assert.Error(t, err)
}

func TestRunNow_RemovesOrphans(t *testing.T) {
	f := newFixture(t)
	c, err := NewCollector(f.meta, f.objects, Config{BatchSize: 1})
	require.NoError(t, err)

	stats, err := c.RunNow(context.Background())
	require.NoError(t, err)

	assert.Equal(t, uint64(2), stats.LiveInodes)
	assert.Equal(t, uint64(5), stats.ExistingCount)
	assert.Equal(t, uint64(1), stats.ForeignCount)
	assert.Equal(t, uint64(2), stats.OrphanedCount)
	assert.Equal(t, uint64(2), stats.DeletedCount)
	assert.Zero(t, stats.FailedCount)
	assert.False(t, stats.EndTime.IsZero())
	assert.Contains(t, stats.Summary(), "orphaned=2")

	assert.True(t, f.exists(layout.ObjectName(f.liveIno, 0)))
	assert.True(t, f.exists(layout.ObjectName(f.liveIno, 1)))
	assert.True(t, f.exists("not-an-inode-object"))
	assert.False(t, f.exists(layout.ObjectName(f.liveIno+100, 0)))
	assert.False(t, f.exists(layout.ObjectName(f.liveIno+100, 7)))
}

func TestRunNow_DryRun(t *testing.T) {
	f := newFixture(t)
	c, err := NewCollector(f.meta, f.objects, Config{DryRun: true})
	require.NoError(t, err)

	stats, err := c.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stats.OrphanedCount)
	assert.Zero(t, stats.DeletedCount)
	assert.True(t, f.exists(layout.ObjectName(f.liveIno+100, 0)))
}

func TestRunNow_UnlinkedFileIsCollected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.meta.Unlink(ctx, metadata.RootIno, "live")
	require.NoError(t, err)

	c, err := NewCollector(f.meta, f.objects, Config{})
	require.NoError(t, err)

	stats, err := c.RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), stats.DeletedCount)
	assert.False(t, f.exists(layout.ObjectName(f.liveIno, 0)))
}

// racingStore creates a file and writes its first object right after taking
// the inode snapshot, as another client would while a run is in progress.
type racingStore struct {
	*metaMemory.MemoryMetadataStore
	objects *memory.MemoryObjectStore
	created []string
}

func (s *racingStore) ListInodes(ctx context.Context) ([]uint64, error) {
	inos, err := s.MemoryMetadataStore.ListInodes(ctx)
	if err != nil {
		return nil, err
	}

	name := fmt.Sprintf("fresh-%d", len(s.created))
	inode, err := s.Create(ctx, metadata.RootIno, name, metadata.CreateAttrs{
		Type:   metadata.FileTypeRegular,
		Mode:   0o644,
		Layout: layout.DefaultLayout(),
	})
	if err != nil {
		return nil, err
	}
	object := layout.ObjectName(inode.Ino, 0)
	if err := s.objects.WriteObject(ctx, objectstore.ObjectID(object), 0, []byte("new")); err != nil {
		return nil, err
	}
	s.created = append(s.created, object)
	return inos, nil
}

func TestRunNow_FileCreatedDuringRunSurvives(t *testing.T) {
	f := newFixture(t)
	store := &racingStore{MemoryMetadataStore: f.meta, objects: f.objects}
	c, err := NewCollector(store, f.objects, Config{})
	require.NoError(t, err)

	stats, err := c.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stats.DeletedCount)

	require.Len(t, store.created, 1)
	assert.True(t, f.exists(store.created[0]))
	assert.True(t, f.exists(layout.ObjectName(f.liveIno, 0)))

	// The next run sees the file in both listings and keeps it.
	stats, err = c.RunNow(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.OrphanedCount)
	for _, object := range store.created {
		assert.True(t, f.exists(object), object)
	}
}

func TestRunNow_ConcurrentWrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, err := NewCollector(f.meta, f.objects, Config{})
	require.NoError(t, err)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			_, err := c.RunNow(ctx)
			assert.NoError(t, err)
		}
	}()

	var objects []string
	for i := range 200 {
		inode, err := f.meta.Create(ctx, metadata.RootIno, fmt.Sprintf("f%d", i), metadata.CreateAttrs{
			Type:   metadata.FileTypeRegular,
			Mode:   0o644,
			Layout: layout.DefaultLayout(),
		})
		require.NoError(t, err)
		object := layout.ObjectName(inode.Ino, 0)
		require.NoError(t, f.objects.WriteObject(ctx, objectstore.ObjectID(object), 0, []byte("data")))
		objects = append(objects, object)
	}

	close(stop)
	wg.Wait()

	for _, object := range objects {
		assert.True(t, f.exists(object), object)
	}
}

func TestRunNow_CancelledContext(t *testing.T) {
	f := newFixture(t)
	c, err := NewCollector(f.meta, f.objects, Config{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = c.RunNow(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, f.exists(layout.ObjectName(f.liveIno+100, 0)))
}

func TestStartStop(t *testing.T) {
	f := newFixture(t)
	c, err := NewCollector(f.meta, f.objects, Config{Interval: 10 * time.Millisecond})
	require.NoError(t, err)

	c.Start()
	c.Start()

	assert.Eventually(t, func() bool {
		return !f.exists(layout.ObjectName(f.liveIno+100, 0))
	}, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Stop(ctx))
	require.NoError(t, c.Stop(ctx))
}

func TestStop_NeverStarted(t *testing.T) {
	f := newFixture(t)
	c, err := NewCollector(f.meta, f.objects, Config{})
	require.NoError(t, err)
	assert.NoError(t, c.Stop(context.Background()))
}
