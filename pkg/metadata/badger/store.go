// Package badger implements a persistent metadata.Store on BadgerDB.
package badger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/marmos91/stripefs/internal/logger"
	"github.com/marmos91/stripefs/pkg/metadata"
)

// sequenceBandwidth is how many inode numbers are leased from the
// database at a time.
const sequenceBandwidth = 1000

// BadgerMetadataStoreConfig contains configuration for creating a
// BadgerDB metadata store.
type BadgerMetadataStoreConfig struct {
	// DBPath is the directory where BadgerDB stores its files
	DBPath string `mapstructure:"db_path" validate:"required"`

	// MaxFiles is the maximum number of inodes, 0 for unlimited
	MaxFiles uint64 `mapstructure:"max_files"`

	// BlockCacheSizeMB is BadgerDB's block cache size in MB (default: 256)
	BlockCacheSizeMB int64 `mapstructure:"block_cache_mb"`

	// IndexCacheSizeMB is BadgerDB's index cache size in MB (default: 128)
	IndexCacheSizeMB int64 `mapstructure:"index_cache_mb"`

	// InMemory runs BadgerDB without touching disk (tests)
	InMemory bool `mapstructure:"in_memory"`
}

// BadgerMetadataStore persists the namespace in BadgerDB.
//
// Reads run in concurrent read-only transactions. Mutations are
// serialized by writeMu so that multi-key invariants (entry counts, link
// counts, parent pointers) never hit transaction conflicts.
type BadgerMetadataStore struct {
	db       *badgerdb.DB
	seq      *badgerdb.Sequence
	writeMu  sync.Mutex
	maxFiles uint64
}

// NewBadgerMetadataStore opens (or creates) the database at config.DBPath.
//
// Parameters:
//   - ctx: Context for cancellation
//   - config: Database path, limits and cache sizes
//
// Returns:
//   - *BadgerMetadataStore: A store ready for concurrent use
//   - error: Error if the database cannot be opened or initialized
func NewBadgerMetadataStore(ctx context.Context, config BadgerMetadataStoreConfig) (*BadgerMetadataStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if config.DBPath == "" && !config.InMemory {
		return nil, errors.New("badger metadata store: db_path is required")
	}

	opts := badgerdb.DefaultOptions(config.DBPath)
	if config.InMemory {
		opts = badgerdb.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLoggingLevel(badgerdb.WARNING)
	opts = opts.WithCompression(options.None)

	blockCacheMB := config.BlockCacheSizeMB
	if blockCacheMB == 0 {
		blockCacheMB = 256
	}
	indexCacheMB := config.IndexCacheSizeMB
	if indexCacheMB == 0 {
		indexCacheMB = 128
	}
	opts = opts.WithBlockCacheSize(blockCacheMB << 20)
	opts = opts.WithIndexCacheSize(indexCacheMB << 20)

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", config.DBPath, err)
	}

	seq, err := db.GetSequence(keyInoSequence, sequenceBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open inode sequence: %w", err)
	}

	store := &BadgerMetadataStore{
		db:       db,
		seq:      seq,
		maxFiles: config.MaxFiles,
	}

	if err := store.initializeRoot(); err != nil {
		_ = seq.Release()
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize root: %w", err)
	}

	logger.Debug("badger metadata store opened at %s", config.DBPath)
	return store, nil
}

func (s *BadgerMetadataStore) initializeRoot() error {
	return s.db.Update(func(txn *badgerdb.Txn) error {
		_, err := txn.Get(keyInode(metadata.RootIno))
		if err == nil {
			return nil
		}
		if !errors.Is(err, badgerdb.ErrKeyNotFound) {
			return err
		}
		return putInode(txn, metadata.NewRootInode(time.Now()))
	})
}

// nextIno leases the next inode number.
func (s *BadgerMetadataStore) nextIno() (uint64, error) {
	n, err := s.seq.Next()
	if err != nil {
		return 0, err
	}
	return metadata.FirstIno + n, nil
}

// ============================================================================
// Transaction helpers
// ============================================================================

func getInode(txn *badgerdb.Txn, ino uint64) (*metadata.Inode, error) {
	item, err := txn.Get(keyInode(ino))
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, metadata.NewNotFoundError("")
	}
	if err != nil {
		return nil, metadata.NewIOError("get inode", err)
	}
	data, err := item.ValueCopy(nil)
	if err != nil {
		return nil, metadata.NewIOError("get inode", err)
	}

	parent := metadata.RootIno
	pitem, err := txn.Get(keyParent(ino))
	switch {
	case err == nil:
		pdata, err := pitem.ValueCopy(nil)
		if err != nil {
			return nil, metadata.NewIOError("get parent", err)
		}
		if parent, err = decodeParent(pdata); err != nil {
			return nil, metadata.NewIOError("get parent", err)
		}
	case !errors.Is(err, badgerdb.ErrKeyNotFound):
		return nil, metadata.NewIOError("get parent", err)
	}

	inode, err := decodeInode(data, parent)
	if err != nil {
		return nil, metadata.NewIOError("get inode", err)
	}
	return inode, nil
}

func putInode(txn *badgerdb.Txn, inode *metadata.Inode) error {
	data, err := encodeInode(inode)
	if err != nil {
		return err
	}
	if err := txn.Set(keyInode(inode.Ino), data); err != nil {
		return err
	}
	return txn.Set(keyParent(inode.Ino), encodeParent(inode.Parent))
}

func deleteInode(txn *badgerdb.Txn, ino uint64) error {
	if err := txn.Delete(keyInode(ino)); err != nil {
		return err
	}
	return txn.Delete(keyParent(ino))
}

func getDirent(txn *badgerdb.Txn, parent uint64, name string) (direntRecord, bool, error) {
	item, err := txn.Get(keyDirent(parent, name))
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return direntRecord{}, false, nil
	}
	if err != nil {
		return direntRecord{}, false, metadata.NewIOError("get entry", err)
	}
	data, err := item.ValueCopy(nil)
	if err != nil {
		return direntRecord{}, false, metadata.NewIOError("get entry", err)
	}
	rec, err := decodeDirent(data)
	if err != nil {
		return direntRecord{}, false, metadata.NewIOError("get entry", err)
	}
	return rec, true, nil
}

func putDirent(txn *badgerdb.Txn, parent uint64, name string, ino uint64, typ metadata.FileType) error {
	data, err := encodeDirent(ino, typ)
	if err != nil {
		return err
	}
	return txn.Set(keyDirent(parent, name), data)
}

// getDir loads ino and checks that it is a directory.
func getDir(txn *badgerdb.Txn, ino uint64) (*metadata.Inode, error) {
	dir, err := getInode(txn, ino)
	if err != nil {
		return nil, err
	}
	if !dir.IsDir() {
		return nil, metadata.NewError(metadata.ErrNotDirectory, "not a directory", "")
	}
	return dir, nil
}

// hasChildren reports whether directory ino has at least one entry.
func hasChildren(txn *badgerdb.Txn, ino uint64) bool {
	prefix := keyDirentPrefix(ino)
	opts := badgerdb.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	it.Seek(prefix)
	return it.ValidForPrefix(prefix)
}

// countInodes counts "i:" keys.
func countInodes(txn *badgerdb.Txn) uint64 {
	prefix := []byte(prefixInode)
	opts := badgerdb.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var n uint64
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		n++
	}
	return n
}

// mapError turns a badger failure into a StoreError, leaving store errors
// and context errors untouched.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *metadata.StoreError
	if errors.As(err, &se) {
		return se
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return metadata.NewIOError(op, err)
}

// ============================================================================
// Maintenance
// ============================================================================

func (s *BadgerMetadataStore) ListInodes(ctx context.Context) ([]uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var inos []uint64
	err := s.db.View(func(txn *badgerdb.Txn) error {
		prefix := []byte(prefixInode)
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if ino, ok := inoFromInodeKey(it.Item().Key()); ok {
				inos = append(inos, ino)
			}
		}
		return nil
	})
	if err != nil {
		return nil, mapError("list inodes", err)
	}
	return inos, nil
}

func (s *BadgerMetadataStore) GetStatistics(ctx context.Context) (*metadata.Statistics, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stats := &metadata.Statistics{MaxFiles: s.maxFiles}
	err := s.db.View(func(txn *badgerdb.Txn) error {
		prefix := []byte(prefixInode)
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			data, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			inode, err := decodeInode(data, 0)
			if err != nil {
				return err
			}
			if inode.IsDir() {
				stats.Directories++
				continue
			}
			stats.Files++
			stats.TotalSize += inode.Size
		}
		return nil
	})
	if err != nil {
		return nil, mapError("statistics", err)
	}
	return stats, nil
}

func (s *BadgerMetadataStore) Healthcheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db.IsClosed() {
		return metadata.NewIOError("healthcheck", errors.New("database closed"))
	}
	return mapError("healthcheck", s.db.View(func(txn *badgerdb.Txn) error {
		_, err := getInode(txn, metadata.RootIno)
		return err
	}))
}

// Close releases the inode sequence and closes the database.
func (s *BadgerMetadataStore) Close() error {
	return errors.Join(s.seq.Release(), s.db.Close())
}
