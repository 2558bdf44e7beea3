package fs

import (
	"container/list"
	"errors"
	"os"
	"sync"

	"github.com/marmos91/stripefs/pkg/objectstore"
)

// fdCache keeps recently used object files open.
//
// Entries are reference counted: a file handed out by acquire stays open
// until the matching release, even if it is evicted or removed in the
// meantime. Eviction only closes idle entries, so the cache may exceed
// maxSize while every entry is in use.
type fdCache struct {
	maxSize int

	mu    sync.Mutex
	cache map[objectstore.ObjectID]*list.Element
	lru   *list.List
}

type fdEntry struct {
	id   objectstore.ObjectID
	file *os.File
	refs int

	// dropped entries are no longer in the map and close on last release.
	dropped bool
}

func newFDCache(maxSize int) *fdCache {
	if maxSize < 1 {
		maxSize = 256
	}
	return &fdCache{
		maxSize: maxSize,
		cache:   make(map[objectstore.ObjectID]*list.Element),
		lru:     list.New(),
	}
}

// acquire returns an open file for id, opening path when it is not
// cached. With create unset a missing file yields an os.ErrNotExist error.
func (c *fdCache) acquire(id objectstore.ObjectID, path string, create bool) (*fdEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.cache[id]; ok {
		c.lru.MoveToFront(elem)
		entry := elem.Value.(*fdEntry)
		entry.refs++
		return entry, nil
	}

	flags := os.O_RDWR
	if create {
		flags |= os.O_CREATE
	}
	file, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, err
	}

	c.evictIdle()

	entry := &fdEntry{id: id, file: file, refs: 1}
	c.cache[id] = c.lru.PushFront(entry)
	return entry, nil
}

func (c *fdCache) release(entry *fdEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry.refs--
	if entry.refs == 0 && entry.dropped {
		_ = entry.file.Close()
	}
}

// remove drops id from the cache. The file closes now if idle, or on its
// last release otherwise.
func (c *fdCache) remove(id objectstore.ObjectID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.cache[id]
	if !ok {
		return
	}
	c.dropLocked(elem)
}

// close drops every entry. Entries still in use close on release.
func (c *fdCache) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for c.lru.Len() > 0 {
		elem := c.lru.Back()
		entry := elem.Value.(*fdEntry)
		c.lru.Remove(elem)
		delete(c.cache, entry.id)
		entry.dropped = true
		if entry.refs == 0 {
			if err := entry.file.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (c *fdCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// evictIdle closes least recently used idle entries until there is room
// for one more. Caller holds c.mu.
func (c *fdCache) evictIdle() {
	for elem := c.lru.Back(); elem != nil && c.lru.Len() >= c.maxSize; {
		prev := elem.Prev()
		if elem.Value.(*fdEntry).refs == 0 {
			c.dropLocked(elem)
		}
		elem = prev
	}
}

func (c *fdCache) dropLocked(elem *list.Element) {
	entry := elem.Value.(*fdEntry)
	c.lru.Remove(elem)
	delete(c.cache, entry.id)
	entry.dropped = true
	if entry.refs == 0 {
		_ = entry.file.Close()
	}
}
