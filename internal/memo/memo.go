// Package memo is the content cache: it wraps a storage provider and a
// codec pair, memoizing decoded content keyed by (path, last-modified
// stamp). With a backing location configured the memo is persisted and
// survives process restarts; without one the cache is a no-op that loads
// fresh on every read.
package memo

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jeromerg/filoc/api"
	"github.com/jeromerg/filoc/internal/locate"
)

type entry struct {
	stamp   time.Time
	records []*api.Record
}

type shard struct {
	entries map[string]entry // keyed by data path
}

// Cache decodes file content through a codec, reusing memoized records
// while the file's stamp is unchanged. Staleness is detected lazily on
// the next access, never pushed.
type Cache struct {
	store api.Storage
	codec api.Codec
	sink  api.EventSink

	// persistence, nil/empty when the cache is disabled
	cacheLoc   *locate.Locator
	cacheStore api.Storage

	mu     sync.Mutex
	shards map[string]*shard // keyed by rendered cache path
	dirty  map[string]bool
}

// Option configures a Cache.
type Option func(*Cache)

// WithSink installs an event sink. Defaults to api.NopSink.
func WithSink(sink api.EventSink) Option {
	return func(c *Cache) { c.sink = sink }
}

// WithPersistence enables the memo, backed by cache files located
// through loc on cacheStore. The cache locpath may share placeholders
// with the data it mirrors, sharding the memo alongside the data.
func WithPersistence(loc *locate.Locator, cacheStore api.Storage) Option {
	return func(c *Cache) {
		c.cacheLoc = loc
		c.cacheStore = cacheStore
	}
}

// New builds a cache over a storage provider and codec.
func New(store api.Storage, codec api.Codec, opts ...Option) *Cache {
	c := &Cache{
		store:  store,
		codec:  codec,
		sink:   api.NopSink{},
		shards: map[string]*shard{},
		dirty:  map[string]bool{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Codec returns the codec the cache decodes through.
func (c *Cache) Codec() api.Codec { return c.codec }

func (c *Cache) enabled() bool { return c.cacheLoc != nil }

// Read returns the decoded records of path. keys is the key binding
// extracted from the path, used to locate the memo shard. A path that
// disappeared since listing surfaces as *api.NotFoundError, never as a
// stale hit.
func (c *Cache) Read(path string, keys api.Binding) ([]*api.Record, error) {
	if !c.enabled() {
		return c.load(path)
	}

	stamp, err := c.store.Stat(path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	sh, shardPath, err := c.shardFor(keys)
	if err != nil {
		return nil, err
	}
	if e, ok := sh.entries[path]; ok && e.stamp.Equal(stamp) {
		return cloneAll(e.records), nil
	}

	records, err := c.load(path)
	if err != nil {
		return nil, err
	}
	sh.entries[path] = entry{stamp: stamp, records: cloneAll(records)}
	c.dirty[shardPath] = true
	return records, nil
}

// Write encodes records through the codec and writes them to path, then
// eagerly refreshes the memo so subsequent reads observe the write.
func (c *Cache) Write(path string, keys api.Binding, records []*api.Record) error {
	data, err := c.codec.Encode(records)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	c.sink.PreWrite(path)
	err = c.store.Write(path, data)
	c.sink.PostWrite(path, err)
	if err != nil {
		return err
	}

	if !c.enabled() {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	sh, shardPath, err := c.shardFor(keys)
	if err != nil {
		return err
	}
	c.dirty[shardPath] = true
	stamp, err := c.store.Stat(path)
	if err != nil {
		// cannot restamp: drop the entry rather than risk a stale hit
		delete(sh.entries, path)
		return nil
	}
	sh.entries[path] = entry{stamp: stamp, records: cloneAll(records)}
	return nil
}

// Flush persists all dirty memo shards. A no-op for a disabled cache.
func (c *Cache) Flush() error {
	if !c.enabled() {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	for shardPath := range c.dirty {
		sh := c.shards[shardPath]
		if sh == nil {
			continue
		}
		data, err := encodeShard(sh)
		if err != nil {
			return fmt.Errorf("encode cache %s: %w", shardPath, err)
		}
		if err := c.cacheStore.Write(shardPath, data); err != nil {
			return err
		}
		delete(c.dirty, shardPath)
	}
	return nil
}

// Invalidate drops the memo for all cache shards matching the
// constraints, both in memory and on the backing storage.
func (c *Cache) Invalidate(constraints api.Binding) error {
	if !c.enabled() {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.shards = map[string]*shard{}
	c.dirty = map[string]bool{}

	for e, err := range c.cacheLoc.Find(constraints) {
		if err != nil {
			return err
		}
		if err := c.cacheStore.Delete(e.Path); err != nil && !errors.Is(err, api.ErrNotFound) {
			return err
		}
	}
	return nil
}

// load reads and decodes path, firing the sink events around the
// storage access.
func (c *Cache) load(path string) ([]*api.Record, error) {
	c.sink.PreRead(path)
	data, err := c.store.Read(path)
	if err != nil {
		c.sink.PostRead(path, 0, err)
		return nil, err
	}
	records, err := c.codec.Decode(data)
	c.sink.PostRead(path, len(records), err)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return records, nil
}

// shardFor renders the cache path for the given data keys and loads the
// shard lazily on first use. Callers hold c.mu.
func (c *Cache) shardFor(keys api.Binding) (*shard, string, error) {
	shardPath, err := c.cacheLoc.BuildPath(keys.Restrict(c.cacheLoc.Names()))
	if err != nil {
		return nil, "", fmt.Errorf("cache location: %w", err)
	}
	if sh, ok := c.shards[shardPath]; ok {
		return sh, shardPath, nil
	}
	sh, err := c.loadShard(shardPath)
	if err != nil {
		return nil, "", err
	}
	c.shards[shardPath] = sh
	return sh, shardPath, nil
}

func (c *Cache) loadShard(shardPath string) (*shard, error) {
	data, err := c.cacheStore.Read(shardPath)
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			return &shard{entries: map[string]entry{}}, nil
		}
		return nil, err
	}
	sh, err := decodeShard(data)
	if err != nil {
		return nil, fmt.Errorf("decode cache %s: %w", shardPath, err)
	}
	return sh, nil
}

func cloneAll(records []*api.Record) []*api.Record {
	out := make([]*api.Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}
