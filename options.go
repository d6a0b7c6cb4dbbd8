package filoc

import (
	"time"

	"github.com/jeromerg/filoc/api"
)

type config struct {
	store        api.Storage
	cacheStore   api.Storage
	codec        api.Codec
	codecName    string
	multi        bool
	writable     bool
	cacheLocpath string
	sink         api.EventSink
	lockTimeout  time.Duration
	lockPoll     time.Duration
}

// Option configures a Filoc at construction.
type Option func(*config)

// WithStorage sets the storage provider. Default is the local
// filesystem rooted at /.
func WithStorage(store api.Storage) Option {
	return func(c *config) { c.store = store }
}

// WithCodec sets the content codec explicitly, overriding the
// extension-based default.
func WithCodec(codec api.Codec) Option {
	return func(c *config) { c.codec = codec }
}

// WithCodecName selects a codec by name (json, yaml, csv). The multi
// flag set by WithMulti applies.
func WithCodecName(name string) Option {
	return func(c *config) { c.codecName = name }
}

// WithMulti makes each file hold a list of rows instead of a single
// one. Ignored when WithCodec supplies a codec directly.
func WithMulti(multi bool) Option {
	return func(c *config) { c.multi = multi }
}

// WithWritable allows WriteAll and DeletePaths. Sources are read-only
// by default.
func WithWritable(writable bool) Option {
	return func(c *config) { c.writable = writable }
}

// WithCache enables the content cache, persisted at the given
// locpath. The locpath may carry a subset of the data placeholders to
// shard the cache alongside the data.
func WithCache(locpath string) Option {
	return func(c *config) { c.cacheLocpath = locpath }
}

// WithCacheStorage stores the cache on a different provider than the
// data. Only meaningful together with WithCache.
func WithCacheStorage(store api.Storage) Option {
	return func(c *config) { c.cacheStore = store }
}

// WithEventSink installs an observer for read and write events.
func WithEventSink(sink api.EventSink) Option {
	return func(c *config) { c.sink = sink }
}

// WithLockTiming overrides the lock acquisition timeout and poll
// interval.
func WithLockTiming(timeout, poll time.Duration) Option {
	return func(c *config) {
		c.lockTimeout = timeout
		c.lockPoll = poll
	}
}
