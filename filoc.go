// Package filoc treats a tree of files whose paths embed typed
// placeholders as a queryable, writable tabular data source. A single
// tree is driven through Filoc; several trees joined on their common
// placeholders through Composite.
package filoc

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jeromerg/filoc/api"
	"github.com/jeromerg/filoc/internal/codec"
	"github.com/jeromerg/filoc/internal/flock"
	"github.com/jeromerg/filoc/internal/join"
	"github.com/jeromerg/filoc/internal/locate"
	"github.com/jeromerg/filoc/internal/memo"
	"github.com/jeromerg/filoc/internal/storage"
)

// DefaultLockName is the lock acquired by Filoc.Lock.
const DefaultLockName = "filoc"

// Filoc exposes one locpath as a table: one row per key tuple, path
// placeholders as key fields, decoded file content as value fields.
type Filoc struct {
	locpath  string
	loc      *locate.Locator
	cache    *memo.Cache
	store    api.Storage
	writable bool
	locks    *flock.Manager
	timeout  time.Duration
	poll     time.Duration
}

// New builds a Filoc for the given locpath. Without options the tree
// lives on the local filesystem, is read-only, uses the codec implied
// by the locpath extension and keeps no cache.
func New(locpath string, opts ...Option) (*Filoc, error) {
	cfg := config{sink: api.NopSink{}}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.store == nil {
		cfg.store = storage.NewLocal("/")
	}
	cdc := cfg.codec
	if cdc == nil && cfg.codecName != "" {
		named, err := codec.ByName(cfg.codecName, cfg.multi)
		if err != nil {
			return nil, err
		}
		cdc = named
	}
	if cdc == nil {
		cdc = codec.ForPath(locpath, cfg.multi)
	}

	loc, err := locate.New(locpath, cfg.store)
	if err != nil {
		return nil, err
	}

	memoOpts := []memo.Option{memo.WithSink(cfg.sink)}
	if cfg.cacheLocpath != "" {
		cacheStore := cfg.cacheStore
		if cacheStore == nil {
			cacheStore = cfg.store
		}
		cacheLoc, err := locate.New(cfg.cacheLocpath, cacheStore)
		if err != nil {
			return nil, fmt.Errorf("cache locpath: %w", err)
		}
		memoOpts = append(memoOpts, memo.WithPersistence(cacheLoc, cacheStore))
	}

	f := &Filoc{
		locpath:  locpath,
		loc:      loc,
		cache:    memo.New(cfg.store, cdc, memoOpts...),
		store:    cfg.store,
		writable: cfg.writable,
		locks:    flock.NewManager(cfg.store, loc.Template().GlobPrefix()),
		timeout:  cfg.lockTimeout,
		poll:     cfg.lockPoll,
	}
	if f.timeout <= 0 {
		f.timeout = flock.DefaultTimeout
	}
	if f.poll <= 0 {
		f.poll = flock.DefaultPoll
	}
	return f, nil
}

// Locpath returns the path template the Filoc was built on.
func (f *Filoc) Locpath() string { return f.locpath }

// Names returns the placeholder names in template order.
func (f *Filoc) Names() []string { return f.loc.Names() }

// Writable reports whether WriteAll and DeletePaths are allowed.
func (f *Filoc) Writable() bool { return f.writable }

// BuildPath renders the concrete path for a complete binding.
func (f *Filoc) BuildPath(binding api.Binding) (string, error) {
	return f.loc.BuildPath(binding)
}

// ListPaths returns the existing paths matching the constraints.
func (f *Filoc) ListPaths(constraints api.Binding) ([]string, error) {
	return f.loc.ListPaths(constraints)
}

// Exists reports whether the file for a complete binding exists.
func (f *Filoc) Exists(binding api.Binding) (bool, error) {
	return f.loc.Exists(binding)
}

// ReadAll reads every file matching the constraints and returns one
// record per content row. Path placeholders appear as leading fields
// and override content fields of the same name. Constraints naming a
// non-placeholder filter on the decoded content instead; a file that
// vanishes between listing and reading drops its rows.
func (f *Filoc) ReadAll(ctx context.Context, constraints api.Binding) ([]*api.Record, error) {
	tmpl := f.loc.Template()
	var out []*api.Record
	for entry, err := range f.loc.Find(constraints) {
		if err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		records, err := f.cache.Read(entry.Path, entry.Keys)
		if err != nil {
			if errors.Is(err, api.ErrNotFound) {
				continue
			}
			return nil, err
		}
		for _, rec := range records {
			if !contentSatisfies(tmpl.HasName, rec, constraints) {
				continue
			}
			row := api.NewRecord()
			for _, name := range tmpl.Names() {
				row.Set(name, entry.Keys[name])
			}
			rec.Each(func(name string, value any) bool {
				if !tmpl.HasName(name) {
					row.Set(name, value)
				}
				return true
			})
			out = append(out, row)
		}
	}
	if err := f.cache.Flush(); err != nil {
		return nil, err
	}
	return out, nil
}

// WriteAll splits each row into path keys and content, groups the
// content by target path and writes each file once. Every placeholder
// of the locpath must be present in every row. Nothing is written
// until all rows have been split successfully.
func (f *Filoc) WriteAll(ctx context.Context, rows []*api.Record) error {
	if !f.writable {
		return &api.NotWritableError{Source: f.locpath}
	}
	tmpl := f.loc.Template()

	type group struct {
		keys    api.Binding
		records []*api.Record
	}
	var order []string
	groups := map[string]*group{}

	for _, row := range rows {
		binding := api.Binding{}
		content := api.NewRecord()
		row.Each(func(name string, value any) bool {
			if tmpl.HasName(name) {
				binding[name] = value
			} else {
				content.Set(name, value)
			}
			return true
		})
		for _, name := range tmpl.Names() {
			if _, ok := binding[name]; !ok {
				return &api.IncompleteKeyError{Source: f.locpath, Name: name}
			}
		}
		path, err := f.loc.BuildPath(binding)
		if err != nil {
			return err
		}
		g, ok := groups[path]
		if !ok {
			g = &group{keys: binding}
			groups[path] = g
			order = append(order, path)
		}
		g.records = append(g.records, content)
	}

	singleton := f.cache.Codec().Singleton()
	for _, path := range order {
		if err := ctx.Err(); err != nil {
			return err
		}
		g := groups[path]
		records := g.records
		if singleton {
			var err error
			records, err = coalesceRows(path, records)
			if err != nil {
				return err
			}
		}
		if err := f.cache.Write(path, g.keys, records); err != nil {
			return err
		}
	}
	return f.cache.Flush()
}

// DeletePaths removes every file matching the constraints and
// invalidates the corresponding cache entries. It returns the deleted
// paths.
func (f *Filoc) DeletePaths(ctx context.Context, constraints api.Binding) ([]string, error) {
	if !f.writable {
		return nil, &api.NotWritableError{Source: f.locpath}
	}
	paths, err := f.loc.ListPaths(constraints)
	if err != nil {
		return nil, err
	}
	var deleted []string
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		if err := f.store.Delete(p); err != nil {
			if errors.Is(err, api.ErrNotFound) {
				continue
			}
			return deleted, err
		}
		deleted = append(deleted, p)
	}
	if err := f.cache.Invalidate(constraints); err != nil {
		return deleted, err
	}
	return deleted, nil
}

// InvalidateCache drops the cached content for every path matching
// the constraints. A nil constraints drops everything.
func (f *Filoc) InvalidateCache(constraints api.Binding) error {
	return f.cache.Invalidate(constraints)
}

// Lock acquires the tree-wide advisory lock, waiting up to the
// configured timeout.
func (f *Filoc) Lock(ctx context.Context) (*flock.Lock, error) {
	return f.locks.Acquire(ctx, DefaultLockName, f.timeout, f.poll)
}

// WithLock runs fn under the tree-wide advisory lock.
func (f *Filoc) WithLock(ctx context.Context, fn func() error) error {
	return f.locks.With(ctx, DefaultLockName, f.timeout, f.poll, fn)
}

// Locks exposes the lock manager for named locks and force-release.
func (f *Filoc) Locks() *flock.Manager { return f.locks }

// contentSatisfies applies the constraints that are not placeholders
// to a decoded record. An absent field does not filter.
func contentSatisfies(isPlaceholder func(string) bool, rec *api.Record, constraints api.Binding) bool {
	for name, want := range constraints {
		if isPlaceholder(name) {
			continue
		}
		got, ok := rec.Get(name)
		if !ok {
			continue
		}
		if !api.ValueEqual(got, want) {
			return false
		}
	}
	return true
}

// coalesceRows folds identical rows aimed at one singleton file into
// one record; genuinely different rows are a conflict.
func coalesceRows(path string, records []*api.Record) ([]*api.Record, error) {
	first := records[0]
	for _, r := range records[1:] {
		if !first.Equal(r) {
			return nil, fmt.Errorf("conflicting rows for singleton file %s: %v != %v", path, first, r)
		}
	}
	return []*api.Record{first}, nil
}

// Composite joins several named Filoc sources on the intersection of
// their placeholder names. Key fields come out prefixed with the join
// level name, content fields with their source name.
type Composite struct {
	eng     *join.Engine
	byName  map[string]*Filoc
	names   []string
}

// CompositeOption configures the join.
type CompositeOption func(*[]join.Option)

// WithJoinPrefix renames the key-field prefix (default "shared").
func WithJoinPrefix(name string) CompositeOption {
	return func(opts *[]join.Option) { *opts = append(*opts, join.WithLevelName(name)) }
}

// WithJoinSeparator changes the prefix separator (default ".").
func WithJoinSeparator(sep string) CompositeOption {
	return func(opts *[]join.Option) { *opts = append(*opts, join.WithSeparator(sep)) }
}

// WithJoinParallel reads the sources concurrently.
func WithJoinParallel(parallel bool) CompositeOption {
	return func(opts *[]join.Option) { *opts = append(*opts, join.WithParallel(parallel)) }
}

// NewComposite joins the given sources. Source names become the field
// prefixes; the shared key set is frozen here and a placeholder name
// present in some but not all sources is an error.
func NewComposite(sources map[string]*Filoc, copts ...CompositeOption) (*Composite, error) {
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)

	var joinOpts []join.Option
	for _, co := range copts {
		co(&joinOpts)
	}

	srcs := make([]*join.Source, 0, len(names))
	for _, name := range names {
		f := sources[name]
		srcs = append(srcs, &join.Source{
			Name:     name,
			Locator:  f.loc,
			Cache:    f.cache,
			Writable: f.writable,
		})
	}
	eng, err := join.New(srcs, joinOpts...)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]*Filoc, len(sources))
	for name, f := range sources {
		byName[name] = f
	}
	return &Composite{eng: eng, byName: byName, names: names}, nil
}

// SharedKeys returns the frozen shared key names, sorted.
func (c *Composite) SharedKeys() []string { return c.eng.SharedKeys() }

// Source returns the named source, or nil.
func (c *Composite) Source(name string) *Filoc { return c.byName[name] }

// SourceNames returns the source names, sorted.
func (c *Composite) SourceNames() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// ReadAll performs the full outer join of all sources under the
// constraints.
func (c *Composite) ReadAll(ctx context.Context, constraints api.Binding) ([]*api.Record, error) {
	return c.eng.ReadAll(ctx, constraints)
}

// WriteAll splits prefixed composite rows back into per-source writes.
func (c *Composite) WriteAll(ctx context.Context, rows []*api.Record) error {
	return c.eng.WriteAll(ctx, rows)
}

// InvalidateCache drops the matching cache entries of every source.
func (c *Composite) InvalidateCache(constraints api.Binding) error {
	for _, name := range c.names {
		if err := c.byName[name].InvalidateCache(constraints); err != nil {
			return err
		}
	}
	return nil
}
