// Package join implements the composite engine: it owns a set of named
// (locator, cache) sources, joins their rows on the placeholder names
// shared by every source and splits composite rows back into per-source
// writes.
package join

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/jeromerg/filoc/api"
	"github.com/jeromerg/filoc/internal/locate"
	"github.com/jeromerg/filoc/internal/memo"
)

// DefaultLevelName prefixes the join-key block of every composite row.
const DefaultLevelName = "shared"

// DefaultSeparator separates a prefix from the field name.
const DefaultSeparator = "."

// Source is one named participant of a composite.
type Source struct {
	Name     string
	Locator  *locate.Locator
	Cache    *memo.Cache
	Writable bool
}

// Engine joins rows of several sources on their shared placeholder
// names. The shared set is computed once at construction and never
// renegotiated.
type Engine struct {
	sources  []*Source
	byName   map[string]*Source
	shared   []string // sorted
	sharedIn map[string]bool
	level    string
	sep      string
	parallel bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLevelName overrides the prefix of the join-key block.
func WithLevelName(name string) Option {
	return func(e *Engine) { e.level = name }
}

// WithSeparator overrides the prefix separator.
func WithSeparator(sep string) Option {
	return func(e *Engine) { e.sep = sep }
}

// WithParallel reads the sources concurrently. The join itself always
// waits for every source.
func WithParallel(parallel bool) Option {
	return func(e *Engine) { e.parallel = parallel }
}

// New validates the sources and freezes the shared key set: the
// intersection of all sources' placeholder names. It fails with
// *api.JoinKeyError when several sources are composed without any
// shared name, and when a placeholder name appears in several sources
// without appearing in all of them (such a column could not be named
// unambiguously).
func New(sources []*Source, opts ...Option) (*Engine, error) {
	if len(sources) == 0 {
		return nil, errors.New("composite needs at least one source")
	}
	e := &Engine{
		sources:  sources,
		byName:   map[string]*Source{},
		sharedIn: map[string]bool{},
		level:    DefaultLevelName,
		sep:      DefaultSeparator,
	}
	for _, opt := range opts {
		opt(e)
	}
	for _, src := range sources {
		if src.Name == "" {
			return nil, errors.New("source name must not be empty")
		}
		if _, dup := e.byName[src.Name]; dup {
			return nil, fmt.Errorf("duplicate source name %q", src.Name)
		}
		if src.Name == e.level {
			return nil, fmt.Errorf("source name %q collides with the join level name", src.Name)
		}
		e.byName[src.Name] = src
	}

	count := map[string]int{}
	for _, src := range sources {
		for _, name := range src.Locator.Names() {
			count[name]++
		}
	}
	for name, n := range count {
		switch {
		case n == len(sources):
			e.shared = append(e.shared, name)
			e.sharedIn[name] = true
		case n > 1:
			return nil, &api.JoinKeyError{Name: name, Reason: "appears in several sources but not in all of them"}
		}
	}
	if len(sources) > 1 && len(e.shared) == 0 {
		return nil, &api.JoinKeyError{Reason: "sources have no placeholder name in common"}
	}
	sort.Strings(e.shared)
	return e, nil
}

// SharedKeys returns the frozen shared key names, sorted.
func (e *Engine) SharedKeys() []string {
	out := make([]string, len(e.shared))
	copy(out, e.shared)
	return out
}

// Source returns the named source, or nil.
func (e *Engine) Source(name string) *Source { return e.byName[name] }

// Sources returns the sources in registration order.
func (e *Engine) Sources() []*Source { return e.sources }

// srcRow is one decoded record of one source along with its path keys.
type srcRow struct {
	keys api.Binding
	rec  *api.Record
}

// ReadAll performs the outer join: one composite row per combination of
// source records agreeing on a shared key tuple. A key tuple present in
// only some sources still produces rows; the absent sources contribute
// no fields. Rows are ordered by their shared key tuple.
func (e *Engine) ReadAll(ctx context.Context, constraints api.Binding) ([]*api.Record, error) {
	tables := make([]map[string][]srcRow, len(e.sources))
	tupleKeys := map[string]api.Binding{}

	g, ctx := errgroup.WithContext(ctx)
	if !e.parallel {
		g.SetLimit(1)
	}
	results := make([][]srcRow, len(e.sources))
	for i, src := range e.sources {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rows, err := e.readSource(src, constraints)
			if err != nil {
				return fmt.Errorf("source %q: %w", src.Name, err)
			}
			results[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i := range e.sources {
		table := map[string][]srcRow{}
		for _, row := range results[i] {
			key, tuple := e.tupleOf(row.keys)
			table[key] = append(table[key], row)
			if _, seen := tupleKeys[key]; !seen {
				tupleKeys[key] = tuple
			}
		}
		tables[i] = table
	}

	keys := make([]string, 0, len(tupleKeys))
	for k := range tupleKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []*api.Record
	for _, key := range keys {
		out = append(out, e.emit(tupleKeys[key], tables, key)...)
	}
	return out, nil
}

// readSource loads every record of one source matching the constraints.
// Constraint keys that are placeholders filter paths; the remaining
// ones filter decoded rows by content. A file that vanished between
// listing and reading drops its rows only.
func (e *Engine) readSource(src *Source, constraints api.Binding) ([]srcRow, error) {
	var rows []srcRow
	for entry, err := range src.Locator.Find(constraints) {
		if err != nil {
			return nil, err
		}
		records, err := src.Cache.Read(entry.Path, entry.Keys)
		if err != nil {
			if errors.Is(err, api.ErrNotFound) {
				continue
			}
			return nil, err
		}
		for _, rec := range records {
			if !contentSatisfies(src, rec, constraints) {
				continue
			}
			rows = append(rows, srcRow{keys: entry.Keys, rec: rec})
		}
	}
	if err := src.Cache.Flush(); err != nil {
		return nil, err
	}
	return rows, nil
}

// contentSatisfies applies the constraints that are not placeholders of
// the source to the decoded content. A constraint absent from the
// record does not filter it.
func contentSatisfies(src *Source, rec *api.Record, constraints api.Binding) bool {
	for name, want := range constraints {
		if src.Locator.Template().HasName(name) {
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

// tupleOf projects path keys onto the shared set and returns a
// canonical tuple key plus the typed tuple. Numeric values canonicalize
// to the same key whether the template declared them int or float.
func (e *Engine) tupleOf(keys api.Binding) (string, api.Binding) {
	tuple := api.Binding{}
	var b strings.Builder
	for _, name := range e.shared {
		v := keys[name]
		tuple[name] = v
		b.WriteString(canonValue(v))
		b.WriteByte('\x00')
	}
	return b.String(), tuple
}

func canonValue(v any) string {
	switch x := api.Normalize(v).(type) {
	case nil:
		return "~"
	case bool:
		return "b:" + strconv.FormatBool(x)
	case int64:
		return "n:" + strconv.FormatInt(x, 10)
	case float64:
		return "n:" + strconv.FormatFloat(x, 'g', -1, 64)
	case string:
		return "s:" + x
	default:
		return fmt.Sprintf("?:%v", x)
	}
}

// emit produces the composite rows of one shared key tuple: the cross
// product of the matching record lists of every source that has any.
func (e *Engine) emit(tuple api.Binding, tables []map[string][]srcRow, key string) []*api.Record {
	var present []int
	var lists [][]srcRow
	for i := range e.sources {
		if rows := tables[i][key]; len(rows) > 0 {
			present = append(present, i)
			lists = append(lists, rows)
		}
	}
	if len(present) == 0 {
		return nil
	}

	idx := make([]int, len(lists))
	var out []*api.Record
	for {
		row := api.NewRecord()
		for _, name := range e.shared {
			row.Set(e.level+e.sep+name, tuple[name])
		}
		// key fields beyond the shared set, path is source of truth
		for li, si := range present {
			src := e.sources[si]
			sr := lists[li][idx[li]]
			for _, name := range src.Locator.Names() {
				if e.sharedIn[name] {
					continue
				}
				if v, ok := sr.keys[name]; ok {
					row.Set(e.level+e.sep+name, v)
				}
			}
		}
		// content fields, prefixed by source; placeholder-named content
		// fields are shadowed by the path values
		for li, si := range present {
			src := e.sources[si]
			sr := lists[li][idx[li]]
			sr.rec.Each(func(name string, value any) bool {
				if src.Locator.Template().HasName(name) {
					return true
				}
				row.Set(src.Name+e.sep+name, value)
				return true
			})
		}
		out = append(out, row)

		// odometer over the cross product
		pos := len(idx) - 1
		for pos >= 0 {
			idx[pos]++
			if idx[pos] < len(lists[pos]) {
				break
			}
			idx[pos] = 0
			pos--
		}
		if pos < 0 {
			return out
		}
	}
}
