// Package locate resolves path templates against a storage provider:
// building concrete paths from bindings, enumerating existing files that
// satisfy partial key constraints and extracting key bindings from
// matched paths.
package locate

import (
	"errors"
	"iter"

	"github.com/jeromerg/filoc/api"
	"github.com/jeromerg/filoc/internal/template"
)

// Entry is one located file: its path plus the key binding extracted
// from it.
type Entry struct {
	Path string
	Keys api.Binding
}

// Locator wraps a compiled template and a storage provider. It is
// immutable after construction.
type Locator struct {
	tmpl  *template.Compiled
	store api.Storage
}

// New compiles locpath and binds it to the provider.
func New(locpath string, store api.Storage) (*Locator, error) {
	tmpl, err := template.Compile(locpath)
	if err != nil {
		return nil, err
	}
	return &Locator{tmpl: tmpl, store: store}, nil
}

// Template returns the compiled template.
func (l *Locator) Template() *template.Compiled { return l.tmpl }

// Storage returns the bound storage provider.
func (l *Locator) Storage() api.Storage { return l.store }

// Names returns the placeholder names in appearance order.
func (l *Locator) Names() []string { return l.tmpl.Names() }

// BuildPath renders the concrete path for a full binding. It never
// touches storage.
func (l *Locator) BuildPath(binding api.Binding) (string, error) {
	return l.tmpl.Build(binding)
}

// Find lazily yields every file under the template's glob prefix whose
// path matches the template and whose extracted binding agrees with
// constraints on every constrained placeholder. Constraint keys that are
// not placeholders of this template are ignored here. The sequence is
// finite, non-restartable and follows the provider's listing order; a
// storage failure is yielded once as the final element.
func (l *Locator) Find(constraints api.Binding) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		paths, err := l.store.List(l.tmpl.GlobPrefix())
		if err != nil {
			yield(Entry{}, err)
			return
		}
		for _, p := range paths {
			keys, ok := l.tmpl.Match(p)
			if !ok {
				continue
			}
			if !l.satisfies(keys, constraints) {
				continue
			}
			if !yield(Entry{Path: p, Keys: keys}, nil) {
				return
			}
		}
	}
}

// FindPaths is Find reduced to the matching paths.
func (l *Locator) FindPaths(constraints api.Binding) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for e, err := range l.Find(constraints) {
			if !yield(e.Path, err) {
				return
			}
		}
	}
}

// ListPaths collects FindPaths into a slice.
func (l *Locator) ListPaths(constraints api.Binding) ([]string, error) {
	var out []string
	for p, err := range l.FindPaths(constraints) {
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Exists reports whether the file for a full binding is present.
func (l *Locator) Exists(binding api.Binding) (bool, error) {
	p, err := l.BuildPath(binding)
	if err != nil {
		return false, err
	}
	if _, err := l.store.Stat(p); err != nil {
		if errors.Is(err, api.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (l *Locator) satisfies(keys, constraints api.Binding) bool {
	for name, want := range constraints {
		if !l.tmpl.HasName(name) {
			continue
		}
		got, ok := keys[name]
		if !ok || !api.ValueEqual(got, want) {
			return false
		}
	}
	return true
}
