package join

import (
	"context"
	"fmt"
	"strings"

	"github.com/jeromerg/filoc/api"
)

// pendingWrite collects the records destined for one file of one
// source, in row order.
type pendingWrite struct {
	src     *Source
	path    string
	keys    api.Binding
	records []*api.Record
}

// WriteAll splits composite rows into per-source records, groups them
// by target path and writes each file once. Rows carrying fields for a
// read-only source fail with *api.NotWritableError; rows lacking a key
// required to build a source's path fail with *api.IncompleteKeyError.
// Nothing is written until every row has been split successfully.
func (e *Engine) WriteAll(ctx context.Context, rows []*api.Record) error {
	var order []string
	pending := map[string]*pendingWrite{}

	for ri, row := range rows {
		keyPool := api.Binding{}
		content := map[string]*api.Record{}
		var contentOrder []string
		var splitErr error

		row.Each(func(name string, value any) bool {
			prefix, field, ok := strings.Cut(name, e.sep)
			if !ok {
				splitErr = fmt.Errorf("row %d: field %q lacks a source prefix", ri, name)
				return false
			}
			if prefix == e.level {
				keyPool[field] = value
				return true
			}
			if _, known := e.byName[prefix]; !known {
				splitErr = fmt.Errorf("row %d: field %q names unknown source %q", ri, name, prefix)
				return false
			}
			rec, ok := content[prefix]
			if !ok {
				rec = api.NewRecord()
				content[prefix] = rec
				contentOrder = append(contentOrder, prefix)
			}
			rec.Set(field, value)
			return true
		})
		if splitErr != nil {
			return splitErr
		}

		for _, srcName := range contentOrder {
			src := e.byName[srcName]
			if !src.Writable {
				return &api.NotWritableError{Source: srcName}
			}
			binding := api.Binding{}
			for _, name := range src.Locator.Names() {
				v, ok := keyPool[name]
				if !ok {
					return &api.IncompleteKeyError{Source: srcName, Name: name}
				}
				binding[name] = v
			}
			path, err := src.Locator.BuildPath(binding)
			if err != nil {
				return fmt.Errorf("source %q: %w", srcName, err)
			}
			groupKey := srcName + "\x00" + path
			pw, ok := pending[groupKey]
			if !ok {
				pw = &pendingWrite{src: src, path: path, keys: binding}
				pending[groupKey] = pw
				order = append(order, groupKey)
			}
			pw.records = append(pw.records, content[srcName])
		}
	}

	for _, groupKey := range order {
		if err := ctx.Err(); err != nil {
			return err
		}
		pw := pending[groupKey]
		records := pw.records
		if pw.src.Cache.Codec().Singleton() {
			coalesced, err := coalesce(pw.path, records)
			if err != nil {
				return err
			}
			records = coalesced
		}
		if err := pw.src.Cache.Write(pw.path, pw.keys, records); err != nil {
			return err
		}
	}

	for _, src := range e.sources {
		if err := src.Cache.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// coalesce folds identical rows aimed at one singleton file into one
// record; genuinely different rows are a conflict.
func coalesce(path string, records []*api.Record) ([]*api.Record, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("no records for %s", path)
	}
	first := records[0]
	for _, r := range records[1:] {
		if !first.Equal(r) {
			return nil, fmt.Errorf("conflicting rows for singleton file %s: %v != %v", path, first, r)
		}
	}
	return []*api.Record{first}, nil
}
