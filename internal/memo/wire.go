package memo

import (
	"fmt"
	"time"

	"github.com/ohler55/ojg/oj"

	"github.com/jeromerg/filoc/api"
)

// The persisted memo is codec-agnostic JSON: one element per cached
// path, each record flattened to [name, value] pairs so field order
// survives a generic JSON parse.
//
//	[{"path": p, "stamp": rfc3339nano, "rows": [[["k", v], ...], ...]}, ...]

func encodeShard(sh *shard) ([]byte, error) {
	wire := make([]any, 0, len(sh.entries))
	for path, e := range sh.entries {
		rows := make([]any, len(e.records))
		for i, r := range e.records {
			pairs := make([]any, 0, r.Len())
			r.Each(func(name string, value any) bool {
				pairs = append(pairs, []any{name, value})
				return true
			})
			rows[i] = pairs
		}
		wire = append(wire, map[string]any{
			"path":  path,
			"stamp": e.stamp.Format(time.RFC3339Nano),
			"rows":  rows,
		})
	}
	return []byte(oj.JSON(wire, 2)), nil
}

func decodeShard(data []byte) (*shard, error) {
	parsed, err := oj.Parse(data)
	if err != nil {
		return nil, err
	}
	list, ok := parsed.([]any)
	if !ok {
		return nil, fmt.Errorf("expected array, got %T", parsed)
	}
	sh := &shard{entries: map[string]entry{}}
	for _, raw := range list {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected object entry, got %T", raw)
		}
		path, _ := m["path"].(string)
		stampStr, _ := m["stamp"].(string)
		if path == "" || stampStr == "" {
			return nil, fmt.Errorf("entry lacks path or stamp")
		}
		stamp, err := time.Parse(time.RFC3339Nano, stampStr)
		if err != nil {
			return nil, fmt.Errorf("entry %q: bad stamp: %w", path, err)
		}
		rows, ok := m["rows"].([]any)
		if !ok {
			return nil, fmt.Errorf("entry %q: rows missing", path)
		}
		records := make([]*api.Record, 0, len(rows))
		for _, rawRow := range rows {
			pairs, ok := rawRow.([]any)
			if !ok {
				return nil, fmt.Errorf("entry %q: bad row", path)
			}
			r := api.NewRecord()
			for _, rawPair := range pairs {
				pair, ok := rawPair.([]any)
				if !ok || len(pair) != 2 {
					return nil, fmt.Errorf("entry %q: bad field pair", path)
				}
				name, ok := pair[0].(string)
				if !ok {
					return nil, fmt.Errorf("entry %q: non-string field name", path)
				}
				r.Set(name, pair[1])
			}
			records = append(records, r)
		}
		sh.entries[path] = entry{stamp: stamp, records: records}
	}
	return sh, nil
}
