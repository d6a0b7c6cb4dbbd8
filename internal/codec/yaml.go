package codec

import (
	"fmt"

	yaml "gopkg.in/yaml.v2"

	"github.com/jeromerg/filoc/api"
)

// YAML encodes records as YAML documents. yaml.MapSlice carries the
// field order through both directions.
type YAML struct {
	Multi bool
}

func (c YAML) Singleton() bool { return !c.Multi }

func (c YAML) Decode(data []byte) ([]*api.Record, error) {
	if c.Multi {
		var list []yaml.MapSlice
		if err := yaml.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
		records := make([]*api.Record, 0, len(list))
		for _, ms := range list {
			r, err := recordFromMapSlice(ms)
			if err != nil {
				return nil, err
			}
			records = append(records, r)
		}
		return records, nil
	}
	var ms yaml.MapSlice
	if err := yaml.Unmarshal(data, &ms); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	r, err := recordFromMapSlice(ms)
	if err != nil {
		return nil, err
	}
	return []*api.Record{r}, nil
}

func (c YAML) Encode(records []*api.Record) ([]byte, error) {
	if c.Multi {
		list := make([]yaml.MapSlice, 0, len(records))
		for _, r := range records {
			ms, err := mapSliceFromRecord(r)
			if err != nil {
				return nil, err
			}
			list = append(list, ms)
		}
		return yaml.Marshal(list)
	}
	if len(records) != 1 {
		return nil, fmt.Errorf("%w: singleton codec encodes exactly one record, got %d", errShape, len(records))
	}
	ms, err := mapSliceFromRecord(records[0])
	if err != nil {
		return nil, err
	}
	return yaml.Marshal(ms)
}

func recordFromMapSlice(ms yaml.MapSlice) (*api.Record, error) {
	r := api.NewRecord()
	for _, item := range ms {
		name, ok := item.Key.(string)
		if !ok {
			return nil, fmt.Errorf("non-string field name %v", item.Key)
		}
		switch item.Value.(type) {
		case yaml.MapSlice, map[any]any, map[string]any, []any:
			return nil, fmt.Errorf("field %q: %w", name, errNested)
		}
		r.Set(name, item.Value)
	}
	return r, nil
}

func mapSliceFromRecord(r *api.Record) (yaml.MapSlice, error) {
	ms := make(yaml.MapSlice, 0, r.Len())
	var err error
	r.Each(func(name string, value any) bool {
		if !scalarOK(value) {
			err = fmt.Errorf("field %q: unsupported value type %T", name, value)
			return false
		}
		ms = append(ms, yaml.MapItem{Key: name, Value: value})
		return true
	})
	return ms, err
}
