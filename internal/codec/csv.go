package codec

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/jeromerg/filoc/api"
)

// CSV encodes records as one CSV table per file, header row first. CSV
// carries no type information, so all decoded values are strings; the
// path placeholders stay typed because they come from the template, not
// from the file content. CSV files are always multi-entry.
type CSV struct{}

func (CSV) Singleton() bool { return false }

func (CSV) Decode(data []byte) ([]*api.Record, error) {
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	header := rows[0]
	records := make([]*api.Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		r := api.NewRecord()
		for i, name := range header {
			if i < len(row) {
				r.Set(name, row[i])
			}
		}
		records = append(records, r)
	}
	return records, nil
}

func (CSV) Encode(records []*api.Record) ([]byte, error) {
	// header is the union of all field names, in first-seen order
	var header []string
	seen := map[string]bool{}
	for _, r := range records {
		r.Each(func(name string, _ any) bool {
			if !seen[name] {
				seen[name] = true
				header = append(header, name)
			}
			return true
		})
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, r := range records {
		row := make([]string, len(header))
		for i, name := range header {
			v, ok := r.Get(name)
			if !ok || v == nil {
				continue
			}
			if !scalarOK(v) {
				return nil, fmt.Errorf("field %q: unsupported value type %T", name, v)
			}
			row[i] = fmt.Sprintf("%v", v)
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
