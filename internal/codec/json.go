// Package codec ships the built-in content codecs: JSON, YAML and CSV.
// Each codec maps file bytes to ordered records and back, preserving
// field order in both directions.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/ohler55/ojg/oj"

	"github.com/jeromerg/filoc/api"
)

var (
	errNested = errors.New("nested objects and arrays are not supported in records")
	errShape  = errors.New("unexpected top-level shape")
)

// JSON encodes records as JSON. A singleton file holds one object, a
// multi file an array of objects.
type JSON struct {
	Multi bool
}

func (c JSON) Singleton() bool { return !c.Multi }

func (c JSON) Decode(data []byte) ([]*api.Record, error) {
	h := &tokenSink{}
	if err := oj.Tokenize(data, h); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	if h.err != nil {
		return nil, h.err
	}
	if c.Multi {
		if !h.topArray {
			return nil, fmt.Errorf("%w: multi codec expects a json array", errShape)
		}
		return h.records, nil
	}
	if h.topArray || len(h.records) != 1 {
		return nil, fmt.Errorf("%w: singleton codec expects a single json object", errShape)
	}
	return h.records, nil
}

func (c JSON) Encode(records []*api.Record) ([]byte, error) {
	var buf bytes.Buffer
	if c.Multi {
		buf.WriteByte('[')
		for i, r := range records {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.WriteString("\n  ")
			if err := appendObject(&buf, r, "  "); err != nil {
				return nil, err
			}
		}
		if len(records) > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString("]\n")
		return buf.Bytes(), nil
	}
	if len(records) != 1 {
		return nil, fmt.Errorf("%w: singleton codec encodes exactly one record, got %d", errShape, len(records))
	}
	if err := appendObject(&buf, records[0], ""); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func appendObject(buf *bytes.Buffer, r *api.Record, indent string) error {
	buf.WriteByte('{')
	var eachErr error
	i := 0
	r.Each(func(name string, value any) bool {
		if !scalarOK(value) {
			eachErr = fmt.Errorf("field %q: unsupported value type %T", name, value)
			return false
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString("\n" + indent + "  ")
		buf.WriteString(oj.JSON(name))
		buf.WriteString(": ")
		buf.WriteString(oj.JSON(value))
		i++
		return true
	})
	if eachErr != nil {
		return eachErr
	}
	if i > 0 {
		buf.WriteString("\n" + indent)
	}
	buf.WriteByte('}')
	return nil
}

func scalarOK(v any) bool {
	switch v.(type) {
	case nil, bool, string, int64, float64:
		return true
	}
	return false
}

// tokenSink assembles flat records from the ojg token stream. Any
// container nesting below one record deep is rejected.
type tokenSink struct {
	records  []*api.Record
	cur      *api.Record
	key      string
	topArray bool
	started  bool
	err      error
}

func (h *tokenSink) ObjectStart() {
	if h.err != nil {
		return
	}
	if h.cur != nil {
		h.err = errNested
		return
	}
	h.started = true
	h.cur = api.NewRecord()
}

func (h *tokenSink) ObjectEnd() {
	if h.err != nil || h.cur == nil {
		return
	}
	h.records = append(h.records, h.cur)
	h.cur = nil
}

func (h *tokenSink) ArrayStart() {
	if h.err != nil {
		return
	}
	if h.started || h.cur != nil {
		h.err = errNested
		return
	}
	h.started = true
	h.topArray = true
}

func (h *tokenSink) ArrayEnd() {}

func (h *tokenSink) Key(k string) { h.key = k }

func (h *tokenSink) value(v any) {
	if h.err != nil {
		return
	}
	if h.cur == nil {
		h.err = fmt.Errorf("%w: scalar outside of a record", errShape)
		return
	}
	h.cur.Set(h.key, v)
}

func (h *tokenSink) Null()           { h.value(nil) }
func (h *tokenSink) Bool(v bool)     { h.value(v) }
func (h *tokenSink) Int(v int64)     { h.value(v) }
func (h *tokenSink) Float(v float64) { h.value(v) }
func (h *tokenSink) String(v string) { h.value(v) }

func (h *tokenSink) Number(num string) {
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		h.err = fmt.Errorf("parse number %q: %w", num, err)
		return
	}
	h.value(f)
}
