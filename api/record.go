package api

import (
	"fmt"
	"sort"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Record is one file's decoded content (or one row of a multi-entry file):
// an ordered mapping from field name to scalar value. Field order is
// insertion order and survives encode/decode round trips.
//
// Values are restricted to a closed scalar set: string, int64, float64,
// bool and nil. Normalize coerces the remaining Go numeric types into it.
type Record struct {
	fields *orderedmap.OrderedMap[string, any]
}

// NewRecord returns an empty record.
func NewRecord() *Record {
	return &Record{fields: orderedmap.New[string, any]()}
}

// RecordOf builds a record from alternating key/value arguments.
// Intended for tests and small literals.
func RecordOf(kv ...any) *Record {
	if len(kv)%2 != 0 {
		panic("RecordOf: odd number of arguments")
	}
	r := NewRecord()
	for i := 0; i < len(kv); i += 2 {
		r.Set(kv[i].(string), kv[i+1])
	}
	return r
}

// Set stores a field, keeping the insertion position of an existing key.
// The value is normalized into the scalar set.
func (r *Record) Set(name string, value any) {
	r.fields.Set(name, Normalize(value))
}

// Get returns the field value and whether the field is present.
func (r *Record) Get(name string) (any, bool) {
	return r.fields.Get(name)
}

// Has reports whether the field is present.
func (r *Record) Has(name string) bool {
	_, ok := r.fields.Get(name)
	return ok
}

// Delete removes a field if present.
func (r *Record) Delete(name string) {
	r.fields.Delete(name)
}

// Len returns the number of fields.
func (r *Record) Len() int {
	return r.fields.Len()
}

// Names returns the field names in insertion order.
func (r *Record) Names() []string {
	names := make([]string, 0, r.fields.Len())
	for p := r.fields.Oldest(); p != nil; p = p.Next() {
		names = append(names, p.Key)
	}
	return names
}

// Each calls fn for every field in insertion order until fn returns false.
func (r *Record) Each(fn func(name string, value any) bool) {
	for p := r.fields.Oldest(); p != nil; p = p.Next() {
		if !fn(p.Key, p.Value) {
			return
		}
	}
}

// Clone returns an independent copy preserving field order.
func (r *Record) Clone() *Record {
	c := NewRecord()
	for p := r.fields.Oldest(); p != nil; p = p.Next() {
		c.fields.Set(p.Key, p.Value)
	}
	return c
}

// Map returns the fields as a plain (unordered) map.
func (r *Record) Map() map[string]any {
	m := make(map[string]any, r.fields.Len())
	for p := r.fields.Oldest(); p != nil; p = p.Next() {
		m[p.Key] = p.Value
	}
	return m
}

// Equal reports whether two records hold the same fields with equal
// values, ignoring field order.
func (r *Record) Equal(o *Record) bool {
	if r.fields.Len() != o.fields.Len() {
		return false
	}
	for p := r.fields.Oldest(); p != nil; p = p.Next() {
		ov, ok := o.fields.Get(p.Key)
		if !ok || !ValueEqual(p.Value, ov) {
			return false
		}
	}
	return true
}

func (r *Record) String() string {
	s := "{"
	first := true
	for p := r.fields.Oldest(); p != nil; p = p.Next() {
		if !first {
			s += ", "
		}
		first = false
		s += fmt.Sprintf("%s: %v", p.Key, p.Value)
	}
	return s + "}"
}

// Binding maps placeholder names to scalar values. A partial binding
// (a subset of a template's placeholders) acts as a query constraint; a
// full binding is required to build a concrete path.
type Binding map[string]any

// Restrict returns the subset of b whose keys appear in names.
func (b Binding) Restrict(names []string) Binding {
	out := Binding{}
	for _, n := range names {
		if v, ok := b[n]; ok {
			out[n] = v
		}
	}
	return out
}

// Clone returns a shallow copy.
func (b Binding) Clone() Binding {
	out := make(Binding, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Names returns the bound names, sorted.
func (b Binding) Names() []string {
	names := make([]string, 0, len(b))
	for k := range b {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Normalize coerces a value into the record scalar set. Signed and
// unsigned integers collapse to int64, float32 to float64. Values already
// in the set pass through unchanged; anything else is kept as-is and
// rejected later by the codec that tries to encode it.
func Normalize(v any) any {
	switch x := v.(type) {
	case nil, bool, string, int64, float64:
		return x
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	case float32:
		return float64(x)
	default:
		return v
	}
}

// ValueEqual compares two normalized scalars. Integers and floats
// compare numerically across the two kinds, so an int64(3) extracted
// from a path equals a float64(3) decoded from content.
func ValueEqual(a, b any) bool {
	a, b = Normalize(a), Normalize(b)
	if ai, ok := a.(int64); ok {
		if bf, ok := b.(float64); ok {
			return float64(ai) == bf
		}
	}
	if af, ok := a.(float64); ok {
		if bi, ok := b.(int64); ok {
			return af == float64(bi)
		}
	}
	return a == b
}
