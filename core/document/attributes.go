package document

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/asaidimu/go-tapestry/core/query"
	"github.com/asaidimu/go-tapestry/core/schema"
)

// Attributes is a read view over a document's attribute store. Keys may be
// given as strings, schema.FieldName values or any fmt.Stringer.
type Attributes struct {
	m schema.Document
}

// Get returns the value stored under key.
func (a Attributes) Get(key any) (any, bool) {
	name, ok := keyName(key)
	if !ok {
		return nil, false
	}
	v, ok := a.m[name]
	return v, ok
}

// Value returns the value stored under key, or nil.
func (a Attributes) Value(key any) any {
	v, _ := a.Get(key)
	return v
}

// Has reports whether key is present.
func (a Attributes) Has(key any) bool {
	_, ok := a.Get(key)
	return ok
}

// Keys returns the attribute names in sorted order.
func (a Attributes) Keys() []string {
	keys := make([]string, 0, len(a.m))
	for k := range a.m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Len returns the number of attributes.
func (a Attributes) Len() int { return len(a.m) }

func keyName(key any) (string, bool) {
	switch k := key.(type) {
	case string:
		return k, true
	case schema.FieldName:
		return string(k), true
	case fmt.Stringer:
		return k.String(), true
	}
	return "", false
}

// valueEqual compares attribute values with numeric leniency at the top
// level and structural equality below it.
func valueEqual(a, b any) bool {
	return query.Equal(a, b)
}

func deepCopy(m map[string]any) schema.Document {
	if m == nil {
		return schema.Document{}
	}
	return schema.Document(m).Clone()
}

func copyValue(v any) any { return schema.CloneValue(v) }

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case schema.Document:
		return map[string]any(m), true
	}
	return nil, false
}

func asList(v any) []any {
	switch l := v.(type) {
	case []any:
		return l
	case []map[string]any:
		out := make([]any, len(l))
		for i, m := range l {
			out[i] = m
		}
		return out
	case []schema.Document:
		out := make([]any, len(l))
		for i, m := range l {
			out[i] = map[string]any(m)
		}
		return out
	}
	return nil
}

// sameMap reports whether a and b are the same map, not merely equal ones.
func sameMap(a, b map[string]any) bool {
	if a == nil || b == nil {
		return false
	}
	return reflect.ValueOf(a).UnsafePointer() == reflect.ValueOf(b).UnsafePointer()
}
