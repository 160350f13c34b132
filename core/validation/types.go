package validation

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/asaidimu/go-tapestry/core/document"
	"github.com/asaidimu/go-tapestry/core/schema"
)

// FieldTypes checks the value of every typed field declared by the
// document's type. Absent and nil values are left to Presence.
type FieldTypes struct {
	// Fields limits the check to the named fields.
	Fields []string
}

func (r FieldTypes) Validate(ctx context.Context, store Store, doc *document.Document) error {
	for _, f := range doc.Type().Fields() {
		if len(r.Fields) > 0 && !contains(r.Fields, f.Name) {
			continue
		}
		value, ok := doc.Read(f.Name)
		if !ok || value == nil {
			continue
		}
		if !matchesType(value, f.Type) {
			doc.Errors().Add(f.Name, document.IssueTypeMismatch,
				fmt.Sprintf("expected %s, got %T", f.Type, value))
		}
	}
	return nil
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// matchesType reports whether value can be stored as a field of type t.
// Whole floats count as integers since decoded JSON numbers may be floats.
func matchesType(value any, t schema.FieldType) bool {
	switch t {
	case schema.FieldTypeString:
		_, ok := value.(string)
		return ok
	case schema.FieldTypeNumber:
		return isNumeric(value)
	case schema.FieldTypeInteger:
		if isInteger(value) {
			return true
		}
		switch v := value.(type) {
		case float64:
			return v == math.Trunc(v)
		case float32:
			return float64(v) == math.Trunc(float64(v))
		}
		return false
	case schema.FieldTypeBoolean:
		_, ok := value.(bool)
		return ok
	case schema.FieldTypeArray:
		kind := reflect.ValueOf(value).Kind()
		return kind == reflect.Slice || kind == reflect.Array
	case schema.FieldTypeObject:
		switch value.(type) {
		case map[string]any, schema.Document:
			return true
		}
		return false
	case schema.FieldTypeTime:
		switch v := value.(type) {
		case time.Time:
			return true
		case string:
			_, err := time.Parse(time.RFC3339Nano, v)
			return err == nil
		}
		return false
	}
	return true
}

func isNumeric(value any) bool {
	switch value.(type) {
	case float32, float64:
		return true
	}
	return isInteger(value)
}

func isInteger(value any) bool {
	switch value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	}
	return false
}
