package query

import (
	"reflect"
	"slices"
)

// Conditions is a flat field -> value criteria map, the shape association
// and uniqueness lookups are expressed in. Slice values become "in" checks
// unless wrapped with Exact.
type Conditions map[string]any

// ExactValue is a criteria value always compared for equality.
type ExactValue struct {
	Value FilterValue
}

// Exact wraps value so Filter compares it as a whole, even when it is a slice.
func Exact(value FilterValue) ExactValue {
	return ExactValue{Value: value}
}

// Filter converts the criteria into an AND group with fields in sorted
// order, so equal criteria always produce equal filters. An empty map
// yields nil, which matches every document.
func (c Conditions) Filter() *QueryFilter {
	if len(c) == 0 {
		return nil
	}
	fields := make([]string, 0, len(c))
	for field := range c {
		fields = append(fields, field)
	}
	slices.Sort(fields)

	filters := make([]QueryFilter, 0, len(fields))
	for _, field := range fields {
		value := c[field]
		operator := ComparisonOperatorEq
		if exact, ok := value.(ExactValue); ok {
			value = exact.Value
		} else if values, ok := asSlice(value); ok {
			operator = ComparisonOperatorIn
			value = values
		}
		filters = append(filters, QueryFilter{
			Condition: &FilterCondition{Field: field, Operator: operator, Value: value},
		})
	}
	if len(filters) == 1 {
		return &filters[0]
	}
	return And(filters...)
}

// asSlice normalises slice values other than []byte to []FilterValue.
func asSlice(value any) ([]FilterValue, bool) {
	if value == nil {
		return nil, false
	}
	if values, ok := value.([]FilterValue); ok {
		return values, true
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]FilterValue, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
