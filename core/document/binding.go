package document

import (
	"fmt"
	"reflect"

	"github.com/goccy/go-json"
)

// FromStruct converts a struct into an attribute map suitable for New or
// Assign. Field names follow the struct's json tags and nested structs
// become nested maps.
//
// The input must be a struct or a non-nil pointer to one.
//
// Example:
//
//	type Address struct {
//		City string `json:"city"`
//	}
//	type Person struct {
//		Name    string  `json:"name"`
//		Address Address `json:"address"`
//	}
//	attrs, err := FromStruct(Person{Name: "Ann", Address: Address{City: "Lagos"}})
//	// attrs is map[string]any{"name": "Ann", "address": map[string]any{"city": "Lagos"}}
func FromStruct[T any](record T) (map[string]any, error) {
	val := reflect.ValueOf(record)
	if !val.IsValid() {
		return nil, fmt.Errorf("input record cannot be nil")
	}
	if val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return nil, fmt.Errorf("input record cannot be a nil pointer to a struct")
		}
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return nil, fmt.Errorf("input record must be a struct or a pointer to a struct, got %s", val.Kind())
	}

	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	var attrs map[string]any
	if err := json.Unmarshal(data, &attrs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record attributes: %w", err)
	}
	return attrs, nil
}

// Decode copies the attributes of d, including its id and embedded
// children, into a new value of the struct type T. It is the inverse of
// FromStruct.
func Decode[T any](d *Document) (T, error) {
	var zero T
	if d == nil {
		return zero, fmt.Errorf("document cannot be nil")
	}
	typ := reflect.TypeOf(zero)
	if typ != nil && typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ == nil || typ.Kind() != reflect.Struct {
		return zero, fmt.Errorf("type parameter must be a struct type (or pointer to struct), got %v", typ)
	}

	data, err := json.Marshal(d.attributes)
	if err != nil {
		return zero, fmt.Errorf("failed to marshal %s %s: %w", d.TypeName(), d.ID(), err)
	}
	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return zero, fmt.Errorf("failed to decode %s %s: %w", d.TypeName(), d.ID(), err)
	}
	return result, nil
}
