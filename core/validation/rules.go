package validation

import (
	"context"
	"fmt"
	"reflect"

	"github.com/asaidimu/go-tapestry/core/document"
	"github.com/asaidimu/go-tapestry/core/query"
)

// Uniqueness rejects a value already stored on another record.
//
// The check is advisory: a concurrent insert between the existence query and
// the save is not detected. Storage that must guarantee uniqueness needs a
// unique index as well.
type Uniqueness struct {
	// Attribute is the validated attribute.
	Attribute string
	// Field overrides the stored field queried for the value.
	Field string
	// Scope narrows the query to records sharing the candidate's value of
	// this field.
	Scope string
	// In names another registered type to check against. Matches in another
	// type are always rejected.
	In string
	// AllowBlank skips the check when the value is nil or empty.
	AllowBlank bool
	// Message replaces the default "is already taken".
	Message string
}

func (u Uniqueness) Validate(ctx context.Context, store Store, doc *document.Document) error {
	value, _ := doc.Read(u.Attribute)
	if u.AllowBlank && blank(value) {
		return nil
	}

	field := u.Field
	if field == "" {
		field = u.Attribute
	}
	conditions := query.Conditions{field: query.Exact(value)}
	if u.Scope != "" {
		scope, _ := doc.Read(u.Scope)
		conditions[u.Scope] = query.Exact(scope)
	}

	typ := doc.Type()
	if u.In != "" {
		external, err := typ.Registry().Lookup(u.In)
		if err != nil {
			return fmt.Errorf("failed to resolve uniqueness target of %s: %w", u.Attribute, err)
		}
		typ = external
	}

	taken, err := store.Exists(ctx, typ, conditions)
	if err != nil {
		return fmt.Errorf("failed to check uniqueness of %s: %w", u.Attribute, err)
	}
	if !taken {
		return nil
	}
	if doc.NewRecord() || doc.KeyChanged() || u.In != "" {
		doc.Errors().Add(u.Attribute, document.IssueTaken, message(u.Message, "is already taken"))
	}
	return nil
}

// Presence rejects nil and empty values.
type Presence struct {
	Attributes []string
	Message    string
}

func (p Presence) Validate(_ context.Context, _ Store, doc *document.Document) error {
	for _, name := range p.Attributes {
		value, _ := doc.Read(name)
		if blank(value) {
			doc.Errors().Add(name, document.IssueBlank, message(p.Message, "can't be blank"))
		}
	}
	return nil
}

func message(custom, fallback string) string {
	if custom != "" {
		return custom
	}
	return fallback
}

func blank(v any) bool {
	if v == nil {
		return true
	}
	switch t := v.(type) {
	case string:
		return t == ""
	case bool:
		return false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
