// Package schema describes the shape of persisted documents: declared fields,
// identity key specifications, mass-assignment rules and the association
// metadata table shared by every instance of a type.
package schema

import "slices"

// Reserved attribute names.
const (
	IDField       = "_id"
	TypeField     = "_type"
	VersionsField = "versions"
)

// FieldType represents the basic field types supported by the schema system.
type FieldType string

const (
	FieldTypeString  FieldType = "string"  // Text data
	FieldTypeNumber  FieldType = "number"  // Numeric data
	FieldTypeInteger FieldType = "integer" // Numeric data
	FieldTypeBoolean FieldType = "boolean" // True/false values
	FieldTypeArray   FieldType = "array"   // Ordered list of items
	FieldTypeObject  FieldType = "object"  // Structured data with nested fields
	FieldTypeTime    FieldType = "time"    // Timestamps
	FieldTypeAny     FieldType = "any"     // Untyped value, stored verbatim
)

// FieldName is a symbolic attribute name. Attribute views accept it
// interchangeably with plain strings.
type FieldName string

// String implements fmt.Stringer.
func (f FieldName) String() string { return string(f) }

// Document is the raw attribute tree of a single record, as handed to and
// from the storage driver.
type Document map[string]any

// FieldDefinition declares a field of a type.
type FieldDefinition struct {
	Name string    `json:"name"`
	Type FieldType `json:"type"`
	// Default provides a default value for the field. Slices and maps are
	// copied into each new document.
	Default any `json:"default,omitempty"`
	// Required marks the field for presence validation.
	Required bool `json:"required,omitempty"`
	// Description provides a brief explanation of the field.
	Description string `json:"description,omitempty"`
}

// TypeDefinition is the declaration handed to Registry.Register. It is
// copied at registration time; later changes to the definition have no
// effect on the registered Type.
type TypeDefinition struct {
	// Name is the concrete type name, stored in discriminator fields.
	Name string `json:"name"`
	// Base names the super type. Subtypes share the base collection.
	Base string `json:"base,omitempty"`
	// Collection overrides the default collection name.
	Collection string `json:"collection,omitempty"`
	// Fields lists the declared fields in display order.
	Fields []FieldDefinition `json:"fields"`
	// Key is the composite identity key specification. When set the id is
	// derived from these field values instead of being generated.
	Key []string `json:"key,omitempty"`
	// Accessible restricts mass assignment to the listed fields.
	Accessible []string `json:"accessible,omitempty"`
	// Protected excludes the listed fields from mass assignment.
	Protected []string `json:"protected,omitempty"`
	// Associations is the ordered association metadata table.
	Associations []AssociationMetadata `json:"associations,omitempty"`
}

// Type is an immutable, registered type descriptor.
type Type struct {
	name         string
	base         *Type
	collection   string
	fields       []FieldDefinition
	key          []string
	accessible   map[string]struct{}
	protected    map[string]struct{}
	associations []AssociationMetadata
	registry     *Registry
}

// Name returns the concrete type name.
func (t *Type) Name() string { return t.name }

// Base returns the super type, or nil for a root type.
func (t *Type) Base() *Type { return t.base }

// Collection returns the name of the collection documents of this type live in.
func (t *Type) Collection() string { return t.collection }

// Registry returns the registry the type was registered with.
func (t *Type) Registry() *Registry { return t.registry }

// Fields returns a copy of the declared fields, including inherited ones.
func (t *Type) Fields() []FieldDefinition { return slices.Clone(t.fields) }

// Field looks up a declared field by name.
func (t *Type) Field(name string) (FieldDefinition, bool) {
	for _, f := range t.fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDefinition{}, false
}

// Key returns the composite identity key specification, if any.
func (t *Type) Key() []string { return slices.Clone(t.key) }

// HasKey reports whether the type derives identity from its own fields.
func (t *Type) HasKey() bool { return len(t.key) > 0 }

// Assignable reports whether a field may be set through mass assignment.
func (t *Type) Assignable(name string) bool {
	if _, ok := t.protected[name]; ok {
		return false
	}
	if len(t.accessible) == 0 {
		return true
	}
	_, ok := t.accessible[name]
	return ok
}

// Associations returns a copy of the ordered association metadata table.
func (t *Type) Associations() []AssociationMetadata { return slices.Clone(t.associations) }

// Association looks up association metadata by name.
func (t *Type) Association(name string) (AssociationMetadata, bool) {
	for _, a := range t.associations {
		if a.Name == name {
			return a, true
		}
	}
	return AssociationMetadata{}, false
}

// IsA reports whether t is other or one of its subtypes.
func (t *Type) IsA(other *Type) bool {
	for cur := t; cur != nil; cur = cur.base {
		if cur == other {
			return true
		}
	}
	return false
}

// Hereditary reports whether the type takes part in an inheritance hierarchy.
// Queries against hereditary types must match on the type discriminator.
func (t *Type) Hereditary() bool {
	if t.base != nil {
		return true
	}
	return len(t.registry.subtypesOf(t.name)) > 0
}

// Types returns the type names a query against t must match: every
// transitive subtype followed by t itself.
func (t *Type) Types() []string {
	var names []string
	queue := t.registry.subtypesOf(t.name)
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		names = append(names, next)
		queue = append(queue, t.registry.subtypesOf(next)...)
	}
	return append(names, t.name)
}

// Clone copies the nested map and slice structure of the attribute tree.
// Leaf values are shared.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue copies nested maps and slices of an attribute value.
func CloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return map[string]any(Document(t).Clone())
	case Document:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = CloneValue(e)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(t))
		for i, e := range t {
			out[i] = map[string]any(Document(e).Clone())
		}
		return out
	case []string:
		return slices.Clone(t)
	}
	return v
}
