// Package document holds the in-memory representation of persisted records:
// the attribute store with identity assignment and change tracking, and the
// parent/child graph that keeps embedded payloads consistent with their
// ancestors.
package document

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/asaidimu/go-tapestry/core/query"
	"github.com/asaidimu/go-tapestry/core/schema"
	"github.com/google/uuid"
)

// Document is one persisted or embeddable record. It is not safe for
// concurrent mutation.
type Document struct {
	typ        *schema.Type
	attributes schema.Document
	original   schema.Document
	newRecord  bool

	parent          *Document
	associationName string
	observers       []Observer
	children        []*Document
	vacancies       map[string]vacancy

	related map[string]any
	errors  Errors
}

// New constructs a fresh record: field defaults first, then a mass
// assignment of attrs honoring the type's accessible and protected lists.
// Any "_id" in attrs is ignored. The document is identified before New
// returns.
func New(typ *schema.Type, attrs map[string]any) *Document {
	d := &Document{
		typ:        typ,
		attributes: defaults(typ),
		original:   schema.Document{},
		newRecord:  true,
		related:    make(map[string]any),
	}
	d.Assign(attrs)
	d.Identify()
	return d
}

// Instantiate wraps attributes loaded from storage. When attrs carries an id
// or forceAllocate is set the map is used verbatim: no defaults, no mass
// assignment filtering and no identity generation. Otherwise it behaves like
// New.
func Instantiate(typ *schema.Type, attrs map[string]any, forceAllocate bool) *Document {
	if attrs == nil {
		attrs = make(map[string]any)
	}
	if isBlank(attrs[schema.IDField]) && !forceAllocate {
		return New(typ, attrs)
	}
	d := &Document{
		typ:        typ,
		attributes: schema.Document(attrs),
		newRecord:  isBlank(attrs[schema.IDField]),
		related:    make(map[string]any),
	}
	d.original = deepCopy(d.attributes)
	return d
}

func defaults(typ *schema.Type) schema.Document {
	attrs := make(schema.Document)
	for _, f := range typ.Fields() {
		if f.Default != nil {
			attrs[f.Name] = copyValue(f.Default)
		}
	}
	return attrs
}

// Assign mass-assigns attrs. Fields excluded by the type's accessible or
// protected lists, and the id, are skipped silently.
func (d *Document) Assign(attrs map[string]any) {
	for name, value := range attrs {
		if name == schema.IDField || !d.typ.Assignable(name) {
			continue
		}
		d.attributes[name] = value
	}
}

// Identify assigns the document id. A new record of a type with a key
// specification gets the parameterized key values; any record still without
// an id gets a random one. An existing id of a persisted record is never
// replaced. Hereditary types also record their discriminator.
func (d *Document) Identify() {
	if d.typ.HasKey() && d.newRecord {
		key := d.typ.Key()
		parts := make([]string, 0, len(key))
		for _, field := range key {
			if v, ok := d.attributes[field]; ok && v != nil {
				parts = append(parts, fmt.Sprint(v))
			}
		}
		if id := schema.Parameterize(strings.Join(parts, " ")); id != "" {
			d.attributes[schema.IDField] = id
		}
	}
	if isBlank(d.attributes[schema.IDField]) {
		d.attributes[schema.IDField] = uuid.New().String()
	}
	if d.typ.Hereditary() {
		d.attributes[schema.TypeField] = d.typ.Name()
	}
}

// Clone returns a new, unsaved record carrying a deep copy of the current
// attributes minus the id, the version history and any extra fields named
// in strip.
func (d *Document) Clone(strip ...string) *Document {
	attrs := deepCopy(d.attributes)
	delete(attrs, schema.IDField)
	delete(attrs, schema.VersionsField)
	for _, name := range strip {
		delete(attrs, name)
	}
	c := Instantiate(d.typ, attrs, true)
	c.newRecord = true
	c.original = schema.Document{}
	c.Identify()
	return c
}

// Type returns the registered type descriptor.
func (d *Document) Type() *schema.Type { return d.typ }

// TypeName returns the concrete type name, as stored in discriminators.
func (d *Document) TypeName() string { return d.typ.Name() }

// ID returns the document id, or "" when none is set.
func (d *Document) ID() string {
	switch id := d.attributes[schema.IDField].(type) {
	case nil:
		return ""
	case string:
		return id
	default:
		return fmt.Sprint(id)
	}
}

// NewRecord reports whether the document has not been persisted yet.
func (d *Document) NewRecord() bool { return d.newRecord }

// Hereditary reports whether the document type takes part in inheritance.
func (d *Document) Hereditary() bool { return d.typ.Hereditary() }

// RawAttributes returns the literal attribute store. Mutations through the
// returned map bypass change notification.
func (d *Document) RawAttributes() schema.Document { return d.attributes }

// Attributes returns a read view over the attribute store.
func (d *Document) Attributes() Attributes { return Attributes{m: d.attributes} }

// Read returns the value of a single attribute.
func (d *Document) Read(name string) (any, bool) {
	v, ok := d.attributes[name]
	return v, ok
}

// Write sets a single attribute and notifies observers, so every ancestor
// reflects the change when Write returns. Direct writes are not subject to
// mass-assignment rules.
func (d *Document) Write(name string, value any) error {
	if name == schema.IDField && !d.newRecord && !query.Equal(d.attributes[name], value) {
		return fmt.Errorf("%w: %s %s", ErrIdentityImmutable, d.typ.Name(), d.ID())
	}
	d.attributes[name] = value
	return d.Notify()
}

// Unset removes a single attribute and notifies observers.
func (d *Document) Unset(name string) error {
	if name == schema.IDField {
		return fmt.Errorf("%w: %s %s", ErrIdentityImmutable, d.typ.Name(), d.ID())
	}
	delete(d.attributes, name)
	return d.Notify()
}

// Change is the before and after value of a modified attribute.
type Change struct {
	Old any
	New any
}

// Changed reports whether an attribute differs from its last loaded or
// persisted value.
func (d *Document) Changed(name string) bool {
	old, hadOld := d.original[name]
	cur, hasCur := d.attributes[name]
	if hadOld != hasCur {
		return true
	}
	return !valueEqual(old, cur)
}

// Changes returns every modified attribute.
func (d *Document) Changes() map[string]Change {
	changes := make(map[string]Change)
	for name, cur := range d.attributes {
		if d.Changed(name) {
			changes[name] = Change{Old: d.original[name], New: cur}
		}
	}
	for name, old := range d.original {
		if _, ok := d.attributes[name]; !ok {
			changes[name] = Change{Old: old}
		}
	}
	return changes
}

// KeyChanged reports whether any field of the identity key specification,
// or the id when the type declares none, changed since the last load.
func (d *Document) KeyChanged() bool {
	key := d.typ.Key()
	if len(key) == 0 {
		key = []string{schema.IDField}
	}
	for _, field := range key {
		if d.Changed(field) {
			return true
		}
	}
	return false
}

// MarkPersisted records a successful save: the record is no longer new and
// the current attributes become the baseline for change tracking. Attached
// children are marked along with it.
func (d *Document) MarkPersisted() {
	d.newRecord = false
	d.original = deepCopy(d.attributes)
	for _, child := range d.children {
		child.MarkPersisted()
	}
}

// Refresh replaces the attribute store with attrs, as loaded from storage.
// Memoized associations are dropped and attached children detached since
// their payloads no longer live in this tree. The store map is refilled in
// place, so an embedded document stays a live view of its parent's tree and
// the parent is notified. A nil attrs leaves an empty store.
func (d *Document) Refresh(attrs map[string]any) error {
	for _, child := range d.children {
		child.detach()
	}
	d.children = nil
	d.vacancies = nil
	d.related = make(map[string]any)

	if d.attributes == nil {
		d.attributes = make(schema.Document)
	}
	if !sameMap(d.attributes, attrs) {
		loaded := maps.Clone(attrs)
		clear(d.attributes)
		maps.Copy(d.attributes, loaded)
	}
	d.original = deepCopy(d.attributes)
	return d.Notify()
}

// Equal compares documents by id.
func (d *Document) Equal(other *Document) bool {
	if d == nil || other == nil {
		return d == other
	}
	return d.ID() == other.ID()
}

// Key returns nil for a new record, or the id as the only key component.
func (d *Document) Key() []string {
	if d.newRecord {
		return nil
	}
	return []string{d.ID()}
}

// Param returns the id in its URL parameter form.
func (d *Document) Param() string { return d.ID() }

// Errors returns the validation issues recorded on the document.
func (d *Document) Errors() *Errors { return &d.errors }

// DynamicFields returns the names of attributes that are neither declared
// fields, associations nor reserved, in sorted order.
func (d *Document) DynamicFields() []string {
	var names []string
	for name := range d.attributes {
		if name == schema.IDField || name == schema.TypeField {
			continue
		}
		if _, ok := d.typ.Field(name); ok {
			continue
		}
		if _, ok := d.typ.Association(name); ok {
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// String renders the type name, the id, the declared fields in declaration
// order and then any dynamic fields.
func (d *Document) String() string {
	var sb strings.Builder
	sb.WriteString(d.typ.Name())
	sb.WriteString("{_id: ")
	sb.WriteString(d.ID())
	for _, f := range d.typ.Fields() {
		sb.WriteString(", ")
		sb.WriteString(f.Name)
		sb.WriteString(": ")
		sb.WriteString(inspect(d.attributes[f.Name]))
	}
	for _, name := range d.DynamicFields() {
		sb.WriteString(", ")
		sb.WriteString(name)
		sb.WriteString(": ")
		sb.WriteString(inspect(d.attributes[name]))
	}
	sb.WriteString("}")
	return sb.String()
}

func inspect(v any) string {
	switch s := v.(type) {
	case nil:
		return "nil"
	case string:
		return fmt.Sprintf("%q", s)
	default:
		return fmt.Sprintf("%v", s)
	}
}

// Memo returns the memoized value of an association.
func (d *Document) Memo(name string) (any, bool) {
	v, ok := d.related[name]
	return v, ok
}

// Memoize stores the resolved value of an association.
func (d *Document) Memoize(name string, value any) { d.related[name] = value }

// Unmemoize drops the memoized value of an association.
func (d *Document) Unmemoize(name string) { delete(d.related, name) }

func isBlank(v any) bool {
	switch s := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(s) == ""
	}
	return false
}
