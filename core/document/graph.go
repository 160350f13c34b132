package document

import (
	"fmt"
	"slices"

	"github.com/asaidimu/go-tapestry/core/query"
	"github.com/asaidimu/go-tapestry/core/schema"
)

// Observer receives change notifications from a child document. A parent
// document is the observer of each of its attached children.
type Observer interface {
	Observe(child *Document, clear bool) error
}

var _ Observer = (*Document)(nil)

// AddObserver registers o to be informed of every Notify call.
func (d *Document) AddObserver(o Observer) {
	d.observers = append(d.observers, o)
}

// RemoveObserver unregisters o.
func (d *Document) RemoveObserver(o Observer) {
	d.observers = slices.DeleteFunc(d.observers, func(e Observer) bool { return e == o })
}

// Parent returns the document this one is embedded in, or nil.
func (d *Document) Parent() *Document { return d.parent }

// AssociationName returns the name under which the document is embedded in
// its parent, or "" when detached.
func (d *Document) AssociationName() string { return d.associationName }

// Children returns the attached children in attachment order.
func (d *Document) Children() []*Document { return slices.Clone(d.children) }

// Root returns the top-most ancestor, or d itself when it has no parent.
func (d *Document) Root() *Document {
	node := d
	for node.parent != nil {
		node = node.parent
	}
	return node
}

// Assimilate attaches d to parent under the embedded association name. The
// parent's attribute tree holds d's payload when Assimilate returns.
func (d *Document) Assimilate(parent *Document, name string) error {
	meta, ok := parent.typ.Association(name)
	if !ok || !meta.IsEmbedded() {
		return fmt.Errorf("%w: %s.%s", ErrNotEmbedded, parent.typ.Name(), name)
	}
	target, err := parent.typ.Registry().Lookup(meta.Target)
	if err != nil {
		return fmt.Errorf("failed to resolve target of %s.%s: %w", parent.typ.Name(), name, err)
	}
	if !d.typ.IsA(target) {
		return fmt.Errorf("%w: %s.%s holds %s, not %s", ErrTypeMismatch, parent.typ.Name(), name, target.Name(), d.typ.Name())
	}
	if d.parent != nil {
		return fmt.Errorf("%w: %s %s is embedded in %s", ErrAlreadyAttached, d.typ.Name(), d.ID(), d.parent.typ.Name())
	}
	for node := parent; node != nil; node = node.parent {
		if node == d {
			return fmt.Errorf("%w: %s %s", ErrCycle, d.typ.Name(), d.ID())
		}
	}

	if meta.Kind == schema.EmbedsOne {
		for _, sibling := range parent.children {
			if sibling.associationName == name {
				parent.dropChild(sibling)
				break
			}
		}
	}

	d.parent = parent
	d.associationName = name
	d.AddObserver(parent)
	parent.children = append(parent.children, d)
	parent.Unmemoize(name)
	return d.Notify()
}

// Notify informs every registered observer of the current payload. The first
// observer error stops propagation and is returned.
func (d *Document) Notify() error {
	for _, o := range slices.Clone(d.observers) {
		if err := o.Observe(d, false); err != nil {
			return err
		}
	}
	return nil
}

// Observe merges child's payload into d's attribute tree under the child's
// association name, or removes it when clear is set, then notifies further
// up. An identical payload already present is left untouched.
func (d *Document) Observe(child *Document, clear bool) error {
	if err := d.merge(child, clear); err != nil {
		return err
	}
	return d.Notify()
}

// Remove detaches child, deleting exactly its payload from the attribute
// tree, and notifies further up.
func (d *Document) Remove(child *Document) error {
	if child.parent != d {
		return fmt.Errorf("%w: %s %s", ErrNotAttached, child.typ.Name(), child.ID())
	}
	if err := d.merge(child, true); err != nil {
		return err
	}
	d.dropChild(child)
	return d.Notify()
}

func (d *Document) dropChild(child *Document) {
	d.children = slices.DeleteFunc(d.children, func(c *Document) bool { return c == child })
	d.Unmemoize(child.associationName)
	child.detach()
}

func (d *Document) detach() {
	if d.parent != nil {
		d.RemoveObserver(d.parent)
	}
	d.parent = nil
	d.associationName = ""
}

func (d *Document) merge(child *Document, clear bool) error {
	name := child.associationName
	meta, ok := d.typ.Association(name)
	if !ok || !meta.IsEmbedded() {
		return fmt.Errorf("%w: %s.%s", ErrNotEmbedded, d.typ.Name(), name)
	}
	payload := map[string]any(child.attributes)

	if meta.Kind == schema.EmbedsOne {
		existing, present := asMap(d.attributes[name])
		switch {
		case clear:
			if present && (sameMap(existing, payload) || sameID(existing, payload)) {
				d.vacate(name, nil)
			}
		case !present:
			d.occupy(name)
			d.attributes[name] = payload
		case !sameMap(existing, payload):
			d.attributes[name] = payload
		}
		return nil
	}

	list := asList(d.attributes[name])
	i := indexOf(list, payload)
	if clear {
		if i < 0 {
			return nil
		}
		list = slices.Delete(slices.Clone(list), i, i+1)
		if len(list) == 0 {
			d.vacate(name, []any{})
		} else {
			d.attributes[name] = list
		}
		return nil
	}
	switch {
	case i < 0:
		if len(list) == 0 {
			d.occupy(name)
		}
		d.attributes[name] = append(slices.Clone(list), payload)
	default:
		if m, _ := asMap(list[i]); !sameMap(m, payload) {
			list = slices.Clone(list)
			list[i] = payload
			d.attributes[name] = list
		}
	}
	return nil
}

// vacancy is the entry an association held before its first attached child
// filled it.
type vacancy struct {
	present bool
	value   any
}

// occupy records the current entry of name before a child payload fills it.
func (d *Document) occupy(name string) {
	if _, ok := d.vacancies[name]; ok {
		return
	}
	if d.vacancies == nil {
		d.vacancies = make(map[string]vacancy)
	}
	value, present := d.attributes[name]
	d.vacancies[name] = vacancy{present: present, value: value}
}

// vacate restores the entry of name recorded by occupy once its last child
// payload is gone. Entries emptied of loaded payloads hold empty instead, or
// are deleted when empty is nil.
func (d *Document) vacate(name string, empty any) {
	v, ok := d.vacancies[name]
	delete(d.vacancies, name)
	switch {
	case ok && v.present:
		d.attributes[name] = v.value
	case ok || empty == nil:
		delete(d.attributes, name)
	default:
		d.attributes[name] = empty
	}
}

// indexOf finds payload in list, first by identity and then by id.
func indexOf(list []any, payload map[string]any) int {
	for i, e := range list {
		if m, ok := asMap(e); ok && sameMap(m, payload) {
			return i
		}
	}
	for i, e := range list {
		if m, ok := asMap(e); ok && sameID(m, payload) {
			return i
		}
	}
	return -1
}

func sameID(a, b map[string]any) bool {
	id, ok := a[schema.IDField]
	if !ok || isBlank(id) {
		return false
	}
	return query.Equal(id, b[schema.IDField])
}

// Embedded returns the documents embedded under name, wrapping the payloads
// already present in the attribute tree as live views and attaching them.
// Results are memoized until the child set changes.
func (d *Document) Embedded(name string) ([]*Document, error) {
	meta, ok := d.typ.Association(name)
	if !ok || !meta.IsEmbedded() {
		return nil, fmt.Errorf("%w: %s.%s", ErrNotEmbedded, d.typ.Name(), name)
	}
	if memo, ok := d.Memo(name); ok {
		if docs, ok := memo.([]*Document); ok {
			return docs, nil
		}
	}
	target, err := d.typ.Registry().Lookup(meta.Target)
	if err != nil {
		return nil, err
	}

	var payloads []map[string]any
	if meta.Kind == schema.EmbedsOne {
		if m, ok := asMap(d.attributes[name]); ok {
			payloads = append(payloads, m)
		}
	} else {
		list := asList(d.attributes[name])
		for i, e := range list {
			m, ok := asMap(e)
			if !ok {
				continue
			}
			// schema.Document elements are rewritten as plain maps so the
			// tree and the child view share one map.
			list[i] = m
			payloads = append(payloads, m)
		}
		if list != nil {
			d.attributes[name] = list
		}
	}

	docs := make([]*Document, 0, len(payloads))
	for _, payload := range payloads {
		if existing := d.childFor(name, payload); existing != nil {
			docs = append(docs, existing)
			continue
		}
		typ := target
		if discriminator, ok := payload[schema.TypeField].(string); ok && discriminator != typ.Name() {
			if sub, err := typ.Registry().Lookup(discriminator); err == nil && sub.IsA(target) {
				typ = sub
			}
		}
		child := Instantiate(typ, payload, true)
		child.newRecord = d.newRecord
		child.parent = d
		child.associationName = name
		child.AddObserver(d)
		d.children = append(d.children, child)
		docs = append(docs, child)
	}
	d.Memoize(name, docs)
	return docs, nil
}

func (d *Document) childFor(name string, payload map[string]any) *Document {
	for _, c := range d.children {
		if c.associationName == name && sameMap(c.attributes, payload) {
			return c
		}
	}
	return nil
}
