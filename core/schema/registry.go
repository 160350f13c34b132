package schema

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/jinzhu/inflection"
)

var (
	// ErrUnknownType is returned when a type name has not been registered.
	ErrUnknownType = errors.New("tapestry: unknown type")

	// ErrDuplicateType is returned when a type name is registered twice.
	ErrDuplicateType = errors.New("tapestry: type already registered")

	// ErrInvalidDefinition is returned for malformed type declarations.
	ErrInvalidDefinition = errors.New("tapestry: invalid type definition")
)

// Registry holds every known type and its subtype links. Types register
// their base before themselves, normally during init; lookups afterwards
// are read-only.
type Registry struct {
	mu       sync.RWMutex
	types    map[string]*Type
	subtypes map[string][]string
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		types:    make(map[string]*Type),
		subtypes: make(map[string][]string),
	}
}

// Register freezes def into an immutable Type. Subtypes inherit fields,
// key, mass-assignment lists and associations from their base.
func (r *Registry) Register(def TypeDefinition) (*Type, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("%w: type name is required", ErrInvalidDefinition)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.types[def.Name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateType, def.Name)
	}

	t := &Type{
		name:       def.Name,
		accessible: make(map[string]struct{}),
		protected:  make(map[string]struct{}),
		registry:   r,
	}

	if def.Base != "" {
		base, ok := r.types[def.Base]
		if !ok {
			return nil, fmt.Errorf("%w: base %s of %s", ErrUnknownType, def.Base, def.Name)
		}
		t.base = base
		t.collection = base.collection
		t.fields = slices.Clone(base.fields)
		t.key = slices.Clone(base.key)
		t.associations = slices.Clone(base.associations)
		for name := range base.accessible {
			t.accessible[name] = struct{}{}
		}
		for name := range base.protected {
			t.protected[name] = struct{}{}
		}
	}

	if def.Collection != "" {
		t.collection = def.Collection
	}
	if t.collection == "" {
		t.collection = inflection.Plural(Underscore(def.Name))
	}

	for _, f := range def.Fields {
		if f.Name == "" {
			return nil, fmt.Errorf("%w: %s declares a field without a name", ErrInvalidDefinition, def.Name)
		}
		if i := slices.IndexFunc(t.fields, func(e FieldDefinition) bool { return e.Name == f.Name }); i >= 0 {
			t.fields[i] = f
			continue
		}
		t.fields = append(t.fields, f)
	}

	if len(def.Key) > 0 {
		t.key = slices.Clone(def.Key)
	}
	for _, name := range def.Accessible {
		t.accessible[name] = struct{}{}
	}
	for _, name := range def.Protected {
		t.protected[name] = struct{}{}
	}

	for _, a := range def.Associations {
		if a.Name == "" || a.Kind == "" {
			return nil, fmt.Errorf("%w: %s declares an association without name or kind", ErrInvalidDefinition, def.Name)
		}
		if a.Target == "" && !(a.Kind == BelongsToRelated && a.Polymorphic) {
			return nil, fmt.Errorf("%w: association %s.%s has no target type", ErrInvalidDefinition, def.Name, a.Name)
		}
		a = a.withDefaults(def.Name)
		if i := slices.IndexFunc(t.associations, func(e AssociationMetadata) bool { return e.Name == a.Name }); i >= 0 {
			t.associations[i] = a
			continue
		}
		t.associations = append(t.associations, a)
	}

	r.types[def.Name] = t
	if def.Base != "" {
		r.subtypes[def.Base] = append(r.subtypes[def.Base], def.Name)
	}
	return t, nil
}

// MustRegister is like Register but panics on error. It is meant for
// package-level type declarations.
func (r *Registry) MustRegister(def TypeDefinition) *Type {
	t, err := r.Register(def)
	if err != nil {
		panic(err)
	}
	return t
}

// Lookup resolves a type name to its descriptor.
func (r *Registry) Lookup(name string) (*Type, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, name)
	}
	return t, nil
}

// Names returns every registered type name in registration-independent,
// sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (r *Registry) subtypesOf(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.subtypes[name])
}
