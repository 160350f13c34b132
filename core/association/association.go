// Package association resolves relations between documents stored in
// different collections: has-one, has-many and belongs-to links located by
// foreign key and, for polymorphic relations, by a type discriminator.
package association

import (
	"context"
	"errors"
	"fmt"

	"github.com/asaidimu/go-tapestry/core/document"
	"github.com/asaidimu/go-tapestry/core/query"
	"github.com/asaidimu/go-tapestry/core/schema"
)

var (
	// ErrInverseNotFound is returned when no association on the target type
	// points back at the owner.
	ErrInverseNotFound = errors.New("tapestry: inverse association not found")
	// ErrAmbiguousInverse is returned when more than one association on the
	// target type could be the inverse and none was declared.
	ErrAmbiguousInverse = errors.New("tapestry: ambiguous inverse association")
	// ErrUnsupportedKind is returned for association kinds that are not
	// resolved against storage.
	ErrUnsupportedKind = errors.New("tapestry: unsupported association kind")
	// ErrUnknownAssociation is returned when a type declares no association of
	// the requested name.
	ErrUnknownAssociation = errors.New("tapestry: unknown association")
)

// Store is the storage surface the resolvers need. *persistence.Persistence
// satisfies it.
type Store interface {
	Save(ctx context.Context, doc *document.Document) error
	FindByID(ctx context.Context, typ *schema.Type, id string) (*document.Document, error)
	First(ctx context.Context, typ *schema.Type, conditions query.Conditions) (*document.Document, error)
	Find(ctx context.Context, typ *schema.Type, conditions query.Conditions) ([]*document.Document, error)
	Count(ctx context.Context, typ *schema.Type, conditions query.Conditions) (int64, error)
}

// Association is the behavior shared by every resolver kind.
type Association interface {
	Kind() schema.AssociationKind
	Owner() *document.Document
	Metadata() schema.AssociationMetadata
	// Build constructs a new, unsaved related document linked to the owner.
	Build(attrs map[string]any) (*document.Document, error)
	// Create builds and saves a related document. The built document is
	// returned even when saving fails.
	Create(ctx context.Context, attrs map[string]any) (*document.Document, error)
}

// Instantiate constructs the resolver for meta on owner. A preloaded target
// skips the storage lookup of single-valued kinds.
func Instantiate(ctx context.Context, store Store, owner *document.Document, meta schema.AssociationMetadata, preloaded *document.Document) (Association, error) {
	var (
		a   Association
		err error
	)
	switch meta.Kind {
	case schema.HasOneRelated:
		a, err = NewHasOne(ctx, store, owner, meta, preloaded)
	case schema.BelongsToRelated:
		a, err = NewBelongsTo(ctx, store, owner, meta, preloaded)
	case schema.HasManyRelated:
		a, err = NewHasMany(store, owner, meta)
	default:
		return nil, fmt.Errorf("%w: %s %q", ErrUnsupportedKind, meta.Kind, meta.Name)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Get returns the resolver for the named association on owner. A target
// memoized on the owner is used instead of querying storage.
func Get(ctx context.Context, store Store, owner *document.Document, name string) (Association, error) {
	meta, ok := owner.Type().Association(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownAssociation, owner.TypeName(), name)
	}
	var preloaded *document.Document
	if memo, ok := owner.Memo(name); ok {
		preloaded, _ = memo.(*document.Document)
	}
	return Instantiate(ctx, store, owner, meta, preloaded)
}

func targetType(owner *document.Document, meta schema.AssociationMetadata) (*schema.Type, error) {
	typ, err := owner.Type().Registry().Lookup(meta.Target)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve target of %s.%s: %w", owner.TypeName(), meta.Name, err)
	}
	return typ, nil
}

// conditions locates the documents pointing at owner through meta.
func conditions(owner *document.Document, meta schema.AssociationMetadata) query.Conditions {
	c := query.Conditions{meta.ForeignKey: ownerID(owner)}
	if key := meta.TypeKey(); key != "" {
		c[key] = owner.TypeName()
	}
	return c
}

func ownerID(owner *document.Document) any {
	return owner.RawAttributes()[schema.IDField]
}

// inverseOf finds the belongs-to association on target that points back at
// owner through meta. A declared inverse is matched by name; a polymorphic
// relation matches the entry named after its alias; otherwise entries whose
// target the owner type is, or descends from, are candidates. Exactly one
// candidate must remain.
func inverseOf(target *schema.Type, owner *document.Document, meta schema.AssociationMetadata) (schema.AssociationMetadata, error) {
	var candidates []schema.AssociationMetadata
	for _, a := range target.Associations() {
		if a.Kind != schema.BelongsToRelated {
			continue
		}
		switch {
		case meta.Inverse != "":
			if a.Name != meta.Inverse {
				continue
			}
		case meta.As != "":
			if a.Name != meta.As {
				continue
			}
		default:
			if a.Target == "" {
				continue
			}
			typ, err := target.Registry().Lookup(a.Target)
			if err != nil || !owner.Type().IsA(typ) {
				continue
			}
		}
		candidates = append(candidates, a)
	}

	switch len(candidates) {
	case 0:
		return schema.AssociationMetadata{}, fmt.Errorf("%w: %s has no association back to %s via %s",
			ErrInverseNotFound, target.Name(), owner.TypeName(), meta.Name)
	case 1:
		return candidates[0], nil
	}
	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.Name
	}
	return schema.AssociationMetadata{}, fmt.Errorf("%w: %s.%v all point at %s, declare an inverse on %s",
		ErrAmbiguousInverse, target.Name(), names, owner.TypeName(), meta.Name)
}
