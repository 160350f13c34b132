package association

import (
	"context"
	"fmt"

	"github.com/asaidimu/go-tapestry/core/document"
	"github.com/asaidimu/go-tapestry/core/schema"
)

// BelongsTo resolves the owner's foreign key to the referenced document.
type BelongsTo struct {
	owner  *document.Document
	meta   schema.AssociationMetadata
	store  Store
	target *document.Document
}

var _ Association = (*BelongsTo)(nil)

// NewBelongsTo loads the document referenced by owner unless preloaded is
// given. A blank foreign key resolves to no target.
func NewBelongsTo(ctx context.Context, store Store, owner *document.Document, meta schema.AssociationMetadata, preloaded *document.Document) (*BelongsTo, error) {
	b := &BelongsTo{owner: owner, meta: meta, store: store, target: preloaded}
	if preloaded != nil {
		return b, nil
	}
	id, ok := owner.Read(meta.ForeignKey)
	if !ok || id == nil || id == "" {
		return b, nil
	}
	typ, err := b.referencedType()
	if err != nil {
		return nil, err
	}
	target, err := store.FindByID(ctx, typ, fmt.Sprint(id))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s.%s: %w", owner.TypeName(), meta.Name, err)
	}
	if target != nil {
		owner.Memoize(meta.Name, target)
	}
	b.target = target
	return b, nil
}

func (b *BelongsTo) referencedType() (*schema.Type, error) {
	if !b.meta.Polymorphic {
		return targetType(b.owner, b.meta)
	}
	name, _ := b.owner.Read(b.meta.TypeKey())
	s, _ := name.(string)
	typ, err := b.owner.Type().Registry().Lookup(s)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s of %s: %w", b.meta.TypeKey(), b.owner.TypeName(), err)
	}
	return typ, nil
}

func (b *BelongsTo) Kind() schema.AssociationKind        { return schema.BelongsToRelated }
func (b *BelongsTo) Owner() *document.Document           { return b.owner }
func (b *BelongsTo) Metadata() schema.AssociationMetadata { return b.meta }

// Target returns the referenced document, or nil.
func (b *BelongsTo) Target() *document.Document { return b.target }

// Build constructs a new document of the target type and points the owner
// at it. Polymorphic relations cannot build since their target type is
// only known from stored data.
func (b *BelongsTo) Build(attrs map[string]any) (*document.Document, error) {
	if b.meta.Polymorphic {
		return nil, fmt.Errorf("%w: cannot build polymorphic %s.%s", ErrUnsupportedKind, b.owner.TypeName(), b.meta.Name)
	}
	typ, err := targetType(b.owner, b.meta)
	if err != nil {
		return nil, err
	}
	doc := document.New(typ, attrs)
	if err := Set(b.owner, b.meta, doc); err != nil {
		return nil, err
	}
	b.target = doc
	return doc, nil
}

// Create builds the referenced document and saves it. The owner itself is
// not saved.
func (b *BelongsTo) Create(ctx context.Context, attrs map[string]any) (*document.Document, error) {
	doc, err := b.Build(attrs)
	if err != nil {
		return nil, err
	}
	return doc, b.store.Save(ctx, doc)
}

// Set points the belongs-to association meta of doc at target: the foreign
// key, the discriminator of polymorphic relations and the memoized value. A
// nil target clears all three.
func Set(doc *document.Document, meta schema.AssociationMetadata, target *document.Document) error {
	if target == nil {
		if err := doc.Write(meta.ForeignKey, nil); err != nil {
			return err
		}
		if meta.Polymorphic {
			if err := doc.Write(meta.TypeKey(), nil); err != nil {
				return err
			}
		}
		doc.Unmemoize(meta.Name)
		return nil
	}

	if err := doc.Write(meta.ForeignKey, ownerID(target)); err != nil {
		return err
	}
	if meta.Polymorphic {
		if err := doc.Write(meta.TypeKey(), target.TypeName()); err != nil {
			return err
		}
	}
	doc.Memoize(meta.Name, target)
	return nil
}
