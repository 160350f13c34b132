package association

import (
	"context"
	"fmt"

	"github.com/asaidimu/go-tapestry/core/document"
	"github.com/asaidimu/go-tapestry/core/query"
	"github.com/asaidimu/go-tapestry/core/schema"
)

// HasOne resolves a single related document stored in another collection
// that carries the owner's id in its foreign key.
type HasOne struct {
	owner  *document.Document
	meta   schema.AssociationMetadata
	typ    *schema.Type
	store  Store
	target *document.Document
}

var _ Association = (*HasOne)(nil)

// NewHasOne resolves the related document of owner. The first document
// matching the foreign key, and the owner type for polymorphic relations, is
// loaded unless preloaded is given. No match leaves the target nil.
func NewHasOne(ctx context.Context, store Store, owner *document.Document, meta schema.AssociationMetadata, preloaded *document.Document) (*HasOne, error) {
	typ, err := targetType(owner, meta)
	if err != nil {
		return nil, err
	}
	h := &HasOne{owner: owner, meta: meta, typ: typ, store: store, target: preloaded}
	if preloaded != nil {
		return h, nil
	}

	target, err := store.First(ctx, typ, h.Conditions())
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s.%s: %w", owner.TypeName(), meta.Name, err)
	}
	if target != nil {
		owner.Memoize(meta.Name, target)
	}
	h.target = target
	return h, nil
}

func (h *HasOne) Kind() schema.AssociationKind        { return schema.HasOneRelated }
func (h *HasOne) Owner() *document.Document           { return h.owner }
func (h *HasOne) Metadata() schema.AssociationMetadata { return h.meta }

// Target returns the related document, or nil when none exists.
func (h *HasOne) Target() *document.Document { return h.target }

// Conditions returns the query locating the related document.
func (h *HasOne) Conditions() query.Conditions { return conditions(h.owner, h.meta) }

// Build constructs a new related document from attrs and links it back to
// the owner through the inverse belongs-to association. The new document
// replaces the current target in memory only.
func (h *HasOne) Build(attrs map[string]any) (*document.Document, error) {
	inverse, err := inverseOf(h.typ, h.owner, h.meta)
	if err != nil {
		return nil, err
	}
	doc := document.New(h.typ, attrs)
	if err := Set(doc, inverse, h.owner); err != nil {
		return nil, err
	}
	h.target = doc
	h.owner.Memoize(h.meta.Name, doc)
	return doc, nil
}

// Create builds the related document and saves it. A document that fails to
// save is still returned, linked, for the caller to retry.
func (h *HasOne) Create(ctx context.Context, attrs map[string]any) (*document.Document, error) {
	doc, err := h.Build(attrs)
	if err != nil {
		return nil, err
	}
	if err := h.store.Save(ctx, doc); err != nil {
		return doc, fmt.Errorf("failed to create %s.%s: %w", h.owner.TypeName(), h.meta.Name, err)
	}
	return doc, nil
}

// UpdateHasOne re-points an existing target at owner and returns the
// resolved association wrapping it. A nil target yields a nil association.
// The target is not saved.
func UpdateHasOne(store Store, target, owner *document.Document, meta schema.AssociationMetadata) (*HasOne, error) {
	if target == nil {
		return nil, nil
	}
	inverse, err := inverseOf(target.Type(), owner, meta)
	if err != nil {
		return nil, err
	}
	if err := Set(target, inverse, owner); err != nil {
		return nil, err
	}
	owner.Memoize(meta.Name, target)
	return &HasOne{owner: owner, meta: meta, typ: target.Type(), store: store, target: target}, nil
}
