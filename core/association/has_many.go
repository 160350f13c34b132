package association

import (
	"context"
	"fmt"

	"github.com/asaidimu/go-tapestry/core/document"
	"github.com/asaidimu/go-tapestry/core/query"
	"github.com/asaidimu/go-tapestry/core/schema"
)

// HasMany resolves the related documents carrying the owner's id in their
// foreign key. Lookups are not cached.
type HasMany struct {
	owner *document.Document
	meta  schema.AssociationMetadata
	typ   *schema.Type
	store Store
}

var _ Association = (*HasMany)(nil)

func NewHasMany(store Store, owner *document.Document, meta schema.AssociationMetadata) (*HasMany, error) {
	typ, err := targetType(owner, meta)
	if err != nil {
		return nil, err
	}
	return &HasMany{owner: owner, meta: meta, typ: typ, store: store}, nil
}

func (h *HasMany) Kind() schema.AssociationKind        { return schema.HasManyRelated }
func (h *HasMany) Owner() *document.Document           { return h.owner }
func (h *HasMany) Metadata() schema.AssociationMetadata { return h.meta }

// Conditions returns the query locating the related documents.
func (h *HasMany) Conditions() query.Conditions { return conditions(h.owner, h.meta) }

// All loads every related document.
func (h *HasMany) All(ctx context.Context) ([]*document.Document, error) {
	docs, err := h.store.Find(ctx, h.typ, h.Conditions())
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s.%s: %w", h.owner.TypeName(), h.meta.Name, err)
	}
	return docs, nil
}

// Count returns the number of related documents in storage.
func (h *HasMany) Count(ctx context.Context) (int64, error) {
	n, err := h.store.Count(ctx, h.typ, h.Conditions())
	if err != nil {
		return 0, fmt.Errorf("failed to count %s.%s: %w", h.owner.TypeName(), h.meta.Name, err)
	}
	return n, nil
}

// Build constructs a new related document linked back to the owner.
func (h *HasMany) Build(attrs map[string]any) (*document.Document, error) {
	inverse, err := inverseOf(h.typ, h.owner, h.meta)
	if err != nil {
		return nil, err
	}
	doc := document.New(h.typ, attrs)
	if err := Set(doc, inverse, h.owner); err != nil {
		return nil, err
	}
	return doc, nil
}

// Create builds a related document and saves it.
func (h *HasMany) Create(ctx context.Context, attrs map[string]any) (*document.Document, error) {
	doc, err := h.Build(attrs)
	if err != nil {
		return nil, err
	}
	if err := h.store.Save(ctx, doc); err != nil {
		return doc, fmt.Errorf("failed to create %s.%s: %w", h.owner.TypeName(), h.meta.Name, err)
	}
	return doc, nil
}
