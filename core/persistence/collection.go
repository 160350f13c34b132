package persistence

import (
	"context"

	"github.com/asaidimu/go-tapestry/core/document"
	"github.com/asaidimu/go-tapestry/core/query"
	"github.com/asaidimu/go-tapestry/core/schema"
)

// Collection is a handle on the documents of one registered type.
type Collection struct {
	p   *Persistence
	typ *schema.Type
}

// Collection returns a handle for the named type.
func (p *Persistence) Collection(typeName string) (*Collection, error) {
	typ, err := p.registry.Lookup(typeName)
	if err != nil {
		return nil, err
	}
	return &Collection{p: p, typ: typ}, nil
}

// Type returns the type descriptor of the collection.
func (c *Collection) Type() *schema.Type { return c.typ }

// New constructs an unsaved document of the collection type.
func (c *Collection) New(attrs map[string]any) *document.Document {
	return document.New(c.typ, attrs)
}

// Create constructs and saves a document. The document is returned even when
// saving fails, so the caller can retry.
func (c *Collection) Create(ctx context.Context, attrs map[string]any) (*document.Document, error) {
	doc := c.New(attrs)
	return doc, c.p.Save(ctx, doc)
}

// FindByID returns the document with the given id.
func (c *Collection) FindByID(ctx context.Context, id string) (*document.Document, error) {
	return c.p.FindByID(ctx, c.typ, id)
}

// First returns the first document matching conditions, or nil.
func (c *Collection) First(ctx context.Context, conditions query.Conditions) (*document.Document, error) {
	return c.p.First(ctx, c.typ, conditions)
}

// Where returns every document matching conditions.
func (c *Collection) Where(ctx context.Context, conditions query.Conditions) ([]*document.Document, error) {
	return c.p.Find(ctx, c.typ, conditions)
}

// Count returns the number of documents matching conditions.
func (c *Collection) Count(ctx context.Context, conditions query.Conditions) (int64, error) {
	return c.p.Count(ctx, c.typ, conditions)
}

// Exists reports whether any document matches conditions.
func (c *Collection) Exists(ctx context.Context, conditions query.Conditions) (bool, error) {
	return c.p.Exists(ctx, c.typ, conditions)
}
