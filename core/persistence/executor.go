package persistence

import (
	"context"

	"github.com/asaidimu/go-tapestry/core/document"
	"github.com/asaidimu/go-tapestry/core/query"
	"github.com/asaidimu/go-tapestry/core/schema"
	"go.uber.org/zap"
)

// Executor runs driver operations on behalf of typed documents. It scopes
// filters to the type hierarchy and turns raw results back into documents
// of their concrete types.
type Executor struct {
	driver Driver
	logger *zap.Logger
}

// NewExecutor creates an Executor over driver.
func NewExecutor(driver Driver, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{driver: driver, logger: logger}
}

// restrict narrows filter to documents of typ. Hereditary types share their
// collection, so the discriminator must be one of typ's own type names.
func (e *Executor) restrict(typ *schema.Type, filter *query.QueryFilter) *query.QueryFilter {
	if !typ.Hereditary() {
		return filter
	}
	types := make([]query.FilterValue, 0)
	for _, name := range typ.Types() {
		types = append(types, name)
	}
	byType := query.QueryFilter{Condition: &query.FilterCondition{
		Field:    schema.TypeField,
		Operator: query.ComparisonOperatorIn,
		Value:    types,
	}}
	if filter == nil {
		return &byType
	}
	return query.And(*filter, byType)
}

// instantiate wraps raw as a document of the concrete type recorded in its
// discriminator, falling back to typ.
func (e *Executor) instantiate(typ *schema.Type, raw schema.Document) *document.Document {
	concrete := typ
	if name, ok := raw[schema.TypeField].(string); ok && name != typ.Name() {
		sub, err := typ.Registry().Lookup(name)
		if err == nil && sub.IsA(typ) {
			concrete = sub
		} else {
			e.logger.Warn("Ignoring unknown document discriminator",
				zap.String("type", typ.Name()),
				zap.String("discriminator", name))
		}
	}
	return document.Instantiate(concrete, raw, true)
}

// First returns the first document of typ matching conditions, or nil.
func (e *Executor) First(ctx context.Context, typ *schema.Type, conditions query.Conditions) (*document.Document, error) {
	filter := e.restrict(typ, conditions.Filter())
	e.logger.Debug("Finding first document",
		zap.String("collection", typ.Collection()),
		zap.Any("conditions", conditions))
	raw, err := e.driver.FindOne(ctx, typ.Collection(), filter)
	if err != nil || raw == nil {
		return nil, err
	}
	return e.instantiate(typ, raw), nil
}

// FindByID returns the raw document of typ with the given id, or nil.
func (e *Executor) FindByID(ctx context.Context, typ *schema.Type, id string) (schema.Document, error) {
	e.logger.Debug("Finding document by id",
		zap.String("collection", typ.Collection()),
		zap.String("id", id))
	return e.driver.FindOne(ctx, typ.Collection(), e.restrict(typ, &query.QueryFilter{
		Condition: &query.FilterCondition{Field: schema.IDField, Operator: query.ComparisonOperatorEq, Value: id},
	}))
}

// Query returns the documents of typ matched by dsl.
func (e *Executor) Query(ctx context.Context, typ *schema.Type, dsl query.QueryDSL) ([]*document.Document, error) {
	dsl.Filters = e.restrict(typ, dsl.Filters)
	rows, err := e.driver.Find(ctx, typ.Collection(), &dsl)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("Fetched documents",
		zap.String("collection", typ.Collection()),
		zap.Int("count", len(rows)))
	docs := make([]*document.Document, 0, len(rows))
	for _, raw := range rows {
		docs = append(docs, e.instantiate(typ, raw))
	}
	return docs, nil
}

// Count returns the number of documents of typ matching conditions.
func (e *Executor) Count(ctx context.Context, typ *schema.Type, conditions query.Conditions) (int64, error) {
	return e.driver.Count(ctx, typ.Collection(), e.restrict(typ, conditions.Filter()))
}

// Exists reports whether any document of typ matches conditions.
func (e *Executor) Exists(ctx context.Context, typ *schema.Type, conditions query.Conditions) (bool, error) {
	e.logger.Debug("Checking document existence",
		zap.String("collection", typ.Collection()),
		zap.Any("conditions", conditions))
	return e.driver.Exists(ctx, typ.Collection(), e.restrict(typ, conditions.Filter()))
}

// Insert stores a new document.
func (e *Executor) Insert(ctx context.Context, doc *document.Document) error {
	e.logger.Debug("Inserting document",
		zap.String("collection", doc.Type().Collection()),
		zap.String("id", doc.ID()))
	return e.driver.Insert(ctx, doc.Type().Collection(), doc.RawAttributes())
}

// Update replaces the stored copy of doc.
func (e *Executor) Update(ctx context.Context, doc *document.Document) error {
	e.logger.Debug("Updating document",
		zap.String("collection", doc.Type().Collection()),
		zap.String("id", doc.ID()))
	return e.driver.Update(ctx, doc.Type().Collection(), doc.ID(), doc.RawAttributes())
}

// Delete removes the stored copy of doc.
func (e *Executor) Delete(ctx context.Context, doc *document.Document) error {
	e.logger.Debug("Deleting document",
		zap.String("collection", doc.Type().Collection()),
		zap.String("id", doc.ID()))
	return e.driver.Delete(ctx, doc.Type().Collection(), doc.ID())
}
