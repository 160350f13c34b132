// Package persistence connects documents to a storage Driver: saving,
// reloading and deleting records, finding them by conditions with type
// hierarchy resolution, and publishing lifecycle events.
package persistence

import (
	"context"
	"fmt"
	"sync"

	"github.com/asaidimu/go-events"
	"github.com/asaidimu/go-tapestry/core/document"
	"github.com/asaidimu/go-tapestry/core/query"
	"github.com/asaidimu/go-tapestry/core/schema"
	"go.uber.org/zap"
)

// Persistence saves and finds documents through a Driver. It is safe for
// concurrent use as long as the documents passed to it are not shared
// between goroutines.
type Persistence struct {
	driver        Driver
	registry      *schema.Registry
	executor      *Executor
	config        Config
	logger        *zap.Logger
	subscriptions map[string]*SubscriptionInfo
	subMu         *sync.RWMutex
	bus           *events.TypedEventBus[Event]
}

// NewPersistence creates a new instance of the Persistence service.
func NewPersistence(driver Driver, registry *schema.Registry, config Config) (*Persistence, error) {
	if driver == nil {
		return nil, fmt.Errorf("a storage driver is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("a type registry is required")
	}
	config.validate()

	bus, err := events.NewTypedEventBus[Event](events.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("could not initialize event bus: %w", err)
	}

	return &Persistence{
		driver:        driver,
		registry:      registry,
		executor:      NewExecutor(driver, config.Logger),
		config:        config,
		logger:        config.Logger,
		subscriptions: make(map[string]*SubscriptionInfo),
		subMu:         &sync.RWMutex{},
		bus:           bus,
	}, nil
}

// Registry returns the type registry documents are resolved against.
func (p *Persistence) Registry() *schema.Registry { return p.registry }

// Config returns the active configuration.
func (p *Persistence) Config() Config { return p.config }

// Save persists doc. A new record is identified and inserted, a persisted
// one is updated in place. Embedded documents are saved through their root.
func (p *Persistence) Save(ctx context.Context, doc *document.Document) error {
	if doc.Parent() != nil {
		return p.Save(ctx, doc.Root())
	}
	_, err := p.withEventEmission("save", DocumentSaveStart, DocumentSaveSuccess, DocumentSaveFailed, doc, nil,
		func() (any, error) {
			if !p.config.DynamicFields {
				if extra := doc.DynamicFields(); len(extra) > 0 {
					return nil, fmt.Errorf("%w: %s declares none of %v", ErrUndeclaredField, doc.TypeName(), extra)
				}
			}
			if doc.NewRecord() {
				doc.Identify()
				if err := p.executor.Insert(ctx, doc); err != nil {
					return nil, fmt.Errorf("failed to insert %s %s: %w", doc.TypeName(), doc.ID(), err)
				}
			} else if err := p.executor.Update(ctx, doc); err != nil {
				return nil, fmt.Errorf("failed to update %s %s: %w", doc.TypeName(), doc.ID(), err)
			}
			doc.MarkPersisted()
			return doc.ID(), nil
		})
	return err
}

// Delete removes doc from storage. An embedded document is removed from its
// parent and the root is saved.
func (p *Persistence) Delete(ctx context.Context, doc *document.Document) error {
	if parent := doc.Parent(); parent != nil {
		root := doc.Root()
		if err := parent.Remove(doc); err != nil {
			return err
		}
		return p.Save(ctx, root)
	}
	_, err := p.withEventEmission("delete", DocumentDeleteStart, DocumentDeleteSuccess, DocumentDeleteFailed, doc, nil,
		func() (any, error) {
			if err := p.executor.Delete(ctx, doc); err != nil {
				return nil, fmt.Errorf("failed to delete %s %s: %w", doc.TypeName(), doc.ID(), err)
			}
			return doc.ID(), nil
		})
	return err
}

// Reload replaces the attributes of doc with its stored copy and drops
// memoized associations. Embedded documents are reloaded through their root. When the record is gone the attributes are cleared,
// or ErrNotFound is returned when RaiseNotFound is set.
func (p *Persistence) Reload(ctx context.Context, doc *document.Document) error {
	if doc.Parent() != nil {
		return fmt.Errorf("%w: %s %s is embedded in %s", ErrEmbeddedReload, doc.TypeName(), doc.ID(), doc.Parent().TypeName())
	}
	_, err := p.withEventEmission("reload", DocumentReloadStart, DocumentReloadSuccess, DocumentReloadFailed, doc, nil,
		func() (any, error) {
			raw, err := p.executor.FindByID(ctx, doc.Type(), doc.ID())
			if err != nil {
				return nil, fmt.Errorf("failed to reload %s %s: %w", doc.TypeName(), doc.ID(), err)
			}
			if raw == nil && p.config.RaiseNotFound {
				return nil, fmt.Errorf("%w: %s %s", ErrNotFound, doc.TypeName(), doc.ID())
			}
			if err := doc.Refresh(raw); err != nil {
				return nil, err
			}
			return nil, nil
		})
	return err
}

// FindByID returns the document of typ with the given id. A missing record
// yields ErrNotFound when RaiseNotFound is set, and nil otherwise.
func (p *Persistence) FindByID(ctx context.Context, typ *schema.Type, id string) (*document.Document, error) {
	raw, err := p.executor.FindByID(ctx, typ, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find %s %s: %w", typ.Name(), id, err)
	}
	if raw == nil {
		if p.config.RaiseNotFound {
			return nil, fmt.Errorf("%w: %s %s", ErrNotFound, typ.Name(), id)
		}
		return nil, nil
	}
	return p.executor.instantiate(typ, raw), nil
}

// First returns the first document of typ matching conditions, or nil.
func (p *Persistence) First(ctx context.Context, typ *schema.Type, conditions query.Conditions) (*document.Document, error) {
	doc, err := p.executor.First(ctx, typ, conditions)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", typ.Name(), err)
	}
	return doc, nil
}

// Find returns every document of typ matching conditions.
func (p *Persistence) Find(ctx context.Context, typ *schema.Type, conditions query.Conditions) ([]*document.Document, error) {
	return p.Query(ctx, typ, query.QueryDSL{Filters: conditions.Filter()})
}

// Query returns the documents of typ matched by dsl.
func (p *Persistence) Query(ctx context.Context, typ *schema.Type, dsl query.QueryDSL) ([]*document.Document, error) {
	docs, err := p.executor.Query(ctx, typ, dsl)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", typ.Name(), err)
	}
	return docs, nil
}

// Count returns the number of documents of typ matching conditions.
func (p *Persistence) Count(ctx context.Context, typ *schema.Type, conditions query.Conditions) (int64, error) {
	n, err := p.executor.Count(ctx, typ, conditions)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", typ.Name(), err)
	}
	return n, nil
}

// Exists reports whether any document of typ matches conditions.
func (p *Persistence) Exists(ctx context.Context, typ *schema.Type, conditions query.Conditions) (bool, error) {
	ok, err := p.executor.Exists(ctx, typ, conditions)
	if err != nil {
		return false, fmt.Errorf("failed to query %s: %w", typ.Name(), err)
	}
	return ok, nil
}

// Clone copies doc into a new, unsaved record, stripping the configured
// audit fields along with the id and version history.
func (p *Persistence) Clone(doc *document.Document) *document.Document {
	return doc.Clone(p.config.AuditFields...)
}
