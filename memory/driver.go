// Package memory provides an in-memory storage driver used for tests and
// ephemeral environments.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/asaidimu/go-tapestry/core/persistence"
	"github.com/asaidimu/go-tapestry/core/query"
	"github.com/asaidimu/go-tapestry/core/schema"
	"go.uber.org/zap"
)

// Compile-time contract assertions.
var (
	_ persistence.Driver              = (*Driver)(nil)
	_ persistence.TransactionalDriver = (*Driver)(nil)
)

type collection struct {
	docs  map[string]schema.Document
	order []string
}

func (c *collection) clone() *collection {
	out := &collection{docs: make(map[string]schema.Document, len(c.docs)), order: slices.Clone(c.order)}
	for id, doc := range c.docs {
		out.docs[id] = doc.Clone()
	}
	return out
}

type state struct {
	collections map[string]*collection
}

func (s *state) clone() *state {
	out := &state{collections: make(map[string]*collection, len(s.collections))}
	for name, c := range s.collections {
		out.collections[name] = c.clone()
	}
	return out
}

// Driver keeps documents in process memory. Stored documents are copied on
// the way in and out, so callers never share maps with the store. Results
// come back in insertion order unless the query sorts them.
type Driver struct {
	mu      sync.RWMutex
	state   *state
	matcher *query.Matcher
	logger  *zap.Logger

	// parent is set on transactional drivers returned by StartTransaction.
	parent *Driver
	done   bool
}

// New creates an empty in-memory driver.
func New(logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		state:   &state{collections: make(map[string]*collection)},
		matcher: query.NewMatcher(logger),
		logger:  logger,
	}
}

// Matcher returns the matcher used to evaluate filters, so custom
// predicates can be registered on it.
func (d *Driver) Matcher() *query.Matcher { return d.matcher }

func idOf(doc schema.Document) (string, error) {
	switch id := doc[schema.IDField].(type) {
	case string:
		if id != "" {
			return id, nil
		}
	case nil:
	default:
		return fmt.Sprint(id), nil
	}
	return "", fmt.Errorf("document has no %s", schema.IDField)
}

func (d *Driver) scan(collectionName string, filter *query.QueryFilter, fn func(doc schema.Document) bool) error {
	c, ok := d.state.collections[collectionName]
	if !ok {
		return nil
	}
	for _, id := range c.order {
		doc := c.docs[id]
		matched, err := d.matcher.Match(filter, doc)
		if err != nil {
			return fmt.Errorf("failed to evaluate filter on %s: %w", collectionName, err)
		}
		if matched && !fn(doc) {
			return nil
		}
	}
	return nil
}

// FindOne returns a copy of the first matching document, or nil.
func (d *Driver) FindOne(ctx context.Context, collectionName string, filter *query.QueryFilter) (schema.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	var found schema.Document
	err := d.scan(collectionName, filter, func(doc schema.Document) bool {
		found = doc.Clone()
		return false
	})
	return found, err
}

// Find returns copies of the matching documents, sorted and limited per dsl.
func (d *Driver) Find(ctx context.Context, collectionName string, dsl *query.QueryDSL) ([]schema.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if dsl == nil {
		dsl = &query.QueryDSL{}
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	var rows []schema.Document
	err := d.scan(collectionName, dsl.Filters, func(doc schema.Document) bool {
		rows = append(rows, doc.Clone())
		return true
	})
	if err != nil {
		return nil, err
	}
	if len(dsl.Sort) > 0 {
		slices.SortStableFunc(rows, func(a, b schema.Document) int { return compareRows(a, b, dsl.Sort) })
	}
	if dsl.Limit > 0 && len(rows) > dsl.Limit {
		rows = rows[:dsl.Limit]
	}
	d.logger.Debug("Matched documents in memory",
		zap.String("collection", collectionName),
		zap.Int("count", len(rows)))
	return rows, nil
}

// compareRows orders documents by the sort configuration. Missing values
// sort before present ones; incomparable values keep their relative order.
func compareRows(a, b schema.Document, sort []query.SortConfiguration) int {
	for _, s := range sort {
		av, aok := query.Lookup(a, s.Field)
		bv, bok := query.Lookup(b, s.Field)
		var c int
		switch {
		case !aok && !bok:
			c = 0
		case !aok:
			c = -1
		case !bok:
			c = 1
		default:
			c, _ = query.Compare(av, bv)
		}
		if s.Direction == query.SortDirectionDesc {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

// Exists reports whether any document matches filter.
func (d *Driver) Exists(ctx context.Context, collectionName string, filter *query.QueryFilter) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	found := false
	err := d.scan(collectionName, filter, func(schema.Document) bool {
		found = true
		return false
	})
	return found, err
}

// Count returns the number of documents matching filter.
func (d *Driver) Count(ctx context.Context, collectionName string, filter *query.QueryFilter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	var n int64
	err := d.scan(collectionName, filter, func(schema.Document) bool {
		n++
		return true
	})
	return n, err
}

// Insert stores a copy of doc.
func (d *Driver) Insert(ctx context.Context, collectionName string, doc schema.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id, err := idOf(doc)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.writable(); err != nil {
		return err
	}

	c, ok := d.state.collections[collectionName]
	if !ok {
		c = &collection{docs: make(map[string]schema.Document)}
		d.state.collections[collectionName] = c
	}
	if _, exists := c.docs[id]; exists {
		return fmt.Errorf("duplicate %s %q in %s", schema.IDField, id, collectionName)
	}
	c.docs[id] = doc.Clone()
	c.order = append(c.order, id)
	return nil
}

// Update replaces the stored copy of the document with the given id.
func (d *Driver) Update(ctx context.Context, collectionName string, id string, doc schema.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.writable(); err != nil {
		return err
	}

	c, ok := d.state.collections[collectionName]
	if !ok {
		return fmt.Errorf("%w: %s %s", persistence.ErrNotFound, collectionName, id)
	}
	if _, exists := c.docs[id]; !exists {
		return fmt.Errorf("%w: %s %s", persistence.ErrNotFound, collectionName, id)
	}
	c.docs[id] = doc.Clone()
	return nil
}

// Delete removes the document with the given id.
func (d *Driver) Delete(ctx context.Context, collectionName string, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.writable(); err != nil {
		return err
	}

	c, ok := d.state.collections[collectionName]
	if !ok {
		return fmt.Errorf("%w: %s %s", persistence.ErrNotFound, collectionName, id)
	}
	if _, exists := c.docs[id]; !exists {
		return fmt.Errorf("%w: %s %s", persistence.ErrNotFound, collectionName, id)
	}
	delete(c.docs, id)
	c.order = slices.DeleteFunc(c.order, func(e string) bool { return e == id })
	return nil
}

func (d *Driver) writable() error {
	if d.done {
		return fmt.Errorf("transaction already finished")
	}
	return nil
}

// StartTransaction returns a driver working on a private snapshot of the
// current state. Commit publishes the snapshot; concurrent writes to the
// parent made meanwhile are overwritten.
func (d *Driver) StartTransaction(ctx context.Context) (persistence.TransactionalDriver, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return &Driver{
		state:   d.state.clone(),
		matcher: d.matcher,
		logger:  d.logger,
		parent:  d,
	}, nil
}

// Commit publishes the transaction snapshot to the parent driver.
func (d *Driver) Commit(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.parent == nil {
		return fmt.Errorf("commit called outside a transaction")
	}
	if err := d.writable(); err != nil {
		return err
	}
	d.parent.mu.Lock()
	d.parent.state = d.state
	d.parent.mu.Unlock()
	d.done = true
	return nil
}

// Rollback discards the transaction snapshot.
func (d *Driver) Rollback(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.parent == nil {
		return fmt.Errorf("rollback called outside a transaction")
	}
	d.done = true
	return nil
}
