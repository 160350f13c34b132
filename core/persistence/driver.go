package persistence

import (
	"context"

	"github.com/asaidimu/go-tapestry/core/query"
	"github.com/asaidimu/go-tapestry/core/schema"
)

// Driver is the storage collaborator. Collections hold raw documents keyed
// by their "_id" attribute; filters use the query DSL. Implementations must
// be safe for concurrent use.
type Driver interface {
	// FindOne returns the first matching document, or nil and no error when
	// nothing matches.
	FindOne(ctx context.Context, collection string, filter *query.QueryFilter) (schema.Document, error)

	// Find returns the documents matched by dsl, honoring its sort and limit.
	Find(ctx context.Context, collection string, dsl *query.QueryDSL) ([]schema.Document, error)

	// Exists reports whether any document matches filter.
	Exists(ctx context.Context, collection string, filter *query.QueryFilter) (bool, error)

	// Count returns the number of documents matching filter.
	Count(ctx context.Context, collection string, filter *query.QueryFilter) (int64, error)

	// Insert stores a new document. It fails when the id is already taken.
	Insert(ctx context.Context, collection string, doc schema.Document) error

	// Update replaces the stored document with the given id. It returns
	// ErrNotFound when no such document exists.
	Update(ctx context.Context, collection string, id string, doc schema.Document) error

	// Delete removes the document with the given id. It returns ErrNotFound
	// when no such document exists.
	Delete(ctx context.Context, collection string, id string) error
}

// TransactionalDriver is a Driver that can run operations atomically.
type TransactionalDriver interface {
	Driver

	// StartTransaction returns a new driver whose operations are part of one
	// transaction. The receiver stays non-transactional.
	StartTransaction(ctx context.Context) (TransactionalDriver, error)

	// Commit commits the transaction. Only valid on a driver returned by
	// StartTransaction.
	Commit(ctx context.Context) error

	// Rollback rolls back the transaction. Only valid on a driver returned by
	// StartTransaction.
	Rollback(ctx context.Context) error
}
