// Package sqlite provides a persistence.Driver storing documents in SQLite.
// Each collection is a table holding the id in its own column and the
// remaining attributes as JSON text; filters are translated to json_extract
// expressions.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/asaidimu/go-tapestry/core/persistence"
	"github.com/asaidimu/go-tapestry/core/query"
	"github.com/asaidimu/go-tapestry/core/schema"
	"go.uber.org/zap"

	_ "github.com/mattn/go-sqlite3"
)

// dbRunner abstracts the common methods of *sql.DB and *sql.Tx, so the same
// code serves transactional and non-transactional calls.
type dbRunner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Driver stores documents in a SQLite database. It can operate in both
// transactional and non-transactional modes.
type Driver struct {
	db      *sql.DB
	tx      *sql.Tx
	logger  *zap.Logger
	options *Options

	// ensured caches the tables known to exist. Transactional drivers do not
	// record into it since their DDL may be rolled back.
	ensured *sync.Map
}

var (
	_ persistence.Driver              = (*Driver)(nil)
	_ persistence.TransactionalDriver = (*Driver)(nil)
)

// NewDriver creates a driver over db. A nil logger or options fall back to
// the no-op logger and DefaultOptions.
func NewDriver(db *sql.DB, logger *zap.Logger, options *Options) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if options == nil {
		options = DefaultOptions()
	}
	return &Driver{
		db:      db,
		options: options,
		logger:  logger,
		ensured: &sync.Map{},
	}
}

// Open opens the database at dsn and wraps it in a driver. In-memory
// databases are restricted to a single connection so every call sees the
// same data.
func Open(dsn string, logger *zap.Logger, options *Options) (*Driver, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dsn == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return NewDriver(db, logger, options), nil
}

// Close closes the underlying database.
func (d *Driver) Close() error {
	if d.tx != nil {
		return fmt.Errorf("close not applicable: in a transactional context")
	}
	return d.db.Close()
}

// runner returns the active transaction, or the connection pool.
func (d *Driver) runner() dbRunner {
	if d.tx != nil {
		return d.tx
	}
	return d.db
}

// prepare returns the quoted table name of collection, creating the table
// first when AutoCreate is set. A missing table without AutoCreate reports
// exists == false.
func (d *Driver) prepare(ctx context.Context, collection string) (table string, exists bool, err error) {
	table = d.tableName(collection)
	if _, ok := d.ensured.Load(collection); ok {
		return table, true, nil
	}
	if d.options.AutoCreate {
		if err := d.CreateCollection(ctx, collection); err != nil {
			return "", false, err
		}
		return table, true, nil
	}
	exists, err = d.CollectionExists(ctx, collection)
	if err != nil {
		return "", false, err
	}
	if exists && d.tx == nil {
		d.ensured.Store(collection, struct{}{})
	}
	return table, exists, nil
}

func (d *Driver) query(ctx context.Context, collection string, dsl *query.QueryDSL) ([]schema.Document, error) {
	table, exists, err := d.prepare(ctx, collection)
	if err != nil || !exists {
		return nil, err
	}
	q, err := newSelectQuery(table, dsl.Filters)
	if err != nil {
		return nil, err
	}
	if err := q.sort(dsl.Sort); err != nil {
		return nil, err
	}
	q.limit = dsl.Limit
	sqlQuery := q.selectSQL()

	d.logger.Debug("Executing SQL SELECT", zap.String("sql", sqlQuery), zap.Any("params", q.params))
	rows, err := d.runner().QueryContext(ctx, sqlQuery, q.params...)
	if err != nil {
		d.logger.Error("Failed to execute SELECT query", zap.Error(err), zap.String("sql", sqlQuery))
		return nil, fmt.Errorf("failed to execute SELECT query: %w", err)
	}
	defer rows.Close()
	return readRows(rows)
}

// readRows decodes every (id, data) row.
func readRows(rows *sql.Rows) ([]schema.Document, error) {
	var results []schema.Document
	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		doc, err := decode(id, data)
		if err != nil {
			return nil, err
		}
		results = append(results, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error after scanning rows: %w", err)
	}
	return results, nil
}

// FindOne returns the first document matching filter, or nil.
func (d *Driver) FindOne(ctx context.Context, collection string, filter *query.QueryFilter) (schema.Document, error) {
	rows, err := d.query(ctx, collection, &query.QueryDSL{Filters: filter, Limit: 1})
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// Find returns the documents matched by dsl, in insertion order unless the
// query sorts them.
func (d *Driver) Find(ctx context.Context, collection string, dsl *query.QueryDSL) ([]schema.Document, error) {
	if dsl == nil {
		dsl = &query.QueryDSL{}
	}
	return d.query(ctx, collection, dsl)
}

// Exists reports whether any document matches filter.
func (d *Driver) Exists(ctx context.Context, collection string, filter *query.QueryFilter) (bool, error) {
	table, exists, err := d.prepare(ctx, collection)
	if err != nil || !exists {
		return false, err
	}
	q, err := newSelectQuery(table, filter)
	if err != nil {
		return false, err
	}
	sqlQuery := q.existsSQL()
	d.logger.Debug("Executing SQL EXISTS", zap.String("sql", sqlQuery), zap.Any("params", q.params))

	var found bool
	if err := d.runner().QueryRowContext(ctx, sqlQuery, q.params...).Scan(&found); err != nil {
		return false, fmt.Errorf("failed to execute EXISTS query: %w", err)
	}
	return found, nil
}

// Count returns the number of documents matching filter.
func (d *Driver) Count(ctx context.Context, collection string, filter *query.QueryFilter) (int64, error) {
	table, exists, err := d.prepare(ctx, collection)
	if err != nil || !exists {
		return 0, err
	}
	q, err := newSelectQuery(table, filter)
	if err != nil {
		return 0, err
	}
	sqlQuery := q.countSQL()
	d.logger.Debug("Executing SQL COUNT", zap.String("sql", sqlQuery), zap.Any("params", q.params))

	var n int64
	if err := d.runner().QueryRowContext(ctx, sqlQuery, q.params...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to execute COUNT query: %w", err)
	}
	return n, nil
}

// Insert stores doc as a new row. A duplicate id violates the primary key.
func (d *Driver) Insert(ctx context.Context, collection string, doc schema.Document) error {
	id, ok := doc[schema.IDField]
	if !ok || id == nil || id == "" {
		return fmt.Errorf("document has no %s", schema.IDField)
	}
	data, err := encode(doc)
	if err != nil {
		return err
	}
	table, exists, err := d.prepare(ctx, collection)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("collection %s does not exist", collection)
	}

	sqlQuery := "INSERT INTO " + table + " (id, data) VALUES (?, ?);"
	d.logger.Debug("Executing SQL INSERT", zap.String("sql", sqlQuery), zap.Any("id", id))
	if _, err := d.runner().ExecContext(ctx, sqlQuery, fmt.Sprint(id), data); err != nil {
		d.logger.Error("Failed to execute INSERT query", zap.Error(err), zap.String("sql", sqlQuery))
		return fmt.Errorf("failed to execute INSERT query: %w", err)
	}
	return nil
}

// Update replaces the attributes of the row with the given id.
func (d *Driver) Update(ctx context.Context, collection string, id string, doc schema.Document) error {
	data, err := encode(doc)
	if err != nil {
		return err
	}
	return d.exec(ctx, collection, id, "UPDATE %s SET data = ? WHERE id = ?;", data, id)
}

// Delete removes the row with the given id.
func (d *Driver) Delete(ctx context.Context, collection string, id string) error {
	return d.exec(ctx, collection, id, "DELETE FROM %s WHERE id = ?;", id)
}

// exec runs a statement addressing a single row and maps zero affected rows
// to persistence.ErrNotFound.
func (d *Driver) exec(ctx context.Context, collection, id, statement string, args ...any) error {
	table, exists, err := d.prepare(ctx, collection)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s %s", persistence.ErrNotFound, collection, id)
	}
	sqlQuery := fmt.Sprintf(statement, table)
	d.logger.Debug("Executing SQL statement", zap.String("sql", sqlQuery), zap.String("id", id))

	result, err := d.runner().ExecContext(ctx, sqlQuery, args...)
	if err != nil {
		d.logger.Error("Failed to execute statement", zap.Error(err), zap.String("sql", sqlQuery))
		return fmt.Errorf("failed to execute statement: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %s", persistence.ErrNotFound, collection, id)
	}
	return nil
}

// StartTransaction begins a new database transaction and returns a driver
// scoped to it.
func (d *Driver) StartTransaction(ctx context.Context) (persistence.TransactionalDriver, error) {
	if d.tx != nil {
		return nil, fmt.Errorf("cannot start a new transaction from an existing transactional driver")
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	d.logger.Debug("Transaction initiated, returning new transactional driver")
	return &Driver{
		db:      d.db,
		tx:      tx,
		logger:  d.logger,
		options: d.options,
		ensured: d.ensured,
	}, nil
}

// Commit commits the current transaction.
func (d *Driver) Commit(ctx context.Context) error {
	if d.tx == nil {
		return fmt.Errorf("commit not applicable: not in a transactional context")
	}
	d.logger.Debug("Committing transaction")
	return d.tx.Commit()
}

// Rollback rolls back the current transaction.
func (d *Driver) Rollback(ctx context.Context) error {
	if d.tx == nil {
		return fmt.Errorf("rollback not applicable: not in a transactional context")
	}
	d.logger.Debug("Rolling back transaction")
	return d.tx.Rollback()
}
