package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Options configures how the driver maps collections to tables.
type Options struct {
	// CollectionPrefix is prepended to every table name.
	CollectionPrefix string
	// AutoCreate creates missing tables on first use. Without it reads from a
	// missing table return no documents and writes fail.
	AutoCreate bool
}

// DefaultOptions returns the default driver options: no prefix, tables
// created on demand.
func DefaultOptions() *Options {
	return &Options{AutoCreate: true}
}

// tableName returns the quoted table name of collection, with the configured
// prefix applied.
func (d *Driver) tableName(collection string) string {
	return quoteIdentifier(d.options.CollectionPrefix + collection)
}

// CreateTableSQL returns the DDL creating the table of collection.
func (d *Driver) CreateTableSQL(collection string) string {
	return "CREATE TABLE IF NOT EXISTS " + d.tableName(collection) +
		" (\n    id TEXT NOT NULL PRIMARY KEY,\n    data TEXT NOT NULL\n);"
}

// CreateCollection creates the table of collection if it does not exist.
func (d *Driver) CreateCollection(ctx context.Context, collection string) error {
	stmt := d.CreateTableSQL(collection)
	if _, err := d.runner().ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create table for %s: %w", collection, err)
	}
	if d.tx == nil {
		d.ensured.Store(collection, struct{}{})
	}
	return nil
}

// DropCollection drops the table of collection.
func (d *Driver) DropCollection(ctx context.Context, collection string) error {
	stmt := fmt.Sprintf("DROP TABLE IF EXISTS %s;", d.tableName(collection))
	if _, err := d.runner().ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", d.tableName(collection), err)
	}
	d.ensured.Delete(collection)
	return nil
}

// CollectionExists checks if the table of collection exists.
func (d *Driver) CollectionExists(ctx context.Context, collection string) (bool, error) {
	const stmt = "SELECT name FROM sqlite_master WHERE type='table' AND name = ?;"
	var name string
	err := d.runner().QueryRowContext(ctx, stmt, d.options.CollectionPrefix+collection).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CreateIndexSQL returns the DDL of an index over the given attribute paths.
func (d *Driver) CreateIndexSQL(collection string, unique bool, fields ...string) (string, error) {
	if len(fields) == 0 {
		return "", fmt.Errorf("an index needs at least one field")
	}
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		accessor, err := fieldSQL(field)
		if err != nil {
			return "", err
		}
		parts = append(parts, accessor)
	}

	var sb strings.Builder
	sb.WriteString("CREATE ")
	if unique {
		sb.WriteString("UNIQUE ")
	}
	name := fmt.Sprintf("idx_%s%s_%s", d.options.CollectionPrefix, collection,
		strings.ReplaceAll(strings.Join(fields, "_"), ".", "_"))
	sb.WriteString("INDEX IF NOT EXISTS " + quoteIdentifier(name))
	sb.WriteString(" ON " + d.tableName(collection) + " (" + strings.Join(parts, ", ") + ");")
	return sb.String(), nil
}

// EnsureUniqueIndex creates a unique index over fields of collection. It is
// the storage-level guarantee behind application-level uniqueness checks,
// which cannot see concurrent inserts.
func (d *Driver) EnsureUniqueIndex(ctx context.Context, collection string, fields ...string) error {
	if _, _, err := d.prepare(ctx, collection); err != nil {
		return err
	}
	stmt, err := d.CreateIndexSQL(collection, true, fields...)
	if err != nil {
		return fmt.Errorf("failed to generate index for %s: %w", collection, err)
	}
	d.logger.Debug("Creating unique index", zap.String("sql", stmt))
	if _, err := d.runner().ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create index on %s: %w", collection, err)
	}
	return nil
}
