package persistence

import (
	"slices"

	"github.com/asaidimu/go-tapestry/core/schema"
	"go.uber.org/zap"
)

// Config holds configuration for the Persistence service.
type Config struct {
	// RaiseNotFound makes lookups by id and reloads fail with ErrNotFound
	// instead of returning an absent result.
	// Default: true
	RaiseNotFound bool

	// DynamicFields allows documents to carry attributes their type does not
	// declare. When false Save rejects such documents with ErrUndeclaredField.
	// Default: true
	DynamicFields bool

	// AuditFields are stripped, along with the id and version history, when
	// a document is cloned.
	// Default: created_at, updated_at
	AuditFields []string

	// Logger receives debug output for every storage call.
	// Default: a no-op logger
	Logger *zap.Logger
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		RaiseNotFound: true,
		DynamicFields: true,
		AuditFields:   []string{"created_at", "updated_at"},
		Logger:        zap.NewNop(),
	}
}

// validate fills missing values and drops audit field names that are empty
// or reserved.
func (c *Config) validate() {
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	c.AuditFields = slices.DeleteFunc(slices.Clone(c.AuditFields), func(name string) bool {
		return name == "" || name == schema.IDField || name == schema.TypeField
	})
}
