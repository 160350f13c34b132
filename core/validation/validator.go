// Package validation runs field-level rules against documents and records
// their findings on the document's error set. A failed rule is not an error:
// Validate only fails when a rule cannot be evaluated, such as when storage
// is unreachable.
package validation

import (
	"context"
	"fmt"
	"sync"

	"github.com/asaidimu/go-tapestry/core/document"
	"github.com/asaidimu/go-tapestry/core/query"
	"github.com/asaidimu/go-tapestry/core/schema"
	"go.uber.org/zap"
)

// Store is the storage surface rules may query. *persistence.Persistence
// satisfies it.
type Store interface {
	Exists(ctx context.Context, typ *schema.Type, conditions query.Conditions) (bool, error)
}

// Rule checks one aspect of a document and records issues on it.
type Rule interface {
	Validate(ctx context.Context, store Store, doc *document.Document) error
}

// RuleFunc adapts a function to the Rule interface.
type RuleFunc func(ctx context.Context, store Store, doc *document.Document) error

func (f RuleFunc) Validate(ctx context.Context, store Store, doc *document.Document) error {
	return f(ctx, store, doc)
}

// Validator holds the rules registered per type. Rules registered for a
// base type also apply to its subtypes.
type Validator struct {
	store  Store
	logger *zap.Logger

	mu    sync.RWMutex
	rules map[string][]Rule
}

// NewValidator creates a validator querying store.
func NewValidator(store Store, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{
		store:  store,
		logger: logger,
		rules:  make(map[string][]Rule),
	}
}

// Register appends rules for the named type.
func (v *Validator) Register(typeName string, rules ...Rule) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rules[typeName] = append(v.rules[typeName], rules...)
}

// RulesFor returns the rules applying to typ: a presence rule for its
// required fields, then the rules of its base types, then its own.
func (v *Validator) RulesFor(typ *schema.Type) []Rule {
	v.mu.RLock()
	defer v.mu.RUnlock()

	var required []string
	for _, f := range typ.Fields() {
		if f.Required {
			required = append(required, f.Name)
		}
	}

	var rules []Rule
	if len(required) > 0 {
		rules = append(rules, Presence{Attributes: required})
	}
	var chain []*schema.Type
	for cur := typ; cur != nil; cur = cur.Base() {
		chain = append([]*schema.Type{cur}, chain...)
	}
	for _, t := range chain {
		rules = append(rules, v.rules[t.Name()]...)
	}
	return rules
}

// Validate clears the issues recorded on doc, runs every applicable rule and
// reports whether doc is valid.
func (v *Validator) Validate(ctx context.Context, doc *document.Document) (bool, error) {
	doc.Errors().Clear()
	for _, rule := range v.RulesFor(doc.Type()) {
		if err := rule.Validate(ctx, v.store, doc); err != nil {
			return false, fmt.Errorf("failed to validate %s %s: %w", doc.TypeName(), doc.ID(), err)
		}
	}
	valid := doc.Errors().Empty()
	if !valid {
		v.logger.Debug("Document failed validation",
			zap.String("type", doc.TypeName()),
			zap.String("id", doc.ID()),
			zap.Int("issues", doc.Errors().Len()))
	}
	return valid, nil
}
