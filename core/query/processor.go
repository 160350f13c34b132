package query

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// PredicateFunction performs custom filtering logic on a document for a
// non-standard operator.
type PredicateFunction func(doc map[string]any, field string, args FilterValue) (bool, error)

// Matcher evaluates filters against in-memory documents. Drivers that cannot
// push a filter down to storage use it to filter rows after loading.
type Matcher struct {
	predicates map[ComparisonOperator]PredicateFunction
	mu         sync.RWMutex
	logger     *zap.Logger
}

// NewMatcher creates a new Matcher instance.
func NewMatcher(logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{
		predicates: make(map[ComparisonOperator]PredicateFunction),
		logger:     logger,
	}
}

// RegisterPredicate registers a Go function for a custom operator.
func (m *Matcher) RegisterPredicate(operator ComparisonOperator, fn PredicateFunction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predicates[operator] = fn
	m.logger.Debug("Registered filter predicate", zap.String("operator", string(operator)))
}

// Match reports whether doc satisfies filter. A nil filter matches everything.
func (m *Matcher) Match(filter *QueryFilter, doc map[string]any) (bool, error) {
	if filter == nil {
		return true, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.evaluate(doc, filter)
}

func (m *Matcher) evaluate(doc map[string]any, filter *QueryFilter) (bool, error) {
	if filter.Condition != nil {
		if !filter.Condition.Operator.IsStandard() {
			fn, ok := m.predicates[filter.Condition.Operator]
			if !ok {
				return false, fmt.Errorf("unregistered filter predicate for operator: %s", filter.Condition.Operator)
			}
			return fn(doc, filter.Condition.Field, filter.Condition.Value)
		}
		return evaluateCondition(doc, filter.Condition)
	}
	if filter.Group != nil {
		switch filter.Group.Operator {
		case LogicalOperatorAnd:
			for i := range filter.Group.Conditions {
				passes, err := m.evaluate(doc, &filter.Group.Conditions[i])
				if err != nil || !passes {
					return false, err
				}
			}
			return true, nil
		case LogicalOperatorOr:
			for i := range filter.Group.Conditions {
				passes, err := m.evaluate(doc, &filter.Group.Conditions[i])
				if err != nil {
					return false, err
				}
				if passes {
					return true, nil
				}
			}
			return false, nil
		case LogicalOperatorNot:
			for i := range filter.Group.Conditions {
				passes, err := m.evaluate(doc, &filter.Group.Conditions[i])
				if err != nil {
					return false, err
				}
				if passes {
					return false, nil
				}
			}
			return true, nil
		default:
			return false, fmt.Errorf("unsupported logical operator: %s", filter.Group.Operator)
		}
	}
	return false, fmt.Errorf("empty or invalid filter structure")
}

func evaluateCondition(doc map[string]any, condition *FilterCondition) (bool, error) {
	fieldValue, present := Lookup(doc, condition.Field)

	switch condition.Operator {
	case ComparisonOperatorExists:
		return present && fieldValue != nil, nil
	case ComparisonOperatorNotExists:
		return !present || fieldValue == nil, nil
	case ComparisonOperatorEq:
		if !present {
			return condition.Value == nil, nil
		}
		return Equal(fieldValue, condition.Value), nil
	case ComparisonOperatorNeq:
		if !present {
			return condition.Value != nil, nil
		}
		return !Equal(fieldValue, condition.Value), nil
	case ComparisonOperatorIn, ComparisonOperatorNin:
		values, ok := asSlice(condition.Value)
		if !ok {
			return false, fmt.Errorf("operator %s expects a list, got %T", condition.Operator, condition.Value)
		}
		found := false
		for _, v := range values {
			if present && Equal(fieldValue, v) {
				found = true
				break
			}
		}
		if condition.Operator == ComparisonOperatorIn {
			return found, nil
		}
		return !found, nil
	case ComparisonOperatorLt, ComparisonOperatorLte, ComparisonOperatorGt, ComparisonOperatorGte:
		if !present {
			return false, nil
		}
		cmp, err := Compare(fieldValue, condition.Value)
		if err != nil {
			return false, fmt.Errorf("%s comparison: %w", condition.Operator, err)
		}
		switch condition.Operator {
		case ComparisonOperatorLt:
			return cmp < 0, nil
		case ComparisonOperatorLte:
			return cmp <= 0, nil
		case ComparisonOperatorGt:
			return cmp > 0, nil
		default:
			return cmp >= 0, nil
		}
	default:
		return false, fmt.Errorf("unsupported standard comparison operator: %s", condition.Operator)
	}
}

// Lookup resolves a dotted field path inside nested attribute maps.
func Lookup(doc map[string]any, path string) (any, bool) {
	var current any = doc
	for _, part := range strings.Split(path, ".") {
		m, ok := asMap(current)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	default:
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String {
			out := make(map[string]any, rv.Len())
			iter := rv.MapRange()
			for iter.Next() {
				out[iter.Key().String()] = iter.Value().Interface()
			}
			return out, true
		}
	}
	return nil, false
}

// Equal compares two attribute values. Numbers compare by value regardless
// of their Go type, which matters for payloads that went through JSON.
func Equal(a, b any) bool {
	if cmp, ok := compareNumbers(a, b); ok {
		return cmp == 0
	}
	if isNumber(a) || isNumber(b) {
		return false
	}
	return reflect.DeepEqual(a, b)
}

// Compare orders two attribute values. Numbers compare by value and strings
// lexically; other combinations are an error.
func Compare(a, b any) (int, error) {
	if cmp, ok := compareNumbers(a, b); ok {
		return cmp, nil
	}
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return strings.Compare(as, bs), nil
		}
	}
	return 0, fmt.Errorf("unsupported types %T and %T", a, b)
}

// compareNumbers orders two numbers. Two integers compare exactly; floats
// are involved only when either side is one.
func compareNumbers(a, b any) (int, bool) {
	if an, aneg, ok := toInteger(a); ok {
		if bn, bneg, ok := toInteger(b); ok {
			switch {
			case aneg != bneg:
				if aneg {
					return -1, true
				}
				return 1, true
			case an == bn:
				return 0, true
			case (an < bn) != aneg:
				return -1, true
			}
			return 1, true
		}
	}
	af, ok := ToFloat64(a)
	if !ok {
		return 0, false
	}
	bf, ok := ToFloat64(b)
	if !ok {
		return 0, false
	}
	switch {
	case af < bf:
		return -1, true
	case af > bf:
		return 1, true
	}
	return 0, true
}

func isNumber(v any) bool {
	_, ok := ToFloat64(v)
	return ok
}
