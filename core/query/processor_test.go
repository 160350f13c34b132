package query

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestNewMatcher(t *testing.T) {
	m := NewMatcher(nil)
	assert.NotNil(t, m)
	assert.NotNil(t, m.predicates)
	assert.NotNil(t, m.logger)

	m = NewMatcher(zap.NewNop())
	assert.NotNil(t, m)
}

func TestMatcher_RegisterPredicate(t *testing.T) {
	m := NewMatcher(nil)
	fn := func(doc map[string]any, field string, args FilterValue) (bool, error) { return true, nil }
	m.RegisterPredicate("customOp", fn)
	assert.Contains(t, m.predicates, ComparisonOperator("customOp"))
}

func TestMatcher_Match(t *testing.T) {
	m := NewMatcher(nil)
	doc := map[string]any{
		"name":    "Ann",
		"age":     int64(30),
		"score":   float64(7),
		"empty":   nil,
		"address": map[string]any{"city": "Nairobi"},
	}

	tests := []struct {
		name     string
		filter   *QueryFilter
		expected bool
	}{
		{"nil filter matches", nil, true},
		{"eq string", &QueryFilter{Condition: &FilterCondition{Field: "name", Operator: ComparisonOperatorEq, Value: "Ann"}}, true},
		{"eq mismatch", &QueryFilter{Condition: &FilterCondition{Field: "name", Operator: ComparisonOperatorEq, Value: "Bob"}}, false},
		{"eq across numeric types", &QueryFilter{Condition: &FilterCondition{Field: "age", Operator: ComparisonOperatorEq, Value: 30}}, true},
		{"eq number against string", &QueryFilter{Condition: &FilterCondition{Field: "score", Operator: ComparisonOperatorEq, Value: "7"}}, false},
		{"eq nil on missing field", &QueryFilter{Condition: &FilterCondition{Field: "missing", Operator: ComparisonOperatorEq, Value: nil}}, true},
		{"neq", &QueryFilter{Condition: &FilterCondition{Field: "name", Operator: ComparisonOperatorNeq, Value: "Bob"}}, true},
		{"gt", &QueryFilter{Condition: &FilterCondition{Field: "age", Operator: ComparisonOperatorGt, Value: 18}}, true},
		{"lte", &QueryFilter{Condition: &FilterCondition{Field: "age", Operator: ComparisonOperatorLte, Value: 30}}, true},
		{"lt on missing field", &QueryFilter{Condition: &FilterCondition{Field: "missing", Operator: ComparisonOperatorLt, Value: 1}}, false},
		{"in", &QueryFilter{Condition: &FilterCondition{Field: "name", Operator: ComparisonOperatorIn, Value: []FilterValue{"Bob", "Ann"}}}, true},
		{"nin", &QueryFilter{Condition: &FilterCondition{Field: "name", Operator: ComparisonOperatorNin, Value: []string{"Bob"}}}, true},
		{"exists", &QueryFilter{Condition: &FilterCondition{Field: "name", Operator: ComparisonOperatorExists, Value: true}}, true},
		{"exists on nil", &QueryFilter{Condition: &FilterCondition{Field: "empty", Operator: ComparisonOperatorExists, Value: true}}, false},
		{"nexists", &QueryFilter{Condition: &FilterCondition{Field: "missing", Operator: ComparisonOperatorNotExists, Value: true}}, true},
		{"dotted path", &QueryFilter{Condition: &FilterCondition{Field: "address.city", Operator: ComparisonOperatorEq, Value: "Nairobi"}}, true},
		{"and group", And(Eq("name", "Ann"), Eq("age", 30)), true},
		{"and group failing", And(Eq("name", "Ann"), Eq("age", 31)), false},
		{"or group", Or(Eq("name", "Bob"), Eq("age", 30)), true},
		{"not group", &QueryFilter{Group: &FilterGroup{Operator: LogicalOperatorNot, Conditions: []QueryFilter{Eq("name", "Bob")}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := m.Match(tt.filter, doc)
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, ok)
		})
	}
}

func TestMatcher_MatchErrors(t *testing.T) {
	m := NewMatcher(nil)
	doc := map[string]any{"name": "Ann"}

	_, err := m.Match(&QueryFilter{Condition: &FilterCondition{Field: "name", Operator: "unknown"}}, doc)
	assert.Error(t, err)

	_, err = m.Match(&QueryFilter{}, doc)
	assert.Error(t, err)

	_, err = m.Match(&QueryFilter{Condition: &FilterCondition{Field: "name", Operator: ComparisonOperatorIn, Value: "Ann"}}, doc)
	assert.Error(t, err)

	_, err = m.Match(&QueryFilter{Condition: &FilterCondition{Field: "name", Operator: ComparisonOperatorGt, Value: 3}}, doc)
	assert.Error(t, err)
}

func TestMatcher_CustomPredicate(t *testing.T) {
	m := NewMatcher(nil)
	m.RegisterPredicate("prefix", func(doc map[string]any, field string, args FilterValue) (bool, error) {
		s, _ := doc[field].(string)
		p, _ := args.(string)
		return len(s) >= len(p) && s[:len(p)] == p, nil
	})
	m.RegisterPredicate("broken", func(doc map[string]any, field string, args FilterValue) (bool, error) {
		return false, errors.New("boom")
	})

	ok, err := m.Match(&QueryFilter{Condition: &FilterCondition{Field: "name", Operator: "prefix", Value: "An"}}, map[string]any{"name": "Ann"})
	assert.NoError(t, err)
	assert.True(t, ok)

	_, err = m.Match(&QueryFilter{Condition: &FilterCondition{Field: "name", Operator: "broken"}}, map[string]any{"name": "Ann"})
	assert.EqualError(t, err, "boom")
}

func TestLookup(t *testing.T) {
	doc := map[string]any{"a": map[string]any{"b": map[string]any{"c": 1}}, "s": "x"}
	v, ok := Lookup(doc, "a.b.c")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = Lookup(doc, "s.t")
	assert.False(t, ok)
	_, ok = Lookup(doc, "a.z")
	assert.False(t, ok)
}

func TestEqualAndCompare(t *testing.T) {
	const big = int64(9007199254740993)
	tests := []struct {
		name  string
		a, b  any
		equal bool
		cmp   int
	}{
		{"mixed integer types", int(7), int64(7), true, 0},
		{"integer and whole float", int64(7), 7.0, true, 0},
		{"large integers beyond float precision", big, big - 1, false, 1},
		{"large integers reversed", big - 1, big, false, -1},
		{"signed below unsigned", int64(-1), uint64(1), false, -1},
		{"max uint64 above max int64", uint64(math.MaxUint64), int64(math.MaxInt64), false, 1},
		{"negative ordering", int64(-5), int64(-3), false, -1},
		{"min int64", int64(math.MinInt64), int64(math.MinInt64 + 1), false, -1},
		{"floats", 1.5, 2.5, false, -1},
		{"strings", "a", "b", false, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.equal, Equal(tt.a, tt.b))
			cmp, err := Compare(tt.a, tt.b)
			assert.NoError(t, err)
			assert.Equal(t, tt.cmp, cmp)
		})
	}

	assert.False(t, Equal(int64(1), "1"))
	assert.True(t, Equal([]any{"a"}, []any{"a"}))
}
