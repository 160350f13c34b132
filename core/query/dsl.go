// Package query defines the small filter language the mapper hands to storage
// drivers: single field conditions, logical groups, sorting and limits.
package query

// LogicalOperator combines filter conditions.
type LogicalOperator string

// Logical operators for combining filter conditions.
const (
	LogicalOperatorAnd LogicalOperator = "and" // All conditions must be true
	LogicalOperatorOr  LogicalOperator = "or"  // At least one condition must be true
	LogicalOperatorNot LogicalOperator = "not" // None of the conditions may be true
)

// ComparisonOperator defines the set of operators that can be used in a filter condition.
type ComparisonOperator string

// Supported comparison operators.
const (
	ComparisonOperatorEq        ComparisonOperator = "eq"
	ComparisonOperatorNeq       ComparisonOperator = "neq"
	ComparisonOperatorLt        ComparisonOperator = "lt"
	ComparisonOperatorLte       ComparisonOperator = "lte"
	ComparisonOperatorGt        ComparisonOperator = "gt"
	ComparisonOperatorGte       ComparisonOperator = "gte"
	ComparisonOperatorIn        ComparisonOperator = "in"
	ComparisonOperatorNin       ComparisonOperator = "nin"
	ComparisonOperatorExists    ComparisonOperator = "exists"
	ComparisonOperatorNotExists ComparisonOperator = "nexists"
)

// FilterValue represents the value used in a filter condition.
type FilterValue any

// FilterCondition defines a single condition for filtering the results of a query.
// Field may be a dotted path into nested attribute maps.
type FilterCondition struct {
	Field    string             // The field to apply the filter on.
	Operator ComparisonOperator // The comparison operator to use.
	Value    FilterValue        // The value to compare against.
}

// FilterGroup combines multiple filter conditions using a logical operator.
type FilterGroup struct {
	Operator   LogicalOperator // The logical operator to combine the conditions.
	Conditions []QueryFilter   // The list of conditions or nested groups.
}

// QueryFilter is a union type that can represent either a single filter condition
// or a group of conditions.
type QueryFilter struct {
	Condition *FilterCondition `json:",omitempty"` // A single filter condition.
	Group     *FilterGroup     `json:",omitempty"` // A group of filter conditions.
}

// SortDirection specifies the direction for sorting.
type SortDirection string

// Supported sort directions.
const (
	SortDirectionAsc  SortDirection = "asc"
	SortDirectionDesc SortDirection = "desc"
)

// SortConfiguration defines the sorting order for a specific field.
type SortConfiguration struct {
	Field     string
	Direction SortDirection
}

// QueryDSL is the top-level structure that represents a complete query.
type QueryDSL struct {
	Filters *QueryFilter        `json:",omitempty"`
	Sort    []SortConfiguration `json:",omitempty"`
	Limit   int                 `json:",omitempty"` // 0 means no limit
}

// standardComparisonOperators is a set of all the standard, built-in comparison operators.
var standardComparisonOperators = map[ComparisonOperator]struct{}{
	ComparisonOperatorEq:        {},
	ComparisonOperatorNeq:       {},
	ComparisonOperatorLt:        {},
	ComparisonOperatorLte:       {},
	ComparisonOperatorGt:        {},
	ComparisonOperatorGte:       {},
	ComparisonOperatorIn:        {},
	ComparisonOperatorNin:       {},
	ComparisonOperatorExists:    {},
	ComparisonOperatorNotExists: {},
}

// IsStandard checks if a comparison operator is one of the standard, built-in operators.
func (c ComparisonOperator) IsStandard() bool {
	_, ok := standardComparisonOperators[c]
	return ok
}
