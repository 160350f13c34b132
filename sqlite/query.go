package sqlite

import (
	"fmt"
	"strings"

	"github.com/asaidimu/go-tapestry/core/query"
	"github.com/asaidimu/go-tapestry/core/schema"
)

// quoteIdentifier properly quotes an identifier for SQLite.
func quoteIdentifier(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// fieldSQL translates a dotted attribute path into its SQL accessor: the id
// column for the id, a json_extract over the data column otherwise.
func fieldSQL(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("field path cannot be empty")
	}
	if path == schema.IDField {
		return "id", nil
	}
	var sb strings.Builder
	sb.WriteString("$")
	for _, part := range strings.Split(path, ".") {
		if part == "" || strings.ContainsAny(part, `"'`) {
			return "", fmt.Errorf("invalid field path %q", path)
		}
		sb.WriteString(`."` + part + `"`)
	}
	return fmt.Sprintf("json_extract(data, '%s')", sb.String()), nil
}

// selectQuery is the statement built for one driver call.
type selectQuery struct {
	table  string
	where  string
	order  []string
	limit  int
	params []any
}

func newSelectQuery(table string, filter *query.QueryFilter) (*selectQuery, error) {
	q := &selectQuery{table: table}
	if filter != nil {
		where, err := q.buildWhereClause(filter)
		if err != nil {
			return nil, fmt.Errorf("error building WHERE clause: %w", err)
		}
		q.where = where
	}
	return q, nil
}

func (q *selectQuery) sort(sort []query.SortConfiguration) error {
	for _, s := range sort {
		accessor, err := fieldSQL(s.Field)
		if err != nil {
			return fmt.Errorf("sort error: %w", err)
		}
		dir := "ASC"
		if s.Direction == query.SortDirectionDesc {
			dir = "DESC"
		}
		q.order = append(q.order, accessor+" "+dir)
	}
	return nil
}

func (q *selectQuery) whereSQL() string {
	if q.where == "" {
		return ""
	}
	return " WHERE " + q.where
}

func (q *selectQuery) selectSQL() string {
	var sb strings.Builder
	sb.WriteString("SELECT id, data FROM " + q.table + q.whereSQL())
	if len(q.order) > 0 {
		sb.WriteString(" ORDER BY " + strings.Join(q.order, ", ") + ", rowid")
	} else {
		sb.WriteString(" ORDER BY rowid")
	}
	if q.limit > 0 {
		sb.WriteString(fmt.Sprintf(" LIMIT %d", q.limit))
	}
	return sb.String() + ";"
}

func (q *selectQuery) countSQL() string {
	return "SELECT COUNT(*) FROM " + q.table + q.whereSQL() + ";"
}

func (q *selectQuery) existsSQL() string {
	return "SELECT EXISTS(SELECT 1 FROM " + q.table + q.whereSQL() + ");"
}

// buildWhereClause recursively builds the WHERE clause from a filter.
func (q *selectQuery) buildWhereClause(filter *query.QueryFilter) (string, error) {
	if filter.Condition != nil {
		return q.buildCondition(filter.Condition)
	}
	if filter.Group != nil {
		var clauses []string
		for _, cond := range filter.Group.Conditions {
			clause, err := q.buildWhereClause(&cond)
			if err != nil {
				return "", err
			}
			if clause != "" {
				clauses = append(clauses, clause)
			}
		}
		switch filter.Group.Operator {
		case query.LogicalOperatorAnd:
			if len(clauses) == 0 {
				return "1=1", nil
			}
			return "(" + strings.Join(clauses, " AND ") + ")", nil
		case query.LogicalOperatorOr:
			if len(clauses) == 0 {
				return "1=0", nil
			}
			return "(" + strings.Join(clauses, " OR ") + ")", nil
		case query.LogicalOperatorNot:
			if len(clauses) == 0 {
				return "1=1", nil
			}
			return "NOT (" + strings.Join(clauses, " OR ") + ")", nil
		}
		return "", fmt.Errorf("unsupported logical operator: %s", filter.Group.Operator)
	}
	return "", fmt.Errorf("invalid filter structure: neither Condition nor Group is set")
}

// buildCondition translates a single condition. Missing attributes extract
// as NULL, so equality with nil matches them and inequality with a value
// includes them.
func (q *selectQuery) buildCondition(cond *query.FilterCondition) (string, error) {
	accessor, err := fieldSQL(cond.Field)
	if err != nil {
		return "", err
	}

	switch cond.Operator {
	case query.ComparisonOperatorExists:
		return accessor + " IS NOT NULL", nil
	case query.ComparisonOperatorNotExists:
		return accessor + " IS NULL", nil
	case query.ComparisonOperatorIn, query.ComparisonOperatorNin:
		return q.buildMembership(accessor, cond)
	}

	value, err := parameter(cond.Value)
	if err != nil {
		return "", fmt.Errorf("failed to prepare value for condition field '%s': %w", cond.Field, err)
	}

	switch cond.Operator {
	case query.ComparisonOperatorEq:
		if value == nil {
			return accessor + " IS NULL", nil
		}
		q.params = append(q.params, value)
		return accessor + " = ?", nil
	case query.ComparisonOperatorNeq:
		if value == nil {
			return accessor + " IS NOT NULL", nil
		}
		q.params = append(q.params, value)
		return fmt.Sprintf("(%s IS NULL OR %s != ?)", accessor, accessor), nil
	case query.ComparisonOperatorLt, query.ComparisonOperatorLte, query.ComparisonOperatorGt, query.ComparisonOperatorGte:
		ops := map[query.ComparisonOperator]string{
			query.ComparisonOperatorLt:  "<",
			query.ComparisonOperatorLte: "<=",
			query.ComparisonOperatorGt:  ">",
			query.ComparisonOperatorGte: ">=",
		}
		q.params = append(q.params, value)
		return fmt.Sprintf("%s %s ?", accessor, ops[cond.Operator]), nil
	}
	return "", fmt.Errorf("unsupported comparison operator for direct SQL: %s", cond.Operator)
}

func (q *selectQuery) buildMembership(accessor string, cond *query.FilterCondition) (string, error) {
	var values []any
	switch v := cond.Value.(type) {
	case []query.FilterValue:
		for _, e := range v {
			values = append(values, e)
		}
	case []any:
		values = v
	case []string:
		for _, e := range v {
			values = append(values, e)
		}
	default:
		return "", fmt.Errorf("operator %s requires a list value for field '%s'", cond.Operator, cond.Field)
	}

	if len(values) == 0 {
		if cond.Operator == query.ComparisonOperatorIn {
			return "1=0", nil
		}
		return "1=1", nil
	}

	placeholders := strings.Repeat("?,", len(values)-1) + "?"
	for _, v := range values {
		p, err := parameter(v)
		if err != nil {
			return "", fmt.Errorf("failed to prepare value for condition field '%s': %w", cond.Field, err)
		}
		q.params = append(q.params, p)
	}
	if cond.Operator == query.ComparisonOperatorNin {
		return fmt.Sprintf("(%s IS NULL OR %s NOT IN (%s))", accessor, accessor, placeholders), nil
	}
	return fmt.Sprintf("%s IN (%s)", accessor, placeholders), nil
}
