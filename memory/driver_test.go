package memory

import (
	"context"
	"testing"

	"github.com/asaidimu/go-tapestry/core/persistence"
	"github.com/asaidimu/go-tapestry/core/query"
	"github.com/asaidimu/go-tapestry/core/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T) *Driver {
	t.Helper()
	d := New(nil)
	ctx := context.Background()
	for _, doc := range []schema.Document{
		{"_id": "1", "name": "Ann", "age": 30},
		{"_id": "2", "name": "Bob", "age": 25},
		{"_id": "3", "name": "Cid", "age": 35, "address": map[string]any{"city": "Lagos"}},
	} {
		require.NoError(t, d.Insert(ctx, "people", doc))
	}
	return d
}

func TestDriver_FindOne(t *testing.T) {
	d := seed(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		filter *query.QueryFilter
		id     any
	}{
		{"no filter returns the first inserted", nil, "1"},
		{"by name", query.Conditions{"name": "Bob"}.Filter(), "2"},
		{"nested field", query.Conditions{"address.city": "Lagos"}.Filter(), "3"},
		{"no match", query.Conditions{"name": "Dee"}.Filter(), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := d.FindOne(ctx, "people", tt.filter)
			require.NoError(t, err)
			if tt.id == nil {
				assert.Nil(t, doc)
				return
			}
			assert.Equal(t, tt.id, doc["_id"])
		})
	}

	doc, err := d.FindOne(ctx, "missing", nil)
	assert.NoError(t, err)
	assert.Nil(t, doc)
}

func TestDriver_FindSortAndLimit(t *testing.T) {
	d := seed(t)
	ctx := context.Background()

	dsl := query.NewQueryBuilder().Where("age").Gte(25).OrderByDesc("age").Limit(2).Build()
	rows, err := d.Find(ctx, "people", &dsl)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Cid", rows[0]["name"])
	assert.Equal(t, "Ann", rows[1]["name"])

	asc := query.NewQueryBuilder().OrderByAsc("address.city").Build()
	rows, err = d.Find(ctx, "people", &asc)
	require.NoError(t, err)
	assert.Equal(t, "3", rows[2]["_id"])

	rows, err = d.Find(ctx, "people", nil)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestDriver_CountAndExists(t *testing.T) {
	d := seed(t)
	ctx := context.Background()

	n, err := d.Count(ctx, "people", query.NewQueryBuilder().Where("age").Gt(26).Build().Filters)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	ok, err := d.Exists(ctx, "people", query.Conditions{"name": []string{"Zed", "Bob"}}.Filter())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.Exists(ctx, "people", query.Conditions{"name": "Zed"}.Filter())
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = d.Exists(ctx, "people", &query.QueryFilter{Condition: &query.FilterCondition{Field: "name", Operator: "bogus"}})
	assert.Error(t, err)
}

func TestDriver_Writes(t *testing.T) {
	d := seed(t)
	ctx := context.Background()

	t.Run("duplicate ids are rejected", func(t *testing.T) {
		assert.Error(t, d.Insert(ctx, "people", schema.Document{"_id": "1"}))
	})

	t.Run("documents need an id", func(t *testing.T) {
		assert.Error(t, d.Insert(ctx, "people", schema.Document{"name": "anon"}))
	})

	t.Run("update replaces the document", func(t *testing.T) {
		require.NoError(t, d.Update(ctx, "people", "2", schema.Document{"_id": "2", "name": "Robert"}))
		doc, err := d.FindOne(ctx, "people", query.Conditions{"_id": "2"}.Filter())
		require.NoError(t, err)
		assert.Equal(t, schema.Document{"_id": "2", "name": "Robert"}, doc)
	})

	t.Run("missing documents", func(t *testing.T) {
		assert.ErrorIs(t, d.Update(ctx, "people", "9", schema.Document{"_id": "9"}), persistence.ErrNotFound)
		assert.ErrorIs(t, d.Delete(ctx, "people", "9"), persistence.ErrNotFound)
		assert.ErrorIs(t, d.Delete(ctx, "nothing", "1"), persistence.ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, d.Delete(ctx, "people", "1"))
		n, err := d.Count(ctx, "people", nil)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})
}

func TestDriver_CopiesDocuments(t *testing.T) {
	d := New(nil)
	ctx := context.Background()
	in := schema.Document{"_id": "1", "tags": []any{"a"}}
	require.NoError(t, d.Insert(ctx, "things", in))
	in["tags"].([]any)[0] = "changed"

	out, err := d.FindOne(ctx, "things", nil)
	require.NoError(t, err)
	assert.Equal(t, []any{"a"}, out["tags"])

	out["tags"].([]any)[0] = "mutated"
	again, err := d.FindOne(ctx, "things", nil)
	require.NoError(t, err)
	assert.Equal(t, []any{"a"}, again["tags"])
}

func TestDriver_Transactions(t *testing.T) {
	ctx := context.Background()

	t.Run("commit publishes writes", func(t *testing.T) {
		d := seed(t)
		tx, err := d.StartTransaction(ctx)
		require.NoError(t, err)
		require.NoError(t, tx.Insert(ctx, "people", schema.Document{"_id": "4"}))

		n, _ := d.Count(ctx, "people", nil)
		assert.Equal(t, int64(3), n)

		require.NoError(t, tx.Commit(ctx))
		n, _ = d.Count(ctx, "people", nil)
		assert.Equal(t, int64(4), n)
		assert.Error(t, tx.Insert(ctx, "people", schema.Document{"_id": "5"}))
	})

	t.Run("rollback discards writes", func(t *testing.T) {
		d := seed(t)
		tx, err := d.StartTransaction(ctx)
		require.NoError(t, err)
		require.NoError(t, tx.Delete(ctx, "people", "1"))
		require.NoError(t, tx.Rollback(ctx))

		n, _ := d.Count(ctx, "people", nil)
		assert.Equal(t, int64(3), n)
	})

	t.Run("commit outside a transaction", func(t *testing.T) {
		d := New(nil)
		assert.Error(t, d.Commit(ctx))
		assert.Error(t, d.Rollback(ctx))
	})
}

func TestDriver_CancelledContext(t *testing.T) {
	d := seed(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.FindOne(ctx, "people", nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, d.Insert(ctx, "people", schema.Document{"_id": "x"}), context.Canceled)
}

func TestDriver_CustomPredicate(t *testing.T) {
	d := seed(t)
	d.Matcher().RegisterPredicate("initial", func(doc map[string]any, field string, args query.FilterValue) (bool, error) {
		s, _ := doc[field].(string)
		return len(s) > 0 && s[:1] == args, nil
	})
	rows, err := d.Find(context.Background(), "people", &query.QueryDSL{
		Filters: &query.QueryFilter{Condition: &query.FilterCondition{Field: "name", Operator: "initial", Value: "C"}},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Cid", rows[0]["name"])
}
